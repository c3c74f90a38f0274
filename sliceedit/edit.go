// Copyright 2023 Jesus Ruiz. All rights reserved.
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.

// Package sliceedit queues edits to a string on top of rsc.io/edit, so many
// replacements cost a single allocation when applied.
package sliceedit

import (
	"rsc.io/edit"
)

// A Buffer is a queue of edits to apply to a given string. Offsets always
// refer to the original string, whatever was queued before.
type Buffer struct {
	ed *edit.Buffer
}

// NewBuffer returns a buffer to accumulate changes to src.
func NewBuffer(src string) *Buffer {
	return &Buffer{ed: edit.NewBuffer([]byte(src))}
}

// Replace queues the replacement of src[start:end] with text. Queued
// ranges must not overlap.
func (b *Buffer) Replace(start, end int, text string) {
	b.ed.Replace(start, end, text)
}

// String returns the original string with the queued edits applied.
func (b *Buffer) String() string {
	return b.ed.String()
}
