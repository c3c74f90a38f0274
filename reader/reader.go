// Package reader implements the line cursor the block parser is driven by,
// and the preprocessor that expands include directives and evaluates
// conditional directives before the parser ever sees a line.
package reader

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ListContinuation is the lone line that attaches the next block to a list item.
const ListContinuation = "+"

// Cursor identifies a position in a source file, for diagnostics.
type Cursor struct {
	File       string
	Dir        string
	Path       string
	LineNumber int
}

// String returns the position in the `path: line N` form used by every diagnostic.
func (c Cursor) String() string {
	path := c.Path
	if len(path) == 0 {
		path = "<stdin>"
	}
	return fmt.Sprintf("%s: line %d", path, c.LineNumber)
}

// CursorForFile returns a cursor at the first line of the named file.
func CursorForFile(file string) Cursor {
	if len(file) == 0 {
		return Cursor{Dir: ".", LineNumber: 1}
	}
	return Cursor{
		File:       file,
		Dir:        filepath.Dir(file),
		Path:       filepath.Base(file),
		LineNumber: 1,
	}
}

// lineProcessor is the hook a preprocessor installs into a Reader.
type lineProcessor interface {
	// processLine is called once per line the first time it is peeked.
	// It returns false when the line was consumed and the reader should peek again.
	processLine(line string) (string, bool)

	// exhausted is called when the buffer runs dry. It returns true if more
	// lines became available, for example because an include was popped.
	exhausted() bool
}

// Reader is a pull cursor over a sequence of lines, with peek, push-back and
// bounded scans. The zero value is not usable, use NewReader.
type Reader struct {
	// lines are stored in reverse order, so the next line is the last element
	lines []string

	file   string
	dir    string
	path   string
	lineno int

	// lookAhead counts how many lines at the top of the buffer were already processed
	lookAhead int

	// processLines enables the preprocessing hook
	processLines bool

	// unescapeNextLine drops the leading backslash of an escaped directive when it is read
	unescapeNextLine bool

	// unterminated is set when the last delimited block scan hit the end of input
	unterminated bool

	mark Cursor

	hook lineProcessor

	log *zap.SugaredLogger
}

// NewReader creates a reader over lines, positioned at cursor.
// The lines are taken over by the reader.
func NewReader(lines []string, cursor Cursor, log *zap.SugaredLogger) *Reader {

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := &Reader{
		file:         cursor.File,
		dir:          cursor.Dir,
		path:         cursor.Path,
		lineno:       cursor.LineNumber,
		processLines: true,
		log:          log,
	}
	if r.lineno == 0 {
		r.lineno = 1
	}
	if len(r.dir) == 0 {
		r.dir = "."
	}
	r.lines = reversed(lines)

	return r
}

// NewReaderFromString splits data into lines and creates a reader over them.
func NewReaderFromString(data string, cursor Cursor, log *zap.SugaredLogger) *Reader {
	return NewReader(PrepareLines(data, -1), cursor, log)
}

func reversed(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[len(lines)-1-i] = l
	}
	return out
}

// Logger returns the logger diagnostics are reported to.
func (r *Reader) Logger() *zap.SugaredLogger {
	return r.log
}

// Cursor returns the position of the next line.
func (r *Reader) Cursor() Cursor {
	return Cursor{File: r.file, Dir: r.dir, Path: r.path, LineNumber: r.lineno}
}

// CursorAtLine returns a cursor in the current file at line n.
func (r *Reader) CursorAtLine(n int) Cursor {
	c := r.Cursor()
	c.LineNumber = n
	return c
}

// CursorAtPrevLine returns the position of the line most recently read.
func (r *Reader) CursorAtPrevLine() Cursor {
	return r.CursorAtLine(r.lineno - 1)
}

// Mark records the current position, to be reported later with CursorAtMark.
func (r *Reader) Mark() {
	r.mark = r.Cursor()
}

// CursorAtMark returns the position recorded by Mark.
func (r *Reader) CursorAtMark() Cursor {
	return r.mark
}

// LineNumber is the number of the next line.
func (r *Reader) LineNumber() int {
	return r.lineno
}

// Dir is the directory of the file being read, used to resolve relative targets.
func (r *Reader) Dir() string {
	return r.dir
}

// File is the full name of the file being read.
func (r *Reader) File() string {
	return r.file
}

// Unterminated reports whether the last delimited scan ran out of lines.
func (r *Reader) Unterminated() bool {
	return r.unterminated
}

// HasMoreLines reports whether another line can be read, triggering
// preprocessing of the next line if needed.
func (r *Reader) HasMoreLines() bool {
	_, ok := r.PeekLine()
	return ok
}

// Empty is the negation of HasMoreLines.
func (r *Reader) Empty() bool {
	return !r.HasMoreLines()
}

// NextLineEmpty reports whether the next line is blank or there is none.
func (r *Reader) NextLineEmpty() bool {
	line, ok := r.PeekLine()
	return !ok || len(line) == 0
}

// PeekLine returns the next line without consuming it. The preprocessing
// hook runs once for a line, the first time it is peeked.
func (r *Reader) PeekLine() (string, bool) {
	for {
		line, ok := r.peekLine(false)
		if ok {
			return line, true
		}
		if len(r.lines) > 0 {
			// The hook consumed the line, look again
			continue
		}
		if r.hook != nil && r.hook.exhausted() {
			continue
		}
		return "", false
	}
}

// peekLine returns false with lines still in the buffer when the hook consumed the top line.
func (r *Reader) peekLine(direct bool) (string, bool) {

	if len(r.lines) == 0 {
		r.lookAhead = 0
		return "", false
	}

	top := r.lines[len(r.lines)-1]

	if direct || r.lookAhead > 0 {
		if r.unescapeNextLine {
			return top[1:], true
		}
		return top, true
	}

	if r.hook == nil {
		if r.processLines {
			r.lookAhead++
		}
		return top, true
	}

	if !r.processLines {
		return top, true
	}

	return r.hook.processLine(top)
}

// PeekLines returns up to n next lines without consuming them. With direct
// the lines are taken as they are, without preprocessing.
func (r *Reader) PeekLines(n int, direct bool) []string {

	oldLookAhead := r.lookAhead
	result := []string{}

	for i := 0; i < n; i++ {
		var line string
		var ok bool
		if direct {
			if len(r.lines) == 0 {
				break
			}
			line, ok = r.shift(), true
		} else {
			line, ok = r.ReadLine()
		}
		if !ok {
			break
		}
		result = append(result, line)
	}

	if len(result) > 0 {
		r.UnshiftLines(result)
		if direct {
			r.lookAhead = oldLookAhead
		}
	}

	return result
}

// ReadLine consumes and returns the next line.
func (r *Reader) ReadLine() (string, bool) {
	if r.lookAhead > 0 || r.HasMoreLines() {
		return r.shift(), true
	}
	return "", false
}

// ReadLines consumes all remaining lines.
func (r *Reader) ReadLines() []string {
	lines := []string{}
	for {
		line, ok := r.ReadLine()
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

// Read consumes all remaining lines, joined with newlines.
func (r *Reader) Read() string {
	return strings.Join(r.ReadLines(), "\n")
}

// Advance skips the next line.
func (r *Reader) Advance() bool {
	_, ok := r.ReadLine()
	return ok
}

func (r *Reader) shift() string {
	r.lineno++
	if r.lookAhead > 0 {
		r.lookAhead--
	}
	line := r.lines[len(r.lines)-1]
	r.lines = r.lines[:len(r.lines)-1]
	if r.unescapeNextLine {
		r.unescapeNextLine = false
		return line[1:]
	}
	return line
}

// UnshiftLine pushes a line back, so it is the next one to be read.
func (r *Reader) UnshiftLine(line string) {
	r.lineno--
	r.lookAhead++
	r.lines = append(r.lines, line)
}

// UnshiftLines pushes back lines, in reading order.
func (r *Reader) UnshiftLines(lines []string) {
	for i := len(lines) - 1; i >= 0; i-- {
		r.UnshiftLine(lines[i])
	}
}

// ReplaceNextLine replaces the next line with line.
func (r *Reader) ReplaceNextLine(line string) {
	r.shift()
	r.UnshiftLine(line)
}

// SkipBlankLines consumes blank lines and returns how many were skipped.
func (r *Reader) SkipBlankLines() int {
	skipped := 0
	for {
		line, ok := r.PeekLine()
		if !ok || len(line) > 0 {
			return skipped
		}
		r.shift()
		skipped++
	}
}

// IsLineComment reports whether line is a `//` comment but not a `///` fence.
func IsLineComment(line string) bool {
	return strings.HasPrefix(line, "//") && !strings.HasPrefix(line, "///")
}

// IsCommentFence reports whether line opens or closes a comment block (four or more slashes).
func IsCommentFence(line string) bool {
	return len(line) > 3 && strings.Trim(line, "/") == ""
}

// SkipCommentLines consumes line comments and comment blocks.
func (r *Reader) SkipCommentLines() {
	for {
		line, ok := r.PeekLine()
		if !ok || len(line) == 0 || !strings.HasPrefix(line, "//") {
			return
		}
		if strings.HasPrefix(line, "///") {
			if !IsCommentFence(line) {
				return
			}
			r.ReadLinesUntil(UntilOptions{
				Terminator:     line,
				SkipFirstLine:  true,
				ReadLastLine:   true,
				SkipProcessing: true,
				Context:        "comment",
			}, nil)
			continue
		}
		r.shift()
	}
}

// SkipLineComments consumes line comments and returns the ones it skipped.
func (r *Reader) SkipLineComments() []string {
	comments := []string{}
	for {
		line, ok := r.PeekLine()
		if !ok || !IsLineComment(line) {
			return comments
		}
		comments = append(comments, r.shift())
	}
}

// Terminate discards all remaining lines.
func (r *Reader) Terminate() {
	r.lineno += len(r.lines)
	r.lines = nil
	r.lookAhead = 0
}

// Lines returns a copy of the remaining lines in reading order, without consuming them.
func (r *Reader) Lines() []string {
	return reversed(r.lines)
}

// UntilOptions controls ReadLinesUntil.
type UntilOptions struct {
	// Terminator stops the scan on an exact match. Blank line and list
	// continuation breaks are disabled when it is set.
	Terminator string

	BreakOnBlankLines       bool
	BreakOnListContinuation bool

	// SkipFirstLine drops the first line before scanning (usually the opening fence).
	SkipFirstLine bool

	// ReadLastLine keeps the line that stopped the scan in the result.
	ReadLastLine bool

	// PreserveLastLine pushes the line that stopped the scan back to the reader.
	PreserveLastLine bool

	// SkipLineComments leaves `//` comments out of the result.
	SkipLineComments bool

	// SkipProcessing disables preprocessing while scanning.
	SkipProcessing bool

	// Context names the block for the unterminated warning. Empty uses the terminator.
	Context string

	// Cursor is where the block started, for the unterminated warning.
	Cursor *Cursor
}

// ReadLinesUntil consumes lines until the terminator matches, stop returns
// true, or a configured break is reached.
func (r *Reader) ReadLinesUntil(opts UntilOptions, stop func(line string) bool) []string {

	result := []string{}

	restoreProcessLines := false
	if r.processLines && opts.SkipProcessing {
		r.processLines = false
		restoreProcessLines = true
	}

	hasTerminator := len(opts.Terminator) > 0
	var startCursor Cursor
	breakOnBlankLines := opts.BreakOnBlankLines
	breakOnListContinuation := opts.BreakOnListContinuation
	if hasTerminator {
		if opts.Cursor != nil {
			startCursor = *opts.Cursor
		} else {
			startCursor = r.Cursor()
		}
		breakOnBlankLines = false
		breakOnListContinuation = false
	}

	preserveLastLine := opts.PreserveLastLine
	lineRead := false
	lineRestored := false
	terminated := false

	if opts.SkipFirstLine {
		r.ReadLine()
	}

	for {
		line, ok := r.ReadLine()
		if !ok {
			break
		}

		var stopHere bool
		switch {
		case hasTerminator:
			stopHere = line == opts.Terminator
		case breakOnBlankLines && len(line) == 0:
			stopHere = true
		case breakOnListContinuation && lineRead && line == ListContinuation:
			stopHere = true
			preserveLastLine = true
		case stop != nil && stop(line):
			stopHere = true
		}

		if stopHere {
			terminated = true
			if opts.ReadLastLine {
				result = append(result, line)
			}
			if preserveLastLine {
				r.UnshiftLine(line)
				lineRestored = true
			}
			break
		}

		if !(opts.SkipLineComments && IsLineComment(line)) {
			result = append(result, line)
			lineRead = true
		}
	}

	if restoreProcessLines {
		r.processLines = true
		if lineRestored && !hasTerminator {
			r.lookAhead--
		}
	}

	r.unterminated = false
	if hasTerminator && !terminated {
		context := opts.Context
		if len(context) == 0 {
			context = opts.Terminator
		}
		r.log.Warnw(fmt.Sprintf("unterminated %s block", context), "source_location", startCursor.String())
		r.unterminated = true
	}

	return result
}
