package reader

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestPrepareLines(t *testing.T) {
	got := PrepareLines("\ufefffirst  \r\nsecond\t\n\nlast\n", -1)
	if diff := cmp.Diff([]string{"first", "second", "", "last"}, got); diff != "" {
		t.Errorf("PrepareLines() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, PrepareLines("", -1))
}

func TestAdjustIndentation(t *testing.T) {
	lines := []string{"    a", "", "      b"}
	AdjustIndentation(lines, 0, 0)
	assert.Equal(t, []string{"a", "", "  b"}, lines)

	lines = []string{"a", "  b"}
	AdjustIndentation(lines, 2, 0)
	assert.Equal(t, []string{"  a", "    b"}, lines)

	lines = []string{"\tx"}
	AdjustIndentation(lines, -1, 4)
	assert.Equal(t, []string{"    x"}, lines)
}

func TestReaderPeekReadUnshift(t *testing.T) {
	r := NewReader([]string{"one", "two", "three"}, CursorForFile("doc.adoc"), nil)

	line, ok := r.PeekLine()
	require.True(t, ok)
	assert.Equal(t, "one", line)
	assert.Equal(t, 1, r.LineNumber())

	line, _ = r.ReadLine()
	assert.Equal(t, "one", line)
	assert.Equal(t, 2, r.LineNumber())

	assert.Equal(t, []string{"two", "three"}, r.PeekLines(5, false))
	assert.Equal(t, 2, r.LineNumber())

	r.UnshiftLine("one")
	assert.Equal(t, 1, r.LineNumber())
	assert.Equal(t, []string{"one", "two", "three"}, r.ReadLines())
	assert.False(t, r.HasMoreLines())

	_, ok = r.ReadLine()
	assert.False(t, ok)
	assert.Equal(t, "doc.adoc: line 4", r.Cursor().String())
}

func TestReaderSkipping(t *testing.T) {
	r := NewReader([]string{"", "", "// note", "////", "hidden", "////", "text"}, Cursor{}, nil)

	assert.Equal(t, 2, r.SkipBlankLines())
	r.SkipCommentLines()

	line, ok := r.PeekLine()
	require.True(t, ok)
	assert.Equal(t, "text", line)
	assert.True(t, r.NextLineEmpty() == false)
}

func TestReadLinesUntil(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		opts     UntilOptions
		want     []string
		wantNext string
	}{
		{
			name:     "terminator",
			lines:    []string{"----", "code", "more", "----", "after"},
			opts:     UntilOptions{Terminator: "----", SkipFirstLine: true},
			want:     []string{"code", "more"},
			wantNext: "after",
		},
		{
			name:     "blank line",
			lines:    []string{"a", "b", "", "c"},
			opts:     UntilOptions{BreakOnBlankLines: true},
			want:     []string{"a", "b"},
			wantNext: "c",
		},
		{
			name:     "list continuation is preserved",
			lines:    []string{"a", "+", "b"},
			opts:     UntilOptions{BreakOnListContinuation: true},
			want:     []string{"a"},
			wantNext: "+",
		},
		{
			name:     "comments skipped",
			lines:    []string{"a", "// c", "b", ""},
			opts:     UntilOptions{BreakOnBlankLines: true, SkipLineComments: true},
			want:     []string{"a", "b"},
			wantNext: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.lines, Cursor{}, nil)
			got := r.ReadLinesUntil(tt.opts, nil)
			assert.Equal(t, tt.want, got)
			next, _ := r.PeekLine()
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestReadLinesUntilPredicate(t *testing.T) {
	r := NewReader([]string{"a", "b", "STOP", "c"}, Cursor{}, nil)
	got := r.ReadLinesUntil(UntilOptions{PreserveLastLine: true}, func(l string) bool { return l == "STOP" })
	assert.Equal(t, []string{"a", "b"}, got)
	next, _ := r.PeekLine()
	assert.Equal(t, "STOP", next)
}

func TestReadLinesUntilUnterminated(t *testing.T) {
	log, logs := newObservedLogger()
	r := NewReader([]string{"....", "text"}, CursorForFile("x.adoc"), log)

	got := r.ReadLinesUntil(UntilOptions{Terminator: "....", SkipFirstLine: true, Context: "literal"}, nil)

	assert.Equal(t, []string{"text"}, got)
	assert.True(t, r.Unterminated())
	require.Equal(t, 1, logs.FilterMessage("unterminated literal block").Len())
	entry := logs.All()[0]
	assert.Equal(t, "x.adoc: line 1", entry.ContextMap()["source_location"])
}
