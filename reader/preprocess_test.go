package reader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hesusruiz/adoc/safe"
)

var reTestAttrRef = regexp.MustCompile(`\{([\w-]+)\}`)

// testEnv is a minimal attribute store for the preprocessor.
type testEnv struct {
	attrs    map[string]string
	includes []string
}

func newTestEnv(kv ...string) *testEnv {
	e := &testEnv{attrs: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.attrs[kv[i]] = kv[i+1]
	}
	return e
}

func (e *testEnv) HasAttribute(name string) bool {
	_, ok := e.attrs[name]
	return ok
}

func (e *testEnv) Attribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *testEnv) SubAttributes(text string, missing string) (string, bool) {
	dropped := false
	out := reTestAttrRef.ReplaceAllStringFunc(text, func(ref string) string {
		name := ref[1 : len(ref)-1]
		if v, ok := e.attrs[name]; ok {
			return v
		}
		switch missing {
		case "drop-line":
			dropped = true
		case "drop":
			return ""
		}
		return ref
	})
	if dropped {
		return "", false
	}
	return out, true
}

func (e *testEnv) RegisterInclude(name string) {
	e.includes = append(e.includes, name)
}

func preprocess(t *testing.T, src string, env *testEnv, cfg Config) ([]string, *PreprocessingReader) {
	t.Helper()
	cfg.Env = env
	p := NewPreprocessingReader(PrepareLines(src, -1), Cursor{Dir: cfg.BaseDir, Path: "main.adoc", LineNumber: 1}, cfg)
	return p.ReadLines(), p
}

func TestConditionals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		env  *testEnv
		want []string
	}{
		{
			name: "ifdef defined",
			src:  "a\nifdef::flag[]\nb\nendif::flag[]\nc",
			env:  newTestEnv("flag", ""),
			want: []string{"a", "b", "c"},
		},
		{
			name: "ifdef undefined",
			src:  "a\nifdef::flag[]\nb\n\nb2\nendif::flag[]\nc",
			env:  newTestEnv(),
			want: []string{"a", "c"},
		},
		{
			name: "ifndef",
			src:  "ifndef::flag[]\nb\nendif::[]\nc",
			env:  newTestEnv(),
			want: []string{"b", "c"},
		},
		{
			name: "any of",
			src:  "ifdef::x,y[]\nb\nendif::x,y[]",
			env:  newTestEnv("y", ""),
			want: []string{"b"},
		},
		{
			name: "all of",
			src:  "ifdef::x+y[]\nb\nendif::x+y[]",
			env:  newTestEnv("y", ""),
			want: []string{},
		},
		{
			name: "single line",
			src:  "ifdef::flag[Shown {flag}]\nifndef::flag[Hidden]",
			env:  newTestEnv("flag", "on"),
			want: []string{"Shown {flag}"},
		},
		{
			name: "nested inside skipped region",
			src:  "ifdef::no[]\nifdef::yes[]\ninner\nendif::yes[]\nouter\nendif::no[]\nafter",
			env:  newTestEnv("yes", ""),
			want: []string{"after"},
		},
		{
			name: "escaped directive",
			src:  `\ifdef::flag[]` + "\ntext",
			env:  newTestEnv(),
			want: []string{"ifdef::flag[]", "text"},
		},
		{
			name: "ifeval numbers",
			src:  "ifeval::[{level} >= 2]\ndeep\nendif::[]\nifeval::[{level} < 2]\nshallow\nendif::[]",
			env:  newTestEnv("level", "3"),
			want: []string{"deep"},
		},
		{
			name: "ifeval strings",
			src:  "ifeval::[\"{backend}\" == \"html5\"]\nhtml\nendif::[]",
			env:  newTestEnv("backend", "html5"),
			want: []string{"html"},
		},
		{
			name: "ifeval incomparable",
			src:  "ifeval::[\"a\" < 1]\nnever\nendif::[]",
			env:  newTestEnv(),
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := preprocess(t, tt.src, tt.env, Config{})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionalSymmetry(t *testing.T) {
	src := "before\nifdef::feature[]\none\ntwo\nendif::feature[]\nafter"

	with, _ := preprocess(t, src, newTestEnv("feature", ""), Config{})
	without, _ := preprocess(t, src, newTestEnv(), Config{})

	assert.Equal(t, []string{"before", "one", "two", "after"}, with)
	assert.Equal(t, []string{"before", "after"}, without)
}

func TestConditionalErrors(t *testing.T) {
	log, logs := newObservedLogger()

	got, _ := preprocess(t, "endif::x[]\nifdef::a[]\nb\nendif::c[]", newTestEnv("a", ""), Config{Log: log})

	assert.Equal(t, []string{"b"}, got)
	assert.Equal(t, 1, logs.FilterMessageSnippet("unmatched preprocessor directive").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("mismatched preprocessor directive").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("unterminated preprocessor conditional").Len())
}

func TestIfevalComparisonFailure(t *testing.T) {
	log, logs := newObservedLogger()

	got, _ := preprocess(t, "ifeval::[\"a\" < 1]\nnever\nendif::[]\nafter", newTestEnv(), Config{Log: log})

	assert.Equal(t, []string{"after"}, got)
	entries := logs.FilterMessageSnippet("ifeval comparison failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap(), "source_location")
	assert.Contains(t, entries[0].ContextMap(), "error")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestIncludeWholeFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chapter.adoc", "chapter line 1\nchapter line 2\n")
	env := newTestEnv("name", "chapter")

	got, p := preprocess(t, "start\ninclude::{name}.adoc[]\nend", env, Config{BaseDir: dir})

	assert.Equal(t, []string{"start", "chapter line 1", "chapter line 2", "end"}, got)
	assert.Equal(t, []string{"chapter"}, env.includes)
	assert.NoError(t, p.Err())
}

func TestIncludeRelativeToIncludingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, dir, "sub/a.adoc", "in a\ninclude::b.adoc[]")
	writeFile(t, dir, "sub/b.adoc", "in b")

	got, _ := preprocess(t, "include::sub/a.adoc[]", newTestEnv(), Config{BaseDir: dir})

	assert.Equal(t, []string{"in a", "in b"}, got)
}

func TestIncludeLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "code.rb", "l1\nl2\nl3\nl4\nl5\nl6\n")

	tests := []struct {
		attrs string
		want  []string
	}{
		{`lines=2..3`, []string{"l2", "l3"}},
		{`lines="1;5.."`, []string{"l1", "l5", "l6"}},
		{`lines="4,1..2"`, []string{"l1", "l2", "l4"}},
		{`lines=4..-1`, []string{"l4", "l5", "l6"}},
	}
	for _, tt := range tests {
		t.Run(tt.attrs, func(t *testing.T) {
			got, _ := preprocess(t, fmt.Sprintf("include::code.rb[%s]", tt.attrs), newTestEnv(), Config{BaseDir: dir})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIncludeTags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.go", strings.Join([]string{
		"package main",
		"// tag::imports[]",
		`import "fmt"`,
		"// end::imports[]",
		"// tag::main[]",
		"func main() {",
		"	// tag::print[]",
		`	fmt.Println("hi")`,
		"	// end::print[]",
		"}",
		"// end::main[]",
	}, "\n"))

	tests := []struct {
		attrs string
		want  []string
	}{
		{`tag=imports`, []string{`import "fmt"`}},
		{`tags=imports;print`, []string{`import "fmt"`, `	fmt.Println("hi")`}},
		{`tag=main`, []string{"func main() {", `	fmt.Println("hi")`, "}"}},
		{`tags=main;!print`, []string{"func main() {", "}"}},
		{`tags=**;!imports`, []string{"package main", "func main() {", `	fmt.Println("hi")`, "}"}},
	}
	for _, tt := range tests {
		t.Run(tt.attrs, func(t *testing.T) {
			got, _ := preprocess(t, fmt.Sprintf("include::app.go[%s]", tt.attrs), newTestEnv(), Config{BaseDir: dir})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIncludeMissingTag(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x")
	log, logs := newObservedLogger()

	got, _ := preprocess(t, "include::a.txt[tag=nope]", newTestEnv(), Config{BaseDir: dir, Log: log})

	assert.Empty(t, got)
	assert.Equal(t, 1, logs.FilterMessageSnippet("tag 'nope' not found").Len())
}

func TestIncludeUnreadable(t *testing.T) {
	dir := t.TempDir()
	log, logs := newObservedLogger()

	got, _ := preprocess(t, "a\ninclude::missing.adoc[]\nb\ninclude::gone.adoc[opts=optional]", newTestEnv(), Config{BaseDir: dir, Log: log})

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, logs.FilterMessageSnippet("include file not readable").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("optional include dropped").Len())
}

func TestIncludeEscaped(t *testing.T) {
	got, _ := preprocess(t, `\include::x.adoc[]`, newTestEnv(), Config{})
	assert.Equal(t, []string{"include::x.adoc[]"}, got)
}

func TestIncludeIndentAndLeveloffset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "snip.adoc", "    a\n      b")
	writeFile(t, dir, "part.adoc", "== Part")

	got, _ := preprocess(t, "include::snip.adoc[indent=0]", newTestEnv(), Config{BaseDir: dir})
	assert.Equal(t, []string{"a", "  b"}, got)

	got, _ = preprocess(t, "include::part.adoc[leveloffset=+1]", newTestEnv(), Config{BaseDir: dir})
	assert.Equal(t, []string{":leveloffset: +1", "", "== Part", "", ":leveloffset!:"}, got)
}

// buildChain writes f1.adoc ... fn.adoc where each file includes the next one
// and the last one holds the line "leaf".
func buildChain(t *testing.T, dir string, n int) {
	for i := 1; i < n; i++ {
		writeFile(t, dir, fmt.Sprintf("f%d.adoc", i), fmt.Sprintf("include::f%d.adoc[]", i+1))
	}
	writeFile(t, dir, fmt.Sprintf("f%d.adoc", n), "leaf")
}

func TestIncludeDepthLimit(t *testing.T) {

	t.Run("exactly the limit", func(t *testing.T) {
		dir := t.TempDir()
		buildChain(t, dir, DefaultMaxIncludeDepth)
		log, logs := newObservedLogger()

		got, _ := preprocess(t, "include::f1.adoc[]", newTestEnv(), Config{BaseDir: dir, Log: log})

		assert.Equal(t, []string{"leaf"}, got)
		assert.Equal(t, 0, logs.FilterMessageSnippet("maximum include depth").Len())
	})

	t.Run("one deeper", func(t *testing.T) {
		dir := t.TempDir()
		buildChain(t, dir, DefaultMaxIncludeDepth+1)
		log, logs := newObservedLogger()

		got, _ := preprocess(t, "include::f1.adoc[]", newTestEnv(), Config{BaseDir: dir, Log: log})

		want := fmt.Sprintf("include::f%d.adoc[]", DefaultMaxIncludeDepth+1)
		assert.Equal(t, []string{want}, got)
		assert.Equal(t, 1, logs.FilterMessageSnippet("maximum include depth of 64 exceeded").Len())
	})

	t.Run("configured", func(t *testing.T) {
		dir := t.TempDir()
		buildChain(t, dir, 3)

		got, _ := preprocess(t, "include::f1.adoc[]", newTestEnv(), Config{BaseDir: dir, MaxIncludeDepth: 2})

		assert.Equal(t, []string{"include::f3.adoc[]"}, got)
	})
}

func TestIncludeSafeModes(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docs, 0o755))
	writeFile(t, dir, "secret.adoc", "secret")

	t.Run("secure links", func(t *testing.T) {
		got, _ := preprocess(t, "include::other.adoc[]", newTestEnv(), Config{BaseDir: docs, SafeMode: safe.Secure})
		assert.Equal(t, []string{"link:other.adoc[role=include]"}, got)
	})

	t.Run("server refuses to escape", func(t *testing.T) {
		got, p := preprocess(t, "a\ninclude::../secret.adoc[]\nb", newTestEnv(), Config{BaseDir: docs, SafeMode: safe.Server})
		assert.Equal(t, []string{"a"}, got)
		var se *safe.SecurityError
		assert.True(t, errors.As(p.Err(), &se))
	})

	t.Run("unsafe escapes", func(t *testing.T) {
		got, p := preprocess(t, "include::../secret.adoc[]", newTestEnv(), Config{BaseDir: docs, SafeMode: safe.Unsafe})
		assert.Equal(t, []string{"secret"}, got)
		assert.NoError(t, p.Err())
	})
}
