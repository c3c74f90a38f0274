// Package highlight formats source blocks with chroma.
package highlight

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	hlhtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Chroma is a highlighter producing HTML spans, without the surrounding pre.
type Chroma struct {
	// Classes emits CSS classes instead of inline styles
	Classes bool
}

// New returns a highlighter with inline styles.
func New() *Chroma {
	return &Chroma{}
}

// Highlight formats source written in lang with the named style. An
// unknown language is guessed from the source, and an unknown style falls
// back to the chroma default.
func (c *Chroma) Highlight(source, lang, style string) (string, error) {

	l := lexers.Get(strings.TrimSpace(lang))
	if l == nil {
		l = lexers.Analyse(source)
	}
	if l == nil {
		l = lexers.Fallback
	}
	l = chroma.Coalesce(l)

	s := styles.Get(style)

	f := hlhtml.New(
		hlhtml.Standalone(false),
		hlhtml.PreventSurroundingPre(true),
		hlhtml.WithClasses(c.Classes),
	)

	it, err := l.Tokenise(nil, source)
	if err != nil {
		return "", fmt.Errorf("tokenising %s: %w", lang, err)
	}

	var out bytes.Buffer
	if err := f.Format(&out, s, it); err != nil {
		return "", fmt.Errorf("formatting %s: %w", lang, err)
	}
	return out.String(), nil
}

// Languages returns the names of the lexers chroma knows.
func Languages() []string {
	return lexers.Names(false)
}
