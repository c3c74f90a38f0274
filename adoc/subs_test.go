package adoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyNormalSubs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"special characters", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"constrained quotes",
			"*strong* _em_ `mono` #mark#",
			"<strong>strong</strong> <em>em</em> <code>mono</code> <mark>mark</mark>"},
		{"unconstrained quotes", "**s**tr __e__m", "<strong>s</strong>tr <em>e</em>m"},
		{"no quotes inside a word", "a*b*c", "a*b*c"},
		{"super and subscript", "x^2^ H~2~O", "x<sup>2</sup> H<sub>2</sub>O"},
		{"curved quotes", "\"`double`\" '`single`'", "&#8220;double&#8221; &#8216;single&#8217;"},
		{"role on quoted text", "[.big]#text#", `<span class="big">text</span>`},
		{"replacements", "(C) (R) (TM)", "&#169; &#174; &#8482;"},
		{"em dash", "a -- b", "a&#8201;&#8212;&#8201;b"},
		{"ellipsis", "wait...", "wait&#8230;&#8203;"},
		{"hard break", "line one +\nline two", "line one<br>\nline two"},
		{"link", "see https://example.org[Example]", `see <a href="https://example.org">Example</a>`},
		{"bare link", "https://example.org", `<a href="https://example.org" class="bare">https://example.org</a>`},
	}

	doc := NewDocument(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.ApplyNormalSubs(tt.in))
		})
	}
}

func TestPassthroughsAreOpaque(t *testing.T) {
	doc := NewDocument(Options{})
	doc.SetAttribute("x", "value")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"triple plus", "+++*a* {x} <b>+++ and *c*", "*a* {x} <b> and <strong>c</strong>"},
		{"double dollar", "$$*a* <b>$$ {x}", "*a* &lt;b&gt; value"},
		{"single plus", "use +*a* {x}+ here", "use *a* {x} here"},
		{"double plus", "a++*b*++c", "a*b*c"},
		{"literal monospace", "`+*a* {x}+`", "<code>*a* {x}</code>"},
		{"literal monospace in a sentence", "Use `+*a* {x} _b_+` here.", "Use <code>*a* {x} _b_</code> here."},
		{"plus after a word", "a+*b*+", "a+<strong>b</strong>+"},
		{"pass macro", "pass:[*a* {x}] *b*", "*a* {x} <strong>b</strong>"},
		{"pass macro with subs", "pass:q[*a* {x}]", "<strong>a</strong> {x}"},
		{"pass macro with attributes", "pass:a,q[*{x}*]", "<strong>value</strong>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.ApplyNormalSubs(tt.in))
		})
	}
}

func TestApplySubsOrder(t *testing.T) {
	doc := NewDocument(Options{})
	doc.SetAttribute("tag", "<b>")

	// Attributes come after special characters, so their values are not escaped
	assert.Equal(t, "<b>", doc.ApplySubs("{tag}", NormalSubs))
	assert.Equal(t, "&lt;b&gt;", doc.ApplySubs("{tag}", []Sub{SubAttributes, SubSpecialCharacters}))
	assert.Equal(t, "{tag}", doc.ApplySubs("{tag}", NoSubs))
}

func TestResolveSubs(t *testing.T) {
	doc := NewDocument(Options{})

	assert.Equal(t, []Sub{SubQuotes, SubAttributes}, doc.resolveSubs("quotes,attributes", NormalSubs, false, "test"))
	assert.Equal(t, VerbatimSubs, doc.resolveSubs("verbatim", NormalSubs, false, "test"))
	assert.Equal(t, []Sub{SubSpecialCharacters, SubCallouts, SubQuotes}, doc.resolveSubs("+quotes", VerbatimSubs, false, "test"))
	assert.Equal(t, []Sub{SubQuotes, SubSpecialCharacters, SubCallouts}, doc.resolveSubs("quotes+", VerbatimSubs, false, "test"))
	assert.Equal(t, []Sub{SubSpecialCharacters}, doc.resolveSubs("-callouts", VerbatimSubs, false, "test"))
	assert.Empty(t, doc.resolveSubs("none", NormalSubs, false, "test"))
}

func TestBlockSubsAttribute(t *testing.T) {
	doc, _ := parse(t, "[subs=\"+attributes\"]\n----\n{version} <x>\n----", Options{
		Attributes: map[string]string{"version": "1.0"},
	})

	listing := onlyBlock(t, doc)
	assert.Equal(t, "1.0 &lt;x&gt;", listing.Content())
}

func TestSubAttributesSetAndEscapes(t *testing.T) {
	doc := NewDocument(Options{})

	assert.Equal(t, "{name}", doc.ApplyNormalSubs(`\{name}`))

	doc.ApplyNormalSubs("{set:name:stored}")
	assert.Equal(t, "stored", doc.AttributeOr("name", ""))

	assert.Equal(t, "a b", doc.ApplySubs("a{sp}b", HeaderSubs))
}
