package adoc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sectionTitles(sections []*Block) []string {
	var out []string
	for _, s := range sections {
		out = append(out, s.Title())
	}
	return out
}

func TestSectionsUnderTitle(t *testing.T) {
	src := `= Document Title

== One

First.

== Two

Second.

== Three`

	doc, _ := parse(t, src, Options{})

	sections := doc.Root().Sections()
	require.Len(t, sections, 3)
	if diff := cmp.Diff([]string{"One", "Two", "Three"}, sectionTitles(sections)); diff != "" {
		t.Errorf("section titles mismatch (-want +got):\n%s", diff)
	}
	for i, s := range sections {
		assert.Equal(t, 1, s.Level())
		assert.Equal(t, i, s.Section.Index)
	}

	// The empty preamble is removed
	assert.Equal(t, []string{"section", "section", "section"}, contexts(doc.Blocks()))
	assert.Equal(t, []string{"paragraph"}, contexts(sections[0].Children()))
}

func TestSectionNesting(t *testing.T) {
	src := `= Doc

Preamble text.

== A

=== A.1

==== A.1.1

== B`

	doc, _ := parse(t, src, Options{})

	assert.Equal(t, []string{"preamble", "section", "section"}, contexts(doc.Blocks()))

	a := doc.Root().Sections()[0]
	require.Len(t, a.Sections(), 1)
	a1 := a.Sections()[0]
	assert.Equal(t, 2, a1.Level())
	require.Len(t, a1.Sections(), 1)
	assert.Equal(t, 3, a1.Sections()[0].Level())
	assert.Same(t, a, a1.Parent)
}

func TestSectionIDs(t *testing.T) {
	src := `= Doc

== Section One

== Section One

[[custom]]
== Other

== Inline Anchor [[inline]]`

	doc, _ := parse(t, src, Options{})

	var ids []string
	for _, s := range doc.Root().Sections() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"_section_one", "_section_one_2", "custom", "inline"}, ids)

	for _, id := range ids {
		ref, ok := doc.Ref(id)
		require.True(t, ok, id)
		assert.Equal(t, ContextSection, ref.Block.Context)
	}
	assert.Equal(t, "Inline Anchor", doc.Root().Sections()[3].Title())
}

func TestSectionIDPrefixAndSeparator(t *testing.T) {
	doc, _ := parse(t, "= Doc\n:idprefix:\n:idseparator: -\n\n== Hello World", Options{})
	assert.Equal(t, "hello-world", doc.Root().Sections()[0].ID)

	doc, _ = parse(t, "= Doc\n:sectids!:\n\n== Hello World", Options{})
	assert.Empty(t, doc.Root().Sections()[0].ID)
}

func TestSectionOutOfSequence(t *testing.T) {
	doc, logs := parse(t, "= Doc\n\n=== Deep\n\ntext", Options{})

	assert.True(t, hasDiagnostic(doc, SeverityWarning, "section title out of sequence"))
	assert.Equal(t, 1, logs.FilterMessage("section title out of sequence").Len())

	// Still parsed as a section
	sections := doc.Root().Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, 2, sections[0].Level())
}

func TestSectionNumbers(t *testing.T) {
	src := `= Doc
:sectnums:

== Intro

=== Detail

=== More

== Usage

[appendix]
== Extras`

	doc, _ := parse(t, src, Options{})

	sections := doc.Root().Sections()
	require.Len(t, sections, 3)

	intro := sections[0]
	assert.Equal(t, "1.", intro.Sectnum())
	assert.Equal(t, []string{"1.1.", "1.2."}, []string{intro.Sections()[0].Sectnum(), intro.Sections()[1].Sectnum()})
	assert.Equal(t, "2.", sections[1].Sectnum())

	appendix := sections[2]
	assert.Equal(t, "appendix", appendix.Section.Sectname)
	assert.True(t, appendix.Section.Special)
	assert.Equal(t, "A", appendix.Numeral)
	assert.Equal(t, "Appendix A: ", appendix.Caption)
}

func TestSetextSectionTitle(t *testing.T) {
	src := "Document Title\n==============\n\nSection\n-------\n\ntext"

	doc, _ := parse(t, src, Options{})

	assert.Equal(t, "Document Title", doc.Doctitle())
	sections := doc.Root().Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "Section", sections[0].Title())
	assert.Equal(t, 1, sections[0].Level())
}

func TestDiscreteHeading(t *testing.T) {
	doc, _ := parse(t, "[discrete]\n== Not A Section\n\ntext", Options{})

	assert.Empty(t, doc.Root().Sections())
	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, ContextFloatingTitle, blocks[0].Context)
	assert.Equal(t, "1", blocks[0].Attributes["level"])
	assert.Equal(t, "_not_a_section", blocks[0].ID)
}

func TestBookParts(t *testing.T) {
	src := `= Book
:doctype: book

= Part One

== Chapter

text`

	doc, _ := parse(t, src, Options{Doctype: "book"})

	parts := doc.Root().Sections()
	require.Len(t, parts, 1)
	assert.Equal(t, 0, parts[0].Level())
	assert.Equal(t, "part", parts[0].Section.Sectname)
	require.Len(t, parts[0].Sections(), 1)
	assert.Equal(t, "chapter", parts[0].Sections()[0].Section.Sectname)
}

func TestRomanNumeral(t *testing.T) {
	for n, want := range map[int]string{1: "I", 4: "IV", 9: "IX", 14: "XIV", 1990: "MCMXC"} {
		assert.Equal(t, want, romanNumeral(n))
		assert.Equal(t, n, romanValue(want))
	}
}
