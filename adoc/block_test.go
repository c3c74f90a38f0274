package adoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/reader"
)

func TestDelimitedBlocks(t *testing.T) {
	src := `====
Example content.
====

****
Sidebar.
****

____
Quoted.
____

....
literal  text
....

++++
<raw>
++++

--
Open.
--

////
hidden
////`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Equal(t, []string{"example", "sidebar", "quote", "literal", "pass", "open"}, contexts(blocks))

	for _, i := range []int{0, 1, 2, 5} {
		assert.Equal(t, ContentCompound, blocks[i].ContentModel)
		assert.Equal(t, []string{"paragraph"}, contexts(blocks[i].Children()), blocks[i].Context.String())
	}
	assert.Equal(t, "literal  text", blocks[3].Content())
	assert.Equal(t, "<raw>", blocks[4].Content())
}

func TestDelimitedBlockStyles(t *testing.T) {
	src := `[source]
....
kept as source
....

[sidebar]
--
In an open block.
--

[verse, Poet, Poem]
____
line one
line *two*
____`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Equal(t, []string{"listing", "sidebar", "verse"}, contexts(blocks))
	assert.Equal(t, "source", blocks[0].Style)

	verse := blocks[2]
	assert.Equal(t, "Poet", verse.Attributes["attribution"])
	assert.Equal(t, "Poem", verse.Attributes["citetitle"])
	assert.Equal(t, "line one\nline <strong>two</strong>", verse.Content())
}

func TestInvalidBlockStyle(t *testing.T) {
	doc, _ := parse(t, "[bogus]\n****\ntext\n****", Options{})

	b := onlyBlock(t, doc)
	assert.Equal(t, ContextSidebar, b.Context)
	assert.True(t, hasDiagnostic(doc, SeverityWarning, "invalid style for sidebar block"))
}

func TestUnterminatedBlock(t *testing.T) {
	doc, _ := parse(t, "----\nnever closed", Options{})

	b := onlyBlock(t, doc)
	assert.Equal(t, ContextListing, b.Context)
	assert.Equal(t, "never closed", b.Source())
	assert.True(t, hasDiagnostic(doc, SeverityWarning, "unterminated listing block"))
}

func TestNestingGuard(t *testing.T) {
	src := `====
=====
======
deep
======
=====
====`

	doc, _ := parse(t, src, Options{MaxNesting: 2})

	outer := onlyBlock(t, doc)
	require.Equal(t, 1, outer.ChildCount())
	middle := outer.FirstChild
	require.Equal(t, 1, middle.ChildCount())
	inner := middle.FirstChild
	assert.Equal(t, ContextExample, inner.Context)
	assert.False(t, inner.HasChildren())

	assert.True(t, hasDiagnostic(doc, SeverityWarning, ErrMaxNesting.Error()))
}

func TestAdmonitions(t *testing.T) {
	src := `NOTE: Remember this.

[TIP]
====
Inside a block.
====`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)

	note := blocks[0]
	assert.Equal(t, ContextAdmonition, note.Context)
	assert.Equal(t, "NOTE", note.Style)
	assert.Equal(t, "note", note.Attributes["name"])
	assert.Equal(t, "Note", note.Attributes["textlabel"])
	assert.Equal(t, "Remember this.", note.Content())

	tip := blocks[1]
	assert.Equal(t, ContextAdmonition, tip.Context)
	assert.Equal(t, ContentCompound, tip.ContentModel)
	assert.Equal(t, "tip", tip.Attributes["name"])
	assert.Equal(t, []string{"paragraph"}, contexts(tip.Children()))
}

func TestSourceBlocks(t *testing.T) {
	src := "[source,go,linenums]\n----\nfmt.Println(1)\n----\n\n```ruby\nputs 1\n```"

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)

	goBlock := blocks[0]
	assert.Equal(t, ContextListing, goBlock.Context)
	assert.Equal(t, "source", goBlock.Style)
	assert.Equal(t, "go", goBlock.Attributes["language"])
	assert.True(t, goBlock.HasOption("linenums"))

	fenced := blocks[1]
	assert.Equal(t, "source", fenced.Style)
	assert.Equal(t, "ruby", fenced.Attributes["language"])
	assert.Equal(t, "puts 1", fenced.Content())
}

// upper is a Highlighter that upper cases the source.
type upper struct{}

func (upper) Highlight(source, lang, style string) (string, error) {
	return strings.ToUpper(source) + " (" + lang + ")", nil
}

func TestSourceHighlight(t *testing.T) {
	doc, _ := parse(t, "[source,go]\n----\nx < y\n----", Options{Highlighter: upper{}})

	b := onlyBlock(t, doc)
	assert.Contains(t, b.Subs(), SubHighlight)
	assert.NotContains(t, b.Subs(), SubSpecialCharacters)
	assert.Equal(t, "X < Y (go)", b.Content())
}

func TestCaptions(t *testing.T) {
	src := `.First example
====
x
====

.A figure
image::my_photo.png[]

.Second example
====
y
====

.Custom
[caption="Listing A: "]
----
z
----`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Len(t, blocks, 4)
	assert.Equal(t, "Example 1. ", blocks[0].Caption)
	assert.Equal(t, "Figure 1. ", blocks[1].Caption)
	assert.Equal(t, "Example 2. ", blocks[2].Caption)
	assert.Equal(t, "Listing A: ", blocks[3].Caption)

	image := blocks[1]
	assert.Equal(t, ContextImage, image.Context)
	assert.Equal(t, "my_photo.png", image.Attributes["target"])
	assert.Equal(t, "my photo", image.Attributes["alt"])
	assert.Contains(t, doc.Catalog().Images, "my_photo.png")
}

func TestBlockTitleSubstitutions(t *testing.T) {
	doc, _ := parse(t, ".A *bold* title\nText.", Options{})

	b := onlyBlock(t, doc)
	assert.True(t, b.HasTitle())
	assert.Equal(t, "A *bold* title", b.RawTitle())
	assert.Equal(t, "A <strong>bold</strong> title", b.Title())
}

func TestBlockIDsAndRoles(t *testing.T) {
	src := `[#first.lead%hardbreaks]
Para one
next line

[[first]]
Para two.`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)

	first := blocks[0]
	assert.Equal(t, "first", first.ID)
	assert.True(t, first.HasRole("lead"))
	assert.True(t, first.HasOption("hardbreaks"))
	assert.Equal(t, "Para one<br>\nnext line", first.Content())

	ref, ok := doc.Ref("first")
	require.True(t, ok)
	assert.Same(t, first, ref.Block)

	assert.True(t, hasDiagnostic(doc, SeverityWarning, "id assigned to block already in use"))
}

func TestParagraphForms(t *testing.T) {
	src := `  indented
  text

"Famous words"
-- Someone, Somewhere

> quoted
> more

'''

<<<`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Equal(t, []string{"literal", "quote", "quote", "thematic_break", "page_break"}, contexts(blocks))

	assert.Equal(t, []string{"indented", "text"}, blocks[0].Lines)

	air := blocks[1]
	assert.Equal(t, "Famous words", air.Content())
	assert.Equal(t, "Someone", air.Attributes["attribution"])
	assert.Equal(t, "Somewhere", air.Attributes["citetitle"])

	md := blocks[2]
	assert.Equal(t, ContentCompound, md.ContentModel)
	require.Equal(t, 1, md.ChildCount())
	assert.Equal(t, "quoted\nmore", md.FirstChild.Source())
}

// blockFunc adapts a function to BlockProcessor.
type blockFunc func(parent *Block, r *reader.Reader, attrs attrlist.Attributes) (*Block, error)

func (f blockFunc) Process(parent *Block, r *reader.Reader, attrs attrlist.Attributes) (*Block, error) {
	return f(parent, r, attrs)
}

// inlineFunc adapts a function to InlineMacroProcessor.
type inlineFunc func(parent *Block, target string, attrs attrlist.Attributes) (string, error)

func (f inlineFunc) Process(parent *Block, target string, attrs attrlist.Attributes) (string, error) {
	return f(parent, target, attrs)
}

func shout() BlockProcessor {
	return blockFunc(func(parent *Block, r *reader.Reader, attrs attrlist.Attributes) (*Block, error) {
		b := NewBlock(parent.Document(), ContextParagraph, ContentSimple)
		for _, line := range r.ReadLines() {
			b.Lines = append(b.Lines, strings.ToUpper(line))
		}
		return b, nil
	})
}

func TestBlockExtension(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Block("shout", shout()))

	doc, _ := parse(t, "[shout]\n----\nhello\n----\n\n[shout]\nparagraph too", Options{Extensions: reg})

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "HELLO", blocks[0].Content())
	assert.Equal(t, "shout", blocks[0].Style)
	assert.Equal(t, "PARAGRAPH TOO", blocks[1].Content())

	assert.Error(t, reg.Block("9bad", shout()))
	assert.Equal(t, []string{"shout"}, reg.Names())
}

func TestBlockExtensionFailure(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Block("broken", blockFunc(func(*Block, *reader.Reader, attrlist.Attributes) (*Block, error) {
		return nil, errors.New("boom")
	})))

	doc, _ := parse(t, "[broken]\n----\nx\n----\n\nafter", Options{Extensions: reg})

	assert.Equal(t, []string{"paragraph"}, contexts(doc.Blocks()))
	assert.True(t, hasDiagnostic(doc, SeverityError, "extension failed"))
}

func TestBlockExtensionContract(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Block("rogue", blockFunc(func(parent *Block, _ *reader.Reader, _ attrlist.Attributes) (*Block, error) {
		return NewBlock(parent.Document(), Context(999), ContentSimple), nil
	})))

	_, err := ParseString("[rogue]\n----\nx\n----", Options{Extensions: reg})

	var contractErr *ContractError
	require.True(t, errors.As(err, &contractErr))
	assert.Equal(t, Context(999), contractErr.Context)
}

func TestInlineMacroExtension(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.InlineMacro("emoji", inlineFunc(func(_ *Block, target string, _ attrlist.Attributes) (string, error) {
		return "<i>" + target + "</i>", nil
	})))

	doc, _ := parse(t, `I feel emoji:smile[] and \emoji:sad[]`, Options{Extensions: reg})

	assert.Equal(t, "I feel <i>smile</i> and emoji:sad[]", onlyBlock(t, doc).Content())
}

func TestWalkOrder(t *testing.T) {
	src := `= Doc

== One

* item

== Two

text`

	doc, _ := parse(t, src, Options{})

	var visited []string
	doc.Walk(func(b *Block) bool {
		visited = append(visited, b.Context.String())
		return b.Context != ContextUlist
	})
	assert.Equal(t, []string{"document", "section", "ulist", "section", "paragraph"}, visited)
}
