package adoc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onlyBlock returns the single top level block of doc.
func onlyBlock(t *testing.T, doc *Document) *Block {
	t.Helper()
	blocks := doc.Blocks()
	require.Len(t, blocks, 1, "blocks: %v", contexts(blocks))
	return blocks[0]
}

func itemTexts(list *Block) []string {
	var out []string
	for _, item := range list.Children() {
		out = append(out, item.Item.Text)
	}
	return out
}

func TestNestedListRoundTrip(t *testing.T) {
	src := `* one
* two
** two-a
** two-b
* three`

	doc, _ := parse(t, src, Options{})

	list := onlyBlock(t, doc)
	require.Equal(t, ContextUlist, list.Context)
	assert.Equal(t, 1, list.Level())
	if diff := cmp.Diff([]string{"one", "two", "three"}, itemTexts(list)); diff != "" {
		t.Errorf("top level items mismatch (-want +got):\n%s", diff)
	}

	items := list.Children()
	assert.False(t, items[0].HasChildren())
	assert.False(t, items[2].HasChildren())

	require.Equal(t, 1, items[1].ChildCount())
	nested := items[1].FirstChild
	assert.Equal(t, ContextUlist, nested.Context)
	assert.Equal(t, 2, nested.Level())
	assert.Equal(t, []string{"two-a", "two-b"}, itemTexts(nested))
	assert.Same(t, items[1], nested.Parent)
}

func TestOrderedListDepthStyles(t *testing.T) {
	src := `. one
.. one-a
... one-a-i
. two`

	doc, _ := parse(t, src, Options{})

	list := onlyBlock(t, doc)
	assert.Equal(t, "arabic", list.Style)
	require.Len(t, list.Children(), 2)

	second := list.Children()[0].FirstChild
	require.NotNil(t, second)
	assert.Equal(t, "loweralpha", second.Style)

	third := second.Children()[0].FirstChild
	require.NotNil(t, third)
	assert.Equal(t, "lowerroman", third.Style)
	assert.Equal(t, 3, third.Level())
}

func TestOrderedListNumbering(t *testing.T) {
	doc, _ := parse(t, "3. three\n4. four\n5. five", Options{})
	list := onlyBlock(t, doc)
	assert.Equal(t, "arabic", list.Style)
	assert.Equal(t, "3", list.Attributes["start"])

	doc, _ = parse(t, "b. bee\nc. see", Options{})
	list = onlyBlock(t, doc)
	assert.Equal(t, "loweralpha", list.Style)
	assert.Equal(t, "2", list.Attributes["start"])

	doc, _ = parse(t, "1. one\n2. two\n4. four", Options{})
	assert.Len(t, onlyBlock(t, doc).Children(), 3)
	assert.True(t, hasDiagnostic(doc, SeverityWarning, "list item index: expected 3, got 4"))
}

func TestListItemContinuation(t *testing.T) {
	src := `* item
+
----
code
----
* with paragraph
+
second paragraph
* last`

	doc, _ := parse(t, src, Options{})

	list := onlyBlock(t, doc)
	require.Len(t, list.Children(), 3)
	items := list.Children()

	assert.Equal(t, "item", items[0].Item.Text)
	assert.Equal(t, []string{"listing"}, contexts(items[0].Children()))
	assert.Equal(t, "code", items[0].FirstChild.Source())

	assert.Equal(t, []string{"paragraph"}, contexts(items[1].Children()))
	assert.Equal(t, "second paragraph", items[1].FirstChild.Source())

	assert.Equal(t, "last", items[2].Item.Text)
}

func TestListItemAdjacentText(t *testing.T) {
	doc, _ := parse(t, "* first line\nsecond line\n* next", Options{})

	items := onlyBlock(t, doc).Children()
	require.Len(t, items, 2)
	assert.Equal(t, "first line\nsecond line", items[0].Item.Text)
	assert.False(t, items[0].HasChildren())
}

func TestListsSeparatedByComment(t *testing.T) {
	doc, _ := parse(t, "* a\n* b\n\n//\n\n* c", Options{})

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, []string{"a", "b"}, itemTexts(blocks[0]))
	assert.Equal(t, []string{"c"}, itemTexts(blocks[1]))
}

func TestChecklist(t *testing.T) {
	doc, _ := parse(t, "* [x] done\n* [ ] todo\n* plain", Options{})

	list := onlyBlock(t, doc)
	assert.True(t, list.HasOption("checklist"))

	items := list.Children()
	require.Len(t, items, 3)
	assert.Equal(t, "done", items[0].Item.Text)
	assert.True(t, items[0].Attributes.Has("checked"))
	assert.True(t, items[1].Attributes.Has("checkbox"))
	assert.False(t, items[1].Attributes.Has("checked"))
	assert.False(t, items[2].Attributes.Has("checkbox"))
}

func TestDescriptionList(t *testing.T) {
	src := `CPU:: The *brain*
RAM::
Memory that forgets.
Disk::
SSD::
Storage.`

	doc, _ := parse(t, src, Options{})

	list := onlyBlock(t, doc)
	require.Equal(t, ContextDlist, list.Context)
	items := list.Children()
	require.Len(t, items, 3)

	assert.Equal(t, []string{"CPU"}, items[0].Terms())
	assert.Equal(t, "The <strong>brain</strong>", items[0].Text())
	assert.Equal(t, "::", items[0].Item.Marker)

	assert.Equal(t, []string{"RAM"}, items[1].Terms())
	assert.Equal(t, "Memory that forgets.", items[1].Item.Text)

	// A term with no description shares the item of the next one
	assert.Equal(t, []string{"Disk", "SSD"}, items[2].Terms())
	assert.Equal(t, "Storage.", items[2].Item.Text)
}

func TestNestedDescriptionList(t *testing.T) {
	src := `Outer:: outer text
Inner::: inner text
Next:: next text`

	doc, _ := parse(t, src, Options{})

	list := onlyBlock(t, doc)
	items := list.Children()
	require.Len(t, items, 2)
	require.Equal(t, 1, items[0].ChildCount())

	nested := items[0].FirstChild
	assert.Equal(t, ContextDlist, nested.Context)
	assert.Equal(t, 2, nested.Level())
	assert.Equal(t, []string{"Inner"}, nested.Children()[0].Terms())
}

func TestCalloutList(t *testing.T) {
	src := `[source,ruby]
----
puts "hello" <1>
exit <2>
----
<1> Greets
<2> Leaves`

	doc, _ := parse(t, src, Options{})

	blocks := doc.Blocks()
	require.Equal(t, []string{"listing", "colist"}, contexts(blocks))

	colist := blocks[1]
	assert.Equal(t, "arabic", colist.Style)
	items := colist.Children()
	require.Len(t, items, 2)
	assert.Equal(t, "CO1-1", items[0].Attributes["coids"])
	assert.Equal(t, "CO1-2", items[1].Attributes["coids"])
	assert.Equal(t, "Greets", items[0].Item.Text)

	// The marks in the listing are numbered
	var content string
	doc.Walk(func(b *Block) bool {
		if b.Context == ContextListing {
			content = b.Content()
		}
		return true
	})
	assert.Contains(t, content, `puts "hello" <b class="conum">(1)</b>`)
	assert.Contains(t, content, `exit <b class="conum">(2)</b>`)
}

func TestCalloutListWithoutCallouts(t *testing.T) {
	doc, _ := parse(t, "<1> Lonely", Options{})

	colist := onlyBlock(t, doc)
	assert.Equal(t, ContextColist, colist.Context)
	assert.True(t, hasDiagnostic(doc, SeverityWarning, "no callout found for <1>"))
}

func TestListNestingGuard(t *testing.T) {
	doc, _ := parse(t, "* a\n** b\n*** c", Options{MaxNesting: 2})

	assert.True(t, hasDiagnostic(doc, SeverityWarning, ErrMaxNesting.Error()))

	// The list that is too deep is kept as text of its parent item
	list := onlyBlock(t, doc)
	nested := list.Children()[0].FirstChild
	require.NotNil(t, nested)
	assert.Equal(t, ContextUlist, nested.Context)
	assert.Equal(t, "b\n*** c", nested.Children()[0].Item.Text)
}

func TestOrderedNumbering(t *testing.T) {
	tests := []struct {
		marker, style, normalized string
	}{
		{"..", "", ".."},
		{"1.", "arabic", "1."},
		{"10.", "arabic", "1."},
		{"b.", "loweralpha", "a."},
		{"B.", "upperalpha", "A."},
		{"iv)", "lowerroman", "i)"},
		{"IV)", "upperroman", "I)"},
	}
	for _, tt := range tests {
		style, normalized := orderedNumbering(tt.marker)
		assert.Equal(t, tt.style, style, tt.marker)
		assert.Equal(t, tt.normalized, normalized, tt.marker)
	}
}
