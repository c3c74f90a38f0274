package adoc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseTable parses src, which must hold a single table.
func parseTable(t *testing.T, src string) (*Document, *Block) {
	t.Helper()
	doc, _ := parse(t, src, Options{})
	b := onlyBlock(t, doc)
	require.Equal(t, ContextTable, b.Context)
	require.NotNil(t, b.Table)
	return doc, b
}

func rowTexts(rows []Row) [][]string {
	var out [][]string
	for _, row := range rows {
		var texts []string
		for _, c := range row {
			texts = append(texts, c.Text)
		}
		out = append(out, texts)
	}
	return out
}

func TestTableRowspan(t *testing.T) {
	src := `[cols=3]
|===
.2+|a |b |c
|d |e
|===`

	_, b := parseTable(t, src)
	table := b.Table

	require.Len(t, table.Columns, 3)
	assert.False(t, table.HasHeader)
	require.Len(t, table.Body, 2)

	if diff := cmp.Diff([][]string{{"a", "b", "c"}, {"d", "e"}}, rowTexts(table.Body)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, table.Body[0][0].Rowspan)
	assert.Equal(t, 3, table.Body[0].ColumnCount())
	// The second row is short by the column the span covers
	assert.Equal(t, 2, table.Body[1].ColumnCount())
	assert.Equal(t, []int{3, 3}, EffectiveColumnCounts(table.Body))

	assert.Equal(t, "3", b.Attributes["colcount"])
	assert.Equal(t, "2", b.Attributes["rowcount"])
}

func TestTableOverlappingRowspans(t *testing.T) {
	src := `[cols=2]
|===
.3+|a |b
.3+|c
|d
|===`

	doc, b := parseTable(t, src)
	table := b.Table

	// Both columns of the third row are covered, so d has no room
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}, nil}, rowTexts(table.Body))
	assert.Equal(t, []int{2, 2, 2}, EffectiveColumnCounts(table.Body))
	assert.True(t, hasDiagnostic(doc, SeverityError, "dropping cell because it exceeds specified number of columns"))
	assert.False(t, hasDiagnostic(doc, SeverityError, "dropping cells from incomplete row"))
	assert.Equal(t, "3", b.Attributes["rowcount"])
}

func TestTableCellWiderThanRow(t *testing.T) {
	src := `[cols=3]
|===
|a |b 2+|too wide |c
|===`

	doc, b := parseTable(t, src)

	assert.Equal(t, [][]string{{"a", "b", "c"}}, rowTexts(b.Table.Body))
	assert.True(t, hasDiagnostic(doc, SeverityError, "dropping cell because it exceeds specified number of columns"))
}

func TestTableColspan(t *testing.T) {
	src := `|===
|a |b |c
2+|wide |d
|===`

	_, b := parseTable(t, src)

	require.Len(t, b.Table.Body, 2)
	wide := b.Table.Body[1][0]
	assert.Equal(t, "wide", wide.Text)
	assert.Equal(t, 2, wide.Colspan)
	assert.Equal(t, 3, b.Table.Body[1].ColumnCount())
}

func TestTableImplicitHeader(t *testing.T) {
	src := `|===
|Name |Age

|Jane |42
|John |17
|===`

	_, b := parseTable(t, src)
	table := b.Table

	assert.True(t, table.HasHeader)
	assert.True(t, b.HasOption("header"))
	assert.Equal(t, [][]string{{"Name", "Age"}}, rowTexts(table.Head))
	assert.Equal(t, [][]string{{"Jane", "42"}, {"John", "17"}}, rowTexts(table.Body))
}

func TestTableNoImplicitHeader(t *testing.T) {
	src := `|===
|Name |Age
|Jane |42
|===`

	_, b := parseTable(t, src)

	assert.False(t, b.Table.HasHeader)
	assert.Empty(t, b.Table.Head)
	assert.Len(t, b.Table.Body, 2)
}

func TestTableHeaderAndFooterOptions(t *testing.T) {
	src := `[%header%footer,cols="2,1"]
|===
|Item |Qty
|Apples |3
|Total |3
|===`

	_, b := parseTable(t, src)
	table := b.Table

	assert.Equal(t, [][]string{{"Item", "Qty"}}, rowTexts(table.Head))
	assert.Equal(t, [][]string{{"Apples", "3"}}, rowTexts(table.Body))
	assert.Equal(t, [][]string{{"Total", "3"}}, rowTexts(table.Foot))

	require.Len(t, table.Columns, 2)
	assert.InDelta(t, 66.6666, table.Columns[0].PcWidth, 1e-9)
	assert.InDelta(t, 33.3334, table.Columns[1].PcWidth, 1e-9)
}

func TestTableOneCellPerLine(t *testing.T) {
	src := `[cols=2]
|===
|a
|b
|c
|d
|===`

	_, b := parseTable(t, src)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rowTexts(b.Table.Body))
}

func TestTableMultilineCell(t *testing.T) {
	src := `[cols=2]
|===
|first line
second line |b
|===`

	_, b := parseTable(t, src)
	require.Len(t, b.Table.Body, 1)
	assert.Equal(t, "first line\nsecond line", b.Table.Body[0][0].Text)
}

func TestTableIncompleteRow(t *testing.T) {
	src := `[cols=2]
|===
|a |b
|c
|===`

	doc, b := parseTable(t, src)

	assert.Equal(t, [][]string{{"a", "b"}}, rowTexts(b.Table.Body))
	assert.True(t, hasDiagnostic(doc, SeverityError, "dropping cells from incomplete row detected end of table"))
}

func TestTableCSV(t *testing.T) {
	src := `,===
name,age
"Doe, Jane",42
"Say ""hi""",7
,===`

	_, b := parseTable(t, src)

	assert.Equal(t, "csv", b.Table.Format)
	assert.Equal(t, [][]string{
		{"name", "age"},
		{"Doe, Jane", "42"},
		{`Say "hi"`, "7"},
	}, rowTexts(b.Table.Body))
}

func TestTableDSV(t *testing.T) {
	src := `:===
a:b
c:d
:===`

	_, b := parseTable(t, src)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rowTexts(b.Table.Body))
}

func TestTableTSVFormat(t *testing.T) {
	src := "[format=tsv]\n|===\na\tb\nc\td\n|==="

	_, b := parseTable(t, src)
	assert.Equal(t, "csv", b.Table.Format)
	assert.Equal(t, "\t", b.Table.Separator)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rowTexts(b.Table.Body))
}

func TestTableColumnSpecs(t *testing.T) {
	cols := parseColumnSpecs("2*>,^.^3m,~")
	require.Len(t, cols, 4)

	assert.Equal(t, "right", cols[0].HAlign)
	assert.Equal(t, "right", cols[1].HAlign)
	assert.Equal(t, "center", cols[2].HAlign)
	assert.Equal(t, "middle", cols[2].VAlign)
	assert.Equal(t, 3, cols[2].Width)
	assert.Equal(t, "monospaced", cols[2].Style)
	assert.True(t, cols[3].Autowidth)

	assert.Len(t, parseColumnSpecs("4"), 4)
	assert.Len(t, parseColumnSpecs("1;2"), 2)
}

func TestTableCellSpecs(t *testing.T) {
	src := `[cols=2]
|===
^.>s|centered |plain
|===`

	_, b := parseTable(t, src)
	cell := b.Table.Body[0][0]
	assert.Equal(t, "center", cell.HAlign)
	assert.Equal(t, "bottom", cell.VAlign)
	assert.Equal(t, "strong", cell.Style)
	assert.Equal(t, []string{"centered"}, cell.Paragraphs())

	plain := b.Table.Body[0][1]
	assert.Equal(t, "left", plain.HAlign)
	assert.Equal(t, "top", plain.VAlign)
	assert.Empty(t, plain.Style)
	assert.Equal(t, 2, plain.Column.Number)
}

func TestTableEscapedSeparator(t *testing.T) {
	src := `[cols=2]
|===
|a \| b |c
|===`

	_, b := parseTable(t, src)
	assert.Equal(t, [][]string{{"a | b", "c"}}, rowTexts(b.Table.Body))
}

func TestTableCellParagraphs(t *testing.T) {
	src := `[cols=1]
|===
|first *para*

second para
|===`

	_, b := parseTable(t, src)
	assert.Equal(t, []string{"first <strong>para</strong>", "second para"}, b.Table.Body[0][0].Paragraphs())
}

func TestTableAsciiDocCell(t *testing.T) {
	src := `[cols="1,a"]
|===
|plain
|* one
* two
|===`

	_, b := parseTable(t, src)
	require.Len(t, b.Table.Body, 1)

	cell := b.Table.Body[0][1]
	assert.Equal(t, "asciidoc", cell.Style)
	require.NotNil(t, cell.Inner)
	assert.True(t, cell.Inner.Nested())
	assert.Nil(t, cell.Paragraphs())

	blocks := cell.Inner.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, ContextUlist, blocks[0].Context)
	assert.Equal(t, []string{"one", "two"}, itemTexts(blocks[0]))

	assert.Nil(t, b.Table.Body[0][0].Inner)
}

func TestTableAsciiDocHeaderCellIsText(t *testing.T) {
	src := `[%header,cols="a,a"]
|===
|*Head* |Other
|* item |x
|===`

	_, b := parseTable(t, src)

	head := b.Table.Head[0][0]
	assert.Empty(t, head.Style)
	assert.Nil(t, head.Inner)
	assert.Equal(t, []string{"<strong>Head</strong>"}, head.Paragraphs())

	require.NotNil(t, b.Table.Body[0][0].Inner)
}

func TestTableCaption(t *testing.T) {
	doc, _ := parse(t, ".First\n|===\n|a\n|===\n\n.Second\n|===\n|b\n|===", Options{})

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "Table 1. ", blocks[0].Caption)
	assert.Equal(t, "Table 2. ", blocks[1].Caption)
	assert.Equal(t, "Table 2. Second", blocks[1].CaptionedTitle())
}

func TestTableWidth(t *testing.T) {
	assert.Equal(t, "100", tableWidth(""))
	assert.Equal(t, "50", tableWidth("50%"))
	assert.Equal(t, "100", tableWidth("150"))
}
