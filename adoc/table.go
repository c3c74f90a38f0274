package adoc

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hesusruiz/adoc/reader"
)

// Table is the content of a table block.
type Table struct {
	Columns []*Column

	Head []Row
	Body []Row
	Foot []Row

	HasHeader bool

	// Format is psv, dsv or csv
	Format    string
	Separator string
}

// Row is a list of cells. Cells covered by a span of another cell are not
// part of it.
type Row []*Cell

// Column holds the defaults of the cells in one column.
type Column struct {
	// Number counts from 1
	Number int

	// Width is the relative width from the cols attribute
	Width     int
	Autowidth bool

	// PcWidth is the width as a percentage of the table
	PcWidth float64

	HAlign string
	VAlign string
	Style  string
}

// Cell is one table cell.
type Cell struct {
	Column *Column

	// Text is the source of the cell
	Text string

	Style   string
	Colspan int
	Rowspan int
	HAlign  string
	VAlign  string

	Location reader.Cursor

	// Inner is the document parsed from an asciidoc cell
	Inner *Document

	doc *Document
}

var (
	horizontalAlignments = map[string]string{"<": "left", ">": "right", "^": "center"}
	verticalAlignments   = map[string]string{"<": "top", ">": "bottom", "^": "middle"}
	cellStyles           = map[string]string{
		"d": "none",
		"s": "strong",
		"e": "emphasis",
		"m": "monospaced",
		"h": "header",
		"l": "literal",
		"a": "asciidoc",
	}

	reColumnSpec    = regexp.MustCompile(`^(?:(\d+)\*)?([<^>](?:\.[<^>]?)?|(?:[<^>]?\.)?[<^>])?(\d+%?|~)?([a-z])?$`)
	reCellSpecStart = regexp.MustCompile(`^[ \t]*(?:(\d+(?:\.\d*)?|(?:\d*\.)?\d+)([*+]))?([<^>](?:\.[<^>]?)?|(?:[<^>]?\.)?[<^>])?([a-z])?$`)
	reCellSpecEnd   = regexp.MustCompile(`[ \t]+(?:(\d+(?:\.\d*)?|(?:\d*\.)?\d+)([*+]))?([<^>](?:\.[<^>]?)?|(?:[<^>]?\.)?[<^>])?([a-z])?$`)
)

// cellSpec is the span, alignment and style written before a cell.
type cellSpec struct {
	colspan int
	rowspan int
	repeat  int
	halign  string
	valign  string
	style   string
}

// parseColumnSpecs reads the cols attribute. A single number is a count of
// columns of equal width.
func parseColumnSpecs(value string) []*Column {

	value = strings.ReplaceAll(value, " ", "")
	if n, err := strconv.Atoi(value); err == nil {
		cols := make([]*Column, 0, n)
		for i := 0; i < n; i++ {
			cols = append(cols, &Column{Width: 1})
		}
		return cols
	}

	sep := ";"
	if strings.Contains(value, ",") {
		sep = ","
	}

	var cols []*Column
	for _, record := range strings.Split(value, sep) {
		if len(record) == 0 {
			cols = append(cols, &Column{Width: 1})
			continue
		}
		m := reColumnSpec.FindStringSubmatch(record)
		if m == nil {
			continue
		}

		col := Column{Width: 1}
		col.HAlign, col.VAlign = alignments(m[2])
		switch width := m[3]; {
		case width == "~":
			col.Autowidth = true
			col.Width = 0
		case len(width) > 0:
			col.Width, _ = strconv.Atoi(strings.TrimSuffix(width, "%"))
		}
		col.Style = cellStyles[m[4]]

		repeat := 1
		if len(m[1]) > 0 {
			repeat, _ = strconv.Atoi(m[1])
		}
		for i := 0; i < repeat; i++ {
			c := col
			cols = append(cols, &c)
		}
	}
	return cols
}

// alignments splits an alignment spec like ^.> into its two parts.
func alignments(spec string) (halign, valign string) {
	if len(spec) == 0 {
		return "", ""
	}
	h, v, _ := strings.Cut(spec, ".")
	return horizontalAlignments[h], verticalAlignments[v]
}

// parseCellSpecStart reads the spec in front of the first separator of a
// line. It returns nil when the line does not start with a spec.
func parseCellSpecStart(line, separator string) (*cellSpec, string) {
	specPart, rest, found := strings.Cut(line, separator)
	if !found {
		return nil, line
	}
	m := reCellSpecStart.FindStringSubmatch(specPart)
	if m == nil {
		return nil, line
	}
	if len(m[0]) == 0 {
		return &cellSpec{}, rest
	}
	return newCellSpec(m), rest
}

// parseCellSpecEnd reads the spec at the end of the text in front of a
// separator. It belongs to the cell that follows the separator.
func parseCellSpecEnd(text string) (*cellSpec, string) {
	loc := reCellSpecEnd.FindStringSubmatchIndex(text)
	if loc == nil {
		return &cellSpec{}, text
	}
	if strings.TrimLeft(text[loc[0]:loc[1]], " \t") == "" {
		return &cellSpec{}, strings.TrimRight(text, " \t")
	}
	m := make([]string, 5)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return newCellSpec(m), text[:loc[0]]
}

func newCellSpec(m []string) *cellSpec {
	spec := &cellSpec{}
	if len(m[1]) > 0 {
		c, r, _ := strings.Cut(m[1], ".")
		colspec, rowspec := 1, 1
		if len(c) > 0 {
			colspec, _ = strconv.Atoi(c)
		}
		if len(r) > 0 {
			rowspec, _ = strconv.Atoi(r)
		}
		switch m[2] {
		case "+":
			spec.colspan = colspec
			spec.rowspan = rowspec
		case "*":
			spec.repeat = colspec
		}
	}
	spec.halign, spec.valign = alignments(m[3])
	spec.style = cellStyles[m[4]]
	return spec
}

// tableParser holds the state of the scan over the lines of a table.
type tableParser struct {
	p     *parser
	r     *reader.Reader
	table *Table

	format    string
	separator string

	// colcount is -1 until the first row tells it
	colcount int

	buffer string
	open   bool

	// specs are the cell specs waiting for their cell. In psv a spec is read
	// before the separator of the cell it belongs to.
	specs []*cellSpec

	current Row
	visits  int

	// activeRowspans[k] is the number of columns taken by rowspans in the
	// k-th row from the current one
	activeRowspans []int

	linenum int
}

func (tp *tableParser) pushSpec(spec *cellSpec) {
	if spec == nil {
		spec = &cellSpec{}
	}
	tp.specs = append(tp.specs, spec)
}

func (tp *tableParser) takeSpec() *cellSpec {
	if len(tp.specs) == 0 {
		return nil
	}
	spec := tp.specs[0]
	tp.specs = tp.specs[1:]
	return spec
}

// unclosedQuotes reports whether the csv cell in the buffer, followed by
// more, is inside a quoted value.
func (tp *tableParser) unclosedQuotes(more string) bool {
	record := strings.TrimSpace(tp.buffer + more)
	switch {
	case record == `"`:
		return true
	case !strings.HasPrefix(record, `"`):
		return false
	}
	trailing := strings.HasSuffix(record, `"`)
	if (trailing && strings.HasSuffix(record, `""`)) || strings.HasPrefix(record, `""`) {
		record = strings.ReplaceAll(record, `""`, "")
		return strings.HasPrefix(record, `"`) && !strings.HasSuffix(record, `"`)
	}
	return !trailing
}

func (tp *tableParser) closeOpenCell(spec *cellSpec) {
	tp.pushSpec(spec)
	if tp.open {
		tp.closeCell(true)
	}
	tp.linenum++
}

// closeCell turns the buffer into a cell, or into several when the spec
// repeats it. The row is closed once the cells and the rowspans from the
// rows above fill all the columns.
func (tp *tableParser) closeCell(eol bool) {

	doc := tp.p.doc
	text := tp.buffer
	tp.buffer = ""
	tp.open = false

	var spec *cellSpec
	repeat := 1
	if tp.format == "psv" {
		if spec = tp.takeSpec(); spec == nil {
			doc.errorAt(tp.r.CursorAtMark(), "table missing leading separator; recovering automatically")
			spec = &cellSpec{}
		}
		if spec.repeat > 1 {
			repeat = spec.repeat
		}
	} else {
		spec = &cellSpec{}
		text = strings.TrimSpace(text)
		if tp.format == "csv" && strings.Contains(text, `"`) {
			text = unquoteCSV(text, func() {
				doc.errorAt(tp.r.CursorAtMark(), "unclosed quote in CSV data; setting cell to empty")
			})
		}
	}

	for i := 1; i <= repeat; i++ {
		var column *Column
		if tp.colcount == -1 {
			column = &Column{Width: 1}
			tp.table.Columns = append(tp.table.Columns, column)
			for extra := spec.colspan - 1; extra > 0; extra-- {
				tp.table.Columns = append(tp.table.Columns, &Column{Width: 1})
			}
		} else {
			span := spec.colspan
			if span < 1 {
				span = 1
			}
			if len(tp.current) >= len(tp.table.Columns) || tp.visits+tp.activeRowspans[0]+span > tp.colcount {
				doc.errorAt(tp.r.CursorAtMark(), "dropping cell because it exceeds specified number of columns")
				tp.r.Mark()
				// A row filled by the rowspans from above is complete without cells
				if tp.endOfRow() {
					tp.closeRow()
				}
				return
			}
			column = tp.table.Columns[len(tp.current)]
		}

		cell := tp.p.newCell(column, text, spec, tp.r.CursorAtMark())
		tp.r.Mark()

		if cell.Rowspan > 1 {
			tp.activateRowspan(cell.Rowspan, cell.Colspan)
		}
		tp.visits += cell.Colspan
		tp.current = append(tp.current, cell)

		// On the first line the row may go on when the column count is unknown
		if tp.endOfRow() && (tp.colcount != -1 || tp.linenum > 0 || (eol && i == repeat)) {
			tp.closeRow()
		}
	}
}

func (tp *tableParser) endOfRow() bool {
	return tp.colcount == -1 || tp.visits+tp.activeRowspans[0] >= tp.colcount
}

func (tp *tableParser) closeRow() {
	tp.table.Body = append(tp.table.Body, tp.current)
	if tp.colcount == -1 {
		tp.colcount = tp.visits
	}
	tp.visits = 0
	tp.current = nil
	tp.activeRowspans = tp.activeRowspans[1:]
	if len(tp.activeRowspans) == 0 {
		tp.activeRowspans = []int{0}
	}
}

func (tp *tableParser) activateRowspan(rowspan, colspan int) {
	for i := 1; i < rowspan; i++ {
		for len(tp.activeRowspans) <= i {
			tp.activeRowspans = append(tp.activeRowspans, 0)
		}
		tp.activeRowspans[i] += colspan
	}
}

// closeTable reports the cells of a row the table ended in.
func (tp *tableParser) closeTable() {
	if tp.visits == 0 {
		return
	}
	tp.p.doc.errorAt(tp.r.CursorAtMark(), "dropping cells from incomplete row detected end of table")
}

// unquoteCSV removes the quotes around a csv value and collapses the
// doubled quotes inside it.
func unquoteCSV(text string, unclosed func()) string {
	if strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		if len(text) < 2 {
			unclosed()
			return ""
		}
		return squeezeQuotes(strings.TrimSpace(text[1 : len(text)-1]))
	}
	return squeezeQuotes(text)
}

func squeezeQuotes(text string) string {
	for strings.Contains(text, `""`) {
		text = strings.ReplaceAll(text, `""`, `"`)
	}
	return text
}

// table builds a table block from the lines between its delimiters.
func (p *parser) table(lines []string, cursor reader.Cursor, d delimiter, pa *pending) *Block {

	doc := p.doc
	attrs := pa.attrs

	t := &Table{Format: d.tableFormat}
	explicitCols := false
	if cols, ok := attrs["cols"]; ok {
		if specs := parseColumnSpecs(cols); len(specs) > 0 {
			t.Columns = specs
			explicitCols = true
		}
	}

	if format, ok := attrs["format"]; ok {
		switch format {
		case "psv", "dsv", "csv":
			t.Format = format
		case "tsv":
			t.Format = "csv"
			t.Separator = "\t"
		default:
			doc.warn(cursor, "unknown table format", "format", format)
		}
	}
	if sep, ok := attrs["separator"]; ok && len(sep) > 0 {
		if sep == `\t` {
			sep = "\t"
		}
		t.Separator = sep
	}
	if len(t.Separator) == 0 {
		switch t.Format {
		case "dsv":
			t.Separator = ":"
		case "csv":
			t.Separator = ","
		default:
			// |=== or !=== for tables nested in a cell
			t.Separator = d.terminator[:1]
		}
	}

	r := reader.NewReader(lines, cursor, doc.log)
	skipped := r.SkipBlankLines()
	r.Mark()

	tp := &tableParser{
		p:              p,
		r:              r,
		table:          t,
		format:         t.Format,
		separator:      t.Separator,
		colcount:       -1,
		activeRowspans: []int{0},
		linenum:        -1,
	}
	if explicitCols {
		tp.colcount = len(t.Columns)
	}

	implicitHeader := skipped == 0 && !attrs.HasOption("header") && !attrs.HasOption("noheader")
	// boundary is the index of the blank line after the first row, 0 when unknown
	boundary := 0
	psv := t.Format == "psv"

	for loop := 0; ; loop++ {
		line, ok := r.ReadLine()
		if !ok {
			break
		}

		hasLine := true
		switch {
		case loop > 0 && len(line) == 0:
			hasLine = false
			if boundary > 0 {
				boundary++
			}
		case psv:
			if strings.HasPrefix(line, tp.separator) {
				line = line[len(tp.separator):]
				tp.closeOpenCell(nil)
				boundary = 0
			} else if spec, rest := parseCellSpecStart(line, tp.separator); spec != nil {
				line = rest
				tp.closeOpenCell(spec)
				boundary = 0
			} else if boundary > 0 && boundary == loop {
				implicitHeader = false
				boundary = 0
			}
		}

		if loop == 0 {
			r.Mark()
			if implicitHeader {
				if next, ok := r.PeekLine(); ok && len(next) == 0 {
					boundary = 1
				} else {
					implicitHeader = false
				}
			}
		}

		tp.scanLine(line, hasLine, loop, &boundary)

		if tp.open {
			if !r.HasMoreLines() {
				tp.closeCell(true)
			}
		} else {
			tp.closeOpenCell(nil)
		}
	}
	tp.closeTable()

	assignColumnWidths(t.Columns)
	for i, c := range t.Columns {
		c.Number = i + 1
		if len(c.HAlign) == 0 {
			c.HAlign = "left"
		}
		if len(c.VAlign) == 0 {
			c.VAlign = "top"
		}
	}

	if implicitHeader {
		attrs.SetOption("header")
	}
	t.HasHeader = attrs.HasOption("header") && !attrs.HasOption("noheader")
	p.partitionRows(t, attrs.HasOption("footer"))

	attrs["colcount"] = strconv.Itoa(len(t.Columns))
	attrs["rowcount"] = strconv.Itoa(len(t.Head) + len(t.Body) + len(t.Foot))
	attrs["tablepcwidth"] = tableWidth(attrs["width"])

	b := NewBlock(doc, ContextTable, ContentCompound)
	b.Location = cursor
	b.Lines = lines
	b.Table = t
	return b
}

// scanLine splits one line at the separators. Text after the last
// separator stays in the buffer, since a psv cell may go on in the next
// line.
func (tp *tableParser) scanLine(line string, hasLine bool, loop int, boundary *int) {

	for {
		if hasLine {
			if i := strings.Index(line, tp.separator); i >= 0 {
				pre, post := line[:i], line[i+len(tp.separator):]

				switch tp.format {
				case "csv":
					if tp.unclosedQuotes(pre) {
						tp.buffer += pre + tp.separator
						if line = post; len(line) == 0 {
							return
						}
						continue
					}
					tp.buffer += pre
				default:
					if strings.HasSuffix(pre, `\`) {
						tp.buffer += pre[:len(pre)-1] + tp.separator
						if line = post; len(line) == 0 {
							tp.buffer += "\n"
							tp.open = true
							return
						}
						continue
					}
					if tp.format == "psv" {
						spec, text := parseCellSpecEnd(pre)
						tp.pushSpec(spec)
						tp.buffer += text
					} else {
						tp.buffer += pre
					}
				}

				// An empty cell at the end of the line is kept
				line = post
				hasLine = len(post) > 0
				tp.closeCell(false)
				continue
			}
		}

		if hasLine {
			tp.buffer += line
		}
		tp.buffer += "\n"
		switch tp.format {
		case "csv":
			if tp.unclosedQuotes("") {
				if loop == 0 {
					*boundary = 0
				}
				tp.open = true
			} else {
				tp.closeCell(true)
			}
		case "dsv":
			tp.closeCell(true)
		default:
			tp.open = true
		}
		return
	}
}

// assignColumnWidths turns the relative widths into percentages. The last
// column takes what rounding leaves.
func assignColumnWidths(cols []*Column) {
	total := 0
	for _, c := range cols {
		total += c.Width
	}
	if total == 0 {
		return
	}
	sum := 0.0
	for i, c := range cols {
		if c.Autowidth {
			continue
		}
		if i == len(cols)-1 {
			c.PcWidth = math.Round((100-sum)*10000) / 10000
			continue
		}
		c.PcWidth = math.Floor(float64(c.Width)*100/float64(total)*10000) / 10000
		sum += c.PcWidth
	}
}

// tableWidth is the width of the table in percent, 100 unless set.
func tableWidth(width string) string {
	n, err := strconv.Atoi(strings.TrimSuffix(width, "%"))
	if err != nil || n <= 0 || n > 100 {
		return "100"
	}
	return strconv.Itoa(n)
}

// newCell creates a cell with the defaults of column. The text of asciidoc
// cells is parsed later, once it is known whether the cell is in the header.
func (p *parser) newCell(column *Column, text string, spec *cellSpec, cursor reader.Cursor) *Cell {

	cell := &Cell{
		Column:   column,
		Style:    column.Style,
		Colspan:  1,
		Rowspan:  1,
		HAlign:   column.HAlign,
		VAlign:   column.VAlign,
		Location: cursor,
		doc:      p.doc,
	}
	if spec.colspan > 1 {
		cell.Colspan = spec.colspan
	}
	if spec.rowspan > 1 {
		cell.Rowspan = spec.rowspan
	}
	if len(spec.halign) > 0 {
		cell.HAlign = spec.halign
	}
	if len(spec.valign) > 0 {
		cell.VAlign = spec.valign
	}
	if len(spec.style) > 0 {
		cell.Style = spec.style
	}
	if len(cell.HAlign) == 0 {
		cell.HAlign = "left"
	}
	if len(cell.VAlign) == 0 {
		cell.VAlign = "top"
	}

	if cell.Style == "literal" {
		text = strings.TrimRight(text, " \t\n")
		text = strings.TrimLeft(text, "\n")
	} else {
		text = strings.TrimSpace(text)
	}
	cell.Text = text
	return cell
}

// partitionRows moves the first row to the head and, with the footer
// option, the last one to the foot. Cells outside the head that hold
// AsciiDoc are parsed into their own documents.
func (p *parser) partitionRows(t *Table, footer bool) {

	if len(t.Body) > 0 && t.HasHeader {
		head := t.Body[0]
		for _, c := range head {
			// Header cells are plain text whatever their column says
			if c.Style == "asciidoc" || c.Style == "literal" {
				c.Style = ""
			}
		}
		t.Head = []Row{head}
		t.Body = t.Body[1:]
	}
	if len(t.Body) > 0 && footer {
		t.Foot = []Row{t.Body[len(t.Body)-1]}
		t.Body = t.Body[:len(t.Body)-1]
	}

	for _, rows := range [][]Row{t.Body, t.Foot} {
		for _, row := range rows {
			for _, c := range row {
				if c.Style == "asciidoc" {
					p.parseCell(c)
				}
			}
		}
	}
}

// parseCell parses the text of an asciidoc cell as a document of its own,
// starting from the attributes of the enclosing one.
func (p *parser) parseCell(c *Cell) {

	if !p.enter(c.Location) {
		p.leave()
		c.Style = ""
		return
	}
	defer p.leave()

	inner := p.doc.newNestedDocument()
	np := newParser(inner)
	np.depth = p.depth

	lines := reader.PrepareLines(c.Text, -1)
	if err := np.parse(lines, c.Location); err != nil {
		p.err = err
		return
	}
	c.Inner = inner
}

// Paragraphs returns the text of the cell split at blank lines, with the
// substitutions for its style applied. Asciidoc cells have no paragraphs,
// their content is in Inner.
func (c *Cell) Paragraphs() []string {
	switch c.Style {
	case "asciidoc":
		return nil
	case "literal":
		return []string{c.doc.ApplySubs(c.Text, BasicSubs)}
	}
	var paras []string
	for _, para := range reBlankLines.Split(c.Text, -1) {
		if len(strings.TrimSpace(para)) == 0 {
			continue
		}
		paras = append(paras, c.doc.ApplyNormalSubs(para))
	}
	return paras
}

var reBlankLines = regexp.MustCompile(`\n(?:[ \t]*\n)+`)

// ColumnCount returns the number of columns the row covers, counting spans.
func (r Row) ColumnCount() int {
	n := 0
	for _, c := range r {
		n += c.Colspan
	}
	return n
}

// EffectiveColumnCounts returns, for each row, the columns taken by its
// cells plus those covered by rowspans from the rows above it.
func EffectiveColumnCounts(rows []Row) []int {
	counts := make([]int, len(rows))
	// covered[k] is the number of columns spanned into the k-th next row
	var covered []int
	for i, row := range rows {
		if len(covered) > 0 {
			counts[i] = covered[0]
			covered = covered[1:]
		}
		for _, c := range row {
			counts[i] += c.Colspan
			for k := 1; k < c.Rowspan; k++ {
				for len(covered) < k {
					covered = append(covered, 0)
				}
				covered[k-1] += c.Colspan
			}
		}
	}
	return counts
}
