package adoc

import (
	"strconv"
	"strings"

	"github.com/hesusruiz/adoc/reader"
)

// continuation is the state of the list continuation while the lines of
// an item are collected.
type continuation int

const (
	continuationInactive continuation = iota
	continuationActive
	// continuationFrozen follows two adjacent continuation lines; the second
	// one is kept as text until the state is reset
	continuationFrozen
)

// orderedStyles are the numbering styles of ordered lists, in the order
// they are picked for nesting levels written with dots.
var orderedStyles = []string{"arabic", "loweralpha", "lowerroman", "upperalpha", "upperroman"}

// list parses a list whose first item is at the position of r.
func (p *parser) list(r *reader.Reader, parent *Block, lm listMarker, pa *pending) *Block {

	cursor := r.Cursor()
	if !p.enter(cursor) {
		p.leave()
		// Consume the list as text so parsing can go on
		return p.paragraph(r, parent, newPending(), true)
	}
	defer p.leave()

	switch lm.context {
	case ContextColist:
		pa.attrs["style"] = "arabic"
		return p.calloutList(r, parent)
	case ContextDlist:
		return p.descriptionList(r, parent, lm)
	}
	return p.outlineList(r, parent, lm, pa)
}

// newList creates the list block. Its level counts the enclosing lists of
// the same kind.
func (p *parser) newList(parent *Block, ctx Context, marker string) *Block {
	level := 1
	for a := parent; a != nil; a = a.Parent {
		if a.Context == ctx {
			level++
		}
	}
	b := NewBlock(p.doc, ctx, ContentCompound)
	b.ListInfo = &ListInfo{Marker: marker, Level: level}
	return b
}

// outlineList parses an unordered or ordered list. Each item reads the
// lines up to its next sibling, so nested lists with other markers end up
// inside the item they follow and a marker of an enclosing list ends them.
func (p *parser) outlineList(r *reader.Reader, parent *Block, first listMarker, pa *pending) *Block {

	ctx := first.context
	trait := p.siblingTrait(first)
	list := p.newList(parent, ctx, trait)
	// Attached now so nested lists can count their level
	parent.AppendChild(list)
	defer parent.RemoveChild(list)

	style := pa.style()
	var start string

	for {
		line, ok := r.PeekLine()
		if !ok {
			break
		}
		lm, ok := classifyListItem(line, ctx)
		if !ok || p.siblingTrait(lm) != trait {
			break
		}

		ordinal := list.ChildCount()
		if ctx == ContextOlist {
			var implicit string
			implicit, start = p.checkOrderedMarker(r, lm.marker, ordinal, start)
			if ordinal == 0 && len(style) == 0 {
				style = implicit
			}
		}

		item := p.listItem(r, list, lm, trait)
		if item != nil {
			list.AppendChild(item)
		}

		if r.SkipBlankLines(); !r.HasMoreLines() {
			break
		}
	}

	if ctx == ContextOlist {
		if len(style) > 0 {
			pa.attrs["style"] = style
		}
		if len(start) > 0 {
			pa.attrs["start"] = start
		}
	}
	if ctx == ContextUlist && list.FirstChild != nil && list.FirstChild.Attributes.Has("checkbox") {
		pa.attrs.SetOption("checklist")
	}

	return list
}

// siblingTrait normalizes a marker so items of the same list compare equal.
func (p *parser) siblingTrait(lm listMarker) string {
	switch lm.context {
	case ContextOlist:
		_, normalized := orderedNumbering(lm.marker)
		return normalized
	case ContextColist:
		return "<1>"
	case ContextDlist:
		return lm.delimiter
	}
	return lm.marker
}

// isSiblingItem reports whether line is an item of the list identified by trait.
func (p *parser) isSiblingItem(line string, ctx Context, trait string) bool {
	lm, ok := classifyListItem(line, ctx)
	return ok && p.siblingTrait(lm) == trait
}

// orderedNumbering returns the numbering style of an ordered list marker
// and the marker of the first item in that style.
func orderedNumbering(marker string) (style, normalized string) {
	switch {
	case strings.HasPrefix(marker, "."):
		return "", marker
	case strings.HasSuffix(marker, ")"):
		if strings.ToLower(marker) == marker {
			return "lowerroman", "i)"
		}
		return "upperroman", "I)"
	case len(marker) == 2 && marker[0] >= 'a' && marker[0] <= 'z':
		return "loweralpha", "a."
	case len(marker) == 2 && marker[0] >= 'A' && marker[0] <= 'Z':
		return "upperalpha", "A."
	}
	return "arabic", "1."
}

// checkOrderedMarker compares the number written in an ordered list marker
// with the one expected at ordinal, warning when they differ. The first
// item decides the numbering style and where numbering starts.
func (p *parser) checkOrderedMarker(r *reader.Reader, marker string, ordinal int, start string) (implicit, startOut string) {

	style, normalized := orderedNumbering(marker)
	if len(style) == 0 {
		// Dots: the style follows the depth
		depth := len(normalized)
		if depth > len(orderedStyles) {
			depth = len(orderedStyles)
		}
		return orderedStyles[depth-1], start
	}

	actual := strings.TrimRight(marker, ".)")
	value := markerValue(style, actual)

	if ordinal == 0 {
		if value != 1 {
			start = strconv.Itoa(value)
		}
		return style, start
	}

	first := 1
	if len(start) > 0 {
		first, _ = strconv.Atoi(start)
	}
	if expected := first + ordinal; value != expected {
		p.doc.warn(r.Cursor(), "list item index: expected "+formatMarkerValue(style, expected)+", got "+actual)
	}
	return style, start
}

// markerValue is the number a marker stands for in style.
func markerValue(style, text string) int {
	switch style {
	case "loweralpha", "upperalpha":
		return int(strings.ToLower(text)[0]-'a') + 1
	case "lowerroman", "upperroman":
		return romanValue(strings.ToUpper(text))
	}
	n, _ := strconv.Atoi(text)
	return n
}

func formatMarkerValue(style string, n int) string {
	switch style {
	case "loweralpha":
		return string(rune('a' + n - 1))
	case "upperalpha":
		return string(rune('A' + n - 1))
	case "lowerroman":
		return strings.ToLower(romanNumeral(n))
	case "upperroman":
		return romanNumeral(n)
	}
	return strconv.Itoa(n)
}

func romanValue(s string) int {
	values := map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}
	total := 0
	for i := 0; i < len(s); i++ {
		v := values[s[i]]
		if i+1 < len(s) && values[s[i+1]] > v {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

// calloutList parses a list of <N> items. Each item gets the ids of the
// callout marks with its number, from the verbatim blocks above it.
func (p *parser) calloutList(r *reader.Reader, parent *Block) *Block {

	doc := p.doc
	list := p.newList(parent, ContextColist, "<1>")
	callouts := doc.Callouts()
	next, autonum := 1, 0

	for {
		line, ok := r.PeekLine()
		if !ok {
			break
		}
		lm, ok := classifyCalloutListItem(line)
		if !ok {
			break
		}
		r.Mark()

		num := lm.marker
		if num == "." {
			autonum++
			num = strconv.Itoa(autonum)
		}
		if num != strconv.Itoa(next) {
			doc.warn(r.CursorAtMark(), "callout list item index: expected "+strconv.Itoa(next)+", got "+num)
		}

		if item := p.listItem(r, list, lm, "<1>"); item != nil {
			list.AppendChild(item)
			ordinal := list.ChildCount()
			if coids := callouts.IDs(ordinal); len(coids) > 0 {
				item.Attributes["coids"] = coids
			} else {
				doc.warn(r.CursorAtMark(), "no callout found for <"+strconv.Itoa(ordinal)+">")
			}
		}
		next++
	}

	callouts.NextList()
	return list
}

// descriptionList parses a list of term:: description items. Terms with no
// description are merged into the item of the term that follows.
func (p *parser) descriptionList(r *reader.Reader, parent *Block, first listMarker) *Block {

	trait := first.delimiter
	list := p.newList(parent, ContextDlist, trait)
	parent.AppendChild(list)
	defer parent.RemoveChild(list)

	var current *Block
	for {
		line, ok := r.PeekLine()
		if !ok || !p.isSiblingItem(line, ContextDlist, trait) {
			break
		}
		lm, _ := classifyDescriptionListItem(line)

		item := p.listItem(r, list, lm, trait)
		if item == nil {
			continue
		}

		if current != nil && !current.Item.HasText && !current.HasChildren() {
			// The previous term had no description
			current.Item.Terms = append(current.Item.Terms, item.Item.Terms...)
			current.Item.Text = item.Item.Text
			current.Item.HasText = item.Item.HasText
			current.ReparentChildren(item)
			continue
		}
		list.AppendChild(item)
		current = item
	}

	return list
}

// listItem reads one item: the text after the marker and the blocks
// attached to it.
func (p *parser) listItem(r *reader.Reader, list *Block, lm listMarker, trait string) *Block {

	doc := p.doc
	cursor := r.Cursor()
	r.ReadLine()

	item := NewBlock(doc, ContextListItem, ContentCompound)
	item.Location = cursor
	item.Item = &ListItemInfo{Marker: lm.marker, Text: lm.text, HasText: lm.hasText}
	// Attached for the duration of the parse so nested blocks see their ancestors
	list.AppendChild(item)
	defer list.RemoveChild(item)

	dlist := lm.context == ContextDlist
	if dlist {
		item.Item.Marker = lm.delimiter
		item.Item.Terms = []string{lm.marker}
		p.catalogInlineAnchors(lm.marker, item, cursor)
	}

	if lm.context == ContextUlist {
		checkbox(item)
	}
	if item.Item.HasText {
		p.catalogInlineAnchors(item.Item.Text, item, cursor)
	}

	blockCursor := r.Cursor()
	lines := p.readLinesForListItem(r, lm.context, trait, item.Item.HasText)
	itemReader := reader.NewReader(lines, blockCursor, doc.log)

	if !itemReader.HasMoreLines() {
		return item
	}

	// Text right below the marker line continues the item text
	adjacent := false
	comments := itemReader.SkipLineComments()
	if next, ok := itemReader.PeekLine(); ok {
		itemReader.UnshiftLines(comments)
		adjacent = len(next) > 0
	}

	if adjacent {
		pa := newPending()
		p.parseBlockMetadataLines(itemReader, pa, true)
		if itemReader.HasMoreLines() {
			if b := p.nextBlock(itemReader, item, pa, true); b != nil {
				item.AppendChild(b)
			}
		}
	}
	p.parseBlocks(itemReader, item)

	if first := item.FirstChild; adjacent && first != nil && first.Context == ContextParagraph {
		p.foldFirst(item, first)
	}

	return item
}

// foldFirst moves the paragraph that follows the marker line into the
// text of the item.
func (p *parser) foldFirst(item, first *Block) {
	text := first.Source()
	if len(item.Item.Text) > 0 {
		text = item.Item.Text + "\n" + text
	}
	item.Item.Text = text
	item.Item.HasText = true
	item.RemoveChild(first)
}

// checkbox turns a leading [ ], [x] or [*] of a list item into attributes.
func checkbox(item *Block) {
	text := item.Item.Text
	if len(text) < 4 || text[0] != '[' || text[2] != ']' || text[3] != ' ' {
		return
	}
	switch text[1] {
	case ' ':
	case 'x', '*':
		item.Attributes["checked"] = ""
	default:
		return
	}
	item.Attributes["checkbox"] = ""
	item.Item.Text = strings.TrimLeft(text[4:], " ")
}

// readLinesForListItem collects the lines that belong to the item whose
// marker line was just read. It stops at a sibling item, or at a line that
// can't belong to the item. Continuation lines that attach a block become
// blank lines, unless they belong to a nested list, which gets them.
func (p *parser) readLinesForListItem(r *reader.Reader, ctx Context, trait string, hasText bool) []string {

	var buffer []string
	state := continuationInactive
	withinNested := false
	detached := -1
	dlist := ctx == ContextDlist

	isSibling := func(line string) bool {
		return p.isSiblingItem(line, ctx, trait)
	}
	nestedList := func(line string) (listMarker, bool) {
		if withinNested {
			return classifyListItem(line, ContextDlist)
		}
		return classifyListItem(line, ContextUlist, ContextOlist, ContextDlist)
	}
	markNested := func(lm listMarker) {
		withinNested = true
		if lm.context == ContextDlist && !lm.hasText {
			hasText = false
		}
	}
	readLiteral := func() {
		var stop func(string) bool
		if dlist {
			stop = isSibling
		}
		buffer = append(buffer, r.ReadLinesUntil(reader.UntilOptions{
			PreserveLastLine:        true,
			BreakOnBlankLines:       true,
			BreakOnListContinuation: true,
		}, stop)...)
	}

	var pushBack *string

	for {
		line, ok := r.ReadLine()
		if !ok {
			break
		}

		if isSibling(line) {
			pushBack = &line
			break
		}

		hasPrev := len(buffer) > 0
		prev := ""
		if hasPrev {
			prev = buffer[len(buffer)-1]
		}

		if hasPrev && prev == reader.ListContinuation {
			if state == continuationInactive {
				state = continuationActive
				hasText = true
				if !withinNested {
					buffer[len(buffer)-1] = ""
				}
			}
			if line == reader.ListContinuation {
				if state != continuationFrozen {
					state = continuationFrozen
					buffer = append(buffer, line)
				}
				continue
			}
		}

		if d, ok := classifyDelimiter(line); ok {
			if state != continuationActive {
				pushBack = &line
				break
			}
			buffer = append(buffer, line)
			buffer = append(buffer, r.ReadLinesUntil(reader.UntilOptions{
				Terminator:   d.terminator,
				ReadLastLine: true,
				Context:      d.context.String(),
			}, nil)...)
			state = continuationInactive
			continue
		}

		switch {
		case dlist && state != continuationActive && isBlockAttributeLine(line):
			// Attribute lines end a description list unless a list item follows
			attrLines := []string{line}
			interrupt := false
			for {
				next, ok := r.PeekLine()
				if !ok {
					interrupt = true
					break
				}
				if isDelimiter(next) {
					interrupt = true
				} else if len(next) == 0 || isBlockAttributeLine(next) {
					r.ReadLine()
					attrLines = append(attrLines, next)
					continue
				} else if isAnyListItem(next) && !isSibling(next) {
					buffer = append(buffer, attrLines...)
				} else {
					interrupt = true
				}
				break
			}
			if interrupt {
				r.UnshiftLines(attrLines)
				return trimItemLines(buffer, detached)
			}

		case state == continuationActive && len(line) > 0:
			switch {
			case isLiteralLine(line):
				r.UnshiftLine(line)
				readLiteral()
				state = continuationInactive
			case isBlockMetadataLine(line):
				// Metadata waits for its block
				buffer = append(buffer, line)
			default:
				if lm, ok := nestedList(line); ok {
					markNested(lm)
				}
				buffer = append(buffer, line)
				state = continuationInactive
			}

		case hasPrev && len(prev) == 0:
			if len(line) == 0 {
				if r.SkipBlankLines(); !r.HasMoreLines() {
					return trimItemLines(buffer, detached)
				}
				line, _ = r.ReadLine()
				if isSibling(line) {
					pushBack = &line
					break
				}
			}

			switch {
			case line == reader.ListContinuation:
				detached = len(buffer)
				buffer = append(buffer, line)
			case hasText:
				if isSibling(line) {
					pushBack = &line
				} else if lm, ok := classifyListItem(line, ContextUlist, ContextOlist, ContextDlist); ok {
					buffer = append(buffer, line)
					markNested(lm)
				} else if isLiteralLine(line) {
					r.UnshiftLine(line)
					readLiteral()
				} else {
					pushBack = &line
				}
			default:
				// A description list still waiting for its text takes the line
				if !withinNested {
					buffer = buffer[:len(buffer)-1]
				}
				buffer = append(buffer, line)
				hasText = true
			}

		default:
			if len(line) > 0 {
				hasText = true
			}
			if lm, ok := nestedList(line); ok {
				markNested(lm)
			}
			buffer = append(buffer, line)
		}

		if pushBack != nil {
			break
		}
	}

	if pushBack != nil {
		r.UnshiftLine(*pushBack)
	}

	return trimItemLines(buffer, detached)
}

// trimItemLines blanks a detached continuation and drops trailing blank
// lines and a trailing continuation.
func trimItemLines(buffer []string, detached int) []string {
	if detached >= 0 && detached < len(buffer) {
		buffer[detached] = ""
	}
	for len(buffer) > 0 {
		last := buffer[len(buffer)-1]
		if len(last) > 0 {
			if last == reader.ListContinuation {
				buffer = buffer[:len(buffer)-1]
			}
			break
		}
		buffer = buffer[:len(buffer)-1]
	}
	return buffer
}

// isBlockMetadataLine reports whether line is a block title, an attribute
// list, an anchor or an attribute entry.
func isBlockMetadataLine(line string) bool {
	if _, ok := classifyBlockTitle(line); ok {
		return true
	}
	if isBlockAttributeLine(line) {
		return true
	}
	_, ok := classifyAttributeEntry(line)
	return ok
}

// Text returns the text of a list item with the normal substitutions
// applied. It is empty for other blocks.
func (b *Block) Text() string {
	if b.Item == nil {
		return ""
	}
	return b.doc.applySubsForBlock(b, b.Item.Text, NormalSubs)
}

// Terms returns the terms of a description list item, substituted.
func (b *Block) Terms() []string {
	if b.Item == nil {
		return nil
	}
	terms := make([]string, 0, len(b.Item.Terms))
	for _, t := range b.Item.Terms {
		terms = append(terms, b.doc.applySubsForBlock(b, t, NormalSubs))
	}
	return terms
}
