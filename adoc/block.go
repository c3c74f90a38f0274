package adoc

import (
	"strconv"
	"strings"

	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/reader"
)

// styleContexts are the styles that turn a paragraph or a delimited block
// into a block of another kind.
var styleContexts = map[string]Context{
	"comment":    ContextComment,
	"example":    ContextExample,
	"literal":    ContextLiteral,
	"listing":    ContextListing,
	"source":     ContextListing,
	"pass":       ContextPass,
	"quote":      ContextQuote,
	"verse":      ContextVerse,
	"sidebar":    ContextSidebar,
	"open":       ContextOpen,
	"abstract":   ContextOpen,
	"partintro":  ContextOpen,
	"stem":       ContextStem,
	"latexmath":  ContextStem,
	"asciimath":  ContextStem,
	"admonition": ContextAdmonition,
}

// paragraphStyles may be applied to a paragraph.
var paragraphStyles = map[string]bool{
	"comment":   true,
	"example":   true,
	"literal":   true,
	"listing":   true,
	"normal":    true,
	"open":      true,
	"pass":      true,
	"quote":     true,
	"sidebar":   true,
	"source":    true,
	"verse":     true,
	"abstract":  true,
	"partintro": true,
}

var admonitionStyles = map[string]bool{
	"NOTE":      true,
	"TIP":       true,
	"IMPORTANT": true,
	"WARNING":   true,
	"CAUTION":   true,
}

// contentModels is the content model of each context when delimited.
var contentModels = map[Context]ContentModel{
	ContextExample:       ContentCompound,
	ContextSidebar:       ContentCompound,
	ContextQuote:         ContentCompound,
	ContextOpen:          ContentCompound,
	ContextAdmonition:    ContentCompound,
	ContextTable:         ContentCompound,
	ContextListing:       ContentVerbatim,
	ContextLiteral:       ContentVerbatim,
	ContextVerse:         ContentVerbatim,
	ContextPass:          ContentRaw,
	ContextStem:          ContentRaw,
	ContextComment:       ContentRaw,
	ContextParagraph:     ContentSimple,
	ContextImage:         ContentEmpty,
	ContextVideo:         ContentEmpty,
	ContextAudio:         ContentEmpty,
	ContextToc:           ContentEmpty,
	ContextThematicBreak: ContentEmpty,
	ContextPageBreak:     ContentEmpty,
	ContextFloatingTitle: ContentEmpty,
}

// parseBlocks parses the remaining lines of r into children of parent.
func (p *parser) parseBlocks(r *reader.Reader, parent *Block) {
	pa := newPending()
	for {
		r.SkipBlankLines()
		p.parseBlockMetadataLines(r, pa, false)
		if !r.HasMoreLines() || p.fatal() != nil {
			return
		}
		if b := p.nextBlock(r, parent, pa, false); b != nil {
			parent.AppendChild(b)
		}
	}
}

// enter guards the recursion into compound content.
func (p *parser) enter(cursor reader.Cursor) bool {
	p.depth++
	if p.depth > p.doc.opts.MaxNesting {
		p.doc.warn(cursor, ErrMaxNesting.Error()+", dropping nested content", "max", p.doc.opts.MaxNesting)
		return false
	}
	return true
}

func (p *parser) leave() {
	p.depth--
}

// nextBlock parses the block at the position of r. The metadata above it
// has already been read into pa. It returns nil when nothing is produced,
// for comments or dropped macros. In text only mode, used for the lines
// right after a list marker, delimiters, breaks and macros are plain text.
func (p *parser) nextBlock(r *reader.Reader, parent *Block, pa *pending, textOnly bool) *Block {

	line, ok := r.PeekLine()
	if !ok {
		return nil
	}
	cursor := r.Cursor()
	style := pa.style()

	if !textOnly {
		if d, ok := classifyDelimiter(line); ok {
			return p.finishBlock(p.delimitedBlock(r, parent, d, pa, cursor), pa, cursor)
		}

		if ctx, ok := classifyBreak(line); ok {
			r.ReadLine()
			return p.finishBlock(NewBlock(p.doc, ctx, ContentEmpty), pa, cursor)
		}

		if strings.Contains(line, "::") {
			if b, handled := p.blockMacro(r, parent, line, pa, cursor); handled {
				return p.finishBlock(b, pa, cursor)
			}
		}
	}

	if lm, ok := classifyListItem(line, ContextColist, ContextUlist, ContextOlist, ContextDlist); ok {
		return p.finishBlock(p.list(r, parent, lm, pa), pa, cursor)
	}

	if style == "discrete" || style == "float" {
		if _, ok := p.peekSectionTitle(r); ok {
			return p.finishBlock(p.floatingTitle(r), pa, cursor)
		}
	}

	return p.finishBlock(p.paragraph(r, parent, pa, textOnly), pa, cursor)
}

// finishBlock moves the metadata to b, assigns the caption and id, locks
// the substitutions and catalogs callouts and inline anchors.
func (p *parser) finishBlock(b *Block, pa *pending, cursor reader.Cursor) *Block {

	if b == nil || p.err != nil {
		pa.clear()
		return nil
	}

	doc := p.doc
	if b.doc == nil {
		b.doc = doc
	}
	if b.Location.LineNumber == 0 {
		b.Location = cursor
	}

	if title, ok := pa.attrs["title"]; ok && !b.HasTitle() {
		b.SetTitle(title)
	}
	explicit, hasCaption := pa.attrs["caption"]
	pa.attach(b)
	delete(b.Attributes, "caption")

	if len(b.Style) == 0 {
		b.Style = b.Attributes["style"]
	}
	if id, ok := b.Attributes["id"]; ok {
		if len(b.ID) == 0 {
			b.ID = id
		}
		delete(b.Attributes, "id")
	}

	if b.HasTitle() && b.Context != ContextAdmonition && b.Context != ContextFloatingTitle {
		p.assignCaption(b, explicit, hasCaption)
	}

	if len(b.ID) > 0 {
		reftext := b.Attributes["reftext"]
		if len(reftext) == 0 {
			reftext = b.RawTitle()
		}
		if !doc.RegisterRef(b.ID, reftext, b) {
			doc.warn(cursor, "id assigned to block already in use", "id", b.ID)
		}
	}

	b.LockSubs()

	switch b.ContentModel {
	case ContentVerbatim:
		if containsSub(b.subs, SubCallouts) && !p.catalogCallouts(b.Lines) {
			b.subs = removeSubs(b.subs, []Sub{SubCallouts})
		}
	case ContentSimple:
		p.catalogInlineAnchors(b.Source(), b, cursor)
	}

	return b
}

// captionContext is the prefix of the caption attributes of b.
func captionContext(b *Block) string {
	if b.Context == ContextImage {
		return "figure"
	}
	return b.Context.String()
}

// assignCaption sets the caption of a titled block: the caption attribute
// when given, else the <context>-caption label and the next number.
func (p *parser) assignCaption(b *Block, explicit string, hasExplicit bool) {
	if hasExplicit {
		b.Caption = explicit
		return
	}
	name := captionContext(b)
	label, ok := p.doc.Attribute(name + "-caption")
	if !ok || len(label) == 0 {
		return
	}
	b.Numeral = p.doc.Counter(name+"-number", "")
	b.Caption = label + " " + b.Numeral + ". "
}

// catalogCallouts registers the callout marks found at the end of lines.
// It returns false if there are none.
func (p *parser) catalogCallouts(lines []string) bool {

	found := false
	autonum := 0
	callouts := p.doc.Callouts()

	for _, line := range lines {
		if !strings.Contains(line, "<") {
			continue
		}
		tail := reCalloutTail.FindStringIndex(line)
		if tail == nil {
			continue
		}
		for _, m := range reCalloutMark.FindAllStringSubmatch(line[tail[0]:], -1) {
			if m[1] == `\` {
				continue
			}
			ordinal := 0
			if m[3] == "." {
				autonum++
				ordinal = autonum
			} else {
				ordinal, _ = strconv.Atoi(m[3])
			}
			callouts.Register(ordinal)
			found = true
		}
	}

	return found
}

// catalogInlineAnchors registers the [[id]] and anchor:id[] anchors in text.
func (p *parser) catalogInlineAnchors(text string, b *Block, cursor reader.Cursor) {

	if !strings.Contains(text, "[[") && !strings.Contains(text, "anchor:") {
		return
	}

	for _, m := range reInlineAnchorScan.FindAllStringSubmatch(text, -1) {
		id, reftext := m[1], m[2]
		if len(id) == 0 {
			id, reftext = m[3], m[4]
		}
		if len(reftext) > 0 {
			reftext = p.subAttributesIn(reftext)
		}
		if !p.doc.RegisterRef(id, reftext, b) {
			p.doc.warn(cursor, "id assigned to anchor already in use", "id", id)
		}
	}
}

// --- Delimited blocks ---

// delimitedBlock reads a block from its opening line to the matching
// terminator. The style may turn it into another kind of block.
func (p *parser) delimitedBlock(r *reader.Reader, parent *Block, d delimiter, pa *pending, cursor reader.Cursor) *Block {

	doc := p.doc
	opening, _ := r.ReadLine()

	ctx := d.context
	style := pa.style()

	if d.fenced {
		// ```lang,linenums
		style = "source"
		if lang := strings.TrimSpace(opening[3:]); len(lang) > 0 {
			parts := strings.Split(lang, ",")
			pa.attrs["language"] = strings.TrimSpace(parts[0])
			for _, opt := range parts[1:] {
				if opt = strings.TrimSpace(opt); len(opt) > 0 {
					pa.attrs.SetOption(opt)
				}
			}
		}
	}

	var extension BlockProcessor
	switch {
	case len(style) == 0 || style == ctx.String():
		style = ctx.String()
	case d.tableFormat != "":
		// Tables take any style
	case contains(d.masq, style):
		ctx = styleContexts[style]
	case contains(d.masq, "admonition") && admonitionStyles[style]:
		ctx = ContextAdmonition
	default:
		if proc, ok := doc.extensions.blockFor(style, ctx); ok {
			extension = proc
		} else {
			doc.warn(cursor, "invalid style for "+ctx.String()+" block", "style", style)
			style = ctx.String()
		}
	}
	pa.attrs["style"] = style

	skip := ctx == ContextComment
	lines := r.ReadLinesUntil(reader.UntilOptions{
		Terminator:     d.terminator,
		SkipProcessing: skip,
		Context:        ctx.String(),
		Cursor:         &cursor,
	}, nil)
	if skip {
		return nil
	}

	inner := r.Cursor()
	inner.LineNumber = cursor.LineNumber + 1

	if extension != nil {
		return p.extensionBlock(extension, parent, lines, inner, pa)
	}

	if ctx == ContextTable {
		return p.table(lines, inner, d, pa)
	}

	return p.buildBlock(ctx, contentModels[ctx], lines, inner, style, pa)
}

// buildBlock creates a block of the given kind over lines. Compound
// content is parsed into children.
func (p *parser) buildBlock(ctx Context, model ContentModel, lines []string, cursor reader.Cursor, style string, pa *pending) *Block {

	doc := p.doc
	b := NewBlock(doc, ctx, model)
	b.Style = style

	switch ctx {
	case ContextAdmonition:
		name := strings.ToLower(style)
		b.Attributes["name"] = name
		textlabel, ok := pa.attrs["caption"]
		if !ok {
			textlabel = doc.AttributeOr(name+"-caption", style)
		}
		b.Attributes["textlabel"] = textlabel
	case ContextQuote, ContextVerse:
		p.rekey(pa, "attribution", "citetitle")
	case ContextListing:
		if style == "source" {
			p.rekey(pa, "language", "linenums")
			if _, ok := pa.attrs["language"]; !ok {
				if lang, ok := doc.Attribute("source-language"); ok {
					pa.attrs["language"] = lang
				}
			}
			if v, ok := pa.attrs["linenums"]; ok && (v == "" || v == "linenums") {
				pa.attrs.SetOption("linenums")
			}
		}
	case ContextStem:
		if style == "stem" {
			b.Style = doc.stemKind()
			pa.attrs["style"] = b.Style
		}
	}

	switch model {
	case ContentCompound:
		sub := reader.NewReader(lines, cursor, doc.log)
		if p.enter(cursor) {
			p.parseBlocks(sub, b)
		}
		p.leave()
	case ContentVerbatim:
		if indent, ok := pa.attrs["indent"]; ok {
			n, err := strconv.Atoi(indent)
			if err == nil {
				tabSize, _ := strconv.Atoi(pa.attrs["tabsize"])
				if tabSize == 0 {
					tabSize, _ = strconv.Atoi(doc.AttributeOr("tabsize", "0"))
				}
				reader.AdjustIndentation(lines, n, tabSize)
			}
		}
		b.Lines = lines
	default:
		b.Lines = lines
	}

	return b
}

// rekey names the second and third positional attributes.
func (p *parser) rekey(pa *pending, names ...string) {
	for i, name := range names {
		if _, ok := pa.attrs[name]; ok {
			continue
		}
		if v, ok := pa.attrs.Positional(i + 2); ok {
			pa.attrs[name] = v
		}
	}
}

// extensionBlock hands the lines of a block to a registered processor.
func (p *parser) extensionBlock(proc BlockProcessor, parent *Block, lines []string, cursor reader.Cursor, pa *pending) *Block {

	attrs := pa.attrs.Clone()
	if title, ok := attrs["title"]; ok {
		attrs["title"] = p.subAttributesIn(title)
	}

	b, err := proc.Process(parent, reader.NewReader(lines, cursor, p.doc.log), attrs)
	if err != nil {
		p.doc.errorAt(cursor, "extension failed", "style", pa.style(), "error", err)
		return nil
	}
	if b == nil {
		return nil
	}
	if err := checkContract(b); err != nil {
		p.err = err
		return nil
	}
	b.Location = cursor
	return b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- Macros ---

var mediaContexts = map[string]Context{
	"image": ContextImage,
	"video": ContextVideo,
	"audio": ContextAudio,
}

var mediaPositional = map[string][]string{
	"image": {"alt", "width", "height"},
	"video": {"poster", "width", "height"},
	"audio": nil,
}

// blockMacro handles image::, video::, audio::, toc:: and registered block
// macros. handled is false when the line is not a known macro, so it is
// taken as a paragraph.
func (p *parser) blockMacro(r *reader.Reader, parent *Block, line string, pa *pending, cursor reader.Cursor) (b *Block, handled bool) {

	doc := p.doc

	if m, ok := classifyMediaMacro(line); ok {
		r.ReadLine()

		target := m.target
		if strings.Contains(target, "{") {
			expanded, _ := doc.subAttributes(target, "")
			if len(expanded) == 0 && doc.AttributeOr("attribute-missing", "") == MissingDropLine {
				return nil, true
			}
			target = expanded
		}
		if len(target) == 0 {
			return nil, true
		}

		attrs := attrlist.Parse(p.subAttributesIn(m.attrs), attrlist.Options{
			Positional: mediaPositional[m.name],
			Subs:       doc.ApplyNormalSubs,
		})
		for k, v := range attrs {
			pa.attrs[k] = v
		}
		if !attrlist.ApplyShorthand(pa.attrs) {
			doc.warn(cursor, "invalid empty segment in block style shorthand", "style", pa.attrs["1"])
		}
		delete(pa.attrs, "style")
		pa.attrs["target"] = target

		if m.name == "image" {
			doc.catalog.addImage(target)
			if alt, ok := pa.attrs["alt"]; !ok || len(alt) == 0 {
				pa.attrs["alt"] = defaultAlt(target)
				pa.attrs["default-alt"] = pa.attrs["alt"]
			}
		}

		ctx := mediaContexts[m.name]
		return NewBlock(doc, ctx, ContentEmpty), true
	}

	if m, ok := classifyTocMacro(line); ok {
		r.ReadLine()
		attrlist.ParseInto(pa.attrs, m.attrs, attrlist.Options{})
		return NewBlock(doc, ContextToc, ContentEmpty), true
	}

	m, ok := classifyCustomBlockMacro(line)
	if !ok {
		return nil, false
	}
	proc, ok := doc.extensions.blockMacroFor(m.name)
	if !ok {
		return nil, false
	}
	r.ReadLine()

	target := p.subAttributesIn(m.target)
	attrs := pa.attrs.Clone()
	attrlist.ParseInto(attrs, p.subAttributesIn(m.attrs), attrlist.Options{Subs: doc.ApplyNormalSubs})

	b, err := proc.Process(parent, target, attrs)
	if err != nil {
		doc.errorAt(cursor, "extension failed", "macro", m.name, "error", err)
		return nil, true
	}
	if b == nil {
		return nil, true
	}
	if err := checkContract(b); err != nil {
		p.err = err
		return nil, true
	}
	b.Location = cursor
	return b, true
}

// floatingTitle reads a discrete heading. It is not a section and takes
// no content.
func (p *parser) floatingTitle(r *reader.Reader) *Block {
	doc := p.doc
	st := p.readSectionTitle(r)

	b := NewBlock(doc, ContextFloatingTitle, ContentEmpty)
	b.SetTitle(st.title)
	b.Attributes["level"] = strconv.Itoa(st.level + p.leveloffset())
	if len(st.id) > 0 {
		b.ID = st.id
	} else if doc.HasAttribute("sectids") {
		b.ID = doc.generateID(b.Title())
	}
	if len(st.reftext) > 0 {
		b.Attributes["reftext"] = st.reftext
	}
	return b
}

// --- Paragraphs ---

// readParagraphLines reads up to a blank line, a list continuation or the
// start of another block. Inside list items a list marker also ends it.
func readParagraphLines(r *reader.Reader, breakAtList bool, skipLineComments bool) []string {
	return r.ReadLinesUntil(reader.UntilOptions{
		BreakOnBlankLines:       true,
		BreakOnListContinuation: true,
		PreserveLastLine:        true,
		SkipLineComments:        skipLineComments,
	}, func(line string) bool {
		return isDelimiter(line) || isBlockAttributeLine(line) || (breakAtList && isAnyListItem(line))
	})
}

// paragraph reads a paragraph and decides what it is: a literal block when
// indented, an admonition when it opens with a label, a quote when written
// with air quotes, or whatever its style says.
func (p *parser) paragraph(r *reader.Reader, parent *Block, pa *pending, textOnly bool) *Block {

	doc := p.doc
	line, _ := r.PeekLine()
	style := pa.style()
	inList := parent != nil && parent.Context == ContextListItem
	cursor := r.Cursor()

	if isLiteralLine(line) && (len(style) == 0 || style == "normal") {
		var lines []string
		if textOnly || inList {
			lines = readParagraphLines(r, true, false)
		} else {
			lines = r.ReadLinesUntil(reader.UntilOptions{
				BreakOnBlankLines:       true,
				BreakOnListContinuation: true,
				PreserveLastLine:        true,
			}, isDelimiter)
		}
		reader.AdjustIndentation(lines, 0, 0)
		if textOnly || style == "normal" {
			b := NewBlock(doc, ContextParagraph, ContentSimple)
			b.Lines = lines
			return b
		}
		return p.buildBlock(ContextLiteral, ContentVerbatim, lines, cursor, "literal", pa)
	}

	lines := readParagraphLines(r, inList, textOnly)
	if len(lines) == 0 {
		// The first line looked like the start of another block
		first, _ := r.ReadLine()
		if len(first) == 0 || first == reader.ListContinuation {
			return nil
		}
		lines = []string{first}
	}

	if textOnly {
		b := NewBlock(doc, ContextParagraph, ContentSimple)
		b.Lines = lines
		return b
	}

	switch {
	case admonitionStyles[style]:
		return p.buildBlock(ContextAdmonition, ContentSimple, lines, cursor, style, pa)

	case len(style) > 0 && style != "normal" && paragraphStyles[style]:
		ctx := styleContexts[style]
		model := contentModels[ctx]
		if model == ContentCompound {
			model = ContentSimple
		}
		if ctx == ContextComment {
			return nil
		}
		return p.buildBlock(ctx, model, lines, cursor, style, pa)

	case len(style) > 0 && doc.extensions.hasBlock(style):
		if proc, ok := doc.extensions.blockFor(style, ContextParagraph); ok {
			return p.extensionBlock(proc, parent, lines, cursor, pa)
		}
		doc.warn(cursor, "invalid style for paragraph", "style", style)
	}

	if adm, ok := classifyAdmonitionParagraph(lines[0]); ok {
		lines[0] = adm.rest
		pa.attrs["style"] = adm.label
		return p.buildBlock(ContextAdmonition, ContentSimple, lines, cursor, adm.label, pa)
	}

	if q := p.airQuote(lines, pa); q != nil {
		return q
	}

	if strings.HasPrefix(lines[0], "> ") || lines[0] == ">" {
		return p.markdownQuote(lines, cursor, pa)
	}

	b := NewBlock(doc, ContextParagraph, ContentSimple)
	b.Lines = lines
	if style == "normal" {
		b.Style = ""
		delete(pa.attrs, "style")
	}
	return b
}

// airQuote turns
//
//	"A famous quote"
//	-- Attribution, Source
//
// into a quote paragraph.
func (p *parser) airQuote(lines []string, pa *pending) *Block {

	n := len(lines)
	if n < 2 || !strings.HasPrefix(lines[0], `"`) || !strings.HasPrefix(lines[n-1], "-- ") || !strings.HasSuffix(lines[n-2], `"`) {
		return nil
	}

	attribution := strings.TrimPrefix(lines[n-1], "-- ")
	text := append([]string{}, lines[:n-1]...)
	text[0] = text[0][1:]
	text[len(text)-1] = strings.TrimSuffix(text[len(text)-1], `"`)

	name, cite, _ := strings.Cut(attribution, ", ")
	pa.attrs["attribution"] = name
	if len(cite) > 0 {
		pa.attrs["citetitle"] = cite
	}
	pa.attrs["style"] = "quote"

	b := NewBlock(p.doc, ContextQuote, ContentSimple)
	b.Style = "quote"
	b.Lines = text
	return b
}

// markdownQuote turns lines prefixed with "> " into a quote whose content
// is parsed as blocks. A last line starting with "-- " is the attribution.
func (p *parser) markdownQuote(lines []string, cursor reader.Cursor, pa *pending) *Block {

	if n := len(lines); n > 1 && strings.HasPrefix(lines[n-1], "-- ") {
		name, cite, _ := strings.Cut(strings.TrimPrefix(lines[n-1], "-- "), ", ")
		pa.attrs["attribution"] = name
		if len(cite) > 0 {
			pa.attrs["citetitle"] = cite
		}
		lines = lines[:n-1]
	}

	inner := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case l == ">":
			inner[i] = ""
		case strings.HasPrefix(l, "> "):
			inner[i] = l[2:]
		default:
			inner[i] = l
		}
	}

	pa.attrs["style"] = "quote"
	return p.buildBlock(ContextQuote, ContentCompound, inner, cursor, "quote", pa)
}
