package adoc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shuLhan/share/lib/ascii"
	"gopkg.in/yaml.v3"

	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/reader"
	"github.com/hesusruiz/adoc/safe"
)

// parser builds the block tree of one document. Nested documents get their
// own parser.
type parser struct {
	doc *Document
	pre *reader.PreprocessingReader

	// depth counts the compound blocks and list items being parsed
	depth int

	// err is a fatal error raised by the parser itself, like a broken extension
	err error

	// sections numbers the child sections of each parent
	sections map[*Block]*sectionCounters
}

func newParser(doc *Document) *parser {
	return &parser{
		doc:      doc,
		sections: map[*Block]*sectionCounters{},
	}
}

// ParseString parses a document held in memory.
func ParseString(src string, opts Options) (*Document, error) {
	return ParseFromBytes("", []byte(src), opts)
}

// ParseFromBytes parses src. fileName is used for diagnostics and as the
// directory relative includes start from; it may be empty.
func ParseFromBytes(fileName string, src []byte, opts Options) (*Document, error) {

	if len(src) == 0 {
		return nil, ErrNoContent
	}

	doc := NewDocument(opts)
	doc.setFileAttributes(fileName)

	lines := reader.PrepareLines(string(src), -1)

	// Front matter is only looked for when asked to
	if doc.HasAttribute("skip-front-matter") {
		lines = doc.takeFrontMatter(lines)
	}

	if err := newParser(doc).parse(lines, reader.CursorForFile(fileName)); err != nil {
		if len(fileName) == 0 {
			fileName = "<stdin>"
		}
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}

	return doc, nil
}

// ParseFromFile reads and parses a file. When no base directory was
// configured, includes are jailed to the directory of the file.
func ParseFromFile(fileName string, opts Options) (*Document, error) {

	src, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	if len(opts.BaseDir) == 0 || opts.BaseDir == "." {
		opts.BaseDir = filepath.Dir(fileName)
	}

	return ParseFromBytes(fileName, src, opts)
}

// parse runs the preprocessor and the block parser over lines.
func (p *parser) parse(lines []string, cursor reader.Cursor) error {

	doc := p.doc

	p.pre = reader.NewPreprocessingReader(lines, cursor, doc.readerConfig())
	r := p.pre.Reader

	pa := p.parseHeader(r)
	if err := p.fatal(); err != nil {
		return err
	}

	// This is the state every pass over the tree starts from
	doc.SaveAttributes()

	if doc.opts.ParseHeaderOnly {
		return nil
	}

	p.parseSection(r, doc.root, pa)

	return p.fatal()
}

// fatal returns the error that stopped parsing, if any.
func (p *parser) fatal() error {
	if p.err != nil {
		return p.err
	}
	if p.pre != nil {
		return p.pre.Err()
	}
	return nil
}

// setFileAttributes defines docfile, docdir, docname and docfilesuffix.
// From server mode up the directory of the document is not disclosed.
func (d *Document) setFileAttributes(fileName string) {

	if len(fileName) == 0 {
		d.SetAttribute("docname", "")
		return
	}

	abs, err := filepath.Abs(fileName)
	if err != nil {
		abs = fileName
	}
	ext := filepath.Ext(fileName)

	if d.opts.SafeMode >= safe.Server {
		d.SetAttribute("docfile", filepath.Base(fileName))
		d.SetAttribute("docdir", "")
	} else {
		d.SetAttribute("docfile", abs)
		d.SetAttribute("docdir", filepath.Dir(abs))
	}
	d.SetAttribute("docname", strings.TrimSuffix(filepath.Base(fileName), ext))
	d.SetAttribute("docfilesuffix", ext)
}

// takeFrontMatter removes a `---` delimited block at the top of lines. The
// raw text is kept in the front-matter attribute and its top level scalar
// keys become attributes.
func (d *Document) takeFrontMatter(lines []string) []string {

	if len(lines) == 0 || lines[0] != "---" {
		return lines
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if lines[i] == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		d.log.Warnw("end of file reached but no end of front matter found")
		return lines
	}

	frontMatter := strings.Join(lines[1:end], "\n")
	d.SetAttribute("front-matter", frontMatter)

	var values map[string]any
	if err := yaml.Unmarshal([]byte(frontMatter), &values); err != nil {
		d.log.Warnw("malformed front matter", "error", err)
		return lines[end+1:]
	}
	for k, v := range values {
		switch v.(type) {
		case string, int, float64, bool:
			d.SetAttribute(k, fmt.Sprint(v))
		case nil:
			d.SetAttribute(k, "")
		}
	}

	return lines[end+1:]
}

// --- Metadata ---

// pending collects the metadata lines seen before a block: anchors,
// attribute lists, the block title and attribute entries.
type pending struct {
	attrs   attrlist.Attributes
	entries []AttributeEntry
}

func newPending() *pending {
	return &pending{attrs: attrlist.Attributes{}}
}

// clear forgets the attributes. Entries stay until a block takes them.
func (pa *pending) clear() {
	pa.attrs = attrlist.Attributes{}
}

func (pa *pending) style() string {
	return pa.attrs["style"]
}

// attach moves the pending metadata to b.
func (pa *pending) attach(b *Block) {
	for k, v := range pa.attrs {
		if k == "title" {
			continue
		}
		if _, exists := b.Attributes[k]; !exists {
			b.Attributes[k] = v
		}
	}
	b.AttributeEntries = append(b.AttributeEntries, pa.entries...)
	pa.entries = nil
	pa.clear()
}

// parseBlockMetadataLines consumes metadata lines, and blank lines between
// them, into pa.
func (p *parser) parseBlockMetadataLines(r *reader.Reader, pa *pending, textOnly bool) {
	for p.parseBlockMetadataLine(r, pa, textOnly) {
		if r.SkipBlankLines() < 0 || !r.HasMoreLines() {
			return
		}
	}
}

// parseBlockMetadataLine consumes the next line if it is metadata. In text
// only mode (the first block of a list item) titles and entries are text.
func (p *parser) parseBlockMetadataLine(r *reader.Reader, pa *pending, textOnly bool) bool {

	line, ok := r.PeekLine()
	if !ok || len(line) == 0 {
		return false
	}

	switch line[0] {
	case '[':
		if strings.HasPrefix(line, "[[") {
			anchor, ok := classifyBlockAnchor(line)
			if !ok {
				return false
			}
			if len(anchor.id) > 0 {
				pa.attrs["id"] = anchor.id
			}
			if len(anchor.reftext) > 0 {
				pa.attrs["reftext"] = p.subAttributesIn(anchor.reftext)
			}
			r.ReadLine()
			return true
		}
		raw, ok := classifyBlockAttributeList(line)
		if !ok {
			return false
		}
		p.parseBlockAttributes(raw, pa.attrs, r.Cursor())
		r.ReadLine()
		return true

	case '.':
		if textOnly {
			return false
		}
		title, ok := classifyBlockTitle(line)
		if !ok {
			return false
		}
		pa.attrs["title"] = title
		r.ReadLine()
		return true

	case '/':
		if !strings.HasPrefix(line, "//") {
			return false
		}
		if line == "//" {
			r.ReadLine()
			return true
		}
		if isUniform(line, '/') {
			if len(line) == 3 || textOnly {
				return false
			}
			// A block comment, skipped to its terminator
			cursor := r.Cursor()
			r.ReadLinesUntil(reader.UntilOptions{
				Terminator:     line,
				SkipFirstLine:  true,
				SkipProcessing: true,
				Context:        "comment",
				Cursor:         &cursor,
			}, nil)
			return true
		}
		if strings.HasPrefix(line, "///") {
			return false
		}
		r.ReadLine()
		return true

	case ':':
		if textOnly {
			return false
		}
		entry, ok := classifyAttributeEntry(line)
		if !ok {
			return false
		}
		p.processAttributeEntry(r, entry, pa)
		return true
	}

	return false
}

// parseBlockAttributes parses the inside of an attribute list line into
// attrs. References are replaced first and single quoted values get the
// normal substitutions. The first positional value is expanded as a
// style#id.role%option shorthand.
func (p *parser) parseBlockAttributes(raw string, attrs attrlist.Attributes, cursor reader.Cursor) {

	raw = p.subAttributesIn(raw)

	current := attrs["style"]
	delete(attrs, "1")

	attrlist.ParseInto(attrs, raw, attrlist.Options{Subs: p.doc.ApplyNormalSubs})

	if _, ok := attrs["1"]; !ok {
		return
	}
	if !attrlist.ApplyShorthand(attrs) {
		p.doc.warn(cursor, "invalid empty segment in block style shorthand", "style", attrs["1"])
	}
	if len(attrs["style"]) == 0 && len(current) > 0 {
		attrs["style"] = current
	}
}

// subAttributesIn replaces references in metadata text, leaving unknown ones alone.
func (p *parser) subAttributesIn(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	out, _ := p.doc.subAttributes(text, MissingSkip)
	return out
}

// --- Attribute entries ---

// processAttributeEntries consumes consecutive attribute entries and comments.
func (p *parser) processAttributeEntries(r *reader.Reader, pa *pending) {
	r.SkipCommentLines()
	for {
		line, ok := r.PeekLine()
		if !ok {
			return
		}
		entry, ok := classifyAttributeEntry(line)
		if !ok {
			return
		}
		p.processAttributeEntry(r, entry, pa)
		r.SkipCommentLines()
	}
}

// processAttributeEntry consumes an attribute entry, with the lines its
// value is wrapped over, and applies it. A value ending in ` \` goes on in
// the next line; a ` +` before the backslash keeps the line break.
func (p *parser) processAttributeEntry(r *reader.Reader, entry attributeEntry, pa *pending) {

	r.ReadLine()

	value := entry.value
	if wrap := wrapMarker(value); len(wrap) > 0 {
		value = strings.TrimRight(value[:len(value)-len(wrap)], " \t")
		for {
			next, ok := r.PeekLine()
			if !ok || len(next) == 0 {
				break
			}
			r.ReadLine()

			next = strings.TrimLeft(next, " \t")
			keepOpen := strings.HasSuffix(next, wrap)
			if keepOpen {
				next = strings.TrimRight(next[:len(next)-len(wrap)], " \t")
			}

			if strings.HasSuffix(value, " +") {
				value += "\n" + next
			} else {
				value += " " + next
			}

			if !keepOpen {
				break
			}
		}
	}

	p.storeAttributeEntry(entry.name, value, pa)
}

func wrapMarker(value string) string {
	switch {
	case strings.HasSuffix(value, ` \`):
		return ` \`
	case strings.HasSuffix(value, " +") && strings.HasSuffix(strings.TrimSuffix(value, " +"), " +"):
		return " +"
	}
	return ""
}

// storeAttributeEntry applies an entry to the document and, when pa is not
// nil, records it for playback.
func (p *parser) storeAttributeEntry(name, value string, pa *pending) {

	doc := p.doc

	negate := false
	switch {
	case strings.HasSuffix(name, "!"):
		name, negate = strings.TrimSuffix(name, "!"), true
	case strings.HasPrefix(name, "!"):
		name, negate = name[1:], true
	}

	switch name = sanitizeAttributeName(name); name {
	case "numbered":
		name = "sectnums"
	case "hardbreaks":
		name = "hardbreaks-option"
	case "showtitle":
		if negate {
			p.storeAttributeEntry("notitle", "", pa)
		} else {
			p.storeAttributeEntry("notitle!", "", pa)
		}
	}

	if negate {
		if doc.DeleteAttribute(name) && pa != nil {
			pa.entries = append(pa.entries, AttributeEntry{Name: name, Negate: true})
		}
		return
	}

	if !doc.SetAttribute(name, doc.attributeEntryValue(value)) {
		return
	}
	if pa != nil {
		resolved, _ := doc.Attribute(name)
		pa.entries = append(pa.entries, AttributeEntry{Name: name, Value: resolved})
	}
}

// sanitizeAttributeName lower cases name and drops every character that
// is not a letter, a digit, '_' or '-'.
func sanitizeAttributeName(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if ascii.IsAlnum(c) || c == '_' || c == '-' {
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// attributeEntryValue applies the header substitutions to the value of an
// entry, or the subs named in a pass:[] wrapper.
func (d *Document) attributeEntryValue(value string) string {
	if len(value) == 0 {
		return value
	}
	if m := reAttributeEntryPass.FindStringSubmatch(value); m != nil {
		if len(m[1]) == 0 {
			return m[2]
		}
		return d.ApplySubs(m[2], d.resolveSubs(m[1], nil, true, "attribute entry"))
	}
	return d.ApplySubs(value, HeaderSubs)
}

// --- Header ---

// parseHeader reads the document title, author and revision lines and the
// header attribute entries. Metadata above a missing title carries over to
// the first block of the body and is returned.
func (p *parser) parseHeader(r *reader.Reader) *pending {

	doc := p.doc
	pa := newPending()

	if r.SkipBlankLines(); !r.HasMoreLines() {
		return pa
	}
	p.parseBlockMetadataLines(r, pa, false)

	st, ok := p.peekSectionTitle(r)
	if !ok || st.level+p.leveloffset() != 0 || pa.attrs.Has("title") {
		p.deriveAuthorAttributes()
		return pa
	}

	cursor := r.Cursor()
	p.readSectionTitle(r)

	header := NewBlock(doc, ContextSection, ContentCompound)
	header.Section = &SectionInfo{Level: 0, Sectname: "header"}
	header.SetTitle(st.title)
	header.Location = cursor
	header.ID = st.id
	if id, ok := pa.attrs["id"]; ok {
		header.ID = id
	}
	for _, k := range []string{"role", "reftext"} {
		if v, ok := pa.attrs[k]; ok {
			header.Attributes[k] = v
			doc.SetAttribute(k, v)
		}
	}
	doc.header = header

	doctitle := ""
	if !doc.HasAttribute("doctitle") {
		doctitle, _ = doc.subAttributes(subSpecialChars(st.title), MissingSkip)
		doc.SetAttribute("doctitle", doctitle)
	}
	pa.clear()

	p.parseHeaderMetadata(r)

	// :doctitle: in the header replaces the title line
	if v, ok := doc.Attribute("doctitle"); ok && len(v) > 0 && v != doctitle {
		header.SetTitle(v)
	}

	if len(header.ID) > 0 {
		doc.RegisterRef(header.ID, header.Attributes["reftext"], header)
	}

	return pa
}

// parseHeaderMetadata reads the author and revision lines and the
// attribute entries around them.
func (p *parser) parseHeaderMetadata(r *reader.Reader) {

	doc := p.doc

	p.processAttributeEntries(r, nil)

	line, ok := r.PeekLine()
	if !ok || len(line) == 0 {
		p.deriveAuthorAttributes()
		return
	}
	r.ReadLine()

	authors := parseAuthors(line)
	for k, v := range authors {
		if !doc.HasAttribute(k) {
			doc.SetAttribute(k, doc.ApplySubs(v, HeaderSubs))
		}
	}

	p.processAttributeEntries(r, nil)

	if line, ok := r.PeekLine(); ok && len(line) > 0 {
		if _, isEntry := classifyAttributeEntry(line); !isEntry {
			r.ReadLine()
			rev := classifyRevisionLine(line)
			for k, v := range map[string]string{
				"revnumber": rev.number,
				"revdate":   rev.date,
				"revremark": rev.remark,
			} {
				if len(v) > 0 && !doc.HasAttribute(k) {
					doc.SetAttribute(k, v)
				}
			}
		}
	}

	p.processAttributeEntries(r, nil)
	r.SkipBlankLines()
}

// deriveAuthorAttributes fills the name parts from an author or authors
// attribute set by an entry instead of an author line.
func (p *parser) deriveAuthorAttributes() {
	doc := p.doc
	author, ok := doc.Attribute("author")
	if !ok {
		author, ok = doc.Attribute("authors")
	}
	if !ok {
		if !doc.HasAttribute("authorcount") {
			doc.SetAttribute("authorcount", "0")
		}
		return
	}
	for k, v := range parseAuthors(author) {
		if k == "authorinitials" && doc.HasAttribute(k) {
			continue
		}
		if k == "author" || !doc.HasAttribute(k) {
			doc.SetAttribute(k, v)
		}
	}
}

// parseAuthors splits an author line like
//
//	Jane Q Doe <jane@example.org>; John Roe
//
// into the author attributes. The second and later authors get a _N suffix,
// and once there are two the first one is copied to _1 as well.
func parseAuthors(line string) map[string]string {

	keys := []string{"author", "authorinitials", "firstname", "middlename", "lastname", "email"}
	out := map[string]string{}
	var names []string

	idx := 0
	for _, entry := range strings.Split(line, ";") {
		entry = strings.TrimSpace(entry)
		if len(entry) == 0 {
			continue
		}
		idx++

		key := func(k string) string {
			if idx == 1 {
				return k
			}
			return fmt.Sprintf("%s_%d", k, idx)
		}

		var first, middle, last, email string
		if m := reAuthorInfo.FindStringSubmatch(entry); m != nil {
			first, middle, last, email = m[1], m[2], m[3], m[4]
			if len(last) == 0 && len(middle) > 0 {
				last, middle = middle, ""
			}
		} else {
			first = strings.Join(strings.Fields(entry), " ")
		}

		first = strings.ReplaceAll(first, "_", " ")
		middle = strings.ReplaceAll(middle, "_", " ")
		last = strings.ReplaceAll(last, "_", " ")

		full := first
		initials := initial(first)
		if len(middle) > 0 {
			full += " " + middle
			initials += initial(middle)
		}
		if len(last) > 0 {
			full += " " + last
			initials += initial(last)
		}

		out[key("author")] = full
		out[key("authorinitials")] = initials
		out[key("firstname")] = first
		if len(middle) > 0 {
			out[key("middlename")] = middle
		}
		if len(last) > 0 {
			out[key("lastname")] = last
		}
		if len(email) > 0 {
			out[key("email")] = email
		}
		names = append(names, full)

		if idx == 2 {
			for _, k := range keys {
				if v, ok := out[k]; ok {
					out[k+"_1"] = v
				}
			}
		}
	}

	if idx > 0 {
		out["authors"] = strings.Join(names, ", ")
	}
	out["authorcount"] = fmt.Sprint(idx)
	return out
}

func initial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return ""
}
