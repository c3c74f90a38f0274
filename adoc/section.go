package adoc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hesusruiz/adoc/reader"
)

// sectionCounters number the child sections of one parent.
type sectionCounters struct {
	index   int
	ordinal int
}

// specialSections are the styles that turn a section into a special one.
var specialSections = map[string]bool{
	"abstract":        true,
	"acknowledgments": true,
	"appendix":        true,
	"bibliography":    true,
	"colophon":        true,
	"dedication":      true,
	"glossary":        true,
	"index":           true,
	"preface":         true,
	"synopsis":        true,
	"partintro":       true,
}

var lower = cases.Lower(language.Und)

// leveloffset returns the offset added to the level of section titles.
func (p *parser) leveloffset() int {
	n, _ := strconv.Atoi(p.doc.AttributeOr("leveloffset", "0"))
	return n
}

// peekSectionTitle reports whether the next line, or the next two for the
// underlined form, is a section title.
func (p *parser) peekSectionTitle(r *reader.Reader) (sectionTitle, bool) {

	lines := r.PeekLines(2, false)
	if len(lines) == 0 {
		return sectionTitle{}, false
	}

	if st, ok := classifyAtxSectionTitle(lines[0]); ok {
		return st, true
	}
	if len(lines) > 1 {
		return classifySetextSectionTitle(lines[0], lines[1])
	}
	return sectionTitle{}, false
}

// readSectionTitle consumes the title lines peeked by peekSectionTitle.
func (p *parser) readSectionTitle(r *reader.Reader) sectionTitle {
	st, _ := p.peekSectionTitle(r)
	r.ReadLine()
	if !st.atx {
		r.ReadLine()
	}
	return st
}

// isSectionStyle reports whether style allows the next title to start a section.
func isSectionStyle(style string) bool {
	return style != "discrete" && style != "float"
}

// parseSection parses the content of parent, a section or the document
// root, up to the next title of the same or a higher level. Child sections
// are parsed recursively. The metadata read above that title is returned
// so the caller can hand it to the section it starts.
func (p *parser) parseSection(r *reader.Reader, parent *Block, pa *pending) *pending {

	doc := p.doc
	book := doc.Doctype() == "book"

	currentLevel := 0
	if parent.Section != nil {
		currentLevel = parent.Section.Level
	}
	expected := currentLevel + 1

	// Blocks between the header and the first section form the preamble
	container := parent
	var preamble *Block
	if parent == doc.root && doc.header != nil && !doc.Nested() {
		preamble = NewBlock(doc, ContextPreamble, ContentCompound)
		parent.AppendChild(preamble)
		container = preamble
	}

	for {
		r.SkipBlankLines()
		p.parseBlockMetadataLines(r, pa, false)
		if !r.HasMoreLines() || p.fatal() != nil {
			break
		}

		if isSectionStyle(pa.style()) {
			if st, ok := p.peekSectionTitle(r); ok {
				level := st.level + p.leveloffset()
				if level <= currentLevel && !(parent == doc.root && level == 0) {
					// Belongs to an ancestor
					return pa
				}

				cursor := r.Cursor()
				switch {
				case level == 0 && !book:
					doc.errorAt(cursor, "level 0 sections can only be used when doctype is book")
				case level > expected && !(book && parent == doc.root && level == 1):
					doc.warn(cursor, "section title out of sequence", "expected", expected, "got", level)
				}

				section := p.initSection(r, parent, pa, level)
				parent.AppendChild(section)
				pa = p.parseSection(r, section, newPending())

				// Only the first section ends the preamble
				container = parent
				continue
			}
		}

		if b := p.nextBlock(r, container, pa, false); b != nil {
			container.AppendChild(b)
		}
	}

	if preamble != nil {
		p.closePreamble(preamble)
	}

	return pa
}

// closePreamble drops an empty preamble, and unwraps it when the document
// has no sections.
func (p *parser) closePreamble(preamble *Block) {
	root := preamble.Parent
	switch {
	case !preamble.HasChildren():
		root.RemoveChild(preamble)
	case len(root.Sections()) == 0:
		for c := preamble.FirstChild; c != nil; c = preamble.FirstChild {
			preamble.RemoveChild(c)
			root.InsertBefore(c, preamble)
		}
		root.RemoveChild(preamble)
	}
}

// initSection consumes a section title and creates the section, taking the
// pending metadata. Ids are assigned and registered here.
func (p *parser) initSection(r *reader.Reader, parent *Block, pa *pending, level int) *Block {

	doc := p.doc
	cursor := r.Cursor()
	st := p.readSectionTitle(r)

	section := NewBlock(doc, ContextSection, ContentCompound)
	section.Location = cursor
	section.SetTitle(st.title)
	section.Section = &SectionInfo{Level: level, Sectname: "section"}

	style := pa.style()
	pa.attach(section)
	if title, ok := section.Attributes["title"]; ok {
		// A block title above a section is kept as an attribute only
		delete(section.Attributes, "title")
		section.Attributes["caption-title"] = title
	}

	sectnums := doc.HasAttribute("sectnums")
	parentSpecial := parent.Section != nil && parent.Section.Special && parent.Section.Sectname != "appendix"

	switch {
	case specialSections[style]:
		section.Style = style
		section.Section.Sectname = style
		section.Section.Special = true
		section.Section.Numbered = style == "appendix" && sectnums
	case doc.Doctype() == "book" && level == 0:
		section.Section.Sectname = "part"
		section.Section.Numbered = doc.HasAttribute("partnums")
	case doc.Doctype() == "book" && level == 1:
		section.Section.Sectname = "chapter"
		section.Section.Numbered = sectnums && !parentSpecial
	default:
		section.Style = style
		section.Section.Numbered = sectnums && !parentSpecial
	}
	if section.Section.Numbered && section.Section.Sectname != "appendix" && level > 0 {
		maxLevel, err := strconv.Atoi(doc.AttributeOr("sectnumlevels", "3"))
		if err == nil && level > maxLevel {
			section.Section.Numbered = false
		}
	}

	p.assignNumeral(parent, section)

	switch id, explicit := section.Attributes["id"]; {
	case explicit:
		section.ID = id
	case len(st.id) > 0:
		section.ID = st.id
	case doc.HasAttribute("sectids"):
		section.ID = doc.generateID(section.Title())
	}
	delete(section.Attributes, "id")

	if len(section.ID) > 0 {
		reftext := section.Attributes["reftext"]
		if len(reftext) == 0 {
			reftext = st.reftext
			if len(reftext) > 0 {
				section.Attributes["reftext"] = reftext
			}
		}
		if !doc.RegisterRef(section.ID, reftext, section) {
			doc.warn(cursor, "id assigned to section already in use", "id", section.ID)
		}
	}

	return section
}

// assignNumeral sets the index of section among its siblings and, for
// numbered sections, its numeral. Appendices count with letters.
func (p *parser) assignNumeral(parent, section *Block) {

	doc := p.doc
	counters, ok := p.sections[parent]
	if !ok {
		counters = &sectionCounters{ordinal: 1}
		p.sections[parent] = counters
	}

	info := section.Section
	info.Index = counters.index
	counters.index++

	switch {
	case info.Sectname == "appendix":
		section.Numeral = doc.Counter("appendix-number", "A")
		if caption, ok := doc.Attribute("appendix-caption"); ok && len(caption) > 0 {
			section.Caption = caption + " " + section.Numeral + ": "
		}
	case info.Sectname == "chapter" && info.Numbered:
		section.Numeral = doc.Counter("chapter-number", "1")
	case info.Numbered && info.Sectname == "part":
		section.Numeral = romanNumeral(counters.ordinal)
		counters.ordinal++
	case info.Numbered:
		section.Numeral = strconv.Itoa(counters.ordinal)
		counters.ordinal++
	}
}

// Sectnum returns the number of a section, like "2.1." for the first
// subsection of the second section. Unnumbered ancestors are skipped.
func (b *Block) Sectnum() string {
	if b.Section == nil || len(b.Numeral) == 0 {
		return ""
	}
	prefix := ""
	if parent := b.Parent; parent != nil && parent.Section != nil && parent.Section.Level > 0 {
		prefix = parent.Sectnum()
	}
	return prefix + b.Numeral + "."
}

var (
	reInvalidSectionIDChars = regexp.MustCompile(`<[^>]+>|&(?:[a-z][a-z]+\d{0,2}|#\d\d\d{0,4}|#x[\da-f][\da-f][\da-f]{0,3});|[^ \pL\pN_\-.]+`)
	reIDSeparatorRun        = regexp.MustCompile(`[ .\-]+`)
)

// generateID builds an id from a converted title using the idprefix and
// idseparator attributes. A taken id gets a numeric suffix.
func (d *Document) generateID(title string) string {

	prefix := d.AttributeOr("idprefix", "_")
	sep, hasSep := d.Attribute("idseparator")
	if !hasSep {
		sep = "_"
	} else if len(sep) > 1 {
		sep = string([]rune(sep)[0])
	}

	id := reInvalidSectionIDChars.ReplaceAllString(lower.String(title), "")
	if len(sep) == 0 {
		id = strings.ReplaceAll(id, " ", "")
	} else {
		id = reIDSeparatorRun.ReplaceAllString(id, sep)
		id = strings.TrimSuffix(id, sep)
		if len(prefix) == 0 {
			id = strings.TrimPrefix(id, sep)
		}
	}
	id = prefix + id

	if _, taken := d.catalog.Refs[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%s%d", id, sep, n)
		if _, taken := d.catalog.Refs[candidate]; !taken {
			return candidate
		}
	}
}

// romanNumeral writes n in upper case roman numerals.
func romanNumeral(n int) string {
	values := []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	symbols := []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
	var sb strings.Builder
	for i, v := range values {
		for n >= v {
			sb.WriteString(symbols[i])
			n -= v
		}
	}
	return sb.String()
}
