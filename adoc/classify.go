package adoc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// The classifiers below look at a single line (or a pair for setext titles)
// and tell what it opens. Each returns a small struct and a found flag, so
// the block parser never touches match groups directly.

var (
	reAttributeEntry = regexp.MustCompile(`^:(!?\w[^:]*):(?:[ \t]+(.*))?$`)

	reBlockAnchor = regexp.MustCompile(`^\[\[(?:|([\pL_:][\w:.-]*)(?:, *(.+))?)\]\]$`)

	reBlockAttributeList = regexp.MustCompile(`^\[(|[\pL\pN_.#%{,"'].*)\]$`)

	reBlockAttributeLine = regexp.MustCompile(`^\[(?:|[\pL\pN_.#%{,"'].*|\[(?:|[\pL_:][\w:.-]*(?:, *.+)?)\])\]$`)

	reBlockTitle = regexp.MustCompile(`^\.(\.?[^ \t.].*)$`)

	reAdmonitionParagraph = regexp.MustCompile(`^(NOTE|TIP|IMPORTANT|WARNING|CAUTION):[ \t]+`)

	reAtxSectionTitle = regexp.MustCompile(`^(=={0,5}|#{1,6})[ \t]+(.+?)(?:[ \t]+(?:=+|#+))?$`)

	reSetextUnderline = regexp.MustCompile(`^(?:=+|-+|~+|\^+|\++)$`)

	reInlineSectionAnchor = regexp.MustCompile(` (\\)?\[\[([\pL_:][\w:.-]*)(?:, *(.+))?\]\]$`)

	reUnorderedList = regexp.MustCompile(`^[ \t]*(-|\*{1,5}|\x{2022}{1,5})[ \t]+(.*)$`)

	reOrderedList = regexp.MustCompile(`^[ \t]*(\.{1,5}|\d+\.|[a-zA-Z]\.|[IVXivx]+\))[ \t]+(.*)$`)

	reDescriptionList = regexp.MustCompile(`^[ \t]*([^ \t]|[^ \t].*?[^ \t])(:::{0,2}|;;)(?:$|[ \t]+(.*)$)`)

	reCalloutList = regexp.MustCompile(`^<(\d+|\.)>[ \t]+(.*)$`)

	reAnyListStart = regexp.MustCompile(`^(?:[ \t]*(?:-|\*{1,5}|\.{1,5}|\x{2022}{1,5}|\d+\.|[a-zA-Z]\.|[IVXivx]+\))[ \t]|<(?:\d+|\.)>[ \t])`)

	reBlockMediaMacro = regexp.MustCompile(`^(image|video|audio)::(\S|\S.*?\S)\[(.+)?\]$`)

	reBlockTocMacro = regexp.MustCompile(`^toc::\[(.+)?\]$`)

	reCustomBlockMacro = regexp.MustCompile(`^([a-zA-Z][\w-]*)::(|\S|\S.*?\S)\[(.+)?\]$`)

	reLeadingInlineAnchor = regexp.MustCompile(`^\[\[([\pL_:][\w:.-]*)(?:, *(.+))?\]\]`)

	reInlineAnchorScan = regexp.MustCompile(`(?:^|[^\\\[])\[\[([\pL_:][\w:.-]*)(?:, *(.+?))?\]\]|(?:^|[^\\])anchor:([\pL_:][\w:.-]*)\[(?:\]|(.*?[^\\])\])`)

	reAuthorInfo = regexp.MustCompile(`^(\w[\w\-'.]*)(?: +(\w[\w\-'.]*))?(?: +(\w[\w\-'.]*))?(?: +<([^>]+)>)?$`)

	reAttributeEntryPass = regexp.MustCompile(`^pass:([a-z]+(?:,[a-z-]+)*)?\[(.*)\]$`)
)

// attributeEntry is a `:name: value` line.
type attributeEntry struct {
	name  string
	value string
}

func classifyAttributeEntry(line string) (attributeEntry, bool) {
	if !strings.HasPrefix(line, ":") {
		return attributeEntry{}, false
	}
	m := reAttributeEntry.FindStringSubmatch(line)
	if m == nil {
		return attributeEntry{}, false
	}
	return attributeEntry{name: m[1], value: m[2]}, true
}

// blockAnchor is a `[[id,reftext]]` line.
type blockAnchor struct {
	id      string
	reftext string
}

func classifyBlockAnchor(line string) (blockAnchor, bool) {
	if !strings.HasPrefix(line, "[[") || !strings.HasSuffix(line, "]]") {
		return blockAnchor{}, false
	}
	m := reBlockAnchor.FindStringSubmatch(line)
	if m == nil {
		return blockAnchor{}, false
	}
	return blockAnchor{id: m[1], reftext: m[2]}, true
}

// classifyBlockAttributeList returns the inside of a `[attrs]` line.
func classifyBlockAttributeList(line string) (string, bool) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	m := reBlockAttributeList.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// isBlockAttributeLine reports whether line is an attribute list or an anchor line.
func isBlockAttributeLine(line string) bool {
	return strings.HasPrefix(line, "[") && reBlockAttributeLine.MatchString(line)
}

func classifyBlockTitle(line string) (string, bool) {
	if !strings.HasPrefix(line, ".") {
		return "", false
	}
	m := reBlockTitle.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// admonitionParagraph is a paragraph opened with a label like `NOTE: `.
type admonitionParagraph struct {
	label string
	rest  string
}

func classifyAdmonitionParagraph(line string) (admonitionParagraph, bool) {
	loc := reAdmonitionParagraph.FindStringSubmatchIndex(line)
	if loc == nil {
		return admonitionParagraph{}, false
	}
	return admonitionParagraph{label: line[loc[2]:loc[3]], rest: line[loc[1]:]}, true
}

// sectionTitle is the result of reading a section title.
type sectionTitle struct {
	level   int
	title   string
	id      string
	reftext string
	// atx is false for the two line (setext) form
	atx bool
}

var setextLevels = map[byte]int{'=': 0, '-': 1, '~': 2, '^': 3, '+': 4}

// classifyAtxSectionTitle recognises `== Title` and `## Title`.
func classifyAtxSectionTitle(line string) (sectionTitle, bool) {
	if !strings.HasPrefix(line, "=") && !strings.HasPrefix(line, "#") {
		return sectionTitle{}, false
	}
	m := reAtxSectionTitle.FindStringSubmatch(line)
	if m == nil {
		return sectionTitle{}, false
	}
	st := sectionTitle{level: len(m[1]) - 1, title: m[2], atx: true}
	st.splitAnchor()
	return st, true
}

// classifySetextSectionTitle recognises a title underlined with a uniform
// line of =, -, ~, ^ or + whose length is within one of the title's.
func classifySetextSectionTitle(line, underline string) (sectionTitle, bool) {

	if len(underline) == 0 || len(line) == 0 {
		return sectionTitle{}, false
	}
	level, ok := setextLevels[underline[0]]
	if !ok || !reSetextUnderline.MatchString(underline) {
		return sectionTitle{}, false
	}
	if line[0] == '.' || line[0] == '[' || strings.HasPrefix(line, "//") || isDelimiter(line) || strings.IndexFunc(line, isWordRune) < 0 {
		return sectionTitle{}, false
	}
	diff := utf8.RuneCountInString(line) - len(underline)
	if diff < -1 || diff > 1 {
		return sectionTitle{}, false
	}

	st := sectionTitle{level: level, title: line}
	st.splitAnchor()
	return st, true
}

// splitAnchor moves a trailing [[id,reftext]] of the title into the struct.
func (st *sectionTitle) splitAnchor() {
	if !strings.HasSuffix(st.title, "]]") {
		return
	}
	loc := reInlineSectionAnchor.FindStringSubmatchIndex(st.title)
	if loc == nil || loc[2] >= 0 {
		return
	}
	st.id = st.title[loc[4]:loc[5]]
	if loc[6] >= 0 {
		st.reftext = st.title[loc[6]:loc[7]]
	}
	st.title = st.title[:loc[0]]
}

// listMarker is the start of a list item.
type listMarker struct {
	context Context
	marker  string
	text    string
	// delimiter of a description list item, like :: or ;;
	delimiter string
	// hasText is false for a description list term without text on the same line
	hasText bool
}

func classifyUnorderedListItem(line string) (listMarker, bool) {
	m := reUnorderedList.FindStringSubmatch(line)
	if m == nil {
		return listMarker{}, false
	}
	return listMarker{context: ContextUlist, marker: m[1], text: m[2], hasText: true}, true
}

func classifyOrderedListItem(line string) (listMarker, bool) {
	m := reOrderedList.FindStringSubmatch(line)
	if m == nil {
		return listMarker{}, false
	}
	return listMarker{context: ContextOlist, marker: m[1], text: m[2], hasText: true}, true
}

func classifyDescriptionListItem(line string) (listMarker, bool) {
	if !strings.Contains(line, "::") && !strings.Contains(line, ";;") {
		return listMarker{}, false
	}
	// A line comment is never a term
	if trimmed := strings.TrimLeft(line, " \t"); strings.HasPrefix(trimmed, "//") && !strings.HasPrefix(trimmed, "///") {
		return listMarker{}, false
	}
	m := reDescriptionList.FindStringSubmatch(line)
	if m == nil {
		return listMarker{}, false
	}
	return listMarker{context: ContextDlist, marker: m[1], delimiter: m[2], text: m[3], hasText: len(m[3]) > 0}, true
}

func classifyCalloutListItem(line string) (listMarker, bool) {
	if !strings.HasPrefix(line, "<") {
		return listMarker{}, false
	}
	m := reCalloutList.FindStringSubmatch(line)
	if m == nil {
		return listMarker{}, false
	}
	return listMarker{context: ContextColist, marker: m[1], text: m[2], hasText: true}, true
}

// classifyListItem tries the list kinds in the order the block parser does.
func classifyListItem(line string, contexts ...Context) (listMarker, bool) {
	if len(contexts) == 0 {
		contexts = []Context{ContextUlist, ContextOlist, ContextDlist}
	}
	for _, c := range contexts {
		var lm listMarker
		var ok bool
		switch c {
		case ContextUlist:
			lm, ok = classifyUnorderedListItem(line)
		case ContextOlist:
			lm, ok = classifyOrderedListItem(line)
		case ContextDlist:
			lm, ok = classifyDescriptionListItem(line)
		case ContextColist:
			lm, ok = classifyCalloutListItem(line)
		}
		if ok {
			return lm, true
		}
	}
	return listMarker{}, false
}

// isAnyListItem reports whether line starts an item of any kind of list.
func isAnyListItem(line string) bool {
	if reAnyListStart.MatchString(line) {
		return true
	}
	_, ok := classifyDescriptionListItem(line)
	return ok
}

// delimiter describes a delimited block opening line.
type delimiter struct {
	context Context
	// masq are the styles the block may take instead of its own
	masq []string
	// terminator is the line that closes the block
	terminator string
	fenced     bool
	// tableFormat is set for |===, ,=== :=== and !===
	tableFormat string
	comment     bool
}

var delimiters = map[string]delimiter{
	"--":   {context: ContextOpen, masq: []string{"comment", "example", "literal", "listing", "pass", "quote", "sidebar", "source", "verse", "admonition", "abstract", "partintro"}},
	"----": {context: ContextListing, masq: []string{"literal", "source"}},
	"....": {context: ContextLiteral, masq: []string{"listing", "source"}},
	"====": {context: ContextExample, masq: []string{"admonition"}},
	"****": {context: ContextSidebar},
	"____": {context: ContextQuote, masq: []string{"verse"}},
	"++++": {context: ContextPass, masq: []string{"stem", "latexmath", "asciimath"}},
	"|===": {context: ContextTable, tableFormat: "psv"},
	",===": {context: ContextTable, tableFormat: "csv"},
	":===": {context: ContextTable, tableFormat: "dsv"},
	"!===": {context: ContextTable, tableFormat: "psv"},
	"////": {context: ContextComment, comment: true},
	"```":  {context: ContextListing, masq: []string{"source"}, fenced: true},
}

// classifyDelimiter recognises the line that opens a delimited block. Four
// character delimiters may be longer as long as the tail repeats the last
// character; the closing line must then match exactly. The open block `--`
// and the fence are taken at their exact length only, the fence may carry
// a language after it.
func classifyDelimiter(line string) (delimiter, bool) {

	n := len(line)
	if n < 2 {
		return delimiter{}, false
	}

	var tip string
	switch {
	case n == 2:
		tip = line
	case strings.HasPrefix(line, "```"):
		if strings.HasPrefix(line, "````") {
			return delimiter{}, false
		}
		d := delimiters["```"]
		d.terminator = "```"
		return d, true
	case n < 4:
		return delimiter{}, false
	default:
		tip = line[:4]
	}

	d, ok := delimiters[tip]
	if !ok {
		return delimiter{}, false
	}
	if n > len(tip) {
		tail := tip[len(tip)-1]
		for i := len(tip); i < n; i++ {
			if line[i] != tail {
				return delimiter{}, false
			}
		}
	}
	d.terminator = line
	return d, true
}

// isDelimiter reports whether line opens a delimited block.
func isDelimiter(line string) bool {
	_, ok := classifyDelimiter(line)
	return ok
}

// classifyBreak recognises thematic and page breaks.
func classifyBreak(line string) (Context, bool) {
	switch {
	case len(line) < 3:
		return ContextInvalid, false
	case line == "'''" || isUniform(line, '\'') && len(line) >= 3:
		return ContextThematicBreak, true
	case isUniform(line, '<') && len(line) >= 3:
		return ContextPageBreak, true
	case line == "---" || line == "- - -" || line == "***" || line == "* * *":
		return ContextThematicBreak, true
	}
	return ContextInvalid, false
}

func isUniform(line string, c byte) bool {
	for i := 0; i < len(line); i++ {
		if line[i] != c {
			return false
		}
	}
	return len(line) > 0
}

// blockMacro is a `name::target[attrs]` line.
type blockMacro struct {
	name   string
	target string
	attrs  string
}

func classifyMediaMacro(line string) (blockMacro, bool) {
	m := reBlockMediaMacro.FindStringSubmatch(line)
	if m == nil {
		return blockMacro{}, false
	}
	return blockMacro{name: m[1], target: m[2], attrs: m[3]}, true
}

func classifyTocMacro(line string) (blockMacro, bool) {
	if !strings.HasPrefix(line, "toc::") {
		return blockMacro{}, false
	}
	m := reBlockTocMacro.FindStringSubmatch(line)
	if m == nil {
		return blockMacro{}, false
	}
	return blockMacro{name: "toc", attrs: m[1]}, true
}

func classifyCustomBlockMacro(line string) (blockMacro, bool) {
	m := reCustomBlockMacro.FindStringSubmatch(line)
	if m == nil {
		return blockMacro{}, false
	}
	return blockMacro{name: m[1], target: m[2], attrs: m[3]}, true
}

// isLiteralLine reports whether line starts with whitespace.
func isLiteralLine(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// revisionLine is the parsed second line of the header after the author.
type revisionLine struct {
	number string
	date   string
	remark string
}

// classifyRevisionLine reads `v1.0, 2024-01-01: remark`. Every part is optional.
func classifyRevisionLine(line string) revisionLine {

	var rev revisionLine

	if i := strings.Index(line, ":"); i >= 0 && (i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t') {
		rev.remark = strings.TrimSpace(line[i+1:])
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	if i := strings.IndexByte(line, ','); i >= 0 {
		rev.number = strings.TrimLeftFunc(strings.TrimSpace(line[:i]), func(r rune) bool {
			return !(r >= '0' && r <= '9') && r != '{'
		})
		rev.date = strings.TrimSpace(line[i+1:])
		return rev
	}

	if len(line) > 1 && line[0] == 'v' && line[1] >= '0' && line[1] <= '9' {
		rev.number = line[1:]
		return rev
	}
	rev.date = line
	return rev
}
