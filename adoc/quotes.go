package adoc

import (
	"strings"
	"unicode/utf8"

	"github.com/hesusruiz/adoc/attrlist"
)

type quoteKind uint8

const (
	quoteStrong quoteKind = iota
	quoteEmphasis
	quoteMonospaced
	quoteMark
	quoteSuperscript
	quoteSubscript
	quoteDouble
	quoteSingle
)

// quoteRule describes one pass of the quotes substitution.
type quoteRule struct {
	kind        quoteKind
	open, close string
	constrained bool
	// notBefore are characters, besides word characters, that cannot precede a constrained opener
	notBefore string
	// notAfter are characters, besides word characters, that cannot follow a constrained closer
	notAfter string
	// noSpace forbids whitespace inside the region
	noSpace bool
}

// quoteRules are applied in order. Unconstrained forms go before the
// constrained form of the same marker.
var quoteRules = []quoteRule{
	{kind: quoteStrong, open: "**", close: "**"},
	{kind: quoteStrong, open: "*", close: "*", constrained: true, notBefore: ";:}"},
	{kind: quoteDouble, open: "\"`", close: "`\"", constrained: true, notBefore: ";:}"},
	{kind: quoteSingle, open: "'`", close: "`'", constrained: true, notBefore: ";:`}"},
	{kind: quoteMonospaced, open: "``", close: "``"},
	{kind: quoteMonospaced, open: "`", close: "`", constrained: true, notBefore: ";:\"'`}", notAfter: "\"'`"},
	{kind: quoteEmphasis, open: "__", close: "__"},
	{kind: quoteEmphasis, open: "_", close: "_", constrained: true, notBefore: ";:}"},
	{kind: quoteMark, open: "##", close: "##"},
	{kind: quoteMark, open: "#", close: "#", constrained: true, notBefore: "&;:}"},
	{kind: quoteSuperscript, open: "^", close: "^", noSpace: true},
	{kind: quoteSubscript, open: "~", close: "~", noSpace: true},
}

// subQuotes converts quoted text to inline markup.
func (s *subber) subQuotes(text string) string {
	for _, rule := range quoteRules {
		if strings.Contains(text, rule.open) {
			text = s.applyQuoteRule(text, rule)
		}
	}
	return text
}

// applyQuoteRule replaces every region delimited by the rule's markers. An
// optional [attrlist] may precede the opener. A backslash before the opener
// (or before its attribute list) leaves the region as written.
func (s *subber) applyQuoteRule(text string, rule quoteRule) string {

	var out strings.Builder
	last := 0
	changed := false

	for i := 0; i < len(text); {
		k := strings.Index(text[i:], rule.open)
		if k < 0 {
			break
		}
		start := i + k

		attrStart, attrs := start, ""
		if start > last && text[start-1] == ']' {
			if lb := strings.LastIndexByte(text[last:start-1], '['); lb >= 0 {
				lb += last
				inner := text[lb+1 : start-1]
				if len(inner) > 0 && !strings.ContainsAny(inner, "[]") {
					attrStart, attrs = lb, inner
				}
			}
		}

		escaped := attrStart > last && text[attrStart-1] == '\\'

		if rule.constrained && !escaped && attrStart > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:attrStart])
			if isWordRune(prev) || strings.ContainsRune(rule.notBefore, prev) {
				i = start + 1
				continue
			}
		}

		contentStart := start + len(rule.open)
		end := -1
		if rule.noSpace {
			end = findNoSpaceCloser(text, contentStart, rule.close)
		} else {
			end = findCloser(text, contentStart, rule.close, rule.constrained, rule.notAfter)
		}
		if end < 0 {
			i = start + 1
			continue
		}

		changed = true
		if escaped {
			out.WriteString(text[last : attrStart-1])
			out.WriteString(text[attrStart : end+len(rule.close)])
		} else {
			out.WriteString(text[last:attrStart])
			out.WriteString(convertQuoted(rule.kind, text[contentStart:end], attrs))
		}
		last = end + len(rule.close)
		i = last
	}

	if !changed {
		return text
	}
	out.WriteString(text[last:])
	return out.String()
}

// findNoSpaceCloser finds the closer of a ^superscript^ or ~subscript~ region.
func findNoSpaceCloser(text string, from int, marker string) int {
	j := strings.Index(text[from:], marker)
	if j <= 0 {
		return -1
	}
	if strings.ContainsAny(text[from:from+j], " \t\n") {
		return -1
	}
	return from + j
}

var quoteTags = map[quoteKind]string{
	quoteStrong:      "strong",
	quoteEmphasis:    "em",
	quoteMonospaced:  "code",
	quoteMark:        "mark",
	quoteSuperscript: "sup",
	quoteSubscript:   "sub",
}

// convertQuoted renders a quoted region. For #text# an id or role turns
// the mark into a plain span.
func convertQuoted(kind quoteKind, content, attrs string) string {

	switch kind {
	case quoteDouble:
		return "&#8220;" + content + "&#8221;"
	case quoteSingle:
		return "&#8216;" + content + "&#8217;"
	}

	id, roles := parseQuotedAttributes(attrs)

	tag := quoteTags[kind]
	if kind == quoteMark && (len(id) > 0 || len(roles) > 0) {
		tag = "span"
	}

	var b strings.Builder
	b.WriteString("<" + tag)
	if len(id) > 0 {
		b.WriteString(` id="` + id + `"`)
	}
	if len(roles) > 0 {
		b.WriteString(` class="` + strings.Join(roles, " ") + `"`)
	}
	b.WriteString(">" + content + "</" + tag + ">")
	return b.String()
}

// parseQuotedAttributes reads the [#id.role] or [role] list in front of quoted text.
func parseQuotedAttributes(attrs string) (id string, roles []string) {

	attrs = strings.TrimSpace(attrs)
	if len(attrs) == 0 {
		return "", nil
	}
	if i := strings.IndexByte(attrs, ','); i >= 0 {
		attrs = attrs[:i]
	}

	if attrs[0] == '.' || attrs[0] == '#' {
		sh, ok := attrlist.ParseShorthand(attrs)
		if ok {
			return sh.ID, sh.Roles
		}
		return "", nil
	}
	return "", strings.Fields(attrs)
}
