package adoc

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hesusruiz/adoc/sliceedit"
)

// Placeholders for protected regions are the slot index bracketed by two
// characters that never appear in source text.
const (
	passStart = "\u0096"
	passEnd   = "\u0097"
)

var rePassSlot = regexp.MustCompile(passStart + `(\d+)` + passEnd)

// passthrough is a region of text taken out of the pipeline, with the subs
// it gets on its own.
type passthrough struct {
	text string
	subs []Sub
	// stem is asciimath or latexmath for math regions
	stem string
	// role wraps the result in a span
	role string
}

var (
	// +++text+++, $$text$$ and pass:subs[text]
	reInlinePassMacro = regexp.MustCompile(`(?s)(\\?)\+\+\+(.*?)\+\+\+|(\\?)\$\$(.*?)\$\$|(\\?)pass:([a-z]+(?:,[a-z-]+)*)?\[(|.*?[^\\])\]`)

	// stem:[x], latexmath:[x] and asciimath:[x]
	reInlineStemMacro = regexp.MustCompile(`(?s)(\\?)(stem|(?:latex|ascii)math):([a-z]+(?:,[a-z-]+)*)?\[(.*?[^\\])\]`)
)

// slot stores a passthrough and returns its placeholder.
func (s *subber) slot(p passthrough) string {
	s.passthroughs = append(s.passthroughs, p)
	return passStart + strconv.Itoa(len(s.passthroughs)-1) + passEnd
}

// protect stores already converted markup so later passes leave it alone.
func (s *subber) protect(markup string) string {
	return s.slot(passthrough{text: markup})
}

// extractPassthroughs replaces every passthrough construct with a placeholder.
func (s *subber) extractPassthroughs(text string) string {

	if strings.Contains(text, "++") || strings.Contains(text, "$$") || strings.Contains(text, "ss:") {
		text = replaceAllSubmatchFunc(reInlinePassMacro, text, func(m []string) string {
			switch {
			case len(m[0]) > 0 && strings.HasPrefix(m[0], `\`):
				return m[0][1:]
			case strings.HasSuffix(m[0], "+++") && strings.HasPrefix(m[0], "+++"):
				return s.slot(passthrough{text: m[2], subs: NoSubs})
			case strings.HasPrefix(m[0], "$$"):
				return s.slot(passthrough{text: m[4], subs: BasicSubs})
			default:
				content := strings.ReplaceAll(m[7], `\]`, "]")
				subs := NoSubs
				if len(m[6]) > 0 {
					subs = s.doc.resolveSubs(m[6], nil, true, "pass macro")
				}
				return s.slot(passthrough{text: content, subs: subs})
			}
		})
	}

	if strings.Contains(text, "+") {
		text = s.extractPlusPassthroughs(text)
	}

	if strings.Contains(text, "math:") || strings.Contains(text, "stem:") {
		text = replaceAllSubmatchFunc(reInlineStemMacro, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			kind := m[2]
			if kind == "stem" {
				kind = s.doc.stemKind()
			}
			subs := BasicSubs
			if len(m[3]) > 0 {
				subs = s.doc.resolveSubs(m[3], nil, true, "stem macro")
			}
			content := strings.ReplaceAll(m[4], `\]`, "]")
			return s.slot(passthrough{text: content, subs: subs, stem: kind})
		})
	}

	return text
}

// stemKind returns the notation selected by the stem attribute.
func (d *Document) stemKind() string {
	switch d.AttributeOr("stem", "") {
	case "latexmath", "latex", "tex":
		return "latexmath"
	}
	return "asciimath"
}

var rePassAttrs = regexp.MustCompile(`\[([^\]]+)\]$`)

// extractPlusPassthroughs handles ++text++ anywhere and +text+ between word
// boundaries. Both escape special characters only.
func (s *subber) extractPlusPassthroughs(text string) string {

	var out strings.Builder
	last := 0

	for i := 0; i < len(text); {
		k := strings.IndexByte(text[i:], '+')
		if k < 0 {
			break
		}
		start := i + k

		marker := "+"
		if strings.HasPrefix(text[start:], "++") {
			marker = "++"
		}
		constrained := marker == "+"

		// Optional attribute list in front of the marker
		attrStart, role := start, ""
		if loc := rePassAttrs.FindStringSubmatchIndex(text[last:start]); loc != nil {
			attrStart = last + loc[0]
			role = text[last+loc[2] : last+loc[3]]
		}

		escaped := attrStart > last && text[attrStart-1] == '\\'

		if constrained && !escaped && attrStart > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:attrStart])
			if isWordRune(prev) || strings.ContainsRune(";:\\", prev) {
				i = start + 1
				continue
			}
		}

		contentStart := start + len(marker)
		end := findCloser(text, contentStart, marker, constrained, "")
		if end < 0 {
			i = start + len(marker)
			continue
		}

		if escaped {
			out.WriteString(text[last : attrStart-1])
			out.WriteString(text[attrStart : end+len(marker)])
		} else {
			out.WriteString(text[last:attrStart])
			out.WriteString(s.slot(passthrough{text: text[contentStart:end], subs: BasicSubs, role: role}))
		}
		last = end + len(marker)
		i = last
	}

	if last == 0 {
		return text
	}
	out.WriteString(text[last:])
	return out.String()
}

// findCloser returns the position of the marker that closes a region opened
// right before from, or -1. Constrained regions cannot start or end with a
// space and cannot be followed by a word character or one of notAfter.
func findCloser(text string, from int, marker string, constrained bool, notAfter string) int {
	for search := from; search <= len(text); {
		j := strings.Index(text[search:], marker)
		if j < 0 {
			return -1
		}
		j += search
		content := text[from:j]
		if len(content) > 0 && validQuoted(content, constrained) {
			if !constrained || boundaryAfter(text, j+len(marker), notAfter) {
				// A doubled marker is the opener of an unconstrained region
				if !constrained || !strings.HasPrefix(text[j+len(marker):], marker[:1]) {
					return j
				}
			}
		}
		search = j + 1
	}
	return -1
}

func validQuoted(content string, constrained bool) bool {
	if !constrained {
		return true
	}
	first, _ := utf8.DecodeRuneInString(content)
	last, _ := utf8.DecodeLastRuneInString(content)
	return !unicode.IsSpace(first) && !unicode.IsSpace(last)
}

func boundaryAfter(text string, pos int, notAfter string) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !isWordRune(r) && !strings.ContainsRune(notAfter, r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// restorePassthroughs replaces placeholders with the converted regions and
// clears the side table.
func (s *subber) restorePassthroughs(text string) string {
	text = s.expandPlaceholders(text)
	s.passthroughs = nil
	return text
}

// expandPlaceholders converts the regions of the placeholders in text. A
// region whose own subs protect further regions adds them to the table, and
// the loop goes on until no placeholder is left. A region only refers to
// regions stored before it or created while converting it, so the loop ends.
func (s *subber) expandPlaceholders(text string) string {

	for round := 0; strings.Contains(text, passStart); round++ {
		if round > s.doc.opts.MaxNesting {
			s.doc.log.Warnw("passthroughs nested too deep, leaving them unconverted", "max", s.doc.opts.MaxNesting)
			break
		}
		buf := sliceedit.NewBuffer(text)
		for _, m := range rePassSlot.FindAllStringSubmatchIndex(text, -1) {
			idx, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || idx >= len(s.passthroughs) {
				buf.Replace(m[0], m[1], "")
				continue
			}
			buf.Replace(m[0], m[1], s.convertPassthrough(s.passthroughs[idx]))
		}
		text = buf.String()
	}

	return text
}

// convertPassthrough applies the region's own subs. Regions protected while
// doing so are appended to the side table, not restored here.
func (s *subber) convertPassthrough(p passthrough) string {

	text := p.text
	if len(p.subs) > 0 {
		text = s.run(text, p.subs)
	}

	switch {
	case p.stem == "latexmath":
		text = `\(` + text + `\)`
	case p.stem == "asciimath":
		text = `\$` + text + `\$`
	}

	if len(p.role) > 0 {
		text = `<span class="` + p.role + `">` + text + `</span>`
	}
	return text
}

// replaceAllSubmatchFunc is like regexp.ReplaceAllStringFunc but hands the
// submatches to repl.
func replaceAllSubmatchFunc(re *regexp.Regexp, text string, repl func(m []string) string) string {

	locs := re.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return text
	}

	var out strings.Builder
	last := 0
	for _, loc := range locs {
		m := make([]string, len(loc)/2)
		for g := range m {
			if loc[2*g] >= 0 {
				m[g] = text[loc[2*g]:loc[2*g+1]]
			}
		}
		out.WriteString(text[last:loc[0]])
		out.WriteString(repl(m))
		last = loc[1]
	}
	out.WriteString(text[last:])
	return out.String()
}
