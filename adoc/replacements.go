package adoc

import (
	"regexp"
	"strconv"
	"strings"
)

type replacementKind uint8

const (
	// replaceNone replaces the whole match
	replaceNone replacementKind = iota
	// replaceLeading keeps the first group in front of the replacement
	replaceLeading
	// replaceBounding keeps the first two groups around nothing
	replaceBounding
)

type replacement struct {
	re   *regexp.Regexp
	with string
	kind replacementKind
	// lookahead is true when the last group is context that must not be consumed
	lookahead bool
}

var replacements = []replacement{
	{re: regexp.MustCompile(`\\?\(C\)`), with: "&#169;"},
	{re: regexp.MustCompile(`\\?\(R\)`), with: "&#174;"},
	{re: regexp.MustCompile(`\\?\(TM\)`), with: "&#8482;"},
	// foo -- bar
	{re: regexp.MustCompile(`(?m)(^| |\\)--( |$)`), with: "&#8201;&#8212;&#8201;"},
	// foo--bar
	{re: regexp.MustCompile(`(\w)(\\?--)(\w)`), with: "&#8212;&#8203;", kind: replaceLeading, lookahead: true},
	{re: regexp.MustCompile(`\\?\.\.\.`), with: "&#8230;&#8203;"},
	{re: regexp.MustCompile("\\\\?`'"), with: "&#8217;"},
	// apostrophe inside a word
	{re: regexp.MustCompile(`(\w)(\\?')(\w)`), with: "&#8217;", kind: replaceLeading, lookahead: true},
	{re: regexp.MustCompile(`\\?-&gt;`), with: "&#8594;"},
	{re: regexp.MustCompile(`\\?=&gt;`), with: "&#8658;"},
	{re: regexp.MustCompile(`\\?&lt;-`), with: "&#8592;"},
	{re: regexp.MustCompile(`\\?&lt;=`), with: "&#8656;"},
	// entity references written in the source survive special characters
	{re: regexp.MustCompile(`\\?(&)amp;((?:[a-zA-Z][a-zA-Z]+\d{0,2}|#\d\d\d{0,4}|#x[\da-fA-F][\da-fA-F][\da-fA-F]{0,3});)`), kind: replaceBounding},
}

// subReplacements applies the typographic replacements.
func subReplacements(text string) string {
	if !strings.ContainsAny(text, "'-.&(`") {
		return text
	}
	for _, r := range replacements {
		text = r.apply(text)
	}
	return text
}

func (r replacement) apply(text string) string {

	var out strings.Builder
	last, pos := 0, 0
	changed := false

	for pos <= len(text) {
		loc := r.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		for k := range loc {
			if loc[k] >= 0 {
				loc[k] += pos
			}
		}
		group := func(g int) string {
			if loc[2*g] < 0 {
				return ""
			}
			return text[loc[2*g]:loc[2*g+1]]
		}

		end := loc[1]
		if r.lookahead {
			// The trailing group is left for the next match
			n := len(loc)/2 - 1
			end = loc[2*n]
		}

		matched := text[loc[0]:end]
		out.WriteString(text[last:loc[0]])
		switch {
		case strings.Contains(matched, `\`):
			out.WriteString(strings.Replace(matched, `\`, "", 1))
		case r.kind == replaceLeading:
			out.WriteString(group(1) + r.with)
		case r.kind == replaceBounding:
			out.WriteString(group(1) + group(2))
		default:
			out.WriteString(r.with)
		}
		changed = true
		last = end
		pos = end
		if loc[1] == loc[0] {
			pos++
		}
	}

	if !changed {
		return text
	}
	out.WriteString(text[last:])
	return out.String()
}

// reCallout matches the callout marks at the end of a line of verbatim
// text, after special characters. Marks may sit behind a line comment.
var (
	reCalloutTail = regexp.MustCompile(`(?:(?:(?://|#|--|;;) ?)?(?:\\)?(?:<|&lt;)!?(?:--)?(?:\d+|\.)(?:--)?(?:>|&gt;) *)+$`)
	reCalloutMark = regexp.MustCompile(`(?:(?://|#|--|;;) ?)?(\\)?(?:<|&lt;)(!?(?:--)?)(\d+|\.)(?:--)?(?:>|&gt;)`)
)

// subCallouts replaces callout marks with numbered labels and assigns each
// the next id from the callout registry.
func (s *subber) subCallouts(text string) string {

	if !strings.Contains(text, "<") && !strings.Contains(text, "&lt;") {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		tail := reCalloutTail.FindStringIndex(line)
		if tail == nil {
			continue
		}
		marks := replaceAllSubmatchFunc(reCalloutMark, line[tail[0]:], func(m []string) string {
			if m[1] == `\` {
				return strings.Replace(m[0], `\`, "", 1)
			}
			num := m[3]
			if num == "." {
				s.autonum++
				num = strconv.Itoa(s.autonum)
			}
			s.doc.Callouts().ReadNextID()
			return `<b class="conum">(` + num + `)</b>`
		})
		lines[i] = line[:tail[0]] + marks
	}
	return strings.Join(lines, "\n")
}
