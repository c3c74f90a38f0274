package reader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/hesusruiz/adoc/attrlist"
)

// lineRange is an inclusive range of 1-based line numbers. A negative to is unbounded.
type lineRange struct {
	from, to int
}

func (lr lineRange) contains(n int) bool {
	return n >= lr.from && (lr.to < 0 || n <= lr.to)
}

// parseLineRanges parses a lines= value like "1..5;7;10.." or "1..5,7,10..-1".
func parseLineRanges(value string) []lineRange {

	ranges := []lineRange{}

	for _, def := range SplitDelimited(value) {
		if len(def) == 0 {
			continue
		}
		if from, to, found := strings.Cut(def, ".."); found {
			f, _ := strconv.Atoi(strings.TrimSpace(from))
			t, err := strconv.Atoi(strings.TrimSpace(to))
			if len(strings.TrimSpace(to)) == 0 || err != nil || t < 0 {
				t = -1
			}
			ranges = append(ranges, lineRange{from: f, to: t})
			continue
		}
		n, err := strconv.Atoi(def)
		if err != nil {
			continue
		}
		ranges = append(ranges, lineRange{from: n, to: n})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].from < ranges[j].from })

	return ranges
}

// selectLines returns the lines whose numbers fall in any of the ranges, and
// the number of the first selected line (0 if none).
func selectLines(lines []string, ranges []lineRange) ([]string, int) {

	selected := []string{}
	offset := 0

	for i, l := range lines {
		n := i + 1
		for _, r := range ranges {
			if r.contains(n) {
				if offset == 0 {
					offset = n
				}
				selected = append(selected, l)
				break
			}
		}
	}

	return selected, offset
}

// tagFilter selects (or with include false, excludes) the region of a tag.
// The names "*" and "**" are wildcards.
type tagFilter struct {
	name    string
	include bool
}

// parseTagFilters reads the tag= or tags= attribute. Names prefixed with '!' exclude.
func parseTagFilters(attrs attrlist.Attributes) []tagFilter {

	var defs []string
	if tag, ok := attrs["tag"]; ok {
		defs = []string{strings.TrimSpace(tag)}
	} else {
		defs = SplitDelimited(attrs["tags"])
	}

	filters := []tagFilter{}
	for _, def := range defs {
		if len(def) == 0 || def == "!" {
			continue
		}
		if strings.HasPrefix(def, "!") {
			filters = append(filters, tagFilter{name: def[1:], include: false})
		} else {
			filters = append(filters, tagFilter{name: def, include: true})
		}
	}

	return filters
}

type openTag struct {
	name   string
	sel    bool
	lineno int
}

// selectTagged returns the lines inside the selected tag regions. Tag
// directive lines themselves are never included.
func (p *PreprocessingReader) selectTagged(lines []string, filters []tagFilter, incPath string, cursor Cursor) ([]string, int) {

	tags := map[string]bool{}
	order := []string{}
	for _, f := range filters {
		if _, seen := tags[f.name]; !seen {
			order = append(order, f.name)
		}
		tags[f.name] = f.include
	}

	// wildcard is nil when unset
	var wildcard *bool
	var sel, baseSelect bool

	if v, ok := tags["**"]; ok {
		delete(tags, "**")
		sel, baseSelect = v, v
		if w, ok := tags["*"]; ok {
			delete(tags, "*")
			wildcard = &w
		} else if !sel {
			for _, f := range filters {
				if f.name == "**" {
					continue
				}
				if !f.include {
					t := true
					wildcard = &t
				}
				break
			}
		}
	} else if w, ok := tags["*"]; ok {
		delete(tags, "*")
		if order[0] == "*" {
			wildcard = &w
			sel, baseSelect = !w, !w
		} else {
			wildcard = &w
			sel, baseSelect = false, false
		}
	} else {
		anyIncluded := false
		for _, v := range tags {
			if v {
				anyIncluded = true
			}
		}
		sel, baseSelect = !anyIncluded, !anyIncluded
	}

	selected := []string{}
	offset := 0
	stack := []openTag{}
	activeTag := ""
	found := map[string]bool{}

	for i, l := range lines {
		lineno := i + 1

		if strings.Contains(l, "::") && strings.Contains(l, "[]") {
			if m := reTagDirective.FindStringSubmatch(l + " "); m != nil {
				thisTag := m[2]
				if len(m[1]) > 0 {
					// End of a region
					if thisTag == activeTag {
						stack = stack[:len(stack)-1]
						if len(stack) == 0 {
							activeTag, sel = "", baseSelect
						} else {
							top := stack[len(stack)-1]
							activeTag, sel = top.name, top.sel
						}
					} else if _, ok := tags[thisTag]; ok {
						idx := -1
						for j := len(stack) - 1; j >= 0; j-- {
							if stack[j].name == thisTag {
								idx = j
								break
							}
						}
						if idx >= 0 {
							stack = append(stack[:idx], stack[idx+1:]...)
							p.log.Warnw(fmt.Sprintf("mismatched end tag (expected '%s' but found '%s') at line %d of include file: %s",
								activeTag, thisTag, lineno, incPath), "source_location", cursor.String())
						} else {
							p.log.Warnw(fmt.Sprintf("unexpected end tag '%s' at line %d of include file: %s",
								thisTag, lineno, incPath), "source_location", cursor.String())
						}
					}
					continue
				}

				if v, ok := tags[thisTag]; ok {
					sel = v
					if sel {
						found[thisTag] = true
					}
					activeTag = thisTag
					stack = append(stack, openTag{name: thisTag, sel: sel, lineno: lineno})
				} else if wildcard != nil {
					if len(activeTag) > 0 && !sel {
						sel = false
					} else {
						sel = *wildcard
					}
					activeTag = thisTag
					stack = append(stack, openTag{name: thisTag, sel: sel, lineno: lineno})
				}
				continue
			}
		}

		if sel {
			if offset == 0 {
				offset = lineno
			}
			selected = append(selected, l)
		}
	}

	for _, t := range stack {
		p.log.Warnw(fmt.Sprintf("detected unclosed tag '%s' starting at line %d of include file: %s", t.name, t.lineno, incPath),
			"source_location", cursor.String())
	}

	missing := []string{}
	for _, name := range order {
		if v, ok := tags[name]; ok && v && !found[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		plural := ""
		if len(missing) > 1 {
			plural = "s"
		}
		p.log.Warnw(fmt.Sprintf("tag%s '%s' not found in include file: %s", plural, strings.Join(missing, ", "), incPath),
			"source_location", cursor.String())
	}

	return selected, offset
}

// evalComparison applies a comparison operator to two ifeval operands.
// Operands of types that cannot be compared produce an error.
func evalComparison(lhs any, op string, rhs any) (bool, error) {

	out, err := expr.Eval("lhs "+op+" rhs", map[string]any{
		"lhs": lhs,
		"rhs": rhs,
	})
	if err != nil {
		return false, err
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("comparison %v %s %v is not boolean", lhs, op, rhs)
	}

	return result, nil
}
