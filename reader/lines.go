package reader

import (
	"strings"
)

const bom = "\ufeff"

// PrepareLines splits data into lines, dropping a leading byte order mark
// and trailing whitespace on every line. A trailing newline does not produce
// an extra empty line. When indent is not negative the block indentation is
// adjusted to it, see AdjustIndentation.
func PrepareLines(data string, indent int) []string {

	data = strings.TrimPrefix(data, bom)
	if len(data) == 0 {
		return []string{}
	}

	data = strings.TrimSuffix(data, "\n")
	lines := strings.Split(data, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}

	if indent >= 0 {
		AdjustIndentation(lines, indent, 0)
	}

	return lines
}

// AdjustIndentation strips the common leading indentation of lines and then
// indents every non-blank line by indent spaces. Tabs are expanded first
// when tabSize is positive. A negative indent only expands tabs.
func AdjustIndentation(lines []string, indent int, tabSize int) {

	if len(lines) == 0 {
		return
	}

	if tabSize > 0 {
		for i, l := range lines {
			if strings.IndexByte(l, '\t') >= 0 {
				lines[i] = expandTabs(l, tabSize)
			}
		}
	}

	if indent < 0 {
		return
	}

	// Find the minimum indentation of non-blank lines
	blockIndent := -1
	for _, l := range lines {
		if len(l) == 0 {
			continue
		}
		lineIndent := len(l) - len(strings.TrimLeft(l, " \t"))
		if lineIndent == 0 {
			blockIndent = -1
			break
		}
		if blockIndent < 0 || lineIndent < blockIndent {
			blockIndent = lineIndent
		}
	}

	pad := strings.Repeat(" ", indent)
	for i, l := range lines {
		if len(l) == 0 {
			continue
		}
		if blockIndent > 0 {
			l = l[blockIndent:]
		}
		lines[i] = pad + l
	}
}

func expandTabs(line string, tabSize int) string {
	var sb strings.Builder
	col := 0
	for _, c := range line {
		if c == '\t' {
			n := tabSize - col%tabSize
			sb.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		sb.WriteRune(c)
		col++
	}
	return sb.String()
}

// SplitDelimited splits a value on commas, or on semicolons when there is no comma.
func SplitDelimited(value string) []string {
	sep := ";"
	if strings.Contains(value, ",") {
		sep = ","
	}
	parts := strings.Split(value, sep)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
