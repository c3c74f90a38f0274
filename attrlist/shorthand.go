package attrlist

import "strings"

// Shorthand holds the parts of a first positional value written in the
// style#id.role%option form.
type Shorthand struct {
	Style   string
	ID      string
	Roles   []string
	Options []string
}

// ParseShorthand splits a value like `source#main.lead%linenums` into its
// parts. Empty segments (like a lone `#`) are reported as invalid.
func ParseShorthand(raw string) (sh Shorthand, ok bool) {

	ok = true

	var kind byte // 0 for style, or one of '#', '.', '%'
	var acc strings.Builder

	flush := func() {
		value := acc.String()
		acc.Reset()
		switch kind {
		case 0:
			sh.Style = value
		case '#':
			if len(value) == 0 {
				ok = false
				return
			}
			sh.ID = value
		case '.':
			if len(value) == 0 {
				ok = false
				return
			}
			sh.Roles = append(sh.Roles, value)
		case '%':
			if len(value) == 0 {
				ok = false
				return
			}
			sh.Options = append(sh.Options, value)
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '#' || c == '.' || c == '%' {
			flush()
			kind = c
			continue
		}
		acc.WriteByte(c)
	}
	flush()

	return sh, ok
}

// ApplyShorthand expands the first positional value of attrs into the
// style, id, role and option entries. It returns false if the shorthand
// had an empty segment. Values containing spaces are not shorthand.
func ApplyShorthand(attrs Attributes) bool {

	raw, found := attrs["1"]
	if !found {
		return true
	}

	if strings.ContainsAny(raw, " \t") || !strings.ContainsAny(raw, "#.%") {
		attrs["style"] = raw
		return true
	}

	sh, ok := ParseShorthand(raw)

	if len(sh.Style) > 0 {
		attrs["style"] = sh.Style
	}
	if len(sh.ID) > 0 {
		attrs["id"] = sh.ID
	}
	if len(sh.Roles) > 0 {
		roles := strings.Join(sh.Roles, " ")
		if existing := attrs["role"]; len(existing) > 0 {
			roles = existing + " " + roles
		}
		attrs["role"] = roles
	}
	for _, opt := range sh.Options {
		attrs.SetOption(opt)
	}

	return ok
}
