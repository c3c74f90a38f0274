// Package attrlist parses the interior of a bracketed attribute list, like the
// one in `[source,go,linenums]` or `image::logo.png[Logo,width=200]`.
//
// Positional values get a 1-based numeric key ("1", "2", ...) and, when a name
// was supplied for that position, the named key too. Named values are written
// as key=value. Values may be unquoted, double-quoted (taken literally) or
// single-quoted (passed through the substitution function when one is given).
package attrlist

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shuLhan/share/lib/ascii"
)

// Attributes is the result of parsing an attribute list.
type Attributes map[string]string

// Get returns the value of a named or positional attribute.
func (a Attributes) Get(name string) (string, bool) {
	v, ok := a[name]
	return v, ok
}

// Has reports whether the attribute is set, even if its value is empty.
func (a Attributes) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Positional returns the value at 1-based position i.
func (a Attributes) Positional(i int) (string, bool) {
	v, ok := a[strconv.Itoa(i)]
	return v, ok
}

// HasOption reports whether the option was enabled with options=, opts= or %name.
func (a Attributes) HasOption(name string) bool {
	_, ok := a[name+"-option"]
	return ok
}

// SetOption enables an option flag.
func (a Attributes) SetOption(name string) {
	a[name+"-option"] = ""
}

// Roles returns the space separated values of the role attribute.
func (a Attributes) Roles() []string {
	return strings.Fields(a["role"])
}

// Merge copies every entry of other into a, overwriting existing keys.
func (a Attributes) Merge(other Attributes) {
	for k, v := range other {
		a[k] = v
	}
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Keys returns the attribute names sorted, for deterministic output.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options control how a list is parsed.
type Options struct {
	// Positional names, assigned in order to the unnamed values.
	Positional []string

	// Subs is applied to single-quoted values (except title and reftext).
	// When nil single-quoted values are taken literally.
	Subs func(string) string

	// Delimiter between entries. Defaults to ','.
	Delimiter byte
}

// parser is a one-shot scanner over the attribute list source.
type parser struct {
	src   string
	pos   int
	delim byte
	opts  Options
	attrs Attributes

	// foldOptions is set after an unquoted options=a, so the bare entries
	// that follow it, like b in options=a,b, are options too
	foldOptions bool
}

// Parse parses src (the text between the brackets) into an Attributes map.
// Malformed quoting never fails: the remainder of the value is taken unquoted.
func Parse(src string, opts Options) Attributes {
	attrs := Attributes{}
	ParseInto(attrs, src, opts)
	return attrs
}

// ParseInto is like Parse but writes into an existing map, so that
// attributes accumulated from earlier metadata lines are kept.
func ParseInto(attrs Attributes, src string, opts Options) {

	if len(strings.TrimSpace(src)) == 0 {
		return
	}

	p := &parser{
		src:   src,
		delim: opts.Delimiter,
		opts:  opts,
		attrs: attrs,
	}
	if p.delim == 0 {
		p.delim = ','
	}

	index := 0
	for p.parseAttribute(index) {
		if p.eos() {
			break
		}
		p.skipDelimiter()
		index++
	}

}

func (p *parser) eos() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eos() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) getByte() byte {
	if p.eos() {
		return 0
	}
	c := p.src[p.pos]
	p.pos++
	return c
}

// skipBlank skips spaces and tabs and returns how many were skipped.
func (p *parser) skipBlank() int {
	start := p.pos
	for !p.eos() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
	return p.pos - start
}

func (p *parser) skipDelimiter() {
	if p.peek() == p.delim {
		p.pos++
	}
}

// scanName reads a word starting with an alphanumeric or underscore and
// continuing with alphanumerics, underscores, hyphens or dots.
func (p *parser) scanName() string {
	start := p.pos
	if p.eos() || !(ascii.IsAlnum(p.src[p.pos]) || p.src[p.pos] == '_') {
		return ""
	}
	p.pos++
	for !p.eos() {
		c := p.src[p.pos]
		if !(ascii.IsAlnum(c) || c == '_' || c == '-' || c == '.') {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// scanToDelimiter reads until the next delimiter, not consuming it.
func (p *parser) scanToDelimiter() string {
	start := p.pos
	for !p.eos() && p.src[p.pos] != p.delim {
		p.pos++
	}
	return p.src[start:p.pos]
}

// parseAttributeValue reads a quoted value. The opening quote has already been consumed.
func (p *parser) parseAttributeValue(quote byte) string {

	// Empty quoted value
	if p.peek() == quote {
		p.pos++
		return ""
	}

	// Look for the closing quote, honouring backslash escapes
	start := p.pos
	escaped := false
	for i := p.pos; i < len(p.src); i++ {
		c := p.src[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == quote {
			value := p.src[start:i]
			p.pos = i + 1
			if strings.IndexByte(value, '\\') >= 0 {
				value = strings.ReplaceAll(value, `\`+string(quote), string(quote))
			}
			return value
		}
	}

	// Unbalanced quote: the rest up to the delimiter is taken unquoted, quote included
	return string(quote) + p.scanToDelimiter()
}

// parseAttribute parses one entry and stores it. It returns false when there
// was nothing left to parse.
func (p *parser) parseAttribute(index int) bool {

	var name, value string
	hasValue := false
	quoted := false
	singleQuoted := false

	p.skipBlank()

	switch first := p.peek(); first {
	case '"':
		p.pos++
		name = p.parseAttributeValue('"')
		quoted = true
	case '\'':
		p.pos++
		name = p.parseAttributeValue('\'')
		quoted = true
		singleQuoted = !strings.HasPrefix(name, "'")
	default:
		name = p.scanName()

		skipped := 0
		var c byte
		if p.eos() {
			if len(name) == 0 {
				return false
			}
		} else {
			skipped = p.skipBlank()
			c = p.getByte()
		}

		switch {
		case c == 0 || c == p.delim:
			// A bare value like `linenums`, the delimiter was consumed
			if c == p.delim {
				p.pos--
			}
		case c == '=' && len(name) > 0:
			// A named value like key="value", key='value' or key=value
			p.skipBlank()
			hasValue = true
			switch c = p.getByte(); c {
			case '"':
				value = p.parseAttributeValue('"')
				quoted = true
			case '\'':
				value = p.parseAttributeValue('\'')
				quoted = true
				singleQuoted = !strings.HasPrefix(value, "'")
			case p.delim:
				p.pos--
				value = ""
			case 0:
				value = ""
			default:
				value = string(c) + p.scanToDelimiter()
				if value == "None" {
					return true
				}
			}
		case len(name) > 0:
			// Several words, like `Foo bar`
			name = name + strings.Repeat(" ", skipped) + string(c) + p.scanToDelimiter()
		default:
			name = string(c) + p.scanToDelimiter()
		}
	}

	if hasValue {
		p.foldOptions = (name == "options" || name == "opts") && !quoted
		p.storeNamed(name, value, quoted, singleQuoted)
		return true
	}

	if p.foldOptions && !quoted {
		if opt := strings.TrimSpace(name); len(opt) > 0 && !strings.ContainsAny(opt, " \t") {
			p.attrs[opt+"-option"] = ""
			return true
		}
	}
	p.foldOptions = false

	if singleQuoted && p.opts.Subs != nil {
		name = p.opts.Subs(name)
	}
	name = strings.TrimRight(name, " \t")

	if len(name) > 0 {
		if index < len(p.opts.Positional) && len(p.opts.Positional[index]) > 0 {
			p.attrs[p.opts.Positional[index]] = name
		}
		p.attrs[strconv.Itoa(index+1)] = name
	}

	return true
}

// storeNamed stores name=value. Quoted values are kept as written.
func (p *parser) storeNamed(name, value string, quoted, singleQuoted bool) {
	if !quoted {
		value = strings.TrimRight(value, " \t")
	}

	switch name {
	case "options", "opts":
		// Fan out into one flag per option
		for _, opt := range strings.Split(strings.ReplaceAll(value, " ", ""), ",") {
			if len(opt) > 0 {
				p.attrs[opt+"-option"] = ""
			}
		}
	case "title", "reftext":
		p.attrs[name] = value
	default:
		if singleQuoted && p.opts.Subs != nil {
			value = p.opts.Subs(value)
		}
		p.attrs[name] = value
	}
}
