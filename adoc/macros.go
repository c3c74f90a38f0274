package adoc

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/hesusruiz/adoc/attrlist"
)

var (
	reKbdMacro  = regexp.MustCompile(`(\\)?kbd:\[((?:[^\]\\]|\\.)+?)\]`)
	reBtnMacro  = regexp.MustCompile(`(\\)?btn:\[((?:[^\]\\]|\\.)+?)\]`)
	reMenuMacro = regexp.MustCompile(`(\\)?menu:(\w|\w.*?\S)\[ *((?:[^\]\\]|\\.)*?)\]`)

	reImageMacro = regexp.MustCompile(`(\\)?(image|icon):([^:\s\[](?:[^\n\[]*[^\s\[])?)\[(|.*?[^\\])\]`)

	reIndexTerm = regexp.MustCompile(`(\\)?(?:(indexterm2?):\[(.*?[^\\])\]|\(\(\((.+?)\)\)\)|\(\((.+?)\)\))`)

	reURL = regexp.MustCompile(`(?s)(^|link:|[ \t\n]|&lt;|[>\(\)\[\];"'])(\\?(?:https?|file|ftp|irc)://)(?:([^\s\[\]]+)\[(|.*?[^\\])\]|([^\s\[\]<]*[^\s,.?!\[\]<\)]))`)

	reLinkMacro = regexp.MustCompile(`(?s)(\\)?(?:link|(mailto)):(|[^:\s\[][^\s\[]*)\[(|.*?[^\\])\]`)

	reEmail = regexp.MustCompile(`([\\>:/])?(\w[\w.%+-]*@[[:alnum:]][[:alnum:]_.-]*\.[[:alpha:]]{2,4})\b`)

	reFootnote = regexp.MustCompile(`(?s)(\\)?footnote(?:(ref):|:([\w-]+)?)\[(|.*?[^\\])\]`)

	reXref = regexp.MustCompile(`(?s)(\\)?(?:&lt;&lt;([\w":#/.-].*?)&gt;&gt;|xref:([\w":#/.-].*?)\[(|.*?[^\\])\])`)

	reInlineAnchor = regexp.MustCompile(`(\\)?(?:\[\[([\pL_:][\w:.-]*)(?:, *(.+?))?\]\]|anchor:([\pL_:][\w:.-]*)\[(|.*?[^\\])\])`)
)

// subMacros expands the inline macros. Every expansion is protected from the
// passes that follow, so generated markup is never matched again.
func (s *subber) subMacros(text string) string {

	d := s.doc
	found := func(needle string) bool { return strings.Contains(text, needle) }

	if found("kbd:") {
		text = replaceAllSubmatchFunc(reKbdMacro, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			return s.protect(convertKbd(m[2]))
		})
	}

	if found("btn:") {
		text = replaceAllSubmatchFunc(reBtnMacro, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			return s.protect(`<b class="button">` + unescapeBracket(m[2]) + `</b>`)
		})
	}

	if found("menu:") {
		text = replaceAllSubmatchFunc(reMenuMacro, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			items := []string{m[2]}
			if len(strings.TrimSpace(m[3])) > 0 {
				for _, item := range strings.Split(unescapeBracket(m[3]), ">") {
					items = append(items, strings.TrimSpace(item))
				}
			}
			return s.protect(`<span class="menuseq">` + strings.Join(items, " &#8250; ") + `</span>`)
		})
	}

	if d.extensions != nil {
		for _, e := range d.extensions.inlineMacros {
			if !found(e.name + ":") {
				continue
			}
			e := e
			text = replaceAllSubmatchFunc(e.re, text, func(m []string) string {
				if strings.HasPrefix(m[0], `\`) {
					return m[0][1:]
				}
				attrs := attrlist.Parse(unescapeBracket(m[2]), attrlist.Options{Positional: []string{"text"}})
				out, err := e.processor.Process(s.parent(), m[1], attrs)
				if err != nil {
					d.log.Errorw("inline macro failed", "macro", e.name, "target", m[1], "error", err)
					return m[0]
				}
				return s.protect(out)
			})
		}
	}

	if found("image:") || found("icon:") {
		text = replaceAllSubmatchFunc(reImageMacro, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			return s.protect(s.convertInlineImage(m[2], m[3], m[4]))
		})
	}

	if found("((") || found("indexterm") {
		text = replaceAllSubmatchFunc(reIndexTerm, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			switch {
			case m[2] == "indexterm":
				d.catalog.IndexTerms = append(d.catalog.IndexTerms, splitTerms(m[3]))
				return ""
			case m[2] == "indexterm2":
				term := unescapeBracket(m[3])
				d.catalog.IndexTerms = append(d.catalog.IndexTerms, []string{term})
				return term
			case len(m[4]) > 0:
				d.catalog.IndexTerms = append(d.catalog.IndexTerms, splitTerms(m[4]))
				return ""
			default:
				d.catalog.IndexTerms = append(d.catalog.IndexTerms, []string{m[5]})
				return m[5]
			}
		})
	}

	if found("://") {
		text = replaceAllSubmatchFunc(reURL, text, func(m []string) string {
			return s.convertURL(m)
		})
	}

	if found("link:") || found("mailto:") {
		text = replaceAllSubmatchFunc(reLinkMacro, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			target := m[3]
			if len(m[2]) > 0 {
				target = "mailto:" + target
			}
			return s.protect(s.convertLink(target, m[4], len(m[2]) > 0))
		})
	}

	if found("@") {
		text = replaceAllSubmatchFunc(reEmail, text, func(m []string) string {
			switch m[1] {
			case `\`:
				return m[2]
			case "":
			default:
				return m[0]
			}
			d.catalog.addLink("mailto:" + m[2])
			return s.protect(`<a href="mailto:` + m[2] + `">` + m[2] + `</a>`)
		})
	}

	if found("footnote") {
		text = replaceAllSubmatchFunc(reFootnote, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			return s.convertFootnote(m)
		})
	}

	if found("&lt;&lt;") || found("xref:") {
		text = replaceAllSubmatchFunc(reXref, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			return s.protect(s.convertXref(m))
		})
	}

	if found("[[") || found("anchor:") {
		text = replaceAllSubmatchFunc(reInlineAnchor, text, func(m []string) string {
			if m[1] == `\` {
				return m[0][1:]
			}
			id := m[2]
			if len(id) == 0 {
				id = m[4]
			}
			return s.protect(`<a id="` + id + `"></a>`)
		})
	}

	return text
}

// parent is the block handed to inline macro processors.
func (s *subber) parent() *Block {
	if s.block != nil {
		return s.block
	}
	return s.doc.root
}

func unescapeBracket(text string) string {
	return strings.ReplaceAll(text, `\]`, "]")
}

func splitTerms(text string) []string {
	var terms []string
	for _, t := range strings.Split(unescapeBracket(text), ",") {
		if t = strings.TrimSpace(t); len(t) > 0 {
			terms = append(terms, t)
		}
	}
	return terms
}

// convertKbd renders a key combination like Ctrl+Shift+T.
func convertKbd(keys string) string {

	keys = unescapeBracket(strings.TrimSpace(keys))

	var list []string
	delim := "+"
	if strings.Contains(keys, ",") && !strings.HasSuffix(keys, ",") {
		delim = ","
	}
	if keys == "+" || keys == "," {
		list = []string{keys}
	} else {
		trailing := strings.HasSuffix(keys, delim+delim)
		if trailing {
			keys = keys[:len(keys)-2]
		}
		for _, k := range strings.Split(keys, delim) {
			list = append(list, strings.TrimSpace(k))
		}
		if trailing {
			list = append(list, delim)
		}
	}

	if len(list) == 1 {
		return "<kbd>" + list[0] + "</kbd>"
	}
	parts := make([]string, len(list))
	for i, k := range list {
		parts[i] = "<kbd>" + k + "</kbd>"
	}
	return `<span class="keyseq">` + strings.Join(parts, "+") + `</span>`
}

func (s *subber) convertInlineImage(kind, target, rawAttrs string) string {

	attrs := attrlist.Parse(unescapeBracket(rawAttrs), attrlist.Options{Positional: []string{"alt", "width", "height"}})

	if kind == "icon" {
		return `<span class="icon">[` + target + `&#93;</span>`
	}

	s.doc.catalog.addImage(target)

	alt, ok := attrs["alt"]
	if !ok || len(alt) == 0 {
		alt = defaultAlt(target)
	}

	var b strings.Builder
	b.WriteString(`<img src="` + target + `" alt="` + alt + `"`)
	for _, name := range []string{"width", "height"} {
		if v, ok := attrs[name]; ok && len(v) > 0 {
			b.WriteString(" " + name + `="` + v + `"`)
		}
	}
	b.WriteString(">")
	return b.String()
}

// defaultAlt derives the alt text of an image from its file name.
func defaultAlt(target string) string {
	base := path.Base(target)
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

// convertURL renders a bare URL or a URL with link text.
func (s *subber) convertURL(m []string) string {

	prefix, scheme := m[1], m[2]
	if strings.HasPrefix(scheme, `\`) {
		return prefix + m[0][len(prefix)+1:]
	}

	suffix := ""
	var target, text string
	bare := false
	if len(m[3]) > 0 {
		target = scheme + m[3]
		text = m[4]
	} else {
		target = scheme + m[5]
		bare = true
	}

	switch prefix {
	case "link:":
		prefix = ""
	case "&lt;":
		if strings.HasSuffix(target, "&gt;") {
			prefix = ""
			target = strings.TrimSuffix(target, "&gt;")
		}
	}

	// A trailing closing parenthesis belongs to the text when the prefix opened one
	if bare && prefix == "(" && strings.HasSuffix(target, ")") {
		target = strings.TrimSuffix(target, ")")
		suffix = ")"
	}

	return prefix + s.protect(s.convertLink(target, text, false)) + suffix
}

// convertLink renders a link. The text may carry attributes after a comma
// when any of them is named; a trailing ^ opens a new window.
func (s *subber) convertLink(target, text string, mailto bool) string {

	text = unescapeBracket(text)

	window := ""
	if strings.Contains(text, "=") {
		attrs := attrlist.Parse(text, attrlist.Options{Positional: []string{"text"}})
		text = attrs["text"]
		window = attrs["window"]
	}
	if strings.HasSuffix(text, "^") {
		text = strings.TrimSuffix(text, "^")
		window = "_blank"
	}

	class := ""
	if len(text) == 0 {
		text = strings.TrimPrefix(target, "mailto:")
		if !mailto {
			class = ` class="bare"`
		}
	}

	s.doc.catalog.addLink(target)

	out := `<a href="` + target + `"` + class
	if len(window) > 0 {
		out += ` target="` + window + `"`
	}
	return out + ">" + text + "</a>"
}

// convertFootnote registers a footnote, or refers to one by id, and renders
// its number.
func (s *subber) convertFootnote(m []string) string {

	d := s.doc
	id, text := m[3], m[4]
	if m[2] == "ref" {
		// footnoteref:[id,text]
		parts := strings.SplitN(m[4], ",", 2)
		id, text = parts[0], ""
		if len(parts) > 1 {
			text = parts[1]
		}
	}

	if len(id) > 0 {
		if fn, ok := d.footnoteByID(id); ok {
			return s.protect(`<sup class="footnote">[` + strconv.Itoa(fn.Index) + `]</sup>`)
		}
		if len(text) == 0 {
			d.log.Warnw("invalid footnote reference", "id", id)
			return s.protect(`<sup class="footnoteref">[` + id + `]</sup>`)
		}
	}

	if len(text) == 0 {
		return m[0]
	}

	text = s.expandPlaceholders(s.subMacros(unescapeBracket(strings.TrimSpace(text))))
	index, _ := strconv.Atoi(d.Counter("footnote-number", ""))
	fn := d.registerFootnote(index, id, text)
	return s.protect(`<sup class="footnote">[` + strconv.Itoa(fn.Index) + `]</sup>`)
}

// convertXref renders a cross reference. The text comes from the macro, the
// reftext of the target, or its title.
func (s *subber) convertXref(m []string) string {

	d := s.doc

	var id, text string
	if len(m[2]) > 0 {
		id = m[2]
		if i := strings.IndexByte(id, ','); i >= 0 {
			id, text = strings.TrimSpace(id[:i]), strings.TrimSpace(id[i+1:])
		}
	} else {
		id, text = m[3], unescapeBracket(m[4])
	}
	id = strings.Trim(id, `"`)

	href := "#" + id
	if i := strings.IndexByte(id, '#'); i >= 0 {
		doc, fragment := id[:i], id[i+1:]
		switch {
		case len(doc) == 0:
			id, href = fragment, "#"+fragment
		default:
			doc = strings.TrimSuffix(doc, path.Ext(doc))
			href = doc + ".html"
			if len(fragment) > 0 {
				href += "#" + fragment
			}
			id = ""
		}
	} else if ext := path.Ext(id); ext == ".adoc" {
		href = strings.TrimSuffix(id, ext) + ".html"
		id = ""
	}

	if len(text) == 0 && len(id) > 0 {
		if ref, ok := d.Ref(id); ok {
			switch {
			case len(ref.Reftext) > 0:
				text = d.ApplySubs(ref.Reftext, RefTextSubs)
			case ref.Block != nil && ref.Block.HasTitle():
				text = ref.Block.Title()
			}
		} else {
			d.log.Infow("possible invalid reference", "id", id)
		}
	}
	if len(text) == 0 {
		text = "[" + id + "]"
	}

	return `<a href="` + href + `">` + text + `</a>`
}
