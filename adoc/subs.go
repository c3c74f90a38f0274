package adoc

import (
	"regexp"
	"strings"
)

// A Sub is one of the named text substitutions.
type Sub uint8

const (
	SubSpecialCharacters Sub = iota + 1
	SubQuotes
	SubAttributes
	SubReplacements
	SubMacros
	SubPostReplacements
	SubCallouts
	SubHighlight
)

var subNames = map[Sub]string{
	SubSpecialCharacters: "specialcharacters",
	SubQuotes:            "quotes",
	SubAttributes:        "attributes",
	SubReplacements:      "replacements",
	SubMacros:            "macros",
	SubPostReplacements:  "post_replacements",
	SubCallouts:          "callouts",
	SubHighlight:         "highlight",
}

func (s Sub) String() string {
	if name, ok := subNames[s]; ok {
		return name
	}
	return "invalid"
}

// Substitution sets.
var (
	NoSubs       = []Sub{}
	BasicSubs    = []Sub{SubSpecialCharacters}
	HeaderSubs   = []Sub{SubSpecialCharacters, SubAttributes}
	NormalSubs   = []Sub{SubSpecialCharacters, SubQuotes, SubAttributes, SubReplacements, SubMacros, SubPostReplacements}
	VerbatimSubs = []Sub{SubSpecialCharacters, SubCallouts}
	RefTextSubs  = []Sub{SubSpecialCharacters, SubQuotes, SubReplacements}
	TitleSubs    = []Sub{SubSpecialCharacters, SubQuotes, SubReplacements, SubMacros, SubAttributes, SubPostReplacements}
)

// compoundSubs are the names that stand for more than one substitution.
var compoundSubs = map[string][]Sub{
	"none":     NoSubs,
	"normal":   NormalSubs,
	"verbatim": VerbatimSubs,
	"specialchars": {
		SubSpecialCharacters,
	},
}

// shortSubs are the one letter aliases used in pass:[] macros.
var shortSubs = map[string]string{
	"a": "attributes",
	"m": "macros",
	"n": "normal",
	"p": "post_replacements",
	"q": "quotes",
	"r": "replacements",
	"c": "specialcharacters",
	"v": "verbatim",
}

var reSubModifier = regexp.MustCompile(`[+-]`)

func subByName(name string) (Sub, bool) {
	for s, n := range subNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

func containsSub(subs []Sub, s Sub) bool {
	for _, x := range subs {
		if x == s {
			return true
		}
	}
	return false
}

func removeSubs(subs []Sub, remove []Sub) []Sub {
	out := make([]Sub, 0, len(subs))
	for _, s := range subs {
		if !containsSub(remove, s) {
			out = append(out, s)
		}
	}
	return out
}

// resolveSubs turns a comma separated list of substitution names into a list
// of subs. Entries with a modifier (`+quotes`, `-macros`, `quotes+`) edit
// defaults; plain entries replace them. inline restricts verbatim to
// special characters, as used by the pass:[] macro.
func (d *Document) resolveSubs(spec string, defaults []Sub, inline bool, subject string) []Sub {

	spec = strings.TrimSpace(spec)
	if len(spec) == 0 {
		return nil
	}

	modifiers := reSubModifier.MatchString(spec)

	var candidates []Sub
	started := false

	for _, key := range strings.Split(spec, ",") {
		key = strings.TrimSpace(key)

		op := byte(0)
		if modifiers && len(key) > 0 {
			switch {
			case key[0] == '+':
				op, key = 'a', key[1:]
			case key[0] == '-':
				op, key = 'r', key[1:]
			case key[len(key)-1] == '+':
				op, key = 'p', key[:len(key)-1]
			}
		}
		key = strings.TrimSpace(key)

		var resolved []Sub
		if long, ok := shortSubs[key]; ok && inline {
			key = long
		}
		switch {
		case inline && (key == "verbatim" || key == "v"):
			resolved = BasicSubs
		case compoundSubs[key] != nil:
			resolved = compoundSubs[key]
		default:
			if long, ok := shortSubs[key]; ok {
				key = long
			}
			if s, ok := subByName(key); ok {
				resolved = []Sub{s}
			} else if c, ok := compoundSubs[key]; ok {
				resolved = c
			} else {
				d.log.Warnw("invalid substitution type", "sub", key, "subject", subject)
				continue
			}
		}

		if op != 0 {
			if !started {
				candidates = append([]Sub(nil), defaults...)
				started = true
			}
			switch op {
			case 'a':
				candidates = append(candidates, resolved...)
			case 'p':
				candidates = append(append([]Sub(nil), resolved...), candidates...)
			case 'r':
				candidates = removeSubs(candidates, resolved)
			}
		} else {
			started = true
			candidates = append(candidates, resolved...)
		}
	}

	// Keep the first occurrence of each
	var out []Sub
	for _, s := range candidates {
		if !containsSub(out, s) {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []Sub{}
	}
	return out
}

// LockSubs decides the substitutions of the block from its content model,
// context and `subs` attribute. It is run once, when the block is complete;
// later calls are no-ops.
func (b *Block) LockSubs() {

	if b.subsLocked {
		return
	}
	b.subsLocked = true

	var defaults []Sub
	switch b.ContentModel {
	case ContentSimple:
		defaults = NormalSubs
	case ContentVerbatim:
		if b.Context == ContextVerse {
			defaults = NormalSubs
		} else {
			defaults = VerbatimSubs
		}
	case ContentRaw:
		if b.Context == ContextStem {
			defaults = BasicSubs
		} else {
			defaults = NoSubs
		}
	default:
		return
	}

	if custom, ok := b.Attributes["subs"]; ok {
		b.subs = b.doc.resolveSubs(custom, defaults, false, b.Context.String()+" block")
	} else {
		b.subs = append([]Sub(nil), defaults...)
	}

	// Source blocks with a highlighter get highlight in place of special characters
	if b.Context == ContextListing && b.Style == "source" && b.doc.opts.Highlighter != nil && len(b.Attributes["language"]) > 0 {
		for i, s := range b.subs {
			if s == SubSpecialCharacters {
				b.subs[i] = SubHighlight
			}
		}
	}
}

// SetSubs replaces the locked substitutions of the block.
func (b *Block) SetSubs(subs []Sub) {
	b.subs = append([]Sub(nil), subs...)
	b.subsLocked = true
}

// ApplySubs applies subs to text in the given order, protecting passthroughs
// first when macros are among them.
func (d *Document) ApplySubs(text string, subs []Sub) string {
	return d.applySubsForBlock(nil, text, subs)
}

// ApplyNormalSubs is ApplySubs with the normal set.
func (d *Document) ApplyNormalSubs(text string) string {
	return d.ApplySubs(text, NormalSubs)
}

// applySubsForBlock runs the pipeline for the content of block, which may
// be nil for titles and free text.
func (d *Document) applySubsForBlock(block *Block, text string, subs []Sub) string {

	if len(text) == 0 || len(subs) == 0 {
		return text
	}

	s := &subber{doc: d, block: block}
	text = s.run(text, subs)
	if len(s.passthroughs) > 0 {
		text = s.restorePassthroughs(text)
	}
	return text
}

// subber holds the state of one application of the pipeline.
type subber struct {
	doc   *Document
	block *Block

	// passthroughs is the side table of protected regions
	passthroughs []passthrough

	// autonum numbers <.> callouts
	autonum int
}

// run applies subs without restoring passthroughs.
func (s *subber) run(text string, subs []Sub) string {

	if containsSub(subs, SubMacros) {
		text = s.extractPassthroughs(text)
	}

	for _, sub := range subs {
		switch sub {
		case SubSpecialCharacters:
			text = subSpecialChars(text)
		case SubQuotes:
			text = s.subQuotes(text)
		case SubAttributes:
			if strings.Contains(text, "{") {
				text, _ = s.doc.subAttributes(text, "")
			}
		case SubReplacements:
			text = subReplacements(text)
		case SubMacros:
			text = s.subMacros(text)
		case SubHighlight:
			text = s.highlight(text)
		case SubCallouts:
			text = s.subCallouts(text)
		case SubPostReplacements:
			text = s.subPostReplacements(text)
		}
	}

	return text
}

var specialCharsReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// subSpecialChars escapes &, < and >.
func subSpecialChars(text string) string {
	if !strings.ContainsAny(text, "&<>") {
		return text
	}
	return specialCharsReplacer.Replace(text)
}

// highlight runs the highlighter over the block source, falling back to
// escaping when it fails.
func (s *subber) highlight(text string) string {
	h := s.doc.opts.Highlighter
	if h == nil || s.block == nil {
		return subSpecialChars(text)
	}
	lang := s.block.Attributes["language"]
	out, err := h.Highlight(text, lang, s.doc.AttributeOr("code-style", s.doc.opts.CodeStyle))
	if err != nil {
		s.doc.warn(s.block.Location, "highlighting failed", "language", lang, "error", err)
		return subSpecialChars(text)
	}
	return out
}

var reHardBreak = regexp.MustCompile(`(?m)^(.*) \+$`)

// subPostReplacements turns a trailing ` +` into a line break, or breaks
// every line when hardbreaks is set.
func (s *subber) subPostReplacements(text string) string {

	hardbreaks := s.doc.HasAttribute("hardbreaks") || s.doc.HasAttribute("hardbreaks-option")
	if s.block != nil && s.block.HasOption("hardbreaks") {
		hardbreaks = true
	}

	if hardbreaks {
		lines := strings.Split(text, "\n")
		for i := 0; i < len(lines)-1; i++ {
			lines[i] = strings.TrimSuffix(lines[i], " +") + "<br>"
		}
		return strings.Join(lines, "\n")
	}

	if !strings.Contains(text, " +") {
		return text
	}
	return reHardBreak.ReplaceAllString(text, "$1<br>")
}
