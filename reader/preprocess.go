package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/safe"
)

// DefaultMaxIncludeDepth bounds the include stack when no limit is configured.
const DefaultMaxIncludeDepth = 64

// Env is what the preprocessor needs from the document being parsed.
type Env interface {
	// HasAttribute reports whether a document attribute is defined.
	HasAttribute(name string) bool

	// Attribute returns the value of a document attribute.
	Attribute(name string) (string, bool)

	// SubAttributes replaces attribute references in text, applying the
	// given missing-attribute policy (empty means the document policy).
	// It returns false if the policy dropped the line.
	SubAttributes(text string, missing string) (string, bool)

	// RegisterInclude records the name of an included file.
	RegisterInclude(name string)
}

// Config holds the settings of a PreprocessingReader.
type Config struct {
	// SafeMode gates include directives. From safe.Secure up they become links.
	SafeMode safe.Mode

	// BaseDir is the jail for include paths when SafeMode is not Unsafe.
	BaseDir string

	// MaxIncludeDepth bounds nested includes. Zero means DefaultMaxIncludeDepth,
	// negative disables includes.
	MaxIncludeDepth int

	Env Env
	Log *zap.SugaredLogger
}

var (
	reConditionalDirective = regexp.MustCompile(`^(\\)?(ifdef|ifndef|ifeval|endif)::(\S*?(?:([,+])\S*?)?)\[(.+)?\]$`)
	reIncludeDirective     = regexp.MustCompile(`^(\\)?include::([^\s\[](?:[^\[]*[^\s\[])?)\[(.+)?\]$`)
	reEvalExpression       = regexp.MustCompile(`^(.+?) *([=!><]=|[><]) *(.+)$`)
	reTagDirective         = regexp.MustCompile(`\b(?:tag|(e)nd)::(\S+?)\[\](?:$|[ \r])`)
	reURI                  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9.+-]+://`)
)

// asciidocExtensions are the file extensions whose included lines are preprocessed.
var asciidocExtensions = map[string]bool{
	".adoc":     true,
	".asciidoc": true,
	".asc":      true,
	".ad":       true,
	".txt":      true,
}

type conditionalFrame struct {
	target   string
	skip     bool
	skipping bool
	cursor   Cursor
}

type depthLimit struct {
	abs int
	rel int
}

type includeFrame struct {
	lines        []string
	file         string
	dir          string
	path         string
	lineno       int
	maxDepth     depthLimit
	processLines bool
}

// PreprocessingReader is a Reader that expands include directives and
// evaluates conditional directives as lines are peeked.
type PreprocessingReader struct {
	*Reader

	cfg Config

	conditionals []conditionalFrame
	skipping     bool

	includes []includeFrame
	maxDepth depthLimit

	// err is a fatal error. Once set, no more lines are returned.
	err error
}

// NewPreprocessingReader creates a preprocessing reader over lines.
func NewPreprocessingReader(lines []string, cursor Cursor, cfg Config) *PreprocessingReader {

	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	depth := cfg.MaxIncludeDepth
	if depth == 0 {
		depth = DefaultMaxIncludeDepth
	}
	if depth < 0 {
		depth = 0
	}

	p := &PreprocessingReader{
		Reader:   NewReader(lines, cursor, cfg.Log),
		cfg:      cfg,
		maxDepth: depthLimit{abs: depth, rel: depth},
	}
	p.Reader.hook = p

	return p
}

// Err returns the fatal error that stopped reading, if any.
func (p *PreprocessingReader) Err() error {
	return p.err
}

// IncludeDepth is the number of includes currently open.
func (p *PreprocessingReader) IncludeDepth() int {
	return len(p.includes)
}

func (p *PreprocessingReader) fail(err error) {
	p.err = err
	p.includes = nil
	p.Reader.Terminate()
}

func (p *PreprocessingReader) exhausted() bool {

	if p.err != nil {
		return false
	}

	if len(p.includes) > 0 {
		p.popInclude()
		return true
	}

	// Report conditionals left open at the end of the document
	for _, f := range p.conditionals {
		p.log.Errorw(fmt.Sprintf("detected unterminated preprocessor conditional directive: %s", f.target),
			"source_location", f.cursor.String())
	}
	p.conditionals = nil
	p.skipping = false

	return false
}

func (p *PreprocessingReader) processLine(line string) (string, bool) {

	r := p.Reader

	if len(line) == 0 {
		if p.skipping {
			r.shift()
			return "", false
		}
		r.lookAhead++
		return line, true
	}

	if strings.HasSuffix(line, "]") && !strings.HasPrefix(line, "[") && strings.Contains(line, "::") {

		if strings.Contains(line, "if") {
			if m := reConditionalDirective.FindStringSubmatch(line); m != nil {
				if m[1] == `\` {
					r.unescapeNextLine = true
					r.lookAhead++
					return line[1:], true
				}
				p.preprocessConditional(m[2], m[3], m[4], m[5])
				return "", false
			}
		}

		if p.skipping {
			r.shift()
			return "", false
		}

		if strings.HasPrefix(line, "include::") || strings.HasPrefix(line, `\include::`) {
			if m := reIncludeDirective.FindStringSubmatch(line); m != nil {
				if m[1] == `\` {
					r.unescapeNextLine = true
					r.lookAhead++
					return line[1:], true
				}
				if p.preprocessInclude(m[2], m[3]) {
					// The buffer changed, peek again
					return "", false
				}
				// Left unexpanded
				r.lookAhead++
				return line, true
			}
		}

		r.lookAhead++
		return line, true
	}

	if p.skipping {
		r.shift()
		return "", false
	}

	r.lookAhead++
	return line, true
}

// preprocessConditional handles an ifdef, ifndef, ifeval or endif line, which
// is always consumed.
func (p *PreprocessingReader) preprocessConditional(keyword, target, delimiter, text string) {

	r := p.Reader
	cursor := r.Cursor()

	// Attribute names are case insensitive
	target = strings.ToLower(target)
	noTarget := len(target) == 0
	hasText := len(text) > 0

	// The directive line itself is always dropped
	r.shift()

	if keyword == "endif" {
		switch {
		case hasText:
			p.log.Errorw(fmt.Sprintf("malformed preprocessor directive - text not permitted: endif::%s[%s]", target, text),
				"source_location", cursor.String())
		case len(p.conditionals) == 0:
			p.log.Errorw(fmt.Sprintf("unmatched preprocessor directive: endif::%s[]", target),
				"source_location", cursor.String())
		case noTarget || target == p.conditionals[len(p.conditionals)-1].target:
			p.conditionals = p.conditionals[:len(p.conditionals)-1]
			if len(p.conditionals) == 0 {
				p.skipping = false
			} else {
				p.skipping = p.conditionals[len(p.conditionals)-1].skipping
			}
		default:
			p.log.Errorw(fmt.Sprintf("mismatched preprocessor directive: endif::%s[], expected endif::%s[]",
				target, p.conditionals[len(p.conditionals)-1].target),
				"source_location", cursor.String())
		}
		return
	}

	skip := false

	if !p.skipping {
		switch keyword {
		case "ifdef", "ifndef":
			if noTarget {
				p.log.Errorw(fmt.Sprintf("malformed preprocessor directive - missing target: %s::[%s]", keyword, text),
					"source_location", cursor.String())
				return
			}
			defined := p.evalDefined(target, delimiter)
			if keyword == "ifdef" {
				skip = !defined
			} else {
				skip = defined
			}
		case "ifeval":
			if !noTarget {
				p.log.Errorw(fmt.Sprintf("malformed preprocessor directive - target not permitted: ifeval::%s[%s]", target, text),
					"source_location", cursor.String())
				return
			}
			m := reEvalExpression.FindStringSubmatch(strings.TrimSpace(text))
			if !hasText || m == nil {
				p.log.Errorw(fmt.Sprintf("malformed preprocessor directive - invalid expression: ifeval::[%s]", text),
					"source_location", cursor.String())
				return
			}
			ok, err := evalComparison(p.resolveExprValue(m[1]), m[2], p.resolveExprValue(m[3]))
			if err != nil {
				p.log.Warnw(fmt.Sprintf("ifeval comparison failed, skipping its content: ifeval::[%s]", text),
					"source_location", cursor.String(), "error", err)
			}
			skip = err != nil || !ok
		}
	}

	if keyword == "ifeval" || !hasText {
		// Block form, skipping until the matching endif
		if skip {
			p.skipping = true
		}
		p.conditionals = append(p.conditionals, conditionalFrame{
			target:   target,
			skip:     skip,
			skipping: p.skipping,
			cursor:   cursor,
		})
		return
	}

	// Single line form: the text stands in for the directive
	if !p.skipping && !skip {
		r.UnshiftLine(strings.TrimRight(text, " \t"))
		r.lookAhead--
	}
}

// evalDefined reports whether the condition on the attributes named in target
// holds. With ',' any attribute may be defined, with '+' all must be.
func (p *PreprocessingReader) evalDefined(target, delimiter string) bool {

	has := func(name string) bool {
		return p.cfg.Env != nil && p.cfg.Env.HasAttribute(name)
	}

	switch delimiter {
	case ",":
		for _, name := range strings.Split(target, ",") {
			if has(name) {
				return true
			}
		}
		return false
	case "+":
		for _, name := range strings.Split(target, "+") {
			if !has(name) {
				return false
			}
		}
		return true
	}

	return has(target)
}

// resolveExprValue converts an ifeval operand into a string, number, boolean or nil.
func (p *PreprocessingReader) resolveExprValue(val string) any {

	quoted := false
	if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
		quoted = true
		val = val[1 : len(val)-1]
	}

	if strings.Contains(val, "{") && p.cfg.Env != nil {
		val, _ = p.cfg.Env.SubAttributes(val, "drop")
	}

	switch {
	case quoted:
		return val
	case len(val) == 0:
		return nil
	case val == "true":
		return true
	case val == "false":
		return false
	case len(strings.TrimSpace(val)) == 0:
		return " "
	case strings.Contains(val, "."):
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0.0
		}
		return f
	}

	return leadingInt(strings.TrimSpace(val))
}

// leadingInt parses the integer at the start of s, or 0 if there is none.
func leadingInt(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// preprocessInclude expands an include directive. It returns false when the
// directive is left in place unexpanded.
func (p *PreprocessingReader) preprocessInclude(target, rawAttrs string) bool {

	r := p.Reader
	cursor := r.Cursor()
	env := p.cfg.Env

	// Resolve attribute references in the target
	expanded := target
	if strings.Contains(target, "{") && env != nil {
		var kept bool
		expanded, kept = env.SubAttributes(target, "drop-line")
		if !kept || len(expanded) == 0 {
			p.log.Warnw(fmt.Sprintf("include dropped due to missing attribute: include::%s[%s]", target, rawAttrs),
				"source_location", cursor.String())
			r.shift()
			return true
		}
	}

	if strings.Contains(rawAttrs, "{") && env != nil {
		rawAttrs, _ = env.SubAttributes(rawAttrs, "")
	}
	attrs := attrlist.Parse(rawAttrs, attrlist.Options{})

	// Secure mode never reads files, it links to them instead
	if p.cfg.SafeMode >= safe.Secure {
		r.ReplaceNextLine(fmt.Sprintf("link:%s[role=include]", expanded))
		return true
	}

	if len(p.includes) >= p.maxDepth.abs {
		p.log.Errorw(fmt.Sprintf("maximum include depth of %d exceeded", p.maxDepth.rel),
			"source_location", cursor.String())
		return false
	}

	if reURI.MatchString(expanded) {
		// Remote content is never fetched, refer to it instead
		r.ReplaceNextLine(fmt.Sprintf("link:%s[role=include]", expanded))
		return true
	}

	resolver := safe.Resolver{Mode: p.cfg.SafeMode, Jail: p.cfg.BaseDir}
	incPath, recovered, err := resolver.SystemPath(expanded, r.dir, "include file")
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", cursor, err))
		return true
	}
	if recovered {
		p.log.Warnw(fmt.Sprintf("include file path is outside of jail; recovering automatically: %s", expanded),
			"source_location", cursor.String())
	}

	data, err := os.ReadFile(incPath)
	if err != nil {
		if attrs.HasOption("optional") {
			p.log.Infow(fmt.Sprintf("optional include dropped because include file not found: %s", incPath),
				"source_location", cursor.String())
		} else {
			p.log.Warnw(fmt.Sprintf("include file not readable: %s", incPath),
				"source_location", cursor.String(), "error", err)
		}
		r.shift()
		return true
	}

	content := PrepareLines(string(data), -1)

	switch {
	case attrs.Has("lines"):
		selected, offset := selectLines(content, parseLineRanges(attrs["lines"]))
		r.shift()
		if offset > 0 {
			attrs["partial-option"] = ""
			p.pushInclude(selected, incPath, expanded, offset, attrs)
		}

	case attrs.Has("tag") || attrs.Has("tags"):
		filters := parseTagFilters(attrs)
		if len(filters) == 0 {
			r.shift()
			p.pushInclude(content, incPath, expanded, 1, attrs)
			break
		}
		selected, offset := p.selectTagged(content, filters, incPath, cursor)
		r.shift()
		if offset > 0 {
			attrs["partial-option"] = ""
			p.pushInclude(selected, incPath, expanded, offset, attrs)
		}

	default:
		r.shift()
		p.pushInclude(content, incPath, expanded, 1, attrs)
	}

	return true
}

// pushInclude saves the state of the current file and starts reading lines.
func (p *PreprocessingReader) pushInclude(lines []string, file, path string, lineno int, attrs attrlist.Attributes) {

	r := p.Reader

	p.includes = append(p.includes, includeFrame{
		lines:        r.lines,
		file:         r.file,
		dir:          r.dir,
		path:         r.path,
		lineno:       r.lineno,
		maxDepth:     p.maxDepth,
		processLines: r.processLines,
	})

	r.file = file
	r.dir = filepath.Dir(file)
	r.path = path
	r.lineno = lineno
	r.processLines = asciidocExtensions[strings.ToLower(filepath.Ext(file))]

	if p.cfg.Env != nil && !attrs.HasOption("partial") {
		p.cfg.Env.RegisterInclude(strings.TrimSuffix(path, filepath.Ext(path)))
	}

	if d, ok := attrs["depth"]; ok {
		depth, _ := strconv.Atoi(d)
		if depth <= 0 {
			depth = 1
		}
		p.maxDepth = depthLimit{abs: len(p.includes) - 1 + depth, rel: depth}
	}

	if indent, ok := attrs["indent"]; ok {
		if n, err := strconv.Atoi(indent); err == nil {
			AdjustIndentation(lines, n, 0)
		}
	}

	if len(lines) == 0 {
		p.popInclude()
		return
	}

	if offset, ok := attrs["leveloffset"]; ok {
		// Restore the previous offset when the included lines end
		restore := ":leveloffset!:"
		if p.cfg.Env != nil {
			if prev, ok := p.cfg.Env.Attribute("leveloffset"); ok {
				restore = ":leveloffset: " + prev
			}
		}
		wrapped := make([]string, 0, len(lines)+4)
		wrapped = append(wrapped, ":leveloffset: "+offset, "")
		wrapped = append(wrapped, lines...)
		wrapped = append(wrapped, "", restore)
		lines = wrapped
		r.lineno -= 2
	}

	r.lines = reversed(lines)
	r.lookAhead = 0
}

func (p *PreprocessingReader) popInclude() {

	if len(p.includes) == 0 {
		return
	}

	r := p.Reader
	f := p.includes[len(p.includes)-1]
	p.includes = p.includes[:len(p.includes)-1]

	r.lines = f.lines
	r.file = f.file
	r.dir = f.dir
	r.path = f.path
	r.lineno = f.lineno
	r.processLines = f.processLines
	p.maxDepth = f.maxDepth
	r.lookAhead = 0
}
