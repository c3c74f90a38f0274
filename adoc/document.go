package adoc

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hesusruiz/adoc/reader"
	"github.com/hesusruiz/adoc/safe"
)

// Version is reported through the adoc-version attribute.
const Version = "0.3.0"

// AttributeEntry is a document attribute assignment found in the body, kept
// so it can be replayed when the block that follows it is visited.
type AttributeEntry struct {
	Name  string
	Value string
	// Negate is true for an unset, like :name!:
	Negate bool
}

// Ref is an entry of the references table.
type Ref struct {
	ID      string
	Reftext string
	Block   *Block
}

// Footnote is a footnote collected from the text.
type Footnote struct {
	Index int
	ID    string
	Text  string
}

// Catalog holds what the parser collects for cross referencing.
type Catalog struct {
	Refs       map[string]*Ref
	Footnotes  []Footnote
	Links      []string
	Images     []string
	IndexTerms [][]string
	Includes   map[string]bool
	Callouts   *Callouts
}

func newCatalog() *Catalog {
	return &Catalog{
		Refs:     map[string]*Ref{},
		Includes: map[string]bool{},
		Callouts: NewCallouts(),
	}
}

// Document is the root of a parsed document, and the handle every parsing
// and substitution step works through. It owns the attributes, counters and
// references; nested documents (AsciiDoc table cells) inherit a copy of the
// attributes and share the references of their parent.
type Document struct {
	opts Options

	root   *Block
	header *Block

	attributes map[string]string
	locked     map[string]bool
	saved      map[string]string

	counters map[string]string
	catalog  *Catalog

	parent *Document

	log   *zap.SugaredLogger
	diags *diagnostics

	// ids hands out unique generated ids
	ids map[string]int

	extensions *Registry
}

// NewDocument creates an empty document configured with opts.
func NewDocument(opts Options) *Document {

	defaults := DefaultOptions()
	if opts.MaxIncludeDepth == 0 {
		opts.MaxIncludeDepth = defaults.MaxIncludeDepth
	}
	if opts.MaxNesting == 0 {
		opts.MaxNesting = defaults.MaxNesting
	}
	if len(opts.AttributeMissing) == 0 {
		opts.AttributeMissing = defaults.AttributeMissing
	}
	if len(opts.AttributeUndefined) == 0 {
		opts.AttributeUndefined = defaults.AttributeUndefined
	}
	if len(opts.BaseDir) == 0 {
		opts.BaseDir = defaults.BaseDir
	}
	if len(opts.Doctype) == 0 {
		opts.Doctype = defaults.Doctype
	}
	if opts.Config == nil {
		opts.Config = defaults.Config
	}
	if len(opts.CodeStyle) == 0 {
		opts.CodeStyle = defaults.CodeStyle
	}

	d := &Document{
		opts:       opts,
		attributes: map[string]string{},
		locked:     map[string]bool{},
		counters:   map[string]string{},
		catalog:    newCatalog(),
		diags:      &diagnostics{},
		ids:        map[string]int{},
		extensions: opts.Extensions,
	}
	d.log = newRecordingLogger(opts.Logger, d.diags)

	d.root = NewBlock(d, ContextDocument, ContentCompound)

	d.initAttributes()

	return d
}

// newNestedDocument creates a document for the content of an AsciiDoc table
// cell. It starts from the parent's current attributes and shares its catalog.
func (d *Document) newNestedDocument() *Document {

	opts := d.opts
	opts.Logger = d.log
	opts.Attributes = nil

	nd := NewDocument(opts)
	nd.parent = d
	nd.catalog = d.catalog
	nd.diags = d.diags
	nd.log = d.log
	nd.ids = d.ids

	for k, v := range d.attributes {
		// The title and header of the parent do not carry over
		switch k {
		case "doctitle", "notitle", "toc", "toc-placement", "toc-position":
			continue
		}
		nd.attributes[k] = v
	}
	for k := range d.locked {
		nd.locked[k] = true
	}
	nd.attributes["doctype"] = "article"

	return nd
}

// intrinsicAttributes are always defined and map to characters.
var intrinsicAttributes = map[string]string{
	"empty":          "",
	"sp":             " ",
	"nbsp":           "&#160;",
	"zwsp":           "&#8203;",
	"wj":             "&#8288;",
	"apos":           "&#39;",
	"quot":           "&#34;",
	"lsquo":          "&#8216;",
	"rsquo":          "&#8217;",
	"ldquo":          "&#8220;",
	"rdquo":          "&#8221;",
	"deg":            "&#176;",
	"plus":           "&#43;",
	"brvbar":         "&#166;",
	"vbar":           "|",
	"amp":            "&",
	"lt":             "<",
	"gt":             ">",
	"startsb":        "[",
	"endsb":          "]",
	"caret":          "^",
	"asterisk":       "*",
	"tilde":          "~",
	"backslash":      `\`,
	"backtick":       "`",
	"two-colons":     "::",
	"two-semicolons": ";;",
	"cpp":            "C++",
	"pp":             "&#43;&#43;",
}

func (d *Document) initAttributes() {

	a := d.attributes
	for k, v := range intrinsicAttributes {
		a[k] = v
	}

	a["adoc-version"] = Version
	a["doctype"] = d.opts.Doctype
	a["safe-mode-name"] = d.opts.SafeMode.String()
	a["safe-mode-level"] = strconv.Itoa(int(d.opts.SafeMode))
	a["safe-mode-"+d.opts.SafeMode.String()] = ""
	a["attribute-missing"] = d.opts.AttributeMissing
	a["attribute-undefined"] = d.opts.AttributeUndefined
	a["max-include-depth"] = strconv.Itoa(d.opts.MaxIncludeDepth)
	a["sectids"] = ""
	a["idprefix"] = "_"
	a["idseparator"] = "_"
	a["toc-placement"] = "auto"
	a["caution-caption"] = "Caution"
	a["important-caption"] = "Important"
	a["note-caption"] = "Note"
	a["tip-caption"] = "Tip"
	a["warning-caption"] = "Warning"
	a["example-caption"] = "Example"
	a["figure-caption"] = "Figure"
	a["table-caption"] = "Table"
	a["appendix-caption"] = "Appendix"
	a["section-refsig"] = "Section"
	a["chapter-refsig"] = "Chapter"
	a["appendix-refsig"] = "Appendix"
	a["sectnumlevels"] = "3"
	a["toclevels"] = "2"
	a["user-home"] = "."
	a["iconsdir"] = "./images/icons"
	a["stylesdir"] = "."
	if len(d.opts.CodeStyle) > 0 {
		a["code-style"] = d.opts.CodeStyle
	}

	// Attributes passed in options win over the document unless soft set
	for name, value := range d.opts.Attributes {
		soft := false
		if strings.HasSuffix(name, "@") {
			name, soft = strings.TrimSuffix(name, "@"), true
		}
		if strings.HasSuffix(value, "@") {
			value, soft = strings.TrimSuffix(value, "@"), true
		}
		name = strings.ToLower(name)
		switch {
		case strings.HasSuffix(name, "!"):
			delete(a, strings.TrimSuffix(name, "!"))
			name = strings.TrimSuffix(name, "!")
		case strings.HasPrefix(name, "!"):
			name = name[1:]
			delete(a, name)
		default:
			a[name] = value
		}
		if !soft {
			d.locked[name] = true
		}
	}
}

// Options returns the options of the conversion.
func (d *Document) Options() Options {
	return d.opts
}

// Logger returns the logging seam every diagnostic goes through.
func (d *Document) Logger() *zap.SugaredLogger {
	return d.log
}

// Diagnostics returns every recoverable condition reported so far.
func (d *Document) Diagnostics() []Diagnostic {
	return d.diags.all()
}

// warn reports a recoverable condition at a source position.
func (d *Document) warn(cursor reader.Cursor, msg string, kv ...any) {
	d.log.Warnw(msg, append([]any{locationKey, cursor.String()}, kv...)...)
}

func (d *Document) errorAt(cursor reader.Cursor, msg string, kv ...any) {
	d.log.Errorw(msg, append([]any{locationKey, cursor.String()}, kv...)...)
}

// Root is the block holding the body of the document.
func (d *Document) Root() *Block {
	return d.root
}

// Header is the level 0 section holding the document title, or nil.
func (d *Document) Header() *Block {
	return d.header
}

// Blocks returns the top level blocks of the body.
func (d *Document) Blocks() []*Block {
	return d.root.Children()
}

// Doctitle returns the document title, with title substitutions applied.
func (d *Document) Doctitle() string {
	if d.header != nil && d.header.HasTitle() {
		return d.header.Title()
	}
	if t, ok := d.attributes["title"]; ok {
		return t
	}
	return ""
}

// Doctype returns the document type.
func (d *Document) Doctype() string {
	return d.attributes["doctype"]
}

// SafeMode returns the safe mode level.
func (d *Document) SafeMode() safe.Mode {
	return d.opts.SafeMode
}

// Parent returns the parent of a nested document.
func (d *Document) Parent() *Document {
	return d.parent
}

// Nested reports whether d is the document of an AsciiDoc table cell.
func (d *Document) Nested() bool {
	return d.parent != nil
}

// Catalog returns the references collected while parsing.
func (d *Document) Catalog() *Catalog {
	return d.catalog
}

// Callouts returns the callout registry.
func (d *Document) Callouts() *Callouts {
	return d.catalog.Callouts
}

// Extensions returns the extension registry, which may be nil.
func (d *Document) Extensions() *Registry {
	return d.extensions
}

// --- Attributes ---

// HasAttribute reports whether an attribute is defined.
func (d *Document) HasAttribute(name string) bool {
	_, ok := d.attributes[strings.ToLower(name)]
	return ok
}

// Attribute returns the value of an attribute.
func (d *Document) Attribute(name string) (string, bool) {
	v, ok := d.attributes[strings.ToLower(name)]
	return v, ok
}

// AttributeOr returns the value of an attribute, or def if it is not defined.
func (d *Document) AttributeOr(name, def string) string {
	if v, ok := d.attributes[strings.ToLower(name)]; ok {
		return v
	}
	return def
}

// Attributes returns a copy of the document attributes.
func (d *Document) Attributes() map[string]string {
	out := make(map[string]string, len(d.attributes))
	for k, v := range d.attributes {
		out[k] = v
	}
	return out
}

// AttributeLocked reports whether the attribute was fixed by the options.
func (d *Document) AttributeLocked(name string) bool {
	return d.locked[strings.ToLower(name)]
}

// SetAttribute assigns an attribute unless it is locked. The value is
// stored as given. It returns false if the attribute is locked.
func (d *Document) SetAttribute(name, value string) bool {
	name = strings.ToLower(name)
	if d.locked[name] {
		return false
	}
	switch name {
	case "leveloffset":
		// Relative values accumulate
		if strings.HasPrefix(value, "+") || strings.HasPrefix(value, "-") {
			delta, err := strconv.Atoi(value)
			if err == nil {
				curr, _ := strconv.Atoi(d.attributes["leveloffset"])
				value = strconv.Itoa(curr + delta)
			}
		}
	}
	d.attributes[name] = value
	return true
}

// DeleteAttribute removes an attribute unless it is locked.
func (d *Document) DeleteAttribute(name string) bool {
	name = strings.ToLower(name)
	if d.locked[name] {
		return false
	}
	delete(d.attributes, name)
	return true
}

// SaveAttributes takes the snapshot restored by RestoreAttributes. It is
// called once the header has been parsed.
func (d *Document) SaveAttributes() {
	d.saved = d.Attributes()
}

// RestoreAttributes resets the attributes to the snapshot taken after the
// header, so every pass over the tree sees the same starting state.
func (d *Document) RestoreAttributes() {
	if d.saved == nil {
		return
	}
	d.attributes = make(map[string]string, len(d.saved))
	for k, v := range d.saved {
		d.attributes[k] = v
	}
	if d.parent == nil {
		// These are collected again as the text is converted
		d.catalog.Footnotes = nil
		d.catalog.IndexTerms = nil
		d.catalog.Callouts.Rewind()
	}
}

// Playback applies recorded attribute entries to the document.
func (d *Document) Playback(entries []AttributeEntry) {
	for _, e := range entries {
		if e.Negate {
			d.DeleteAttribute(e.Name)
		} else {
			d.SetAttribute(e.Name, e.Value)
		}
	}
}

// Walk restores the attributes and visits every block in order, replaying
// the attribute entries of each block before fn sees it. This is the order
// substitutions must be requested in for attribute values to be correct.
func (d *Document) Walk(fn func(*Block) bool) {
	d.RestoreAttributes()
	d.root.Walk(func(b *Block) bool {
		d.Playback(b.AttributeEntries)
		ok := fn(b)
		if b.Context == ContextColist {
			d.catalog.Callouts.NextList()
		}
		return ok
	})
}

// Counter increments the named counter and returns its new value. A counter
// that does not exist starts at seed, or 1. Letters count alphabetically.
func (d *Document) Counter(name, seed string) string {

	if d.parent != nil {
		return d.parent.Counter(name, seed)
	}

	name = strings.ToLower(name)
	locked := d.locked[name]

	var next string
	curr, hasCounter := d.counters[name]
	attr, hasAttr := d.attributes[name]

	switch {
	case locked && hasCounter:
		next = nextValue(curr)
	case !locked && hasAttr && len(attr) > 0:
		next = nextValue(attr)
	case len(seed) > 0:
		next = seed
	default:
		next = "1"
	}

	d.counters[name] = next
	if !locked {
		d.attributes[name] = next
	}

	return next
}

// nextValue returns the successor of a counter value.
func nextValue(curr string) string {
	if n, err := strconv.Atoi(curr); err == nil {
		return strconv.Itoa(n + 1)
	}
	if len(curr) == 1 {
		c := curr[0]
		switch c {
		case 'z':
			return "aa"
		case 'Z':
			return "AA"
		}
		return string(c + 1)
	}
	return curr
}

// --- References ---

// RegisterRef adds an id to the references table. It returns false, and
// leaves the table unchanged, if the id is already taken.
func (d *Document) RegisterRef(id, reftext string, block *Block) bool {
	if _, exists := d.catalog.Refs[id]; exists {
		return false
	}
	d.catalog.Refs[id] = &Ref{ID: id, Reftext: reftext, Block: block}
	return true
}

// Ref returns the entry for an id.
func (d *Document) Ref(id string) (*Ref, bool) {
	r, ok := d.catalog.Refs[id]
	return r, ok
}

// RefIDs returns the registered ids in sorted order.
func (d *Document) RefIDs() []string {
	ids := make([]string, 0, len(d.catalog.Refs))
	for id := range d.catalog.Refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegisterInclude records the name of an included file.
func (d *Document) RegisterInclude(name string) {
	d.catalog.Includes[filepath.ToSlash(name)] = true
}

// addLink records a link target once.
func (c *Catalog) addLink(target string) {
	for _, l := range c.Links {
		if l == target {
			return
		}
	}
	c.Links = append(c.Links, target)
}

// addImage records an image target once.
func (c *Catalog) addImage(target string) {
	for _, i := range c.Images {
		if i == target {
			return
		}
	}
	c.Images = append(c.Images, target)
}

func (d *Document) registerFootnote(index int, id, text string) Footnote {
	if index <= 0 {
		index = len(d.catalog.Footnotes) + 1
	}
	fn := Footnote{Index: index, ID: id, Text: text}
	d.catalog.Footnotes = append(d.catalog.Footnotes, fn)
	return fn
}

func (d *Document) footnoteByID(id string) (Footnote, bool) {
	for _, fn := range d.catalog.Footnotes {
		if fn.ID == id {
			return fn, true
		}
	}
	return Footnote{}, false
}

// --- Reader environment ---

// SubAttributes replaces attribute references in text for the preprocessor.
func (d *Document) SubAttributes(text string, missing string) (string, bool) {
	return d.subAttributes(text, missing)
}

// readerConfig returns the configuration for the reader of the document.
func (d *Document) readerConfig() reader.Config {
	return reader.Config{
		SafeMode:        d.opts.SafeMode,
		BaseDir:         d.opts.BaseDir,
		MaxIncludeDepth: d.opts.MaxIncludeDepth,
		Env:             d,
		Log:             d.log,
	}
}

// --- Callouts ---

type callout struct {
	ordinal int
	id      string
}

// Callouts assigns ids to the callout marks in verbatim blocks, so callout
// list items can point back to them.
type Callouts struct {
	lists     [][]callout
	listIndex int
	coIndex   int
}

// NewCallouts returns an empty registry positioned at the first list.
func NewCallouts() *Callouts {
	c := &Callouts{}
	c.NextList()
	return c
}

// Register records a callout mark with the given ordinal and returns its id.
func (c *Callouts) Register(ordinal int) string {
	id := fmt.Sprintf("CO%d-%d", c.listIndex, c.coIndex)
	c.lists[c.listIndex-1] = append(c.lists[c.listIndex-1], callout{ordinal: ordinal, id: id})
	c.coIndex++
	return id
}

// ReadNextID returns the id of the next callout of the current list.
func (c *Callouts) ReadNextID() string {
	list := c.lists[c.listIndex-1]
	id := ""
	if c.coIndex <= len(list) {
		id = list[c.coIndex-1].id
	}
	c.coIndex++
	return id
}

// IDs returns the space separated ids of the marks with the given ordinal.
func (c *Callouts) IDs(ordinal int) string {
	var ids []string
	for _, co := range c.lists[c.listIndex-1] {
		if co.ordinal == ordinal {
			ids = append(ids, co.id)
		}
	}
	return strings.Join(ids, " ")
}

// NextList moves to a new list of callouts.
func (c *Callouts) NextList() {
	c.listIndex++
	if len(c.lists) < c.listIndex {
		c.lists = append(c.lists, nil)
	}
	c.coIndex = 1
}

// Rewind moves back to the first list, before a new pass over the tree.
func (c *Callouts) Rewind() {
	c.listIndex = 1
	c.coIndex = 1
}
