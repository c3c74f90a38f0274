package adoc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/reader"
)

// TreeNode links a block with its parent and siblings.
type TreeNode struct {
	Parent, FirstChild, LastChild, PrevSibling, NextSibling *Block
}

// InsertBefore inserts newChild as a child of b, immediately before oldChild.
// oldChild may be nil, in which case newChild is appended.
//
// It will panic if newChild is already attached.
func (b *Block) InsertBefore(newChild, oldChild *Block) {
	if newChild.Parent != nil || newChild.PrevSibling != nil || newChild.NextSibling != nil {
		panic("InsertBefore called for an attached child Block")
	}
	var prev, next *Block
	if oldChild != nil {
		prev, next = oldChild.PrevSibling, oldChild
	} else {
		prev = b.LastChild
	}
	if prev != nil {
		prev.NextSibling = newChild
	} else {
		b.FirstChild = newChild
	}
	if next != nil {
		next.PrevSibling = newChild
	} else {
		b.LastChild = newChild
	}
	newChild.Parent = b
	newChild.PrevSibling = prev
	newChild.NextSibling = next
}

// AppendChild adds child as the last child of parent.
//
// It will panic if child is already attached.
func (parent *Block) AppendChild(child *Block) {
	if child.Parent != nil || child.PrevSibling != nil || child.NextSibling != nil {
		panic("AppendChild called for an already attached child Block")
	}
	last := parent.LastChild
	if last != nil {
		last.NextSibling = child
	} else {
		parent.FirstChild = child
	}
	parent.LastChild = child
	child.Parent = parent
	child.PrevSibling = last
}

// RemoveChild detaches child from parent.
//
// It will panic if child's parent is not parent.
func (parent *Block) RemoveChild(child *Block) {
	if child.Parent != parent {
		panic("RemoveChild called for a non-child Block")
	}
	if parent.FirstChild == child {
		parent.FirstChild = child.NextSibling
	}
	if child.NextSibling != nil {
		child.NextSibling.PrevSibling = child.PrevSibling
	}
	if parent.LastChild == child {
		parent.LastChild = child.PrevSibling
	}
	if child.PrevSibling != nil {
		child.PrevSibling.NextSibling = child.NextSibling
	}
	child.Parent = nil
	child.PrevSibling = nil
	child.NextSibling = nil
}

// ReparentChildren moves all of src's children to the end of b.
func (b *Block) ReparentChildren(src *Block) {
	for {
		child := src.FirstChild
		if child == nil {
			break
		}
		src.RemoveChild(child)
		b.AppendChild(child)
	}
}

// Children returns the children of b in order.
func (b *Block) Children() []*Block {
	var children []*Block
	for c := b.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	return children
}

// ChildCount returns the number of children of b.
func (b *Block) ChildCount() int {
	n := 0
	for c := b.FirstChild; c != nil; c = c.NextSibling {
		n++
	}
	return n
}

// HasChildren reports whether b has at least one child.
func (b *Block) HasChildren() bool {
	return b.FirstChild != nil
}

// A Context is the kind of a block. The set is closed: blocks contributed
// by extensions use ContextExtension and carry their name in Style.
type Context uint32

const (
	ContextInvalid Context = iota
	ContextDocument
	ContextPreamble
	ContextSection
	ContextFloatingTitle
	ContextParagraph
	ContextAdmonition
	ContextListing
	ContextLiteral
	ContextExample
	ContextSidebar
	ContextQuote
	ContextVerse
	ContextOpen
	ContextPass
	ContextStem
	ContextComment
	ContextImage
	ContextVideo
	ContextAudio
	ContextThematicBreak
	ContextPageBreak
	ContextToc
	ContextUlist
	ContextOlist
	ContextColist
	ContextDlist
	ContextListItem
	ContextTable
	ContextExtension
)

var contextNames = map[Context]string{
	ContextDocument:      "document",
	ContextPreamble:      "preamble",
	ContextSection:       "section",
	ContextFloatingTitle: "floating_title",
	ContextParagraph:     "paragraph",
	ContextAdmonition:    "admonition",
	ContextListing:       "listing",
	ContextLiteral:       "literal",
	ContextExample:       "example",
	ContextSidebar:       "sidebar",
	ContextQuote:         "quote",
	ContextVerse:         "verse",
	ContextOpen:          "open",
	ContextPass:          "pass",
	ContextStem:          "stem",
	ContextComment:       "comment",
	ContextImage:         "image",
	ContextVideo:         "video",
	ContextAudio:         "audio",
	ContextThematicBreak: "thematic_break",
	ContextPageBreak:     "page_break",
	ContextToc:           "toc",
	ContextUlist:         "ulist",
	ContextOlist:         "olist",
	ContextColist:        "colist",
	ContextDlist:         "dlist",
	ContextListItem:      "list_item",
	ContextTable:         "table",
	ContextExtension:     "extension",
}

// String returns the name of the context.
func (c Context) String() string {
	if name, ok := contextNames[c]; ok {
		return name
	}
	return "Invalid Context (" + strconv.Itoa(int(c)) + ")"
}

// ParseContext returns the context with the given name.
func ParseContext(name string) (Context, bool) {
	for c, n := range contextNames {
		if n == name {
			return c, true
		}
	}
	return ContextInvalid, false
}

// A ContentModel tells how the body of a block is treated.
type ContentModel uint32

const (
	// ContentSimple is a paragraph of text, normal substitutions apply.
	ContentSimple ContentModel = iota
	// ContentCompound holds child blocks.
	ContentCompound
	// ContentVerbatim is text kept as written, only escaping and callouts apply.
	ContentVerbatim
	// ContentRaw is passed through without substitutions.
	ContentRaw
	// ContentEmpty has no body.
	ContentEmpty
)

// String returns the name of the content model.
func (m ContentModel) String() string {
	switch m {
	case ContentSimple:
		return "simple"
	case ContentCompound:
		return "compound"
	case ContentVerbatim:
		return "verbatim"
	case ContentRaw:
		return "raw"
	case ContentEmpty:
		return "empty"
	}
	return "Invalid ContentModel (" + strconv.Itoa(int(m)) + ")"
}

// Block is a node of the document tree. The fields common to every kind of
// block live here; kind specific data hangs from the payload pointers, and
// only the one matching Context is set.
type Block struct {
	TreeNode

	Context      Context
	ContentModel ContentModel

	// Style is the first positional attribute, like "source" or "NOTE"
	Style string

	ID         string
	Attributes attrlist.Attributes

	// Lines is the raw source text of simple, verbatim and raw blocks
	Lines []string

	// Caption is the label prefixed to the title, like "Table 1. "
	Caption string

	// Numeral is the number assigned to captioned blocks and sections
	Numeral string

	// AttributeEntries are the document attribute assignments that appear
	// right before this block, replayed when the block is visited.
	AttributeEntries []AttributeEntry

	Location reader.Cursor

	Section  *SectionInfo
	Item     *ListItemInfo
	Table    *Table
	ListInfo *ListInfo

	title          string
	convertedTitle *string

	subs       []Sub
	subsLocked bool

	doc *Document
}

// SectionInfo is the payload of a section.
type SectionInfo struct {
	// Level is 0 for the document title, 1 for `==` and so on
	Level int

	// Index is the position among sibling sections
	Index int

	// Sectname is "section" or the name of a special section, like "appendix"
	Sectname string

	Special  bool
	Numbered bool
}

// ListInfo is the payload of a list.
type ListInfo struct {
	// Marker is the first marker of the list, used to recognise siblings
	Marker string
	// Level is the nesting depth, counting from 1
	Level int
}

// ListItemInfo is the payload of a list item.
type ListItemInfo struct {
	Marker string

	// Text is the raw text that follows the marker (the description for dlist items)
	Text string

	// Terms of a description list item
	Terms []string

	// HasText is false when a description list item has only terms
	HasText bool
}

// NewBlock creates a detached block for doc.
func NewBlock(doc *Document, context Context, model ContentModel) *Block {
	return &Block{
		Context:      context,
		ContentModel: model,
		Attributes:   attrlist.Attributes{},
		doc:          doc,
	}
}

// Document returns the document the block belongs to.
func (b *Block) Document() *Document {
	return b.doc
}

// Attr returns an attribute of the block.
func (b *Block) Attr(name string) (string, bool) {
	v, ok := b.Attributes[name]
	return v, ok
}

// HasOption reports whether the block has an option set, like %header.
func (b *Block) HasOption(name string) bool {
	return b.Attributes.HasOption(name)
}

// HasRole reports whether the block has the given role.
func (b *Block) HasRole(role string) bool {
	for _, r := range b.Attributes.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// Level returns the section level, or the list nesting level.
func (b *Block) Level() int {
	switch {
	case b.Section != nil:
		return b.Section.Level
	case b.ListInfo != nil:
		return b.ListInfo.Level
	}
	return 0
}

// RawTitle returns the title as written in the source.
func (b *Block) RawTitle() string {
	return b.title
}

// SetTitle sets the raw title and forgets any substituted value.
func (b *Block) SetTitle(title string) {
	b.title = title
	b.convertedTitle = nil
}

// HasTitle reports whether the block has a title.
func (b *Block) HasTitle() bool {
	return len(b.title) > 0
}

// Title returns the title with title substitutions applied. The result is cached.
func (b *Block) Title() string {
	if b.convertedTitle != nil {
		return *b.convertedTitle
	}
	if len(b.title) == 0 {
		return ""
	}
	t := b.doc.ApplySubs(b.title, TitleSubs)
	b.convertedTitle = &t
	return t
}

// CaptionedTitle returns the caption followed by the title.
func (b *Block) CaptionedTitle() string {
	return b.Caption + b.Title()
}

// Source returns the raw lines joined with newlines.
func (b *Block) Source() string {
	return strings.Join(b.Lines, "\n")
}

// Subs returns the substitutions locked in for the block.
func (b *Block) Subs() []Sub {
	return b.subs
}

// Content returns the body of a simple, verbatim or raw block with its
// substitutions applied. The substitution list is decided once, in
// LockSubs, but is re-run on every call.
func (b *Block) Content() string {
	switch b.ContentModel {
	case ContentCompound, ContentEmpty:
		return ""
	}
	if !b.subsLocked {
		b.LockSubs()
	}
	return b.doc.applySubsForBlock(b, b.Source(), b.subs)
}

// String returns a short description, used in diagnostics and tree dumps.
func (b Block) String() string {
	buf := bytes.NewBufferString(b.Context.String())
	if len(b.Style) > 0 {
		fmt.Fprintf(buf, "[%s]", b.Style)
	}
	if len(b.ID) > 0 {
		fmt.Fprintf(buf, "#%s", b.ID)
	}
	if b.Section != nil {
		fmt.Fprintf(buf, " level=%d", b.Section.Level)
	}
	if len(b.title) > 0 {
		fmt.Fprintf(buf, " %q", b.title)
	}
	return buf.String()
}

// Walk visits b and its descendants depth first, in source order.
// Returning false from fn skips the children of that block.
func (b *Block) Walk(fn func(*Block) bool) {
	if !fn(b) {
		return
	}
	for c := b.FirstChild; c != nil; c = c.NextSibling {
		c.Walk(fn)
	}
}

// FindBy returns every block in the subtree for which match returns true.
func (b *Block) FindBy(match func(*Block) bool) []*Block {
	var found []*Block
	b.Walk(func(n *Block) bool {
		if match(n) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// Sections returns the child sections of b.
func (b *Block) Sections() []*Block {
	var sections []*Block
	for c := b.FirstChild; c != nil; c = c.NextSibling {
		if c.Context == ContextSection {
			sections = append(sections, c)
		}
	}
	return sections
}
