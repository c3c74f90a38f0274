package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hesusruiz/adoc/adoc"
)

// node is the serialized form of a block.
type node struct {
	Context    string            `yaml:"context"`
	Style      string            `yaml:"style,omitempty"`
	ID         string            `yaml:"id,omitempty"`
	Title      string            `yaml:"title,omitempty"`
	Caption    string            `yaml:"caption,omitempty"`
	Level      int               `yaml:"level,omitempty"`
	Sectnum    string            `yaml:"sectnum,omitempty"`
	Marker     string            `yaml:"marker,omitempty"`
	Terms      []string          `yaml:"terms,omitempty"`
	Text       string            `yaml:"text,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Content    string            `yaml:"content,omitempty"`
	Rows       *tableRows        `yaml:"rows,omitempty"`
	Blocks     []*node           `yaml:"blocks,omitempty"`
}

type tableRows struct {
	Head [][]string `yaml:"head,omitempty"`
	Body [][]string `yaml:"body,omitempty"`
	Foot [][]string `yaml:"foot,omitempty"`
}

// dumpTree writes the block tree of doc as YAML. Attribute entries are
// replayed in document order so the content of each block sees the values
// in effect at its position.
func dumpTree(w io.Writer, doc *adoc.Document) error {

	doc.RestoreAttributes()

	root := &node{
		Context:    "document",
		Title:      doc.Doctitle(),
		Attributes: doc.Attributes(),
	}
	for _, b := range doc.Blocks() {
		root.Blocks = append(root.Blocks, toNode(doc, b))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encoding tree: %w", err)
	}
	return enc.Close()
}

func toNode(doc *adoc.Document, b *adoc.Block) *node {

	doc.Playback(b.AttributeEntries)

	n := &node{
		Context: b.Context.String(),
		Style:   b.Style,
		ID:      b.ID,
		Caption: b.Caption,
	}
	if b.HasTitle() {
		n.Title = b.Title()
	}
	if len(b.Attributes) > 0 {
		n.Attributes = map[string]string(b.Attributes)
	}
	if b.Section != nil {
		n.Level = b.Section.Level
		n.Sectnum = b.Sectnum()
	}
	if b.Item != nil {
		n.Marker = b.Item.Marker
		n.Terms = b.Terms()
		n.Text = b.Text()
	}
	if b.Table != nil {
		n.Rows = &tableRows{
			Head: rowsText(b.Table.Head),
			Body: rowsText(b.Table.Body),
			Foot: rowsText(b.Table.Foot),
		}
	}
	n.Content = b.Content()

	for _, c := range b.Children() {
		n.Blocks = append(n.Blocks, toNode(doc, c))
	}
	if b.Context == adoc.ContextColist {
		doc.Callouts().NextList()
	}
	return n
}

func rowsText(rows []adoc.Row) [][]string {
	var out [][]string
	for _, row := range rows {
		var cells []string
		for _, c := range row {
			if c.Inner != nil {
				cells = append(cells, fmt.Sprintf("(%d blocks)", len(c.Inner.Blocks())))
				continue
			}
			cells = append(cells, strings.Join(c.Paragraphs(), "\n\n"))
		}
		out = append(out, cells)
	}
	return out
}

// writeOutline prints the section titles indented by level.
func writeOutline(w io.Writer, doc *adoc.Document) {
	if title := doc.Doctitle(); len(title) > 0 {
		fmt.Fprintln(w, title)
	}
	var walk func(b *adoc.Block, depth int)
	walk = func(b *adoc.Block, depth int) {
		for _, s := range b.Sections() {
			fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), prefixNum(s.Sectnum()), s.Title())
			walk(s, depth+1)
		}
	}
	walk(doc.Root(), 0)
}

func prefixNum(n string) string {
	if len(n) == 0 {
		return ""
	}
	return n + " "
}
