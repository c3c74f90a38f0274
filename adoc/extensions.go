package adoc

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/reader"
)

// Highlighter formats source code for the highlight substitution.
type Highlighter interface {
	Highlight(source, lang, style string) (string, error)
}

// BlockProcessor handles a block whose style was registered, like [d2].
// The reader holds only the lines of the block. Returning a nil block drops it.
type BlockProcessor interface {
	Process(parent *Block, r *reader.Reader, attrs attrlist.Attributes) (*Block, error)
}

// BlockMacroProcessor handles a block macro line, name::target[attrs].
// Returning a nil block drops the line.
type BlockMacroProcessor interface {
	Process(parent *Block, target string, attrs attrlist.Attributes) (*Block, error)
}

// InlineMacroProcessor handles name:target[attrs] inside text. The result
// replaces the macro; it is not substituted further.
type InlineMacroProcessor interface {
	Process(parent *Block, target string, attrs attrlist.Attributes) (string, error)
}

type blockEntry struct {
	processor BlockProcessor
	contexts  map[Context]bool
}

type inlineEntry struct {
	name      string
	re        *regexp.Regexp
	processor InlineMacroProcessor
}

// Registry holds the processors contributed by extensions.
type Registry struct {
	blocks       map[string]blockEntry
	blockMacros  map[string]BlockMacroProcessor
	inlineMacros []inlineEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		blocks:      map[string]blockEntry{},
		blockMacros: map[string]BlockMacroProcessor{},
	}
}

var reExtensionName = regexp.MustCompile(`^[a-zA-Z][\w-]*$`)

// Block registers a processor for blocks styled with name. contexts are the
// delimited blocks (and ContextParagraph) it accepts; none means open,
// listing, literal and paragraph.
func (r *Registry) Block(name string, p BlockProcessor, contexts ...Context) error {
	if !reExtensionName.MatchString(name) {
		return fmt.Errorf("invalid block name %q", name)
	}
	if len(contexts) == 0 {
		contexts = []Context{ContextOpen, ContextListing, ContextLiteral, ContextParagraph}
	}
	e := blockEntry{processor: p, contexts: map[Context]bool{}}
	for _, c := range contexts {
		e.contexts[c] = true
	}
	r.blocks[name] = e
	return nil
}

// BlockMacro registers a processor for name::target[] lines.
func (r *Registry) BlockMacro(name string, p BlockMacroProcessor) error {
	if !reExtensionName.MatchString(name) {
		return fmt.Errorf("invalid block macro name %q", name)
	}
	r.blockMacros[name] = p
	return nil
}

// InlineMacro registers a processor for name:target[attrs] in text.
func (r *Registry) InlineMacro(name string, p InlineMacroProcessor) error {
	if !reExtensionName.MatchString(name) {
		return fmt.Errorf("invalid inline macro name %q", name)
	}
	re := regexp.MustCompile(`(?s)\\?` + regexp.QuoteMeta(name) + `:(\S*?)\[(|.*?[^\\])\]`)
	r.inlineMacros = append(r.inlineMacros, inlineEntry{name: name, re: re, processor: p})
	return nil
}

// blockFor returns the processor registered for style in context.
func (r *Registry) blockFor(style string, context Context) (BlockProcessor, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.blocks[style]
	if !ok || !e.contexts[context] {
		return nil, false
	}
	return e.processor, true
}

func (r *Registry) hasBlock(style string) bool {
	if r == nil {
		return false
	}
	_, ok := r.blocks[style]
	return ok
}

func (r *Registry) blockMacroFor(name string) (BlockMacroProcessor, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.blockMacros[name]
	return p, ok
}

// Names returns the registered block and macro names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	var names []string
	for n := range r.blocks {
		names = append(names, n)
	}
	for n := range r.blockMacros {
		names = append(names, n+"::")
	}
	for _, e := range r.inlineMacros {
		names = append(names, e.name+":")
	}
	sort.Strings(names)
	return names
}

// checkContract verifies a block produced by an extension.
func checkContract(b *Block) error {
	if _, ok := contextNames[b.Context]; !ok {
		return &ContractError{Context: b.Context, Msg: "extension produced a block of unknown context"}
	}
	if b.Parent != nil {
		return &ContractError{Context: b.Context, Msg: "extension produced a block that is already attached"}
	}
	return nil
}
