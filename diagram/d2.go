// Package diagram renders [d2] blocks to SVG with the embedded D2 engine.
package diagram

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	"oss.terrastruct.com/d2/lib/textmeasure"

	"github.com/hesusruiz/adoc/adoc"
	"github.com/hesusruiz/adoc/attrlist"
	"github.com/hesusruiz/adoc/reader"
)

// AssetsDir is where generated images are written, relative to OutDir.
const AssetsDir = "builtassets"

// D2 is a block processor for diagrams written in D2.
//
// With an OutDir the SVG is written to a file named after the hash of the
// source, so an unchanged diagram is not rendered again, and the block
// becomes an image. Without one the SVG is kept inline in a pass block.
type D2 struct {
	OutDir string
	Log    *zap.SugaredLogger
}

// Register adds the processor to reg for blocks styled [d2].
func (d *D2) Register(reg *adoc.Registry) error {
	return reg.Block("d2", d, adoc.ContextListing, adoc.ContextLiteral, adoc.ContextOpen)
}

// Process renders the lines of the block.
func (d *D2) Process(parent *adoc.Block, r *reader.Reader, attrs attrlist.Attributes) (*adoc.Block, error) {

	doc := parent.Document()
	source := strings.Join(r.ReadLines(), "\n")
	if len(strings.TrimSpace(source)) == 0 {
		return nil, nil
	}

	if len(d.OutDir) == 0 {
		svg, err := Render(context.Background(), source)
		if err != nil {
			return nil, err
		}
		b := adoc.NewBlock(doc, adoc.ContextPass, adoc.ContentRaw)
		b.Lines = strings.Split(string(svg), "\n")
		return b, nil
	}

	name := fmt.Sprintf("d2_%x.svg", md5.Sum([]byte(source)))
	fileName := filepath.Join(d.OutDir, AssetsDir, name)

	if _, err := os.Stat(fileName); err != nil {
		if d.Log != nil {
			d.Log.Infow("generating diagram", "file", fileName)
		}
		svg, err := Render(context.Background(), source)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(fileName, svg, 0o644); err != nil {
			return nil, err
		}
	}

	b := adoc.NewBlock(doc, adoc.ContextImage, adoc.ContentEmpty)
	b.Attributes["target"] = filepath.ToSlash(filepath.Join(AssetsDir, name))
	if alt, ok := attrs.Positional(2); ok {
		b.Attributes["alt"] = alt
	} else {
		b.Attributes["alt"] = "diagram"
	}
	return b, nil
}

// Render compiles a D2 description and renders it to SVG.
func Render(ctx context.Context, source string) ([]byte, error) {

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return nil, fmt.Errorf("creating text ruler: %w", err)
	}

	layout := func(ctx context.Context, g *d2graph.Graph) error {
		return d2dagrelayout.Layout(ctx, g, nil)
	}
	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		Layout: layout,
		Ruler:  ruler,
	})
	if err != nil {
		return nil, fmt.Errorf("compiling d2: %w", err)
	}

	svg, err := d2svg.Render(diagram, &d2svg.RenderOpts{
		Pad:     d2svg.DEFAULT_PADDING,
		ThemeID: d2themescatalog.NeutralDefault.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering d2: %w", err)
	}
	return svg, nil
}
