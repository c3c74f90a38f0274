package diagram

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hesusruiz/adoc/adoc"
)

const d2Source = `[d2]
----
client -> server: request
----
`

func parseWith(t *testing.T, proc *D2) *adoc.Document {
	t.Helper()
	reg := adoc.NewRegistry()
	require.NoError(t, proc.Register(reg))
	doc, err := adoc.ParseString(d2Source, adoc.Options{Extensions: reg})
	require.NoError(t, err)
	return doc
}

func TestInlineSVG(t *testing.T) {
	doc := parseWith(t, &D2{})
	blocks := doc.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, adoc.ContextPass, blocks[0].Context)
	assert.Contains(t, strings.Join(blocks[0].Lines, "\n"), "<svg")
}

func TestImageFile(t *testing.T) {
	dir := t.TempDir()
	doc := parseWith(t, &D2{OutDir: dir})

	blocks := doc.Blocks()
	require.Len(t, blocks, 1)
	img := blocks[0]
	assert.Equal(t, adoc.ContextImage, img.Context)

	target := img.Attributes["target"]
	assert.True(t, strings.HasPrefix(target, AssetsDir+"/d2_"))
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(target)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	// Same source, same file
	again := parseWith(t, &D2{OutDir: dir})
	assert.Equal(t, target, again.Blocks()[0].Attributes["target"])
}

func TestInvalidSource(t *testing.T) {
	_, err := Render(context.Background(), "a -> {")
	assert.Error(t, err)
}
