// Package datasettest writes small synthetic datasets for tests.
package datasettest

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/bcnn/internal/dataset"
)

// Fixture describes one partition of a synthetic dataset.
type Fixture struct {
	Partition  dataset.Partition
	Version    dataset.Version
	Rows       int // ground-truth rows
	Candidates int // candidates per task; 10 when zero
	ImageSize  int // side of the generated PNGs; no images when zero
}

// Write creates the fixture under root and returns the positive index of
// each row. Row i has sample id "s<i>", anchor "s<i>_a.png" and candidates
// "s<i>_c<j>.png".
func Write(tb testing.TB, root string, f Fixture) []int {
	tb.Helper()

	candidates := f.Candidates
	if candidates == 0 {
		candidates = 10
	}
	layout := dataset.Layout{Root: root}

	require.NoError(tb, os.MkdirAll(layout.TaskDir(f.Partition, f.Version), 0o755))
	require.NoError(tb, os.MkdirAll(filepath.Dir(layout.Image("x")), 0o755))

	positives := make([]int, f.Rows)
	var csv strings.Builder
	for i := range f.Rows {
		id := fmt.Sprintf("s%d", i)
		positives[i] = i % candidates
		fmt.Fprintf(&csv, "%s,%d\n", id, positives[i])

		names := make([]string, candidates)
		for j := range names {
			names[j] = fmt.Sprintf("%s_c%d.png", id, j)
		}
		doc, err := json.Marshal([]any{id + "_a.png", names})
		require.NoError(tb, err)
		require.NoError(tb, os.WriteFile(layout.Task(f.Partition, f.Version, id), doc, 0o600))

		if f.ImageSize > 0 {
			WritePNG(tb, layout.Image(id+"_a.png"), f.ImageSize, uint8(i))
			for j, name := range names {
				WritePNG(tb, layout.Image(name), f.ImageSize, uint8(i+j))
			}
		}
	}
	require.NoError(tb, os.WriteFile(layout.GroundTruth(f.Partition, f.Version), []byte(csv.String()), 0o600))

	return positives
}

// WritePNG writes a size x size image whose pixel (x, y) is
// (seed+x, seed+y, seed).
func WritePNG(tb testing.TB, path string, size int, seed uint8) {
	tb.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, color.NRGBA{R: seed + uint8(x), G: seed + uint8(y), B: seed, A: 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(tb, err)
	defer f.Close()
	require.NoError(tb, png.Encode(f, img))
}
