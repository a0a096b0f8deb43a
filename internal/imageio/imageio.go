// Package imageio decodes image files into CHW float32 tensors for the
// embedding network.
package imageio

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"runtime"

	"github.com/born-ml/born/tensor"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/bcnn/internal/dataset"
	"github.com/born-ml/bcnn/internal/errdefs"
)

// Channels is the number of color channels in every loaded image.
const Channels = 3

// Triplet holds the anchor, positive and negative images of one batch, each
// shaped [K, 3, S, S].
type Triplet[B tensor.Backend] struct {
	Anchors   *tensor.Tensor[float32, B]
	Positives *tensor.Tensor[float32, B]
	Negatives *tensor.Tensor[float32, B]
}

// Loader reads images, resizes them to a square with bilinear interpolation
// and lays them out channel-first with raw 0-255 intensities. Alpha is
// dropped and grayscale images are expanded to RGB.
type Loader[B tensor.Backend] struct {
	size    int
	workers int
	backend B
}

// NewLoader creates a loader producing size x size images on backend.
// workers bounds concurrent decodes per batch; GOMAXPROCS when <= 0.
func NewLoader[B tensor.Backend](size, workers int, backend B) (*Loader[B], error) {
	if size <= 0 {
		return nil, errdefs.Invalid("image size must be positive, got %d", size)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Loader[B]{size: size, workers: workers, backend: backend}, nil
}

// Size returns the side length of loaded images.
func (l *Loader[B]) Size() int {
	return l.size
}

// LoadTriplet loads the three path lists of a batch.
//
// The lists must have equal length. The first decoding failure aborts the
// whole batch with an *errdefs.IOError.
func (l *Loader[B]) LoadTriplet(ctx context.Context, batch dataset.Batch) (Triplet[B], error) {
	k := len(batch.Anchors)
	if len(batch.Positives) != k || len(batch.Negatives) != k {
		return Triplet[B]{}, errdefs.Invalid("mismatched batch lists: %d anchors, %d positives, %d negatives",
			k, len(batch.Positives), len(batch.Negatives))
	}

	paths := make([]string, 0, 3*k)
	paths = append(paths, batch.Anchors...)
	paths = append(paths, batch.Positives...)
	paths = append(paths, batch.Negatives...)

	data, err := l.decodeAll(ctx, paths)
	if err != nil {
		return Triplet[B]{}, err
	}

	per := k * l.imageLen()
	var t Triplet[B]
	for i, dst := range []**tensor.Tensor[float32, B]{&t.Anchors, &t.Positives, &t.Negatives} {
		*dst, err = tensor.FromSlice(data[i*per:(i+1)*per], l.shape(k), l.backend)
		if err != nil {
			return Triplet[B]{}, fmt.Errorf("build image tensor: %w", err)
		}
	}
	return t, nil
}

func (l *Loader[B]) imageLen() int {
	return Channels * l.size * l.size
}

func (l *Loader[B]) shape(n int) tensor.Shape {
	return tensor.Shape{n, Channels, l.size, l.size}
}

// decodeAll decodes paths concurrently into one flat CHW buffer.
func (l *Loader[B]) decodeAll(ctx context.Context, paths []string) ([]float32, error) {
	n := l.imageLen()
	data := make([]float32, len(paths)*n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return l.decodeInto(path, data[i*n:(i+1)*n])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// decodeInto decodes one file and writes it to dst in CHW order.
func (l *Loader[B]) decodeInto(path string, dst []float32) error {
	f, err := os.Open(path) //nolint:gosec // Image paths come from the dataset index.
	if err != nil {
		return errdefs.NewIOError("open image", path, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return errdefs.NewIOError("decode image", path, err)
	}

	rgba := Resize(src, l.size)
	ToCHW(rgba, dst)
	return nil
}

// Resize scales img to size x size RGBA with bilinear interpolation.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToCHW writes the RGB channels of img to dst as planes R, G, B.
// dst must hold 3 * width * height values.
func ToCHW(img *image.RGBA, dst []float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	if len(dst) != Channels*plane {
		panic(fmt.Sprintf("imageio: destination holds %d values, want %d", len(dst), Channels*plane))
	}
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			px := row[4*x:]
			i := y*w + x
			dst[i] = float32(px[0])
			dst[plane+i] = float32(px[1])
			dst[2*plane+i] = float32(px[2])
		}
	}
}
