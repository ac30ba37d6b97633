package dataset

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// ImageFolder is a Dataset of every image file in a directory, decoded,
// resized and converted up front.
type ImageFolder struct {
	Memory
	Files []string
}

// LoadImageFolder decodes every PNG, JPEG and GIF file directly under dir.
// Images are resized to shape's height and width; shape.Channels must be 1
// (luminance) or 3 (RGB).
func LoadImageFolder(ctx context.Context, dir string, shape Shape) (*ImageFolder, error) {
	if shape.Channels != 1 && shape.Channels != 3 {
		return nil, errors.Errorf("unsupported channel count %d", shape.Channels)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %v", dir)
	}
	sort.Strings(files)

	images := make([][]float32, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.GOMAXPROCS(0)-1, 1))
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			im, err := decodeFile(f)
			if err != nil {
				return err
			}
			images[i] = CHW(im, shape)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ImageFolder{
		Memory: Memory{shape: shape, images: images},
		Files:  files,
	}, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	im, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %v", path)
	}
	return im, nil
}

// CHW resizes im to the height and width of shape and returns its pixels in
// CHW order with values in [0, 255].
func CHW(im image.Image, shape Shape) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, shape.Width, shape.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), im, im.Bounds(), draw.Src, nil)

	plane := shape.Height * shape.Width
	retVal := make([]float32, shape.Size())
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			off := dst.PixOffset(x, y)
			r, g, b := float32(dst.Pix[off]), float32(dst.Pix[off+1]), float32(dst.Pix[off+2])
			i := y*shape.Width + x
			if shape.Channels == 1 {
				retVal[i] = 0.299*r + 0.587*g + 0.114*b
				continue
			}
			retVal[i] = r
			retVal[plane+i] = g
			retVal[2*plane+i] = b
		}
	}
	return retVal
}
