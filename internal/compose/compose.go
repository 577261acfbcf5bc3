// Package compose prepares reference images for video generation: center
// cropping a single image to the target frame, and tiling several images
// into one grid composite.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	_ "image/gif"
)

// MaxGridImages caps how many images a composite will tile; extra inputs
// are dropped from the end.
const MaxGridImages = 9

var (
	ErrNoImages      = errors.New("no images provided")
	ErrDecodeFailed  = errors.New("unable to load image")
	ErrEncodeFailed  = errors.New("failed to process image")
	ErrInvalidTarget = errors.New("target dimensions must be positive")
)

// Image is an encoded image with its metadata.
type Image struct {
	Data []byte
	Mime string
	Name string
}

// CropToCover scales and center-crops an image to exactly width x height,
// the way CSS object-fit cover frames a picture. The source encoding is
// preserved for JPEG and PNG; other formats re-encode as PNG.
func CropToCover(src Image, width, height int) (Image, error) {
	if width <= 0 || height <= 0 {
		return Image{}, ErrInvalidTarget
	}

	decoded, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	drawCover(out, out.Bounds(), decoded)

	mime := normalizeMime(src.Mime)
	data, err := encode(out, mime)
	if err != nil {
		return Image{}, err
	}

	return Image{
		Data: data,
		Mime: mime,
		Name: cropName(src.Name, width, height, mime),
	}, nil
}

// ComposeGrid tiles up to nine images into a single width x height PNG. A
// single input delegates to CropToCover and keeps its encoding. Decoding
// runs in parallel and any failure fails the whole composite.
func ComposeGrid(ctx context.Context, images []Image, width, height int) (Image, error) {
	if len(images) == 0 {
		return Image{}, ErrNoImages
	}
	if width <= 0 || height <= 0 {
		return Image{}, ErrInvalidTarget
	}
	if len(images) == 1 {
		return CropToCover(images[0], width, height)
	}
	if len(images) > MaxGridImages {
		images = images[:MaxGridImages]
	}

	cols, rows := gridShape(len(images))

	decoded := make([]image.Image, len(images))
	g, ctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, _, err := image.Decode(bytes.NewReader(img.Data))
			if err != nil {
				return fmt.Errorf("%w: image %d: %v", ErrDecodeFailed, i+1, err)
			}
			decoded[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Image{}, err
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	cellW := width / cols
	cellH := height / rows
	for i, d := range decoded {
		col := i % cols
		row := i / cols

		x0 := col * cellW
		y0 := row * cellH
		x1 := x0 + cellW
		y1 := y0 + cellH
		// The last column and row absorb any remainder so the grid always
		// fills the frame exactly.
		if col == cols-1 {
			x1 = width
		}
		if row == rows-1 {
			y1 = height
		}

		drawCover(out, image.Rect(x0, y0, x1, y1), d)
	}

	data, err := encode(out, "image/png")
	if err != nil {
		return Image{}, err
	}

	return Image{
		Data: data,
		Mime: "image/png",
		Name: fmt.Sprintf("composite-%d-images-%dx%d.png", len(images), width, height),
	}, nil
}

// gridShape maps an image count to its grid columns and rows.
func gridShape(count int) (cols, rows int) {
	switch {
	case count <= 2:
		return 2, 1
	case count <= 4:
		return 2, 2
	case count <= 6:
		return 3, 2
	default:
		return 3, 3
	}
}

// drawCover scales src to cover dst's rect, cropping the overflow around
// the center.
func drawCover(dst *image.RGBA, rect image.Rectangle, src image.Image) {
	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()
	dstW := rect.Dx()
	dstH := rect.Dy()
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	cropW := srcW
	cropH := srcH
	if srcAspect > dstAspect {
		cropW = int(float64(srcH) * dstAspect)
	} else {
		cropH = int(float64(srcW) / dstAspect)
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}

	x0 := srcBounds.Min.X + (srcW-cropW)/2
	y0 := srcBounds.Min.Y + (srcH-cropH)/2
	cropRect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	draw.CatmullRom.Scale(dst, rect, src, cropRect, draw.Src, nil)
}

func encode(img image.Image, mime string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch mime {
	case "image/jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

func normalizeMime(mime string) string {
	switch mime {
	case "image/jpeg", "image/png":
		return mime
	default:
		return "image/png"
	}
}

func cropName(original string, width, height int, mime string) string {
	ext := ".png"
	if mime == "image/jpeg" {
		ext = ".jpg"
	}
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "reference"
	}
	return fmt.Sprintf("%s-%dx%d%s", base, width, height, ext)
}
