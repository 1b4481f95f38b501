package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Options controls thumbnail rendering.
type Options struct {
	DPI       int
	Quality   int
	ColorMode ColorMode
}

// DefaultOptions renders small previews suitable for a page grid.
var DefaultOptions = Options{DPI: 36, Quality: 70, ColorMode: ColorRGB}

// Thumbnail is a rendered page.
type Thumbnail struct {
	JPEG   []byte
	Width  int
	Height int
}

// RenderPage renders page pageNum (1-based) of the PDF in data as JPEG.
func RenderPage(data []byte, pageNum int, opts Options) (*Thumbnail, error) {
	if opts.DPI <= 0 { opts.DPI = DefaultOptions.DPI }
	if opts.Quality <= 0 || opts.Quality > 100 { opts.Quality = DefaultOptions.Quality }

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if pageNum < 1 || pageNum > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", pageNum, doc.NumPage())
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}

	bounds := img.Bounds()
	var finalImg image.Image = img
	if opts.ColorMode == ColorGray {
		grayImg := image.NewGray(bounds)
		draw.Draw(grayImg, bounds, img, image.Point{}, draw.Src)
		finalImg = grayImg
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, finalImg, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", pageNum).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("jpeg_size", buf.Len()).
		Str("color", string(opts.ColorMode)).
		Msg("rendered page thumbnail")

	return &Thumbnail{JPEG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
