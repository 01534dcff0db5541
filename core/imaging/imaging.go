// Package imaging decodes an image and re-encodes it at a given quality and
// target format.
package imaging

import (
	"bytes"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/FocuswithJustin/convertkit/core/errors"
	"github.com/FocuswithJustin/convertkit/internal/validation"
)

// DefaultQuality applies when Options.Quality is zero.
const DefaultQuality = 80

// Output formats.
const (
	FormatJPEG     = "jpeg"
	FormatPNG      = "png"
	FormatGIF      = "gif"
	FormatBMP      = "bmp"
	FormatTIFF     = "tiff"
	FormatOriginal = "original"
)

// Options controls Reencode. Quality runs 1..100; values outside are
// clamped and 0 means DefaultQuality. Format "" or "original" keeps the
// source format.
type Options struct {
	Quality int    `json:"quality"`
	Format  string `json:"format"`
}

// Result is a re-encoded image.
type Result struct {
	Data         []byte `json:"-"`
	Format       string `json:"format"`
	SourceFormat string `json:"source_format"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int    `json:"size"`
	OriginalSize int    `json:"original_size"`
}

// Formats lists the accepted target formats.
func Formats() []string {
	return []string{FormatBMP, FormatGIF, FormatJPEG, FormatPNG, FormatTIFF}
}

// NormalizeQuality applies the default and clamps to 1..100.
func NormalizeQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// targetFormat resolves the requested output format for a source decoded as
// source. WebP has no encoder here, so it falls back to PNG.
func targetFormat(requested, source string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(requested))
	switch f {
	case "", FormatOriginal:
		f = source
		if f == "webp" {
			f = FormatPNG
		}
	case "jpg":
		f = FormatJPEG
	case "tif":
		f = FormatTIFF
	}
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF:
		return f, nil
	}
	return "", errors.NewUnsupported("image format", requested)
}

// Reencode decodes data and encodes it again according to opts. The header
// is checked against validation.MaxImagePixels before the pixels are decoded.
func Reencode(data []byte, opts Options) (*Result, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &errors.ParseError{Format: "image", Message: err.Error(), Err: err}
	}
	if err := validation.ValidateImageDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, source, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &errors.ParseError{Format: "image", Message: err.Error(), Err: err}
	}

	format, err := targetFormat(opts.Format, source)
	if err != nil {
		return nil, err
	}
	quality := NormalizeQuality(opts.Quality)

	var buf bytes.Buffer
	if err := encode(&buf, img, format, quality); err != nil {
		return nil, errors.Wrapf(err, "encode %s", format)
	}

	b := img.Bounds()
	return &Result{
		Data:         buf.Bytes(),
		Format:       format,
		SourceFormat: source,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Size:         buf.Len(),
		OriginalSize: len(data),
	}, nil
}

func encode(buf *bytes.Buffer, img image.Image, format string, quality int) error {
	switch format {
	case FormatJPEG:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(quality)}
		return enc.Encode(buf, img)
	case FormatGIF:
		return gif.Encode(buf, img, &gif.Options{NumColors: gifColors(quality), Drawer: draw.FloydSteinberg})
	case FormatBMP:
		return bmp.Encode(buf, img)
	case FormatTIFF:
		return tiff.Encode(buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return errors.NewUnsupported("image format", format)
}

// pngLevel maps quality onto zlib effort. Lower quality compresses harder.
func pngLevel(quality int) png.CompressionLevel {
	switch {
	case quality >= 90:
		return png.BestSpeed
	case quality >= 50:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// gifColors maps quality 1..100 onto a palette of 2..256 colors.
func gifColors(quality int) int {
	n := quality * len(palette.Plan9) / 100
	if n < 2 {
		n = 2
	}
	return n
}
