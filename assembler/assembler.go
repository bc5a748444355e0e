// Package assembler turns an ordered set of page images into one PDF.
package assembler

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register decoder
	"io"
	"log/slog"
	"sync"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"

	"github.com/use-agent/topdf/models"
)

const stage = "assemble"

// Options controls normalization and encoding.
type Options struct {
	// JPEGQuality is the re-encode quality (1-100). Default 85.
	JPEGQuality int
}

// Assembler builds PDFs. It is safe for concurrent use.
type Assembler struct {
	opts Options
}

var disableConfigDir sync.Once

// New creates an Assembler.
func New(opts Options) *Assembler {
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	// pdfcpu otherwise creates a config directory under the user's home.
	disableConfigDir.Do(pdfapi.DisableConfigDir)
	return &Assembler{opts: opts}
}

// Build assembles images (PNG or JPEG, in page order) into a PDF with one
// page per image. Every page has the same size: the widest and tallest
// dimensions in the set, with smaller images centered on white.
func (a *Assembler) Build(ctx context.Context, images [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.BuildTo(ctx, &buf, images); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTo assembles images and writes the PDF to w.
func (a *Assembler) BuildTo(ctx context.Context, w io.Writer, images [][]byte) error {
	if len(images) == 0 {
		return models.NewConvertError(models.KindPDFBuild, "no pages to assemble", nil).WithStage(stage)
	}

	// ── 1. Decode ─────────────────────────────────────────────────────
	decoded := make([]image.Image, len(images))
	for i, data := range images {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return models.NewConvertError(models.KindPDFBuild, "could not decode page image", err).
				WithStage(stage).WithPage(i + 1)
		}
		if img.Bounds().Empty() {
			return models.NewConvertError(models.KindPDFBuild, "page image has no pixels", nil).
				WithStage(stage).WithPage(i + 1)
		}
		decoded[i] = img
	}

	// ── 2. Normalize to a common page size ────────────────────────────
	target := TargetSize(decoded)

	// ── 3. Re-encode as JPEG ──────────────────────────────────────────
	readers := make([]io.Reader, len(decoded))
	for i, img := range decoded {
		if err := ctx.Err(); err != nil {
			return models.NewConvertError(models.KindCanceled, "assembly interrupted", err).WithStage(stage)
		}
		var out bytes.Buffer
		if err := jpeg.Encode(&out, Fit(img, target), &jpeg.Options{Quality: a.opts.JPEGQuality}); err != nil {
			return models.NewConvertError(models.KindPDFBuild, "could not encode page image", err).
				WithStage(stage).WithPage(i + 1)
		}
		readers[i] = &out
	}

	// ── 4. Assemble: one page per image, page size = image size ───────
	conf := model.NewDefaultConfiguration()
	if err := pdfapi.ImportImages(nil, w, readers, nil, conf); err != nil {
		return models.NewConvertError(models.KindPDFBuild, "could not write PDF", err).WithStage(stage)
	}

	slog.Debug("pdf assembled", "pages", len(images), "width", target.X, "height", target.Y)
	return nil
}

// TargetSize returns the largest width and the largest height in the set.
func TargetSize(images []image.Image) image.Point {
	var p image.Point
	for _, img := range images {
		b := img.Bounds()
		if b.Dx() > p.X {
			p.X = b.Dx()
		}
		if b.Dy() > p.Y {
			p.Y = b.Dy()
		}
	}
	return p
}

// Fit scales img to fit within size preserving its aspect ratio and
// centers it on a white canvas of exactly size.
func Fit(img image.Image, size image.Point) image.Image {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if b.Dx() == size.X && b.Dy() == size.Y {
		draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)
		return canvas
	}

	sx := float64(size.X) / float64(b.Dx())
	sy := float64(size.Y) / float64(b.Dy())
	scale := min(sx, sy)

	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	w, h = min(w, size.X), min(h, size.Y)

	off := image.Pt((size.X-w)/2, (size.Y-h)/2)
	dst := image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}
	draw.CatmullRom.Scale(canvas, dst, img, b, draw.Over, nil)
	return canvas
}
