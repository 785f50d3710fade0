// Package pdf extracts the embedded document of print replica books and
// assembles a PDF from the page images of image based books.
package pdf

import (
	"bytes"
	"compress/flate"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"time"

	"github.com/signintech/gopdf"

	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/render"
)

const producer = "go-kfx"

// epoch stamps synthesized documents so that output is reproducible.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// letter is the default page size; every page overrides it.
var letter = gopdf.Rect{W: 612, H: 792}

// Renderer produces PDF output.
type Renderer struct{}

func New() Renderer { return Renderer{} }

func (Renderer) Format() render.Format { return render.FormatPDF }

// Render returns the embedded PDF verbatim when the book has one, and
// otherwise builds a PDF with one page per page image.
func (Renderer) Render(b *book.Book, opts render.Options) ([]byte, error) {
	if b.Layout.HasPDFResource {
		res, ok := b.Resource(b.Layout.PDFResource)
		if !ok {
			return nil, render.MissingResource(render.FormatPDF, b.Layout.PDFResource, nil)
		}
		return res.Data, nil
	}
	if !b.Layout.ImageBased() {
		return nil, render.Unsupported(render.FormatPDF, b.Layout.Kind)
	}
	return synthesize(b, opts)
}

// synthesize writes pages and images in reading order; gopdf numbers
// objects in insertion order, so equal inputs give equal bytes.
func synthesize(b *book.Book, opts render.Options) ([]byte, error) {
	doc := &gopdf.GoPdf{}
	doc.Start(gopdf.Config{Unit: gopdf.UnitPT, PageSize: letter})
	doc.SetCompressLevel(compressLevel(opts.CompressionLevel))
	info := gopdf.PdfInfo{Producer: producer, Creator: producer, CreationDate: epoch}
	info.Title = b.Metadata.Title
	if len(b.Metadata.Authors) > 0 {
		info.Author = b.Metadata.Authors[0]
	}
	doc.SetInfo(info)

	for i, page := range b.Layout.Pages {
		res, ok := b.Resource(page.Resource)
		if !ok {
			return nil, render.MissingResource(render.FormatPDF, page.Resource, fmt.Errorf("page %d", i+1))
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
		if err != nil {
			return nil, render.MissingResource(render.FormatPDF, page.Resource, fmt.Errorf("decode image header: %w", err))
		}
		pw, ph := float64(page.Width), float64(page.Height)
		if pw <= 0 || ph <= 0 {
			pw, ph = float64(cfg.Width), float64(cfg.Height)
		}
		size := gopdf.Rect{W: pw, H: ph}
		doc.AddPageWithOption(gopdf.PageOption{PageSize: &size})
		if err := place(doc, res, &size); err != nil {
			return nil, render.MissingResource(render.FormatPDF, page.Resource, err)
		}
	}

	out, err := doc.GetBytesPdfReturnErr()
	if err != nil {
		return nil, render.ArchiveWrite(render.FormatPDF, err)
	}
	return out, nil
}

// place draws a page image over the whole page. JPEG data is embedded
// unchanged; images gopdf cannot read directly, such as interlaced or
// 16-bit PNGs and GIFs, are decoded and re-encoded as plain PNG.
func place(doc *gopdf.GoPdf, res *book.Resource, size *gopdf.Rect) error {
	if h, err := gopdf.ImageHolderByBytes(res.Data); err == nil {
		if err := doc.ImageByHolder(h, 0, 0, size); err == nil {
			return nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	rgba := image.NewNRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	var flat bytes.Buffer
	if err := png.Encode(&flat, rgba); err != nil {
		return err
	}
	h, err := gopdf.ImageHolderByBytes(flat.Bytes())
	if err != nil {
		return err
	}
	return doc.ImageByHolder(h, 0, 0, size)
}

// compressLevel maps the archive Deflate level onto the content stream level.
func compressLevel(level int) int {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return flate.DefaultCompression
	}
	return level
}
