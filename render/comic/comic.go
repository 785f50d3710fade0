// Package comic writes image based books as CBZ archives: one image per
// page, named by page number, and nothing else.
package comic

import (
	"fmt"

	"github.com/logicossoftware/go-kfx/archive"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/render"
)

// Renderer produces CBZ archives.
type Renderer struct{}

func New() Renderer { return Renderer{} }

func (Renderer) Format() render.Format { return render.FormatCBZ }

func (Renderer) Render(b *book.Book, opts render.Options) ([]byte, error) {
	if !b.Layout.ImageBased() {
		return nil, render.Unsupported(render.FormatCBZ, b.Layout.Kind)
	}
	w := archive.NewWriter(archive.WithLevel(opts.CompressionLevel))
	for i, page := range b.Layout.Pages {
		res, ok := b.Resource(page.Resource)
		if !ok {
			return nil, render.MissingResource(render.FormatCBZ, page.Resource, fmt.Errorf("page %d", i+1))
		}
		name := fmt.Sprintf("%04d%s", i+1, book.Extension(res.MediaType))
		// Images are already compressed.
		if err := w.AddStored(name, res.Data); err != nil {
			return nil, render.ArchiveWrite(render.FormatCBZ, err)
		}
	}
	out, err := w.Bytes()
	if err != nil {
		return nil, render.ArchiveWrite(render.FormatCBZ, err)
	}
	return out, nil
}
