// Package position exports the reading positions of a book as JSON so that
// external tools can map reading locations onto content.
package position

import (
	"encoding/json"

	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/render"
)

// Document is the exported position map of one book.
type Document struct {
	Title    string    `json:"title,omitempty"`
	Length   int       `json:"length"`
	Sections []Section `json:"sections"`
	Content  []Content `json:"content"`
}

// Section gives the character range of one section and the position ids of
// its first and last blocks.
type Section struct {
	Index           int    `json:"index"`
	ID              string `json:"id"`
	Start           int    `json:"start"`
	Length          int    `json:"length"`
	FirstPositionID int64  `json:"first_position_id,omitempty"`
	LastPositionID  int64  `json:"last_position_id,omitempty"`
}

// Content is one block at its position.
type Content struct {
	PositionID int64  `json:"position_id"`
	Section    string `json:"section"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Resource   string `json:"resource,omitempty"`
}

// Renderer produces the position JSON.
type Renderer struct{}

func New() Renderer { return Renderer{} }

func (Renderer) Format() render.Format { return render.FormatPosition }

func (Renderer) Render(b *book.Book, _ render.Options) ([]byte, error) {
	return encode(Build(b))
}

func encode(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, render.ArchiveWrite(render.FormatPosition, err)
	}
	return append(out, '\n'), nil
}

// Build collects the positions of b in reading order.
func Build(b *book.Book) Document {
	doc := Document{
		Title:    b.Metadata.Title,
		Sections: make([]Section, 0, len(b.Sections)),
		Content:  []Content{},
	}
	for i := range b.Sections {
		sec := &b.Sections[i]
		s := Section{Index: sec.Index, ID: sec.ID, Start: sec.Start, Length: sec.Length}
		first := true
		sec.Walk(func(blk *book.Block) {
			if first {
				s.FirstPositionID, first = blk.PositionID, false
			}
			s.LastPositionID = blk.PositionID
			doc.Content = append(doc.Content, Content{
				PositionID: blk.PositionID,
				Section:    sec.ID,
				Offset:     blk.Offset,
				Length:     blk.Length,
				Type:       string(blk.Kind),
				Text:       blk.Text,
				Resource:   blk.Resource,
			})
		})
		doc.Sections = append(doc.Sections, s)
		doc.Length = sec.Start + sec.Length
	}
	return doc
}
