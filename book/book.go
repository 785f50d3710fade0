// Package book resolves the fragment graph of a parsed container into a
// renderer-agnostic book model.
//
// Resolution is a pure function of the store. Missing or malformed pieces
// below the root are skipped with a warning in the diag.Report passed through
// WithReport; only a missing or ambiguous root fails.
package book

import (
	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

// Book is the resolved model shared by all renderers. It must not be
// modified after Resolve returns.
type Book struct {
	Root       string     `json:"root"`
	Metadata   Metadata   `json:"metadata"`
	Sections   []Section  `json:"sections"`
	Resources  []Resource `json:"resources"`
	Styles     []Style    `json:"styles"`
	Navigation Navigation `json:"navigation"`
	Layout     Layout     `json:"layout"`
	Cover      string     `json:"cover,omitempty"`

	// Store is the source of the book, kept for diagnostic dumps.
	Store *kfx.Store `json:"-"`

	resources map[string]int
	styles    map[string]int
	sections  map[string]int
}

// Metadata is the descriptive information of a book as stored in the
// container. Language is normalized to a BCP 47 tag when it parses and kept
// verbatim otherwise; empty fields were absent.
type Metadata struct {
	Title           string   `json:"title,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	Language        string   `json:"language,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	Description     string   `json:"description,omitempty"`
	Identifier      string   `json:"identifier,omitempty"`
	ISBN            string   `json:"isbn,omitempty"`
	ASIN            string   `json:"asin,omitempty"`
	IssueDate       string   `json:"issue_date,omitempty"`
	Subjects        []string `json:"subjects,omitempty"`
	Rights          string   `json:"rights,omitempty"`
	BookType        string   `json:"book_type,omitempty"`
	PageProgression string   `json:"page_progression,omitempty"`
	Orientation     string   `json:"orientation,omitempty"`
}

// Section is one entry of the reading order. Start and Length are measured
// in positions: one per text rune and one per image.
type Section struct {
	ID         string  `json:"id"`
	Index      int     `json:"index"`
	Style      string  `json:"style,omitempty"`
	PageWidth  int     `json:"page_width,omitempty"`
	PageHeight int     `json:"page_height,omitempty"`
	Blocks     []Block `json:"blocks"`
	Start      int     `json:"start"`
	Length     int     `json:"length"`
}

// BlockKind distinguishes the content blocks of a section.
type BlockKind string

const (
	BlockText      BlockKind = "text"
	BlockHeading   BlockKind = "heading"
	BlockImage     BlockKind = "image"
	BlockContainer BlockKind = "container"
)

// Block is one content item. Offset is the absolute position of its first
// character.
type Block struct {
	Kind       BlockKind `json:"kind"`
	PositionID int64     `json:"position_id"`
	Text       string    `json:"text,omitempty"`
	Level      int       `json:"level,omitempty"`
	Style      string    `json:"style,omitempty"`
	Resource   string    `json:"resource,omitempty"`
	AltText    string    `json:"alt_text,omitempty"`
	Children   []Block   `json:"children,omitempty"`
	Offset     int       `json:"offset"`
	Length     int       `json:"length"`
}

// Walk calls fn for every block of the section in reading order, parents
// before their children.
func (s *Section) Walk(fn func(*Block)) {
	walkBlocks(s.Blocks, fn)
}

func walkBlocks(blocks []Block, fn func(*Block)) {
	for i := range blocks {
		fn(&blocks[i])
		walkBlocks(blocks[i].Children, fn)
	}
}

// Resource returns the resource called id.
func (b *Book) Resource(id string) (*Resource, bool) {
	i, ok := b.resources[id]
	if !ok {
		return nil, false
	}
	return &b.Resources[i], true
}

// Style returns the flattened style called id.
func (b *Book) Style(id string) (*Style, bool) {
	i, ok := b.styles[id]
	if !ok {
		return nil, false
	}
	return &b.Styles[i], true
}

// Section returns the section called id.
func (b *Book) Section(id string) (*Section, bool) {
	i, ok := b.sections[id]
	if !ok {
		return nil, false
	}
	return &b.Sections[i], true
}

// CoverResource returns the cover image, if the book has one.
func (b *Book) CoverResource() (*Resource, bool) {
	if b.Cover == "" {
		return nil, false
	}
	return b.Resource(b.Cover)
}

// Option configures Resolve.
type Option func(*resolver)

// WithReport collects warnings in r.
func WithReport(r *diag.Report) Option {
	return func(rs *resolver) { rs.report = r }
}
