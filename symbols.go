package kfx

import "slices"

// CatalogVersion is the newest shared symbol catalog this package knows.
const CatalogVersion uint32 = 1

// sharedCatalog is append-only: a symbol's id is its index, so entries must
// never be reordered or removed. Index 0 is the null symbol.
var sharedCatalog = []string{
	"",
	// fragment types
	"book", "metadata", "section", "storyline", "content", "style",
	"resource", "raw_media", "navigation",
	// book and metadata
	"sections", "cover_image", "print_replica", "book_type", "title",
	"authors", "author", "language", "publisher", "description",
	"identifier", "isbn", "asin", "issue_date", "subjects", "rights",
	"fixed_layout", "orientation", "page_progression",
	// sections and storylines
	"page_template", "width", "height", "content_list", "id", "type",
	"text", "name", "index", "level", "alt_text", "page_spread",
	// styles
	"parent_style", "value", "unit", "font_size", "font_weight",
	"font_style", "font_family", "text_align", "text_indent",
	"line_height", "margin_top", "margin_bottom", "margin_left",
	"margin_right", "padding_top", "padding_bottom", "padding_left",
	"padding_right", "color", "background_color", "text_decoration",
	"text_transform", "letter_spacing", "vertical_align", "display",
	"page_break_before", "page_break_after",
	// resources
	"format", "mime", "location", "usage", "data",
	// navigation
	"toc", "landmarks", "page_list", "label", "target", "offset",
	"entries", "children",
	// enumerations
	"image", "heading", "paragraph", "container", "cover", "font",
	"audio", "video", "comic", "children_book", "normal", "bold",
	"italic", "center", "left", "right", "justify", "underline",
	"line_through", "em", "percent", "px", "pt", "rem", "lh",
	"bodymatter", "jpg", "png", "gif", "svg", "pdf", "ttf", "otf",
	"woff", "portrait", "landscape", "ltr", "rtl", "none", "always",
	"avoid", "uppercase", "lowercase", "block", "inline", "top",
	"middle", "bottom", "super", "sub", "true", "false",
}

var sharedIndex = func() map[string]uint32 {
	m := make(map[string]uint32, len(sharedCatalog))
	for i, name := range sharedCatalog {
		if i == 0 {
			continue
		}
		m[name] = uint32(i)
	}
	return m
}()

// SharedCatalog returns a copy of the shared symbol catalog, null symbol
// included.
func SharedCatalog() []string {
	return slices.Clone(sharedCatalog)
}

// SymbolTable resolves symbol ids of one container part: the shared catalog
// followed by the part's local symbols.
type SymbolTable struct {
	local []string
	index map[string]uint32
}

func newSymbolTable(local []string) *SymbolTable {
	st := &SymbolTable{local: local, index: make(map[string]uint32, len(local))}
	for i, name := range local {
		if _, ok := sharedIndex[name]; ok {
			continue
		}
		if _, ok := st.index[name]; !ok {
			st.index[name] = uint32(len(sharedCatalog) + i)
		}
	}
	return st
}

// Len returns the number of valid ids; every valid id is < Len.
func (st *SymbolTable) Len() int {
	return len(sharedCatalog) + len(st.local)
}

// Name returns the name for id.
func (st *SymbolTable) Name(id uint32) (string, bool) {
	if int64(id) < int64(len(sharedCatalog)) {
		return sharedCatalog[id], true
	}
	i := int64(id) - int64(len(sharedCatalog))
	if i >= int64(len(st.local)) {
		return "", false
	}
	return st.local[i], true
}

// Lookup returns the id of name, preferring the shared catalog.
func (st *SymbolTable) Lookup(name string) (uint32, bool) {
	if name == "" {
		return 0, true
	}
	if id, ok := sharedIndex[name]; ok {
		return id, true
	}
	id, ok := st.index[name]
	return id, ok
}

// LocalNames returns a copy of the local symbols in id order.
func (st *SymbolTable) LocalNames() []string {
	return slices.Clone(st.local)
}

// interner builds a local symbol table while encoding.
type interner struct {
	local []string
	index map[string]uint32
}

func newInterner() *interner {
	return &interner{index: make(map[string]uint32)}
}

func (in *interner) intern(name string) uint32 {
	if name == "" {
		return 0
	}
	if id, ok := sharedIndex[name]; ok {
		return id
	}
	if id, ok := in.index[name]; ok {
		return id
	}
	id := uint32(len(sharedCatalog) + len(in.local))
	in.local = append(in.local, name)
	in.index[name] = id
	return id
}
