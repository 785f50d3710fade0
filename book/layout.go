package book

// LayoutKind classifies how a book is laid out.
type LayoutKind string

const (
	Reflowable       LayoutKind = "reflowable"
	FixedLayoutImage LayoutKind = "fixed_layout_image"
	FixedLayoutComic LayoutKind = "fixed_layout_comic"
	PrintReplicaPDF  LayoutKind = "print_replica_pdf"
)

// Layout is the classification of a book together with the page list of
// image based layouts.
type Layout struct {
	Kind           LayoutKind `json:"kind"`
	HasPDFResource bool       `json:"has_pdf_resource"`
	PDFResource    string     `json:"pdf_resource,omitempty"`
	Pages          []Page     `json:"pages,omitempty"`
}

// Page is one page of an image-based fixed layout.
type Page struct {
	Section  string `json:"section"`
	Resource string `json:"resource"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ImageBased reports whether every section is a single page image.
func (l Layout) ImageBased() bool {
	return l.Kind == FixedLayoutImage || l.Kind == FixedLayoutComic
}

// Classify derives the layout from resolved content. A book is image based
// when every section holds exactly one image block and no text. It has a PDF
// resource when exactly one resource is the print replica, or failing that,
// exactly one resource is a PDF.
func Classify(sections []Section, resources []Resource, meta Metadata) Layout {
	byID := make(map[string]*Resource, len(resources))
	var replicas, pdfs []string
	for i := range resources {
		res := &resources[i]
		byID[res.ID] = res
		if res.Usage == UsagePrintReplica {
			replicas = append(replicas, res.ID)
		}
		if res.MediaType == "application/pdf" {
			pdfs = append(pdfs, res.ID)
		}
	}

	var l Layout
	switch {
	case len(replicas) == 1:
		l.HasPDFResource, l.PDFResource = true, replicas[0]
	case len(replicas) == 0 && len(pdfs) == 1:
		l.HasPDFResource, l.PDFResource = true, pdfs[0]
	}

	if pages, ok := imagePages(sections, byID); ok {
		l.Pages = pages
		l.Kind = FixedLayoutImage
		if meta.BookType == "comic" {
			l.Kind = FixedLayoutComic
		}
		return l
	}
	if l.HasPDFResource {
		l.Kind = PrintReplicaPDF
	} else {
		l.Kind = Reflowable
	}
	return l
}

func imagePages(sections []Section, resources map[string]*Resource) ([]Page, bool) {
	if len(sections) == 0 {
		return nil, false
	}
	pages := make([]Page, 0, len(sections))
	for i := range sections {
		sec := &sections[i]
		var images []*Block
		hasText := false
		sec.Walk(func(b *Block) {
			switch {
			case b.Kind == BlockImage:
				images = append(images, b)
			case b.Text != "":
				hasText = true
			}
		})
		if hasText || len(images) != 1 {
			return nil, false
		}
		res, ok := resources[images[0].Resource]
		if !ok || !res.IsImage() {
			return nil, false
		}
		p := Page{Section: sec.ID, Resource: res.ID, Width: sec.PageWidth, Height: sec.PageHeight}
		if p.Width == 0 || p.Height == 0 {
			p.Width, p.Height = res.Width, res.Height
		}
		pages = append(pages, p)
	}
	return pages, true
}
