// Package epub writes reflowable books as EPUB 3 or EPUB 2 packages. Image
// based books become pre-paginated EPUB when Options.AllowFixedLayout is set.
package epub

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logicossoftware/go-kfx/archive"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/render"
)

const (
	mimetype      = "application/epub+zip"
	containerPath = "META-INF/container.xml"
	contentDir    = "OEBPS/"
	opfHref       = "content.opf"
	ncxHref       = "toc.ncx"
	navHref       = "nav.xhtml"
	cssHref       = "styles/stylesheet.css"
	coverPageHref = "text/cover.xhtml"

	xhtmlType = "application/xhtml+xml"
)

// epoch stands in for dcterms:modified when the book has no usable date.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

var errNoTitle = errors.New("no title to draw a cover from")

// Renderer produces EPUB 2 or EPUB 3 packages.
type Renderer struct{}

func New() Renderer { return Renderer{} }

func (Renderer) Format() render.Format { return render.FormatEPUB }

func (Renderer) Render(b *book.Book, opts render.Options) ([]byte, error) {
	fixed := b.Layout.ImageBased()
	switch {
	case b.Layout.Kind == book.Reflowable:
	case fixed && opts.AllowFixedLayout:
	default:
		return nil, render.Unsupported(render.FormatEPUB, b.Layout.Kind)
	}
	if len(b.Sections) == 0 {
		return nil, render.MissingResource(render.FormatEPUB, "", errors.New("book has no sections"))
	}
	p := &pkg{
		b:        b,
		opts:     opts,
		epub3:    !opts.EPUB2,
		fixed:    fixed,
		lang:     xmlSafe(b.Metadata.Language),
		resHref:  make(map[string]string),
		secHref:  make(map[string]string),
		hrefs:    make(map[string]bool),
		anchors:  make(map[string]bool),
		classes:  make(map[string]string),
		classSet: make(map[string]bool),
	}
	if p.lang == "" {
		p.lang = "und"
	}
	p.identifier = identifier(b)
	if err := p.build(); err != nil {
		return nil, err
	}
	return p.write()
}

type file struct {
	href   string
	data   []byte
	stored bool
}

// pkg accumulates one EPUB package. Hrefs are relative to the OEBPS
// directory.
type pkg struct {
	b          *book.Book
	opts       render.Options
	epub3      bool
	fixed      bool
	lang       string
	identifier string

	manifest []opfItem
	spine    []opfItemRef
	docs     []file
	media    []file
	head     []file

	resHref   map[string]string
	resItem   map[string]string
	secHref   map[string]string
	secTitle  map[string]string
	sections  []string
	hrefs     map[string]bool
	anchors   map[string]bool
	classes   map[string]string
	classSet  map[string]bool
	coverItem string
	coverPage string
}

func (p *pkg) build() error {
	p.manifest = append(p.manifest, opfItem{ID: "ncx", Href: ncxHref, MediaType: "application/x-dtbncx+xml"})
	if p.epub3 {
		p.manifest = append(p.manifest, opfItem{ID: "nav", Href: navHref, MediaType: xhtmlType, Properties: "nav"})
	}
	p.manifest = append(p.manifest, opfItem{ID: "css", Href: cssHref, MediaType: "text/css"})
	for i := range p.b.Styles {
		p.className(p.b.Styles[i].ID)
	}

	resources := p.resourceItems()
	if err := p.cover(resources); err != nil {
		return err
	}
	if err := p.sectionDocs(); err != nil {
		return err
	}
	p.manifest = append(p.manifest, resources...)

	toc := p.toc()
	pages := p.pageList()
	landmarks := p.landmarks()

	ncx, err := p.ncx(toc, pages)
	if err != nil {
		return fmt.Errorf("epub: encode %s: %w", ncxHref, err)
	}
	p.head = append(p.head, file{href: ncxHref, data: ncx})
	if p.epub3 {
		nav, err := p.navDocument(toc, pages, landmarks)
		if err != nil {
			return fmt.Errorf("epub: encode %s: %w", navHref, err)
		}
		p.head = append(p.head, file{href: navHref, data: nav})
	}
	p.head = append(p.head, file{href: cssHref, data: p.stylesheet()})

	opf, err := p.opf(landmarks)
	if err != nil {
		return fmt.Errorf("epub: encode %s: %w", opfHref, err)
	}
	p.head = append([]file{{href: opfHref, data: opf}}, p.head...)
	return nil
}

func (p *pkg) write() ([]byte, error) {
	w := archive.NewWriter(archive.WithLevel(p.opts.CompressionLevel))
	if err := w.AddStored("mimetype", []byte(mimetype)); err != nil {
		return nil, render.ArchiveWrite(render.FormatEPUB, err)
	}
	container, err := containerXML()
	if err != nil {
		return nil, fmt.Errorf("epub: encode %s: %w", containerPath, err)
	}
	if err := w.Add(containerPath, container); err != nil {
		return nil, render.ArchiveWrite(render.FormatEPUB, err)
	}
	for _, group := range [][]file{p.head, p.docs, p.media} {
		for _, f := range group {
			add := w.Add
			if f.stored {
				add = w.AddStored
			}
			if err := add(contentDir+f.href, f.data); err != nil {
				return nil, render.ArchiveWrite(render.FormatEPUB, err)
			}
		}
	}
	out, err := w.Bytes()
	if err != nil {
		return nil, render.ArchiveWrite(render.FormatEPUB, err)
	}
	return out, nil
}

// resourceItems places every resource and returns its manifest items.
func (p *pkg) resourceItems() []opfItem {
	p.resItem = make(map[string]string, len(p.b.Resources))
	items := make([]opfItem, 0, len(p.b.Resources))
	for i := range p.b.Resources {
		res := &p.b.Resources[i]
		id := fmt.Sprintf("res%04d", i+1)
		href := p.claim(resourceDir(res) + res.Filename)
		p.resHref[res.ID] = href
		p.resItem[res.ID] = id
		items = append(items, opfItem{ID: id, Href: href, MediaType: res.MediaType})
		p.media = append(p.media, file{href: href, data: res.Data, stored: res.IsImage()})
	}
	return items
}

func resourceDir(res *book.Resource) string {
	switch {
	case res.IsImage():
		return "images/"
	case res.Usage == book.UsageFont || strings.HasPrefix(res.MediaType, "font/"):
		return "fonts/"
	case res.Usage == book.UsageAudio, res.Usage == book.UsageVideo:
		return "media/"
	}
	return "misc/"
}

// cover marks the cover image and adds the cover page. Fixed layout books
// use their first page as the forced cover; reflowable ones get a drawn SVG.
func (p *pkg) cover(resources []opfItem) error {
	var src string
	switch res, ok := p.b.CoverResource(); {
	case ok:
		p.coverItem, src = p.resItem[res.ID], p.resHref[res.ID]
	case !p.opts.ForceCover:
		return nil
	case p.fixed:
		first := p.b.Layout.Pages[0].Resource
		p.coverItem = p.resItem[first]
	default:
		title := strings.TrimSpace(p.b.Metadata.Title)
		if title == "" {
			return render.MissingResource(render.FormatEPUB, "cover", errNoTitle)
		}
		src = p.claim("images/cover.svg")
		p.coverItem = "cover-svg"
		p.manifest = append(p.manifest, opfItem{ID: p.coverItem, Href: src, MediaType: "image/svg+xml"})
		p.media = append(p.media, file{href: src, data: coverSVG(title, p.b.Metadata.Authors)})
	}

	if p.epub3 {
		for i := range resources {
			if resources[i].ID == p.coverItem {
				resources[i].Properties = "cover-image"
			}
		}
		for i := range p.manifest {
			if p.manifest[i].ID == p.coverItem {
				p.manifest[i].Properties = "cover-image"
			}
		}
	}
	if p.fixed || src == "" {
		return nil
	}

	d := p.newDoc("Cover", "../"+cssHref, "cover")
	add(d.body, add(el("div", "class", "cover"), el("img", "src", "../"+src, "alt", "Cover")))
	data, err := d.bytes()
	if err != nil {
		return fmt.Errorf("epub: encode %s: %w", coverPageHref, err)
	}
	p.coverPage = p.claim(coverPageHref)
	p.manifest = append(p.manifest, opfItem{ID: "cover-page", Href: p.coverPage, MediaType: xhtmlType})
	p.spine = append(p.spine, opfItemRef{IDRef: "cover-page"})
	p.docs = append(p.docs, file{href: p.coverPage, data: data})
	return nil
}

func (p *pkg) sectionDocs() error {
	p.secTitle = make(map[string]string, len(p.b.Sections))
	pages := make(map[string]book.Page, len(p.b.Layout.Pages))
	for _, page := range p.b.Layout.Pages {
		pages[page.Section] = page
	}
	for i := range p.b.Sections {
		sec := &p.b.Sections[i]
		id := fmt.Sprintf("sec%04d", i+1)
		href := p.claim("text/" + fileBase(sec.ID) + ".xhtml")
		p.secHref[sec.ID] = href
		p.sections = append(p.sections, href)

		var (
			d   *xhtmlDoc
			err error
		)
		if p.fixed {
			p.secTitle[sec.ID] = fmt.Sprintf("Page %d", i+1)
			d, err = p.pageDocument(sec, pages[sec.ID], href)
		} else {
			p.secTitle[sec.ID] = sectionTitle(sec, p.b.Metadata.Title)
			d, err = p.sectionDocument(sec, href)
		}
		if err != nil {
			return err
		}
		data, err := d.bytes()
		if err != nil {
			return fmt.Errorf("epub: encode %s: %w", href, err)
		}
		p.manifest = append(p.manifest, opfItem{ID: id, Href: href, MediaType: xhtmlType})
		p.spine = append(p.spine, opfItemRef{IDRef: id})
		p.docs = append(p.docs, file{href: href, data: data})
	}
	return nil
}

// sectionTitle is the first heading of the section, or fallback.
func sectionTitle(sec *book.Section, fallback string) string {
	title := ""
	sec.Walk(func(b *book.Block) {
		if title == "" && b.Kind == book.BlockHeading {
			title = strings.TrimSpace(b.Text)
		}
	})
	if title == "" {
		return fallback
	}
	return title
}

// claim reserves href, renaming it when it is already taken.
func (p *pkg) claim(href string) string {
	candidate := href
	dot := strings.LastIndex(href, ".")
	if dot <= strings.LastIndex(href, "/") {
		dot = len(href)
	}
	for i := 2; p.hrefs[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", href[:dot], i, href[dot:])
	}
	p.hrefs[candidate] = true
	return candidate
}

func fileBase(id string) string {
	name := cssIdent(id)
	if name == "" {
		return "section"
	}
	return name
}

func (p *pkg) title() string {
	if t := strings.TrimSpace(p.b.Metadata.Title); t != "" {
		return t
	}
	return "Untitled"
}

func (p *pkg) opf(landmarks []landmark) ([]byte, error) {
	m := p.b.Metadata
	pk := opfPackage{
		Xmlns:            nsOPF,
		Version:          "3.0",
		UniqueIdentifier: "bookid",
		Metadata: opfMetadata{
			XmlnsDC:     nsDC,
			Identifier:  opfDC{Value: p.identifier, ID: "bookid"},
			Title:       opfDC{Value: p.title()},
			Language:    p.lang,
			Publisher:   m.Publisher,
			Description: m.Description,
			Date:        m.IssueDate,
			Subjects:    m.Subjects,
			Rights:      m.Rights,
		},
		Manifest: p.manifest,
		Spine:    opfSpine{Toc: "ncx", ItemRefs: p.spine},
	}
	md := &pk.Metadata
	if !p.epub3 {
		pk.Version = "2.0"
		md.XmlnsOPF = nsOPF
	}
	for i, author := range m.Authors {
		c := opfDC{Value: author}
		if p.epub3 {
			c.ID = fmt.Sprintf("creator%d", i+1)
			md.Metas = append(md.Metas, opfMeta{Refines: "#" + c.ID, Property: "role", Scheme: "marc:relators", Value: "aut"})
		} else {
			c.Role = "aut"
		}
		md.Creators = append(md.Creators, c)
	}
	if p.epub3 {
		md.Metas = append(md.Metas, opfMeta{Property: "dcterms:modified", Value: modified(m.IssueDate)})
		if m.PageProgression == "rtl" {
			pk.Spine.Direction = "rtl"
		}
	}
	if p.coverItem != "" {
		md.Metas = append(md.Metas, opfMeta{Name: "cover", Content: p.coverItem})
	}
	if p.fixed {
		md.Metas = append(md.Metas, p.fixedLayoutMetas()...)
		if p.epub3 {
			pk.Prefix = renditionPrefix
		}
	}
	if !p.epub3 {
		pk.Guide = p.guide(landmarks)
	}
	return marshalXML(pk)
}

func (p *pkg) fixedLayoutMetas() []opfMeta {
	m := p.b.Metadata
	orientation := "auto"
	if m.Orientation == "portrait" || m.Orientation == "landscape" {
		orientation = m.Orientation
	}
	if p.epub3 {
		return []opfMeta{
			{Property: "rendition:layout", Value: "pre-paginated"},
			{Property: "rendition:orientation", Value: orientation},
			{Property: "rendition:spread", Value: "none"},
		}
	}
	metas := []opfMeta{{Name: "fixed-layout", Content: "true"}}
	if first := p.b.Layout.Pages[0]; first.Width > 0 && first.Height > 0 {
		metas = append(metas, opfMeta{Name: "original-resolution", Content: fmt.Sprintf("%dx%d", first.Width, first.Height)})
	}
	if orientation != "auto" {
		metas = append(metas, opfMeta{Name: "orientation-lock", Content: orientation})
	}
	if p.b.Layout.Kind == book.FixedLayoutComic {
		metas = append(metas, opfMeta{Name: "book-type", Content: "comic"})
	}
	if m.PageProgression == "rtl" {
		metas = append(metas, opfMeta{Name: "primary-writing-mode", Content: "horizontal-rl"})
	}
	return metas
}

var guideTypes = map[string]string{
	"cover":      "cover",
	"toc":        "toc",
	"bodymatter": "text",
}

func (p *pkg) guide(landmarks []landmark) *opfGuide {
	g := &opfGuide{}
	for _, lm := range landmarks {
		if typ, ok := guideTypes[lm.typ]; ok {
			g.References = append(g.References, opfReference{Type: typ, Title: lm.label, Href: lm.href})
		}
	}
	if len(g.References) == 0 {
		return nil
	}
	return g
}

func identifier(b *book.Book) string {
	if id := strings.TrimSpace(b.Metadata.Identifier); id != "" {
		return id
	}
	var name strings.Builder
	name.WriteString(b.Metadata.Title)
	for i := range b.Sections {
		name.WriteByte(0)
		name.WriteString(b.Sections[i].ID)
	}
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name.String())).String()
}

// modified derives dcterms:modified from the issue date so that output does
// not depend on the clock.
func modified(issue string) string {
	t := epoch
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if parsed, err := time.Parse(layout, strings.TrimSpace(issue)); err == nil {
			t = parsed
			break
		}
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
