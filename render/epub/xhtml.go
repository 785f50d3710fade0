package epub

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/render"
)

const (
	xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>` + "\n"
	xhtml11Public  = "-//W3C//DTD XHTML 1.1//EN"
	xhtml11System  = "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd"
)

type xhtmlDoc struct {
	root, head, body *html.Node
}

// el builds an element from key/value attribute pairs. Empty values are
// dropped, except alt which images always carry.
func el(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i+1] == "" && attrs[i] != "alt" {
			continue
		}
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: xmlSafe(attrs[i+1])})
	}
	return n
}

func text(s string) *html.Node {
	s = xmlSafe(s)
	if s == "" {
		return nil
	}
	return &html.Node{Type: html.TextNode, Data: s}
}

// xmlSafe drops runes outside the XML 1.0 Char production. html.Render
// escapes markup but passes control characters through.
func xmlSafe(s string) string {
	if strings.IndexFunc(s, illegalXML) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if illegalXML(r) {
			return -1
		}
		return r
	}, s)
}

func illegalXML(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20:
		return true
	case r >= 0xD800 && r <= 0xDFFF:
		return true
	case r == 0xFFFE || r == 0xFFFF:
		return true
	}
	return false
}

func add(parent *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		if c != nil {
			parent.AppendChild(c)
		}
	}
	return parent
}

// newDoc starts an XHTML document in the package dialect. css is the
// stylesheet href relative to the document.
func (p *pkg) newDoc(title, css, bodyClass string) *xhtmlDoc {
	doctype := &html.Node{Type: html.DoctypeNode, Data: "html"}
	root := el("html", "xmlns", nsXHTML)
	head := el("head")
	if p.epub3 {
		root.Attr = append(root.Attr,
			html.Attribute{Key: "xmlns:epub", Val: nsOPS},
			html.Attribute{Key: "lang", Val: p.lang},
		)
		add(head, el("meta", "charset", "utf-8"))
	} else {
		doctype.Attr = []html.Attribute{{Key: "public", Val: xhtml11Public}, {Key: "system", Val: xhtml11System}}
		add(head, el("meta", "http-equiv", "Content-Type", "content", xhtmlType+"; charset=utf-8"))
	}
	root.Attr = append(root.Attr, html.Attribute{Key: "xml:lang", Val: p.lang})
	add(head,
		add(el("title"), text(title)),
		el("link", "rel", "stylesheet", "type", "text/css", "href", css),
	)
	body := el("body", "class", bodyClass)
	doc := &html.Node{Type: html.DocumentNode}
	add(doc, doctype, add(root, head, body))
	return &xhtmlDoc{root: doc, head: head, body: body}
}

func (d *xhtmlDoc) bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	if err := html.Render(&buf, d.root); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func anchorID(pos int64) string {
	return fmt.Sprintf("p%d", pos)
}

func (p *pkg) sectionDocument(sec *book.Section, href string) (*xhtmlDoc, error) {
	d := p.newDoc(p.secTitle[sec.ID], "../"+cssHref, p.className(sec.Style))
	if err := p.blocks(d.body, sec.Blocks, href); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *pkg) blocks(parent *html.Node, blocks []book.Block, href string) error {
	for i := range blocks {
		blk := &blocks[i]
		id := anchorID(blk.PositionID)
		p.anchors[href+"#"+id] = true
		class := p.className(blk.Style)

		switch blk.Kind {
		case book.BlockContainer:
			div := add(el("div", "id", id, "class", class), text(blk.Text))
			if err := p.blocks(div, blk.Children, href); err != nil {
				return err
			}
			add(parent, div)
			continue
		case book.BlockHeading:
			level := min(max(blk.Level, 1), 6)
			add(parent, add(el(fmt.Sprintf("h%d", level), "id", id, "class", class), text(blk.Text)))
		case book.BlockImage:
			src, ok := p.resHref[blk.Resource]
			if !ok {
				return render.MissingResource(render.FormatEPUB, blk.Resource, fmt.Errorf("image in %s", href))
			}
			add(parent, add(el("div", "id", id, "class", joinClass("image", class)),
				el("img", "src", "../"+src, "alt", blk.AltText)))
		default:
			add(parent, add(el("p", "id", id, "class", class), text(blk.Text)))
		}
		// Paragraphs cannot hold blocks, so nested items follow their parent.
		if err := p.blocks(parent, blk.Children, href); err != nil {
			return err
		}
	}
	return nil
}

// pageDocument is one pre-paginated page showing the section's image.
func (p *pkg) pageDocument(sec *book.Section, page book.Page, href string) (*xhtmlDoc, error) {
	d := p.newDoc(p.secTitle[sec.ID], "../"+cssHref, "page")
	if p.epub3 && page.Width > 0 && page.Height > 0 {
		add(d.head, el("meta", "name", "viewport", "content", fmt.Sprintf("width=%d, height=%d", page.Width, page.Height)))
	}
	var img *book.Block
	sec.Walk(func(b *book.Block) {
		if img == nil && b.Kind == book.BlockImage {
			img = b
		}
	})
	if img == nil {
		return nil, render.MissingResource(render.FormatEPUB, page.Resource, fmt.Errorf("no image in %s", sec.ID))
	}
	src, ok := p.resHref[img.Resource]
	if !ok {
		return nil, render.MissingResource(render.FormatEPUB, img.Resource, fmt.Errorf("page %s", sec.ID))
	}
	id := anchorID(img.PositionID)
	p.anchors[href+"#"+id] = true
	add(d.body, add(el("div", "class", "page"),
		el("img", "id", id, "class", "page", "src", "../"+src, "alt", img.AltText)))
	return d, nil
}

func joinClass(a, b string) string {
	if b == "" {
		return a
	}
	return a + " " + b
}
