package epub

import (
	"fmt"
	"strconv"

	"golang.org/x/net/html"

	"github.com/logicossoftware/go-kfx/book"
)

// navEntry is a navigation point with its href resolved against the
// package.
type navEntry struct {
	label    string
	href     string
	children []navEntry
}

type landmark struct {
	typ, label, href string
}

// targetHref links to the block anchor when it was written, and to the
// section document otherwise.
func (p *pkg) targetHref(t book.Target) string {
	href, ok := p.secHref[t.Section]
	if !ok {
		return ""
	}
	if t.PositionID != 0 {
		if a := href + "#" + anchorID(t.PositionID); p.anchors[a] {
			return a
		}
	}
	return href
}

// toc converts the book's table of contents. A book without one gets an
// entry per section.
func (p *pkg) toc() []navEntry {
	if len(p.b.Navigation.TOC) > 0 {
		return p.navEntries(p.b.Navigation.TOC)
	}
	out := make([]navEntry, 0, len(p.b.Sections))
	for i := range p.b.Sections {
		sec := &p.b.Sections[i]
		label := p.secTitle[sec.ID]
		if !p.fixed {
			label = sectionTitle(sec, fmt.Sprintf("Section %d", i+1))
		}
		out = append(out, navEntry{label: label, href: p.secHref[sec.ID]})
	}
	return out
}

// navEntries resolves points. An entry without a target borrows its first
// child's, and failing that points at the start of the text.
func (p *pkg) navEntries(points []book.NavPoint) []navEntry {
	out := make([]navEntry, 0, len(points))
	for _, pt := range points {
		e := navEntry{label: pt.Label, href: p.targetHref(pt.Target), children: p.navEntries(pt.Children)}
		if e.href == "" && len(e.children) > 0 {
			e.href = e.children[0].href
		}
		if e.href == "" {
			e.href = p.sections[0]
		}
		if e.label == "" {
			e.label = p.secTitle[pt.Target.Section]
		}
		if e.label == "" {
			e.label = p.title()
		}
		out = append(out, e)
	}
	return out
}

func (p *pkg) pageList() []navEntry {
	var out []navEntry
	for _, pt := range p.b.Navigation.PageList {
		href := p.targetHref(pt.Target)
		if href == "" || pt.Label == "" {
			continue
		}
		out = append(out, navEntry{label: pt.Label, href: href})
	}
	return out
}

var landmarkTypes = map[string]string{
	"srl":        "bodymatter",
	"start":      "bodymatter",
	"cover_page": "cover",
}

func (p *pkg) landmarks() []landmark {
	var out []landmark
	for _, pt := range p.b.Navigation.Landmarks {
		typ := pt.Type
		if t, ok := landmarkTypes[typ]; ok {
			typ = t
		}
		href := p.targetHref(pt.Target)
		if typ == "cover" && p.coverPage != "" {
			href = p.coverPage
		}
		if typ == "" || href == "" {
			continue
		}
		label := pt.Label
		if label == "" {
			label = typ
		}
		out = append(out, landmark{typ: typ, label: label, href: href})
	}
	if len(out) > 0 {
		return out
	}
	if p.coverPage != "" {
		out = append(out, landmark{typ: "cover", label: "Cover", href: p.coverPage})
	}
	return append(out, landmark{typ: "bodymatter", label: "Start", href: p.sections[0]})
}

func (p *pkg) navDocument(toc, pages []navEntry, landmarks []landmark) ([]byte, error) {
	d := p.newDoc(p.title(), cssHref, "")
	add(d.body, add(el("nav", "epub:type", "toc", "id", "toc"),
		add(el("h1"), text("Contents")),
		navList(toc),
	))
	if len(landmarks) > 0 {
		ol := el("ol")
		for _, lm := range landmarks {
			add(ol, add(el("li"), add(el("a", "epub:type", lm.typ, "href", lm.href), text(lm.label))))
		}
		add(d.body, add(el("nav", "epub:type", "landmarks", "id", "landmarks", "hidden", "hidden"),
			add(el("h2"), text("Landmarks")), ol))
	}
	if len(pages) > 0 {
		add(d.body, add(el("nav", "epub:type", "page-list", "id", "page-list", "hidden", "hidden"),
			add(el("h2"), text("Pages")), navList(pages)))
	}
	return d.bytes()
}

func navList(entries []navEntry) *html.Node {
	ol := el("ol")
	for _, e := range entries {
		li := add(el("li"), add(el("a", "href", e.href), text(e.label)))
		if len(e.children) > 0 {
			add(li, navList(e.children))
		}
		add(ol, li)
	}
	return ol
}

func (p *pkg) ncx(toc, pages []navEntry) ([]byte, error) {
	doc := ncxDocument{
		Xmlns:    nsNCX,
		Version:  "2005-1",
		Lang:     p.lang,
		DocTitle: p.title(),
	}
	order := 0
	var points func([]navEntry) []ncxPoint
	points = func(entries []navEntry) []ncxPoint {
		out := make([]ncxPoint, 0, len(entries))
		for _, e := range entries {
			order++
			pt := ncxPoint{
				ID:        fmt.Sprintf("navpoint-%d", order),
				PlayOrder: order,
				Label:     e.label,
				Content:   ncxContent{Src: e.href},
			}
			pt.Children = points(e.children)
			out = append(out, pt)
		}
		return out
	}
	doc.NavMap = points(toc)

	maxPage := 0
	if len(pages) > 0 {
		doc.PageList = &ncxPageList{}
		for i, e := range pages {
			order++
			t := ncxPageTarget{
				ID:        fmt.Sprintf("page-%d", i+1),
				Type:      "normal",
				PlayOrder: order,
				Label:     e.label,
				Content:   ncxContent{Src: e.href},
			}
			if n, err := strconv.Atoi(e.label); err == nil && n > 0 {
				t.Value = e.label
				maxPage = max(maxPage, n)
			}
			doc.PageList.Targets = append(doc.PageList.Targets, t)
		}
	}
	doc.Head = []ncxMeta{
		{Name: "dtb:uid", Content: p.identifier},
		{Name: "dtb:depth", Content: strconv.Itoa(depth(toc))},
		{Name: "dtb:totalPageCount", Content: strconv.Itoa(len(pages))},
		{Name: "dtb:maxPageNumber", Content: strconv.Itoa(maxPage)},
	}
	return marshalXML(doc)
}

func depth(entries []navEntry) int {
	d := 0
	for _, e := range entries {
		d = max(d, 1+depth(e.children))
	}
	return d
}
