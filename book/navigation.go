package book

import (
	"strings"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

// maxNavDepth bounds TOC nesting; deeper entries are flattened into their
// parent's level.
const maxNavDepth = 16

// Navigation holds the table of contents, landmarks and page list.
type Navigation struct {
	TOC       []NavPoint `json:"toc,omitempty"`
	Landmarks []NavPoint `json:"landmarks,omitempty"`
	PageList  []NavPoint `json:"page_list,omitempty"`
}

// Target points into the reading order. An empty Section means the entry
// could not be placed.
type Target struct {
	Section    string `json:"section,omitempty"`
	PositionID int64  `json:"position_id,omitempty"`
}

// NavPoint is one navigation entry with its nested entries.
type NavPoint struct {
	Label    string     `json:"label"`
	Type     string     `json:"type,omitempty"`
	Target   Target     `json:"target"`
	Children []NavPoint `json:"children,omitempty"`
}

func (r *resolver) resolveNavigation() {
	var nav kfx.Value
	var navID string
	if ref, ok := r.root.Field("navigation"); ok {
		var found bool
		if nav, navID, found = r.lookup(kfx.TypeNavigation, ref, "book"); !found {
			return
		}
	} else {
		for f := range r.store.AllOfType(kfx.TypeNavigation) {
			if f.Err == nil && f.Value.Kind() == kfx.KindStruct {
				nav, navID = f.Value, f.ID
				break
			}
		}
	}
	if !nav.IsValid() {
		return
	}

	positions := make(map[int64]string)
	for i := range r.book.Sections {
		sec := &r.book.Sections[i]
		sec.Walk(func(b *Block) {
			if _, ok := positions[b.PositionID]; !ok {
				positions[b.PositionID] = sec.ID
			}
		})
	}
	w := navWalker{r: r, navID: navID, positions: positions}
	r.book.Navigation = Navigation{
		TOC:       w.points(nav.Get("toc"), 0),
		Landmarks: w.points(nav.Get("landmarks"), maxNavDepth),
		PageList:  w.points(nav.Get("page_list"), maxNavDepth),
	}
}

type navWalker struct {
	r         *resolver
	navID     string
	positions map[int64]string
}

func (w navWalker) points(list kfx.Value, depth int) []NavPoint {
	var out []NavPoint
	for _, entry := range list.List() {
		if entry.Kind() != kfx.KindStruct {
			continue
		}
		p := NavPoint{
			Label: strings.TrimSpace(entry.Get("label").Text()),
			Type:  entry.Get("type").Text(),
		}
		p.Target = w.target(entry, p.Label)
		children := entry.Get("children")
		if !children.IsValid() {
			children = entry.Get("entries")
		}
		if depth < maxNavDepth {
			p.Children = w.points(children, depth+1)
			out = append(out, p)
			continue
		}
		out = append(out, p)
		out = append(out, w.points(children, depth)...)
	}
	return out
}

func (w navWalker) target(entry kfx.Value, label string) Target {
	var t Target
	if id, ok := entry.Get("id").Int(); ok {
		t.PositionID = id
	}
	sec := entry.Get("target").Text()
	switch {
	case sec != "":
		if _, ok := w.r.book.sections[sec]; !ok {
			w.r.warn("navigation entry "+label+" targets unknown section "+sec, diag.Fragment(kfx.TypeNavigation, w.navID))
			return Target{}
		}
		t.Section = sec
	case t.PositionID != 0:
		if s, ok := w.positions[t.PositionID]; ok {
			t.Section = s
		} else {
			w.r.warn("navigation entry "+label+" targets unknown position", diag.Fragment(kfx.TypeNavigation, w.navID))
			t.PositionID = 0
		}
	}
	return t
}
