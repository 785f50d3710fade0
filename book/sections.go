package book

import (
	"fmt"
	"strings"
	"unicode/utf8"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

// noPosition marks a block whose position id is assigned after all sections
// are known.
const noPosition = -1

func (r *resolver) resolveSections() {
	refs := r.root.Get("sections")
	if refs.Kind() != kfx.KindList {
		r.warn("book has no section list", diag.Fragment(kfx.TypeBook, r.book.Root))
	}
	seen := make(map[string]bool)
	r.book.sections = make(map[string]int)
	for i, ref := range refs.List() {
		id := ref.Text()
		if id == "" {
			r.warn(fmt.Sprintf("section reference %d is not an id", i), diag.Fragment(kfx.TypeBook, r.book.Root))
			continue
		}
		if seen[id] {
			r.warn("section listed more than once", diag.Fragment(kfx.TypeSection, id))
			continue
		}
		seen[id] = true
		sec, ok := r.resolveSection(id)
		if !ok {
			continue
		}
		sec.Index = len(r.book.Sections)
		r.book.sections[id] = sec.Index
		r.book.Sections = append(r.book.Sections, sec)
	}
}

// resolveSection reports at most one warning for a section it has to skip.
func (r *resolver) resolveSection(id string) (Section, bool) {
	key := kfx.FragmentKey{Type: kfx.TypeSection, ID: id}
	f, ok := r.store.Fragment(kfx.TypeSection, id)
	switch {
	case !ok:
		r.warn("missing section", diag.Fragment(kfx.TypeSection, id))
		return Section{}, false
	case f.Err != nil:
		r.reported[key] = true
		r.warn(fmt.Sprintf("malformed section: %v", f.Err), diag.Fragment(kfx.TypeSection, id), diag.Offset(f.Offset))
		return Section{}, false
	case f.Value.Kind() != kfx.KindStruct:
		r.warn("section is not a struct", diag.Fragment(kfx.TypeSection, id))
		return Section{}, false
	}
	v := f.Value
	sec := Section{ID: id}
	tmpl := v.Get("page_template")
	sec.PageWidth, sec.PageHeight = intField(tmpl, "width"), intField(tmpl, "height")
	sec.Style = r.styleRef(v.Get("style"), kfx.TypeSection, id)

	items, ok := v.Field("content_list")
	if !ok {
		ref, has := v.Field("storyline")
		if !has {
			r.warn("section has no storyline", diag.Fragment(kfx.TypeSection, id))
			return Section{}, false
		}
		story, sid, found := r.storyline(ref)
		if !found {
			r.warn("missing storyline "+sid, diag.Fragment(kfx.TypeSection, id))
			return Section{}, false
		}
		items = story.Get("content_list")
		w := &itemWalker{r: r, section: id, active: map[string]bool{sid: true}}
		sec.Blocks = w.items(items)
		return sec, true
	}
	w := &itemWalker{r: r, section: id, active: map[string]bool{}}
	sec.Blocks = w.items(items)
	return sec, true
}

// storyline looks up a storyline without reporting; callers own the warning.
func (r *resolver) storyline(ref kfx.Value) (kfx.Value, string, bool) {
	id := ref.Text()
	f, ok := r.store.Fragment(kfx.TypeStoryline, id)
	if !ok || f.Err != nil || f.Value.Kind() != kfx.KindStruct {
		if ok && f.Err != nil {
			r.reported[f.Key()] = true
		}
		return kfx.Value{}, id, false
	}
	return f.Value, id, true
}

type itemWalker struct {
	r       *resolver
	section string
	active  map[string]bool
}

func (w *itemWalker) items(list kfx.Value) []Block {
	var out []Block
	for _, item := range list.List() {
		if b, ok := w.item(item); ok {
			out = append(out, b)
		}
	}
	return out
}

func (w *itemWalker) item(v kfx.Value) (Block, bool) {
	ctx := diag.Fragment(kfx.TypeSection, w.section)
	if s, ok := v.Str(); ok {
		return Block{Kind: BlockText, PositionID: noPosition, Text: s}, true
	}
	if v.Kind() != kfx.KindStruct {
		w.r.warn("content item is not a struct", ctx)
		return Block{}, false
	}
	b := Block{PositionID: noPosition}
	if id, ok := v.Get("id").Int(); ok && id >= 0 {
		b.PositionID = id
	}
	b.Style = w.r.styleRef(v.Get("style"), kfx.TypeSection, w.section)
	b.AltText = v.Get("alt_text").Text()

	if _, ok := v.Field("text"); ok {
		b.Text = v.Get("text").Text()
	} else if content, ok := v.Field("content"); ok {
		text, ok := w.contentText(content)
		if !ok {
			return Block{}, false
		}
		b.Text = text
	}
	if res := v.Get("resource").Text(); res != "" {
		if _, ok := w.r.book.resources[res]; !ok {
			w.r.warnOnce("resource\x00"+res, "missing resource "+res, ctx, diag.Resource(res))
			return Block{}, false
		}
		b.Resource = res
	}
	if children, ok := v.Field("content_list"); ok {
		b.Children = w.items(children)
	}
	if ref, ok := v.Field("storyline"); ok {
		sid := ref.Text()
		if w.active[sid] {
			w.r.warnOnce("storyline-cycle\x00"+sid, "storyline cycle through "+sid, ctx)
		} else if story, _, found := w.r.storyline(ref); found {
			w.active[sid] = true
			b.Children = append(b.Children, w.items(story.Get("content_list"))...)
			delete(w.active, sid)
		} else {
			w.r.warnOnce("storyline\x00"+sid, "missing storyline "+sid, ctx)
		}
	}

	typ := v.Get("type").Text()
	switch typ {
	case "text", "paragraph":
		b.Kind = BlockText
	case "heading":
		b.Kind = BlockHeading
		b.Level = min(max(intField(v, "level"), 1), 6)
	case "image":
		if b.Resource == "" {
			w.r.warn("image item without resource", ctx)
			return Block{}, false
		}
		b.Kind = BlockImage
	case "container":
		b.Kind = BlockContainer
	default:
		switch {
		case b.Resource != "" && b.Text == "":
			b.Kind = BlockImage
		case len(b.Children) > 0:
			b.Kind = BlockContainer
		default:
			b.Kind = BlockText
		}
		if typ != "" {
			w.r.warnOnce("item-type\x00"+typ, "unknown content type "+typ, ctx)
		}
	}
	return b, true
}

func (w *itemWalker) contentText(content kfx.Value) (string, bool) {
	ctx := diag.Fragment(kfx.TypeSection, w.section)
	name := content.Get("name").Text()
	index, ok := content.Get("index").Int()
	if name == "" || !ok {
		w.r.warn("invalid content reference", ctx)
		return "", false
	}
	v, _, found := w.r.lookup(kfx.TypeContent, content.Get("name"), "section "+w.section)
	if !found {
		return "", false
	}
	list := v.Get("content_list").List()
	if index < 0 || index >= int64(len(list)) {
		w.r.warn(fmt.Sprintf("content %s has no entry %d", name, index), ctx)
		return "", false
	}
	return list[index].Text(), true
}

// assignPositions gives every block without an id the next id after the
// largest declared one, in reading order, and computes offsets. A declared
// id seen earlier in reading order is replaced the same way, so ids stay
// unique across the book.
func (r *resolver) assignPositions() {
	var next int64
	for i := range r.book.Sections {
		r.book.Sections[i].Walk(func(b *Block) {
			if b.PositionID >= next {
				next = b.PositionID + 1
			}
		})
	}
	if next == 0 {
		next = 1
	}
	seen := make(map[int64]bool)
	for i := range r.book.Sections {
		sec := &r.book.Sections[i]
		sec.Walk(func(b *Block) {
			if b.PositionID != noPosition && seen[b.PositionID] {
				r.warnOnce(fmt.Sprintf("position\x00%d", b.PositionID),
					fmt.Sprintf("duplicate position id %d", b.PositionID), diag.Fragment(kfx.TypeSection, sec.ID))
				b.PositionID = noPosition
			}
			if b.PositionID == noPosition {
				b.PositionID = next
				next++
			}
			seen[b.PositionID] = true
		})
	}

	offset := 0
	for i := range r.book.Sections {
		sec := &r.book.Sections[i]
		sec.Start = offset
		offset = layoutBlocks(sec.Blocks, offset)
		sec.Length = offset - sec.Start
	}
}

func layoutBlocks(blocks []Block, offset int) int {
	for i := range blocks {
		b := &blocks[i]
		b.Offset = offset
		switch b.Kind {
		case BlockImage:
			offset++
		default:
			offset += utf8.RuneCountInString(b.Text)
		}
		offset = layoutBlocks(b.Children, offset)
		b.Length = offset - b.Offset
	}
	return offset
}

// PlainText returns the text of the section's blocks joined by newlines.
func (s *Section) PlainText() string {
	var parts []string
	s.Walk(func(b *Block) {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	})
	return strings.Join(parts, "\n")
}
