package book

import (
	"fmt"
	"strings"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

type resolver struct {
	store  *kfx.Store
	report *diag.Report
	book   *Book
	root   kfx.Value

	// reported holds fragments that already produced a warning so that the
	// store pass does not repeat it.
	reported map[kfx.FragmentKey]bool
	once     map[string]bool
}

// Resolve builds a Book from store.
func Resolve(store *kfx.Store, opts ...Option) (*Book, error) {
	r := &resolver{
		store:    store,
		reported: make(map[kfx.FragmentKey]bool),
		once:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if store == nil {
		return nil, &StructureError{Kind: ErrMissingRoot, Detail: "no store"}
	}
	rootID, err := r.findRoot()
	if err != nil {
		return nil, err
	}
	r.book = &Book{Root: rootID, Store: store}

	r.resolveMetadata()
	r.resolveStyles()
	r.resolveResources()
	r.resolveSections()
	r.assignPositions()
	r.resolveNavigation()
	r.book.Layout = Classify(r.book.Sections, r.book.Resources, r.book.Metadata)
	r.reportStore()
	return r.book, nil
}

func (r *resolver) findRoot() (string, error) {
	if entry := r.store.Entry(); entry != "" {
		if f, ok := r.store.Fragment(kfx.TypeBook, entry); ok {
			return entry, r.checkRoot(f)
		}
	}
	var roots []kfx.Fragment
	for f := range r.store.AllOfType(kfx.TypeBook) {
		roots = append(roots, f)
	}
	switch len(roots) {
	case 0:
		return "", &StructureError{Kind: ErrMissingRoot, FragmentType: kfx.TypeBook}
	case 1:
		return roots[0].ID, r.checkRoot(roots[0])
	}
	ids := make([]string, len(roots))
	for i, f := range roots {
		ids[i] = f.ID
	}
	return "", &StructureError{
		Kind:         ErrAmbiguousRoot,
		FragmentType: kfx.TypeBook,
		Detail:       fmt.Sprintf("%d candidates: %s", len(roots), strings.Join(ids, ", ")),
	}
}

func (r *resolver) checkRoot(f kfx.Fragment) error {
	if f.Err != nil {
		return &StructureError{Kind: ErrMissingRoot, FragmentType: f.Type, FragmentID: f.ID, Detail: f.Err.Error()}
	}
	if f.Value.Kind() != kfx.KindStruct {
		return &StructureError{Kind: ErrMissingRoot, FragmentType: f.Type, FragmentID: f.ID, Detail: "root is not a struct"}
	}
	r.root = f.Value
	return nil
}

// lookup follows a reference to a fragment of type typ. Missing, malformed and
// non-struct targets are reported once and return false.
func (r *resolver) lookup(typ string, ref kfx.Value, from string) (kfx.Value, string, bool) {
	id := ref.Text()
	if id == "" {
		r.warnOnce(typ+"\x00"+from, fmt.Sprintf("%s reference in %s is not an id", typ, from), diag.Fragment(typ, ""))
		return kfx.Value{}, "", false
	}
	f, ok := r.store.Fragment(typ, id)
	key := kfx.FragmentKey{Type: typ, ID: id}
	switch {
	case !ok:
		r.warnOnce(key.String(), fmt.Sprintf("missing %s referenced by %s", typ, from), diag.Fragment(typ, id))
		return kfx.Value{}, id, false
	case f.Err != nil:
		r.reported[key] = true
		r.warnOnce(key.String(), fmt.Sprintf("malformed %s referenced by %s: %v", typ, from, f.Err), diag.Fragment(typ, id), diag.Offset(f.Offset))
		return kfx.Value{}, id, false
	}
	return f.Value, id, true
}

func (r *resolver) warn(msg string, ctx ...diag.Context) {
	r.report.Warn(msg, ctx...)
}

func (r *resolver) warnOnce(key, msg string, ctx ...diag.Context) {
	if r.once[key] {
		return
	}
	r.once[key] = true
	r.warn(msg, ctx...)
}

func (r *resolver) reportStore() {
	for _, key := range r.store.Skipped() {
		r.warn("unknown fragment type skipped", diag.Fragment(key.Type, key.ID))
	}
	for _, key := range r.store.Malformed() {
		if r.reported[key] {
			continue
		}
		f, _ := r.store.Fragment(key.Type, key.ID)
		r.warn(fmt.Sprintf("malformed fragment: %v", f.Err), diag.Fragment(key.Type, key.ID), diag.Offset(f.Offset))
	}
	for _, f := range r.store.Duplicates() {
		r.warn("duplicate fragment ignored", diag.Fragment(f.Type, f.ID), diag.Offset(f.Offset))
	}
}

func textList(v kfx.Value) []string {
	if v.Kind() == kfx.KindList {
		var out []string
		for _, item := range v.List() {
			if s := strings.TrimSpace(item.Text()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := strings.TrimSpace(v.Text()); s != "" {
		return []string{s}
	}
	return nil
}

func intField(v kfx.Value, name string) int {
	n, ok := v.Get(name).Int()
	if !ok || n < 0 || n > 1<<31-1 {
		return 0
	}
	return int(n)
}
