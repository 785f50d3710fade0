package book_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/diag"
	"github.com/logicossoftware/go-kfx/internal/kfxtest"
)

func resolve(t *testing.T, c *kfx.Container) (*book.Book, *diag.Report) {
	t.Helper()
	report := diag.NewReport()
	b, err := book.Resolve(kfxtest.MustParse(kfxtest.MustEncode(c)), book.WithReport(report))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return b, report
}

func TestResolveMinimal(t *testing.T) {
	b, report := resolve(t, kfxtest.Minimal())
	if n := len(report.Entries()); n != 0 {
		t.Fatalf("unexpected diagnostics: %v", report.Entries())
	}
	if b.Metadata.Title != "Minimal Book" || b.Metadata.Language != "en" {
		t.Fatalf("metadata %+v", b.Metadata)
	}
	if len(b.Sections) != 1 || b.Sections[0].ID != "c0" {
		t.Fatalf("sections %+v", b.Sections)
	}
	sec := b.Sections[0]
	if len(sec.Blocks) != 1 || sec.Blocks[0].Kind != book.BlockText || sec.Blocks[0].Text != "Hello, world." {
		t.Fatalf("blocks %+v", sec.Blocks)
	}
	if sec.Start != 0 || sec.Length != 13 || sec.Blocks[0].PositionID != 1 {
		t.Fatalf("positions start=%d length=%d id=%d", sec.Start, sec.Length, sec.Blocks[0].PositionID)
	}
	if b.Layout.Kind != book.Reflowable || b.Layout.HasPDFResource {
		t.Fatalf("layout %+v", b.Layout)
	}
	if len(b.Resources) != 0 || len(b.Styles) != 0 {
		t.Fatal("minimal book should have no resources or styles")
	}
}

func TestResolveRich(t *testing.T) {
	b, report := resolve(t, kfxtest.Rich())
	if n := len(report.Entries()); n != 0 {
		t.Fatalf("unexpected diagnostics: %v", report.Entries())
	}

	md := b.Metadata
	if md.Language != "en-US" || md.Identifier != "urn:isbn:9780000000002" || len(md.Authors) != 2 {
		t.Fatalf("metadata %+v", md)
	}
	if got := []string{b.Sections[0].ID, b.Sections[1].ID}; got[0] != "s1" || got[1] != "s2" {
		t.Fatalf("reading order %v", got)
	}

	s1 := b.Sections[0]
	if s1.Style != "body" || len(s1.Blocks) != 3 {
		t.Fatalf("s1 %+v", s1)
	}
	if s1.Blocks[0].Kind != book.BlockHeading || s1.Blocks[0].Level != 1 {
		t.Fatalf("heading %+v", s1.Blocks[0])
	}
	if s1.Blocks[1].Text != "It was a bright cold day." || s1.Blocks[1].Style != "para" {
		t.Fatalf("content text %+v", s1.Blocks[1])
	}
	if img := s1.Blocks[2]; img.Kind != book.BlockImage || img.Resource != "fig" || img.AltText != "A blue bar" {
		t.Fatalf("image %+v", img)
	}
	if s1.Start != 0 || s1.Length != 37 {
		t.Fatalf("s1 positions %d+%d", s1.Start, s1.Length)
	}

	s2 := b.Sections[1]
	container := s2.Blocks[1]
	if container.Kind != book.BlockContainer || container.PositionID != 21 || len(container.Children) != 1 {
		t.Fatalf("container %+v", container)
	}
	if child := container.Children[0]; child.PositionID != 22 || child.Text != "The end <for now>." || child.Offset != 48 {
		t.Fatalf("child %+v", child)
	}
	if s2.Start != 37 || s2.Length != 29 {
		t.Fatalf("s2 positions %d+%d", s2.Start, s2.Length)
	}

	para, ok := b.Style("para")
	if !ok {
		t.Fatal("para style missing")
	}
	want := `font-family: "Example Serif"; line-height: 1.2; text-align: justify; text-indent: 1.5em;`
	if got := para.Declarations(); got != want {
		t.Fatalf("para declarations\nwant %s\ngot  %s", want, got)
	}
	h1, _ := b.Style("h1")
	if !strings.Contains(h1.Declarations(), "font-size: 150%;") || !strings.Contains(h1.Declarations(), "font-weight: bold;") {
		t.Fatalf("h1 declarations %s", h1.Declarations())
	}

	cover, ok := b.CoverResource()
	if !ok || cover.Usage != book.UsageCover || cover.Filename != "cover.jpg" || cover.Width != 30 || cover.Height != 40 {
		t.Fatalf("cover %+v", cover)
	}
	fig, _ := b.Resource("fig")
	if fig.MediaType != "image/png" || fig.Width != 16 || fig.Height != 8 || fig.Filename != "fig.png" {
		t.Fatalf("fig %+v", fig)
	}
	font, _ := b.Resource("serif")
	if font.Usage != book.UsageFont || font.MediaType != "font/ttf" || font.FontFamily != "Example Serif" {
		t.Fatalf("font %+v", font)
	}

	nav := b.Navigation
	if len(nav.TOC) != 2 || len(nav.TOC[0].Children) != 1 || len(nav.Landmarks) != 2 || len(nav.PageList) != 2 {
		t.Fatalf("navigation %+v", nav)
	}
	if child := nav.TOC[0].Children[0]; child.Target.Section != "s1" || child.Target.PositionID != 12 {
		t.Fatalf("nested toc target %+v", child.Target)
	}
	if lm := nav.Landmarks[0]; lm.Type != "cover" || lm.Target.Section != "" {
		t.Fatalf("cover landmark %+v", lm)
	}
	if b.Layout.Kind != book.Reflowable {
		t.Fatalf("layout %s", b.Layout.Kind)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	data := kfxtest.MustEncode(kfxtest.Rich())
	var out [2][]byte
	for i := range out {
		b, err := book.Resolve(kfxtest.MustParse(data))
		if err != nil {
			t.Fatal(err)
		}
		if out[i], err = json.Marshal(b); err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(out[0], out[1]) {
		t.Fatal("two resolutions serialize differently")
	}
}

func TestDuplicatePositionIDsAreReassigned(t *testing.T) {
	item := func(id int64, text string) kfx.Value {
		return kfx.Struct(
			kfx.F("id", kfx.Int(id)),
			kfx.F("type", kfx.Symbol("text")),
			kfx.F("text", kfx.String(text)),
		)
	}
	c := &kfx.Container{
		Entry: "book",
		Fragments: []kfx.Fragment{
			{Type: kfx.TypeBook, ID: "book", Value: kfx.Struct(
				kfx.F("sections", kfx.List(kfx.Ref("c0"), kfx.Ref("c1"))),
			)},
			{Type: kfx.TypeSection, ID: "c0", Value: kfx.Struct(
				kfx.F("content_list", kfx.List(item(5, "first"))),
			)},
			{Type: kfx.TypeSection, ID: "c1", Value: kfx.Struct(
				kfx.F("content_list", kfx.List(item(5, "second"), item(5, "third"), item(6, "fourth"))),
			)},
		},
	}
	b, report := resolve(t, c)

	var ids []int64
	for _, sec := range b.Sections {
		sec.Walk(func(blk *book.Block) { ids = append(ids, blk.PositionID) })
	}
	want := []int64{5, 7, 8, 6}
	if len(ids) != len(want) {
		t.Fatalf("ids %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids %v, want %v", ids, want)
		}
	}
	warnings := report.Warnings()
	if len(warnings) != 1 || warnings[0].Message != "duplicate position id 5" || warnings[0].FragmentID != "c1" {
		t.Fatalf("warnings %v", warnings)
	}
}

func TestMalformedSectionWarnsOnce(t *testing.T) {
	b, report := resolve(t, kfxtest.WithMalformedSection())
	if len(b.Sections) != 2 || b.Sections[0].ID != "c0" || b.Sections[1].ID != "c2" {
		t.Fatalf("sections %+v", b.Sections)
	}
	warnings := report.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("want exactly one warning, got %v", warnings)
	}
	if w := warnings[0]; w.FragmentType != kfx.TypeSection || w.FragmentID != "c1" || w.Offset <= 0 {
		t.Fatalf("warning context %+v", w)
	}
	if b.Sections[1].Index != 1 || b.Sections[1].Start != 13 {
		t.Fatalf("surviving section %+v", b.Sections[1])
	}
}

func TestRootSelection(t *testing.T) {
	_, err := book.Resolve(kfxtest.MustParse(kfxtest.MustEncode(kfxtest.MultipleRoots())))
	if !errors.Is(err, book.ErrAmbiguousRoot) {
		t.Fatalf("want ErrAmbiguousRoot, got %v", err)
	}
	var se *book.StructureError
	if !errors.As(err, &se) || !strings.Contains(se.Error(), "book, book2") {
		t.Fatalf("structure error %v", err)
	}

	c := kfxtest.MultipleRoots()
	c.Entry = "book2"
	b, _ := resolve(t, c)
	if b.Root != "book2" || len(b.Sections) != 1 {
		t.Fatalf("entry root not used: %+v", b)
	}

	noRoot := kfxtest.Minimal()
	noRoot.Entry = ""
	noRoot.Fragments = noRoot.Fragments[1:]
	if _, err := book.Resolve(kfxtest.MustParse(kfxtest.MustEncode(noRoot))); !errors.Is(err, book.ErrMissingRoot) {
		t.Fatalf("want ErrMissingRoot, got %v", err)
	}

	notStruct := kfxtest.Minimal()
	notStruct.Fragments[0].Value = kfx.String("book")
	if _, err := book.Resolve(kfxtest.MustParse(kfxtest.MustEncode(notStruct))); !errors.Is(err, book.ErrMissingRoot) {
		t.Fatalf("want ErrMissingRoot for non-struct root, got %v", err)
	}
	if _, err := book.Resolve(nil); !errors.Is(err, book.ErrMissingRoot) {
		t.Fatalf("nil store: %v", err)
	}
}

func TestSectionDegradation(t *testing.T) {
	c := kfxtest.Minimal()
	c.Fragments[0].Value = kfx.Struct(
		kfx.F("sections", kfx.List(
			kfx.Ref("c0"), kfx.Ref("gone"), kfx.Ref("c0"), kfx.Ref("nostory"), kfx.Int(7),
		)),
	)
	c.Fragments = append(c.Fragments,
		kfx.Fragment{Type: kfx.TypeSection, ID: "nostory", Value: kfx.Struct(kfx.F("storyline", kfx.Ref("absent")))},
		kfx.Fragment{Type: "future_thing", ID: "x", Value: kfx.Int(1)},
	)
	b, report := resolve(t, c)
	if len(b.Sections) != 1 {
		t.Fatalf("sections %+v", b.Sections)
	}
	var msgs []string
	for _, w := range report.Warnings() {
		msgs = append(msgs, w.Message)
	}
	want := []string{
		"missing section",
		"section listed more than once",
		"missing storyline absent",
		"section reference 4 is not an id",
		"unknown fragment type skipped",
	}
	if strings.Join(msgs, "|") != strings.Join(want, "|") {
		t.Fatalf("warnings\nwant %q\ngot  %q", want, msgs)
	}
}

func TestStyleCyclesAndUnknownProperties(t *testing.T) {
	c := kfxtest.Minimal()
	c.Fragments[2].Value = kfx.Struct(
		kfx.F("style", kfx.Ref("a")),
		kfx.F("content_list", kfx.List(
			kfx.Struct(kfx.F("text", kfx.String("x")), kfx.F("style", kfx.Ref("nope"))),
			kfx.Struct(kfx.F("text", kfx.String("y")), kfx.F("style", kfx.Ref("nope"))),
		)),
	)
	c.Fragments = append(c.Fragments,
		kfx.Fragment{Type: kfx.TypeStyle, ID: "a", Value: kfx.Struct(
			kfx.F("parent_style", kfx.Ref("b")),
			kfx.F("color", kfx.Int(0xFF0000)),
			kfx.F("glow", kfx.Symbol("soft")),
		)},
		kfx.Fragment{Type: kfx.TypeStyle, ID: "b", Value: kfx.Struct(
			kfx.F("parent_style", kfx.Ref("a")),
			kfx.F("color", kfx.Int(0x00FF00)),
			kfx.F("margin_top", kfx.Int(2)),
			kfx.F("glow", kfx.Symbol("hard")),
		)},
		kfx.Fragment{Type: kfx.TypeStyle, ID: "orphan", Value: kfx.Struct(
			kfx.F("parent_style", kfx.Ref("ghost")),
			kfx.F("font_style", kfx.Symbol("italic")),
		)},
	)
	b, report := resolve(t, c)

	a, _ := b.Style("a")
	if got := a.Declarations(); got != "color: #ff0000; margin-top: 2em;" {
		t.Fatalf("a declarations %q", got)
	}
	if len(a.Unknown) != 1 || a.Unknown[0].Name != "glow" {
		t.Fatalf("unknown %+v", a.Unknown)
	}
	orphan, _ := b.Style("orphan")
	if orphan.Declarations() != "font-style: italic;" {
		t.Fatalf("orphan %q", orphan.Declarations())
	}
	if b.Sections[0].Style != "a" || b.Sections[0].Blocks[0].Style != "" {
		t.Fatalf("style references %+v", b.Sections[0])
	}

	counts := map[string]int{}
	for _, w := range report.Warnings() {
		switch {
		case strings.HasPrefix(w.Message, "style parent cycle"):
			counts["cycle"]++
		case strings.HasPrefix(w.Message, "unknown style property glow"):
			counts["glow"]++
		case w.Message == "missing parent style ghost":
			counts["ghost"]++
		case w.Message == "missing style nope":
			counts["nope"]++
		}
	}
	for _, k := range []string{"cycle", "glow", "ghost", "nope"} {
		if counts[k] != 1 {
			t.Fatalf("%s warned %d times: %v", k, counts[k], report.Warnings())
		}
	}
}

func TestStyleValuesCannotEscapeDeclaration(t *testing.T) {
	c := kfxtest.Minimal()
	c.Fragments[2].Value = kfx.Struct(
		kfx.F("style", kfx.Ref("hostile")),
		kfx.F("content_list", kfx.List(kfx.Struct(kfx.F("text", kfx.String("x"))))),
	)
	c.Fragments = append(c.Fragments, kfx.Fragment{Type: kfx.TypeStyle, ID: "hostile", Value: kfx.Struct(
		kfx.F("color", kfx.String("red} body { display: none")),
		kfx.F("font_family", kfx.String("Serif; x: y")),
		kfx.F("display", kfx.Symbol("none{")),
		kfx.F("text_align", kfx.String("center")),
	)})
	b, report := resolve(t, c)

	st, ok := b.Style("hostile")
	if !ok {
		t.Fatal("style dropped")
	}
	if got := st.Declarations(); got != "text-align: center;" {
		t.Fatalf("declarations %q", got)
	}
	rejected := map[string]bool{}
	for _, w := range report.Warnings() {
		if name, ok := strings.CutPrefix(w.Message, "unsupported value for style property "); ok {
			rejected[name] = true
		}
	}
	for _, name := range []string{"color", "font_family", "display"} {
		if !rejected[name] {
			t.Fatalf("%s not reported: %v", name, report.Warnings())
		}
	}
}

func TestStorylineCycleTerminates(t *testing.T) {
	c := kfxtest.Minimal()
	c.Fragments[2].Value = kfx.Struct(kfx.F("storyline", kfx.Ref("loop")))
	c.Fragments = append(c.Fragments, kfx.Fragment{Type: kfx.TypeStoryline, ID: "loop", Value: kfx.Struct(
		kfx.F("content_list", kfx.List(
			kfx.Struct(kfx.F("text", kfx.String("again"))),
			kfx.Struct(kfx.F("type", kfx.Symbol("container")), kfx.F("storyline", kfx.Ref("loop"))),
		)),
	)})
	b, report := resolve(t, c)
	if n := len(b.Sections[0].Blocks); n != 2 {
		t.Fatalf("blocks %d", n)
	}
	if len(report.Warnings()) != 1 || !strings.Contains(report.Warnings()[0].Message, "storyline cycle") {
		t.Fatalf("warnings %v", report.Warnings())
	}
}

func TestInvalidLanguageKeptVerbatim(t *testing.T) {
	c := kfxtest.Minimal()
	c.Fragments[1].Value = kfx.Struct(kfx.F("language", kfx.String("not a tag!")))
	b, report := resolve(t, c)
	if b.Metadata.Language != "not a tag!" || len(report.Warnings()) != 1 {
		t.Fatalf("language %q warnings %v", b.Metadata.Language, report.Warnings())
	}
}

func TestNavigationUnknownTarget(t *testing.T) {
	c := kfxtest.Minimal()
	c.Fragments = append(c.Fragments, kfx.Fragment{Type: kfx.TypeNavigation, ID: "navigation", Value: kfx.Struct(
		kfx.F("toc", kfx.List(
			kfx.Struct(kfx.F("label", kfx.String("Lost")), kfx.F("target", kfx.Ref("elsewhere"))),
			kfx.Struct(kfx.F("label", kfx.String("By position")), kfx.F("id", kfx.Int(1))),
		)),
	)})
	b, report := resolve(t, c)
	toc := b.Navigation.TOC
	if len(toc) != 2 || toc[0].Target != (book.Target{}) || toc[1].Target.Section != "c0" {
		t.Fatalf("toc %+v", toc)
	}
	if len(report.Warnings()) != 1 {
		t.Fatalf("warnings %v", report.Warnings())
	}
}
