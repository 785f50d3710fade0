package comic_test

import (
	"bytes"
	"errors"
	"testing"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/archive"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/internal/kfxtest"
	"github.com/logicossoftware/go-kfx/render"
	"github.com/logicossoftware/go-kfx/render/comic"
)

func resolve(t *testing.T, c *kfx.Container) *book.Book {
	t.Helper()
	b, err := book.Resolve(kfxtest.MustParse(kfxtest.MustEncode(c)))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestComicPagesInSectionOrder(t *testing.T) {
	b := resolve(t, kfxtest.Comic(3))
	out, err := comic.New().Render(b, render.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	entries, err := archive.ReadEntries(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"0001.jpg", "0002.jpg", "0003.jpg"} {
		if entries[i].Path != want {
			t.Fatalf("entry %d is %s, want %s", i, entries[i].Path, want)
		}
		res, _ := b.Resource(b.Layout.Pages[i].Resource)
		if !bytes.Equal(entries[i].Data, res.Data) {
			t.Fatalf("entry %d bytes differ from the resource", i)
		}
	}
}

func TestComicRejectsReflowable(t *testing.T) {
	_, err := comic.New().Render(resolve(t, kfxtest.Minimal()), render.DefaultOptions())
	if !errors.Is(err, render.ErrUnsupportedLayout) {
		t.Fatalf("want ErrUnsupportedLayout, got %v", err)
	}
}

func TestComicMissingPageResource(t *testing.T) {
	b := resolve(t, kfxtest.Comic(1))
	broken := *b
	broken.Layout.Pages = []book.Page{{Section: "page1", Resource: "nowhere"}}
	_, err := comic.New().Render(&broken, render.DefaultOptions())
	var re *render.Error
	if !errors.As(err, &re) || re.Resource != "nowhere" || !errors.Is(err, render.ErrMissingResource) {
		t.Fatalf("want missing resource, got %v", err)
	}
}
