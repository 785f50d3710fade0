// Package kfxtest builds small containers shared by the package tests.
package kfxtest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	kfx "github.com/logicossoftware/go-kfx"
)

// SamplePDF is a tiny but complete PDF document.
var SamplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
	"trailer\n<< /Root 1 0 R >>\n%%EOF\n")

// MustEncode encodes c or panics.
func MustEncode(c *kfx.Container, opts ...kfx.WriteOption) []byte {
	b, err := kfx.EncodeBytes(c, opts...)
	if err != nil {
		panic(fmt.Sprintf("kfxtest: encode: %v", err))
	}
	return b
}

// MustParse parses data or panics.
func MustParse(data []byte) *kfx.Store {
	s, err := kfx.Parse(data)
	if err != nil {
		panic(fmt.Sprintf("kfxtest: parse: %v", err))
	}
	return s
}

func JPEG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h, c), &jpeg.Options{Quality: 80}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func PNG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h, c)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func frag(typ, id string, v kfx.Value) kfx.Fragment {
	return kfx.Fragment{Type: typ, ID: id, Value: v}
}

func text(id int64, s string) kfx.Value {
	return kfx.Struct(
		kfx.F("id", kfx.Int(id)),
		kfx.F("type", kfx.Symbol("text")),
		kfx.F("text", kfx.String(s)),
	)
}

// Minimal is a reflowable book with one section of plain text and no styles
// or resources. Its only local symbol is the section id.
func Minimal() *kfx.Container {
	return &kfx.Container{
		Entry: "book",
		Fragments: []kfx.Fragment{
			frag(kfx.TypeBook, "book", kfx.Struct(
				kfx.F("metadata", kfx.Ref("metadata")),
				kfx.F("sections", kfx.List(kfx.Ref("c0"))),
			)),
			frag(kfx.TypeMetadata, "metadata", kfx.Struct(
				kfx.F("title", kfx.String("Minimal Book")),
				kfx.F("language", kfx.String("en")),
			)),
			frag(kfx.TypeSection, "c0", kfx.Struct(
				kfx.F("content_list", kfx.List(text(1, "Hello, world."))),
			)),
		},
	}
}

// Comic is an image-only book with one JPEG page per section.
func Comic(pages int) *kfx.Container {
	sections := make([]kfx.Value, 0, pages)
	c := &kfx.Container{Entry: "book"}
	for i := range pages {
		sec := fmt.Sprintf("page%d", i+1)
		res := fmt.Sprintf("img%d", i+1)
		raw := res + ".raw"
		sections = append(sections, kfx.Ref(sec))
		shade := uint8(40 * (i + 1))
		c.Fragments = append(c.Fragments,
			frag(kfx.TypeSection, sec, kfx.Struct(
				kfx.F("page_template", kfx.Struct(
					kfx.F("width", kfx.Int(60)),
					kfx.F("height", kfx.Int(80)),
				)),
				kfx.F("content_list", kfx.List(kfx.Struct(
					kfx.F("id", kfx.Int(int64(100+i))),
					kfx.F("type", kfx.Symbol("image")),
					kfx.F("resource", kfx.Ref(res)),
				))),
			)),
			frag(kfx.TypeResource, res, kfx.Struct(
				kfx.F("format", kfx.Symbol("jpg")),
				kfx.F("raw_media", kfx.Ref(raw)),
			)),
			frag(kfx.TypeRawMedia, raw, kfx.Blob(JPEG(60, 80, color.RGBA{shade, shade, shade, 255}))),
		)
	}
	c.Fragments = append([]kfx.Fragment{
		frag(kfx.TypeBook, "book", kfx.Struct(
			kfx.F("metadata", kfx.Ref("metadata")),
			kfx.F("sections", kfx.List(sections...)),
		)),
		frag(kfx.TypeMetadata, "metadata", kfx.Struct(
			kfx.F("title", kfx.String("Comic Book")),
			kfx.F("book_type", kfx.Symbol("comic")),
			kfx.F("page_progression", kfx.Symbol("rtl")),
		)),
	}, c.Fragments...)
	return c
}

// PrintReplica is a book whose root points at an embedded PDF and whose only
// section is text.
func PrintReplica() *kfx.Container {
	return &kfx.Container{
		Entry: "book",
		Fragments: []kfx.Fragment{
			frag(kfx.TypeBook, "book", kfx.Struct(
				kfx.F("metadata", kfx.Ref("metadata")),
				kfx.F("sections", kfx.List(kfx.Ref("c0"))),
				kfx.F("print_replica", kfx.Ref("doc")),
			)),
			frag(kfx.TypeMetadata, "metadata", kfx.Struct(
				kfx.F("title", kfx.String("Replica")),
			)),
			frag(kfx.TypeSection, "c0", kfx.Struct(
				kfx.F("content_list", kfx.List(text(1, "See the attached document."))),
			)),
			frag(kfx.TypeResource, "doc", kfx.Struct(
				kfx.F("format", kfx.Symbol("pdf")),
				kfx.F("raw_media", kfx.Ref("doc.raw")),
			)),
			frag(kfx.TypeRawMedia, "doc.raw", kfx.Blob(SamplePDF)),
		},
	}
}

// Rich is a reflowable book with storylines, shared content, styles with
// inheritance, a cover, an inline image, a font and full navigation.
func Rich() *kfx.Container {
	cover := JPEG(30, 40, color.RGBA{200, 30, 30, 255})
	figure := PNG(16, 8, color.RGBA{0, 90, 200, 255})
	return &kfx.Container{
		Entry: "book",
		Fragments: []kfx.Fragment{
			frag(kfx.TypeBook, "book", kfx.Struct(
				kfx.F("metadata", kfx.Ref("metadata")),
				kfx.F("sections", kfx.List(kfx.Ref("s1"), kfx.Ref("s2"))),
				kfx.F("navigation", kfx.Ref("navigation")),
				kfx.F("cover_image", kfx.Ref("cover")),
			)),
			frag(kfx.TypeMetadata, "metadata", kfx.Struct(
				kfx.F("title", kfx.String("A Rich Book")),
				kfx.F("authors", kfx.List(kfx.String("Ada Writer"), kfx.String("Bo Editor"))),
				kfx.F("language", kfx.String("en-us")),
				kfx.F("publisher", kfx.String("Example Press")),
				kfx.F("description", kfx.String("Two chapters & a figure.")),
				kfx.F("isbn", kfx.String("9780000000002")),
				kfx.F("issue_date", kfx.String("2024-05-01")),
				kfx.F("subjects", kfx.List(kfx.String("Fiction"))),
			)),
			frag(kfx.TypeSection, "s1", kfx.Struct(
				kfx.F("storyline", kfx.Ref("story1")),
				kfx.F("style", kfx.Ref("body")),
			)),
			frag(kfx.TypeSection, "s2", kfx.Struct(
				kfx.F("storyline", kfx.Ref("story2")),
			)),
			frag(kfx.TypeStoryline, "story1", kfx.Struct(
				kfx.F("content_list", kfx.List(
					kfx.Struct(
						kfx.F("id", kfx.Int(10)),
						kfx.F("type", kfx.Symbol("heading")),
						kfx.F("level", kfx.Int(1)),
						kfx.F("text", kfx.String("Chapter One")),
						kfx.F("style", kfx.Ref("h1")),
					),
					kfx.Struct(
						kfx.F("id", kfx.Int(11)),
						kfx.F("type", kfx.Symbol("text")),
						kfx.F("content", kfx.Struct(
							kfx.F("name", kfx.Ref("content1")),
							kfx.F("index", kfx.Int(0)),
						)),
						kfx.F("style", kfx.Ref("para")),
					),
					kfx.Struct(
						kfx.F("id", kfx.Int(12)),
						kfx.F("type", kfx.Symbol("image")),
						kfx.F("resource", kfx.Ref("fig")),
						kfx.F("alt_text", kfx.String("A blue bar")),
					),
				)),
			)),
			frag(kfx.TypeStoryline, "story2", kfx.Struct(
				kfx.F("content_list", kfx.List(
					kfx.Struct(
						kfx.F("id", kfx.Int(20)),
						kfx.F("type", kfx.Symbol("heading")),
						kfx.F("level", kfx.Int(1)),
						kfx.F("text", kfx.String("Chapter Two")),
					),
					kfx.Struct(
						kfx.F("type", kfx.Symbol("container")),
						kfx.F("content_list", kfx.List(
							kfx.Struct(
								kfx.F("type", kfx.Symbol("text")),
								kfx.F("content", kfx.Struct(
									kfx.F("name", kfx.Ref("content1")),
									kfx.F("index", kfx.Int(1)),
								)),
							),
						)),
					),
				)),
			)),
			frag(kfx.TypeContent, "content1", kfx.Struct(
				kfx.F("content_list", kfx.List(
					kfx.String("It was a bright cold day."),
					kfx.String("The end <for now>."),
				)),
			)),
			frag(kfx.TypeStyle, "body", kfx.Struct(
				kfx.F("font_family", kfx.String("Example Serif")),
				kfx.F("line_height", kfx.Decimal(12, -1)),
			)),
			frag(kfx.TypeStyle, "para", kfx.Struct(
				kfx.F("parent_style", kfx.Ref("body")),
				kfx.F("text_indent", kfx.Struct(
					kfx.F("value", kfx.Decimal(15, -1)),
					kfx.F("unit", kfx.Symbol("em")),
				)),
				kfx.F("text_align", kfx.Symbol("justify")),
			)),
			frag(kfx.TypeStyle, "h1", kfx.Struct(
				kfx.F("parent_style", kfx.Ref("body")),
				kfx.F("font_size", kfx.Struct(
					kfx.F("value", kfx.Int(150)),
					kfx.F("unit", kfx.Symbol("percent")),
				)),
				kfx.F("font_weight", kfx.Symbol("bold")),
				kfx.F("text_align", kfx.Symbol("center")),
			)),
			frag(kfx.TypeResource, "cover", kfx.Struct(
				kfx.F("format", kfx.Symbol("jpg")),
				kfx.F("location", kfx.String("images/cover.jpg")),
				kfx.F("raw_media", kfx.Ref("cover.raw")),
			)),
			frag(kfx.TypeRawMedia, "cover.raw", kfx.Blob(cover)),
			frag(kfx.TypeResource, "fig", kfx.Struct(
				kfx.F("mime", kfx.String("image/png")),
				kfx.F("data", kfx.Blob(figure)),
			)),
			frag(kfx.TypeResource, "serif", kfx.Struct(
				kfx.F("format", kfx.Symbol("ttf")),
				kfx.F("usage", kfx.Symbol("font")),
				kfx.F("font_family", kfx.String("Example Serif")),
				kfx.F("data", kfx.Blob([]byte("\x00\x01\x00\x00fake-font"))),
			)),
			frag(kfx.TypeNavigation, "navigation", kfx.Struct(
				kfx.F("toc", kfx.List(
					kfx.Struct(
						kfx.F("label", kfx.String("Chapter One")),
						kfx.F("target", kfx.Ref("s1")),
						kfx.F("id", kfx.Int(10)),
						kfx.F("children", kfx.List(kfx.Struct(
							kfx.F("label", kfx.String("The figure")),
							kfx.F("id", kfx.Int(12)),
						))),
					),
					kfx.Struct(
						kfx.F("label", kfx.String("Chapter Two")),
						kfx.F("target", kfx.Ref("s2")),
					),
				)),
				kfx.F("landmarks", kfx.List(
					kfx.Struct(
						kfx.F("type", kfx.Symbol("cover")),
						kfx.F("label", kfx.String("Cover")),
					),
					kfx.Struct(
						kfx.F("type", kfx.Symbol("bodymatter")),
						kfx.F("label", kfx.String("Start")),
						kfx.F("target", kfx.Ref("s1")),
					),
				)),
				kfx.F("page_list", kfx.List(
					kfx.Struct(
						kfx.F("label", kfx.String("1")),
						kfx.F("target", kfx.Ref("s1")),
					),
					kfx.Struct(
						kfx.F("label", kfx.String("2")),
						kfx.F("target", kfx.Ref("s2")),
						kfx.F("id", kfx.Int(20)),
					),
				)),
			)),
		},
	}
}

// WithMalformedSection returns Minimal with a second, undecodable section
// referenced after the first and a valid third one.
func WithMalformedSection() *kfx.Container {
	c := Minimal()
	c.Fragments[0] = frag(kfx.TypeBook, "book", kfx.Struct(
		kfx.F("metadata", kfx.Ref("metadata")),
		kfx.F("sections", kfx.List(kfx.Ref("c0"), kfx.Ref("c1"), kfx.Ref("c2"))),
	))
	c.Fragments = append(c.Fragments,
		kfx.Fragment{Type: kfx.TypeSection, ID: "c1", Raw: []byte{0xD8, 0x81}},
		frag(kfx.TypeSection, "c2", kfx.Struct(
			kfx.F("content_list", kfx.List(text(2, "Still here."))),
		)),
	)
	return c
}

// MultipleRoots has two book fragments and no entry designation.
func MultipleRoots() *kfx.Container {
	c := Minimal()
	c.Entry = ""
	c.Fragments = append(c.Fragments, frag(kfx.TypeBook, "book2", kfx.Struct(
		kfx.F("sections", kfx.List(kfx.Ref("c0"))),
	)))
	return c
}
