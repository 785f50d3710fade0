package convert_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/convert"
	"github.com/logicossoftware/go-kfx/diag"
	"github.com/logicossoftware/go-kfx/internal/kfxtest"
	"github.com/logicossoftware/go-kfx/render"
)

func formats(fs ...render.Format) convert.Request {
	return convert.Request{Formats: fs, Options: render.DefaultOptions()}
}

func TestOutputFailuresAreIsolated(t *testing.T) {
	data := kfxtest.MustEncode(kfxtest.Rich())
	res, err := convert.Convert([][]byte{data}, formats(
		render.FormatEPUB, render.FormatCBZ, render.FormatPDF, render.FormatPosition, render.FormatUnpack, render.FormatEPUB,
	))
	if err != nil {
		t.Fatal(err)
	}

	var got []render.Format
	for _, o := range res.Outputs {
		got = append(got, o.Format)
	}
	want := []render.Format{render.FormatUnpack, render.FormatPosition, render.FormatCBZ, render.FormatPDF, render.FormatEPUB}
	if len(got) != len(want) {
		t.Fatalf("outputs %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outputs %v, want %v", got, want)
		}
	}

	for _, f := range []render.Format{render.FormatEPUB, render.FormatPosition, render.FormatUnpack} {
		o, _ := res.Output(f)
		if o.Err != nil || len(o.Data) == 0 {
			t.Fatalf("%s: %v", f, o.Err)
		}
	}
	failed := res.Failed()
	if len(failed) != 2 {
		t.Fatalf("failed %v", failed)
	}
	for _, o := range failed {
		if !errors.Is(o.Err, render.ErrUnsupportedLayout) || o.Data != nil {
			t.Fatalf("%s: %v", o.Format, o.Err)
		}
	}

	outputs := map[string]bool{}
	for _, e := range res.Report.Errors() {
		outputs[e.Output] = true
	}
	if len(outputs) != 2 || !outputs["cbz"] || !outputs["pdf"] {
		t.Fatalf("errors %v", res.Report.Errors())
	}
}

func TestPDFContentWarning(t *testing.T) {
	data := kfxtest.MustEncode(kfxtest.PrintReplica())

	res, err := convert.Convert([][]byte{data}, convert.Request{Options: render.DefaultOptions()})
	if err != nil {
		t.Fatal(err)
	}
	if o, ok := res.Output(render.FormatEPUB); !ok || !errors.Is(o.Err, render.ErrUnsupportedLayout) {
		t.Fatalf("epub output %+v", o)
	}
	warned := false
	for _, w := range res.Report.Warnings() {
		if w.Message == "book contains PDF content" && w.ResourceID == "doc" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("warnings %v", res.Report.Warnings())
	}

	res, err = convert.Convert([][]byte{data}, formats(render.FormatPDF))
	if err != nil {
		t.Fatal(err)
	}
	o, _ := res.Output(render.FormatPDF)
	if o.Err != nil || !bytes.Equal(o.Data, kfxtest.SamplePDF) {
		t.Fatalf("pdf passthrough: %v", o.Err)
	}
	for _, w := range res.Report.Warnings() {
		if w.Message == "book contains PDF content" {
			t.Fatal("no warning expected when PDF was requested")
		}
	}
}

func TestEncryptedInput(t *testing.T) {
	plain := kfxtest.MustEncode(kfxtest.Minimal())
	wrapped := append([]byte("\xeaDRMION\xee"), plain...)

	_, err := convert.Convert([][]byte{wrapped}, formats(render.FormatPosition))
	if !errors.Is(err, kfx.ErrEncrypted) {
		t.Fatalf("want ErrEncrypted, got %v", err)
	}

	strip := kfx.DecrypterFunc(func(data []byte) ([]byte, error) {
		return bytes.TrimPrefix(data, []byte("\xeaDRMION\xee")), nil
	})
	res, err := convert.Convert([][]byte{wrapped}, formats(render.FormatPosition), convert.WithDecrypter(strip))
	if err != nil {
		t.Fatal(err)
	}
	if res.Book.Metadata.Title != "Minimal Book" {
		t.Fatalf("title %q", res.Book.Metadata.Title)
	}
}

func TestFatalErrors(t *testing.T) {
	if _, err := convert.Convert(nil, formats()); !errors.Is(err, convert.ErrNoInput) {
		t.Fatalf("no input: %v", err)
	}
	if _, err := convert.Convert([][]byte{[]byte("not a container at all")}, formats()); !errors.Is(err, kfx.ErrBadMagic) {
		t.Fatalf("bad magic: %v", err)
	}
	data := kfxtest.MustEncode(kfxtest.MultipleRoots())
	if _, err := convert.Convert([][]byte{data}, formats()); !errors.Is(err, book.ErrAmbiguousRoot) {
		t.Fatalf("ambiguous root: %v", err)
	}
}

type panicky struct{}

func (panicky) Format() render.Format { return render.FormatPosition }

func (panicky) Render(*book.Book, render.Options) ([]byte, error) { panic("boom") }

func TestRendererPanicStaysInItsOutput(t *testing.T) {
	report := diag.NewReport()
	data := kfxtest.MustEncode(kfxtest.Minimal())
	res, err := convert.Convert([][]byte{data}, formats(render.FormatPosition, render.FormatEPUB),
		convert.WithRenderer(panicky{}), convert.WithReport(report))
	if err != nil {
		t.Fatal(err)
	}
	if o, _ := res.Output(render.FormatEPUB); o.Err != nil {
		t.Fatalf("epub: %v", o.Err)
	}
	o, _ := res.Output(render.FormatPosition)
	if o.Err == nil || !strings.Contains(o.Err.Error(), "boom") {
		t.Fatalf("position: %v", o.Err)
	}
	if errs := report.Errors(); len(errs) != 1 || errs[0].Output != "json" {
		t.Fatalf("report %v", errs)
	}
}
