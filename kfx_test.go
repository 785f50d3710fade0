package kfx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
)

func sampleContainer() *Container {
	return &Container{
		Entry: "book",
		Fragments: []Fragment{
			{Type: TypeBook, ID: "book", Value: Struct(
				F("metadata", Ref("metadata")),
				F("sections", List(Ref("c0"), Ref("c1"))),
			)},
			{Type: TypeMetadata, ID: "metadata", Value: Struct(
				F("title", String("Example")),
				F("language", String("en")),
			)},
			{Type: TypeSection, ID: "c0", Value: Struct(F("storyline", Ref("s0")))},
			{Type: TypeSection, ID: "c1", Value: Struct(F("storyline", Ref("s1")))},
			{Type: TypeStoryline, ID: "s0", Value: Struct(F("content_list", List(
				Struct(F("id", Int(1)), F("type", Symbol("text")), F("text", String("Hello"))),
			)))},
			{Type: TypeStoryline, ID: "s1", Value: Struct(F("content_list", List(
				Struct(F("id", Int(2)), F("type", Symbol("text")), F("text", String("World"))),
				Struct(F("width", Decimal(125, -1)), F("ratio", Float(1.5)), F("neg", Int(-300))),
			)))},
			{Type: TypeRawMedia, ID: "rsrc1", Value: Blob([]byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3})},
		},
	}
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrClosedPipe
	}
	if len(p) > w.n {
		p = p[:w.n]
	}
	w.n -= len(p)
	return len(p), nil
}

func mustEncode(t *testing.T, c *Container, opts ...WriteOption) []byte {
	t.Helper()
	b, err := EncodeBytes(c, opts...)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

// firstRecordOffset walks the symbol table of an encoded container.
func firstRecordOffset(t *testing.T, b []byte) int {
	t.Helper()
	h, err := ReadHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	pos := int(h.HeaderSize)
	for i := uint32(0); i < h.SymbolCount; i++ {
		n, next, err := readVarUInt(b, pos)
		if err != nil {
			t.Fatal(err)
		}
		pos = next + int(n)
	}
	return pos
}

func TestWireRoundtrip(t *testing.T) {
	in := fixedHeaderV1{Magic: Magic, Major: VersionMajor1, Minor: 3, HeaderSize: fixedHeaderSize, SymbolCount: 7, FragmentCount: 9, EntryID: 12, CatalogVersion: CatalogVersion}
	var buf bytes.Buffer
	if err := writeFixedHeader(&buf, in); err != nil {
		t.Fatal(err)
	}
	out, err := readFixedHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("fixed header mismatch: %#v vs %#v", in, out)
	}

	buf.Reset()
	rhIn := recordHeaderV1{PayloadLen: 99, TypeSym: 3, IDSym: 200, Flags: uint16(CompBR) | recordFlagHasUncompressedLen}
	if err := writeRecordHeader(&buf, rhIn); err != nil {
		t.Fatal(err)
	}
	rhOut := parseRecordHeader(buf.Bytes())
	if rhIn != rhOut {
		t.Fatalf("record header mismatch: %#v vs %#v", rhIn, rhOut)
	}
	if rhOut.compression() != CompBR || !rhOut.hasUncompressedLen() {
		t.Fatalf("flag accessors: %s %v", rhOut.compression(), rhOut.hasUncompressedLen())
	}
}

func TestEncodeParseRoundTrip_AllCompressions(t *testing.T) {
	for _, comp := range []Compression{CompNone, CompZIP, CompZSTD, CompLZ4, CompBR, CompXZ} {
		t.Run("comp="+comp.String(), func(t *testing.T) {
			c := sampleContainer()
			b := mustEncode(t, c, WithCompression(comp), WithMediaCompression(comp))
			store, err := Parse(b)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if store.Entry() != "book" {
				t.Fatalf("entry %q", store.Entry())
			}
			if store.Len() != len(c.Fragments) {
				t.Fatalf("len %d want %d", store.Len(), len(c.Fragments))
			}
			for _, f := range c.Fragments {
				got, ok := store.Get(f.Type, f.ID)
				if !ok {
					t.Fatalf("missing %s", f.Key())
				}
				if !got.Equal(f.Value) {
					t.Fatalf("%s mismatch\nwant: %s\ngot:  %s", f.Key(), f.Value, got)
				}
			}
			if len(store.Skipped()) != 0 || len(store.Malformed()) != 0 || len(store.Duplicates()) != 0 {
				t.Fatalf("unexpected diagnostics: %v %v %v", store.Skipped(), store.Malformed(), store.Duplicates())
			}
		})
	}
}

func TestParse_PureFunctionOfInput(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	s1, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	for f := range s1.Fragments() {
		g, ok := s2.Fragment(f.Type, f.ID)
		if !ok || !g.Value.Equal(f.Value) || g.Offset != f.Offset {
			t.Fatalf("fragment %s differs between parses", f.Key())
		}
	}
}

func TestEncode_LocalSymbolsOnlyForUnknownNames(t *testing.T) {
	c := &Container{
		Entry: "book",
		Fragments: []Fragment{
			{Type: TypeBook, ID: "book", Value: Struct(F("sections", List(Ref("c0"))))},
			{Type: TypeSection, ID: "c0", Value: Struct(F("content_list", List(String("hi"))))},
		},
	}
	store, err := Parse(mustEncode(t, c))
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Symbols().LocalNames(); !reflect.DeepEqual(got, []string{"c0"}) {
		t.Fatalf("local symbols %v", got)
	}
	id, ok := store.Symbols().Lookup("c0")
	if !ok || int(id) != len(SharedCatalog()) {
		t.Fatalf("c0 id %d ok=%v", id, ok)
	}
	if name, _ := store.Symbols().Name(id); name != "c0" {
		t.Fatalf("Name(%d) = %q", id, name)
	}
}

func TestEncodeNilContainer(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestEncodeValidationFailures(t *testing.T) {
	cases := map[string]*Container{
		"empty type": {Fragments: []Fragment{{Type: "", ID: "x"}}},
		"empty id":   {Fragments: []Fragment{{Type: TypeSection, ID: "  "}}},
		"duplicate": {Fragments: []Fragment{
			{Type: TypeSection, ID: "c0"},
			{Type: TypeSection, ID: "c0"},
		}},
		"bad utf8 id":    {Fragments: []Fragment{{Type: TypeSection, ID: "\xff"}}},
		"bad utf8 entry": {Entry: "\xfe"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := EncodeBytes(c); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestEncodeWriterError(t *testing.T) {
	for _, n := range []int{0, 10, 40, 60} {
		w := &failingWriter{n: n}
		if err := Encode(w, sampleContainer(), WithCompression(CompNone)); err == nil {
			t.Fatalf("n=%d: expected error", n)
		}
	}
}

func TestEncodeInjectedFailure(t *testing.T) {
	orig := encodeFragment
	encodeFragment = func(Value, *interner) ([]byte, error) { return nil, io.ErrUnexpectedEOF }
	defer func() { encodeFragment = orig }()
	if _, err := EncodeBytes(sampleContainer()); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestParse_BadMagic(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	b[0] ^= 0xFF
	_, err := Parse(b)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if _, err := Parse([]byte("X")); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if _, err := Parse([]byte("CO")); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for magic prefix, got %v", err)
	}
}

func TestParse_Encrypted(t *testing.T) {
	data := append([]byte("\xeaDRMION\xee"), make([]byte, 64)...)
	_, err := Parse(data)
	if !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	binary.LittleEndian.PutUint16(b[4:6], 2)
	_, err := Parse(b)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Offset != 4 {
		t.Fatalf("expected FormatError at offset 4, got %#v", err)
	}
}

func TestParse_UnknownCatalogVersion(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	binary.LittleEndian.PutUint32(b[24:28], CatalogVersion+1)
	if _, err := Parse(b); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestParse_NewerMinorTolerated(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	binary.LittleEndian.PutUint16(b[6:8], 42)
	store, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if store.Version() != (Version{Major: 1, Minor: 42}) {
		t.Fatalf("version %s", store.Version())
	}
}

func TestParse_HeaderSize(t *testing.T) {
	b := mustEncode(t, sampleContainer())

	small := bytes.Clone(b)
	binary.LittleEndian.PutUint32(small[8:12], 16)
	if _, err := Parse(small); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}

	// A larger header is skipped.
	ext := append(bytes.Clone(b[:32]), make([]byte, 8)...)
	ext = append(ext, b[32:]...)
	binary.LittleEndian.PutUint32(ext[8:12], 40)
	store, err := Parse(ext)
	if err != nil {
		t.Fatalf("Parse extended header: %v", err)
	}
	if store.Len() != len(sampleContainer().Fragments) {
		t.Fatalf("len %d", store.Len())
	}
}

func TestParse_EveryTruncationIsReported(t *testing.T) {
	b := mustEncode(t, sampleContainer(), WithCompression(CompNone))
	for n := 0; n < len(b); n++ {
		_, err := Parse(b[:n])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut at %d: expected ErrTruncated, got %v", n, err)
		}
		var fe *FormatError
		if !errors.As(err, &fe) || fe.Offset != int64(n) {
			t.Fatalf("cut at %d: expected offset %d, got %v", n, n, err)
		}
	}
}

func TestParse_TrailingBytesIgnored(t *testing.T) {
	b := append(mustEncode(t, sampleContainer()), 0xDE, 0xAD)
	if _, err := Parse(b); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParse_SymbolOutOfRange(t *testing.T) {
	t.Run("record type", func(t *testing.T) {
		b := mustEncode(t, sampleContainer())
		off := firstRecordOffset(t, b)
		binary.LittleEndian.PutUint32(b[off+4:off+8], 1<<30)
		_, err := Parse(b)
		var fe *FormatError
		if !errors.As(err, &fe) || !errors.Is(err, ErrSymbolOutOfRange) || fe.Offset != int64(off+4) {
			t.Fatalf("expected ErrSymbolOutOfRange at %d, got %v", off+4, err)
		}
	})
	t.Run("record id", func(t *testing.T) {
		b := mustEncode(t, sampleContainer())
		off := firstRecordOffset(t, b)
		binary.LittleEndian.PutUint32(b[off+8:off+12], 1<<30)
		if _, err := Parse(b); !errors.Is(err, ErrSymbolOutOfRange) {
			t.Fatalf("expected ErrSymbolOutOfRange, got %v", err)
		}
	})
	t.Run("entry", func(t *testing.T) {
		b := mustEncode(t, sampleContainer())
		binary.LittleEndian.PutUint32(b[20:24], 1<<30)
		if _, err := Parse(b); !errors.Is(err, ErrSymbolOutOfRange) {
			t.Fatalf("expected ErrSymbolOutOfRange, got %v", err)
		}
	})
	t.Run("field name", func(t *testing.T) {
		body := appendVarUInt(nil, 1<<20)
		body = append(body, 0x00)
		raw := append([]byte{tagStruct<<4 | byte(len(body))}, body...)
		c := &Container{Fragments: []Fragment{{Type: TypeSection, ID: "c0", Raw: raw}}}
		if _, err := Parse(mustEncode(t, c)); !errors.Is(err, ErrSymbolOutOfRange) {
			t.Fatalf("expected ErrSymbolOutOfRange, got %v", err)
		}
	})
	t.Run("ref value", func(t *testing.T) {
		raw := []byte{tagRef<<4 | 3, 0x0F, 0xFF, 0xFF}
		c := &Container{Fragments: []Fragment{{Type: TypeSection, ID: "c0", Raw: raw}}}
		if _, err := Parse(mustEncode(t, c)); !errors.Is(err, ErrSymbolOutOfRange) {
			t.Fatalf("expected ErrSymbolOutOfRange, got %v", err)
		}
	})
}

func TestParse_MalformedPayloadIsKept(t *testing.T) {
	c := sampleContainer()
	c.Fragments = append(c.Fragments, Fragment{Type: TypeSection, ID: "bad", Raw: []byte{0x60, 0x01}})
	store, err := Parse(mustEncode(t, c))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []FragmentKey{{Type: TypeSection, ID: "bad"}}
	if got := store.Malformed(); !reflect.DeepEqual(got, want) {
		t.Fatalf("malformed %v", got)
	}
	if _, ok := store.Get(TypeSection, "bad"); ok {
		t.Fatal("Get returned a malformed fragment")
	}
	f, ok := store.Fragment(TypeSection, "bad")
	if !ok || !errors.Is(f.Err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload on fragment, got %v", f.Err)
	}
	if !bytes.Equal(f.Raw, []byte{0x60, 0x01}) {
		t.Fatalf("raw payload %x", f.Raw)
	}
	if _, ok := store.Get(TypeSection, "c0"); !ok {
		t.Fatal("valid section lost")
	}
}

func TestParse_CorruptCompressionIsMalformed(t *testing.T) {
	c := &Container{Fragments: []Fragment{
		{Type: TypeSection, ID: "c0", Value: Struct(F("text", String("abc")))},
		{Type: TypeSection, ID: "c1", Value: Struct(F("text", String("def")))},
	}}
	b := mustEncode(t, c, WithCompression(CompZSTD))
	off := firstRecordOffset(t, b)
	payloadStart := off + recordHeaderSize
	// corrupt the zstd frame magic after the length prefix
	b[payloadStart+8] ^= 0xFF
	store, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(store.Malformed()) != 1 || store.Malformed()[0].ID != "c0" {
		t.Fatalf("malformed %v", store.Malformed())
	}
}

func TestParse_UnknownTypesAreSkipped(t *testing.T) {
	c := sampleContainer()
	c.Fragments = append(c.Fragments[:2], append([]Fragment{
		{Type: "future_widget", ID: "w1", Value: Struct(F("anything", List(Int(1), Int(2))))},
	}, c.Fragments[2:]...)...)
	store, err := Parse(mustEncode(t, c))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := store.Skipped(); len(got) != 1 || got[0] != (FragmentKey{Type: "future_widget", ID: "w1"}) {
		t.Fatalf("skipped %v", got)
	}
	f, _ := store.Fragment("future_widget", "w1")
	if f.Known || f.Value.Kind() != KindBlob || len(f.Raw) == 0 {
		t.Fatalf("unexpected skipped fragment %+v", f)
	}
	if _, ok := store.Get(TypeStoryline, "s1"); !ok {
		t.Fatal("fragment after the unknown one was lost")
	}
}

func TestParseParts_DuplicatesFirstWins(t *testing.T) {
	p1 := mustEncode(t, sampleContainer())
	p2 := mustEncode(t, &Container{Fragments: []Fragment{
		{Type: TypeSection, ID: "c0", Value: Struct(F("storyline", Ref("other")))},
		{Type: TypeResource, ID: "rsrc1", Value: Struct(F("format", Symbol("jpg")))},
	}})
	store, err := ParseParts([][]byte{p1, p2})
	if err != nil {
		t.Fatalf("ParseParts: %v", err)
	}
	v, _ := store.Get(TypeSection, "c0")
	if v.Get("storyline").Text() != "s0" {
		t.Fatalf("first copy should win, got %s", v)
	}
	dups := store.Duplicates()
	if len(dups) != 1 || dups[0].Part != 1 {
		t.Fatalf("duplicates %+v", dups)
	}
	if _, ok := store.Get(TypeResource, "rsrc1"); !ok {
		t.Fatal("second part fragment missing")
	}
	if store.Parts() != 2 {
		t.Fatalf("parts %d", store.Parts())
	}
}

func TestParseParts_ErrorCarriesPart(t *testing.T) {
	p1 := mustEncode(t, sampleContainer())
	p2 := mustEncode(t, sampleContainer())
	p2[0] = 'X'
	_, err := ParseParts([][]byte{p1, p2})
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Part != 1 || !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected bad magic in part 1, got %v", err)
	}
	if _, err := ParseParts(nil); err == nil {
		t.Fatal("expected error for no parts")
	}
}

func TestReadHeader(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	h, err := ReadHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if h.FragmentCount != uint32(len(sampleContainer().Fragments)) || h.Version.Major != 1 || h.CatalogVersion != CatalogVersion {
		t.Fatalf("header %+v", h)
	}
	name, ok := newSymbolTable(nil).Name(h.EntryID)
	if !ok || name != "book" {
		t.Fatalf("entry id %d -> %q", h.EntryID, name)
	}
}

func TestDecode_Reader(t *testing.T) {
	b := mustEncode(t, sampleContainer())
	if _, err := Decode(bytes.NewReader(b)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, err := Decode(bytes.NewReader(b), WithReadLimits(Limits{MaxContainerSize: 10}))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestPrepare(t *testing.T) {
	plain := mustEncode(t, sampleContainer())
	got, err := Prepare(plain, nil)
	if err != nil || !bytes.Equal(got, plain) {
		t.Fatalf("plain input should pass through: %v", err)
	}

	enc := append([]byte("\xeaDRMION\xee"), plain...)
	if _, err := Prepare(enc, nil); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	strip := DecrypterFunc(func(b []byte) ([]byte, error) { return b[8:], nil })
	got, err = Prepare(enc, strip)
	if err != nil || !bytes.Equal(got, plain) {
		t.Fatalf("decrypter output not returned: %v", err)
	}
	fail := DecrypterFunc(func([]byte) ([]byte, error) { return nil, io.ErrUnexpectedEOF })
	if _, err := Prepare(enc, fail); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	same := DecrypterFunc(func(b []byte) ([]byte, error) { return b, nil })
	if _, err := Prepare(enc, same); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestPrepareKeepsDecrypterError(t *testing.T) {
	errNoKey := errors.New("no key for book")
	enc := append([]byte("\xeaDRMION\xee"), mustEncode(t, sampleContainer())...)
	_, err := Prepare(enc, DecrypterFunc(func([]byte) ([]byte, error) {
		return nil, fmt.Errorf("voucher: %w", errNoKey)
	}))
	if !errors.Is(err, ErrEncrypted) || !errors.Is(err, errNoKey) {
		t.Fatalf("error chain lost: %v", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Kind != ErrEncrypted {
		t.Fatalf("want *FormatError, got %T", err)
	}
	if got := err.Error(); got != "kfx: container is encrypted at offset 0: decrypt: voucher: no key for book" {
		t.Fatalf("message %q", got)
	}
}

func TestFormatErrorMessage(t *testing.T) {
	e := &FormatError{Kind: ErrTruncated, Offset: 17, Part: 2, Detail: "record 3"}
	if got := e.Error(); got != "kfx: truncated stream at offset 17 (part 2): record 3" {
		t.Fatalf("message %q", got)
	}
}
