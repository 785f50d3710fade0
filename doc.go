// Package kfx decodes KFX e-book containers into an addressable fragment store.
//
// A KFX container is a single-file bundle of typed fragments. Every fragment
// is identified by a (type, id) pair of symbols and carries a value encoded in
// a compact tagged binary notation: scalars, lists, structs keyed by symbols,
// and references to other fragments by id. Names are interned in a symbol
// table made of a shared catalog of well-known names followed by the
// container's local symbols.
//
// # File Format Overview
//
// A container consists of:
//   - A 32-byte fixed header with magic bytes, major/minor version, symbol and
//     fragment counts, and the entry fragment id
//   - The local symbol table (length-prefixed UTF-8 names)
//   - A sequence of fragment records, each with a 16-byte record header that
//     states its payload length, so readers can skip fragment types they do
//     not understand
//
// Record payloads may be compressed with ZIP, Zstandard, LZ4, Brotli or XZ.
//
// # Basic Usage
//
// To parse a container held in memory:
//
//	store, err := kfx.Parse(data)
//	if err != nil {
//		// errors.Is(err, kfx.ErrBadMagic), kfx.ErrTruncated, ...
//	}
//	for frag := range store.AllOfType(kfx.TypeSection) {
//		fmt.Println(frag.ID)
//	}
//
// To write a container (used by fixtures and the example tools):
//
//	c := &kfx.Container{
//		Entry: "book1",
//		Fragments: []kfx.Fragment{
//			{Type: kfx.TypeBook, ID: "book1", Value: kfx.Struct(
//				kfx.F("sections", kfx.List(kfx.Ref("c0"))),
//			)},
//		},
//	}
//	err := kfx.Encode(w, c)
//
// # Error Handling
//
// Parse failures are returned as [*FormatError] values that unwrap to one of
// the sentinel errors ([ErrBadMagic], [ErrUnsupportedVersion], [ErrTruncated],
// [ErrSymbolOutOfRange], [ErrLimitExceeded], [ErrEncrypted], ...). A record
// that is correctly framed but whose payload cannot be decoded does not abort
// the parse; it is kept as a malformed fragment and listed by
// [Store.Malformed].
//
// # Security Considerations
//
// All size limits are enforced while parsing; see [Limits]. Encrypted (DRMION)
// containers are rejected with [ErrEncrypted]; decryption is the job of a
// [Decrypter] supplied by the caller.
package kfx
