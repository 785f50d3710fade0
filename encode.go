package kfx

import (
	"bytes"
	"fmt"
	"io"
)

// Function variables for testing injection.
var (
	encodeFragment = func(v Value, in *interner) ([]byte, error) { return encodePayload(v, in) }
)

// Encode writes c to w as a single-part container.
//
// The container is validated first (see [Container.Validate]). Fragment
// payloads are compressed with Zstandard by default and raw_media payloads
// are stored uncompressed; both are configurable:
//   - WithCompression(comp): codec for structural fragments
//   - WithMediaCompression(comp): codec for raw_media fragments
//   - WithWriteLimits(l): set custom size limits
//
// Fragments with a non-nil Raw are written verbatim and uncompressed, which
// lets tools and tests produce records that do not decode.
func Encode(w io.Writer, c *Container, opts ...WriteOption) error {
	cfg := writeConfig{
		limits:           DefaultLimits(),
		compression:      CompZSTD,
		mediaCompression: CompNone,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	if uint64(len(c.Fragments)) > uint64(cfg.limits.MaxFragments) {
		return fmt.Errorf("%w: %d fragments", ErrLimitExceeded, len(c.Fragments))
	}

	in := newInterner()
	entryID := in.intern(c.Entry)
	type record struct {
		hdr     recordHeaderV1
		payload []byte
	}
	records := make([]record, 0, len(c.Fragments))
	for _, f := range c.Fragments {
		rh := recordHeaderV1{TypeSym: in.intern(f.Type), IDSym: in.intern(f.ID)}
		var payload []byte
		if f.Raw != nil {
			payload = f.Raw
		} else {
			raw, err := encodeFragment(f.Value, in)
			if err != nil {
				return fmt.Errorf("%s %q: %w", f.Type, f.ID, err)
			}
			if uint64(len(raw)) > cfg.limits.MaxUncompressed {
				return fmt.Errorf("%w: %s %q payload is %d bytes", ErrLimitExceeded, f.Type, f.ID, len(raw))
			}
			comp := cfg.compression
			if f.Type == TypeRawMedia {
				comp = cfg.mediaCompression
			}
			if rh.Flags, payload, err = compressPayload(comp, raw); err != nil {
				return err
			}
		}
		if uint64(len(payload)) > uint64(cfg.limits.MaxRecordLen) {
			return fmt.Errorf("%w: %s %q record is %d bytes", ErrLimitExceeded, f.Type, f.ID, len(payload))
		}
		rh.PayloadLen = uint32(len(payload))
		records = append(records, record{hdr: rh, payload: payload})
	}
	if uint64(len(in.local)) > uint64(cfg.limits.MaxSymbols) {
		return fmt.Errorf("%w: %d local symbols", ErrLimitExceeded, len(in.local))
	}

	var symtab bytes.Buffer
	for _, name := range in.local {
		if uint64(len(name)) > uint64(cfg.limits.MaxSymbolLen) {
			return fmt.Errorf("%w: symbol %q", ErrLimitExceeded, name)
		}
		symtab.Write(appendVarUInt(nil, uint64(len(name))))
		symtab.WriteString(name)
	}

	h := fixedHeaderV1{
		Magic:          Magic,
		Major:          VersionMajor1,
		Minor:          c.Minor,
		HeaderSize:     fixedHeaderSize,
		SymbolCount:    uint32(len(in.local)),
		FragmentCount:  uint32(len(records)),
		EntryID:        entryID,
		CatalogVersion: CatalogVersion,
	}
	if err := writeFixedHeader(w, h); err != nil {
		return err
	}
	if _, err := w.Write(symtab.Bytes()); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writeRecordHeader(w, rec.hdr); err != nil {
			return err
		}
		if _, err := w.Write(rec.payload); err != nil {
			return err
		}
	}
	return nil
}

// EncodeBytes is Encode into a new byte slice.
func EncodeBytes(c *Container, opts ...WriteOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, c, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
