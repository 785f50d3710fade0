package kfx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Header is the fixed header of one container part.
type Header struct {
	Version        Version
	HeaderSize     uint32
	SymbolCount    uint32
	FragmentCount  uint32
	EntryID        uint32
	CatalogVersion uint32
}

// Parse decodes a single-part container held in memory.
//
// The parsing process:
//  1. Validates the 32-byte fixed header (magic, major version, catalog)
//  2. Reads the local symbol table
//  3. Reads every fragment record, decompressing and decoding the payloads
//     of known fragment types
//
// Fatal problems (bad magic, unsupported version, truncation, symbol ids
// outside the table, exceeded limits) are returned as *FormatError. A record
// that is well framed but cannot be decoded is kept and listed by
// Store.Malformed; unknown types are kept as opaque blobs and listed by
// Store.Skipped.
func Parse(data []byte, opts ...ReadOption) (*Store, error) {
	return ParseParts([][]byte{data}, opts...)
}

// Decode reads a whole container from r and parses it. The stream may not
// exceed Limits.MaxContainerSize.
func Decode(r io.Reader, opts ...ReadOption) (*Store, error) {
	cfg := newReadConfig(opts)
	data, err := readAll(io.LimitReader(r, int64(cfg.limits.MaxContainerSize)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > cfg.limits.MaxContainerSize {
		return nil, formatErr(ErrLimitExceeded, int64(cfg.limits.MaxContainerSize), "container larger than %d bytes", cfg.limits.MaxContainerSize)
	}
	return Parse(data, opts...)
}

// ParseParts decodes a container that was split into several files. Parts
// are read in order into one store; on duplicate keys the first wins.
func ParseParts(parts [][]byte, opts ...ReadOption) (*Store, error) {
	cfg := newReadConfig(opts)
	if len(parts) == 0 {
		return nil, formatErr(ErrTruncated, 0, "no container data")
	}
	b := newStoreBuilder()
	var total uint64
	for i, data := range parts {
		total += uint64(len(data))
		if total > cfg.limits.MaxContainerSize {
			return nil, &FormatError{Kind: ErrLimitExceeded, Offset: 0, Part: i, Detail: fmt.Sprintf("container larger than %d bytes", cfg.limits.MaxContainerSize)}
		}
		if err := parsePart(b, i, data, cfg.limits); err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Part = i
			}
			return nil, err
		}
	}
	b.s.parts = len(parts)
	return b.build(), nil
}

// ReadHeader decodes and checks only the fixed header.
func ReadHeader(data []byte) (Header, error) {
	h, err := checkFixedHeader(data)
	if err != nil {
		return Header{}, err
	}
	return Header{
		Version:        Version{Major: h.Major, Minor: h.Minor},
		HeaderSize:     h.HeaderSize,
		SymbolCount:    h.SymbolCount,
		FragmentCount:  h.FragmentCount,
		EntryID:        h.EntryID,
		CatalogVersion: h.CatalogVersion,
	}, nil
}

func checkMagic(data []byte) error {
	if IsEncrypted(data) {
		return formatErr(ErrEncrypted, 0, "DRMION container")
	}
	if len(data) < len(Magic) {
		if bytes.HasPrefix(Magic[:], data) {
			return formatErr(ErrTruncated, int64(len(data)), "stream ends inside magic")
		}
		return formatErr(ErrBadMagic, 0, "got % x", data)
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return formatErr(ErrBadMagic, 0, "got % x", data[:len(Magic)])
	}
	return nil
}

func checkFixedHeader(data []byte) (fixedHeaderV1, error) {
	if err := checkMagic(data); err != nil {
		return fixedHeaderV1{}, err
	}
	if len(data) < int(fixedHeaderSize) {
		return fixedHeaderV1{}, formatErr(ErrTruncated, int64(len(data)), "stream ends inside fixed header")
	}
	h := parseFixedHeader(data)
	if h.Major != VersionMajor1 {
		return fixedHeaderV1{}, formatErr(ErrUnsupportedVersion, 4, "major version %d", h.Major)
	}
	if h.CatalogVersion > CatalogVersion {
		return fixedHeaderV1{}, formatErr(ErrUnsupportedVersion, 24, "shared catalog version %d", h.CatalogVersion)
	}
	if h.HeaderSize < fixedHeaderSize {
		return fixedHeaderV1{}, formatErr(ErrInvalidHeader, 8, "fixed header size %d", h.HeaderSize)
	}
	if uint64(h.HeaderSize) > uint64(len(data)) {
		return fixedHeaderV1{}, formatErr(ErrTruncated, int64(len(data)), "fixed header size %d", h.HeaderSize)
	}
	return h, nil
}

func parsePart(b *storeBuilder, part int, data []byte, limits Limits) error {
	h, err := checkFixedHeader(data)
	if err != nil {
		return err
	}
	if h.SymbolCount > limits.MaxSymbols {
		return formatErr(ErrLimitExceeded, 12, "%d local symbols", h.SymbolCount)
	}
	if h.FragmentCount > limits.MaxFragments || uint64(b.s.Len()+len(b.s.duplicates))+uint64(h.FragmentCount) > uint64(limits.MaxFragments) {
		return formatErr(ErrLimitExceeded, 16, "%d fragments", h.FragmentCount)
	}

	pos := int(h.HeaderSize)
	local := make([]string, 0, min(h.SymbolCount, 4096))
	for i := uint32(0); i < h.SymbolCount; i++ {
		n, next, err := readVarUInt(data, pos)
		if err != nil {
			return err
		}
		if n > uint64(limits.MaxSymbolLen) {
			return formatErr(ErrLimitExceeded, int64(pos), "symbol %d is %d bytes", i, n)
		}
		if n > uint64(len(data)-next) {
			return formatErr(ErrTruncated, int64(len(data)), "stream ends inside symbol %d", i)
		}
		name := data[next : next+int(n)]
		if !utf8.Valid(name) {
			return formatErr(ErrInvalidHeader, int64(next), "symbol %d is not valid UTF-8", i)
		}
		local = append(local, string(name))
		pos = next + int(n)
	}
	syms := newSymbolTable(local)

	entry := ""
	if h.EntryID != 0 {
		name, ok := syms.Name(h.EntryID)
		if !ok {
			return formatErr(ErrSymbolOutOfRange, 20, "entry id %d (table length %d)", h.EntryID, syms.Len())
		}
		entry = name
	}
	if part == 0 {
		b.s.version = Version{Major: h.Major, Minor: h.Minor}
		b.s.symbols = syms
	}
	if b.s.entry == "" {
		b.s.entry = entry
	}

	for i := uint32(0); i < h.FragmentCount; i++ {
		recOff := pos
		if len(data)-pos < recordHeaderSize {
			return formatErr(ErrTruncated, int64(len(data)), "stream ends inside record %d header", i)
		}
		rh := parseRecordHeader(data[pos : pos+recordHeaderSize])
		if rh.PayloadLen > limits.MaxRecordLen {
			return formatErr(ErrLimitExceeded, int64(recOff), "record %d payload is %d bytes", i, rh.PayloadLen)
		}
		typ, ok := syms.Name(rh.TypeSym)
		if !ok {
			return formatErr(ErrSymbolOutOfRange, int64(recOff+4), "record %d type id %d (table length %d)", i, rh.TypeSym, syms.Len())
		}
		id, ok := syms.Name(rh.IDSym)
		if !ok {
			return formatErr(ErrSymbolOutOfRange, int64(recOff+8), "record %d id %d (table length %d)", i, rh.IDSym, syms.Len())
		}
		pos += recordHeaderSize
		if uint64(rh.PayloadLen) > uint64(len(data)-pos) {
			return formatErr(ErrTruncated, int64(len(data)), "stream ends inside record %d payload", i)
		}
		payload := data[pos : pos+int(rh.PayloadLen)]
		pos += int(rh.PayloadLen)

		frag := Fragment{Type: typ, ID: id, Offset: int64(recOff), Part: part, Known: IsKnownType(typ)}
		if !frag.Known {
			frag.Value = Blob(payload)
			frag.Raw = payload
			b.add(frag)
			continue
		}
		v, err := decodeRecord(rh, payload, syms, limits)
		if err != nil {
			if errors.Is(err, ErrSymbolOutOfRange) || errors.Is(err, ErrLimitExceeded) {
				return &FormatError{Kind: kindOf(err), Offset: int64(recOff), Detail: fmt.Sprintf("%s %q", typ, id), Err: err}
			}
			frag.Value = Blob(payload)
			frag.Raw = payload
			frag.Err = &FormatError{Kind: ErrInvalidPayload, Offset: int64(recOff), Part: part, Detail: fmt.Sprintf("%s %q", typ, id), Err: err}
			b.add(frag)
			continue
		}
		frag.Value = v
		b.add(frag)
	}
	return nil
}

func decodeRecord(rh recordHeaderV1, payload []byte, syms *SymbolTable, limits Limits) (Value, error) {
	raw, err := decompressPayload(rh, payload, limits.MaxUncompressed)
	if err != nil {
		return Value{}, err
	}
	return decodePayload(raw, syms, limits.MaxDepth)
}

func kindOf(err error) error {
	if errors.Is(err, ErrSymbolOutOfRange) {
		return ErrSymbolOutOfRange
	}
	return ErrLimitExceeded
}

// readVarUInt decodes a VarUInt at pos of a container part. Running off the
// end is a framing truncation.
func readVarUInt(data []byte, pos int) (n uint64, next int, err error) {
	start := pos
	for {
		if pos >= len(data) {
			return 0, 0, formatErr(ErrTruncated, int64(len(data)), "stream ends inside VarUInt at %d", start)
		}
		if pos-start >= 10 {
			return 0, 0, formatErr(ErrInvalidHeader, int64(start), "VarUInt too long")
		}
		c := data[pos]
		pos++
		n = n<<7 | uint64(c&0x7F)
		if c&0x80 != 0 {
			return n, pos, nil
		}
	}
}
