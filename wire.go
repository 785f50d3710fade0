package kfx

import (
	"encoding/binary"
	"fmt"
	"io"
)

type fixedHeaderV1 struct {
	Magic          [4]byte
	Major          uint16
	Minor          uint16
	HeaderSize     uint32
	SymbolCount    uint32
	FragmentCount  uint32
	EntryID        uint32
	CatalogVersion uint32
	Reserved       uint32
}

type recordHeaderV1 struct {
	PayloadLen uint32
	TypeSym    uint32
	IDSym      uint32
	Flags      uint16
	Reserved   uint16
}

func readFixedHeader(r io.Reader) (fixedHeaderV1, error) {
	var buf [fixedHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fixedHeaderV1{}, err
	}
	return parseFixedHeader(buf[:]), nil
}

func parseFixedHeader(buf []byte) fixedHeaderV1 {
	var h fixedHeaderV1
	copy(h.Magic[:], buf[0:4])
	h.Major = binary.LittleEndian.Uint16(buf[4:6])
	h.Minor = binary.LittleEndian.Uint16(buf[6:8])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[8:12])
	h.SymbolCount = binary.LittleEndian.Uint32(buf[12:16])
	h.FragmentCount = binary.LittleEndian.Uint32(buf[16:20])
	h.EntryID = binary.LittleEndian.Uint32(buf[20:24])
	h.CatalogVersion = binary.LittleEndian.Uint32(buf[24:28])
	h.Reserved = binary.LittleEndian.Uint32(buf[28:32])
	return h
}

func writeFixedHeader(w io.Writer, h fixedHeaderV1) error {
	var buf [fixedHeaderSize]byte
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Major)
	binary.LittleEndian.PutUint16(buf[6:8], h.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.SymbolCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.FragmentCount)
	binary.LittleEndian.PutUint32(buf[20:24], h.EntryID)
	binary.LittleEndian.PutUint32(buf[24:28], h.CatalogVersion)
	binary.LittleEndian.PutUint32(buf[28:32], h.Reserved)
	_, err := w.Write(buf[:])
	return err
}

func parseRecordHeader(buf []byte) recordHeaderV1 {
	var rh recordHeaderV1
	rh.PayloadLen = binary.LittleEndian.Uint32(buf[0:4])
	rh.TypeSym = binary.LittleEndian.Uint32(buf[4:8])
	rh.IDSym = binary.LittleEndian.Uint32(buf[8:12])
	rh.Flags = binary.LittleEndian.Uint16(buf[12:14])
	rh.Reserved = binary.LittleEndian.Uint16(buf[14:16])
	return rh
}

func writeRecordHeader(w io.Writer, rh recordHeaderV1) error {
	var buf [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], rh.PayloadLen)
	binary.LittleEndian.PutUint32(buf[4:8], rh.TypeSym)
	binary.LittleEndian.PutUint32(buf[8:12], rh.IDSym)
	binary.LittleEndian.PutUint16(buf[12:14], rh.Flags)
	binary.LittleEndian.PutUint16(buf[14:16], rh.Reserved)
	_, err := w.Write(buf[:])
	return err
}

func (rh recordHeaderV1) compression() Compression {
	return Compression(rh.Flags & recordFlagCompressionMask)
}

func (rh recordHeaderV1) hasUncompressedLen() bool {
	return (rh.Flags & recordFlagHasUncompressedLen) != 0
}

// validateRecordFlags checks the codec bits of a record. A failure here makes
// the record's payload undecodable but leaves the framing intact.
func validateRecordFlags(rh recordHeaderV1) error {
	comp := rh.compression()
	switch comp {
	case CompNone, CompZIP, CompZSTD, CompLZ4, CompBR, CompXZ:
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidRecord, comp)
	}
	if comp == CompNone {
		if rh.hasUncompressedLen() {
			return fmt.Errorf("%w: COMP_NONE must not set HAS_UNCOMPRESSED_LEN", ErrInvalidRecord)
		}
	} else if !rh.hasUncompressedLen() {
		return fmt.Errorf("%w: compressed payload must set HAS_UNCOMPRESSED_LEN", ErrInvalidRecord)
	}
	return nil
}
