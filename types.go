package kfx

import "fmt"

const (
	VersionMajor1 uint16 = 1
	CurrentMinor  uint16 = 0

	fixedHeaderSize  uint32 = 32
	recordHeaderSize        = 16
)

// Magic is the 4-byte container signature.
var Magic = [4]byte{'C', 'O', 'N', 'T'}

// Fragment types understood by this package. Records of any other type are
// forward-skipped.
const (
	TypeBook       = "book"
	TypeMetadata   = "metadata"
	TypeSection    = "section"
	TypeStoryline  = "storyline"
	TypeContent    = "content"
	TypeStyle      = "style"
	TypeResource   = "resource"
	TypeRawMedia   = "raw_media"
	TypeNavigation = "navigation"
)

var knownTypes = map[string]struct{}{
	TypeBook:       {},
	TypeMetadata:   {},
	TypeSection:    {},
	TypeStoryline:  {},
	TypeContent:    {},
	TypeStyle:      {},
	TypeResource:   {},
	TypeRawMedia:   {},
	TypeNavigation: {},
}

// IsKnownType reports whether fragments of type t are decoded by Parse.
func IsKnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

type Compression uint16

const (
	CompNone Compression = 0x0
	CompZIP  Compression = 0x1
	CompZSTD Compression = 0x2
	CompLZ4  Compression = 0x3
	CompBR   Compression = 0x4
	CompXZ   Compression = 0x5
)

func (c Compression) String() string {
	switch c {
	case CompNone:
		return "none"
	case CompZIP:
		return "zip"
	case CompZSTD:
		return "zstd"
	case CompLZ4:
		return "lz4"
	case CompBR:
		return "br"
	case CompXZ:
		return "xz"
	default:
		return "unknown"
	}
}

// ParseCompression maps a codec name as printed by Compression.String back
// to its value.
func ParseCompression(name string) (Compression, error) {
	for c := CompNone; c <= CompXZ; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("kfx: unknown compression %q", name)
}

const (
	recordFlagCompressionMask    uint16 = 0x000F
	recordFlagHasUncompressedLen uint16 = 0x0010
)

// Version is the container format version.
type Version struct {
	Major uint16
	Minor uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// FragmentKey identifies a fragment within a store.
type FragmentKey struct {
	Type string
	ID   string
}

func (k FragmentKey) String() string {
	return k.Type + ":" + k.ID
}

// Fragment is one typed, identified record of a container.
//
// When writing, Type, ID and Value are used; a non-nil Raw is stored
// verbatim instead of encoding Value. When read back from a Store, Known is
// false for forward-skipped types and Err is non-nil for malformed payloads;
// in both cases Raw is the stored payload and Value holds it as a blob.
type Fragment struct {
	Type  string
	ID    string
	Value Value
	Raw   []byte

	Known  bool
	Err    error
	Offset int64
	Part   int
}

// Key returns the fragment's (type, id) pair.
func (f Fragment) Key() FragmentKey {
	return FragmentKey{Type: f.Type, ID: f.ID}
}

// Container is the logical, writable representation of a container.
//
// Entry names the top-level fragment id (usually the book fragment) and may
// be empty. Minor is written as the minor format version.
type Container struct {
	Minor     uint16
	Entry     string
	Fragments []Fragment
}
