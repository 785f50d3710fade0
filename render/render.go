// Package render defines the common contract of the output formats. Each
// format lives in its own sub-package; all of them treat the Book as
// read-only, so renderers may run concurrently on one Book.
package render

import (
	"errors"
	"fmt"

	"github.com/logicossoftware/go-kfx/book"
)

// Format names an output format. Its value is the name used on the command
// line and in the conversion API.
type Format string

const (
	FormatEPUB     Format = "epub"
	FormatPDF      Format = "pdf"
	FormatCBZ      Format = "cbz"
	FormatUnpack   Format = "unpack"
	FormatPosition Format = "json"
)

// Formats lists every format in the order outputs are reported.
var Formats = []Format{FormatUnpack, FormatPosition, FormatCBZ, FormatPDF, FormatEPUB}

// Extension returns the conventional file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatEPUB:
		return ".epub"
	case FormatPDF:
		return ".pdf"
	case FormatCBZ:
		return ".cbz"
	case FormatUnpack:
		return ".zip"
	case FormatPosition:
		return ".json"
	}
	return ""
}

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("render: unknown format %q", s)
}

// Options are the render-time settings shared by all formats.
type Options struct {
	// EPUB2 selects the EPUB 2 dialect instead of EPUB 3.
	EPUB2 bool
	// ForceCover synthesizes a cover page when the book has no cover.
	ForceCover bool
	// AllowFixedLayout lets the EPUB renderer write image based books as
	// pre-paginated EPUB instead of failing.
	AllowFixedLayout bool
	// CompressionLevel is the Deflate level for archive outputs.
	CompressionLevel int
}

// DefaultOptions returns EPUB 3 output at the default compression level.
func DefaultOptions() Options {
	return Options{CompressionLevel: -1}
}

// Renderer turns a resolved book into the bytes of one output file. Render
// must not modify b.
type Renderer interface {
	Format() Format
	Render(b *book.Book, opts Options) ([]byte, error)
}

var (
	ErrUnsupportedLayout = errors.New("render: unsupported layout")
	ErrMissingResource   = errors.New("render: missing resource")
	ErrArchiveWrite      = errors.New("render: archive write failed")
)

// Error is a failure of one output. Kind is one of the sentinels above.
type Error struct {
	Format   Format
	Kind     error
	Resource string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Format, e.Kind)
	if e.Resource != "" {
		msg += " (resource " + e.Resource + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unsupported reports that b's layout cannot be rendered as format.
func Unsupported(format Format, layout book.LayoutKind) error {
	return &Error{Format: format, Kind: ErrUnsupportedLayout, Err: fmt.Errorf("layout is %s", layout)}
}

// MissingResource reports that a resource required by format is absent.
func MissingResource(format Format, id string, err error) error {
	return &Error{Format: format, Kind: ErrMissingResource, Resource: id, Err: err}
}

// ArchiveWrite wraps an archive writer failure.
func ArchiveWrite(format Format, err error) error {
	return &Error{Format: format, Kind: ErrArchiveWrite, Err: err}
}
