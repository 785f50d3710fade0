// Package archive writes the ZIP based outputs (EPUB, CBZ, unpack) with a
// fixed entry order and fixed timestamps, so that equal inputs produce equal
// archives.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

var (
	ErrInvalidPath   = errors.New("archive: invalid entry path")
	ErrDuplicatePath = errors.New("archive: duplicate entry path")
	ErrClosed        = errors.New("archive: writer closed")
)

// modTime is the timestamp of every entry: the earliest a ZIP can hold.
var modTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// maxReadEntry bounds a single entry in ReadEntries.
const maxReadEntry = 1 << 30

// Function variables for testing injection.
var (
	newDeflater = func(w io.Writer, level int) (io.WriteCloser, error) { return flate.NewWriter(w, level) }
)

// Entry is one file of an archive. Stored entries are written without
// compression.
type Entry struct {
	Path   string
	Data   []byte
	Stored bool
}

type config struct {
	level int
}

type Option func(*config)

// WithLevel sets the Deflate level (-2 to 9; -1 is the library default).
func WithLevel(level int) Option {
	return func(c *config) {
		if level >= flate.HuffmanOnly && level <= flate.BestCompression {
			c.level = level
		}
	}
}

// Writer builds an archive in memory. Entries keep their insertion order.
type Writer struct {
	buf  bytes.Buffer
	zw   *zip.Writer
	seen map[string]struct{}
	done bool
}

func NewWriter(opts ...Option) *Writer {
	cfg := config{level: flate.DefaultCompression}
	for _, opt := range opts {
		opt(&cfg)
	}
	w := &Writer{seen: make(map[string]struct{})}
	w.zw = zip.NewWriter(&w.buf)
	level := cfg.level
	w.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return newDeflater(out, level)
	})
	return w
}

// Add writes a Deflate-compressed entry.
func (w *Writer) Add(name string, data []byte) error {
	return w.add(name, data, zip.Deflate)
}

// AddStored writes an uncompressed entry, as required for an EPUB mimetype.
func (w *Writer) AddStored(name string, data []byte) error {
	return w.add(name, data, zip.Store)
}

func (w *Writer) add(name string, data []byte, method uint16) error {
	if w.done {
		return ErrClosed
	}
	if err := ValidatePath(name); err != nil {
		return err
	}
	if _, ok := w.seen[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, name)
	}
	w.seen[name] = struct{}{}
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modTime})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Bytes finishes the archive and returns it. The writer cannot be used
// afterwards.
func (w *Writer) Bytes() ([]byte, error) {
	if w.done {
		return nil, ErrClosed
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return w.buf.Bytes(), nil
}

// Write builds an archive from entries in order.
func Write(entries []Entry, opts ...Option) ([]byte, error) {
	w := NewWriter(opts...)
	for _, e := range entries {
		var err error
		if e.Stored {
			err = w.AddStored(e.Path, e.Data)
		} else {
			err = w.Add(e.Path, e.Data)
		}
		if err != nil {
			return nil, err
		}
	}
	return w.Bytes()
}

// ReadEntries returns the decompressed entries of a ZIP archive in directory
// order.
func ReadEntries(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	out := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.UncompressedSize64 > maxReadEntry {
			return nil, fmt.Errorf("%s: entry too large", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		b, err := io.ReadAll(io.LimitReader(rc, maxReadEntry+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out = append(out, Entry{Path: f.Name, Data: b, Stored: f.Method == zip.Store})
	}
	return out, nil
}

// ValidatePath checks that p is a relative, normalized path that stays
// inside the archive.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: %q must not be absolute", ErrInvalidPath, p)
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("%w: %q must use forward slashes", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean != p {
		return fmt.Errorf("%w: %q must be normalized as %q", ErrInvalidPath, p, clean)
	}
	if clean == "." {
		return fmt.Errorf("%w: path must not be the current directory", ErrInvalidPath)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q must not escape", ErrInvalidPath, p)
	}
	return nil
}
