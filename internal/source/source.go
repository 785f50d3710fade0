// Package source reads a command line input into container parts: a single
// container file, a ZIP of container files, or a folder holding them.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/archive"
)

var (
	ErrUnsupportedInput = errors.New("source: unsupported input")
	ErrNoContainer      = errors.New("source: no container found")
)

// Extensions lists the accepted input file extensions.
var Extensions = []string{".azw8", ".kfx", ".kfx-zip", ".kpf"}

var zipMagic = []byte("PK\x03\x04")

// Input is a loaded book. Parts are in name order.
type Input struct {
	Path  string
	Parts [][]byte
	Names []string
}

// Open loads path. Folders are searched recursively for containers; a
// folder named *.sdr holds reader sidecar data and is rejected.
func Open(path string) (*Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if info.IsDir() {
		if strings.HasSuffix(strings.ToLower(filepath.Clean(path)), ".sdr") {
			return nil, fmt.Errorf("%w: input folder must not be SDR: %s", ErrUnsupportedInput, path)
		}
		return openDir(path)
	}
	if !slices.Contains(Extensions, extension(path)) {
		return nil, fmt.Errorf("%w: input file must be %s", ErrUnsupportedInput, allowed())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	in := &Input{Path: path}
	if bytes.HasPrefix(data, zipMagic) {
		entries, err := archive.ReadEntries(data)
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", path, err)
		}
		slices.SortFunc(entries, func(a, b archive.Entry) int { return strings.Compare(a.Path, b.Path) })
		for _, e := range entries {
			in.add(e.Path, e.Data)
		}
	} else {
		in.add(filepath.Base(path), data)
	}
	if len(in.Parts) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoContainer, path)
	}
	return in, nil
}

func openDir(dir string) (*Input, error) {
	in := &Input{Path: dir}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		in.add(filepath.ToSlash(rel), data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if len(in.Parts) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoContainer, dir)
	}
	return in, nil
}

// add keeps data when it looks like a container, plain or encrypted.
func (in *Input) add(name string, data []byte) {
	if !bytes.HasPrefix(data, kfx.Magic[:]) && !kfx.IsEncrypted(data) {
		return
	}
	in.Parts = append(in.Parts, data)
	in.Names = append(in.Names, name)
}

// OutputPath names the file for one output. An explicit out has a matching
// extension replaced; otherwise the output sits next to the input.
func OutputPath(in, out, ext string) string {
	if out != "" {
		if strings.HasSuffix(strings.ToLower(out), ext) {
			out = out[:len(out)-len(ext)]
		}
		return out + ext
	}
	base := filepath.Base(filepath.Clean(in))
	base = base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(filepath.Dir(filepath.Clean(in)), base) + ext
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func allowed() string {
	return strings.Join(Extensions[:len(Extensions)-1], ", ") + " or " + Extensions[len(Extensions)-1]
}
