// Package unpack dumps every fragment and resource of a book into a ZIP for
// inspection. It is best effort and does not fail on odd books.
package unpack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/archive"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/render"
)

const (
	ManifestPath = "manifest.json"
	BookPath     = "book.json"
)

// Manifest is written as manifest.json at the root of the unpack archive.
type Manifest struct {
	Container  *ContainerInfo `json:"container,omitempty"`
	Layout     book.Layout    `json:"layout"`
	Fragments  []FragmentInfo `json:"fragments"`
	Duplicates []FragmentInfo `json:"duplicates,omitempty"`
	Resources  []ResourceInfo `json:"resources"`
}

type ContainerInfo struct {
	Version      string   `json:"version"`
	Entry        string   `json:"entry,omitempty"`
	Parts        int      `json:"parts"`
	Fragments    int      `json:"fragments"`
	Types        []string `json:"types"`
	LocalSymbols []string `json:"local_symbols"`
}

type FragmentInfo struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Known  bool   `json:"known"`
	Error  string `json:"error,omitempty"`
	Offset int64  `json:"offset"`
	Part   int    `json:"part"`
	Size   int    `json:"size"`
}

type ResourceInfo struct {
	ID        string `json:"id"`
	MediaType string `json:"media_type"`
	Usage     string `json:"usage"`
	Path      string `json:"path"`
	Size      int    `json:"size"`
	SHA256    string `json:"sha256"`
	BLAKE3    string `json:"blake3"`
}

// Renderer produces the unpack archive.
type Renderer struct{}

func New() Renderer { return Renderer{} }

func (Renderer) Format() render.Format { return render.FormatUnpack }

func (Renderer) Render(b *book.Book, opts render.Options) ([]byte, error) {
	m := Manifest{Layout: b.Layout, Fragments: []FragmentInfo{}, Resources: []ResourceInfo{}}
	var files []archive.Entry
	paths := make(map[string]bool)

	if s := b.Store; s != nil {
		m.Container = &ContainerInfo{
			Version:      s.Version().String(),
			Entry:        s.Entry(),
			Parts:        s.Parts(),
			Fragments:    s.Len(),
			Types:        s.Types(),
			LocalSymbols: s.Symbols().LocalNames(),
		}
		for f := range s.Fragments() {
			info, data := dumpFragment(f)
			info.Path = unique(paths, info.Path)
			m.Fragments = append(m.Fragments, info)
			files = append(files, archive.Entry{Path: info.Path, Data: data})
		}
		for _, f := range s.Duplicates() {
			info, _ := dumpFragment(f)
			info.Path = ""
			m.Duplicates = append(m.Duplicates, info)
		}
	}

	for i := range b.Resources {
		res := &b.Resources[i]
		sum := sha256.Sum256(res.Data)
		b3 := blake3.Sum256(res.Data)
		p := unique(paths, "resources/"+res.Filename)
		m.Resources = append(m.Resources, ResourceInfo{
			ID:        res.ID,
			MediaType: res.MediaType,
			Usage:     string(res.Usage),
			Path:      p,
			Size:      len(res.Data),
			SHA256:    hex.EncodeToString(sum[:]),
			BLAKE3:    hex.EncodeToString(b3[:]),
		})
		files = append(files, archive.Entry{Path: p, Data: res.Data, Stored: res.IsImage()})
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	model, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	w := archive.NewWriter(archive.WithLevel(opts.CompressionLevel))
	if err := w.Add(ManifestPath, append(manifest, '\n')); err != nil {
		return nil, render.ArchiveWrite(render.FormatUnpack, err)
	}
	if err := w.Add(BookPath, append(model, '\n')); err != nil {
		return nil, render.ArchiveWrite(render.FormatUnpack, err)
	}
	for _, f := range files {
		add := w.Add
		if f.Stored {
			add = w.AddStored
		}
		if err := add(f.Path, f.Data); err != nil {
			return nil, render.ArchiveWrite(render.FormatUnpack, err)
		}
	}
	out, err := w.Bytes()
	if err != nil {
		return nil, render.ArchiveWrite(render.FormatUnpack, err)
	}
	return out, nil
}

// dumpFragment returns a decoded fragment as ordered JSON and raw media,
// opaque and malformed payloads as their bytes.
func dumpFragment(f kfx.Fragment) (FragmentInfo, []byte) {
	info := FragmentInfo{Type: f.Type, ID: f.ID, Known: f.Known, Offset: f.Offset, Part: f.Part}
	if f.Err != nil {
		info.Error = f.Err.Error()
	}
	base := "fragments/" + safeName(f.Type) + "/" + safeName(f.ID)
	data, ext := fragmentData(f, &info)
	info.Path = base + ext
	info.Size = len(data)
	return info, data
}

func fragmentData(f kfx.Fragment, info *FragmentInfo) ([]byte, string) {
	if blob, ok := f.Value.Blob(); ok {
		return blob, ".bin"
	}
	data, err := json.MarshalIndent(f.Value, "", "  ")
	if err != nil {
		info.Error = err.Error()
		return f.Raw, ".bin"
	}
	return append(data, '\n'), ".json"
}

func safeName(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || strings.HasPrefix(name, ".") {
		name = "_" + name
	}
	return name
}

func unique(seen map[string]bool, p string) string {
	candidate := p
	dot := strings.LastIndex(p, ".")
	if dot <= strings.LastIndex(p, "/") {
		dot = len(p)
	}
	for i := 2; seen[candidate]; i++ {
		candidate = fmt.Sprintf("%s~%d%s", p[:dot], i, p[dot:])
	}
	seen[candidate] = true
	return candidate
}
