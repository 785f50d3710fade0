package book

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

// Usage records what a resource is used for.
type Usage string

const (
	UsageCover        Usage = "cover"
	UsageImage        Usage = "image"
	UsageFont         Usage = "font"
	UsageAudio        Usage = "audio"
	UsageVideo        Usage = "video"
	UsagePrintReplica Usage = "print_replica"
	UsageOther        Usage = "other"
)

// Resource is an embedded media object. Filename is unique within the book.
type Resource struct {
	ID         string `json:"id"`
	MediaType  string `json:"media_type"`
	Usage      Usage  `json:"usage"`
	Filename   string `json:"filename"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	FontFamily string `json:"font_family,omitempty"`
	Size       int    `json:"size"`
	Data       []byte `json:"-"`
}

// IsImage reports whether the resource is a raster or vector image.
func (r *Resource) IsImage() bool {
	return strings.HasPrefix(r.MediaType, "image/")
}

var formatTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"ttf":  "font/ttf",
	"otf":  "font/otf",
	"woff": "font/woff",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
}

var typeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"font/ttf":        ".ttf",
	"font/otf":        ".otf",
	"font/woff":       ".woff",
	"audio/mpeg":      ".mp3",
	"video/mp4":       ".mp4",
}

// Extension returns the conventional file extension for a media type, or
// ".bin".
func Extension(mediaType string) string {
	if ext, ok := typeExtensions[mediaType]; ok {
		return ext
	}
	return ".bin"
}

func (r *resolver) resolveResources() {
	coverID := r.root.Get("cover_image").Text()
	replicaID := r.root.Get("print_replica").Text()
	names := make(map[string]bool)
	r.book.resources = make(map[string]int)

	for f := range r.store.AllOfType(kfx.TypeResource) {
		if f.Err != nil || f.Value.Kind() != kfx.KindStruct {
			continue
		}
		v := f.Value
		data, ok := r.resourceData(f.ID, v)
		if !ok {
			continue
		}
		res := Resource{
			ID:         f.ID,
			MediaType:  mediaType(v, data),
			Width:      intField(v, "width"),
			Height:     intField(v, "height"),
			FontFamily: strings.TrimSpace(v.Get("font_family").Text()),
			Size:       len(data),
			Data:       data,
		}
		res.Usage = usage(v.Get("usage").Text(), res.MediaType)
		switch f.ID {
		case coverID:
			res.Usage = UsageCover
		case replicaID:
			res.Usage = UsagePrintReplica
		}
		if res.IsImage() && (res.Width == 0 || res.Height == 0) {
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
				res.Width, res.Height = cfg.Width, cfg.Height
			}
		}
		res.Filename = uniqueName(names, filename(f.ID, v.Get("location").Text(), res.MediaType))
		r.book.resources[f.ID] = len(r.book.Resources)
		r.book.Resources = append(r.book.Resources, res)
	}

	if coverID != "" {
		if res, ok := r.book.Resource(coverID); ok && res.IsImage() {
			r.book.Cover = coverID
		} else {
			r.warn("cover image "+coverID+" is not an available image", diag.Resource(coverID))
		}
	}
}

func (r *resolver) resourceData(id string, v kfx.Value) ([]byte, bool) {
	if data, ok := v.Get("data").Blob(); ok {
		return data, true
	}
	ref, ok := v.Field("raw_media")
	if !ok {
		r.warn("resource has no data", diag.Fragment(kfx.TypeResource, id), diag.Resource(id))
		return nil, false
	}
	media, rawID, ok := r.lookup(kfx.TypeRawMedia, ref, "resource "+id)
	if !ok {
		return nil, false
	}
	data, ok := media.Blob()
	if !ok {
		r.warn(fmt.Sprintf("raw media %s is not a blob", rawID), diag.Fragment(kfx.TypeRawMedia, rawID), diag.Resource(id))
		return nil, false
	}
	return data, true
}

func mediaType(v kfx.Value, data []byte) string {
	if mime := strings.ToLower(strings.TrimSpace(v.Get("mime").Text())); mime != "" {
		return mime
	}
	if t, ok := formatTypes[strings.ToLower(v.Get("format").Text())]; ok {
		return t
	}
	if t, ok := formatTypes[strings.TrimPrefix(strings.ToLower(path.Ext(v.Get("location").Text())), ".")]; ok {
		return t
	}
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return "application/pdf"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	}
	return "application/octet-stream"
}

func usage(declared, mediaType string) Usage {
	switch declared {
	case "cover":
		return UsageCover
	case "image":
		return UsageImage
	case "font":
		return UsageFont
	case "audio":
		return UsageAudio
	case "video":
		return UsageVideo
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return UsageImage
	case strings.HasPrefix(mediaType, "font/"):
		return UsageFont
	case strings.HasPrefix(mediaType, "audio/"):
		return UsageAudio
	case strings.HasPrefix(mediaType, "video/"):
		return UsageVideo
	}
	return UsageOther
}

func filename(id, location, mediaType string) string {
	base := path.Base(strings.ReplaceAll(location, "\\", "/"))
	if location == "" || base == "." || base == "/" {
		base = id
	}
	base = sanitize(strings.TrimSuffix(base, path.Ext(base)))
	if base == "" {
		base = "resource"
	}
	return base + Extension(mediaType)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func uniqueName(seen map[string]bool, name string) string {
	candidate := name
	ext := path.Ext(name)
	for i := 2; seen[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), i, ext)
	}
	seen[candidate] = true
	return candidate
}
