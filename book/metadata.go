package book

import (
	"strings"

	"golang.org/x/text/language"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

func (r *resolver) resolveMetadata() {
	var md kfx.Value
	if ref, ok := r.root.Field("metadata"); ok {
		md, _, _ = r.lookup(kfx.TypeMetadata, ref, "book")
	} else {
		for f := range r.store.AllOfType(kfx.TypeMetadata) {
			if f.Err == nil {
				md = f.Value
				break
			}
		}
	}

	str := func(name string) string {
		if v := strings.TrimSpace(md.Get(name).Text()); v != "" {
			return v
		}
		return strings.TrimSpace(r.root.Get(name).Text())
	}
	m := Metadata{
		Title:           str("title"),
		Authors:         textList(md.Get("authors")),
		Publisher:       str("publisher"),
		Description:     str("description"),
		Identifier:      str("identifier"),
		ISBN:            str("isbn"),
		ASIN:            str("asin"),
		IssueDate:       str("issue_date"),
		Subjects:        textList(md.Get("subjects")),
		Rights:          str("rights"),
		BookType:        str("book_type"),
		PageProgression: str("page_progression"),
		Orientation:     str("orientation"),
	}
	if len(m.Authors) == 0 {
		m.Authors = textList(md.Get("author"))
	}
	if lang := str("language"); lang != "" {
		m.Language = r.normalizeLanguage(lang)
	}
	if m.Identifier == "" {
		if m.ISBN != "" {
			m.Identifier = "urn:isbn:" + m.ISBN
		} else if m.ASIN != "" {
			m.Identifier = "urn:asin:" + m.ASIN
		}
	}
	r.book.Metadata = m
}

// normalizeLanguage canonicalizes a BCP 47 tag, keeping the input when it
// does not parse.
func (r *resolver) normalizeLanguage(lang string) string {
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		r.warn("invalid language tag "+lang, diag.Fragment(kfx.TypeMetadata, ""))
		return lang
	}
	return tag.String()
}
