package epub

import (
	"fmt"
	"strings"
)

const baseCSS = `body {
  margin: 0 2%;
  padding: 0;
}

img {
  max-width: 100%;
}

div.image {
  text-align: center;
}

div.cover {
  height: 100%;
  text-align: center;
}

div.cover img {
  height: 100%;
}
`

const fixedCSS = `
body.page {
  margin: 0;
  padding: 0;
}

div.page,
img.page {
  width: 100%;
  height: 100%;
}
`

// className maps a style id onto the CSS class its rule is written under.
// Ids that flatten to the same identifier get numbered suffixes in the
// order they are first seen.
func (p *pkg) className(styleID string) string {
	if styleID == "" {
		return ""
	}
	if c, ok := p.classes[styleID]; ok {
		return c
	}
	base := "s-" + cssIdent(styleID)
	c := base
	for i := 2; p.classSet[c]; i++ {
		c = fmt.Sprintf("%s-%d", base, i)
	}
	p.classes[styleID] = c
	p.classSet[c] = true
	return c
}

func cssIdent(s string) string {
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

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\A `)
	return `"` + r.Replace(s) + `"`
}

func (p *pkg) stylesheet() []byte {
	var b strings.Builder
	for i := range p.b.Resources {
		res := &p.b.Resources[i]
		href, ok := p.resHref[res.ID]
		if !ok || res.FontFamily == "" || resourceDir(res) != "fonts/" {
			continue
		}
		fmt.Fprintf(&b, "@font-face {\n  font-family: %s;\n  src: url(%s);\n}\n\n", cssString(res.FontFamily), cssString("../"+href))
	}
	b.WriteString(baseCSS)
	if p.fixed {
		b.WriteString(fixedCSS)
	}
	for i := range p.b.Styles {
		st := &p.b.Styles[i]
		if len(st.Properties) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n.%s {\n", p.className(st.ID))
		for _, prop := range st.Properties {
			fmt.Fprintf(&b, "  %s: %s;\n", prop.Name, prop.Value)
		}
		b.WriteString("}\n")
	}
	return []byte(b.String())
}
