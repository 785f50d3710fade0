package book

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/diag"
)

// Style is a style with its parent chain flattened. Properties are CSS
// declarations sorted by name; Unknown keeps the style's own properties that
// have no CSS mapping.
type Style struct {
	ID         string      `json:"id"`
	Properties []Property  `json:"properties"`
	Unknown    []kfx.Field `json:"unknown,omitempty"`
}

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Declarations renders the properties as a CSS declaration block body.
func (s *Style) Declarations() string {
	var b strings.Builder
	for i, p := range s.Properties {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Name + ": " + p.Value + ";")
	}
	return b.String()
}

var cssProperties = map[string]bool{
	"font_size": true, "font_weight": true, "font_style": true,
	"font_family": true, "text_align": true, "text_indent": true,
	"line_height": true, "margin_top": true, "margin_bottom": true,
	"margin_left": true, "margin_right": true, "padding_top": true,
	"padding_bottom": true, "padding_left": true, "padding_right": true,
	"color": true, "background_color": true, "text_decoration": true,
	"text_transform": true, "letter_spacing": true, "vertical_align": true,
	"display": true, "page_break_before": true, "page_break_after": true,
}

// Properties whose bare numbers carry no unit.
var unitless = map[string]bool{"font_weight": true, "line_height": true}

var cssUnits = map[string]string{
	"em": "em", "percent": "%", "px": "px", "pt": "pt", "rem": "rem",
}

func (r *resolver) resolveStyles() {
	raw := make(map[string]kfx.Value)
	var order []string
	for f := range r.store.AllOfType(kfx.TypeStyle) {
		if f.Err != nil || f.Value.Kind() != kfx.KindStruct {
			continue
		}
		raw[f.ID] = f.Value
		order = append(order, f.ID)
	}

	r.book.styles = make(map[string]int, len(order))
	for _, id := range order {
		props := make(map[string]string)
		for _, sid := range r.styleChain(id, raw) {
			for _, field := range raw[sid].Fields() {
				if !cssProperties[field.Name] {
					continue
				}
				if v, ok := cssValue(field.Name, field.Value); ok {
					props[field.Name] = v
				}
			}
		}

		st := Style{ID: id}
		for _, field := range raw[id].Fields() {
			if field.Name == "parent_style" {
				continue
			}
			if !cssProperties[field.Name] {
				st.Unknown = append(st.Unknown, field)
				r.warnOnce("property\x00"+field.Name, "unknown style property "+field.Name, diag.Fragment(kfx.TypeStyle, id))
				continue
			}
			if _, ok := cssValue(field.Name, field.Value); !ok {
				r.warn(fmt.Sprintf("unsupported value for style property %s", field.Name), diag.Fragment(kfx.TypeStyle, id))
			}
		}
		for name, v := range props {
			st.Properties = append(st.Properties, Property{Name: strings.ReplaceAll(name, "_", "-"), Value: v})
		}
		slices.SortFunc(st.Properties, func(a, b Property) int { return strings.Compare(a.Name, b.Name) })
		r.book.styles[id] = len(r.book.Styles)
		r.book.Styles = append(r.book.Styles, st)
	}
}

// styleChain returns id and its ancestors, root ancestor first.
func (r *resolver) styleChain(id string, raw map[string]kfx.Value) []string {
	chain := []string{id}
	seen := map[string]int{id: 0}
	cur := id
	for {
		parentRef, ok := raw[cur].Field("parent_style")
		if !ok {
			break
		}
		parent := parentRef.Text()
		if parent == "" {
			break
		}
		if at, loop := seen[parent]; loop {
			cycle := slices.Clone(chain[at:])
			slices.Sort(cycle)
			r.warnOnce("cycle\x00"+strings.Join(cycle, "\x00"),
				"style parent cycle: "+strings.Join(cycle, ", "), diag.Fragment(kfx.TypeStyle, id))
			break
		}
		if _, exists := raw[parent]; !exists {
			r.warnOnce("parent\x00"+parent, "missing parent style "+parent, diag.Fragment(kfx.TypeStyle, cur))
			break
		}
		seen[parent] = len(chain)
		chain = append(chain, parent)
		cur = parent
	}
	slices.Reverse(chain)
	return chain
}

func cssValue(prop string, v kfx.Value) (string, bool) {
	switch v.Kind() {
	case kfx.KindStruct:
		n, ok := v.Get("value").Number()
		if !ok {
			return "", false
		}
		unit := v.Get("unit").Text()
		if unit == "lh" {
			return formatNumber(n*1.2) + "em", true
		}
		if unit == "" {
			return numberValue(prop, n), true
		}
		css, ok := cssUnits[unit]
		if !ok {
			return "", false
		}
		return formatNumber(n) + css, true
	case kfx.KindInt, kfx.KindDecimal, kfx.KindFloat:
		n, _ := v.Number()
		if prop == "color" || prop == "background_color" {
			if i, ok := v.Int(); ok {
				return fmt.Sprintf("#%06x", i&0xFFFFFF), true
			}
		}
		return numberValue(prop, n), true
	case kfx.KindSymbol:
		s, _ := v.Sym()
		if !declarationSafe(s) {
			return "", false
		}
		return strings.ReplaceAll(s, "_", "-"), true
	case kfx.KindString:
		s, _ := v.Str()
		if !declarationSafe(s) {
			return "", false
		}
		if prop == "font_family" {
			return quoteFamily(s), true
		}
		return s, true
	case kfx.KindBool:
		b, _ := v.Bool()
		if prop == "font_weight" && b {
			return "bold", true
		}
	}
	return "", false
}

// declarationSafe reports whether s can stand as a value inside a CSS
// declaration without ending it or opening a block.
func declarationSafe(s string) bool {
	return !strings.ContainsAny(s, ";{}<>\\\n\r")
}

func numberValue(prop string, n float64) string {
	if unitless[prop] || n == 0 {
		return formatNumber(n)
	}
	return formatNumber(n) + "em"
}

func formatNumber(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	return strconv.FormatFloat(math.Round(n*1e4)/1e4, 'f', -1, 64)
}

func quoteFamily(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if strings.ContainsAny(p, " \t") {
			p = `"` + p + `"`
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

// styleRef validates a style reference from a section or block; references to
// unknown styles are reported once per style id and dropped.
func (r *resolver) styleRef(v kfx.Value, typ, id string) string {
	sid := v.Text()
	if sid == "" {
		return ""
	}
	if _, ok := r.book.styles[sid]; !ok {
		r.warnOnce("style\x00"+sid, "missing style "+sid, diag.Fragment(typ, id))
		return ""
	}
	return sid
}
