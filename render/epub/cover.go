package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	coverWidth  = 600
	coverHeight = 800
	coverWrap   = 22
)

// coverSVG draws a plain cover with the title and the authors.
func coverSVG(title string, authors []string) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDeclaration)
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		coverWidth, coverHeight, coverWidth, coverHeight)
	b.WriteString(`  <rect width="100%" height="100%" fill="#f4f1ea"/>` + "\n")
	y := 260
	for _, line := range wrap(title, coverWrap) {
		svgText(&b, line, y, 40, "bold")
		y += 52
	}
	y += 40
	for _, author := range authors {
		svgText(&b, author, y, 28, "normal")
		y += 38
	}
	b.WriteString("</svg>\n")
	return b.Bytes()
}

func svgText(b *bytes.Buffer, s string, y, size int, weight string) {
	fmt.Fprintf(b, `  <text x="%d" y="%d" font-family="serif" font-size="%d" font-weight="%s" text-anchor="middle">`,
		coverWidth/2, y, size, weight)
	_ = xml.EscapeText(b, []byte(s))
	b.WriteString("</text>\n")
}

// wrap breaks s into lines of at most width runes where words allow.
func wrap(s string, width int) []string {
	var lines []string
	cur := ""
	for _, word := range strings.Fields(s) {
		switch {
		case cur == "":
			cur = word
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(word) > width:
			lines = append(lines, cur)
			cur = word
		default:
			cur += " " + word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
