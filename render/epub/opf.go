package epub

import (
	"encoding/xml"
)

const (
	nsOPF       = "http://www.idpf.org/2007/opf"
	nsDC        = "http://purl.org/dc/elements/1.1/"
	nsNCX       = "http://www.daisy.org/z3986/2005/ncx/"
	nsContainer = "urn:oasis:names:tc:opendocument:xmlns:container"
	nsXHTML     = "http://www.w3.org/1999/xhtml"
	nsOPS       = "http://www.idpf.org/2007/ops"

	renditionPrefix = "rendition: http://www.idpf.org/vocab/rendition/#"
)

type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Xmlns            string      `xml:"xmlns,attr"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Prefix           string      `xml:"prefix,attr,omitempty"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         []opfItem   `xml:"manifest>item"`
	Spine            opfSpine    `xml:"spine"`
	Guide            *opfGuide   `xml:"guide,omitempty"`
}

type opfMetadata struct {
	XmlnsDC     string    `xml:"xmlns:dc,attr"`
	XmlnsOPF    string    `xml:"xmlns:opf,attr,omitempty"`
	Identifier  opfDC     `xml:"dc:identifier"`
	Title       opfDC     `xml:"dc:title"`
	Creators    []opfDC   `xml:"dc:creator"`
	Language    string    `xml:"dc:language"`
	Publisher   string    `xml:"dc:publisher,omitempty"`
	Description string    `xml:"dc:description,omitempty"`
	Date        string    `xml:"dc:date,omitempty"`
	Subjects    []string  `xml:"dc:subject"`
	Rights      string    `xml:"dc:rights,omitempty"`
	Metas       []opfMeta `xml:"meta"`
}

type opfDC struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr,omitempty"`
	Role  string `xml:"opf:role,attr,omitempty"`
}

// opfMeta is an EPUB 2 name/content pair or an EPUB 3 property element.
type opfMeta struct {
	Name     string `xml:"name,attr,omitempty"`
	Content  string `xml:"content,attr,omitempty"`
	Property string `xml:"property,attr,omitempty"`
	Refines  string `xml:"refines,attr,omitempty"`
	Scheme   string `xml:"scheme,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfSpine struct {
	Toc       string       `xml:"toc,attr,omitempty"`
	Direction string       `xml:"page-progression-direction,attr,omitempty"`
	ItemRefs  []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef      string `xml:"idref,attr"`
	Linear     string `xml:"linear,attr,omitempty"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

type ncxDocument struct {
	XMLName  xml.Name     `xml:"ncx"`
	Xmlns    string       `xml:"xmlns,attr"`
	Version  string       `xml:"version,attr"`
	Lang     string       `xml:"xml:lang,attr,omitempty"`
	Head     []ncxMeta    `xml:"head>meta"`
	DocTitle string       `xml:"docTitle>text"`
	NavMap   []ncxPoint   `xml:"navMap>navPoint"`
	PageList *ncxPageList `xml:"pageList,omitempty"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     string     `xml:"navLabel>text"`
	Content   ncxContent `xml:"content"`
	Children  []ncxPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

type ncxPageList struct {
	Targets []ncxPageTarget `xml:"pageTarget"`
}

type ncxPageTarget struct {
	ID        string     `xml:"id,attr"`
	Type      string     `xml:"type,attr"`
	Value     string     `xml:"value,attr,omitempty"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     string     `xml:"navLabel>text"`
	Content   ncxContent `xml:"content"`
}

type containerDocument struct {
	XMLName   xml.Name       `xml:"container"`
	Version   string         `xml:"version,attr"`
	Xmlns     string         `xml:"xmlns,attr"`
	RootFiles []rootFileNode `xml:"rootfiles>rootfile"`
}

type rootFileNode struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

func marshalXML(v any) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(append([]byte(xml.Header), out...), '\n'), nil
}

func containerXML() ([]byte, error) {
	return marshalXML(containerDocument{
		Version:   "1.0",
		Xmlns:     nsContainer,
		RootFiles: []rootFileNode{{FullPath: "OEBPS/content.opf", MediaType: "application/oebps-package+xml"}},
	})
}
