package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	nsMain    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsRel     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP      = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA       = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic     = "http://schemas.openxmlformats.org/drawingml/2006/picture"
	nsPkgRels = "http://schemas.openxmlformats.org/package/2006/relationships"

	relOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relStyles         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	relImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DocxEncoder writes WordprocessingML packages.
type DocxEncoder struct {
	FontName   string
	FontSizePt float64
}

// NewDocxEncoder returns an encoder using the given body font.
func NewDocxEncoder(fontName string, fontSizePt float64) *DocxEncoder {
	if fontName == "" {
		fontName = "맑은 고딕"
	}
	if fontSizePt <= 0 {
		fontSizePt = 11
	}
	return &DocxEncoder{FontName: fontName, FontSizePt: fontSizePt}
}

func (e *DocxEncoder) ContentType() string { return docxContentType }

func (e *DocxEncoder) Extension() string { return "docx" }

type media struct {
	relID string
	part  string
	data  []byte
}

// Encode serializes doc. Image blocks must already hold decoded pictures.
func (e *DocxEncoder) Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	var body bytes.Buffer
	var images []media
	for i, b := range doc.Blocks {
		switch b.Kind {
		case BlockImage:
			if b.Image == nil || len(b.Image.Data) == 0 {
				return nil, fmt.Errorf("block %d: image has no data", i)
			}
			n := len(images) + 1
			m := media{
				relID: fmt.Sprintf("rIdImg%d", n),
				part:  fmt.Sprintf("media/image%d.%s", n, b.Image.Extension()),
				data:  b.Image.Data,
			}
			images = append(images, m)
			writeDrawing(&body, b.Image, m.relID, n)
		default:
			e.writeParagraph(&body, b)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/document.xml", documentXML(body.String())},
		{"word/styles.xml", e.stylesXML()},
		{"word/_rels/document.xml.rels", documentRelsXML(images)},
	}
	for _, p := range parts {
		if err := writePart(zw, p.name, []byte(p.content)); err != nil {
			return nil, err
		}
	}
	for _, m := range images {
		if err := writePart(zw, "word/"+m.part, m.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx package: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create part %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write part %s: %w", name, err)
	}
	return nil
}

func (e *DocxEncoder) writeParagraph(w *bytes.Buffer, b Block) {
	w.WriteString("<w:p>")
	var ppr strings.Builder
	switch b.Kind {
	case BlockTitle:
		ppr.WriteString(`<w:pStyle w:val="Title"/>`)
	case BlockHeading:
		level := b.Level
		if level < 1 {
			level = 1
		}
		fmt.Fprintf(&ppr, `<w:pStyle w:val="Heading%d"/>`, level)
	}
	if b.Align == AlignCenter {
		ppr.WriteString(`<w:jc w:val="center"/>`)
	}
	if ppr.Len() > 0 {
		w.WriteString("<w:pPr>")
		w.WriteString(ppr.String())
		w.WriteString("</w:pPr>")
	}
	for _, r := range b.Runs {
		writeRun(w, r)
	}
	w.WriteString("</w:p>")
}

func writeRun(w *bytes.Buffer, r Run) {
	if r.Text == "" {
		return
	}
	w.WriteString("<w:r>")
	if r.Bold || r.Highlight || r.SizePt > 0 {
		w.WriteString("<w:rPr>")
		if r.Bold {
			w.WriteString("<w:b/><w:bCs/>")
		}
		if r.Highlight {
			w.WriteString(`<w:highlight w:val="yellow"/>`)
		}
		if r.SizePt > 0 {
			half := int(math.Round(r.SizePt * 2))
			fmt.Fprintf(w, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, half, half)
		}
		w.WriteString("</w:rPr>")
	}
	for i, line := range strings.Split(r.Text, "\n") {
		if i > 0 {
			w.WriteString("<w:br/>")
		}
		if line == "" {
			continue
		}
		w.WriteString(`<w:t xml:space="preserve">`)
		w.WriteString(escape(line))
		w.WriteString("</w:t>")
	}
	w.WriteString("</w:r>")
}

func writeDrawing(w *bytes.Buffer, img *Image, relID string, n int) {
	cx, cy := img.DisplaySizeEMU()
	name := escape(img.Name)
	fmt.Fprintf(w, `<w:p><w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Picture %d" descr="%s"/>`+
		`<wp:cNvGraphicFramePr><a:graphicFrameLocks xmlns:a="%s" noChangeAspect="1"/></wp:cNvGraphicFramePr>`+
		`<a:graphic xmlns:a="%s"><a:graphicData uri="%s"><pic:pic xmlns:pic="%s">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		cx, cy, n, n, name,
		nsA, nsA, nsPic, nsPic,
		n, name,
		relID,
		cx, cy)
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Default Extension="png" ContentType="image/png"/>` +
	`<Default Extension="jpeg" ContentType="image/jpeg"/>` +
	`<Default Extension="gif" ContentType="image/gif"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`</Types>`

var packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="` + nsPkgRels + `">` +
	`<Relationship Id="rId1" Type="` + relOfficeDocument + `" Target="word/document.xml"/>` +
	`</Relationships>`

func documentXML(body string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	fmt.Fprintf(&b, `<w:document xmlns:w="%s" xmlns:r="%s" xmlns:wp="%s"><w:body>`, nsMain, nsRel, nsWP)
	b.WriteString(body)
	// A4 with one-inch margins.
	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>` +
		`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`)
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func documentRelsXML(images []media) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, nsPkgRels)
	fmt.Fprintf(&b, `<Relationship Id="rIdStyles" Type="%s" Target="styles.xml"/>`, relStyles)
	for _, m := range images {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, m.relID, relImage, m.part)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func (e *DocxEncoder) stylesXML() string {
	font := escape(e.FontName)
	size := int(math.Round(e.FontSizePt * 2))
	fonts := fmt.Sprintf(`<w:rFonts w:ascii="%s" w:hAnsi="%s" w:eastAsia="%s" w:cs="%s"/>`, font, font, font, font)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	fmt.Fprintf(&b, `<w:styles xmlns:w="%s">`, nsMain)
	fmt.Fprintf(&b, `<w:docDefaults><w:rPrDefault><w:rPr>%s<w:sz w:val="%d"/><w:szCs w:val="%d"/><w:lang w:val="ko-KR" w:eastAsia="ko-KR"/></w:rPr></w:rPrDefault>`+
		`<w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="276" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>`, fonts, size, size)
	fmt.Fprintf(&b, `<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/><w:rPr>%s</w:rPr></w:style>`, fonts)
	b.WriteString(`<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
		`<w:pPr><w:spacing w:after="240"/></w:pPr><w:rPr><w:b/><w:sz w:val="40"/><w:szCs w:val="40"/></w:rPr></w:style>`)
	headings := []struct {
		level, size, before int
	}{{1, 32, 360}, {2, 26, 240}, {3, 24, 200}}
	for _, h := range headings {
		fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Heading%d"><w:name w:val="heading %d"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>`+
			`<w:pPr><w:keepNext/><w:spacing w:before="%d" w:after="120"/><w:outlineLvl w:val="%d"/></w:pPr>`+
			`<w:rPr><w:b/><w:bCs/><w:sz w:val="%d"/><w:szCs w:val="%d"/></w:rPr></w:style>`,
			h.level, h.level, h.before, h.level-1, h.size, h.size)
	}
	b.WriteString(`</w:styles>`)
	return b.String()
}

// ReadPart returns one part of an encoded package.
func ReadPart(docx []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return nil, fmt.Errorf("open docx package: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("part %s not found", name)
}

// Paragraphs extracts the plain text of each body paragraph of an encoded
// package, in order. Line breaks come back as "\n".
func Paragraphs(docx []byte) ([]string, error) {
	data, err := ReadPart(docx, "word/document.xml")
	if err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var cur strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != nsMain {
				continue
			}
			switch t.Name.Local {
			case "p":
				cur.Reset()
			case "t":
				inText = true
			case "br":
				cur.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Space != nsMain {
				continue
			}
			switch t.Name.Local {
			case "p":
				out = append(out, cur.String())
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return out, nil
}
