// Package document holds the format-neutral block model produced by the
// storyboard renderer and the encoders that turn it into files.
package document

import (
	"strings"

	"github.com/ch2church/worship-storyboard/internal/markup"
)

// BlockKind distinguishes block-level elements.
type BlockKind string

const (
	BlockTitle     BlockKind = "title"
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockImage     BlockKind = "image"
)

// Alignment of a paragraph.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
)

// ImageDisplayWidthInches is the fixed width every embedded picture is scaled to.
const ImageDisplayWidthInches = 5.0

// Run is a styled text span. Newlines inside Text become line breaks.
type Run struct {
	Text      string  `json:"text"`
	Bold      bool    `json:"bold,omitempty"`
	Highlight bool    `json:"highlight,omitempty"`
	SizePt    float64 `json:"size_pt,omitempty"`
}

// FromMarkup converts interpreter output into document runs.
func FromMarkup(runs []markup.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, Run{Text: r.Text, Bold: r.Bold, Highlight: r.Highlight})
	}
	return out
}

// Block is one block-level element.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Level int       `json:"level,omitempty"`
	Align Alignment `json:"align,omitempty"`
	Runs  []Run     `json:"runs,omitempty"`
	Image *Image    `json:"image,omitempty"`
}

// Text concatenates the block's run texts.
func (b Block) Text() string {
	var sb strings.Builder
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Document is an ordered list of blocks.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// New returns an empty document.
func New() *Document {
	return &Document{Blocks: []Block{}}
}

// AddTitle appends a centered bold title.
func (d *Document) AddTitle(text string, sizePt float64) {
	d.Blocks = append(d.Blocks, Block{
		Kind:  BlockTitle,
		Align: AlignCenter,
		Runs:  []Run{{Text: text, Bold: true, SizePt: sizePt}},
	})
}

// AddHeading appends a heading of the given level (1 or 2).
func (d *Document) AddHeading(level int, text string) {
	d.Blocks = append(d.Blocks, Block{
		Kind:  BlockHeading,
		Level: level,
		Runs:  []Run{{Text: text}},
	})
}

// AddParagraph appends a paragraph; no runs yields an empty spacing paragraph.
func (d *Document) AddParagraph(runs ...Run) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockParagraph, Runs: runs})
}

// AddText appends a single unstyled paragraph.
func (d *Document) AddText(text string) {
	d.AddParagraph(Run{Text: text})
}

// AddImage appends a picture block.
func (d *Document) AddImage(img *Image) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockImage, Image: img})
}

// Encoder turns a Document into a file.
type Encoder interface {
	Encode(doc *Document) ([]byte, error)
	ContentType() string
	Extension() string
}
