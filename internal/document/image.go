package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded picture ready to embed. Data is always in a format
// word processors accept (png, jpeg or gif).
type Image struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"-"`
}

// embeddable formats are stored as uploaded; anything else is re-encoded as png.
var embeddable = map[string]bool{"png": true, "jpeg": true, "gif": true}

// DecodeImage fully decodes data so a truncated or foreign file is rejected
// here rather than producing a broken document.
func DecodeImage(name string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", name)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", name, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("image %s has no pixels", name)
	}

	out := &Image{
		Name:   name,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   data,
	}
	if !embeddable[format] {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("convert image %s (%s) to png: %w", name, format, err)
		}
		out.Format = "png"
		out.Data = buf.Bytes()
	}
	return out, nil
}

// Extension returns the file extension matching Format.
func (img *Image) Extension() string {
	if img.Format == "jpeg" {
		return "jpeg"
	}
	return img.Format
}

// DisplaySizeEMU scales the picture to the fixed display width, keeping its
// aspect ratio, in English Metric Units.
func (img *Image) DisplaySizeEMU() (cx, cy int64) {
	const emuPerInch = 914400
	cx = int64(ImageDisplayWidthInches * emuPerInch)
	if img.Width <= 0 {
		return cx, cx
	}
	cy = cx * int64(img.Height) / int64(img.Width)
	return cx, cy
}
