package thumbs

import (
	"bytes"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"github.com/rotisserie/eris"
	_ "golang.org/x/image/webp" // register decoder
)

// ErrDecode marks source bytes that are not a decodable image.
var ErrDecode = eris.New("thumbs: decode image")

// Encoder turns source image bytes into a thumbnail.
type Encoder interface {
	Encode(src []byte) ([]byte, error)
	Ext() string
}

// WebPEncoder resizes to a fixed width keeping the aspect ratio and encodes
// lossy WebP.
type WebPEncoder struct {
	Width   int
	Quality int
}

// NewWebPEncoder returns an encoder, substituting 360px and quality 75 for
// non-positive values.
func NewWebPEncoder(width, quality int) *WebPEncoder {
	if width <= 0 {
		width = 360
	}
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	return &WebPEncoder{Width: width, Quality: quality}
}

// Ext returns the thumbnail file extension.
func (e *WebPEncoder) Ext() string {
	return "webp"
}

// Encode decodes src, resizes it with a Lanczos filter and encodes it as WebP.
func (e *WebPEncoder) Encode(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrapf(ErrDecode, "%v", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, eris.Wrap(ErrDecode, "empty image")
	}

	resized := imaging.Resize(img, e.Width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, image.Image(resized), webp.Options{Quality: e.Quality, Method: 4}); err != nil {
		return nil, eris.Wrap(err, "thumbs: encode webp")
	}
	return buf.Bytes(), nil
}
