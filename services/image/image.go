package imagesvc

import (
	"bytes"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/nooracademy/noor/core"
)

const jpegQuality = 85

var ErrInvalidImage = core.ErrInvalidImage

// Normalize decodes the image read from r (honouring its EXIF orientation), fits it in a
// maxSize x maxSize box and re-encodes it as JPEG.
func Normalize(r io.Reader, maxSize int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidImage, err.Error())
	}
	if maxSize > 0 && (img.Bounds().Dx() > maxSize || img.Bounds().Dy() > maxSize) {
		img = imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	}
	return encode(img)
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), nil
}
