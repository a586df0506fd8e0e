package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrInvalidImage is the cause of every upload whose content cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// ImageService is any service that can host images and serve them back through a public URL.
type ImageService interface {
	// UploadImage normalizes the image read from r, stores it under name and returns its public URL.
	UploadImage(ctx context.Context, name string, r io.Reader) (string, error)
}
