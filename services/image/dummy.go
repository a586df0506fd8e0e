package imagesvc

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/nooracademy/noor/core"
)

// dummyService normalizes the images and keeps them in memory; used when storage is disabled & in tests.
type dummyService struct {
	mu      sync.Mutex
	baseURL string
	maxSize int
	images  map[string][]byte
}

var _ core.ImageService = (*dummyService)(nil)

func NewDummyService(conf *core.Config) *dummyService {
	baseURL := strings.TrimRight(conf.Images.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost/media"
	}
	return &dummyService{baseURL: baseURL, maxSize: conf.Images.MaxSize, images: make(map[string][]byte)}
}

func (svc *dummyService) UploadImage(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := Normalize(r, svc.maxSize)
	if err != nil {
		return "", err
	}
	svc.mu.Lock()
	svc.images[name] = data
	svc.mu.Unlock()
	return svc.baseURL + "/" + name, nil
}

// Image returns the stored bytes of name.
func (svc *dummyService) Image(name string) ([]byte, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	data, ok := svc.images[name]
	return data, ok
}
