package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/movielist/apiserver/config"
)

// ErrUnsupportedMedia is returned when an upload is not an accepted image type.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// posterTypes maps accepted poster content types to object key extensions.
var posterTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage keeps movie posters in an ObjectStorage backend.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// NewFromConfig builds the backend selected by cfg.Backend and makes sure
// its bucket exists.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend), nil
}

// PutPoster stores an image under a fresh random key and returns the key.
func (s *Storage) PutPoster(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := posterTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}
	key := uuid.NewString() + ext
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("put poster: %w", err)
	}
	return key, nil
}

// OpenPoster opens a stored poster for reading along with its content type.
func (s *Storage) OpenPoster(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !ValidKey(key) {
		return nil, "", ErrInvalidKey
	}
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return rc, ContentTypeFor(key), nil
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// ErrInvalidKey is returned for object keys that do not name a poster.
var ErrInvalidKey = errors.New("invalid object key")

// ValidKey reports whether key has the shape produced by PutPoster.
func ValidKey(key string) bool {
	ext := path.Ext(key)
	if ContentTypeFor(key) == "" {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(key, ext))
	return err == nil
}

// ContentTypeFor returns the content type implied by key's extension.
func ContentTypeFor(key string) string {
	ext := path.Ext(key)
	for contentType, e := range posterTypes {
		if e == ext {
			return contentType
		}
	}
	return ""
}
