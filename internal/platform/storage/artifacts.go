package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const defaultSignedURLExpiry = 15 * time.Minute

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
)

// ErrObjectNotFound indicates the requested artifact does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ArtifactStore persists generated artifacts (QR images) and hands out
// time-limited download URLs.
type ArtifactStore interface {
	Put(ctx context.Context, object string, contentType string, data []byte) error
	Delete(ctx context.Context, object string) error
	SignedURL(ctx context.Context, object string, expiry time.Duration) (string, error)
}

// GCSArtifactStore stores artifacts in a Cloud Storage bucket.
type GCSArtifactStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSArtifactStore constructs a store bound to the given bucket.
func NewGCSArtifactStore(client *gcs.Client, bucket string) (*GCSArtifactStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &GCSArtifactStore{client: client, bucket: bucket}, nil
}

// Put writes the object, overwriting any previous content.
func (s *GCSArtifactStore) Put(ctx context.Context, object string, contentType string, data []byte) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return errInvalidObject
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", object, err)
	}
	return nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *GCSArtifactStore) Delete(ctx context.Context, object string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return errInvalidObject
	}

	err := s.client.Bucket(s.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete %s: %w", object, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL for the object.
func (s *GCSArtifactStore) SignedURL(_ context.Context, object string, expiry time.Duration) (string, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}
	if expiry <= 0 {
		expiry = defaultSignedURLExpiry
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(object, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign %s: %w", object, err)
	}
	return url, nil
}
