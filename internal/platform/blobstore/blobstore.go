// Package blobstore stores uploaded file content under opaque keys. Metadata
// (owner, file name, description) lives with the caller; the store only knows
// bytes, size and a SHA-256 digest.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// ImageExtensions maps accepted image MIME types to the extension used for
// stored keys.
var ImageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Object describes a stored blob.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// BlobStore is implemented by storage backends.
type BlobStore interface {
	// Put stores at most maxSize bytes from r under key. A larger payload
	// fails with ErrFileTooLarge and nothing is stored.
	Put(ctx context.Context, key string, r io.Reader, maxSize int64) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns "<prefix>/<uuid><ext>".
func NewKey(prefix, ext string) string {
	return prefix + "/" + uuid.NewString() + ext
}

// ExtensionFor returns the stored extension for an allowed image type.
func ExtensionFor(contentType string) (string, error) {
	ct, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(contentType)), ";")
	ext, ok := ImageExtensions[strings.TrimSpace(ct)]
	if !ok {
		return "", fmt.Errorf("%q: %w", contentType, ErrInvalidContentType)
	}
	return ext, nil
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") || c != key {
		return "", ErrInvalidKey
	}
	return c, nil
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func describe(key string, data []byte) *Object {
	return &Object{Key: key, Size: int64(len(data)), Hash: fmt.Sprintf("%x", sha256.Sum256(data))}
}

// InMemoryBlobStore is a thread-safe BlobStore for tests and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key string, r io.Reader, maxSize int64) (*Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := readLimited(r, maxSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return describe(key, data), nil
}

func (s *InMemoryBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
