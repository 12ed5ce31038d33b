package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	fsStore, err := NewFileSystemBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemBlobStore: %v", err)
	}
	return map[string]BlobStore{
		"memory":     NewInMemoryBlobStore(),
		"filesystem": fsStore,
	}
}

func readAll(t *testing.T, store BlobStore, key string) string {
	t.Helper()
	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open(%s): %v", key, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestBlobStore_PutOpenDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := NewKey("patients", ".png")

			obj, err := store.Put(ctx, key, strings.NewReader("hello world"), 1024)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if obj.Size != 11 {
				t.Errorf("Size = %d, want 11", obj.Size)
			}
			want := fmt.Sprintf("%x", sha256.Sum256([]byte("hello world")))
			if obj.Hash != want {
				t.Errorf("Hash = %s, want %s", obj.Hash, want)
			}
			if got := readAll(t, store, key); got != "hello world" {
				t.Errorf("content = %q", got)
			}

			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Open(ctx, key); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("Open after delete err = %v, want ErrBlobNotFound", err)
			}
			if err := store.Delete(ctx, key); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("second Delete err = %v, want ErrBlobNotFound", err)
			}
		})
	}
}

func TestBlobStore_TooLarge(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := NewKey("investigations", ".jpg")
			_, err := store.Put(context.Background(), key, strings.NewReader("0123456789"), 9)
			if !errors.Is(err, ErrFileTooLarge) {
				t.Fatalf("err = %v, want ErrFileTooLarge", err)
			}
			if _, err := store.Open(context.Background(), key); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("oversized blob was stored, err = %v", err)
			}
		})
	}
}

func TestBlobStore_ExactLimitAccepted(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(context.Background(), "patients/a.png", strings.NewReader("0123456789"), 10); err != nil {
				t.Errorf("Put at exact limit: %v", err)
			}
		})
	}
}

func TestBlobStore_InvalidKeys(t *testing.T) {
	keys := []string{"", "/etc/passwd", "../escape.png", "patients/../../x", "a\\b", "patients//x.png", "."}
	for name, store := range stores(t) {
		for _, key := range keys {
			_, err := store.Put(context.Background(), key, strings.NewReader("x"), 10)
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("%s: Put(%q) err = %v, want ErrInvalidKey", name, key, err)
			}
		}
	}
}

func TestFileSystemBlobStore_Layout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemBlobStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemBlobStore: %v", err)
	}
	if _, err := store.Put(context.Background(), "patients/abc.png", strings.NewReader("img"), 10); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(root, "patients", "abc.png"))
	if err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if string(b) != "img" {
		t.Errorf("file content = %q", b)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "patients"))
	if len(entries) != 1 {
		t.Errorf("expected only the stored file, found %d entries", len(entries))
	}
}

func TestNewFileSystemBlobStore_EmptyRoot(t *testing.T) {
	if _, err := NewFileSystemBlobStore(""); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestNewKey(t *testing.T) {
	k1 := NewKey("patients", ".png")
	k2 := NewKey("patients", ".png")
	if k1 == k2 {
		t.Error("keys must be unique")
	}
	if !strings.HasPrefix(k1, "patients/") || !strings.HasSuffix(k1, ".png") {
		t.Errorf("key = %s", k1)
	}
	if _, err := cleanKey(k1); err != nil {
		t.Errorf("generated key rejected: %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		ct      string
		want    string
		wantErr bool
	}{
		{"image/png", ".png", false},
		{"image/jpeg", ".jpg", false},
		{"IMAGE/WEBP", ".webp", false},
		{"image/gif; charset=binary", ".gif", false},
		{"image/tiff", "", true},
		{"application/pdf", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ExtensionFor(tt.ct)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidContentType) {
				t.Errorf("ExtensionFor(%q) err = %v, want ErrInvalidContentType", tt.ct, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ExtensionFor(%q) = %q, %v; want %q", tt.ct, got, err, tt.want)
		}
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	const goroutines = 50

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("patients/file-%d.png", n)
			if _, err := store.Put(context.Background(), key, strings.NewReader("x"), 10); err != nil {
				t.Errorf("put goroutine %d: %v", n, err)
				return
			}
			rc, err := store.Open(context.Background(), key)
			if err != nil {
				t.Errorf("open goroutine %d: %v", n, err)
				return
			}
			rc.Close()
		}(i)
	}
	wg.Wait()

	if store.Len() != goroutines {
		t.Errorf("Len = %d, want %d", store.Len(), goroutines)
	}
}
