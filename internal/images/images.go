// Package images accepts uploaded image payloads and keeps them in a
// Store under opaque references.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/vault/pkg/types"
)

// DefaultMaxSize is the upload limit used when none is configured.
const DefaultMaxSize int64 = 10 * 1000 * 1000

// ErrNoSuchImage is returned by Store.Open for an unknown reference.
var ErrNoSuchImage = errors.New("image not found")

// Store keeps image payloads. References are produced by Accept and are
// single path elements.
type Store interface {
	Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Release deletes the payload. Releasing an unknown reference is not
	// an error.
	Release(ctx context.Context, ref string) error
}

var extByType = map[string]string{
	"image/png":    ".png",
	"image/jpeg":   ".jpg",
	"image/gif":    ".gif",
	"image/webp":   ".webp",
	"image/bmp":    ".bmp",
	"image/x-icon": ".ico",
}

// Accept validates an upload and stores it, returning the new reference.
// The payload must sniff as image/* and be at most maxSize bytes; a
// non-positive maxSize selects DefaultMaxSize.
func Accept(ctx context.Context, store Store, filename string, r io.Reader, maxSize int64) (string, error) {
	if r == nil {
		return "", types.ErrMissingImage
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return "", types.ErrMissingImage
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: limit is %s", types.ErrImageTooLarge, humanize.Bytes(uint64(maxSize)))
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: detected %s", types.ErrNotImage, contentType)
	}

	ref := uuid.NewString() + extension(filename, contentType)
	if err := store.Put(ctx, ref, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return ref, nil
}

// extension keeps a short alphanumeric extension from the client filename,
// falling back to one derived from the sniffed type.
func extension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) >= 2 && len(ext) <= 6 && isAlnum(ext[1:]) {
		return ext
	}
	return extByType[contentType]
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// ValidateRef rejects references that are not a single plain path element.
func ValidateRef(ref string) error {
	if ref == "" || strings.HasPrefix(ref, ".") || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return fmt.Errorf("%w: %q", types.ErrInvalidImageRef, ref)
	}
	return nil
}
