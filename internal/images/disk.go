package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps images as files in one directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the directory holding the images.
func (s *DiskStore) Dir() string { return s.dir }

// Put writes the payload to a temp file and renames it into place.
func (s *DiskStore) Put(_ context.Context, ref string, r io.Reader, _ int64, _ string) (err error) {
	if err := ValidateRef(ref); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing image: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing image: %w", err)
	}
	if err = os.Rename(tmpName, filepath.Join(s.dir, ref)); err != nil {
		return fmt.Errorf("renaming image: %w", err)
	}
	return nil
}

// Open returns the stored payload.
func (s *DiskStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSuchImage
	}
	return f, err
}

// Release removes the file.
func (s *DiskStore) Release(_ context.Context, ref string) error {
	if err := ValidateRef(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing image %s: %w", ref, err)
	}
	return nil
}
