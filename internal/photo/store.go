package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound   = errors.New("photo not found")
	ErrInvalidKey = errors.New("invalid photo key")
)

type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Store is the object store product photos live in.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
}

// DiskStore keeps objects as files under Root. Keys use "/" separators.
type DiskStore struct {
	Root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("photo directory could not be created: %w", err)
	}
	return &DiskStore{Root: root}, nil
}

// resolve maps key to a file path, refusing anything that would leave Root.
// Dot segments are refused too, which also hides in-flight upload files.
func (s *DiskStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean != key {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(clean, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", ErrInvalidKey
		}
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

func (s *DiskStore) Put(ctx context.Context, key, contentType string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	target, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("photo directory could not be created: %w", err)
	}

	// Write next to the target and rename, so readers never see half a file.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("photo file could not be created: %w", err)
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return Object{}, fmt.Errorf("photo could not be written: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return Object{}, fmt.Errorf("photo could not be stored: %w", err)
	}

	return Object{Key: key, ContentType: contentType, Size: size}, nil
}

func (s *DiskStore) Open(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	target, err := s.resolve(key)
	if err != nil {
		return nil, Object{}, err
	}

	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, fmt.Errorf("photo could not be opened: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("photo could not be read: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, Object{}, ErrNotFound
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, Object{Key: key, ContentType: contentType, Size: info.Size()}, nil
}

// Delete removes key. A missing key is not an error.
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("photo could not be deleted: %w", err)
	}
	return nil
}
