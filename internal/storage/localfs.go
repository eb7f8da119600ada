package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
)

// LocalFS stores objects under a root directory.
type LocalFS struct {
	root string
}

func NewLocalFS(root string) (*LocalFS, error) {
	if root == "" {
		return nil, errors.New("storage: local root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure root: %w", err)
	}
	return &LocalFS{root: root}, nil
}

func (l *LocalFS) Provider() string { return "localfs" }

// PutObject writes to a temp file and renames it into place, so readers
// never observe a partially written artifact.
func (l *LocalFS) PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return PutObjectOutput{}, err
	}
	key, err := sanitizeKey(in.ObjectKey)
	if err != nil {
		return PutObjectOutput{}, err
	}

	dst := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return PutObjectOutput{}, fmt.Errorf("storage: ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return PutObjectOutput{}, fmt.Errorf("storage: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return PutObjectOutput{}, fmt.Errorf("storage: write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return PutObjectOutput{}, fmt.Errorf("storage: rename file: %w", err)
	}

	return PutObjectOutput{ObjectKey: key, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, string, int64, error) {
	key, err := sanitizeKey(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	p := filepath.Join(l.root, filepath.FromSlash(key))
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", 0, ErrObjectNotFound
		}
		return nil, "", 0, err
	}

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	contentType := mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	key, err := sanitizeKey(objectKey)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}
