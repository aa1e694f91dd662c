package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemProvider stores blobs under a root directory. Paths are
// resolved relative to the root and may not escape it.
type FilesystemProvider struct {
	root string
}

func NewFilesystem(root string) (*FilesystemProvider, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemProvider{root: root}, nil
}

func (p *FilesystemProvider) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	full := filepath.Join(p.root, cleaned)
	if !strings.HasPrefix(full, filepath.Clean(p.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid storage path: %s", path)
	}
	return full, nil
}

func (p *FilesystemProvider) Save(ctx context.Context, path string, r io.Reader) (int64, error) {
	full, err := p.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *FilesystemProvider) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (p *FilesystemProvider) Delete(ctx context.Context, path string) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
