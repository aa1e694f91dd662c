// Package storage abstracts blob storage for uploaded project files.
package storage

import (
	"context"
	"io"
)

type Provider interface {
	Save(ctx context.Context, path string, r io.Reader) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}
