// Package storage keeps uploaded files on local disk or on OSS (through its
// S3-compatible API) and records which backend holds each object.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("storage: object not found")

// Backend is one place objects can live.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
