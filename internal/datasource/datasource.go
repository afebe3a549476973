// Package datasource defines where pipeline input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens a fresh byte stream. The caller owns the returned reader and
// must close it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
