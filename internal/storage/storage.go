package storage

import (
	"context"
	"io"
)

// Archiver keeps a copy of synthesized audio.
type Archiver interface {
	Archive(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}
