// Package blob provides the AudioHandle abstraction the pipeline core
// depends on: an opaque reference to a stored audio recording. The core
// never talks to S3 (or any blob backend) directly.
package blob

import (
	"context"
	"io"
)

// AudioHandle is an opaque reference to one recording's stored bytes.
type AudioHandle interface {
	// Key returns the storage key identifying this recording.
	Key() string
	// Open returns a reader over the raw audio bytes. Callers must Close it.
	Open(ctx context.Context) (io.ReadCloser, error)
}
