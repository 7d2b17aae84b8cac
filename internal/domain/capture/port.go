package capture

import (
	"context"
	"io"
)

// Device port (interface for microphone access). Open acquires exclusive
// access to the input device; the returned stream yields raw PCM bytes and
// MUST be closed on every exit path so the device is released.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open microphone stream. Read blocks until PCM data is
// available; Close releases the device.
type Stream interface {
	io.ReadCloser
}
