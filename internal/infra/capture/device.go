package capture

import (
	"context"
	"fmt"
	"os"

	domain "github.com/vocalsense/vocalsense/internal/domain/capture"
)

// SourceDevice opens an OS audio source (a capture FIFO or character
// device, e.g. the pipe an audio daemon writes PCM into). Open fails when
// the path is absent or not readable, which the controller reports as the
// device being unavailable.
type SourceDevice struct {
	Path string
}

func (d SourceDevice) Open(ctx context.Context) (domain.Stream, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("no capture source configured")
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("opening capture source %s: %w", d.Path, err)
	}
	return f, nil
}

// FuncDevice adapts a plain open function to the Device port.
type FuncDevice func(ctx context.Context) (domain.Stream, error)

func (f FuncDevice) Open(ctx context.Context) (domain.Stream, error) { return f(ctx) }

// NoDevice always fails with the configured reason; used on deployments
// without microphone capture so upload stays the only path.
type NoDevice struct{ Reason string }

func (d NoDevice) Open(ctx context.Context) (domain.Stream, error) {
	reason := d.Reason
	if reason == "" {
		reason = "capture not supported on this deployment"
	}
	return nil, fmt.Errorf("%s", reason)
}
