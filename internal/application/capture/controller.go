package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocalsense/vocalsense/internal/application"
	domain "github.com/vocalsense/vocalsense/internal/domain/capture"
)

// EncodeFunc frames raw PCM into a playable container (WAV in practice).
// Injected so the application layer stays free of codec details.
type EncodeFunc func(pcm []byte, sampleRate, channels int) []byte

// Config for one controller instance.
type Config struct {
	MaxUploadBytes     int64
	AllowM4A           bool
	RecommendedSeconds int // advisory floor for recordings, not a validation rule
	SampleRate         int
	Channels           int
}

// Controller produces exactly one valid AudioPayload per session, from a
// file upload or a live recording.
// Controller is designed to be used concurrently and is thread-safe.
type Controller struct {
	device    domain.Device
	encode    EncodeFunc
	newTicker application.TickerFactory
	cfg       Config

	mu        sync.Mutex
	payload   *domain.AudioPayload
	recording bool
	elapsed   int
	pcm       []byte
	stream    domain.Stream
	ticker    application.Ticker
	stopTick  chan struct{}
	wg        *sync.WaitGroup
}

func NewController(dev domain.Device, enc EncodeFunc, tf application.TickerFactory, cfg Config) *Controller {
	if tf == nil {
		tf = application.SystemTicker
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = domain.DefaultMaxUploadBytes
	}
	if cfg.RecommendedSeconds <= 0 {
		cfg.RecommendedSeconds = 30
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Controller{device: dev, encode: enc, newTicker: tf, cfg: cfg}
}

// AcceptFile validates an uploaded candidate and holds the resulting payload.
// Validation order: format first, then size.
func (c *Controller) AcceptFile(name string, size int64, contentType string, data []byte) (domain.AudioPayload, error) {
	p, err := domain.NewUploadPayload(name, size, contentType, data, c.cfg.MaxUploadBytes, c.cfg.AllowM4A)
	if err != nil {
		return domain.AudioPayload{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = &p
	return p, nil
}

// StartRecording acquires the microphone and starts the one-second elapsed
// counter. On failure the capture state is unchanged and no payload exists.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return domain.ErrAlreadyRecording
	}
	if c.device == nil {
		return fmt.Errorf("%w: no input device configured", domain.ErrDeviceUnavailable)
	}
	stream, err := c.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	c.recording = true
	c.elapsed = 0
	c.pcm = nil
	c.stream = stream
	c.stopTick = make(chan struct{})
	c.ticker = c.newTicker(time.Second)
	wg := &sync.WaitGroup{}
	c.wg = wg
	wg.Add(2)
	go c.tickLoop(c.ticker, c.stopTick, wg)
	go c.readLoop(stream, wg)
	return nil
}

// tickLoop increments the authoritative elapsed-seconds counter once per tick.
func (c *Controller) tickLoop(t application.Ticker, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-t.C():
			c.mu.Lock()
			if c.recording {
				c.elapsed++
			}
			c.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// readLoop buffers PCM from the device until the stream is closed.
func (c *Controller) readLoop(stream domain.Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.pcm = append(c.pcm, chunk[:n]...)
			c.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// StopRecording finalizes the capture into a single in-memory WAV payload,
// stops the timer and releases the microphone.
func (c *Controller) StopRecording() (domain.AudioPayload, error) {
	stream, ticker, stop, wg, err := c.teardown()
	if err != nil {
		return domain.AudioPayload{}, err
	}
	close(stop)
	ticker.Stop()
	_ = stream.Close() // release device; also unblocks the reader
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	data := c.pcm
	if c.encode != nil {
		data = c.encode(c.pcm, c.cfg.SampleRate, c.cfg.Channels)
	}
	name := fmt.Sprintf("recording-%s.wav", shortID())
	p := domain.AudioPayload{
		Source:          domain.SourceRecording,
		MIMEType:        "audio/wav",
		SizeBytes:       int64(len(data)),
		DurationSeconds: c.elapsed,
		DisplayName:     name,
		Data:            data,
	}
	c.payload = &p
	c.pcm = nil
	return p, nil
}

// teardown flips the recording flag and detaches the live resources under
// the lock, so StopRecording and Reset can wait on the goroutines without
// holding it.
func (c *Controller) teardown() (domain.Stream, application.Ticker, chan struct{}, *sync.WaitGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return nil, nil, nil, nil, domain.ErrNotRecording
	}
	c.recording = false
	stream, ticker, stop, wg := c.stream, c.ticker, c.stopTick, c.wg
	c.stream, c.ticker, c.stopTick, c.wg = nil, nil, nil, nil
	return stream, ticker, stop, wg, nil
}

// Reset discards any in-progress or completed capture and returns the
// controller to its initial state, releasing the device if held.
func (c *Controller) Reset() {
	if stream, ticker, stop, wg, err := c.teardown(); err == nil {
		close(stop)
		ticker.Stop()
		_ = stream.Close()
		wg.Wait()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = nil
	c.pcm = nil
	c.elapsed = 0
}

// Payload returns the held payload, if any.
func (c *Controller) Payload() *domain.AudioPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil {
		return nil
	}
	p := *c.payload
	return &p
}

// Elapsed returns the current recording counter in whole seconds.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Recording reports whether a recording is in progress.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Advisory returns a non-blocking reliability warning when a finished
// recording is shorter than the recommended duration. Never an error:
// submission stays permitted.
func (c *Controller) Advisory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil || c.payload.Source != domain.SourceRecording {
		return ""
	}
	if c.payload.DurationSeconds >= c.cfg.RecommendedSeconds {
		return ""
	}
	return fmt.Sprintf("recording is shorter than the recommended %d seconds; the result may be less reliable", c.cfg.RecommendedSeconds)
}

func shortID() string {
	return strings.Split(uuid.New().String(), "-")[0]
}
