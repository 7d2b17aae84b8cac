package capture

import (
	"errors"
	"path/filepath"
	"strings"
)

// Source enum
type Source string

const (
	SourceUpload    Source = "upload"
	SourceRecording Source = "recording"
)

// DurationUnknown marks payloads whose length was never measured (uploads).
const DurationUnknown = -1

// DefaultMaxUploadBytes is the hard ceiling for uploaded files (10 MiB).
const DefaultMaxUploadBytes = 10 * 1024 * 1024

// Validation errors. Local and recoverable, they never escalate the session.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	ErrNoPayload         = errors.New("no audio payload captured")
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
)

// AudioPayload is the normalized result of one capture attempt.
// A payload is immutable once built; a new capture produces a new value.
type AudioPayload struct {
	Source          Source `json:"source"`
	MIMEType        string `json:"mime_type"`
	SizeBytes       int64  `json:"size_bytes"`
	DurationSeconds int    `json:"duration_seconds"` // DurationUnknown for uploads
	DisplayName     string `json:"display_name"`
	Data            []byte `json:"-"`
}

// allowedMIME maps accepted content types. The "; codecs=opus" variant that
// WhatsApp voice notes declare is handled by stripping parameters first.
var allowedMIME = map[string]bool{
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/ogg":   true,
}

var m4aMIME = map[string]bool{
	"audio/mp4":   true,
	"audio/x-m4a": true,
	"audio/m4a":   true,
}

var allowedExt = map[string]bool{
	".wav": true,
	".mp3": true,
	".ogg": true,
}

// FormatAllowed reports whether the declared content type or the filename
// extension is on the allow-list. Either is enough: browsers often leave the
// content type empty or generic for .ogg voice notes.
func FormatAllowed(name, contentType string, allowM4A bool) bool {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if allowedMIME[mime] {
		return true
	}
	if allowM4A && m4aMIME[mime] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if allowedExt[ext] {
		return true
	}
	if allowM4A && ext == ".m4a" {
		return true
	}
	return false
}

// NewUploadPayload validates a candidate file and builds the payload.
// Order matters: format is checked before size.
func NewUploadPayload(name string, size int64, contentType string, data []byte, maxBytes int64, allowM4A bool) (AudioPayload, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if !FormatAllowed(name, contentType, allowM4A) {
		return AudioPayload{}, ErrUnsupportedFormat
	}
	if size > maxBytes {
		return AudioPayload{}, ErrFileTooLarge
	}
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if mime == "" {
		mime = mimeFromExt(name)
	}
	return AudioPayload{
		Source:          SourceUpload,
		MIMEType:        mime,
		SizeBytes:       size,
		DurationSeconds: DurationUnknown,
		DisplayName:     name,
		Data:            data,
	}, nil
}

func mimeFromExt(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
