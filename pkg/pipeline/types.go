package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Status represents the current state of a playback device
type Status int

const (
	StatusIdle Status = iota
	StatusBuffering
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBuffering:
		return "buffering"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Encoding tags the container/codec of an acquired byte stream.
type Encoding int

const (
	EncodingArbitrary Encoding = iota
	EncodingRaw                // s16le, 48kHz, stereo
	EncodingWebMOpus
	EncodingOggOpus
)

func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingWebMOpus:
		return "webm/opus"
	case EncodingOggOpus:
		return "ogg/opus"
	default:
		return "arbitrary"
	}
}

// Stream is a readable audio byte stream produced by an acquisition strategy.
// Closing it releases every subprocess involved in producing it.
type Stream struct {
	io.ReadCloser
	Encoding Encoding
	Strategy string
	Source   string // URL the strategy opened
}

// ErrorCategory represents the category of pipeline errors
type ErrorCategory int

const (
	CategoryNetwork ErrorCategory = iota
	CategoryStream
	CategoryProcess
	CategoryVoice
	CategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryStream:
		return "stream"
	case CategoryProcess:
		return "process"
	case CategoryVoice:
		return "voice"
	default:
		return "unknown"
	}
}

var (
	ErrNoVoiceConnection = errors.New("no voice connection attached")
	ErrVoiceNotReady     = errors.New("voice connection not ready")
	ErrReadTimeout       = errors.New("timeout reading PCM data")
	ErrDeviceBusy        = errors.New("device is already playing")
	ErrNoResource        = errors.New("no active resource")
)

// DeviceError is an unexpected fault raised while a device was playing.
type DeviceError struct {
	Err       error
	Category  ErrorCategory
	Timestamp time.Time
}

func (de *DeviceError) Error() string {
	return fmt.Sprintf("device %s error: %v", de.Category, de.Err)
}

func (de *DeviceError) Unwrap() error {
	return de.Err
}

// NewDeviceError creates a new classified device error
func NewDeviceError(err error, category ErrorCategory) *DeviceError {
	return &DeviceError{
		Err:       err,
		Category:  category,
		Timestamp: time.Now(),
	}
}

// IdleEvent is emitted when a resource stops playing, naturally or not.
type IdleEvent struct {
	ResourceID uint64
	Err        error // nil for natural end or explicit stop
	Stopped    bool  // true when ended by Stop
}
