package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Facing identifies which physical lens is active.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

// String returns "back" or "front".
func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// Flip returns the opposite facing.
func (f Facing) Flip() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// ParseFacing converts "front"/"back" into a Facing.
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "front":
		return FacingFront, nil
	case "back":
		return FacingBack, nil
	default:
		return FacingBack, fmt.Errorf("unknown lens facing: %q", s)
	}
}

// Frame is one live-preview frame, JPEG encoded.
type Frame struct {
	Data  []byte
	Seq   uint64
	Taken time.Time
}

var (
	// ErrNotSupported is returned by backends that cannot perform
	// the requested operation (e.g. video on a shutter trigger).
	ErrNotSupported = errors.New("camera: operation not supported")
	// ErrAlreadyRecording is returned when StartRecording is called twice.
	ErrAlreadyRecording = errors.New("camera: already recording")
	// ErrNotRecording is returned when StopRecording is called while idle.
	ErrNotRecording = errors.New("camera: not recording")
	// ErrUnavailable is returned when no camera device can be opened.
	ErrUnavailable = errors.New("camera: device unavailable")
)

// Device is one camera already bound to a lens facing. Captured files
// are written to a temporary location; moving them into the media
// library is the caller's concern.
type Device interface {
	// TakePhoto captures a still image and returns the produced file path.
	TakePhoto(ctx context.Context) (string, error)
	// StartRecording begins a video recording.
	StartRecording(ctx context.Context) error
	// StopRecording ends the recording and returns the produced file path.
	StopRecording() (string, error)
	// SetZoom applies a zoom level in [0, 1]. Backends without zoom
	// return ErrNotSupported.
	SetZoom(zoom float64) error
	// Frames exposes the live preview stream. Nil when the backend
	// has no preview.
	Frames() <-chan Frame
	// Close releases the device.
	Close() error
}

// Provider acquires devices per lens facing. Switching lenses means
// closing the current device and acquiring a new one.
type Provider interface {
	Acquire(facing Facing) (Device, error)
	// Available reports whether the underlying hardware can be used
	// at all. False maps to the "device unavailable" screen.
	Available() bool
}
