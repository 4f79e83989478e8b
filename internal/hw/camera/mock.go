package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
	"time"

	"camstation/internal/debug"
)

// MockProvider produces synthetic devices for development on a machine
// without camera hardware. Frames are generated gradients, tinted by
// lens facing so switching is visible in the preview.
type MockProvider struct {
	width    int
	height   int
	interval time.Duration
}

// NewMockProvider creates a provider emitting frames of the given size
// at the given interval.
func NewMockProvider(width, height int, interval time.Duration) *MockProvider {
	return &MockProvider{width: width, height: height, interval: interval}
}

// Available always reports true; the mock needs no hardware.
func (p *MockProvider) Available() bool { return true }

// Acquire opens a synthetic device for the requested facing.
func (p *MockProvider) Acquire(facing Facing) (Device, error) {
	debug.Verbose("Mock camera: acquiring %s device", facing)
	d := &mockDevice{
		facing:   facing,
		width:    p.width,
		height:   p.height,
		interval: p.interval,
		frames:   make(chan Frame, 1),
		done:     make(chan struct{}),
	}
	go d.pump()
	return d, nil
}

type mockDevice struct {
	facing   Facing
	width    int
	height   int
	interval time.Duration

	mu      sync.Mutex
	zoom    float64
	rec     *os.File // M-JPEG sink while recording
	recPath string
	closed  bool

	seq    uint64
	frames chan Frame
	done   chan struct{}
}

// pump generates preview frames until the device is closed.
// Slow consumers miss frames (non-blocking, buffered).
func (d *mockDevice) pump() {
	defer close(d.frames)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			data := d.render()
			d.seq++
			debug.Frame(d.seq, len(data))

			d.mu.Lock()
			if d.rec != nil {
				d.rec.Write(data)
			}
			d.mu.Unlock()

			select {
			case d.frames <- Frame{Data: data, Seq: d.seq, Taken: time.Now()}:
			default:
				// consumer is behind, drop
			}
		}
	}
}

// render produces one JPEG frame. Zoom narrows the sampled window
// around the center, mimicking a digital zoom.
func (d *mockDevice) render() []byte {
	d.mu.Lock()
	zoom := d.zoom
	d.mu.Unlock()

	scale := 1.0 - 0.75*zoom
	cx := float64(d.width) / 2
	cy := float64(d.height) / 2

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			sx := cx + (float64(x)-cx)*scale
			sy := cy + (float64(y)-cy)*scale
			r := uint8(int(sx) * 255 / d.width)
			g := uint8(int(sy) * 255 / d.height)
			b := uint8(128)
			if d.facing == FacingFront {
				r, b = b, r
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}

// TakePhoto writes the current synthetic frame to a temporary .jpg file.
func (d *mockDevice) TakePhoto(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data := d.render()
	f, err := os.CreateTemp("", "camstation-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create temp photo: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp photo: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	debug.Verbose("Mock camera: photo written to %s", f.Name())
	return f.Name(), nil
}

// StartRecording begins appending preview frames to a temporary
// M-JPEG stream file.
func (d *mockDevice) StartRecording(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		return ErrAlreadyRecording
	}
	f, err := os.CreateTemp("", "camstation-*.mjpeg")
	if err != nil {
		return fmt.Errorf("create temp recording: %w", err)
	}
	d.rec = f
	d.recPath = f.Name()
	debug.Live("Mock camera: recording to %s", d.recPath)
	return nil
}

// StopRecording closes the stream file and returns its path.
func (d *mockDevice) StopRecording() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec == nil {
		return "", ErrNotRecording
	}
	path := d.recPath
	err := d.rec.Close()
	d.rec = nil
	d.recPath = ""
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close recording: %w", err)
	}
	return path, nil
}

// SetZoom stores the zoom level used by the renderer.
func (d *mockDevice) SetZoom(zoom float64) error {
	if zoom < 0 || zoom > 1 {
		return fmt.Errorf("zoom must be in [0,1], got %g", zoom)
	}
	d.mu.Lock()
	d.zoom = zoom
	d.mu.Unlock()
	return nil
}

// Frames returns the preview stream.
func (d *mockDevice) Frames() <-chan Frame { return d.frames }

// Close stops the frame pump and discards any unfinished recording.
func (d *mockDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.rec != nil {
		d.rec.Close()
		os.Remove(d.recPath)
		d.rec = nil
	}
	d.mu.Unlock()
	close(d.done)
	return nil
}
