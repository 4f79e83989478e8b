package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"camstation/internal/debug"
)

// WebcamProvider opens local V4L2 devices through OpenCV. Each lens
// facing maps to a configured device index.
type WebcamProvider struct {
	frontID  int
	backID   int
	width    int
	height   int
	interval time.Duration

	mu        sync.Mutex
	available bool
	probed    bool
}

// NewWebcamProvider creates a provider for the given device indices
// and preview geometry.
func NewWebcamProvider(frontID, backID, width, height int, interval time.Duration) *WebcamProvider {
	return &WebcamProvider{
		frontID:  frontID,
		backID:   backID,
		width:    width,
		height:   height,
		interval: interval,
	}
}

// Available probes whether at least one configured device opens.
// A positive result is cached; a negative one is re-probed so the
// permission screen clears once the device shows up.
func (p *WebcamProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed && p.available {
		return true
	}
	p.probed = true
	p.available = probeDevice(p.backID) || probeDevice(p.frontID)
	return p.available
}

func probeDevice(id int) bool {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return false
	}
	defer vc.Close()
	return vc.IsOpened()
}

// Acquire opens the device mapped to the requested facing.
func (p *WebcamProvider) Acquire(facing Facing) (Device, error) {
	id := p.backID
	if facing == FacingFront {
		id = p.frontID
	}
	debug.Verbose("Webcam: opening device %d for %s lens", id, facing)

	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrUnavailable, id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrUnavailable, id)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(p.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(p.height))

	d := &webcamDevice{
		vc:       vc,
		width:    p.width,
		height:   p.height,
		interval: p.interval,
		frames:   make(chan Frame, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.pump()
	return d, nil
}

type webcamDevice struct {
	vc       *gocv.VideoCapture
	width    int
	height   int
	interval time.Duration

	mu      sync.Mutex
	zoom    float64
	last    []byte // most recent encoded preview frame
	writer  *gocv.VideoWriter
	recPath string
	closed  bool

	seq     uint64
	frames  chan Frame
	done    chan struct{}
	stopped chan struct{}
}

// pump reads frames from the capture device until Close. It is the
// only goroutine touching the VideoCapture after Acquire.
func (d *webcamDevice) pump() {
	defer close(d.stopped)
	defer close(d.frames)

	mat := gocv.NewMat()
	defer mat.Close()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
		}

		if ok := d.vc.Read(&mat); !ok || mat.Empty() {
			continue
		}

		d.mu.Lock()
		zoom := d.zoom
		d.mu.Unlock()

		view := mat
		zoomed := zoom > 0
		if zoomed {
			view = d.zoomView(mat, zoom)
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, view)
		var data []byte
		if err == nil {
			raw := buf.GetBytes()
			data = make([]byte, len(raw))
			copy(data, raw)
			buf.Close()
		}

		d.mu.Lock()
		if d.writer != nil {
			d.writer.Write(view)
		}
		if data != nil {
			d.last = data
		}
		d.mu.Unlock()

		if zoomed {
			view.Close()
		}
		if data == nil {
			continue
		}

		d.seq++
		debug.Frame(d.seq, len(data))
		select {
		case d.frames <- Frame{Data: data, Seq: d.seq, Taken: time.Now()}:
		default:
			// consumer is behind, drop
		}
	}
}

// zoomView crops the center of src and scales it back to full size.
// The returned Mat is owned by the caller.
func (d *webcamDevice) zoomView(src gocv.Mat, zoom float64) gocv.Mat {
	scale := 1.0 - 0.75*zoom
	w := src.Cols()
	h := src.Rows()
	cw := int(float64(w) * scale)
	ch := int(float64(h) * scale)
	if cw < 2 {
		cw = 2
	}
	if ch < 2 {
		ch = 2
	}
	rect := image.Rect((w-cw)/2, (h-ch)/2, (w-cw)/2+cw, (h-ch)/2+ch)

	region := src.Region(rect)
	defer region.Close()

	dst := gocv.NewMat()
	gocv.Resize(region, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	return dst
}

// TakePhoto stores the most recent preview frame as a temporary .jpg.
// Waits briefly for the first frame after acquisition.
func (d *webcamDevice) TakePhoto(ctx context.Context) (string, error) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		data := d.last
		d.mu.Unlock()
		if data != nil {
			path := tempMediaPath(".jpg")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return "", fmt.Errorf("write temp photo: %w", err)
			}
			return path, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: no frame received", ErrUnavailable)
		}
		time.Sleep(d.interval)
	}
}

// StartRecording opens an MJPG video writer fed by the frame pump.
func (d *webcamDevice) StartRecording(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer != nil {
		return ErrAlreadyRecording
	}
	path := tempMediaPath(".avi")
	fps := float64(time.Second) / float64(d.interval)
	w, err := gocv.VideoWriterFile(path, "MJPG", fps, d.width, d.height, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	if !w.IsOpened() {
		w.Close()
		os.Remove(path)
		return fmt.Errorf("video writer did not open for %s", path)
	}
	d.writer = w
	d.recPath = path
	debug.Live("Webcam: recording to %s", path)
	return nil
}

// StopRecording closes the writer and returns the recorded file.
func (d *webcamDevice) StopRecording() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer == nil {
		return "", ErrNotRecording
	}
	path := d.recPath
	err := d.writer.Close()
	d.writer = nil
	d.recPath = ""
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close video writer: %w", err)
	}
	return path, nil
}

// SetZoom stores the digital zoom level applied by the frame pump.
func (d *webcamDevice) SetZoom(zoom float64) error {
	if zoom < 0 || zoom > 1 {
		return fmt.Errorf("zoom must be in [0,1], got %g", zoom)
	}
	d.mu.Lock()
	d.zoom = zoom
	d.mu.Unlock()
	return nil
}

// Frames returns the preview stream.
func (d *webcamDevice) Frames() <-chan Frame { return d.frames }

// Close stops the pump, then releases the capture device.
func (d *webcamDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	<-d.stopped

	d.mu.Lock()
	if d.writer != nil {
		d.writer.Close()
		os.Remove(d.recPath)
		d.writer = nil
	}
	d.mu.Unlock()

	return d.vc.Close()
}

// tempMediaPath returns a unique path in the system temp directory.
func tempMediaPath(ext string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("camstation-%d%s", time.Now().UnixNano(), ext))
}
