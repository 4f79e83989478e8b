package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"camstation/internal/debug"
	"camstation/internal/hw/camera"
	"camstation/internal/perm"
	"camstation/internal/storage"
)

// Mode is the derived screen state.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeRecording Mode = "recording"
	ModeReviewing Mode = "reviewing"
)

var (
	// ErrBusy is returned while another capture intent is in flight.
	// One busy flag serializes photo capture, recording start and
	// lens switching against each other.
	ErrBusy = errors.New("session: another capture is in progress")
	// ErrAlreadyRecording is returned when a start lands while recording.
	ErrAlreadyRecording = errors.New("session: recording already in progress")
	// ErrNotRecording is returned when a stop lands while idle.
	ErrNotRecording = errors.New("session: no recording in progress")
	// ErrPermission is returned while camera/storage access is missing.
	ErrPermission = errors.New("session: camera permission not granted")
)

// State is a read-only snapshot of the session.
type State struct {
	Facing     camera.Facing  `json:"-"`
	Lens       string         `json:"lens"`
	Zoom       float64        `json:"zoom"`
	Recording  bool           `json:"recording"`
	Busy       bool           `json:"busy"`
	Mode       Mode           `json:"mode"`
	Captured   *storage.Asset `json:"captured,omitempty"`
	Permission bool           `json:"permission"`
}

// Controller owns the session state and dispatches user intents.
// All state lives behind one mutex; the screen state machine is
// Live -> Reviewing -> Live (capture success / clear) and
// Live -> Recording -> Live|Reviewing (recording flag), recording
// reachable only from Live and never nested.
type Controller struct {
	provider camera.Provider
	lib      *storage.Library
	perms    perm.Checker

	mu        sync.Mutex
	device    camera.Device
	facing    camera.Facing
	zoom      float64
	busy      bool
	recording bool
	captured  *storage.Asset

	frames chan camera.Frame
}

// NewController wires the controller to its collaborators. No device
// is acquired until Start.
func NewController(provider camera.Provider, lib *storage.Library, perms perm.Checker) *Controller {
	return &Controller{
		provider: provider,
		lib:      lib,
		perms:    perms,
		facing:   camera.FacingBack,
		frames:   make(chan camera.Frame, 1),
	}
}

// Start acquires the initial device. Without permission the session
// stays on the permission screen and no device is mounted.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.perms.Granted() {
		debug.Info("Permission not granted, camera not mounted")
		return nil
	}
	return c.acquireLocked(c.facing)
}

// acquireLocked swaps the active device for one bound to the given
// facing. The session state is untouched when acquisition fails.
func (c *Controller) acquireLocked(facing camera.Facing) error {
	dev, err := c.provider.Acquire(facing)
	if err != nil {
		return fmt.Errorf("acquire %s camera: %w", facing, err)
	}
	if c.device != nil {
		c.device.Close()
	}
	c.device = dev
	c.facing = facing
	debug.Lens(facing.String())

	if err := dev.SetZoom(c.zoom); err != nil && !errors.Is(err, camera.ErrNotSupported) {
		debug.Verbose("apply zoom after acquire: %v", err)
	}

	if src := dev.Frames(); src != nil {
		go func() {
			for f := range src {
				select {
				case c.frames <- f:
				default:
				}
			}
		}()
	}
	return nil
}

// ensureDeviceLocked lazily acquires a device for the current facing.
func (c *Controller) ensureDeviceLocked() error {
	if c.device != nil {
		return nil
	}
	return c.acquireLocked(c.facing)
}

// ToggleLens switches between the front and back lens, re-acquiring
// the camera device. Rejected while a capture or recording is active.
func (c *Controller) ToggleLens() (camera.Facing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.perms.Granted() {
		return c.facing, ErrPermission
	}
	if c.recording {
		return c.facing, ErrAlreadyRecording
	}
	if c.busy {
		return c.facing, ErrBusy
	}
	debug.Intent("toggle lens")
	if err := c.acquireLocked(c.facing.Flip()); err != nil {
		return c.facing, err
	}
	return c.facing, nil
}

// SetLens selects a specific facing. A no-op when the lens is already
// mounted.
func (c *Controller) SetLens(facing camera.Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.perms.Granted() {
		return ErrPermission
	}
	if c.recording {
		return ErrAlreadyRecording
	}
	if c.busy {
		return ErrBusy
	}
	if facing == c.facing && c.device != nil {
		return nil
	}
	return c.acquireLocked(facing)
}

// AdjustZoom applies a delta and clamps the result to [0, 1]. The new
// level is pushed to the live device; backends without zoom ignore it.
func (c *Controller) AdjustZoom(delta float64) (float64, error) {
	c.mu.Lock()
	z := clampZoom(c.zoom + delta)
	c.zoom = z
	dev := c.device
	c.mu.Unlock()

	debug.Verbose("Zoom: %.2f", z)
	if dev != nil {
		if err := dev.SetZoom(z); err != nil && !errors.Is(err, camera.ErrNotSupported) {
			return z, fmt.Errorf("apply zoom: %w", err)
		}
	}
	return z, nil
}

// CapturePhoto takes a still, moves it into the library and enters
// review mode. Any failure leaves the session state unchanged: no
// partial captured reference is ever set.
func (c *Controller) CapturePhoto(ctx context.Context) (storage.Asset, error) {
	c.mu.Lock()
	if !c.perms.Granted() {
		c.mu.Unlock()
		return storage.Asset{}, ErrPermission
	}
	if c.recording || c.busy {
		c.mu.Unlock()
		return storage.Asset{}, ErrBusy
	}
	if err := c.ensureDeviceLocked(); err != nil {
		c.mu.Unlock()
		return storage.Asset{}, err
	}
	c.busy = true
	dev := c.device
	c.mu.Unlock()

	debug.Intent("capture photo")
	src, err := dev.TakePhoto(ctx)
	if err != nil {
		c.setBusy(false)
		return storage.Asset{}, fmt.Errorf("take photo: %w", err)
	}

	asset, err := c.lib.Import(src, storage.KindPhoto, time.Now())
	if err != nil {
		os.Remove(src)
		c.setBusy(false)
		return storage.Asset{}, err
	}

	c.mu.Lock()
	c.captured = &asset
	c.busy = false
	c.mu.Unlock()

	debug.Shot("photo", asset.Path)
	return asset, nil
}

// StartRecording begins a video recording. The recording flag is set
// before the device call so a second press cannot double-invoke the
// underlying start; it is rolled back on failure.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if !c.perms.Granted() {
		c.mu.Unlock()
		return ErrPermission
	}
	if c.recording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.ensureDeviceLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.recording = true
	dev := c.device
	c.mu.Unlock()

	debug.Intent("start recording")
	if err := dev.StartRecording(ctx); err != nil {
		c.mu.Lock()
		c.recording = false
		c.mu.Unlock()
		return fmt.Errorf("start recording: %w", err)
	}
	debug.Live("Recording started")
	return nil
}

// StopRecording ends the recording, imports the produced video and
// enters review mode. The recording flag clears on success and
// failure alike.
func (c *Controller) StopRecording() (storage.Asset, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return storage.Asset{}, ErrNotRecording
	}
	dev := c.device
	c.mu.Unlock()

	debug.Intent("stop recording")
	src, err := dev.StopRecording()

	c.mu.Lock()
	c.recording = false
	c.mu.Unlock()

	if err != nil {
		return storage.Asset{}, fmt.Errorf("stop recording: %w", err)
	}

	asset, err := c.lib.Import(src, storage.KindVideo, time.Now())
	if err != nil {
		os.Remove(src)
		return storage.Asset{}, err
	}

	c.mu.Lock()
	c.captured = &asset
	c.mu.Unlock()

	debug.Shot("video", asset.Path)
	return asset, nil
}

// ClearCapture discards the captured asset reference and returns to
// the live preview. The file itself stays in the library.
func (c *Controller) ClearCapture() {
	c.mu.Lock()
	c.captured = nil
	c.mu.Unlock()
	debug.Intent("clear capture")
}

// RequestPermission fires the permission request and, once granted,
// mounts the camera. Returns the current grant state.
func (c *Controller) RequestPermission() bool {
	debug.Intent("request permission")
	c.perms.Request()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.perms.Granted() {
		return false
	}
	if err := c.ensureDeviceLocked(); err != nil {
		debug.Error(err)
	}
	return true
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := ModeLive
	switch {
	case c.recording:
		mode = ModeRecording
	case c.captured != nil:
		mode = ModeReviewing
	}

	var captured *storage.Asset
	if c.captured != nil {
		a := *c.captured
		captured = &a
	}

	return State{
		Facing:     c.facing,
		Lens:       c.facing.String(),
		Zoom:       c.zoom,
		Recording:  c.recording,
		Busy:       c.busy,
		Mode:       mode,
		Captured:   captured,
		Permission: c.perms.Granted(),
	}
}

// Frames exposes a stable preview stream that survives lens switches.
func (c *Controller) Frames() <-chan camera.Frame { return c.frames }

// Close releases the active device.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	err := c.device.Close()
	c.device = nil
	return err
}

func (c *Controller) setBusy(v bool) {
	c.mu.Lock()
	c.busy = v
	c.mu.Unlock()
}

func clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	return math.Min(1, math.Max(0, z))
}
