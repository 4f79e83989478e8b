package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"camstation/internal/hw/camera"
	"camstation/internal/perm"
	"camstation/internal/storage"
)

// fakeDevice scripts a camera.Device and records every call so tests
// can assert what the controller actually asked the hardware for.
type fakeDevice struct {
	mu          sync.Mutex
	photoCalls  int
	startCalls  int
	stopCalls   int
	zoomLevels  []float64
	closed      bool
	photoErr    error
	startErr    error
	stopErr     error
	zoomErr     error
	mediaDir    string
	framesCh    chan camera.Frame
}

func (d *fakeDevice) TakePhoto(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.photoCalls++
	if d.photoErr != nil {
		return "", d.photoErr
	}
	return d.writeMedia("photo-*.jpg")
}

func (d *fakeDevice) StartRecording(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startCalls++
	return d.startErr
}

func (d *fakeDevice) StopRecording() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	if d.stopErr != nil {
		return "", d.stopErr
	}
	return d.writeMedia("clip-*.mjpeg")
}

func (d *fakeDevice) writeMedia(pattern string) (string, error) {
	f, err := os.CreateTemp(d.mediaDir, pattern)
	if err != nil {
		return "", err
	}
	f.WriteString("media")
	f.Close()
	return f.Name(), nil
}

func (d *fakeDevice) SetZoom(level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.zoomLevels = append(d.zoomLevels, level)
	return d.zoomErr
}

func (d *fakeDevice) Frames() <-chan camera.Frame { return d.framesCh }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// fakeProvider hands out one fakeDevice per Acquire call and remembers
// the order of requested facings.
type fakeProvider struct {
	mu         sync.Mutex
	devices    []*fakeDevice
	facings    []camera.Facing
	acquireErr error
	mediaDir   string
	nextDevice func() *fakeDevice
}

func (p *fakeProvider) Acquire(facing camera.Facing) (camera.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	var dev *fakeDevice
	if p.nextDevice != nil {
		dev = p.nextDevice()
	} else {
		dev = &fakeDevice{mediaDir: p.mediaDir}
	}
	p.devices = append(p.devices, dev)
	p.facings = append(p.facings, facing)
	return dev, nil
}

func (p *fakeProvider) Available() bool { return true }

func (p *fakeProvider) last() *fakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[len(p.devices)-1]
}

func newTestController(t *testing.T) (*Controller, *fakeProvider) {
	t.Helper()
	dir := t.TempDir()
	prov := &fakeProvider{mediaDir: dir}
	lib := storage.NewLibrary(dir, "capture")
	ctrl := NewController(prov, lib, perm.Static(true))
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })
	return ctrl, prov
}

// ---------- startup ----------

func TestStart_MountsBackLens(t *testing.T) {
	ctrl, prov := newTestController(t)

	st := ctrl.Snapshot()
	if st.Lens != "back" {
		t.Errorf("initial lens = %q, want back", st.Lens)
	}
	if st.Mode != ModeLive {
		t.Errorf("initial mode = %q, want live", st.Mode)
	}
	if len(prov.facings) != 1 || prov.facings[0] != camera.FacingBack {
		t.Errorf("facings acquired = %v, want [back]", prov.facings)
	}
}

func TestStart_WithoutPermission(t *testing.T) {
	dir := t.TempDir()
	prov := &fakeProvider{mediaDir: dir}
	ctrl := NewController(prov, storage.NewLibrary(dir, "capture"), perm.Static(false))
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(prov.devices) != 0 {
		t.Error("device acquired despite missing permission")
	}
	if st := ctrl.Snapshot(); st.Permission {
		t.Error("snapshot reports permission as granted")
	}

	if _, err := ctrl.CapturePhoto(context.Background()); !errors.Is(err, ErrPermission) {
		t.Errorf("CapturePhoto error = %v, want ErrPermission", err)
	}
	if err := ctrl.StartRecording(context.Background()); !errors.Is(err, ErrPermission) {
		t.Errorf("StartRecording error = %v, want ErrPermission", err)
	}
	if _, err := ctrl.ToggleLens(); !errors.Is(err, ErrPermission) {
		t.Errorf("ToggleLens error = %v, want ErrPermission", err)
	}
}

// ---------- lens ----------

func TestToggleLens_Involution(t *testing.T) {
	ctrl, prov := newTestController(t)

	f1, err := ctrl.ToggleLens()
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if f1 != camera.FacingFront {
		t.Errorf("after one toggle facing = %v, want front", f1)
	}
	f2, err := ctrl.ToggleLens()
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if f2 != camera.FacingBack {
		t.Errorf("after two toggles facing = %v, want back", f2)
	}

	// Each switch closes the previous device.
	prov.mu.Lock()
	defer prov.mu.Unlock()
	if !prov.devices[0].closed || !prov.devices[1].closed {
		t.Error("replaced devices were not closed")
	}
	if prov.devices[2].closed {
		t.Error("active device must stay open")
	}
}

func TestToggleLens_FailureKeepsState(t *testing.T) {
	ctrl, prov := newTestController(t)
	prov.mu.Lock()
	prov.acquireErr = errors.New("front camera absent")
	prov.mu.Unlock()

	if _, err := ctrl.ToggleLens(); err == nil {
		t.Fatal("expected toggle to fail")
	}
	if st := ctrl.Snapshot(); st.Lens != "back" {
		t.Errorf("lens = %q after failed toggle, want back", st.Lens)
	}
	if prov.devices[0].closed {
		t.Error("current device must survive a failed switch")
	}
}

func TestSetLens_SameFacingIsNoop(t *testing.T) {
	ctrl, prov := newTestController(t)

	if err := ctrl.SetLens(camera.FacingBack); err != nil {
		t.Fatalf("SetLens: %v", err)
	}
	if len(prov.devices) != 1 {
		t.Errorf("acquired %d devices, want 1", len(prov.devices))
	}
}

func TestToggleLens_RejectedWhileRecording(t *testing.T) {
	ctrl, _ := newTestController(t)

	if err := ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := ctrl.ToggleLens(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("toggle during recording = %v, want ErrAlreadyRecording", err)
	}
}

// ---------- zoom ----------

func TestAdjustZoom_Clamped(t *testing.T) {
	ctrl, _ := newTestController(t)

	cases := []struct {
		delta float64
		want  float64
	}{
		{0.3, 0.3},
		{0.3, 0.6},
		{10, 1},
		{-0.5, 0.5},
		{-10, 0},
		{0, 0},
	}
	for _, tc := range cases {
		got, err := ctrl.AdjustZoom(tc.delta)
		if err != nil {
			t.Fatalf("AdjustZoom(%v): %v", tc.delta, err)
		}
		if got < tc.want-1e-9 || got > tc.want+1e-9 {
			t.Errorf("AdjustZoom(%v) = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestAdjustZoom_SurvivesLensSwitch(t *testing.T) {
	ctrl, prov := newTestController(t)

	if _, err := ctrl.AdjustZoom(0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.ToggleLens(); err != nil {
		t.Fatal(err)
	}

	if st := ctrl.Snapshot(); st.Zoom != 0.5 {
		t.Errorf("zoom = %v after lens switch, want 0.5", st.Zoom)
	}
	// The fresh device gets the current level applied on acquire.
	dev := prov.last()
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if len(dev.zoomLevels) == 0 || dev.zoomLevels[0] != 0.5 {
		t.Errorf("zoom levels pushed to new device = %v, want [0.5]", dev.zoomLevels)
	}
}

func TestAdjustZoom_UnsupportedBackendIgnored(t *testing.T) {
	dir := t.TempDir()
	prov := &fakeProvider{mediaDir: dir}
	prov.nextDevice = func() *fakeDevice {
		return &fakeDevice{mediaDir: dir, zoomErr: camera.ErrNotSupported}
	}
	ctrl := NewController(prov, storage.NewLibrary(dir, "capture"), perm.Static(true))
	if err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	z, err := ctrl.AdjustZoom(0.4)
	if err != nil {
		t.Fatalf("AdjustZoom on zoomless backend: %v", err)
	}
	if z != 0.4 {
		t.Errorf("zoom = %v, want 0.4", z)
	}
}

// ---------- photo ----------

func TestCapturePhoto_EntersReview(t *testing.T) {
	ctrl, prov := newTestController(t)

	asset, err := ctrl.CapturePhoto(context.Background())
	if err != nil {
		t.Fatalf("CapturePhoto: %v", err)
	}
	if !strings.HasSuffix(asset.Name, ".jpg") {
		t.Errorf("asset name %q should end with .jpg", asset.Name)
	}
	if asset.Kind != storage.KindPhoto {
		t.Errorf("kind = %v, want photo", asset.Kind)
	}
	if filepath.Base(filepath.Dir(asset.Path)) != "capture" {
		t.Errorf("asset path %q not under capture dir", asset.Path)
	}

	st := ctrl.Snapshot()
	if st.Mode != ModeReviewing {
		t.Errorf("mode = %q, want reviewing", st.Mode)
	}
	if st.Recording {
		t.Error("recording flag set after photo")
	}
	if st.Busy {
		t.Error("busy flag still set after photo")
	}
	if st.Captured == nil || st.Captured.Name != asset.Name {
		t.Error("snapshot does not carry the captured asset")
	}
	if prov.last().photoCalls != 1 {
		t.Errorf("photoCalls = %d, want 1", prov.last().photoCalls)
	}
}

func TestCapturePhoto_DeviceFailure(t *testing.T) {
	ctrl, prov := newTestController(t)
	dev := prov.last()
	dev.mu.Lock()
	dev.photoErr = camera.ErrUnavailable
	dev.mu.Unlock()

	if _, err := ctrl.CapturePhoto(context.Background()); !errors.Is(err, camera.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}

	st := ctrl.Snapshot()
	if st.Mode != ModeLive {
		t.Errorf("mode = %q after failed capture, want live", st.Mode)
	}
	if st.Busy {
		t.Error("busy flag leaked after failed capture")
	}
	if st.Captured != nil {
		t.Error("captured reference set after failed capture")
	}
}

func TestCapturePhoto_ImportFailure(t *testing.T) {
	dir := t.TempDir()
	prov := &fakeProvider{mediaDir: dir}
	// A file where the base directory should be makes the library's
	// MkdirAll fail, driving the import path into its error branch.
	base := filepath.Join(dir, "blocked")
	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctrl := NewController(prov, storage.NewLibrary(base, "capture"), perm.Static(true))
	if err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	if _, err := ctrl.CapturePhoto(context.Background()); err == nil {
		t.Fatal("expected import failure")
	}

	st := ctrl.Snapshot()
	if st.Captured != nil {
		t.Error("captured reference set after failed import")
	}
	if st.Busy {
		t.Error("busy flag leaked after failed import")
	}
	if st.Mode != ModeLive {
		t.Errorf("mode = %q, want live", st.Mode)
	}
}

// ---------- recording ----------

func TestRecording_FullCycle(t *testing.T) {
	ctrl, prov := newTestController(t)

	if err := ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	st := ctrl.Snapshot()
	if st.Mode != ModeRecording || !st.Recording {
		t.Errorf("state after start = mode %q recording %v", st.Mode, st.Recording)
	}

	asset, err := ctrl.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if asset.Kind != storage.KindVideo {
		t.Errorf("kind = %v, want video", asset.Kind)
	}
	if strings.HasSuffix(asset.Name, ".jpg") {
		t.Errorf("video name %q must not carry a photo suffix", asset.Name)
	}

	st = ctrl.Snapshot()
	if st.Recording {
		t.Error("recording flag still set after stop")
	}
	if st.Mode != ModeReviewing {
		t.Errorf("mode = %q after stop, want reviewing", st.Mode)
	}
	dev := prov.last()
	if dev.startCalls != 1 || dev.stopCalls != 1 {
		t.Errorf("device calls start=%d stop=%d, want 1/1", dev.startCalls, dev.stopCalls)
	}
}

func TestStartRecording_SecondPressRejected(t *testing.T) {
	ctrl, prov := newTestController(t)

	if err := ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.StartRecording(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second start = %v, want ErrAlreadyRecording", err)
	}
	if prov.last().startCalls != 1 {
		t.Errorf("device start invoked %d times, want 1", prov.last().startCalls)
	}
}

func TestStartRecording_DeviceFailureRollsBack(t *testing.T) {
	ctrl, prov := newTestController(t)
	dev := prov.last()
	dev.mu.Lock()
	dev.startErr = camera.ErrUnavailable
	dev.mu.Unlock()

	if err := ctrl.StartRecording(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}

	st := ctrl.Snapshot()
	if st.Recording {
		t.Error("recording flag not rolled back after device failure")
	}
	if st.Mode != ModeLive {
		t.Errorf("mode = %q, want live", st.Mode)
	}
}

func TestStopRecording_WhileIdle(t *testing.T) {
	ctrl, _ := newTestController(t)

	if _, err := ctrl.StopRecording(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("stop while idle = %v, want ErrNotRecording", err)
	}
}

func TestStopRecording_DeviceFailureClearsFlag(t *testing.T) {
	ctrl, prov := newTestController(t)

	if err := ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	dev := prov.last()
	dev.mu.Lock()
	dev.stopErr = errors.New("writer crashed")
	dev.mu.Unlock()

	if _, err := ctrl.StopRecording(); err == nil {
		t.Fatal("expected stop to fail")
	}

	st := ctrl.Snapshot()
	if st.Recording {
		t.Error("recording flag must clear even on a failed stop")
	}
	if st.Captured != nil {
		t.Error("captured reference set after failed stop")
	}
}

func TestCapturePhoto_RejectedWhileRecording(t *testing.T) {
	ctrl, prov := newTestController(t)

	if err := ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.CapturePhoto(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("photo during recording = %v, want ErrBusy", err)
	}
	if prov.last().photoCalls != 0 {
		t.Error("device photo invoked during recording")
	}
}

// ---------- review ----------

func TestClearCapture_ReturnsToLive(t *testing.T) {
	ctrl, _ := newTestController(t)

	asset, err := ctrl.CapturePhoto(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ctrl.ClearCapture()

	st := ctrl.Snapshot()
	if st.Mode != ModeLive {
		t.Errorf("mode = %q after clear, want live", st.Mode)
	}
	if st.Captured != nil {
		t.Error("captured reference survived clear")
	}
	// Clearing the review never deletes the file.
	if _, err := os.Stat(asset.Path); err != nil {
		t.Errorf("asset file gone after clear: %v", err)
	}
}

func TestClearCapture_IdempotentFromLive(t *testing.T) {
	ctrl, _ := newTestController(t)

	ctrl.ClearCapture()
	if st := ctrl.Snapshot(); st.Mode != ModeLive {
		t.Errorf("mode = %q, want live", st.Mode)
	}
}

// ---------- permission ----------

type flipChecker struct {
	mu      sync.Mutex
	granted bool
}

func (f *flipChecker) Granted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted
}

func (f *flipChecker) Request() {
	f.mu.Lock()
	f.granted = true
	f.mu.Unlock()
}

func TestRequestPermission_MountsCamera(t *testing.T) {
	dir := t.TempDir()
	prov := &fakeProvider{mediaDir: dir}
	ctrl := NewController(prov, storage.NewLibrary(dir, "capture"), &flipChecker{})
	if err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	if len(prov.devices) != 0 {
		t.Fatal("device mounted before grant")
	}
	if !ctrl.RequestPermission() {
		t.Fatal("RequestPermission should report granted")
	}
	if len(prov.devices) != 1 {
		t.Errorf("devices after grant = %d, want 1", len(prov.devices))
	}
	if st := ctrl.Snapshot(); !st.Permission {
		t.Error("snapshot still reports permission missing")
	}
}

// ---------- frames ----------

func TestFrames_SurviveLensSwitch(t *testing.T) {
	dir := t.TempDir()
	prov := &fakeProvider{mediaDir: dir}
	prov.nextDevice = func() *fakeDevice {
		return &fakeDevice{mediaDir: dir, framesCh: make(chan camera.Frame, 1)}
	}
	ctrl := NewController(prov, storage.NewLibrary(dir, "capture"), perm.Static(true))
	if err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	out := ctrl.Frames()

	push := func(dev *fakeDevice, seq uint64) {
		dev.framesCh <- camera.Frame{Data: []byte{0xff}, Seq: seq, Taken: time.Now()}
	}
	recv := func() camera.Frame {
		select {
		case f := <-out:
			return f
		case <-time.After(2 * time.Second):
			t.Fatal("no frame within deadline")
			return camera.Frame{}
		}
	}

	first := prov.last()
	push(first, 1)
	if f := recv(); f.Seq != 1 {
		t.Errorf("seq = %d, want 1", f.Seq)
	}

	if _, err := ctrl.ToggleLens(); err != nil {
		t.Fatal(err)
	}
	close(first.framesCh)

	// The same channel keeps delivering from the replacement device.
	push(prov.last(), 2)
	if f := recv(); f.Seq != 2 {
		t.Errorf("seq = %d, want 2", f.Seq)
	}
}
