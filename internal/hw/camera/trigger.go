package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"camstation/internal/debug"
	"camstation/internal/hw/gpio"
)

// TriggerProvider drives a DSLR through its wired remote connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// The camera body writes the shot to its own storage; a tethering
// daemon (gphoto2 or similar) is expected to drop the file into the
// spool directory, where TakePhoto picks it up.
//
// A wired DSLR has one lens, so both facings resolve to the same
// device. Recording and live preview are not supported on this path.
type TriggerProvider struct {
	driver       gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration
	shutterDelay time.Duration
	spoolDir     string
}

// NewTriggerProvider creates a provider over the given GPIO driver.
// focusDelay is the wait time for autofocus, shutterDelay the shutter
// hold time, spoolDir the tether pickup directory.
func NewTriggerProvider(driver gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration, spoolDir string) *TriggerProvider {
	return &TriggerProvider{
		driver:       driver,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
		spoolDir:     spoolDir,
	}
}

// Available reports whether the spool directory exists.
func (p *TriggerProvider) Available() bool {
	info, err := os.Stat(p.spoolDir)
	return err == nil && info.IsDir()
}

// Acquire returns the shutter trigger device. The facing is accepted
// but ignored: the rig has a single lens.
func (p *TriggerProvider) Acquire(facing Facing) (Device, error) {
	if facing == FacingFront {
		debug.Verbose("Trigger camera: no front lens, using the wired body")
	}

	// Configure pins as outputs; lines are HIGH (inactive) at rest.
	if err := p.driver.SetupPin(p.focusPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup focus pin: %w", err)
	}
	if err := p.driver.SetupPin(p.shutterPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup shutter pin: %w", err)
	}
	_ = p.driver.WritePin(p.focusPin, gpio.High)
	_ = p.driver.WritePin(p.shutterPin, gpio.High)

	return &triggerDevice{provider: p}, nil
}

type triggerDevice struct {
	provider *TriggerProvider
}

// TakePhoto pulses the remote lines and waits for the tethered file.
// Sequence: FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (d *triggerDevice) TakePhoto(ctx context.Context) (string, error) {
	p := d.provider

	before, err := spoolSnapshot(p.spoolDir)
	if err != nil {
		return "", fmt.Errorf("read spool dir: %w", err)
	}

	debug.Printf("Trigger camera: firing (focus=%d, shutter=%d)", p.focusPin, p.shutterPin)
	if err := p.driver.WritePin(p.focusPin, gpio.Low); err != nil {
		return "", err
	}
	time.Sleep(p.focusDelay)

	if err := p.driver.WritePin(p.shutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		_ = p.driver.WritePin(p.focusPin, gpio.High)
		return "", err
	}
	time.Sleep(p.shutterDelay)

	if err := p.driver.WritePin(p.shutterPin, gpio.High); err != nil {
		return "", err
	}
	if err := p.driver.WritePin(p.focusPin, gpio.High); err != nil {
		return "", err
	}

	return d.awaitSpoolFile(ctx, before)
}

// awaitSpoolFile polls the spool directory for a file that was not
// there before the trigger. The tether transfer can take a few
// seconds on large raws.
func (d *triggerDevice) awaitSpoolFile(ctx context.Context, before map[string]struct{}) (string, error) {
	deadline := time.Now().Add(10 * time.Second)
	for {
		entries, err := os.ReadDir(d.provider.spoolDir)
		if err != nil {
			return "", fmt.Errorf("read spool dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, seen := before[e.Name()]; !seen {
				path := filepath.Join(d.provider.spoolDir, e.Name())
				debug.Verbose("Trigger camera: picked up %s", path)
				return path, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no tethered file appeared in %s", d.provider.spoolDir)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func spoolSnapshot(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

// StartRecording is not available on a wired shutter trigger.
func (d *triggerDevice) StartRecording(ctx context.Context) error {
	return ErrNotSupported
}

// StopRecording is not available on a wired shutter trigger.
func (d *triggerDevice) StopRecording() (string, error) {
	return "", ErrNotSupported
}

// SetZoom is not available; the lens is manual.
func (d *triggerDevice) SetZoom(zoom float64) error {
	return ErrNotSupported
}

// Frames returns nil: the body has no tethered live view on this path.
func (d *triggerDevice) Frames() <-chan Frame { return nil }

// Close leaves the remote lines inactive.
func (d *triggerDevice) Close() error {
	_ = d.provider.driver.WritePin(d.provider.shutterPin, gpio.High)
	return d.provider.driver.WritePin(d.provider.focusPin, gpio.High)
}
