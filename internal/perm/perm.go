package perm

import (
	"os"
	"path/filepath"

	"camstation/internal/debug"
	"camstation/internal/hw/camera"
)

// Checker answers whether the station may use the camera and write
// media. Request is fire-and-forget: the result is observed through
// Granted changing, never through a return value.
type Checker interface {
	Granted() bool
	Request()
}

// Probe checks real preconditions: the storage directory must be
// writable and the camera hardware present.
type Probe struct {
	storageDir string
	cam        camera.Provider
}

// NewProbe creates a checker over the given storage root and camera
// provider.
func NewProbe(storageDir string, cam camera.Provider) *Probe {
	return &Probe{storageDir: storageDir, cam: cam}
}

// Granted reports whether both storage and camera are usable.
func (p *Probe) Granted() bool {
	return p.storageWritable() && p.cam.Available()
}

// Request attempts to create the storage directory, which is all the
// station itself can do to obtain access. Camera availability is out
// of our hands; it is simply re-probed on the next Granted call.
func (p *Probe) Request() {
	if err := os.MkdirAll(p.storageDir, 0o755); err != nil {
		debug.Verbose("Permission request: %v", err)
	}
}

func (p *Probe) storageWritable() bool {
	if err := os.MkdirAll(p.storageDir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(p.storageDir, ".perm-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// Static is a fixed-answer checker for tests and forced-permission
// setups.
type Static bool

// Granted returns the fixed answer.
func (s Static) Granted() bool { return bool(s) }

// Request does nothing.
func (s Static) Request() {}
