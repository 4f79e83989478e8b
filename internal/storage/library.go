package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"camstation/internal/debug"
)

// Kind tags a captured asset explicitly instead of relying on the
// file suffix alone.
type Kind int

const (
	KindPhoto Kind = iota
	KindVideo
)

// String returns "photo" or "video".
func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "photo"
}

// KindFromPath derives the kind from a file extension. Used only when
// listing files already on disk; fresh captures carry their tag.
func KindFromPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return KindPhoto
	default:
		return KindVideo
	}
}

// Asset is one captured file in the library. Written once, never
// mutated.
type Asset struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Kind       Kind      `json:"-"`
	KindLabel  string    `json:"kind"`
	Size       int64     `json:"size"`
	CapturedAt time.Time `json:"captured_at"`
}

// timestampLayout names captured files, ISO-8601 with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000"

// Library owns the capture directory under the app's base directory.
type Library struct {
	baseDir       string
	captureSubdir string
}

// NewLibrary creates a library rooted at baseDir. Nothing is created
// on disk until the first import.
func NewLibrary(baseDir, captureSubdir string) *Library {
	return &Library{baseDir: baseDir, captureSubdir: captureSubdir}
}

// BaseDir returns the library root.
func (l *Library) BaseDir() string { return l.baseDir }

// CaptureDir returns the directory captured assets are moved into.
func (l *Library) CaptureDir() string {
	return filepath.Join(l.baseDir, l.captureSubdir)
}

// EnsureCaptureDir creates the capture directory. Idempotent.
func (l *Library) EnsureCaptureDir() error {
	if err := os.MkdirAll(l.CaptureDir(), 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}
	return nil
}

// Import moves a freshly produced file into the capture directory
// under a timestamp-derived name and returns the resulting asset.
// On failure the destination is never left half-written.
func (l *Library) Import(src string, kind Kind, takenAt time.Time) (Asset, error) {
	if err := l.EnsureCaptureDir(); err != nil {
		return Asset{}, err
	}

	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" && kind == KindPhoto {
		ext = ".jpg"
	}

	name := takenAt.Format(timestampLayout) + ext
	dst := filepath.Join(l.CaptureDir(), name)
	// Same-millisecond captures get a numeric suffix.
	for n := 1; ; n++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%d%s", takenAt.Format(timestampLayout), n, ext)
		dst = filepath.Join(l.CaptureDir(), name)
	}

	if err := moveFile(src, dst); err != nil {
		return Asset{}, fmt.Errorf("move capture into library: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Asset{}, fmt.Errorf("stat imported file: %w", err)
	}

	debug.Verbose("Library: imported %s (%d bytes)", dst, info.Size())
	return Asset{
		ID:         uuid.NewString(),
		Name:       name,
		Path:       dst,
		Kind:       kind,
		KindLabel:  kind.String(),
		Size:       info.Size(),
		CapturedAt: takenAt,
	}, nil
}

// Resolve maps an asset name back to its on-disk path. Names with
// path separators are rejected so the media handler cannot be walked
// out of the capture directory.
func (l *Library) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid asset name: %q", name)
	}
	path := filepath.Join(l.CaptureDir(), name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("asset %q: %w", name, err)
	}
	return path, nil
}

// List returns the library contents, newest first. An empty or
// missing capture directory yields an empty list.
func (l *Library) List() ([]Asset, error) {
	entries, err := os.ReadDir(l.CaptureDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read capture dir: %w", err)
	}

	assets := make([]Asset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		kind := KindFromPath(e.Name())
		taken := info.ModTime()
		if t, err := time.ParseInLocation(timestampLayout, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), time.Local); err == nil {
			taken = t
		}
		assets = append(assets, Asset{
			ID:         uuid.NewString(),
			Name:       e.Name(),
			Path:       filepath.Join(l.CaptureDir(), e.Name()),
			Kind:       kind,
			KindLabel:  kind.String(),
			Size:       info.Size(),
			CapturedAt: taken,
		})
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].CapturedAt.After(assets[j].CapturedAt)
	})
	return assets, nil
}

// moveFile renames src to dst, falling back to copy+remove when the
// temp directory sits on another filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
