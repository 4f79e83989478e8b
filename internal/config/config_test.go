package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
camera:
  type: mock
storage:
  base_dir: /tmp/camstation-test
`

// ---------- Load: valid configs ----------

func TestLoad_MinimalDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Web.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Web.Port)
	}
	if cfg.Storage.CaptureSubdir != "capture" {
		t.Errorf("capture_subdir = %q, want \"capture\"", cfg.Storage.CaptureSubdir)
	}
	if cfg.Defaults.ZoomStep != 0.1 {
		t.Errorf("zoom_step = %g, want 0.1", cfg.Defaults.ZoomStep)
	}
	if cfg.Camera.PreviewFPS != 15 {
		t.Errorf("preview_fps = %d, want 15", cfg.Camera.PreviewFPS)
	}
	if cfg.Camera.PreviewWidth != 640 || cfg.Camera.PreviewHeight != 480 {
		t.Errorf("preview size = %dx%d, want 640x480", cfg.Camera.PreviewWidth, cfg.Camera.PreviewHeight)
	}
	if cfg.Camera.FocusDelayMs != 500 || cfg.Camera.ShutterDelayMs != 200 {
		t.Errorf("delays = %d/%d, want 500/200", cfg.Camera.FocusDelayMs, cfg.Camera.ShutterDelayMs)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
web:
  port: 9090
  password_hash: "$2a$10$abcdefg"
camera:
  type: webcam
  front_device: 2
  back_device: 1
  preview_fps: 30
  preview_width: 1280
  preview_height: 720
storage:
  base_dir: /var/lib/camstation
  capture_subdir: shots
defaults:
  debug_level: 3
  zoom_step: 0.25
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Web.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Web.Port)
	}
	if cfg.Camera.Type != "webcam" {
		t.Errorf("camera type = %q, want webcam", cfg.Camera.Type)
	}
	if cfg.Camera.FrontDevice != 2 || cfg.Camera.BackDevice != 1 {
		t.Errorf("devices = %d/%d, want 2/1", cfg.Camera.FrontDevice, cfg.Camera.BackDevice)
	}
	if cfg.Storage.CaptureSubdir != "shots" {
		t.Errorf("capture_subdir = %q, want shots", cfg.Storage.CaptureSubdir)
	}
	if cfg.Defaults.ZoomStep != 0.25 {
		t.Errorf("zoom_step = %g, want 0.25", cfg.Defaults.ZoomStep)
	}
}

// ---------- Load: invalid configs ----------

func TestLoad_InvalidConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing_camera_type", `
storage:
  base_dir: /tmp/x
`},
		{"unknown_camera_type", `
camera:
  type: hologram
storage:
  base_dir: /tmp/x
`},
		{"missing_base_dir", `
camera:
  type: mock
`},
		{"spool_required_for_trigger", `
camera:
  type: gpio_trigger
storage:
  base_dir: /tmp/x
`},
		{"port_out_of_range", `
web:
  port: 70000
camera:
  type: mock
storage:
  base_dir: /tmp/x
`},
		{"zoom_step_out_of_range", `
camera:
  type: mock
storage:
  base_dir: /tmp/x
defaults:
  zoom_step: 1.5
`},
		{"preview_fps_too_high", `
camera:
  type: mock
  preview_fps: 120
storage:
  base_dir: /tmp/x
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "camera: [broken")); err == nil {
		t.Error("expected error for malformed yaml, got nil")
	}
}

// ---------- Environment overrides ----------

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CAMSTATION_PORT", "9999")
	t.Setenv("CAMSTATION_CAMERA_TYPE", "webcam")
	t.Setenv("CAMSTATION_STORAGE_DIR", "/tmp/env-override")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Web.Port != 9999 {
		t.Errorf("port = %d, want env override 9999", cfg.Web.Port)
	}
	if cfg.Camera.Type != "webcam" {
		t.Errorf("camera type = %q, want env override webcam", cfg.Camera.Type)
	}
	if cfg.Storage.BaseDir != "/tmp/env-override" {
		t.Errorf("base_dir = %q, want env override", cfg.Storage.BaseDir)
	}
}

func TestLoad_EnvOverrideBadInt(t *testing.T) {
	t.Setenv("CAMSTATION_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("port = %d, want config default 8080 when env is garbage", cfg.Web.Port)
	}
}

// ---------- Accessors ----------

func TestAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
camera:
  type: mock
  focus_delay_ms: 250
  shutter_delay_ms: 100
  preview_fps: 20
storage:
  base_dir: /tmp/x
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.FocusDelay(); got != 250*time.Millisecond {
		t.Errorf("FocusDelay = %v, want 250ms", got)
	}
	if got := cfg.ShutterDelay(); got != 100*time.Millisecond {
		t.Errorf("ShutterDelay = %v, want 100ms", got)
	}
	if got := cfg.PreviewInterval(); got != 50*time.Millisecond {
		t.Errorf("PreviewInterval = %v, want 50ms", got)
	}
	if got := cfg.WebAddr(); got != ":8080" {
		t.Errorf("WebAddr = %q, want \":8080\"", got)
	}
}
