package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionTTL is how long a login session on the control UI stays valid.
const SessionTTL = 12 * time.Hour

// WebConfig holds the control UI settings.
type WebConfig struct {
	Port         int    `yaml:"port"`          // HTTP port for the control UI
	PasswordHash string `yaml:"password_hash"` // bcrypt hash; empty disables the login gate
}

// CameraConfig describes how to talk to the camera hardware.
// Type selects a concrete backend ("mock", "webcam", "gpio_trigger").
type CameraConfig struct {
	Type           string `yaml:"type"`             // backend: mock | webcam | gpio_trigger
	FrontDevice    int    `yaml:"front_device"`     // V4L2 index of the front-facing camera
	BackDevice     int    `yaml:"back_device"`      // V4L2 index of the back-facing camera
	SpoolDir       string `yaml:"spool_dir"`        // tether spool dir for gpio_trigger pickup
	FocusPin       int    `yaml:"focus_pin"`        // GPIO pin for FOCUS line (gpio_trigger)
	ShutterPin     int    `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line (gpio_trigger)
	FocusDelayMs   int    `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int    `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	PreviewFPS     int    `yaml:"preview_fps"`      // live preview frame rate
	PreviewWidth   int    `yaml:"preview_width"`    // preview frame width (px)
	PreviewHeight  int    `yaml:"preview_height"`   // preview frame height (px)
}

// StorageConfig locates the writable media directory.
type StorageConfig struct {
	BaseDir       string `yaml:"base_dir"`       // app document directory
	CaptureSubdir string `yaml:"capture_subdir"` // subdirectory for captured assets
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int     `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	ZoomStep   float64 `yaml:"zoom_step"`   // zoom delta applied per UI press (0-1 scale)
	MockGPIO   bool    `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Web      WebConfig      `yaml:"web"`
	Camera   CameraConfig   `yaml:"camera"`
	Storage  StorageConfig  `yaml:"storage"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file, applies environment overrides and returns
// the validated configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyEnv()

	// Basic validation
	if cfg.Camera.Type == "" {
		return nil, fmt.Errorf("camera.type is required")
	}
	switch cfg.Camera.Type {
	case "mock", "webcam", "gpio_trigger":
	default:
		return nil, fmt.Errorf("camera.type must be mock, webcam or gpio_trigger, got %q", cfg.Camera.Type)
	}
	if cfg.Storage.BaseDir == "" {
		return nil, fmt.Errorf("storage.base_dir is required")
	}
	if cfg.Camera.Type == "gpio_trigger" && cfg.Camera.SpoolDir == "" {
		return nil, fmt.Errorf("camera.spool_dir is required for gpio_trigger")
	}
	if cfg.Web.Port < 0 || cfg.Web.Port > 65535 {
		return nil, fmt.Errorf("web.port must be 0-65535, got %d", cfg.Web.Port)
	}
	if cfg.Defaults.ZoomStep < 0 || cfg.Defaults.ZoomStep > 1 {
		return nil, fmt.Errorf("zoom_step must be between 0 and 1, got %.2f", cfg.Defaults.ZoomStep)
	}

	// Default values
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Storage.CaptureSubdir == "" {
		cfg.Storage.CaptureSubdir = "capture"
	}
	if cfg.Defaults.ZoomStep == 0 {
		cfg.Defaults.ZoomStep = 0.1
	}
	if cfg.Camera.PreviewFPS <= 0 {
		cfg.Camera.PreviewFPS = 15
	}
	if cfg.Camera.PreviewFPS > 60 {
		return nil, fmt.Errorf("preview_fps must be <= 60, got %d", cfg.Camera.PreviewFPS)
	}
	if cfg.Camera.PreviewWidth <= 0 {
		cfg.Camera.PreviewWidth = 640
	}
	if cfg.Camera.PreviewHeight <= 0 {
		cfg.Camera.PreviewHeight = 480
	}
	if cfg.Camera.FocusDelayMs <= 0 {
		cfg.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if cfg.Camera.ShutterDelayMs <= 0 {
		cfg.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}

	return &cfg, nil
}

// applyEnv overrides selected fields from environment variables.
// A .env file loaded at startup lands here as well.
func (c *Config) applyEnv() {
	c.Web.Port = getEnvAsInt("CAMSTATION_PORT", c.Web.Port)
	c.Web.PasswordHash = getEnv("CAMSTATION_PASSWORD_HASH", c.Web.PasswordHash)
	c.Camera.Type = getEnv("CAMSTATION_CAMERA_TYPE", c.Camera.Type)
	c.Storage.BaseDir = getEnv("CAMSTATION_STORAGE_DIR", c.Storage.BaseDir)
	c.Defaults.DebugLevel = getEnvAsInt("CAMSTATION_DEBUG_LEVEL", c.Defaults.DebugLevel)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// PreviewInterval returns the time between two preview frames.
func (c *Config) PreviewInterval() time.Duration {
	return time.Second / time.Duration(c.Camera.PreviewFPS)
}

// WebAddr returns the listen address for the control UI.
func (c *Config) WebAddr() string {
	return fmt.Sprintf(":%d", c.Web.Port)
}
