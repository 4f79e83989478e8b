package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"camstation/internal/config"
	"camstation/internal/debug"
	"camstation/internal/hw/camera"
	"camstation/internal/hw/gpio"
	"camstation/internal/perm"
	"camstation/internal/session"
	"camstation/internal/storage"
	"camstation/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "override web port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	storageDir := flag.String("storage", "", "override storage base directory")
	snap := flag.Bool("snap", false, "take a single photo and exit (no web UI)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Optional .env before the config reads the environment
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if port := webPort.port(); port > 0 {
		cfg.Web.Port = port
	}
	if *storageDir != "" {
		cfg.Storage.BaseDir = *storageDir
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Storage dir", cfg.Storage.BaseDir)

	// Camera backend
	debug.Step(1, "Initializing camera backend")
	provider, cleanup, err := newProviderFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer cleanup()

	// Media library and permission probe
	debug.Step(2, "Initializing media library")
	lib := storage.NewLibrary(cfg.Storage.BaseDir, cfg.Storage.CaptureSubdir)
	perms := perm.NewProbe(cfg.Storage.BaseDir, provider)

	// Session controller
	debug.Step(3, "Starting session")
	ctrl := session.NewController(provider, lib, perms)
	if err := ctrl.Start(); err != nil {
		log.Fatalf("start session failed: %v", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("closing session failed: %v", err)
		}
	}()

	if *snap {
		// One-shot capture with no web UI
		asset, err := ctrl.CapturePhoto(ctx)
		if err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		fmt.Println(asset.Path)
		return
	}

	// Web control surface
	debug.Step(4, "Starting web server")
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	hub := web.NewPreviewHub()
	go hub.Pump(ctrl.Frames())

	gate := web.NewGate(cfg.Web.PasswordHash, config.SessionTTL)
	handlers := web.NewHandlers(broadcaster, ctrl, lib, hub, web.StaticFS())
	handlers.ZoomStep = cfg.Defaults.ZoomStep
	srv := web.NewServer(cfg.WebAddr(), handlers, gate)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("web server: %v", err)
	}
}

// newProviderFromConfig selects a camera backend based on configuration.
// The returned cleanup releases backend resources (GPIO).
func newProviderFromConfig(cfg *config.Config) (camera.Provider, func(), error) {
	noop := func() {}
	switch cfg.Camera.Type {
	case "mock":
		return camera.NewMockProvider(
			cfg.Camera.PreviewWidth,
			cfg.Camera.PreviewHeight,
			cfg.PreviewInterval(),
		), noop, nil

	case "webcam":
		return camera.NewWebcamProvider(
			cfg.Camera.FrontDevice,
			cfg.Camera.BackDevice,
			cfg.Camera.PreviewWidth,
			cfg.Camera.PreviewHeight,
			cfg.PreviewInterval(),
		), noop, nil

	case "gpio_trigger":
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		driver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return nil, noop, fmt.Errorf("init GPIO: %w", err)
		}
		cleanup := func() {
			if err := driver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}
		return camera.NewTriggerProvider(
			driver,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
			cfg.Camera.SpoolDir,
		), cleanup, nil

	default:
		return nil, noop, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// webPortFlag implements flag.Value for -web: 0 = use config, -web= or
// -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
