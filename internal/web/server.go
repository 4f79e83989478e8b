package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP server, handlers and the optional login gate.
type Server struct {
	addr     string
	handlers *Handlers
	gate     *Gate
}

// NewServer creates a server configured for the given address and
// dependencies.
func NewServer(addr string, handlers *Handlers, gate *Gate) *Server {
	return &Server{
		addr:     addr,
		handlers: handlers,
		gate:     gate,
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handlers.HandleState)
	mux.HandleFunc("POST /api/lens", s.handlers.HandleLens)
	mux.HandleFunc("POST /api/zoom", s.handlers.HandleZoom)
	mux.HandleFunc("POST /api/photo", s.handlers.HandlePhoto)
	mux.HandleFunc("POST /api/record/start", s.handlers.HandleRecordStart)
	mux.HandleFunc("POST /api/record/stop", s.handlers.HandleRecordStop)
	mux.HandleFunc("POST /api/clear", s.handlers.HandleClear)
	mux.HandleFunc("POST /api/permission", s.handlers.HandlePermission)
	mux.HandleFunc("GET /api/gallery", s.handlers.HandleGallery)
	mux.HandleFunc("GET /api/status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /ws/preview", s.handlers.Hub.HandleWS)
	mux.HandleFunc("GET /media/{name}", s.handlers.HandleMedia)
	mux.HandleFunc("POST /login", s.gate.HandleLogin)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return s.gate.Middleware(mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Printf("web server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.Mux())
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// StaticFS returns the embedded static file tree.
func StaticFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}
	return subFS
}
