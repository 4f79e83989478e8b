package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"camstation/internal/debug"
	"camstation/internal/hw/camera"
	"camstation/internal/session"
	"camstation/internal/storage"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Ctrl        *session.Controller
	Lib         *storage.Library
	Hub         *PreviewHub
	// ZoomStep is the configured zoom delta per UI press, included in
	// the state payload so the controls match the config.
	ZoomStep float64
	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, ctrl *session.Controller, lib *storage.Library, hub *PreviewHub, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Ctrl:        ctrl,
		Lib:         lib,
		Hub:         hub,
		staticFS:    staticFS,
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState returns the session snapshot as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w)
}

// HandleLens toggles the lens facing, or selects one when the body
// names it: {"facing":"front"}.
func (h *Handlers) HandleLens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Facing string `json:"facing"`
	}
	// An empty body means "toggle".
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Facing != "" {
		facing, err := camera.ParseFacing(req.Facing)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.Ctrl.SetLens(facing); err != nil {
			h.failIntent(w, "Lens switch", err)
			return
		}
	} else {
		if _, err := h.Ctrl.ToggleLens(); err != nil {
			h.failIntent(w, "Lens switch", err)
			return
		}
	}
	h.writeState(w)
}

// HandleZoom applies a zoom delta: {"delta":0.1}.
func (h *Handlers) HandleZoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if _, err := h.Ctrl.AdjustZoom(req.Delta); err != nil {
		h.failIntent(w, "Zoom", err)
		return
	}
	h.writeState(w)
}

// HandlePhoto captures a still image.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	asset, err := h.Ctrl.CapturePhoto(r.Context())
	if err != nil {
		h.failIntent(w, "Photo capture", err)
		return
	}
	h.Broadcaster.BroadcastMsg("Photo captured: " + asset.Name)
	h.writeState(w)
}

// HandleRecordStart begins a video recording.
func (h *Handlers) HandleRecordStart(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctrl.StartRecording(r.Context()); err != nil {
		h.failIntent(w, "Recording start", err)
		return
	}
	h.Broadcaster.BroadcastMsg("Recording started")
	h.writeState(w)
}

// HandleRecordStop ends the recording and enters review mode.
func (h *Handlers) HandleRecordStop(w http.ResponseWriter, r *http.Request) {
	asset, err := h.Ctrl.StopRecording()
	if err != nil {
		h.failIntent(w, "Recording stop", err)
		return
	}
	h.Broadcaster.BroadcastMsg("Recording saved: " + asset.Name)
	h.writeState(w)
}

// HandleClear leaves review mode and returns to the live preview.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.Ctrl.ClearCapture()
	h.writeState(w)
}

// HandlePermission fires the permission request.
func (h *Handlers) HandlePermission(w http.ResponseWriter, r *http.Request) {
	granted := h.Ctrl.RequestPermission()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"granted": granted})
}

// HandleGallery lists the capture library, newest first.
func (h *Handlers) HandleGallery(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Lib.List()
	if err != nil {
		debug.Error(err)
		http.Error(w, "list captures: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []storage.Asset{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assets)
}

// HandleMedia serves a captured asset for the review pane. ServeFile
// handles range requests, which the browser's video transport
// controls rely on.
func (h *Handlers) HandleMedia(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, err := h.Lib.Resolve(name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

// HandleStatusStream handles GET /api/status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeState responds with the current session snapshot.
func (h *Handlers) writeState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		session.State
		ZoomStep float64 `json:"zoom_step"`
	}{h.Ctrl.Snapshot(), h.ZoomStep})
}

// failIntent surfaces an intent failure as a user-visible alert on
// the status stream and maps it to an HTTP status.
func (h *Handlers) failIntent(w http.ResponseWriter, action string, err error) {
	debug.Error(err)
	h.Broadcaster.Errorf("%s failed: %v", action, err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrNotRecording):
		status = http.StatusConflict
	case errors.Is(err, camera.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, camera.ErrNotSupported):
		status = http.StatusNotImplemented
	}
	http.Error(w, err.Error(), status)
}
