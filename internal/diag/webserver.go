package diag

import (
	"context"
	"embed"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rjboer/godemod/internal/logging"
)

//go:embed static/*
var staticFiles embed.FS

// WebServer exposes per-channel diagnostic history and a live SSE feed over
// HTTP, the local (non-shipping) debug surface Non-goals still
// leave room for since it never leaves the host.
type WebServer struct {
	srv *http.Server
	hub *Hub
	log logging.Logger
}

// NewWebServer builds an HTTP server serving the embedded UI plus the
// history/live JSON endpoints against hub.
func NewWebServer(addr string, hub *Hub, log logging.Logger) *WebServer {
	if log == nil {
		log = logging.Default()
	}
	log = logging.Subsystem(log, "diag.web")

	mux := http.NewServeMux()
	mux.Handle("/static/", http.FileServer(http.FS(staticFiles)))
	mux.HandleFunc("/api/history", hub.handleHistory)
	mux.HandleFunc("/api/live", hub.handleLive)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f, err := staticFiles.Open("static/index.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer f.Close()
		http.ServeContent(w, r, "index.html", time.Time{}, f.(io.ReadSeeker))
	})

	return &WebServer{
		hub: hub,
		log: log,
		srv: &http.Server{Addr: addr, Handler: mux},
	}
}

// Start begins listening and shuts down when ctx is cancelled.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("shutdown failed", logging.Field{Key: "error", Value: err})
		}
	}()

	if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		w.log.Error("server error", logging.Field{Key: "error", Value: err})
	}
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if q := r.URL.Query().Get("ssrc"); q != "" {
		ssrc, err := strconv.ParseUint(q, 10, 32)
		if err != nil {
			http.Error(w, "invalid ssrc", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(h.History(uint32(ssrc)))
		return
	}
	_ = json.NewEncoder(w).Encode(h.AllHistory())
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			payload, _ := json.Marshal(sample)
			w.Write([]byte("data: "))
			w.Write(payload)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
