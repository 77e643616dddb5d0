// Package webhook serves the HTTP control surface: image previews, manual
// posts, the profanity probe, health and metrics.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/tiredmanhattan/internal/caption"
	"github.com/user/tiredmanhattan/internal/gateway"
	"github.com/user/tiredmanhattan/internal/state"
	"github.com/user/tiredmanhattan/internal/types"
)

// Poster publishes a standalone image for text.
type Poster interface {
	Post(ctx context.Context, text string) (types.TweetID, error)
}

// RunHistory lists recently finished runs.
type RunHistory interface {
	Tail(ctx context.Context, limit int) ([]*state.Record, error)
}

// Deps are the collaborators behind the HTTP endpoints. Poster may be nil,
// in which case POST /tweet answers 503.
type Deps struct {
	Handle   string
	Renderer gateway.Renderer
	Poster   Poster
	Filter   types.ProfanityFilter
	// StreamState reports the supervisor state for /health.
	StreamState func() string
	// Runs backs /api/runs; nil answers 503.
	Runs RunHistory
}

// Server is a lightweight HTTP handler for the control endpoints.
type Server struct {
	deps   Deps
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a new Server with the given collaborators.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: slog.Default().With("component", "webhook"),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /image", s.handleImage)
	s.mux.HandleFunc("POST /tweet", s.handleTweet)
	s.mux.HandleFunc("GET /profanity", s.handleProfanity)
	s.mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.deps.StreamState != nil {
		resp["stream"] = s.deps.StreamState()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	content := caption.Clean(r.URL.Query().Get("text"))
	png, err := s.deps.Renderer.Render(content)
	if err != nil {
		s.logger.Error("render preview failed", "text", content, "error", err)
		http.Error(w, `{"error":"render failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Server) handleTweet(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if s.deps.Poster == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "publishing not configured"})
		return
	}

	s.logger.Info("manual post requested", "text", text)
	id, err := s.deps.Poster.Post(r.Context(), text)
	switch {
	case errors.Is(err, gateway.ErrProfane):
		s.logger.Info("filtered out manual post", "text", text)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("manual post failed", "text", text, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "publish failed"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"id": string(id)})
	}
}

type profanityResponse struct {
	Text         string `json:"text"`
	HasProfanity bool   `json:"hasProfanity"`
}

func (s *Server) handleProfanity(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	writeJSON(w, http.StatusOK, profanityResponse{
		Text:         text,
		HasProfanity: s.deps.Filter.IsProfane(text),
	})
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		http.Error(w, `{"error":"run log not configured"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.deps.Runs.Tail(r.Context(), limit)
	if err != nil {
		s.logger.Error("tail run log failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*state.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

var samples = []string{".NET", "Programming", "Vegetables"}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	handle := html.EscapeString(strings.TrimPrefix(s.deps.Handle, "@"))

	var b strings.Builder
	b.WriteString("<html lang='en'><h1>")
	if handle != "" {
		b.WriteString("<a href='https://twitter.com/" + handle + "'>@" + handle + "</a>")
	} else {
		b.WriteString("tiredmanhattan")
	}
	b.WriteString("</h1> <ul>")
	for _, sample := range samples {
		q := html.EscapeString("/image?text=" + sample)
		b.WriteString("<li><a href='" + q + "'>" + html.EscapeString(sample) + "</a></li> ")
	}
	b.WriteString("</ul></html>")

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(b.String()))
}
