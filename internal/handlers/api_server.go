// internal/handlers/api_server.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jason-s-yu/eloledger/internal/ledger"
	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/registry"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// bodyOverhead is allowed on top of the payload limit for the JSON envelope.
	bodyOverhead = 64 << 10
)

// Server holds the dependencies of the HTTP API.
type Server struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	feed     http.Handler
	logger   *logrus.Logger
	maxBody  int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRatingFeed mounts h at GET /ws/ratings.
func WithRatingFeed(h http.Handler) ServerOption {
	return func(s *Server) { s.feed = h }
}

// WithMaxBodyBytes bounds request bodies. Zero disables the limit.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) { s.maxBody = n }
}

func NewServer(reg *registry.Registry, l *ledger.Ledger, logger *logrus.Logger, opts ...ServerOption) *Server {
	s := &Server{
		registry: reg,
		ledger:   l,
		logger:   logger,
		maxBody:  int64(ledger.DefaultConfig().MaxPayloadBytes) + bodyOverhead,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BodyLimitFor returns the request body limit that fits a payload limit.
func BodyLimitFor(maxPayloadBytes int) int64 {
	if maxPayloadBytes <= 0 {
		return 0
	}
	return int64(maxPayloadBytes) + bodyOverhead
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.health)

	mux.HandleFunc("POST /games", s.submitGame)
	mux.HandleFunc("GET /games", s.listGames)
	mux.HandleFunc("GET /games/{id}", s.getGame)

	mux.HandleFunc("POST /players", s.registerPlayer)
	mux.HandleFunc("GET /players/{id}", s.getPlayer)
	mux.HandleFunc("GET /players/{id}/rating", s.getRating)
	mux.HandleFunc("GET /players/{id}/games", s.playerGames)
	mux.HandleFunc("GET /leaderboard", s.leaderboard)

	if s.feed != nil {
		mux.Handle("GET /ws/ratings", s.feed)
	}
	return mux
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	if s.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
}

// pathPlayer reads the {id} segment. A bare number is a user id.
func pathPlayer(r *http.Request) (models.PlayerID, error) {
	raw := r.PathValue("id")
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		id := models.UserPlayer(n)
		return id, id.Validate()
	}
	return models.ParsePlayerID(raw)
}

// queryLimit parses ?limit=, capped at maxListLimit.
func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errBadRequest)
	}
	return min(n, maxListLimit), nil
}

// queryInt64 parses an optional non-negative integer query parameter.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}
