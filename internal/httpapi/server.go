package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yanyan-huang/pmpal/internal/config"
	"github.com/yanyan-huang/pmpal/internal/conversation"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/transcribe"
)

type Server struct {
	cfg         config.Config
	manager     *conversation.Manager
	transcriber transcribe.Transcriber
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

// New builds the HTTP delivery surface. transcriber may be nil, in which case
// voice uploads are rejected.
func New(cfg config.Config, manager *conversation.Manager, transcriber transcribe.Transcriber, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		manager:     manager,
		transcriber: transcriber,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless opted out.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withRequestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/exchange", s.handleExchange)
		r.Post("/mode", s.handleModeSwitch)
		r.Post("/voice", s.handleVoice)
		r.Get("/modes", s.handleListModes)
		r.Get("/chat/ws", s.handleChatWS)
		r.Get("/perf/latency", s.handlePerfLatency)
		r.Get("/onboarding/status", s.handleOnboardingStatus)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleUserStatus)
			r.Get("/history", s.handleUserHistory)
			r.Post("/reset", s.handleUserReset)
			r.Put("/model", s.handleUserModel)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"provider":      s.manager.ProviderName(),
		"store_backend": s.cfg.StoreBackend,
		"voice_enabled": s.transcriber != nil,
	})
}

// withRequestID propagates X-Request-ID (or a fresh uuid) into the request
// context so every log line of the request carries it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), reqID)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// failureResponse is the fail-soft body for exchanges that could not be
// completed: the client still gets text to show.
type failureResponse struct {
	Reply string `json:"reply"`
	Kind  string `json:"kind"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		// io.EOF only means no value at all; a cut-off body is
		// io.ErrUnexpectedEOF and stays an error.
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondManagerError maps a Manager error onto an HTTP response. Storage
// failures get the generic apology.
func respondManagerError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, memory.ErrInvalidUser):
		respondError(w, http.StatusBadRequest, "invalid_user", err.Error())
	case errors.Is(err, context.Canceled):
		log.Info(op+" abandoned by client", "error", err)
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", "error", err)
		respondJSON(w, http.StatusGatewayTimeout, failureResponse{Reply: conversation.ApologyText, Kind: "timeout"})
	default:
		log.Error(op+" failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, failureResponse{Reply: conversation.ApologyText, Kind: "error"})
	}
}
