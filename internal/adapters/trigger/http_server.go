package trigger

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/core"
	"go.uber.org/zap"
)

// Runner is what the trigger needs from the matching service
type Runner interface {
	Run(ctx context.Context) (*core.RunResult, error)
	History(ctx context.Context, profileID string, limit int) ([]core.MatchSummary, error)
}

// HTTPTrigger exposes the matching run as a bearer-protected cron endpoint
type HTTPTrigger struct {
	cfg          config.ServerConfig
	runner       Runner
	historyLimit int
	metrics      http.Handler
	logger       *zap.Logger
	server       *http.Server
}

// NewHTTPTrigger creates a new HTTP trigger; metrics may be nil
func NewHTTPTrigger(cfg config.ServerConfig, runner Runner, historyLimit int, metrics http.Handler, logger *zap.Logger) *HTTPTrigger {
	return &HTTPTrigger{
		cfg:          cfg,
		runner:       runner,
		historyLimit: historyLimit,
		metrics:      metrics,
		logger:       logger,
	}
}

// runResponse is the body of a completed run
type runResponse struct {
	Success        bool     `json:"success"`
	MatchesCreated int      `json:"matchesCreated"`
	EmailsSent     int      `json:"emailsSent"`
	Errors         []string `json:"errors,omitempty"`
	Message        string   `json:"message,omitempty"`
	RunID          string   `json:"runId,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type matchResponse struct {
	PairID    string    `json:"pairId"`
	RunID     string    `json:"runId"`
	MatchedAt time.Time `json:"matchedAt"`
	Partner   partner   `json:"partner"`
}

type partner struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	AvatarPath string          `json:"avatarPath,omitempty"`
	Gender     core.Gender     `json:"gender,omitempty"`
	AgeRange   core.AgeRange   `json:"ageRange,omitempty"`
	Interests  []core.Interest `json:"interests"`
}

// Handler builds the router
func (t *HTTPTrigger) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if t.metrics != nil {
		r.Handle("/metrics", t.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if t.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(t.cfg.RateLimit, time.Minute))
		}
		r.Use(t.requireBearer)

		r.Get("/cron/match", t.handleMatch)
		r.Post("/cron/match", t.handleMatch)
		r.Get("/profiles/{id}/matches", t.handleMatches)
	})

	return r
}

// requireBearer rejects requests without the cron secret. An unset secret
// rejects everything.
func (t *HTTPTrigger) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || t.cfg.CronSecret == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(t.cfg.CronSecret)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTrigger) handleMatch(w http.ResponseWriter, r *http.Request) {
	// A dropped cron connection must not abort a run halfway through its notifications
	result, err := t.runner.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrRunInProgress) {
			status = http.StatusConflict
		}
		t.logger.Error("Matching run failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Success:        true,
		MatchesCreated: result.PairsCreated,
		EmailsSent:     result.NotificationsSent,
		Errors:         result.Errors,
		Message:        result.Message,
		RunID:          result.RunID,
	})
}

func (t *HTTPTrigger) handleMatches(w http.ResponseWriter, r *http.Request) {
	limit := t.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, t.historyLimit)
	}

	matches, err := t.runner.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		t.logger.Error("Failed to list matches", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	out := make([]matchResponse, len(matches))
	for i, m := range matches {
		interests := m.Partner.SelfInterests
		if interests == nil {
			interests = []core.Interest{}
		}
		out[i] = matchResponse{
			PairID:    m.PairID,
			RunID:     m.RunID,
			MatchedAt: m.MatchedAt,
			Partner: partner{
				ID:         m.Partner.ID,
				Name:       m.Partner.Name,
				AvatarPath: m.Partner.AvatarPath,
				Gender:     m.Partner.SelfGender,
				AgeRange:   m.Partner.SelfAgeRange,
				Interests:  interests,
			},
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start binds the listen address and serves in the background
func (t *HTTPTrigger) Start() error {
	l, err := net.Listen("tcp", t.cfg.ListenAddress)
	if err != nil {
		return err
	}

	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       t.cfg.ReadTimeout,
		WriteTimeout:      t.cfg.WriteTimeout,
	}

	t.logger.Info("Starting HTTP trigger", zap.String("address", l.Addr().String()))
	go func() {
		if err := t.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("HTTP trigger error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down, waiting for in-flight runs
func (t *HTTPTrigger) Stop() error {
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout())
	defer cancel()
	return t.server.Shutdown(ctx)
}

func (t *HTTPTrigger) shutdownTimeout() time.Duration {
	if t.cfg.WriteTimeout > 0 {
		return t.cfg.WriteTimeout
	}
	return 30 * time.Second
}
