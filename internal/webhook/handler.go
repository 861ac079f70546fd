// Package webhook exposes the form-submission webhook and its diagnostic
// endpoint over HTTP.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/cors"

	"github.com/shineum/form-mailer/internal/config"
	"github.com/shineum/form-mailer/internal/form"
	"github.com/shineum/form-mailer/internal/notify"
)

// Notifier delivers the notification for one extracted address.
type Notifier interface {
	Dispatch(ctx context.Context, recipient string) notify.Result
}

// Handler serves the webhook endpoints.
type Handler struct {
	cfg      *config.Config
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Handler. A nil logger selects slog.Default().
func New(cfg *config.Config, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, notifier: notifier, log: logger, now: time.Now}
}

// Router returns the HTTP handler with all routes and middleware mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(h.recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Every method reaches formSubmission so that it can answer 405 itself.
	r.HandleFunc("/api/form-submission", h.formSubmission)
	r.HandleFunc("/.netlify/functions/form-submission", h.formSubmission)

	r.Get("/api/test-function", h.testFunction)
	r.Get("/.netlify/functions/test-function", h.testFunction)

	return r
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type sentResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (h *Handler) formSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.With("request_id", middleware.GetReqID(ctx))

	body, err := io.ReadAll(io.LimitReader(r.Body, form.MaxBodyBytes+1))
	if err != nil {
		body = nil
	}

	recipient, err := form.Extract(r.Method, body)
	switch {
	case errors.Is(err, form.ErrMethodNotAllowed):
		log.WarnContext(ctx, "rejected form submission", "method", r.Method, "error", err)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	case errors.Is(err, form.ErrMalformedBody):
		log.WarnContext(ctx, "rejected form submission", "error", err, "size", len(body))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	case errors.Is(err, form.ErrEmailNotFound):
		log.WarnContext(ctx, "rejected form submission", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Email not found in request"})
		return
	case err != nil:
		log.ErrorContext(ctx, "unexpected normalizer error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	log.InfoContext(ctx, "processing form submission", "to", recipient)

	res := h.notifier.Dispatch(ctx, recipient)
	switch res.Kind {
	case notify.Sent:
		writeJSON(w, http.StatusOK, sentResponse{Message: "Email sent successfully", MessageID: res.MessageID})
	case notify.NotConfigured:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Email service not configured"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to send email", Details: res.Reason})
	}
}

type diagnosticEnvironment struct {
	HasEmailHost bool `json:"hasEmailHost"`
	HasEmailUser bool `json:"hasEmailUser"`
	HasEmailPass bool `json:"hasEmailPass"`
	HasSiteURL   bool `json:"hasSiteUrl"`
}

type diagnosticResponse struct {
	Message     string           `json:"message"`
	Timestamp   string           `json:"timestamp"`
	Environment diagnosticEnvironment `json:"environment"`
}

// testFunction reports which settings are present. It never contacts the transport.
func (h *Handler) testFunction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, diagnosticResponse{
		Message:   "Functions are working",
		Timestamp: h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Environment: diagnosticEnvironment{
			HasEmailHost: h.cfg.Email.Host != "",
			HasEmailUser: h.cfg.Email.User != "",
			HasEmailPass: h.cfg.Email.Pass != "",
			HasSiteURL:   h.cfg.Site.URL != "",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
