package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Bacorsx/EcoEnergy-IC/internal/crypto"
	"github.com/Bacorsx/EcoEnergy-IC/internal/dashboard"
	"github.com/Bacorsx/EcoEnergy-IC/internal/historian"
	"github.com/Bacorsx/EcoEnergy-IC/internal/ingest"
	"github.com/Bacorsx/EcoEnergy-IC/internal/rules"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

// Repository is the read and write surface the handlers need outside the
// ingestion path.
type Repository interface {
	ListMeasurements(ctx context.Context, productID string, limit int) ([]storage.Measurement, error)
	ListEvents(ctx context.Context, filter storage.EventFilter) ([]storage.EventView, error)
	CountEvents(ctx context.Context, filter storage.EventFilter) (int, error)
	GetEventView(ctx context.Context, id string) (storage.EventView, error)
	ResolveEvent(ctx context.Context, id string) (storage.AlertEvent, bool, error)
	ResolveEvents(ctx context.Context, ids []string) ([]storage.ResolvedEvent, error)
	GetProduct(ctx context.Context, id string) (storage.Product, error)
	GetProductIncludingDeleted(ctx context.Context, id string) (storage.Product, error)
	ListRules(ctx context.Context, productID string) ([]storage.Rule, error)
	ListRulesIncludingDeleted(ctx context.Context, productID string) ([]storage.Rule, error)
	CreateRule(ctx context.Context, rec storage.Rule) (storage.Rule, error)
	UpdateRule(ctx context.Context, id string, rec storage.Rule) (storage.Rule, error)
	GetRule(ctx context.Context, id string) (storage.Rule, error)
	SoftDelete(ctx context.Context, entity storage.Entity, id string) error
	Restore(ctx context.Context, entity storage.Entity, id string) error
	CreateHistorian(ctx context.Context, h storage.Historian) (string, error)
	GetHistorian(ctx context.Context, id string) (storage.Historian, error)
	ListHistorians(ctx context.Context) ([]storage.Historian, error)
}

type Ingestor interface {
	CreateMeasurement(ctx context.Context, in storage.NewMeasurement) (ingest.Result, error)
	Reevaluate(ctx context.Context, measurementID string) ([]storage.AlertEvent, error)
}

type Dashboard interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
	ProductDetail(ctx context.Context, productID string) (dashboard.ProductDetail, error)
	Invalidate(ctx context.Context, productID string) error
}

// ConnectFunc opens a historian connection. historian.New in production.
type ConnectFunc func(cfg historian.Config) (historian.Connector, error)

type Handler struct {
	Repo      Repository
	Ingest    Ingestor
	Dashboard Dashboard
	Encryptor crypto.Encryptor
	Connect   ConnectFunc
	Ping      func(ctx context.Context) error
	Timeout   time.Duration
	Logger    zerolog.Logger
}

type errorResponse struct {
	Ok      bool                `json:"ok"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details []rules.ErrorDetail `json:"details"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/dashboard", h.handleDashboard)
	r.Route("/measurements", func(r chi.Router) {
		r.Post("/", h.handleMeasurementCreate)
		r.Get("/", h.handleMeasurementList)
		r.Post("/{id}/evaluate", h.handleMeasurementEvaluate)
	})
	r.Route("/alerts/events", func(r chi.Router) {
		r.Get("/", h.handleEventList)
		r.Post("/resolve", h.handleEventResolveMany)
		r.Get("/{id}", h.handleEventGet)
		r.Post("/{id}/resolve", h.handleEventResolve)
	})
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/alerts", h.handleProductAlerts)
		r.Get("/rules", h.handleRuleList)
		r.Post("/rules", h.handleRuleCreate)
	})
	r.Post("/rules/validate", h.handleRulesValidate)
	r.Put("/rules/{id}", h.handleRuleUpdate)
	r.Delete("/rules/{id}", h.handleRuleDelete)
	r.Post("/rules/{id}/restore", h.handleRuleRestore)
	r.Route("/historians", func(r chi.Router) {
		r.Post("/", h.handleHistorianCreate)
		r.Get("/", h.handleHistorianList)
		r.Post("/{id}/test", h.handleHistorianTest)
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.Timeout)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := h.context(r)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			writeFailure(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	summary, err := h.Dashboard.Summary(ctx)
	if err != nil {
		h.writeError(w, r, err, "failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeError maps storage sentinels to status codes. Anything unknown is
// logged with the request logger and reported as fallback.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, storage.ErrInvalidMeasurement):
		writeFailure(w, http.StatusBadRequest, "INVALID_MEASUREMENT", err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeFailure(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeFailure(w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
	default:
		log := zerolog.Ctx(r.Context())
		if log.GetLevel() == zerolog.Disabled {
			log = &h.Logger
		}
		log.Error().Err(err).Msg(fallback)
		writeFailure(w, http.StatusInternalServerError, "INTERNAL", fallback)
	}
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: message, Details: []rules.ErrorDetail{}})
}

func writeValidationError(w http.ResponseWriter, verr *rules.ValidationError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Ok:      false,
		Code:    verr.Code,
		Message: verr.Message,
		Details: verr.Details,
	})
}

// pathID reads a UUID path parameter and answers 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+name)
		return "", false
	}
	return id.String(), true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return v, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
