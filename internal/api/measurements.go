package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Bacorsx/EcoEnergy-IC/internal/bus"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

const defaultMeasurementLimit = 10

type measurementRequest struct {
	ProductID  *string    `json:"productId"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	MeasuredAt *time.Time `json:"measuredAt"`
}

func (h *Handler) handleMeasurementCreate(w http.ResponseWriter, r *http.Request) {
	var req measurementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	in, err := bus.MeasurementMessage{
		ProductID:  req.ProductID,
		Value:      req.Value,
		Unit:       req.Unit,
		MeasuredAt: req.MeasuredAt,
	}.ToNewMeasurement(time.Now().UTC())
	if err != nil {
		code := "BAD_REQUEST"
		if errors.Is(err, storage.ErrInvalidMeasurement) {
			code = "INVALID_MEASUREMENT"
		}
		writeFailure(w, http.StatusBadRequest, code, err.Error())
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	res, err := h.Ingest.CreateMeasurement(ctx, in)
	if err != nil {
		h.writeError(w, r, err, "failed to record measurement")
		return
	}
	if res.Events == nil {
		res.Events = []storage.AlertEvent{}
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleMeasurementList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultMeasurementLimit)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	productID := r.URL.Query().Get("product")
	if productID != "" {
		if _, err := uuid.Parse(productID); err != nil {
			writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product")
			return
		}
	}
	ctx, cancel := h.context(r)
	defer cancel()
	list, err := h.Repo.ListMeasurements(ctx, productID, limit)
	if err != nil {
		h.writeError(w, r, err, "failed to list measurements")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleMeasurementEvaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	events, err := h.Ingest.Reevaluate(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to evaluate measurement")
		return
	}
	if events == nil {
		events = []storage.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "events": events})
}
