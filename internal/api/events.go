package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Bacorsx/EcoEnergy-IC/internal/metrics"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

const defaultEventLimit = 50

func (h *Handler) handleEventList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter storage.EventFilter
	switch q.Get("status") {
	case "", "all":
	case "unresolved":
		resolved := false
		filter.Resolved = &resolved
	case "resolved":
		resolved := true
		filter.Resolved = &resolved
	default:
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "status must be unresolved, resolved or all")
		return
	}
	if raw := q.Get("severity"); raw != "" {
		sev, ok := storage.ParseSeverity(raw)
		if !ok {
			writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "severity must be MEDIUM, HIGH or CRITICAL")
			return
		}
		filter.Severity = sev
	}
	if product := q.Get("product"); product != "" {
		if _, err := uuid.Parse(product); err != nil {
			writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product")
			return
		}
		filter.ProductID = product
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", defaultEventLimit); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	events, err := h.Repo.ListEvents(ctx, filter)
	if err != nil {
		h.writeError(w, r, err, "failed to list alert events")
		return
	}
	total, err := h.Repo.CountEvents(ctx, filter)
	if err != nil {
		h.writeError(w, r, err, "failed to count alert events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "total": total})
}

func (h *Handler) handleEventGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	event, err := h.Repo.GetEventView(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to load alert event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// handleEventResolve is idempotent: resolving a resolved event answers 200
// with alreadyResolved set and leaves resolved_at untouched.
func (h *Handler) handleEventResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	_, changed, err := h.Repo.ResolveEvent(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to resolve alert event")
		return
	}
	view, err := h.Repo.GetEventView(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to load alert event")
		return
	}
	if changed {
		metrics.EventsResolved.Inc()
		h.invalidateProduct(ctx, view.ProductID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "event": view, "alreadyResolved": !changed})
}

const maxBulkResolve = 500

type resolveManyRequest struct {
	IDs []string `json:"ids"`
}

// handleEventResolveMany resolves a batch of events. Ids that are unknown or
// already resolved are counted as skipped.
func (h *Handler) handleEventResolveMany(w http.ResponseWriter, r *http.Request) {
	var req resolveManyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxBulkResolve {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("ids must hold 1 to %d event ids", maxBulkResolve))
		return
	}
	seen := make(map[string]struct{}, len(req.IDs))
	ids := make([]string, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "invalid event id "+raw)
			return
		}
		if _, dup := seen[id.String()]; dup {
			continue
		}
		seen[id.String()] = struct{}{}
		ids = append(ids, id.String())
	}
	ctx, cancel := h.context(r)
	defer cancel()
	resolved, err := h.Repo.ResolveEvents(ctx, ids)
	if err != nil {
		h.writeError(w, r, err, "failed to resolve alert events")
		return
	}
	metrics.EventsResolved.Add(float64(len(resolved)))
	products := map[string]struct{}{}
	out := make([]string, 0, len(resolved))
	for _, ev := range resolved {
		out = append(out, ev.ID)
		if _, done := products[ev.ProductID]; done {
			continue
		}
		products[ev.ProductID] = struct{}{}
		h.invalidateProduct(ctx, ev.ProductID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "resolved": out, "skipped": len(ids) - len(resolved)})
}

func (h *Handler) invalidateProduct(ctx context.Context, productID string) {
	if h.Dashboard == nil {
		return
	}
	if err := h.Dashboard.Invalidate(ctx, productID); err != nil {
		h.Logger.Warn().Err(err).Str("product_id", productID).Msg("cache invalidation failed")
	}
}

func (h *Handler) handleProductAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	detail, err := h.Dashboard.ProductDetail(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to load product alerts")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
