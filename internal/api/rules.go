package api

import (
	"net/http"
	"strconv"

	"github.com/Bacorsx/EcoEnergy-IC/internal/rules"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

func (h *Handler) handleRulesValidate(w http.ResponseWriter, r *http.Request) {
	var req rules.RuleInput
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	in, verr := rules.Validate(req)
	if verr != nil {
		writeValidationError(w, verr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "rule": in})
}

// handleRuleList answers the active rules. includeDeleted=true is the audit
// view: soft-deleted rules of a product that may itself be soft-deleted.
func (h *Handler) handleRuleList(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	includeDeleted, err := strconv.ParseBool(r.URL.Query().Get("includeDeleted"))
	if err != nil && r.URL.Query().Get("includeDeleted") != "" {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "includeDeleted must be a boolean")
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	var list []storage.Rule
	if includeDeleted {
		if _, err = h.Repo.GetProductIncludingDeleted(ctx, productID); err == nil {
			list, err = h.Repo.ListRulesIncludingDeleted(ctx, productID)
		}
	} else {
		list, err = h.Repo.ListRules(ctx, productID)
	}
	if err != nil {
		h.writeError(w, r, err, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rules.RuleInput
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	in, verr := rules.Validate(req)
	if verr != nil {
		writeValidationError(w, verr)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if _, err := h.Repo.GetProduct(ctx, productID); err != nil {
		h.writeError(w, r, err, "failed to load product")
		return
	}
	rule, err := h.Repo.CreateRule(ctx, in.Rule(productID))
	if err != nil {
		h.writeError(w, r, err, "failed to persist rule")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleRuleUpdate edits a band in place. Events already raised by the rule
// keep pointing at it and show the new severity and message.
func (h *Handler) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rules.RuleInput
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	in, verr := rules.Validate(req)
	if verr != nil {
		writeValidationError(w, verr)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	rule, err := h.Repo.UpdateRule(ctx, id, in.Rule(""))
	if err != nil {
		h.writeError(w, r, err, "failed to update rule")
		return
	}
	h.invalidateProduct(ctx, rule.ProductID)
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleRuleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Repo.Restore(ctx, storage.EntityRule, id); err != nil {
		h.writeError(w, r, err, "failed to restore rule")
		return
	}
	rule, err := h.Repo.GetRule(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to load rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleRuleDelete soft-deletes. Existing events keep pointing at the rule.
func (h *Handler) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.Repo.SoftDelete(ctx, storage.EntityRule, id); err != nil {
		h.writeError(w, r, err, "failed to delete rule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
