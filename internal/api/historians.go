package api

import (
	"net/http"
	"strings"

	"github.com/Bacorsx/EcoEnergy-IC/internal/historian"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type historianRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

func (h *Handler) handleHistorianCreate(w http.ResponseWriter, r *http.Request) {
	var req historianRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	typ, err := historian.NormalizeType(req.Type)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Host) == "" {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", "name and host are required")
		return
	}
	if h.Encryptor == nil {
		writeFailure(w, http.StatusServiceUnavailable, "UNAVAILABLE", "ENCRYPTION_KEY is not configured")
		return
	}
	cipherText, err := h.Encryptor.Encrypt(req.Password)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "INTERNAL", "encryption failed")
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	id, err := h.Repo.CreateHistorian(ctx, storage.Historian{
		Name:     strings.TrimSpace(req.Name),
		Type:     typ,
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		User:     req.User,
		Password: cipherText,
		Database: req.Database,
		SSLMode:  req.SSLMode,
	})
	if err != nil {
		h.writeError(w, r, err, "failed to store historian")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"historianRef": id})
}

func (h *Handler) handleHistorianList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	list, err := h.Repo.ListHistorians(ctx)
	if err != nil {
		h.writeError(w, r, err, "failed to list historians")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleHistorianTest opens the stored connection and pings it. A failed
// ping is reported in the body with 502.
func (h *Handler) handleHistorianTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	rec, err := h.Repo.GetHistorian(ctx, id)
	if err != nil {
		h.writeError(w, r, err, "failed to load historian")
		return
	}
	if h.Encryptor == nil {
		writeFailure(w, http.StatusServiceUnavailable, "UNAVAILABLE", "ENCRYPTION_KEY is not configured")
		return
	}
	password, err := h.Encryptor.Decrypt(rec.Password)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "INTERNAL", "decryption failed")
		return
	}
	connect := h.Connect
	if connect == nil {
		connect = historian.New
	}
	conn, err := connect(HistorianConfig(rec, password))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	defer conn.Close()
	if err := conn.TestConnection(ctx); err != nil {
		h.Logger.Warn().Err(err).Str("historian_id", id).Msg("historian connection test failed")
		writeFailure(w, http.StatusBadGateway, "UPSTREAM_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HistorianConfig builds a connector config from a stored registration and
// its decrypted password.
func HistorianConfig(rec storage.Historian, password string) historian.Config {
	return historian.Config{
		Type:     rec.Type,
		Host:     rec.Host,
		Port:     rec.Port,
		User:     rec.User,
		Password: password,
		Database: rec.Database,
		SSLMode:  rec.SSLMode,
	}
}
