package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/auth"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/router"
	syncer "github.com/N1K0LAAAA/ImsBridgeServer/internal/sync"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/member"
)

// adminAPI implements the administrative operations: key lifecycle,
// forced resync and occupancy stats. Every key mutation rewrites the
// snapshot, reloads the credential store, and only then enforces
// disconnects, so a racing handshake can never authenticate against a
// key that is about to disappear.
type adminAPI struct {
	logger *slog.Logger
	store  *member.Store
	keys   *auth.KeyStore
	router *router.Router
	sync   *syncer.Synchronizer
}

type playerRequest struct {
	Player string `json:"player"`
}

func (a *adminAPI) register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/revoke", wrap(http.HandlerFunc(a.handleRevoke)))
	mux.Handle("POST /admin/restore", wrap(http.HandlerFunc(a.handleRestore)))
	mux.Handle("POST /admin/reset-key", wrap(http.HandlerFunc(a.handleResetKey)))
	mux.Handle("GET /admin/key", wrap(http.HandlerFunc(a.handleKey)))
	mux.Handle("POST /admin/sync", wrap(http.HandlerFunc(a.handleSync)))
	mux.Handle("GET /admin/stats", wrap(http.HandlerFunc(a.handleStats)))
}

func (a *adminAPI) handleRevoke(w http.ResponseWriter, r *http.Request) {
	player, ok := a.decodePlayer(w, r)
	if !ok {
		return
	}

	rec, err := a.store.RevokeKey(player)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.reloadKeys(); err != nil {
		a.writeError(w, err)
		return
	}
	disconnected := a.router.DisconnectPlayer(rec.PlayerName)

	a.logger.Info("Bridge access revoked",
		slog.String("player", rec.PlayerName),
		slog.Bool("disconnected", disconnected),
	)
	a.writeJSON(w, http.StatusOK, map[string]any{
		"player":         rec.PlayerName,
		"guild":          rec.Guild,
		"linked_contact": rec.LinkedContact,
		"disconnected":   disconnected,
	})
}

func (a *adminAPI) handleRestore(w http.ResponseWriter, r *http.Request) {
	player, ok := a.decodePlayer(w, r)
	if !ok {
		return
	}

	rec, err := a.store.RestoreKey(player)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.reloadKeys(); err != nil {
		a.writeError(w, err)
		return
	}

	a.logger.Info("Bridge access restored", slog.String("player", rec.PlayerName))
	a.writeJSON(w, http.StatusOK, map[string]any{
		"player":         rec.PlayerName,
		"guild":          rec.Guild,
		"linked_contact": rec.LinkedContact,
		"bridge_key":     rec.BridgeKey,
	})
}

func (a *adminAPI) handleResetKey(w http.ResponseWriter, r *http.Request) {
	player, ok := a.decodePlayer(w, r)
	if !ok {
		return
	}

	rec, err := a.store.ResetKey(player)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.reloadKeys(); err != nil {
		a.writeError(w, err)
		return
	}

	a.logger.Info("Bridge key reset", slog.String("player", rec.PlayerName))
	a.writeJSON(w, http.StatusOK, map[string]any{
		"player":     rec.PlayerName,
		"bridge_key": rec.BridgeKey,
	})
}

func (a *adminAPI) handleKey(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if player == "" {
		http.Error(w, "missing player parameter", http.StatusBadRequest)
		return
	}

	rec, err := a.store.FindByPlayer(player)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if rec.BridgeKey == "" {
		a.writeError(w, member.ErrNoActiveKey)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"player":     rec.PlayerName,
		"bridge_key": rec.BridgeKey,
	})
}

func (a *adminAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	summary, err := a.sync.Synchronize(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *adminAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"total_connected": a.router.Count(),
		"by_guild":        a.router.CountByGuild(),
	})
}

func (a *adminAPI) decodePlayer(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Player == "" {
		http.Error(w, "body must be {\"player\": ...}", http.StatusBadRequest)
		return "", false
	}
	return req.Player, true
}

// reloadKeys refreshes the credential store from the snapshot after a
// mutation.
func (a *adminAPI) reloadKeys() error {
	records, err := a.store.Load()
	if err != nil {
		return err
	}
	a.keys.Reload(records)
	return nil
}

func (a *adminAPI) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Failed to encode admin response", slog.Any("error", err))
	}
}

// writeError maps member-store errors onto HTTP statuses. Persistence
// failures surface as 500s with the error text: a failed write leaves
// stale keys live, which the operator must see.
func (a *adminAPI) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, member.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, member.ErrNoActiveKey), errors.Is(err, member.ErrKeyExists):
		status = http.StatusConflict
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
