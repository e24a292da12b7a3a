package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartpasal/pos-ledger/reconcile"
)

// =============================================================================
// SYNC HANDLERS
// =============================================================================

// SyncUpload merges a device upload into the shop.
// POST /api/shops/{shopId}/sync/upload
func (h *Handler) SyncUpload(w http.ResponseWriter, r *http.Request) {
	// Devices post the entity groups at the top level of the body.
	var payload reconcile.Payload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.Sync.PushUpstream(r.Context(), chi.URLParam(r, "shopId"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// SyncDownload returns everything changed after lastSyncTimestamp, or
// everything when it is absent.
// GET /api/shops/{shopId}/sync/download?lastSyncTimestamp=
func (h *Handler) SyncDownload(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("lastSyncTimestamp"); v != "" {
		t, err := parseTime(v, "lastSyncTimestamp")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		since = t
	}

	snap, err := h.Sync.PullDownstream(r.Context(), chi.URLParam(r, "shopId"), since)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// SyncTimestamp returns the newest change in the shop.
// GET /api/shops/{shopId}/sync/timestamp
func (h *Handler) SyncTimestamp(w http.ResponseWriter, r *http.Request) {
	latest, err := h.Sync.LatestTimestamp(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var dto SyncTimestampDTO
	if !latest.IsZero() {
		dto.LastSyncTimestamp = &latest
	}
	writeData(w, http.StatusOK, dto)
}
