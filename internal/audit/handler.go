package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flavalia/avalia/internal/platform/database"
)

// Handler serves the administrator audit query endpoint.
type Handler struct {
	db    database.Querier
	store *Store
}

func NewHandler(db database.Querier, store *Store) *Handler {
	return &Handler{db: db, store: store}
}

// HandleListEvents returns audit events, newest first.
// GET /api/v1/audit/events?limit=50&action=&resource_type=&resource_id=&actor_id=&source=&after=&before=
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ListEventsParams{Limit: 50}

	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			params.Limit = n
		}
	}

	for key, dst := range map[string]**string{
		"action":        &params.Action,
		"resource_type": &params.ResourceType,
		"source":        &params.Source,
	} {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}

	for key, dst := range map[string]**int64{
		"actor_id":    &params.ActorID,
		"resource_id": &params.ResourceID,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + key})
			return
		}
		*dst = &n
	}

	for key, dst := range map[string]**time.Time{
		"after":  &params.After,
		"before": &params.Before,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + key})
			return
		}
		*dst = &t
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}

	events, err := h.store.List(r.Context(), h.db, params)
	if err != nil {
		slog.ErrorContext(r.Context(), "listing audit events failed", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
