package question

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/rbac"
)

// Handler serves the question endpoints. Teachers see their own questions
// and those of subjects they teach.
type Handler struct {
	pool       *database.Pool
	store      *Store
	visibility *rbac.Visibility
	engine     *rbac.Evaluator
	auditLog   audit.Logger
}

func NewHandler(pool *database.Pool, store *Store, visibility *rbac.Visibility, engine *rbac.Evaluator, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{pool: pool, store: store, visibility: visibility, engine: engine, auditLog: auditLog}
}

// RegisterRoutes registers question routes on an authenticated mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/questions", h.HandleList)
	mux.HandleFunc("POST /api/v1/questions", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/questions/{id}", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/questions/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/questions/{id}", h.HandleDelete)
}

// HandleList returns every question visible to the caller.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), p, rbac.ActionList, rbac.QuestionRef{}); err != nil {
		rbac.WriteError(w, err)
		return
	}

	questions, err := h.store.List(r.Context(), h.pool, rbac.QuestionScope(p))
	if err != nil {
		writeError(w, r, err, "listing questions failed")
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err, "question creation failed")
		return
	}

	ref := rbac.QuestionRef{CreatorID: p.ID, SubjectName: in.SubjectName}
	if err := h.engine.Check(r.Context(), p, rbac.ActionCreate, ref); err != nil {
		rbac.WriteError(w, err)
		return
	}

	var created *Question
	err := database.WithTx(r.Context(), h.pool, func(ctx context.Context, q database.Querier) error {
		var err error
		created, err = h.store.Create(ctx, q, in, p.ID)
		return err
	})
	if err != nil {
		writeError(w, r, err, "question creation failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionQuestionCreated, "question", created.ID,
		map[string]any{"subject_name": created.SubjectName}))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	question, p, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), p, rbac.ActionRead, question.Ref()); err != nil {
		rbac.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

// HandleUpdate replaces a question. Only its creator may do so.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	existing, p, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), p, rbac.ActionUpdate, existing.Ref()); err != nil {
		rbac.WriteError(w, err)
		return
	}

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err, "updating question failed")
		return
	}

	var updated *Question
	err := database.WithTx(r.Context(), h.pool, func(ctx context.Context, q database.Querier) error {
		var err error
		updated, err = h.store.Update(ctx, q, existing.ID, in)
		return err
	})
	if err != nil {
		writeError(w, r, err, "updating question failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionQuestionUpdated, "question", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete removes a question unless an exam still uses it.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	existing, p, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), p, rbac.ActionDelete, existing.Ref()); err != nil {
		rbac.WriteError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), h.pool, existing.ID); err != nil {
		writeError(w, r, err, "deleting question failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionQuestionDeleted, "question", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// principal resolves the caller, loading a teacher's subjects. It writes
// the error response itself.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, err := h.visibility.Resolve(r.Context(), auth.GetIdentity(r.Context()))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return rbac.Principal{}, false
		}
		writeError(w, r, err, "resolving caller failed")
		return rbac.Principal{}, false
	}
	return p, true
}

// load fetches the question named by the path together with the caller.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Question, rbac.Principal, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid question id"})
		return nil, rbac.Principal{}, false
	}
	p, ok := h.principal(w, r)
	if !ok {
		return nil, rbac.Principal{}, false
	}

	question, err := h.store.GetByID(r.Context(), h.pool, id)
	if err != nil {
		writeError(w, r, err, "fetching question failed")
		return nil, rbac.Principal{}, false
	}
	return question, p, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInUse):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.ErrorContext(r.Context(), fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
