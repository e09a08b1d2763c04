package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/rbac"
)

// Handler serves the exam endpoints. Teachers work on their own exams and
// may only pick questions visible to them.
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

// RegisterRoutes registers exam routes on an authenticated mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/exams", h.HandleList)
	mux.HandleFunc("POST /api/v1/exams", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/exams/{id}", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/exams/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/exams/{id}", h.HandleDelete)
}

// HandleList returns all exams to administrators and their own to
// teachers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	p := rbac.FromIdentity(identity)
	if err := h.engine.Check(r.Context(), p, rbac.ActionList, rbac.ExamRef{}); err != nil {
		rbac.WriteError(w, err)
		return
	}

	exams, err := h.store.List(r.Context(), h.pool, rbac.ExamScope(p))
	if err != nil {
		writeError(w, r, err, "listing exams failed")
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

// HandleCreate creates an exam. Exams created by an administrator have no
// creator.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err, "exam creation failed")
		return
	}

	var creatorID *int64
	if !identity.IsAdmin() {
		id := identity.UserID
		creatorID = &id
	}
	if err := h.engine.Check(r.Context(), rbac.FromIdentity(identity), rbac.ActionCreate, rbac.ExamRef{CreatorID: creatorID}); err != nil {
		rbac.WriteError(w, err)
		return
	}
	if err := h.requireVisible(r.Context(), identity, in.QuestionIDs); err != nil {
		writeError(w, r, err, "exam creation failed")
		return
	}

	var created *Exam
	err := database.WithTx(r.Context(), h.pool, func(ctx context.Context, q database.Querier) error {
		var err error
		created, err = h.store.Create(ctx, q, in, creatorID)
		return err
	})
	if err != nil {
		writeError(w, r, err, "exam creation failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionExamCreated, "exam", created.ID,
		map[string]any{"questions": len(created.QuestionIDs)}))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), rbac.FromIdentity(identity), rbac.ActionRead, e.Ref()); err != nil {
		rbac.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	existing, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), rbac.FromIdentity(identity), rbac.ActionUpdate, existing.Ref()); err != nil {
		rbac.WriteError(w, err)
		return
	}

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err, "updating exam failed")
		return
	}
	if err := h.requireVisible(r.Context(), identity, in.QuestionIDs); err != nil {
		writeError(w, r, err, "updating exam failed")
		return
	}

	var updated *Exam
	err := database.WithTx(r.Context(), h.pool, func(ctx context.Context, q database.Querier) error {
		var err error
		updated, err = h.store.Update(ctx, q, existing.ID, in)
		return err
	})
	if err != nil {
		writeError(w, r, err, "updating exam failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionExamUpdated, "exam", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	existing, identity, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine.Check(r.Context(), rbac.FromIdentity(identity), rbac.ActionDelete, existing.Ref()); err != nil {
		rbac.WriteError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), h.pool, existing.ID); err != nil {
		writeError(w, r, err, "deleting exam failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionExamDeleted, "exam", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// requireVisible rejects question ids a teacher cannot read. Ids outside
// the caller's view are reported like missing ones.
func (h *Handler) requireVisible(ctx context.Context, identity *auth.Identity, ids []int64) error {
	if identity.IsAdmin() {
		return nil
	}
	visible, err := h.visibility.VisibleQuestions(ctx, identity)
	if err != nil {
		return err
	}
	set := make(map[int64]struct{}, len(visible))
	for _, id := range visible {
		set[id] = struct{}{}
	}
	var missing int
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d of %d", ErrQuestionsMissing, missing, len(ids))
	}
	return nil
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Exam, *auth.Identity, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exam id"})
		return nil, nil, false
	}
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return nil, nil, false
	}

	e, err := h.store.GetByID(r.Context(), h.pool, id)
	if err != nil {
		writeError(w, r, err, "fetching exam failed")
		return nil, nil, false
	}
	return e, identity, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoQuestions):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrQuestionsMissing):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
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
