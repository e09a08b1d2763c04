package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/rbac"
)

// UserHandler handles principal management endpoints.
type UserHandler struct {
	pool     *database.Pool
	store    *UserStore
	hasher   auth.Hasher
	engine   *rbac.Evaluator
	auditLog audit.Logger
}

func NewUserHandler(pool *database.Pool, store *UserStore, hasher auth.Hasher, engine *rbac.Evaluator, auditLog audit.Logger) *UserHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &UserHandler{pool: pool, store: store, hasher: hasher, engine: engine, auditLog: auditLog}
}

// RegisterRoutes registers the principal routes on an authenticated mux.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	principals := func(*http.Request) rbac.Resource { return rbac.PrincipalRef{} }

	mux.Handle("POST /api/v1/users",
		rbac.RequireAction(h.engine, rbac.ActionCreate, principals)(http.HandlerFunc(h.HandleCreate)))
	mux.Handle("GET /api/v1/users",
		rbac.RequireAction(h.engine, rbac.ActionList, principals)(http.HandlerFunc(h.HandleList)))
	mux.HandleFunc("GET /api/v1/users/{id}", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/users/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/users/{id}", h.HandleDelete)
}

// HandleCreate creates a teacher account.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req NewTeacher
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err, "teacher creation failed")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeError(w, r, fmt.Errorf("hashing password: %w", err), "teacher creation failed")
		return
	}

	p, err := h.store.Create(r.Context(), h.pool, req.DisplayName, req.LoginName, req.Email, hash, auth.RoleTeacher)
	if err != nil {
		writeError(w, r, err, "teacher creation failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionPrincipalCreated, "principal", p.ID,
		map[string]any{audit.MetadataLoginName: p.LoginName}))

	writeJSON(w, http.StatusCreated, Teacher{Principal: *p, Subjects: []SubjectSummary{}})
}

// HandleList returns all teachers with their subjects.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.store.ListTeachers(r.Context(), h.pool)
	if err != nil {
		writeError(w, r, err, "listing teachers failed")
		return
	}
	writeJSON(w, http.StatusOK, teachers)
}

// HandleGet returns one principal. Teachers may only fetch themselves.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	caller, ok := callerPrincipal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.engine.Check(r.Context(), caller, rbac.ActionRead, rbac.PrincipalRef{ID: id}); err != nil {
		rbac.WriteError(w, err)
		return
	}

	p, err := h.store.GetByID(r.Context(), h.pool, id)
	if err != nil {
		writeError(w, r, err, "fetching user failed")
		return
	}
	subjects, err := h.store.SubjectsOf(r.Context(), h.pool, id)
	if err != nil {
		writeError(w, r, err, "fetching user failed")
		return
	}

	writeJSON(w, http.StatusOK, Teacher{Principal: *p, Subjects: subjects})
}

// HandleUpdate changes name, email, password or the active flag.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	caller, ok := callerPrincipal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.engine.Check(r.Context(), caller, rbac.ActionUpdate, rbac.PrincipalRef{ID: id}); err != nil {
		rbac.WriteError(w, err)
		return
	}

	var req PrincipalUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err, "updating user failed")
		return
	}

	var hash string
	if req.Password != "" {
		var err error
		if hash, err = h.hasher.Hash(req.Password); err != nil {
			writeError(w, r, fmt.Errorf("hashing password: %w", err), "updating user failed")
			return
		}
	}

	p, err := h.store.Update(r.Context(), h.pool, id, req, hash)
	if err != nil {
		writeError(w, r, err, "updating user failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionPrincipalUpdated, "principal", p.ID, nil))
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete removes a teacher. Administrators cannot be deleted.
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	caller, ok := callerPrincipal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	target, err := h.store.GetByID(r.Context(), h.pool, id)
	if err != nil {
		writeError(w, r, err, "deleting user failed")
		return
	}
	if err := h.engine.Check(r.Context(), caller, rbac.ActionDelete, rbac.PrincipalRef{ID: target.ID, Role: target.Role}); err != nil {
		rbac.WriteError(w, err)
		return
	}

	err = database.WithTx(r.Context(), h.pool, func(ctx context.Context, q database.Querier) error {
		return h.store.Delete(ctx, q, id)
	})
	if err != nil {
		writeError(w, r, err, "deleting user failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionPrincipalDeleted, "principal", id,
		map[string]any{audit.MetadataLoginName: target.LoginName}))
	w.WriteHeader(http.StatusNoContent)
}
