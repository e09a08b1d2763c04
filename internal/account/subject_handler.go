package account

import (
	"encoding/json"
	"net/http"

	"github.com/flavalia/avalia/internal/audit"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/rbac"
)

// SubjectHandler handles subject management and teacher association.
type SubjectHandler struct {
	db       database.Querier
	store    *SubjectStore
	users    *UserStore
	engine   *rbac.Evaluator
	auditLog audit.Logger
}

func NewSubjectHandler(db database.Querier, store *SubjectStore, users *UserStore, engine *rbac.Evaluator, auditLog audit.Logger) *SubjectHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &SubjectHandler{db: db, store: store, users: users, engine: engine, auditLog: auditLog}
}

// RegisterRoutes registers the subject routes on an authenticated mux.
func (h *SubjectHandler) RegisterRoutes(mux *http.ServeMux) {
	subject := func(r *http.Request) rbac.Resource {
		id, _ := pathID(r, "id")
		return rbac.SubjectRef{ID: id}
	}
	guard := func(action rbac.Action, next http.HandlerFunc) http.Handler {
		return rbac.RequireAction(h.engine, action, subject)(next)
	}

	mux.Handle("GET /api/v1/subjects", guard(rbac.ActionList, h.HandleList))
	mux.Handle("POST /api/v1/subjects", guard(rbac.ActionCreate, h.HandleCreate))
	mux.Handle("GET /api/v1/subjects/{id}", guard(rbac.ActionRead, h.HandleGet))
	mux.Handle("PUT /api/v1/subjects/{id}", guard(rbac.ActionUpdate, h.HandleUpdate))
	mux.Handle("DELETE /api/v1/subjects/{id}", guard(rbac.ActionDelete, h.HandleDelete))
	mux.HandleFunc("POST /api/v1/subjects/{id}/teachers/{teacherId}", h.HandleAssociate)
	mux.HandleFunc("DELETE /api/v1/subjects/{id}/teachers/{teacherId}", h.HandleDisassociate)
}

// HandleList returns all subjects to administrators and the active ones
// to teachers. Teacher rosters are left out for teachers.
func (h *SubjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	isAdmin := auth.GetIdentity(r.Context()).IsAdmin()
	subjects, err := h.store.List(r.Context(), h.db, !isAdmin)
	if err != nil {
		writeError(w, r, err, "listing subjects failed")
		return
	}
	if !isAdmin {
		for i := range subjects {
			subjects[i].Teachers = nil
		}
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *SubjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req SubjectInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err, "subject creation failed")
		return
	}

	sub, err := h.store.Create(r.Context(), h.db, req)
	if err != nil {
		writeError(w, r, err, "subject creation failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionSubjectCreated, "subject", sub.ID, nil))
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subject id"})
		return
	}

	sub, err := h.store.GetByID(r.Context(), h.db, id)
	if err != nil {
		writeError(w, r, err, "fetching subject failed")
		return
	}
	if !auth.GetIdentity(r.Context()).IsAdmin() {
		sub.Teachers = nil
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubjectHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subject id"})
		return
	}

	var req SubjectInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err, "updating subject failed")
		return
	}

	sub, err := h.store.Update(r.Context(), h.db, id, req)
	if err != nil {
		writeError(w, r, err, "updating subject failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionSubjectUpdated, "subject", sub.ID, nil))
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subject id"})
		return
	}

	if err := h.store.Delete(r.Context(), h.db, id); err != nil {
		writeError(w, r, err, "deleting subject failed")
		return
	}

	h.auditLog.Log(r.Context(), audit.Record(r.Context(), audit.ActionSubjectDeleted, "subject", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// HandleAssociate links a teacher to a subject. Repeating it is a no-op.
func (h *SubjectHandler) HandleAssociate(w http.ResponseWriter, r *http.Request) {
	h.handleTeaching(w, r, rbac.ActionAssociate)
}

func (h *SubjectHandler) HandleDisassociate(w http.ResponseWriter, r *http.Request) {
	h.handleTeaching(w, r, rbac.ActionDisassociate)
}

func (h *SubjectHandler) handleTeaching(w http.ResponseWriter, r *http.Request, action rbac.Action) {
	subjectID, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subject id"})
		return
	}
	teacherID, ok := pathID(r, "teacherId")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid teacher id"})
		return
	}
	caller, ok := callerPrincipal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if _, err := h.store.GetByID(r.Context(), h.db, subjectID); err != nil {
		writeError(w, r, err, "updating subject teachers failed")
		return
	}
	teacher, err := h.users.GetByID(r.Context(), h.db, teacherID)
	if err != nil {
		writeError(w, r, err, "updating subject teachers failed")
		return
	}

	ref := rbac.TeachingRef{SubjectID: subjectID, TeacherID: teacherID, TeacherRole: teacher.Role}
	if err := h.engine.Check(r.Context(), caller, action, ref); err != nil {
		rbac.WriteError(w, err)
		return
	}

	var changed bool
	event := audit.ActionTeacherAssociated
	if action == rbac.ActionAssociate {
		changed, err = h.store.Associate(r.Context(), h.db, subjectID, teacherID)
	} else {
		event = audit.ActionTeacherDisassociated
		changed, err = h.store.Disassociate(r.Context(), h.db, subjectID, teacherID)
	}
	if err != nil {
		writeError(w, r, err, "updating subject teachers failed")
		return
	}

	if changed {
		h.auditLog.Log(r.Context(), audit.Record(r.Context(), event, "teaching", subjectID,
			map[string]any{audit.MetadataTeacherID: teacherID}))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "changed": changed})
}
