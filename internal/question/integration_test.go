package question_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/flavalia/avalia/internal/account"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/platform/database/databasetest"
	"github.com/flavalia/avalia/internal/question"
	"github.com/flavalia/avalia/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sharingFixture seeds: alice and bob teach Math, carol teaches nothing,
// dave teaches History. Alice owns a Math question, carol a Math one.
type sharingFixture struct {
	pool   *database.Pool
	store  *question.Store
	mux    *http.ServeMux
	admin  *auth.Identity
	alice  *auth.Identity
	bob    *auth.Identity
	carol  *auth.Identity
	dave   *auth.Identity
	aliceQ *question.Question
	carolQ *question.Question
}

func setupSharing(t *testing.T) *sharingFixture {
	t.Helper()
	pool := databasetest.Setup(t)
	ctx := context.Background()

	users := account.NewUserStore()
	subjects := account.NewSubjectStore()

	identity := func(login string, role auth.Role) *auth.Identity {
		p, err := users.Create(ctx, pool, login, login, "", "hash", role)
		require.NoError(t, err)
		return &auth.Identity{UserID: p.ID, LoginName: login, Role: role}
	}
	subject := func(name string, teachers ...*auth.Identity) {
		in := account.SubjectInput{Name: name}
		require.NoError(t, in.Validate())
		s, err := subjects.Create(ctx, pool, in)
		require.NoError(t, err)
		for _, teacher := range teachers {
			_, err := subjects.Associate(ctx, pool, s.ID, teacher.UserID)
			require.NoError(t, err)
		}
	}

	f := &sharingFixture{
		pool:  pool,
		store: question.NewStore(),
		admin: identity("admin", auth.RoleAdmin),
		alice: identity("alice", auth.RoleTeacher),
		bob:   identity("bob", auth.RoleTeacher),
		carol: identity("carol", auth.RoleTeacher),
		dave:  identity("dave", auth.RoleTeacher),
	}
	subject("Math", f.alice, f.bob)
	subject("History", f.dave)

	f.aliceQ = f.create(t, f.alice.UserID, "Math")
	f.carolQ = f.create(t, f.carol.UserID, "Math")

	visibility := rbac.NewVisibility(auth.NewStore(pool), f.store.Lister(pool))
	f.mux = http.NewServeMux()
	question.NewHandler(pool, f.store, visibility, rbac.NewEvaluator(), nil).RegisterRoutes(f.mux)
	return f
}

func (f *sharingFixture) create(t *testing.T, creatorID int64, subject string) *question.Question {
	t.Helper()
	in := question.Input{
		SubjectName: subject,
		Body:        "What is 2 + 2?",
		Choices:     []question.Choice{{Text: "3"}, {Text: "4", Correct: true}},
	}
	require.NoError(t, in.Validate())

	var q *question.Question
	err := database.WithTx(context.Background(), f.pool, func(ctx context.Context, tx database.Querier) error {
		var err error
		q, err = f.store.Create(ctx, tx, in, creatorID)
		return err
	})
	require.NoError(t, err)
	return q
}

func (f *sharingFixture) do(t *testing.T, as *auth.Identity, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), as))
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func path(id int64) string {
	return "/api/v1/questions/" + strconv.FormatInt(id, 10)
}

func listIDs(t *testing.T, w *httptest.ResponseRecorder) []int64 {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var questions []question.Question
	require.NoError(t, json.NewDecoder(w.Body).Decode(&questions))
	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids
}

func TestStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupSharing(t)

	got, err := f.store.GetByID(context.Background(), f.pool, f.aliceQ.ID)
	require.NoError(t, err)
	assert.Equal(t, "Math", got.SubjectName)
	assert.Equal(t, question.KindMultipleChoice, got.Kind)
	assert.Equal(t, 1, got.Score)
	assert.Empty(t, got.Difficulty)
	assert.Equal(t, []question.Choice{{Text: "3", Letter: "A"}, {Text: "4", Letter: "B", Correct: true}}, got.Choices)

	_, err = f.store.GetByID(context.Background(), f.pool, 999999)
	assert.ErrorIs(t, err, question.ErrNotFound)
}

func TestStore_ScopedIDs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupSharing(t)
	ctx := context.Background()
	visibility := rbac.NewVisibility(auth.NewStore(f.pool), f.store.Lister(f.pool))

	tests := []struct {
		name string
		who  *auth.Identity
		want []int64
	}{
		{"admin sees all", f.admin, []int64{f.aliceQ.ID, f.carolQ.ID}},
		{"owner and shared subject", f.alice, []int64{f.aliceQ.ID, f.carolQ.ID}},
		{"teacher of the subject", f.bob, []int64{f.aliceQ.ID, f.carolQ.ID}},
		{"no subjects sees only own", f.carol, []int64{f.carolQ.ID}},
		{"other subject sees nothing", f.dave, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := visibility.VisibleQuestions(ctx, tt.who)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestHandler_SharingRule(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupSharing(t)

	t.Run("SharedSubjectReadable", func(t *testing.T) {
		w := f.do(t, f.bob, "GET", path(f.aliceQ.ID), "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("SharedSubjectNotWritable", func(t *testing.T) {
		body := `{"subject_name":"Math","body":"changed","choices":[{"text":"a"},{"text":"b"}]}`
		w := f.do(t, f.bob, "PUT", path(f.aliceQ.ID), body)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(t, f.bob, "DELETE", path(f.aliceQ.ID), "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("OtherSubjectHidden", func(t *testing.T) {
		w := f.do(t, f.dave, "GET", path(f.aliceQ.ID), "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "subject not shared")
	})

	t.Run("ZeroSubjectTeacherSeesOwnOnly", func(t *testing.T) {
		ids := listIDs(t, f.do(t, f.carol, "GET", "/api/v1/questions", ""))
		assert.Equal(t, []int64{f.carolQ.ID}, ids)

		w := f.do(t, f.carol, "GET", path(f.aliceQ.ID), "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ListIsNewestFirst", func(t *testing.T) {
		ids := listIDs(t, f.do(t, f.bob, "GET", "/api/v1/questions", ""))
		assert.Equal(t, []int64{f.carolQ.ID, f.aliceQ.ID}, ids)
	})
}

func TestHandler_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupSharing(t)

	var created question.Question
	t.Run("Create", func(t *testing.T) {
		body := `{"subject_name":"History","body":"Year of X?","difficulty":"EASY","score":2,
			"choices":[{"text":"1500"},{"text":"1822","is_correct":true},{"text":"1900"}]}`
		w := f.do(t, f.dave, "POST", "/api/v1/questions", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
		assert.Equal(t, f.dave.UserID, created.CreatorID)
		assert.Equal(t, question.DifficultyEasy, created.Difficulty)
		assert.Equal(t, "C", created.Choices[2].Letter)
	})

	t.Run("CreateRejectsOneChoice", func(t *testing.T) {
		w := f.do(t, f.dave, "POST", "/api/v1/questions", `{"subject_name":"History","body":"x","choices":[{"text":"a"}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("OwnerUpdates", func(t *testing.T) {
		body := `{"subject_name":"History","body":"Year of Y?","choices":[{"text":"a"},{"text":"b","is_correct":true}]}`
		w := f.do(t, f.dave, "PUT", path(created.ID), body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got, err := f.store.GetByID(context.Background(), f.pool, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Year of Y?", got.Body)
		assert.Len(t, got.Choices, 2)
		assert.Equal(t, f.dave.UserID, got.CreatorID)
	})

	t.Run("InUseCannotBeDeleted", func(t *testing.T) {
		var examID int64
		err := f.pool.QueryRow(context.Background(),
			"INSERT INTO exams (title, creator_id) VALUES ('Quiz', $1) RETURNING id", f.dave.UserID).Scan(&examID)
		require.NoError(t, err)
		_, err = f.pool.Exec(context.Background(),
			"INSERT INTO exam_questions (exam_id, question_id, position) VALUES ($1, $2, 0)", examID, created.ID)
		require.NoError(t, err)

		w := f.do(t, f.dave, "DELETE", path(created.ID), "")
		assert.Equal(t, http.StatusConflict, w.Code)

		_, err = f.pool.Exec(context.Background(), "DELETE FROM exams WHERE id = $1", examID)
		require.NoError(t, err)
	})

	t.Run("AdminDeletesAnyQuestion", func(t *testing.T) {
		w := f.do(t, f.admin, "DELETE", path(created.ID), "")
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, f.admin, "GET", path(created.ID), "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/questions", nil)
		w := httptest.NewRecorder()
		f.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
