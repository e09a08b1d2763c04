package account_test

import (
	"context"
	"testing"

	"github.com/flavalia/avalia/internal/account"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/flavalia/avalia/internal/platform/database/databasetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUserStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := databasetest.Setup(t)
	ctx := context.Background()
	users := account.NewUserStore()

	t.Run("Create", func(t *testing.T) {
		p, err := users.Create(ctx, pool, "Alice", "alice", "alice@example.com", "hash", auth.RoleTeacher)
		require.NoError(t, err)
		assert.NotZero(t, p.ID)
		assert.Equal(t, auth.RoleTeacher, p.Role)
		assert.True(t, p.Active)
	})

	t.Run("Create_DuplicateLogin", func(t *testing.T) {
		_, err := users.Create(ctx, pool, "Other", "alice", "", "hash", auth.RoleTeacher)
		assert.ErrorIs(t, err, account.ErrLoginTaken)
	})

	t.Run("Create_DuplicateEmail", func(t *testing.T) {
		_, err := users.Create(ctx, pool, "Other", "other", "alice@example.com", "hash", auth.RoleTeacher)
		assert.ErrorIs(t, err, account.ErrEmailTaken)
	})

	t.Run("Create_EmptyEmailsDoNotCollide", func(t *testing.T) {
		_, err := users.Create(ctx, pool, "No Mail 1", "nomail1", "", "hash", auth.RoleTeacher)
		require.NoError(t, err)
		_, err = users.Create(ctx, pool, "No Mail 2", "nomail2", "", "hash", auth.RoleTeacher)
		require.NoError(t, err)
	})

	t.Run("Update", func(t *testing.T) {
		p, err := users.Create(ctx, pool, "Bob", "bob", "", "old-hash", auth.RoleTeacher)
		require.NoError(t, err)

		email := "bob@example.com"
		inactive := false
		updated, err := users.Update(ctx, pool, p.ID, account.PrincipalUpdate{DisplayName: "Robert", Email: &email, Active: &inactive}, "")
		require.NoError(t, err)
		assert.Equal(t, "Robert", updated.DisplayName)
		assert.Equal(t, "bob@example.com", updated.Email)
		assert.False(t, updated.Active)
		assert.Equal(t, "old-hash", updated.PasswordHash)

		updated, err = users.Update(ctx, pool, p.ID, account.PrincipalUpdate{DisplayName: "Robert"}, "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", updated.Email)
		assert.False(t, updated.Active)
		assert.Equal(t, "new-hash", updated.PasswordHash)
	})

	t.Run("Update_NotFound", func(t *testing.T) {
		_, err := users.Update(ctx, pool, 999999, account.PrincipalUpdate{DisplayName: "X"}, "")
		assert.ErrorIs(t, err, account.ErrPrincipalNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		p, err := users.Create(ctx, pool, "Carol", "carol", "", "hash", auth.RoleTeacher)
		require.NoError(t, err)

		require.NoError(t, users.Delete(ctx, pool, p.ID))
		_, err = users.GetByID(ctx, pool, p.ID)
		assert.ErrorIs(t, err, account.ErrPrincipalNotFound)
		assert.ErrorIs(t, users.Delete(ctx, pool, p.ID), account.ErrPrincipalNotFound)
	})
}

func seedQuestion(t *testing.T, pool *database.Pool, creatorID int64) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO questions (subject_name, body, creator_id) VALUES ('Math', 'What is 2 + 2?', $1) RETURNING id`,
		creatorID,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedExam(t *testing.T, pool *database.Pool, creatorID int64, questionIDs ...int64) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	require.NoError(t, pool.QueryRow(ctx,
		"INSERT INTO exams (title, creator_id) VALUES ('Midterm', $1) RETURNING id", creatorID,
	).Scan(&id))
	for i, qid := range questionIDs {
		_, err := pool.Exec(ctx,
			"INSERT INTO exam_questions (exam_id, question_id, position) VALUES ($1, $2, $3)", id, qid, i)
		require.NoError(t, err)
	}
	return id
}

func countRows(t *testing.T, pool *database.Pool, table string, creatorID int64) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		"SELECT count(*) FROM "+table+" WHERE creator_id = $1", creatorID,
	).Scan(&n))
	return n
}

func TestUserStore_DeleteWithContent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := databasetest.Setup(t)
	ctx := context.Background()
	users := account.NewUserStore()

	deleteUser := func(id int64) error {
		return database.WithTx(ctx, pool, func(ctx context.Context, q database.Querier) error {
			return users.Delete(ctx, q, id)
		})
	}

	t.Run("OwnExamUsesOwnQuestion", func(t *testing.T) {
		p, err := users.Create(ctx, pool, "Alice", "alice", "", "hash", auth.RoleTeacher)
		require.NoError(t, err)
		q1 := seedQuestion(t, pool, p.ID)
		q2 := seedQuestion(t, pool, p.ID)
		seedExam(t, pool, p.ID, q1, q2)
		seedExam(t, pool, p.ID, q2)

		require.NoError(t, deleteUser(p.ID))

		_, err = users.GetByID(ctx, pool, p.ID)
		assert.ErrorIs(t, err, account.ErrPrincipalNotFound)
		assert.Zero(t, countRows(t, pool, "questions", p.ID))
		assert.Zero(t, countRows(t, pool, "exams", p.ID))
	})

	t.Run("QuestionUsedByAnotherAuthor", func(t *testing.T) {
		bob, err := users.Create(ctx, pool, "Bob", "bob", "", "hash", auth.RoleTeacher)
		require.NoError(t, err)
		carol, err := users.Create(ctx, pool, "Carol", "carol", "", "hash", auth.RoleTeacher)
		require.NoError(t, err)
		shared := seedQuestion(t, pool, bob.ID)
		seedExam(t, pool, bob.ID, shared)
		seedExam(t, pool, carol.ID, shared)

		assert.ErrorIs(t, deleteUser(bob.ID), account.ErrPrincipalInUse)

		// The failed delete is rolled back as a whole.
		_, err = users.GetByID(ctx, pool, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, countRows(t, pool, "exams", bob.ID))
		assert.Equal(t, 1, countRows(t, pool, "questions", bob.ID))
	})
}

func TestSubjectStore_Association(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := databasetest.Setup(t)
	ctx := context.Background()
	users := account.NewUserStore()
	subjects := account.NewSubjectStore()

	teacher, err := users.Create(ctx, pool, "Alice", "alice", "", "hash", auth.RoleTeacher)
	require.NoError(t, err)

	in := account.SubjectInput{Name: "Math"}
	require.NoError(t, in.Validate())
	math, err := subjects.Create(ctx, pool, in)
	require.NoError(t, err)

	_, err = subjects.Create(ctx, pool, in)
	assert.ErrorIs(t, err, account.ErrSubjectNameTaken)

	added, err := subjects.Associate(ctx, pool, math.ID, teacher.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = subjects.Associate(ctx, pool, math.ID, teacher.ID)
	require.NoError(t, err)
	assert.False(t, added, "second association is a no-op")

	got, err := subjects.GetByID(ctx, pool, math.ID)
	require.NoError(t, err)
	require.Len(t, got.Teachers, 1)
	assert.Equal(t, "alice", got.Teachers[0].LoginName)

	dir := auth.NewStore(pool)
	taught, err := dir.TeachesSubjects(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Math"}, taught)

	teachers, err := users.ListTeachers(ctx, pool)
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, []account.SubjectSummary{{ID: math.ID, Name: "Math"}}, teachers[0].Subjects)

	removed, err := subjects.Disassociate(ctx, pool, math.ID, teacher.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = subjects.Disassociate(ctx, pool, math.ID, teacher.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	taught, err = dir.TeachesSubjects(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, taught)
}

func TestSubjectStore_ListAndRename(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := databasetest.Setup(t)
	ctx := context.Background()
	subjects := account.NewSubjectStore()

	inactive := false
	for _, in := range []account.SubjectInput{{Name: "Math"}, {Name: "History"}, {Name: "Latin", Active: &inactive}} {
		require.NoError(t, in.Validate())
		_, err := subjects.Create(ctx, pool, in)
		require.NoError(t, err)
	}

	all, err := subjects.List(ctx, pool, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "History", all[0].Name)

	active, err := subjects.List(ctx, pool, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	rename := account.SubjectInput{Name: "History"}
	require.NoError(t, rename.Validate())
	_, err = subjects.Update(ctx, pool, all[1].ID, rename)
	assert.ErrorIs(t, err, account.ErrSubjectNameTaken)

	rename = account.SubjectInput{Name: "Mathematics"}
	require.NoError(t, rename.Validate())
	updated, err := subjects.Update(ctx, pool, all[1].ID, rename)
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", updated.Name)

	require.NoError(t, subjects.Delete(ctx, pool, updated.ID))
	_, err = subjects.GetByID(ctx, pool, updated.ID)
	assert.ErrorIs(t, err, account.ErrSubjectNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := databasetest.Setup(t)
	ctx := context.Background()
	users := account.NewUserStore()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	_, err := account.EnsureAdmin(ctx, pool, users, hasher, account.AdminSeed{LoginName: "admin"})
	assert.ErrorIs(t, err, account.ErrInvalidInput)

	seed := account.AdminSeed{LoginName: "admin", Password: "changeme"}
	created, err := account.EnsureAdmin(ctx, pool, users, hasher, seed)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = account.EnsureAdmin(ctx, pool, users, hasher, seed)
	require.NoError(t, err)
	assert.False(t, created)

	p, err := auth.NewStore(pool).ByLoginName(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, p.Role)
	assert.Equal(t, "Administrator", p.DisplayName)
	assert.True(t, hasher.Compare("changeme", p.PasswordHash))
}
