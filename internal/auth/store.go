package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/jackc/pgx/v5"
)

// Directory is the read model over stored principals and the subjects
// they teach.
type Directory interface {
	ByLoginName(ctx context.Context, loginName string) (*Principal, error)
	ByID(ctx context.Context, id int64) (*Principal, error)
	TeachesSubjects(ctx context.Context, principalID int64) ([]string, error)
}

// Store implements Directory directly against Postgres. No caching.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

const principalColumns = `id, display_name, login_name, COALESCE(email, ''), password_hash, role, active, created_at`

// ByLoginName looks a principal up by exact, case-sensitive login name.
func (s *Store) ByLoginName(ctx context.Context, loginName string) (*Principal, error) {
	return s.scanOne(ctx, "SELECT "+principalColumns+" FROM principals WHERE login_name = $1", loginName)
}

func (s *Store) ByID(ctx context.Context, id int64) (*Principal, error) {
	return s.scanOne(ctx, "SELECT "+principalColumns+" FROM principals WHERE id = $1", id)
}

// TeachesSubjects returns the names of the subjects a principal teaches.
func (s *Store) TeachesSubjects(ctx context.Context, principalID int64) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT s.name FROM subjects s
		 JOIN teacher_subjects ts ON ts.subject_id = s.id
		 WHERE ts.teacher_id = $1
		 ORDER BY s.name`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying taught subjects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if scanErr := rows.Scan(&name); scanErr != nil {
			return nil, fmt.Errorf("scanning subject: %w", scanErr)
		}
		names = append(names, name)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating subjects: %w", rowsErr)
	}
	return names, nil
}

func (s *Store) scanOne(ctx context.Context, sql string, arg any) (*Principal, error) {
	var p Principal
	err := s.db.QueryRow(ctx, sql, arg).Scan(
		&p.ID, &p.DisplayName, &p.LoginName, &p.Email, &p.PasswordHash, &p.Role, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return &p, nil
}
