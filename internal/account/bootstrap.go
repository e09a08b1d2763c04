package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/database"
)

// AdminSeed describes the administrator created when none exists.
type AdminSeed struct {
	LoginName   string
	Password    string
	Email       string
	DisplayName string
}

// EnsureAdmin creates the seed administrator unless an ADMIN principal is
// already stored. It reports whether one was created.
func EnsureAdmin(ctx context.Context, q database.Querier, users *UserStore, hasher auth.Hasher, seed AdminSeed) (bool, error) {
	if seed.LoginName == "" {
		return false, nil
	}

	exists, err := users.AdminExists(ctx, q)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if seed.Password == "" {
		return false, fmt.Errorf("%w: no administrator exists and no bootstrap password is configured", ErrInvalidInput)
	}
	if seed.DisplayName == "" {
		seed.DisplayName = "Administrator"
	}

	hash, err := hasher.Hash(seed.Password)
	if err != nil {
		return false, fmt.Errorf("hashing bootstrap password: %w", err)
	}

	p, err := users.Create(ctx, q, seed.DisplayName, seed.LoginName, seed.Email, hash, auth.RoleAdmin)
	if err != nil {
		if errors.Is(err, ErrLoginTaken) {
			return false, fmt.Errorf("bootstrap login %q belongs to a non-admin principal: %w", seed.LoginName, err)
		}
		return false, err
	}

	slog.InfoContext(ctx, "bootstrap administrator created", "user_id", p.ID, "login_name", p.LoginName)
	return true, nil
}
