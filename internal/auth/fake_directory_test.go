package auth_test

import (
	"context"
	"errors"

	"github.com/flavalia/avalia/internal/auth"
)

// fakeDirectory is an in-memory auth.Directory.
type fakeDirectory struct {
	byLogin  map[string]*auth.Principal
	subjects map[int64][]string
	err      error
}

func newFakeDirectory(principals ...*auth.Principal) *fakeDirectory {
	d := &fakeDirectory{
		byLogin:  make(map[string]*auth.Principal),
		subjects: make(map[int64][]string),
	}
	for _, p := range principals {
		d.byLogin[p.LoginName] = p
	}
	return d
}

func (d *fakeDirectory) ByLoginName(_ context.Context, loginName string) (*auth.Principal, error) {
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.byLogin[loginName]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return p, nil
}

func (d *fakeDirectory) ByID(_ context.Context, id int64) (*auth.Principal, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, p := range d.byLogin {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (d *fakeDirectory) TeachesSubjects(_ context.Context, principalID int64) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.subjects[principalID], nil
}

var errStoreDown = errors.New("connection refused")
