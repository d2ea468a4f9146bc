package memstorage

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/user"
)

type UserRepository struct {
	s *Store
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, u *user.User) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return uuid.Nil, user.ErrEmailTaken
		}
	}

	stored := *u
	stored.ID = uuid.New()
	stored.CreatedAt = r.s.now().UTC()
	r.s.users[stored.ID] = &stored

	return stored.ID, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			userCopy := *u
			return &userCopy, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	userCopy := *u
	return &userCopy, nil
}
