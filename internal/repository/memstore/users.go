package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
	"github.com/iliyamo/gym-class-booking/internal/utils"
)

type UserStore struct{ st *state }

func (s *UserStore) Create(_ context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, u := range s.st.users {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	now := s.st.now()
	u := model.User{
		ID:           s.st.id("users"),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.st.users[u.ID] = u
	return u.ID, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, u := range s.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (s *UserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type TokenStore struct{ st *state }

func (s *TokenStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.tokens[tokenHash]; ok {
		return repository.ErrConflict
	}
	s.st.tokens[tokenHash] = model.RefreshToken{
		ID:        s.st.id("tokens"),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: s.st.now(),
	}
	return nil
}

func (s *TokenStore) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t, ok := s.st.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || s.st.now().After(t.ExpiresAt) {
		return 0, repository.ErrTokenInvalid
	}
	return t.UserID, nil
}

func (s *TokenStore) RevokeByHash(_ context.Context, tokenHash string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if t, ok := s.st.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := s.st.now()
		t.RevokedAt = &now
		s.st.tokens[tokenHash] = t
	}
	return nil
}

func (s *TokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	now := s.st.now()
	for h, t := range s.st.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			s.st.tokens[h] = t
		}
	}
	return nil
}
