// Package auth holds a visitor's session identity: the signed-in user and the
// backend's access and refresh tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-multierror"

	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/store"
)

// RefreshWindow is how close to expiry an access token may get before it is
// rotated.
const RefreshWindow = time.Minute

type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type Store struct {
	mu      sync.RWMutex
	storage Storage
	logger  *slog.Logger

	user         *domain.User
	accessToken  string
	refreshToken string
}

func NewStore(storage Storage, logger *slog.Logger) *Store {
	return &Store{storage: storage, logger: logger}
}

// Login records a new session and persists it.
func (s *Store) Login(ctx context.Context, user domain.User, accessToken, refreshToken string) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	s.mu.Lock()
	s.user = &user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.mu.Unlock()

	var result *multierror.Error
	if err := s.storage.Set(ctx, store.KeyAccessToken, accessToken); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.storage.Set(ctx, store.KeyRefreshToken, refreshToken); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.storage.Set(ctx, store.KeyUser, string(data)); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		s.logger.Warn("session persist failed", "error", err)
	}
	return nil
}

// Logout clears the session from memory and storage.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.mu.Unlock()

	for _, key := range []string{store.KeyAccessToken, store.KeyRefreshToken, store.KeyUser} {
		if err := s.storage.Remove(ctx, key); err != nil {
			s.logger.Warn("session clear failed", "key", key, "error", err)
		}
	}
}

// Initialize restores a session from storage. Absent or malformed data leaves
// the visitor signed out.
func (s *Store) Initialize(ctx context.Context) {
	user, access, refresh, err := s.restore(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !errors.Is(err, errNoSession) {
			s.logger.Warn("discarding cached session", "error", err)
		}
		s.user, s.accessToken, s.refreshToken = nil, "", ""
		return
	}
	s.user = user
	s.accessToken = access
	s.refreshToken = refresh
}

var errNoSession = errors.New("no cached session")

func (s *Store) restore(ctx context.Context) (*domain.User, string, string, error) {
	access, ok, err := s.storage.Get(ctx, store.KeyAccessToken)
	if err != nil {
		return nil, "", "", err
	}
	if !ok || access == "" {
		return nil, "", "", errNoSession
	}
	raw, ok, err := s.storage.Get(ctx, store.KeyUser)
	if err != nil {
		return nil, "", "", err
	}
	if !ok {
		return nil, "", "", errNoSession
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, "", "", fmt.Errorf("malformed user record: %w", err)
	}
	if user.ID == "" && user.Email == "" {
		return nil, "", "", errors.New("empty user record")
	}

	refresh, _, err := s.storage.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		return nil, "", "", err
	}
	return &user, access, refresh, nil
}

// IsAuthenticated reports whether both a user and an access token are held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.accessToken != ""
}

// User returns the signed-in user, if any.
func (s *Store) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *Store) IsAdmin() bool {
	u, ok := s.User()
	return ok && u.IsAdmin
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// UpdateAccessToken swaps in a rotated access token.
func (s *Store) UpdateAccessToken(ctx context.Context, token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()

	if err := s.storage.Set(ctx, store.KeyAccessToken, token); err != nil {
		s.logger.Warn("access token persist failed", "error", err)
	}
}

// NeedsRefresh reports whether the access token expires within RefreshWindow
// of now. Tokens without a readable exp claim are left alone; the backend
// rejects them if they are stale.
func (s *Store) NeedsRefresh(now time.Time) bool {
	token := s.AccessToken()
	if token == "" || s.RefreshToken() == "" {
		return false
	}
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !now.Add(RefreshWindow).Before(exp)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Verification belongs to the backend that issued it.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
