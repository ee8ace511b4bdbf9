package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/auth"
	"github.com/vbonduro/bannerfront/internal/domain"
)

// ErrSessionExpired means the access token could not be renewed and the
// visitor has been signed out.
var ErrSessionExpired = errors.New("session expired")

// accountBackend is the subset of api.Client that AccountService requires.
type accountBackend interface {
	Login(ctx context.Context, email, password string) (api.Session, error)
	Register(ctx context.Context, name, email, password string) (api.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, token string) error
}

type AccountService struct {
	backend accountBackend
	logger  *slog.Logger
	now     func() time.Time
}

func NewAccountService(backend accountBackend, logger *slog.Logger) *AccountService {
	return &AccountService{backend: backend, logger: logger, now: time.Now}
}

var emailPattern = regexp.MustCompile(`^\S+@\S+$`)

// Credentials are the fields of the login and registration forms.
type Credentials struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

func (c Credentials) validateLogin() error {
	var result *multierror.Error
	result = multierror.Append(result, validateEmail(c.Email)...)
	result = multierror.Append(result, validatePassword(c.Password)...)
	return result.ErrorOrNil()
}

func (c Credentials) validateRegister() error {
	var result *multierror.Error
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		result = multierror.Append(result, &domain.ValidationError{Field: "name", Message: "Name is required"})
	case len([]rune(name)) < 2:
		result = multierror.Append(result, &domain.ValidationError{Field: "name", Message: "Name must be at least 2 characters"})
	}
	result = multierror.Append(result, validateEmail(c.Email)...)
	result = multierror.Append(result, validatePassword(c.Password)...)
	switch {
	case c.ConfirmPassword == "":
		result = multierror.Append(result, &domain.ValidationError{Field: "confirmPassword", Message: "Please confirm your password"})
	case c.ConfirmPassword != c.Password:
		result = multierror.Append(result, &domain.ValidationError{Field: "confirmPassword", Message: "Passwords do not match"})
	}
	return result.ErrorOrNil()
}

func validateEmail(email string) []error {
	switch {
	case strings.TrimSpace(email) == "":
		return []error{&domain.ValidationError{Field: "email", Message: "Email is required"}}
	case !emailPattern.MatchString(strings.TrimSpace(email)):
		return []error{&domain.ValidationError{Field: "email", Message: "Invalid email address"}}
	}
	return nil
}

func validatePassword(password string) []error {
	switch {
	case password == "":
		return []error{&domain.ValidationError{Field: "password", Message: "Password is required"}}
	case len(password) < 6:
		return []error{&domain.ValidationError{Field: "password", Message: "Password must be at least 6 characters"}}
	}
	return nil
}

// Login authenticates against the backend and stores the session.
func (s *AccountService) Login(ctx context.Context, a *auth.Store, creds Credentials) error {
	if err := creds.validateLogin(); err != nil {
		return err
	}
	sess, err := s.backend.Login(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		s.logger.Warn("login failed", "error", err)
		return err
	}
	return a.Login(ctx, sess.User, sess.AccessToken, sess.RefreshToken)
}

// Register creates an account and signs the visitor in.
func (s *AccountService) Register(ctx context.Context, a *auth.Store, creds Credentials) error {
	if err := creds.validateRegister(); err != nil {
		return err
	}
	sess, err := s.backend.Register(ctx, strings.TrimSpace(creds.Name), strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		s.logger.Warn("registration failed", "error", err)
		return err
	}
	return a.Login(ctx, sess.User, sess.AccessToken, sess.RefreshToken)
}

// Logout tells the backend and always clears the local session, even if the
// backend call fails.
func (s *AccountService) Logout(ctx context.Context, a *auth.Store) {
	if token := a.AccessToken(); token != "" {
		if err := s.backend.Logout(ctx, token); err != nil {
			s.logger.Warn("backend logout failed", "error", err)
		}
	}
	a.Logout(ctx)
}

// EnsureFresh rotates the access token if it is about to expire.
func (s *AccountService) EnsureFresh(ctx context.Context, a *auth.Store) error {
	if !a.NeedsRefresh(s.now()) {
		return nil
	}
	return s.Reauthorize(ctx, a)
}

// Reauthorize exchanges the refresh token for a new access token. When the
// backend rejects the refresh token the visitor is signed out and
// ErrSessionExpired is returned. Outages and server errors leave the session
// untouched so the next request can try again.
func (s *AccountService) Reauthorize(ctx context.Context, a *auth.Store) error {
	refresh := a.RefreshToken()
	if refresh == "" {
		a.Logout(ctx)
		return ErrSessionExpired
	}
	token, err := s.backend.Refresh(ctx, refresh)
	if err != nil {
		if !refreshRejected(err) {
			s.logger.Warn("token refresh failed, keeping session", "error", err)
			return fmt.Errorf("failed to refresh session: %w", err)
		}
		s.logger.Info("refresh token rejected, signing out", "error", err)
		a.Logout(ctx)
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	a.UpdateAccessToken(ctx, token)
	return nil
}

// refreshRejected reports whether the backend refused the refresh token
// itself, as opposed to failing to answer.
func refreshRejected(err error) bool {
	if errors.Is(err, api.ErrUnauthorized) {
		return true
	}
	var apiErr *api.APIError
	return errors.As(err, &apiErr) &&
		apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError
}

// withAuth runs call with the visitor's token, renewing it once if the
// backend rejects it.
func withAuth[T any](ctx context.Context, acct *AccountService, a *auth.Store, call func(token string) (T, error)) (T, error) {
	if err := acct.EnsureFresh(ctx, a); err != nil {
		var zero T
		return zero, err
	}
	res, err := call(a.AccessToken())
	if !errors.Is(err, api.ErrUnauthorized) {
		return res, err
	}
	if rerr := acct.Reauthorize(ctx, a); rerr != nil {
		var zero T
		return zero, rerr
	}
	return call(a.AccessToken())
}
