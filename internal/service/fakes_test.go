package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/artwork"
	"github.com/vbonduro/bannerfront/internal/auth"
	"github.com/vbonduro/bannerfront/internal/cart"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/pricing"
)

// fakeBackend is an in-memory stand-in for the banner API.
type fakeBackend struct {
	mu sync.Mutex

	session    api.Session
	loginErr   error
	logoutErr  error
	refreshTok string
	refreshErr error

	// rejectToken makes calls with this token fail with 401.
	rejectToken string

	orders       []domain.Order
	createErr    error
	created      [][]api.OrderLine
	contacts     []string
	statusErr    error
	listErr      error
	listCalls    int
	emailContent domain.EmailContent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		session: api.Session{
			User:         domain.User{ID: "u1", Email: "alice@example.com", Name: "Alice"},
			AccessToken:  "acc",
			RefreshToken: "ref",
		},
		refreshTok: "acc-2",
	}
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (api.Session, error) {
	if f.loginErr != nil {
		return api.Session{}, f.loginErr
	}
	return f.session, nil
}

func (f *fakeBackend) Register(_ context.Context, name, email, password string) (api.Session, error) {
	if f.loginErr != nil {
		return api.Session{}, f.loginErr
	}
	s := f.session
	s.User.Name = name
	s.User.Email = email
	return s, nil
}

func (f *fakeBackend) Refresh(_ context.Context, refreshToken string) (string, error) {
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.refreshTok, nil
}

func (f *fakeBackend) Logout(_ context.Context, token string) error {
	return f.logoutErr
}

func (f *fakeBackend) checkToken(token string) error {
	if f.rejectToken != "" && token == f.rejectToken {
		return &api.APIError{Status: 401, Detail: "Could not validate credentials"}
	}
	return nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, token string, lines []api.OrderLine, contact string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkToken(token); err != nil {
		return domain.Order{}, err
	}
	if f.createErr != nil {
		return domain.Order{}, f.createErr
	}
	f.created = append(f.created, lines)
	f.contacts = append(f.contacts, contact)
	o := domain.Order{ID: fmt.Sprintf("ord-%d", len(f.created)), Status: domain.OrderPending, ContactNumber: contact}
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeBackend) MyOrders(_ context.Context, token string) ([]domain.Order, error) {
	return f.AllOrders(context.Background(), token)
}

func (f *fakeBackend) AllOrders(_ context.Context, token string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkToken(token); err != nil {
		return nil, err
	}
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Order, len(f.orders))
	copy(out, f.orders)
	return out, nil
}

func (f *fakeBackend) UpdateOrderStatus(_ context.Context, token, orderID string, status domain.OrderStatus) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkToken(token); err != nil {
		return domain.Order{}, err
	}
	if f.statusErr != nil {
		return domain.Order{}, f.statusErr
	}
	for i := range f.orders {
		if f.orders[i].ID == orderID {
			f.orders[i].Status = status
			return f.orders[i], nil
		}
	}
	return domain.Order{}, &api.APIError{Status: 404, Detail: "Order not found"}
}

func (f *fakeBackend) EmailContent(_ context.Context, token, orderID string) (domain.EmailContent, error) {
	if err := f.checkToken(token); err != nil {
		return domain.EmailContent{}, err
	}
	ec := f.emailContent
	ec.OrderID = orderID
	return ec, nil
}

// memFiles is an in-memory artwork.Store.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{files: make(map[string][]byte)} }

func (m *memFiles) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s_%d", prefix, len(m.files))
	m.files[key] = data
	return key, nil
}

func (m *memFiles) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, "", errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), "image/png", nil
}

func (m *memFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

// memStorage is an in-memory per-visitor key/value store.
type memStorage map[string]string

func (m memStorage) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
func (m memStorage) Set(_ context.Context, key, value string) error { m[key] = value; return nil }
func (m memStorage) Remove(_ context.Context, key string) error     { delete(m, key); return nil }

func signedIn(t *testing.T, user domain.User) *auth.Store {
	t.Helper()
	a := auth.NewStore(memStorage{}, slog.Default())
	require.NoError(t, a.Login(context.Background(), user, "acc", "ref"))
	return a
}

func addWithArtwork(t *testing.T, c *cart.Store, files *memFiles, cfg domain.BannerConfig, name string) cart.Item {
	t.Helper()
	key, err := files.Save(context.Background(), "art", "image/png", bytes.NewReader([]byte("\x89PNG"+name)))
	require.NoError(t, err)
	return c.AddItem(context.Background(), cfg, &artwork.Handle{Key: key, Name: name, MimeType: "image/png"}, pricing.Estimate(cfg))
}
