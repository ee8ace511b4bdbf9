package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/artwork/local"
	"github.com/vbonduro/bannerfront/internal/db"
	"github.com/vbonduro/bannerfront/internal/quote"
	"github.com/vbonduro/bannerfront/internal/service"
	"github.com/vbonduro/bannerfront/internal/session"
	"github.com/vbonduro/bannerfront/internal/store"
	"github.com/vbonduro/bannerfront/internal/web"
	"github.com/vbonduro/bannerfront/internal/web/templates"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
// http.DetectContentType identifies JPEG from the leading 0xFF 0xD8 bytes.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

type wireConfig struct {
	WidthCm    int    `json:"width_cm"`
	HeightCm   int    `json:"height_cm"`
	Material   string `json:"material"`
	Grommets   bool   `json:"grommets"`
	Lamination bool   `json:"lamination"`
}

type wireItem struct {
	ID           string     `json:"id"`
	Price        string     `json:"price"`
	BannerConfig wireConfig `json:"banner_config"`
	FileName     string     `json:"file_name"`
	FileURL      *string    `json:"file_url"`
	CreatedAt    string     `json:"created_at"`
}

type wireOrder struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	TotalPrice    string     `json:"total_price"`
	ContactNumber string     `json:"contact_number"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
	Items         []wireItem `json:"items"`
}

// fakeAPI is an httptest stand-in for the banner backend.
type fakeAPI struct {
	mu sync.Mutex

	orders     []wireOrder
	files      []string
	contacts   []string
	price      string
	priceFails bool
	statusFail bool
	listFail   bool

	// priceGate, when set, holds the first price request until it is closed.
	priceGate  chan struct{}
	priceCalls int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.handleLogin)
	mux.HandleFunc("POST /api/auth/register", f.handleRegister)
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/orders", f.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", f.handleListOrders)
	mux.HandleFunc("GET /api/orders/me", f.handleListOrders)
	mux.HandleFunc("PATCH /api/orders/{id}/status", f.handleStatus)
	mux.HandleFunc("GET /api/orders/{id}/email-content", f.handleEmail)
	mux.HandleFunc("POST /api/orders/calculate-price", f.handlePrice)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Password != "secret1" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "access-" + req.Email,
		"refresh_token": "refresh-" + req.Email,
		"user": map[string]any{
			"id":       "u-" + req.Email,
			"email":    req.Email,
			"name":     strings.Split(req.Email, "@")[0],
			"is_admin": strings.HasPrefix(req.Email, "admin@"),
		},
	})
}

func (f *fakeAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Email == "taken@example.com" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "access-new",
		"refresh_token": "refresh-new",
		"user":          map[string]any{"id": "u-new", "email": req.Email, "name": req.Name},
	})
}

func (f *fakeAPI) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	order := wireOrder{
		ID:            fmt.Sprintf("order-%04d-abcdef", len(f.orders)+1),
		Status:        "pending",
		TotalPrice:    "0",
		ContactNumber: r.FormValue("contact_number"),
		CreatedAt:     "2026-10-01T09:30:00Z",
		UpdatedAt:     "2026-10-01T09:30:00Z",
	}
	for i, fh := range r.MultipartForm.File["files"] {
		var cfg wireConfig
		_ = json.Unmarshal([]byte(r.MultipartForm.Value["configs"][i]), &cfg)
		f.files = append(f.files, fh.Filename)
		order.Items = append(order.Items, wireItem{
			ID:           fmt.Sprintf("item-%d", i),
			Price:        "324.00",
			BannerConfig: cfg,
			FileName:     fh.Filename,
			CreatedAt:    "2026-10-01T09:30:00Z",
		})
	}
	order.TotalPrice = fmt.Sprintf("%d.00", 324*len(order.Items))
	f.contacts = append(f.contacts, order.ContactNumber)
	f.orders = append(f.orders, order)
	writeJSON(w, http.StatusCreated, order)
}

func (f *fakeAPI) handleListOrders(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listFail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "database is locked"})
		return
	}
	writeJSON(w, http.StatusOK, append([]wireOrder{}, f.orders...))
}

func (f *fakeAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusFail {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Status change rejected"})
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	for i := range f.orders {
		if f.orders[i].ID == r.PathValue("id") {
			f.orders[i].Status = req.Status
			writeJSON(w, http.StatusOK, f.orders[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Order not found"})
}

func (f *fakeAPI) handleEmail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":       r.PathValue("id"),
		"email_subject":  "New banner order " + r.PathValue("id"),
		"email_content":  "<h1>Thanks for your order</h1>",
		"contact_number": "+91-9876543210",
		"customer_email": "alice@example.com",
		"files_info":     "banner.jpg (512 B)",
	})
}

func (f *fakeAPI) handlePrice(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.priceCalls++
	var gate chan struct{}
	if f.priceCalls == 1 {
		gate = f.priceGate
	}
	fails, price := f.priceFails, f.price
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fails {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price})
}

func (f *fakeAPI) pricesRequested() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls
}

func (f *fakeAPI) addOrder(o wireOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
}

type testEnv struct {
	api *fakeAPI
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := &fakeAPI{price: "5540.00"}
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	database, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	files, err := local.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	client := api.NewClient(backend.URL+"/api", 5*time.Second, logger)
	accounts := service.NewAccountService(client, logger)
	registry := session.NewRegistry(store.NewLocalStorage(database), files, 1<<20, time.Hour, logger)

	srv := web.NewServer(web.Services{
		Sessions: registry,
		Accounts: accounts,
		Checkout: service.NewCheckoutService(client, accounts, files, logger),
		Orders:   service.NewOrderService(client, accounts, logger),
		Quoter:   quote.NewQuoter(client, quote.NewMemoryCache(64, time.Minute), 2*time.Second, logger),
		Files:    files,
	}, templates.FS, logger, web.WithMaxUpload(1<<20))

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testEnv{api: fake, srv: ts}
}

// browser returns a client with its own cookie jar, i.e. its own visitor.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// noFollow stops at the first response so redirects can be asserted.
func noFollow(c *http.Client) *http.Client {
	return &http.Client{
		Jar: c.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) postForm(t *testing.T, c *http.Client, path string, form url.Values, htmx bool) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, htmx bool) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	require.NoError(t, err)
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) upload(t *testing.T, c *http.Client, filename string, data []byte) (*http.Response, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("artwork", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/configure/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) login(t *testing.T, c *http.Client, email string) {
	t.Helper()
	resp, _ := e.postForm(t, c, "/login", url.Values{"email": {email}, "password": {"secret1"}}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// addBanner runs the configurator for a small vinyl banner and returns the
// cart page.
func (e *testEnv) addBanner(t *testing.T, c *http.Client, filename string) string {
	t.Helper()
	resp, body := e.postForm(t, c, "/configure", url.Values{"size": {"Flex Board Small"}, "material": {"vinyl"}}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Step 2 of 2")

	resp, body = e.upload(t, c, filename, minimalJPEG)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/cart", resp.Request.URL.Path)
	return body
}

var lineIDPattern = regexp.MustCompile(`id="line-([0-9a-f-]+)"`)

func lineIDs(body string) []string {
	var ids []string
	for _, m := range lineIDPattern.FindAllStringSubmatch(body, -1) {
		ids = append(ids, m[1])
	}
	return ids
}
