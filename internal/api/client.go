// Package api is the client for the banner backend's REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vbonduro/bannerfront/internal/domain"
)

// Client talks to the backend. It is safe for concurrent use; per-visitor
// credentials are passed on each call.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBreakerSettings overrides the circuit breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(cl *Client) { cl.breaker = gobreaker.NewCircuitBreaker[*response](st) }
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is the result of a successful login or registration.
type Session struct {
	User         domain.User
	AccessToken  string
	RefreshToken string
}

// OrderLine is one file and its banner configuration in a new order.
type OrderLine struct {
	Config   domain.BannerConfig
	FileName string
	MimeType string
	Content  []byte
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, false, &resp); err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	return Session{User: toUser(resp.User), AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (Session, error) {
	var resp tokenResponse
	body := registerRequest{Email: email, Password: password, Name: name}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", body, false, &resp); err != nil {
		return Session{}, fmt.Errorf("register: %w", err)
	}
	return Session{User: toUser(resp.User), AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp refreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{RefreshToken: refreshToken}, false, &resp); err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("refresh: empty access token")
	}
	return resp.AccessToken, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/auth/logout", token, nil, false, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CreateOrder submits every line as one multipart request: a files part and
// a configs part per line, in order, plus the contact number.
func (c *Client) CreateOrder(ctx context.Context, token string, lines []OrderLine, contactNumber string) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, errors.New("create order: no lines")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, line := range lines {
		if err := writeFilePart(mw, line); err != nil {
			return domain.Order{}, fmt.Errorf("create order: %w", err)
		}
		cfg, err := json.Marshal(toConfigDTO(line.Config))
		if err != nil {
			return domain.Order{}, fmt.Errorf("create order: failed to encode config: %w", err)
		}
		if err := mw.WriteField("configs", string(cfg)); err != nil {
			return domain.Order{}, fmt.Errorf("create order: %w", err)
		}
	}
	if err := mw.WriteField("contact_number", contactNumber); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/orders",
		token:       token,
		contentType: mw.FormDataContentType(),
		body:        buf.Bytes(),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	var dto orderDTO
	if err := json.Unmarshal(resp.body, &dto); err != nil {
		return domain.Order{}, fmt.Errorf("create order: failed to decode response: %w", err)
	}
	return toOrder(dto), nil
}

func writeFilePart(mw *multipart.Writer, line OrderLine) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(line.FileName)))
	mimeType := line.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(line.Content)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// MyOrders lists the caller's orders.
func (c *Client) MyOrders(ctx context.Context, token string) ([]domain.Order, error) {
	var resp []orderDTO
	if err := c.doJSON(ctx, http.MethodGet, "/orders/me", token, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("list my orders: %w", err)
	}
	return toOrders(resp), nil
}

// AllOrders lists every order. Admin only.
func (c *Client) AllOrders(ctx context.Context, token string) ([]domain.Order, error) {
	var resp []orderDTO
	if err := c.doJSON(ctx, http.MethodGet, "/orders", token, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return toOrders(resp), nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, token, orderID string, status domain.OrderStatus) (domain.Order, error) {
	var resp orderDTO
	path := "/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.doJSON(ctx, http.MethodPatch, path, token, statusRequest{Status: string(status)}, false, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return toOrder(resp), nil
}

// EmailContent fetches the notification generated for an order. Admin only.
func (c *Client) EmailContent(ctx context.Context, token, orderID string) (domain.EmailContent, error) {
	var resp emailContentDTO
	path := "/orders/" + url.PathEscape(orderID) + "/email-content"
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, true, &resp); err != nil {
		return domain.EmailContent{}, fmt.Errorf("email content: %w", err)
	}
	return toEmailContent(resp), nil
}

// CalculatePrice asks the backend for the authoritative price of cfg.
func (c *Client) CalculatePrice(ctx context.Context, cfg domain.BannerConfig) (decimal.Decimal, error) {
	var resp priceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/orders/calculate-price", "", toConfigDTO(cfg), true, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("calculate price: %w", err)
	}
	return resp.Price, nil
}

type request struct {
	method      string
	path        string
	token       string
	contentType string
	body        []byte
	// idempotent requests are retried once on a transport error or 5xx.
	idempotent bool
}

type response struct {
	status int
	body   []byte
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in any, idempotent bool, out any) error {
	req := request{method: method, path: path, token: token, idempotent: idempotent}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		req.body = payload
		req.contentType = "application/json"
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	attempts := 1
	if req.idempotent {
		attempts = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var resp *response
		resp, err = c.breaker.Execute(func() (*response, error) {
			return c.roundTrip(ctx, req)
		})
		if err == nil {
			if resp.status >= 200 && resp.status < 300 {
				return resp, nil
			}
			return nil, &APIError{Status: resp.status, Detail: parseDetail(resp.body)}
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt < attempts {
			c.logger.Warn("retrying backend request", "method", req.method, "path", req.path, "error", err)
		}
	}
	return nil, err
}

// roundTrip performs one HTTP exchange. 5xx responses come back as errors so
// the breaker counts them; other statuses are returned for the caller to
// interpret.
func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, &APIError{Status: httpResp.StatusCode, Detail: parseDetail(data)}
	}
	return &response{status: httpResp.StatusCode, body: data}, nil
}
