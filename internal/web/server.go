package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vbonduro/bannerfront/internal/artwork"
	"github.com/vbonduro/bannerfront/internal/quote"
	"github.com/vbonduro/bannerfront/internal/service"
	"github.com/vbonduro/bannerfront/internal/session"
)

// Services are the application components the handlers drive.
type Services struct {
	Sessions *session.Registry
	Accounts *service.AccountService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Quoter   *quote.Quoter
	Files    artwork.Store
}

type Option func(*Server)

// WithSecureCookies marks the visitor cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

// WithMaxUpload sets the artwork size limit shown to visitors and enforced on
// upload requests.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

type Server struct {
	sessions *session.Registry
	accounts *service.AccountService
	checkout *service.CheckoutService
	orders   *service.OrderService
	quoter   *quote.Quoter
	files    artwork.Store

	templates     embed.FS
	mux           *http.ServeMux
	handler       http.Handler
	srv           *http.Server
	tmplFuncs     template.FuncMap
	logger        *slog.Logger
	secureCookies bool
	maxUpload     int64
}

func NewServer(svc Services, tmpl embed.FS, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		sessions:  svc.Sessions,
		accounts:  svc.Accounts,
		checkout:  svc.Checkout,
		orders:    svc.Orders,
		quoter:    svc.Quoter,
		files:     svc.Files,
		templates: tmpl,
		mux:       http.NewServeMux(),
		logger:    logger,
		tmplFuncs: templateFuncs(),
		maxUpload: artwork.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()

	var h http.Handler = s.withVisitor(s.mux)
	h = securityHeaders(h)
	h = requestLogger(s.logger, h)
	h = middleware.Recoverer(h)
	h = middleware.RequestID(h)
	s.handler = otelhttp.NewHandler(h, "bannerfront")
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /register", s.handleRegisterPage)
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /logout", s.handleLogout)

	s.mux.HandleFunc("GET /configure", s.requireAuth(s.handleConfigurePage))
	s.mux.HandleFunc("POST /configure", s.requireAuth(s.handleSubmitConfig))
	s.mux.HandleFunc("POST /configure/back", s.requireAuth(s.handleConfigureBack))
	s.mux.HandleFunc("POST /configure/upload", s.requireAuth(s.handleUploadArtwork))
	s.mux.HandleFunc("POST /configure/keep-file", s.requireAuth(s.handleKeepFile))
	s.mux.HandleFunc("POST /configure/quote", s.requireAuth(s.handleQuote))

	s.mux.HandleFunc("GET /cart", s.requireAuth(s.handleCartPage))
	s.mux.HandleFunc("POST /cart/items/{id}/quantity", s.requireAuth(s.handleUpdateQuantity))
	s.mux.HandleFunc("DELETE /cart/items/{id}", s.requireAuth(s.handleRemoveItem))
	s.mux.HandleFunc("POST /cart/clear", s.requireAuth(s.handleClearCart))
	s.mux.HandleFunc("GET /artwork/{id}", s.requireAuth(s.handleGetArtwork))

	s.mux.HandleFunc("GET /checkout", s.requireAuth(s.handleCheckoutPage))
	s.mux.HandleFunc("POST /checkout", s.requireAuth(s.handlePlaceOrder))

	s.mux.HandleFunc("GET /orders", s.requireAuth(s.handleMyOrders))

	s.mux.HandleFunc("GET /admin", s.requireAdmin(s.handleAdminPage))
	s.mux.HandleFunc("POST /admin/orders/{id}/status", s.requireAdmin(s.handleUpdateStatus))
	s.mux.HandleFunc("GET /admin/orders/{id}/email", s.requireAdmin(s.handleEmailPreview))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
