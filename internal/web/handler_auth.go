package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/pricing"
	"github.com/vbonduro/bannerfront/internal/service"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if err := s.renderPage(w, r, http.StatusOK,
		map[string]any{
			"ActiveNav":  "home",
			"Tiers":      pricing.Tiers(),
			"Materials":  domain.Materials,
			"Presets":    domain.PresetSizes,
			"Grommets":   pricing.GrommetsSurcharge,
			"Lamination": pricing.LaminationSurcharge,
			"Floor":      pricing.FloorPrice,
			"Currency":   pricing.Currency,
		},
		"pages/home.html",
	); err != nil {
		s.logger.Error("render page error", "page", "home", "error", err)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if visitorFrom(r).Auth.IsAuthenticated() {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.renderLogin(w, r, http.StatusOK, next, "", nil)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	next := safeNext(r.FormValue("next"))
	creds := service.Credentials{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}

	if err := s.accounts.Login(r.Context(), st.Auth, creds); err != nil {
		if fields, ok := fieldErrors(err); ok {
			s.renderLogin(w, r, http.StatusUnprocessableEntity, next, creds.Email, fields)
			return
		}
		msg := api.UserMessage(err)
		if errors.Is(err, api.ErrUnauthorized) {
			msg = "Invalid email or password"
		}
		st.Toasts.Error("Login failed", msg)
		s.renderLogin(w, r, http.StatusUnauthorized, next, creds.Email, map[string]string{"form": msg})
		return
	}

	if u, ok := st.Auth.User(); ok {
		st.Toasts.Success("Welcome back", "Signed in as "+u.Name)
	}
	redirect(w, r, next)
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, next, email string, errs map[string]string) {
	data := map[string]any{"ActiveNav": "login", "Title": "Log in", "Next": next, "Email": email}
	if errs != nil {
		data["Errors"] = errs
	}
	if err := s.renderPage(w, r, status, data, "pages/login.html"); err != nil {
		s.logger.Error("render page error", "page", "login", "error", err)
	}
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if visitorFrom(r).Auth.IsAuthenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderRegister(w, r, http.StatusOK, service.Credentials{}, nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	creds := service.Credentials{
		Name:            strings.TrimSpace(r.FormValue("name")),
		Email:           strings.TrimSpace(r.FormValue("email")),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}

	if err := s.accounts.Register(r.Context(), st.Auth, creds); err != nil {
		if fields, ok := fieldErrors(err); ok {
			s.renderRegister(w, r, http.StatusUnprocessableEntity, creds, fields)
			return
		}
		msg := api.UserMessage(err)
		st.Toasts.Error("Registration failed", msg)
		s.renderRegister(w, r, http.StatusBadRequest, creds, map[string]string{"form": msg})
		return
	}

	st.Toasts.Success("Account created", "Welcome to BannerFront, "+creds.Name)
	redirect(w, r, "/configure")
}

func (s *Server) renderRegister(w http.ResponseWriter, r *http.Request, status int, creds service.Credentials, errs map[string]string) {
	data := map[string]any{"ActiveNav": "register", "Title": "Sign up", "Name": creds.Name, "Email": creds.Email}
	if errs != nil {
		data["Errors"] = errs
	}
	if err := s.renderPage(w, r, status, data, "pages/register.html"); err != nil {
		s.logger.Error("render page error", "page", "register", "error", err)
	}
}

// handleLogout signs the visitor out. The cart is kept.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	s.accounts.Logout(r.Context(), st.Auth)
	st.Flow.Start()
	st.SetAdminOrders(nil)
	st.Toasts.Success("Signed out", "")
	redirect(w, r, "/")
}

// sessionExpired handles service.ErrSessionExpired uniformly: the visitor
// has already been signed out, so send them to log in again.
func (s *Server) sessionExpired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, service.ErrSessionExpired) {
		return false
	}
	visitorFrom(r).Toasts.Warning("Session expired", "Please log in again.")
	redirect(w, r, "/login")
	return true
}
