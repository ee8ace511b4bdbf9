package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/cart"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/service"
	"github.com/vbonduro/bannerfront/internal/session"
)

func checkoutData(st *session.State, countryCode, phone string, errs map[string]string, missing []cart.Item) map[string]any {
	if errs == nil {
		errs = map[string]string{}
	}
	return map[string]any{
		"ActiveNav":    "cart",
		"Title":        "Checkout",
		"Items":        st.Cart.Items(),
		"Total":        st.Cart.TotalPrice(),
		"CountryCodes": service.CountryCodes,
		"CountryCode":  countryCode,
		"Phone":        phone,
		"Errors":       errs,
		"Missing":      missing,
	}
}

func (s *Server) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	if st.Cart.Len() == 0 {
		st.Toasts.Warning("Your cart is empty", "Add a banner before checking out.")
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	if err := s.renderPage(w, r, http.StatusOK,
		checkoutData(st, service.CountryCodes[0].Code, "", nil, st.Cart.MissingArtwork()),
		"pages/checkout.html",
	); err != nil {
		s.logger.Error("render page error", "page", "checkout", "error", err)
	}
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	code := r.FormValue("country_code")
	phone := strings.TrimSpace(r.FormValue("phone"))

	order, err := s.checkout.PlaceOrder(r.Context(), st.Cart, st.Auth, code, phone)
	if err == nil {
		st.Toasts.Success("Order placed", "Order #"+shortID(order.ID)+" is being processed.")
		redirect(w, r, "/orders")
		return
	}
	if s.sessionExpired(w, r, err) {
		return
	}

	var missing *service.MissingArtworkError
	status := http.StatusUnprocessableEntity
	errs, _ := fieldErrors(err)
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		st.Toasts.Warning("Your cart is empty", "Add a banner before checking out.")
		redirect(w, r, "/cart")
		return
	case errors.As(err, &missing):
		errs["form"] = "Some artwork needs to be uploaded again."
	case len(errs) == 0:
		status = http.StatusBadGateway
		msg := api.UserMessage(err)
		errs["form"] = msg
		st.Toasts.Error("Order failed", msg)
	}

	if err := s.renderPage(w, r, status,
		checkoutData(st, code, phone, errs, st.Cart.MissingArtwork()),
		"pages/checkout.html",
	); err != nil {
		s.logger.Error("render page error", "page", "checkout", "error", err)
	}
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	data := map[string]any{"ActiveNav": "orders", "Title": "My orders"}

	orders, err := s.orders.MyOrders(r.Context(), st.Auth)
	if err != nil {
		if s.sessionExpired(w, r, err) {
			return
		}
		s.logger.Warn("failed to load orders", "visitor", st.VisitorID, "error", err)
		data["LoadError"] = api.UserMessage(err)
	}
	data["Orders"] = orders

	if err := s.renderPage(w, r, http.StatusOK, data, "pages/orders.html"); err != nil {
		s.logger.Error("render page error", "page", "orders", "error", err)
	}
}

func adminData(orders []domain.Order) map[string]any {
	return map[string]any{
		"ActiveNav": "admin",
		"Title":     "Admin",
		"Orders":    orders,
		"Stats":     service.ComputeStats(orders),
		"Statuses":  domain.OrderStatuses,
	}
}

func (s *Server) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	orders, err := s.orders.AllOrders(r.Context(), st.Auth, st)
	data := adminData(orders)
	if err != nil {
		if s.sessionExpired(w, r, err) {
			return
		}
		data["LoadError"] = api.UserMessage(err)
		st.Toasts.Error("Failed to load orders", api.UserMessage(err))
	}

	if err := s.renderPage(w, r, http.StatusOK, data, "pages/admin.html", "partials/admin_orders.html"); err != nil {
		s.logger.Error("render page error", "page", "admin", "error", err)
	}
}

// handleUpdateStatus applies a status change and re-renders the list the
// backend returns afterwards. A failed update or reload re-renders the last
// known list.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	status, err := domain.ParseOrderStatus(r.FormValue("status"))
	if err != nil {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	orders, err := s.orders.UpdateStatus(r.Context(), st.Auth, st, r.PathValue("id"), status)
	switch {
	case err == nil:
		st.Toasts.Success("Order status updated", "Order #"+shortID(r.PathValue("id"))+" is now "+string(status)+".")
	case s.sessionExpired(w, r, err):
		return
	case errors.Is(err, service.ErrRefreshFailed):
		st.Toasts.Warning("Status updated, but the list could not be reloaded", api.UserMessage(err))
	default:
		st.Toasts.Error("Failed to update order status", api.UserMessage(err))
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	if err := s.renderPartial(w, r, "admin_orders", adminData(orders), "partials/admin_orders.html"); err != nil {
		s.logger.Error("render partial error", "partial", "admin_orders", "error", err)
	}
}

func (s *Server) handleEmailPreview(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	email, err := s.orders.EmailPreview(r.Context(), st.Auth, r.PathValue("id"))
	if err != nil {
		if s.sessionExpired(w, r, err) {
			return
		}
		s.logger.Warn("failed to load email preview", "order_id", r.PathValue("id"), "error", err)
		st.Toasts.Error("Failed to load email preview", api.UserMessage(err))
		if err := s.renderToasts(w, r); err != nil {
			s.logger.Error("render partial error", "partial", "toasts", "error", err)
		}
		return
	}
	if err := s.renderPartial(w, r, "email_preview", email, "partials/email_preview.html"); err != nil {
		s.logger.Error("render partial error", "partial", "email_preview", "error", err)
	}
}
