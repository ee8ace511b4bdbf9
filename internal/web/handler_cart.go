package web

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/bannerfront/internal/artwork/local"
	"github.com/vbonduro/bannerfront/internal/session"
)

func cartData(st *session.State) map[string]any {
	return map[string]any{
		"ActiveNav": "cart",
		"Title":     "Cart",
		"Items":     st.Cart.Items(),
		"Count":     st.Cart.ItemCount(),
		"Total":     st.Cart.TotalPrice(),
		"Missing":   st.Cart.MissingArtwork(),
	}
}

func (s *Server) handleCartPage(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	if err := s.renderPage(w, r, http.StatusOK, cartData(st),
		"pages/cart.html", "partials/cart_lines.html",
	); err != nil {
		s.logger.Error("render page error", "page", "cart", "error", err)
	}
}

// renderCart answers a cart mutation: the refreshed line list for HTMX,
// otherwise a redirect to the cart page.
func (s *Server) renderCart(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	if err := s.renderPartial(w, r, "cart_lines", cartData(visitorFrom(r)), "partials/cart_lines.html"); err != nil {
		s.logger.Error("render partial error", "partial", "cart_lines", "error", err)
	}
}

// handleUpdateQuantity accepts either an absolute "quantity" or a relative
// "delta". A result of zero or less removes the line; unknown lines are
// ignored.
func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	id := r.PathValue("id")
	item, ok := st.Cart.Item(id)
	if !ok {
		s.renderCart(w, r)
		return
	}

	quantity := item.Quantity
	if v := strings.TrimSpace(r.FormValue("quantity")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid quantity", http.StatusBadRequest)
			return
		}
		quantity = n
	} else {
		delta, err := strconv.Atoi(strings.TrimSpace(r.FormValue("delta")))
		if err != nil {
			http.Error(w, "invalid quantity", http.StatusBadRequest)
			return
		}
		quantity += delta
	}

	st.Cart.UpdateQuantity(r.Context(), id, quantity)
	if quantity <= 0 {
		st.Toasts.Success("Removed from cart", item.FileName)
	}
	s.renderCart(w, r)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	if item, ok := st.Cart.Item(r.PathValue("id")); ok {
		st.Cart.RemoveItem(r.Context(), item.ID)
		st.Toasts.Success("Removed from cart", item.FileName)
	}
	s.renderCart(w, r)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	st.Cart.ClearCart(r.Context())
	st.Toasts.Success("Cart cleared", "")
	s.renderCart(w, r)
}

// handleGetArtwork streams the uploaded file of one of the visitor's own
// cart lines.
func (s *Server) handleGetArtwork(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	item, ok := st.Cart.Item(r.PathValue("id"))
	if !ok || !item.HasArtwork() {
		http.NotFound(w, r)
		return
	}

	rc, _, err := s.files.Get(r.Context(), item.File.Key)
	if err != nil {
		if errors.Is(err, local.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "failed to read artwork", http.StatusInternalServerError)
		s.logger.Error("get artwork error", "item_id", item.ID, "error", err)
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Error("failed to close artwork", "error", cerr)
		}
	}()

	w.Header().Set("Content-Type", item.File.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": item.File.Name}))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("artwork stream error", "item_id", item.ID, "error", err)
	}
}
