package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/artwork"
	"github.com/vbonduro/bannerfront/internal/auth"
	"github.com/vbonduro/bannerfront/internal/cart"
	"github.com/vbonduro/bannerfront/internal/domain"
)

var ErrEmptyCart = errors.New("cart is empty")

// MissingArtworkError lists cart lines whose uploaded file did not survive a
// restore and must be uploaded again before ordering.
type MissingArtworkError struct {
	Items []cart.Item
}

func (e *MissingArtworkError) Error() string {
	names := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		names = append(names, it.FileName)
	}
	return "artwork missing for " + strings.Join(names, ", ")
}

// CountryCode is a dialling prefix offered at checkout.
type CountryCode struct {
	Code    string
	Country string
}

// CountryCodes lists the selectable prefixes; the first is the default.
var CountryCodes = []CountryCode{
	{Code: "+91", Country: "India"},
	{Code: "+1", Country: "USA"},
	{Code: "+44", Country: "UK"},
	{Code: "+971", Country: "UAE"},
}

// ValidatePhone strips formatting from number and checks it against the
// rules for code. It returns the bare digits.
func ValidatePhone(code, number string) (string, error) {
	known := false
	for _, c := range CountryCodes {
		if c.Code == code {
			known = true
			break
		}
	}
	if !known {
		return "", &domain.ValidationError{Field: "countryCode", Message: "Please choose a country code"}
	}

	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if code == "+91" {
		if len(digits) != 10 {
			return "", &domain.ValidationError{Field: "phone", Message: "Please enter 10 digits"}
		}
		if digits[0] < '6' {
			return "", &domain.ValidationError{Field: "phone", Message: "Indian mobile numbers start with 6-9"}
		}
		return digits, nil
	}
	if len(digits) < 7 || len(digits) > 15 {
		return "", &domain.ValidationError{Field: "phone", Message: "Please enter a valid phone number"}
	}
	return digits, nil
}

// orderPlacer is the subset of api.Client that CheckoutService requires.
type orderPlacer interface {
	CreateOrder(ctx context.Context, token string, lines []api.OrderLine, contactNumber string) (domain.Order, error)
}

type CheckoutService struct {
	backend orderPlacer
	account *AccountService
	files   artwork.Store
	logger  *slog.Logger
}

func NewCheckoutService(backend orderPlacer, account *AccountService, files artwork.Store, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{backend: backend, account: account, files: files, logger: logger}
}

// PlaceOrder submits the whole cart as a single order. Each line is sent once
// per unit of quantity. On success the cart is cleared; on any failure it is
// left untouched so the visitor can retry.
func (s *CheckoutService) PlaceOrder(ctx context.Context, c *cart.Store, a *auth.Store, countryCode, phone string) (domain.Order, error) {
	items := c.Items()
	if len(items) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	digits, err := ValidatePhone(countryCode, phone)
	if err != nil {
		return domain.Order{}, err
	}
	if missing := c.MissingArtwork(); len(missing) > 0 {
		return domain.Order{}, &MissingArtworkError{Items: missing}
	}

	lines, err := s.buildLines(ctx, items)
	if err != nil {
		return domain.Order{}, err
	}
	contact := countryCode + "-" + digits

	order, err := withAuth(ctx, s.account, a, func(token string) (domain.Order, error) {
		return s.backend.CreateOrder(ctx, token, lines, contact)
	})
	if err != nil {
		s.logger.Error("order placement failed", "lines", len(lines), "error", err)
		return domain.Order{}, err
	}

	s.logger.Info("order placed", "order_id", order.ID, "lines", len(lines), "total", order.TotalPrice.String())
	c.ClearCart(ctx)
	return order, nil
}

func (s *CheckoutService) buildLines(ctx context.Context, items []cart.Item) ([]api.OrderLine, error) {
	var lines []api.OrderLine
	for _, it := range items {
		content, err := s.readArtwork(ctx, *it.File)
		if err != nil {
			return nil, err
		}
		line := api.OrderLine{Config: it.Config, FileName: it.FileName, MimeType: it.File.MimeType, Content: content}
		for n := 0; n < it.Quantity; n++ {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (s *CheckoutService) readArtwork(ctx context.Context, h artwork.Handle) ([]byte, error) {
	rc, _, err := s.files.Get(ctx, h.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to open artwork %s: %w", h.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read artwork %s: %w", h.Name, err)
	}
	return data, nil
}
