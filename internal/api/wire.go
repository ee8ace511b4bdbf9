package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/domain"
)

// Wire shapes of the backend API. Only this file knows the snake_case names;
// everything above the client works with domain types.

type userDTO struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	User         userDTO `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type bannerConfigDTO struct {
	WidthCm    int    `json:"width_cm"`
	HeightCm   int    `json:"height_cm"`
	Material   string `json:"material"`
	Grommets   bool   `json:"grommets"`
	Lamination bool   `json:"lamination"`
}

type orderItemDTO struct {
	ID           string          `json:"id"`
	Price        decimal.Decimal `json:"price"`
	BannerConfig bannerConfigDTO `json:"banner_config"`
	FileName     string          `json:"file_name"`
	FileURL      *string         `json:"file_url"`
	CreatedAt    wireTime        `json:"created_at"`
}

type orderDTO struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	ContactNumber string          `json:"contact_number"`
	CreatedAt     wireTime        `json:"created_at"`
	UpdatedAt     wireTime        `json:"updated_at"`
	Items         []orderItemDTO  `json:"items"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type emailContentDTO struct {
	OrderID       string `json:"order_id"`
	Subject       string `json:"email_subject"`
	HTMLContent   string `json:"email_content"`
	ContactNumber string `json:"contact_number"`
	CustomerEmail string `json:"customer_email"`
	FilesInfo     string `json:"files_info"`
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
}

func toUser(d userDTO) domain.User {
	return domain.User{ID: d.ID, Email: d.Email, Name: d.Name, IsAdmin: d.IsAdmin}
}

func toConfigDTO(c domain.BannerConfig) bannerConfigDTO {
	return bannerConfigDTO{
		WidthCm:    c.WidthCm,
		HeightCm:   c.HeightCm,
		Material:   string(c.Material),
		Grommets:   c.Grommets,
		Lamination: c.Lamination,
	}
}

func toConfig(d bannerConfigDTO) domain.BannerConfig {
	return domain.BannerConfig{
		WidthCm:    d.WidthCm,
		HeightCm:   d.HeightCm,
		Material:   domain.Material(d.Material),
		Grommets:   d.Grommets,
		Lamination: d.Lamination,
	}
}

func toOrder(d orderDTO) domain.Order {
	o := domain.Order{
		ID:            d.ID,
		Status:        domain.OrderStatus(d.Status),
		TotalPrice:    d.TotalPrice,
		ContactNumber: d.ContactNumber,
		CreatedAt:     d.CreatedAt.Time,
		UpdatedAt:     d.UpdatedAt.Time,
		Items:         make([]domain.OrderItem, 0, len(d.Items)),
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	for _, it := range d.Items {
		item := domain.OrderItem{
			ID:        it.ID,
			Config:    toConfig(it.BannerConfig),
			FileName:  it.FileName,
			Price:     it.Price,
			CreatedAt: it.CreatedAt.Time,
		}
		if it.FileURL != nil {
			item.FileURL = *it.FileURL
		}
		o.Items = append(o.Items, item)
	}
	return o
}

func toOrders(ds []orderDTO) []domain.Order {
	out := make([]domain.Order, 0, len(ds))
	for _, d := range ds {
		out = append(out, toOrder(d))
	}
	return out
}

func toEmailContent(d emailContentDTO) domain.EmailContent {
	return domain.EmailContent{
		OrderID:       d.OrderID,
		Subject:       d.Subject,
		CustomerEmail: d.CustomerEmail,
		ContactNumber: d.ContactNumber,
		FilesInfo:     d.FilesInfo,
		HTMLContent:   d.HTMLContent,
	}
}

// wireTime accepts the backend's timestamps, which may omit the zone.
// Zoneless values are taken as UTC.
type wireTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
