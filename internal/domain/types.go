package domain

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// Bounds for custom banner dimensions, in centimetres.
const (
	MinDimensionCm = 10
	MaxDimensionCm = 1000
)

type Material string

const (
	MaterialVinyl  Material = "vinyl"
	MaterialFlex   Material = "flex"
	MaterialFabric Material = "fabric"
	MaterialMesh   Material = "mesh"
)

// Materials lists the selectable materials in display order.
var Materials = []MaterialOption{
	{Value: MaterialVinyl, Name: "Vinyl", Description: "Durable outdoor vinyl"},
	{Value: MaterialFlex, Name: "Flex", Description: "Standard flex material"},
	{Value: MaterialFabric, Name: "Fabric", Description: "Premium fabric banner"},
	{Value: MaterialMesh, Name: "Mesh", Description: "Wind-resistant mesh"},
}

type MaterialOption struct {
	Value       Material
	Name        string
	Description string
}

func (m Material) Valid() bool {
	switch m {
	case MaterialVinyl, MaterialFlex, MaterialFabric, MaterialMesh:
		return true
	}
	return false
}

// BannerConfig describes one banner to be printed. It is a value: editing a
// cart line produces a new BannerConfig rather than mutating the old one.
type BannerConfig struct {
	WidthCm    int
	HeightCm   int
	Material   Material
	Grommets   bool
	Lamination bool
}

// DefaultBannerConfig matches the first preset size.
func DefaultBannerConfig() BannerConfig {
	return BannerConfig{WidthCm: 60, HeightCm: 90, Material: MaterialVinyl}
}

// AreaSqm returns the banner area in square metres.
func (c BannerConfig) AreaSqm() decimal.Decimal {
	return decimal.NewFromInt(int64(c.WidthCm) * int64(c.HeightCm)).Div(decimal.NewFromInt(10000))
}

// Key is a canonical string for the configuration, usable as a cache key.
func (c BannerConfig) Key() string {
	return fmt.Sprintf("%dx%d:%s:g%t:l%t", c.WidthCm, c.HeightCm, c.Material, c.Grommets, c.Lamination)
}

// Validate reports every field that falls outside the accepted bounds.
func (c BannerConfig) Validate() error {
	var result *multierror.Error
	if c.WidthCm < MinDimensionCm || c.WidthCm > MaxDimensionCm {
		result = multierror.Append(result, &ValidationError{
			Field:   "width",
			Message: fmt.Sprintf("Width must be between %d and %d cm", MinDimensionCm, MaxDimensionCm),
		})
	}
	if c.HeightCm < MinDimensionCm || c.HeightCm > MaxDimensionCm {
		result = multierror.Append(result, &ValidationError{
			Field:   "height",
			Message: fmt.Sprintf("Height must be between %d and %d cm", MinDimensionCm, MaxDimensionCm),
		})
	}
	if !c.Material.Valid() {
		result = multierror.Append(result, &ValidationError{Field: "material", Message: "Please choose a material"})
	}
	return result.ErrorOrNil()
}

// ValidationError is a user-facing problem with one input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type PresetSize struct {
	Name     string
	WidthCm  int
	HeightCm int
	Category string
}

// PresetSizes are the standard sizes offered in the configurator.
var PresetSizes = []PresetSize{
	{"Flex Board Small", 60, 90, "small"},
	{"Vinyl Sticker", 30, 45, "small"},
	{"Shop Board", 90, 60, "small"},
	{"Flex Banner 4x3", 120, 90, "medium"},
	{"Flex Banner 6x4", 180, 120, "medium"},
	{"Event Banner", 150, 100, "medium"},
	{"Flex Banner 8x6", 240, 180, "large"},
	{"Flex Banner 10x8", 300, 240, "large"},
	{"Wedding Banner", 360, 240, "large"},
	{"Flex Banner 15x10", 450, 300, "xlarge"},
	{"Hoarding Banner", 600, 300, "xlarge"},
}

// CustomSizeName is the size selector value for free-form dimensions.
const CustomSizeName = "Custom Size"

// PresetFor returns the name of the preset matching the dimensions, or
// CustomSizeName.
func PresetFor(widthCm, heightCm int) string {
	for _, p := range PresetSizes {
		if p.WidthCm == widthCm && p.HeightCm == heightCm {
			return p.Name
		}
	}
	return CustomSizeName
}

// LookupPreset finds a preset by name.
func LookupPreset(name string) (PresetSize, bool) {
	for _, p := range PresetSizes {
		if p.Name == name {
			return p, true
		}
	}
	return PresetSize{}, false
}

type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every status in workflow order.
var OrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderCompleted, OrderCancelled}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

type Order struct {
	ID            string
	Status        OrderStatus
	TotalPrice    decimal.Decimal
	ContactNumber string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []OrderItem
}

type OrderItem struct {
	ID        string
	Config    BannerConfig
	FileName  string
	FileURL   string
	Price     decimal.Decimal
	CreatedAt time.Time
}

// EmailContent is the backend-generated order notification, for admin preview.
type EmailContent struct {
	OrderID       string
	Subject       string
	CustomerEmail string
	ContactNumber string
	FilesInfo     string
	HTMLContent   string
}
