// Package pricing computes the advisory price estimate shown while a banner is
// being configured. The backend recalculates every order and is authoritative.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/domain"
)

// Tier is an area bracket with its per-square-metre rate. MaxAreaSqm is an
// inclusive upper bound; the last tier has no bound.
type Tier struct {
	Name       string
	MaxAreaSqm decimal.Decimal
	Unbounded  bool
	RatePerSqm decimal.Decimal
	Example    string
}

var tiers = []Tier{
	{Name: "Small", MaxAreaSqm: decimal.RequireFromString("0.5"), RatePerSqm: decimal.NewFromInt(800), Example: "60x90cm"},
	{Name: "Medium", MaxAreaSqm: decimal.RequireFromString("2.0"), RatePerSqm: decimal.NewFromInt(600), Example: "120x180cm"},
	{Name: "Large", MaxAreaSqm: decimal.RequireFromString("5.0"), RatePerSqm: decimal.NewFromInt(450), Example: "240x300cm"},
	{Name: "Extra Large", Unbounded: true, RatePerSqm: decimal.NewFromInt(350), Example: "450x600cm+"},
}

var multipliers = map[domain.Material]decimal.Decimal{
	domain.MaterialVinyl:  decimal.NewFromInt(1),
	domain.MaterialFlex:   decimal.RequireFromString("0.8"),
	domain.MaterialFabric: decimal.RequireFromString("1.4"),
	domain.MaterialMesh:   decimal.RequireFromString("1.2"),
}

var (
	GrommetsSurcharge   = decimal.NewFromInt(200)
	LaminationSurcharge = decimal.NewFromInt(300)
	FloorPrice          = decimal.NewFromInt(150)
)

// Currency is the ISO code all prices are quoted in.
const Currency = "INR"

// Tiers returns a copy of the rate table.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// TierFor returns the tier an area falls into.
func TierFor(areaSqm decimal.Decimal) Tier {
	for _, t := range tiers {
		if t.Unbounded || areaSqm.LessThanOrEqual(t.MaxAreaSqm) {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// Multiplier returns the material price multiplier. Unknown or empty
// materials price like vinyl.
func Multiplier(m domain.Material) decimal.Decimal {
	if v, ok := multipliers[m]; ok {
		return v
	}
	return multipliers[domain.MaterialVinyl]
}

// Estimate returns the estimated price of one banner, rounded to paise.
// Dimensions are assumed to have been validated already.
func Estimate(cfg domain.BannerConfig) decimal.Decimal {
	area := cfg.AreaSqm()
	price := area.Mul(TierFor(area).RatePerSqm).Mul(Multiplier(cfg.Material))

	if cfg.Grommets {
		price = price.Add(GrommetsSurcharge)
	}
	if cfg.Lamination {
		price = price.Add(LaminationSurcharge)
	}
	return decimal.Max(price, FloorPrice).Round(2)
}
