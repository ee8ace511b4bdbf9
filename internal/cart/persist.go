package cart

import (
	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/domain"
)

type persistedCart struct {
	Items []persistedItem `json:"items"`
}

type persistedItem struct {
	ID       string          `json:"id"`
	Config   persistedConfig `json:"config"`
	FileName string          `json:"fileName,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type persistedConfig struct {
	WidthCm    int    `json:"widthCm"`
	HeightCm   int    `json:"heightCm"`
	Material   string `json:"material"`
	Grommets   bool   `json:"grommets"`
	Lamination bool   `json:"lamination"`
}

func fromItem(it Item) persistedItem {
	return persistedItem{
		ID: it.ID,
		Config: persistedConfig{
			WidthCm:    it.Config.WidthCm,
			HeightCm:   it.Config.HeightCm,
			Material:   string(it.Config.Material),
			Grommets:   it.Config.Grommets,
			Lamination: it.Config.Lamination,
		},
		FileName: it.FileName,
		Price:    it.Price,
		Quantity: it.Quantity,
	}
}

func (p persistedItem) toItem() Item {
	return Item{
		ID: p.ID,
		Config: domain.BannerConfig{
			WidthCm:    p.Config.WidthCm,
			HeightCm:   p.Config.HeightCm,
			Material:   domain.Material(p.Config.Material),
			Grommets:   p.Config.Grommets,
			Lamination: p.Config.Lamination,
		},
		FileName: p.FileName,
		Price:    p.Price,
		Quantity: p.Quantity,
	}
}
