package quote

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownMaterial is returned for materials outside the rate card.
var ErrUnknownMaterial = errors.New("quote: unknown material")

// Pricing constants. Rates are ₹ per cm³ of deposited material; print time
// is estimated at a flat rate per cm³ of model volume.
var (
	basePrice     = decimal.NewFromInt(50)
	minutesPerCm3 = decimal.NewFromFloat(0.15)
	ratePerMinute = decimal.NewFromInt(8)

	materialRates = map[string]decimal.Decimal{
		"PLA":   decimal.NewFromFloat(3.0),
		"PETG":  decimal.NewFromFloat(3.5),
		"ABS":   decimal.NewFromFloat(4.0),
		"TPU":   decimal.NewFromFloat(4.5),
		"RESIN": decimal.NewFromFloat(6.0),
	}
)

// Materials lists the supported material names in stable order.
func Materials() []string {
	names := make([]string, 0, len(materialRates))
	for name := range materialRates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Estimate is a non-binding price for printing a model. The authoritative
// order price is always computed by the commerce backend.
type Estimate struct {
	VolumeCm3     float64 `json:"volume_cm3"`
	Material      string  `json:"material"`
	InfillPercent int     `json:"infill_percent"`
	PriceRupees   int64   `json:"price"`
	PricePaise    int64   `json:"price_paise"`
}

// Price applies the linear model: a flat base, material cost scaled by the
// infill fraction, and a time cost from the per-cm³ print-speed estimate.
// The result is rounded up to the next whole rupee.
func Price(volumeCm3 float64, material string, infillPercent int) (Estimate, error) {
	name := strings.ToUpper(strings.TrimSpace(material))
	rate, ok := materialRates[name]
	if !ok {
		return Estimate{}, ErrUnknownMaterial
	}
	if infillPercent < 0 {
		infillPercent = 0
	}
	if infillPercent > 100 {
		infillPercent = 100
	}

	volume := decimal.NewFromFloat(volumeCm3)
	infill := decimal.NewFromInt(int64(infillPercent)).Div(decimal.NewFromInt(100))
	materialCost := volume.Mul(infill).Mul(rate)
	timeCost := volume.Mul(minutesPerCm3).Mul(ratePerMinute)
	price := basePrice.Add(materialCost).Add(timeCost).Ceil()

	return Estimate{
		VolumeCm3:     volumeCm3,
		Material:      name,
		InfillPercent: infillPercent,
		PriceRupees:   price.IntPart(),
		PricePaise:    price.Mul(decimal.NewFromInt(100)).IntPart(),
	}, nil
}
