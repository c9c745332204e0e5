package currency

import (
	"context"
	"delivery-match-service/internal/domain"
	"fmt"
	"strings"
)

// StaticDirectory is a CurrencyDirectory backed by a fixed ISO 4217 table.
// It stands in for the external reference-data service; the Redis cache
// adapter fronts it in production wiring.
type StaticDirectory struct{}

func NewStaticDirectory() *StaticDirectory { return &StaticDirectory{} }

var minorUnits = map[string]int{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CAD": 2,
	"AUD": 2,
	"CHF": 2,
	"TRY": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"BHD": 3,
}

func (d *StaticDirectory) MinorUnits(ctx context.Context, code string) (int, error) {
	units, ok := minorUnits[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0, fmt.Errorf("currency directory: unknown code %q: %w", code, domain.ErrNotFound)
	}
	return units, nil
}
