package ports

import "context"

// Port: reference-data lookup for currency codes. The engine carries a
// currency tag on every amount but performs no FX conversion; it only
// needs to validate codes and know their minor-unit exponent.
type CurrencyDirectory interface {
	// MinorUnits returns the decimal exponent for an ISO 4217 code
	// (e.g. 2 for USD, 0 for JPY).
	MinorUnits(ctx context.Context, code string) (int, error)
}
