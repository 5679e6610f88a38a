package risk

// RateLookup resolves the margin rate assumed for an instrument. The reference
// arithmetic uses a flat rate independent of instrument type; per-instrument
// schedules belong to the account provider's domain, so this stays a lookup
// rather than a hardcoded constant.
type RateLookup interface {
	Rate(instrument string) float64
}

// FlatRate assumes the same margin rate for every instrument.
type FlatRate float64

// DefaultMarginRate is the reference 50% margin assumption.
const DefaultMarginRate = 0.5

func (r FlatRate) Rate(instrument string) float64 {
	if r <= 0 {
		return DefaultMarginRate
	}
	return float64(r)
}
