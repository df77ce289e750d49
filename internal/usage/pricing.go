package usage

import "math"

// Price is a provider's list price in USD. Audio providers bill per minute,
// text-priced services per character.
type Price struct {
	PerMinute float64
	PerChar   float64
}

var listPrices = map[string]Price{
	"openai":   {PerMinute: 0.006},
	"deepgram": {PerMinute: 0.0043},
	"azure":    {PerMinute: 1.0 / 60},
	"google":   {PerMinute: 0.016},
	"local":    {},
}

// Prices is a price list keyed by provider. It is never modified after
// construction and is safe for concurrent use.
type Prices struct {
	byProvider map[string]Price
}

// DefaultPrices holds the built-in list prices.
var DefaultPrices = NewPrices(nil)

// NewPrices starts from the built-in list and applies per-minute overrides.
func NewPrices(perMinute map[string]float64) *Prices {
	m := make(map[string]Price, len(listPrices)+len(perMinute))
	for provider, p := range listPrices {
		m[provider] = p
	}
	for provider, v := range perMinute {
		p := m[provider]
		p.PerMinute = v
		m[provider] = p
	}
	return &Prices{byProvider: m}
}

// Estimate prices minutes of audio and characters of output for a provider.
// Unknown providers cost nothing.
func (p *Prices) Estimate(provider string, minutes float64, chars int) float64 {
	price, ok := p.byProvider[provider]
	if !ok {
		return 0
	}
	cost := minutes*price.PerMinute + float64(chars)*price.PerChar
	return math.Round(cost*1e6) / 1e6
}
