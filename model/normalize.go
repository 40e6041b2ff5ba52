package model

// NormalizationMode is the rule applied to scale historical prices.
type NormalizationMode string

const (
	NormalizationRaw           NormalizationMode = "RAW"
	NormalizationAdjusted      NormalizationMode = "ADJUSTED"
	NormalizationSplitAdjusted NormalizationMode = "SPLIT_ADJUSTED"
	NormalizationTotalReturn   NormalizationMode = "TOTAL_RETURN"
)

// PriceScale tracks the running factors a subscription reader applies to
// raw prices under a given NormalizationMode, and can invert them to recover
// the raw close (spec §4.3 item 5, §8 round-trip property).
type PriceScale struct {
	Mode NormalizationMode

	// PriceFactor is the cumulative adjusted-price scale; SplitFactor is the
	// split-only scale; CumulativeDividend is the running sum of dividend
	// distributions applied under total-return mode.
	PriceFactor        float64
	SplitFactor        float64
	CumulativeDividend float64
}

// NewPriceScale returns a PriceScale with identity factors.
func NewPriceScale(mode NormalizationMode) PriceScale {
	return PriceScale{Mode: mode, PriceFactor: 1, SplitFactor: 1}
}

// ApplySplit folds a new split factor into the running scales.
func (p *PriceScale) ApplySplit(factor float64) {
	p.SplitFactor *= factor
	if p.Mode == NormalizationAdjusted || p.Mode == NormalizationTotalReturn {
		p.PriceFactor *= factor
	}
}

// ApplyDividend folds a dividend distribution into the running factors. Under
// total-return mode the distribution accumulates in CumulativeDividend and
// the ratio factor scales PriceFactor; other modes are unaffected.
func (p *PriceScale) ApplyDividend(distribution, ratioFactor float64) {
	if p.Mode != NormalizationTotalReturn {
		return
	}
	p.CumulativeDividend += distribution
	p.PriceFactor *= ratioFactor
}

// Scale applies the currently configured normalization to a raw price.
func (p PriceScale) Scale(raw float64) float64 {
	switch p.Mode {
	case NormalizationRaw:
		return raw
	case NormalizationSplitAdjusted:
		return raw * p.SplitFactor
	case NormalizationAdjusted:
		return raw * p.PriceFactor
	case NormalizationTotalReturn:
		return raw*p.PriceFactor + p.CumulativeDividend
	default:
		return raw
	}
}

// GetRawClose inverts the currently applied normalization, recovering the raw
// price from a previously scaled value using the saved factors. Round-trips
// with Scale to within 1e-10 (spec §8).
func (p PriceScale) GetRawClose(scaled float64) float64 {
	switch p.Mode {
	case NormalizationRaw:
		return scaled
	case NormalizationSplitAdjusted:
		if p.SplitFactor == 0 {
			return scaled
		}
		return scaled / p.SplitFactor
	case NormalizationAdjusted:
		if p.PriceFactor == 0 {
			return scaled
		}
		return scaled / p.PriceFactor
	case NormalizationTotalReturn:
		if p.PriceFactor == 0 {
			return scaled
		}
		return (scaled - p.CumulativeDividend) / p.PriceFactor
	default:
		return scaled
	}
}
