package model

import (
	"strconv"
	"time"
)

// DataTag discriminates the payload carried by a DataPoint.
type DataTag string

const (
	DataTagTick               DataTag = "TICK"
	DataTagTradeBar           DataTag = "TRADE_BAR"
	DataTagQuoteBar           DataTag = "QUOTE_BAR"
	DataTagOptionChain        DataTag = "OPTION_CHAIN"
	DataTagUniverseCollection DataTag = "UNIVERSE_COLLECTION"
	DataTagSplit              DataTag = "SPLIT"
	DataTagDividend           DataTag = "DIVIDEND"
	DataTagDelisting          DataTag = "DELISTING"
	DataTagSymbolChanged      DataTag = "SYMBOL_CHANGED"
)

// TickKind further discriminates a DataTagTick payload.
type TickKind string

const (
	TickKindTrade TickKind = "TRADE"
	TickKindQuote TickKind = "QUOTE"
)

// DelistingPhase discriminates the two sub-phases of a delisting auxiliary.
type DelistingPhase string

const (
	DelistingPhaseWarning  DelistingPhase = "WARNING"
	DelistingPhaseDelisted DelistingPhase = "DELISTED"
)

// TradeBar is an OHLCV bar.
type TradeBar struct {
	Open, High, Low, Close, Volume float64
}

// QuoteBar is a bid/ask OHLC bar with sizes at the bar's close.
type QuoteBar struct {
	BidOpen, BidHigh, BidLow, BidClose float64
	AskOpen, AskHigh, AskLow, AskClose float64
	BidSize, AskSize                   float64
}

// Tick is a single trade or quote print.
type Tick struct {
	Kind       TickKind
	Price      float64 // trade price, or mid for generic use
	Quantity   float64
	Bid, Ask   float64
	BidSize    float64
	AskSize    float64
	Suspicious bool
}

// SplitAux is a split auxiliary event: value is the previous close used as
// the reference price, Factor is the split ratio (e.g. 0.5 for a 2-for-1).
type SplitAux struct {
	ReferencePrice float64
	Factor         float64
}

// DividendAux is a dividend auxiliary event.
type DividendAux struct {
	Distribution float64
}

// DelistingAux is a delisting auxiliary event.
type DelistingAux struct {
	Phase DelistingPhase
}

// SymbolChangedAux records a ticker remap.
type SymbolChangedAux struct {
	OldSymbol string
	NewSymbol string
}

// DataPoint is the tagged-variant replacement for dynamic polymorphism over
// datum subtypes (spec §9): one struct, one Tag, and exactly one populated
// payload field for that tag.
type DataPoint struct {
	Symbol  string
	Config  SubscriptionConfig
	Value   float64
	EndTime time.Time
	Tag     DataTag

	TradeBar TradeBar
	QuoteBar QuoteBar
	Tick     Tick

	Split         SplitAux
	Dividend      DividendAux
	Delisting     DelistingAux
	SymbolChanged SymbolChangedAux

	// Chain carries filtered contracts for a universe-collection option
	// chain datum; once routed by the assembler the datum is consumed.
	Chain []OptionContractUpdate
}

// IsAuxiliary reports whether this datum is a non-price event.
func (d DataPoint) IsAuxiliary() bool {
	switch d.Tag {
	case DataTagSplit, DataTagDividend, DataTagDelisting, DataTagSymbolChanged:
		return true
	default:
		return false
	}
}

// OptionRight is a put or call.
type OptionRight string

const (
	OptionRightCall OptionRight = "CALL"
	OptionRightPut  OptionRight = "PUT"
)

// OptionContractUpdate is one contract's worth of quote/trade state routed
// into the canonical chain by the time-slice assembler.
type OptionContractUpdate struct {
	Underlying       string
	Right            OptionRight
	Strike           float64
	Expiry           time.Time
	LastPrice        float64
	Bid, Ask         float64
	BidSize, AskSize float64
	UnderlyingLast   float64
}

// OptionChain is the canonical per-underlying chain assembled from ticks,
// quote bars, trade bars, and universe-collection updates.
type OptionChain struct {
	Underlying string
	Contracts  map[string]*OptionContractUpdate // keyed by contract identity
}

func contractKey(right OptionRight, strike float64, expiry time.Time) string {
	return string(right) + "|" + expiry.Format("20060102") + "|" + formatStrike(strike)
}

func formatStrike(strike float64) string {
	scaled := int64(strike*10000 + 0.5)
	return strconv.FormatInt(scaled, 10)
}

// Apply merges a contract update into the chain, creating the contract entry
// on first sight.
func (oc *OptionChain) Apply(u OptionContractUpdate) {
	if oc.Contracts == nil {
		oc.Contracts = make(map[string]*OptionContractUpdate)
	}
	key := contractKey(u.Right, u.Strike, u.Expiry)
	existing, ok := oc.Contracts[key]
	if !ok {
		cp := u
		oc.Contracts[key] = &cp
		return
	}
	if u.LastPrice != 0 {
		existing.LastPrice = u.LastPrice
	}
	if u.Bid != 0 {
		existing.Bid, existing.BidSize = u.Bid, u.BidSize
	}
	if u.Ask != 0 {
		existing.Ask, existing.AskSize = u.Ask, u.AskSize
	}
	if u.UnderlyingLast != 0 {
		existing.UnderlyingLast = u.UnderlyingLast
	}
}
