package model

import "time"

// SubscriptionPacket is one subscription's contribution to a time slice: the
// security/config identity plus the data points whose end-time is at or
// before the slice's frontier.
type SubscriptionPacket struct {
	Config SubscriptionConfig
	Data   []DataPoint
}

// SliceView groups a time slice's data the way user callbacks consume it:
// by symbol, per data tag, plus the auxiliary dictionaries.
type SliceView struct {
	TradeBars map[string]TradeBar
	QuoteBars map[string]QuoteBar
	Ticks     map[string][]Tick
	Chains    map[string]*OptionChain

	Dividends     map[string]DividendAux
	Splits        map[string]SplitAux
	Delistings    map[string]DelistingAux
	SymbolChanges map[string]SymbolChangedAux
}

func newSliceView() *SliceView {
	return &SliceView{
		TradeBars:     make(map[string]TradeBar),
		QuoteBars:     make(map[string]QuoteBar),
		Ticks:         make(map[string][]Tick),
		Chains:        make(map[string]*OptionChain),
		Dividends:     make(map[string]DividendAux),
		Splits:        make(map[string]SplitAux),
		Delistings:    make(map[string]DelistingAux),
		SymbolChanges: make(map[string]SymbolChangedAux),
	}
}

// SecurityUpdate refreshes a security's last market price.
type SecurityUpdate struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// ConsolidatorUpdate feeds one subscription's datum into its registered
// consolidators.
type ConsolidatorUpdate struct {
	Config SubscriptionConfig
	Data   DataPoint
}

// TimeSlice is the immutable, atomically-dispatched bundle of everything
// valid at UTC time Time (spec §3, §4.4).
type TimeSlice struct {
	Time                time.Time
	LocalTime           time.Time
	Packets             []SubscriptionPacket
	View                *SliceView
	SecurityUpdates     []SecurityUpdate
	CashBookUpdates     []CashBookUpdate
	ConsolidatorUpdates []ConsolidatorUpdate
	CustomData          []DataPoint
	CustomDataByType    map[string][]DataPoint
	SecurityChanges     SecurityChanges
	FullData            []DataPoint
}

// NewTimeSlice allocates an empty slice ready for the assembler to populate.
func NewTimeSlice(t, localTime time.Time) *TimeSlice {
	return &TimeSlice{
		Time:             t,
		LocalTime:        localTime,
		View:             newSliceView(),
		CustomDataByType: make(map[string][]DataPoint),
	}
}

// HasData reports whether this slice carries anything beyond bookkeeping.
func (t *TimeSlice) HasData() bool {
	return len(t.Packets) > 0 || !t.SecurityChanges.IsEmpty()
}
