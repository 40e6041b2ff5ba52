package model

import (
	"errors"
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// SecurityType identifies the kind of instrument a subscription refers to.
type SecurityType string

const (
	SecurityTypeEquity SecurityType = "EQUITY"
	SecurityTypeForex  SecurityType = "FOREX"
	SecurityTypeCFD    SecurityType = "CFD"
	SecurityTypeOption SecurityType = "OPTION"
)

// Resolution is the sampling period of a subscription's data.
type Resolution string

const (
	ResolutionTick   Resolution = "TICK"
	ResolutionSecond Resolution = "SECOND"
	ResolutionMinute Resolution = "MINUTE"
	ResolutionHour   Resolution = "HOUR"
	ResolutionDaily  Resolution = "DAILY"
)

// Duration returns the wall-clock span one bar of this resolution covers.
// Tick resolution has no fixed span and returns zero.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ErrUnsupportedSecurityType is returned when a subscription is requested for
// a security type the reader cannot resolve a path/line schema for.
var ErrUnsupportedSecurityType = errors.New("model: unsupported security type")

// SupportedSecurityType reports whether sec is one this module can source
// data for. Commodity and future security types are declared in some path
// generators in the wider ecosystem but are not supported here.
func SupportedSecurityType(sec SecurityType) bool {
	switch sec {
	case SecurityTypeEquity, SecurityTypeForex, SecurityTypeCFD, SecurityTypeOption:
		return true
	default:
		return false
	}
}

// SubscriptionConfig is the immutable identity of a single data source: a
// symbol, security type, resolution, and the handful of flags that change how
// the reader and assembler treat its data. Two configs are equal iff every
// field below (excluding MappedSymbol) is equal.
type SubscriptionConfig struct {
	Symbol         string
	SecurityType   SecurityType
	Resolution     Resolution
	DataTimeZone   *time.Location
	ExchangeTZ     *time.Location
	ExtendedHours  bool
	FillForward    bool
	IsCustomData   bool
	IsInternalFeed bool
	IsFiltered     bool
	DataType       string

	// MappedSymbol is the only mutable slot: the reader updates it when the
	// map file records a ticker remap for the subscription's symbol.
	MappedSymbol string

	// CustomPeriod overrides Resolution's fixed bar width with an arbitrary
	// duration string (e.g. "4h", "90m"), the way the teacher's consolidator
	// accepted free-form timeframe strings for resampling.
	CustomPeriod string
}

// PeriodDuration returns the bar width a consolidator should use for this
// config: CustomPeriod, parsed the teacher's way, when set; otherwise
// Resolution's fixed span.
func (c SubscriptionConfig) PeriodDuration() (time.Duration, error) {
	if c.CustomPeriod == "" {
		return c.Resolution.Duration(), nil
	}
	return str2duration.ParseDuration(c.CustomPeriod)
}

// NewSubscriptionConfig validates and builds a SubscriptionConfig.
func NewSubscriptionConfig(symbol string, sec SecurityType, res Resolution) (SubscriptionConfig, error) {
	if !SupportedSecurityType(sec) {
		return SubscriptionConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedSecurityType, sec)
	}
	return SubscriptionConfig{
		Symbol:       symbol,
		SecurityType: sec,
		Resolution:   res,
		DataTimeZone: time.UTC,
		ExchangeTZ:   time.UTC,
		MappedSymbol: symbol,
	}, nil
}

// Equal compares the immutable identity fields only, ignoring MappedSymbol.
func (c SubscriptionConfig) Equal(o SubscriptionConfig) bool {
	return c.Symbol == o.Symbol &&
		c.SecurityType == o.SecurityType &&
		c.Resolution == o.Resolution &&
		c.DataTimeZone.String() == o.DataTimeZone.String() &&
		c.ExchangeTZ.String() == o.ExchangeTZ.String() &&
		c.ExtendedHours == o.ExtendedHours &&
		c.FillForward == o.FillForward &&
		c.IsCustomData == o.IsCustomData &&
		c.IsInternalFeed == o.IsInternalFeed &&
		c.IsFiltered == o.IsFiltered &&
		c.DataType == o.DataType &&
		c.CustomPeriod == o.CustomPeriod
}

// Key returns a stable string identity for map indexing, mirroring the
// pair+timeframe keying scheme the teacher's data feed subscription uses.
func (c SubscriptionConfig) Key() string {
	return fmt.Sprintf("%s--%s--%s", c.Symbol, c.SecurityType, c.Resolution)
}

// SplitAssetQuote splits a "ASSET/QUOTE" pair into its two legs.
func SplitAssetQuote(pair string) (asset, quote string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:]
		}
	}
	return "", ""
}

// Subscription pairs a config with its lazy datum sequence and the "current"
// slot the feed driver advances. Owned exclusively by the feed driver while
// alive.
type Subscription struct {
	Config     SubscriptionConfig
	ExchangeTZ *time.Location
	Reader     DataPointReader
	current    DataPoint
	hasCurrent bool
	exhausted  bool
}

// DataPointReader is the minimal pull interface the feed drivers need from a
// subscription's lazy sequence: MoveNext advances by one, returning false at
// end of stream or on error.
type DataPointReader interface {
	MoveNext() bool
	Current() DataPoint
	Err() error
	Close() error
}

// NewSubscription wraps a reader with the current-slot bookkeeping the feed
// drivers rely on.
func NewSubscription(cfg SubscriptionConfig, tz *time.Location, reader DataPointReader) *Subscription {
	return &Subscription{Config: cfg, ExchangeTZ: tz, Reader: reader}
}

// Current returns the next datum whose end-time is at or before the frontier,
// and whether one is buffered.
func (s *Subscription) Current() (DataPoint, bool) {
	return s.current, s.hasCurrent
}

// Advance pulls the next item from the underlying reader into the current
// slot. Returns false once the reader is exhausted.
func (s *Subscription) Advance() bool {
	if s.exhausted {
		s.hasCurrent = false
		return false
	}
	if !s.Reader.MoveNext() {
		s.exhausted = true
		s.hasCurrent = false
		return false
	}
	s.current = s.Reader.Current()
	s.hasCurrent = true
	return true
}

// Dispose releases the underlying reader's resources.
func (s *Subscription) Dispose() error {
	return s.Reader.Close()
}
