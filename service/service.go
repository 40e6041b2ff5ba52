// Package service defines the interfaces the algorithm manager loop drives
// but never implements itself: brokerage execution, result reporting,
// history, and command submission are external collaborators (spec §1).
package service

import (
	"context"
	"errors"
	"time"

	"github.com/lumenquant/coreengine/model"
)

// Sentinel errors for the error kinds in spec §7.
var (
	ErrCancelled         = errors.New("service: operation cancelled")
	ErrInvalidSource     = errors.New("service: invalid data source")
	ErrReaderError       = errors.New("service: reader parse error")
	ErrUserCallbackError = errors.New("service: user callback error")
	ErrTimeLimitExceeded = errors.New("service: time limit exceeded")
)

// Broker executes and manages orders. Order-fill semantics are entirely
// delegated here; the core never decides trading outcomes (spec §1
// Non-goals).
type Broker interface {
	Account() (model.Account, error)
	Position(pair string) (asset, quote float64, err error)
	Order(pair string, id int64) (model.Order, error)
	CreateOrderMarket(side model.SideType, pair string, size float64) (model.Order, error)
	CreateOrderMarketOnClose(pair string, size float64) (model.Order, error)
	Cancel(model.Order) error
}

// Feeder supplies market data: historical ranges and warm-up limits.
type Feeder interface {
	AssetsInfo(pair string) model.AssetInfo
	CandlesByPeriod(ctx context.Context, pair, resolution string, start, end time.Time) ([]model.DataPoint, error)
	CandlesByLimit(ctx context.Context, pair, resolution string, limit int) ([]model.DataPoint, error)
}

// Exchange composes Broker and Feeder, the full-featured collaborator the
// engine talks to when not in pure-backtest mode.
type Exchange interface {
	Broker
	Feeder
}

// Notifier receives order events and free-text messages. The concrete
// transport (Telegram, email, ...) is out of scope for this module.
type Notifier interface {
	Notify(string)
	OnOrder(order model.Order)
	OnError(err error)
}

// ResultHandler records per-slice side effects the algorithm manager loop
// reports: sampled equity, handled errors, and runtime errors (spec §7).
type ResultHandler interface {
	SampleEquity(t time.Time, equity float64)
	HandledError(message string)
	RuntimeError(message string, stack string)
	ProcessSynchronousEvents(force bool)
}

// TransactionHandler drives order fills for non-market orders and exposes
// the synchronous-event pump the manager loop calls twice per iteration
// (spec §4.6 steps 10, 22).
type TransactionHandler interface {
	ProcessSynchronousEvents()
}

// RealTimeHandler is the seam the algorithm manager loop calls into once per
// iteration to advance the real-time scheduler (spec §4.6 step 9).
type RealTimeHandler interface {
	SetTime(t time.Time)
}

// Command is one entry drained from the CommandQueue by the manager loop
// (spec §4.6 step 3).
type Command struct {
	ID      int64
	Payload string
}

// CommandQueue is the external collaborator behind the
// "command-queue-handler" configuration name (spec §6).
type CommandQueue interface {
	Dequeue() ([]Command, error)
	Ack(id int64, success bool, message string) error
}

// HistoryProvider synthesizes warm-up slices from historical data before the
// live feed starts emitting (spec §4.6 "Warm-up").
type HistoryProvider interface {
	History(ctx context.Context, cfg model.SubscriptionConfig, start, end time.Time) ([]model.DataPoint, error)
}

// MapFileProvider resolves ticker-remap and delisting-date information for a
// symbol (spec §4.3).
type MapFileProvider interface {
	MappedSymbol(symbol string, asOf time.Time) (mapped string, changed bool)
	DelistingDate(symbol string) (time.Time, bool)
	HasData(symbol string, date time.Time) bool
}

// FactorFileProvider resolves split/dividend factors for a symbol (spec
// §4.3).
type FactorFileProvider interface {
	// FactorAt returns the split factor, dividend ratio factor, and whether
	// either applies on date.
	FactorAt(symbol string, date time.Time) (splitFactor, dividendRatio float64, hasEvent bool)
}

// Config is the configuration surface the core reads (spec §6). No loader
// populates it here — that is an explicit Non-goal — but the struct is the
// seam a configuration file/env loader would fill.
type Config struct {
	DataQueueHandler                string
	DataFeedHandler                 string
	ResultHandler                   string
	RealTimeHandler                 string
	SetupHandler                    string
	TransactionHandler              string
	HistoryProvider                 string
	CommandQueueHandler             string
	MapFileProvider                 string
	FactorFileProvider              string
	AlgorithmManagerTimeLoopMaximum time.Duration
	ForwardConsoleMessages          bool
	PluginDirectory                 string
	IgnoreVersionChecks             bool
	QuandlAuthToken                 string
}

// DefaultAlgorithmManagerTimeLoopMaximum is the spec §4.6 default of 10
// minutes.
const DefaultAlgorithmManagerTimeLoopMaximum = 10 * time.Minute
