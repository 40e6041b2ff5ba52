// Package exchange implements the fan-out exchange (spec §4.2): a single
// worker thread per instance that multi-plexes many pull-based enumerators,
// routing their items either to the enumerator's own handler or to the
// data-handler registered for the item's symbol.
package exchange

import (
	"context"
	"time"

	"github.com/StudioSol/set"
	"github.com/jpillora/backoff"

	"github.com/lumenquant/coreengine/contracts"
	"github.com/lumenquant/coreengine/model"
	"github.com/lumenquant/coreengine/tools/log"
)

// Enumerator is a pull-based source of data points. Next returns false when
// the source is exhausted or an error occurred (Err tells which).
type Enumerator interface {
	Next() (model.DataPoint, bool)
	Err() error
	Close() error
}

// DataHandler consumes one data point for a registered symbol.
type DataHandler func(model.DataPoint)

// ErrorHandler classifies an advance error as fatal (stop the worker) or
// recoverable (log and continue).
type ErrorHandler func(err error) (fatal bool)

type enumeratorEntry struct {
	symbol        string
	source        Enumerator
	shouldAdvance func() bool
	onFinished    func()
	selfHandles   bool
	ownHandler    DataHandler
}

// Exchange owns the registered enumerators and data handlers and runs them
// from a single worker goroutine.
type Exchange struct {
	token        contracts.RWToken
	symbols      *set.LinkedHashSetString
	enumerators  map[string]*enumeratorEntry
	dataHandlers map[string]DataHandler
	errorHandler ErrorHandler
	idleInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle Exchange; call Start to begin the worker loop.
func New() *Exchange {
	return &Exchange{
		symbols:      set.NewLinkedHashSetString(),
		enumerators:  make(map[string]*enumeratorEntry),
		dataHandlers: make(map[string]DataHandler),
		idleInterval: 0,
	}
}

// AddEnumerator registers source under symbol. shouldAdvance, if non-nil,
// gates whether the worker advances this source on a given pass.
// onFinished, if non-nil, runs once when the source is exhausted, before it
// is disposed and unregistered. A source that handles its own items (used
// for universe-feed packaging) is registered via AddSelfHandlingEnumerator.
func (e *Exchange) AddEnumerator(symbol string, source Enumerator, shouldAdvance func() bool, onFinished func()) {
	defer e.token.WLock()()
	if shouldAdvance == nil {
		shouldAdvance = func() bool { return true }
	}
	e.symbols.Add(symbol)
	e.enumerators[symbol] = &enumeratorEntry{
		symbol:        symbol,
		source:        source,
		shouldAdvance: shouldAdvance,
		onFinished:    onFinished,
	}
}

// AddSelfHandlingEnumerator registers source under symbol with its own
// handler, bypassing the data-handler lookup.
func (e *Exchange) AddSelfHandlingEnumerator(symbol string, source Enumerator, handler DataHandler, shouldAdvance func() bool, onFinished func()) {
	e.AddEnumerator(symbol, source, shouldAdvance, onFinished)
	defer e.token.WLock()()
	e.enumerators[symbol].selfHandles = true
	e.enumerators[symbol].ownHandler = handler
}

// SetDataHandler registers the handler invoked for items produced by
// whichever enumerator is registered under symbol.
func (e *Exchange) SetDataHandler(symbol string, handler DataHandler) {
	defer e.token.WLock()()
	e.dataHandlers[symbol] = handler
}

// RemoveEnumerator unregisters and disposes the enumerator for symbol.
func (e *Exchange) RemoveEnumerator(symbol string) {
	defer e.token.WLock()()
	if entry, ok := e.enumerators[symbol]; ok {
		_ = entry.source.Close()
		delete(e.enumerators, symbol)
		e.symbols.Remove(symbol)
	}
}

// RemoveDataHandler unregisters the data handler for symbol.
func (e *Exchange) RemoveDataHandler(symbol string) {
	defer e.token.WLock()()
	delete(e.dataHandlers, symbol)
}

// SetErrorHandler installs the callback that classifies advance errors.
func (e *Exchange) SetErrorHandler(handler ErrorHandler) {
	defer e.token.WLock()()
	e.errorHandler = handler
}

// snapshot and dataHandlerFor run once per worker pass, far more often than
// the registration calls above mutate state, so they only take the read
// lock.
func (e *Exchange) snapshot() []*enumeratorEntry {
	defer e.token.RLock()()
	entries := make([]*enumeratorEntry, 0, len(e.enumerators))
	for _, symbol := range e.symbols.Iter() {
		if entry, ok := e.enumerators[symbol]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (e *Exchange) dataHandlerFor(symbol string) (DataHandler, bool) {
	defer e.token.RLock()()
	h, ok := e.dataHandlers[symbol]
	return h, ok
}

// Start runs the worker loop in a new goroutine, returning immediately.
func (e *Exchange) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		off := &backoff.Backoff{Min: time.Millisecond, Max: 200 * time.Millisecond, Factor: 2}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			didWork := false
			for _, entry := range e.snapshot() {
				if !entry.shouldAdvance() {
					continue
				}
				item, ok := entry.source.Next()
				if !ok {
					if err := entry.source.Err(); err != nil && e.errorHandler != nil {
						fatal := e.errorHandler(err)
						if fatal {
							return
						}
					}
					if entry.onFinished != nil {
						entry.onFinished()
					}
					e.RemoveEnumerator(entry.symbol)
					continue
				}
				didWork = true

				if entry.selfHandles && entry.ownHandler != nil {
					entry.ownHandler(item)
					continue
				}
				if handler, ok := e.dataHandlerFor(item.Symbol); ok {
					handler(item)
				} else {
					log.WithField("symbol", item.Symbol).Debug("exchange: no data handler registered, dropping item")
				}
			}

			if !didWork {
				if e.idleInterval > 0 {
					time.Sleep(e.idleInterval)
				} else {
					time.Sleep(off.Duration())
				}
			} else {
				off.Reset()
			}
		}
	}()
}

// SetIdleInterval overrides the idle sleep used when a full pass produces no
// work; zero (the default) falls back to the backoff schedule.
func (e *Exchange) SetIdleInterval(d time.Duration) {
	e.idleInterval = d
}

// Stop cancels the worker loop and waits for it to exit.
func (e *Exchange) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}
