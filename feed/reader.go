// Package feed assembles raw line sources into model.DataPoint sequences
// (the subscription reader, spec §4.3) and drives them forward in either
// backtest or live mode (spec §4.5).
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lumenquant/coreengine/contracts"
	"github.com/lumenquant/coreengine/model"
	"github.com/lumenquant/coreengine/service"
	"github.com/lumenquant/coreengine/tools/log"
)

// ErrInsufficientData is returned when a source yields no parseable rows.
var ErrInsufficientData = errors.New("feed: insufficient data")

// dedupCapacity bounds how many recent end-times the reader remembers when
// rejecting duplicate bars at non-tick resolutions (spec §4.3 item 1).
const dedupCapacity = 4

// LineSource resolves a subscription's raw rows. A concrete implementation
// might read one CSV file, or one file per date under a directory laid out
// by security type/resolution; the reader doesn't care which.
type LineSource interface {
	Lines(symbol string) ([][]string, error)
}

// columnIndex mirrors the teacher's csvfeed header-detection loop,
// generalized to the three row shapes a subscription can carry.
type columnIndex struct {
	time, open, high, low, close, volume int
	price, quantity, bid, ask            int
	bidOpen, bidHigh, bidLow, bidClose   int
	askOpen, askHigh, askLow, askClose   int
	bidSize, askSize                     int
	isTick, isQuoteBar                   bool
}

func detectColumns(header []string) columnIndex {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	var ci columnIndex
	ci.time = idx["time"]
	if _, ok := idx["price"]; ok {
		ci.isTick = true
		ci.price = idx["price"]
		ci.quantity = idx["quantity"]
		ci.bid = idx["bid"]
		ci.ask = idx["ask"]
		return ci
	}
	if _, ok := idx["bidopen"]; ok {
		ci.isQuoteBar = true
		ci.bidOpen, ci.bidHigh, ci.bidLow, ci.bidClose = idx["bidopen"], idx["bidhigh"], idx["bidlow"], idx["bidclose"]
		ci.askOpen, ci.askHigh, ci.askLow, ci.askClose = idx["askopen"], idx["askhigh"], idx["asklow"], idx["askclose"]
		ci.bidSize, ci.askSize = idx["bidsize"], idx["asksize"]
		return ci
	}
	ci.open, ci.high, ci.low, ci.close, ci.volume = idx["open"], idx["high"], idx["low"], idx["close"], idx["volume"]
	return ci
}

func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, err := strconv.ParseInt(row[0], 10, 64)
	return err != nil
}

// dateGroup buffers one calendar date's accepted price points so the four
// per-date checks (spec §4.3 item 4) can run against a whole day at once,
// before any of that day's price instances are appended to the sequence.
type dateGroup struct {
	dayStart time.Time
	rows     []model.DataPoint
}

// pendingFactor is a split/dividend discovered while scanning one date's
// rows, staged to emit on the *next* date using this date's closing value
// as the reference price (spec §4.3 item 4d, item 6).
type pendingFactor struct {
	splitFactor    float64
	dividendRatio  float64
	referencePrice float64
}

// SubscriptionReader is the model.DataPointReader built from a LineSource
// plus corporate-action and ticker-remap providers. It parses eagerly and
// replays lazily, matching the teacher's eager-parse-then-iterate csvfeed
// shape while layering in the per-date auxiliary-event walk spec §4.3
// describes.
type SubscriptionReader struct {
	cfg        model.SubscriptionConfig
	points     []model.DataPoint
	cursor     int
	readerErrs []error
}

// NewSubscriptionReader parses source's rows for cfg.Symbol into a sorted
// DataPoint sequence, interleaving split/dividend/delisting/symbol-change
// auxiliary events resolved from factors and mapFile. The sequence is left
// unbounded by period (see NewSubscriptionReaderForPeriod).
func NewSubscriptionReader(cfg model.SubscriptionConfig, source LineSource, mapFile service.MapFileProvider, factors service.FactorFileProvider) (*SubscriptionReader, error) {
	return NewSubscriptionReaderForPeriod(cfg, source, mapFile, factors, time.Time{}, time.Time{})
}

// NewSubscriptionReaderForPeriod is NewSubscriptionReader, additionally
// dropping items before periodStart and terminating the sequence once an
// item falls after periodFinish (spec §4.3 item 3). A zero time leaves that
// side unbounded.
func NewSubscriptionReaderForPeriod(cfg model.SubscriptionConfig, source LineSource, mapFile service.MapFileProvider, factors service.FactorFileProvider, periodStart, periodFinish time.Time) (*SubscriptionReader, error) {
	rows, err := source.Lines(cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", service.ErrInvalidSource, cfg.Symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientData, cfg.Symbol)
	}

	// Header detection falls back to the trade-bar layout when the source
	// omits an explicit header row (matches the teacher's csvfeed default).
	ci := columnIndex{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}
	if looksLikeHeader(rows[0]) {
		ci = detectColumns(rows[0])
		rows = rows[1:]
	}

	r := &SubscriptionReader{cfg: cfg}

	dedup := contracts.NewDedupQueue(dedupCapacity)
	var hasLastCustomEnd bool
	var lastCustomEnd time.Time

	var groups []dateGroup
	for _, row := range rows {
		ts, perr := strconv.ParseInt(row[ci.time], 10, 64)
		if perr != nil {
			// A malformed line is a reader error (spec §4.3 error handling):
			// non-fatal, the offending line is skipped and parsing continues.
			r.readerErrs = append(r.readerErrs, fmt.Errorf("%w: %s: %v", service.ErrReaderError, cfg.Symbol, perr))
			log.WithError(perr).Warn("feed: skipping unparseable line")
			continue
		}
		endTime := time.Unix(ts, 0).In(cfg.ExchangeTZ)

		if !periodStart.IsZero() && endTime.Before(periodStart) {
			continue
		}
		if !periodFinish.IsZero() && endTime.After(periodFinish) {
			break
		}

		dp := model.DataPoint{Symbol: cfg.Symbol, Config: cfg, EndTime: endTime}
		switch {
		case ci.isTick:
			dp.Tag = model.DataTagTick
			dp.Tick.Price = parseFloat(row, ci.price)
			dp.Tick.Quantity = parseFloat(row, ci.quantity)
			dp.Tick.Bid = parseFloat(row, ci.bid)
			dp.Tick.Ask = parseFloat(row, ci.ask)
			dp.Value = dp.Tick.Price
		case ci.isQuoteBar:
			dp.Tag = model.DataTagQuoteBar
			dp.QuoteBar.BidOpen, dp.QuoteBar.BidHigh, dp.QuoteBar.BidLow, dp.QuoteBar.BidClose =
				parseFloat(row, ci.bidOpen), parseFloat(row, ci.bidHigh), parseFloat(row, ci.bidLow), parseFloat(row, ci.bidClose)
			dp.QuoteBar.AskOpen, dp.QuoteBar.AskHigh, dp.QuoteBar.AskLow, dp.QuoteBar.AskClose =
				parseFloat(row, ci.askOpen), parseFloat(row, ci.askHigh), parseFloat(row, ci.askLow), parseFloat(row, ci.askClose)
			dp.QuoteBar.BidSize, dp.QuoteBar.AskSize = parseFloat(row, ci.bidSize), parseFloat(row, ci.askSize)
			dp.Value = dp.QuoteBar.BidClose
		default:
			dp.Tag = model.DataTagTradeBar
			dp.TradeBar.Open, dp.TradeBar.High, dp.TradeBar.Low, dp.TradeBar.Close, dp.TradeBar.Volume =
				parseFloat(row, ci.open), parseFloat(row, ci.high), parseFloat(row, ci.low), parseFloat(row, ci.close), parseFloat(row, ci.volume)
			dp.Value = dp.TradeBar.Close
		}

		// Item 1: no duplicate end-times for non-tick resolutions.
		if cfg.Resolution != model.ResolutionTick {
			key := endTime.Format(time.RFC3339Nano)
			if dedup.Seen(key) {
				continue
			}
			dedup.Add(key)
		}

		// Item 2: for custom data, items whose end-time is strictly before
		// the previous accepted item are skipped (no backwards jumps).
		if cfg.IsCustomData {
			if hasLastCustomEnd && endTime.Before(lastCustomEnd) {
				continue
			}
			lastCustomEnd = endTime
			hasLastCustomEnd = true
		}

		dayStart := time.Date(endTime.Year(), endTime.Month(), endTime.Day(), 0, 0, 0, 0, endTime.Location())
		if len(groups) == 0 || !groups[len(groups)-1].dayStart.Equal(dayStart) {
			groups = append(groups, dateGroup{dayStart: dayStart})
		}
		g := &groups[len(groups)-1]
		g.rows = append(g.rows, dp)
	}

	points := make([]model.DataPoint, 0, len(rows))
	lastMapped := cfg.Symbol
	var pending *pendingFactor

	// (a) Delisting: warn on the map file's own delisting date, delist the
	// day after (spec §4.3 item 4a). These are terminal markers independent
	// of whether a price row exists on either date, so they're injected once
	// rather than gated on a matching date group.
	if mapFile != nil {
		if delistDate, ok := mapFile.DelistingDate(cfg.Symbol); ok {
			points = append(points,
				model.DataPoint{Symbol: cfg.Symbol, Config: cfg, EndTime: delistDate,
					Tag: model.DataTagDelisting, Delisting: model.DelistingAux{Phase: model.DelistingPhaseWarning}},
				model.DataPoint{Symbol: cfg.Symbol, Config: cfg, EndTime: delistDate.Add(24 * time.Hour),
					Tag: model.DataTagDelisting, Delisting: model.DelistingAux{Phase: model.DelistingPhaseDelisted}},
			)
		}
	}

	for i, g := range groups {
		if mapFile != nil {
			// (b) Presence: skip the whole date if the map file has no data
			// for it, holding any pending factor for the date that does.
			if !mapFile.HasData(cfg.Symbol, g.dayStart) {
				continue
			}

			// (c) Symbol remapping: emit a symbol-changed aux the date the
			// mapped symbol actually changes, not once at construction time.
			if mapped, changed := mapFile.MappedSymbol(cfg.Symbol, g.dayStart); changed && mapped != lastMapped {
				points = append(points, model.DataPoint{Symbol: cfg.Symbol, Config: cfg, EndTime: g.dayStart,
					Tag: model.DataTagSymbolChanged, SymbolChanged: model.SymbolChangedAux{OldSymbol: lastMapped, NewSymbol: mapped}})
				lastMapped = mapped
				cfg.MappedSymbol = mapped
			}
		}

		// Item 6: a factor staged on the prior date flushes now, before
		// this date's own price instances.
		if pending != nil {
			if pending.splitFactor != 0 && pending.splitFactor != 1 {
				points = append(points, model.DataPoint{Symbol: cfg.Symbol, Config: cfg, EndTime: g.dayStart,
					Tag: model.DataTagSplit, Split: model.SplitAux{ReferencePrice: pending.referencePrice, Factor: pending.splitFactor}})
			}
			if pending.dividendRatio != 0 {
				points = append(points, model.DataPoint{Symbol: cfg.Symbol, Config: cfg, EndTime: g.dayStart,
					Tag: model.DataTagDividend, Dividend: model.DividendAux{Distribution: pending.dividendRatio}})
			}
			pending = nil
		}

		points = append(points, g.rows...)

		// (d) Factor-file lookahead: if the *next* date in this sequence
		// carries a split or dividend, stage it using today's closing value
		// as the reference price (spec §4.3 item 4d).
		if factors != nil && i+1 < len(groups) && len(g.rows) > 0 {
			next := groups[i+1]
			if splitFactor, dividendRatio, hasEvent := factors.FactorAt(cfg.Symbol, next.dayStart); hasEvent {
				pending = &pendingFactor{
					splitFactor:    splitFactor,
					dividendRatio:  dividendRatio,
					referencePrice: g.rows[len(g.rows)-1].Value,
				}
			}
		}
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].EndTime.Before(points[j].EndTime) })

	r.cfg = cfg
	r.points = points
	return r, nil
}

func parseFloat(row []string, idx int) float64 {
	if idx < 0 || idx >= len(row) {
		return 0
	}
	v, _ := strconv.ParseFloat(row[idx], 64)
	return v
}

// ReaderErrors returns every non-fatal parse error encountered (spec §4.3
// error handling): each caused one line to be skipped, not the read to
// abort.
func (r *SubscriptionReader) ReaderErrors() []error {
	return r.readerErrs
}

// MoveNext advances the cursor, returning false once every parsed datum has
// been yielded.
func (r *SubscriptionReader) MoveNext() bool {
	if r.cursor >= len(r.points) {
		return false
	}
	r.cursor++
	return true
}

// Current returns the datum at the cursor position established by the last
// successful MoveNext.
func (r *SubscriptionReader) Current() model.DataPoint {
	if r.cursor == 0 || r.cursor > len(r.points) {
		return model.DataPoint{}
	}
	return r.points[r.cursor-1]
}

// Err reports a terminal error. The subscription reader never aborts mid-
// parse (see ReaderErrors), so this is always nil; it exists to satisfy
// model.DataPointReader.
func (r *SubscriptionReader) Err() error { return nil }

// Close is a no-op: the reader holds no external resources once parsed.
func (r *SubscriptionReader) Close() error { return nil }

// MemoizedLineSource wraps a LineSource behind a read-through cache so a
// symbol's rows are resolved at most once per process even when multiple
// SubscriptionReaders are built against it across warm-up and live replay
// (spec §9's contract-glue memoizer).
type MemoizedLineSource struct {
	inner    LineSource
	memoizer *contracts.Memoizer[[][]string]
}

// NewMemoizedLineSource builds a memoizing LineSource backed by store (nil
// for in-memory only), e.g. a storage.DayCache, using JSON to (de)serialize
// rows the same way storage.JSONCodec encodes everything else this module
// persists.
func NewMemoizedLineSource(inner LineSource, store contracts.Store) *MemoizedLineSource {
	codec := contracts.Codec[[][]string]{
		Encode: func(rows [][]string) ([]byte, error) { return json.Marshal(rows) },
		Decode: func(raw []byte) ([][]string, error) {
			var rows [][]string
			err := json.Unmarshal(raw, &rows)
			return rows, err
		},
	}
	loader := func(symbol string) ([][]string, error) { return inner.Lines(symbol) }
	return &MemoizedLineSource{inner: inner, memoizer: contracts.NewMemoizer(store, codec, loader)}
}

// Lines satisfies LineSource, resolving through the memoizer.
func (m *MemoizedLineSource) Lines(symbol string) ([][]string, error) {
	return m.memoizer.Get(symbol)
}
