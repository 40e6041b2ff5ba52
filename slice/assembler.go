// Package slice implements the time-slice assembler (spec §4.4): it turns a
// batch of subscription packets sharing one end-time into the immutable,
// atomically-dispatched TimeSlice the algorithm manager loop consumes.
package slice

import (
	"strconv"
	"strings"
	"time"

	"github.com/lumenquant/coreengine/model"
)

// Assembler accumulates per-symbol state (cash book, option chains) across
// slices and materializes one TimeSlice per call to Assemble.
type Assembler struct {
	cashBook   *model.CashBook
	chains     map[string]*model.OptionChain
	lastPrice  map[string]float64
	pendingChg model.SecurityChanges
}

// NewAssembler builds an assembler tracking currency conversions against
// cashBook.
func NewAssembler(cashBook *model.CashBook) *Assembler {
	return &Assembler{
		cashBook:  cashBook,
		chains:    make(map[string]*model.OptionChain),
		lastPrice: make(map[string]float64),
	}
}

// QueueSecurityChanges stages a universe-selection delta to be attached to
// the next assembled slice, merging with anything already pending.
func (a *Assembler) QueueSecurityChanges(changes model.SecurityChanges) {
	a.pendingChg = a.pendingChg.Merge(changes)
}

// Assemble groups packets sharing end-time t (localTime is the exchange-local
// rendering of t) into one TimeSlice, updating the assembler's running
// option-chain and cash-book state as a side effect.
func (a *Assembler) Assemble(t, localTime time.Time, packets []model.SubscriptionPacket) *model.TimeSlice {
	out := model.NewTimeSlice(t, localTime)
	out.Packets = packets
	out.SecurityChanges = a.pendingChg
	a.pendingChg = model.SecurityChanges{}

	for _, packet := range packets {
		for _, dp := range packet.Data {
			// Only a non-internal subscription's data reaches the algorithm's
			// full-data list (spec §4.4 step 2, bullet 1).
			if !dp.Config.IsInternalFeed {
				out.FullData = append(out.FullData, dp)
			}

			// A universe-collection option datum updates the canonical chain
			// directly and is consumed: no per-type dictionary, security, or
			// consolidator routing follows it.
			if dp.Config.SecurityType == model.SecurityTypeOption && dp.Tag == model.DataTagOptionChain {
				a.applyChainUpdate(out, dp)
				continue
			}

			if dp.IsAuxiliary() {
				switch dp.Tag {
				case model.DataTagSplit:
					out.View.Splits[dp.Symbol] = dp.Split
				case model.DataTagDividend:
					out.View.Dividends[dp.Symbol] = dp.Dividend
				case model.DataTagDelisting:
					out.View.Delistings[dp.Symbol] = dp.Delisting
				case model.DataTagSymbolChanged:
					out.View.SymbolChanges[dp.Symbol] = dp.SymbolChanged
				}
				continue
			}

			// Custom-data subscriptions bypass the built-in per-type
			// dictionaries entirely: they're keyed by the subscription's
			// declared data type and handed to the algorithm as a batch.
			if dp.Config.IsCustomData {
				out.CustomData = append(out.CustomData, dp)
				out.CustomDataByType[dp.Config.DataType] = append(out.CustomDataByType[dp.Config.DataType], dp)
				a.observePrice(out, dp.Symbol, dp.Value, t)
				if !dp.Config.IsInternalFeed {
					out.ConsolidatorUpdates = append(out.ConsolidatorUpdates, model.ConsolidatorUpdate{
						Config: packet.Config, Data: dp,
					})
				}
				continue
			}

			switch dp.Tag {
			case model.DataTagTradeBar:
				out.View.TradeBars[dp.Symbol] = dp.TradeBar
				a.observePrice(out, dp.Symbol, dp.TradeBar.Close, t)
			case model.DataTagQuoteBar:
				out.View.QuoteBars[dp.Symbol] = dp.QuoteBar
				a.observePrice(out, dp.Symbol, dp.QuoteBar.BidClose, t)
			case model.DataTagTick:
				out.View.Ticks[dp.Symbol] = append(out.View.Ticks[dp.Symbol], dp.Tick)
				a.observePrice(out, dp.Symbol, dp.Tick.Price, t)
			}

			// Options additionally materialise the contract record inside the
			// canonical per-underlying chain (spec §4.4's option paragraph).
			if dp.Config.SecurityType == model.SecurityTypeOption {
				a.applyContractDatum(out, dp)
			}

			if !dp.Config.IsInternalFeed {
				out.ConsolidatorUpdates = append(out.ConsolidatorUpdates, model.ConsolidatorUpdate{
					Config: packet.Config, Data: dp,
				})
			}
		}
	}

	return out
}

// applyChainUpdate merges a universe-collection datum's filtered contracts
// into the underlying's canonical chain.
func (a *Assembler) applyChainUpdate(out *model.TimeSlice, dp model.DataPoint) {
	underlying, _ := model.SplitAssetQuote(dp.Symbol)
	if underlying == "" {
		underlying = dp.Symbol
	}
	chain := a.chainFor(underlying)
	for _, c := range dp.Chain {
		chain.Apply(c)
	}
	out.View.Chains[underlying] = chain
}

// applyContractDatum routes a single option tick, quote bar, or trade bar
// into its contract's slot in the canonical chain: ticks update
// lastPrice/bid/ask by kind, quote bars update bid/ask/sizes from the
// closing side values, and trade bars update lastPrice from the close.
func (a *Assembler) applyContractDatum(out *model.TimeSlice, dp model.DataPoint) {
	underlying, right, strike, expiry, ok := parseOptionSymbol(dp.Symbol)
	if !ok {
		underlying, _ = model.SplitAssetQuote(dp.Symbol)
		if underlying == "" {
			underlying = dp.Symbol
		}
	}

	u := model.OptionContractUpdate{Underlying: underlying, Right: right, Strike: strike, Expiry: expiry}
	switch dp.Tag {
	case model.DataTagTick:
		switch dp.Tick.Kind {
		case model.TickKindTrade:
			u.LastPrice = dp.Tick.Price
		case model.TickKindQuote:
			u.Bid, u.Ask = dp.Tick.Bid, dp.Tick.Ask
			u.BidSize, u.AskSize = dp.Tick.BidSize, dp.Tick.AskSize
		}
	case model.DataTagQuoteBar:
		u.Bid, u.Ask = dp.QuoteBar.BidClose, dp.QuoteBar.AskClose
		u.BidSize, u.AskSize = dp.QuoteBar.BidSize, dp.QuoteBar.AskSize
	case model.DataTagTradeBar:
		u.LastPrice = dp.TradeBar.Close
	}

	chain := a.chainFor(underlying)
	chain.Apply(u)
	out.View.Chains[underlying] = chain
}

func (a *Assembler) chainFor(underlying string) *model.OptionChain {
	chain, ok := a.chains[underlying]
	if !ok {
		chain = &model.OptionChain{Underlying: underlying}
		a.chains[underlying] = chain
	}
	return chain
}

// parseOptionSymbol decodes the "UNDERLYING/YYMMDD[C|P]STRIKE" contract
// symbol format (strike scaled by 1000, OCC-style) into its parts.
func parseOptionSymbol(symbol string) (underlying string, right model.OptionRight, strike float64, expiry time.Time, ok bool) {
	slash := strings.IndexByte(symbol, '/')
	if slash < 0 {
		return "", "", 0, time.Time{}, false
	}
	underlying = symbol[:slash]
	rest := symbol[slash+1:]
	if len(rest) != 15 {
		return "", "", 0, time.Time{}, false
	}

	expiry, err := time.Parse("060102", rest[:6])
	if err != nil {
		return "", "", 0, time.Time{}, false
	}

	switch rest[6:7] {
	case "C":
		right = model.OptionRightCall
	case "P":
		right = model.OptionRightPut
	default:
		return "", "", 0, time.Time{}, false
	}

	scaled, err := strconv.ParseInt(rest[7:], 10, 64)
	if err != nil {
		return "", "", 0, time.Time{}, false
	}
	return underlying, right, float64(scaled) / 1000, expiry, true
}

func (a *Assembler) observePrice(out *model.TimeSlice, symbol string, price float64, t time.Time) {
	if price == 0 {
		return
	}
	a.lastPrice[symbol] = price
	out.SecurityUpdates = append(out.SecurityUpdates, model.SecurityUpdate{Symbol: symbol, Price: price, Time: t})

	if a.cashBook == nil {
		return
	}
	for _, held := range a.cashBook.SymbolIsTracked(symbol) {
		out.CashBookUpdates = append(out.CashBookUpdates, model.CashBookUpdate{Currency: held.Currency, Price: price})
	}
}
