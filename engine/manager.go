// Package engine implements the algorithm manager loop (spec §4.6): the
// per-slice dispatch sequence that drives user algorithm callbacks, applies
// corporate actions, and pumps the synchronous-event handlers.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenquant/coreengine/contracts"
	"github.com/lumenquant/coreengine/model"
	"github.com/lumenquant/coreengine/service"
	"github.com/lumenquant/coreengine/tools/log"
)

// stepHistoryCapacity bounds the rolling window of recent Step durations the
// manager keeps for diagnostics (spec §8 scenario 6's time-limit monitor).
const stepHistoryCapacity = 64

// AlgorithmStatus mirrors the lifecycle an algorithm moves through.
type AlgorithmStatus string

const (
	AlgorithmStatusRunning      AlgorithmStatus = "RUNNING"
	AlgorithmStatusStopped      AlgorithmStatus = "STOPPED"
	AlgorithmStatusRuntimeError AlgorithmStatus = "RUNTIME_ERROR"
)

// Algorithm is the set of hooks the manager loop drives each iteration. A
// concrete user algorithm implements this; the engine never interprets
// trading logic itself (spec §1 Non-goals).
type Algorithm interface {
	Status() AlgorithmStatus
	SetStatus(AlgorithmStatus)
	SetCurrentTime(t time.Time)
	RuntimeErrorMessage() (string, bool)

	OnSymbolChanged(changes map[string]model.SymbolChangedAux)
	OnSecuritiesChanged(changes model.SecurityChanges)
	OnMarginCall(orders []model.Order) []model.Order
	OnMarginCallWarning()

	OnTradeBars(map[string]model.TradeBar)
	OnQuoteBars(map[string]model.QuoteBar)
	OnTicks(map[string][]model.Tick)
	OnOptionChains(map[string]*model.OptionChain)
	OnDividends(map[string]model.DividendAux)
	OnSplits(map[string]model.SplitAux)
	OnDelistings(map[string]model.DelistingAux)
	OnCustomData(data map[string][]model.DataPoint)
	OnData(slice *model.TimeSlice)

	RunCommand(payload string) error
}

// Portfolio is the accounting collaborator the manager loop applies
// corporate actions, price/cash-book refreshes, and margin/settlement scans
// against.
type Portfolio interface {
	CashBook() *model.CashBook
	OpenOrders(symbol string) []model.Order
	CancelOrder(order model.Order, reason string) error
	ApplyDividend(symbol string, div model.DividendAux)
	ApplySplit(symbol string, split model.SplitAux, adjustOpenOrders bool)
	RemoveSecurity(symbol string)
	HasSecurity(symbol string) bool
	RegisterSecurity(cfg model.SubscriptionConfig)
	MarginCallScan(now time.Time) (orders []model.Order, warning bool, err error)
	CashSettlementScan(now time.Time) error
	SubmitMarketOnCloseLiquidation(symbol string) (model.Order, error)

	// ApplyCashBookUpdate folds a conversion-rate price refresh into the
	// tracked currency holding (spec §4.6 step 8).
	ApplyCashBookUpdate(update model.CashBookUpdate)
	// ApplySecurityPrice refreshes a security's last market price (spec §4.6
	// step 8).
	ApplySecurityPrice(update model.SecurityUpdate)
	// RefreshOrder re-queries an order's current fill state, the way a
	// broker round-trip would, so the delisting sweep (step 11) observes
	// real fill progression instead of whatever state the order had when
	// submitted.
	RefreshOrder(order model.Order) (model.Order, error)
}

// Manager drives the 22-step dispatch sequence once per TimeSlice.
type Manager struct {
	Algorithm     Algorithm
	Portfolio     Portfolio
	Commands      service.CommandQueue
	Transactions  service.TransactionHandler
	Results       service.ResultHandler
	RealTime      service.RealTimeHandler
	Notifier      service.Notifier
	Consolidators *ConsolidatorRegistry

	// Broker, if set, is queried for the account snapshot backing equity
	// sampling (step 4) and balance lookups, the way the teacher's
	// order.Controller delegates Account()/Position() straight to the
	// exchange. Left nil, equity samples as zero and AccountBalance errors.
	Broker service.Broker

	Backtest bool

	// NormalizationMode governs whether a split also rescales open order
	// quantities (spec §8 scenario 2): always in live trading, and in
	// backtest only under raw normalization.
	NormalizationMode model.NormalizationMode

	MarginCallInterval     time.Duration
	SettlementScanInterval time.Duration
	nextMarginCallTime     time.Time
	nextSettlementScan     time.Time

	delistingTickets map[string]model.Order // symbol -> pending liquidation order
	lastDay          time.Time
	iterationStart   time.Time
	stepDurations    *contracts.RingBuffer[time.Duration]
}

// NewManager wires a Manager from its collaborators.
func NewManager(algo Algorithm, portfolio Portfolio, commands service.CommandQueue, tx service.TransactionHandler, results service.ResultHandler, rt service.RealTimeHandler, notifier service.Notifier) *Manager {
	return &Manager{
		Algorithm:              algo,
		Portfolio:              portfolio,
		Commands:               commands,
		Transactions:           tx,
		Results:                results,
		RealTime:               rt,
		Notifier:               notifier,
		NormalizationMode:      model.NormalizationAdjusted,
		MarginCallInterval:     time.Hour,
		SettlementScanInterval: time.Hour,
		delistingTickets:       make(map[string]model.Order),
		stepDurations:          contracts.NewRingBuffer[time.Duration](stepHistoryCapacity),
	}
}

// RecentStepDurations returns the wall-clock time each of the last
// stepHistoryCapacity Step calls took, oldest first.
func (m *Manager) RecentStepDurations() []time.Duration {
	return m.stepDurations.Items()
}

// adjustOpenOrdersOnSplit reports whether a split should also rescale open
// order quantities: true in live trading, or in backtest under raw
// normalization, matching spec §8 scenario 2.
func (m *Manager) adjustOpenOrdersOnSplit() bool {
	return !m.Backtest || m.NormalizationMode == model.NormalizationRaw
}

// sampleEquity reports the broker-reported account equity, or zero if no
// broker is wired.
func (m *Manager) sampleEquity() float64 {
	if m.Broker == nil {
		return 0
	}
	acct, err := m.Broker.Account()
	if err != nil {
		log.WithError(err).Warn("engine: account lookup for equity sample failed")
		return 0
	}
	return acct.Equity()
}

// AccountBalance reports the asset and quote balance legs for pair,
// delegating to the wired broker the way the teacher's order.Controller
// exposes the exchange's account to strategy code.
func (m *Manager) AccountBalance(pair string) (asset, quote model.Balance, err error) {
	if m.Broker == nil {
		return model.Balance{}, model.Balance{}, fmt.Errorf("engine: no broker wired")
	}
	acct, err := m.Broker.Account()
	if err != nil {
		return model.Balance{}, model.Balance{}, err
	}
	assetTick, quoteTick := model.SplitAssetQuote(pair)
	asset, quote = acct.Balance(assetTick, quoteTick)
	return asset, quote, nil
}

// Run consumes slices from in until it is closed or ctx is cancelled,
// calling Step for each and returning the first fatal error.
func (m *Manager) Run(ctx context.Context, in <-chan *model.TimeSlice) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-in:
			if !ok {
				return nil
			}
			if err := m.Step(ctx, s); err != nil {
				return err
			}
			if m.Algorithm.Status() != AlgorithmStatusRunning {
				return nil
			}
		}
	}
}

// Step runs the full 22-step dispatch sequence for one slice.
func (m *Manager) Step(ctx context.Context, s *model.TimeSlice) error {
	// 1. Reset the iteration start time (used by the time-limit monitor).
	m.iterationStart = time.Now()
	defer func() { m.stepDurations.Push(time.Since(m.iterationStart)) }()

	// 2. If algorithm status != running or cancel is observed, stop.
	if m.Algorithm.Status() != AlgorithmStatusRunning {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// 3. Drain the command queue; run each against the algorithm, post the
	// result to the result handler.
	if m.Commands != nil {
		cmds, err := m.Commands.Dequeue()
		if err != nil {
			log.WithError(err).Warn("engine: command queue dequeue failed")
		}
		for _, cmd := range cmds {
			runErr := m.Algorithm.RunCommand(cmd.Payload)
			success := runErr == nil
			message := ""
			if runErr != nil {
				message = runErr.Error()
			}
			if ackErr := m.Commands.Ack(cmd.ID, success, message); ackErr != nil {
				log.WithError(ackErr).Warn("engine: command ack failed")
			}
		}
	}

	// 4. If in backtest mode and the day changed, sample equity/daily
	// performance/benchmark for the previous day before applying new data.
	day := s.Time.Truncate(24 * time.Hour)
	if m.Backtest && !m.lastDay.IsZero() && !day.Equal(m.lastDay) {
		m.Results.SampleEquity(m.lastDay, m.sampleEquity())
	}
	m.lastDay = day

	// 5. Set the algorithm's current time = slice time.
	m.Algorithm.SetCurrentTime(s.Time)

	// 6. Symbol-change handling: dispatch to the user; cancel every open
	// order for renamed symbols.
	if len(s.View.SymbolChanges) > 0 {
		m.Algorithm.OnSymbolChanged(s.View.SymbolChanges)
		for oldSymbol := range s.View.SymbolChanges {
			for _, o := range m.Portfolio.OpenOrders(oldSymbol) {
				if err := m.Portfolio.CancelOrder(o, "Open order cancelled on symbol changed event"); err != nil {
					log.WithError(err).Warn("engine: cancel on symbol change failed")
				}
			}
		}
	}

	// 7. Security-changes handling: register each added security not yet
	// present.
	for _, cfg := range s.SecurityChanges.Added {
		if !m.Portfolio.HasSecurity(cfg.Symbol) {
			m.Portfolio.RegisterSecurity(cfg)
		}
	}

	// 8. Apply cash-book updates, then security-price updates.
	for _, upd := range s.CashBookUpdates {
		m.Portfolio.ApplyCashBookUpdate(upd)
	}
	for _, upd := range s.SecurityUpdates {
		m.Portfolio.ApplySecurityPrice(upd)
	}

	// 9. Call realtime.setTime(slice.time).
	if m.RealTime != nil {
		m.RealTime.SetTime(s.Time)
	}

	// 10. transactions.processSynchronousEvents() (non-market order fills).
	if m.Transactions != nil {
		m.Transactions.ProcessSynchronousEvents()
	}

	// 11. Drain delisting tickets: refresh each against the broker/
	// transaction layer and remove the security once the liquidation is
	// fully filled.
	for symbol, ticket := range m.delistingTickets {
		refreshed, err := m.Portfolio.RefreshOrder(ticket)
		if err != nil {
			log.WithError(err).Warn("engine: refresh delisting ticket failed")
			continue
		}
		m.delistingTickets[symbol] = refreshed
		if refreshed.Status == model.OrderStatusTypeFilled {
			m.Portfolio.RemoveSecurity(symbol)
			delete(m.delistingTickets, symbol)
		}
	}

	// 12. Runtime-error slot: mark and stop.
	if msg, has := m.Algorithm.RuntimeErrorMessage(); has {
		m.Algorithm.SetStatus(AlgorithmStatusRuntimeError)
		m.Results.RuntimeError(msg, "")
		return nil
	}

	// 13. Margin calls.
	if s.Time.After(m.nextMarginCallTime) || s.Time.Equal(m.nextMarginCallTime) || !m.Backtest {
		orders, warning, err := m.Portfolio.MarginCallScan(s.Time)
		if err != nil {
			m.Results.HandledError(fmt.Sprintf("margin call scan: %v", err))
		} else if len(orders) > 0 {
			func() {
				defer m.recoverCallback("OnMarginCall")
				m.Algorithm.OnMarginCall(orders)
			}()
		} else if warning {
			func() {
				defer m.recoverCallback("OnMarginCallWarning")
				m.Algorithm.OnMarginCallWarning()
			}()
		}
		m.nextMarginCallTime = s.Time.Add(m.MarginCallInterval)
	}

	// 14. Cash settlement.
	if s.Time.After(m.nextSettlementScan) || s.Time.Equal(m.nextSettlementScan) {
		if err := m.Portfolio.CashSettlementScan(s.Time); err != nil {
			m.Results.HandledError(fmt.Sprintf("cash settlement scan: %v", err))
		}
		m.nextSettlementScan = s.Time.Add(m.SettlementScanInterval)
	}

	// 15. Universe changes: dispatch onSecuritiesChanged.
	if !s.SecurityChanges.IsEmpty() {
		m.Algorithm.OnSecuritiesChanged(s.SecurityChanges)
	}

	// 16. Apply dividends; apply splits (in live/raw mode also adjust open
	// orders).
	for symbol, div := range s.View.Dividends {
		m.Portfolio.ApplyDividend(symbol, div)
	}
	adjustOrders := m.adjustOpenOrdersOnSplit()
	for symbol, split := range s.View.Splits {
		m.Portfolio.ApplySplit(symbol, split, adjustOrders)
	}

	// 17. Update each registered consolidator with its subscription's data.
	if m.Consolidators != nil {
		for _, upd := range s.ConsolidatorUpdates {
			func(u model.ConsolidatorUpdate) {
				defer m.recoverCallback("Consolidator")
				m.Consolidators.Dispatch(u)
			}(upd)
		}
	}

	// 18. Dispatch custom-data events keyed by data type.
	if len(s.CustomDataByType) > 0 {
		func() {
			defer m.recoverCallback("OnCustomData")
			m.Algorithm.OnCustomData(s.CustomDataByType)
		}()
	}

	// 19. Dispatch trade-bars/quote-bars/option-chains/ticks/dividends/
	// splits/delistings to matching user handlers.
	if len(s.View.TradeBars) > 0 {
		m.Algorithm.OnTradeBars(s.View.TradeBars)
	}
	if len(s.View.QuoteBars) > 0 {
		m.Algorithm.OnQuoteBars(s.View.QuoteBars)
	}
	if len(s.View.Chains) > 0 {
		m.Algorithm.OnOptionChains(s.View.Chains)
	}
	if len(s.View.Ticks) > 0 {
		m.Algorithm.OnTicks(s.View.Ticks)
	}
	if len(s.View.Dividends) > 0 {
		m.Algorithm.OnDividends(s.View.Dividends)
	}
	if len(s.View.Splits) > 0 {
		m.Algorithm.OnSplits(s.View.Splits)
	}
	if len(s.View.Delistings) > 0 {
		m.Algorithm.OnDelistings(s.View.Delistings)
	}

	// 20. Handle newly-observed delistings.
	for symbol, d := range s.View.Delistings {
		switch d.Phase {
		case model.DelistingPhaseWarning:
			ticket, err := m.Portfolio.SubmitMarketOnCloseLiquidation(symbol)
			if err != nil {
				m.Results.HandledError(fmt.Sprintf("delisting liquidation for %s: %v", symbol, err))
				continue
			}
			m.delistingTickets[symbol] = ticket
		case model.DelistingPhaseDelisted:
			if _, pending := m.delistingTickets[symbol]; !pending {
				m.Portfolio.RemoveSecurity(symbol)
			}
		}
	}

	// 21. Dispatch the full slice to the user's single-argument handler.
	m.Algorithm.OnData(s)

	// 22. Pump synchronous events again.
	if m.Transactions != nil {
		m.Transactions.ProcessSynchronousEvents()
	}
	if m.Results != nil {
		m.Results.ProcessSynchronousEvents(false)
	}

	return nil
}

func (m *Manager) recoverCallback(name string) {
	if r := recover(); r != nil {
		msg := fmt.Sprintf("%s: %v", name, r)
		log.Error(msg)
		if m.Results != nil {
			m.Results.HandledError(msg)
		}
	}
}
