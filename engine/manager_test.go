package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquant/coreengine/model"
)

type fakeAlgorithm struct {
	status            AlgorithmStatus
	runtimeErr        string
	hasRuntimeErr     bool
	symbolChanges     []map[string]model.SymbolChangedAux
	securitiesChanged []model.SecurityChanges
	marginCalls       [][]model.Order
	delistings        []map[string]model.DelistingAux
	customData        []map[string][]model.DataPoint
	dataDispatches    int
}

func (a *fakeAlgorithm) Status() AlgorithmStatus             { return a.status }
func (a *fakeAlgorithm) SetStatus(s AlgorithmStatus)         { a.status = s }
func (a *fakeAlgorithm) SetCurrentTime(time.Time)            {}
func (a *fakeAlgorithm) RuntimeErrorMessage() (string, bool) { return a.runtimeErr, a.hasRuntimeErr }
func (a *fakeAlgorithm) OnSymbolChanged(m map[string]model.SymbolChangedAux) {
	a.symbolChanges = append(a.symbolChanges, m)
}
func (a *fakeAlgorithm) OnSecuritiesChanged(c model.SecurityChanges) {
	a.securitiesChanged = append(a.securitiesChanged, c)
}
func (a *fakeAlgorithm) OnMarginCall(orders []model.Order) []model.Order {
	a.marginCalls = append(a.marginCalls, orders)
	return orders
}
func (a *fakeAlgorithm) OnMarginCallWarning()                         {}
func (a *fakeAlgorithm) OnTradeBars(map[string]model.TradeBar)        {}
func (a *fakeAlgorithm) OnQuoteBars(map[string]model.QuoteBar)        {}
func (a *fakeAlgorithm) OnTicks(map[string][]model.Tick)              {}
func (a *fakeAlgorithm) OnOptionChains(map[string]*model.OptionChain) {}
func (a *fakeAlgorithm) OnDividends(map[string]model.DividendAux)     {}
func (a *fakeAlgorithm) OnSplits(map[string]model.SplitAux)           {}
func (a *fakeAlgorithm) OnDelistings(m map[string]model.DelistingAux) {
	a.delistings = append(a.delistings, m)
}
func (a *fakeAlgorithm) OnCustomData(m map[string][]model.DataPoint) {
	a.customData = append(a.customData, m)
}
func (a *fakeAlgorithm) OnData(*model.TimeSlice) { a.dataDispatches++ }
func (a *fakeAlgorithm) RunCommand(string) error { return nil }

type fakePortfolio struct {
	cancelled        []model.Order
	removed          []string
	registered       []model.SubscriptionConfig
	liquidationOrder model.Order
	hasSecurity      map[string]bool
	cashBookUpdates  []model.CashBookUpdate
	securityUpdates  []model.SecurityUpdate
	refreshedOrders  []model.Order
	refreshOverride  func(model.Order) (model.Order, error)
}

func newFakePortfolio() *fakePortfolio {
	return &fakePortfolio{hasSecurity: make(map[string]bool)}
}

func (p *fakePortfolio) CashBook() *model.CashBook { return nil }
func (p *fakePortfolio) OpenOrders(symbol string) []model.Order {
	if symbol == "BAR" {
		return []model.Order{{ID: 1, Pair: "BAR"}}
	}
	return nil
}
func (p *fakePortfolio) CancelOrder(order model.Order, reason string) error {
	p.cancelled = append(p.cancelled, order)
	return nil
}
func (p *fakePortfolio) ApplyDividend(string, model.DividendAux) {}
func (p *fakePortfolio) ApplySplit(string, model.SplitAux, bool) {}
func (p *fakePortfolio) RemoveSecurity(symbol string)            { p.removed = append(p.removed, symbol) }
func (p *fakePortfolio) HasSecurity(symbol string) bool          { return p.hasSecurity[symbol] }
func (p *fakePortfolio) RegisterSecurity(cfg model.SubscriptionConfig) {
	p.registered = append(p.registered, cfg)
}
func (p *fakePortfolio) MarginCallScan(time.Time) ([]model.Order, bool, error) {
	return nil, false, nil
}
func (p *fakePortfolio) CashSettlementScan(time.Time) error { return nil }
func (p *fakePortfolio) SubmitMarketOnCloseLiquidation(symbol string) (model.Order, error) {
	return p.liquidationOrder, nil
}
func (p *fakePortfolio) ApplyCashBookUpdate(update model.CashBookUpdate) {
	p.cashBookUpdates = append(p.cashBookUpdates, update)
}
func (p *fakePortfolio) ApplySecurityPrice(update model.SecurityUpdate) {
	p.securityUpdates = append(p.securityUpdates, update)
}
func (p *fakePortfolio) RefreshOrder(order model.Order) (model.Order, error) {
	p.refreshedOrders = append(p.refreshedOrders, order)
	if p.refreshOverride != nil {
		return p.refreshOverride(order)
	}
	return order, nil
}

type noopTx struct{ calls int }

func (n *noopTx) ProcessSynchronousEvents() { n.calls++ }

type noopResults struct {
	runtimeErrs   []string
	equitySamples []float64
}

func (n *noopResults) SampleEquity(t time.Time, equity float64) {
	n.equitySamples = append(n.equitySamples, equity)
}
func (n *noopResults) HandledError(string) {}
func (n *noopResults) RuntimeError(msg string, stack string) {
	n.runtimeErrs = append(n.runtimeErrs, msg)
}
func (n *noopResults) ProcessSynchronousEvents(bool) {}

type fakeBroker struct {
	account model.Account
	err     error
}

func (b *fakeBroker) Account() (model.Account, error) { return b.account, b.err }
func (b *fakeBroker) Position(pair string) (float64, float64, error) {
	return 0, 0, nil
}
func (b *fakeBroker) Order(pair string, id int64) (model.Order, error) { return model.Order{}, nil }
func (b *fakeBroker) CreateOrderMarket(side model.SideType, pair string, size float64) (model.Order, error) {
	return model.Order{}, nil
}
func (b *fakeBroker) CreateOrderMarketOnClose(pair string, size float64) (model.Order, error) {
	return model.Order{}, nil
}
func (b *fakeBroker) Cancel(model.Order) error { return nil }

func TestManager_Step_SymbolChangeCancelsOpenOrders(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	portfolio := newFakePortfolio()
	m := NewManager(algo, portfolio, nil, &noopTx{}, &noopResults{}, nil, nil)

	slice := model.NewTimeSlice(time.Now(), time.Now())
	slice.View.SymbolChanges["BAR"] = model.SymbolChangedAux{OldSymbol: "BAR", NewSymbol: "BAZ"}

	require.NoError(t, m.Step(context.Background(), slice))

	require.Len(t, portfolio.cancelled, 1)
	assert.Equal(t, "BAR", portfolio.cancelled[0].Pair)
	assert.Len(t, algo.symbolChanges, 1)
}

func TestManager_Step_DelistingWarningSubmitsLiquidationThenRemoves(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	portfolio := newFakePortfolio()
	portfolio.liquidationOrder = model.Order{ID: 7, Pair: "FOO", Status: model.OrderStatusTypeNew, Quantity: 10}
	m := NewManager(algo, portfolio, nil, &noopTx{}, &noopResults{}, nil, nil)

	warn := model.NewTimeSlice(time.Now(), time.Now())
	warn.View.Delistings["FOO"] = model.DelistingAux{Phase: model.DelistingPhaseWarning}
	require.NoError(t, m.Step(context.Background(), warn))
	assert.Empty(t, portfolio.removed, "security must not be removed before the liquidation order fills")

	// Partial fill: RefreshOrder reports progress, still must not remove.
	portfolio.refreshOverride = func(o model.Order) (model.Order, error) {
		return model.Order{ID: 7, Quantity: 10, FilledQty: 4, Status: model.OrderStatusTypePartiallyFilled}, nil
	}
	next := model.NewTimeSlice(time.Now(), time.Now())
	require.NoError(t, m.Step(context.Background(), next))
	assert.Empty(t, portfolio.removed)

	// Fully filled: RefreshOrder reports completion, now removed.
	portfolio.refreshOverride = func(o model.Order) (model.Order, error) {
		return model.Order{ID: 7, Quantity: 10, FilledQty: 10, Status: model.OrderStatusTypeFilled}, nil
	}
	final := model.NewTimeSlice(time.Now(), time.Now())
	require.NoError(t, m.Step(context.Background(), final))
	assert.Contains(t, portfolio.removed, "FOO")
}

func TestManager_Step_RuntimeErrorStopsAlgorithm(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning, hasRuntimeErr: true, runtimeErr: "boom"}
	portfolio := newFakePortfolio()
	results := &noopResults{}
	m := NewManager(algo, portfolio, nil, &noopTx{}, results, nil, nil)

	s := model.NewTimeSlice(time.Now(), time.Now())
	require.NoError(t, m.Step(context.Background(), s))

	assert.Equal(t, AlgorithmStatusRuntimeError, algo.status)
	assert.Contains(t, results.runtimeErrs, "boom")
	assert.Equal(t, 0, algo.dataDispatches, "OnData must not run past a runtime error")
}

func TestManager_Step_SkipsWhenNotRunning(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusStopped}
	m := NewManager(algo, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)

	s := model.NewTimeSlice(time.Now(), time.Now())
	require.NoError(t, m.Step(context.Background(), s))
	assert.Equal(t, 0, algo.dataDispatches)
}

func TestManager_RecentStepDurationsTracksEachStepCall(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	m := NewManager(algo, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)

	assert.Empty(t, m.RecentStepDurations())

	require.NoError(t, m.Step(context.Background(), model.NewTimeSlice(time.Now(), time.Now())))
	require.NoError(t, m.Step(context.Background(), model.NewTimeSlice(time.Now(), time.Now())))

	durations := m.RecentStepDurations()
	assert.Len(t, durations, 2)
	for _, d := range durations {
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestManager_Step_AppliesCashBookAndSecurityUpdates(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	portfolio := newFakePortfolio()
	m := NewManager(algo, portfolio, nil, &noopTx{}, &noopResults{}, nil, nil)

	now := time.Now()
	s := model.NewTimeSlice(now, now)
	s.CashBookUpdates = []model.CashBookUpdate{{Currency: "USD", Price: 1}}
	s.SecurityUpdates = []model.SecurityUpdate{{Symbol: "FOO", Price: 101, Time: now}}

	require.NoError(t, m.Step(context.Background(), s))

	require.Len(t, portfolio.cashBookUpdates, 1)
	assert.Equal(t, "USD", portfolio.cashBookUpdates[0].Currency)
	require.Len(t, portfolio.securityUpdates, 1)
	assert.Equal(t, "FOO", portfolio.securityUpdates[0].Symbol)
}

func TestManager_Step_DispatchesConsolidatorUpdates(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	m := NewManager(algo, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)
	m.Consolidators = NewConsolidatorRegistry()

	cfg := model.SubscriptionConfig{Symbol: "FOO"}
	var received []model.DataPoint
	m.Consolidators.Register(cfg.Key(), func(dp model.DataPoint) { received = append(received, dp) })

	now := time.Now()
	s := model.NewTimeSlice(now, now)
	s.ConsolidatorUpdates = []model.ConsolidatorUpdate{{Config: cfg, Data: model.DataPoint{Symbol: "FOO", EndTime: now}}}

	require.NoError(t, m.Step(context.Background(), s))
	require.Len(t, received, 1)
	assert.Equal(t, "FOO", received[0].Symbol)
}

func TestManager_Step_DispatchesCustomDataToAlgorithm(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	m := NewManager(algo, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)

	now := time.Now()
	s := model.NewTimeSlice(now, now)
	s.CustomDataByType["SentimentFeed"] = []model.DataPoint{{Symbol: "FOO", Value: 0.5, EndTime: now}}

	require.NoError(t, m.Step(context.Background(), s))
	require.Len(t, algo.customData, 1)
	assert.Contains(t, algo.customData[0], "SentimentFeed")
}

func TestManager_SampleEquity_UsesBrokerAccount(t *testing.T) {
	algo := &fakeAlgorithm{status: AlgorithmStatusRunning}
	results := &noopResults{}
	m := NewManager(algo, newFakePortfolio(), nil, &noopTx{}, results, nil, nil)
	m.Broker = &fakeBroker{account: model.Account{
		Balances: []model.Balance{
			{Asset: "USD", Free: 1000},
		},
	}}
	m.Backtest = true

	day1 := time.Date(2020, 1, 1, 16, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 1, 2, 16, 0, 0, 0, time.UTC)

	require.NoError(t, m.Step(context.Background(), model.NewTimeSlice(day1, day1)))
	require.NoError(t, m.Step(context.Background(), model.NewTimeSlice(day2, day2)))

	require.Len(t, results.equitySamples, 1, "equity samples only once the day rolls over")
}

func TestManager_AccountBalance_SplitsPairAcrossAssetAndQuote(t *testing.T) {
	m := NewManager(&fakeAlgorithm{status: AlgorithmStatusRunning}, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)
	m.Broker = &fakeBroker{account: model.Account{
		Balances: []model.Balance{
			{Asset: "BTC", Free: 1.5},
			{Asset: "USDT", Free: 500},
		},
	}}

	asset, quote, err := m.AccountBalance("BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 1.5, asset.Free)
	assert.Equal(t, 500.0, quote.Free)
}

func TestManager_AccountBalance_ErrorsWithoutBroker(t *testing.T) {
	m := NewManager(&fakeAlgorithm{status: AlgorithmStatusRunning}, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)
	_, _, err := m.AccountBalance("BTCUSDT")
	assert.Error(t, err)
}

func TestManager_AdjustOpenOrdersOnSplit_LiveAlwaysAdjusts(t *testing.T) {
	m := NewManager(&fakeAlgorithm{status: AlgorithmStatusRunning}, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)
	m.Backtest = false
	assert.True(t, m.adjustOpenOrdersOnSplit())
}

func TestManager_AdjustOpenOrdersOnSplit_BacktestAdjustedDoesNotRescale(t *testing.T) {
	m := NewManager(&fakeAlgorithm{status: AlgorithmStatusRunning}, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)
	m.Backtest = true
	m.NormalizationMode = model.NormalizationAdjusted
	assert.False(t, m.adjustOpenOrdersOnSplit())
}

func TestManager_AdjustOpenOrdersOnSplit_BacktestRawRescales(t *testing.T) {
	m := NewManager(&fakeAlgorithm{status: AlgorithmStatusRunning}, newFakePortfolio(), nil, &noopTx{}, &noopResults{}, nil, nil)
	m.Backtest = true
	m.NormalizationMode = model.NormalizationRaw
	assert.True(t, m.adjustOpenOrdersOnSplit())
}
