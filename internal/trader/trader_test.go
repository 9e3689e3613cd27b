package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tempedge/internal/calibration"
	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/engine"
	"github.com/alejandrodnm/tempedge/internal/executor"
	"github.com/alejandrodnm/tempedge/internal/ports"
	"github.com/alejandrodnm/tempedge/internal/risk"
)

type fakeForecast struct {
	byCity map[string]domain.ForecastSummary
	errOn  map[string]error
}

func (f *fakeForecast) GetForecast(_ context.Context, city string) (domain.ForecastSummary, error) {
	if err := f.errOn[city]; err != nil {
		return domain.ForecastSummary{}, err
	}
	return f.byCity[city], nil
}

type fakeMarkets struct {
	byCity map[string][]domain.MarketBin
}

func (m *fakeMarkets) GetMarketBins(_ context.Context, city string) ([]domain.MarketBin, error) {
	return m.byCity[city], nil
}

type fakeBroker struct {
	balance float64
	balErr  error
	orders  []ports.PlaceOrderRequest
}

func (b *fakeBroker) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (domain.OrderResult, error) {
	b.orders = append(b.orders, req)
	return domain.OrderResult{OrderID: "ord-" + req.Ticker, Status: "resting"}, nil
}

func (b *fakeBroker) GetBalance(context.Context) (float64, error) {
	if b.balErr != nil {
		return 0, b.balErr
	}
	return b.balance, nil
}

type resolvedCall struct {
	resolution domain.TradeResolution
	pnl        float64
}

type fakeStore struct {
	open     []domain.TradeRecord
	trades   []domain.TradeRecord
	resolved map[string]resolvedCall
}

func (s *fakeStore) PutTrade(_ context.Context, t domain.TradeRecord) (string, error) {
	s.trades = append(s.trades, t)
	return t.ID, nil
}

func (s *fakeStore) MarkResolved(_ context.Context, id string, r domain.TradeResolution, pnl float64) error {
	if s.resolved == nil {
		s.resolved = make(map[string]resolvedCall)
	}
	s.resolved[id] = resolvedCall{resolution: r, pnl: pnl}
	return nil
}

func (s *fakeStore) GetOpenTrades(context.Context) ([]domain.TradeRecord, error) {
	return s.open, nil
}

func (s *fakeStore) SaveDailyPnL(context.Context, string, float64, float64, int) error {
	return nil
}
func (s *fakeStore) Close() error { return nil }

type fakeCalStore struct{}

func (fakeCalStore) GetCalibration(context.Context, string) (domain.CalibrationParams, error) {
	return domain.NeutralCalibration(), nil
}
func (fakeCalStore) PutCalibration(context.Context, string, domain.CalibrationParams) error {
	return nil
}
func (fakeCalStore) AppendCalibrationSample(context.Context, string, string, float64, float64) error {
	return nil
}
func (fakeCalStore) FillActualHigh(context.Context, string, string, float64) error { return nil }
func (fakeCalStore) GetCalibrationHistory(context.Context, string, int) ([]domain.CalibrationRecord, error) {
	return nil, nil
}

type settlement struct{ settled, yes bool }

type fakeSettler struct {
	results map[string]settlement
}

func (s *fakeSettler) MarketResult(_ context.Context, ticker string) (bool, bool, error) {
	r, ok := s.results[ticker]
	if !ok {
		return false, false, errors.New("ticker desconocido")
	}
	return r.settled, r.yes, nil
}

type fakeNotifier struct {
	reports []ports.CycleReport
}

func (n *fakeNotifier) Notify(_ context.Context, r ports.CycleReport) error {
	n.reports = append(n.reports, r)
	return nil
}

func boundedBin(city, ticker string, low, high, ask, bid float64) domain.MarketBin {
	return domain.MarketBin{
		Ticker: ticker,
		City:   city,
		Shape:  domain.Bounded(low, high),
		YesAsk: ask,
		YesBid: bid,
		Volume: 100,
		Status: "active",
	}
}

type fixture struct {
	trader   *Trader
	broker   *fakeBroker
	store    *fakeStore
	notifier *fakeNotifier
	risk     *risk.Manager
}

func newFixture(cfg Config, forecast *fakeForecast, markets *fakeMarkets, broker *fakeBroker, store *fakeStore, settler ports.Settler) *fixture {
	riskMgr := risk.NewManager(risk.Limits{
		DailyStopLossPct: 0.05,
		MaxOpenPositions: 5,
		MaxCityPct:       0.03,
	}, broker.balance)

	eval := engine.NewEvaluator(engine.Gates{
		MinEdge:   cfg.MinEdge,
		FeeRate:   0.02,
		MaxSpread: 0.12,
		MinVolume: 5,
		MinAsk:    0.05,
		MaxAsk:    0.95,
	})
	exec := executor.New(broker, store, riskMgr, executor.Config{
		KellyMult:  0.25,
		MaxCityPct: 0.03,
	})
	calStore := fakeCalStore{}
	updater := calibration.NewUpdater(calStore, nil, 30, 7)
	notifier := &fakeNotifier{}

	tr := New(cfg, Deps{
		Forecast: forecast,
		Markets:  markets,
		Broker:   broker,
		Store:    store,
		CalStore: calStore,
		Settler:  settler,
		Notifier: notifier,
		Risk:     riskMgr,
		Exec:     exec,
		Eval:     eval,
		Updater:  updater,
	})
	return &fixture{trader: tr, broker: broker, store: store, notifier: notifier, risk: riskMgr}
}

// Pipeline completo de un ciclo: forecast → distribución → edge → orden.
// Con mu=58, sigma=2 el bin 57-59 tiene P=0.3829; a ask 0.25 el net edge es
// 0.0529 y el sizing de Kelly (cap 3%) da 120 contratos sobre $1000.
func TestRunCycleExecutesSingleTrade(t *testing.T) {
	forecast := &fakeForecast{byCity: map[string]domain.ForecastSummary{
		"NYC": {City: "NYC", ValidDate: "2026-08-31", Median: 58, Sigma: 2},
	}}
	markets := &fakeMarkets{byCity: map[string][]domain.MarketBin{
		"NYC": {boundedBin("NYC", "HIGHNY-B57", 57, 59, 0.25, 0.20)},
	}}
	broker := &fakeBroker{balance: 1000}
	store := &fakeStore{}

	fx := newFixture(Config{
		Cities:         []string{"NYC"},
		MinEdge:        0.05,
		BracketMinEdge: 0.08,
		DryRun:         true,
	}, forecast, markets, broker, store, &fakeSettler{})

	fx.trader.Init(context.Background())
	require.NoError(t, fx.trader.Run(context.Background()))

	require.Len(t, broker.orders, 1)
	assert.Equal(t, "HIGHNY-B57", broker.orders[0].Ticker)
	assert.Equal(t, 120, broker.orders[0].Count)
	assert.Equal(t, 25, broker.orders[0].PriceCents)

	require.Len(t, store.trades, 1)
	assert.Equal(t, domain.StrategySingle, store.trades[0].Strategy.Kind)

	require.Len(t, fx.notifier.reports, 1)
	report := fx.notifier.reports[0]
	assert.False(t, report.KillSwitch)
	assert.Equal(t, 1, report.OpenCount)
	require.Len(t, report.Cities, 1)
	assert.Len(t, report.Cities[0].Executed, 1)
}

// El fallo de una ciudad no toca a las demás: cada una corre aislada.
func TestCityFailureIsIsolated(t *testing.T) {
	forecast := &fakeForecast{
		byCity: map[string]domain.ForecastSummary{
			"NYC": {City: "NYC", ValidDate: "2026-08-31", Median: 58, Sigma: 2},
		},
		errOn: map[string]error{"MIA": errors.New("NWS timeout")},
	}
	markets := &fakeMarkets{byCity: map[string][]domain.MarketBin{
		"NYC": {boundedBin("NYC", "HIGHNY-B57", 57, 59, 0.25, 0.20)},
	}}
	broker := &fakeBroker{balance: 1000}
	store := &fakeStore{}

	fx := newFixture(Config{
		Cities:         []string{"MIA", "NYC"},
		MinEdge:        0.05,
		BracketMinEdge: 0.08,
		DryRun:         true,
	}, forecast, markets, broker, store, &fakeSettler{})

	require.NoError(t, fx.trader.Run(context.Background()))

	require.Len(t, fx.notifier.reports, 1)
	cities := fx.notifier.reports[0].Cities
	require.Len(t, cities, 2)
	assert.Error(t, cities[0].Err)
	assert.Empty(t, cities[0].Executed)
	assert.NoError(t, cities[1].Err)
	assert.Len(t, cities[1].Executed, 1)
}

// Con el kill switch disparado el ciclo no evalúa ninguna ciudad, pero el
// reporte sigue saliendo.
func TestKillSwitchSkipsCities(t *testing.T) {
	forecast := &fakeForecast{byCity: map[string]domain.ForecastSummary{
		"NYC": {City: "NYC", ValidDate: "2026-08-31", Median: 58, Sigma: 2},
	}}
	markets := &fakeMarkets{byCity: map[string][]domain.MarketBin{
		"NYC": {boundedBin("NYC", "HIGHNY-B57", 57, 59, 0.25, 0.20)},
	}}
	// El manager arranca el día en $1000; al primer sync el broker ya
	// reporta $940, una caída del 6% que supera el stop del 5%.
	broker := &fakeBroker{balance: 1000}
	store := &fakeStore{}

	fx := newFixture(Config{
		Cities:         []string{"NYC"},
		MinEdge:        0.05,
		BracketMinEdge: 0.08,
		DryRun:         true,
	}, forecast, markets, broker, store, &fakeSettler{})
	broker.balance = 940

	require.NoError(t, fx.trader.Run(context.Background()))

	assert.Empty(t, broker.orders)
	require.Len(t, fx.notifier.reports, 1)
	assert.True(t, fx.notifier.reports[0].KillSwitch)
	assert.Empty(t, fx.notifier.reports[0].Cities)
}

// El barrido de settlement cierra los trades resueltos y libera la
// exposición en el risk manager.
func TestSettlementSweepClosesTrades(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	openTrade := domain.TradeRecord{
		ID:         "t-1",
		City:       "CHI",
		Ticker:     "HIGHCHI-B80",
		Count:      50,
		PriceCents: 30,
		DollarRisk: 15,
		Strategy:   domain.Single(),
		TradeDate:  today,
		Resolution: domain.TradeOpen,
	}
	store := &fakeStore{open: []domain.TradeRecord{openTrade}}
	settler := &fakeSettler{results: map[string]settlement{
		"HIGHCHI-B80": {settled: true, yes: true},
	}}
	broker := &fakeBroker{balance: 1000}

	fx := newFixture(Config{
		Cities:         []string{"CHI"},
		MinEdge:        0.05,
		BracketMinEdge: 0.08,
		DryRun:         true,
	}, &fakeForecast{errOn: map[string]error{"CHI": errors.New("sin forecast")}},
		&fakeMarkets{}, broker, store, settler)

	fx.trader.Init(context.Background())
	assert.Equal(t, 1, fx.risk.Snapshot().OpenPositions)

	require.NoError(t, fx.trader.Run(context.Background()))

	call, ok := store.resolved["t-1"]
	require.True(t, ok)
	assert.Equal(t, domain.TradeWon, call.resolution)
	// 50 contratos a 30¢: payout $50 menos $15 de coste.
	assert.InDelta(t, 35.0, call.pnl, 1e-9)
	assert.Equal(t, 0, fx.risk.Snapshot().OpenPositions)
}

// Cuando existe un par adyacente que rodea la media, el bracket tiene
// prioridad sobre la mejor pata individual: salen dos órdenes con el mismo
// grupo.
func TestBracketTakesPriorityOverSingle(t *testing.T) {
	forecast := &fakeForecast{byCity: map[string]domain.ForecastSummary{
		"PHX": {City: "PHX", ValidDate: "2026-08-31", Median: 58, Sigma: 2},
	}}
	// Dos bins cerrados adyacentes (56-58 y 59-62) cuyos puntos medios
	// rodean mu=58 y que pasan el gate de edge individual con fee 0.01.
	markets := &fakeMarkets{byCity: map[string][]domain.MarketBin{
		"PHX": {
			boundedBin("PHX", "HIGHPHX-B56", 56, 58, 0.25, 0.21),
			boundedBin("PHX", "HIGHPHX-B59", 59, 62, 0.125, 0.08),
		},
	}}
	broker := &fakeBroker{balance: 1000}
	store := &fakeStore{}

	fx := newFixture(Config{
		Cities:         []string{"PHX"},
		MinEdge:        0.05,
		BracketMinEdge: 0.08,
		DryRun:         true,
	}, forecast, markets, broker, store, &fakeSettler{})
	// Fee más bajo para que ambas patas pasen el gate individual.
	fx.trader.eval = engine.NewEvaluator(engine.Gates{
		MinEdge:   0.05,
		FeeRate:   0.01,
		MaxSpread: 0.12,
		MinVolume: 5,
		MinAsk:    0.05,
		MaxAsk:    0.95,
	})

	require.NoError(t, fx.trader.Run(context.Background()))

	require.Len(t, store.trades, 2)
	first, second := store.trades[0], store.trades[1]
	assert.Equal(t, domain.StrategyBracket, first.Strategy.Kind)
	assert.Equal(t, domain.StrategyBracket, second.Strategy.Kind)
	assert.Equal(t, first.Strategy.BracketID, second.Strategy.BracketID)
	assert.NotEqual(t, first.Strategy.Leg, second.Strategy.Leg)

	require.Len(t, fx.notifier.reports, 1)
	require.Len(t, fx.notifier.reports[0].Cities, 1)
	assert.NotNil(t, fx.notifier.reports[0].Cities[0].Bracket)
}

// Init reconstruye el estado de riesgo con los trades abiertos de hoy.
func TestInitRebuildsRiskState(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	store := &fakeStore{open: []domain.TradeRecord{
		{ID: "t-1", City: "LA", Ticker: "HIGHLAX-B80", DollarRisk: 20, TradeDate: today, Resolution: domain.TradeOpen},
		{ID: "t-2", City: "LA", Ticker: "HIGHLAX-B75", DollarRisk: 10, TradeDate: "2020-01-01", Resolution: domain.TradeOpen},
	}}
	broker := &fakeBroker{balance: 1000}

	fx := newFixture(Config{
		Cities:  []string{"LA"},
		MinEdge: 0.05,
		DryRun:  true,
	}, &fakeForecast{}, &fakeMarkets{}, broker, store, &fakeSettler{})

	fx.trader.Init(context.Background())

	st := fx.risk.Snapshot()
	assert.Equal(t, 1, st.OpenPositions)
	assert.InDelta(t, 20.0, st.CityExposure["LA"], 1e-9)
}

// Si el broker no responde, el ciclo opera con el último balance conocido.
func TestBalanceSyncFailureUsesLastKnown(t *testing.T) {
	broker := &fakeBroker{balance: 1000}
	store := &fakeStore{}
	fx := newFixture(Config{
		Cities:  []string{},
		MinEdge: 0.05,
		DryRun:  true,
	}, &fakeForecast{}, &fakeMarkets{}, broker, store, &fakeSettler{})

	require.NoError(t, fx.trader.Run(context.Background()))
	assert.InDelta(t, 1000.0, fx.trader.lastBalance, 1e-9)

	broker.balErr = errors.New("api caída")
	fx.trader.runCycle(context.Background())
	assert.InDelta(t, 1000.0, fx.trader.lastBalance, 1e-9)
}
