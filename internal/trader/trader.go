package trader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tempedge/internal/calibration"
	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/engine"
	"github.com/alejandrodnm/tempedge/internal/executor"
	"github.com/alejandrodnm/tempedge/internal/ports"
	"github.com/alejandrodnm/tempedge/internal/risk"
)

// Config contiene los parámetros del loop de trading.
type Config struct {
	Cities         []string
	Interval       time.Duration
	MinEdge        float64
	BracketMinEdge float64
	DryRun         bool // un solo ciclo, sin loop
}

// Trader es el orquestador del ciclo: un tick del scheduler evalúa todas las
// ciudades, cada una de forma independiente — el fallo de una no aborta las
// demás. El único recurso mutable compartido es el risk.Manager, que
// serializa internamente.
type Trader struct {
	cfg      Config
	forecast ports.ForecastProvider
	markets  ports.MarketProvider
	broker   ports.Broker
	store    ports.TradeStore
	settler  ports.Settler
	notifier ports.Notifier
	risk     *risk.Manager
	exec     *executor.Executor
	eval     *engine.Evaluator
	updater  *calibration.Updater
	calStore ports.CalibrationStore

	cycleCount  int
	lastBalance float64
	lastCalDay  string
}

// Deps agrupa los colaboradores del Trader para el wiring.
type Deps struct {
	Forecast ports.ForecastProvider
	Markets  ports.MarketProvider
	Broker   ports.Broker
	Store    ports.TradeStore
	CalStore ports.CalibrationStore
	Settler  ports.Settler
	Notifier ports.Notifier
	Risk     *risk.Manager
	Exec     *executor.Executor
	Eval     *engine.Evaluator
	Updater  *calibration.Updater
}

// New crea un Trader con todas las dependencias inyectadas.
func New(cfg Config, d Deps) *Trader {
	return &Trader{
		cfg:      cfg,
		forecast: d.Forecast,
		markets:  d.Markets,
		broker:   d.Broker,
		store:    d.Store,
		calStore: d.CalStore,
		settler:  d.Settler,
		notifier: d.Notifier,
		risk:     d.Risk,
		exec:     d.Exec,
		eval:     d.Eval,
		updater:  d.Updater,
	}
}

// Init restaura el estado tras un restart y calibra con la historia
// disponible. Llamar una vez antes de Run.
func (t *Trader) Init(ctx context.Context) {
	open, err := t.store.GetOpenTrades(ctx)
	if err != nil {
		slog.Warn("no se pudo reconstruir el estado de riesgo", "err", err)
	} else {
		t.risk.RebuildFromOpenTrades(open)
	}

	t.updater.UpdateAll(ctx, t.cfg.Cities)
	t.lastCalDay = time.Now().Format("2006-01-02")
}

// Run ejecuta el loop hasta que el contexto se cancele.
// Con DryRun ejecuta exactamente un ciclo.
func (t *Trader) Run(ctx context.Context) error {
	slog.Info("trader starting",
		"cities", len(t.cfg.Cities),
		"interval", t.cfg.Interval,
		"dry_run", t.cfg.DryRun)

	t.runCycle(ctx)
	if t.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trader stopped")
			return nil
		case <-ticker.C:
			t.runCycle(ctx)
		}
	}
}

// runCycle es un tick completo: reset diario → sync de balance → settlement →
// kill switch → pipeline por ciudad → notificación.
func (t *Trader) runCycle(ctx context.Context) {
	start := time.Now()
	t.cycleCount++
	slog.Info("ciclo de trading", "cycle", t.cycleCount)

	balance := t.syncBalance(ctx)

	// Reset diario: serializado dentro del manager contra registros en vuelo.
	// El snapshot del día anterior se toma antes de que RollDay pise el
	// balance de apertura.
	prev := t.risk.Snapshot()
	if t.risk.RollDay(balance) && t.cycleCount > 1 {
		t.snapshotDailyPnL(ctx, balance, prev)
	}
	t.dailyCalibration(ctx)

	t.settleOpenTrades(ctx)

	report := ports.CycleReport{
		Cycle:   t.cycleCount,
		Balance: balance,
	}

	if t.risk.CheckKillSwitch(balance) {
		slog.Warn("kill switch activo — ciclo sin trading", "cycle", t.cycleCount)
		report.KillSwitch = true
	} else {
		report.Cities = t.runCities(ctx, balance)
	}

	report.OpenCount = t.risk.Snapshot().OpenPositions

	if err := t.notifier.Notify(ctx, report); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	slog.Info("ciclo completo",
		"cycle", t.cycleCount,
		"duration", time.Since(start).Round(time.Millisecond))
}

// runCities evalúa todas las ciudades en paralelo. Cada ciudad es
// independiente: distribución y calibración propias, sin estado compartido
// salvo el risk manager.
func (t *Trader) runCities(ctx context.Context, balance float64) []ports.CityReport {
	reports := make([]ports.CityReport, len(t.cfg.Cities))

	var wg sync.WaitGroup
	for i, city := range t.cfg.Cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			reports[i] = t.cityCycle(ctx, city, balance)
		}(i, city)
	}
	wg.Wait()

	return reports
}

// cityCycle es el pipeline de una ciudad: forecast → distribución →
// oportunidades → bracket o single → ejecución. Un fallo aborta solo esta
// ciudad en este tick.
func (t *Trader) cityCycle(ctx context.Context, city string, balance float64) ports.CityReport {
	report := ports.CityReport{City: city}

	forecast, err := t.forecast.GetForecast(ctx, city)
	if err != nil {
		slog.Error("forecast no disponible — ciudad saltada", "city", city, "err", err)
		report.Err = err
		return report
	}

	// Registrar el forecast crudo para la calibración de mañana.
	t.updater.RecordForecast(ctx, forecast)

	cal, err := t.calStore.GetCalibration(ctx, city)
	if err != nil {
		slog.Warn("calibración no disponible — defaults neutros", "city", city, "err", err)
		cal = domain.NeutralCalibration()
	}

	dist := domain.FitDistribution(forecast, cal)
	report.Dist = dist
	slog.Info("distribución ajustada",
		"city", city,
		"mu", dist.Mu, "sigma", dist.Sigma,
		"bias", cal.Bias, "scale", cal.Scale)

	bins, err := t.markets.GetMarketBins(ctx, city)
	if err != nil {
		slog.Error("mercados no disponibles — ciudad saltada", "city", city, "err", err)
		report.Err = err
		return report
	}
	if len(bins) == 0 {
		slog.Info("sin mercados abiertos", "city", city)
		return report
	}

	opps := t.eval.Evaluate(dist, bins)
	report.Opportunities = opps

	viable := engine.Viable(opps)
	if len(viable) == 0 {
		slog.Info("sin oportunidades viables", "city", city, "evaluated", len(opps))
		return report
	}

	// Bracket primero: si hay un par adyacente que rodea el forecast y paga
	// el doble fee, cubre mejor que la mejor pata sola.
	if bracket := engine.FindBracket(dist, viable, t.cfg.MinEdge, t.cfg.BracketMinEdge); bracket != nil {
		report.Bracket = bracket
		for _, res := range t.exec.ExecuteBracket(ctx, city, *bracket, balance) {
			t.collectResult(&report, res)
		}
		return report
	}

	if res := t.exec.ExecuteSingle(ctx, city, viable, balance); res != nil {
		t.collectResult(&report, res)
	}
	return report
}

func (t *Trader) collectResult(report *ports.CityReport, res *executor.Result) {
	if res.PersistErr != nil {
		// El único estado donde broker y ledger divergen: gritarlo.
		slog.Error("RECONCILIACIÓN PENDIENTE: orden viva sin registro en ledger",
			"city", report.City,
			"ticker", res.Trade.Ticker,
			"order_id", res.Trade.OrderID,
			"err", res.PersistErr)
	}
	report.Executed = append(report.Executed, res.Trade)
}

// paperLedger es el contrato opcional de un broker simulado que liquida
// posiciones en memoria.
type paperLedger interface {
	Settle(count int, won bool)
}

// settleOpenTrades es el barrido de settlement: cierra los trades cuyos
// mercados ya resolvieron, actualiza el ledger y libera la exposición.
func (t *Trader) settleOpenTrades(ctx context.Context) {
	if t.settler == nil {
		return
	}
	open, err := t.store.GetOpenTrades(ctx)
	if err != nil {
		slog.Warn("no se pudieron leer los trades abiertos", "err", err)
		return
	}

	for _, trade := range open {
		settled, wonYes, err := t.settler.MarketResult(ctx, trade.Ticker)
		if err != nil {
			slog.Debug("settlement no disponible", "ticker", trade.Ticker, "err", err)
			continue
		}
		if !settled {
			continue
		}

		pnl := domain.SettlementPnL(trade.PriceCents, trade.Count, wonYes)
		resolution := domain.TradeWon
		if !wonYes {
			resolution = domain.TradeLost
		}
		if err := t.store.MarkResolved(ctx, trade.ID, resolution, pnl); err != nil {
			slog.Error("no se pudo marcar el trade resuelto", "trade_id", trade.ID, "err", err)
			continue
		}
		t.risk.ClosePosition(trade.City, trade.DollarRisk, trade.Ticker)

		// Un broker real refleja el payout en el próximo GetBalance; el de
		// papel necesita que se lo acrediten aquí.
		if pb, ok := t.broker.(paperLedger); ok {
			pb.Settle(trade.Count, wonYes)
		}
		slog.Info("trade resuelto",
			"ticker", trade.Ticker,
			"resolution", string(resolution),
			"pnl", pnl)
	}
}

// dailyCalibration recalcula la calibración como mucho una vez por día.
func (t *Trader) dailyCalibration(ctx context.Context) {
	today := time.Now().Format("2006-01-02")
	if today == t.lastCalDay {
		return
	}
	t.lastCalDay = today
	t.updater.UpdateAll(ctx, t.cfg.Cities)
}

// syncBalance consulta el balance del broker; si falla, opera con el último
// conocido en vez de abortar el ciclo.
func (t *Trader) syncBalance(ctx context.Context) float64 {
	balance, err := t.broker.GetBalance(ctx)
	if err != nil {
		slog.Error("sync de balance fallido — usando el último conocido",
			"err", err, "last", t.lastBalance)
		return t.lastBalance
	}
	t.lastBalance = balance
	t.risk.UpdateBalance(balance)
	return balance
}

func (t *Trader) snapshotDailyPnL(ctx context.Context, balance float64, prev risk.Status) {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	pnl := balance - prev.DayStartBalance
	if err := t.store.SaveDailyPnL(ctx, yesterday, balance, pnl, prev.OpenPositions); err != nil {
		slog.Warn("no se pudo guardar el snapshot diario", "err", err)
	}
}
