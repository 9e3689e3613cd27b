package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/ports"
	"github.com/alejandrodnm/tempedge/internal/risk"
)

// Config contiene los parámetros de sizing del executor.
type Config struct {
	KellyMult  float64 // fracción del Kelly completo (ej. 0.25)
	MaxCityPct float64 // cap del Kelly y presupuesto por ciudad
}

// Result es el desenlace de un intento de ejecución.
//
// PersistErr distinto de nil significa que la orden quedó viva en el broker
// pero el ledger no la registró: es el único estado donde broker y ledger
// pueden divergir, y el caller debe alertar sobre él en vez de tragárselo.
type Result struct {
	Trade      domain.TradeRecord
	PersistErr error
}

// Executor orquesta sizing → gate de riesgo → orden → persistencia → registro.
type Executor struct {
	broker ports.Broker
	store  ports.TradeStore
	risk   *risk.Manager
	cfg    Config
}

// New crea un Executor con sus colaboradores inyectados.
func New(broker ports.Broker, store ports.TradeStore, riskMgr *risk.Manager, cfg Config) *Executor {
	return &Executor{broker: broker, store: store, risk: riskMgr, cfg: cfg}
}

// ExecuteSingle ejecuta como mucho la mejor oportunidad (mayor net edge) de
// la ciudad, etiquetada como single. Una por ciudad por ciclo, para no
// concentrar el riesgo.
func (e *Executor) ExecuteSingle(ctx context.Context, city string, opps []domain.TradeOpportunity, balance float64) *Result {
	if len(opps) == 0 {
		return nil
	}
	best := opps[0]
	slog.Info("mejor oportunidad",
		"city", city,
		"ticker", best.Bin.Ticker,
		"model_prob", best.ModelProb,
		"ask", best.Ask,
		"net_edge", best.NetEdge)

	budget := e.risk.RemainingCityBudget(city, balance)
	return e.execute(ctx, best, city, domain.Single(), budget, balance)
}

// ExecuteBracket ejecuta las dos patas de un bracket de forma independiente,
// repartiendo el presupuesto restante de la ciudad a partes iguales.
// Una pata que falla no revierte la otra: un bracket parcial es un resultado
// válido (queda una posición single de facto).
func (e *Executor) ExecuteBracket(ctx context.Context, city string, bracket domain.BracketOpportunity, balance float64) []*Result {
	groupID := uuid.NewString()
	legBudget := e.risk.RemainingCityBudget(city, balance) / 2

	var filled []*Result
	legs := [2]domain.TradeOpportunity{bracket.Lower, bracket.Upper}
	for i, leg := range legs {
		res := e.execute(ctx, leg, city, domain.BracketLeg(groupID, i), legBudget, balance)
		if res != nil {
			filled = append(filled, res)
		}
	}

	if len(filled) == 1 {
		slog.Warn("bracket parcial: solo una pata ejecutada",
			"city", city, "bracket_id", groupID,
			"ticker", filled[0].Trade.Ticker)
	}
	return filled
}

// execute es el pipeline completo de un trade. Devuelve nil si no hubo trade
// (size insuficiente, riesgo rechazado o fallo de colocación) — ninguno de
// esos casos es un error del ciclo.
func (e *Executor) execute(ctx context.Context, opp domain.TradeOpportunity, city string, strategy domain.Strategy, budget, balance float64) *Result {
	// 1. Sizing
	kellyFrac := domain.KellyFraction(opp.ModelProb, opp.Ask, e.cfg.KellyMult, e.cfg.MaxCityPct)
	count, dollarRisk := domain.ContractCount(kellyFrac, balance, opp.Ask, budget)
	if count < 1 {
		slog.Info("sizing por debajo de un contrato — sin trade",
			"city", city, "ticker", opp.Bin.Ticker, "kelly_frac", kellyFrac)
		return nil
	}

	// 2. Reserva de riesgo: check y registro atómicos, así las ciudades en
	// paralelo no pueden colarse por la misma última posición libre.
	if ok, reason := e.risk.TryReserve(city, dollarRisk, balance, opp.Bin.Ticker); !ok {
		slog.Info("trade rechazado por riesgo",
			"city", city, "ticker", opp.Bin.Ticker, "reason", reason)
		return nil
	}

	// 3. Orden. La clave de idempotencia la genera el cliente: los retries
	// internos del broker no pueden duplicar la orden.
	priceCents := int(math.Round(opp.Ask * 100))
	order, err := e.broker.PlaceOrder(ctx, ports.PlaceOrderRequest{
		Ticker:         opp.Bin.Ticker,
		Side:           "yes",
		Action:         "buy",
		Count:          count,
		PriceCents:     priceCents,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		slog.Error("colocación de orden fallida — trade abortado",
			"city", city, "ticker", opp.Bin.Ticker, "err", err)
		e.risk.ClosePosition(city, dollarRisk, opp.Bin.Ticker)
		return nil
	}

	now := time.Now()
	trade := domain.TradeRecord{
		ID:         uuid.NewString(),
		City:       city,
		Ticker:     opp.Bin.Ticker,
		Side:       "yes",
		Action:     "buy",
		Count:      count,
		PriceCents: priceCents,
		ModelProb:  opp.ModelProb,
		NetEdge:    opp.NetEdge,
		KellyFrac:  kellyFrac,
		DollarRisk: dollarRisk,
		Strategy:   strategy,
		OrderID:    order.OrderID,
		TradeDate:  now.Format("2006-01-02"),
		PlacedAt:   now,
		Resolution: domain.TradeOpen,
	}

	// 4. Persistencia. Un fallo aquí NO tumba el trade: la orden ya está
	// viva en el broker. Se devuelve el error para que el caller alerte.
	res := &Result{Trade: trade}
	if id, err := e.store.PutTrade(ctx, trade); err != nil {
		res.PersistErr = err
		slog.Error("ORDEN VIVA SIN PERSISTIR — broker y ledger divergen",
			"city", city, "ticker", opp.Bin.Ticker,
			"order_id", order.OrderID, "err", err)
	} else {
		res.Trade.ID = id
	}

	slog.Info("trade ejecutado",
		"city", city,
		"ticker", opp.Bin.Ticker,
		"strategy", string(strategy.Kind),
		"count", count,
		"price_cents", priceCents,
		"net_edge", opp.NetEdge,
		"risk", dollarRisk)
	return res
}
