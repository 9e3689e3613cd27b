package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// rangeWidth limita la evaluación a bins dentro de mu ± 4σ.
// Lo que quede fuera se descarta antes de mirar el orderbook.
const rangeWidth = 4.0

// Gates contiene los umbrales de filtrado del evaluador.
// Todos son tunables de configuración, no constantes del engine.
type Gates struct {
	MinEdge   float64 // net edge mínimo para marcar HasEdge
	FeeRate   float64 // fee por contrato de $1 de payout
	MaxSpread float64 // (ask - bid) máximo tolerado
	MinVolume int     // volumen mínimo para considerar líquido
	MinAsk    float64 // por debajo el fee domina cualquier edge real
	MaxAsk    float64 // por encima el bin es casi seguro, sin edge operable
}

// Evaluator puntúa cada bin del mercado contra la distribución del modelo.
type Evaluator struct {
	gates Gates
}

// NewEvaluator crea un Evaluator con los gates dados.
func NewEvaluator(gates Gates) *Evaluator {
	return &Evaluator{gates: gates}
}

// Evaluate puntúa todos los bins de una ciudad y devuelve las oportunidades
// aceptadas ordenadas por net edge descendente. Los rechazos son filtrado
// silencioso (log a debug), nunca errores.
func (e *Evaluator) Evaluate(dist domain.TempDistribution, bins []domain.MarketBin) []domain.TradeOpportunity {
	now := time.Now()
	opps := make([]domain.TradeOpportunity, 0, len(bins))

	for _, bin := range bins {
		if !dist.InRange(bin.Shape, rangeWidth) {
			continue
		}
		if opp, ok := e.evaluateBin(dist, bin, now); ok {
			opps = append(opps, opp)
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].NetEdge > opps[j].NetEdge
	})
	return opps
}

// evaluateBin aplica los gates de precio/liquidez/forma y computa el edge.
func (e *Evaluator) evaluateBin(dist domain.TempDistribution, bin domain.MarketBin, now time.Time) (domain.TradeOpportunity, bool) {
	ask := bin.YesAsk

	// Bins casi resueltos: sin edge operable en ningún caso.
	if ask <= 0.01 || ask >= 0.99 {
		return domain.TradeOpportunity{}, false
	}
	if ask < e.gates.MinAsk {
		slog.Debug("bin rechazado: ask bajo el mínimo (el fee supera cualquier edge)",
			"ticker", bin.Ticker, "ask", ask, "min_ask", e.gates.MinAsk)
		return domain.TradeOpportunity{}, false
	}
	if ask > e.gates.MaxAsk {
		slog.Debug("bin rechazado: ask sobre el máximo",
			"ticker", bin.Ticker, "ask", ask, "max_ask", e.gates.MaxAsk)
		return domain.TradeOpportunity{}, false
	}

	spread := bin.Spread()
	if spread > e.gates.MaxSpread {
		slog.Debug("bin rechazado: spread demasiado ancho",
			"ticker", bin.Ticker, "spread", spread)
		return domain.TradeOpportunity{}, false
	}
	if bin.Volume < e.gates.MinVolume {
		slog.Debug("bin rechazado: volumen insuficiente",
			"ticker", bin.Ticker, "volume", bin.Volume)
		return domain.TradeOpportunity{}, false
	}

	if bin.Shape.Kind == domain.BinUnknown {
		slog.Debug("bin rechazado: rango no parseable",
			"ticker", bin.Ticker, "subtitle", bin.SubTitle)
		return domain.TradeOpportunity{}, false
	}

	prob := domain.BinProbability(dist.Mu, dist.Sigma, bin.Shape)
	// prob 0 = el bin está efectivamente fuera de la distribución;
	// no se puntúa un edge contra un ask bajo.
	if prob <= 0 {
		slog.Debug("bin rechazado: probabilidad de modelo 0",
			"ticker", bin.Ticker)
		return domain.TradeOpportunity{}, false
	}

	rawEdge, feeCost, netEdge := domain.ComputeEdge(prob, ask, e.gates.FeeRate)

	return domain.TradeOpportunity{
		Bin:       bin,
		City:      dist.City,
		ModelProb: prob,
		Ask:       ask,
		Bid:       bin.YesBid,
		Spread:    spread,
		RawEdge:   rawEdge,
		FeeCost:   feeCost,
		NetEdge:   netEdge,
		HasEdge:   netEdge >= e.gates.MinEdge,
		EVPerUSD:  netEdge / ask,
		ScannedAt: now,
	}, true
}

// Viable devuelve solo las oportunidades que pasaron el umbral de edge.
func Viable(opps []domain.TradeOpportunity) []domain.TradeOpportunity {
	out := make([]domain.TradeOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.HasEdge {
			out = append(out, o)
		}
	}
	return out
}
