package domain

import "time"

// TradeOpportunity es un MarketBin evaluado contra el modelo.
// Efímero: se recalcula cada ciclo.
type TradeOpportunity struct {
	Bin       MarketBin
	City      string
	ModelProb float64 // P(YES) según nuestra distribución
	Ask       float64
	Bid       float64
	Spread    float64 // ask - bid
	RawEdge   float64 // modelProb - ask
	FeeCost   float64 // fee como fracción de la prima pagada
	NetEdge   float64 // rawEdge - feeCost
	HasEdge   bool    // netEdge >= umbral configurado
	EVPerUSD  float64 // netEdge / ask
	ScannedAt time.Time
}

// ComputeEdge calcula (rawEdge, feeCost, netEdge) para comprar YES al ask.
//
// Modelo de fee: el venue cobra ~feeRate por contrato de $1 de payout.
// Expresado como fracción de la prima pagada: feeCost = feeRate / ask.
// A un ask de 5¢ eso es 20% — más que cualquier edge realista — por eso
// el evaluador también aplica el gate de ask mínimo.
func ComputeEdge(modelProb, ask, feeRate float64) (rawEdge, feeCost, netEdge float64) {
	rawEdge = modelProb - ask
	if ask > 0 {
		feeCost = feeRate / ask
	} else {
		feeCost = 1.0
	}
	netEdge = rawEdge - feeCost
	return rawEdge, feeCost, netEdge
}

// BracketOpportunity son dos bins cerrados adyacentes que rodean la media
// de la distribución, comprados juntos como cobertura: son resultados
// mutuamente excluyentes, así que comprar ambos cubre la incertidumbre
// sobre en cuál bin exacto cae el high, a cambio de fees dobles.
type BracketOpportunity struct {
	Lower        TradeOpportunity // bin con bounds menores
	Upper        TradeOpportunity // bin adyacente por arriba
	CombinedProb float64          // suma de probabilidades de modelo
	TotalAsk     float64          // suma de asks
	ProfitIfHit  float64          // 1 - TotalAsk si el high cae en uno de los dos
	TotalNetEdge float64          // suma de net edges
	ExpectedVal  float64          // CombinedProb - TotalAsk
}
