package domain

import "time"

// StrategyKind distingue cómo se originó un trade.
type StrategyKind string

const (
	StrategySingle  StrategyKind = "single"
	StrategyBracket StrategyKind = "bracket"
)

// Strategy es el tag de estrategia que viaja del executor al registro
// persistido. Para legs de bracket lleva el identificador compartido del
// grupo y el índice del leg (0 = inferior, 1 = superior).
type Strategy struct {
	Kind      StrategyKind
	BracketID string // vacío salvo para legs de bracket
	Leg       int
}

// Single construye el tag de un trade independiente.
func Single() Strategy {
	return Strategy{Kind: StrategySingle}
}

// BracketLeg construye el tag de un leg de bracket.
func BracketLeg(groupID string, leg int) Strategy {
	return Strategy{Kind: StrategyBracket, BracketID: groupID, Leg: leg}
}

// TradeResolution es el estado de resolución de un trade persistido.
type TradeResolution string

const (
	TradeOpen     TradeResolution = "open"
	TradeWon      TradeResolution = "won"
	TradeLost     TradeResolution = "lost"
	TradeCanceled TradeResolution = "canceled"
)

// TradeRecord es el registro persistente de un trade ejecutado.
// Lo crea el executor; la resolución la escribe el settlement.
type TradeRecord struct {
	ID         string
	City       string
	Ticker     string
	Side       string // "yes"
	Action     string // "buy"
	Count      int
	PriceCents int
	ModelProb  float64
	NetEdge    float64
	KellyFrac  float64
	DollarRisk float64
	Strategy   Strategy
	OrderID    string // ID del broker, si la orden se colocó
	TradeDate  string // "YYYY-MM-DD"
	PlacedAt   time.Time
	Resolution TradeResolution
	PnL        float64 // realizado; 0 mientras está abierto
	ResolvedAt *time.Time
}

// OrderResult es la respuesta del broker al colocar una orden.
type OrderResult struct {
	OrderID string
	Status  string
}

// SettlementPnL calcula el P&L realizado de un trade resuelto.
// YES: (1 - coste) × count. NO: -coste × count.
func SettlementPnL(priceCents, count int, won bool) float64 {
	cost := float64(priceCents) / 100
	if won {
		return (1 - cost) * float64(count)
	}
	return -cost * float64(count)
}
