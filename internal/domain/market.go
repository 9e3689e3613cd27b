package domain

import "time"

// BinKind identifica la forma de un bin de temperatura.
type BinKind int

const (
	// BinUnknown es un bin cuyo rango no se pudo parsear del subtítulo.
	// Su probabilidad de modelo es siempre 0.
	BinUnknown BinKind = iota
	// BinBounded es un rango cerrado [Low, High], ej. "57° to 58°".
	BinBounded
	// BinOpenLow es "X° or below": resuelve YES si T <= High.
	BinOpenLow
	// BinOpenHigh es "X° or above": resuelve YES si T >= Low.
	BinOpenHigh
)

// BinShape es la variante cerrada de formas de bin. Los estados imposibles
// (abierto por ambos lados, abierto sin bound) no son representables:
// se construye solo mediante Bounded, OpenLow y OpenHigh.
type BinShape struct {
	Kind BinKind
	Low  float64 // válido para BinBounded y BinOpenHigh
	High float64 // válido para BinBounded y BinOpenLow
}

// Bounded construye un bin cerrado [low, high].
func Bounded(low, high float64) BinShape {
	return BinShape{Kind: BinBounded, Low: low, High: high}
}

// OpenLow construye un bin "high o menos".
func OpenLow(high float64) BinShape {
	return BinShape{Kind: BinOpenLow, High: high}
}

// OpenHigh construye un bin "low o más".
func OpenHigh(low float64) BinShape {
	return BinShape{Kind: BinOpenHigh, Low: low}
}

// Center devuelve el punto medio del bin y true si está definido.
// Solo los bins cerrados tienen centro; los abiertos no.
func (b BinShape) Center() (float64, bool) {
	if b.Kind != BinBounded {
		return 0, false
	}
	return (b.Low + b.High) / 2, true
}

// MarketBin es un contrato de temperatura cotizado en Kalshi.
// Inmutable dentro de un ciclo.
type MarketBin struct {
	Ticker      string
	EventTicker string
	City        string
	Shape       BinShape
	SubTitle    string  // ej. "57° to 58°" — se conserva para auditoría
	YesAsk      float64 // mejor ask YES (0.00–1.00), 0 = sin ask
	YesBid      float64 // mejor bid YES (0.00–1.00), 0 = sin bid
	Volume      int
	Status      string // "open", "closed", "settled"
	CloseTime   time.Time
}

// Spread devuelve ask - bid. Si falta alguno de los dos lados devuelve 1.0,
// que falla cualquier gate de liquidez razonable.
func (m MarketBin) Spread() float64 {
	if m.YesAsk <= 0 || m.YesBid <= 0 {
		return 1.0
	}
	return m.YesAsk - m.YesBid
}
