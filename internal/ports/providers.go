package ports

import (
	"context"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// ForecastProvider entrega el resumen probabilístico del forecast de mañana
// para una ciudad, ya parseado a (mediana, sigma).
type ForecastProvider interface {
	GetForecast(ctx context.Context, city string) (domain.ForecastSummary, error)
}

// MarketProvider obtiene los bins cotizados del evento de temperatura de una
// ciudad, con ask/bid/volumen en vivo.
type MarketProvider interface {
	GetMarketBins(ctx context.Context, city string) ([]domain.MarketBin, error)
}

// Broker coloca órdenes y reporta el balance de la cuenta.
// Las implementaciones aceptan un idempotencyKey generado por el cliente,
// así los reintentos del caller no duplican órdenes.
type Broker interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.OrderResult, error)
	GetBalance(ctx context.Context) (float64, error)
}

// PlaceOrderRequest es la orden que el executor envía al broker.
type PlaceOrderRequest struct {
	Ticker         string
	Side           string // "yes"
	Action         string // "buy"
	Count          int
	PriceCents     int
	IdempotencyKey string
}

// Settler reporta resultados de mercados ya resueltos, para cerrar trades.
type Settler interface {
	// MarketResult devuelve (resuelto, ganóYES) para un ticker.
	MarketResult(ctx context.Context, ticker string) (settled bool, yes bool, err error)
}
