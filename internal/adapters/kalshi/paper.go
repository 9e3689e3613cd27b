package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/ports"
)

// PaperBroker implementa ports.Broker sin tocar la API: las órdenes se
// asumen llenadas al precio pedido y el balance es una cuenta simulada.
// Los datos de mercado siguen siendo reales, solo la ejecución es ficticia.
type PaperBroker struct {
	mu      sync.Mutex
	balance float64
	orders  int
}

// NewPaperBroker crea la cuenta simulada con el balance inicial dado.
func NewPaperBroker(startingBalance float64) *PaperBroker {
	return &PaperBroker{balance: startingBalance}
}

// PlaceOrder simula un fill inmediato descontando el coste del balance.
func (p *PaperBroker) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (domain.OrderResult, error) {
	cost := float64(req.Count) * float64(req.PriceCents) / 100.0

	p.mu.Lock()
	defer p.mu.Unlock()
	if cost > p.balance {
		return domain.OrderResult{}, fmt.Errorf(
			"kalshi.PaperBroker.PlaceOrder: balance insuficiente (%.2f < %.2f)", p.balance, cost)
	}
	p.balance -= cost
	p.orders++

	orderID := fmt.Sprintf("paper-%d", p.orders)
	slog.Info("[PAPER] orden simulada",
		"ticker", req.Ticker,
		"count", req.Count,
		"price_cents", req.PriceCents,
		"cost", cost,
		"order_id", orderID)

	return domain.OrderResult{OrderID: orderID, Status: "resting"}, nil
}

// GetBalance devuelve el balance simulado.
func (p *PaperBroker) GetBalance(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// Settle aplica el resultado de un trade resuelto a la cuenta simulada.
// En un win el payout es $1 por contrato; en un loss el coste ya se
// descontó al colocar la orden.
func (p *PaperBroker) Settle(count int, won bool) {
	if !won {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance += float64(count)
}
