package kalshi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/ports"
)

// Broker implementa ports.Broker contra el portfolio real de Kalshi.
// Requiere un Client con signer configurado.
type Broker struct {
	client *Client
}

// NewBroker crea el broker. Falla si el client no puede firmar: operar
// sin key solo tiene sentido en modo paper.
func NewBroker(client *Client) (*Broker, error) {
	if client.signer == nil {
		return nil, fmt.Errorf("kalshi.NewBroker: sin private key configurada")
	}
	return &Broker{client: client}, nil
}

// PlaceOrder envía una orden limit a POST /portfolio/orders.
func (b *Broker) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (domain.OrderResult, error) {
	body := orderRequest{
		Ticker:        req.Ticker,
		Action:        req.Action,
		Side:          req.Side,
		Count:         req.Count,
		Type:          "limit",
		YesPrice:      req.PriceCents,
		ClientOrderID: req.IdempotencyKey,
	}

	var resp orderResponse
	if err := b.client.post(ctx, "/portfolio/orders", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi.Broker.PlaceOrder: %s: %w", req.Ticker, err)
	}

	slog.Info("orden colocada",
		"ticker", req.Ticker,
		"count", req.Count,
		"price_cents", req.PriceCents,
		"order_id", resp.Order.OrderID)

	return domain.OrderResult{
		OrderID: resp.Order.OrderID,
		Status:  resp.Order.Status,
	}, nil
}

// GetBalance consulta GET /portfolio/balance. La API devuelve centavos.
func (b *Broker) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := b.client.get(ctx, "/portfolio/balance", &resp); err != nil {
		return 0, fmt.Errorf("kalshi.Broker.GetBalance: %w", err)
	}
	return float64(resp.Balance) / 100.0, nil
}
