package kalshi

import "encoding/json"

// DTOs raw de la API de Kalshi. Solo se usan dentro de este paquete;
// la conversión a domain entities vive en mapping.go.

// eventsResponse es la respuesta de GET /events.
type eventsResponse struct {
	Events []eventPayload `json:"events"`
}

type eventPayload struct {
	EventTicker string `json:"event_ticker"`
	CloseTime   string `json:"close_time"`
}

// marketsResponse es la respuesta de GET /markets.
type marketsResponse struct {
	Markets []marketPayload `json:"markets"`
}

// marketResponse es la respuesta de GET /markets/{ticker}.
type marketResponse struct {
	Market marketPayload `json:"market"`
}

// marketPayload es un mercado raw. Los precios pueden venir como centavos
// enteros o como decimales string según el endpoint, de ahí json.Number.
type marketPayload struct {
	Ticker      string      `json:"ticker"`
	EventTicker string      `json:"event_ticker"`
	YesAsk      json.Number `json:"yes_ask"`
	YesBid      json.Number `json:"yes_bid"`
	YesSubTitle string      `json:"yes_sub_title"`
	SubTitle    string      `json:"subtitle"`
	FloorStrike *float64    `json:"floor_strike"`
	CeilStrike  *float64    `json:"ceil_strike"`
	StrikeType  string      `json:"strike_type"`
	Status      string      `json:"status"`
	Volume      int         `json:"volume"`
	CloseTime   string      `json:"close_time"`
	Result      string      `json:"result"` // "yes"/"no" tras settlement
}

// balanceResponse es la respuesta de GET /portfolio/balance, en centavos.
type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// orderRequest es el body de POST /portfolio/orders.
type orderRequest struct {
	Ticker        string `json:"ticker"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      int    `json:"yes_price"`
	ClientOrderID string `json:"client_order_id"`
}

// orderResponse es la respuesta de POST /portfolio/orders.
type orderResponse struct {
	Order struct {
		OrderID       string `json:"order_id"`
		ClientOrderID string `json:"client_order_id"`
		Status        string `json:"status"`
	} `json:"order"`
}
