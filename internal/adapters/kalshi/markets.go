package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// markets.go — descubrimiento de mercados del evento de temperatura de
// mañana, por ciudad.
//
// El close_time de un mercado diario es ~medianoche ET del día MEDIDO: el
// evento del 20 de febrero cierra 2026-02-21T04:59Z (23:59 ET del 20). O
// sea event_date = close_date_ET - 1 día. Queremos el evento de mañana,
// así que filtramos close_date_ET == mañana + 1.

// marketTZ es la zona horaria de mercado de Kalshi.
var marketTZ = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("kalshi: load location %s: %v", name, err))
	}
	return loc
}

// Markets implementa ports.MarketProvider sobre el Client, resolviendo
// cada ciudad a su series ticker (ej. NYC → KXHIGHNY).
type Markets struct {
	client *Client
	series map[string]string // city code → series ticker
	now    func() time.Time
}

// NewMarkets crea el provider con el mapping ciudad → series.
func NewMarkets(client *Client, series map[string]string) *Markets {
	return &Markets{client: client, series: series, now: time.Now}
}

// GetMarketBins devuelve los bins abiertos del evento de mañana para una
// ciudad. Prefiere el lookup directo series→markets (menos requests) y cae
// al ticker de evento inferido si no encuentra nada.
func (k *Markets) GetMarketBins(ctx context.Context, city string) ([]domain.MarketBin, error) {
	series, ok := k.series[city]
	if !ok {
		return nil, fmt.Errorf("kalshi.Markets.GetMarketBins: ciudad desconocida %q", city)
	}

	bins, err := k.marketsForSeries(ctx, series, city)
	if err != nil {
		return nil, err
	}
	if len(bins) > 0 {
		return bins, nil
	}

	// Fallback: ticker de evento canónico SERIES-YYMONDD.
	event := k.tomorrowEventTicker(ctx, series)
	slog.Debug("sin mercados vía series — probando por evento",
		"city", city, "event", event)
	return k.marketsForEvent(ctx, event, city)
}

func (k *Markets) marketsForSeries(ctx context.Context, series, city string) ([]domain.MarketBin, error) {
	path := "/markets?" + url.Values{
		"series_ticker": {series},
		"status":        {"open"},
	}.Encode()

	var resp marketsResponse
	if err := k.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("kalshi.Markets: series %s: %w", series, err)
	}

	expected := k.expectedCloseDate()
	bins := make([]domain.MarketBin, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		closeDate, ok := closeDateET(m.CloseTime)
		if !ok || !closeDate.Equal(expected) {
			continue
		}
		bin := mapMarket(m, city)
		if !tradeable(bin.Status) {
			continue
		}
		bins = append(bins, bin)
	}
	return bins, nil
}

func (k *Markets) marketsForEvent(ctx context.Context, event, city string) ([]domain.MarketBin, error) {
	path := "/markets?" + url.Values{
		"event_ticker": {event},
		"status":       {"open"},
	}.Encode()

	var resp marketsResponse
	if err := k.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("kalshi.Markets: event %s: %w", event, err)
	}

	bins := make([]domain.MarketBin, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		bin := mapMarket(m, city)
		if !tradeable(bin.Status) {
			continue
		}
		bins = append(bins, bin)
	}
	return bins, nil
}

// tomorrowEventTicker busca el evento de mañana vía /events; si no aparece,
// infiere el ticker canónico SERIES-YYMONDD (ej. KXHIGHNY-26FEB20).
func (k *Markets) tomorrowEventTicker(ctx context.Context, series string) string {
	expected := k.expectedCloseDate()

	path := "/events?" + url.Values{
		"series_ticker": {series},
		"status":        {"open"},
	}.Encode()

	var resp eventsResponse
	if err := k.client.get(ctx, path, &resp); err == nil {
		for _, ev := range resp.Events {
			closeDate, ok := closeDateET(ev.CloseTime)
			if ok && closeDate.Equal(expected) {
				return ev.EventTicker
			}
		}
	}

	tomorrow := k.now().In(marketTZ).AddDate(0, 0, 1)
	ticker := fmt.Sprintf("%s-%s", series, strings.ToUpper(tomorrow.Format("06Jan02")))
	slog.Warn("evento de mañana no encontrado — usando ticker inferido",
		"series", series, "ticker", ticker)
	return ticker
}

// expectedCloseDate es la fecha ET de cierre del evento de mañana.
func (k *Markets) expectedCloseDate() time.Time {
	tomorrow := k.now().In(marketTZ).AddDate(0, 0, 1)
	y, m, d := tomorrow.AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, marketTZ)
}

func closeDateET(raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := t.In(marketTZ).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, marketTZ), true
}

// MarketResult implementa ports.Settler: consulta el estado de un mercado
// ya operado y devuelve (resuelto, ganóYES).
func (k *Markets) MarketResult(ctx context.Context, ticker string) (bool, bool, error) {
	var resp marketResponse
	if err := k.client.get(ctx, "/markets/"+ticker, &resp); err != nil {
		return false, false, fmt.Errorf("kalshi.Markets.MarketResult: %s: %w", ticker, err)
	}

	status := strings.ToLower(resp.Market.Status)
	if status != "settled" && status != "finalized" {
		return false, false, nil
	}
	return true, strings.EqualFold(resp.Market.Result, "yes"), nil
}
