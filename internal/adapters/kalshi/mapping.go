package kalshi

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// mapping.go — conversión de los DTOs raw de Kalshi a domain.MarketBin.
//
// Los bounds de temperatura salen preferentemente de floor_strike +
// strike_type (los campos autoritativos de la API); el subtitle se parsea
// solo como fallback.

// Formatos de subtitle confirmados en mercados reales:
//   "62° to 63°"    → bin cerrado
//   "55° or below"  → cap abierto por abajo
//   "64° or above"  → cap abierto por arriba
// Variantes históricas: "X° or lower/higher", "Below X°", "Above X°", "X°".
var (
	reRange     = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)°?\s*(?:to|-)\s*(\d+(?:\.\d+)?)°?\s*$`)
	reOrBelow   = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)°?\s*or\s+(?:below|lower)\s*$`)
	reOrAbove   = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)°?\s*or\s+(?:above|higher)\s*$`)
	reBelow     = regexp.MustCompile(`(?i)^(?:below|under)\s+(\d+(?:\.\d+)?)°?\s*$`)
	reAbove     = regexp.MustCompile(`(?i)^(?:above|over)\s+(\d+(?:\.\d+)?)°?\s*$`)
	rePointTemp = regexp.MustCompile(`^(\d+(?:\.\d+)?)°?\s*$`)
)

// parseSubtitle extrae la forma del bin del texto del subtitle.
func parseSubtitle(subtitle string) domain.BinShape {
	s := strings.TrimSpace(subtitle)
	s = strings.ReplaceAll(s, "˚", "°")

	if m := reRange.FindStringSubmatch(s); m != nil {
		return domain.Bounded(mustFloat(m[1]), mustFloat(m[2]))
	}
	if m := reOrBelow.FindStringSubmatch(s); m != nil {
		return domain.OpenLow(mustFloat(m[1]))
	}
	if m := reOrAbove.FindStringSubmatch(s); m != nil {
		return domain.OpenHigh(mustFloat(m[1]))
	}
	if m := reBelow.FindStringSubmatch(s); m != nil {
		return domain.OpenLow(mustFloat(m[1]))
	}
	if m := reAbove.FindStringSubmatch(s); m != nil {
		return domain.OpenHigh(mustFloat(m[1]))
	}
	// "X°" a secas: estimación puntual ±0.5°F.
	if m := rePointTemp.FindStringSubmatch(s); m != nil {
		v := mustFloat(m[1])
		return domain.Bounded(v-0.5, v+0.5)
	}
	return domain.BinShape{}
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// binShape deriva la forma del bin de un mercado raw. strike_type observado:
//   "greater" → YES si temp >  floor_strike (abierto desde strike+1)
//   "less"    → YES si temp <  floor_strike (abierto hasta strike-1)
//   "between" → YES si floor_strike <= temp <= ceil_strike
func binShape(m marketPayload) domain.BinShape {
	if m.FloorStrike != nil && m.StrikeType != "" {
		s := *m.FloorStrike
		switch strings.ToLower(m.StrikeType) {
		case "greater":
			return domain.OpenHigh(s + 1)
		case "less":
			return domain.OpenLow(s - 1)
		case "between":
			high := s
			if m.CeilStrike != nil {
				high = *m.CeilStrike
			}
			return domain.Bounded(s, high)
		}
	}
	return parseSubtitle(subtitle(m))
}

func subtitle(m marketPayload) string {
	if m.YesSubTitle != "" {
		return m.YesSubTitle
	}
	return m.SubTitle
}

// parsePrice normaliza un precio de Kalshi a 0.0-1.0. Según el endpoint
// los precios vienen como centavos enteros o como decimal ya normalizado.
func parsePrice(n json.Number) float64 {
	v, err := n.Float64()
	if err != nil {
		return 0
	}
	if v > 1 {
		return v / 100.0
	}
	return v
}

// mapMarket convierte un marketPayload a domain.MarketBin.
func mapMarket(m marketPayload, city string) domain.MarketBin {
	status := strings.ToLower(m.Status)
	if status == "" {
		status = "open"
	}
	closeTime, _ := time.Parse(time.RFC3339, m.CloseTime)
	return domain.MarketBin{
		Ticker:      m.Ticker,
		EventTicker: m.EventTicker,
		City:        city,
		Shape:       binShape(m),
		SubTitle:    subtitle(m),
		YesAsk:      parsePrice(m.YesAsk),
		YesBid:      parsePrice(m.YesBid),
		Volume:      m.Volume,
		Status:      status,
		CloseTime:   closeTime,
	}
}

func tradeable(status string) bool {
	return status == "open" || status == "active"
}
