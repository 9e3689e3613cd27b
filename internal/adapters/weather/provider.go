package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// Station describe la ubicación de una ciudad para los dos data sources:
// la estación ICAO del boletín NBM y las coordenadas para NWS.
type Station struct {
	NBMStation string // ej. "KLAX"
	Lat, Lon   float64
}

// Provider implementa ports.ForecastProvider sobre el boletín NBM, con el
// forecast de NWS como sanity check. El boletín se descarga una vez por
// ciclo y se comparte entre todas las ciudades.
type Provider struct {
	http     *http.Client
	base     string
	nws      *NWSClient
	stations map[string]Station
	now      func() time.Time

	mu       sync.Mutex
	cacheKey string
	bulletin string
}

// NewProvider crea el provider. base vacío usa NOMADS de producción.
func NewProvider(base string, nws *NWSClient, stations map[string]Station) *Provider {
	if base == "" {
		base = NBMBaseURL
	}
	return &Provider{
		http:     &http.Client{Timeout: bulletinTimeout},
		base:     base,
		nws:      nws,
		stations: stations,
		now:      time.Now,
	}
}

// GetForecast parsea la estación de la ciudad del boletín del ciclo más
// reciente y devuelve (mediana, sigma) del MaxT de mañana.
func (p *Provider) GetForecast(ctx context.Context, city string) (domain.ForecastSummary, error) {
	st, ok := p.stations[city]
	if !ok {
		return domain.ForecastSummary{}, fmt.Errorf("weather.Provider.GetForecast: ciudad desconocida %q", city)
	}

	dateStr, cycle := latestCycle(p.now())
	bulletin, err := p.cachedBulletin(ctx, dateStr, cycle)
	if err != nil {
		return domain.ForecastSummary{}, err
	}

	block, found := extractStationBlock(bulletin, st.NBMStation)
	if !found {
		return domain.ForecastSummary{}, fmt.Errorf(
			"weather.Provider.GetForecast: estación %s no está en el boletín %s/%sZ",
			st.NBMStation, dateStr, cycle)
	}

	runDate, err := time.Parse("20060102", dateStr)
	if err != nil {
		return domain.ForecastSummary{}, fmt.Errorf("weather.Provider.GetForecast: run date: %w", err)
	}
	validDate := runDate.AddDate(0, 0, 1)

	pct := parseStationPercentiles(block, validDate)
	if !pct.ok {
		return domain.ForecastSummary{}, fmt.Errorf(
			"weather.Provider.GetForecast: sin MaxT parseable para %s", st.NBMStation)
	}
	sigma := sigmaFromPercentiles(pct)

	slog.Info("forecast NBM",
		"city", city,
		"station", st.NBMStation,
		"cycle", cycle+"Z",
		"median", pct.p50,
		"sigma", sigma,
		"p10", pct.p10,
		"p90", pct.p90)

	p.sanityCheck(ctx, city, st, validDate.Format("2006-01-02"), pct.p50)

	return domain.ForecastSummary{
		City:      city,
		ValidDate: validDate.Format("2006-01-02"),
		Median:    pct.p50,
		Sigma:     sigma,
		FetchedAt: p.now().UTC(),
	}, nil
}

// GetObservedHigh implementa calibration.Observer vía NWS: el high de un
// día ya pasado, para rellenar la historia de calibración.
func (p *Provider) GetObservedHigh(ctx context.Context, city, date string) (float64, error) {
	st, ok := p.stations[city]
	if !ok {
		return 0, fmt.Errorf("weather.Provider.GetObservedHigh: ciudad desconocida %q", city)
	}
	if p.nws == nil {
		return 0, fmt.Errorf("weather.Provider.GetObservedHigh: NWS no configurado")
	}
	return p.nws.HighForDate(ctx, st.Lat, st.Lon, date)
}

// cachedBulletin descarga el boletín solo si cambió el ciclo.
func (p *Provider) cachedBulletin(ctx context.Context, dateStr, cycle string) (string, error) {
	key := dateStr + "#" + cycle

	p.mu.Lock()
	if p.cacheKey == key {
		text := p.bulletin
		p.mu.Unlock()
		slog.Debug("boletín NBM cacheado", "key", key)
		return text, nil
	}
	p.mu.Unlock()

	url := bulletinURL(p.base, dateStr, cycle)
	slog.Info("descargando boletín NBM", "url", url)
	text, err := fetchBulletin(ctx, p.http, url)
	if err != nil {
		// Fallback: ciclo anterior del mismo día.
		if fallback := previousCycle(cycle); fallback != "" {
			slog.Warn("boletín no disponible — probando ciclo anterior",
				"cycle", cycle, "fallback", fallback, "err", err)
			text, err = fetchBulletin(ctx, p.http, bulletinURL(p.base, dateStr, fallback))
			key = dateStr + "#" + fallback
		}
		if err != nil {
			return "", err
		}
	}
	slog.Info("boletín NBM descargado", "mb", float64(len(text))/1048576)

	p.mu.Lock()
	p.cacheKey = key
	p.bulletin = text
	p.mu.Unlock()
	return text, nil
}

func previousCycle(cycle string) string {
	for i, c := range nbmCycles {
		if c == cycle && i+1 < len(nbmCycles) {
			return nbmCycles[i+1]
		}
	}
	return ""
}

// sanityCheck compara la mediana NBM contra el forecast puntual de NWS y
// avisa si divergen demasiado. Solo informativo.
func (p *Provider) sanityCheck(ctx context.Context, city string, st Station, date string, median float64) {
	if p.nws == nil {
		return
	}
	nwsHigh, err := p.nws.HighForDate(ctx, st.Lat, st.Lon, date)
	if err != nil {
		slog.Debug("sanity check NWS no disponible", "city", city, "err", err)
		return
	}
	diff := median - nwsHigh
	if diff < 0 {
		diff = -diff
	}
	if diff > 5 {
		slog.Warn("NBM y NWS divergen",
			"city", city, "nbm_median", median, "nws_high", nwsHigh)
	}
}
