package weather

// nws.go — forecast puntual de la API de NWS. Se usa como sanity check del
// NBM y, un día después, como el high observado para la calibración.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const nwsPointsURL = "https://api.weather.gov/points/%.4f,%.4f"

// NWS exige un User-Agent identificable.
const nwsUserAgent = "tempedge (temperature market research)"

// NWSClient consulta la API pública de forecast de NWS.
type NWSClient struct {
	http *http.Client
	base string // override para tests; vacío = producción

	mu       sync.Mutex
	forecast map[string]string // "lat,lon" → forecast URL resuelto
}

// NewNWSClient crea el cliente. base vacío usa api.weather.gov.
func NewNWSClient(base string) *NWSClient {
	return &NWSClient{
		http:     &http.Client{Timeout: 15 * time.Second},
		base:     base,
		forecast: make(map[string]string),
	}
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []forecastPeriod `json:"periods"`
	} `json:"properties"`
}

type forecastPeriod struct {
	StartTime       string  `json:"startTime"`
	IsDaytime       bool    `json:"isDaytime"`
	Temperature     float64 `json:"temperature"`
	TemperatureUnit string  `json:"temperatureUnit"`
}

// HighForDate devuelve el high previsto por NWS para una fecha
// ("YYYY-MM-DD") en la ubicación dada.
func (c *NWSClient) HighForDate(ctx context.Context, lat, lon float64, date string) (float64, error) {
	forecastURL, err := c.forecastURL(ctx, lat, lon)
	if err != nil {
		return 0, err
	}

	var resp forecastResponse
	if err := c.getJSON(ctx, forecastURL, &resp); err != nil {
		return 0, fmt.Errorf("weather.NWSClient.HighForDate: %w", err)
	}

	for _, period := range resp.Properties.Periods {
		if !period.IsDaytime || !strings.HasPrefix(period.StartTime, date) {
			continue
		}
		temp := period.Temperature
		if period.TemperatureUnit == "C" {
			temp = temp*9/5 + 32
		}
		return temp, nil
	}
	return 0, fmt.Errorf("weather.NWSClient.HighForDate: sin período diurno para %s", date)
}

// forecastURL resuelve (y cachea) el endpoint de forecast del grid point.
func (c *NWSClient) forecastURL(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	c.mu.Lock()
	cached, ok := c.forecast[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	pointsURL := fmt.Sprintf(c.pointsBase(), lat, lon)
	var resp pointsResponse
	if err := c.getJSON(ctx, pointsURL, &resp); err != nil {
		return "", fmt.Errorf("weather.NWSClient.forecastURL: %w", err)
	}
	if resp.Properties.Forecast == "" {
		return "", fmt.Errorf("weather.NWSClient.forecastURL: respuesta de points sin forecast URL")
	}

	c.mu.Lock()
	c.forecast[key] = resp.Properties.Forecast
	c.mu.Unlock()
	return resp.Properties.Forecast, nil
}

func (c *NWSClient) pointsBase() string {
	if c.base != "" {
		return c.base + "/points/%.4f,%.4f"
	}
	return nwsPointsURL
}

func (c *NWSClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", nwsUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d de %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
