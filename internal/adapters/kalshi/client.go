package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DemoBaseURL es el entorno de pruebas de Kalshi.
	DemoBaseURL = "https://demo-api.kalshi.co/trade-api/v2"
	// ProdBaseURL es el entorno real.
	ProdBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

	// La API pública devuelve 429 con facilidad; un request cada 350ms
	// mantiene el scanner por debajo del límite.
	minRequestInterval = 350 * time.Millisecond

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de Kalshi con rate limiting, retries y firma
// RSA-PSS opcional. Con signer nil solo funcionan los endpoints públicos.
type Client struct {
	http    *http.Client
	base    string
	signer  *Signer
	limiter *rate.Limiter
}

// NewClient crea un Client contra el base URL dado.
// Con base vacío usa producción.
func NewClient(base string, signer *Signer) *Client {
	if base == "" {
		base = ProdBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 20 * time.Second},
		base:    base,
		signer:  signer,
		limiter: rate.NewLimiter(rate.Every(minRequestInterval), 1),
	}
}

// get hace un GET firmado con rate limiting y retries.
// path lleva el query string; la firma lo descarta.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return nil, err
		}
		if err := c.sign(req, http.MethodGet, path); err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON firmado. Sin retries: reintentar un POST de orden
// a ciegas duplica órdenes; la idempotencia vive en client_order_id y el
// caller decide si reintenta.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	if err := c.sign(req, http.MethodPost, path); err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kalshi %s: status %d: %s", path, resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sign(req *http.Request, method, path string) error {
	if c.signer == nil {
		return nil
	}
	headers, err := c.signer.Headers(method, path)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}

// doWithRetry ejecuta la función con backoff exponencial, reintentando
// 429s y errores de servidor.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("kalshi rate limit", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(raw))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
