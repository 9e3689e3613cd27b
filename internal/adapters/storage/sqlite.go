package storage

// sqlite.go — persistencia del ledger de trades y de la calibración.
//
// Cuatro tablas:
//   - `trades`: una fila por orden colocada; la resolución se escribe
//     después vía settlement. Es la fuente de verdad para la recuperación
//     tras restart.
//   - `calibration_history`: una fila por (ciudad, fecha) con el forecast
//     crudo; el actual_high se rellena al día siguiente.
//   - `calibration_params`: los parámetros vigentes por ciudad.
//   - `daily_pnl`: snapshot de fin de día.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    city        TEXT NOT NULL,
    ticker      TEXT NOT NULL,
    side        TEXT NOT NULL,
    action      TEXT NOT NULL,
    count       INTEGER NOT NULL,
    price_cents INTEGER NOT NULL,
    model_prob  REAL NOT NULL,
    net_edge    REAL NOT NULL,
    kelly_frac  REAL NOT NULL,
    dollar_risk REAL NOT NULL,
    strategy    TEXT NOT NULL,
    bracket_id  TEXT NOT NULL DEFAULT '',
    leg         INTEGER NOT NULL DEFAULT 0,
    order_id    TEXT NOT NULL DEFAULT '',
    trade_date  TEXT NOT NULL,
    placed_at   DATETIME NOT NULL,
    resolution  TEXT NOT NULL DEFAULT 'open',
    pnl         REAL NOT NULL DEFAULT 0,
    resolved_at DATETIME
);

CREATE TABLE IF NOT EXISTS calibration_history (
    city           TEXT NOT NULL,
    forecast_date  TEXT NOT NULL,
    forecast_mu    REAL NOT NULL,
    forecast_sigma REAL NOT NULL,
    actual_high    REAL,
    PRIMARY KEY (city, forecast_date)
);

CREATE TABLE IF NOT EXISTS calibration_params (
    city       TEXT PRIMARY KEY,
    bias       REAL NOT NULL,
    scale      REAL NOT NULL,
    records    INTEGER NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_pnl (
    date    TEXT PRIMARY KEY,
    balance REAL NOT NULL,
    pnl     REAL NOT NULL,
    trades  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_resolution ON trades(resolution);
CREATE INDEX IF NOT EXISTS idx_trades_date       ON trades(trade_date DESC);
CREATE INDEX IF NOT EXISTS idx_cal_city_date     ON calibration_history(city, forecast_date DESC);
`

// Store implementa ports.TradeStore y ports.CalibrationStore sobre SQLite
// (pure Go, sin CGo).
type Store struct {
	db *sql.DB
}

// NewStore abre (o crea) la base de datos en la ruta dada y aplica el
// schema. ":memory:" funciona para tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutTrade inserta el registro de una orden recién colocada.
// Genera el ID si viene vacío y lo devuelve.
func (s *Store) PutTrade(ctx context.Context, t domain.TradeRecord) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Resolution == "" {
		t.Resolution = domain.TradeOpen
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, city, ticker, side, action, count, price_cents, model_prob,
			 net_edge, kelly_frac, dollar_risk, strategy, bracket_id, leg,
			 order_id, trade_date, placed_at, resolution, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.City, t.Ticker, t.Side, t.Action, t.Count, t.PriceCents,
		t.ModelProb, t.NetEdge, t.KellyFrac, t.DollarRisk,
		string(t.Strategy.Kind), t.Strategy.BracketID, t.Strategy.Leg,
		t.OrderID, t.TradeDate, t.PlacedAt.UTC(), string(t.Resolution), t.PnL,
	)
	if err != nil {
		return "", fmt.Errorf("storage.PutTrade: %s: %w", t.Ticker, err)
	}
	return t.ID, nil
}

// MarkResolved escribe la resolución y el P&L realizado de un trade.
func (s *Store) MarkResolved(ctx context.Context, tradeID string, resolution domain.TradeResolution, pnl float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET resolution = ?, pnl = ?, resolved_at = ?
		WHERE id = ?`,
		string(resolution), pnl, time.Now().UTC(), tradeID,
	)
	if err != nil {
		return fmt.Errorf("storage.MarkResolved: %s: %w", tradeID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("storage.MarkResolved: trade %s no existe", tradeID)
	}
	return nil
}

// GetOpenTrades devuelve todos los trades sin resolver.
func (s *Store) GetOpenTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, city, ticker, side, action, count, price_cents, model_prob,
		       net_edge, kelly_frac, dollar_risk, strategy, bracket_id, leg,
		       order_id, trade_date, placed_at, resolution, pnl, resolved_at
		FROM trades
		WHERE resolution = 'open'
		ORDER BY placed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenTrades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.GetOpenTrades: scan: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.TradeRecord, error) {
	var (
		t          domain.TradeRecord
		strategy   string
		resolution string
		resolvedAt sql.NullTime
	)
	err := rows.Scan(
		&t.ID, &t.City, &t.Ticker, &t.Side, &t.Action, &t.Count, &t.PriceCents,
		&t.ModelProb, &t.NetEdge, &t.KellyFrac, &t.DollarRisk,
		&strategy, &t.Strategy.BracketID, &t.Strategy.Leg,
		&t.OrderID, &t.TradeDate, &t.PlacedAt, &resolution, &t.PnL, &resolvedAt,
	)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	t.Strategy.Kind = domain.StrategyKind(strategy)
	t.Resolution = domain.TradeResolution(resolution)
	if resolvedAt.Valid {
		at := resolvedAt.Time
		t.ResolvedAt = &at
	}
	return t, nil
}

// SaveDailyPnL hace upsert del snapshot de fin de día.
func (s *Store) SaveDailyPnL(ctx context.Context, date string, balance, pnl float64, trades int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_pnl (date, balance, pnl, trades)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			balance = excluded.balance,
			pnl     = excluded.pnl,
			trades  = excluded.trades`,
		date, balance, pnl, trades,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDailyPnL: %s: %w", date, err)
	}
	return nil
}

// GetCalibration devuelve los parámetros vigentes de una ciudad, o los
// defaults neutros si nunca se calibró.
func (s *Store) GetCalibration(ctx context.Context, city string) (domain.CalibrationParams, error) {
	var p domain.CalibrationParams
	err := s.db.QueryRowContext(ctx, `
		SELECT bias, scale, records FROM calibration_params WHERE city = ?`,
		city,
	).Scan(&p.Bias, &p.Scale, &p.Records)
	if err == sql.ErrNoRows {
		return domain.NeutralCalibration(), nil
	}
	if err != nil {
		return domain.CalibrationParams{}, fmt.Errorf("storage.GetCalibration: %s: %w", city, err)
	}
	return p, nil
}

// PutCalibration escribe los parámetros de una ciudad.
func (s *Store) PutCalibration(ctx context.Context, city string, params domain.CalibrationParams) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_params (city, bias, scale, records, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(city) DO UPDATE SET
			bias       = excluded.bias,
			scale      = excluded.scale,
			records    = excluded.records,
			updated_at = excluded.updated_at`,
		city, params.Bias, params.Scale, params.Records, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.PutCalibration: %s: %w", city, err)
	}
	return nil
}

// AppendCalibrationSample registra el forecast crudo de un día.
// Upsert por (city, date): el ciclo corre varias veces al día y gana el
// forecast más reciente.
func (s *Store) AppendCalibrationSample(ctx context.Context, city, date string, forecastMu, forecastSigma float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_history (city, forecast_date, forecast_mu, forecast_sigma)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(city, forecast_date) DO UPDATE SET
			forecast_mu    = excluded.forecast_mu,
			forecast_sigma = excluded.forecast_sigma`,
		city, date, forecastMu, forecastSigma,
	)
	if err != nil {
		return fmt.Errorf("storage.AppendCalibrationSample: %s %s: %w", city, date, err)
	}
	return nil
}

// FillActualHigh completa el high observado de un día ya registrado.
// Si no hay fila para ese día no es un error: simplemente no hubo forecast.
func (s *Store) FillActualHigh(ctx context.Context, city, date string, actual float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE calibration_history SET actual_high = ?
		WHERE city = ? AND forecast_date = ?`,
		actual, city, date,
	)
	if err != nil {
		return fmt.Errorf("storage.FillActualHigh: %s %s: %w", city, date, err)
	}
	return nil
}

// GetCalibrationHistory devuelve los pares (forecast, actual) completos de
// la ventana de lookback, más recientes primero.
func (s *Store) GetCalibrationHistory(ctx context.Context, city string, lookbackDays int) ([]domain.CalibrationRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT forecast_mu, forecast_sigma, actual_high
		FROM calibration_history
		WHERE city = ? AND forecast_date >= ? AND actual_high IS NOT NULL
		ORDER BY forecast_date DESC`,
		city, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.GetCalibrationHistory: %s: %w", city, err)
	}
	defer rows.Close()

	var records []domain.CalibrationRecord
	for rows.Next() {
		var r domain.CalibrationRecord
		if err := rows.Scan(&r.ForecastMu, &r.ForecastSigma, &r.ActualHigh); err != nil {
			return nil, fmt.Errorf("storage.GetCalibrationHistory: scan: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
