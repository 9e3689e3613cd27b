package ports

import (
	"context"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// TradeStore persiste el ledger de trades y los snapshots diarios de P&L.
type TradeStore interface {
	// PutTrade persiste un trade recién ejecutado y devuelve su ID.
	PutTrade(ctx context.Context, trade domain.TradeRecord) (string, error)

	// MarkResolved marca un trade como resuelto con su P&L realizado.
	MarkResolved(ctx context.Context, tradeID string, resolution domain.TradeResolution, pnl float64) error

	// GetOpenTrades devuelve los trades sin resolver (recuperación tras restart).
	GetOpenTrades(ctx context.Context) ([]domain.TradeRecord, error)

	// SaveDailyPnL guarda el snapshot de fin de día.
	SaveDailyPnL(ctx context.Context, date string, balance, pnl float64, trades int) error

	// Close cierra la conexión limpiamente.
	Close() error
}

// CalibrationStore guarda los parámetros de calibración por ciudad y la
// historia forecast-vs-realidad que los respalda. Sustituye el estado global
// mutable del diseño anterior: el fitter y el updater lo reciben inyectado.
type CalibrationStore interface {
	// GetCalibration devuelve los parámetros actuales de la ciudad.
	// Si nunca se calibró, devuelve los defaults neutros.
	GetCalibration(ctx context.Context, city string) (domain.CalibrationParams, error)

	// PutCalibration escribe los parámetros de la ciudad (una vez al día).
	PutCalibration(ctx context.Context, city string, params domain.CalibrationParams) error

	// AppendCalibrationSample registra el forecast crudo de un ciclo para
	// calibración futura. Upsert por (city, date).
	AppendCalibrationSample(ctx context.Context, city, date string, forecastMu, forecastSigma float64) error

	// FillActualHigh completa el high observado de un día ya registrado.
	FillActualHigh(ctx context.Context, city, date string, actual float64) error

	// GetCalibrationHistory devuelve los pares (forecast, actual) completos
	// dentro de la ventana de lookback.
	GetCalibrationHistory(ctx context.Context, city string, lookbackDays int) ([]domain.CalibrationRecord, error)
}
