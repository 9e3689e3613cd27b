package calibration

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/ports"
)

// Observer entrega el high realmente observado de un día pasado,
// para rellenar la historia de calibración.
type Observer interface {
	GetObservedHigh(ctx context.Context, city, date string) (float64, error)
}

// Updater recalcula los parámetros de calibración de cada ciudad a partir de
// la historia forecast-vs-realidad. Corre una vez al arranque y una vez por
// día de calendario; nunca falla el ciclo — ante cualquier error deja los
// parámetros existentes como están.
type Updater struct {
	store        ports.CalibrationStore
	observer     Observer
	lookbackDays int
	minRecords   int
}

// NewUpdater crea un Updater. observer puede ser nil: entonces no se
// rellenan actuals y la historia depende de otro camino de escritura.
func NewUpdater(store ports.CalibrationStore, observer Observer, lookbackDays, minRecords int) *Updater {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if minRecords <= 0 {
		minRecords = domain.DefaultMinRecords
	}
	return &Updater{
		store:        store,
		observer:     observer,
		lookbackDays: lookbackDays,
		minRecords:   minRecords,
	}
}

// UpdateAll rellena los actuals de ayer y recalcula la calibración de todas
// las ciudades. Los fallos por ciudad se loguean y no afectan a las demás.
func (u *Updater) UpdateAll(ctx context.Context, cities []string) {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	for _, city := range cities {
		u.fillActual(ctx, city, yesterday)
		u.UpdateCity(ctx, city)
	}
}

// UpdateCity recalcula bias/scale de una ciudad desde su historia.
// Con historia insuficiente escribe los defaults neutros.
func (u *Updater) UpdateCity(ctx context.Context, city string) {
	records, err := u.store.GetCalibrationHistory(ctx, city, u.lookbackDays)
	if err != nil {
		slog.Error("no se pudo leer la historia de calibración — parámetros sin tocar",
			"city", city, "err", err)
		return
	}

	params := domain.ComputeCalibration(records, u.minRecords)
	if params.Records == 0 {
		slog.Info("historia de calibración insuficiente — defaults neutros",
			"city", city, "records", len(records), "min", u.minRecords)
	}

	if err := u.store.PutCalibration(ctx, city, params); err != nil {
		slog.Error("no se pudo guardar la calibración — parámetros sin tocar",
			"city", city, "err", err)
		return
	}

	slog.Info("calibración actualizada",
		"city", city,
		"bias", params.Bias,
		"scale", params.Scale,
		"records", params.Records)
}

// RecordForecast registra el forecast crudo del ciclo en la historia.
// Upsert por (city, date): el último ciclo del día es el que cuenta.
func (u *Updater) RecordForecast(ctx context.Context, f domain.ForecastSummary) {
	if err := u.store.AppendCalibrationSample(ctx, f.City, f.ValidDate, f.Median, f.Sigma); err != nil {
		slog.Warn("no se pudo registrar el sample de calibración",
			"city", f.City, "date", f.ValidDate, "err", err)
	}
}

// fillActual consulta el high observado de un día y lo escribe en la historia.
func (u *Updater) fillActual(ctx context.Context, city, date string) {
	if u.observer == nil {
		return
	}
	actual, err := u.observer.GetObservedHigh(ctx, city, date)
	if err != nil {
		slog.Warn("no se pudo obtener el high observado",
			"city", city, "date", date, "err", err)
		return
	}
	if err := u.store.FillActualHigh(ctx, city, date, actual); err != nil {
		slog.Warn("no se pudo rellenar el actual en la historia",
			"city", city, "date", date, "err", err)
		return
	}
	slog.Info("actual rellenado", "city", city, "date", date, "high", actual)
}
