package ports

import (
	"context"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// CityReport es el resultado del ciclo para una ciudad, listo para mostrar.
type CityReport struct {
	City          string
	Dist          domain.TempDistribution
	Opportunities []domain.TradeOpportunity
	Bracket       *domain.BracketOpportunity
	Executed      []domain.TradeRecord
	Err           error // fallo de la ciudad en este ciclo, si lo hubo
}

// CycleReport agrega los resultados de un ciclo completo.
type CycleReport struct {
	Cycle      int
	Balance    float64
	KillSwitch bool
	OpenCount  int
	Cities     []CityReport
}

// Notifier presenta el resultado de cada ciclo al operador.
type Notifier interface {
	Notify(ctx context.Context, report CycleReport) error
}
