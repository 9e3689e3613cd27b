package domain

import "math"

const (
	// DefaultMinRecords es el mínimo de pares (forecast, actual) necesarios
	// para calibrar. Con menos evidencia se usan los defaults neutros.
	DefaultMinRecords = 7

	scaleMin = 0.5
	scaleMax = 2.5
)

// CalibrationParams es la corrección bias/scale de una ciudad.
// Se lee al ajustar la distribución y se escribe solo desde el updater diario.
type CalibrationParams struct {
	Bias    float64 // °F sumados a la mediana del forecast
	Scale   float64 // multiplicador sobre sigma del forecast, en [0.5, 2.5]
	Records int     // cuántos registros respaldan estos parámetros
}

// NeutralCalibration son los defaults cuando no hay historia suficiente.
func NeutralCalibration() CalibrationParams {
	return CalibrationParams{Bias: 0, Scale: 1}
}

// CalibrationRecord es un par histórico forecast-vs-realidad.
type CalibrationRecord struct {
	ForecastMu    float64 // mediana que publicó el forecast
	ForecastSigma float64 // sigma que publicó el forecast
	ActualHigh    float64 // high realmente observado
}

// ComputeCalibration deriva bias y scale de los errores históricos:
//
//	error = actual - forecastMu
//	bias  = mean(error)
//	scale = stdev(error) / mean(forecastSigma), acotado a [0.5, 2.5]
//
// El clamp protege contra un periodo ruidoso que produciría un multiplicador
// extremo. Con menos de minRecords registros devuelve los defaults neutros.
func ComputeCalibration(records []CalibrationRecord, minRecords int) CalibrationParams {
	if minRecords <= 0 {
		minRecords = DefaultMinRecords
	}
	if len(records) < minRecords {
		return NeutralCalibration()
	}

	n := float64(len(records))
	var errSum, sigmaSum float64
	for _, r := range records {
		errSum += r.ActualHigh - r.ForecastMu
		sigmaSum += r.ForecastSigma
	}
	bias := errSum / n
	meanSigma := sigmaSum / n

	var sqSum float64
	for _, r := range records {
		d := (r.ActualHigh - r.ForecastMu) - bias
		sqSum += d * d
	}
	stdev := math.Sqrt(sqSum / n)

	scale := 1.0
	if meanSigma > 0 {
		scale = stdev / meanSigma
		if scale < scaleMin {
			scale = scaleMin
		}
		if scale > scaleMax {
			scale = scaleMax
		}
	}

	return CalibrationParams{Bias: bias, Scale: scale, Records: len(records)}
}
