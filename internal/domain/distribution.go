package domain

import (
	"math"
	"time"
)

// sigmaFloor evita distribuciones degeneradas: con sigma cercano a 0 todos
// los bins cercanos a mu parecen casi seguros y el edge se vuelve inestable.
const sigmaFloor = 1.0

// ForecastSummary es el resumen probabilístico del forecast para una ciudad.
// Entrada externa, inmutable dentro de un ciclo.
type ForecastSummary struct {
	City      string
	ValidDate string  // "YYYY-MM-DD"
	Median    float64 // mediana del high del día (°F)
	Sigma     float64 // estimación de dispersión (°F)
	FetchedAt time.Time
}

// TempDistribution es la Normal ajustada por calibración para una ciudad.
// Conserva los inputs crudos y los parámetros aplicados para auditoría.
type TempDistribution struct {
	City       string
	ValidDate  string
	Mu         float64 // media ajustada (°F)
	Sigma      float64 // desviación ajustada (°F), nunca < 1.0
	RawMu      float64
	RawSigma   float64
	BiasUsed   float64
	ScaleUsed  float64
}

// FitDistribution combina el forecast crudo con la calibración de la ciudad:
//
//	mu'    = median + bias
//	sigma' = max(rawSigma × scale, 1.0)
//
// Función pura, sin efectos.
func FitDistribution(f ForecastSummary, cal CalibrationParams) TempDistribution {
	adjSigma := f.Sigma * cal.Scale
	if adjSigma < sigmaFloor {
		adjSigma = sigmaFloor
	}
	return TempDistribution{
		City:      f.City,
		ValidDate: f.ValidDate,
		Mu:        f.Median + cal.Bias,
		Sigma:     adjSigma,
		RawMu:     f.Median,
		RawSigma:  f.Sigma,
		BiasUsed:  cal.Bias,
		ScaleUsed: cal.Scale,
	}
}

// NormalCDF es Φ, la CDF de la Normal estándar.
func NormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// BinProbability calcula P(T cae en el bin) bajo Normal(mu, sigma).
// Un bin sin forma resoluble tiene probabilidad 0. Total y determinista.
func BinProbability(mu, sigma float64, bin BinShape) float64 {
	switch bin.Kind {
	case BinOpenLow:
		return NormalCDF((bin.High - mu) / sigma)
	case BinOpenHigh:
		return 1 - NormalCDF((bin.Low-mu)/sigma)
	case BinBounded:
		return NormalCDF((bin.High-mu)/sigma) - NormalCDF((bin.Low-mu)/sigma)
	default:
		return 0
	}
}

// InRange devuelve true si el bin toca [mu - width*sigma, mu + width*sigma].
// Se usa como pre-filtro antes de cualquier consulta externa de orderbook.
func (d TempDistribution) InRange(bin BinShape, width float64) bool {
	lo := d.Mu - width*d.Sigma
	hi := d.Mu + width*d.Sigma
	switch bin.Kind {
	case BinBounded:
		return bin.Low <= hi && bin.High >= lo
	case BinOpenLow:
		return bin.High >= lo
	case BinOpenHigh:
		return bin.Low <= hi
	default:
		// Sin bounds no hay forma de excluirlo por rango; el gate de forma
		// del evaluador lo rechazará con su razón propia.
		return true
	}
}
