package domain

import "math"

// KellyFraction devuelve la fracción del bankroll a arriesgar comprando YES
// al precio ask con probabilidad de modelo modelProb.
//
// Kelly completo para un contrato binario (compra a q, paga $1 si YES):
//
//	f* = (p - q) / (1 - q)
//
// Se usa a fracción (kellyMult, típicamente 0.25) y se capa en maxPct.
// Nunca devuelve negativo ni por encima de maxPct.
func KellyFraction(modelProb, ask, kellyMult, maxPct float64) float64 {
	netPayout := 1 - ask // ganancia por $ arriesgado si resuelve YES
	if ask <= 0 || netPayout <= 0 {
		return 0
	}
	full := (modelProb - ask) / netPayout
	if full < 0 {
		full = 0
	}
	frac := kellyMult * full
	if frac > maxPct {
		frac = maxPct
	}
	return frac
}

// ContractCount convierte una fracción Kelly en contratos enteros bajo un
// presupuesto absoluto en dólares.
//
//	dollarRisk = clamp(kellyFrac × balance, 0, maxDollarRisk)
//	count      = floor(dollarRisk / ask)
//
// count = 0 significa "no operar": el size no llega a un contrato.
func ContractCount(kellyFrac, balance, ask, maxDollarRisk float64) (count int, actualRisk float64) {
	if ask <= 0 || kellyFrac <= 0 {
		return 0, 0
	}
	dollarRisk := kellyFrac * balance
	if dollarRisk > maxDollarRisk {
		dollarRisk = maxDollarRisk
	}
	if dollarRisk < 0 {
		dollarRisk = 0
	}
	count = int(math.Floor(dollarRisk / ask))
	return count, float64(count) * ask
}
