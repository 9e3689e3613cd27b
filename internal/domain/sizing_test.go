package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKellyFraction_NoEdgeIsZero(t *testing.T) {
	// modelProb <= ask → nunca apostar
	for _, ask := range []float64{0.1, 0.3, 0.5, 0.9} {
		assert.Equal(t, 0.0, KellyFraction(ask, ask, 0.25, 0.03))
		assert.Equal(t, 0.0, KellyFraction(ask-0.05, ask, 0.25, 0.03))
	}
}

func TestKellyFraction_InvalidAsk(t *testing.T) {
	assert.Equal(t, 0.0, KellyFraction(0.5, 0, 0.25, 0.03))
	assert.Equal(t, 0.0, KellyFraction(0.5, 1.0, 0.25, 0.03))
}

func TestKellyFraction_MonotonicInModelProb(t *testing.T) {
	// Con ask fijo y sin tocar el cap, más probabilidad → más fracción.
	prev := 0.0
	for p := 0.30; p <= 0.40; p += 0.01 {
		f := KellyFraction(p, 0.25, 0.25, 1.0)
		assert.Greater(t, f, prev)
		prev = f
	}
}

func TestKellyFraction_CappedAtMaxPct(t *testing.T) {
	// full_kelly = (0.383-0.25)/0.75 ≈ 0.1773 → ×0.25 ≈ 0.0443 → cap 0.03
	f := KellyFraction(0.383, 0.25, 0.25, 0.03)
	assert.Equal(t, 0.03, f)
}

func TestContractCount_FullBudget(t *testing.T) {
	// balance=1000, frac=0.03 → riesgo $30 → ⌊30/0.25⌋ = 120 contratos, $30 exactos
	count, risk := ContractCount(0.03, 1000, 0.25, 30)
	assert.Equal(t, 120, count)
	assert.InDelta(t, 30.0, risk, 1e-9)
}

func TestContractCount_BudgetCaps(t *testing.T) {
	// frac×balance = 50 pero el presupuesto es 10 → ⌊10/0.40⌋ = 25 contratos
	count, risk := ContractCount(0.05, 1000, 0.40, 10)
	assert.Equal(t, 25, count)
	assert.InDelta(t, 10.0, risk, 1e-9)
}

func TestContractCount_TooSmallToTrade(t *testing.T) {
	count, risk := ContractCount(0.0001, 100, 0.50, 30)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0.0, risk)
}

func TestContractCount_Invariants(t *testing.T) {
	// actualRisk <= dollarRisk <= budget, y count = ⌊dollarRisk/ask⌋ exacto.
	cases := []struct {
		frac, balance, ask, budget float64
	}{
		{0.03, 1000, 0.25, 30},
		{0.02, 5000, 0.37, 75},
		{0.10, 300, 0.61, 18},
		{0.01, 120, 0.08, 2.5},
	}
	for _, c := range cases {
		count, risk := ContractCount(c.frac, c.balance, c.ask, c.budget)
		dollarRisk := math.Min(c.frac*c.balance, c.budget)
		assert.Equal(t, int(math.Floor(dollarRisk/c.ask)), count)
		assert.LessOrEqual(t, risk, dollarRisk+1e-9)
		assert.LessOrEqual(t, risk, c.budget+1e-9)
	}
}

func TestSettlementPnL(t *testing.T) {
	assert.InDelta(t, 84.0, SettlementPnL(30, 120, true), 1e-9)  // (1-0.30)×120
	assert.InDelta(t, -36.0, SettlementPnL(30, 120, false), 1e-9) // -0.30×120
}
