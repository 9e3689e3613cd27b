package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

func boundedOpp(low, high, prob, ask, netEdge float64) domain.TradeOpportunity {
	return domain.TradeOpportunity{
		Bin:       domain.MarketBin{Ticker: "T", Shape: domain.Bounded(low, high)},
		ModelProb: prob,
		Ask:       ask,
		NetEdge:   netEdge,
		HasEdge:   true,
	}
}

func TestFindBracket_AcceptsStraddlingAdjacentPair(t *testing.T) {
	dist := domain.TempDistribution{Mu: 65.5, Sigma: 1.0}
	opps := []domain.TradeOpportunity{
		boundedOpp(64, 65, 0.24, 0.15, 0.06),
		boundedOpp(66, 67, 0.24, 0.15, 0.06),
	}

	b := FindBracket(dist, opps, 0.05, 0.08)
	require.NotNil(t, b)
	assert.InDelta(t, 0.48, b.CombinedProb, 1e-9)
	assert.InDelta(t, 0.30, b.TotalAsk, 1e-9)
	assert.InDelta(t, 0.70, b.ProfitIfHit, 1e-9)
	assert.InDelta(t, 0.12, b.TotalNetEdge, 1e-9)
	assert.InDelta(t, 0.18, b.ExpectedVal, 1e-9)
	assert.Equal(t, 64.0, b.Lower.Bin.Shape.Low)
	assert.Equal(t, 66.0, b.Upper.Bin.Shape.Low)
}

func TestFindBracket_RejectsCombinedEdgeBelowBar(t *testing.T) {
	// Cada pata supera el umbral individual (0.05) pero la suma (0.10)
	// no llega al listón del bracket (0.12).
	dist := domain.TempDistribution{Mu: 65.5, Sigma: 1.0}
	opps := []domain.TradeOpportunity{
		boundedOpp(64, 65, 0.24, 0.15, 0.05),
		boundedOpp(66, 67, 0.24, 0.15, 0.05),
	}
	assert.Nil(t, FindBracket(dist, opps, 0.05, 0.12))
}

func TestFindBracket_RejectsNonAdjacent(t *testing.T) {
	// Hueco de un grado entre bins → no hay bracket.
	dist := domain.TempDistribution{Mu: 66.0, Sigma: 1.0}
	opps := []domain.TradeOpportunity{
		boundedOpp(63, 64, 0.20, 0.15, 0.06),
		boundedOpp(66, 67, 0.25, 0.15, 0.06),
	}
	assert.Nil(t, FindBracket(dist, opps, 0.05, 0.08))
}

func TestFindBracket_RejectsNonStraddling(t *testing.T) {
	// Par adyacente pero la media (62.0) queda fuera de los midpoints.
	dist := domain.TempDistribution{Mu: 62.0, Sigma: 1.0}
	opps := []domain.TradeOpportunity{
		boundedOpp(64, 65, 0.20, 0.15, 0.06),
		boundedOpp(66, 67, 0.15, 0.15, 0.06),
	}
	assert.Nil(t, FindBracket(dist, opps, 0.05, 0.08))
}

func TestFindBracket_ExcludesOpenEndedBins(t *testing.T) {
	dist := domain.TempDistribution{Mu: 65.5, Sigma: 1.0}
	open := domain.TradeOpportunity{
		Bin:       domain.MarketBin{Shape: domain.OpenLow(65)},
		ModelProb: 0.5, Ask: 0.2, NetEdge: 0.10, HasEdge: true,
	}
	opps := []domain.TradeOpportunity{open, boundedOpp(66, 67, 0.24, 0.15, 0.06)}
	assert.Nil(t, FindBracket(dist, opps, 0.05, 0.08))
}

func TestFindBracket_ExcludesLegsBelowIndividualEdge(t *testing.T) {
	dist := domain.TempDistribution{Mu: 65.5, Sigma: 1.0}
	opps := []domain.TradeOpportunity{
		boundedOpp(64, 65, 0.24, 0.15, 0.04), // no llega al mínimo individual
		boundedOpp(66, 67, 0.24, 0.15, 0.20),
	}
	assert.Nil(t, FindBracket(dist, opps, 0.05, 0.08))
}

func TestFindBracket_RejectsNegativeEV(t *testing.T) {
	// Edge combinado alto pero probabilidad conjunta menor que el coste total.
	dist := domain.TempDistribution{Mu: 65.5, Sigma: 1.0}
	opps := []domain.TradeOpportunity{
		boundedOpp(64, 65, 0.20, 0.25, 0.07),
		boundedOpp(66, 67, 0.20, 0.25, 0.07),
	}
	assert.Nil(t, FindBracket(dist, opps, 0.05, 0.08))
}

func TestFindBracket_PicksHighestEV(t *testing.T) {
	// Dos candidatos válidos en cadena: [63,64]+[65,66] y [65,66]+[67,68].
	dist := domain.TempDistribution{Mu: 65.5, Sigma: 2.0} // mu entre ambos pares
	opps := []domain.TradeOpportunity{
		boundedOpp(63, 64, 0.18, 0.12, 0.06),
		boundedOpp(65, 66, 0.26, 0.14, 0.07),
		boundedOpp(67, 68, 0.22, 0.12, 0.06),
	}

	b := FindBracket(dist, opps, 0.05, 0.08)
	require.NotNil(t, b)
	// EV par bajo: 0.44-0.26 = 0.18; EV par alto: 0.48-0.26 = 0.22 → gana el alto
	assert.Equal(t, 65.0, b.Lower.Bin.Shape.Low)
	assert.Equal(t, 67.0, b.Upper.Bin.Shape.Low)
	assert.InDelta(t, 0.22, b.ExpectedVal, 1e-9)
}
