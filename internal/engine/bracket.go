package engine

import (
	"log/slog"
	"sort"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// FindBracket busca el mejor par de bins cerrados adyacentes que rodean la
// media de la distribución. Los dos bins son resultados mutuamente
// excluyentes: comprar ambos cubre la incertidumbre sobre el bin exacto
// donde cae el high, a cambio de pagar fees en las dos patas — por eso
// bracketMinEdge es un listón más alto que el de una pata sola.
//
// Candidato válido:
//   - ambos bins cerrados y con net edge individual >= minEdge
//     (los abiertos se excluyen: su "centro" no está definido)
//   - adyacencia real por grados: lower.High + 1 == upper.Low
//   - la media cae entre los puntos medios de los dos bins
//
// De los candidatos que superan bracketMinEdge en edge combinado y tienen
// EV positivo, devuelve el de mayor expected value, o nil.
func FindBracket(dist domain.TempDistribution, opps []domain.TradeOpportunity, minEdge, bracketMinEdge float64) *domain.BracketOpportunity {
	bounded := make([]domain.TradeOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.Bin.Shape.Kind == domain.BinBounded && o.NetEdge >= minEdge {
			bounded = append(bounded, o)
		}
	}
	if len(bounded) < 2 {
		return nil
	}

	sort.Slice(bounded, func(i, j int) bool {
		return bounded[i].Bin.Shape.Low < bounded[j].Bin.Shape.Low
	})

	var best *domain.BracketOpportunity
	for i := 0; i < len(bounded)-1; i++ {
		lower, upper := bounded[i], bounded[i+1]

		if upper.Bin.Shape.Low != lower.Bin.Shape.High+1 {
			continue // huecos o solapes no forman bracket
		}

		lowerMid, _ := lower.Bin.Shape.Center()
		upperMid, _ := upper.Bin.Shape.Center()
		if dist.Mu < lowerMid || dist.Mu > upperMid {
			continue // el par no rodea el forecast
		}

		combinedProb := lower.ModelProb + upper.ModelProb
		totalAsk := lower.Ask + upper.Ask
		totalNetEdge := lower.NetEdge + upper.NetEdge
		ev := combinedProb - totalAsk

		if totalNetEdge < bracketMinEdge {
			slog.Debug("bracket descartado: edge combinado bajo el listón",
				"lower", lower.Bin.Ticker, "upper", upper.Bin.Ticker,
				"total_net_edge", totalNetEdge, "min", bracketMinEdge)
			continue
		}
		if ev <= 0 {
			continue
		}

		cand := &domain.BracketOpportunity{
			Lower:        lower,
			Upper:        upper,
			CombinedProb: combinedProb,
			TotalAsk:     totalAsk,
			ProfitIfHit:  1 - totalAsk,
			TotalNetEdge: totalNetEdge,
			ExpectedVal:  ev,
		}
		if best == nil || cand.ExpectedVal > best.ExpectedVal {
			best = cand
		}
	}
	return best
}
