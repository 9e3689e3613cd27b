package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/tempedge/internal/domain"
	"github.com/alejandrodnm/tempedge/internal/ports"
)

// Console implementa ports.Notifier escribiendo el reporte del ciclo a
// stdout, en modo compacto (una línea) o tabla completa.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el reporte en el modo configurado.
func (c *Console) Notify(_ context.Context, report ports.CycleReport) error {
	if report.KillSwitch {
		fmt.Fprintf(c.out, "[%s] ciclo %d | KILL SWITCH ACTIVO | balance $%.2f | %d abiertas\n",
			time.Now().Format("15:04:05"), report.Cycle, report.Balance, report.OpenCount)
		return nil
	}

	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact resume el ciclo en una línea por ciudad con señal.
func (c *Console) printCompact(report ports.CycleReport) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] ciclo %d | $%.2f | %d abiertas",
		time.Now().Format("15:04:05"), report.Cycle, report.Balance, report.OpenCount)

	for _, city := range report.Cities {
		if city.Err != nil {
			fmt.Fprintf(&sb, " | %s:ERR", city.City)
			continue
		}
		executed := len(city.Executed)
		viable := countViable(city.Opportunities)
		if executed == 0 && viable == 0 {
			continue
		}
		tag := ""
		if city.Bracket != nil {
			tag = "*"
		}
		fmt.Fprintf(&sb, " | %s%s µ%.0f edge:%d exec:%d",
			city.City, tag, city.Dist.Mu, viable, executed)
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla por ciudad y el detalle de lo ejecutado.
func (c *Console) printFull(report ports.CycleReport) {
	fmt.Fprintf(c.out, "\n[%s] ciclo %d — balance $%.2f — %d posiciones abiertas\n",
		time.Now().Format("15:04:05"), report.Cycle, report.Balance, report.OpenCount)

	table := tablewriter.NewWriter(c.out)
	table.Header("City", "µ", "σ", "Bins", "Edge", "Best bin", "Net edge", "Bracket", "Exec")

	for _, city := range report.Cities {
		if city.Err != nil {
			table.Append(city.City, "-", "-", "-", "-", "ERROR: "+truncate(city.Err.Error(), 30), "-", "-", "-")
			continue
		}

		bestBin, bestEdge := "-", "-"
		if best := bestOpportunity(city.Opportunities); best != nil {
			bestBin = best.Bin.SubTitle
			bestEdge = fmt.Sprintf("%+.3f", best.NetEdge)
		}
		bracket := "-"
		if city.Bracket != nil {
			bracket = fmt.Sprintf("EV %.3f", city.Bracket.ExpectedVal)
		}

		table.Append(
			city.City,
			fmt.Sprintf("%.1f", city.Dist.Mu),
			fmt.Sprintf("%.1f", city.Dist.Sigma),
			fmt.Sprintf("%d", len(city.Opportunities)),
			fmt.Sprintf("%d", countViable(city.Opportunities)),
			bestBin,
			bestEdge,
			bracket,
			fmt.Sprintf("%d", len(city.Executed)),
		)
	}
	table.Render()

	c.printExecuted(report)
}

func (c *Console) printExecuted(report ports.CycleReport) {
	var trades []domain.TradeRecord
	for _, city := range report.Cities {
		trades = append(trades, city.Executed...)
	}
	if len(trades) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticker", "Strategy", "Count", "Price", "Risk", "P(model)", "Net edge")
	for _, t := range trades {
		strategy := string(t.Strategy.Kind)
		if t.Strategy.Kind == domain.StrategyBracket {
			strategy = fmt.Sprintf("bracket/%d", t.Strategy.Leg)
		}
		table.Append(
			t.Ticker,
			strategy,
			fmt.Sprintf("%d", t.Count),
			fmt.Sprintf("%d¢", t.PriceCents),
			fmt.Sprintf("$%.2f", t.DollarRisk),
			fmt.Sprintf("%.3f", t.ModelProb),
			fmt.Sprintf("%+.3f", t.NetEdge),
		)
	}
	table.Render()
}

func countViable(opps []domain.TradeOpportunity) int {
	n := 0
	for _, o := range opps {
		if o.HasEdge {
			n++
		}
	}
	return n
}

func bestOpportunity(opps []domain.TradeOpportunity) *domain.TradeOpportunity {
	for i := range opps {
		if opps[i].HasEdge {
			return &opps[i]
		}
	}
	if len(opps) > 0 {
		return &opps[0]
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
