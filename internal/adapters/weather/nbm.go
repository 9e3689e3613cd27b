package weather

// nbm.go — fetch y parseo del boletín probabilístico NBM (National Blend
// of Models) de NOMADS.
//
// El boletín NBP es un archivo de texto de ~33MB que se publica en los
// ciclos 01Z/07Z/13Z/19Z. Se descarga una vez por ciclo y se parsean las
// 5 estaciones del mismo string.

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// NBMBaseURL es el directorio de producción del blend en NOMADS.
	NBMBaseURL = "https://nomads.ncep.noaa.gov/pub/data/nccf/com/blend/prod"

	// El dato de un ciclo aparece ~2h después de la hora del ciclo.
	cycleLagHours = 2

	bulletinTimeout = 90 * time.Second
)

// Ciclos en orden de preferencia (más reciente primero).
var nbmCycles = []string{"19", "13", "07", "01"}

// latestCycle devuelve (YYYYMMDD, ciclo) del ciclo NBM más reciente que ya
// debería estar publicado.
func latestCycle(now time.Time) (string, string) {
	effective := now.UTC().Add(-cycleLagHours * time.Hour)
	for _, cycle := range nbmCycles {
		hour, _ := strconv.Atoi(cycle)
		if effective.Hour() >= hour {
			return effective.Format("20060102"), cycle
		}
	}
	// Madrugada UTC: el último disponible es el 19Z de ayer.
	prev := effective.AddDate(0, 0, -1)
	return prev.Format("20060102"), "19"
}

func bulletinURL(base, dateStr, cycle string) string {
	return fmt.Sprintf("%s/blend.%s/%s/text/blend_nbptx.t%sz", base, dateStr, cycle, cycle)
}

// fetchBulletin descarga el boletín completo y normaliza los CRLF que
// devuelve NOMADS (rompen los anchors multiline del parser).
func fetchBulletin(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather.fetchBulletin: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather.fetchBulletin: status %d para %s", resp.StatusCode, url)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("weather.fetchBulletin: read body: %w", err)
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}

// extractStationBlock corta el bloque de texto de una estación.
//
// Header del formato NBM V4.3 (con espacio inicial):
//   " KLAX    NBM V4.3 NBP GUIDANCE    2/20/2026  0100 UTC"
// También se acepta el header viejo "KLAX   NBP".
func extractStationBlock(bulletin, station string) (string, bool) {
	header := regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(station) + `[ \t]+NBM`)
	loc := header.FindStringIndex(bulletin)
	if loc == nil {
		header = regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(station) + `[ \t]+NBP`)
		loc = header.FindStringIndex(bulletin)
	}
	if loc == nil {
		return "", false
	}

	start := loc[0]
	// Saltar el header antes de buscar la siguiente estación, si no el
	// search re-matchea el mismo header.
	lineEnd := strings.IndexByte(bulletin[start:], '\n')
	if lineEnd < 0 {
		return bulletin[start:], true
	}
	searchFrom := start + lineEnd + 1

	next := regexp.MustCompile(`(?m)^[ \t]*[A-Z]{4}[ \t]+NBM`).FindStringIndex(bulletin[searchFrom:])
	if next == nil {
		next = regexp.MustCompile(`(?m)^[ \t]*[A-Z]{4}[ \t]+NBP`).FindStringIndex(bulletin[searchFrom:])
	}
	if next == nil {
		return bulletin[start:], true
	}
	return bulletin[start : searchFrom+next[0]], true
}

// parseRow extrae los valores numéricos de una fila etiquetada del bloque.
//
// Formato NBM V4.3, grupos de dos valores separados por '|':
//   " TXNP5  55  43| 64  48| 70  51| ..."
func parseRow(block, label string) []int {
	pattern := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(label) + `\s+([\d\s|/-]+)$`)
	m := pattern.FindStringSubmatch(block)
	if m == nil {
		return nil
	}
	tokens := strings.Fields(strings.ReplaceAll(m[1], "|", " "))
	values := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil
		}
		values = append(values, v)
	}
	return values
}

var reDayHeader = regexp.MustCompile(`(?:MON|TUE|WED|THU|FRI|SAT|SUN)\s+(\d+)`)

// tomorrowMaxColumn encuentra el índice de columna (tras quitar los '|')
// del MaxT del día pedido.
//
// Cada día tiene DOS columnas (00Z y 12Z); el MaxT es la de 00Z, o sea los
// índices pares. El header de fechas es tipo "   SAT 21| SUN 22| MON 23|".
// Ante cualquier duda se usa la columna 0: el MaxT más próximo.
func tomorrowMaxColumn(block string, validDate time.Time) int {
	day := strconv.Itoa(validDate.Day())

	for _, line := range strings.Split(block, "\n") {
		matches := reDayHeader.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}
		for i, m := range matches {
			if m[1] == day {
				return i * 2
			}
		}
		return 0
	}
	return 0
}

// percentiles son las filas TXNP del bloque: p10/p25/p50/p75/p90.
type percentiles struct {
	p10, p25, p50, p75, p90 float64
	ok                      bool
}

// parseStationPercentiles lee los percentiles de MaxT de mañana.
//
// TXNP1 = p10, TXNP2 = p25, TXNP5 = p50, TXNP7 = p75, TXNP9 = p90.
// TXNMN (media determinística) sirve de fallback para la mediana.
// Percentiles ausentes se rellenan por simetría alrededor de la mediana.
func parseStationPercentiles(block string, validDate time.Time) percentiles {
	col := tomorrowMaxColumn(block, validDate)

	get := func(label string) (float64, bool) {
		row := parseRow(block, label)
		if row == nil || col >= len(row) {
			return 0, false
		}
		return float64(row[col]), true
	}

	p50, ok50 := get("TXNP5")
	if !ok50 {
		p50, ok50 = get("TXNMN")
	}
	if !ok50 {
		return percentiles{}
	}

	p10, ok10 := get("TXNP1")
	p90, ok90 := get("TXNP9")
	if !ok10 && ok90 {
		p10, ok10 = 2*p50-p90, true
	}
	if !ok90 && ok10 {
		p90, ok90 = 2*p50-p10, true
	}

	p25, ok25 := get("TXNP2")
	if !ok25 && ok10 {
		p25 = p50 - (p50-p10)*0.5
	} else if !ok25 {
		p25 = p50
	}
	p75, ok75 := get("TXNP7")
	if !ok75 && ok90 {
		p75 = p50 + (p90-p50)*0.5
	} else if !ok75 {
		p75 = p50
	}

	if !ok10 {
		p10 = p50
	}
	if !ok90 {
		p90 = p50
	}
	return percentiles{p10: p10, p25: p25, p50: p50, p75: p75, p90: p90, ok: true}
}

// sigmaFromPercentiles estima sigma promediando el método del IQR y el del
// rango 10-90. Sin percentiles utilizables devuelve 4°F; el piso es 1°F.
func sigmaFromPercentiles(p percentiles) float64 {
	var estimates []float64
	if p.p75 > p.p25 {
		estimates = append(estimates, (p.p75-p.p25)/(2*0.6745))
	}
	if p.p90 > p.p10 {
		estimates = append(estimates, (p.p90-p.p10)/(2*1.282))
	}

	sigma := 4.0
	if len(estimates) > 0 {
		sum := 0.0
		for _, e := range estimates {
			sum += e
		}
		sigma = sum / float64(len(estimates))
	}
	if sigma < 1.0 {
		sigma = 1.0
	}
	return sigma
}
