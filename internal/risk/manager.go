package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

// Limits son los parámetros de riesgo del día.
type Limits struct {
	DailyStopLossPct float64 // drawdown diario que activa el kill switch
	MaxOpenPositions int
	MaxCityPct       float64 // exposición máxima por ciudad como fracción del balance
}

// Status es un snapshot del estado de riesgo para el dashboard.
type Status struct {
	KillSwitch      bool
	OpenPositions   int
	MaxPositions    int
	DayStartBalance float64
	CurrentBalance  float64
	CityExposure    map[string]float64
	OpenTickers     []string
}

// Manager es la máquina de estados de riesgo diaria.
//
// Dos caminos mutan el estado: el ciclo programado (registro de trades) y las
// acciones fuera de banda (cierre manual, settlement). Un único mutex
// serializa ambos, incluido el reset diario que podría cruzarse con un ciclo
// en vuelo a medianoche.
type Manager struct {
	mu sync.Mutex

	limits          Limits
	today           string // "YYYY-MM-DD"
	dayStartBalance float64
	currentBalance  float64
	killSwitch      bool
	openCount       int
	cityExposure    map[string]float64
	openTickers     map[string]struct{}
}

// NewManager crea un Manager con el balance inicial del día.
func NewManager(limits Limits, startingBalance float64) *Manager {
	return &Manager{
		limits:          limits,
		today:           time.Now().Format("2006-01-02"),
		dayStartBalance: startingBalance,
		currentBalance:  startingBalance,
		cityExposure:    make(map[string]float64),
		openTickers:     make(map[string]struct{}),
	}
}

// RollDay resetea el estado si cambió la fecha. Devuelve true si hubo reset.
// Es el único camino que desactiva un kill switch activo.
func (m *Manager) RollDay(balance float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if today == m.today {
		return false
	}
	m.today = today
	m.dayStartBalance = balance
	m.currentBalance = balance
	m.killSwitch = false
	m.openCount = 0
	m.cityExposure = make(map[string]float64)
	m.openTickers = make(map[string]struct{})
	slog.Info("reset diario de riesgo", "balance", balance, "date", today)
	return true
}

// UpdateBalance actualiza el balance observado tras el sync de cada ciclo.
func (m *Manager) UpdateBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBalance = balance
}

// CheckKillSwitch devuelve true si el kill switch está (o queda) activo.
// Se activa cuando balance < dayStart × (1 - stopLossPct) y es pegajoso:
// una vez activo no lo desactiva ninguna recuperación del balance, solo
// el reset diario.
func (m *Manager) CheckKillSwitch(balance float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.killSwitch {
		return true
	}
	threshold := m.dayStartBalance * (1 - m.limits.DailyStopLossPct)
	if balance < threshold {
		m.killSwitch = true
		lossPct := 0.0
		if m.dayStartBalance > 0 {
			lossPct = (m.dayStartBalance - balance) / m.dayStartBalance
		}
		slog.Error("KILL SWITCH ACTIVADO",
			"balance", balance,
			"threshold", threshold,
			"loss_pct", fmt.Sprintf("%.1f%%", lossPct*100))
	}
	return m.killSwitch
}

// KillSwitchActive devuelve el estado actual del kill switch.
func (m *Manager) KillSwitchActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killSwitch
}

// CanTrade valida todos los controles pre-trade.
// Un rechazo es un resultado esperado y frecuente, no un error: devuelve
// (false, razón) con una razón distinta por control.
func (m *Manager) CanTrade(city string, dollarRisk, balance float64, ticker string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canTradeLocked(city, dollarRisk, balance, ticker)
}

// TryReserve valida los controles pre-trade y, si pasan, registra la
// posición bajo el mismo lock. Check y registro por separado dejan una
// ventana en la que dos ciudades en paralelo superan el cap de posiciones.
// Si la orden luego no se coloca, la reserva se libera con ClosePosition.
func (m *Manager) TryReserve(city string, dollarRisk, balance float64, ticker string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok, reason := m.canTradeLocked(city, dollarRisk, balance, ticker); !ok {
		return false, reason
	}
	m.registerLocked(city, dollarRisk, ticker)
	return true, "OK"
}

func (m *Manager) canTradeLocked(city string, dollarRisk, balance float64, ticker string) (bool, string) {
	if m.killSwitch {
		return false, "kill switch activo — sin trading por hoy"
	}
	if m.openCount >= m.limits.MaxOpenPositions {
		return false, fmt.Sprintf("máximo de posiciones abiertas alcanzado (%d)", m.limits.MaxOpenPositions)
	}
	if ticker != "" {
		if _, open := m.openTickers[ticker]; open {
			return false, fmt.Sprintf("ya hay posición abierta en %s", ticker)
		}
	}
	budget := m.limits.MaxCityPct * balance
	used := m.cityExposure[city]
	if used+dollarRisk > budget {
		return false, fmt.Sprintf(
			"exposición de %s superaría el presupuesto (usado=%.2f + riesgo=%.2f > budget=%.2f)",
			city, used, dollarRisk, budget)
	}
	if dollarRisk <= 0 {
		return false, "riesgo calculado es cero — no hay trade que hacer"
	}
	return true, "OK"
}

// RegisterTrade registra una posición nueva.
func (m *Manager) RegisterTrade(city string, dollarRisk float64, ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(city, dollarRisk, ticker)
}

func (m *Manager) registerLocked(city string, dollarRisk float64, ticker string) {
	m.openCount++
	m.cityExposure[city] += dollarRisk
	if ticker != "" {
		m.openTickers[ticker] = struct{}{}
	}
	slog.Debug("trade registrado",
		"city", city, "ticker", ticker, "risk", dollarRisk,
		"open_positions", m.openCount)
}

// ClosePosition libera la exposición de una posición resuelta o cancelada.
// Contador y exposición nunca bajan de 0, aunque se llame de más.
func (m *Manager) ClosePosition(city string, dollarRisk float64, ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openCount > 0 {
		m.openCount--
	}
	remaining := m.cityExposure[city] - dollarRisk
	if remaining < 0 {
		remaining = 0
	}
	m.cityExposure[city] = remaining
	delete(m.openTickers, ticker)
}

// RebuildFromOpenTrades repite el registro de cada trade abierto fechado hoy.
// Restaura el estado tras un restart del proceso sin re-derivarlo.
func (m *Manager) RebuildFromOpenTrades(trades []domain.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range trades {
		if t.TradeDate != m.today {
			continue
		}
		m.registerLocked(t.City, t.DollarRisk, t.Ticker)
	}
	if len(trades) > 0 {
		slog.Info("estado de riesgo reconstruido",
			"open_trades", len(trades),
			"positions", m.openCount)
	}
}

// CityExposure devuelve los dólares en riesgo de una ciudad.
func (m *Manager) CityExposure(city string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cityExposure[city]
}

// RemainingCityBudget devuelve el presupuesto restante de una ciudad.
func (m *Manager) RemainingCityBudget(city string, balance float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.limits.MaxCityPct*balance - m.cityExposure[city]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot devuelve una copia del estado para el dashboard.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	exposure := make(map[string]float64, len(m.cityExposure))
	for k, v := range m.cityExposure {
		exposure[k] = v
	}
	tickers := make([]string, 0, len(m.openTickers))
	for t := range m.openTickers {
		tickers = append(tickers, t)
	}
	return Status{
		KillSwitch:      m.killSwitch,
		OpenPositions:   m.openCount,
		MaxPositions:    m.limits.MaxOpenPositions,
		DayStartBalance: m.dayStartBalance,
		CurrentBalance:  m.currentBalance,
		CityExposure:    exposure,
		OpenTickers:     tickers,
	}
}
