package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tempedge/internal/domain"
)

func testLimits() Limits {
	return Limits{
		DailyStopLossPct: 0.05,
		MaxOpenPositions: 5,
		MaxCityPct:       0.03,
	}
}

func TestCheckKillSwitch_TriggersOnDrawdown(t *testing.T) {
	m := NewManager(testLimits(), 1000)

	assert.False(t, m.CheckKillSwitch(960)) // -4%, por encima del umbral
	assert.True(t, m.CheckKillSwitch(949))  // -5.1% → dispara
}

func TestCheckKillSwitch_StickyUntilReset(t *testing.T) {
	m := NewManager(testLimits(), 1000)
	require.True(t, m.CheckKillSwitch(940))

	// La recuperación del balance no lo desactiva.
	assert.True(t, m.CheckKillSwitch(1100))
	assert.True(t, m.CheckKillSwitch(2000))
	ok, reason := m.CanTrade("LA", 10, 2000, "T1")
	assert.False(t, ok)
	assert.Contains(t, reason, "kill switch")

	// Solo el reset diario lo limpia.
	m.today = "2000-01-01"
	require.True(t, m.RollDay(1100))
	assert.False(t, m.CheckKillSwitch(1100))
	ok, _ = m.CanTrade("LA", 10, 1100, "T1")
	assert.True(t, ok)
}

func TestRollDay_SameDayIsNoop(t *testing.T) {
	m := NewManager(testLimits(), 1000)
	m.RegisterTrade("LA", 20, "T1")

	assert.False(t, m.RollDay(1000))
	assert.Equal(t, 20.0, m.CityExposure("LA"))
}

func TestCanTrade_Refusals(t *testing.T) {
	m := NewManager(testLimits(), 1000)

	// riesgo cero
	ok, reason := m.CanTrade("LA", 0, 1000, "T0")
	assert.False(t, ok)
	assert.Contains(t, reason, "cero")

	// presupuesto por ciudad: 3% de 1000 = $30
	ok, reason = m.CanTrade("LA", 31, 1000, "T0")
	assert.False(t, ok)
	assert.Contains(t, reason, "presupuesto")

	ok, _ = m.CanTrade("LA", 25, 1000, "T0")
	assert.True(t, ok)
	m.RegisterTrade("LA", 25, "T0")

	// la exposición existente cuenta contra el presupuesto
	ok, reason = m.CanTrade("LA", 10, 1000, "T1")
	assert.False(t, ok)
	assert.Contains(t, reason, "presupuesto")

	// sin doblar posición en el mismo mercado
	ok, reason = m.CanTrade("NYC", 5, 1000, "T0")
	assert.False(t, ok)
	assert.Contains(t, reason, "T0")
}

func TestCanTrade_MaxOpenPositions(t *testing.T) {
	limits := testLimits()
	limits.MaxCityPct = 1.0 // que no interfiera el presupuesto
	m := NewManager(limits, 1000)

	for i := 0; i < 5; i++ {
		m.RegisterTrade("LA", 1, string(rune('A'+i)))
	}
	ok, reason := m.CanTrade("NYC", 1, 1000, "Z")
	assert.False(t, ok)
	assert.Contains(t, reason, "posiciones abiertas")
}

func TestTryReserve_RefusalDoesNotRegister(t *testing.T) {
	m := NewManager(testLimits(), 1000)

	ok, reason := m.TryReserve("LA", 40, 1000, "T1") // budget LA = $30
	assert.False(t, ok)
	assert.Contains(t, reason, "presupuesto")
	assert.Equal(t, 0, m.Snapshot().OpenPositions)
	assert.Equal(t, 0.0, m.CityExposure("LA"))
}

func TestTryReserve_ConcurrentCitiesRespectCap(t *testing.T) {
	limits := testLimits()
	limits.MaxOpenPositions = 2
	limits.MaxCityPct = 1.0
	m := NewManager(limits, 1000)
	m.RegisterTrade("LA", 1, "T0") // queda una sola posición libre

	// Muchas ciudades compitiendo a la vez por el último hueco: solo una
	// puede ganarlo, sin ventana entre el check y el registro.
	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			city := fmt.Sprintf("C%d", i)
			if ok, _ := m.TryReserve(city, 1, 1000, city+"-T"); ok {
				granted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, 2, m.Snapshot().OpenPositions)
}

func TestTryReserve_ReleasedSlotIsReusable(t *testing.T) {
	limits := testLimits()
	limits.MaxOpenPositions = 1
	m := NewManager(limits, 1000)

	ok, _ := m.TryReserve("LA", 10, 1000, "T1")
	require.True(t, ok)
	ok, _ = m.TryReserve("NYC", 10, 1000, "T2")
	require.False(t, ok)

	// Orden no colocada: la reserva se devuelve entera.
	m.ClosePosition("LA", 10, "T1")

	ok, _ = m.TryReserve("NYC", 10, 1000, "T2")
	assert.True(t, ok)
}

func TestClosePosition_FlooredAtZero(t *testing.T) {
	m := NewManager(testLimits(), 1000)
	m.RegisterTrade("LA", 20, "T1")

	// Más cierres que registros: nunca negativo.
	m.ClosePosition("LA", 15, "T1")
	m.ClosePosition("LA", 15, "T1")
	m.ClosePosition("LA", 15, "T1")

	assert.Equal(t, 0.0, m.CityExposure("LA"))
	assert.Equal(t, 0, m.Snapshot().OpenPositions)
}

func TestClosePosition_FreesTickerAndBudget(t *testing.T) {
	m := NewManager(testLimits(), 1000)
	m.RegisterTrade("LA", 30, "T1")

	ok, _ := m.CanTrade("LA", 10, 1000, "T2")
	require.False(t, ok)

	m.ClosePosition("LA", 30, "T1")

	ok, _ = m.CanTrade("LA", 10, 1000, "T2")
	assert.True(t, ok)
	ok, _ = m.CanTrade("LA", 10, 1000, "T1")
	assert.True(t, ok, "el ticker cerrado vuelve a estar disponible")
}

func TestRebuildFromOpenTrades(t *testing.T) {
	m := NewManager(testLimits(), 1000)

	trades := []domain.TradeRecord{
		{City: "LA", Ticker: "T1", DollarRisk: 12, TradeDate: m.today},
		{City: "LA", Ticker: "T2", DollarRisk: 8, TradeDate: m.today},
		{City: "CHI", Ticker: "T3", DollarRisk: 5, TradeDate: "2000-01-01"}, // día viejo: ignorado
	}
	m.RebuildFromOpenTrades(trades)

	st := m.Snapshot()
	assert.Equal(t, 2, st.OpenPositions)
	assert.Equal(t, 20.0, m.CityExposure("LA"))
	assert.Equal(t, 0.0, m.CityExposure("CHI"))

	ok, _ := m.CanTrade("LA", 5, 1000, "T1")
	assert.False(t, ok, "los tickers reconstruidos cuentan como abiertos")
}

func TestRemainingCityBudget(t *testing.T) {
	m := NewManager(testLimits(), 1000)
	assert.Equal(t, 30.0, m.RemainingCityBudget("LA", 1000))

	m.RegisterTrade("LA", 22, "T1")
	assert.InDelta(t, 8.0, m.RemainingCityBudget("LA", 1000), 1e-9)

	m.RegisterTrade("LA", 10, "T2")
	assert.Equal(t, 0.0, m.RemainingCityBudget("LA", 1000))
}
