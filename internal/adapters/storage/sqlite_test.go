package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tempedge/internal/adapters/storage"
	"github.com/alejandrodnm/tempedge/internal/domain"
)

func makeTrade(ticker, city, date string) domain.TradeRecord {
	return domain.TradeRecord{
		City:       city,
		Ticker:     ticker,
		Side:       "yes",
		Action:     "buy",
		Count:      120,
		PriceCents: 25,
		ModelProb:  0.38,
		NetEdge:    0.05,
		KellyFrac:  0.03,
		DollarRisk: 30,
		Strategy:   domain.Single(),
		OrderID:    "ord-1",
		TradeDate:  date,
		PlacedAt:   time.Now().UTC().Truncate(time.Second),
		Resolution: domain.TradeOpen,
	}
}

func TestStore_TradeLifecycle(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	id, err := store.PutTrade(ctx, makeTrade("HIGHNY-B57", "NYC", "2026-02-20"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	open, err := store.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)
	assert.Equal(t, "HIGHNY-B57", open[0].Ticker)
	assert.Equal(t, 120, open[0].Count)
	assert.Equal(t, domain.StrategySingle, open[0].Strategy.Kind)
	assert.Nil(t, open[0].ResolvedAt)

	require.NoError(t, store.MarkResolved(ctx, id, domain.TradeWon, 90))

	open, err = store.GetOpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestStore_MarkResolvedUnknownTrade(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	err = store.MarkResolved(context.Background(), "no-existe", domain.TradeWon, 10)
	assert.Error(t, err)
}

func TestStore_BracketLegsRoundTrip(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	lower := makeTrade("HIGHCHI-B78", "CHI", "2026-02-20")
	lower.Strategy = domain.BracketLeg("grupo-1", 0)
	upper := makeTrade("HIGHCHI-B80", "CHI", "2026-02-20")
	upper.Strategy = domain.BracketLeg("grupo-1", 1)

	_, err = store.PutTrade(ctx, lower)
	require.NoError(t, err)
	_, err = store.PutTrade(ctx, upper)
	require.NoError(t, err)

	open, err := store.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, domain.StrategyBracket, open[0].Strategy.Kind)
	assert.Equal(t, "grupo-1", open[0].Strategy.BracketID)
	assert.Equal(t, 0, open[0].Strategy.Leg)
	assert.Equal(t, 1, open[1].Strategy.Leg)
}

func TestStore_CalibrationDefaultsAndRoundTrip(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Sin calibrar: defaults neutros.
	params, err := store.GetCalibration(ctx, "PHX")
	require.NoError(t, err)
	assert.Equal(t, domain.NeutralCalibration(), params)

	written := domain.CalibrationParams{Bias: 1.5, Scale: 1.2, Records: 12}
	require.NoError(t, store.PutCalibration(ctx, "PHX", written))

	params, err = store.GetCalibration(ctx, "PHX")
	require.NoError(t, err)
	assert.Equal(t, written, params)

	// Otra ciudad sigue en neutro.
	params, err = store.GetCalibration(ctx, "LA")
	require.NoError(t, err)
	assert.Equal(t, domain.NeutralCalibration(), params)
}

func TestStore_CalibrationHistoryFlow(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	day := func(offset int) string {
		return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
	}

	// Tres días de forecasts; dos con actual relleno.
	for i := 1; i <= 3; i++ {
		require.NoError(t, store.AppendCalibrationSample(ctx, "MIA", day(-i), 80+float64(i), 2.5))
	}
	require.NoError(t, store.FillActualHigh(ctx, "MIA", day(-1), 83))
	require.NoError(t, store.FillActualHigh(ctx, "MIA", day(-2), 84))

	records, err := store.GetCalibrationHistory(ctx, "MIA", 30)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 81.0, records[0].ForecastMu, 1e-9)
	assert.InDelta(t, 83.0, records[0].ActualHigh, 1e-9)

	// El lookback corta lo viejo.
	records, err = store.GetCalibrationHistory(ctx, "MIA", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// Re-registrar el mismo día sobreescribe el forecast (gana el último
	// ciclo del día).
	require.NoError(t, store.AppendCalibrationSample(ctx, "MIA", day(-1), 99, 3.0))
	records, err = store.GetCalibrationHistory(ctx, "MIA", 30)
	require.NoError(t, err)
	assert.InDelta(t, 99.0, records[0].ForecastMu, 1e-9)
}

func TestStore_DailyPnLUpsert(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveDailyPnL(ctx, "2026-02-20", 1040, 40, 3))
	// El mismo día se puede reescribir con el snapshot final.
	require.NoError(t, store.SaveDailyPnL(ctx, "2026-02-20", 1055, 55, 4))
}

func TestStore_ManyTrades(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := store.PutTrade(ctx, makeTrade(fmt.Sprintf("T-%02d", i), "LA", "2026-02-20"))
		require.NoError(t, err)
	}
	open, err := store.GetOpenTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 20)
}
