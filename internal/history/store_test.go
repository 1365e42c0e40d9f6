package history

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbrains/internal/evaluation"
	"quantbrains/internal/schema"
	"quantbrains/pkg/conn"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client, err := conn.New(conn.SQLiteMemory())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client.DB())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return store
}

func TestNewStoreNilDB(t *testing.T) {
	_, err := NewStore(nil)
	assert.ErrorIs(t, err, ErrNilDB)
}

func TestSaveRefreshAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		err := store.SaveRefresh(ctx, uint64(i+1), base.Add(time.Duration(i)*time.Minute), []Sample{
			{
				Strategy:   schema.Strategy{ID: 7, Name: "Trend", Status: schema.StatusRunning, Profit: float64(100 * i)},
				Evaluation: evaluation.Result{StrategyID: 7, SharpeRatio: 1.5},
				Weight:     0.6,
				Eligible:   true,
			},
			{Strategy: schema.Strategy{ID: 8, Status: schema.StatusStopped}, Weight: 0.4},
		})
		require.NoError(t, err)
	}

	rows, err := store.Recent(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(3), rows[0].RefreshVersion)
	assert.Equal(t, 200.0, rows[0].Profit)
	assert.Equal(t, schema.StatusRunning, rows[0].Status)
	assert.Equal(t, 1.5, rows[0].SharpeRatio)
	assert.True(t, rows[0].Eligible)
	assert.Equal(t, uint64(2), rows[1].RefreshVersion)

	rows, err = store.Recent(ctx, 8, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	require.NoError(t, store.SaveRefresh(ctx, 9, base, nil))
}

func TestSaveCommand(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	now := time.Now()

	require.NoError(t, store.SaveCommand(ctx, "START_STRATEGY|7", true, "started", nil, 120*time.Millisecond, now))
	require.NoError(t, store.SaveCommand(ctx, "STOP_ALL", false, "", errors.New("mailbox: response timeout"), 10*time.Second, now.Add(time.Second)))

	rows, err := store.RecentCommands(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "STOP_ALL", rows[0].Command)
	assert.Equal(t, "mailbox: response timeout", rows[0].Error)
	assert.Equal(t, int64(10000), rows[0].DurationMs)
	assert.True(t, rows[1].Success)
}

func TestAccountHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	_, ok, err := store.LatestAccount(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now()
	require.NoError(t, store.SaveAccount(ctx, schema.Account{Equity: decimal.RequireFromString("100.5")}, now))
	require.NoError(t, store.SaveAccount(ctx, schema.Account{Equity: decimal.RequireFromString("101.25"), Currency: "USD"}, now.Add(time.Second)))

	rec, ok, err := store.LatestAccount(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("101.25").Equal(rec.Equity))
	assert.Equal(t, "USD", rec.Currency)
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, store.SaveCommand(ctx, "GET_STATUS", true, "", nil, 0, old))
	require.NoError(t, store.SaveCommand(ctx, "GET_STATUS", true, "", nil, 0, time.Now()))

	n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := store.RecentCommands(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
