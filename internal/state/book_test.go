package state

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbrains/internal/schema"
)

func TestBookReplaceSwapsWholeList(t *testing.T) {
	b := NewBook()
	assert.Equal(t, uint64(1), b.Replace([]schema.Strategy{
		{ID: 1, Status: schema.StatusRunning},
		{ID: 2, Status: schema.StatusStopped},
	}))
	assert.Equal(t, uint64(2), b.Replace([]schema.Strategy{
		{ID: 3, Status: schema.StatusPaused},
	}))

	assert.Equal(t, 1, b.Count())
	_, ok := b.Get(1)
	assert.False(t, ok)
	got, ok := b.Get(3)
	require.True(t, ok)
	assert.Equal(t, schema.StatusPaused, got.Status)
	assert.False(t, b.UpdatedAt().IsZero())
}

func TestBookReplaceCopiesInput(t *testing.T) {
	b := NewBook()
	list := []schema.Strategy{{ID: 1, Profit: 10}}
	b.Replace(list)
	list[0].Profit = 99

	got, _ := b.Get(1)
	assert.Equal(t, 10.0, got.Profit)

	out := b.Strategies()
	out[0].Profit = 42
	got, _ = b.Get(1)
	assert.Equal(t, 10.0, got.Profit)
}

func TestBookCountByStatus(t *testing.T) {
	b := NewBook()
	b.Replace([]schema.Strategy{
		{ID: 1, Status: schema.StatusRunning},
		{ID: 2, Status: schema.StatusRunning},
		{ID: 3, Status: schema.StatusError},
	})

	counts := b.CountByStatus()
	assert.Equal(t, 2, counts[schema.StatusRunning])
	assert.Equal(t, 1, counts[schema.StatusError])
	assert.Zero(t, counts[schema.StatusPaused])
}

func TestBookStatus(t *testing.T) {
	b := NewBook()
	_, ok := b.Status()
	assert.False(t, ok)
	_, ok = b.Account()
	assert.False(t, ok)

	active := 1
	b.SetStatus(schema.StatusData{
		ActiveCount: &active,
		Account:     &schema.Account{Equity: decimal.RequireFromString("10500.25"), Currency: "USD"},
	})
	status, ok := b.Status()
	require.True(t, ok)
	assert.Equal(t, 1, *status.ActiveCount)
	account, ok := b.Account()
	require.True(t, ok)
	assert.Equal(t, "10500.25", account.Equity.String())
}

func TestBookConcurrentAccess(t *testing.T) {
	b := NewBook()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Replace([]schema.Strategy{{ID: i}})
		}()
		go func() {
			defer wg.Done()
			_ = b.Strategies()
			_ = b.CountByStatus()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8), b.Version())
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := NewBook()
	b.Replace([]schema.Strategy{
		{ID: 2, Name: "Trend", Status: schema.StatusRunning, Profit: 120.5, Drawdown: 0.1, TotalTrades: 4,
			LastUpdate: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: 1, Name: "Grid", Status: schema.StatusPaused, Profit: -3},
	})
	b.SetStatus(schema.StatusData{Account: &schema.Account{Balance: decimal.NewFromInt(10000), Currency: "USD"}})

	snap := b.Snapshot()
	require.Len(t, snap.Strategies, 2)
	assert.Equal(t, 1, snap.Strategies[0].ID)

	path := filepath.Join(t.TempDir(), "state", "book.json")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(snap, loaded))
	assert.True(t, snap.Strategies[1].LastUpdate.Equal(loaded.Strategies[1].LastUpdate))
	require.NotNil(t, loaded.Account)
	assert.True(t, decimal.NewFromInt(10000).Equal(loaded.Account.Balance))

	restored := NewBook()
	restored.ApplySnapshot(loaded)
	assert.Equal(t, 2, restored.Count())
	account, ok := restored.Account()
	require.True(t, ok)
	assert.Equal(t, "USD", account.Currency)
}

func TestCompareSnapshotsMismatch(t *testing.T) {
	a := Snapshot{Strategies: []schema.Strategy{{ID: 1, Status: schema.StatusRunning}}}

	assert.Error(t, CompareSnapshots(a, Snapshot{}))
	assert.Error(t, CompareSnapshots(a, Snapshot{Strategies: []schema.Strategy{{ID: 2}}}))
	assert.Error(t, CompareSnapshots(a, Snapshot{Strategies: []schema.Strategy{{ID: 1, Status: schema.StatusError}}}))
	assert.NoError(t, CompareSnapshots(a, a))
}

func TestReadSnapshotMissing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
