package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"quantbrains/internal/schema"
)

// Snapshot captures the book at a point in time.
type Snapshot struct {
	Timestamp  int64             `json:"timestamp"`
	Version    uint64            `json:"version"`
	Strategies []schema.Strategy `json:"strategies"`
	Account    *schema.Account   `json:"account,omitempty"`
}

// Snapshot builds a snapshot of the current book, sorted by strategy id.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := append([]schema.Strategy(nil), b.strategies...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	snap := Snapshot{
		Timestamp:  time.Now().UTC().UnixNano(),
		Version:    b.version,
		Strategies: entries,
	}
	if b.status != nil && b.status.Account != nil {
		account := *b.status.Account
		snap.Account = &account
	}
	return snap
}

// ApplySnapshot replaces the book contents with a snapshot.
func (b *Book) ApplySnapshot(snapshot Snapshot) {
	b.Replace(snapshot.Strategies)
	if snapshot.Account == nil {
		return
	}
	account := *snapshot.Account
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == nil {
		b.status = &schema.StatusData{}
	}
	b.status.Account = &account
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same strategies with
// the same status and figures.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Strategies) != len(actual.Strategies) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Strategies), len(actual.Strategies))
	}
	expectedMap := make(map[int]schema.Strategy, len(expected.Strategies))
	for _, s := range expected.Strategies {
		expectedMap[s.ID] = s
	}
	for _, s := range actual.Strategies {
		want, ok := expectedMap[s.ID]
		if !ok {
			return fmt.Errorf("snapshot missing strategy: %d", s.ID)
		}
		if want.Status != s.Status {
			return fmt.Errorf("snapshot status mismatch: strategy=%d expected=%s actual=%s", s.ID, want.Status, s.Status)
		}
		if want.Profit != s.Profit || want.Drawdown != s.Drawdown || want.TotalTrades != s.TotalTrades {
			return fmt.Errorf("snapshot figures mismatch: strategy=%d", s.ID)
		}
	}
	return nil
}
