package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherCheckReloadsOnNewerModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	var got []Loaded
	w, err := NewWatcher(path, time.Hour, func(l Loaded) { got = append(got, l) })
	require.NoError(t, err)

	assert.False(t, w.check())

	require.NoError(t, os.WriteFile(path, []byte(`{"monitor":{"refreshInterval":"2s"}}`), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.True(t, w.check())
	assert.False(t, w.check())
	require.Len(t, got, 1)
	assert.Equal(t, 2*time.Second, got[0].Monitor.RefreshInterval)
}

func TestWatcherSkipsInvalidRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	calls := 0
	w, err := NewWatcher(path, time.Hour, func(Loaded) { calls++ })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"history":{"driver":"oracle"}}`), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.False(t, w.check())
	assert.Zero(t, calls)
}

func TestWatcherRunPicksUpChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	updates := make(chan Loaded, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(l Loaded) { updates <- l })
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(t.Context())
	}()

	require.NoError(t, os.WriteFile(path, []byte(`{"risk":{"momentumThreshold":65}}`), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case l := <-updates:
		assert.Equal(t, 65.0, l.Risk.MomentumThreshold)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
