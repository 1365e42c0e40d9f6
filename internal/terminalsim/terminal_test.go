package terminalsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbrains/internal/codec"
	"quantbrains/internal/mailbox"
	"quantbrains/internal/schema"
)

func newTerminal(t *testing.T) (*Terminal, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Config{Dir: dir, Strategies: 3, Seed: 7}), dir
}

func exchange(t *testing.T, term *Terminal, dir, command string) schema.Response {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, mailbox.DefaultCommandFile), []byte(command), 0o644))

	handled, err := term.HandleOnce()
	require.NoError(t, err)
	require.True(t, handled)

	_, err = os.Stat(filepath.Join(dir, mailbox.DefaultCommandFile))
	assert.True(t, os.IsNotExist(err))

	respPath := filepath.Join(dir, mailbox.DefaultResponseFile)
	raw, err := os.ReadFile(respPath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(respPath))

	resp, err := codec.DecodeResponse(string(raw))
	require.NoError(t, err)
	return resp
}

func TestHandleOnceNoCommand(t *testing.T) {
	term, _ := newTerminal(t)
	handled, err := term.HandleOnce()
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestGetStrategies(t *testing.T) {
	term, dir := newTerminal(t)
	resp := exchange(t, term, dir, "GET_STRATEGIES")

	require.True(t, resp.Success)
	require.Len(t, resp.Strategies, 3)
	for i, s := range resp.Strategies {
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, schema.StatusStopped, s.Status)
		assert.GreaterOrEqual(t, s.Momentum, 0.0)
		assert.LessOrEqual(t, s.Momentum, 100.0)
	}
}

func TestStrategyCommands(t *testing.T) {
	term, dir := newTerminal(t)

	resp := exchange(t, term, dir, "START_STRATEGY|2")
	require.True(t, resp.Success)
	assert.Equal(t, schema.StatusRunning, term.Strategies()[1].Status)

	resp = exchange(t, term, dir, "PAUSE_STRATEGY|2")
	require.True(t, resp.Success)
	assert.Equal(t, schema.StatusPaused, term.Strategies()[1].Status)

	resp = exchange(t, term, dir, "STOP_STRATEGY|99")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "99")
}

func TestAllCommandsAndStatus(t *testing.T) {
	term, dir := newTerminal(t)

	resp := exchange(t, term, dir, "START_ALL")
	require.True(t, resp.Success)
	for _, s := range term.Strategies() {
		assert.Equal(t, schema.StatusRunning, s.Status)
	}

	resp = exchange(t, term, dir, "GET_STATUS")
	require.True(t, resp.Success)
	require.NotNil(t, resp.Status)
	require.NotNil(t, resp.Status.Account)
	assert.Equal(t, "USD", resp.Status.Account.Currency)
	require.NotNil(t, resp.Status.ActiveCount)
	assert.Equal(t, 3, *resp.Status.ActiveCount)

	exchange(t, term, dir, "STOP_ALL")
	for _, s := range term.Strategies() {
		assert.Equal(t, schema.StatusStopped, s.Status)
	}
}

func TestUnknownCommand(t *testing.T) {
	term, dir := newTerminal(t)
	resp := exchange(t, term, dir, "REBOOT")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "REBOOT")
}

func TestPushSkipsPendingResponse(t *testing.T) {
	term, dir := newTerminal(t)
	respPath := filepath.Join(dir, mailbox.DefaultResponseFile)

	require.NoError(t, term.Push())
	first, err := os.ReadFile(respPath)
	require.NoError(t, err)

	term.setAll(schema.StatusRunning)
	require.NoError(t, term.Push())
	second, err := os.ReadFile(respPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDriftMovesRunningOnly(t *testing.T) {
	term, _ := newTerminal(t)
	require.True(t, term.setStatus(1, schema.StatusRunning))
	before := term.Strategies()

	term.drift()
	after := term.Strategies()

	assert.Equal(t, before[0].TotalTrades+1, after[0].TotalTrades)
	assert.Equal(t, before[1], after[1])
	assert.Equal(t, before[2], after[2])
}
