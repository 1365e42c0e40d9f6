package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbrains/internal/mailbox"
	"quantbrains/pkg/conn"
)

func TestParseDefaults(t *testing.T) {
	loaded, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, mailbox.DefaultCommandFile, loaded.Mailbox.CommandFile)
	assert.Equal(t, mailbox.DefaultSendTimeout, loaded.Mailbox.SendTimeout)
	assert.Equal(t, mailbox.DefaultInstallationIDs, loaded.Mailbox.Resolver.InstallationIDs)
	assert.False(t, loaded.Mailbox.DisablePoller)
	assert.Equal(t, 1e-4, loaded.Risk.Epsilon)
	assert.Equal(t, 50.0, loaded.Risk.MomentumThreshold)
	assert.Equal(t, 0.02, loaded.Evaluation.RiskFreeRate)
	assert.Equal(t, defaultRefreshInterval, loaded.Monitor.RefreshInterval)
	assert.Equal(t, defaultNotifyCapacity, loaded.Monitor.NotifyCapacity)
	assert.Equal(t, conn.DriverSQLite, loaded.History.Conn.Driver)
	assert.Equal(t, FeatureFlags{EnablePoller: true}, loaded.Features)

	assert.Equal(t, loaded, Default())
}

func TestParseOverrides(t *testing.T) {
	loaded, err := Parse([]byte(`{
		"mailbox": {
			"userRoot": "/terminal",
			"commonRoot": "/common",
			"installationIds": ["B", "A"],
			"waitInterval": "50ms",
			"sendTimeout": 2000000000
		},
		"risk": {"momentumThreshold": 70},
		"evaluation": {"riskFreeRate": 0},
		"monitor": {"refreshInterval": "1s", "accountEquity": 25000, "snapshotPath": "/tmp/book.json"},
		"history": {"driver": "postgres", "dsn": "postgres://u@db/qb", "retention": "72h"},
		"features": {"enablePoller": false, "enableHistory": true, "enableSnapshot": true}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "/terminal", loaded.Mailbox.Resolver.UserRoot)
	assert.Equal(t, "/common", loaded.Mailbox.Resolver.CommonRoot)
	assert.Equal(t, []string{"B", "A"}, loaded.Mailbox.Resolver.InstallationIDs)
	assert.Equal(t, 50*time.Millisecond, loaded.Mailbox.WaitInterval)
	assert.Equal(t, 2*time.Second, loaded.Mailbox.SendTimeout)
	assert.Equal(t, mailbox.DefaultProbeTimeout, loaded.Mailbox.ProbeTimeout)
	assert.True(t, loaded.Mailbox.DisablePoller)

	assert.Equal(t, 70.0, loaded.Risk.MomentumThreshold)
	assert.Equal(t, 1e-4, loaded.Risk.Epsilon)
	assert.Zero(t, loaded.Evaluation.RiskFreeRate)
	assert.Equal(t, 10000.0, loaded.Evaluation.NotionalAccount)

	assert.Equal(t, time.Second, loaded.Monitor.RefreshInterval)
	assert.Equal(t, 25000.0, loaded.Monitor.AccountEquity)
	assert.Equal(t, conn.DriverPostgres, loaded.History.Conn.Driver)
	assert.Equal(t, "postgres://u@db/qb", loaded.History.Conn.ConnString)
	assert.Equal(t, 72*time.Hour, loaded.History.Retention)
	assert.Equal(t, FeatureFlags{EnableHistory: true, EnablePoller: false, EnableSnapshot: true}, loaded.Features)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad json":          `{`,
		"bad duration":      `{"mailbox":{"sendTimeout":"soon"}}`,
		"negative duration": `{"mailbox":{"waitInterval":"-1s"}}`,
		"file with dir":     `{"mailbox":{"commandFile":"x/cmd.txt"}}`,
		"driver":            `{"history":{"driver":"oracle"}}`,
		"threshold":         `{"risk":{"momentumThreshold":140}}`,
		"snapshot path":     `{"features":{"enableSnapshot":true}}`,
		"equity":            `{"monitor":{"accountEquity":-1}}`,
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())
	require.NoError(t, d.UnmarshalJSON([]byte(`1500`)))
	assert.Equal(t, 1500*time.Nanosecond, d.Std())
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	out, err := Duration(250 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(out))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"monitor":{"refreshInterval":"3s"}}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, loaded.Monitor.RefreshInterval)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
