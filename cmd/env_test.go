package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-cli/internal/config"
	"github.com/sells-group/lead-cli/internal/store"
)

func TestInitStore_SQLite(t *testing.T) {
	st, err := initStore(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "leads.db"),
		TimeoutSecs: 5,
	})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_UnknownDriver(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestBuildLocker_InProcessByDefault(t *testing.T) {
	l, client, err := buildLocker(context.Background(), config.LockConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &store.StripedLocker{}, l)
}

func TestBuildLocker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	l, client, err := buildLocker(context.Background(), config.LockConfig{RedisAddr: mr.Addr(), TTLSecs: 5})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close() //nolint:errcheck
	assert.IsType(t, &store.RedisLocker{}, l)

	unlock, err := l.Lock(context.Background(), "https://reddit.com/r/x/1")
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
	unlock()
	assert.Empty(t, mr.Keys())
}

func TestBuildLocker_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := buildLocker(context.Background(), config.LockConfig{RedisAddr: addr})
	assert.Error(t, err)
}

func TestBuildQualifier(t *testing.T) {
	q, err := buildQualifier(config.ScoringConfig{Strategy: "heuristic", Threshold: 30}, nil)
	require.NoError(t, err)
	assert.Equal(t, 30.0, q.Threshold())

	_, err = buildQualifier(config.ScoringConfig{Strategy: "ai", Threshold: 6}, nil)
	assert.Error(t, err)

	_, err = buildQualifier(config.ScoringConfig{Strategy: "heuristic", ConfigPath: "/nonexistent/scoring.yaml"}, nil)
	assert.Error(t, err)
}

func TestBuildExporter(t *testing.T) {
	count := func(ec config.ExportConfig) int {
		t.Helper()
		e, err := buildExporter(ec)
		require.NoError(t, err)
		return e.Len()
	}

	assert.Equal(t, 0, count(config.ExportConfig{}))
	assert.Equal(t, 1, count(config.ExportConfig{XLSXPath: filepath.Join(t.TempDir(), "leads.xlsx")}))
	assert.Equal(t, 2, count(config.ExportConfig{
		XLSXPath:     filepath.Join(t.TempDir(), "leads.xlsx"),
		NotionToken:  "secret",
		NotionDBID:   "db",
		NotionRateHz: 3,
	}))
	assert.Equal(t, 0, count(config.ExportConfig{NotionToken: "secret"}))
}

func TestBuildExporter_SalesforceKeyMissing(t *testing.T) {
	_, err := buildExporter(config.ExportConfig{Salesforce: config.SalesforceConfig{
		ClientID: "consumer-key",
		KeyPath:  filepath.Join(t.TempDir(), "missing.pem"),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read salesforce JWT private key")
}

func TestBuildAdapters(t *testing.T) {
	adapters, err := buildAdapters(config.SourcesConfig{
		Files:  []config.FileSourceConfig{{Path: "dump/linkedin.json", Platform: "linkedin"}},
		Reddit: config.RedditSourceConfig{Enabled: true, Subreddits: []string{"jobs"}},
	})
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "file:linkedin.json", adapters[0].Name())
	assert.Equal(t, "reddit", adapters[1].Name())

	_, err = buildAdapters(config.SourcesConfig{Files: []config.FileSourceConfig{{Path: "x.json", Platform: "friendster"}}})
	assert.Error(t, err)
}

func TestMessageConfig(t *testing.T) {
	mc := messageConfig(config.MessageConfig{MaxAttempts: 3, InitialBackoffMs: 1000, DelayMs: 250, MaxTokens: 500, Temperature: 0.7})
	assert.Equal(t, 3, mc.MaxAttempts)
	assert.Equal(t, "1s", mc.InitialBackoff.String())
	assert.Equal(t, "250ms", mc.Delay.String())
	assert.Equal(t, 500, mc.MaxTokens)
}
