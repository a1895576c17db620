package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080/api/v1", cfg.APIBaseURL)
	assert.Equal(t, "ws://127.0.0.1:8080/ws", cfg.StreamURL)
	assert.Equal(t, "0.0.0.0:7471", cfg.ProbeListenAddr)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 360, cfg.SeriesRetention)
	assert.Equal(t, 60*time.Second, cfg.SnapshotWindow)
	assert.Equal(t, 8, cfg.SnapshotConcurrency)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.TLSEnabled)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FLEETMON_STREAM_URL", "wss://fleet.example.com/ws")
	t.Setenv("FLEETMON_TOKEN", "tok-123")
	t.Setenv("FLEETMON_RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("FLEETMON_RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("FLEETMON_LOG_JSON", "false")
	t.Setenv("FLEETMON_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://fleet.example.com/ws", cfg.StreamURL)
	assert.Equal(t, "tok-123", cfg.Token)
	assert.Equal(t, 3, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("FLEETMON_RECONNECT_MAX_ATTEMPTS", "many")
	t.Setenv("FLEETMON_SNAPSHOT_WINDOW", "soon")
	t.Setenv("FLEETMON_LOG_JSON", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.SnapshotWindow)
	assert.True(t, cfg.LogJSON)
}

func TestValidateRejectsNonWebsocketStreamURL(t *testing.T) {
	t.Setenv("FLEETMON_STREAM_URL", "http://fleet.example.com/ws")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws or wss")
}

func TestValidateRejectsNonPositiveBounds(t *testing.T) {
	cases := map[string]string{
		"FLEETMON_RECONNECT_MAX_ATTEMPTS": "-1",
		"FLEETMON_SERIES_RETENTION":       "0",
		"FLEETMON_SNAPSHOT_CONCURRENCY":   "-2",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestTLSConfigDisabledReturnsNil(t *testing.T) {
	cfg := Config{TLSEnabled: false}
	tlsCfg, err := cfg.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestTLSConfigRequiresCertKeyPair(t *testing.T) {
	cfg := Config{TLSEnabled: true, TLSCertPath: "/tmp/client.crt"}
	_, err := cfg.TLSConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert and key")
}
