package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIBaseURL            string
	StreamURL             string
	Token                 string
	ProbeListenAddr       string
	ReconnectMaxAttempts  int
	ReconnectBaseDelay    time.Duration
	HeartbeatInterval     time.Duration
	SeriesRetention       int
	SnapshotWindow        time.Duration
	SnapshotConcurrency   int
	DetailFetchTimeout    time.Duration
	RequestTimeout        time.Duration
	HealthInterval        time.Duration
	SelectionPollInterval time.Duration
	ShutdownTimeout       time.Duration
	TLSEnabled            bool
	TLSSkipVerify         bool
	TLSCAPath             string
	TLSCertPath           string
	TLSKeyPath            string
	LogJSON               bool
	LogLevel              string
}

func Load() (Config, error) {
	cfg := Config{
		APIBaseURL:            env("FLEETMON_API_BASE_URL", "http://127.0.0.1:8080/api/v1"),
		StreamURL:             env("FLEETMON_STREAM_URL", "ws://127.0.0.1:8080/ws"),
		Token:                 env("FLEETMON_TOKEN", ""),
		ProbeListenAddr:       env("FLEETMON_PROBE_ADDR", "0.0.0.0:7471"),
		ReconnectMaxAttempts:  envInt("FLEETMON_RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectBaseDelay:    envDuration("FLEETMON_RECONNECT_BASE_DELAY", 2*time.Second),
		HeartbeatInterval:     envDuration("FLEETMON_HEARTBEAT_INTERVAL", 10*time.Second),
		SeriesRetention:       envInt("FLEETMON_SERIES_RETENTION", 360),
		SnapshotWindow:        envDuration("FLEETMON_SNAPSHOT_WINDOW", 60*time.Second),
		SnapshotConcurrency:   envInt("FLEETMON_SNAPSHOT_CONCURRENCY", 8),
		DetailFetchTimeout:    envDuration("FLEETMON_DETAIL_FETCH_TIMEOUT", 5*time.Second),
		RequestTimeout:        envDuration("FLEETMON_REQUEST_TIMEOUT", 10*time.Second),
		HealthInterval:        envDuration("FLEETMON_HEALTH_INTERVAL", 10*time.Second),
		SelectionPollInterval: envDuration("FLEETMON_SELECTION_POLL_INTERVAL", 250*time.Millisecond),
		ShutdownTimeout:       envDuration("FLEETMON_SHUTDOWN_TIMEOUT", 20*time.Second),
		TLSEnabled:            envBool("FLEETMON_TLS_ENABLED", false),
		TLSSkipVerify:         envBool("FLEETMON_TLS_SKIP_VERIFY", false),
		TLSCAPath:             env("FLEETMON_TLS_CA_PATH", ""),
		TLSCertPath:           env("FLEETMON_TLS_CERT_PATH", ""),
		TLSKeyPath:            env("FLEETMON_TLS_KEY_PATH", ""),
		LogJSON:               envBool("FLEETMON_LOG_JSON", true),
		LogLevel:              strings.ToLower(env("FLEETMON_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("FLEETMON_API_BASE_URL is required")
	}
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid FLEETMON_API_BASE_URL: %w", err)
	}
	if c.StreamURL == "" {
		return errors.New("FLEETMON_STREAM_URL is required")
	}
	u, err := url.Parse(c.StreamURL)
	if err != nil {
		return fmt.Errorf("invalid FLEETMON_STREAM_URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("FLEETMON_STREAM_URL must use ws or wss, got %q", u.Scheme)
	}
	if strings.TrimSpace(c.ProbeListenAddr) == "" {
		return errors.New("FLEETMON_PROBE_ADDR is required")
	}
	if c.ReconnectMaxAttempts <= 0 {
		return errors.New("FLEETMON_RECONNECT_MAX_ATTEMPTS must be > 0")
	}
	if c.ReconnectBaseDelay <= 0 {
		return errors.New("FLEETMON_RECONNECT_BASE_DELAY must be > 0")
	}
	if c.SeriesRetention <= 0 {
		return errors.New("FLEETMON_SERIES_RETENTION must be > 0")
	}
	if c.SnapshotWindow <= 0 {
		return errors.New("FLEETMON_SNAPSHOT_WINDOW must be > 0")
	}
	if c.SnapshotConcurrency <= 0 {
		return errors.New("FLEETMON_SNAPSHOT_CONCURRENCY must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("FLEETMON_SHUTDOWN_TIMEOUT must be > 0")
	}
	return nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
