package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearLegacyEnv keeps the host environment out of the tests.
func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, name := range legacyEnv {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearLegacyEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3201 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "none" || cfg.Store.Timeout != 5*time.Second {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Forward.URL != "" || cfg.Forward.Timeout != 5*time.Second {
		t.Fatalf("unexpected forward config %+v", cfg.Forward)
	}
	if cfg.Relay.ReplayLastFix {
		t.Fatalf("replay must be off by default")
	}
	if cfg.WS.PingInterval != 25*time.Second || cfg.WS.SendBuffer != 64 {
		t.Fatalf("unexpected ws config %+v", cfg.WS)
	}
	if cfg.Forward.MaxInFlight != 256 || cfg.MQTT.MaxInFlight != 256 || cfg.Kafka.MaxInFlight != 256 {
		t.Fatalf("unexpected in-flight bounds %d/%d/%d", cfg.Forward.MaxInFlight, cfg.MQTT.MaxInFlight, cfg.Kafka.MaxInFlight)
	}
}

func TestSinkInFlightBoundsAreIndependent(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RELAY_KAFKA_MAX_IN_FLIGHT", "16")

	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := []byte(`
forward:
  max_in_flight: 32
mqtt:
  max_in_flight: 8
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Forward.MaxInFlight != 32 || cfg.MQTT.MaxInFlight != 8 || cfg.Kafka.MaxInFlight != 16 {
		t.Fatalf("unexpected in-flight bounds %d/%d/%d", cfg.Forward.MaxInFlight, cfg.MQTT.MaxInFlight, cfg.Kafka.MaxInFlight)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RELAY_STORE_DRIVER", "redis")
	t.Setenv("RELAY_LOGGING_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := []byte(`
server:
  port: 8080
relay:
  replay_last_fix: true
ws:
  allowed_origins: ["http://localhost:3000", "https://fleet.example"]
  ping_interval: 5s
store:
  driver: none
  redis:
    addr: redis:6379
    ttl: 1h
forward:
  url: https://collector.example/api/location
  timeout: 2s
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: vehicle-locations
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.Server.Port != 8080 || !cfg.Relay.ReplayLastFix {
		t.Fatalf("file values not applied: %+v %+v", cfg.Server, cfg.Relay)
	}
	if cfg.Store.Driver != "redis" {
		t.Fatalf("expected env override of store driver, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Redis.Addr != "redis:6379" || cfg.Store.Redis.TTL != time.Hour {
		t.Fatalf("unexpected redis config %+v", cfg.Store.Redis)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
	if len(cfg.WS.AllowedOrigins) != 2 || cfg.WS.PingInterval != 5*time.Second {
		t.Fatalf("unexpected ws config %+v", cfg.WS)
	}
	if cfg.Forward.Timeout != 2*time.Second {
		t.Fatalf("unexpected forward timeout %v", cfg.Forward.Timeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "vehicle-locations" {
		t.Fatalf("unexpected kafka config %+v", cfg.Kafka)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("HTTPS_ENDPOINT", "https://collector.example/gps")
	t.Setenv("FRONTEND_URL", "http://localhost:3000, https://fleet.example")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Fatalf("PORT not applied: %d", cfg.Server.Port)
	}
	if cfg.Forward.URL != "https://collector.example/gps" {
		t.Fatalf("HTTPS_ENDPOINT not applied: %q", cfg.Forward.URL)
	}
	if len(cfg.WS.AllowedOrigins) != 2 || cfg.WS.AllowedOrigins[1] != "https://fleet.example" {
		t.Fatalf("FRONTEND_URL not split: %v", cfg.WS.AllowedOrigins)
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("RELAY_SERVER_PORT", "5000")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Fatalf("expected RELAY_SERVER_PORT to win, got %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearLegacyEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Server: ServerConfig{Port: 3201}, Store: StoreConfig{Driver: "none"}}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"driver", func(c *Config) { c.Store.Driver = "cassandra" }, "unknown store.driver"},
		{"mongo uri", func(c *Config) { c.Store.Driver = "mongo" }, "store.mongo.uri"},
		{"forward scheme", func(c *Config) { c.Forward.URL = "ftp://collector" }, "forward.url"},
		{"forward host", func(c *Config) { c.Forward.URL = "https://" }, "missing host"},
		{"kafka topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }, "kafka.topic"},
		{"mqtt broker", func(c *Config) { c.MQTT.PublishPrefix = "fleet" }, "mqtt.broker"},
		{"feed kind", func(c *Config) { c.Feed.Kind = "csv"; c.Feed.URL = "http://feed" }, "unknown feed.kind"},
		{"feed url", func(c *Config) { c.Feed.Kind = feedGTFSRT }, "feed.url"},
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config invalid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"a, b", " ", "c"})
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("unexpected split %v", got)
	}
	if splitList(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
