package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	WS      WSConfig      `mapstructure:"ws"`
	Store   StoreConfig   `mapstructure:"store"`
	Forward ForwardConfig `mapstructure:"forward"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type RelayConfig struct {
	Shards        int  `mapstructure:"shards"`
	ReplayLastFix bool `mapstructure:"replay_last_fix"`
}

type WSConfig struct {
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"` // none, redis, mongo
	Timeout time.Duration `mapstructure:"timeout"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type ForwardConfig struct {
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxInFlight int64         `mapstructure:"max_in_flight"`
}

type MQTTConfig struct {
	Broker        string        `mapstructure:"broker"`
	ClientID      string        `mapstructure:"client_id"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	PublishPrefix string        `mapstructure:"publish_prefix"`
	IngestTopic   string        `mapstructure:"ingest_topic"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxInFlight   int64         `mapstructure:"max_in_flight"`
}

type KafkaConfig struct {
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxInFlight int64         `mapstructure:"max_in_flight"`
}

type FeedConfig struct {
	Kind       string        `mapstructure:"kind"` // gtfsrt, siri-json, siri-xml
	URL        string        `mapstructure:"url"`
	RefreshMin time.Duration `mapstructure:"refresh_min"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps keys to the unprefixed variable names older deployments set.
var legacyEnv = map[string]string{
	"server.port":          "PORT",
	"forward.url":          "HTTPS_ENDPOINT",
	"store.mongo.uri":      "MONGODB_URI",
	"store.mongo.database": "MONGODB_DB",
	"ws.allowed_origins":   "FRONTEND_URL",
	"store.redis.addr":     "REDIS_ADDR",
}

// LoadConfig reads path (YAML, TOML or JSON) when given, then applies
// RELAY_* and legacy environment overrides on top of the defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("relay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := "RELAY_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.WS.AllowedOrigins = splitList(cfg.WS.AllowedOrigins)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3201)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)

	v.SetDefault("relay.shards", 64)
	v.SetDefault("relay.replay_last_fix", false)

	v.SetDefault("ws.allowed_origins", []string{})
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.max_message_bytes", 4096)
	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_wait", 10*time.Second)

	v.SetDefault("store.driver", "none")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", time.Duration(0))
	v.SetDefault("store.mongo.uri", "")
	v.SetDefault("store.mongo.database", "fleet")
	v.SetDefault("store.mongo.collection", "vehicles")

	v.SetDefault("forward.url", "")
	v.SetDefault("forward.timeout", 5*time.Second)
	v.SetDefault("forward.max_in_flight", 256)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "location-relay")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.publish_prefix", "")
	v.SetDefault("mqtt.ingest_topic", "")
	v.SetDefault("mqtt.timeout", 5*time.Second)
	v.SetDefault("mqtt.max_in_flight", 256)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("kafka.timeout", 5*time.Second)
	v.SetDefault("kafka.max_in_flight", 256)

	v.SetDefault("feed.kind", "")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.refresh_min", 10*time.Second)
	v.SetDefault("feed.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// splitList accepts both real lists and a single comma separated value,
// which is what an environment variable yields.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Store.Driver {
	case "none", "":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
		}
	case "mongo":
		if c.Store.Mongo.URI == "" {
			errs = append(errs, errors.New("store.mongo.uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Forward.URL != "" {
		if err := checkURL(c.Forward.URL); err != nil {
			errs = append(errs, fmt.Errorf("forward.url: %w", err))
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}
	if c.MQTT.Broker == "" && (c.MQTT.PublishPrefix != "" || c.MQTT.IngestTopic != "") {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt publishing or ingestion is enabled"))
	}
	switch c.Feed.Kind {
	case "":
		if c.Feed.URL != "" {
			errs = append(errs, errors.New("feed.kind is required when feed.url is set"))
		}
	case feedGTFSRT, feedSiriJSON, feedSiriXML:
		if err := checkURL(c.Feed.URL); err != nil {
			errs = append(errs, fmt.Errorf("feed.url: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feed.kind %q", c.Feed.Kind))
	}
	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
