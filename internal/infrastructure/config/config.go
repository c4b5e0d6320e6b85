package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for notify-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform  PlatformConfig  `yaml:"platform"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Tenants   []TenantConfig  `yaml:"tenants"`
	API       APIConfig       `yaml:"api"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PlatformConfig contains settings for the remote IoT platform.
type PlatformConfig struct {
	// BaseURL is the platform REST endpoint, e.g. "https://acme.example-iot.com".
	BaseURL string `yaml:"base_url"`

	// Subscriber is the subscriber identity suffix used when requesting
	// notification tokens. The effective subscriber is tenantID + Subscriber
	// for device-scope subscriptions.
	Subscriber string `yaml:"subscriber"`

	// TokenTTL is the requested token validity in minutes.
	TokenTTL int `yaml:"token_ttl"`

	// SourceID is the managed object id alarms are posted against. When
	// empty it is resolved from the platform at startup.
	SourceID string `yaml:"source_id"`

	// PageSize is the inventory query page size.
	PageSize int `yaml:"page_size"`
}

// ReconnectConfig controls the reconnect scheduler and transport keep-alive.
type ReconnectConfig struct {
	// InitialDelay is the delay before the first scheduler tick (seconds).
	InitialDelay int `yaml:"initial_delay"`

	// Period is the steady scheduler tick period (seconds).
	Period int `yaml:"period"`

	// SettleDelay is the wait between token issuance and the reconnect
	// attempt (seconds). The platform keeps prior-session state server-side
	// for several minutes; an immediate reconnect is rejected as a conflict.
	SettleDelay int `yaml:"settle_delay"`

	// KeepAliveInterval is the websocket ping interval (seconds).
	KeepAliveInterval int `yaml:"keepalive_interval"`
}

// TenantConfig identifies a tenant onboarded at startup.
type TenantConfig struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// MQTTConfig contains settings for the notification republish sink.
type MQTTConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect MQTTReconnect    `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnect contains MQTT reconnection settings in seconds.
type MQTTReconnect struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains the measurement sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the audit trail.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NOTIFYCORE_SECTION_KEY
// For example: NOTIFYCORE_PLATFORM_BASE_URL, NOTIFYCORE_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			Subscriber: "NotifyCoreSubscriber",
			TokenTTL:   1440,
			PageSize:   2000,
		},
		Reconnect: ReconnectConfig{
			InitialDelay:      30,
			Period:            120,
			SettleDelay:       120,
			KeepAliveInterval: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "notify-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnect{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/notifycore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NOTIFYCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOTIFYCORE_PLATFORM_BASE_URL"); v != "" {
		cfg.Platform.BaseURL = v
	}
	if v := os.Getenv("NOTIFYCORE_PLATFORM_SUBSCRIBER"); v != "" {
		cfg.Platform.Subscriber = v
	}
	if v := os.Getenv("NOTIFYCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NOTIFYCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NOTIFYCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NOTIFYCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("NOTIFYCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("NOTIFYCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Platform.BaseURL == "" {
		errs = append(errs, "platform.base_url is required")
	}
	if c.Platform.Subscriber == "" {
		errs = append(errs, "platform.subscriber is required")
	}
	if c.Platform.TokenTTL <= 0 {
		errs = append(errs, "platform.token_ttl must be positive")
	}
	if c.Reconnect.Period <= 0 {
		errs = append(errs, "reconnect.period must be positive")
	}
	if c.Reconnect.SettleDelay < 0 {
		errs = append(errs, "reconnect.settle_delay must not be negative")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	for i, t := range c.Tenants {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tenants[%d].id is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetInitialDelay returns the scheduler initial delay as a Duration.
func (c *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelay) * time.Second
}

// GetPeriod returns the scheduler tick period as a Duration.
func (c *ReconnectConfig) GetPeriod() time.Duration {
	return time.Duration(c.Period) * time.Second
}

// GetSettleDelay returns the settle delay as a Duration.
func (c *ReconnectConfig) GetSettleDelay() time.Duration {
	return time.Duration(c.SettleDelay) * time.Second
}

// GetKeepAliveInterval returns the websocket ping interval as a Duration.
func (c *ReconnectConfig) GetKeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
