package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Gauge        GaugeConfig        `mapstructure:"gauge"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the state history
// log. Leaving the DSN empty disables persistence entirely (cold starts only).
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MQTTConfig covers broker connectivity and topic layout.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	StateTopicBase string        `mapstructure:"state_topic_base"`
	ReadingsTopic  string        `mapstructure:"readings_topic"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// HTTPConfig governs the readings/metrics endpoint.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// GaugeConfig describes the monitored tipping-bucket sensor.
type GaugeConfig struct {
	EntityID           string  `mapstructure:"entity_id"`
	Name               string  `mapstructure:"name"`
	VolumePerTipOnML   float64 `mapstructure:"volume_per_tip_on_ml"`
	VolumePerTipOffML  float64 `mapstructure:"volume_per_tip_off_ml"`
	FunnelDiameterMM   float64 `mapstructure:"funnel_diameter_mm"`
	MissedFlipRecovery bool    `mapstructure:"missed_flip_recovery"`
}

// HousekeepingConfig tunes the periodic maintenance tick.
type HousekeepingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAINSENSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rainsensor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "rainsensor")
	v.SetDefault("mqtt.state_topic_base", "homeassistant")
	v.SetDefault("mqtt.readings_topic", "rainsensor")
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.publish_timeout", "5s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8099")

	v.SetDefault("gauge.name", "Rainfall")
	v.SetDefault("gauge.volume_per_tip_on_ml", 2.0)
	v.SetDefault("gauge.volume_per_tip_off_ml", 2.0)
	v.SetDefault("gauge.funnel_diameter_mm", 100.0)
	v.SetDefault("gauge.missed_flip_recovery", false)

	v.SetDefault("housekeeping.interval", "1m")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs the setup-time sanity checks. Volume and diameter
// problems block activation here; a zero diameter is deliberately allowed
// and degrades to zero rainfall depth at runtime.
func (c *Config) Validate() error {
	if c.Gauge.EntityID == "" {
		return fmt.Errorf("gauge.entity_id is required")
	}
	if !strings.HasPrefix(c.Gauge.EntityID, "binary_sensor.") {
		return fmt.Errorf("gauge.entity_id must reference a binary_sensor entity")
	}
	if c.Gauge.VolumePerTipOnML < 0 {
		return fmt.Errorf("gauge.volume_per_tip_on_ml cannot be negative")
	}
	if c.Gauge.VolumePerTipOffML < 0 {
		return fmt.Errorf("gauge.volume_per_tip_off_ml cannot be negative")
	}
	if c.Gauge.FunnelDiameterMM < 0 {
		return fmt.Errorf("gauge.funnel_diameter_mm cannot be negative")
	}
	if c.Housekeeping.Interval <= 0 {
		return fmt.Errorf("housekeeping.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	return nil
}

// Location resolves the timezone used for midnight rollovers.
func (c *Config) Location() (*time.Location, error) {
	name := c.App.Timezone
	if name == "" || strings.EqualFold(name, "Local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
