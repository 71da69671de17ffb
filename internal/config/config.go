package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ads-stream-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the datastore backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// QueueConfig selects the stream source.
type QueueConfig struct {
	Driver string      `mapstructure:"driver"`
	SQS    SQSConfig   `mapstructure:"sqs"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// SQSConfig covers the AWS SQS subscription queue.
type SQSConfig struct {
	QueueURL          string `mapstructure:"queue_url"`
	Region            string `mapstructure:"region"`
	Endpoint          string `mapstructure:"endpoint"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
}

// KafkaConfig covers a Kafka topic used in place of SQS.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// WorkerConfig governs the polling loop.
type WorkerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	WaitTime     time.Duration `mapstructure:"wait_time"`
}

// AggregationConfig governs the hourly and daily rollups.
type AggregationConfig struct {
	HourlyEnabled   bool          `mapstructure:"hourly_enabled"`
	HourlyLookback  time.Duration `mapstructure:"hourly_lookback"`
	DailyEnabled    bool          `mapstructure:"daily_enabled"`
	DailyLookback   time.Duration `mapstructure:"daily_lookback"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled             bool           `mapstructure:"enabled"`
	CTRDropThreshold    float64        `mapstructure:"ctr_drop_threshold"`
	SpendSpikeThreshold float64        `mapstructure:"spend_spike_threshold"`
	ACOSThreshold       float64        `mapstructure:"acos_threshold"`
	ROASThreshold       float64        `mapstructure:"roas_threshold"`
	Channels            []string       `mapstructure:"channels"`
	Slack               SlackConfig    `mapstructure:"slack"`
	Telegram            TelegramConfig `mapstructure:"telegram"`
}

// SlackConfig describes the incoming-webhook channel.
type SlackConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	WebhookURL    string  `mapstructure:"webhook_url"`
	Channel       string  `mapstructure:"channel"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes the prometheus and health endpoints.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADSWATCHER")
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
	v.SetDefault("app.name", "adswatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "data/adswatcher.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.sqs.region", "us-east-1")
	v.SetDefault("queue.sqs.visibility_timeout", 30)
	v.SetDefault("queue.kafka.topic", "ads-stream")
	v.SetDefault("queue.kafka.group_id", "adswatcher")

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.poll_interval", "5s")
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.wait_time", "5s")

	v.SetDefault("aggregation.hourly_enabled", true)
	v.SetDefault("aggregation.hourly_lookback", "24h")
	v.SetDefault("aggregation.daily_enabled", true)
	v.SetDefault("aggregation.daily_lookback", "168h")
	v.SetDefault("aggregation.advisory_lock_key", int64(0x61647377))
	v.SetDefault("aggregation.startup_delay", "0s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.ctr_drop_threshold", 0.2)
	v.SetDefault("alerting.spend_spike_threshold", 1.5)
	v.SetDefault("alerting.acos_threshold", 0.3)
	v.SetDefault("alerting.roas_threshold", 2.0)
	v.SetDefault("alerting.channels", []string{"slack"})
	v.SetDefault("alerting.slack.enabled", false)
	v.SetDefault("alerting.slack.rate_per_second", 1.0)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("export.max_data_points", 100000)
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Queue.Driver {
	case "memory":
	case "sqs":
		if c.Queue.SQS.QueueURL == "" {
			return fmt.Errorf("queue.sqs.queue_url is required for the sqs driver")
		}
	case "kafka":
		if len(c.Queue.Kafka.Brokers) == 0 {
			return fmt.Errorf("queue.kafka.brokers is required for the kafka driver")
		}
		if c.Queue.Kafka.Topic == "" {
			return fmt.Errorf("queue.kafka.topic is required for the kafka driver")
		}
	default:
		return fmt.Errorf("queue.driver must be memory, sqs or kafka, got %q", c.Queue.Driver)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be greater than zero")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be greater than zero")
	}
	if c.Worker.WaitTime < 0 {
		return fmt.Errorf("worker.wait_time cannot be negative")
	}
	if c.Aggregation.HourlyLookback < time.Hour {
		return fmt.Errorf("aggregation.hourly_lookback must be at least 1h")
	}
	if c.Aggregation.DailyLookback < 24*time.Hour {
		return fmt.Errorf("aggregation.daily_lookback must be at least 24h")
	}
	if c.Alerting.CTRDropThreshold < 0 || c.Alerting.SpendSpikeThreshold < 0 ||
		c.Alerting.ACOSThreshold < 0 || c.Alerting.ROASThreshold < 0 {
		return fmt.Errorf("alerting thresholds cannot be negative")
	}
	if c.Alerting.Slack.Enabled && c.Alerting.Slack.WebhookURL == "" {
		return fmt.Errorf("alerting.slack.webhook_url is required when slack is enabled")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
