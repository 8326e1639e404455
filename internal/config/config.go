package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        int              `yaml:"port"`
	LogLevel    string           `yaml:"log_level"`
	Env         string           `yaml:"env"`
	StoreDriver string           `yaml:"store_driver"`
	DB          DBConfig         `yaml:"db"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Production  ProductionConfig `yaml:"production"`
	Notify      NotifyConfig     `yaml:"notify"`
	Outbox      OutboxConfig     `yaml:"outbox"`
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// KafkaConfig holds the change feed settings
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ChangesTopic  string   `yaml:"changes_topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	ClientID      string   `yaml:"client_id"`
}

// ProductionConfig holds the kitchen tunables
type ProductionConfig struct {
	MixerCapacity      int           `yaml:"mixer_capacity"`
	DailyTarget        int           `yaml:"daily_target"`
	MixingDuration     time.Duration `yaml:"mixing_duration"`
	MixingWarning      time.Duration `yaml:"mixing_warning"`
	MixerReadyDuration time.Duration `yaml:"mixer_ready_duration"`
	BakeDuration       time.Duration `yaml:"bake_duration"`
	OvenWarning        time.Duration `yaml:"oven_warning"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	ResyncInterval     time.Duration `yaml:"resync_interval"`
	WriteAttempts      int           `yaml:"write_attempts"`
}

// NotifyConfig holds the notification sinks
type NotifyConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

// OutboxConfig holds the outbox processor settings
type OutboxConfig struct {
	PollingInterval time.Duration `yaml:"polling_interval"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Port:        8080,
		LogLevel:    "info",
		Env:         "development",
		StoreDriver: StoreDriverPostgres,
		DB: DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "bakery",
			SSLMode:  "disable",
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ChangesTopic:  "bakery.orders.changes",
			ConsumerGroup: "bakery-display",
			ClientID:      "bakery-production",
		},
		Production: ProductionConfig{
			MixerCapacity:      5,
			DailyTarget:        40,
			MixingDuration:     120 * time.Second,
			MixingWarning:      30 * time.Second,
			MixerReadyDuration: 60 * time.Second,
			BakeDuration:       1680 * time.Second,
			OvenWarning:        120 * time.Second,
			TickInterval:       time.Second,
			ResyncInterval:     60 * time.Second,
			WriteAttempts:      3,
		},
		Notify: NotifyConfig{
			WebhookTimeout: 5 * time.Second,
		},
		Outbox: OutboxConfig{
			PollingInterval: 2 * time.Second,
			BatchSize:       50,
			MaxRetries:      5,
		},
	}
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)

	if !exists {
		return defaultValue, nil
	}

	v, err := strconv.Atoi(raw)

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw, exists := os.LookupEnv(key)

	if !exists {
		return defaultValue, nil
	}

	v, err := strconv.ParseBool(raw)

	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)

	if !exists {
		return defaultValue, nil
	}

	v, err := time.ParseDuration(raw)

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

// Load reads the configuration. A .env file is loaded first if present, then
// the YAML file named by CONFIG_FILE, then environment variables override both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)

	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	var err error

	if cfg.Port, err = getEnvInt("PORT", cfg.Port); err != nil {
		return err
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)

	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	if cfg.DB.Port, err = getEnvInt("DB_PORT", cfg.DB.Port); err != nil {
		return err
	}
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("DB_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", cfg.DB.SSLMode)

	if cfg.Kafka.Enabled, err = getEnvBool("KAFKA_ENABLED", cfg.Kafka.Enabled); err != nil {
		return err
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.ChangesTopic = getEnv("KAFKA_CHANGES_TOPIC", cfg.Kafka.ChangesTopic)
	cfg.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", cfg.Kafka.ConsumerGroup)
	cfg.Kafka.ClientID = getEnv("KAFKA_CLIENT_ID", cfg.Kafka.ClientID)

	p := &cfg.Production
	if p.MixerCapacity, err = getEnvInt("MIXER_CAPACITY", p.MixerCapacity); err != nil {
		return err
	}
	if p.DailyTarget, err = getEnvInt("DAILY_TARGET", p.DailyTarget); err != nil {
		return err
	}
	if p.MixingDuration, err = getEnvDuration("MIXING_DURATION", p.MixingDuration); err != nil {
		return err
	}
	if p.MixingWarning, err = getEnvDuration("MIXING_WARNING", p.MixingWarning); err != nil {
		return err
	}
	if p.MixerReadyDuration, err = getEnvDuration("MIXER_READY_DURATION", p.MixerReadyDuration); err != nil {
		return err
	}
	if p.BakeDuration, err = getEnvDuration("BAKE_DURATION", p.BakeDuration); err != nil {
		return err
	}
	if p.OvenWarning, err = getEnvDuration("OVEN_WARNING", p.OvenWarning); err != nil {
		return err
	}
	if p.TickInterval, err = getEnvDuration("TICK_INTERVAL", p.TickInterval); err != nil {
		return err
	}
	if p.ResyncInterval, err = getEnvDuration("RESYNC_INTERVAL", p.ResyncInterval); err != nil {
		return err
	}
	if p.WriteAttempts, err = getEnvInt("WRITE_ATTEMPTS", p.WriteAttempts); err != nil {
		return err
	}

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	if cfg.Notify.WebhookTimeout, err = getEnvDuration("NOTIFY_WEBHOOK_TIMEOUT", cfg.Notify.WebhookTimeout); err != nil {
		return err
	}

	if cfg.Outbox.PollingInterval, err = getEnvDuration("OUTBOX_POLLING_INTERVAL", cfg.Outbox.PollingInterval); err != nil {
		return err
	}
	if cfg.Outbox.BatchSize, err = getEnvInt("OUTBOX_BATCH_SIZE", cfg.Outbox.BatchSize); err != nil {
		return err
	}
	if cfg.Outbox.MaxRetries, err = getEnvInt("OUTBOX_MAX_RETRIES", cfg.Outbox.MaxRetries); err != nil {
		return err
	}

	return nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory {
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.Production.MixerCapacity < 1 {
		return fmt.Errorf("mixer capacity must be at least 1")
	}

	if c.Production.DailyTarget < 1 {
		return fmt.Errorf("daily target must be at least 1")
	}

	if c.Production.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}

	return nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
