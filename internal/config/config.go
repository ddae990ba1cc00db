package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Fees     FeeConfig      `yaml:"fees"`
	Price    PriceConfig    `yaml:"price"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, pgx or sqlite3
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite3 only
}

// FeeConfig holds the rates applied to the INR value of a reward. GSTRate is
// applied to the brokerage, not to the value.
type FeeConfig struct {
	BrokerageRate   float64 `yaml:"brokerage_rate"`
	STTRate         float64 `yaml:"stt_rate"`
	GSTRate         float64 `yaml:"gst_rate"`
	ExchangeFeeRate float64 `yaml:"exchange_fee_rate"`
	SEBIFeeRate     float64 `yaml:"sebi_fee_rate"`
	StampDutyRate   float64 `yaml:"stamp_duty_rate"`
}

type PriceConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	StaleWindow     time.Duration `yaml:"stale_window"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	StrictHistory   bool          `yaml:"strict_history"`
	Universe        []string      `yaml:"universe"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "assignment",
			SSLMode:  "disable",
			Path:     "stocky.db",
		},
		Fees: FeeConfig{
			BrokerageRate: 0.0002,
			STTRate:       0.001,
			GSTRate:       0.18,
		},
		Price: PriceConfig{
			CacheTTL:        5 * time.Minute,
			StaleWindow:     24 * time.Hour,
			RefreshInterval: time.Hour,
			Universe: []string{"RELIANCE", "TCS", "INFY", "MAHINDRA", "CISCO", "HDFC", "ICICI", "WIPRO",
				"LT", "ADANI", "AXIS", "KOTAK", "BAJAJ", "BHARTI", "VEDANTA"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadDotEnv loads .env, falling back to .env.example.
func LoadDotEnv(logger logrus.FieldLogger) {
	if err := godotenv.Load(); err != nil {
		logger.Infof(".env not loaded: %v; trying .env.example", err)
		if err2 := godotenv.Load(".env.example"); err2 == nil {
			logger.Info("loaded .env.example")
		} else {
			logger.Debugf(".env.example not loaded: %v", err2)
		}
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)
	str("SQLITE_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("PRICE_UNIVERSE"); ok && v != "" {
		c.Price.Universe = splitList(v)
	}

	durations := map[string]*time.Duration{
		"PRICE_CACHE_TTL":        &c.Price.CacheTTL,
		"PRICE_STALE_WINDOW":     &c.Price.StaleWindow,
		"PRICE_REFRESH_INTERVAL": &c.Price.RefreshInterval,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	rates := map[string]*float64{
		"BROKERAGE_RATE":    &c.Fees.BrokerageRate,
		"STT_RATE":          &c.Fees.STTRate,
		"GST_RATE":          &c.Fees.GSTRate,
		"EXCHANGE_FEE_RATE": &c.Fees.ExchangeFeeRate,
		"SEBI_FEE_RATE":     &c.Fees.SEBIFeeRate,
		"STAMP_DUTY_RATE":   &c.Fees.StampDutyRate,
	}
	for key, dst := range rates {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup("PRICE_STRICT_HISTORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PRICE_STRICT_HISTORY: %w", err)
		}
		c.Price.StrictHistory = b
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for %s", c.Database.Driver)
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	default:
		return fmt.Errorf("database.driver must be postgres, pgx or sqlite3, got %q", c.Database.Driver)
	}
	if c.Price.CacheTTL <= 0 {
		return fmt.Errorf("price.cache_ttl must be positive")
	}
	if c.Price.StaleWindow < c.Price.CacheTTL {
		return fmt.Errorf("price.stale_window must be at least price.cache_ttl")
	}
	for name, r := range map[string]float64{
		"brokerage_rate":    c.Fees.BrokerageRate,
		"stt_rate":          c.Fees.STTRate,
		"gst_rate":          c.Fees.GSTRate,
		"exchange_fee_rate": c.Fees.ExchangeFeeRate,
		"sebi_fee_rate":     c.Fees.SEBIFeeRate,
		"stamp_duty_rate":   c.Fees.StampDutyRate,
	} {
		if r < 0 {
			return fmt.Errorf("fees.%s must not be negative", name)
		}
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", d.Path)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = os.Stdout
	if lvl, err := logrus.ParseLevel(l.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
