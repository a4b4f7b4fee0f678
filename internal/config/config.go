package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"detailbook/internal/models"
	"detailbook/internal/schedule"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig        `yaml:"app"`
	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	Business    BusinessConfig   `yaml:"business"`
	API         APIConfig        `yaml:"api"`
	Backup      BackupConfig     `yaml:"backup"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     LoggingConfig    `yaml:"logging"`
	Payments    PaymentsConfig   `yaml:"payments"`
	Telegram    TelegramConfig   `yaml:"telegram"`
	Events      EventsConfig     `yaml:"events"`
	Google      GoogleConfig     `yaml:"google"`
	CatalogPath string           `yaml:"catalog_path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// SlotCacheTTL in seconds; 0 picks the default.
	SlotCacheTTL int `yaml:"slot_cache_ttl"`
}

// BusinessConfig carries the scheduling rules of the single shared timeline.
type BusinessConfig struct {
	StartHour          int    `yaml:"start_hour"`
	EndHour            int    `yaml:"end_hour"`
	SlotGranularityMin int    `yaml:"slot_granularity_min"`
	TravelBufferMin    int    `yaml:"travel_buffer_min"`
	Timezone           string `yaml:"timezone"`
	MaxBookingDays     int    `yaml:"max_booking_days"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
}

// APIAuthConfig guards the admin routes only. The booking API is public.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAge         int      `yaml:"max_age"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type PaymentsConfig struct {
	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
	Currency            string `yaml:"currency"`
}

type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	Managers []int64 `yaml:"managers"`
	Debug    bool    `yaml:"debug"`
	// DigestTime is the local "HH:MM" when managers get tomorrow's route; empty disables it.
	DigestTime string `yaml:"digest_time"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Business.Options(); err != nil {
		return err
	}

	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api keys configured")
	}

	if c.Telegram.DigestTime != "" {
		if _, err := schedule.ParseClock(c.Telegram.DigestTime); err != nil {
			return fmt.Errorf("telegram digest_time: %w", err)
		}
	}

	if c.Payments.StripeSecretKey != "" && c.Payments.StripeWebhookSecret == "" {
		return errors.New("stripe webhook secret is required when payments are enabled")
	}

	return nil
}

// Options converts the business section into scheduling options.
func (b BusinessConfig) Options() (schedule.Options, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return schedule.Options{}, fmt.Errorf("invalid business timezone %q: %w", b.Timezone, err)
	}
	opts := schedule.Options{
		StartHour:       b.StartHour,
		EndHour:         b.EndHour,
		GranularityMin:  b.SlotGranularityMin,
		TravelBufferMin: b.TravelBufferMin,
		Location:        loc,
	}
	if err := opts.Validate(); err != nil {
		return schedule.Options{}, err
	}
	return opts, nil
}

func ValidateCatalog(catalog *models.Catalog) error {
	serviceIDs := make(map[int64]bool)
	for _, s := range catalog.Services {
		if s.ID == 0 {
			return fmt.Errorf("service '%s' has invalid ID 0", s.Name)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("duplicate service ID found: %d", s.ID)
		}
		if s.DurationMin <= 0 {
			return fmt.Errorf("service %d must have a positive duration", s.ID)
		}
		serviceIDs[s.ID] = true
	}

	addOnIDs := make(map[int64]bool)
	for _, a := range catalog.AddOns {
		if a.ID == 0 {
			return fmt.Errorf("add-on '%s' has invalid ID 0", a.Name)
		}
		if addOnIDs[a.ID] {
			return fmt.Errorf("duplicate add-on ID found: %d", a.ID)
		}
		if a.DurationMin < 0 {
			return fmt.Errorf("add-on %d has a negative duration", a.ID)
		}
		addOnIDs[a.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := schedule.DefaultOptions()

	if c.App.Name == "" {
		c.App.Name = "detailbook"
	}
	if c.Database.BusyTimeoutMs == 0 {
		c.Database.BusyTimeoutMs = 5000
	}
	if c.Redis.SlotCacheTTL == 0 {
		c.Redis.SlotCacheTTL = models.DefaultSlotCacheTTL
	}

	// Business defaults: 08:00-18:00, 15 minute grid, 30 minute travel buffer
	if c.Business.StartHour == 0 && c.Business.EndHour == 0 {
		c.Business.StartHour = defaults.StartHour
		c.Business.EndHour = defaults.EndHour
	}
	if c.Business.SlotGranularityMin == 0 {
		c.Business.SlotGranularityMin = defaults.GranularityMin
	}
	if c.Business.TravelBufferMin == 0 {
		c.Business.TravelBufferMin = defaults.TravelBufferMin
	}
	if c.Business.Timezone == "" {
		c.Business.Timezone = "UTC"
	}
	if c.Business.MaxBookingDays == 0 {
		c.Business.MaxBookingDays = 90
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeoutSec == 0 {
		c.API.HTTP.ReadTimeoutSec = 10
	}
	if c.API.HTTP.WriteTimeoutSec == 0 {
		c.API.HTTP.WriteTimeoutSec = 30
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if c.API.CORS.MaxAge == 0 {
		c.API.CORS.MaxAge = 300
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.Enabled && c.Backup.IntervalHours == 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "usd"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "detailbook.events"
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}
}
