package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"signaldesk/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Bot        BotConfig        `yaml:"bot"`
	Signals    SignalsConfig    `yaml:"signals"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Plans      []models.Plan    `yaml:"plans"`
	Admins     []int64          `yaml:"admins"`
	Blacklist  []int64          `yaml:"blacklist"`
	Exports    ExportConfig     `yaml:"exports"`
}

type BotConfig struct {
	RateLimitMessages int      `yaml:"rate_limit_messages"`
	RateLimitWindow   int      `yaml:"rate_limit_window"`
	SignalsPageSize   int      `yaml:"signals_page_size"`
	Markets           []string `yaml:"markets"`
	Pairs             []string `yaml:"pairs"`
	Timeframes        []string `yaml:"timeframes"`
}

// SignalsConfig пороги антиспама для публикации сигналов.
type SignalsConfig struct {
	GlobalCooldownSeconds    int      `yaml:"global_cooldown_seconds"`
	PerSymbolCooldownSeconds int      `yaml:"per_symbol_cooldown_seconds"`
	MaxPerAdminPerDay        int      `yaml:"max_per_admin_per_day"`
	MaxPerSymbolPerDay       int      `yaml:"max_per_symbol_per_day"`
	AllowedTimeframes        []string `yaml:"allowed_timeframes"`
	AllowedDirections        []string `yaml:"allowed_directions"`
	DuplicateScanWindow      int      `yaml:"duplicate_scan_window"`
	DayTimezone              string   `yaml:"day_timezone"`

	// пороги пришли из файла: 0 там означает "выключено"
	thresholdsSet bool
}

// UnmarshalYAML подставляет значения по умолчанию до разбора секции,
// так что отсутствующий ключ получает default, а явный 0 отключает проверку.
func (c *SignalsConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain SignalsConfig
	p := plain(DefaultSignalsConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = SignalsConfig(p)
	c.thresholdsSet = true
	return nil
}

func (c SignalsConfig) GlobalCooldown() time.Duration {
	return time.Duration(c.GlobalCooldownSeconds) * time.Second
}

func (c SignalsConfig) SymbolCooldown() time.Duration {
	return time.Duration(c.PerSymbolCooldownSeconds) * time.Second
}

// Location falls back to UTC when the zone is empty or unknown.
func (c SignalsConfig) Location() *time.Location {
	if c.DayTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.DayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type BroadcastConfig struct {
	Enabled        bool `yaml:"enabled"`
	Workers        int  `yaml:"workers"`
	QueueSize      int  `yaml:"queue_size"`
	MaxRetries     int  `yaml:"max_retries"`
	InitialDelayMs int  `yaml:"initial_delay_ms"`
	MaxDelayMs     int  `yaml:"max_delay_ms"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
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

func Load(configPath string) (*Config, error) {
	// .env не обязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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

	if err := c.Signals.Validate(); err != nil {
		return err
	}

	return ValidatePlans(c.Plans)
}

// ValidateBot is required only by the bot process.
func (c *Config) ValidateBot() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}
	return nil
}

func (c SignalsConfig) Validate() error {
	if c.GlobalCooldownSeconds < 0 || c.PerSymbolCooldownSeconds < 0 {
		return errors.New("signals cooldowns must be non-negative")
	}
	if c.MaxPerAdminPerDay < 0 || c.MaxPerSymbolPerDay < 0 {
		return errors.New("signals daily limits must be non-negative")
	}
	if c.DuplicateScanWindow <= 0 {
		return errors.New("signals.duplicate_scan_window must be positive")
	}
	if c.DayTimezone != "" {
		if _, err := time.LoadLocation(c.DayTimezone); err != nil {
			return fmt.Errorf("signals.day_timezone: %w", err)
		}
	}
	return nil
}

func ValidatePlans(plans []models.Plan) error {
	codes := make(map[string]bool)
	for _, p := range plans {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return fmt.Errorf("plan '%s' has empty code", p.Name)
		}
		if codes[code] {
			return fmt.Errorf("duplicate plan code found: %s", code)
		}
		if p.Months < 0 {
			return fmt.Errorf("plan %s has negative months", code)
		}
		// доступ к сигналам требует даты окончания подписки
		if p.Months == 0 && !p.Trial {
			return fmt.Errorf("plan %s must have months > 0", code)
		}
		if p.Price.IsNegative() {
			return fmt.Errorf("plan %s has negative price", code)
		}
		codes[code] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Bot defaults
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}
	if c.Bot.SignalsPageSize == 0 {
		c.Bot.SignalsPageSize = 10
	}
	if len(c.Bot.Markets) == 0 {
		c.Bot.Markets = []string{"spot", "futures"}
	}
	if len(c.Bot.Pairs) == 0 {
		c.Bot.Pairs = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	if len(c.Bot.Timeframes) == 0 {
		c.Bot.Timeframes = []string{"M5", "M15", "H1"}
	}

	c.Signals.applyDefaults()

	if c.Broadcast.Workers == 0 {
		c.Broadcast.Workers = 2
	}
	if c.Broadcast.QueueSize == 0 {
		c.Broadcast.QueueSize = models.BroadcastQueueSize
	}
	if c.Broadcast.MaxRetries == 0 {
		c.Broadcast.MaxRetries = 3
	}
	if c.Broadcast.InitialDelayMs == 0 {
		c.Broadcast.InitialDelayMs = 500
	}
	if c.Broadcast.MaxDelayMs == 0 {
		c.Broadcast.MaxDelayMs = 10000
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

func (c *SignalsConfig) applyDefaults() {
	if !c.thresholdsSet {
		if c.GlobalCooldownSeconds == 0 {
			c.GlobalCooldownSeconds = models.DefaultGlobalCooldownSeconds
		}
		if c.PerSymbolCooldownSeconds == 0 {
			c.PerSymbolCooldownSeconds = models.DefaultPerSymbolCooldownSeconds
		}
		if c.MaxPerAdminPerDay == 0 {
			c.MaxPerAdminPerDay = models.DefaultMaxSignalsPerAdminPerDay
		}
		if c.MaxPerSymbolPerDay == 0 {
			c.MaxPerSymbolPerDay = models.DefaultMaxSignalsPerSymbolDay
		}
	}
	if len(c.AllowedTimeframes) == 0 {
		c.AllowedTimeframes = append([]string(nil), models.DefaultTimeframes...)
	}
	if len(c.AllowedDirections) == 0 {
		c.AllowedDirections = append([]string(nil), models.DefaultDirections...)
	}
	if c.DuplicateScanWindow == 0 {
		c.DuplicateScanWindow = models.DefaultDuplicateScanWindow
	}
	if c.DayTimezone == "" {
		c.DayTimezone = "UTC"
	}
}

// DefaultSignalsConfig returns the reference thresholds.
func DefaultSignalsConfig() SignalsConfig {
	var c SignalsConfig
	c.applyDefaults()
	return c
}
