package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Admin         AdminConfig         `yaml:"admin"`
	Auth          AuthConfig          `yaml:"auth"`
	Security      SecurityConfig      `yaml:"security"`
	DNS           DNSConfig           `yaml:"dns"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Extensions    []ExtensionSeed     `yaml:"extensions"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug/release
}

// StorageConfig selects the key-value backend
type StorageConfig struct {
	Type     string `yaml:"type"` // memory/sqlite/redis
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// AdminConfig is the single privileged identity
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// AuthConfig represents session token configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"` // Go duration
}

// SecurityConfig represents security monitor configuration
type SecurityConfig struct {
	UTCOffsetHours *int               `yaml:"utc_offset_hours"` // nil means UTC+9
	RequestLimit   RequestLimitConfig `yaml:"request_limit"`
}

// Location returns the fixed zone the security window is evaluated in
func (s SecurityConfig) Location() *time.Location {
	offset := 9
	if s.UTCOffsetHours != nil {
		offset = *s.UTCOffsetHours
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*60*60)
}

// RequestLimitConfig bounds domain requests per user
type RequestLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

// DNSConfig represents the DNS provisioning API configuration
type DNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	ZoneID   string `yaml:"zone_id"`
	TTL      int    `yaml:"ttl"`
	Timeout  string `yaml:"timeout"`
}

// NotificationsConfig represents notification configuration
type NotificationsConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
	DingDing DingDingConfig `yaml:"dingding"`
}

// EmailConfig represents email notification configuration
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	From     string   `yaml:"from"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// WebhookConfig represents webhook notification configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// TelegramConfig represents Telegram notification configuration
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIURL   string `yaml:"api_url"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	Proxy    string `yaml:"proxy"` // Optional SOCKS5 address, e.g. 127.0.0.1:7890
}

// DingDingConfig represents DingTalk notification configuration
type DingDingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
	Secret  string `yaml:"secret"`
}

// SchedulerConfig represents scheduled job configuration
type SchedulerConfig struct {
	DigestInterval string `yaml:"digest_interval"` // Cron expression, empty disables
}

// ExtensionSeed is an extension created on first start
type ExtensionSeed struct {
	Name        string `yaml:"name"`
	Price       int    `yaml:"price"`
	PaymentLink string `yaml:"payment_link"`
}

// Environment variables that override file values
const (
	EnvAdminPassword = "FREEDOMAIN_ADMIN_PASSWORD"
	EnvJWTSecret     = "FREEDOMAIN_JWT_SECRET"
	EnvDNSAPIToken   = "FREEDOMAIN_CF_API_TOKEN"
)

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and defaults
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	if val := os.Getenv(EnvAdminPassword); val != "" {
		c.Admin.Password = val
	}
	if val := os.Getenv(EnvJWTSecret); val != "" {
		c.Auth.JWTSecret = val
	}
	if val := os.Getenv(EnvDNSAPIToken); val != "" {
		c.DNS.APIToken = val
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/freedomain.db"
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admindomain"
	}
	if c.Admin.Email == "" {
		c.Admin.Email = "admin@domain.com"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "168h"
	}
	if c.Security.RequestLimit.PerMinute == 0 {
		c.Security.RequestLimit.PerMinute = 10
	}
	if c.Security.RequestLimit.Burst == 0 {
		c.Security.RequestLimit.Burst = 5
	}
	if c.DNS.APIURL == "" {
		c.DNS.APIURL = "https://api.cloudflare.com/client/v4"
	}
	if c.DNS.TTL == 0 {
		c.DNS.TTL = 3600
	}
	if c.DNS.Timeout == "" {
		c.DNS.Timeout = "10s"
	}
	if c.Notifications.Telegram.APIURL == "" {
		c.Notifications.Telegram.APIURL = "https://api.telegram.org"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []ExtensionSeed{{Name: ".example.com", Price: 0}}
	}
}

// Validate checks values that have no usable default
func (c *Config) Validate() error {
	if c.Admin.Password == "" {
		return fmt.Errorf("admin.password is required (or set %s)", EnvAdminPassword)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret)
	}
	switch c.Storage.Type {
	case "memory", "sqlite":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
		return fmt.Errorf("invalid auth.token_ttl: %w", err)
	}
	if c.DNS.Enabled && (c.DNS.APIToken == "" || c.DNS.ZoneID == "") {
		return fmt.Errorf("dns.api_token and dns.zone_id are required when dns is enabled")
	}
	return nil
}
