package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"

	ModeDev     = "dev"
	ModeRelease = "release"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// 秘密情報は環境変数で上書きできる
const (
	EnvJWTSecret    = "NALANDA_JWT_SECRET"
	EnvDBPassword   = "NALANDA_DB_PASSWORD"
	EnvSMTPPassword = "NALANDA_SMTP_PASSWORD"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	// sqlite3 のみ
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// TLS reports whether both certificate files are configured.
func (s ServerConfig) TLS() bool { return s.Cert != "" && s.Key != "" }

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	JWTExpire        time.Duration `yaml:"jwt_expire"`
	CookieExpireDays int           `yaml:"cookie_expire_days"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	Version     string          `yaml:"version"`
	Mode        string          `yaml:"mode"`
	Server      ServerConfig    `yaml:"server"`
	DB          DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	SMTP        SMTPConfig      `yaml:"smtp"`
	FrontendURL string          `yaml:"frontend_url"`
	CORS        CORSConfig      `yaml:"cors"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(buf)
}

// Parse decodes buf, fills defaults, applies environment overrides and validates.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDev
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DriverMySQL
	}
	if c.DB.Driver == DriverMySQL && c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Driver == DriverSQLite && c.DB.Path == "" {
		c.DB.Path = "nalanda.db"
	}
	if c.Auth.JWTExpire == 0 {
		c.Auth.JWTExpire = 24 * time.Hour
	}
	if c.Auth.CookieExpireDays == 0 {
		c.Auth.CookieExpireDays = 3
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:3000"
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{c.FrontendURL}
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv(EnvDBPassword); v != "" {
		c.DB.Password = v
	}
	if v := getenv(EnvSMTPPassword); v != "" {
		c.SMTP.Password = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode))
	}
	switch c.DB.Driver {
	case DriverMySQL:
		if c.DB.Host == "" || c.DB.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for mysql"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.DB.Driver))
	}
	if c.Mode == ModeRelease && c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret (or %s) is required in release mode", EnvJWTSecret))
	}
	if c.Auth.JWTExpire < 0 {
		errs = append(errs, errors.New("auth.jwt_expire must be positive"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}
