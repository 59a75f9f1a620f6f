package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mrsh/internal/constants"
)

const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

type Config struct {
	Server         ServerConfig    `yaml:"server"`
	Database       DatabaseConfig  `yaml:"database"`
	Auth           AuthConfig      `yaml:"auth"`
	Email          EmailConfig     `yaml:"email"`
	Storage        StorageConfig   `yaml:"storage"`
	WebSocket      WebSocketConfig `yaml:"websocket"`
	API            APIConfig       `yaml:"api"`
	TrustedProxies []string        `yaml:"trusted_proxies"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

type EmailConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Root is the filesystem backend's directory, also served under
	// /usercontent/.
	Root string `yaml:"root"`
	// PublicURL prefixes stored image keys. Defaults to the server base URL.
	PublicURL string   `yaml:"public_url"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type WebSocketConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	// UpgradesPerMinute limits websocket handshakes per client IP.
	UpgradesPerMinute int `yaml:"upgrades_per_minute"`
}

type APIConfig struct {
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	MaxBodyBytes      int64 `yaml:"max_body_bytes"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MRSH_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MRSH_SMTP_PASSWORD"); v != "" {
		c.Email.SMTP.Password = v
	}
	if v := os.Getenv("MRSH_S3_ACCESS_KEY"); v != "" {
		c.Storage.S3.AccessKey = v
	}
	if v := os.Getenv("MRSH_S3_SECRET_KEY"); v != "" {
		c.Storage.S3.SecretKey = v
	}
}

func (c *Config) validate() error {
	if c.Email.SMTP.Host == "" {
		return fmt.Errorf("email.smtp.host is required")
	}
	if c.Email.SMTP.Port == 0 {
		return fmt.Errorf("email.smtp.port is required")
	}
	if c.Email.SMTP.From == "" {
		return fmt.Errorf("email.smtp.from is required")
	}
	if c.Auth.VerificationTTL < 0 {
		return fmt.Errorf("auth.verification_ttl must not be negative")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}

	switch c.Storage.Backend {
	case "", StorageFilesystem:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
		if c.Storage.PublicURL == "" {
			return fmt.Errorf("storage.public_url is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageFilesystem, StorageS3, c.Storage.Backend)
	}

	if c.API.MaxBodyBytes < 0 {
		return fmt.Errorf("api.max_body_bytes must not be negative")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "MRSH Server"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Database.Path == "" {
		c.Database.Path = "./data/" + constants.AppName + ".db"
	}
	if c.Auth.VerificationTTL == 0 {
		c.Auth.VerificationTTL = 48 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFilesystem
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "./data/usercontent"
	}
	if c.Storage.PublicURL == "" {
		c.Storage.PublicURL = c.Server.BaseURL
	}
	if c.WebSocket.UpgradesPerMinute == 0 {
		c.WebSocket.UpgradesPerMinute = 10
	}
	if c.API.RequestsPerMinute == 0 {
		c.API.RequestsPerMinute = 300
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 16 << 20
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// APIURL is the public base of the method endpoints, used in emailed links.
func (c *Config) APIURL() string {
	return c.Server.BaseURL + "/" + constants.AppName + "/api"
}
