package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Minio    MinioConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Lock     LockConfig     `yaml:"lock"`
	Upload   UploadConfig   `yaml:"upload"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	// RateLimit is the number of requests a client may make per
	// RateWindowSeconds. 0 disables rate limiting.
	RateLimit         int `yaml:"rate_limit"`
	RateWindowSeconds int `yaml:"rate_window_seconds"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	ExpireDays int    `yaml:"expire_days"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the persistence backend: "memory" or "postgres".
type StoreConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LockConfig selects how mutations of one contract are serialized:
// "memory" for a single process, "redis" when replicas share a store.
type LockConfig struct {
	Driver        string `yaml:"driver"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
	RetryMillis   int    `yaml:"retry_millis"`
}

type UploadConfig struct {
	MaxSizeMB int `yaml:"max_size_mb"`
}

type WorkflowConfig struct {
	// RequireRejectionReason turns a blank reviewer rejection reason into a
	// validation error instead of storing the placeholder reason.
	RequireRejectionReason bool `yaml:"require_rejection_reason"`
	// DisableLegacyDecisions rejects the whole-contract approve/reject path.
	DisableLegacyDecisions bool `yaml:"disable_legacy_decisions"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	LockMemory    = "memory"
	LockRedis     = "redis"
)

// Environment variables that override secrets from the file.
const (
	EnvJWTSecret      = "CONTRACTHUB_JWT_SECRET"
	EnvDatabaseDSN    = "CONTRACTHUB_DATABASE_DSN"
	EnvMinioSecretKey = "CONTRACTHUB_MINIO_SECRET_KEY"
	EnvRedisPassword  = "CONTRACTHUB_REDIS_PASSWORD"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvMinioSecretKey); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Lock.RedisPassword = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "*"
	}
	if c.Server.RateWindowSeconds == 0 {
		c.Server.RateWindowSeconds = 60
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Lock.Driver == "" {
		c.Lock.Driver = LockMemory
	}
	if c.Lock.TTLSeconds == 0 {
		c.Lock.TTLSeconds = 30
	}
	if c.Lock.RetryMillis == 0 {
		c.Lock.RetryMillis = 50
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = 20
	}
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Lock.Driver {
	case LockMemory:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("lock.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.driver %q", c.Lock.Driver))
	}

	if o := c.Server.CORSOrigin; o != "*" {
		for _, origin := range strings.Split(o, ",") {
			origin = strings.TrimSpace(origin)
			if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
				errs = append(errs, fmt.Errorf("server.cors_origin: invalid origin %q", origin))
			}
		}
	}
	if c.Minio.ExpireDays > 7 {
		errs = append(errs, errors.New("minio.expire_days must be at most 7"))
	}

	seen := make(map[string]bool)
	for i := range c.Users {
		u := &c.Users[i]
		if u.ID == "" || u.Username == "" {
			errs = append(errs, fmt.Errorf("users[%d]: id and username are required", i))
			continue
		}
		if seen[u.ID] || seen["name:"+u.Username] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate user %s", i, u.Username))
		}
		seen[u.ID] = true
		seen["name:"+u.Username] = true
		if _, ok := u.ParsedRole(); !ok {
			errs = append(errs, fmt.Errorf("users[%d]: unknown role %q", i, u.Role))
		}
		if u.Password == "" && u.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("users[%d]: password or password_hash is required", i))
		}
	}

	return errors.Join(errs...)
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if strings.EqualFold(c.Users[i].Username, username) {
			return &c.Users[i]
		}
	}
	return nil
}

// FindUserByID finds a user by id
func (c *Config) FindUserByID(id string) *User {
	for i := range c.Users {
		if c.Users[i].ID == id {
			return &c.Users[i]
		}
	}
	return nil
}
