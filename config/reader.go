package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type ConfigSchema struct {
	Databases struct {
		Driver     string     `yaml:"driver"`
		SQLitePath string     `yaml:"sqlite_path"`
		Master     DBConfig   `yaml:"master"`
		Replicas   []DBConfig `yaml:"replicas"`
	} `yaml:"databases"`
	Redis struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		Password        string        `yaml:"password"`
		DB              int           `yaml:"db"`
		FriendsCacheTTL time.Duration `yaml:"friends_cache_ttl"`
	} `yaml:"redis"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Backend struct {
		Host        string   `yaml:"host"`
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"backend"`
	Logs struct {
		Level string `yaml:"level"`
		Env   string `yaml:"env"`
	} `yaml:"logs"`
	Auth struct {
		Secret   string        `yaml:"secret"`
		TokenTTL time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Search struct {
		DefaultPageSize int `yaml:"default_page_size"`
		MaxPageSize     int `yaml:"max_page_size"`
	} `yaml:"search"`
	Throttle struct {
		FriendRequestsPerMinute int `yaml:"friend_requests_per_minute"`
	} `yaml:"throttle"`
}

var AppConfig *ConfigSchema

// LoadConfig reads the YAML file at filePath, applies .env / environment
// overrides and defaults, validates, and stores the result in AppConfig.
func LoadConfig(filePath string) error {
	conf, err := Parse(filePath)
	if err != nil {
		return err
	}
	AppConfig = conf
	return nil
}

// Parse is LoadConfig without touching the global
func Parse(filePath string) (*ConfigSchema, error) {
	// .env is optional
	_ = godotenv.Load()

	conf := &ConfigSchema{}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filePath, err)
	}
	if err = yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filePath, err)
	}

	conf.applyEnv()
	conf.applyDefaults()

	if err = conf.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return conf, nil
}

func (c *ConfigSchema) applyEnv() {
	setString(&c.Databases.Driver, "DB_DRIVER")
	setString(&c.Databases.Master.Host, "DB_HOST")
	setInt(&c.Databases.Master.Port, "DB_PORT")
	setString(&c.Databases.Master.User, "DB_USER")
	setString(&c.Databases.Master.Password, "DB_PASSWORD")
	setString(&c.Databases.Master.DBName, "DB_NAME")
	setString(&c.Redis.Host, "REDIS_HOST")
	setInt(&c.Redis.Port, "REDIS_PORT")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Auth.Secret, "AUTH_SECRET")
	setString(&c.Logs.Env, "APP_ENV")
}

func (c *ConfigSchema) applyDefaults() {
	if c.Databases.Driver == "" {
		c.Databases.Driver = DriverPostgres
	}
	if c.Databases.Master.Port == 0 {
		c.Databases.Master.Port = 5432
	}
	if c.Databases.SQLitePath == "" {
		c.Databases.SQLitePath = "socialgraph.db"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.FriendsCacheTTL == 0 {
		c.Redis.FriendsCacheTTL = 5 * time.Minute
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "friend_events"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8080
	}
	if len(c.Backend.CORSOrigins) == 0 {
		c.Backend.CORSOrigins = []string{"*"}
	}
	if c.Logs.Env == "" {
		c.Logs.Env = "development"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Search.DefaultPageSize == 0 {
		c.Search.DefaultPageSize = 10
	}
	if c.Search.MaxPageSize == 0 {
		c.Search.MaxPageSize = 100
	}
	if c.Throttle.FriendRequestsPerMinute == 0 {
		c.Throttle.FriendRequestsPerMinute = 3
	}
}

// Validate checks the values defaults cannot fill in
func (c *ConfigSchema) Validate() error {
	if c.Databases.Driver != DriverPostgres && c.Databases.Driver != DriverSQLite {
		return fmt.Errorf("unknown database driver %q", c.Databases.Driver)
	}
	if c.Databases.Driver == DriverPostgres && c.Databases.Master.Host == "" {
		return errors.New("master database host is required")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required")
	}
	if c.Search.DefaultPageSize < 0 || c.Search.MaxPageSize < 0 {
		return errors.New("search page sizes must be positive")
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return errors.New("search default_page_size exceeds max_page_size")
	}
	if c.Throttle.FriendRequestsPerMinute < 0 {
		return errors.New("throttle friend_requests_per_minute must be positive")
	}
	return nil
}

// RedisEnabled reports whether a redis host is configured
func (c *ConfigSchema) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// RabbitMQEnabled reports whether a broker url is configured
func (c *ConfigSchema) RabbitMQEnabled() bool {
	return c.RabbitMQ.URL != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
