package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	defaultSecretKey = "change-me-in-production-use-secrets"
)

type Config struct {
	Env      string `mapstructure:"env"`
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Security SecurityConfig
	Limits   LimitsConfig
	Audit    AuditConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
	CORSOrigins    []string      `mapstructure:"corsOrigins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	SecretKey string        `mapstructure:"secretKey"`
	KeyPrefix string        `mapstructure:"keyPrefix"`
	JWTSecret string        `mapstructure:"jwtSecret"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
	// AuthRPS and AuthBurst throttle the register and login routes per
	// client IP. Zero disables throttling.
	AuthRPS   float64 `mapstructure:"authRPS"`
	AuthBurst int     `mapstructure:"authBurst"`
}

// LimitsConfig holds issuance defaults and the guard rails around the
// shared rate-limit store.
type LimitsConfig struct {
	DefaultRateLimit  int           `mapstructure:"defaultRateLimit"`
	DefaultRateWindow int           `mapstructure:"defaultRateWindow"`
	StoreTimeout      time.Duration `mapstructure:"storeTimeout"`
	BreakerFailures   int           `mapstructure:"breakerFailures"`
	BreakerTimeout    time.Duration `mapstructure:"breakerTimeout"`
}

type AuditConfig struct {
	RetentionDays int           `mapstructure:"retentionDays"`
	PurgeSchedule string        `mapstructure:"purgeSchedule"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	v := viper.New()

	v.SetDefault("env", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.shutdownPeriod", 15*time.Second)
	v.SetDefault("server.corsOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 25)
	v.SetDefault("database.connMaxLifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", "0")
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.dialTimeout", 5*time.Second)
	v.SetDefault("redis.readTimeout", time.Second)
	v.SetDefault("redis.writeTimeout", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("security.secretKey", defaultSecretKey)
	v.SetDefault("security.keyPrefix", "sk_live_")
	v.SetDefault("security.tokenTTL", 24*time.Hour)
	v.SetDefault("security.authRPS", 1.0)
	v.SetDefault("security.authBurst", 10)

	v.SetDefault("limits.defaultRateLimit", 1000)
	v.SetDefault("limits.defaultRateWindow", 3600)
	v.SetDefault("limits.storeTimeout", 250*time.Millisecond)
	v.SetDefault("limits.breakerFailures", 5)
	v.SetDefault("limits.breakerTimeout", 30*time.Second)

	v.SetDefault("audit.retentionDays", 90)
	v.SetDefault("audit.purgeSchedule", "@every 24h")
	v.SetDefault("audit.writeTimeout", 2*time.Second)

	v.SetDefault("worker.concurrency", 5)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = cfg.Security.SecretKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Security.SecretKey == "" {
		return errors.New("security.secretKey must be set")
	}
	if c.Security.SecretKey == defaultSecretKey && c.Env != "development" {
		return errors.New("security.secretKey must be changed outside development")
	}
	if c.Security.KeyPrefix == "" {
		return errors.New("security.keyPrefix must be set")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return errors.New("database.driver must be one of: postgres, memory")
	}
	if c.Limits.DefaultRateWindow <= 0 {
		return errors.New("limits.defaultRateWindow must be positive")
	}
	return nil
}
