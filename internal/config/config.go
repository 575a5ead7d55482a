package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the coordination API
type Config struct {
	Port            string
	GinMode         string
	DatabaseURL     string
	DataPath        string
	StoreBackend    string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	RedisPassword   string
	JWTSecret       string
	APIMasterSecret string
	AdminUsername   string
	AdminPassword   string
	NegotiationTTL  time.Duration
	ExpiryInterval  time.Duration
	LockTTL         time.Duration
	WeekdayLocale   string
	CORSOrigins     []string
}

var defaults = map[string]any{
	"port":              "8000",
	"gin_mode":          "",
	"database_url":      "",
	"data_path":         "coordination.db",
	"store_backend":     "sql",
	"mongo_uri":         "mongodb://localhost:27017",
	"mongo_database":    "coordination",
	"redis_addr":        "",
	"redis_password":    "",
	"jwt_secret":        "",
	"api_master_secret": "",
	"admin_username":    "admin",
	"admin_password":    "admin123",
	"negotiation_ttl":   "48h",
	"expiry_interval":   "10m",
	"lock_ttl":          "30s",
	"weekday_locale":    "en",
	"cors_origins":      "*",
}

// LoadDotEnv loads the first .env found in the working directory or its
// parents. A missing file is not an error.
func LoadDotEnv() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Load resolves configuration from the environment, an optional config.yaml
// and defaults, in that order of precedence.
func Load() (*Config, error) {
	LoadDotEnv()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString("port"),
		GinMode:         v.GetString("gin_mode"),
		DatabaseURL:     v.GetString("database_url"),
		DataPath:        v.GetString("data_path"),
		StoreBackend:    strings.ToLower(v.GetString("store_backend")),
		MongoURI:        v.GetString("mongo_uri"),
		MongoDatabase:   v.GetString("mongo_database"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		JWTSecret:       v.GetString("jwt_secret"),
		APIMasterSecret: v.GetString("api_master_secret"),
		AdminUsername:   v.GetString("admin_username"),
		AdminPassword:   v.GetString("admin_password"),
		WeekdayLocale:   strings.ToLower(v.GetString("weekday_locale")),
	}

	var invalid []string
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"negotiation_ttl", &cfg.NegotiationTTL},
		{"expiry_interval", &cfg.ExpiryInterval},
		{"lock_ttl", &cfg.LockTTL},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil || parsed <= 0 {
			invalid = append(invalid, strings.ToUpper(d.key))
			continue
		}
		*d.dst = parsed
	}

	switch cfg.StoreBackend {
	case "sql", "mongo":
	default:
		invalid = append(invalid, "STORE_BACKEND")
	}
	switch cfg.WeekdayLocale {
	case "en", "ko":
	default:
		invalid = append(invalid, "WEEKDAY_LOCALE")
	}

	for _, origin := range strings.Split(v.GetString("cors_origins"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}
