package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/prefs"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	WeatherAPIKey  string
	WeatherAPIURL  string
	FallbackCity   string
	// ForecastDays is the default for /api/weather/forecast; the screen
	// always requests forecast.ScreenDays.
	ForecastDays   int
	SearchDebounce time.Duration
	MinQueryLength int
	FetchTimeout   time.Duration
	PersistTimeout time.Duration
	CacheTTL       time.Duration
	Prefs          prefs.Options
	MQTTBrokerURL  string
	MQTTClientID   string
	MQTTPrefix     string
	RefreshCron    string
	LogLevel       string
	LogFormat      string
}

var defaults = map[string]any{
	"weather_app_port":    "8096",
	"weatherapi_key":      "",
	"weatherapi_base_url": "https://api.weatherapi.com/v1",
	"fallback_city":       "Karachi",
	"forecast_days":       7,
	"search_debounce":     "1200ms",
	"min_query_length":    3,
	"fetch_timeout":       "10s",
	"persist_timeout":     "5s",
	"cache_ttl":           "15m",
	"prefs_backend":       "sqlite",
	"sqlite_path":         "weather-app.db",
	"redis_addr":          "redis:6379",
	"redis_password":      "",
	"redis_db":            0,
	"postgres_user":       "",
	"postgres_password":   "",
	"postgres_db":         "",
	"postgres_host":       "",
	"postgres_port":       "5432",
	"postgres_sslmode":    "disable",
	"mqtt_broker_url":     "",
	"mqtt_client_id":      "",
	"mqtt_topic_prefix":   "homenavi/weather",
	"refresh_schedule":    "@every 30m",
	"log_level":           "info",
	"log_format":          "text",
}

// Load reads configuration from the environment, optionally layered over the
// YAML file at path. Keys in the file are the lower-case env names.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
		// AutomaticEnv only sees keys viper already knows about when
		// unmarshalling, so bind each one explicitly.
		_ = v.BindEnv(k, strings.ToUpper(k))
	}
	// PORT wins over WEATHER_APP_PORT, as in the other homenavi services.
	_ = v.BindEnv("weather_app_port", "PORT", "WEATHER_APP_PORT")

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	backend, err := prefs.ParseBackend(v.GetString("prefs_backend"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           v.GetString("weather_app_port"),
		WeatherAPIKey:  strings.TrimSpace(v.GetString("weatherapi_key")),
		WeatherAPIURL:  v.GetString("weatherapi_base_url"),
		FallbackCity:   strings.TrimSpace(v.GetString("fallback_city")),
		ForecastDays:   v.GetInt("forecast_days"),
		SearchDebounce: v.GetDuration("search_debounce"),
		MinQueryLength: v.GetInt("min_query_length"),
		FetchTimeout:   v.GetDuration("fetch_timeout"),
		PersistTimeout: v.GetDuration("persist_timeout"),
		CacheTTL:       v.GetDuration("cache_ttl"),
		Prefs: prefs.Options{
			Backend:    backend,
			SQLitePath: v.GetString("sqlite_path"),
			Redis: prefs.RedisConfig{
				Addr:     v.GetString("redis_addr"),
				Password: v.GetString("redis_password"),
				DB:       v.GetInt("redis_db"),
			},
			Postgres: prefs.PostgresConfig{
				User:     strings.TrimSpace(v.GetString("postgres_user")),
				Password: v.GetString("postgres_password"),
				DBName:   strings.TrimSpace(v.GetString("postgres_db")),
				Host:     strings.TrimSpace(v.GetString("postgres_host")),
				Port:     strings.TrimSpace(v.GetString("postgres_port")),
				SSLMode:  v.GetString("postgres_sslmode"),
			},
		},
		MQTTBrokerURL: strings.TrimSpace(v.GetString("mqtt_broker_url")),
		MQTTClientID:  v.GetString("mqtt_client_id"),
		MQTTPrefix:    v.GetString("mqtt_topic_prefix"),
		RefreshCron:   v.GetString("refresh_schedule"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ForecastDays < 1 || c.ForecastDays > 14 {
		return fmt.Errorf("FORECAST_DAYS must be between 1 and 14, got %d", c.ForecastDays)
	}
	if c.SearchDebounce <= 0 {
		return fmt.Errorf("SEARCH_DEBOUNCE must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.Prefs.Backend == prefs.BackendPostgres {
		for key, val := range map[string]string{
			"POSTGRES_USER": c.Prefs.Postgres.User,
			"POSTGRES_DB":   c.Prefs.Postgres.DBName,
			"POSTGRES_HOST": c.Prefs.Postgres.Host,
		} {
			if val == "" {
				return fmt.Errorf("missing required env %s for postgres prefs backend", key)
			}
		}
	}
	return nil
}

// LogValue keeps the API key out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.Bool("weatherapi_key_set", c.WeatherAPIKey != ""),
		slog.String("fallback_city", c.FallbackCity),
		slog.Int("forecast_days", c.ForecastDays),
		slog.Duration("search_debounce", c.SearchDebounce),
		slog.Duration("fetch_timeout", c.FetchTimeout),
		slog.String("prefs_backend", string(c.Prefs.Backend)),
		slog.String("mqtt", c.MQTTBrokerURL),
		slog.String("refresh_schedule", c.RefreshCron),
	)
}
