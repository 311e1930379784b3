package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/prefs"
)

func TestDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WEATHER_APP_PORT", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8096" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.FallbackCity != "Karachi" || cfg.ForecastDays != 7 {
		t.Fatalf("unexpected city/days %q %d", cfg.FallbackCity, cfg.ForecastDays)
	}
	if cfg.SearchDebounce != 1200*time.Millisecond || cfg.MinQueryLength != 3 {
		t.Fatalf("unexpected search settings %v %d", cfg.SearchDebounce, cfg.MinQueryLength)
	}
	if cfg.FetchTimeout != 10*time.Second || cfg.CacheTTL != 15*time.Minute {
		t.Fatalf("unexpected timeouts %v %v", cfg.FetchTimeout, cfg.CacheTTL)
	}
	if cfg.Prefs.Backend != prefs.BackendSQLite {
		t.Fatalf("unexpected backend %q", cfg.Prefs.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEATHER_APP_PORT", "9000")
	t.Setenv("PORT", "")
	t.Setenv("WEATHERAPI_KEY", " abc ")
	t.Setenv("FALLBACK_CITY", "Budapest")
	t.Setenv("SEARCH_DEBOUNCE", "500ms")
	t.Setenv("PREFS_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" || cfg.WeatherAPIKey != "abc" || cfg.FallbackCity != "Budapest" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.SearchDebounce != 500*time.Millisecond {
		t.Fatalf("unexpected debounce %v", cfg.SearchDebounce)
	}
	if cfg.Prefs.Backend != prefs.BackendRedis || cfg.Prefs.Redis.DB != 2 {
		t.Fatalf("unexpected prefs %+v", cfg.Prefs)
	}

	t.Setenv("PORT", "7000")
	cfg, _ = Load("")
	if cfg.Port != "7000" {
		t.Fatalf("PORT should win, got %q", cfg.Port)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather-app.yaml")
	body := "fallback_city: London\nforecast_days: 3\nrefresh_schedule: \"\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("FORECAST_DAYS", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FallbackCity != "London" || cfg.ForecastDays != 3 || cfg.RefreshCron != "" {
		t.Fatalf("file not applied: %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidation(t *testing.T) {
	t.Setenv("FORECAST_DAYS", "30")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for 30 days")
	}
	t.Setenv("FORECAST_DAYS", "7")

	t.Setenv("PREFS_BACKEND", "postgres")
	t.Setenv("POSTGRES_USER", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected missing postgres settings to fail")
	}

	t.Setenv("PREFS_BACKEND", "cassandra")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}
