package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("DATA_SOURCE")
	os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Expected Port to be 8000, got %s", cfg.Port)
	}
	if cfg.Data.Source != "csv" {
		t.Errorf("Expected csv data source, got %s", cfg.Data.Source)
	}
	if cfg.Backtest.K != 10 {
		t.Errorf("Expected K 10, got %d", cfg.Backtest.K)
	}
	if cfg.Backtest.SellThreshold != 0.3 {
		t.Errorf("Expected sell threshold 0.3, got %v", cfg.Backtest.SellThreshold)
	}
	if cfg.Backtest.Benchmark != "SPY" {
		t.Errorf("Expected SPY benchmark, got %s", cfg.Backtest.Benchmark)
	}
	if cfg.Data.PricePath() != "data/prices.csv" {
		t.Errorf("unexpected price path %s", cfg.Data.PricePath())
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	os.Setenv("PORT", "9000")
	os.Setenv("ENV", "production")
	os.Setenv("BACKTEST_K", "5")
	os.Setenv("BACKTEST_INITIAL_CAPITAL", "250000")
	os.Setenv("BACKTEST_RANDOM_STATE", "7")

	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("ENV")
		os.Unsetenv("BACKTEST_K")
		os.Unsetenv("BACKTEST_INITIAL_CAPITAL")
		os.Unsetenv("BACKTEST_RANDOM_STATE")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9000" || cfg.Env != "production" {
		t.Errorf("unexpected server config %s %s", cfg.Port, cfg.Env)
	}
	if cfg.Backtest.K != 5 {
		t.Errorf("Expected K 5, got %d", cfg.Backtest.K)
	}
	if cfg.Backtest.InitialCapital != 250000 {
		t.Errorf("Expected capital 250000, got %v", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.RandomState != 7 {
		t.Errorf("Expected random state 7, got %d", cfg.Backtest.RandomState)
	}
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	os.Setenv("DATA_SOURCE", "postgres")
	os.Unsetenv("DATABASE_URL")
	defer os.Unsetenv("DATA_SOURCE")

	if _, err := Load(); err == nil {
		t.Error("Expected error when DATABASE_URL is missing for postgres source")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"ENV", "invalid"},
		{"DATA_SOURCE", "parquet"},
		{"BACKTEST_K", "0"},
		{"BACKTEST_SELL_THRESHOLD", "1.5"},
		{"BACKTEST_SELL_THRESHOLD", "NaN"},
		{"BACKTEST_INITIAL_CAPITAL", "-1"},
		{"BACKTEST_INITIAL_CAPITAL", "NaN"},
		{"BACKTEST_INITIAL_CAPITAL", "+Inf"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			os.Setenv(tc.key, tc.value)
			defer os.Unsetenv(tc.key)

			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_DURATION", "2h")
	os.Setenv("TEST_INT", "100")
	os.Setenv("TEST_FLOAT", "0.25")
	os.Setenv("TEST_BOOL", "true")
	defer func() {
		os.Unsetenv("TEST_DURATION")
		os.Unsetenv("TEST_INT")
		os.Unsetenv("TEST_FLOAT")
		os.Unsetenv("TEST_BOOL")
	}()

	if d := getEnvAsDuration("TEST_DURATION", "1h"); d != 2*time.Hour {
		t.Errorf("Expected 2h, got %v", d)
	}
	if v := getEnvAsInt("TEST_INT", 50); v != 100 {
		t.Errorf("Expected 100, got %d", v)
	}
	if v := getEnvAsFloat("TEST_FLOAT", 1); v != 0.25 {
		t.Errorf("Expected 0.25, got %v", v)
	}
	if v := getEnvAsFloat("TEST_MISSING_FLOAT", 1.5); v != 1.5 {
		t.Errorf("Expected default 1.5, got %v", v)
	}
	if v := getEnvAsBool("TEST_BOOL", false); !v {
		t.Error("Expected true")
	}

	os.Setenv("TEST_LIST", " http://a.test, ,http://b.test")
	defer os.Unsetenv("TEST_LIST")
	if v := getEnvAsList("TEST_LIST", ""); len(v) != 2 || v[0] != "http://a.test" || v[1] != "http://b.test" {
		t.Errorf("unexpected list %v", v)
	}
}
