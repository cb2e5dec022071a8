package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/homeprice/config"
	_ "github.com/rushteam/homeprice/config/builders"
	"github.com/rushteam/homeprice/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Artifacts.Store.Backend != "file" {
		t.Errorf("unexpected defaults: %+v", cfg.Server)
	}
	if cfg.Artifacts.Location.SchemaKey != "feature_schema.json" {
		t.Errorf("schema key = %q", cfg.Artifacts.Location.SchemaKey)
	}
	if cfg.Batch.InputPattern != "raw/{date}.csv" || cfg.Batch.Format != "csv" {
		t.Errorf("batch = %+v", cfg.Batch.Config)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  api_key: from-file
artifacts:
  store:
    backend: s3
    s3:
      bucket: housing-data-artifacts
      region: ap-south-1
  location:
    prefix: models/v3
  reload_interval: 30s
features:
  expected_features: 25
  date_sentinel: -1
  defaults:
    sqft_lot: 5000
outliers:
  enabled: true
  ranges:
    bedrooms: {min: 0, max: 20}
  rules:
    - "sqft_living <= 0.0"
batch:
  format: jsonl
  workers: 8
`)
	t.Setenv("HOMEPRICE_SERVER_API_KEY", "from-env")
	t.Setenv("HOMEPRICE_SCORING_BATCH_SIZE", "128")
	t.Setenv("HOMEPRICE_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.APIKey != "from-env" {
		t.Errorf("api key = %q, env should win", cfg.Server.APIKey)
	}
	if cfg.Scoring.BatchSize != 128 || cfg.Log.Level != "debug" {
		t.Errorf("env not applied: batch=%d level=%q", cfg.Scoring.BatchSize, cfg.Log.Level)
	}
	if cfg.Artifacts.ReloadInterval != 30*time.Second {
		t.Errorf("reload interval = %v", cfg.Artifacts.ReloadInterval)
	}
	if cfg.Artifacts.Location.Prefix != "models/v3" || cfg.Artifacts.Location.EncodersKey != "encoders.json" {
		t.Errorf("location = %+v", cfg.Artifacts.Location)
	}
	r := cfg.Outliers.Ranges["bedrooms"]
	if r.Max == nil || *r.Max != 20 {
		t.Errorf("ranges = %+v", cfg.Outliers.Ranges)
	}

	opts := cfg.PipelineOptions()
	if opts.ExpectedFeatures != 25 || opts.Transform.DateSentinel != -1 || opts.Align.Defaults["sqft_lot"] != 5000 {
		t.Errorf("pipeline options = %+v", opts)
	}
	if cfg.Batch.Format != "jsonl" || cfg.Batch.Workers != 8 {
		t.Errorf("batch = %+v", cfg.Batch.Config)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown backend", "artifacts:\n  store:\n    backend: ftp\n", "unsupported backend"},
		{"s3 without bucket", "artifacts:\n  store:\n    backend: s3\n", "s3.bucket"},
		{"bad format", "batch:\n  format: parquet\n", "Format"},
		{"bad rule", "outliers:\n  enabled: true\n  rules: [\"sqft_living +\"]\n", "outliers"},
		{"feast without endpoint", "feast:\n  enabled: true\n", "Endpoint"},
		{"empty addr", "server:\n  addr: \"\"\n", "Addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"badger", "file", "http", "memory", "redis", "s3"} {
		found := false
		for _, s := range config.SupportedStores() {
			found = found || s == name
		}
		if !found {
			t.Errorf("backend %q not registered", name)
		}
	}

	s, err := config.BuildStore(ctx, config.StoreConfig{Backend: "file", Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "file" {
		t.Errorf("name = %q", s.Name())
	}

	cached, err := config.BuildStore(ctx, config.StoreConfig{
		Backend:  "http",
		HTTP:     config.HTTPConfig{BaseURL: "http://127.0.0.1:1"},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()
	if _, ok := cached.(*store.CachedStore); !ok {
		t.Errorf("store = %T, want *store.CachedStore", cached)
	}

	if _, err := config.BuildStore(ctx, config.StoreConfig{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := config.Load("../config.example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Artifacts.ReloadInterval != time.Minute || cfg.Server.RateLimit != 600 {
		t.Errorf("server/artifacts = %+v %+v", cfg.Server, cfg.Artifacts)
	}
	if len(cfg.Features.DropColumns) != 2 || cfg.Features.DateSentinel != -1 {
		t.Errorf("features = %+v", cfg.Features)
	}
	if r, ok := cfg.Outliers.Ranges["bedrooms"]; !ok || r.Max == nil || *r.Max != 15 {
		t.Errorf("outlier ranges = %+v", cfg.Outliers.Ranges)
	}
	if opts := cfg.PipelineOptions(); opts.BatchSize != 256 || opts.ModelKey != "model.json" {
		t.Errorf("pipeline options = %+v", opts)
	}
}
