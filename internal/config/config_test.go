package config

import (
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres || cfg.KafkaTopic != "order.events" || cfg.BatchMaxSize != 100 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BatchMaxWait != 250*time.Millisecond {
		t.Fatalf("batch wait = %v", cfg.BatchMaxWait)
	}
	if cfg.RequireOrderID {
		t.Fatal("identity must be optional by default")
	}
	if cfg.OTelSampleRatio != 1 {
		t.Fatalf("sample ratio = %v", cfg.OTelSampleRatio)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("REQUIRE_ORDER_ID", "true")
	t.Setenv("BATCH_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.1")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"a:9092", "b:9092"}) {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.StoreDriver != DriverSQLite || cfg.SQLitePath != "/tmp/x.db" || !cfg.RequireOrderID || cfg.BatchTimeout != 5*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.OTelSampleRatio != 0.1 {
		t.Fatalf("sample ratio = %v", cfg.OTelSampleRatio)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.LogLevel)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"unknown driver": {"STORE_DRIVER", "mysql"},
		"zero batch":     {"BATCH_MAX_SIZE", "0"},
		"bad duration":   {"BATCH_MAX_WAIT", "soon"},
		"bad bool":       {"REQUIRE_ORDER_ID", "maybe"},
		"ratio above 1":  {"OTEL_SAMPLE_RATIO", "1.5"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Parse(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseErrorIsWrapped(t *testing.T) {
	t.Setenv("BATCH_MAX_SIZE", "many")
	_, err := Parse()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
