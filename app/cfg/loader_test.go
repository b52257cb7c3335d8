package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadArgsWorker(t *testing.T) {
	cfg, err := LoadArgs([]string{"--worker-count", "8", "worker", "ingest", "extract"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Command != CommandWorker {
		t.Errorf("Expected command %q, got %q", CommandWorker, cfg.Command)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[0] != "ingest" || cfg.Queues[1] != "extract" {
		t.Errorf("Expected queues [ingest extract], got %v", cfg.Queues)
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("Expected worker count 8, got %d", cfg.WorkerCount)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{"status"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBDriver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.DBDriver)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected default redis address, got %s", cfg.RedisAddr)
	}
	if cfg.JobTimeoutDuration() != 10*time.Second {
		t.Errorf("Expected 10s job timeout, got %s", cfg.JobTimeoutDuration())
	}
	if cfg.RetryIntervalDuration() != 30*time.Second {
		t.Errorf("Expected 30s retry interval, got %s", cfg.RetryIntervalDuration())
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", cfg.MaxRetries)
	}
	want := "host=localhost port=5432 user=comb_user password=comb_password dbname=product_comb sslmode=disable"
	if cfg.DatabaseDSN() != want {
		t.Errorf("Expected DSN %q, got %q", want, cfg.DatabaseDSN())
	}
}

func TestLoadArgsEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/comb.db")
	t.Setenv("API_ACCESS_KEY", "secret")
	t.Setenv("PREDICT_PORT", "9999")

	cfg, err := LoadArgs([]string{"predict-server"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DatabaseDSN() != "/tmp/comb.db" {
		t.Errorf("Expected sqlite path as DSN, got %s", cfg.DatabaseDSN())
	}
	if cfg.APIAccessKey != "secret" {
		t.Errorf("Expected API key from environment, got %q", cfg.APIAccessKey)
	}
	if cfg.PredictPort != "9999" {
		t.Errorf("Expected predict port 9999, got %s", cfg.PredictPort)
	}
}

func TestLoadArgsCrawl(t *testing.T) {
	cfg, err := LoadArgs([]string{"crawl", "--schedule", "otto_DE"})
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Schedule {
		t.Error("Expected schedule flag")
	}
	if len(cfg.Tables) != 1 || cfg.Tables[0] != "otto_DE" {
		t.Errorf("Expected tables [otto_DE], got %v", cfg.Tables)
	}
}

func TestLoadArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing command", []string{}},
		{"unknown command", []string{"serve"}},
		{"bad driver", []string{"--db-driver", "mysql", "status"}},
		{"zero workers", []string{"--worker-count", "0", "worker"}},
		{"zero timeout", []string{"--job-timeout", "0", "status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadArgs(tt.args); err == nil {
				t.Errorf("Expected error for %v", tt.args)
			}
		})
	}
}

func TestApplyTimezone(t *testing.T) {
	original := time.Local
	defer func() { time.Local = original }()

	if err := applyTimezone("Europe/Berlin"); err != nil {
		t.Fatal(err)
	}
	if time.Local.String() != "Europe/Berlin" {
		t.Errorf("Expected Europe/Berlin, got %s", time.Local)
	}
	if err := applyTimezone("Mars/Olympus"); err == nil {
		t.Error("Expected error for unknown timezone")
	}
}
