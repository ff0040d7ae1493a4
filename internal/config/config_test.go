package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "GRPC_ADDR", "DB_DRIVER", "MYSQL_DSN", "DATABASE_URL", "REDIS_ADDR", "OTEL_ENDPOINT", "LOG_LEVEL", "APP_ENV", "REQUEST_TIMEOUT_MS", "SHUTDOWN_TIMEOUT_MS", "AUTO_MIGRATE", "DB_MAX_OPEN_CONNS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":50051" {
		t.Errorf("unexpected addresses %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.DBDriver != DriverMySQL || cfg.DBMaxOpenConns != 100 || cfg.AutoMigrate {
		t.Errorf("unexpected db settings %+v", cfg)
	}
	if cfg.RequestTimeout != 5*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts %v %v", cfg.RequestTimeout, cfg.ShutdownTimeout)
	}
	if cfg.Development() {
		t.Error("expected production by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Memory")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("REQUEST_TIMEOUT_MS", "250")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBDriver != DriverMemory || !cfg.AutoMigrate || cfg.RequestTimeout != 250*time.Millisecond {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.Development() {
		t.Error("expected development")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "sqlite"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"bad int", map[string]string{"DB_MAX_OPEN_CONNS": "many"}},
		{"zero conns", map[string]string{"DB_MAX_OPEN_CONNS": "0"}},
		{"bad bool", map[string]string{"AUTO_MIGRATE": "maybe"}},
		{"zero timeout", map[string]string{"REQUEST_TIMEOUT_MS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
