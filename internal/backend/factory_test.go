package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bil/internal/config"
	"bil/internal/metrics"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) should fail")
	}

	app := &config.Config{DataBackend: "memory", DataDir: "x"}
	if _, err := FromAppConfig(app); err == nil {
		t.Error("FromAppConfig() should reject unknown backends")
	}

	app = &config.Config{DataBackend: "sqlite", DataDir: "/srv", SQLiteDBPath: "/srv/bil.db", AMQPURL: "amqp://x"}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/srv/bil.db" || !cfg.Publish {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
}

func TestCreateBackend(t *testing.T) {
	tests := []struct {
		name string
		typ  BackendType
	}{
		{"file", FileBackend},
		{"sqlite", SQLiteBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			result, err := NewFactory(nil).CreateBackend(ctx, Config{
				Type:         tt.typ,
				DataDir:      dir,
				SQLiteDBPath: filepath.Join(dir, "bil.db"),
				CacheSize:    8,
				CacheTTL:     time.Minute,
				Metrics:      metrics.New(),
			})
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			defer result.Cleanup()

			id, err := result.Service.CreateProject(ctx, "Test")
			if err != nil || id != 1 {
				t.Fatalf("CreateProject() = %d, %v", id, err)
			}
			detail, err := result.Service.GetProject(ctx, id)
			if err != nil || detail.Name != "Test" {
				t.Errorf("GetProject() = %+v, %v", detail, err)
			}
		})
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "memory", DataDir: t.TempDir()})
	if err == nil {
		t.Error("CreateBackend() should reject unknown backend types")
	}
}
