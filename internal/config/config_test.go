package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.QueueCapacity != 100 {
			t.Errorf("QueueCapacity = %d, want 100", cfg.QueueCapacity)
		}
		if cfg.ConsumerWorkers != 4 {
			t.Errorf("ConsumerWorkers = %d, want 4", cfg.ConsumerWorkers)
		}
		if cfg.UploadDir != "./uploads" {
			t.Errorf("UploadDir = %q, want ./uploads", cfg.UploadDir)
		}
		if cfg.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
		}
		if cfg.InitialDelay != time.Second {
			t.Errorf("InitialDelay = %v, want 1s", cfg.InitialDelay)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.S3.Enabled() {
			t.Error("S3.Enabled() = true without a bucket")
		}
	})

	t.Run("registry_path_follows_upload_dir", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env", UploadDir: "/data/media"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.RegistryPath != "/data/media/registry.json" {
			t.Errorf("RegistryPath = %q, want /data/media/registry.json", cfg.RegistryPath)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		t.Setenv("QUEUE_CAPACITY", "7")
		t.Setenv("REGISTRY_PATH", "/var/lib/mediasink/registry.json")
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.QueueCapacity != 7 {
			t.Errorf("QueueCapacity = %d, want 7", cfg.QueueCapacity)
		}
		if cfg.RegistryPath != "/var/lib/mediasink/registry.json" {
			t.Errorf("RegistryPath = %q, want explicit value kept", cfg.RegistryPath)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		t.Setenv("HTTP_ADDR", ":7000")
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env", HTTPAddr: ":9090", LogLevel: "debug"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
	})

	t.Run("invalid_value_rejected", func(t *testing.T) {
		t.Setenv("QUEUE_CAPACITY", "lots")
		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Fatal("Load with non-numeric QUEUE_CAPACITY: want error")
		}
	})

	t.Run("out_of_range_rejected", func(t *testing.T) {
		for _, tc := range []struct{ name, value string }{
			{"MAX_RETRIES", "0"},
			{"QUEUE_CAPACITY", "0"},
			{"CONSUMER_WORKERS", "-1"},
		} {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv(tc.name, tc.value)
				if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
					t.Fatalf("Load with %s=%s: want error", tc.name, tc.value)
				}
			})
		}
	})
}

func TestLoadProducer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadProducer(ProducerOverrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("LoadProducer: %v", err)
		}
		if cfg.ServerURL != "http://localhost:8080" {
			t.Errorf("ServerURL = %q, want http://localhost:8080", cfg.ServerURL)
		}
		if cfg.ChunkSize != 65536 {
			t.Errorf("ChunkSize = %d, want 65536", cfg.ChunkSize)
		}
		if cfg.UploadAttempts != 5 {
			t.Errorf("UploadAttempts = %d, want 5", cfg.UploadAttempts)
		}
		if cfg.WatchSource {
			t.Error("WatchSource = true, want false by default")
		}
	})

	t.Run("source_dirs_comma_separated", func(t *testing.T) {
		t.Setenv("SOURCE_DIRS", "/a,/b,/c")
		cfg, err := LoadProducer(ProducerOverrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("LoadProducer: %v", err)
		}
		if len(cfg.SourceDirs) != 3 || cfg.SourceDirs[1] != "/b" {
			t.Errorf("SourceDirs = %v, want [/a /b /c]", cfg.SourceDirs)
		}
	})

	t.Run("watch_flag_override", func(t *testing.T) {
		cfg, err := LoadProducer(ProducerOverrides{EnvFile: "nonexistent.env", Watch: true, WatchSet: true})
		if err != nil {
			t.Fatalf("LoadProducer: %v", err)
		}
		if !cfg.WatchSource {
			t.Error("WatchSource = false, want true from flag")
		}
	})
}
