package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/svcgate/gateway/config"
	"github.com/rs/zerolog"
)

func TestHolderGet(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Database.DSN != ":memory:" {
		t.Errorf("Database.DSN = %s, want :memory:", got.Database.DSN)
	}
}

func TestHolderReload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	cfg := h.Get()
	if cfg.RateLimit.WindowSecs != 60 {
		t.Errorf("initial WindowSecs = %d, want 60", cfg.RateLimit.WindowSecs)
	}

	newContent := `
database:
  dsn: ":memory:"
rate_limit:
  window_secs: 120
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg = h.Get()
	if cfg.RateLimit.WindowSecs != 120 {
		t.Errorf("reloaded WindowSecs = %d, want 120", cfg.RateLimit.WindowSecs)
	}
}

func TestHolderOnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var called bool
	var receivedCfg *config.Config

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		called = true
		receivedCfg = cfg
		mu.Unlock()
	})

	newContent := `
database:
  dsn: "/tmp/other.db"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if !called {
		t.Error("OnChange callback was not called")
	}
	if receivedCfg == nil {
		t.Error("received nil config in callback")
	} else if receivedCfg.Database.DSN != "/tmp/other.db" {
		t.Errorf("callback received DSN = %s, want /tmp/other.db", receivedCfg.Database.DSN)
	}
	mu.Unlock()
}

func TestHolderReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	invalidContent := `
database:
  dsn: ":memory:"
kv:
  mode: "bogus"
`
	if err := os.WriteFile(path, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	err = h.Reload()
	if err == nil {
		t.Error("Reload should fail for invalid config")
	}

	cfg := h.Get()
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("should keep old config, got Database.DSN = %s", cfg.Database.DSN)
	}
}

func TestHolderWatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := `
database:
  dsn: "/tmp/watched.db"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	if callCount == 0 {
		t.Error("file watcher did not trigger reload")
	}
	mu.Unlock()

	cfg := h.Get()
	if cfg.Database.DSN != "/tmp/watched.db" {
		t.Errorf("after file watch, Database.DSN = %s, want /tmp/watched.db", cfg.Database.DSN)
	}
}

func TestHolderConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := h.Get()
				if cfg == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	if len(fields) == 0 {
		t.Error("ReloadableFields returned empty")
	}

	expected := []string{"rate_limit.window_secs", "logging.level"}
	for _, e := range expected {
		found := false
		for _, f := range fields {
			if f == e {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s not in ReloadableFields", e)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	fields := config.NonReloadableFields()
	if len(fields) == 0 {
		t.Error("NonReloadableFields returned empty")
	}

	expected := []string{"server.host", "server.port", "database.dsn"}
	for _, e := range expected {
		found := false
		for _, f := range fields {
			if f == e {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}
}

func TestHolderReloadWithLogLevelChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
database:
  dsn: ":memory:"
logging:
  level: "error"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %s, want error", cfg.Logging.Level)
	}
}

func TestHolderReloadWithBreakerThresholdChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
database:
  dsn: ":memory:"
breaker:
  failure_threshold: 10
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Breaker.FailureThreshold != 10 {
		t.Errorf("Breaker.FailureThreshold = %d, want 10", cfg.Breaker.FailureThreshold)
	}
}

func TestHolderReloadWithCacheSizeChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
database:
  dsn: ":memory:"
cache:
  response_max_entries: 2000
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Cache.ResponseMaxEntries != 2000 {
		t.Errorf("Cache.ResponseMaxEntries = %d, want 2000", cfg.Cache.ResponseMaxEntries)
	}
}

func TestHolderMultipleOnChangeCallbacks(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount1, callCount2 int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount1++
		mu.Unlock()
	})

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount2++
		mu.Unlock()
	})

	newContent := `
database:
  dsn: "/tmp/other2.db"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if callCount1 != 1 {
		t.Errorf("first callback called %d times, want 1", callCount1)
	}
	if callCount2 != 1 {
		t.Errorf("second callback called %d times, want 1", callCount2)
	}
	mu.Unlock()
}

func TestHolderWatchFileWithDifferentFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	dir := filepath.Dir(path)
	otherFile := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(otherFile, []byte("test: data"), 0644); err != nil {
		t.Fatalf("write other file: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cfg := h.Get()
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("Database.DSN changed unexpectedly to %s", cfg.Database.DSN)
	}
}

func TestHolderStopBeforeWatch(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}

	h.Stop()

	cfg := h.Get()
	if cfg == nil {
		t.Fatal("Get returned nil after Stop")
	}
}

func TestHolderStopAfterWatch(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	h.Stop()

	cfg := h.Get()
	if cfg == nil {
		t.Fatal("Get returned nil after Stop")
	}
}

func TestNewHolderInvalidPath(t *testing.T) {
	_, err := config.NewHolder("/nonexistent/path/config.yaml", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for nonexistent config path")
	}
}

func TestNewHolderInvalidConfig(t *testing.T) {
	content := `
kv:
  mode: "bogus"
`
	path := writeConfig(t, content)

	_, err := config.NewHolder(path, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestHolderWatchFileMultipleChanges(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	for i := 1; i <= 3; i++ {
		newContent := `
database:
  dsn: "/tmp/db-` + fmt.Sprintf("%d", i) + `.db"
`
		if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
			t.Fatalf("write new config: %v", err)
		}
		time.Sleep(60 * time.Millisecond)
	}

	mu.Lock()
	if callCount < 1 {
		t.Errorf("expected at least 1 callback, got %d", callCount)
	}
	mu.Unlock()
}

// Helpers

func validConfig() string {
	return `
database:
  dsn: ":memory:"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	// Loading rejects a config without a 32-byte vault key; supply one
	// through the environment so the fixtures above need not repeat it.
	t.Setenv("APIGW_VAULT_MASTER_KEY_HEX", strings.Repeat("00", 32))
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
