package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]any
}

func newMemBackend(data map[string]any) *memBackend {
	if data == nil {
		data = map[string]any{}
	}
	return &memBackend{data: data}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, errors.New("not a string")
	}
	return s, true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (b *memBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error         { delete(b.data, key); return nil }

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		if s.legacyEnv != "" {
			t.Setenv(s.legacyEnv, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{err: errors.New("none")}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Server.Env != "development" {
		t.Errorf("Server.Env = %q, want development", cfg.Server.Env)
	}
	if got := cfg.Server.Origins(); len(got) != 1 || got[0] != "http://localhost:5173" {
		t.Errorf("Origins = %v", got)
	}
	if cfg.Repair.PollInterval != 2*time.Second {
		t.Errorf("Repair.PollInterval = %s, want 2s", cfg.Repair.PollInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("JWTSecret = %q, want empty", cfg.Auth.JWTSecret)
	}
	if err := cfg.RequireSecret(); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("RequireSecret = %v, want ErrMissingSecret", err)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(map[string]any{
		"server.port":            8080,
		"server.env":             "production",
		"server.allowed_origins": "https://a.example, https://b.example",
		"storage.data_dir":       "/tmp/querynest-test",
		"repair.poll_interval":   "500ms",
	})
	cfg, err := loadWith(b, mockKeychain{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Env != "production" {
		t.Errorf("Server.Env = %q", cfg.Server.Env)
	}
	if got := cfg.Server.Origins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("Origins = %v", got)
	}
	if cfg.Storage.DataDir != "/tmp/querynest-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Repair.PollInterval != 500*time.Millisecond {
		t.Errorf("Repair.PollInterval = %s", cfg.Repair.PollInterval)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERYNEST_SERVER_PORT", "9090")
	t.Setenv("QUERYNEST_JWT_SECRET", "env-secret")

	cfg, err := loadWith(newMemBackend(map[string]any{"server.port": 8080}), mockKeychain{value: "keychain-secret"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env-secret", cfg.Auth.JWTSecret)
	}
}

func TestLegacyEnvNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5000")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("JWT_SECRET", "legacy")

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.Server.Env != "production" || cfg.Auth.JWTSecret != "legacy" {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("QUERYNEST_SERVER_PORT", "6000")
	cfg, err = loadWith(newMemBackend(nil), mockKeychain{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("prefixed variable should win, Port = %d", cfg.Server.Port)
	}
}

func TestDotEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("QUERYNEST_LOG_LEVEL")
	t.Setenv("QUERYNEST_SERVER_PORT", "7100")

	path := filepath.Join(t.TempDir(), ".env")
	content := "JWT_SECRET=from-dotenv\nQUERYNEST_LOG_LEVEL=debug\nQUERYNEST_SERVER_PORT=7200\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{}, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("JWTSecret = %q, want from-dotenv", cfg.Auth.JWTSecret)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Server.Port != 7100 {
		t.Errorf(".env must not override the real environment, Port = %d", cfg.Server.Port)
	}
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(newMemBackend(nil), mockKeychain{}, filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{value: "keychain-secret"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.JWTSecret != "keychain-secret" {
		t.Errorf("JWTSecret = %q, want keychain-secret", cfg.Auth.JWTSecret)
	}
	if err := cfg.RequireSecret(); err != nil {
		t.Errorf("RequireSecret: %v", err)
	}
}

func TestInvalidEnvRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERYNEST_ENV", "staging")

	_, err := loadWith(newMemBackend(nil), mockKeychain{}, "")
	if err == nil || !strings.Contains(err.Error(), "server.env") {
		t.Fatalf("err = %v, want server.env validation error", err)
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend(nil)

	if err := setKeyIn(b, "server.port", "8000"); err != nil {
		t.Fatalf("setKeyIn port: %v", err)
	}
	if b.data["server.port"] != 8000 {
		t.Errorf("server.port = %v", b.data["server.port"])
	}
	if err := setKeyIn(b, "repair.poll_interval", "soon"); err == nil {
		t.Error("expected invalid duration error")
	}
	if err := setKeyIn(b, "auth.jwt_secret", "x"); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("setting a secret should fail, got %v", err)
	}
	if err := setKeyIn(b, "nope", "x"); err == nil {
		t.Error("expected unknown key error")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Auth.JWTSecret = "hidden"

	for _, k := range ShowAll(cfg) {
		if k.Key == "auth.jwt_secret" || k.Value == "hidden" {
			t.Errorf("secret leaked in ShowAll: %+v", k)
		}
	}
	if len(ValidKeys()) != len(ShowAll(cfg)) {
		t.Errorf("ValidKeys and ShowAll disagree")
	}
}
