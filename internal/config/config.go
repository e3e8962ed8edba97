package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	Repair  RepairConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
	// Env is "production" or "development" and selects cookie attributes.
	Env            string
	AllowedOrigins string
}

type StorageConfig struct {
	DataDir string
}

type AuthConfig struct {
	JWTSecret string
}

type RepairConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level string
}

// Origins splits AllowedOrigins on commas, dropping blanks.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

const (
	keychainService = "querynest"
	keychainAccount = "jwt_secret"
)

// ErrMissingSecret is returned by RequireSecret when no signing secret was found.
var ErrMissingSecret = errors.New("missing required config: JWT signing secret")

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           7000,
			Env:            "development",
			AllowedOrigins: "http://localhost:5173",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Repair: RepairConfig{
			PollInterval: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.querynest.server) and the
// signing secret falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/querynest/config.json
// and the secret falls back to $XDG_DATA_HOME/querynest/secrets.json.
//
// Variables already present in the environment win over .env entries, and
// QUERYNEST_* variables override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{}, ".env")
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)

	if cfg.Auth.JWTSecret == "" {
		if key, err := kc.Get(keychainService, keychainAccount); err == nil && key != "" {
			cfg.Auth.JWTSecret = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have a closed set of options.
func (c Config) Validate() error {
	switch c.Server.Env {
	case "production", "development":
	default:
		return fmt.Errorf("invalid server.env %q: want production or development", c.Server.Env)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Repair.PollInterval <= 0 {
		return fmt.Errorf("repair.poll_interval must be positive, got %s", c.Repair.PollInterval)
	}
	return nil
}

// RequireSecret reports ErrMissingSecret with a hint on where to put it.
// Commands that sign or verify credentials call it; read-only commands don't.
func (c Config) RequireSecret() error {
	if c.Auth.JWTSecret != "" {
		return nil
	}
	return fmt.Errorf("%w. Set it via environment variable QUERYNEST_JWT_SECRET (or JWT_SECRET in .env)%s",
		ErrMissingSecret, secretHint())
}

// keychainReader reads the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainLookup(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
