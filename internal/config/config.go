package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// TaskConfig holds task lifecycle settings.
type TaskConfig struct {
	// TTL is the expiry window applied to stored task records on every
	// write; abandoned tasks self-expire after this long.
	TTL time.Duration
	// SweepInterval is how often expired records are purged.
	SweepInterval time.Duration
}

// ProviderConfig holds outbound OTP request settings.
type ProviderConfig struct {
	CountryCode    string
	RequestTimeout time.Duration
	RatePerSecond  float64
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server   ServerConfig
	Task     TaskConfig
	Provider ProviderConfig
	Bark     BarkConfig

	StateDir      string
	LogLevel      string
	Mode          string // http, mcp or both
	ShutdownGrace time.Duration
}

const (
	defaultAddr           = "0.0.0.0:5000"
	defaultLogLevel       = "info"
	defaultMode           = "http"
	defaultShutdownGrace  = 5 * time.Second
	defaultTaskTTL        = 24 * time.Hour
	defaultSweepInterval  = time.Minute
	defaultCountryCode    = "+91"
	defaultRequestTimeout = 30 * time.Second
	defaultRatePerSecond  = 5.0
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > environment variables > .env file > defaults.
func Parse() (*Config, error) {
	// Load .env if present: current directory first, then the user config
	// directory. The file is optional.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "otptaskd", ".env"))
	}
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("OTPD_ADDR", defaultAddr),
			AuthToken: getEnvString("OTPD_AUTH_TOKEN", ""),
		},
		Task: TaskConfig{
			TTL:           getEnvDuration("OTPD_TASK_TTL", defaultTaskTTL),
			SweepInterval: getEnvDuration("OTPD_SWEEP_INTERVAL", defaultSweepInterval),
		},
		Provider: ProviderConfig{
			CountryCode:    getEnvString("OTPD_COUNTRY_CODE", defaultCountryCode),
			RequestTimeout: getEnvDuration("OTPD_REQUEST_TIMEOUT", defaultRequestTimeout),
			RatePerSecond:  getEnvFloat("OTPD_RATE_PER_SECOND", defaultRatePerSecond),
		},
		Bark: BarkConfig{
			URL:     getEnvString("OTPD_BARK_URL", ""),
			Enabled: getEnvBool("OTPD_BARK_ENABLED", false),
		},
		StateDir:      getEnvString("OTPD_STATE_DIR", ""),
		LogLevel:      getEnvString("OTPD_LOG_LEVEL", defaultLogLevel),
		Mode:          getEnvString("OTPD_MODE", defaultMode),
		ShutdownGrace: getEnvDuration("OTPD_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	var addr, logLevel, stateDir, mode string
	var shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the task database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mode, "mode", "", "Run mode: http, mcp or both")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if shutdownGrace > 0 {
		cfg.ShutdownGrace = shutdownGrace
	}

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q: must be http, mcp or both", cfg.Mode)
	}
	if cfg.Task.TTL <= 0 {
		cfg.Task.TTL = defaultTaskTTL
	}
	if cfg.Task.SweepInterval <= 0 {
		cfg.Task.SweepInterval = defaultSweepInterval
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "otptaskd")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
