package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tabwarden daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Control API
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   string

	// Classifier service
	ClassifierURL string
	HTTPTimeoutMS int

	// Page script evaluation
	EvalTimeoutMS int

	LogLevel string
	LogFile  string

	// VisitDir holds the local visit journal; empty disables it.
	VisitDir     string
	IgnoreConfig string

	LaunchBrowser     bool
	BrowserProfileDir string

	// NtfyEndpoint receives a message per closed tab; empty disables it.
	NtfyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:          getEnvOrDefault("TABWARDEN_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback:  getEnvBoolOrDefault("TABWARDEN_PORT_AUTO_FALLBACK", true),
		PortCandidates:    getEnvOrDefault("TABWARDEN_PORT_CANDIDATES", ""),
		ClassifierURL:     strings.TrimRight(getEnvOrDefault("TABWARDEN_CLASSIFIER_URL", "http://127.0.0.1:8000"), "/"),
		HTTPTimeoutMS:     getEnvIntOrDefault("TABWARDEN_HTTP_TIMEOUT_MS", 10000),
		EvalTimeoutMS:     getEnvIntOrDefault("TABWARDEN_EVAL_TIMEOUT_MS", 5000),
		LogLevel:          strings.ToLower(getEnvOrDefault("TABWARDEN_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("TABWARDEN_LOG_FILE", "logs/tabwarden.log"),
		VisitDir:          getEnvAllowEmpty("TABWARDEN_VISIT_DIR", "./visits"),
		IgnoreConfig:      getEnvOrDefault("TABWARDEN_IGNORE_CONFIG", "./config/ignore.yaml"),
		LaunchBrowser:     getEnvBoolOrDefault("TABWARDEN_LAUNCH_BROWSER", false),
		BrowserProfileDir: getEnvOrDefault("TABWARDEN_BROWSER_PROFILE_DIR", ""),
		NtfyEndpoint:      getEnvOrDefault("TABWARDEN_NTFY_ENDPOINT", ""),
	}
	if cfg.HTTPTimeoutMS < 1000 {
		cfg.HTTPTimeoutMS = 1000
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}

	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the host client and chromedp.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAllowEmpty distinguishes an explicitly empty variable from an unset one.
func getEnvAllowEmpty(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
