package config

import (
	"os"
	"strconv"

	"errbar/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Ledger   LedgerConfig
	Output   OutputConfig
	Server   ServerConfig
	Analysis AnalysisConfig
}

// LedgerConfig holds run-history storage settings
type LedgerConfig struct {
	Driver   string
	DSN      string
	Disabled bool
}

// OutputConfig holds result file settings
type OutputConfig struct {
	ResultsDir string
	BaseName   string
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port string
}

// AnalysisConfig holds conversion pipeline settings
type AnalysisConfig struct {
	ConfidenceLevel float64
	MaxWorkers      int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Ledger:   loadLedgerConfig(),
		Output:   loadOutputConfig(),
		Server:   loadServerConfig(),
		Analysis: loadAnalysisConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Driver:   getEnvOrDefault("LEDGER_DRIVER", "sqlite3"),
		DSN:      getEnvOrDefault("LEDGER_DSN", "errbar.db"),
		Disabled: getEnvBoolOrDefault("LEDGER_DISABLED", false),
	}
}

func loadOutputConfig() OutputConfig {
	return OutputConfig{
		ResultsDir: getEnvOrDefault("RESULTS_DIR", "results"),
		BaseName:   getEnvOrDefault("OUTPUT_NAME", "bar_results"),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port: getEnvOrDefault("PORT", "8080"),
	}
}

func loadAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		ConfidenceLevel: getEnvFloatOrDefault("CONFIDENCE_LEVEL", 0.95),
		MaxWorkers:      getEnvIntOrDefault("MAX_WORKERS", 4),
	}
}

func validateConfig(config *Config) error {
	switch config.Ledger.Driver {
	case "sqlite3", "postgres":
	default:
		return errors.ConfigInvalid("LEDGER_DRIVER must be sqlite3 or postgres")
	}
	if !config.Ledger.Disabled && config.Ledger.DSN == "" {
		return errors.ConfigInvalid("LEDGER_DSN is required when the ledger is enabled")
	}
	if config.Analysis.ConfidenceLevel <= 0 || config.Analysis.ConfidenceLevel >= 1 {
		return errors.ConfigInvalid("CONFIDENCE_LEVEL must be between 0 and 1")
	}
	if config.Analysis.MaxWorkers < 1 {
		return errors.ConfigInvalid("MAX_WORKERS must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
