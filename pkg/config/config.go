// Package config loads daemon configuration from environment
// variables and the wallet settings file.
package config

import "os"

// Config holds daemon configuration.
type Config struct {
	ListenAddr   string
	LogLevel     string
	DatabaseURL  string // Postgres URL; empty selects the SQLite file
	SQLitePath   string
	SettingsFile string
	OTLPEndpoint string
	OTLPEnabled  bool
}

// Load reads configuration from environment variables with local
// defaults.
func Load() *Config {
	listen := os.Getenv("AEGIS_LISTEN_ADDR")
	if listen == "" {
		listen = "127.0.0.1:7865"
	}

	logLevel := os.Getenv("AEGIS_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	sqlitePath := os.Getenv("AEGIS_SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "aegis.db"
	}

	settings := os.Getenv("AEGIS_SETTINGS_FILE")
	if settings == "" {
		settings = "settings.yaml"
	}

	otlp := os.Getenv("AEGIS_OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Config{
		ListenAddr:   listen,
		LogLevel:     logLevel,
		DatabaseURL:  os.Getenv("AEGIS_DATABASE_URL"),
		SQLitePath:   sqlitePath,
		SettingsFile: settings,
		OTLPEndpoint: otlp,
		OTLPEnabled:  os.Getenv("AEGIS_OTLP_ENABLED") == "true",
	}
}
