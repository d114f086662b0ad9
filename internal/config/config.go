package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Input  InputConfig
	OCR    OCRConfig
	Parse  ParseConfig
	Output OutputConfig
	Server ServerConfig
	Log    LogConfig
}

// InputConfig says where statements are discovered.
type InputConfig struct {
	DataDir string
	Glob    string
}

type OCRConfig struct {
	DPI      int
	Language string
	Workers  int
}

type ParseConfig struct {
	ResolveDates bool
}

type OutputConfig struct {
	ReportsDir  string
	IncludeYear bool
}

type ServerConfig struct {
	Port        int
	MaxUploadMB int
}

type LogConfig struct {
	Level string
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory if there is one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Input: InputConfig{
			DataDir: getEnv("DATA_DIR", "data"),
			Glob:    getEnv("STATEMENT_GLOB", "Account_statement_*.pdf"),
		},
		OCR: OCRConfig{
			DPI:      getEnvAsInt("OCR_DPI", 300),
			Language: getEnv("OCR_LANGUAGE", "eng"),
			Workers:  getEnvAsInt("OCR_WORKERS", 1),
		},
		Parse: ParseConfig{
			ResolveDates: getEnvAsBool("RESOLVE_DATES", true),
		},
		Output: OutputConfig{
			ReportsDir:  getEnv("REPORTS_DIR", "reports"),
			IncludeYear: getEnvAsBool("INCLUDE_YEAR", true),
		},
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			MaxUploadMB: getEnvAsInt("MAX_UPLOAD_MB", 32),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.OCR.DPI <= 0 {
		return fmt.Errorf("OCR_DPI must be positive, got %d", c.OCR.DPI)
	}
	if c.OCR.Workers <= 0 {
		return fmt.Errorf("OCR_WORKERS must be positive, got %d", c.OCR.Workers)
	}
	if strings.TrimSpace(c.OCR.Language) == "" {
		return errors.New("OCR_LANGUAGE is required")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Server.MaxUploadMB)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
