package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"findoc/internal/logger"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	// HTTP server
	ListenAddr string
	UploadDir  string
	OutputDir  string

	// LLM server (OpenAI-compatible, typically LM Studio or llama.cpp)
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMMaxRetries     int
	LLMParseTimeout   time.Duration
	LLMAnalyzeTimeout time.Duration

	// OCR
	OCREngine    string // tesseract or vision
	OCRLanguages []string

	// Google Cloud (only needed for the vision OCR engine)
	GoogleCredentials            string
	GoogleApplicationCredentials string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// OCR engine names accepted in OCR_ENGINE.
const (
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
)

func Load() (*Config, error) {
	config := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":5001"),
		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		OutputDir:         getEnv("OUTPUT_DIR", "./output"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:1234/v1"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "local-model"),
		LLMMaxRetries:     parseIntEnv("LLM_MAX_RETRIES", 3),
		LLMParseTimeout:   parseDurationEnv("LLM_PARSE_TIMEOUT", 300*time.Second),
		LLMAnalyzeTimeout: parseDurationEnv("LLM_ANALYZE_TIMEOUT", 360*time.Second),

		OCREngine:    getEnv("OCR_ENGINE", EngineTesseract),
		OCRLanguages: splitEnv("OCR_LANGUAGES", "eng"),

		GoogleCredentials:            getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.OCREngine != EngineTesseract && c.OCREngine != EngineVision {
		return fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", EngineTesseract, EngineVision, c.OCREngine)
	}
	if c.OCREngine == EngineVision && c.GoogleCredentials == "" && c.GoogleApplicationCredentials == "" {
		return fmt.Errorf("OCR_ENGINE=vision requires GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.LLMMaxRetries < 1 {
		return fmt.Errorf("LLM_MAX_RETRIES must be at least 1")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		// Plain integers are treated as seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func splitEnv(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
