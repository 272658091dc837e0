// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/geochat/internal/mapview"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	GraphQLHTTPURL  string
	GraphQLWSURL    string
	SpatialAPIURL   string
	AuthURL         string
	AccessToken     string // Optional seed credential; takes precedence over the stored one.
	RequestTimeout  time.Duration
	HistoryTTL      time.Duration
	Map             MapConfig
	ConversationLog ConversationLogConfig
}

// MapConfig describes the map widget the view host drives.
type MapConfig struct {
	AccessToken string // Empty disables map initialization.
	Style       string
	CenterLon   float64
	CenterLat   float64
	Zoom        float64
	MinZoom     float64
}

// Options converts the map settings into widget options.
func (m MapConfig) Options() mapview.Options {
	return mapview.Options{
		AccessToken: m.AccessToken,
		Style:       m.Style,
		CenterLon:   m.CenterLon,
		CenterLat:   m.CenterLat,
		Zoom:        m.Zoom,
		MinZoom:     m.MinZoom,
	}
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/geochat.db"),
		GraphQLHTTPURL: getEnv("GRAPHQL_HTTP_URL", "http://localhost:8080/v1/graphql"),
		GraphQLWSURL:   getEnv("GRAPHQL_WS_URL", "ws://localhost:8080/v1/graphql"),
		SpatialAPIURL:  getEnv("SPATIAL_API_URL", "http://localhost:8000/api"),
		AuthURL:        getEnv("AUTH_URL", "/login"),
		AccessToken:    getEnv("ACCESS_TOKEN", ""),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		HistoryTTL:     getEnvDuration("HISTORY_TTL", 30*24*time.Hour),
		Map: MapConfig{
			AccessToken: getEnv("MAPBOX_ACCESS_TOKEN", ""),
			Style:       getEnv("MAP_STYLE", "mapbox://styles/mapbox/satellite-v9"),
			CenterLon:   getEnvFloat("MAP_CENTER_LON", 115.8142283),
			CenterLat:   getEnvFloat("MAP_CENTER_LAT", -31.9810844),
			Zoom:        getEnvFloat("MAP_ZOOM", 10),
			MinZoom:     getEnvFloat("MAP_MIN_ZOOM", 4),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GraphQLHTTPURL == "" {
		return fmt.Errorf("GRAPHQL_HTTP_URL cannot be empty")
	}
	if !strings.HasPrefix(c.GraphQLWSURL, "ws://") && !strings.HasPrefix(c.GraphQLWSURL, "wss://") {
		return fmt.Errorf("GRAPHQL_WS_URL must use ws:// or wss://")
	}
	if c.SpatialAPIURL == "" {
		return fmt.Errorf("SPATIAL_API_URL cannot be empty")
	}
	if c.AuthURL == "" {
		return fmt.Errorf("AUTH_URL cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
