package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chatflow/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	API       APIConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Log       LogConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type WebSocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	SendBuffer       int
}

type AuthConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded: %v", err)
	}

	return &Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnvOrDefault("CHATFLOW_API_URL", "http://localhost:8000"), "/"),
			Timeout: getDurationOrDefault("CHATFLOW_HTTP_TIMEOUT", "15s"),
		},
		WebSocket: WebSocketConfig{
			URL:              strings.TrimRight(getEnvOrDefault("CHATFLOW_WS_URL", "ws://localhost:8000/ws"), "/"),
			HandshakeTimeout: getDurationOrDefault("CHATFLOW_WS_HANDSHAKE_TIMEOUT", "10s"),
			WriteWait:        getDurationOrDefault("CHATFLOW_WS_WRITE_WAIT", "10s"),
			PongWait:         getDurationOrDefault("CHATFLOW_WS_PONG_WAIT", "60s"),
			PingPeriod:       getDurationOrDefault("CHATFLOW_WS_PING_PERIOD", "54s"),
			SendBuffer:       getIntOrDefault("CHATFLOW_WS_SEND_BUFFER", 256),
		},
		Auth: AuthConfig{
			Token: os.Getenv("CHATFLOW_TOKEN"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("CHATFLOW_LOG_LEVEL", "info"),
		},
	}
}

// Validate checks the relations between values that the env helpers cannot
// check one at a time.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.WebSocket.URL == "" {
		return fmt.Errorf("websocket url is required")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("ping period %s must be shorter than pong wait %s", c.WebSocket.PingPeriod, c.WebSocket.PongWait)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive, got %d", c.WebSocket.SendBuffer)
	}
	return nil
}

// RequireToken returns the bearer token or an error telling the user how
// to obtain one.
func (c *Config) RequireToken() (string, error) {
	if c.Auth.Token == "" {
		return "", fmt.Errorf("no token: run `chatflow login` and export CHATFLOW_TOKEN or pass --token")
	}
	return c.Auth.Token, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		logger.Fatal("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		logger.Fatal("Invalid integer for %s: %v", key, err)
	}
	return intValue
}
