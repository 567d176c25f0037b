package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"CHATFLOW_API_URL", "CHATFLOW_WS_URL", "CHATFLOW_TOKEN", "CHATFLOW_HTTP_TIMEOUT",
		"CHATFLOW_WS_PING_PERIOD", "CHATFLOW_WS_PONG_WAIT", "CHATFLOW_WS_SEND_BUFFER", "CHATFLOW_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:8000/ws", cfg.WebSocket.URL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())

	_, err := cfg.RequireToken()
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHATFLOW_API_URL", "https://chat.example.com/")
	t.Setenv("CHATFLOW_WS_URL", "wss://chat.example.com/ws/")
	t.Setenv("CHATFLOW_TOKEN", "abc")
	t.Setenv("CHATFLOW_WS_SEND_BUFFER", "8")
	t.Setenv("CHATFLOW_WS_PING_PERIOD", "5s")
	t.Setenv("CHATFLOW_WS_PONG_WAIT", "10s")

	cfg := Load()

	assert.Equal(t, "https://chat.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.WebSocket.URL)
	assert.Equal(t, 8, cfg.WebSocket.SendBuffer)
	require.NoError(t, cfg.Validate())

	token, err := cfg.RequireToken()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestValidateRejectsPingNotShorterThanPong(t *testing.T) {
	cfg := &Config{
		API: APIConfig{BaseURL: "http://x"},
		WebSocket: WebSocketConfig{
			URL:        "ws://x",
			PingPeriod: time.Minute,
			PongWait:   time.Minute,
			SendBuffer: 1,
		},
	}
	assert.Error(t, cfg.Validate())
}
