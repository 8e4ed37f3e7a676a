package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AMQP_EXCHANGE", "")

	cfg := Load()

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "dev-secret", cfg.JWTSecret)
	assert.Equal(t, "booklend.events", cfg.AMQPExchange)
	assert.Equal(t, "chat.message_sent", cfg.RoutingKey)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.DebugEndpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "sekrit")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DEBUG_ENDPOINTS", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "sekrit", cfg.JWTSecret)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.DebugEndpoint)
}
