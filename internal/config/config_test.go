package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("COMPLETION_DELAY", "")
	t.Setenv("CHANGE_FEED", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, FeedKafka, cfg.ChangeFeed)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, LogStorePostgres, cfg.LogStore)
	assert.Equal(t, 10*time.Second, cfg.CompletionDelay)
	assert.Equal(t, 5*time.Second, cfg.StepTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.True(t, cfg.RunMigrations)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("COMPLETION_DELAY", "250ms")
	t.Setenv("MAX_ATTEMPTS", "9")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("CHANGE_FEED", "RabbitMQ")
	t.Setenv("POLL_INTERVAL", "not-a-duration")

	cfg := Load()

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.CompletionDelay)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, FeedRabbitMQ, cfg.ChangeFeed)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestConfig_ValidateAPI(t *testing.T) {
	cfg := Load()

	cfg.JWTSecret = ""
	assert.ErrorContains(t, cfg.ValidateAPI(), "JWT_SECRET")

	cfg.JWTSecret = "short"
	assert.ErrorContains(t, cfg.ValidateAPI(), "32 characters")

	cfg.JWTSecret = strings.Repeat("x", 32)
	cfg.ChangeFeed = FeedNone
	cfg.LogStore = LogStorePostgres
	require.NoError(t, cfg.ValidateAPI())

	cfg.ChangeFeed = "nats"
	assert.ErrorContains(t, cfg.ValidateAPI(), "CHANGE_FEED")
}

func TestConfig_ValidateWorker(t *testing.T) {
	cfg := Load()
	cfg.ChangeFeed = FeedNone
	cfg.LogStore = LogStoreDynamoDB
	require.NoError(t, cfg.ValidateWorker())

	cfg.MaxAttempts = 0
	assert.ErrorContains(t, cfg.ValidateWorker(), "MAX_ATTEMPTS")
}

func TestConfig_ValidateIssuer(t *testing.T) {
	cfg := Load()
	cfg.JWTSecret = strings.Repeat("x", 32)
	require.NoError(t, cfg.ValidateIssuer())

	cfg.TokenExpiry = 0
	assert.ErrorContains(t, cfg.ValidateIssuer(), "TOKEN_EXPIRY")

	cfg.JWTSecret = ""
	assert.ErrorContains(t, cfg.ValidateIssuer(), "JWT_SECRET")
}
