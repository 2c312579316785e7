package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "")
	t.Setenv("PORT", "")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "mongo", cfg.Database.Type)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.URI())
	assert.Equal(t, "tavernnet", cfg.Database.MongoDB)
	assert.Equal(t, 5, cfg.Propagation.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Propagation.InitialBackoff)
	assert.False(t, cfg.Debug)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://tavern@localhost/tavern?sslmode=disable")
	t.Setenv("PORT", "9090")
	t.Setenv("PROPAGATION_MAX_ATTEMPTS", "2")
	t.Setenv("PROPAGATION_INITIAL_BACKOFF", "10ms")
	t.Setenv("DEBUG", "true")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://tavern@localhost/tavern?sslmode=disable", cfg.Database.URI())
	assert.Equal(t, 2, cfg.Propagation.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Propagation.InitialBackoff)
	assert.True(t, cfg.Debug)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"DB_TYPE": "sqlite"}},
		{"postgres without url", map[string]string{"DB_TYPE": "postgres", "DATABASE_URL": ""}},
		{"no attempts", map[string]string{"DB_TYPE": "memory", "PROPAGATION_MAX_ATTEMPTS": "0"}},
		{"inverted backoff", map[string]string{
			"DB_TYPE":                     "memory",
			"PROPAGATION_INITIAL_BACKOFF": "2s",
			"PROPAGATION_MAX_BACKOFF":     "1s",
		}},
		{"bad port", map[string]string{"PORT": "http"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
