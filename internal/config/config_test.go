package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 3, cfg.UOW.MaxAttempts)
	assert.Equal(t, "@every 1m", cfg.Waitlist.SweepSpec)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Len(t, cfg.Rooms, 3)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_MODE", "prod")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "30m")
	t.Setenv("STORE", "postgres")
	t.Setenv("UOW_MAX_ATTEMPTS", "7")
	t.Setenv("TIMEZONE", "Europe/Paris")
	t.Setenv("ROOMS", "6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:Main Hall:40")
	t.Setenv("WAITLIST_SWEEP_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 7, cfg.UOW.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.JWT.TTL)
	assert.Equal(t, "Europe/Paris", cfg.Location.String())
	assert.Equal(t, 4, cfg.Waitlist.Concurrency, "unparsable ints fall back to the default")
	require.Len(t, cfg.Rooms, 1)
	assert.Equal(t, "Main Hall", cfg.Rooms[0].Name())
	assert.Equal(t, 40, cfg.Rooms[0].Capacity())
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "app mode", env: map[string]string{"APP_MODE": "staging"}},
		{name: "store", env: map[string]string{"STORE": "redis"}},
		{name: "prod without secret", env: map[string]string{"APP_MODE": "prod"}},
		{name: "ttl", env: map[string]string{"JWT_TTL": "forever"}},
		{name: "timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{name: "rooms", env: map[string]string{"ROOMS": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseRooms(t *testing.T) {
	rooms, err := ParseRooms(" 6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:A:10 , 6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0002:B:5,")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "B", rooms[1].Name())

	for _, raw := range []string{
		"",
		"6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:A",
		"bad-id:A:10",
		"6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:A:ten",
		"6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:A:0",
		"6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:A:10,6f1c1b2e-1d7a-4d43-8d6b-0c3a9a0f0001:B:10",
	} {
		_, err := ParseRooms(raw)
		assert.Error(t, err, raw)
	}
}
