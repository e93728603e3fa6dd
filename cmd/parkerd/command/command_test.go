package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-finder-backend/config"
	"parking-finder-backend/internal/mw"
)

func TestFixConfigPath(t *testing.T) {
	testCases := []struct {
		name     string
		flag     string
		env      string
		expected string
	}{
		{name: "flag wins", flag: "/etc/parker.yaml", env: "/tmp/env.yaml", expected: "/etc/parker.yaml"},
		{name: "env when no flag", env: "/tmp/env.yaml", expected: "/tmp/env.yaml"},
		{name: "default", expected: defaultConfigPath},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", tc.env)
			cfgPath = tc.flag
			t.Cleanup(func() { cfgPath = "" })

			fixConfigPath()
			assert.Equal(t, tc.expected, cfgPath)
		})
	}
}

func TestNewResponseCache(t *testing.T) {
	c, err := newResponseCache(context.Background(), config.ServerConfig{CacheBackend: "memory", CacheTTLSeconds: 30})
	require.NoError(t, err)
	assert.IsType(t, &mw.MemoryCache{}, c)

	c.Set(context.Background(), "k", mw.CachedResponse{Status: 200}, time.Minute)
	_, found := c.Get(context.Background(), "k")
	assert.True(t, found)

	_, err = newResponseCache(context.Background(), config.ServerConfig{CacheBackend: "memcached"})
	assert.ErrorContains(t, err, "unsupported cache backend")
}
