package flags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-chat/internal/cache"
)

func TestGetConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
allowedOrigins: ["http://127.0.0.1:5173"]
uploads:
  maxBytes: 1048576
  allowedTypes: ["image/", "application/pdf"]
rateLimit:
  eventsPerSecond: 5
  burst: 10
sendBuffer: 64
messages:
  defaultPageSize: 30
  maxPageSize: 100
`), 0o600))

	f := NewConfigFlags()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := f.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://127.0.0.1:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1048576), cfg.Uploads.MaxBytes)
	assert.Equal(t, []string{"image/", "application/pdf"}, cfg.Uploads.AllowedTypes)
	assert.Equal(t, 5.0, cfg.RateLimit.EventsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 64, cfg.SendBuffer)
	assert.Equal(t, 100, cfg.Messages.Max)
}

func TestGetConfigWithoutPath(t *testing.T) {
	cfg, err := (&ConfigFlags{}).GetConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.AllowedOrigins)

	_, err = (&ConfigFlags{Path: "/does/not/exist.yaml"}).GetConfig()
	assert.Error(t, err)
}

func TestServerFlags(t *testing.T) {
	f := NewServerFlags()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--listen", ":9000", "--allowed-origins", "http://a.test,http://b.test"}))
	assert.Equal(t, ":9000", f.ListenAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, f.AllowedOrigins)
}

func TestAuthFlagsRequireSecret(t *testing.T) {
	_, err := (&AuthFlags{}).GetResolver()
	assert.Error(t, err)

	r, err := (&AuthFlags{JWTSecret: "s"}).GetResolver()
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestCacheFlagsFallBackToMemory(t *testing.T) {
	c, err := (&CacheFlags{}).GetCacheClient()
	require.NoError(t, err)
	assert.IsType(t, &cache.Memory{}, c)

	_, err = (&CacheFlags{ValkeyURL: "://not a url"}).GetCacheClient()
	assert.Error(t, err)
}
