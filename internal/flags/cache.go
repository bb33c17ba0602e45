package flags

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Vasu1712/scenyx-chat/internal/cache"
)

// CacheFlags holds caching configuration information.
type CacheFlags struct {
	ValkeyURL string
}

func NewCacheFlags() *CacheFlags {
	return &CacheFlags{}
}

func (f *CacheFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ValkeyURL,
		"valkey-url",
		os.Getenv("VALKEY_URL"),
		"Valkey URL for caching membership lookups")
}

// GetCacheClient returns the Valkey cache, or an in-process cache when no
// Valkey URL is configured. The in-process cache is only coherent for a
// single server.
func (f *CacheFlags) GetCacheClient() (cache.Cache, error) {
	if f.ValkeyURL != "" {
		return cache.NewValkey(f.ValkeyURL)
	}

	log.Info("no valkey url configured, caching membership in process")
	return cache.NewMemory(), nil
}
