package lcas

import (
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/aweris/lcas/internal/hasher"
	"github.com/aweris/lcas/internal/remote"
)

// Supported digest algorithms.
const (
	AlgorithmSHA1   = hasher.SHA1
	AlgorithmSHA256 = hasher.SHA256
	AlgorithmBLAKE3 = hasher.BLAKE3
)

// Authenticator provides credentials for remote registries.
type Authenticator = remote.Authenticator

// OpenOptions configures a Store.
type OpenOptions struct {
	CacheDir         string
	Algorithm        string
	Concurrency      int
	ManifestCache    int
	CompressionLevel int
	Logger           *zap.Logger
	Auth             Authenticator
}

// OpenOption is a functional option for configuring Open.
type OpenOption func(*OpenOptions)

func defaultOptions() *OpenOptions {
	return &OpenOptions{
		CacheDir:         defaultCacheDir(),
		Algorithm:        hasher.DefaultAlgorithm,
		Concurrency:      runtime.NumCPU(),
		ManifestCache:    1024,
		CompressionLevel: 2,
		Logger:           zap.NewNop(),
	}
}

// WithCacheDir sets the cache root.
func WithCacheDir(dir string) OpenOption {
	return func(o *OpenOptions) { o.CacheDir = dir }
}

// WithAlgorithm selects the digest algorithm (sha1, sha256 or blake3).
// Stores sharing a cache root must agree on it.
func WithAlgorithm(name string) OpenOption {
	return func(o *OpenOptions) { o.Algorithm = name }
}

// WithConcurrency bounds parallel work per directory level and for registry
// transfers.
func WithConcurrency(n int) OpenOption {
	return func(o *OpenOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithManifestCache sets how many decoded directory manifests are kept in
// memory. Zero disables the cache.
func WithManifestCache(n int) OpenOption {
	return func(o *OpenOptions) {
		if n >= 0 {
			o.ManifestCache = n
		}
	}
}

// WithCompressionLevel sets the zstd level (1 fastest .. 3 best) for
// manifests and registry layers.
func WithCompressionLevel(level int) OpenOption {
	return func(o *OpenOptions) { o.CompressionLevel = level }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) OpenOption {
	return func(o *OpenOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithAuth sets custom registry authentication.
func WithAuth(auth Authenticator) OpenOption {
	return func(o *OpenOptions) { o.Auth = auth }
}

func defaultCacheDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "lcas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "lcas")
	}
	return ".lcas"
}
