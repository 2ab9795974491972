package lcas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/aweris/lcas/internal/flight"
	"github.com/aweris/lcas/internal/hasher"
	"github.com/aweris/lcas/internal/store"
	"github.com/aweris/lcas/internal/tree"
)

// Store is a content-addressable store that materializes content through
// filesystem links.
//
// A Store is safe for concurrent use. It remembers, for its whole lifetime,
// which hashes it has already made sure exist on disk; at most one physical
// ingestion runs per hash.
type Store struct {
	objects store.Store
	local   *store.LocalStore
	hasher  *hasher.Hasher
	flights flight.Table
	log     *zap.Logger
	opts    *OpenOptions

	filesIngested atomic.Int64
	dirsIngested  atomic.Int64
	realized      atomic.Int64
}

// Stats reports what a Store has done since it was opened.
type Stats struct {
	// FilesIngested counts file objects this store physically wrote.
	FilesIngested int64
	// DirectoriesIngested counts directory objects this store built.
	DirectoriesIngested int64
	// Realized counts successful Realize calls.
	Realized int64
	// Resolved counts hashes known to be present.
	Resolved int
}

// Open creates a store rooted at the configured cache directory. The
// directory itself is created lazily, on the first write.
func Open(opts ...OpenOption) (*Store, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	h, err := hasher.New(options.Algorithm, hasher.WithConcurrency(options.Concurrency))
	if err != nil {
		return nil, err
	}

	local, err := store.NewLocalStore(
		expandPath(options.CacheDir),
		options.ManifestCache,
		options.CompressionLevel,
		options.CompressionLevel > 0,
	)
	if err != nil {
		return nil, err
	}

	s := &Store{
		objects: local,
		local:   local,
		hasher:  h,
		log:     options.Logger.Named("lcas"),
		opts:    options,
	}
	s.log.Debug("store opened",
		zap.String("root", local.Root()),
		zap.String("algorithm", h.Algorithm()),
	)
	return s, nil
}

// Root returns the absolute cache root.
func (s *Store) Root() string { return s.objects.Root() }

// Algorithm returns the digest algorithm name.
func (s *Store) Algorithm() string { return s.hasher.Algorithm() }

// Close releases resources held by the store. Cached objects stay on disk.
func (s *Store) Close() error {
	return s.local.Close()
}

func (s *Store) Stats() Stats {
	return Stats{
		FilesIngested:       s.filesIngested.Load(),
		DirectoriesIngested: s.dirsIngested.Load(),
		Realized:            s.realized.Load(),
		Resolved:            s.flights.Len(),
	}
}

// Has reports whether an object for hash is present in the cache.
func (s *Store) Has(hash Hash) bool {
	return s.objects.Has(hash)
}

// Path returns the cache location of hash. The object need not exist.
func (s *Store) Path(hash Hash) (string, error) {
	p, err := s.objects.Path(hash)
	return p, classify(err)
}

// HashOf returns the digest of the file at path.
func (s *Store) HashOf(path string) (Hash, error) {
	h, err := s.hasher.HashOf(path)
	return h, classify(err)
}

// HashDir returns the sorted, recursively hashed listing of dir.
func (s *Store) HashDir(ctx context.Context, dir string) (Entries, error) {
	entries, err := s.hasher.HashDir(ctx, dir)
	return entries, classify(err)
}

// HashEntries returns the digest identifying a directory with the given
// children.
func (s *Store) HashEntries(entries Entries) Hash {
	return s.hasher.HashEntries(entries)
}

// Entries returns the full listing of a directory previously ingested by
// EnterDirectory or EnterVirtualDirectory.
func (s *Store) Entries(ctx context.Context, hash Hash) (Entries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children, err := s.objects.ReadManifest(hash)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, store.ErrInvalidHash) {
			return nil, fmt.Errorf("%w: no manifest for %s", ErrNotFound, hash)
		}
		return nil, classify(err)
	}

	out := make(Entries, len(children))
	for i, c := range children {
		if !c.IsDirectory() {
			out[i] = c
			continue
		}
		files, err := s.Entries(ctx, c.Hash)
		if err != nil {
			return nil, err
		}
		out[i] = tree.Directory(c.Name, c.Hash, files)
	}
	return out, nil
}

// Filter returns a copy of entries holding only the entries keep accepts,
// with every directory hash recomputed bottom-up. Paths handed to keep are
// slash-separated and relative to the list; rejecting a directory drops its
// whole subtree. The result can be passed to RealizeVirtualDirectory.
func (s *Store) Filter(entries Entries, keep func(path string, e Entry) bool) Entries {
	return s.filter("", entries, keep)
}

// Rehash recomputes every directory hash in entries bottom-up.
func (s *Store) Rehash(entries Entries) Entries {
	return s.filter("", entries, func(string, Entry) bool { return true })
}

func (s *Store) filter(prefix string, entries Entries, keep func(string, Entry) bool) Entries {
	out := make(Entries, 0, len(entries))
	for _, e := range entries {
		p := path.Join(prefix, e.Name)
		if !keep(p, e) {
			continue
		}
		if e.IsDirectory() {
			files := s.filter(p, e.Files, keep)
			e = tree.Directory(e.Name, s.hasher.HashEntries(files), files)
		}
		out = append(out, e)
	}
	return out
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
