// Package hasher computes content digests of files, byte streams and
// directory trees.
//
// File digests cover the raw bytes only. A directory digest covers the names
// and digests of its immediate children (see HashEntries); deeper content is
// captured transitively through the child digests.
package hasher

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/lcas/internal/tree"
)

// ErrUnsupportedType is returned for directory children that are neither
// regular files nor directories (sockets, devices, fifos).
var ErrUnsupportedType = errors.New("hasher: unsupported file type")

// Hasher computes digests with a fixed algorithm.
type Hasher struct {
	algorithm   string
	newHash     func() hash.Hash
	concurrency int
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithConcurrency bounds how many siblings of one directory are hashed in
// parallel.
func WithConcurrency(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.concurrency = n
		}
	}
}

// New returns a Hasher for the named algorithm. An empty name selects
// DefaultAlgorithm.
func New(algorithm string, opts ...Option) (*Hasher, error) {
	fn, err := lookup(algorithm)
	if err != nil {
		return nil, err
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	h := &Hasher{
		algorithm:   algorithm,
		newHash:     fn,
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Algorithm returns the configured algorithm name.
func (h *Hasher) Algorithm() string { return h.algorithm }

// Digest is a running digest. It is an io.Writer so it can sit behind an
// io.TeeReader or io.MultiWriter as a pass-through stage.
type Digest struct {
	h hash.Hash
}

// NewDigest starts an empty digest.
func (h *Hasher) NewDigest() *Digest {
	return &Digest{h: h.newHash()}
}

func (d *Digest) Write(p []byte) (int, error) { return d.h.Write(p) }

// Sum returns the lowercase hex digest of everything written so far.
func (d *Digest) Sum() tree.Hash {
	return hex.EncodeToString(d.h.Sum(nil))
}

// HashReader digests r until EOF.
func (h *Hasher) HashReader(r io.Reader) (tree.Hash, error) {
	d := h.NewDigest()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return d.Sum(), nil
}

// HashOf streams the file at path through the digest. A missing path yields
// an error matching fs.ErrNotExist.
func (h *Hasher) HashOf(path string) (tree.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	sum, err := h.HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}

// canonicalEntry is the reduced form of an entry used for hashing. Nested
// files are dropped; the child's own hash already covers them.
type canonicalEntry struct {
	Name string    `json:"name"`
	Hash tree.Hash `json:"hash"`
}

// Canonicalize returns the serialization HashEntries digests: a compact JSON
// array of {"name","hash"} objects in input order.
func Canonicalize(entries tree.Entries) []byte {
	reduced := make([]canonicalEntry, 0, len(entries))
	for _, e := range entries {
		reduced = append(reduced, canonicalEntry{Name: e.Name, Hash: e.Hash})
	}
	// A slice of plain string structs always marshals.
	data, _ := json.Marshal(reduced)
	return data
}

// HashEntries digests the canonical serialization of entries. It is a pure
// function of the ordered input.
func (h *Hasher) HashEntries(entries tree.Entries) tree.Hash {
	d := h.NewDigest()
	d.Write(Canonicalize(entries))
	return d.Sum()
}

// SortNames orders directory child names ascending. Directory digests depend
// on this order, never on filesystem enumeration order.
func SortNames(names []string) []string {
	slices.Sort(names)
	return names
}

// HashDir hashes the directory tree rooted at dir. The result lists the
// immediate children sorted by name; directories carry their recursive
// listing and a hash computed with HashEntries.
//
// Siblings are hashed concurrently, but the output order always follows the
// sorted names. A child that cannot be stated because it does not exist is
// recorded as a file with MissingHash; any other error aborts.
func (h *Hasher) HashDir(ctx context.Context, dir string) (tree.Entries, error) {
	names, err := readNames(dir)
	if err != nil {
		return nil, err
	}
	names = SortNames(names)

	entries := make(tree.Entries, len(names))
	p := pool.New().
		WithMaxGoroutines(h.concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, name := range names {
		p.Go(func(ctx context.Context) error {
			e, err := h.hashChild(ctx, filepath.Join(dir, name), name)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (h *Hasher) hashChild(ctx context.Context, path, name string) (tree.Entry, error) {
	if err := ctx.Err(); err != nil {
		return tree.Entry{}, err
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return tree.File(name, tree.MissingHash), nil
	case err != nil:
		return tree.Entry{}, fmt.Errorf("stat child: %w", err)
	case info.IsDir():
		files, err := h.HashDir(ctx, path)
		if err != nil {
			return tree.Entry{}, err
		}
		return tree.Directory(name, h.HashEntries(files), files), nil
	case info.Mode().IsRegular():
		sum, err := h.HashOf(path)
		if err != nil {
			return tree.Entry{}, err
		}
		return tree.File(name, sum), nil
	default:
		return tree.Entry{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, path, info.Mode().Type())
	}
}

func readNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening directory: %w", err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	return names, nil
}
