package lcas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/aweris/lcas/internal/remote"
)

// Push uploads the directory tree identified by hash, with the content of
// every file in it, to the OCI image ref.
func (s *Store) Push(ctx context.Context, ref string, hash Hash) error {
	r, err := s.remote(ref)
	if err != nil {
		return err
	}
	defer r.Close()

	entries, err := s.Entries(ctx, hash)
	if err != nil {
		return err
	}

	var hashes []Hash
	seen := make(map[Hash]bool)
	entries.Walk(func(_ string, e Entry) bool {
		if e.IsFile() && !e.IsMissing() && !seen[e.Hash] {
			seen[e.Hash] = true
			hashes = append(hashes, e.Hash)
		}
		return true
	})

	blobs := make(map[string][]byte, len(hashes))
	var mu sync.Mutex
	p := s.pool(ctx)
	for _, h := range hashes {
		p.Go(func(ctx context.Context) error {
			path, err := s.objects.Path(h)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading object %s: %w", h, err)
			}
			mu.Lock()
			blobs[h] = data
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return classify(err)
	}

	treeJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding tree: %w", err)
	}

	err = r.Push(ctx, &remote.Bundle{
		Root:      hash,
		Algorithm: s.Algorithm(),
		Tree:      treeJSON,
		Blobs:     blobs,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// Pull downloads the tree stored at ref into the cache and returns its root
// hash. Every blob is re-hashed on the way in.
func (s *Store) Pull(ctx context.Context, ref string) (Hash, error) {
	r, err := s.remote(ref)
	if err != nil {
		return "", err
	}
	defer r.Close()

	b, err := r.Pull(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	if b.Algorithm != "" && b.Algorithm != s.Algorithm() {
		return "", fmt.Errorf("%w: %s was pushed with %s, store uses %s",
			ErrInvalidEntries, ref, b.Algorithm, s.Algorithm())
	}

	var entries Entries
	if err := json.Unmarshal(b.Tree, &entries); err != nil {
		return "", fmt.Errorf("%w: decoding tree: %w", ErrInvalidEntries, err)
	}

	p := s.pool(ctx)
	for want, data := range b.Blobs {
		p.Go(func(ctx context.Context) error {
			got, err := s.EnterStream(ctx, bytes.NewReader(data))
			if err != nil {
				return err
			}
			if got != want {
				return fmt.Errorf("%w: blob labelled %s hashes to %s", ErrInvalidEntries, want, got)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return "", err
	}

	hash, err := s.EnterVirtualDirectory(ctx, entries)
	if err != nil {
		return "", err
	}
	if hash != b.Root {
		return "", fmt.Errorf("%w: tree hashes to %s, image declares %s", ErrInvalidEntries, hash, b.Root)
	}

	s.log.Info("pulled tree", zap.String("ref", ref), zap.String("hash", hash), zap.Int("blobs", len(b.Blobs)))
	return hash, nil
}

func (s *Store) remote(ref string) (*remote.OCIRemote, error) {
	if ref == "" {
		return nil, ErrNoRemote
	}
	r, err := remote.NewOCIRemote(ref, s.opts.CompressionLevel,
		remote.WithConcurrency(s.opts.Concurrency),
		remote.WithAuth(s.opts.Auth),
		remote.WithLogger(s.log.Named("remote")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEntries, err)
	}
	return r, nil
}
