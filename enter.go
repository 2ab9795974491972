package lcas

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/aweris/lcas/internal/tree"
)

// EnterFile ingests the file at path and returns its hash. The bytes are
// copied into the cache only if no object for that hash exists yet.
func (s *Store) EnterFile(ctx context.Context, path string) (Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hash, err := s.hasher.HashOf(path)
	if err != nil {
		return "", classify(err)
	}
	if err := s.ingestFile(ctx, path, hash); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Store) ingestFile(ctx context.Context, path string, hash Hash) error {
	_, err := s.flights.Do(ctx, hash, func() error {
		created, err := s.objects.PutFile(path, hash)
		if err != nil {
			return err
		}
		if created {
			s.filesIngested.Add(1)
			s.log.Debug("ingested file", zap.String("hash", hash), zap.String("source", path))
		}
		return nil
	})
	return classify(err)
}

// EnterStream ingests everything read from r and returns its hash.
//
// The hash is unknown until r is drained, so the bytes are digested and
// written to a staging file inside the cache root in a single pass. The
// staging file is then linked into place unless the object already exists,
// and is removed either way.
func (s *Store) EnterStream(ctx context.Context, r io.Reader) (Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	staged, err := s.objects.CreateTemp()
	if err != nil {
		return "", classify(err)
	}
	defer os.Remove(staged.Name())

	digest := s.hasher.NewDigest()
	if _, err := io.Copy(staged, io.TeeReader(r, digest)); err != nil {
		staged.Close()
		return "", fmt.Errorf("%w: reading stream: %w", ErrIO, err)
	}
	if err := staged.Close(); err != nil {
		return "", fmt.Errorf("%w: writing stream: %w", ErrIO, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hash := digest.Sum()
	_, err = s.flights.Do(ctx, hash, func() error {
		created, err := s.objects.Publish(staged.Name(), hash)
		if err != nil {
			return err
		}
		if created {
			s.filesIngested.Add(1)
			s.log.Debug("ingested stream", zap.String("hash", hash))
		}
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	return hash, nil
}

// EnterDirectory ingests the tree rooted at dir. Every descendant is
// ingested before the directory's own object is built; the object is a real
// directory of links to the children's objects, so realizing it later is a
// single symlink.
func (s *Store) EnterDirectory(ctx context.Context, dir string) (Hash, Entries, error) {
	entries, err := s.hasher.HashDir(ctx, dir)
	if err != nil {
		return "", nil, classify(err)
	}

	hash := s.hasher.HashEntries(entries)
	if err := s.ingestTree(ctx, dir, hash, entries); err != nil {
		return "", nil, err
	}
	return hash, entries, nil
}

func (s *Store) ingestTree(ctx context.Context, dir string, hash Hash, entries Entries) error {
	_, err := s.flights.Do(ctx, hash, func() error {
		if s.objects.Has(hash) {
			return nil
		}

		p := s.pool(ctx)
		for _, child := range entries {
			p.Go(func(ctx context.Context) error {
				path := filepath.Join(dir, child.Name)
				switch {
				case child.IsMissing():
					s.log.Warn("skipping missing entry", zap.String("path", path))
					return nil
				case child.IsDirectory():
					return s.ingestTree(ctx, path, child.Hash, child.Files)
				default:
					return s.ingestFile(ctx, path, child.Hash)
				}
			})
		}
		if err := p.Wait(); err != nil {
			return err
		}

		return s.buildNode(hash, entries)
	})
	return classify(err)
}

// EnterVirtualDirectory ingests a directory that exists only as a listing.
// Files must already be in the cache; nested directories are synthesized the
// same way unless their object already exists.
func (s *Store) EnterVirtualDirectory(ctx context.Context, entries Entries) (Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hash := s.hasher.HashEntries(entries)
	if err := s.ingestVirtual(ctx, hash, entries); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Store) ingestVirtual(ctx context.Context, hash Hash, entries Entries) error {
	_, err := s.flights.Do(ctx, hash, func() error {
		if s.objects.Has(hash) {
			return nil
		}

		p := s.pool(ctx)
		for _, child := range entries {
			p.Go(func(ctx context.Context) error {
				switch {
				case child.IsMissing():
					return nil
				case child.IsDirectory():
					kind, err := s.objects.Stat(child.Hash)
					if err == nil {
						if kind != tree.KindDirectory {
							return fmt.Errorf("%w: directory %q refers to %s, which is a %s",
								ErrInvalidEntries, child.Name, child.Hash, kind)
						}
						return nil
					}
					if got := s.hasher.HashEntries(child.Files); got != child.Hash {
						return fmt.Errorf("%w: directory %q declares %s but its files hash to %s",
							ErrInvalidEntries, child.Name, child.Hash, got)
					}
					return s.ingestVirtual(ctx, child.Hash, child.Files)
				default:
					kind, err := s.objects.Stat(child.Hash)
					if err != nil || kind != tree.KindFile {
						return fmt.Errorf("%w: file %q (%s) is not in the cache", ErrNotFound, child.Name, child.Hash)
					}
					return nil
				}
			})
		}
		if err := p.Wait(); err != nil {
			return err
		}

		return s.buildNode(hash, entries)
	})
	return classify(err)
}

// buildNode records the manifest first so that a node on disk always has
// one.
func (s *Store) buildNode(hash Hash, entries Entries) error {
	if err := s.objects.WriteManifest(hash, entries); err != nil {
		return err
	}
	created, err := s.objects.MakeNode(hash, entries)
	if err != nil {
		return err
	}
	if created {
		s.dirsIngested.Add(1)
		s.log.Debug("ingested directory", zap.String("hash", hash), zap.Int("entries", len(entries)))
	}
	return nil
}

func (s *Store) pool(ctx context.Context) *pool.ContextPool {
	return pool.New().
		WithMaxGoroutines(s.opts.Concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
}
