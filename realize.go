package lcas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/aweris/lcas/internal/store"
)

// Realize materializes the object for hash at dest and returns dest. File
// objects are hard-linked, directory objects are symlinked. Exactly one
// filesystem entry is created; nothing is created when hash is unknown.
func (s *Store) Realize(ctx context.Context, dest string, hash Hash) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := s.objects.Stat(hash); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, store.ErrInvalidHash) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return "", classify(err)
	}

	// The object exists, so any failure from here on is about dest.
	if err := s.objects.Link(dest, hash); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %w", ErrAlreadyExists, err)
		}
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	s.realized.Add(1)
	s.log.Debug("realized", zap.String("hash", hash), zap.String("dest", dest))
	return dest, nil
}

// RealizeVirtualDirectory synthesizes the directory described by entries
// and symlinks it at dest. It is the way to produce a filtered view of a
// tree without copying bytes; see Filter.
func (s *Store) RealizeVirtualDirectory(ctx context.Context, dest string, entries Entries) (Hash, error) {
	hash, err := s.EnterVirtualDirectory(ctx, entries)
	if err != nil {
		return "", err
	}
	if _, err := s.Realize(ctx, dest, hash); err != nil {
		return "", err
	}
	return hash, nil
}
