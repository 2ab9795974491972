package lcas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/aweris/lcas/internal/store"
)

var (
	ErrNotFound       = errors.New("lcas: not found")
	ErrAlreadyExists  = errors.New("lcas: already exists")
	ErrIO             = errors.New("lcas: i/o error")
	ErrInvalidEntries = errors.New("lcas: invalid entries")
	ErrNoRemote       = errors.New("lcas: no remote configured")
)

// classify tags err with one of the error kinds above, keeping the cause in
// the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrAlreadyExists, ErrIO, ErrInvalidEntries, ErrNoRemote} {
		if errors.Is(err, kind) {
			return err
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrInvalidHash), errors.Is(err, store.ErrInvalidName):
		return fmt.Errorf("%w: %w", ErrInvalidEntries, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}
