// Package store implements the on-disk object layout.
//
// Objects live under the root at <hash[0:2]>/<hash[2:4]>/<hash[4:]>. A file
// object is a regular file holding the content; a directory object is a real
// directory whose children are links to other objects: hard links for files,
// symbolic links for directories.
//
// Objects are staged under a temporary name in the root and published with
// link(2) or rename(2). An "already exists" result on publish means another
// writer published identical content first and is not an error.
package store

import (
	"errors"
	"os"

	"github.com/aweris/lcas/internal/tree"
)

var (
	// ErrInvalidHash is returned for hashes that cannot name an object.
	ErrInvalidHash = errors.New("store: invalid hash")
	// ErrUnexpectedObject is returned when an object path holds something
	// other than a regular file or directory.
	ErrUnexpectedObject = errors.New("store: unexpected object type")
)

// Store handles object placement and materialization.
type Store interface {
	// Root returns the absolute cache root.
	Root() string

	// Path returns the object path for hash.
	Path(hash tree.Hash) (string, error)

	// Stat reports the kind of the object stored under hash. A missing
	// object yields an error matching fs.ErrNotExist.
	Stat(hash tree.Hash) (tree.Kind, error)

	// Has reports whether an object exists for hash.
	Has(hash tree.Hash) bool

	// CreateTemp creates a uniquely named file in the root.
	CreateTemp() (*os.File, error)

	// Publish links a staged file into place under hash. It reports false
	// when the object already existed.
	Publish(staged string, hash tree.Hash) (bool, error)

	// PutFile copies the file at src into place under hash unless present.
	PutFile(src string, hash tree.Hash) (bool, error)

	// MakeNode builds the directory object for hash from the objects of its
	// children. Entries carrying tree.MissingHash are skipped.
	MakeNode(hash tree.Hash, children tree.Entries) (bool, error)

	// Link materializes the object for hash at dest.
	Link(dest string, hash tree.Hash) error

	// WriteManifest records the child list of a directory object.
	WriteManifest(hash tree.Hash, children tree.Entries) error

	// ReadManifest returns the child list recorded for a directory object.
	// Directory children come back without their own listing.
	ReadManifest(hash tree.Hash) (tree.Entries, error)
}
