package lcas

import "github.com/aweris/lcas/internal/tree"

// Hash is a lowercase hexadecimal content digest.
type Hash = tree.Hash

// Entry is a file or directory in a content-addressed tree.
// Re-exported from internal/tree for convenience.
type Entry = tree.Entry

// Entries is an ordered list of sibling entries.
type Entries = tree.Entries

// Kind discriminates files from directories.
type Kind = tree.Kind

const (
	KindFile      = tree.KindFile
	KindDirectory = tree.KindDirectory
)

// MissingHash marks a child that vanished while its directory was hashed.
const MissingHash = tree.MissingHash

// FileEntry returns a file entry.
func FileEntry(name string, hash Hash) Entry { return tree.File(name, hash) }

// DirectoryEntry returns a directory entry. The hash must be the
// HashEntries digest of files; use Store.Rehash to compute it.
func DirectoryEntry(name string, hash Hash, files Entries) Entry {
	return tree.Directory(name, hash, files)
}
