// Package tree defines the content-addressed tree model.
//
// A tree is an ordered list of entries. Each entry is either a file,
// identified by the digest of its bytes, or a directory, identified by the
// digest of its own (canonicalized) child list. The kind of an entry is
// fixed when it is constructed.
package tree

import (
	"encoding/json"
	"fmt"
)

// Hash is a lowercase hexadecimal content digest.
type Hash = string

// MissingHash is recorded for a child that disappeared while its directory
// was being hashed (for example a dangling symlink).
const MissingHash Hash = "missing"

// Kind discriminates the two entry variants.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is a single node of a tree.
type Entry struct {
	Kind Kind
	Name string
	Hash Hash

	// Files holds the immediate children of a directory, ordered by name.
	// Always nil for files.
	Files Entries
}

// File returns a file entry.
func File(name string, hash Hash) Entry {
	return Entry{Kind: KindFile, Name: name, Hash: hash}
}

// Directory returns a directory entry. A nil files list is normalized to an
// empty one so the entry keeps its directory shape on the wire.
func Directory(name string, hash Hash, files Entries) Entry {
	if files == nil {
		files = Entries{}
	}
	return Entry{Kind: KindDirectory, Name: name, Hash: hash, Files: files}
}

func (e Entry) IsDirectory() bool { return e.Kind == KindDirectory }
func (e Entry) IsFile() bool      { return e.Kind == KindFile }

// IsMissing reports whether the entry is the placeholder for a vanished child.
func (e Entry) IsMissing() bool { return e.Kind == KindFile && e.Hash == MissingHash }

type wireEntry struct {
	Name  string   `json:"name"`
	Hash  Hash     `json:"hash"`
	Files *Entries `json:"files,omitempty"`
}

// MarshalJSON encodes the entry in its flat form. Directories always carry a
// "files" field, files never do.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{Name: e.Name, Hash: e.Hash}
	if e.IsDirectory() {
		files := e.Files
		if files == nil {
			files = Entries{}
		}
		w.Files = &files
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat form. The presence of "files" selects the
// directory variant.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Files != nil {
		*e = Directory(w.Name, w.Hash, *w.Files)
		return nil
	}
	*e = File(w.Name, w.Hash)
	return nil
}

// Entries is an ordered list of sibling entries.
type Entries []Entry

// Sorted reports whether names are in strictly ascending order, which is
// the order directory hashing produces.
func (es Entries) Sorted() bool {
	for i := 1; i < len(es); i++ {
		if es[i-1].Name >= es[i].Name {
			return false
		}
	}
	return true
}

// Find returns the entry with the given name.
func (es Entries) Find(name string) (Entry, bool) {
	for _, e := range es {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Walk calls fn for every entry in depth-first pre-order. The path passed to
// fn is slash-separated and relative to the list's parent. Returning false
// from fn skips the entry's children.
func (es Entries) Walk(fn func(path string, e Entry) bool) {
	es.walk("", fn)
}

func (es Entries) walk(prefix string, fn func(string, Entry) bool) {
	for _, e := range es {
		p := e.Name
		if prefix != "" {
			p = prefix + "/" + e.Name
		}
		if !fn(p, e) {
			continue
		}
		if e.IsDirectory() {
			e.Files.walk(p, fn)
		}
	}
}
