package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/lcas/internal/compression"
	"github.com/aweris/lcas/internal/tree"
)

// ErrInvalidName is returned for child names that are not a single path
// element.
var ErrInvalidName = errors.New("store: invalid entry name")

const (
	manifestDir    = "manifests"
	manifestSuffix = ".json.zst"
	tempPrefix     = ".tmp-"
	minHashLen     = 5
)

// LocalStore implements Store on the local filesystem.
//
// Layout:
//
//	root/
//	  ab/cd/ef0123...          (objects: files, or directories of links)
//	  manifests/ab/cd/ef0123...json.zst
//	  .tmp-*                   (staging, removed after publish)
//
// Nothing is created until the first write.
type LocalStore struct {
	root       string
	cache      Cache
	compressor *compression.Compressor
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(root string, cacheSize int, compressionLevel int, compressionEnabled bool) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root: %w", err)
	}

	compressor, err := compression.NewCompressor(compressionLevel, compressionEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	return &LocalStore{
		root:       abs,
		cache:      NewLRUCache(cacheSize),
		compressor: compressor,
	}, nil
}

func (s *LocalStore) Root() string { return s.root }

// Path returns root/<hash[0:2]>/<hash[2:4]>/<hash[4:]>.
func (s *LocalStore) Path(hash tree.Hash) (string, error) {
	if !validHash(hash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return filepath.Join(s.root, hash[:2], hash[2:4], hash[4:]), nil
}

func (s *LocalStore) Stat(hash tree.Hash) (tree.Kind, error) {
	path, err := s.Path(hash)
	if err != nil {
		return 0, err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	switch {
	case info.Mode().IsRegular():
		return tree.KindFile, nil
	case info.IsDir():
		return tree.KindDirectory, nil
	default:
		return 0, fmt.Errorf("%w: %s is %s", ErrUnexpectedObject, path, info.Mode().Type())
	}
}

func (s *LocalStore) Has(hash tree.Hash) bool {
	_, err := s.Stat(hash)
	return err == nil
}

// CreateTemp picks random names until one is unused. The names only avoid
// collisions; they are not a security boundary.
func (s *LocalStore) CreateTemp() (*os.File, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}

	for {
		name := s.tempName()
		if _, err := os.Lstat(name); err == nil {
			continue
		}
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
		return f, nil
	}
}

func (s *LocalStore) createTempDir() (string, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache root: %w", err)
	}

	for {
		name := s.tempName()
		if _, err := os.Lstat(name); err == nil {
			continue
		}
		err := os.Mkdir(name, 0755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create temp directory: %w", err)
		}
		return name, nil
	}
}

func (s *LocalStore) tempName() string {
	return filepath.Join(s.root, fmt.Sprintf("%s%016x", tempPrefix, rand.Uint64()))
}

func (s *LocalStore) Publish(staged string, hash tree.Hash) (bool, error) {
	path, err := s.Path(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Link(staged, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to publish object: %w", err)
	}
	return true, nil
}

func (s *LocalStore) PutFile(src string, hash tree.Hash) (bool, error) {
	if s.Has(hash) {
		return false, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	staged, err := s.CreateTemp()
	if err != nil {
		return false, err
	}
	defer os.Remove(staged.Name())

	if _, err := io.Copy(staged, in); err != nil {
		staged.Close()
		return false, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := staged.Close(); err != nil {
		return false, fmt.Errorf("failed to write object: %w", err)
	}

	return s.Publish(staged.Name(), hash)
}

func (s *LocalStore) MakeNode(hash tree.Hash, children tree.Entries) (bool, error) {
	path, err := s.Path(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(path); err == nil {
		return false, nil
	}

	staged, err := s.createTempDir()
	if err != nil {
		return false, err
	}

	for _, child := range children {
		if child.IsMissing() {
			continue
		}
		if !validName(child.Name) {
			os.RemoveAll(staged)
			return false, fmt.Errorf("%w: %q", ErrInvalidName, child.Name)
		}
		if err := s.Link(filepath.Join(staged, child.Name), child.Hash); err != nil {
			os.RemoveAll(staged)
			return false, fmt.Errorf("failed to link %q: %w", child.Name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		os.RemoveAll(staged)
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(staged, path); err != nil {
		os.RemoveAll(staged)
		if _, statErr := os.Lstat(path); statErr == nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to publish directory: %w", err)
	}
	return true, nil
}

// Link hard-links file objects and symlinks directory objects; directories
// cannot be hard-linked portably.
func (s *LocalStore) Link(dest string, hash tree.Hash) error {
	kind, err := s.Stat(hash)
	if err != nil {
		return err
	}
	path, _ := s.Path(hash)

	if kind == tree.KindDirectory {
		return os.Symlink(path, dest)
	}
	return os.Link(path, dest)
}

func (s *LocalStore) manifestPath(hash tree.Hash) (string, error) {
	if !validHash(hash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return filepath.Join(s.root, manifestDir, hash[:2], hash[2:4], hash[4:]+manifestSuffix), nil
}

func (s *LocalStore) WriteManifest(hash tree.Hash, children tree.Entries) error {
	path, err := s.manifestPath(hash)
	if err != nil {
		return err
	}

	reduced := make(tree.Entries, 0, len(children))
	for _, c := range children {
		if c.IsDirectory() {
			reduced = append(reduced, tree.Directory(c.Name, c.Hash, nil))
			continue
		}
		reduced = append(reduced, tree.File(c.Name, c.Hash))
	}

	data, err := json.Marshal(reduced)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	staged, err := s.CreateTemp()
	if err != nil {
		return err
	}
	defer os.Remove(staged.Name())

	if _, err := staged.Write(s.compressor.Compress(data)); err != nil {
		staged.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := staged.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(staged.Name(), path); err != nil {
		return fmt.Errorf("failed to publish manifest: %w", err)
	}

	s.cache.Add(hash, reduced)
	return nil
}

func (s *LocalStore) ReadManifest(hash tree.Hash) (tree.Entries, error) {
	if entries, ok := s.cache.Get(hash); ok {
		return entries, nil
	}

	path, err := s.manifestPath(hash)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := s.compressor.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress manifest %s: %w", hash, err)
	}

	var entries tree.Entries
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", hash, err)
	}
	if entries == nil {
		entries = tree.Entries{}
	}

	s.cache.Add(hash, entries)
	return entries, nil
}

// Close releases the compressor.
func (s *LocalStore) Close() error {
	return s.compressor.Close()
}

func validHash(hash tree.Hash) bool {
	if len(hash) < minHashLen {
		return false
	}
	for _, c := range hash {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/') && !strings.ContainsRune(name, 0)
}
