package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/lcas/internal/tree"
)

const (
	hashA = "02d92c580d4ede6c80a878bdd9f3142d8f757be8"
	hashB = "b437a399457d2752b876cc70d06ed5251015b064"
	hashD = "03f6174ba7b6847427e9c9480fa8ae222435fce0"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "cache"), 16, 2, true)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putString(t *testing.T, s *LocalStore, hash tree.Hash, content string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	created, err := s.PutFile(src, hash)
	require.NoError(t, err)
	require.True(t, created)
}

func tempFiles(t *testing.T, s *LocalStore) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(s.Root(), tempPrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestPathLayout(t *testing.T) {
	s := newStore(t)

	p, err := s.Path(hashA)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "02", "d9", "2c580d4ede6c80a878bdd9f3142d8f757be8"), p)
	assert.True(t, filepath.IsAbs(p))

	for _, bad := range []string{"", "abcd", tree.MissingHash, "../../etc/passwd", "ABCDEF0123"} {
		_, err := s.Path(bad)
		assert.ErrorIs(t, err, ErrInvalidHash, bad)
	}
}

func TestLazyRoot(t *testing.T) {
	s := newStore(t)
	_, err := os.Stat(s.Root())
	assert.ErrorIs(t, err, fs.ErrNotExist, "root is created on first write")

	putString(t, s, hashA, "Some text")
	info, err := os.Stat(s.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPutFile(t *testing.T) {
	s := newStore(t)
	putString(t, s, hashA, "Some text")

	kind, err := s.Stat(hashA)
	require.NoError(t, err)
	assert.Equal(t, tree.KindFile, kind)

	p, _ := s.Path(hashA)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "Some text", string(data))

	src := filepath.Join(t.TempDir(), "again")
	require.NoError(t, os.WriteFile(src, []byte("Some text"), 0o644))
	created, err := s.PutFile(src, hashA)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Empty(t, tempFiles(t, s))
}

func TestStatMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Stat(hashA)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, s.Has(hashA))
}

func TestCreateTempUnique(t *testing.T) {
	s := newStore(t)
	seen := map[string]bool{}
	for range 20 {
		f, err := s.CreateTemp()
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.False(t, seen[f.Name()])
		seen[f.Name()] = true
		assert.True(t, strings.HasPrefix(filepath.Base(f.Name()), tempPrefix))
		assert.Equal(t, s.Root(), filepath.Dir(f.Name()))
	}
}

func TestPublishExisting(t *testing.T) {
	s := newStore(t)
	putString(t, s, hashA, "Some text")

	f, err := s.CreateTemp()
	require.NoError(t, err)
	_, err = f.WriteString("Some text")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	created, err := s.Publish(f.Name(), hashA)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestMakeNodeAndLink(t *testing.T) {
	s := newStore(t)
	putString(t, s, hashA, "Some text")
	putString(t, s, hashB, "Some other text")

	inner := tree.Entries{tree.File("b.txt", hashB)}
	created, err := s.MakeNode(hashD, inner)
	require.NoError(t, err)
	require.True(t, created)

	const outer = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	children := tree.Entries{
		tree.File("a.txt", hashA),
		tree.Directory("sub", hashD, inner),
		tree.File("gone", tree.MissingHash),
	}
	created, err = s.MakeNode(outer, children)
	require.NoError(t, err)
	require.True(t, created)

	nodePath, _ := s.Path(outer)
	names, err := os.ReadDir(nodePath)
	require.NoError(t, err)
	require.Len(t, names, 2, "missing entries are skipped")

	fileInfo, err := os.Lstat(filepath.Join(nodePath, "a.txt"))
	require.NoError(t, err)
	assert.True(t, fileInfo.Mode().IsRegular(), "files are hard links")
	objInfo, err := os.Stat(mustPath(t, s, hashA))
	require.NoError(t, err)
	assert.True(t, os.SameFile(fileInfo, objInfo))

	subInfo, err := os.Lstat(filepath.Join(nodePath, "sub"))
	require.NoError(t, err)
	assert.Equal(t, fs.ModeSymlink, subInfo.Mode().Type(), "directories are symlinks")
	target, err := os.Readlink(filepath.Join(nodePath, "sub"))
	require.NoError(t, err)
	assert.Equal(t, mustPath(t, s, hashD), target)

	created, err = s.MakeNode(outer, children)
	require.NoError(t, err)
	assert.False(t, created)

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, s.Link(dest, outer))
	data, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Some other text", string(data))

	err = s.Link(dest, outer)
	assert.ErrorIs(t, err, fs.ErrExist)

	assert.Empty(t, tempFiles(t, s))
}

func TestMakeNodeFailures(t *testing.T) {
	s := newStore(t)

	_, err := s.MakeNode(hashD, tree.Entries{tree.File("a", hashA)})
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, s.Has(hashD))

	putString(t, s, hashA, "Some text")
	_, err = s.MakeNode(hashD, tree.Entries{tree.File("../escape", hashA)})
	assert.ErrorIs(t, err, ErrInvalidName)

	assert.Empty(t, tempFiles(t, s), "staging directories are cleaned up")
}

func TestManifestRoundTrip(t *testing.T) {
	s := newStore(t)
	children := tree.Entries{
		tree.File("a", hashA),
		tree.Directory("d", hashD, tree.Entries{tree.File("b", hashB)}),
	}
	require.NoError(t, s.WriteManifest(hashD, children))

	fresh, err := NewLocalStore(s.Root(), 0, 2, true)
	require.NoError(t, err)
	defer fresh.Close()

	got, err := fresh.ReadManifest(hashD)
	require.NoError(t, err)
	assert.Equal(t, tree.Entries{
		tree.File("a", hashA),
		tree.Directory("d", hashD, nil),
	}, got)

	_, err = fresh.ReadManifest(hashB)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLRUCache(t *testing.T) {
	c := NewLRUCache(2)
	c.Add("a", tree.Entries{tree.File("a", "1")})
	c.Add("b", nil)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Add("c", nil)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())

	disabled := NewLRUCache(0)
	disabled.Add("a", nil)
	assert.Equal(t, 0, disabled.Len())
}

func mustPath(t *testing.T, s *LocalStore, hash tree.Hash) string {
	t.Helper()
	p, err := s.Path(hash)
	require.NoError(t, err)
	return p
}
