package tree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryKind(t *testing.T) {
	f := File("a.txt", "abcd")
	assert.True(t, f.IsFile())
	assert.False(t, f.IsDirectory())
	assert.Nil(t, f.Files)

	d := Directory("src", "ef01", nil)
	assert.True(t, d.IsDirectory())
	assert.False(t, d.IsFile())
	assert.NotNil(t, d.Files, "empty directory keeps a non-nil child list")
	assert.Empty(t, d.Files)

	assert.True(t, File("gone", MissingHash).IsMissing())
	assert.False(t, Directory(MissingHash, MissingHash, nil).IsMissing())
}

func TestEntryJSONShape(t *testing.T) {
	entries := Entries{
		File("a", "11"),
		Directory("empty", "22", nil),
		Directory("src", "33", Entries{File("main.go", "44")}),
	}

	data, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"a","hash":"11"},
		{"name":"empty","hash":"22","files":[]},
		{"name":"src","hash":"33","files":[{"name":"main.go","hash":"44"}]}
	]`, string(data))

	var decoded Entries
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entries, decoded)
	assert.True(t, decoded[1].IsDirectory(), "empty files list decodes as a directory")
	assert.True(t, decoded[0].IsFile())
}

func TestEntriesSorted(t *testing.T) {
	assert.True(t, Entries{}.Sorted())
	assert.True(t, Entries{File("a", "1"), File("b", "2")}.Sorted())
	assert.False(t, Entries{File("b", "1"), File("a", "2")}.Sorted())
	assert.False(t, Entries{File("a", "1"), File("a", "2")}.Sorted())
}

func TestEntriesFind(t *testing.T) {
	entries := Entries{File("a", "1"), Directory("b", "2", nil)}

	e, ok := entries.Find("b")
	require.True(t, ok)
	assert.Equal(t, KindDirectory, e.Kind)

	_, ok = entries.Find("c")
	assert.False(t, ok)
}

func TestEntriesWalk(t *testing.T) {
	entries := Entries{
		File("a", "1"),
		Directory("lib", "2", Entries{
			File("x", "3"),
			Directory("deep", "4", Entries{File("y", "5")}),
		}),
		Directory("skip", "6", Entries{File("z", "7")}),
	}

	var paths []string
	entries.Walk(func(path string, e Entry) bool {
		paths = append(paths, path)
		return e.Name != "skip"
	})

	assert.Equal(t, []string{"a", "lib", "lib/x", "lib/deep", "lib/deep/y", "skip"}, paths)
}
