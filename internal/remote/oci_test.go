package remote

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	ggcrremote "github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func newRemote(t *testing.T, ref string) *OCIRemote {
	t.Helper()
	r, err := NewOCIRemote(ref, 2, WithConcurrency(2), WithAuth(BasicAuthenticator{}))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewOCIRemote(t *testing.T) {
	r := newRemote(t, "ghcr.io/org/trees")
	assert.Equal(t, "ghcr.io", r.Registry())
	assert.Equal(t, "ghcr.io/org/trees:latest", r.String())

	_, err := NewOCIRemote("not a ref!", 2)
	assert.Error(t, err)
}

func TestPushPull(t *testing.T) {
	ref := newRegistry(t) + "/lcas/test:v1"
	ctx := context.Background()

	b := &Bundle{
		Root:      "03f6174ba7b6847427e9c9480fa8ae222435fce0",
		Algorithm: "sha1",
		Tree:      []byte(`[{"name":"test1","hash":"02d92c580d4ede6c80a878bdd9f3142d8f757be8"}]`),
		Blobs: map[string][]byte{
			"02d92c580d4ede6c80a878bdd9f3142d8f757be8": []byte("Some text"),
			"b437a399457d2752b876cc70d06ed5251015b064": []byte("Some other text"),
		},
	}
	require.NoError(t, newRemote(t, ref).Push(ctx, b))

	got, err := newRemote(t, ref).Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.Root, got.Root)
	assert.Equal(t, b.Algorithm, got.Algorithm)
	assert.Equal(t, b.Tree, got.Tree)
	assert.Equal(t, b.Blobs, got.Blobs)
}

func TestPushPullEmptyTree(t *testing.T) {
	ref := newRegistry(t) + "/lcas/empty:v1"
	ctx := context.Background()

	b := &Bundle{
		Root:      "97d170e1550eee4afc0af065b78cda302a97674c",
		Algorithm: "sha1",
		Tree:      []byte(`[]`),
	}
	require.NoError(t, newRemote(t, ref).Push(ctx, b))

	got, err := newRemote(t, ref).Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.Root, got.Root)
	assert.Equal(t, []byte(`[]`), got.Tree)
	assert.Empty(t, got.Blobs)
}

func TestPullRejectsForeignImage(t *testing.T) {
	ref := newRegistry(t) + "/lcas/other:v1"

	parsed, err := name.ParseReference(ref)
	require.NoError(t, err)
	require.NoError(t, ggcrremote.Write(parsed, empty.Image))

	_, err = newRemote(t, ref).Pull(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a tree image")
}
