// Package remote moves trees between a local cache and an OCI registry.
//
// An uploaded tree is a single image:
//   - one layer holding the tree listing (JSON, zstd),
//   - blob layers packing file contents, grouped by hash prefix,
//   - config labels naming the root hash, digest algorithm and tree layer.
//
// Upload order follows go-containerregistry: layers, config, manifest.
package remote

import "context"

// Label keys on the image config.
const (
	LabelRoot      = "dev.lcas.root"
	LabelAlgorithm = "dev.lcas.algorithm"
	LabelTree      = "dev.lcas.tree"
)

// Bundle is everything needed to rebuild a tree in another cache.
type Bundle struct {
	// Root is the hash of the tree's top-level listing.
	Root string
	// Algorithm is the digest algorithm the hashes were computed with.
	Algorithm string
	// Tree is the JSON encoding of the full listing.
	Tree []byte
	// Blobs maps file hashes to their content.
	Blobs map[string][]byte
}

// Remote transfers bundles.
type Remote interface {
	Push(ctx context.Context, b *Bundle) error
	Pull(ctx context.Context) (*Bundle, error)
}
