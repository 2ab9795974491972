package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/aweris/lcas/internal/compression"
)

const (
	DefaultConcurrency = 4
	retryAttempts      = 3
)

// OCIRemote stores bundles as images in an OCI registry.
type OCIRemote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	encoder     *zstd.Encoder
	log         *zap.Logger
}

var _ Remote = (*OCIRemote)(nil)

// Option configures an OCIRemote.
type Option func(*OCIRemote)

func WithConcurrency(n int) Option {
	return func(r *OCIRemote) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithAuth(auth Authenticator) Option {
	return func(r *OCIRemote) { r.auth = auth }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *OCIRemote) {
		if log != nil {
			r.log = log
		}
	}
}

// NewOCIRemote creates a remote from a standard image ref (e.g.
// "ghcr.io/org/trees:build-42"). level selects the zstd preset for layers.
func NewOCIRemote(imageRef string, level int, opts ...Option) (*OCIRemote, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(compression.Level(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	r := &OCIRemote{
		ref:         ref,
		concurrency: DefaultConcurrency,
		encoder:     encoder,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *OCIRemote) String() string   { return r.ref.String() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }

// blobLayer implements v1.Layer over an in-memory zstd payload.
type blobLayer struct {
	compressed   []byte
	uncompressed []byte
}

func (r *OCIRemote) newBlobLayer(data []byte) *blobLayer {
	return &blobLayer{
		compressed:   r.encoder.EncodeAll(data, nil),
		uncompressed: data,
	}
}

func (l *blobLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *blobLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}
func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}
func (l *blobLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Push uploads b as a single image.
func (r *OCIRemote) Push(ctx context.Context, b *Bundle) error {
	treeLayer := r.newBlobLayer(b.Tree)
	treeDigest, err := treeLayer.Digest()
	if err != nil {
		return fmt.Errorf("digest tree layer: %w", err)
	}

	byPrefix := GroupByPrefix(b.Blobs)
	plan := BuildLayerPlan(prefixSizes(byPrefix))

	layers := []v1.Layer{treeLayer}
	var totalRaw, totalCompressed int64
	for _, group := range plan {
		packed := PackLayer(collect(group, byPrefix))
		layer := r.newBlobLayer(packed)
		totalRaw += int64(len(packed))
		totalCompressed += int64(len(layer.compressed))
		layers = append(layers, layer)
	}

	r.log.Info("pushing tree",
		zap.String("ref", r.String()),
		zap.String("root", b.Root),
		zap.Int("blobs", len(b.Blobs)),
		zap.Int("layers", len(layers)),
		zap.Int64("raw_bytes", totalRaw),
		zap.Int64("compressed_bytes", totalCompressed),
	)

	img, err := r.buildImage(layers, map[string]string{
		LabelRoot:      b.Root,
		LabelAlgorithm: b.Algorithm,
		LabelTree:      treeDigest.String(),
	})
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	if err := r.pushImage(ctx, img); err != nil {
		return fmt.Errorf("push image: %w", err)
	}

	r.log.Info("pushed tree", zap.String("ref", r.String()), zap.String("root", b.Root))
	return nil
}

func (r *OCIRemote) buildImage(layers []v1.Layer, labels map[string]string) (v1.Image, error) {
	img := mutate.MediaType(empty.Image, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)

	img, err := mutate.AppendLayers(img, layers...)
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = labels

	return mutate.ConfigFile(img, cfg)
}

func (r *OCIRemote) pushImage(ctx context.Context, img v1.Image) error {
	options := append(r.remoteOptions(ctx), remote.WithJobs(r.concurrency))
	_, err := retry(ctx, retryAttempts, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	})
	return err
}

// Pull downloads the bundle stored at the remote's ref.
func (r *OCIRemote) Pull(ctx context.Context) (*Bundle, error) {
	img, err := retry(ctx, retryAttempts, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}

	labels := cfg.Config.Labels
	b := &Bundle{
		Root:      labels[LabelRoot],
		Algorithm: labels[LabelAlgorithm],
		Blobs:     make(map[string][]byte),
	}
	treeDigest := labels[LabelTree]
	if b.Root == "" || treeDigest == "" {
		return nil, fmt.Errorf("%s is not a tree image: missing %s or %s label", r.String(), LabelRoot, LabelTree)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}

	r.log.Info("pulling tree", zap.String("ref", r.String()), zap.Int("layers", len(layers)))

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()

	for _, layer := range layers {
		p.Go(func(ctx context.Context) error {
			digest, err := layer.Digest()
			if err != nil {
				return fmt.Errorf("layer digest: %w", err)
			}

			data, err := readLayer(layer)
			if err != nil {
				return err
			}

			if digest.String() == treeDigest {
				mu.Lock()
				b.Tree = data
				mu.Unlock()
				return nil
			}

			blobs, err := UnpackLayer(data)
			if err != nil {
				return fmt.Errorf("unpack layer %s: %w", digest, err)
			}

			mu.Lock()
			for k, v := range blobs {
				b.Blobs[k] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	if b.Tree == nil {
		return nil, fmt.Errorf("%s: tree layer %s not found", r.String(), treeDigest)
	}

	r.log.Info("pulled tree", zap.String("root", b.Root), zap.Int("blobs", len(b.Blobs)))
	return b, nil
}

func readLayer(layer v1.Layer) ([]byte, error) {
	rc, err := layer.Uncompressed()
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	return data, nil
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

// Close releases the layer encoder.
func (r *OCIRemote) Close() error {
	return r.encoder.Close()
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
