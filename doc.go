// Package lcas provides a content-addressable store that materializes
// content through filesystem links.
//
// Files are stored once per content hash under a three-level sharded layout
// (<root>/ab/cd/ef01...). Directories are stored as real directories whose
// children are links to other objects, so a directory of any size is
// realized with a single symlink and a file with a single hard link.
//
// Basic usage:
//
//	s, _ := lcas.Open(lcas.WithCacheDir("/var/cache/lcas"))
//	defer s.Close()
//
//	// Enter a tree; unchanged content is never copied twice
//	hash, entries, _ := s.EnterDirectory(ctx, "./build")
//
//	// Materialize it elsewhere
//	s.Realize(ctx, "/srv/app", hash)
//
//	// Realize a view without the tests, without copying any bytes
//	view := s.Filter(entries, func(path string, e lcas.Entry) bool {
//	    return !strings.HasSuffix(path, "_test.go")
//	})
//	s.RealizeVirtualDirectory(ctx, "/srv/app-slim", view)
//
// Content hashes:
//
//	s.HashOf("main.go")           // digest of the file bytes
//	s.HashDir(ctx, "./src")       // recursive, sorted listing
//	s.HashEntries(entries)        // digest of a listing
//
// A directory's hash is the digest of the compact JSON encoding of its
// listing, e.g. [{"name":"a","hash":"..."},{"name":"d","hash":"..."}].
// Two trees hash the same exactly when they hold the same names and bytes.
//
// Concurrency: a Store is safe for concurrent use. At most one physical
// ingestion runs per hash at a time, and a hash once known to be present is
// never ingested again by the same Store. Several processes may share a
// cache root; objects are staged and then published atomically.
//
// Remote sync (OCI registries):
//
//	s.Push(ctx, "ghcr.io/org/trees:build-42", hash)
//	hash, _ := other.Pull(ctx, "ghcr.io/org/trees:build-42")
//
// Known limitation: a file whose content is exactly the JSON encoding of a
// listing shares its hash with that directory. Such a file and directory
// cannot both live in one cache.
package lcas
