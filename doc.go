// Package lodgo is a hierarchical, multi-resolution terrain-data store.
//
// It addresses square regions of a voxel world through a quad-tree
// position scheme, keeps per-region column data at varying completeness
// and detail, persists it durably with checksummed records, and
// reconstructs coarser sections on demand by merging the finer sections
// that already exist. Sections missing from storage can be generated
// asynchronously through a pluggable generation queue and folded in
// later.
//
// # Quick start
//
//	store, err := blobstore.NewLocalStore("./world")
//	if err != nil {
//	    panic(err)
//	}
//	provider, err := lodgo.New(store,
//	    lodgo.WithMaxDetail(12),
//	    lodgo.WithResourceLimits(resource.Config{MemoryLimitBytes: 256 << 20}),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer provider.Close()
//
// Feed freshly observed terrain in chunk-sized column grids; the
// provider downsamples each update into every tracked coarser section:
//
//	provider.ApplyChunkUpdate(update)
//
// Request a section at any detail level; the provider returns cached
// data, or synthesizes it from every already-materialized finer section
// that geometrically contributes:
//
//	ds, err := provider.GetOrBuild(ctx, pos.New(10, 0, 0))
//
// An incomplete result means parts of the section have never been
// observed. With a generation queue configured (WithGenerationQueue),
// the missing areas are requested automatically; a later GetOrBuild
// picks up the generated data.
//
// # Storage backends
//
// Any blobstore.Store works: the in-package local filesystem store, the
// S3 store (blobstore/s3), the MinIO store (blobstore/minio) or the
// DynamoDB store (blobstore/dynamodb).
package lodgo
