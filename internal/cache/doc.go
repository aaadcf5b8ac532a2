// Package cache provides an LRU cache for values that own external
// resources.
//
// The shader composer keeps compiled shader modules and linked render
// pipelines here. A release callback destroys the GPU handle of every entry
// that is evicted, replaced, deleted or purged:
//
//	programs := cache.New[programKey, *Program](32, func(_ programKey, p *Program) {
//	    backend.DestroyPipeline(p.pipeline)
//	})
//
// After a GPU device is lost its handles are meaningless; Forget drops them
// without calling release.
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
