// Package cache provides a bounded, thread-safe LRU cache.
//
//	c := cache.New[string, []uint32](64)
//	code, err := c.GetOrCreate(source, compile)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
