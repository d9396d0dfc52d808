// Package cache implements the versioned asset cache of the edge: the
// precache manifest is installed into a cache named after the current
// version, older versions are evicted at activation, and intercepted GET
// requests are served cache-first with a background refresh and offline
// fallbacks.
//
// Caches live behind Storage, which mirrors the browser CacheStorage API
// (Open/Names/Delete, Get/Put/Keys). Memory, Redis and S3 backends are
// provided.
package cache
