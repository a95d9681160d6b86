// Package cache stores module output keyed by content cache codes.
//
// Keys are derived from a namespace (pipeline and module position) and a
// core.CacheCode value. A hit replays the stored documents; there is no
// timestamp or mtime tracking.
package cache
