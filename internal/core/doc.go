// Package core provides the domain models for content pipeline execution.
//
// # Core Types
//
// CacheCode: a deterministic, order-sensitive 32-bit accumulator used to build
// persistent cache keys. It never uses a random seed.
//
// Document: an immutable unit of content plus case-insensitive metadata.
//
// Module: a documents-in, documents-out unit of work.
//
// Pipeline: a named module chain plus the names of the pipelines it depends on.
//
// Scheduling, dependency validation and cross-pipeline document exchange live
// in the dag and engine packages; this package only defines the values they
// move around.
package core
