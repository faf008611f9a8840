// Package storage provides run store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: in-memory map for single-node use and tests
package storage
