// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups, for multi-daemon deployments
//   - memory: in-process dispatch for single-node use and tests
package events
