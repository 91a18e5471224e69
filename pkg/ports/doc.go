/*
Package ports defines the driven ports (interfaces) of the conversation core.

These interfaces decouple the cache and session logic from concrete storage,
so the same core runs against an in-memory map, a directory of files or Redis.

# Key Interfaces

  - KeyValueStore: Synchronous, string-keyed byte storage shared by all namespaces.
  - DistributedLocker: Optional cross-process locking for session writers.
*/
package ports
