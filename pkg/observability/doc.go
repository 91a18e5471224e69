/*
Package observability provides metrics and structured logging for the cache
and the session manager.

Metrics exposes Prometheus collectors and produces cache.Hooks per namespace
and domain.LifecycleHooks for session events. LoggingHooks writes the same
session events to a slog.Logger. Combine merges several hook sets.
*/
package observability
