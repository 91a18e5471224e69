/*
Package session implements the conversation session state machine.

A Manager owns at most one active session per user. It routes turns through a
conversation.Ledger, persists the session, its context and its turn history
through a registry.Registry, and restores them on demand. Restored history is
checked against the session destination and discarded when it talks about a
different place.

Writers for the same user are serialized with reference-counted local locks
and, optionally, a ports.DistributedLocker shared between replicas.
*/
package session
