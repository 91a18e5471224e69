/*
Package domain contains the core data model of the conversation-session subsystem.

It defines the entities shared by the cache, the namespace registry, the turn
ledger and the session manager. This package is kept pure and free of I/O so
that every other package can depend on it.

# Key Entities

  - Turn: One dialogue message with its classified intent and parameters.
  - Session: The persisted record of one conversation with a user.
  - ConversationContext: Aggregated ledger state (destination, phase, recommendations).
  - Intent / Phase: The classifier vocabulary and the phases it drives.
  - LifecycleHooks: Observability callbacks fired by the session manager.
*/
package domain
