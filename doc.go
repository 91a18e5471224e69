/*
Package tripchat keeps the conversation state of a travel-planning assistant.

It tracks sessions, turns and conversation context per user, caches them in
namespaced stale-while-revalidate caches, and persists them through a
pluggable key-value store (memory, file or redis).

# Layout

  - pkg/session: the session manager, the main entry point.
  - pkg/conversation: the bounded turn ledger and context tracking.
  - pkg/registry: namespaced, user-scoped caches over one store.
  - pkg/cache: the expiring stale-while-revalidate cache.
  - pkg/consistency: destination consistency checks for restored history.
  - pkg/adapters: stores plus the HTTP and MCP front ends.

# Usage

	reg := registry.New(memory.NewStore())
	defer reg.Close()

	mgr := session.NewManager(reg)
	if err := mgr.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer mgr.Close(ctx)

	_, err := mgr.TrackTurn(ctx, session.TurnInput{
		UserID:  "alice",
		Role:    domain.RoleUser,
		Content: "Plan a trip to Lisbon",
		Intent:  domain.IntentNewItinerary,
	})
*/
package tripchat
