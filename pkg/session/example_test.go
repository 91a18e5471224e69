package session_test

import (
	"context"
	"fmt"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/aretw0/tripchat/pkg/session"
)

func Example() {
	ctx := context.Background()
	reg := registry.New(memory.NewStore())
	defer reg.Close()

	mgr := session.NewManager(reg)
	if err := mgr.Init(ctx); err != nil {
		panic(err)
	}
	defer mgr.Close(ctx)

	if _, err := mgr.StartSession(ctx, "alice", "Lisbon"); err != nil {
		panic(err)
	}
	_, _ = mgr.TrackTurn(ctx, session.TurnInput{
		UserID:  "alice",
		Role:    domain.RoleUser,
		Content: "Plan a 3-day trip to Lisbon",
		Intent:  domain.IntentNewItinerary,
	})
	_, _ = mgr.TrackTurn(ctx, session.TurnInput{
		UserID:  "alice",
		Role:    domain.RoleAssistant,
		Content: "Day 1: Alfama and the castle.",
	})

	s, _ := mgr.CurrentSession("alice")
	fmt.Println(s.Destination, s.TotalMessages, s.Context.Phase)

	if err := mgr.EndSession(ctx, "alice"); err != nil {
		panic(err)
	}
	a, _ := mgr.Analytics(ctx, "alice")
	fmt.Println(a.TotalSessions, a.ConversionRate)
	// Output:
	// Lisbon 2 itinerary_planning
	// 1 100
}
