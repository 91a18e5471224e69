package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/adapters/redis"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/persistence/middleware"
	"github.com/aretw0/tripchat/pkg/ports"
	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/aretw0/tripchat/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store   ports.KeyValueStore
	clock   *clock
	regOpts []registry.Option
}

func newHarness() *harness {
	return &harness{store: memory.NewStore(), clock: newClock()}
}

// manager builds a manager over the shared store, as a fresh process would.
func (h *harness) manager(t *testing.T, opts ...session.Option) *session.Manager {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(h.store, append([]registry.Option{registry.WithClock(h.clock.Now)}, h.regOpts...)...)
	opts = append([]session.Option{session.WithClock(h.clock.Now)}, opts...)
	m := session.NewManager(reg, opts...)
	require.NoError(t, m.Init(ctx))
	t.Cleanup(func() {
		assert.NoError(t, m.Close(ctx))
		reg.Close()
	})
	return m
}

func user(userID, content string, intent domain.Intent, params *domain.Parameters) session.TurnInput {
	return session.TurnInput{UserID: userID, Role: domain.RoleUser, Content: content, Intent: intent, Parameters: params}
}

func assistant(userID, content string) session.TurnInput {
	return session.TurnInput{UserID: userID, Role: domain.RoleAssistant, Content: content}
}

func TestStartSession_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	first, err := m.StartSession(ctx, "alice", "Paris")
	require.NoError(t, err)
	second, err := m.StartSession(ctx, "alice", "Rome")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Paris", second.Destination, "an active session is returned unchanged")
	assert.True(t, second.IsActive)
	assert.Equal(t, []domain.Phase{domain.PhaseGreeting}, second.ConversationPhases)
}

func TestTrackTurn_UpdatesSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)

	_, err := m.StartSession(ctx, "alice", "")
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	_, err = m.TrackTurn(ctx, user("alice", "plan a trip to Lisbon", domain.IntentNewItinerary, &domain.Parameters{Destination: "Lisbon"}))
	require.NoError(t, err)
	_, err = m.TrackTurn(ctx, assistant("alice", "Day 1: Alfama"))
	require.NoError(t, err)
	_, err = m.TrackTurn(ctx, user("alice", "now Porto", domain.IntentNewItinerary, &domain.Parameters{Destination: "Porto"}))
	require.NoError(t, err)

	s, err := m.CurrentSession("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalMessages)
	assert.Equal(t, "Lisbon", s.Destination, "destination is only set once")
	assert.Equal(t, "Porto", s.Context.CurrentDestination)
	assert.Equal(t, []domain.Phase{domain.PhaseGreeting, domain.PhaseItineraryPlanning}, s.ConversationPhases)
	assert.Equal(t, 2, s.IntentCounts[domain.IntentNewItinerary])
	assert.Equal(t, h.clock.Now(), s.LastActiveTime)
}

func TestTrackTurn_StartsSession(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	_, err := m.TrackTurn(ctx, user("bob", "museums in Vienna?", domain.IntentGetRecommendations, &domain.Parameters{Destination: "Vienna"}))
	require.NoError(t, err)

	s, err := m.CurrentSession("bob")
	require.NoError(t, err)
	assert.Equal(t, "Vienna", s.Destination)
	assert.Equal(t, 1, s.TotalMessages)
}

func TestTrackTurn_InvalidRole(t *testing.T) {
	m := newHarness().manager(t)
	_, err := m.TrackTurn(context.Background(), session.TurnInput{UserID: "u", Role: "system", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidTurn)
}

func TestTrackTurn_FollowUpPhase(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	_, err := m.TrackTurn(ctx, user("u", "restaurants in Paris", domain.IntentGetRecommendations,
		&domain.Parameters{Destination: "Paris", RecommendationType: "restaurants"}))
	require.NoError(t, err)
	reply, err := m.TrackTurn(ctx, assistant("u", "1. Septime\n2. Le Comptoir"))
	require.NoError(t, err)
	turn, err := m.TrackTurn(ctx, user("u", "what about something cheaper?", domain.IntentGetRecommendations, nil))
	require.NoError(t, err)

	assert.Equal(t, reply.ID, turn.FollowUpTo)
	s, err := m.CurrentSession("u")
	require.NoError(t, err)
	assert.Contains(t, s.ConversationPhases, domain.PhaseFollowUp)
	assert.Equal(t, []string{"Septime", "Le Comptoir"}, s.Context.RecentRecommendations[0].Items)
}

func TestStartSession_DifferentUserReleasesCurrent(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t, session.WithConfig(session.Config{
		SessionTimeout: 30 * time.Minute,
		MaxResident:    1,
	}))

	alice, err := m.StartSession(ctx, "alice", "Oslo")
	require.NoError(t, err)
	_, err = m.TrackTurn(ctx, user("alice", "trip to Oslo", domain.IntentNewItinerary, nil))
	require.NoError(t, err)

	_, err = m.StartSession(ctx, "bob", "Cairo")
	require.NoError(t, err)

	_, err = m.CurrentSession("alice")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession, "alice is no longer in memory")
	assert.Equal(t, []string{"bob"}, m.ActiveUsers())

	resumed, err := m.Resume(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, resumed.ID)
	assert.Equal(t, 1, resumed.TotalMessages)
}

func TestSession_Timeout(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)

	first, err := m.StartSession(ctx, "alice", "Rome")
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)

	_, err = m.CurrentSession("alice")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	second, err := m.StartSession(ctx, "alice", "Rome")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	history, err := m.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)
	assert.False(t, history[0].IsActive)
}

func TestSession_ExpiredNotRestored(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first := h.manager(t)

	_, err := first.StartSession(ctx, "alice", "Rome")
	require.NoError(t, err)

	h.clock.Advance(45 * time.Minute)

	second := h.manager(t)
	_, err = second.Resume(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	history, err := second.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSession_RestoreAfterRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	first := h.manager(t)

	started, err := first.StartSession(ctx, "alice", "Kyoto")
	require.NoError(t, err)
	_, err = first.TrackTurn(ctx, user("alice", "plan a trip to Kyoto", domain.IntentNewItinerary, nil))
	require.NoError(t, err)
	_, err = first.TrackTurn(ctx, assistant("alice", "Day 1: Fushimi Inari"))
	require.NoError(t, err)

	second := h.manager(t)
	history, err := second.ConversationHistory(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	resumed, err := second.StartSession(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, started.ID, resumed.ID)
	assert.Equal(t, 2, resumed.TotalMessages)

	history, err = second.ConversationHistory(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Day 1: Fushimi Inari", history[0].Content)
}

// importMismatched stores a Tokyo session whose history and recommendations
// are about Paris.
func importMismatched(t *testing.T, m *session.Manager, now time.Time) {
	t.Helper()
	var history []domain.Turn
	for i := range 10 {
		content := fmt.Sprintf("message %d", i)
		if i == 3 {
			content = "I'd love a trip to Paris"
		}
		history = append(history, domain.Turn{ID: fmt.Sprint(i), Role: domain.RoleUser, Content: content, Timestamp: now})
	}
	require.NoError(t, m.Import(context.Background(), &domain.ExportData{
		Version: domain.ExportVersion,
		UserID:  "alice",
		Session: &domain.Session{
			ID: "s1", UserID: "alice", StartTime: now, LastActiveTime: now,
			Destination: "Tokyo", TotalMessages: 10, IsActive: true,
			ConversationPhases: []domain.Phase{domain.PhaseGreeting},
			Context: domain.ConversationContext{
				CurrentDestination:       "Paris",
				Phase:                    domain.PhaseSeekingRecommendations,
				ActiveRecommendationType: "restaurants",
				RecentRecommendations: []domain.Recommendation{
					{Type: "restaurants", Items: []string{"Le Comptoir"}, Destination: "Paris", Timestamp: now},
				},
				PendingFollowUps: []string{"which arrondissement?"},
			},
		},
		History: history,
	}))
}

func assertRecommendationsDiscarded(t *testing.T, s *domain.Session) {
	t.Helper()
	assert.Equal(t, "Tokyo", s.Context.CurrentDestination)
	assert.Empty(t, s.Context.ActiveRecommendationType)
	assert.Empty(t, s.Context.RecentRecommendations)
	assert.Empty(t, s.Context.PendingFollowUps)
}

func TestSession_DestinationMismatchRecovery(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)
	importMismatched(t, m, h.clock.Now())

	got, err := m.ConversationHistory(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	s, err := m.Resume(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assertRecommendationsDiscarded(t, s)
	got, err = m.ConversationHistory(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, got, "the mismatched history was discarded from storage")
}

func TestSession_DestinationMismatchOnResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)
	importMismatched(t, m, h.clock.Now())

	s, err := m.Resume(ctx, "alice")
	require.NoError(t, err)
	assertRecommendationsDiscarded(t, s)

	turn, err := m.TrackTurn(ctx, user("alice", "is the first one open late?", "", nil))
	require.NoError(t, err)
	assert.Empty(t, turn.FollowUpTo)

	second := h.manager(t)
	restored, err := second.Resume(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, restored.Context.RecentRecommendations, "the reset context was persisted")
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	assert.ErrorIs(t, m.EndSession(ctx, "alice"), domain.ErrNoActiveSession)

	s, err := m.StartSession(ctx, "alice", "")
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx, "alice"))

	_, err = m.CurrentSession("alice")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	_, err = m.Resume(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	history, err := m.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID, history[0].ID)

	next, err := m.StartSession(ctx, "alice", "")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestSessionHistory_Bounded(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t, session.WithConfig(session.Config{SessionTimeout: time.Hour, MaxSessionHistory: 2}))

	var ids []string
	for range 3 {
		s, err := m.StartSession(ctx, "alice", "")
		require.NoError(t, err)
		ids = append(ids, s.ID)
		require.NoError(t, m.EndSession(ctx, "alice"))
	}

	history, err := m.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[1:], []string{history[0].ID, history[1].ID})
}

func TestAnalytics(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	for i := range 4 {
		intent := domain.IntentGeneralChat
		if i == 0 {
			intent = domain.IntentNewItinerary
		}
		_, err := m.TrackTurn(ctx, user("alice", "msg", intent, &domain.Parameters{Destination: "Paris"}))
		require.NoError(t, err)
	}
	require.NoError(t, m.EndSession(ctx, "alice"))

	for range 6 {
		_, err := m.TrackTurn(ctx, user("alice", "msg", domain.IntentAskQuestions, &domain.Parameters{Destination: "Rome"}))
		require.NoError(t, err)
	}

	a, err := m.Analytics(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, a.TotalSessions)
	assert.InDelta(t, 5.0, a.AverageSessionLength, 1e-9)
	assert.InDelta(t, 50.0, a.ConversionRate, 1e-9)
	assert.Equal(t, []domain.Frequency{
		{Label: "ASK_QUESTIONS", Count: 6},
		{Label: "GENERAL_CHAT", Count: 3},
		{Label: "NEW_ITINERARY", Count: 1},
	}, a.TopIntents)
	assert.Equal(t, []domain.Frequency{{Label: "Paris", Count: 1}, {Label: "Rome", Count: 1}}, a.TopDestinations)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, 0, session.Summarize(nil).TotalSessions)
	assert.Zero(t, session.Summarize(nil).ConversionRate)

	var sessions []domain.Session
	for i := range 7 {
		sessions = append(sessions, domain.Session{Destination: fmt.Sprintf("city-%d", i%6)})
	}
	a := session.Summarize(sessions)
	require.Len(t, a.TopDestinations, 5)
	assert.Equal(t, domain.Frequency{Label: "city-0", Count: 2}, a.TopDestinations[0])
}

func TestMessages_InvalidatedByTurnsAndReset(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	_, err := m.TrackTurn(ctx, user("alice", "one", "", nil))
	require.NoError(t, err)
	_, err = m.TrackTurn(ctx, assistant("alice", "reply"))
	require.NoError(t, err)

	msgs, err := m.Messages(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = m.TrackTurn(ctx, user("alice", "two", "", nil))
	require.NoError(t, err)
	msgs, err = m.Messages(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	require.NoError(t, m.ClearUserData(ctx, "alice"))
	msgs, err = m.Messages(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	source := newHarness()
	src := source.manager(t)

	_, err := src.TrackTurn(ctx, user("alice", "plan a trip to Lima", domain.IntentNewItinerary, &domain.Parameters{Destination: "Lima"}))
	require.NoError(t, err)
	_, err = src.TrackTurn(ctx, assistant("alice", "Day 1: Miraflores"))
	require.NoError(t, err)

	data, err := src.Export(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ExportVersion, data.Version)
	require.NotNil(t, data.Session)
	assert.Len(t, data.History, 2)
	assert.Len(t, data.Messages, 1)

	dst := newHarness().manager(t)
	require.NoError(t, dst.Import(ctx, data))

	s, err := dst.Resume(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, data.Session.ID, s.ID)
	history, err := dst.ConversationHistory(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestImport_Invalid(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	cases := map[string]*domain.ExportData{
		"nil":             nil,
		"version":         {Version: 99},
		"foreign session": {Version: domain.ExportVersion, UserID: "a", Session: &domain.Session{ID: "s", UserID: "b"}},
		"orphan history":  {Version: domain.ExportVersion, History: []domain.Turn{{Role: domain.RoleUser}}},
		"bad role": {Version: domain.ExportVersion, Session: &domain.Session{ID: "s"},
			History: []domain.Turn{{Role: "system"}}},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, m.Import(ctx, data), domain.ErrInvalidImport)
		})
	}
}

func TestClearAllData(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)

	_, err := m.StartSession(ctx, "alice", "")
	require.NoError(t, err)
	_, err = m.StartSession(ctx, "bob", "")
	require.NoError(t, err)

	require.NoError(t, m.ClearAllData(ctx))
	assert.Empty(t, m.ActiveUsers())
	keys, err := h.store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLifecycleHooks(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, s)
	}
	m := newHarness().manager(t, session.WithLifecycleHooks(domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, e *domain.SessionEvent) { record(fmt.Sprintf("start resumed=%v", e.Resumed)) },
		OnSessionEnd:   func(_ context.Context, e *domain.SessionEvent) { record("end " + e.Reason) },
		OnTurn:         func(_ context.Context, e *domain.TurnEvent) { record("turn " + string(e.Phase)) },
	}))

	_, err := m.TrackTurn(ctx, user("alice", "hi", domain.IntentGeneralChat, nil))
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx, "alice"))

	assert.Equal(t, []string{"start resumed=false", "turn general", "end ended"}, events)
}

func TestTrackTurn_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.TrackTurn(ctx, user("alice", fmt.Sprintf("msg %d", i), domain.IntentGeneralChat, nil))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := m.CurrentSession("alice")
	require.NoError(t, err)
	assert.Equal(t, 20, s.TotalMessages)
}

func TestAutoSaver(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)

	_, err := m.StartSession(ctx, "alice", "")
	require.NoError(t, err)

	saver := m.StartAutoSave(ctx, 5*time.Millisecond)
	h.clock.Advance(time.Hour)

	assert.Eventually(t, func() bool {
		return len(m.ActiveUsers()) == 0
	}, time.Second, 5*time.Millisecond, "idle session should be ended by the auto-saver")

	saver.Stop()
	saver.Stop()

	history, err := m.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestManager_DistributedLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redis.NewFromClient(client)
	h := &harness{store: store, clock: newClock()}
	a := h.manager(t, session.WithLocker(redis.NewLocker(client, "tripchat:lock:")))
	b := h.manager(t, session.WithLocker(redis.NewLocker(client, "tripchat:lock:")))

	var wg sync.WaitGroup
	for _, m := range []*session.Manager{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.StartSession(ctx, "alice", "Quito")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sa, err := a.Resume(ctx, "alice")
	require.NoError(t, err)
	sb, err := b.Resume(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, sa.ID, sb.ID, "replicas agree on one session")
}

func TestStoredUsers(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	m := h.manager(t)

	_, err := m.TrackTurn(ctx, user("bob", "hello", domain.IntentGeneralChat, nil))
	require.NoError(t, err)
	_, err = m.StartSession(ctx, "alice", "Lima")
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx, "alice"))

	users, err := m.StoredUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestManager_RejectsSeparatorInUserID(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	_, err := m.StartSession(ctx, "alice", "Lima")
	require.NoError(t, err)
	_, err = m.TrackTurn(ctx, user("alice", "plan a trip to Lima", domain.IntentNewItinerary, nil))
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx, "alice"))

	_, err = m.StartSession(ctx, "alice:work", "Oslo")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
	_, err = m.TrackTurn(ctx, user("alice:work", "hi", "", nil))
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
	_, err = m.CurrentSession("alice:work")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
	_, err = m.Messages(ctx, "alice:work")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
	assert.ErrorIs(t, m.ClearUserData(ctx, "alice:"), domain.ErrInvalidUser)

	sessions, err := m.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "alice's archive survives the rejected calls")
	users, err := m.StoredUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}

func TestClearUserData_LeavesOtherUsers(t *testing.T) {
	ctx := context.Background()
	m := newHarness().manager(t)

	for _, id := range []string{"alice", "alicia"} {
		_, err := m.TrackTurn(ctx, user(id, "hello", domain.IntentGeneralChat, nil))
		require.NoError(t, err)
		require.NoError(t, m.EndSession(ctx, id))
	}

	require.NoError(t, m.ClearUserData(ctx, "alice"))

	gone, err := m.SessionHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, gone)
	kept, err := m.SessionHistory(ctx, "alicia")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	users, err := m.StoredUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alicia"}, users)
}

func TestTrackTurn_RedactsCompressedHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.store = middleware.Chain(memory.NewStore(), middleware.NewRedactMiddleware(middleware.DefaultRedactPatterns))
	h.regOpts = []registry.Option{registry.WithPersistFilter(middleware.NewRedactor(middleware.DefaultRedactPatterns))}
	first := h.manager(t)

	_, err := first.TrackTurn(ctx, user("alice", "mail me at alice@example.com", "", nil))
	require.NoError(t, err)
	live, err := first.ConversationHistory(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "mail me at alice@example.com", live[0].Content)

	second := h.manager(t)
	stored, err := second.ConversationHistory(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "mail me at ***", stored[0].Content)
}
