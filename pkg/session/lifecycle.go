package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/tripchat/pkg/conversation"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/registry"
)

// TurnInput is one message routed through a session, with the classifier
// output for user messages.
type TurnInput struct {
	UserID     string             `json:"userId,omitempty"`
	Role       domain.Role        `json:"role"`
	Content    string             `json:"content"`
	Intent     domain.Intent      `json:"intent,omitempty"`
	Confidence *float64           `json:"confidence,omitempty"`
	Parameters *domain.Parameters `json:"parameters,omitempty"`
}

// StartSession returns the user's active session, restoring it from storage
// when possible, or starts a new one. Calling it again without EndSession
// returns the same session unchanged.
func (m *Manager) StartSession(ctx context.Context, userID, destination string) (*domain.Session, error) {
	var out domain.Session
	var evicted map[string]*resident
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		r, ev, err := m.current(ctx, userID, destination)
		if err != nil {
			return err
		}
		evicted = ev
		out = r.session.Clone()
		return nil
	})
	m.releaseEvicted(ctx, evicted)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume restores the user's persisted session without starting a new one.
// It returns domain.ErrSessionNotFound when nothing restorable is stored.
func (m *Manager) Resume(ctx context.Context, userID string) (*domain.Session, error) {
	var out domain.Session
	var evicted map[string]*resident
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		if r, ok := m.liveResident(ctx, userID); ok {
			m.touch(r)
			out = r.session.Clone()
			return nil
		}
		r, err := m.restore(ctx, userID)
		if err != nil {
			return err
		}
		evicted = m.admit(userID, r)
		m.emitStart(ctx, r.session, true)
		out = r.session.Clone()
		return nil
	})
	m.releaseEvicted(ctx, evicted)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// current returns the live conversation of userID: the resident one, a
// restored one, or a new one. Callers hold the user lock.
func (m *Manager) current(ctx context.Context, userID, destination string) (*resident, map[string]*resident, error) {
	if r, ok := m.liveResident(ctx, userID); ok {
		m.touch(r)
		return r, nil, nil
	}

	r, err := m.restore(ctx, userID)
	if err == nil {
		evicted := m.admit(userID, r)
		m.emitStart(ctx, r.session, true)
		return r, evicted, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil, err
	}

	r = m.create(userID, destination)
	if err := m.persist(ctx, userID, r); err != nil {
		return nil, nil, err
	}
	evicted := m.admit(userID, r)
	m.reg.EmitConversationReset(ctx, userID)
	m.emitStart(ctx, r.session, false)
	m.logger.Info("session started", "user", userID, "session", r.session.ID)
	return r, evicted, nil
}

// liveResident returns the resident conversation unless it timed out, in
// which case it is ended.
func (m *Manager) liveResident(ctx context.Context, userID string) (*resident, bool) {
	r, ok := m.resident(userID)
	if !ok {
		return nil, false
	}
	if !r.session.Expired(m.now(), m.cfg.SessionTimeout) {
		return r, true
	}
	if err := m.end(ctx, userID, r, "timeout"); err != nil {
		m.logger.Warn("timed out session not archived", "user", userID, "err", err)
	}
	return nil, false
}

func (m *Manager) create(userID, destination string) *resident {
	now := m.now()
	ledger := m.newLedger()
	if destination != "" {
		state := ledger.Snapshot()
		state.Context.CurrentDestination = destination
		ledger.Restore(state)
	}
	return &resident{
		session: &domain.Session{
			ID:                 m.newID(),
			UserID:             userID,
			StartTime:          now,
			LastActiveTime:     now,
			Destination:        destination,
			ConversationPhases: []domain.Phase{domain.PhaseGreeting},
			Context:            ledger.Context(),
			IsActive:           true,
			IntentCounts:       map[domain.Intent]int{},
		},
		ledger: ledger,
	}
}

// restore loads the persisted conversation of userID. Expired sessions are
// archived and reported as domain.ErrSessionNotFound. History that mentions a
// different destination than the session is discarded.
func (m *Manager) restore(ctx context.Context, userID string) (*resident, error) {
	sess, err := registry.GetAs[domain.Session](ctx, m.reg, registry.ConversationSession, userID, keyCurrent)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sess.IsActive {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Expired(m.now(), m.cfg.SessionTimeout) {
		sess.IsActive = false
		if err := m.archive(ctx, userID, sess); err != nil {
			return nil, err
		}
		if err := m.clearCurrent(ctx, userID); err != nil {
			return nil, err
		}
		m.emitEnd(ctx, &sess, "timeout")
		return nil, domain.ErrSessionNotFound
	}

	state := conversation.State{Context: sess.Context}
	if c, err := registry.GetAs[domain.ConversationContext](ctx, m.reg, registry.ConversationContext, userID, keyCurrent); err == nil {
		state.Context = c
	}
	turns, err := registry.GetAs[[]domain.Turn](ctx, m.reg, registry.ConversationHistory, userID, keyCurrent)
	if err == nil {
		var ok bool
		if state.Turns, ok = m.validated(ctx, userID, turns, sess.Destination); !ok {
			state.Context = discardRecommendations(state.Context, sess.Destination)
		}
	}

	sess.Context = state.Context
	ledger := m.newLedger()
	ledger.Restore(state)
	if sess.IntentCounts == nil {
		sess.IntentCounts = map[domain.Intent]int{}
	}
	m.logger.Debug("session restored", "user", userID, "session", sess.ID, "turns", len(state.Turns))
	return &resident{session: &sess, ledger: ledger}, nil
}

// validated returns turns when they agree with destination. Otherwise the
// persisted history is dropped along with the recommendations it produced,
// dependent caches are notified and an empty history is returned with false.
func (m *Manager) validated(ctx context.Context, userID string, turns []domain.Turn, destination string) ([]domain.Turn, bool) {
	kept, ok := m.validator.Recover(turns, destination)
	if ok {
		return kept, true
	}
	m.logger.Info("discarding restored history: destination mismatch",
		"user", userID, "destination", destination, "turns", len(turns))
	if err := m.reg.Delete(ctx, registry.ConversationHistory, userID, keyCurrent); err != nil {
		m.logger.Warn("mismatched history not deleted", "user", userID, "err", err)
	}
	if c, err := registry.GetAs[domain.ConversationContext](ctx, m.reg, registry.ConversationContext, userID, keyCurrent); err == nil {
		c = discardRecommendations(c, destination)
		if err := m.reg.Set(ctx, registry.ConversationContext, userID, keyCurrent, c); err != nil {
			m.logger.Warn("mismatched context not reset", "user", userID, "err", err)
		}
	}
	m.reg.EmitConversationReset(ctx, userID)
	return kept, false
}

// discardRecommendations drops the recommendation state tied to a discarded
// history and points the context back at the session destination.
func discardRecommendations(c domain.ConversationContext, destination string) domain.ConversationContext {
	c.CurrentDestination = destination
	c.ActiveRecommendationType = ""
	c.RecentRecommendations = []domain.Recommendation{}
	c.PendingFollowUps = []string{}
	return c
}

// TrackTurn routes a message through the user's session, starting one when
// none is active.
func (m *Manager) TrackTurn(ctx context.Context, in TurnInput) (domain.Turn, error) {
	if in.Role != domain.RoleUser && in.Role != domain.RoleAssistant {
		return domain.Turn{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidTurn, in.Role)
	}
	content, err := SanitizeContent(in.Content, m.cfg.MaxContentSize)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("%w: %w", domain.ErrInvalidTurn, err)
	}
	in.Content = content

	var turn domain.Turn
	var event *domain.TurnEvent
	var evicted map[string]*resident
	err = m.WithLock(ctx, in.UserID, func(ctx context.Context) error {
		r, ev, err := m.current(ctx, in.UserID, in.Parameters.Place())
		if err != nil {
			return err
		}
		evicted = ev

		var opts []conversation.TurnOption
		if in.Intent != "" {
			opts = append(opts, conversation.WithIntent(in.Intent))
		}
		if in.Confidence != nil {
			opts = append(opts, conversation.WithConfidence(*in.Confidence))
		}
		if in.Parameters != nil {
			opts = append(opts, conversation.WithParameters(*in.Parameters))
		}
		turn = r.ledger.AddTurn(in.Role, in.Content, opts...)

		s := r.session
		s.LastActiveTime = turn.Timestamp
		s.TotalMessages++
		if s.Destination == "" {
			s.Destination = in.Parameters.Place()
		}
		convCtx := r.ledger.Context()
		followUp := turn.FollowUpTo != ""
		if in.Role == domain.RoleUser && (in.Intent != "" || followUp) && !s.HasPhase(convCtx.Phase) {
			s.ConversationPhases = append(s.ConversationPhases, convCtx.Phase)
		}
		if in.Role == domain.RoleUser && in.Intent != "" {
			s.IntentCounts[in.Intent]++
		}
		s.Context = convCtx

		if err := m.persist(ctx, in.UserID, r); err != nil {
			return err
		}
		if err := m.reg.Delete(ctx, registry.UserMessages, in.UserID, keyRecent); err != nil {
			return err
		}

		event = &domain.TurnEvent{
			EventBase: domain.EventBase{Timestamp: turn.Timestamp, Type: domain.EventTurn, SessionID: s.ID, UserID: in.UserID},
			Role:      turn.Role,
			Intent:    turn.Intent,
			Phase:     convCtx.Phase,
			FollowUp:  followUp,
		}
		return nil
	})
	m.releaseEvicted(ctx, evicted)
	if err != nil {
		return domain.Turn{}, err
	}
	if m.hooks.OnTurn != nil {
		m.hooks.OnTurn(ctx, event)
	}
	return turn, nil
}

// EndSession archives the user's active session.
func (m *Manager) EndSession(ctx context.Context, userID string) error {
	return m.WithLock(ctx, userID, func(ctx context.Context) error {
		r, ok := m.liveResident(ctx, userID)
		if !ok {
			restored, err := m.restore(ctx, userID)
			if errors.Is(err, domain.ErrSessionNotFound) {
				return domain.ErrNoActiveSession
			}
			if err != nil {
				return err
			}
			r = restored
		}
		return m.end(ctx, userID, r, "ended")
	})
}

// end archives r, removes the current records and drops it from memory.
func (m *Manager) end(ctx context.Context, userID string, r *resident, reason string) error {
	sess := r.session.Clone()
	sess.IsActive = false
	sess.Context = r.ledger.Context()

	if err := m.archive(ctx, userID, sess); err != nil {
		return err
	}
	if err := m.clearCurrent(ctx, userID); err != nil {
		return err
	}
	m.dropResident(userID)
	m.emitEnd(ctx, &sess, reason)
	m.logger.Info("session ended", "user", userID, "session", sess.ID, "reason", reason, "messages", sess.TotalMessages)
	return nil
}

// CurrentSession returns a copy of the user's active in-memory session.
func (m *Manager) CurrentSession(userID string) (*domain.Session, error) {
	if err := registry.ValidateUserID(userID); err != nil {
		return nil, err
	}
	entry := m.acquire(userID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(userID)
	}()

	r, ok := m.resident(userID)
	if !ok || r.session.Expired(m.now(), m.cfg.SessionTimeout) {
		return nil, domain.ErrNoActiveSession
	}
	out := r.session.Clone()
	return &out, nil
}

// ActiveUsers returns the users with a conversation in memory.
func (m *Manager) ActiveUsers() []string {
	m.residentsMu.Lock()
	defer m.residentsMu.Unlock()
	out := make([]string, 0, len(m.residents))
	for id := range m.residents {
		out = append(out, id)
	}
	return out
}

func (m *Manager) emitStart(ctx context.Context, s *domain.Session, resumed bool) {
	if m.hooks.OnSessionStart == nil {
		return
	}
	m.hooks.OnSessionStart(ctx, &domain.SessionEvent{
		EventBase:     domain.EventBase{Timestamp: m.now(), Type: domain.EventSessionStart, SessionID: s.ID, UserID: s.UserID},
		Resumed:       resumed,
		TotalMessages: s.TotalMessages,
	})
}

func (m *Manager) emitEnd(ctx context.Context, s *domain.Session, reason string) {
	if m.hooks.OnSessionEnd == nil {
		return
	}
	m.hooks.OnSessionEnd(ctx, &domain.SessionEvent{
		EventBase:     domain.EventBase{Timestamp: m.now(), Type: domain.EventSessionEnd, SessionID: s.ID, UserID: s.UserID},
		Reason:        reason,
		TotalMessages: s.TotalMessages,
	})
}
