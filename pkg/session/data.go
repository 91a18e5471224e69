package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/tripchat/pkg/conversation"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/registry"
)

const topN = 5

// persist writes the session, its context and its turn history. Callers hold
// the user lock.
func (m *Manager) persist(ctx context.Context, userID string, r *resident) error {
	state := r.ledger.Snapshot()
	if err := m.reg.Set(ctx, registry.ConversationSession, userID, keyCurrent, r.session); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := m.reg.Set(ctx, registry.ConversationContext, userID, keyCurrent, state.Context); err != nil {
		return fmt.Errorf("persist context: %w", err)
	}
	if err := m.reg.Set(ctx, registry.ConversationHistory, userID, keyCurrent, state.Turns); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func (m *Manager) clearCurrent(ctx context.Context, userID string) error {
	for _, ns := range []registry.NamespaceID{
		registry.ConversationSession,
		registry.ConversationContext,
		registry.ConversationHistory,
	} {
		if err := m.reg.Delete(ctx, ns, userID, keyCurrent); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) sessionHistory(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := registry.GetAs[[]domain.Session](ctx, m.reg, registry.SessionHistory, userID, keySessions)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, nil
	}
	return sessions, err
}

// archive appends an ended session to the user's bounded history.
func (m *Manager) archive(ctx context.Context, userID string, s domain.Session) error {
	sessions, err := m.sessionHistory(ctx, userID)
	if err != nil {
		return err
	}
	sessions = append(sessions, s)
	if over := len(sessions) - m.cfg.MaxSessionHistory; over > 0 {
		sessions = sessions[over:]
	}
	return m.reg.Set(ctx, registry.SessionHistory, userID, keySessions, sessions)
}

// SessionHistory returns the user's ended sessions, oldest first.
func (m *Manager) SessionHistory(ctx context.Context, userID string) ([]domain.Session, error) {
	var out []domain.Session
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		var err error
		out, err = m.sessionHistory(ctx, userID)
		return err
	})
	return out, err
}

// ConversationHistory returns up to n recent turns of the user's session.
// Persisted history whose destination disagrees with the session is
// discarded and reported as empty.
func (m *Manager) ConversationHistory(ctx context.Context, userID string, n int) ([]domain.Turn, error) {
	out := []domain.Turn{}
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		if r, ok := m.liveResident(ctx, userID); ok {
			out = r.ledger.RecentHistory(n)
			return nil
		}
		sess, err := registry.GetAs[domain.Session](ctx, m.reg, registry.ConversationSession, userID, keyCurrent)
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		turns, err := registry.GetAs[[]domain.Turn](ctx, m.reg, registry.ConversationHistory, userID, keyCurrent)
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		turns, _ = m.validated(ctx, userID, turns, sess.Destination)
		if n > 0 && len(turns) > n {
			turns = turns[len(turns)-n:]
		}
		out = turns
		return nil
	})
	return out, err
}

// Messages returns the user's own messages of the current conversation,
// cached in the user-messages namespace until the next turn or reset.
func (m *Manager) Messages(ctx context.Context, userID string) ([]domain.Turn, error) {
	if err := registry.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return registry.GetOrFetch(ctx, m.reg, registry.UserMessages, userID, keyRecent,
		func(ctx context.Context) ([]domain.Turn, error) {
			turns, err := m.ConversationHistory(ctx, userID, 0)
			if err != nil {
				return nil, err
			}
			out := []domain.Turn{}
			for _, t := range turns {
				if t.Role == domain.RoleUser {
					out = append(out, t)
				}
			}
			if over := len(out) - m.cfg.MaxMessages; over > 0 {
				out = out[over:]
			}
			return out, nil
		})
}

// ContextualSuggestions proposes next messages for the user's conversation.
func (m *Manager) ContextualSuggestions(userID string) []string {
	if r, ok := m.resident(userID); ok {
		return r.ledger.ContextualSuggestions()
	}
	return conversation.Suggest(domain.ConversationContext{Phase: domain.PhaseGreeting})
}

// Analytics folds the user's current and ended sessions.
func (m *Manager) Analytics(ctx context.Context, userID string) (domain.Analytics, error) {
	var sessions []domain.Session
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		history, err := m.sessionHistory(ctx, userID)
		if err != nil {
			return err
		}
		sessions = history
		if r, ok := m.resident(userID); ok {
			sessions = append(sessions, r.session.Clone())
			return nil
		}
		current, err := registry.GetAs[domain.Session](ctx, m.reg, registry.ConversationSession, userID, keyCurrent)
		if err == nil {
			sessions = append(sessions, current)
		}
		return nil
	})
	if err != nil {
		return domain.Analytics{}, err
	}
	return Summarize(sessions), nil
}

// Summarize computes analytics over sessions.
func Summarize(sessions []domain.Session) domain.Analytics {
	out := domain.Analytics{
		TotalSessions:   len(sessions),
		TopIntents:      []domain.Frequency{},
		TopDestinations: []domain.Frequency{},
	}
	if len(sessions) == 0 {
		return out
	}

	var messages, converted int
	intents := map[string]int{}
	destinations := map[string]int{}
	for _, s := range sessions {
		messages += s.TotalMessages
		if s.HasPhase(domain.PhaseItineraryPlanning) {
			converted++
		}
		for intent, n := range s.IntentCounts {
			intents[string(intent)] += n
		}
		if s.Destination != "" {
			destinations[s.Destination]++
		}
	}

	out.AverageSessionLength = float64(messages) / float64(len(sessions))
	out.ConversionRate = float64(converted) / float64(len(sessions)) * 100
	out.TopIntents = top(intents, topN)
	out.TopDestinations = top(destinations, topN)
	return out
}

// top returns the n most frequent labels, ties broken alphabetically.
func top(counts map[string]int, n int) []domain.Frequency {
	out := make([]domain.Frequency, 0, len(counts))
	for label, count := range counts {
		out = append(out, domain.Frequency{Label: label, Count: count})
	}
	slices.SortFunc(out, func(a, b domain.Frequency) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ClearUserData deletes everything stored for userID.
func (m *Manager) ClearUserData(ctx context.Context, userID string) error {
	return m.WithLock(ctx, userID, func(ctx context.Context) error {
		m.dropResident(userID)
		if err := m.reg.ClearUser(ctx, userID); err != nil {
			return err
		}
		m.reg.EmitConversationReset(ctx, userID)
		m.logger.Info("user data cleared", "user", userID)
		return nil
	})
}

// ClearAllData deletes every conversation of every user.
func (m *Manager) ClearAllData(ctx context.Context) error {
	m.residentsMu.Lock()
	m.residents = make(map[string]*resident)
	m.residentsMu.Unlock()

	m.reg.ClearAll(ctx)
	m.reg.EmitConversationReset(ctx, "")
	m.logger.Info("all conversation data cleared")
	return nil
}

// Flush persists every resident conversation.
func (m *Manager) Flush(ctx context.Context) error {
	var errs []error
	for _, userID := range m.ActiveUsers() {
		err := m.WithLock(ctx, userID, func(ctx context.Context) error {
			r, ok := m.resident(userID)
			if !ok {
				return nil
			}
			return m.persist(ctx, userID, r)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %q: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// StoredUsers lists the users with a current or archived session, sorted.
func (m *Manager) StoredUsers() ([]string, error) {
	seen := map[string]bool{}
	for _, ns := range []registry.NamespaceID{registry.ConversationSession, registry.SessionHistory} {
		keys, err := m.reg.Keys(ns)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if userID, _, ok := strings.Cut(k, ":"); ok && userID != "" {
				seen[userID] = true
			}
		}
	}
	for _, userID := range m.ActiveUsers() {
		seen[userID] = true
	}
	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	slices.Sort(users)
	return users, nil
}

// Export returns a portable copy of the user's conversation data.
func (m *Manager) Export(ctx context.Context, userID string) (*domain.ExportData, error) {
	out := &domain.ExportData{
		Version:    domain.ExportVersion,
		ExportedAt: m.now(),
		UserID:     userID,
		History:    []domain.Turn{},
		Sessions:   []domain.Session{},
	}
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		if r, ok := m.resident(userID); ok {
			if err := m.persist(ctx, userID, r); err != nil {
				return err
			}
		}
		if sess, err := registry.GetAs[domain.Session](ctx, m.reg, registry.ConversationSession, userID, keyCurrent); err == nil {
			out.Session = &sess
		}
		if turns, err := registry.GetAs[[]domain.Turn](ctx, m.reg, registry.ConversationHistory, userID, keyCurrent); err == nil {
			out.History = turns
		}
		sessions, err := m.sessionHistory(ctx, userID)
		if err != nil {
			return err
		}
		if sessions != nil {
			out.Sessions = sessions
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs, err := m.Messages(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.Messages = msgs
	return out, nil
}

// Import replaces the user's stored conversation data with data. The user's
// in-memory conversation is dropped and restored from the imported records
// on next access.
func (m *Manager) Import(ctx context.Context, data *domain.ExportData) error {
	if err := validateImport(data); err != nil {
		return err
	}
	userID := data.UserID

	return m.WithLock(ctx, userID, func(ctx context.Context) error {
		m.dropResident(userID)
		if err := m.clearCurrent(ctx, userID); err != nil {
			return err
		}
		if data.Session != nil {
			sess := data.Session.Clone()
			sess.UserID = userID
			if err := m.reg.Set(ctx, registry.ConversationSession, userID, keyCurrent, sess); err != nil {
				return err
			}
			if err := m.reg.Set(ctx, registry.ConversationContext, userID, keyCurrent, sess.Context); err != nil {
				return err
			}
			if err := m.reg.Set(ctx, registry.ConversationHistory, userID, keyCurrent, data.History); err != nil {
				return err
			}
		}
		sessions := data.Sessions
		if over := len(sessions) - m.cfg.MaxSessionHistory; over > 0 {
			sessions = sessions[over:]
		}
		if err := m.reg.Set(ctx, registry.SessionHistory, userID, keySessions, sessions); err != nil {
			return err
		}
		m.reg.EmitConversationReset(ctx, userID)
		m.logger.Info("conversation data imported", "user", userID, "sessions", len(sessions), "turns", len(data.History))
		return nil
	})
}

func validateImport(data *domain.ExportData) error {
	switch {
	case data == nil:
		return fmt.Errorf("%w: no data", domain.ErrInvalidImport)
	case data.Version != domain.ExportVersion:
		return fmt.Errorf("%w: unsupported version %d", domain.ErrInvalidImport, data.Version)
	case data.Session != nil && data.Session.ID == "":
		return fmt.Errorf("%w: session without id", domain.ErrInvalidImport)
	case data.Session != nil && data.Session.UserID != "" && data.Session.UserID != data.UserID:
		return fmt.Errorf("%w: session belongs to %q, not %q", domain.ErrInvalidImport, data.Session.UserID, data.UserID)
	case data.Session == nil && len(data.History) > 0:
		return fmt.Errorf("%w: history without a session", domain.ErrInvalidImport)
	}
	for _, t := range data.History {
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			return fmt.Errorf("%w: turn %q has role %q", domain.ErrInvalidImport, t.ID, t.Role)
		}
	}
	return nil
}
