package conversation

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/google/uuid"
)

const (
	maxPreferences     = 20
	maxPendingFollowUp = 5
	generalRecType     = "general"
)

// Config bounds the ledger.
type Config struct {
	MaxTurns           int           `mapstructure:"max_turns"`
	MaxRecommendations int           `mapstructure:"max_recommendations"`
	MaxItems           int           `mapstructure:"max_items"`
	FollowUpWindow     time.Duration `mapstructure:"follow_up_window"`
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		MaxTurns:           15,
		MaxRecommendations: 10,
		MaxItems:           5,
		FollowUpWindow:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTurns <= 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.MaxRecommendations <= 0 {
		c.MaxRecommendations = d.MaxRecommendations
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.FollowUpWindow <= 0 {
		c.FollowUpWindow = d.FollowUpWindow
	}
	return c
}

// State is a serializable copy of the ledger.
type State struct {
	Turns   []domain.Turn              `json:"turns"`
	Context domain.ConversationContext `json:"context"`
}

// Ledger is the bounded turn history of one conversation. It is safe for
// concurrent use.
type Ledger struct {
	cfg        Config
	now        func() time.Time
	newID      func() string
	classifier FollowUpClassifier
	extractor  RecommendationExtractor

	mu              sync.RWMutex
	turns           []domain.Turn
	ctx             domain.ConversationContext
	lastAssistantID string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithClassifier replaces the follow-up heuristic.
func WithClassifier(c FollowUpClassifier) Option {
	return func(l *Ledger) {
		l.classifier = c
	}
}

// WithExtractor replaces the recommendation extractor.
func WithExtractor(e RecommendationExtractor) Option {
	return func(l *Ledger) {
		l.extractor = e
	}
}

// WithIDGenerator replaces the turn ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		l.newID = fn
	}
}

// NewLedger creates an empty ledger in the greeting phase. Zero fields of cfg
// take their default.
func NewLedger(cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:        cfg.withDefaults(),
		now:        time.Now,
		newID:      newTurnID,
		classifier: NewHeuristicFollowUp(nil, 0),
		extractor:  ListExtractor{},
		ctx:        emptyContext(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newTurnID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func emptyContext() domain.ConversationContext {
	return domain.ConversationContext{
		Phase:                 domain.PhaseGreeting,
		RecentRecommendations: []domain.Recommendation{},
		MentionedPreferences:  []string{},
		PendingFollowUps:      []string{},
	}
}

// TurnOption sets classifier metadata on a turn.
type TurnOption func(*domain.Turn)

// WithIntent records the classified intent.
func WithIntent(intent domain.Intent) TurnOption {
	return func(t *domain.Turn) {
		t.Intent = intent
	}
}

// WithConfidence records the classifier confidence.
func WithConfidence(c float64) TurnOption {
	return func(t *domain.Turn) {
		t.Confidence = &c
	}
}

// WithParameters records the extracted slots.
func WithParameters(p domain.Parameters) TurnOption {
	return func(t *domain.Turn) {
		t.Parameters = cloneParameters(&p)
	}
}

// AddTurn appends a turn and updates the context. A user turn classified as a
// follow-up gets FollowUpTo set to the last assistant turn. An assistant turn
// listing items records a recommendation.
func (l *Ledger) AddTurn(role domain.Role, content string, opts ...TurnOption) domain.Turn {
	turn := domain.Turn{
		ID:        l.newID(),
		Role:      role,
		Content:   content,
		Timestamp: l.now(),
	}
	for _, opt := range opts {
		opt(&turn)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch role {
	case domain.RoleUser:
		followUp := l.lastAssistantID != "" &&
			l.classifier.IsFollowUp(content, l.ctx.RecentRecommendations, turn.Timestamp, l.cfg.FollowUpWindow)
		if followUp {
			turn.FollowUpTo = l.lastAssistantID
		}
		l.applyUserTurn(&turn, followUp)
	case domain.RoleAssistant:
		l.lastAssistantID = turn.ID
		l.applyAssistantTurn(&turn)
	}

	l.turns = appendBounded(l.turns, turn, l.cfg.MaxTurns)
	return cloneTurn(turn)
}

func (l *Ledger) applyUserTurn(turn *domain.Turn, followUp bool) {
	if turn.Intent != "" || followUp {
		l.ctx.Phase = domain.PhaseForIntent(turn.Intent, followUp)
	}

	p := turn.Parameters
	if p == nil {
		return
	}
	if place := p.Place(); place != "" {
		l.ctx.CurrentDestination = place
	}
	if p.RecommendationType != "" {
		l.ctx.ActiveRecommendationType = p.RecommendationType
	}
	for _, pref := range p.Preferences {
		pref = strings.TrimSpace(pref)
		if pref == "" || slices.ContainsFunc(l.ctx.MentionedPreferences, func(s string) bool {
			return strings.EqualFold(s, pref)
		}) {
			continue
		}
		l.ctx.MentionedPreferences = appendBounded(l.ctx.MentionedPreferences, pref, maxPreferences)
	}
	if turn.Intent == domain.IntentAskQuestions && p.Question != "" {
		l.ctx.PendingFollowUps = appendBounded(l.ctx.PendingFollowUps, p.Question, maxPendingFollowUp)
	}
}

func (l *Ledger) applyAssistantTurn(turn *domain.Turn) {
	l.ctx.PendingFollowUps = l.ctx.PendingFollowUps[:0]

	items := l.extractor.Extract(turn.Content, l.cfg.MaxItems)
	if len(items) == 0 {
		return
	}
	if len(items) > l.cfg.MaxItems {
		items = items[:l.cfg.MaxItems]
	}
	recType := l.ctx.ActiveRecommendationType
	if recType == "" {
		recType = generalRecType
	}
	l.ctx.RecentRecommendations = appendBounded(l.ctx.RecentRecommendations, domain.Recommendation{
		Type:        recType,
		Items:       items,
		Destination: l.ctx.CurrentDestination,
		Timestamp:   turn.Timestamp,
	}, l.cfg.MaxRecommendations)
}

// appendBounded appends v and drops the oldest elements past limit.
func appendBounded[T any](list []T, v T, limit int) []T {
	list = append(list, v)
	if over := len(list) - limit; over > 0 {
		list = slices.Delete(list, 0, over)
	}
	return list
}

// IsFollowUp classifies text against recommendations recorded within the
// configured window.
func (l *Ledger) IsFollowUp(text string) bool {
	return l.IsFollowUpWithin(text, l.cfg.FollowUpWindow)
}

// IsFollowUpWithin classifies text against recommendations recorded within
// the given window.
func (l *Ledger) IsFollowUpWithin(text string, within time.Duration) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.classifier.IsFollowUp(text, l.ctx.RecentRecommendations, l.now(), within)
}

// RecentHistory returns up to n of the most recent turns, oldest first.
// n <= 0 returns every retained turn.
func (l *Ledger) RecentHistory(n int) []domain.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && n < len(l.turns) {
		start = len(l.turns) - n
	}
	out := make([]domain.Turn, 0, len(l.turns)-start)
	for _, t := range l.turns[start:] {
		out = append(out, cloneTurn(t))
	}
	return out
}

// Len returns the number of retained turns.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Context returns a copy of the conversation context.
func (l *Ledger) Context() domain.ConversationContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ctx.Clone()
}

// Snapshot returns a copy of the ledger for persistence.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	turns := make([]domain.Turn, len(l.turns))
	for i, t := range l.turns {
		turns[i] = cloneTurn(t)
	}
	return State{Turns: turns, Context: l.ctx.Clone()}
}

// Restore replaces the ledger content with s, applying the configured bounds.
func (l *Ledger) Restore(s State) {
	turns := make([]domain.Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		turns = append(turns, cloneTurn(t))
	}
	if over := len(turns) - l.cfg.MaxTurns; over > 0 {
		turns = turns[over:]
	}

	ctx := s.Context.Clone()
	if ctx.Phase == "" {
		ctx.Phase = domain.PhaseGreeting
	}
	if over := len(ctx.RecentRecommendations) - l.cfg.MaxRecommendations; over > 0 {
		ctx.RecentRecommendations = ctx.RecentRecommendations[over:]
	}

	lastAssistant := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleAssistant {
			lastAssistant = turns[i].ID
			break
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = turns
	l.ctx = ctx
	l.lastAssistantID = lastAssistant
}

// Reset empties the ledger.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
	l.ctx = emptyContext()
	l.lastAssistantID = ""
}

func cloneTurn(t domain.Turn) domain.Turn {
	t.Parameters = cloneParameters(t.Parameters)
	if t.Confidence != nil {
		c := *t.Confidence
		t.Confidence = &c
	}
	return t
}

func cloneParameters(p *domain.Parameters) *domain.Parameters {
	if p == nil {
		return nil
	}
	out := *p
	out.Preferences = slices.Clone(p.Preferences)
	out.Extra = maps.Clone(p.Extra)
	return &out
}
