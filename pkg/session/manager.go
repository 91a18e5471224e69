package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tripchat/internal/logging"
	"github.com/aretw0/tripchat/pkg/consistency"
	"github.com/aretw0/tripchat/pkg/conversation"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/ports"
	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/google/uuid"
)

// lockTTL bounds how long a distributed lock survives a crashed holder.
const lockTTL = 30 * time.Second

// Storage keys inside the user-scoped namespaces.
const (
	keyCurrent  = "current"
	keySessions = "sessions"
	keyRecent   = "recent"
)

// Config bounds the manager.
type Config struct {
	// SessionTimeout is the idle time after which a session is not restored.
	SessionTimeout time.Duration `mapstructure:"timeout"`
	// MaxSessionHistory bounds the ended sessions kept per user.
	MaxSessionHistory int `mapstructure:"max_history"`
	// MaxMessages bounds the cached user message list.
	MaxMessages int `mapstructure:"max_messages"`
	// MaxContentSize bounds the bytes of one turn.
	MaxContentSize int `mapstructure:"max_content_size"`
	// MaxResident bounds how many users stay in memory. Zero is unbounded;
	// one keeps a single current session per manager.
	MaxResident int `mapstructure:"max_resident"`
	// Ledger bounds each conversation.
	Ledger conversation.Config `mapstructure:"ledger"`
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:    30 * time.Minute,
		MaxSessionHistory: 20,
		MaxMessages:       100,
		MaxContentSize:    DefaultMaxContentSize,
		Ledger:            conversation.DefaultConfig(),
	}
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// resident is a user's conversation held in memory.
type resident struct {
	session  *domain.Session
	ledger   *conversation.Ledger
	lastUsed time.Time // guarded by Manager.residentsMu
}

// Manager orchestrates conversation sessions. It is safe for concurrent use.
// It uses reference counting to garbage collect unused per-user locks.
type Manager struct {
	reg        *registry.Registry
	cfg        Config
	validator  *consistency.Validator
	ledgerOpts []conversation.Option
	now        func() time.Time
	newID      func() string
	hooks      domain.LifecycleHooks

	mu    sync.Mutex            // guards locks
	locks map[string]*lockEntry // per-user locks

	residentsMu sync.Mutex
	residents   map[string]*resident

	locker ports.DistributedLocker
	logger *slog.Logger

	unsubscribe func()
}

// Option configures the Manager.
type Option func(*Manager)

// WithConfig replaces the default bounds.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces time.Now for sessions and their ledgers.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithValidator replaces the destination-consistency validator.
func WithValidator(v *consistency.Validator) Option {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithLedgerOptions passes options to every conversation ledger, for example
// a different follow-up classifier.
func WithLedgerOptions(opts ...conversation.Option) Option {
	return func(m *Manager) {
		m.ledgerOpts = append(m.ledgerOpts, opts...)
	}
}

// WithLifecycleHooks installs session observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// NewManager creates a session manager persisting through reg. Call Init
// before use and Close when done.
func NewManager(reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		reg:       reg,
		cfg:       DefaultConfig(),
		validator: consistency.New(),
		now:       time.Now,
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		locks:     make(map[string]*lockEntry),
		residents: make(map[string]*resident),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxSessionHistory <= 0 {
		m.cfg.MaxSessionHistory = DefaultConfig().MaxSessionHistory
	}
	if m.cfg.MaxMessages <= 0 {
		m.cfg.MaxMessages = DefaultConfig().MaxMessages
	}
	return m
}

// Init registers the namespaces the manager needs, keeping any the caller
// already registered, and subscribes the message cache to conversation resets.
func (m *Manager) Init(ctx context.Context) error {
	for _, p := range registry.DefaultPolicies() {
		err := m.reg.Register(ctx, p)
		if err != nil && !errors.Is(err, domain.ErrNamespaceExists) {
			return fmt.Errorf("register %s: %w", p.Namespace, err)
		}
	}
	m.unsubscribe = m.reg.Subscribe(registry.EventConversationReset, func(ctx context.Context, userID string) {
		if err := m.reg.Delete(ctx, registry.UserMessages, userID, keyRecent); err != nil {
			m.logger.Warn("message cache not invalidated", "user", userID, "err", err)
		}
	})
	return nil
}

// Close flushes every resident conversation and detaches from the registry.
func (m *Manager) Close(ctx context.Context) error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m.Flush(ctx)
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(userID) after unlocking.
func (m *Manager) acquire(userID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[userID]
	if !exists {
		entry = &lockEntry{}
		m.locks[userID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[userID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, userID)
	}
}

// WithLock executes fn while holding the lock for userID.
func (m *Manager) WithLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	if err := registry.ValidateUserID(userID); err != nil {
		return err
	}
	entry := m.acquire(userID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(userID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "session:"+userID, lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"user", userID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) newLedger() *conversation.Ledger {
	opts := append([]conversation.Option{conversation.WithClock(m.now)}, m.ledgerOpts...)
	return conversation.NewLedger(m.cfg.Ledger, opts...)
}

func (m *Manager) resident(userID string) (*resident, bool) {
	m.residentsMu.Lock()
	defer m.residentsMu.Unlock()
	r, ok := m.residents[userID]
	return r, ok
}

func (m *Manager) touch(r *resident) {
	m.residentsMu.Lock()
	defer m.residentsMu.Unlock()
	r.lastUsed = m.now()
}

func (m *Manager) dropResident(userID string) {
	m.residentsMu.Lock()
	defer m.residentsMu.Unlock()
	delete(m.residents, userID)
}

// admit makes r the resident conversation of userID. When MaxResident is
// reached, the least recently used conversations of other users are dropped
// from memory and returned; the caller flushes them with release once it no
// longer holds userID's lock.
func (m *Manager) admit(userID string, r *resident) map[string]*resident {
	m.residentsMu.Lock()
	defer m.residentsMu.Unlock()
	r.lastUsed = m.now()
	m.residents[userID] = r

	limit := m.cfg.MaxResident
	if limit <= 0 {
		return nil
	}
	var evicted map[string]*resident
	for len(m.residents) > limit {
		oldestID, oldest := "", (*resident)(nil)
		for id, other := range m.residents {
			if id == userID {
				continue
			}
			if oldest == nil || other.lastUsed.Before(oldest.lastUsed) {
				oldestID, oldest = id, other
			}
		}
		if oldest == nil {
			break
		}
		delete(m.residents, oldestID)
		if evicted == nil {
			evicted = make(map[string]*resident)
		}
		evicted[oldestID] = oldest
	}
	return evicted
}

// releaseEvicted persists conversations dropped by admit.
func (m *Manager) releaseEvicted(ctx context.Context, evicted map[string]*resident) {
	for id, r := range evicted {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			if _, back := m.resident(id); back {
				return nil
			}
			return m.persist(ctx, id, r)
		})
		if err != nil {
			m.logger.Warn("released session not flushed", "user", id, "err", err)
			continue
		}
		m.logger.Debug("session released from memory", "user", id, "session", r.session.ID)
	}
}
