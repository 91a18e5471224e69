package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tripchat/internal/logging"
	"github.com/aretw0/tripchat/pkg/cache"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/ports"
)

// Event names a registry-wide notification.
type Event string

// EventConversationReset tells dependent caches that a user's conversation
// started over.
const EventConversationReset Event = "conversation-reset"

// Listener receives registry events. userID may be empty.
type Listener func(ctx context.Context, userID string)

type namespace struct {
	policy Policy
	cache  *cache.Cache[json.RawMessage]
}

// Registry holds one cache per registered namespace.
type Registry struct {
	store  ports.KeyValueStore
	logger *slog.Logger
	now    func() time.Time
	hooks  func(NamespaceID) cache.Hooks
	filter func([]byte) []byte

	mu     sync.RWMutex
	spaces map[NamespaceID]*namespace

	listenersMu sync.Mutex
	listeners   map[Event]map[int]Listener
	nextID      int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock replaces time.Now for every namespace.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithHooks installs per-namespace cache hooks, typically metrics.
func WithHooks(hooks func(NamespaceID) cache.Hooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// WithPersistFilter rewrites every value JSON before it is persisted, ahead
// of compression, so masking applies to compressed namespaces too.
func WithPersistFilter(filter func([]byte) []byte) Option {
	return func(r *Registry) {
		r.filter = filter
	}
}

// New creates an empty registry. Namespaces with Persistence write through to
// store; a nil store keeps every namespace in memory only.
func New(store ports.KeyValueStore, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		logger:    logging.NewNop(),
		now:       time.Now,
		spaces:    make(map[NamespaceID]*namespace),
		listeners: make(map[Event]map[int]Listener),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a namespace. Persistent namespaces are hydrated from the
// store; corrupt records are dropped.
func (r *Registry) Register(ctx context.Context, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.spaces[p.Namespace]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNamespaceExists, p.Namespace)
	}

	opts := []cache.Option[json.RawMessage]{
		cache.WithLogger[json.RawMessage](r.logger.With("namespace", p.Namespace)),
		cache.WithClock[json.RawMessage](r.now),
		cache.WithCloner(cloneRaw),
	}
	if p.Persistence && r.store != nil {
		opts = append(opts, cache.WithStore[json.RawMessage](r.store))
		if r.filter != nil {
			opts = append(opts, cache.WithPersistFilter[json.RawMessage](r.filter))
		}
	}
	if r.hooks != nil {
		opts = append(opts, cache.WithHooks[json.RawMessage](r.hooks(p.Namespace)))
	}

	c, err := cache.New(cache.Config{
		TTL:         p.TTL,
		StaleWindow: p.StaleWindow,
		MaxEntries:  p.MaxEntries,
		Compress:    p.Compress,
		Prefix:      string(p.Namespace) + ":",
	}, opts...)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPolicy, p.Namespace, err)
	}
	r.spaces[p.Namespace] = &namespace{policy: p, cache: c}
	r.mu.Unlock()

	if p.Persistence {
		n := c.Hydrate(ctx)
		r.logger.Debug("namespace hydrated", "namespace", p.Namespace, "entries", n)
	}
	return nil
}

// RegisterAll registers each policy in order and stops at the first error.
func (r *Registry) RegisterAll(ctx context.Context, policies []Policy) error {
	for _, p := range policies {
		if err := r.Register(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Policy returns the registered policy of ns.
func (r *Registry) Policy(ns NamespaceID) (Policy, error) {
	space, err := r.space(ns)
	if err != nil {
		return Policy{}, err
	}
	return space.policy, nil
}

func (r *Registry) space(ns NamespaceID) (*namespace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	space, ok := r.spaces[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNamespaceNotRegistered, ns)
	}
	return space, nil
}

// ValidateUserID reports whether userID can be used as a key segment. The
// separator is rejected so one user's key prefix never covers another's.
func ValidateUserID(userID string) error {
	if strings.ContainsRune(userID, ':') {
		return fmt.Errorf("%w: %q contains ':'", domain.ErrInvalidUser, userID)
	}
	return nil
}

// cacheKey is the key inside the namespace cache; the cache adds the
// namespace prefix when persisting.
func (n *namespace) cacheKey(userID, key string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	if n.policy.UserScoped && userID != "" {
		return userID + ":" + key, nil
	}
	return key, nil
}

// StorageKey returns the physical key used in the backing store.
func (r *Registry) StorageKey(ns NamespaceID, userID, key string) (string, error) {
	space, err := r.space(ns)
	if err != nil {
		return "", err
	}
	k, err := space.cacheKey(userID, key)
	if err != nil {
		return "", err
	}
	return string(ns) + ":" + k, nil
}

// Get returns the raw JSON stored under key, or domain.ErrKeyNotFound.
func (r *Registry) Get(ctx context.Context, ns NamespaceID, userID, key string) (json.RawMessage, error) {
	space, err := r.space(ns)
	if err != nil {
		return nil, err
	}
	k, err := space.cacheKey(userID, key)
	if err != nil {
		return nil, err
	}
	v, ok := space.cache.Get(ctx, k)
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return v, nil
}

// Set stores value as JSON under key with the namespace TTL.
func (r *Registry) Set(ctx context.Context, ns NamespaceID, userID, key string, value any) error {
	return r.SetWithTTL(ctx, ns, userID, key, value, 0)
}

// SetWithTTL stores value with a per-entry TTL. ttl <= 0 uses the namespace TTL.
func (r *Registry) SetWithTTL(ctx context.Context, ns NamespaceID, userID, key string, value any, ttl time.Duration) error {
	space, err := r.space(ns)
	if err != nil {
		return err
	}
	k, err := space.cacheKey(userID, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", ns, key, err)
	}
	space.cache.SetWithTTL(ctx, k, data, ttl)
	return nil
}

// Delete removes key from ns.
func (r *Registry) Delete(ctx context.Context, ns NamespaceID, userID, key string) error {
	space, err := r.space(ns)
	if err != nil {
		return err
	}
	k, err := space.cacheKey(userID, key)
	if err != nil {
		return err
	}
	space.cache.Delete(ctx, k)
	return nil
}

// Clear removes every entry of ns, for all users.
func (r *Registry) Clear(ctx context.Context, ns NamespaceID) error {
	space, err := r.space(ns)
	if err != nil {
		return err
	}
	space.cache.Clear(ctx)
	return nil
}

// ClearUser removes every entry of userID from all user-scoped namespaces.
func (r *Registry) ClearUser(ctx context.Context, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if userID == "" {
		return nil
	}
	for _, space := range r.snapshot() {
		if space.policy.UserScoped {
			space.cache.DeletePrefix(ctx, userID+":")
		}
	}
	return nil
}

// ClearAll removes every entry of every namespace.
func (r *Registry) ClearAll(ctx context.Context) {
	for _, space := range r.snapshot() {
		space.cache.Clear(ctx)
	}
}

// Keys returns the in-memory keys of ns, as seen inside the namespace
// ("userID:key" for user-scoped entries).
func (r *Registry) Keys(ns NamespaceID) ([]string, error) {
	space, err := r.space(ns)
	if err != nil {
		return nil, err
	}
	return space.cache.Keys(), nil
}

// Subscribe registers fn for event and returns a function that removes it.
func (r *Registry) Subscribe(event Event, fn Listener) (unsubscribe func()) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	if r.listeners[event] == nil {
		r.listeners[event] = make(map[int]Listener)
	}
	id := r.nextID
	r.nextID++
	r.listeners[event][id] = fn
	return func() {
		r.listenersMu.Lock()
		defer r.listenersMu.Unlock()
		delete(r.listeners[event], id)
	}
}

// EmitConversationReset notifies subscribers that userID's conversation was
// reset. It deletes nothing itself.
func (r *Registry) EmitConversationReset(ctx context.Context, userID string) {
	r.emit(ctx, EventConversationReset, userID)
}

func (r *Registry) emit(ctx context.Context, event Event, userID string) {
	r.listenersMu.Lock()
	ids := make([]int, 0, len(r.listeners[event]))
	for id := range r.listeners[event] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.listeners[event][id])
	}
	r.listenersMu.Unlock()

	r.logger.Debug("registry event", "event", event, "user", userID, "listeners", len(fns))
	for _, fn := range fns {
		fn(ctx, userID)
	}
}

// NamespaceStats describes one registered namespace.
type NamespaceStats struct {
	Policy  Policy `json:"policy"`
	Entries int    `json:"entries"`
}

// Stats returns per-namespace entry counts ordered by namespace.
func (r *Registry) Stats() []NamespaceStats {
	spaces := r.snapshot()
	out := make([]NamespaceStats, 0, len(spaces))
	for _, space := range spaces {
		out = append(out, NamespaceStats{Policy: space.policy, Entries: space.cache.Len()})
	}
	return out
}

func (r *Registry) snapshot() []*namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*namespace, 0, len(r.spaces))
	for _, space := range r.spaces {
		out = append(out, space)
	}
	slices.SortFunc(out, func(a, b *namespace) int {
		return strings.Compare(string(a.policy.Namespace), string(b.policy.Namespace))
	})
	return out
}

// Close stops background refreshes of every namespace.
func (r *Registry) Close() {
	for _, space := range r.snapshot() {
		space.cache.Close()
	}
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	return bytes.Clone(v)
}
