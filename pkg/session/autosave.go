package session

import (
	"context"
	"sync"
	"time"
)

// DefaultAutoSaveInterval is used when StartAutoSave gets a non-positive interval.
const DefaultAutoSaveInterval = 30 * time.Second

// AutoSaver periodically flushes resident conversations and ends idle ones.
// It bounds data loss on abrupt termination to one interval.
type AutoSaver struct {
	manager  *Manager
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// StartAutoSave starts a background flush loop owned by the returned handle.
// The loop stops when ctx is cancelled or Stop is called.
func (m *Manager) StartAutoSave(ctx context.Context, interval time.Duration) *AutoSaver {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a := &AutoSaver{
		manager:  m,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go a.run(loopCtx)
	return a
}

func (a *AutoSaver) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *AutoSaver) tick(ctx context.Context) {
	m := a.manager
	if n := m.ExpireIdle(ctx); n > 0 {
		m.logger.Debug("idle sessions ended", "count", n)
	}
	if err := m.Flush(ctx); err != nil {
		m.logger.Warn("auto-save failed", "err", err)
	}
}

// Stop ends the loop, waits for it and performs a final flush. It is safe to
// call more than once.
func (a *AutoSaver) Stop() {
	a.once.Do(func() {
		a.cancel()
		<-a.done
		if err := a.manager.Flush(context.Background()); err != nil {
			a.manager.logger.Warn("final auto-save failed", "err", err)
		}
	})
}

// ExpireIdle ends every resident session idle longer than the session
// timeout and returns how many were ended.
func (m *Manager) ExpireIdle(ctx context.Context) int {
	ended := 0
	for _, userID := range m.ActiveUsers() {
		_ = m.WithLock(ctx, userID, func(ctx context.Context) error {
			r, ok := m.resident(userID)
			if !ok || !r.session.Expired(m.now(), m.cfg.SessionTimeout) {
				return nil
			}
			if err := m.end(ctx, userID, r, "timeout"); err != nil {
				m.logger.Warn("idle session not ended", "user", userID, "err", err)
				return err
			}
			ended++
			return nil
		})
	}
	return ended
}
