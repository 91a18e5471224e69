package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/registry"
)

func TestManager_LockLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(memory.NewStore())
	defer reg.Close()
	mgr := NewManager(reg)
	if err := mgr.Init(ctx); err != nil {
		t.Fatal(err)
	}
	count := 500

	for i := 0; i < count; i++ {
		uid := fmt.Sprintf("user-%d", i)
		_, _ = mgr.StartSession(ctx, uid, "")
		_ = mgr.EndSession(ctx, uid)
	}

	lockCount := len(mgr.locks)
	t.Logf("Sessions Created: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after EndSession", lockCount)
	}
}
