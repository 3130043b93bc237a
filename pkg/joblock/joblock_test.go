package joblock

import (
	"context"
	"testing"
	"time"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, ok, err := l.Acquire(ctx, "sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); ok {
		t.Fatal("second acquire should fail while held")
	}
	if _, ok, _ := l.Acquire(ctx, "sync", time.Minute); !ok {
		t.Fatal("different names must not contend")
	}

	release(ctx)
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestLocalLocker_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	stale, ok, _ := l.Acquire(ctx, "sync", time.Nanosecond)
	if !ok {
		t.Fatal("expected lock")
	}
	time.Sleep(time.Millisecond)

	_, ok, _ = l.Acquire(ctx, "sync", time.Minute)
	if !ok {
		t.Fatal("expired lock should be re-acquirable")
	}
	// Releasing the stale holder must not drop the new holder's lock.
	stale(ctx)
	if _, ok, _ := l.Acquire(ctx, "sync", time.Minute); ok {
		t.Fatal("stale release removed the current holder")
	}
}
