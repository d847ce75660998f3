package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalLocker_SerialisesSameAppointment(t *testing.T) {
	locker := NewLocalAppointmentLocker(5 * time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithAppointmentLock(context.Background(), "appt-1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("lock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder at a time, saw %d", maxInside)
	}
}

func TestLocalLocker_DifferentAppointmentsDoNotBlock(t *testing.T) {
	locker := NewLocalAppointmentLocker(50 * time.Millisecond)

	err := locker.WithAppointmentLock(context.Background(), "a", func(ctx context.Context) error {
		return locker.WithAppointmentLock(ctx, "b", func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("expected nested lock on another id to succeed, got %v", err)
	}
}

func TestLocalLocker_TimesOutWhenBusy(t *testing.T) {
	locker := NewLocalAppointmentLocker(20 * time.Millisecond)

	err := locker.WithAppointmentLock(context.Background(), "a", func(ctx context.Context) error {
		return locker.WithAppointmentLock(ctx, "a", func(context.Context) error { return nil })
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestLocalLocker_PropagatesCallbackError(t *testing.T) {
	locker := NewLocalAppointmentLocker(time.Second)
	boom := errors.New("boom")

	err := locker.WithAppointmentLock(context.Background(), "a", func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	// the lock must be free again
	if err := locker.WithAppointmentLock(context.Background(), "a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected lock to be released, got %v", err)
	}
}

func TestLocalLocker_ForgetsReleasedSlots(t *testing.T) {
	locker := NewLocalAppointmentLocker(10 * time.Millisecond).(*localAppointmentLocker)

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("appt-%d", i)
		if err := locker.WithAppointmentLock(context.Background(), id, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("lock %s: %v", id, err)
		}
	}
	// a timed out waiter must not leak its slot either
	err := locker.WithAppointmentLock(context.Background(), "busy", func(ctx context.Context) error {
		return locker.WithAppointmentLock(ctx, "busy", func(context.Context) error { return nil })
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected the nested waiter to time out, got %v", err)
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	if n := len(locker.slots); n != 0 {
		t.Fatalf("expected no slots after every holder left, got %d", n)
	}
}

func newRedisLocker(t *testing.T, ttl, wait time.Duration) (*redisAppointmentLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisAppointmentLocker(rdb, ttl, wait).(*redisAppointmentLocker), mr
}

func TestRedisLocker_HoldsKeyDuringCallback(t *testing.T) {
	locker, mr := newRedisLocker(t, 5*time.Second, 50*time.Millisecond)
	key := "lock:appointment:a1"

	err := locker.WithAppointmentLock(context.Background(), "a1", func(ctx context.Context) error {
		if !mr.Exists(key) {
			t.Errorf("expected %s to be held", key)
		}
		if ttl := mr.TTL(key); ttl <= 0 || ttl > 5*time.Second {
			t.Errorf("expected a ttl on the lock key, got %s", ttl)
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("expected the callback context to carry the lock ttl")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("expected the key to be released after the callback")
	}
}

func TestRedisLocker_BusyKeyTimesOut(t *testing.T) {
	locker, mr := newRedisLocker(t, 5*time.Second, 60*time.Millisecond)
	key := "lock:appointment:a1"
	if err := mr.Set(key, "other-replica"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	called := false
	start := time.Now()
	err := locker.WithAppointmentLock(context.Background(), "a1", func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	if called {
		t.Fatal("callback ran without the lock")
	}
	if waited := time.Since(start); waited < 60*time.Millisecond {
		t.Fatalf("expected to wait for the busy key, gave up after %s", waited)
	}
	if got, _ := mr.Get(key); got != "other-replica" {
		t.Fatalf("busy key was overwritten: %q", got)
	}
}

func TestRedisLocker_ReleaseIgnoresForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t, 5*time.Second, 50*time.Millisecond)
	ctx := context.Background()
	key := "lock:appointment:a1"
	if err := mr.Set(key, "owner-token"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	if err := locker.release(ctx, key, "someone-else"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := mr.Get(key); got != "owner-token" {
		t.Fatalf("foreign release removed the key, now %q", got)
	}

	if err := locker.release(ctx, key, "owner-token"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("expected the owner's release to remove the key")
	}
}

func TestRedisLocker_ExpiredLockLetsNextCallerIn(t *testing.T) {
	locker, mr := newRedisLocker(t, 5*time.Second, 50*time.Millisecond)
	key := "lock:appointment:a1"
	if err := mr.Set(key, "crashed-replica"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	mr.SetTTL(key, 5*time.Second)
	mr.FastForward(6 * time.Second)

	called := false
	err := locker.WithAppointmentLock(context.Background(), "a1", func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected the expired lock to be taken, err=%v called=%v", err, called)
	}
}

func TestRedisLocker_StoreErrorIsReported(t *testing.T) {
	locker, mr := newRedisLocker(t, 5*time.Second, 50*time.Millisecond)
	mr.Close()

	err := locker.WithAppointmentLock(context.Background(), "a1", func(context.Context) error { return nil })
	if err == nil || errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected a connection error, got %v", err)
	}
}
