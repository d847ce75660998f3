package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("appointment lock not acquired")
)

// lockRetryDelay is the pause between two attempts on a busy lock.
const lockRetryDelay = 25 * time.Millisecond

// Locker serialises transitions on a single appointment record.
type Locker interface {
	WithAppointmentLock(ctx context.Context, appointmentID string, fn func(ctx context.Context) error) error
}

type redisAppointmentLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisAppointmentLocker creates a locker that uses a per appointment Redis key,
// so API replicas sharing a store also share the lock.
func NewRedisAppointmentLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisAppointmentLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisAppointmentLocker) WithAppointmentLock(ctx context.Context, appointmentID string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:appointment:%s", appointmentID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisAppointmentLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire appointment lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisAppointmentLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release appointment lock: %w", err)
	}
	return nil
}

// localAppointmentLocker is the single-process fallback used when no Redis is configured.
// A slot lives only while someone holds or waits for it.
type localAppointmentLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
	wait  time.Duration
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalAppointmentLocker creates an in-process locker keyed by appointment id.
func NewLocalAppointmentLocker(wait time.Duration) Locker {
	return &localAppointmentLocker{
		slots: make(map[string]*lockSlot),
		wait:  wait,
	}
}

func (l *localAppointmentLocker) join(id string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *localAppointmentLocker) leave(id string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *localAppointmentLocker) WithAppointmentLock(ctx context.Context, appointmentID string, fn func(ctx context.Context) error) error {
	s := l.join(appointmentID)
	defer l.leave(appointmentID, s)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}
