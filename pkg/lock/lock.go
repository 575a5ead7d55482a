package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held when ctx ends
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker serialises allocation passes per room
type Locker interface {
	// Acquire blocks until the room lock is held or ctx is done. The returned
	// function releases it.
	Acquire(ctx context.Context, roomID string) (release func(), err error)
}

// MemoryLocker holds one single-slot semaphore per room inside the process.
// A room's entry lives only while someone holds or waits for it.
type MemoryLocker struct {
	mu    sync.Mutex
	rooms map[string]*roomSlot
}

type roomSlot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{rooms: make(map[string]*roomSlot)}
}

func (l *MemoryLocker) join(roomID string) *roomSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.rooms[roomID]
	if !ok {
		slot = &roomSlot{ch: make(chan struct{}, 1)}
		l.rooms[roomID] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) leave(roomID string, slot *roomSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.rooms, roomID)
	}
}

// Rooms returns how many rooms are currently held or waited on
func (l *MemoryLocker) Rooms() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}

func (l *MemoryLocker) Acquire(ctx context.Context, roomID string) (func(), error) {
	slot := l.join(roomID)
	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.leave(roomID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.leave(roomID, slot)
		return nil, ErrNotAcquired
	}
}

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lock shared by every API instance
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	// Retry is the pause between attempts while the lock is busy
	Retry time.Duration
}

// NewRedisLocker creates a locker whose keys expire after ttl
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{Client: client, TTL: ttl, Retry: 50 * time.Millisecond}
}

func lockKey(roomID string) string {
	return "room_lock:" + roomID
}

func (l *RedisLocker) Acquire(ctx context.Context, roomID string) (func(), error) {
	key := lockKey(roomID)
	token := uuid.NewString()
	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrNotAcquired
			}
			return nil, err
		}
		if ok {
			return func() {
				// the caller's ctx may already be cancelled
				_ = releaseScript.Run(context.Background(), l.Client, []string{key}, token).Err()
			}, nil
		}

		timer := time.NewTimer(l.Retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrNotAcquired
		case <-timer.C:
		}
	}
}
