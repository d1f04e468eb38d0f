package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var (
	mu    sync.Mutex
	slots = map[string]chan struct{}{}
)

func slot(key string) chan struct{} {
	mu.Lock()
	defer mu.Unlock()
	ch, ok := slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		slots[key] = ch
	}
	return ch
}

// Mutex is an in-process lock for file databases, which have no advisory
// locks. Lockers with the same key exclude each other.
type Mutex struct {
	key  string
	held bool
}

func NewMutex(key string) *Mutex {
	return &Mutex{key: key}
}

func (m *Mutex) Acquire(ctx context.Context, timeout time.Duration) error {
	if m.held {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case slot(m.key) <- struct{}{}:
		m.held = true
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrLockTimeout, m.key)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutex) Release(context.Context) error {
	if !m.held {
		return nil
	}
	<-slot(m.key)
	m.held = false
	return nil
}

func (m *Mutex) Key() string { return m.key }
