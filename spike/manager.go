// Package spike deduplicates concurrent lookups of the same external resource
package spike

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	taskQueueLen          = 60
	currentlyExecutedSize = 50
	defaultFetchTimeout   = 10 * time.Second
)

var ErrManagerClosed = errors.New("manager is closed")

// Manager runs at most one Fetch per key at a time, callers asking for a key
// that is already being fetched wait for the same result.
// Failed fetches are never cached.
type Manager[K comparable, T any] struct {
	mu                sync.RWMutex
	handler           Handler[K, T]
	fetchTimeout      time.Duration
	taskQueue         chan task[K, T]
	currentlyExecuted map[K][]chan<- result[T]

	cleanupInterval time.Duration
	closeOnce       sync.Once
	closed          chan struct{}
}

// NewCustomManager creates a new Manager with a custom cache implementation controlled by client code.
// h.Cleanup is never called by a custom manager.
func NewCustomManager[K comparable, T any](h Handler[K, T], fetchTimeout time.Duration) *Manager[K, T] {
	return newManager(h, fetchTimeout, 0)
}

func newManager[K comparable, T any](h Handler[K, T], fetchTimeout, cleanupInterval time.Duration) *Manager[K, T] {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	cm := &Manager[K, T]{
		handler:           h,
		fetchTimeout:      fetchTimeout,
		taskQueue:         make(chan task[K, T], taskQueueLen),
		currentlyExecuted: make(map[K][]chan<- result[T], currentlyExecutedSize),
		cleanupInterval:   cleanupInterval,
		closed:            make(chan struct{}),
	}
	go cm.start()
	return cm
}

// NewManager creates a new Manager backed by go-cache, results live for cacheTime.
// Expired results are evicted by the manager loop every cacheTime, go-cache runs no janitor of its own.
func NewManager[K comparable, T any](fetch func(ctx context.Context, k K) (T, error), cacheTime, fetchTimeout time.Duration) *Manager[K, T] {
	g := gocache.New(cacheTime, 0)
	return newManager[K, T](Handler[K, T]{
		Fetch:   fetch,
		Cleanup: g.DeleteExpired,
		Set: func(k K, v T) {
			g.Set(cacheKey(k), v, cacheTime)
		},
		Get: func(k K) (T, bool) {
			v, ok := g.Get(cacheKey(k))
			if !ok {
				var rt T
				return rt, false
			}
			//nolint:forcetypeassert
			return v.(T), true
		},
	}, fetchTimeout, cacheTime)
}

func cacheKey[K comparable](k K) string {
	return fmt.Sprint(k)
}

type Handler[K comparable, T any] struct {
	Fetch func(ctx context.Context, k K) (T, error)
	Set   func(k K, v T)
	Get   func(k K) (T, bool)
	// Cleanup evicts expired results, optional.
	Cleanup func()
}

type task[K comparable, T any] struct {
	key K
	res chan<- result[T]
}

type result[T any] struct {
	v T
	e error
}

func (m *Manager[K, T]) start() {
	var cleanup <-chan time.Time
	if m.cleanupInterval > 0 && m.handler.Cleanup != nil {
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()
		cleanup = ticker.C
	}

	for {
		select {
		case t := <-m.taskQueue:
			if m.joinOrServe(t) {
				continue
			}
			go m.execute(t)
		case <-cleanup:
			m.handler.Cleanup()
		case <-m.closed:
			return
		}
	}
}

// Close stops the manager loop, waiting GetResult calls return ErrManagerClosed.
// Fetches already running finish in the background and are dropped.
func (m *Manager[K, T]) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
}

// joinOrServe answers t from the cache or attaches it to a running fetch.
// It returns false if t has to start a fetch itself.
func (m *Manager[K, T]) joinOrServe(t task[K, T]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.handler.Get(t.key); ok {
		t.res <- result[T]{v: v}
		close(t.res)
		return true
	}
	if chans, ok := m.currentlyExecuted[t.key]; ok {
		m.currentlyExecuted[t.key] = append(chans, t.res)
		return true
	}
	return false
}

func (m *Manager[K, T]) execute(t task[K, T]) {
	m.mu.Lock()
	if v, ok := m.handler.Get(t.key); ok {
		t.res <- result[T]{v: v}
		close(t.res)
		m.mu.Unlock()
		return
	}
	if chans, ok := m.currentlyExecuted[t.key]; ok {
		m.currentlyExecuted[t.key] = append(chans, t.res)
		m.mu.Unlock()
		return
	}
	m.currentlyExecuted[t.key] = []chan<- result[T]{t.res}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
	res, err := m.handler.Fetch(ctx, t.key)
	cancel()
	if err == nil {
		m.handler.Set(t.key, res)
	}

	m.mu.Lock()
	for _, ch := range m.currentlyExecuted[t.key] {
		ch <- result[T]{v: res, e: err}
		close(ch)
	}
	delete(m.currentlyExecuted, t.key)
	m.mu.Unlock()
}

func (m *Manager[K, T]) GetResult(ctx context.Context, k K) (T, error) { //nolint:ireturn
	r, ok := m.handler.Get(k)
	if ok {
		return r, nil
	}

	resChan := make(chan result[T], 1)
	select {
	case <-m.closed:
		var tr T
		return tr, ErrManagerClosed
	default:
	}
	select {
	case m.taskQueue <- task[K, T]{key: k, res: resChan}:
	case <-m.closed:
		var tr T
		return tr, ErrManagerClosed
	case <-ctx.Done():
		var tr T
		return tr, ctx.Err()
	}

	select {
	case <-ctx.Done():
		var tr T
		return tr, ctx.Err()
	case <-m.closed:
		var tr T
		return tr, ErrManagerClosed
	case completed := <-resChan:
		return completed.v, completed.e
	}
}

