package channel

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a process-local backend shared by any number of clients.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	owners map[string]*Memory // ephemeral keys and the client that wrote them
	subs   map[string]map[*memorySub]struct{}
}

type memorySub struct {
	ch    chan []byte
	owner *Memory
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		owners: make(map[string]*Memory),
		subs:   make(map[string]map[*memorySub]struct{}),
	}
}

// Client opens a new client on the store. Its ephemeral keys are removed when
// the client is closed.
func (s *MemoryStore) Client() *Memory {
	return &Memory{store: s}
}

// notify must be called with s.mu held.
func (s *MemoryStore) notify(key string, value []byte) {
	for sub := range s.subs[key] {
		offer(sub.ch, clone(value))
	}
}

func (s *MemoryStore) put(key string, value []byte, owner *Memory) {
	s.values[key] = clone(value)
	if owner != nil {
		s.owners[key] = owner
	} else {
		delete(s.owners, key)
	}
	s.notify(key, value)
}

func (s *MemoryStore) remove(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	delete(s.owners, key)
	s.notify(key, nil)
}

// Memory is one client of a MemoryStore.
type Memory struct {
	store  *MemoryStore
	closed bool // guarded by store.mu
}

var _ Channel = (*Memory)(nil)

func (m *Memory) lock() error {
	m.store.mu.Lock()
	if m.closed {
		m.store.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.store.mu.Unlock()
	v, ok := m.store.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.store.mu.Unlock()
	m.store.put(key, value, nil)
	return nil
}

func (m *Memory) SetEphemeral(_ context.Context, key string, value []byte) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.store.mu.Unlock()
	m.store.put(key, value, m)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.store.mu.Unlock()
	m.store.remove(key)
	return nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key string, old, new []byte) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.store.mu.Unlock()
	cur, exists := m.store.values[key]
	if old == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !bytes.Equal(cur, old) {
		return false, nil
	}
	m.store.put(key, new, nil)
	return true, nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.store.mu.Unlock()
	var keys []string
	for k := range m.store.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	sub := &memorySub{ch: make(chan []byte, subscriberBuffer), owner: m}
	if m.store.subs[key] == nil {
		m.store.subs[key] = make(map[*memorySub]struct{})
	}
	m.store.subs[key][sub] = struct{}{}
	if v, ok := m.store.values[key]; ok {
		sub.ch <- clone(v)
	}
	m.store.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.store.mu.Lock()
		defer m.store.mu.Unlock()
		m.store.unsubscribe(key, sub)
	}()
	return sub.ch, nil
}

// unsubscribe must be called with s.mu held. It is a no-op for a sub that is already gone.
func (s *MemoryStore) unsubscribe(key string, sub *memorySub) {
	subs, ok := s.subs[key]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(s.subs, key)
	}
	close(sub.ch)
}

// Close drops this client's ephemeral keys and ends its subscriptions.
func (m *Memory) Close() error {
	if err := m.lock(); err != nil {
		return nil
	}
	defer m.store.mu.Unlock()
	m.closed = true
	for key, owner := range m.store.owners {
		if owner == m {
			m.store.remove(key)
		}
	}
	for key, subs := range m.store.subs {
		for sub := range subs {
			if sub.owner == m {
				m.store.unsubscribe(key, sub)
			}
		}
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
