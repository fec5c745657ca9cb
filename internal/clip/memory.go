package clip

import "sync"

// Memory is an in-process clipboard. SetCurrent signals Watch the way a
// platform clipboard would.
type Memory struct {
	name string

	mu     sync.Mutex
	item   Item
	writes int

	watchCh chan struct{}
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{name: "memory", watchCh: make(chan struct{}, 1)}
}

// newHeadless is the fallback when no platform clipboard is reachable.
func newHeadless() *Memory {
	m := NewMemory()
	m.name = "headless (memory)"
	return m
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Current() (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.item, nil
}

func (m *Memory) SetCurrent(it Item) error {
	m.mu.Lock()
	m.item = it
	m.writes++
	m.mu.Unlock()
	select {
	case m.watchCh <- struct{}{}:
	default:
	}
	return nil
}

// Writes returns the number of SetCurrent calls so far.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}
