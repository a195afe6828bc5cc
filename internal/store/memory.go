package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Memory is an in-process Store. It backs tests and offline play: several
// session instances in one process share a single Memory and observe each
// other's writes exactly as they would through the replicated backend.
type Memory struct {
	log *zap.SugaredLogger

	mu   sync.RWMutex
	root *memNode

	subMu sync.Mutex
	subs  map[*Subscription]struct{}
}

type memNode struct {
	value    interface{}
	children map[string]*memNode
}

func newMemNode() *memNode {
	return &memNode{children: make(map[string]*memNode)}
}

// NewMemory returns an empty in-memory store.
func NewMemory(log *zap.SugaredLogger) *Memory {
	return &Memory{
		log:  log,
		root: newMemNode(),
		subs: make(map[*Subscription]struct{}),
	}
}

func (m *Memory) lookup(segments []string) *memNode {
	node := m.root
	for _, seg := range segments {
		next, ok := node.children[seg]
		if !ok {
			return nil
		}
		node = next
	}
	return node
}

func (m *Memory) snapshotLocked(node *memNode) Snapshot {
	if node == nil {
		return Snapshot{}
	}
	snap := Snapshot{Exists: true, Value: node.value}
	if len(node.children) > 0 {
		snap.Children = make(map[string]Snapshot, len(node.children))
		for name, child := range node.children {
			snap.Children[name] = m.snapshotLocked(child)
		}
	}
	return snap
}

// Get returns a deep snapshot of the subtree at path.
func (m *Memory) Get(_ context.Context, path string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(m.lookup(splitPath(path))), nil
}

// Set overwrites the subtree at path. Maps become interior nodes, any
// other value becomes a leaf, nil deletes the subtree.
func (m *Memory) Set(_ context.Context, path string, value interface{}) error {
	m.mu.Lock()
	segments := splitPath(path)
	if value == nil {
		m.deleteLocked(segments)
	} else {
		node := m.ensureLocked(segments)
		setNodeValue(node, value)
	}
	m.mu.Unlock()

	m.notify(path)
	return nil
}

// Update merge-writes the given fields under path, leaving siblings alone.
func (m *Memory) Update(_ context.Context, path string, fields map[string]interface{}) error {
	m.mu.Lock()
	base := splitPath(path)
	for key, value := range fields {
		segments := append(append([]string{}, base...), key)
		if value == nil {
			m.deleteLocked(segments)
			continue
		}
		setNodeValue(m.ensureLocked(segments), value)
	}
	m.mu.Unlock()

	m.notify(path)
	return nil
}

// Push returns a fresh globally-unique child key. Like the real backend it
// does not write anything; the caller sets the child explicitly.
func (m *Memory) Push(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

// Transaction atomically replaces the leaf at path. fn sees nil when the
// leaf does not exist yet. The in-process store never conflicts, so fn
// runs exactly once.
func (m *Memory) Transaction(_ context.Context, path string, fn TransactionFunc) error {
	m.mu.Lock()
	segments := splitPath(path)
	var current interface{}
	if node := m.lookup(segments); node != nil {
		current = node.value
	}
	next, err := fn(current)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	setNodeValue(m.ensureLocked(segments), next)
	m.mu.Unlock()

	m.notify(path)
	return nil
}

// Subscribe registers fn for changes under path. It fires once immediately
// with the current value, then on every subsequent overlapping change.
func (m *Memory) Subscribe(path string, fn ChangeFunc) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(path, fn, m.log, func() {
		m.subMu.Lock()
		delete(m.subs, sub)
		m.subMu.Unlock()
	})

	m.subMu.Lock()
	m.subs[sub] = struct{}{}
	m.subMu.Unlock()

	snap, _ := m.Get(context.Background(), path)
	sub.deliver(snap)
	return sub, nil
}

func (m *Memory) ensureLocked(segments []string) *memNode {
	node := m.root
	for _, seg := range segments {
		next, ok := node.children[seg]
		if !ok {
			next = newMemNode()
			node.children[seg] = next
		}
		node = next
	}
	return node
}

func (m *Memory) deleteLocked(segments []string) {
	if len(segments) == 0 {
		m.root = newMemNode()
		return
	}
	parent := m.lookup(segments[:len(segments)-1])
	if parent != nil {
		delete(parent.children, segments[len(segments)-1])
	}
}

func setNodeValue(node *memNode, value interface{}) {
	if fields, ok := value.(map[string]interface{}); ok {
		node.value = nil
		node.children = make(map[string]*memNode, len(fields))
		for key, v := range fields {
			child := newMemNode()
			setNodeValue(child, v)
			node.children[key] = child
		}
		return
	}
	node.value = value
	node.children = make(map[string]*memNode)
}

func (m *Memory) notify(changed string) {
	m.subMu.Lock()
	targets := make([]*Subscription, 0, len(m.subs))
	for sub := range m.subs {
		if pathsOverlap(sub.path, changed) {
			targets = append(targets, sub)
		}
	}
	m.subMu.Unlock()

	for _, sub := range targets {
		snap, _ := m.Get(context.Background(), sub.path)
		sub.deliver(snap)
	}
}
