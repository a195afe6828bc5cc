// Package store defines the shared document-store contract the game core
// runs against: a string-keyed tree of values with point reads, merge
// writes, atomic transactions and change subscriptions. Every client
// process mutates the same tree and observes everyone else's writes, so
// coordination happens through the store rather than between clients.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrUnavailable wraps transient backend failures. Callers log and rely on
// re-observation instead of retrying blindly.
var ErrUnavailable = errors.New("store unavailable")

// Snapshot is an immutable point-in-time view of a path. Leaves carry
// Value, interior nodes carry Children. A missing path has Exists=false.
type Snapshot struct {
	Exists   bool
	Value    interface{}
	Children map[string]Snapshot
}

// Child returns the snapshot of a direct child, which may not exist.
func (s Snapshot) Child(name string) Snapshot {
	if c, ok := s.Children[name]; ok {
		return c
	}
	return Snapshot{}
}

// Bool decodes a leaf as a boolean, tolerating string-encoded backends.
func (s Snapshot) Bool() bool {
	switch v := s.Value.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Int decodes a leaf as an integer, tolerating string-encoded backends.
func (s Snapshot) Int() int64 {
	switch v := s.Value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Str decodes a leaf as a string.
func (s Snapshot) Str() string {
	switch v := s.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ChangeFunc receives the new snapshot of the subscribed path.
type ChangeFunc func(Snapshot)

// TransactionFunc maps the current value of a leaf to its replacement.
// The store retries it until the write commits without conflict.
type TransactionFunc func(current interface{}) (interface{}, error)

// Store is the replicated document store the session core consumes.
// Set with a nil value deletes the subtree at path.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value interface{}) error
	Update(ctx context.Context, path string, fields map[string]interface{}) error
	Push(ctx context.Context, path string) (string, error)
	Transaction(ctx context.Context, path string, fn TransactionFunc) error
	Subscribe(path string, fn ChangeFunc) (*Subscription, error)
}

// Subscription is an owned handle to a change listener. Holders cancel it
// on state transitions so stale callbacks never fire twice.
type Subscription struct {
	path string
	fn   ChangeFunc
	log  *zap.SugaredLogger

	ch   chan Snapshot
	done chan struct{}
	once sync.Once

	unregister func()
}

const subscriptionBuffer = 256

func newSubscription(path string, fn ChangeFunc, log *zap.SugaredLogger, unregister func()) *Subscription {
	sub := &Subscription{
		path:       path,
		fn:         fn,
		log:        log,
		ch:         make(chan Snapshot, subscriptionBuffer),
		done:       make(chan struct{}),
		unregister: unregister,
	}
	go sub.dispatch()
	return sub
}

func (s *Subscription) dispatch() {
	for {
		select {
		case snap := <-s.ch:
			s.fn(snap)
		case <-s.done:
			return
		}
	}
}

// deliver queues a snapshot for the listener. Delivery never blocks the
// writer; an overrun listener drops the event and catches up on the next
// change, which is safe because listeners always receive full snapshots.
func (s *Subscription) deliver(snap Snapshot) {
	select {
	case <-s.done:
	case s.ch <- snap:
	default:
		s.log.Warnw("subscription channel full, dropping change", "path", s.path)
	}
}

// Cancel tears the listener down. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.unregister != nil {
			s.unregister()
		}
	})
}

// Path returns the subscribed path.
func (s *Subscription) Path() string { return s.path }

// pathsOverlap reports whether a change at changed must be visible to a
// listener at watched: either path is an ancestor of the other.
func pathsOverlap(watched, changed string) bool {
	return watched == changed ||
		strings.HasPrefix(changed, watched+"/") ||
		strings.HasPrefix(watched, changed+"/")
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
