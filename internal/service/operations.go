package service

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/txflow"
	"github.com/google/uuid"
)

// maxOperations bounds the registry; the oldest terminal records go first.
const maxOperations = 1024

// Operations records the lifecycle of every write attempt. Only the latest
// attempt per (kind, key) is addressable by key; a new attempt replaces it.
type Operations struct {
	mu     sync.Mutex
	byID   map[string]*txflow.Lifecycle
	latest map[string]string
	order  []string
}

// NewOperations creates an empty registry.
func NewOperations() *Operations {
	return &Operations{
		byID:   make(map[string]*txflow.Lifecycle),
		latest: make(map[string]string),
	}
}

func slotKey(kind domain.OpKind, key string) string {
	return fmt.Sprintf("%s|%s", kind, key)
}

// Start registers a new idle lifecycle for (kind, key) and returns it.
func (o *Operations) Start(kind domain.OpKind, key string, listener txflow.Listener) *txflow.Lifecycle {
	id := uuid.NewString()
	lc := txflow.New(id, kind, key, listener)

	o.mu.Lock()
	defer o.mu.Unlock()
	slot := slotKey(kind, key)
	if prev, ok := o.latest[slot]; ok {
		o.dropLocked(prev)
	}
	o.byID[id] = lc
	o.latest[slot] = id
	o.order = append(o.order, id)
	o.evictLocked()
	return lc
}

// Get returns the operation with id.
func (o *Operations) Get(id string) (domain.Operation, error) {
	o.mu.Lock()
	lc, ok := o.byID[id]
	o.mu.Unlock()
	if !ok {
		return domain.Operation{}, fmt.Errorf("operations: %s: %w", id, domain.ErrNotFound)
	}
	return lc.Snapshot(), nil
}

// Latest returns the most recent attempt of kind for key.
func (o *Operations) Latest(kind domain.OpKind, key string) (domain.Operation, bool) {
	o.mu.Lock()
	id, ok := o.latest[slotKey(kind, key)]
	var lc *txflow.Lifecycle
	if ok {
		lc = o.byID[id]
	}
	o.mu.Unlock()
	if lc == nil {
		return domain.Operation{}, false
	}
	return lc.Snapshot(), true
}

// Len returns the number of retained operations.
func (o *Operations) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byID)
}

func (o *Operations) dropLocked(id string) {
	delete(o.byID, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

func (o *Operations) evictLocked() {
	for i := 0; len(o.byID) > maxOperations && i < len(o.order); {
		id := o.order[i]
		lc := o.byID[id]
		if lc != nil && !lc.State().Terminal() {
			i++
			continue
		}
		if lc != nil {
			snap := lc.Snapshot()
			slot := slotKey(snap.Kind, snap.Key)
			if o.latest[slot] == id {
				delete(o.latest, slot)
			}
		}
		delete(o.byID, id)
		o.order = append(o.order[:i], o.order[i+1:]...)
	}
}
