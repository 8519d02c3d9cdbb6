// Package registry tracks the set of live call sessions. It is the only
// state shared across calls; everything else is owned by a single session.
package registry

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrAlreadyExists = errors.New("call session already exists")
	ErrNotFound      = errors.New("call session not found")
)

// Handle is what the registry knows about a session: enough to find it and
// to cancel it during shutdown.
type Handle struct {
	CallSID   string
	StreamSID string
	Cancel    func()
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*trackedCall
	wg       sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*trackedCall),
	}
}

// Create registers a session for the call. A second Create for the same call
// while the first is still registered fails with ErrAlreadyExists; the caller
// must tear the new connection down rather than supersede a live session.
// The returned release func removes the entry and is safe to call twice.
func (r *Registry) Create(callSID string, h Handle) (release func(), err error) {
	if r == nil {
		return func() {}, nil
	}

	entry := &trackedCall{handle: h}

	r.mu.Lock()
	if r.sessions == nil {
		r.sessions = make(map[string]*trackedCall)
	}
	if _, ok := r.sessions[callSID]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	r.sessions[callSID] = entry
	r.wg.Add(1)
	r.mu.Unlock()

	return func() { r.unregister(callSID, entry) }, nil
}

// Get looks up a live session's handle by call identifier.
func (r *Registry) Get(callSID string) (Handle, error) {
	if r == nil {
		return Handle{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[callSID]
	if !ok {
		return Handle{}, ErrNotFound
	}
	return entry.handle, nil
}

// Remove drops the call's entry if present. Removing an absent or
// already-removed call is a no-op.
func (r *Registry) Remove(callSID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	entry := r.sessions[callSID]
	r.mu.Unlock()
	if entry != nil {
		r.unregister(callSID, entry)
	}
}

func (r *Registry) unregister(callSID string, entry *trackedCall) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.sessions != nil && r.sessions[callSID] == entry {
			delete(r.sessions, callSID)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll asks every live session to tear down. Used on shutdown.
func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}

	var cancels []func()
	r.mu.Lock()
	for _, entry := range r.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has released, or the context
// ends. Returns false if the context expired first.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
