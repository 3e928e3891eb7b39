// Package enq provides named exclusive locks keyed by a queue name and a
// resource name. TryLock reports a held resource at once; Lock waits for it.
package enq

import (
	"context"
	"errors"
	"sync"

	"code.hybscloud.com/iox"
)

var (
	// ErrHeld is returned when the resource is already owned.
	ErrHeld = errors.New("enq: resource held")
	// ErrNotHeld is returned when releasing a token that does not own the resource.
	ErrNotHeld = errors.New("enq: resource not held")
)

// Resource names a lockable resource.
type Resource struct {
	QName string
	RName string
}

func (r Resource) String() string { return r.QName + "/" + r.RName }

// Token proves ownership of a resource. The zero Token owns nothing.
type Token struct {
	res Resource
	seq uint64
}

// Resource returns the resource the token owns.
func (t Token) Resource() Resource { return t.res }

// Manager grants exclusive ownership of named resources.
type Manager struct {
	mu    sync.Mutex
	held  map[Resource]uint64
	nextN uint64
}

// NewManager returns an empty lock manager.
func NewManager() *Manager {
	return &Manager{held: make(map[Resource]uint64)}
}

var std = NewManager()

// Default returns the process-wide manager.
func Default() *Manager { return std }

// TryLock acquires res exclusively or returns ErrHeld.
func (m *Manager) TryLock(res Resource) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[res]; ok {
		return Token{}, ErrHeld
	}
	m.nextN++
	m.held[res] = m.nextN
	return Token{res: res, seq: m.nextN}, nil
}

// Lock acquires res exclusively, waiting while another owner holds it.
// It gives up when ctx is done.
func (m *Manager) Lock(ctx context.Context, res Resource) (Token, error) {
	var bo iox.Backoff
	for {
		tok, err := m.TryLock(res)
		if !errors.Is(err, ErrHeld) {
			return tok, err
		}
		if err := ctx.Err(); err != nil {
			return Token{}, err
		}
		bo.Wait()
	}
}

// Unlock releases the resource owned by t.
func (m *Manager) Unlock(t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq, ok := m.held[t.res]; !ok || seq != t.seq || t.seq == 0 {
		return ErrNotHeld
	}
	delete(m.held, t.res)
	return nil
}

// Held reports whether res is currently owned.
func (m *Manager) Held(res Resource) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[res]
	return ok
}
