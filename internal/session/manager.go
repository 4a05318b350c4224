package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// SlotFactory returns the durable slot for one session id.
type SlotFactory func(sid string) Slot

// Manager builds Sessions that share an identity store and slot backend.
type Manager struct {
	identities IdentityStore
	slots      SlotFactory
	opts       Options
	locks      [lockStripes]sync.Mutex
}

func NewManager(identities IdentityStore, slots SlotFactory, opts Options) (*Manager, error) {
	if identities == nil || slots == nil {
		return nil, ErrMissingCollaborator
	}
	return &Manager{identities: identities, slots: slots, opts: opts}, nil
}

// NewID mints a random session id.
func (m *Manager) NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Open returns the session bound to sid, already restored from its slot.
// Sessions opened for the same sid serialize their mutations.
func (m *Manager) Open(ctx context.Context, sid string) (*Session, error) {
	s, err := New(m.identities, m.slots(sid), m.opts)
	if err != nil {
		return nil, err
	}
	s.opMu = m.lockFor(sid)
	s.Restore(ctx)
	return s, nil
}

func (m *Manager) lockFor(sid string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sid))
	return &m.locks[h.Sum32()%lockStripes]
}
