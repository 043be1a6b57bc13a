package pos

import (
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/wholesale"
)

// Registers holds one sale session per register id. Sessions are created on
// first use and live for the process lifetime.
type Registers struct {
	Coordinator *sale.Coordinator

	mu       sync.Mutex
	sessions map[string]*sale.Session
}

// Session returns the register's session, creating it on first use.
func (r *Registers) Session(registerID string) *sale.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*sale.Session)
	}
	s, ok := r.sessions[registerID]
	if !ok {
		s = sale.NewSession(r.Coordinator)
		r.sessions[registerID] = s
	}
	return s
}

// Wizards holds open wholesale sessions by id.
type Wizards struct {
	Service *wholesale.Service

	mu       sync.RWMutex
	sessions map[uuid.UUID]*wholesale.Session
}

// Open starts a new wholesale session.
func (w *Wizards) Open() (uuid.UUID, *wholesale.Session) {
	id := uuid.New()
	s := w.Service.NewSession()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessions == nil {
		w.sessions = make(map[uuid.UUID]*wholesale.Session)
	}
	w.sessions[id] = s
	return id, s
}

// Get returns an open session.
func (w *Wizards) Get(id uuid.UUID) (*wholesale.Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[id]
	return s, ok
}

// Close forgets a session.
func (w *Wizards) Close(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, id)
}
