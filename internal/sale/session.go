package sale

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/obs"
)

// State is the lifecycle position of a register session.
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StatePreviewRequested
	StateConfirmed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StatePreviewRequested:
		return "preview_requested"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session is one register's sale in progress. It is safe for concurrent use.
// Several operators may share a register; each preview records the operator
// that requested it.
type Session struct {
	Coordinator *Coordinator

	mu       sync.Mutex
	cart     *cart.Cart
	clientID *int64
	pending  *PendingSale
	outcome  State
	lastSale string
}

// NewSession returns an empty session.
func NewSession(coord *Coordinator) *Session {
	return &Session{Coordinator: coord, cart: cart.New()}
}

// View is a consistent copy of the session for display.
type View struct {
	State    State
	Lines    []cart.Line
	Total    decimal.Decimal
	ClientID *int64
	Pending  *PendingSale
	LastSale string
}

// View returns the current session contents.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		State:    s.state(),
		Lines:    s.cartLocked().Lines(),
		Total:    s.cartLocked().Total(),
		LastSale: s.lastSale,
	}
	if s.clientID != nil {
		id := *s.clientID
		v.ClientID = &id
	}
	if s.pending != nil {
		p := *s.pending
		v.Pending = &p
	}
	return v
}

// State reports the lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Session) state() State {
	switch {
	case s.pending != nil:
		return StatePreviewRequested
	case s.outcome != StateEmpty:
		return s.outcome
	case s.cartLocked().IsEmpty():
		return StateEmpty
	default:
		return StateBuilding
	}
}

// Mutate runs fn against the cart. Cart changes are refused while a preview
// awaits confirmation so the committed sale always matches the preview.
func (s *Session) Mutate(fn func(*cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return ErrPreviewPending
	}
	if err := fn(s.cartLocked()); err != nil {
		obs.RecordCartRejection(cart.RejectionReason(err))
		return err
	}
	s.outcome = StateEmpty
	return nil
}

// Preview freezes the cart into a pending sale for in.OperatorID and the
// optional in.ClientID. A rejected preview leaves the session as it was.
func (s *Session) Preview(ctx context.Context, in PreviewInput) (PendingSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return PendingSale{}, ErrPreviewPending
	}
	if in.ClientID != nil {
		id := *in.ClientID
		in.ClientID = &id
	}
	p, err := s.Coordinator.RequestPreview(ctx, s.cartLocked(), in)
	if err != nil {
		return PendingSale{}, err
	}
	s.clientID = in.ClientID
	s.pending = &p
	return p, nil
}

// Confirm commits the open preview and returns the sale that was saved. On
// failure the preview stays open so the operator can retry or cancel.
func (s *Session) Confirm(ctx context.Context) (PendingSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingSale{}, ErrPreviewClosed
	}
	p := *s.pending
	id, err := s.Coordinator.Confirm(ctx, s.cartLocked(), p)
	if err != nil {
		return PendingSale{}, err
	}
	p.ID = id
	s.pending = nil
	s.clientID = nil
	s.outcome = StateConfirmed
	s.lastSale = id
	return p, nil
}

// Cancel discards the open preview and keeps the cart.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ErrPreviewClosed
	}
	s.Coordinator.Cancel(*s.pending)
	s.pending = nil
	s.outcome = StateCancelled
	return nil
}

// Clear empties the cart and discards any open preview.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.Coordinator.Cancel(*s.pending)
		s.pending = nil
	}
	s.cartLocked().Clear()
	s.clientID = nil
	s.outcome = StateEmpty
}

func (s *Session) cartLocked() *cart.Cart {
	if s.cart == nil {
		s.cart = cart.New()
	}
	return s.cart
}
