package wholesale

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/discount"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/receipt"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/store"
)

var (
	// ErrStepGuard is returned when an operation is not allowed at the current step.
	ErrStepGuard = errors.New("wholesale step not allowed")
	// ErrInvalidClient is returned when client data fails validation.
	ErrInvalidClient = errors.New("invalid client")
)

// Step is a position in the wholesale wizard.
type Step int

const (
	StepSelectProducts Step = iota + 1
	StepSelectClient
	StepReviewDocuments
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepSelectProducts:
		return "select_products"
	case StepSelectClient:
		return "select_client"
	case StepReviewDocuments:
		return "review_documents"
	case StepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Products reads inventory rows.
type Products interface {
	GetProduct(ctx context.Context, id int64) (store.Product, error)
}

// Clients reads and registers clients.
type Clients interface {
	ListActiveClients(ctx context.Context) ([]store.Client, error)
	GetClient(ctx context.Context, id int64) (store.Client, error)
	CreateClient(ctx context.Context, in store.NewClient) (store.Client, error)
}

// Discounts resolves a catalog selection.
type Discounts interface {
	Resolve(idx int) (discount.Definition, error)
}

// DocumentSaver persists generated documents and returns their paths.
type DocumentSaver interface {
	Save(ctx context.Context, filename, content string) (string, error)
}

// Service holds the collaborators shared by every wholesale session.
type Service struct {
	Coordinator *sale.Coordinator
	Products    Products
	Clients     Clients
	Discounts   Discounts
	Renderer    receipt.Renderer
	Saver       DocumentSaver
	Events      sale.Emitter
	Validator   *validator.Validate
	// OperatorID is recorded when Finish is not given an operator.
	OperatorID int64
	Logger      zerolog.Logger
}

// NewSession starts a wizard at the product selection step.
func (s *Service) NewSession() *Session {
	return &Session{svc: s, step: StepSelectProducts, cart: cart.New()}
}

// ClientInput is the data captured by the new-client form.
type ClientInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	DNI       string `json:"dni" validate:"omitempty,max=20"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
	Address   string `json:"address" validate:"omitempty,max=200"`
}

func (in ClientInput) trimmed() ClientInput {
	return ClientInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		DNI:       strings.TrimSpace(in.DNI),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		Address:   strings.TrimSpace(in.Address),
	}
}

// Session is one wholesale sale in progress. It is safe for concurrent use.
type Session struct {
	svc *Service

	mu         sync.Mutex
	step       Step
	cart       *cart.Cart
	client     *store.Client
	pending    *sale.PendingSale
	receipt    string
	constancia string
	summary    string
}

// Snapshot is a consistent copy of the session for display.
type Snapshot struct {
	Step       Step
	Lines      []cart.Line
	Total      string
	Client     *store.Client
	SaleID     string
	Receipt    string
	Constancia string
	Summary    string
}

// Snapshot returns the current session contents.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Step:       s.step,
		Lines:      s.cart.Lines(),
		Total:      pricing.Round(s.cart.Total()).StringFixed(2),
		Receipt:    s.receipt,
		Constancia: s.constancia,
		Summary:    s.summary,
	}
	if s.client != nil {
		c := *s.client
		out.Client = &c
	}
	if s.pending != nil {
		out.SaleID = s.pending.ID
	}
	return out
}

// Step reports the current wizard step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// AddProduct adds qty units of productID with the catalog discount at
// discountIndex. The selected discount replaces the one already on the line.
func (s *Session) AddProduct(ctx context.Context, productID int64, qty, discountIndex int) error {
	def, err := s.svc.Discounts.Resolve(discountIndex)
	if err != nil {
		return err
	}
	return s.withProduct(ctx, productID, func(c *cart.Cart, p cart.Product) error {
		return c.AddDiscounted(p, qty, def.Percentage, def.Name)
	})
}

// QuickAdd adds one unit of productID and keeps any discount on the line.
func (s *Session) QuickAdd(ctx context.Context, productID int64) error {
	return s.withProduct(ctx, productID, func(c *cart.Cart, p cart.Product) error {
		return c.Add(p, 1)
	})
}

func (s *Session) withProduct(ctx context.Context, productID int64, fn func(*cart.Cart, cart.Product) error) error {
	row, err := s.svc.Products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	return s.mutate(func(c *cart.Cart) error {
		return fn(c, cart.Product{ID: row.ID, Name: row.Name, UnitPrice: row.Price, Stock: row.Stock})
	})
}

// UpdateLine replaces quantity and discount of a line.
func (s *Session) UpdateLine(productID int64, qty, discountIndex int) error {
	def, err := s.svc.Discounts.Resolve(discountIndex)
	if err != nil {
		return err
	}
	return s.mutate(func(c *cart.Cart) error {
		return c.UpdateLine(productID, qty, def.Percentage, def.Name)
	})
}

// RemoveProduct deletes a line.
func (s *Session) RemoveProduct(productID int64) error {
	return s.mutate(func(c *cart.Cart) error { return c.Remove(productID) })
}

// ApplyDiscountToAll sets the catalog discount at discountIndex on every line.
func (s *Session) ApplyDiscountToAll(discountIndex int) error {
	def, err := s.svc.Discounts.Resolve(discountIndex)
	if err != nil {
		return err
	}
	return s.mutate(func(c *cart.Cart) error { return c.SetDiscountForAll(def.Percentage, def.Name) })
}

// ClearCart removes every line.
func (s *Session) ClearCart() error {
	return s.mutate(func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

func (s *Session) mutate(fn func(*cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepSelectProducts {
		return fmt.Errorf("edit products at step %s: %w", s.step, ErrStepGuard)
	}
	if err := fn(s.cart); err != nil {
		obs.RecordCartRejection(cart.RejectionReason(err))
		return err
	}
	return nil
}

// Clients lists the clients that can be bound.
func (s *Session) Clients(ctx context.Context) ([]store.Client, error) {
	return s.svc.Clients.ListActiveClients(ctx)
}

// BindClient attaches an existing client.
func (s *Session) BindClient(ctx context.Context, clientID int64) (store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepSelectClient {
		return store.Client{}, fmt.Errorf("bind client at step %s: %w", s.step, ErrStepGuard)
	}
	c, err := s.svc.Clients.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	if !c.Active {
		return store.Client{}, fmt.Errorf("client %d is inactive: %w", clientID, ErrInvalidClient)
	}
	s.client = &c
	return c, nil
}

// CreateClient validates and registers a client, then binds it.
func (s *Session) CreateClient(ctx context.Context, in ClientInput) (store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepSelectClient {
		return store.Client{}, fmt.Errorf("create client at step %s: %w", s.step, ErrStepGuard)
	}
	in = in.trimmed()
	if err := s.svc.validator().Struct(in); err != nil {
		return store.Client{}, fmt.Errorf("%w: %s", ErrInvalidClient, describe(err))
	}
	c, err := s.svc.Clients.CreateClient(ctx, store.NewClient{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		DNI:       in.DNI,
		Phone:     in.Phone,
		Email:     in.Email,
		Address:   in.Address,
	})
	if err != nil {
		return store.Client{}, err
	}
	s.client = &c
	s.svc.Logger.Info().Int64("client_id", c.ID).Msg("client_created")
	if s.svc.Events != nil {
		if _, err := s.svc.Events.Emit(ctx, events.TopicClientCreated, strconv.FormatInt(c.ID, 10), map[string]any{
			"clientId": c.ID,
			"name":     c.FullName(),
		}); err != nil {
			s.svc.Logger.Warn().Err(err).Int64("client_id", c.ID).Msg("client_event_emit_failed")
		}
	}
	return c, nil
}

// Next advances one step when the current step's guard holds.
func (s *Session) Next(ctx context.Context) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.step {
	case StepSelectProducts:
		if s.cart.IsEmpty() {
			return s.step, fmt.Errorf("%w: %w", ErrStepGuard, sale.ErrEmptyCart)
		}
		s.step = StepSelectClient
	case StepSelectClient:
		if s.client == nil {
			return s.step, fmt.Errorf("%w: no client selected", ErrStepGuard)
		}
		if err := s.prepareDocuments(ctx); err != nil {
			return s.step, err
		}
		s.step = StepReviewDocuments
	case StepReviewDocuments:
		s.summary = s.svc.Renderer.Summary(*s.pending, *s.client)
		s.step = StepConfirm
	default:
		return s.step, fmt.Errorf("%w: already at the last step", ErrStepGuard)
	}
	return s.step, nil
}

// Previous goes back one step without discarding entered data.
func (s *Session) Previous() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step > StepSelectProducts {
		s.step--
	}
	return s.step
}

// prepareDocuments builds the pending sale and both documents. A pending sale
// that still matches the cart and client is kept together with any edits.
func (s *Session) prepareDocuments(ctx context.Context) error {
	if s.pending != nil && s.pendingMatches() {
		return nil
	}
	if s.pending != nil {
		s.svc.Coordinator.Cancel(*s.pending)
		s.pending = nil
	}
	clientID := s.client.ID
	p, err := s.svc.Coordinator.RequestPreview(ctx, s.cart, sale.PreviewInput{
		AmountPaid: pricing.Round(s.cart.Total()),
		OperatorID: s.svc.OperatorID,
		ClientID:   &clientID,
	})
	if err != nil {
		return err
	}
	s.pending = &p
	s.renderDocuments()
	return nil
}

func (s *Session) pendingMatches() bool {
	if s.pending.ClientID == nil || *s.pending.ClientID != s.client.ID {
		return false
	}
	prev := s.pending.Lines()
	cur := s.cart.Lines()
	if len(prev) != len(cur) {
		return false
	}
	for i := range prev {
		a, b := prev[i], cur[i]
		if a.ProductID != b.ProductID || a.Qty != b.Qty || !a.DiscountPct.Equal(b.DiscountPct) || !a.UnitPrice.Equal(b.UnitPrice) {
			return false
		}
	}
	return true
}

func (s *Session) renderDocuments() {
	s.receipt = s.svc.Renderer.Full(*s.pending, s.client)
	s.constancia = s.svc.Renderer.Constancia(*s.pending, *s.client)
}

// Documents returns the current receipt and constancia text.
func (s *Session) Documents() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipt, s.constancia
}

// EditReceipt replaces the receipt text.
func (s *Session) EditReceipt(text string) error {
	return s.editDocument(func() { s.receipt = text })
}

// EditConstancia replaces the constancia text.
func (s *Session) EditConstancia(text string) error {
	return s.editDocument(func() { s.constancia = text })
}

// RegenerateDocuments discards edits and renders both documents again.
func (s *Session) RegenerateDocuments() error {
	return s.editDocument(s.renderDocuments)
}

func (s *Session) editDocument(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepReviewDocuments || s.pending == nil {
		return fmt.Errorf("edit documents at step %s: %w", s.step, ErrStepGuard)
	}
	fn()
	return nil
}

// Cancel resets the wizard. With a non-empty cart, confirm is asked first and
// a false answer leaves the session untouched. It reports whether the reset
// happened.
func (s *Session) Cancel(confirm func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cart.IsEmpty() && confirm != nil && !confirm() {
		return false
	}
	s.reset()
	return true
}

func (s *Session) reset() {
	if s.pending != nil {
		s.svc.Coordinator.Cancel(*s.pending)
	}
	s.step = StepSelectProducts
	s.cart.Clear()
	s.client = nil
	s.pending = nil
	s.receipt = ""
	s.constancia = ""
	s.summary = ""
}

func (s *Service) validator() *validator.Validate {
	if s.Validator != nil {
		return s.Validator
	}
	return defaultValidator
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
