package pos

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/discount"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/receipt"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/settings"
	"github.com/noah-isme/toko-pos/internal/store"
)

// Inventory is the store subset read by the handlers.
type Inventory interface {
	ListProducts(ctx context.Context) ([]store.Product, error)
	GetProduct(ctx context.Context, id int64) (store.Product, error)
	ListActiveClients(ctx context.Context) ([]store.Client, error)
	GetClient(ctx context.Context, id int64) (store.Client, error)
	GetSale(ctx context.Context, id string) (store.Sale, error)
	ListSaleLines(ctx context.Context, saleID string) ([]store.SaleLine, error)
}

// Catalog is the discount catalog as seen by the handlers.
type Catalog interface {
	Definitions() []discount.Definition
	Resolve(idx int) (discount.Definition, error)
	Reload(ctx context.Context) []discount.Definition
	Invalidate(ctx context.Context) error
}

// Handler wires register and wholesale sessions to HTTP.
type Handler struct {
	Inventory Inventory
	Discounts Catalog
	Registers *Registers
	Wizards   *Wizards
	Renderer  receipt.Renderer
	Settings  *settings.Service
	Validator *validator.Validate
	// DefaultOperator is used when a request carries no operator header.
	DefaultOperator int64
	// WriteGuards wrap the endpoints that commit sales.
	WriteGuards []func(http.Handler) http.Handler
	Logger      zerolog.Logger
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/discounts", h.ListDiscounts)
	r.Post("/discounts/reload", h.ReloadDiscounts)
	r.Get("/products", h.ListProducts)
	r.Get("/clients", h.ListClients)
	r.Get("/sales/{saleID}", h.GetSale)
	r.Put("/settings/receipt-template", h.PutReceiptTemplate)

	r.Route("/registers/{id}", func(reg chi.Router) {
		reg.Get("/cart", h.GetCart)
		reg.Delete("/cart", h.ClearCart)
		reg.Post("/items", h.AddItem)
		reg.Delete("/items/{productID}", h.RemoveItem)
		reg.Put("/items/{productID}/discount", h.SetItemDiscount)
		reg.Put("/discount", h.SetCartDiscount)
		reg.Post("/preview", h.Preview)
		reg.With(h.WriteGuards...).Post("/confirm", h.Confirm)
		reg.Post("/cancel", h.Cancel)
	})

	r.Post("/wholesale", h.OpenWholesale)
	r.Route("/wholesale/{id}", func(ws chi.Router) {
		ws.Get("/", h.GetWholesale)
		ws.Delete("/", h.CloseWholesale)
		ws.Post("/items", h.WholesaleAddItem)
		ws.Put("/items/{productID}", h.WholesaleUpdateItem)
		ws.Delete("/items/{productID}", h.WholesaleRemoveItem)
		ws.Put("/discount", h.WholesaleDiscountAll)
		ws.Get("/clients", h.ListClients)
		ws.Post("/client", h.WholesaleBindClient)
		ws.Post("/clients", h.WholesaleCreateClient)
		ws.Put("/documents", h.WholesaleDocuments)
		ws.Post("/next", h.WholesaleNext)
		ws.Post("/previous", h.WholesalePrevious)
		ws.Post("/cancel", h.WholesaleCancel)
		ws.With(h.WriteGuards...).Post("/finish", h.WholesaleFinish)
	})
}

// ListDiscounts returns the selectable discounts. Index 0 is "no discount".
func (h *Handler) ListDiscounts(w http.ResponseWriter, _ *http.Request) {
	defs := h.Discounts.Definitions()
	out := make([]discountItem, 0, len(defs))
	for i, d := range defs {
		out = append(out, discountItem{Index: i, ID: d.ID, Name: d.Name, Percentage: d.Percentage, Label: d.Label()})
	}
	common.Data(w, http.StatusOK, out)
}

// ReloadDiscounts drops the cached catalog and reads it again from the store.
func (h *Handler) ReloadDiscounts(w http.ResponseWriter, r *http.Request) {
	if err := h.Discounts.Invalidate(r.Context()); err != nil {
		h.Logger.Warn().Err(err).Msg("discount_cache_invalidate_failed")
	}
	h.Discounts.Reload(r.Context())
	h.ListDiscounts(w, r)
}

// ListProducts returns the inventory.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Inventory.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, products)
}

// ListClients returns the active clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Inventory.ListActiveClients(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, clients)
}

// GetSale returns a committed sale with its lines.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "saleID"))
	sold, err := h.Inventory.GetSale(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lines, err := h.Inventory.ListSaleLines(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, saleResponse{Sale: sold, Lines: lines})
}

// PutReceiptTemplate stores the HTML receipt template. An empty template
// restores the built-in receipt.
func (h *Handler) PutReceiptTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := receipt.ValidateTemplate(req.Template); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_TEMPLATE", err.Error(), nil)
		return
	}
	if err := h.Settings.Set(r.Context(), settings.KeyReceiptTemplate, req.Template); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, req)
}

// GetCart renders the register session.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

// ClearCart empties the register and discards any open preview.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	s.Clear()
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

// AddItem adds a product. With discountIndex the catalog discount replaces
// the line's discount; without it an existing discount is kept.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.product(r.Context(), req.ProductID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var def *discount.Definition
	if req.DiscountIndex != nil {
		d, err := h.Discounts.Resolve(*req.DiscountIndex)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		def = &d
	}
	err = s.Mutate(func(c *cart.Cart) error {
		if def == nil {
			return c.Add(p, req.Qty)
		}
		return c.AddDiscounted(p, req.Qty, def.Percentage, def.Name)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	productID, ok := h.productParam(w, r)
	if !ok {
		return
	}
	if err := s.Mutate(func(c *cart.Cart) error { return c.Remove(productID) }); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

// SetItemDiscount applies a catalog discount to one line.
func (h *Handler) SetItemDiscount(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	productID, ok := h.productParam(w, r)
	if !ok {
		return
	}
	def, ok := h.discountFromBody(w, r)
	if !ok {
		return
	}
	if err := s.Mutate(func(c *cart.Cart) error { return c.SetDiscount(productID, def.Percentage, def.Name) }); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

// SetCartDiscount applies a catalog discount to every line.
func (h *Handler) SetCartDiscount(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	def, ok := h.discountFromBody(w, r)
	if !ok {
		return
	}
	if err := s.Mutate(func(c *cart.Cart) error { return c.SetDiscountForAll(def.Percentage, def.Name) }); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

// Preview freezes the cart into a pending sale and returns the compact receipt.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	s, operatorID, ok := h.register(w, r)
	if !ok {
		return
	}
	var req previewRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AmountPaid == nil {
		h.writeError(w, r, common.BadRequest("amountPaid is required", nil))
		return
	}
	if req.ClientID != nil {
		if _, err := h.Inventory.GetClient(r.Context(), *req.ClientID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	p, err := s.Preview(r.Context(), sale.PreviewInput{
		AmountPaid: *req.AmountPaid,
		OperatorID: operatorID,
		ClientID:   req.ClientID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	obs.Annotate(r.Context(), "sale_id", p.ID)
	common.Data(w, http.StatusOK, previewResponse{
		Sale:    pendingFrom(p),
		Receipt: h.Renderer.Compact(p),
	})
}

// Confirm commits the open preview and returns the printable receipt. The
// layout query parameter selects ticket or letter format.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	p, err := s.Confirm(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	obs.Annotate(r.Context(), "sale_id", p.ID)
	common.Data(w, http.StatusCreated, confirmResponse{
		SaleID:      p.ID,
		ReceiptHTML: h.receiptHTML(r, p),
	})
}

// Cancel discards the open preview and keeps the cart.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.register(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, registerFromView(s.View()))
}

func (h *Handler) receiptHTML(r *http.Request, p sale.PendingSale) string {
	renderer := h.Renderer
	if tpl := h.Settings.Get(r.Context(), settings.KeyReceiptTemplate, ""); strings.TrimSpace(tpl) != "" {
		renderer.Template = tpl
	}
	var client *store.Client
	if p.ClientID != nil {
		if c, err := h.Inventory.GetClient(r.Context(), *p.ClientID); err == nil {
			client = &c
		}
	}
	out, err := renderer.HTML(p, client, receipt.ParseLayout(r.URL.Query().Get("layout")))
	if err != nil {
		h.Logger.Error().Err(err).Str("sale_id", p.ID).Msg("receipt_render_failed")
		return ""
	}
	return out
}

// register resolves the register session and the operator driving this
// request. Registers are shared, so the operator is read on every request.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) (*sale.Session, int64, bool) {
	registerID := strings.TrimSpace(chi.URLParam(r, "id"))
	if registerID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "register id is required", nil)
		return nil, 0, false
	}
	operatorID, err := h.operator(r)
	if err != nil {
		h.writeError(w, r, err)
		return nil, 0, false
	}
	obs.Annotate(r.Context(), "register_id", registerID)
	return h.Registers.Session(registerID), operatorID, true
}

func (h *Handler) operator(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(obs.OperatorHeader))
	if raw == "" {
		return h.DefaultOperator, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.BadRequest("invalid "+obs.OperatorHeader+" header", err)
	}
	return id, nil
}

func (h *Handler) product(ctx context.Context, id int64) (cart.Product, error) {
	p, err := h.Inventory.GetProduct(ctx, id)
	if err != nil {
		return cart.Product{}, err
	}
	return cart.Product{ID: p.ID, Name: p.Name, UnitPrice: p.Price, Stock: p.Stock}, nil
}

func (h *Handler) productParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) discountFromBody(w http.ResponseWriter, r *http.Request) (discount.Definition, bool) {
	var req discountRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return discount.Definition{}, false
	}
	def, err := h.Discounts.Resolve(req.DiscountIndex)
	if err != nil {
		h.writeError(w, r, err)
		return discount.Definition{}, false
	}
	return def, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request_failed")
	}
	common.WriteError(w, appErr)
}

type discountItem struct {
	Index      int             `json:"index"`
	ID         int64           `json:"id,omitempty"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
	Label      string          `json:"label"`
}

type addItemRequest struct {
	ProductID     int64 `json:"productId" validate:"required,gt=0"`
	Qty           int   `json:"qty" validate:"required,gt=0"`
	DiscountIndex *int  `json:"discountIndex,omitempty" validate:"omitempty,gte=0"`
}

type discountRequest struct {
	DiscountIndex int `json:"discountIndex" validate:"gte=0"`
}

type previewRequest struct {
	AmountPaid *decimal.Decimal `json:"amountPaid"`
	ClientID   *int64           `json:"clientId,omitempty" validate:"omitempty,gt=0"`
}

type lineView struct {
	cart.Line
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
}

func linesFrom(lines []cart.Line) []lineView {
	out := make([]lineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineView{
			Line:           l,
			Subtotal:       pricing.Round(l.Subtotal()),
			DiscountAmount: pricing.Round(l.DiscountAmount()),
			Total:          pricing.Round(l.Total()),
		})
	}
	return out
}

type pendingView struct {
	ID         string          `json:"id"`
	Fecha      string          `json:"fecha"`
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Change     decimal.Decimal `json:"change"`
	ClientID   *int64          `json:"clientId,omitempty"`
	Lines      []lineView      `json:"lines"`
}

func pendingFrom(p sale.PendingSale) pendingView {
	return pendingView{
		ID:         p.ID,
		Fecha:      p.Fecha(),
		Total:      p.Due(),
		AmountPaid: pricing.Round(p.AmountPaid),
		Change:     pricing.Round(p.Change),
		ClientID:   p.ClientID,
		Lines:      linesFrom(p.Lines()),
	}
}

type registerView struct {
	State    string          `json:"state"`
	Lines    []lineView      `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	ClientID *int64          `json:"clientId,omitempty"`
	Pending  *pendingView    `json:"pending,omitempty"`
	LastSale string          `json:"lastSale,omitempty"`
}

func registerFromView(v sale.View) registerView {
	out := registerView{
		State:    v.State.String(),
		Lines:    linesFrom(v.Lines),
		Total:    pricing.Round(v.Total),
		ClientID: v.ClientID,
		LastSale: v.LastSale,
	}
	if v.Pending != nil {
		p := pendingFrom(*v.Pending)
		out.Pending = &p
	}
	return out
}

type previewResponse struct {
	Sale    pendingView `json:"sale"`
	Receipt string      `json:"receipt"`
}

type saleResponse struct {
	Sale  store.Sale       `json:"sale"`
	Lines []store.SaleLine `json:"lines"`
}

type templateRequest struct {
	Template string `json:"template"`
}

type confirmResponse struct {
	SaleID      string `json:"saleId"`
	ReceiptHTML string `json:"receiptHtml,omitempty"`
}
