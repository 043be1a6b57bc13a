package pos

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/store"
	"github.com/noah-isme/toko-pos/internal/wholesale"
)

// OpenWholesale starts a wholesale wizard.
func (h *Handler) OpenWholesale(w http.ResponseWriter, _ *http.Request) {
	id, s := h.Wizards.Open()
	common.Data(w, http.StatusCreated, wizardFrom(id, s.Snapshot()))
}

// CloseWholesale discards a wizard and its session.
func (h *Handler) CloseWholesale(w http.ResponseWriter, r *http.Request) {
	s, id, ok := h.wizard(w, r)
	if !ok {
		return
	}
	s.Cancel(func() bool { return true })
	h.Wizards.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

// GetWholesale renders a wizard.
func (h *Handler) GetWholesale(w http.ResponseWriter, r *http.Request) {
	h.withWizard(w, r, func(*wholesale.Session) error { return nil })
}

// WholesaleAddItem adds a product. With quick set, one unit is added and the
// line discount is kept; otherwise qty units with the selected discount.
func (h *Handler) WholesaleAddItem(w http.ResponseWriter, r *http.Request) {
	var req wholesaleItemRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error {
		if req.Quick {
			return s.QuickAdd(r.Context(), req.ProductID)
		}
		if req.Qty <= 0 {
			return common.NewAppError("INVALID_QUANTITY", "quantity must be positive", http.StatusUnprocessableEntity, nil)
		}
		return s.AddProduct(r.Context(), req.ProductID, req.Qty, req.DiscountIndex)
	})
}

// WholesaleUpdateItem replaces quantity and discount of a line.
func (h *Handler) WholesaleUpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productParam(w, r)
	if !ok {
		return
	}
	var req updateLineRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error {
		return s.UpdateLine(productID, req.Qty, req.DiscountIndex)
	})
}

// WholesaleRemoveItem deletes a line.
func (h *Handler) WholesaleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productParam(w, r)
	if !ok {
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error { return s.RemoveProduct(productID) })
}

// WholesaleDiscountAll applies a catalog discount to every line.
func (h *Handler) WholesaleDiscountAll(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error { return s.ApplyDiscountToAll(req.DiscountIndex) })
}

// WholesaleBindClient attaches an existing client.
func (h *Handler) WholesaleBindClient(w http.ResponseWriter, r *http.Request) {
	var req bindClientRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error {
		_, err := s.BindClient(r.Context(), req.ClientID)
		return err
	})
}

// WholesaleCreateClient registers a client and binds it.
func (h *Handler) WholesaleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req wholesale.ClientInput
	if err := common.DecodeJSON(r, &req, nil); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, id, ok := h.wizard(w, r)
	if !ok {
		return
	}
	c, err := s.CreateClient(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, map[string]any{
		"client": c,
		"wizard": wizardFrom(id, s.Snapshot()),
	})
}

// WholesaleDocuments edits or regenerates the review documents.
func (h *Handler) WholesaleDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error {
		if req.Regenerate {
			return s.RegenerateDocuments()
		}
		if req.Receipt != nil {
			if err := s.EditReceipt(*req.Receipt); err != nil {
				return err
			}
		}
		if req.Constancia != nil {
			return s.EditConstancia(*req.Constancia)
		}
		return nil
	})
}

// WholesaleNext advances the wizard.
func (h *Handler) WholesaleNext(w http.ResponseWriter, r *http.Request) {
	h.withWizard(w, r, func(s *wholesale.Session) error {
		_, err := s.Next(r.Context())
		return err
	})
}

// WholesalePrevious goes back one step.
func (h *Handler) WholesalePrevious(w http.ResponseWriter, r *http.Request) {
	h.withWizard(w, r, func(s *wholesale.Session) error {
		s.Previous()
		return nil
	})
}

// WholesaleCancel resets the wizard. A non-empty cart needs confirm=true.
func (h *Handler) WholesaleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := common.DecodeJSON(r, &req, h.Validator); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withWizard(w, r, func(s *wholesale.Session) error {
		if !s.Cancel(func() bool { return req.Confirm }) {
			return common.NewAppError("CONFIRMATION_REQUIRED", "cancelling discards the cart; resend with confirm=true", http.StatusConflict, nil)
		}
		return nil
	})
}

// WholesaleFinish commits the sale and saves its documents.
func (h *Handler) WholesaleFinish(w http.ResponseWriter, r *http.Request) {
	operatorID, err := h.operator(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, id, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var progress []wholesale.ProgressStep
	res, err := s.Finish(r.Context(), operatorID, func(p wholesale.ProgressStep) { progress = append(progress, p) })
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	obs.Annotate(r.Context(), "sale_id", res.SaleID)
	out := finishResponse{
		SaleID:         res.SaleID,
		ReceiptPath:    res.ReceiptPath,
		ConstanciaPath: res.ConstanciaPath,
		Progress:       progress,
		Wizard:         wizardFrom(id, s.Snapshot()),
	}
	if res.DocumentErr != nil {
		out.Warning = "the sale was saved but its documents could not be written"
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) wizard(w http.ResponseWriter, r *http.Request) (*wholesale.Session, uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid wholesale session id", nil)
		return nil, uuid.Nil, false
	}
	s, ok := h.Wizards.Get(id)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "wholesale session not found", nil)
		return nil, uuid.Nil, false
	}
	obs.Annotate(r.Context(), "wholesale_id", id.String())
	return s, id, true
}

func (h *Handler) withWizard(w http.ResponseWriter, r *http.Request, fn func(*wholesale.Session) error) {
	s, id, ok := h.wizard(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, wizardFrom(id, s.Snapshot()))
}

type wholesaleItemRequest struct {
	ProductID     int64 `json:"productId" validate:"required,gt=0"`
	Qty           int   `json:"qty" validate:"omitempty,gt=0"`
	DiscountIndex int   `json:"discountIndex" validate:"gte=0"`
	Quick         bool  `json:"quick"`
}

type updateLineRequest struct {
	Qty           int `json:"qty" validate:"required,gt=0"`
	DiscountIndex int `json:"discountIndex" validate:"gte=0"`
}

type bindClientRequest struct {
	ClientID int64 `json:"clientId" validate:"required,gt=0"`
}

type documentsRequest struct {
	Receipt    *string `json:"receipt,omitempty"`
	Constancia *string `json:"constancia,omitempty"`
	Regenerate bool    `json:"regenerate"`
}

type cancelRequest struct {
	Confirm bool `json:"confirm"`
}

type wizardView struct {
	ID         string        `json:"id"`
	Step       int           `json:"step"`
	StepName   string        `json:"stepName"`
	Lines      []lineView    `json:"lines"`
	Total      string        `json:"total"`
	Client     *store.Client `json:"client,omitempty"`
	SaleID     string        `json:"saleId,omitempty"`
	Receipt    string        `json:"receipt,omitempty"`
	Constancia string        `json:"constancia,omitempty"`
	Summary    string        `json:"summary,omitempty"`
}

func wizardFrom(id uuid.UUID, s wholesale.Snapshot) wizardView {
	return wizardView{
		ID:         id.String(),
		Step:       int(s.Step),
		StepName:   s.Step.String(),
		Lines:      linesFrom(s.Lines),
		Total:      s.Total,
		Client:     s.Client,
		SaleID:     s.SaleID,
		Receipt:    s.Receipt,
		Constancia: s.Constancia,
		Summary:    s.Summary,
	}
}

type finishResponse struct {
	SaleID         string                   `json:"saleId"`
	ReceiptPath    string                   `json:"receiptPath,omitempty"`
	ConstanciaPath string                   `json:"constanciaPath,omitempty"`
	Warning        string                   `json:"warning,omitempty"`
	Progress       []wholesale.ProgressStep `json:"progress"`
	Wizard         wizardView               `json:"wizard"`
}
