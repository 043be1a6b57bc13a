package wholesale

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/toko-pos/internal/receipt"
)

// ProgressStep is reported while a wholesale sale is being finished.
type ProgressStep struct {
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

var (
	progressValidating = ProgressStep{15, "Validando información"}
	progressRegister   = ProgressStep{30, "Registrando venta"}
	progressInventory  = ProgressStep{50, "Actualizando inventario"}
	progressReceipt    = ProgressStep{70, "Generando recibo"}
	progressConstancia = ProgressStep{85, "Generando constancia"}
	progressSaving     = ProgressStep{95, "Guardando documentos"}
	progressDone       = ProgressStep{100, "Finalizando"}
)

// Result describes a finished wholesale sale.
type Result struct {
	SaleID         string `json:"saleId"`
	ReceiptPath    string `json:"receiptPath,omitempty"`
	ConstanciaPath string `json:"constanciaPath,omitempty"`
	// DocumentErr is set when the sale committed but a document could not be saved.
	DocumentErr error `json:"-"`
}

// Finish commits the pending sale and saves both documents. It is allowed
// only at the confirm step. When the commit fails the session stays at the
// confirm step with its documents intact. Once committed, the session is
// reset for the next sale even if saving a document fails. The sale is
// recorded under operatorID, or the service default when it is not positive.
func (s *Session) Finish(ctx context.Context, operatorID int64, progress func(ProgressStep)) (Result, error) {
	report := func(p ProgressStep) {
		if progress != nil {
			progress(p)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	report(progressValidating)
	if s.step != StepConfirm || s.pending == nil || s.client == nil {
		return Result{}, fmt.Errorf("finish at step %s: %w", s.step, ErrStepGuard)
	}

	report(progressRegister)
	p := *s.pending
	if operatorID > 0 {
		p.OperatorID = operatorID
	}
	id, err := s.svc.Coordinator.Confirm(ctx, s.cart, p)
	if err != nil {
		return Result{}, err
	}
	report(progressInventory)

	res := Result{SaleID: id}
	report(progressReceipt)
	receiptDoc := receipt.WrapHTML(s.receipt, "Recibo "+id)
	report(progressConstancia)
	constanciaDoc := receipt.WrapHTML(s.constancia, "Constancia "+id)

	report(progressSaving)
	var saveErrs []error
	if s.svc.Saver != nil {
		path, err := s.svc.Saver.Save(ctx, "Recibo_"+id+".html", receiptDoc)
		if err != nil {
			saveErrs = append(saveErrs, err)
		}
		res.ReceiptPath = path
		path, err = s.svc.Saver.Save(ctx, "Constancia_"+id+".html", constanciaDoc)
		if err != nil {
			saveErrs = append(saveErrs, err)
		}
		res.ConstanciaPath = path
	}
	if err := errors.Join(saveErrs...); err != nil {
		res.DocumentErr = err
		s.svc.Logger.Error().Err(err).Str("sale_id", id).Msg("wholesale_documents_not_saved")
	}

	s.pending = nil
	s.reset()
	report(progressDone)
	s.svc.Logger.Info().Str("sale_id", id).Msg("wholesale_sale_finished")
	return res, nil
}
