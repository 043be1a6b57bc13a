package pos

import (
	"errors"
	"net/http"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/discount"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/store"
	"github.com/noah-isme/toko-pos/internal/wholesale"
)

// toAppError maps domain errors onto the HTTP error envelope. Order matters:
// wrapped chains are matched from the most specific sentinel down.
func toAppError(err error) *common.AppError {
	if appErr, ok := common.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, wholesale.ErrStepGuard):
		return common.NewAppError("STEP_NOT_ALLOWED", err.Error(), http.StatusConflict, err)
	case errors.Is(err, wholesale.ErrInvalidClient):
		return common.NewAppError("INVALID_CLIENT", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, cart.ErrInvalidQuantity):
		return common.NewAppError("INVALID_QUANTITY", "quantity must be positive", http.StatusUnprocessableEntity, err)
	case errors.Is(err, cart.ErrInsufficientStock):
		return common.NewAppError("INSUFFICIENT_STOCK", err.Error(), http.StatusConflict, err)
	case errors.Is(err, cart.ErrNotInCart):
		return common.NewAppError("NOT_IN_CART", "product not in cart", http.StatusNotFound, err)
	case errors.Is(err, cart.ErrInvalidPercentage):
		return common.NewAppError("INVALID_PERCENTAGE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, discount.ErrInvalidDiscount):
		return common.NewAppError("INVALID_DISCOUNT", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, sale.ErrEmptyCart):
		return common.NewAppError("CART_EMPTY", "cart is empty", http.StatusUnprocessableEntity, err)
	case errors.Is(err, sale.ErrInsufficientPayment):
		return common.NewAppError("INSUFFICIENT_PAYMENT", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, sale.ErrPreviewPending):
		return common.NewAppError("PREVIEW_PENDING", "a sale preview awaits confirmation", http.StatusConflict, err)
	case errors.Is(err, sale.ErrPreviewClosed):
		return common.NewAppError("NO_PREVIEW", "no sale preview is open", http.StatusConflict, err)
	case errors.Is(err, store.ErrStockConflict):
		return common.NewAppError("STOCK_CONFLICT", "stock changed before the sale was saved", http.StatusConflict, err)
	case errors.Is(err, sale.ErrPersistence):
		return common.NewAppError("PERSISTENCE_FAILED", "the sale could not be saved", http.StatusInternalServerError, err)
	case errors.Is(err, sale.ErrIDExhausted):
		return common.NewAppError("ID_UNAVAILABLE", "no sale id available, retry", http.StatusServiceUnavailable, err)
	case errors.Is(err, store.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "not found", http.StatusNotFound, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
