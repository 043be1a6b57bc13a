package pos_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/discount"
	"github.com/noah-isme/toko-pos/internal/docs"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/pos"
	"github.com/noah-isme/toko-pos/internal/receipt"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/settings"
	"github.com/noah-isme/toko-pos/internal/store"
	"github.com/noah-isme/toko-pos/internal/wholesale"
)

func fixedNow() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) }

func counter() func(int) int {
	n := 0
	return func(int) int {
		n++
		return n
	}
}

type server struct {
	router http.Handler
	mem    *store.Memory
	cfg    *settings.Service
}

func newServer(t *testing.T, guards ...func(http.Handler) http.Handler) *server {
	t.Helper()
	ctx := context.Background()
	mem := store.NewSeededMemory()
	mem.PutClient(store.Client{ID: 7, FirstName: "Ana", LastName: "Rivera", Active: true})
	cfg := &settings.Service{Q: mem}
	require.NoError(t, cfg.Set(ctx, settings.KeySavePath, t.TempDir()))

	catalog := &discount.Catalog{Q: mem}
	catalog.Reload(ctx)
	bus := &events.Bus{Store: mem}
	renderer := receipt.Renderer{Business: receipt.DefaultBusiness()}
	v := validator.New(validator.WithRequiredStructEnabled())

	posCoord := &sale.Coordinator{
		Store:       mem,
		IDs:         &sale.IDGenerator{Prefix: sale.PrefixPOS, Now: fixedNow, Rand: counter()},
		Events:      bus,
		Now:         fixedNow,
		ReceiptKind: sale.ReceiptHTML,
		Channel:     "pos",
	}
	wsCoord := &sale.Coordinator{
		Store:       mem,
		IDs:         &sale.IDGenerator{Prefix: sale.PrefixWholesale, Now: fixedNow, Rand: counter()},
		Events:      bus,
		Now:         fixedNow,
		ReceiptKind: sale.ReceiptWholesale,
		Channel:     "wholesale",
	}
	h := &pos.Handler{
		Inventory: mem,
		Discounts: catalog,
		Registers: &pos.Registers{Coordinator: posCoord},
		Wizards: &pos.Wizards{Service: &wholesale.Service{
			Coordinator: wsCoord,
			Products:    mem,
			Clients:     mem,
			Discounts:   catalog,
			Renderer:    renderer,
			Saver:       &docs.Saver{Settings: cfg, Sink: docs.DirSink{}},
			Events:      bus,
			Validator:   v,
			OperatorID:  1,
		}},
		Renderer:        renderer,
		Settings:        cfg,
		Validator:       v,
		DefaultOperator: 1,
		WriteGuards:     guards,
	}
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return &server{router: r, mem: mem, cfg: cfg}
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error common.ErrorBody `json:"error"`
}

func (s *server) do(t *testing.T, method, path, body string, headers ...string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr.Code, env
}

type registerResp struct {
	State string `json:"state"`
	Total string `json:"total"`
	Lines []struct {
		ProductID    int64  `json:"productId"`
		Qty          int    `json:"qty"`
		DiscountName string `json:"discountName"`
		Total        string `json:"total"`
	} `json:"lines"`
	LastSale string `json:"lastSale"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestListDiscountsAndProducts(t *testing.T) {
	s := newServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/discounts", "")
	require.Equal(t, http.StatusOK, code)
	defs := decode[[]struct {
		Index int    `json:"index"`
		Name  string `json:"name"`
		Label string `json:"label"`
	}](t, env.Data)
	require.Len(t, defs, 3)
	require.Equal(t, discount.NoneName, defs[0].Name)
	require.Equal(t, "Docena 10% - 10%", defs[1].Label)

	s.mem.PutDiscount(store.Discount{ID: 3, Name: "Cliente frecuente 5%", Kind: "Frecuente", Percentage: decimal.RequireFromString("0.05")})
	code, env = s.do(t, http.MethodPost, "/api/v1/discounts/reload", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decode[[]struct {
		Name string `json:"name"`
	}](t, env.Data), 4)

	code, env = s.do(t, http.MethodGet, "/api/v1/products", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decode[[]store.Product](t, env.Data), 4)
}

func TestRegisterSaleFlow(t *testing.T) {
	s := newServer(t)
	base := "/api/v1/registers/caja-1"

	code, env := s.do(t, http.MethodPost, base+"/items", `{"productId":2,"qty":12,"discountIndex":1}`)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	code, _ = s.do(t, http.MethodPost, base+"/items", `{"productId":3,"qty":1}`)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodGet, base+"/cart", "")
	require.Equal(t, http.StatusOK, code)
	view := decode[registerResp](t, env.Data)
	require.Equal(t, "building", view.State)
	require.Equal(t, "521", view.Total)
	require.Equal(t, "Docena 10%", view.Lines[0].DiscountName)

	code, env = s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"500"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "INSUFFICIENT_PAYMENT", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"600","clientId":7}`)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	preview := decode[struct {
		Sale struct {
			ID     string `json:"id"`
			Change string `json:"change"`
		} `json:"sale"`
		Receipt string `json:"receipt"`
	}](t, env.Data)
	require.True(t, strings.HasPrefix(preview.Sale.ID, "V-20250314092653-"))
	require.Equal(t, "79", preview.Sale.Change)
	require.Contains(t, preview.Receipt, "Teclado")

	code, env = s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "PREVIEW_PENDING", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/confirm?layout=letter", "")
	require.Equal(t, http.StatusCreated, code, env.Error.Message)
	confirmed := decode[struct {
		SaleID      string `json:"saleId"`
		ReceiptHTML string `json:"receiptHtml"`
	}](t, env.Data)
	require.Equal(t, preview.Sale.ID, confirmed.SaleID)
	require.Contains(t, confirmed.ReceiptHTML, "Ana Rivera")
	require.Contains(t, confirmed.ReceiptHTML, "7.5in")

	saved, err := s.mem.GetSale(context.Background(), confirmed.SaleID)
	require.NoError(t, err)
	require.Equal(t, "521.00", saved.Total.StringFixed(2))

	code, env = s.do(t, http.MethodGet, base+"/cart", "")
	require.Equal(t, http.StatusOK, code)
	view = decode[registerResp](t, env.Data)
	require.Equal(t, "confirmed", view.State)
	require.Empty(t, view.Lines)
	require.Equal(t, confirmed.SaleID, view.LastSale)

	code, env = s.do(t, http.MethodPost, base+"/confirm", "")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "NO_PREVIEW", env.Error.Code)

	code, env = s.do(t, http.MethodGet, "/api/v1/sales/"+confirmed.SaleID, "")
	require.Equal(t, http.StatusOK, code)
	reprint := decode[struct {
		Sale  store.Sale       `json:"sale"`
		Lines []store.SaleLine `json:"lines"`
	}](t, env.Data)
	require.Equal(t, sale.ReceiptHTML, reprint.Sale.ReceiptKind)
	require.Len(t, reprint.Lines, 2)
	require.Equal(t, "486.00", reprint.Lines[0].Subtotal.StringFixed(2))

	code, env = s.do(t, http.MethodGet, "/api/v1/sales/V-00000000000000-000", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRegisterSharedByOperators(t *testing.T) {
	s := newServer(t)
	base := "/api/v1/registers/caja-1"

	for _, op := range []string{"4", "5"} {
		code, env := s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`, obs.OperatorHeader, op)
		require.Equal(t, http.StatusOK, code, env.Error.Message)
		code, env = s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"500"}`, obs.OperatorHeader, op)
		require.Equal(t, http.StatusOK, code, env.Error.Message)
		previewID := decode[struct {
			Sale struct {
				ID string `json:"id"`
			} `json:"sale"`
		}](t, env.Data).Sale.ID

		code, env = s.do(t, http.MethodPost, base+"/confirm", "", obs.OperatorHeader, op)
		require.Equal(t, http.StatusCreated, code, env.Error.Message)
		confirmed := decode[struct {
			SaleID      string `json:"saleId"`
			ReceiptHTML string `json:"receiptHtml"`
		}](t, env.Data)
		require.Equal(t, previewID, confirmed.SaleID)
		require.Contains(t, confirmed.ReceiptHTML, "Venta: "+confirmed.SaleID)

		saved, err := s.mem.GetSale(context.Background(), confirmed.SaleID)
		require.NoError(t, err)
		require.Equal(t, op, strconv.FormatInt(saved.OperatorID, 10))
	}
}

func TestRegisterRejectedPreviewKeepsClient(t *testing.T) {
	s := newServer(t)
	base := "/api/v1/registers/caja-2"

	code, _ := s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`)
	require.Equal(t, http.StatusOK, code)
	code, env := s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"500","clientId":7}`)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	code, _ = s.do(t, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "INSUFFICIENT_PAYMENT", env.Error.Code)

	code, env = s.do(t, http.MethodGet, base+"/cart", "")
	require.Equal(t, http.StatusOK, code)
	view := decode[struct {
		ClientID *int64 `json:"clientId"`
	}](t, env.Data)
	require.NotNil(t, view.ClientID)
	require.Equal(t, int64(7), *view.ClientID)
}

func TestRegisterCustomReceiptTemplate(t *testing.T) {
	s := newServer(t)
	code, env := s.do(t, http.MethodPut, "/api/v1/settings/receipt-template", `{"template":"<p>{{.SaleID</p>"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "INVALID_TEMPLATE", env.Error.Code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/settings/receipt-template", `{"template":"<p>Venta {{.SaleID}}</p>"}`)
	require.Equal(t, http.StatusOK, code)
	stored := s.cfg.Get(context.Background(), settings.KeyReceiptTemplate, "")
	require.Equal(t, "<p>Venta {{.SaleID}}</p>", stored)

	base := "/api/v1/registers/caja-2"
	code, _ = s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":320}`)
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodPost, base+"/confirm", "")
	require.Equal(t, http.StatusCreated, code)
	confirmed := decode[struct {
		SaleID      string `json:"saleId"`
		ReceiptHTML string `json:"receiptHtml"`
	}](t, env.Data)
	require.Equal(t, "<p>Venta "+confirmed.SaleID+"</p>", confirmed.ReceiptHTML)
}

func TestRegisterDiscountsAndRemoval(t *testing.T) {
	s := newServer(t)
	base := "/api/v1/registers/caja-3"
	s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`)
	s.do(t, http.MethodPost, base+"/items", `{"productId":3,"qty":2}`)

	code, env := s.do(t, http.MethodPut, base+"/discount", `{"discountIndex":2}`)
	require.Equal(t, http.StatusOK, code)
	view := decode[registerResp](t, env.Data)
	for _, l := range view.Lines {
		require.Equal(t, "Mayorista 15%", l.DiscountName)
	}

	code, env = s.do(t, http.MethodPut, base+"/items/3/discount", `{"discountIndex":0}`)
	require.Equal(t, http.StatusOK, code)
	view = decode[registerResp](t, env.Data)
	require.Equal(t, discount.NoneName, view.Lines[1].DiscountName)
	require.Equal(t, "70", view.Lines[1].Total)

	code, env = s.do(t, http.MethodPut, base+"/discount", `{"discountIndex":9}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "INVALID_DISCOUNT", env.Error.Code)

	code, _ = s.do(t, http.MethodDelete, base+"/items/1", "")
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodDelete, base+"/items/1", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_IN_CART", env.Error.Code)

	code, env = s.do(t, http.MethodDelete, base+"/cart", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "empty", decode[registerResp](t, env.Data).State)
}

func TestRegisterRejections(t *testing.T) {
	s := newServer(t)
	base := "/api/v1/registers/caja-4"

	code, env := s.do(t, http.MethodPost, base+"/items", `{"productId":4,"qty":9}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/items", `{"productId":4,"qty":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/items", `{"productId":99,"qty":1}`)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"10"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "CART_EMPTY", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/preview", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)

	code, env = s.do(t, http.MethodGet, base+"/cart", "", obs.OperatorHeader, "abc")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestRegisterStockConflictAtCommit(t *testing.T) {
	s := newServer(t)
	base := "/api/v1/registers/caja-5"
	s.do(t, http.MethodPost, base+"/items", `{"productId":4,"qty":2}`)
	code, _ := s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"1300"}`)
	require.Equal(t, http.StatusOK, code)

	p, err := s.mem.GetProduct(context.Background(), 4)
	require.NoError(t, err)
	p.Stock = 1
	s.mem.PutProduct(p)

	code, env := s.do(t, http.MethodPost, base+"/confirm", "")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "STOCK_CONFLICT", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, code)
	view := decode[registerResp](t, env.Data)
	require.Equal(t, "cancelled", view.State)
	require.Len(t, view.Lines, 1)
}

type wizardResp struct {
	ID       string `json:"id"`
	Step     int    `json:"step"`
	StepName string `json:"stepName"`
	Total    string `json:"total"`
	SaleID   string `json:"saleId"`
	Receipt  string `json:"receipt"`
	Summary  string `json:"summary"`
}

func TestWholesaleFlow(t *testing.T) {
	s := newServer(t)
	code, env := s.do(t, http.MethodPost, "/api/v1/wholesale", "")
	require.Equal(t, http.StatusCreated, code)
	wiz := decode[wizardResp](t, env.Data)
	require.Equal(t, 1, wiz.Step)
	base := "/api/v1/wholesale/" + wiz.ID

	code, env = s.do(t, http.MethodPost, base+"/next", "")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "STEP_NOT_ALLOWED", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/items", `{"productId":2,"qty":12,"discountIndex":1}`)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	code, env = s.do(t, http.MethodPost, base+"/items", `{"productId":2,"quick":true}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "526.50", decode[wizardResp](t, env.Data).Total)

	code, _ = s.do(t, http.MethodPost, base+"/next", "")
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, base+"/clients", `{"firstName":"Marta","lastName":"Paz","email":"mal"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "INVALID_CLIENT", env.Error.Code)

	code, env = s.do(t, http.MethodPost, base+"/client", `{"clientId":7}`)
	require.Equal(t, http.StatusOK, code, env.Error.Message)

	code, env = s.do(t, http.MethodPost, base+"/next", "")
	require.Equal(t, http.StatusOK, code)
	wiz = decode[wizardResp](t, env.Data)
	require.Equal(t, "review_documents", wiz.StepName)
	require.Contains(t, wiz.Receipt, "Ana Rivera")

	code, env = s.do(t, http.MethodPut, base+"/documents", `{"receipt":"Recibo editado"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Recibo editado", decode[wizardResp](t, env.Data).Receipt)

	code, env = s.do(t, http.MethodPost, base+"/next", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, decode[wizardResp](t, env.Data).Summary, "RESUMEN")

	code, env = s.do(t, http.MethodPost, base+"/finish", "", obs.OperatorHeader, "6")
	require.Equal(t, http.StatusCreated, code, env.Error.Message)
	done := decode[struct {
		SaleID   string `json:"saleId"`
		Progress []struct {
			Percent int `json:"percent"`
		} `json:"progress"`
		Wizard wizardResp `json:"wizard"`
	}](t, env.Data)
	require.True(t, strings.HasPrefix(done.SaleID, "VM-"))
	require.Len(t, done.Progress, 7)
	require.Equal(t, 1, done.Wizard.Step)

	saved, err := s.mem.GetSale(context.Background(), done.SaleID)
	require.NoError(t, err)
	require.Equal(t, sale.ReceiptWholesale, saved.ReceiptKind)
	require.Equal(t, int64(6), saved.OperatorID)
}

func TestWholesaleCancelNeedsConfirmation(t *testing.T) {
	s := newServer(t)
	_, env := s.do(t, http.MethodPost, "/api/v1/wholesale", "")
	base := "/api/v1/wholesale/" + decode[wizardResp](t, env.Data).ID
	s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`)

	code, env := s.do(t, http.MethodPost, base+"/cancel", `{}`)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "CONFIRMATION_REQUIRED", env.Error.Code)

	code, _ = s.do(t, http.MethodPost, base+"/cancel", `{"confirm":true}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, base+"/", "")
	require.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(t, http.MethodGet, base+"/", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestWholesaleUnknownSession(t *testing.T) {
	s := newServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/wholesale/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/wholesale/3f1d2a4e-8a7b-4b0c-9a55-2d1a4c0b9e11", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestConfirmIdempotencyGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := newServer(t, common.Idem{R: client, TTL: time.Minute}.Middleware)
	base := "/api/v1/registers/caja-6"

	s.do(t, http.MethodPost, base+"/items", `{"productId":1,"qty":1}`)
	s.do(t, http.MethodPost, base+"/preview", `{"amountPaid":"320"}`)
	code, _ := s.do(t, http.MethodPost, base+"/confirm", "", common.IdempotencyHeader, "tap-1")
	require.Equal(t, http.StatusCreated, code)
	code, env := s.do(t, http.MethodPost, base+"/confirm", "", common.IdempotencyHeader, "tap-1")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "IDEMPOTENT_REPLAY", env.Error.Code)
	require.Equal(t, 1, s.mem.CountSales())
}
