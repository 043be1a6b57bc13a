package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/app"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/config"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/store"
)

func testConfig(t *testing.T, redisURL string) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:           "test",
		RedisURL:         redisURL,
		OperatorID:       1,
		DiscountCacheTTL: time.Minute,
		SaleLockTTL:      5 * time.Second,
		DocumentsDir:     t.TempDir(),
		MetricsNamespace: "pos_test",
		MaxBodyBytes:     256,
		SecurityHeaders:  true,
		RateLimitMax:     50,
		RateLimitWindow:  time.Minute,
		IdempotencyTTL:   time.Minute,
	}
}

func newApp(t *testing.T, cfg *config.Config) (*app.App, *store.Memory) {
	t.Helper()
	mem := store.NewSeededMemory()
	a, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Options{
		Store:      mem,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, mem
}

func send(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRegisterSaleThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	a, mem := newApp(t, testConfig(t, "redis://"+mr.Addr()))
	h := a.Handler

	rr := send(t, h, http.MethodPost, "/api/v1/registers/caja-1/items", `{"productId":1,"qty":2}`, obs.OperatorHeader, "3")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.NotEmpty(t, rr.Header().Get("X-RateLimit-Remaining"))

	rr = send(t, h, http.MethodPost, "/api/v1/registers/caja-1/preview", `{"amountPaid":"700"}`, obs.OperatorHeader, "3")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = send(t, h, http.MethodPost, "/api/v1/registers/caja-1/confirm", "",
		obs.OperatorHeader, "3", common.IdempotencyHeader, "confirm-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out struct {
		Data struct {
			SaleID string `json:"saleId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.True(t, mr.Exists("saleid:"+out.Data.SaleID))

	saved, err := mem.GetSale(context.Background(), out.Data.SaleID)
	require.NoError(t, err)
	require.Equal(t, int64(3), saved.OperatorID)
	require.Equal(t, "640.00", saved.Total.StringFixed(2))

	rr = send(t, h, http.MethodPost, "/api/v1/registers/caja-1/confirm", "",
		obs.OperatorHeader, "3", common.IdempotencyHeader, "confirm-1")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, mem.CountSales())
}

func TestRateLimitPerOperator(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, "redis://"+mr.Addr())
	cfg.RateLimitMax = 2
	a, _ := newApp(t, cfg)

	for i := 0; i < 2; i++ {
		rr := send(t, a.Handler, http.MethodGet, "/api/v1/products", "", obs.OperatorHeader, "9")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := send(t, a.Handler, http.MethodGet, "/api/v1/products", "", obs.OperatorHeader, "9")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")

	rr = send(t, a.Handler, http.MethodGet, "/api/v1/products", "", obs.OperatorHeader, "10")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMemoryOnlyServer(t *testing.T) {
	a, _ := newApp(t, testConfig(t, ""))
	require.Nil(t, a.Redis)

	rr := send(t, a.Handler, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "disabled", status["redis"])
	require.Equal(t, "disabled", status["db"])

	rr = send(t, a.Handler, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = send(t, a.Handler, http.MethodPost, "/api/v1/registers/caja-1/items", `{"productId":1,"qty":1,"note":"`+strings.Repeat("x", 300)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = send(t, a.Handler, http.MethodPost, "/api/v1/registers/caja-1/items", `{"productId":1,"qty":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = send(t, a.Handler, http.MethodPost, "/api/v1/registers/caja-1/preview", `{"amountPaid":"320"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = send(t, a.Handler, http.MethodPost, "/api/v1/registers/caja-1/confirm", "",
		common.IdempotencyHeader, "no-redis")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = send(t, a.Handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "pos_test_http_requests_total")
}

func TestDocumentsDirIsStored(t *testing.T) {
	cfg := testConfig(t, "")
	_, mem := newApp(t, cfg)
	v, err := mem.GetConfig(context.Background(), "recibo_save_path")
	require.NoError(t, err)
	require.Equal(t, cfg.DocumentsDir, v)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := app.New(context.Background(), nil, zerolog.Nop(), app.Options{})
	require.Error(t, err)
}
