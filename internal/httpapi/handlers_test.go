package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/geocode"
	"soapstock/backend/internal/hybrid"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/metrics"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/queue"
	"soapstock/backend/internal/service"
	"soapstock/backend/internal/store/local"
	"soapstock/backend/internal/store/memory"
)

const (
	testOperator = "admin"
	testPassword = "operator-pass"
)

type fixedGeocoder struct{}

func (fixedGeocoder) Geocode(context.Context, string) geocode.Result {
	return geocode.Result{Latitude: 36.75, Longitude: 3.06}
}

// newTestAPI builds the full request path: auth, service and a hybrid
// facade over an in-memory remote and a private sqlite file.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	kv, err := local.Open("file:http_" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	reg := prometheus.NewRegistry()
	facade := hybrid.New(hybrid.Deps{
		Remote:  memory.New(),
		Local:   local.New(kv),
		State:   kv,
		Queue:   queue.New(kv, nil),
		Monitor: network.New(network.WithInitialState(true)),
		Metrics: metrics.NewSyncMetrics(reg),
	}, hybrid.AllRemote())
	t.Cleanup(facade.Close)

	svc := service.New(facade, service.Options{Geocoder: fixedGeocoder{}})
	auth, err := NewAuthManager("test-secret-key-with-enough-length", time.Hour, testOperator, mustHashPassword(t, testPassword))
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	return New(svc, auth, Options{AllowedOrigin: "*", Logger: logger.Nop(), Gatherer: reg})
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func loginAsOperator(t *testing.T, api *API) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: testOperator, Password: testPassword})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("operator login failed, status %d", res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

// do sends an authenticated request and returns the recorder.
func do(t *testing.T, handler http.Handler, token, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (status %d)", err, rec.Code)
	}
	return out
}

// seedShop creates supermarket sm-1 and 40 cartons of stock.
func seedShop(t *testing.T, handler http.Handler, token string) {
	t.Helper()

	rec := do(t, handler, token, http.MethodPost, "/api/v1/supermarkets", map[string]any{
		"id":           "sm-1",
		"name":         "Superette Atlas",
		"address":      "12 Rue Didouche Mourad, Alger",
		"phoneNumbers": []map[string]string{{"name": "Karim", "number": "0550 12 34 56"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create supermarket: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/stock/movements", map[string]any{
		"id":       "stock-seed",
		"quantity": 40,
		"type":     domain.StockAdded,
		"reason":   "Livraison",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed stock: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api.Handler(), "", http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	actor, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if actor.Username != testOperator || actor.Role != RoleOperator {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api.Handler(), "", http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": testOperator,
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{"/api/v1/sales", "/api/v1/orders", "/api/v1/stock/fragrances", "/api/v1/sync/status"} {
		if rec := do(t, handler, "", http.MethodGet, path, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
	if rec := do(t, handler, "not-a-jwt", http.MethodGet, "/api/v1/sales", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", rec.Code)
	}
}

func TestSaleLifecycle(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	rec := do(t, handler, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"id":            "sale-1",
		"supermarketId": "sm-1",
		"quantity":      18,
		"pricePerUnit":  180,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sale := decodeBody[domain.Sale](t, rec)
	if sale.Cartons != 2 || sale.IsPaid {
		t.Fatalf("unexpected sale %+v", sale)
	}

	rec = do(t, handler, token, http.MethodGet, "/api/v1/stock/fragrances", nil)
	stock := decodeBody[struct {
		Total int `json:"total"`
	}](t, rec)
	if stock.Total != 38 {
		t.Fatalf("expected 38 cartons after sale, got %d", stock.Total)
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/sales/sale-1/payments", map[string]any{
		"id":     "pay-1",
		"amount": "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add payment: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, token, http.MethodPut, "/api/v1/sales/sale-1/paid", map[string]any{"isPaid": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("set paid: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if paid := decodeBody[domain.Sale](t, rec); !paid.IsPaid || len(paid.Payments) != 2 {
		t.Fatalf("expected a settled sale with 2 payments, got %+v", paid)
	}

	rec = do(t, handler, token, http.MethodGet, "/api/v1/sales", nil)
	listed := decodeBody[struct {
		Sales []domain.Sale `json:"sales"`
	}](t, rec)
	if len(listed.Sales) != 1 {
		t.Fatalf("expected 1 sale, got %d", len(listed.Sales))
	}

	if rec = do(t, handler, token, http.MethodDelete, "/api/v1/sales/sale-1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete sale: expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec = do(t, handler, token, http.MethodDelete, "/api/v1/sales/sale-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestCreateSaleErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	cases := []struct {
		name    string
		payload map[string]any
		want    int
	}{
		{"unknown price tier", map[string]any{"supermarketId": "sm-1", "quantity": 9, "pricePerUnit": 170}, http.StatusBadRequest},
		{"missing quantity", map[string]any{"supermarketId": "sm-1", "pricePerUnit": 180}, http.StatusBadRequest},
		{"unknown field", map[string]any{"supermarketId": "sm-1", "quantity": 9, "pricePerUnit": 180, "discount": 5}, http.StatusBadRequest},
		{"unknown supermarket", map[string]any{"supermarketId": "sm-x", "quantity": 9, "pricePerUnit": 180}, http.StatusNotFound},
		{"more than in stock", map[string]any{"supermarketId": "sm-1", "quantity": 369, "pricePerUnit": 180}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, handler, token, http.MethodPost, "/api/v1/sales", tc.payload)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (body: %s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCompleteOrderCreatesSale(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	rec := do(t, handler, token, http.MethodPost, "/api/v1/orders", map[string]any{
		"id":            "order-1",
		"supermarketId": "sm-1",
		"quantity":      27,
		"pricePerUnit":  166,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if order := decodeBody[domain.Order](t, rec); order.Status != domain.OrderPending || order.SupermarketName != "Superette Atlas" {
		t.Fatalf("unexpected order %+v", order)
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/orders/order-1/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete order: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if order := decodeBody[domain.Order](t, rec); order.Status != domain.OrderDelivered {
		t.Fatalf("expected delivered order, got %s", order.Status)
	}

	if rec = do(t, handler, token, http.MethodPost, "/api/v1/orders/order-1/complete", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second completion: expected 409, got %d", rec.Code)
	}
	if rec = do(t, handler, token, http.MethodDelete, "/api/v1/orders/order-1", nil); rec.Code != http.StatusConflict {
		t.Fatalf("delete delivered order: expected 409, got %d", rec.Code)
	}
	if rec = do(t, handler, token, http.MethodDelete, "/api/v1/supermarkets/sm-1", nil); rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced supermarket: expected 409, got %d", rec.Code)
	}
}

func TestStockEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	rec := do(t, handler, token, http.MethodPut, "/api/v1/stock/fragrances/1", map[string]any{"quantity": 12})
	if rec.Code != http.StatusOK {
		t.Fatalf("set fragrance: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/stock/movements", map[string]any{
		"quantity": 5,
		"type":     domain.StockRemoved,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("positive removal: expected 400, got %d", rec.Code)
	}

	rec = do(t, handler, token, http.MethodGet, "/api/v1/stock/history?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	history := decodeBody[struct {
		History []domain.StockHistoryEntry `json:"history"`
	}](t, rec)
	if len(history.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history.History))
	}
}

func TestSupermarketUpdate(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	rec := do(t, handler, token, http.MethodPatch, "/api/v1/supermarkets/sm-1", map[string]any{"email": "contact@atlas.dz"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if updated := decodeBody[domain.Supermarket](t, rec); updated.Email != "contact@atlas.dz" {
		t.Fatalf("expected email to be updated, got %q", updated.Email)
	}

	if rec = do(t, handler, token, http.MethodPatch, "/api/v1/supermarkets/sm-1", map[string]any{"email": "nope"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: expected 400, got %d", rec.Code)
	}
	if rec = do(t, handler, token, http.MethodPatch, "/api/v1/supermarkets/sm-404", map[string]any{"email": "a@b.dz"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown supermarket: expected 404, got %d", rec.Code)
	}
}

func TestReportEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)

	if rec := do(t, handler, token, http.MethodGet, "/api/v1/reports/monthly", nil); rec.Code != http.StatusOK {
		t.Fatalf("monthly: expected 200, got %d", rec.Code)
	}
	if rec := do(t, handler, token, http.MethodGet, "/api/v1/reports/summary?month=2024-03", nil); rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := do(t, handler, token, http.MethodGet, "/api/v1/reports/summary?month=03-2024", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad month: expected 400, got %d", rec.Code)
	}
}

func TestPaymentAboveRemainingIsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	rec := do(t, handler, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"id":            "sale-1",
		"supermarketId": "sm-1",
		"quantity":      9,
		"pricePerUnit":  180,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/sales/sale-1/payments", map[string]any{"amount": "5000"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overpayment: expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, token, http.MethodGet, "/api/v1/sales", nil)
	listed := decodeBody[struct {
		Sales []domain.Sale `json:"sales"`
	}](t, rec)
	if len(listed.Sales) != 1 || listed.Sales[0].IsPaid || len(listed.Sales[0].Payments) != 0 {
		t.Fatalf("expected the sale untouched, got %+v", listed.Sales)
	}
}

func TestPeriodReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)

	rec := do(t, handler, token, http.MethodGet, "/api/v1/reports/period", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("period: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	report := decodeBody[service.PeriodReport](t, rec)
	if report.Dashboard.Window != "current_month" || !report.SupplierReturn.CanReturnToSupplier {
		t.Fatalf("expected the current month window without sales, got %+v", report)
	}

	rec = do(t, handler, token, http.MethodGet, "/api/v1/reports/period?from=2024-03-01&to=2024-03-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ranged period: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ranged := decodeBody[service.PeriodReport](t, rec); ranged.Range == nil {
		t.Fatalf("expected range figures")
	}

	if rec = do(t, handler, token, http.MethodGet, "/api/v1/reports/period?from=2024-03-01", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("half range: expected 400, got %d", rec.Code)
	}
	if rec = do(t, handler, token, http.MethodGet, "/api/v1/reports/period?from=01/03/2024&to=2024-03-31", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}
}

func TestBackupAndRestoreEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)
	seedShop(t, handler, token)

	rec := do(t, handler, token, http.MethodGet, "/api/v1/admin/backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("backup: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "soapstock-backup-") {
		t.Fatalf("expected an attachment filename, got %q", got)
	}
	backup := decodeBody[domain.Backup](t, rec)
	if backup.Data == nil || len(backup.Data.Supermarkets) != 1 || len(backup.Data.StockHistory) != 1 {
		t.Fatalf("unexpected backup content %+v", backup.Data)
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/admin/restore", backup)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, token, http.MethodPost, "/api/v1/admin/restore", map[string]any{"version": "1.0.0"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("restore without data: expected 400, got %d", rec.Code)
	}

	if rec = do(t, handler, "", http.MethodGet, "/api/v1/admin/backup", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("backup without token: expected 401, got %d", rec.Code)
	}
}

func TestSyncAndMigrationEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsOperator(t, api)

	rec := do(t, handler, token, http.MethodGet, "/api/v1/sync/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status: expected 200, got %d", rec.Code)
	}
	if status := decodeBody[domain.SyncStatus](t, rec); !status.IsOnline || status.Pending != 0 {
		t.Fatalf("unexpected sync status %+v", status)
	}

	if rec = do(t, handler, token, http.MethodPost, "/api/v1/sync", nil); rec.Code != http.StatusOK {
		t.Fatalf("force sync: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// no migrator is configured for this API
	if rec = do(t, handler, token, http.MethodPost, "/api/v1/migration/run", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("migration: expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api.Handler(), "", http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "soapstock_pending_operations") {
		t.Fatalf("expected sync metrics in exposition output")
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api.Handler(), "", http.MethodGet, "/api/v2/nothing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected JSON error body, got %q", got)
	}
}
