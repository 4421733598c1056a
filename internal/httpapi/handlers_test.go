package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/metrics"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/store/memory"
)

const testManagerPIN = "739154"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(zap.NewNop())
	reg := prometheus.NewRegistry()
	m := metrics.New("salonpos_test", reg)
	svc := service.New(repo, billing.NewCalculator(billing.DefaultRules()), service.Options{
		DefaultStoreID: "main-store",
		Metrics:        m,
	})
	auth := NewAuthManager("test-secret-key", time.Hour, testManagerPIN, repo, zap.NewNop())

	return New(svc, auth, Options{AllowedOrigin: "*", Metrics: m, Gatherer: reg})
}

func login(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	h := newTestAPI(t).Handler()

	token := login(t, h, "admin", "admin123")
	assert.NotEmpty(t, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/services", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/services", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGroups(t *testing.T) {
	h := newTestAPI(t).Handler()
	stylist := login(t, h, "rina", "stylist123")
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/services", stylist, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var services struct {
		Services []domain.ServiceOffering `json:"services"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&services))
	assert.Len(t, services.Services, 5)

	assert.Equal(t, http.StatusForbidden, doJSON(t, h, http.MethodGet, "/api/v1/customers", stylist, nil).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, http.MethodPost, "/api/v1/checkout", stylist, domain.CheckoutRequest{}).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/api/v1/customers?q=ayu", cashier, nil).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, http.MethodGet, "/api/v1/reports/daily", cashier, nil).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, http.MethodPost, "/api/v1/services", cashier, domain.ServiceCreateRequest{}).Code)
}

func TestCalculateEndpoint(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "cashier", "cashier123")

	body := `{
		"lineItems": [{"kind": "service", "serviceId": "svc-1", "unitPrice": 100, "quantity": 1}],
		"membership": {"discountPercentage": 10, "pointsMultiplier": 1},
		"pointsToRedeem": 10,
		"customerPointsBalance": 50,
		"taxConfig": {"enabled": true, "rate": 10}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/calculate", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	raw := rec.Body.String()
	var bill billing.Bill
	require.NoError(t, json.NewDecoder(strings.NewReader(raw)).Decode(&bill))
	assert.True(t, decimal.NewFromInt(88).Equal(bill.TotalAmount), bill.TotalAmount.String())
	assert.Contains(t, raw, `"totalAmount":88`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/bills/calculate", strings.NewReader(`{
		"lineItems": [{"kind": "service", "unitPrice": 1000, "quantity": 1}],
		"membership": {"discountPercentage": 10},
		"taxConfig": {"enabled": false}
	}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"totalAmount":900`)
	assert.Contains(t, rec.Body.String(), `"pointsEarned":9`)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/bills/calculate", token, billing.Request{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")
	admin := login(t, h, "admin", "admin123")

	checkout := domain.CheckoutRequest{
		IdempotencyKey: "idem-http-1",
		CustomerID:     "cust-ayu",
		PointsToRedeem: 20,
		PaymentMethod:  "cash",
		CashReceived:   decimal.NewFromInt(400),
		CartItems: []domain.CartItem{
			{Kind: billing.KindService, ServiceID: "svc-haircut", StaffID: "rina", Qty: 1},
			{Kind: billing.KindProduct, SKU: "SKU-OIL-01", Qty: 2},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", cashier, checkout)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first domain.CheckoutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))
	assert.True(t, decimal.RequireFromString("368.41").Equal(first.Bill.TotalAmount), first.Bill.TotalAmount.String())
	assert.True(t, decimal.RequireFromString("31.59").Equal(first.Change))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/checkout", cashier, checkout)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again domain.CheckoutResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.TransactionID, again.TransactionID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/checkout/idempotency/idem-http-1", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lookup domain.CheckoutLookupResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&lookup))
	require.True(t, lookup.Found)
	assert.Equal(t, first.TransactionID, lookup.Checkout.TransactionID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/transactions", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Transactions []domain.CheckoutResponse `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed.Transactions, 1)

	voidPath := "/api/v1/transactions/" + first.TransactionID + "/void"
	rec = doJSON(t, h, http.MethodPost, voidPath, admin, domain.VoidTransactionRequest{Reason: "wrong cart", ManagerPIN: "000000"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, voidPath, admin, domain.VoidTransactionRequest{Reason: "wrong cart", ManagerPIN: testManagerPIN})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var voided domain.VoidTransactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&voided))
	assert.Equal(t, domain.TxStatusVoided, voided.Status)

	rec = doJSON(t, h, http.MethodPost, voidPath, admin, domain.VoidTransactionRequest{Reason: "again", ManagerPIN: testManagerPIN})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/customers/cust-ayu", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var customer struct {
		Customer domain.Customer `json:"customer"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&customer))
	assert.Equal(t, int64(120), customer.Customer.PointsBalance)
}

func TestCheckoutErrorStatuses(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", cashier, domain.CheckoutRequest{
		PaymentMethod: "cash",
		CashReceived:  decimal.NewFromInt(10000),
		CartItems:     []domain.CartItem{{Kind: billing.KindProduct, SKU: "SKU-POLISH-01", Qty: 41}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/checkout", cashier, domain.CheckoutRequest{
		CustomerID:     "cust-budi",
		PointsToRedeem: 500,
		PaymentMethod:  "card",
		CartItems:      []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-blowdry", Qty: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/customers/cust-nobody", cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookAppointmentEndpoint(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	startsAt := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, time.UTC)
	booking := domain.AppointmentCreateRequest{
		CustomerID:    "cust-budi",
		StaffUsername: "dewi",
		ServiceID:     "svc-manicure",
		StartsAt:      startsAt,
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/appointments", cashier, booking)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Appointment domain.Appointment `json:"appointment"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, startsAt.Add(60*time.Minute), created.Appointment.EndsAt.UTC())

	booking.StartsAt = startsAt.Add(30 * time.Minute)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/appointments", cashier, booking)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	stylist := login(t, h, "dewi", "stylist123")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/appointments?staff=dewi&date="+startsAt.Format(time.DateOnly), stylist, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listed struct {
		Appointments []domain.Appointment `json:"appointments"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Len(t, listed.Appointments, 1)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/appointments/"+created.Appointment.ID+"/status", stylist,
		domain.AppointmentStatusRequest{Status: domain.AppointmentCancelled})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminCatalogAndStaffEndpoints(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/stores/main-store/tax", admin, domain.TaxConfigUpdateRequest{
		TaxEnabled: true,
		TaxRate:    decimal.NewFromInt(12),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/services/svc-facial", admin, domain.ServiceActiveRequest{Active: false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, h, http.MethodGet, "/api/v1/services", admin, nil)
	assert.NotContains(t, rec.Body.String(), "svc-facial")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/services?include_inactive=true", admin, nil)
	assert.Contains(t, rec.Body.String(), "svc-facial")

	rec = doJSON(t, h, http.MethodPost, "/api/v1/products/SKU-COND-01/restock", admin, domain.RestockRequest{Qty: 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/staff", admin, domain.StaffCreateRequest{Username: "sari", Password: "pass1234", Role: "stylist"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = doJSON(t, h, http.MethodPost, "/api/v1/staff", admin, domain.StaffCreateRequest{Username: "sari", Password: "pass1234"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/staff?role=stylist", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var staff struct {
		Staff []domain.StaffUser `json:"staff"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&staff))
	assert.Len(t, staff.Staff, 3)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/audit-logs", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tax_config_update")
}

func TestDailyReportFormats(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/reports/daily", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report domain.DailyReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "main-store", report.StoreID)
	assert.NotNil(t, report.ByPayment)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/daily?format=csv", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "daily-report-main-store-")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "section,key,value", lines[0])
	assert.Contains(t, rec.Body.String(), "summary,store_id,main-store")

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/daily?format=xml", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyReportToCSVIncludesPayments(t *testing.T) {
	body, err := dailyReportToCSV(domain.DailyReport{
		StoreID:      "main-store",
		Date:         "2026-03-01",
		Transactions: 2,
		NetSales:     decimal.RequireFromString("250.5"),
		ByPayment: []domain.DailyReportPayment{
			{PaymentMethod: "qris", Transactions: 2, Total: decimal.RequireFromString("250.5")},
		},
	})
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "summary,net_sales,250.50\n")
	assert.Contains(t, out, "payment,qris_transactions,2\n")
	assert.Contains(t, out, "payment,qris_total,250.50\n")
}
