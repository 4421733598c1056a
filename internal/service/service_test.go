package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/metrics"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/store/memory"
)

type mapQuoteCache struct {
	mu    sync.Mutex
	items map[string]domain.QuoteResponse
}

func (c *mapQuoteCache) Get(_ context.Context, key string) (*domain.QuoteResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapQuoteCache) Set(_ context.Context, key string, value *domain.QuoteResponse, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = *value
	return nil
}

type fixture struct {
	svc     *Service
	repo    *memory.Store
	metrics *metrics.Metrics
	now     time.Time
}

// newFixture pins the clock to 08:00 UTC tomorrow, one hour before the seeded
// store opens.
func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := memory.NewSeeded(zap.NewNop())
	m := metrics.New("salonpos_test", prometheus.NewRegistry())
	svc := New(repo, billing.NewCalculator(billing.DefaultRules()), Options{
		DefaultStoreID: "main-store",
		Quotes:         &mapQuoteCache{items: map[string]domain.QuoteResponse{}},
		Metrics:        m,
	})
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	now := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return fixture{svc: svc, repo: repo, metrics: m, now: now}
}

func asAdmin() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func asCashier() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func memberCart() []domain.CartItem {
	return []domain.CartItem{
		{Kind: billing.KindService, ServiceID: "svc-haircut", StaffID: "rina", Qty: 1},
		{Kind: "PRODUCT", SKU: "sku-oil-01", Qty: 2},
	}
}

func TestQuoteUsesCatalogPricesAndMembership(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Quote(context.Background(), domain.QuoteRequest{
		CustomerID:     "cust-ayu",
		PointsToRedeem: 20,
		CartItems:      memberCart(),
	})
	require.NoError(t, err)

	assert.Equal(t, "main-store", resp.StoreID)
	assert.Equal(t, "Gold", resp.Membership)
	require.Len(t, resp.LineItems, 2)
	assert.Equal(t, "SKU-OIL-01", resp.LineItems[1].SKU)
	assert.True(t, money("120.50").Equal(resp.LineItems[1].UnitPrice))

	assert.True(t, money("391").Equal(resp.Bill.Subtotal), resp.Bill.Subtotal.String())
	assert.True(t, money("39.10").Equal(resp.Bill.DiscountAmount), resp.Bill.DiscountAmount.String())
	assert.True(t, money("20").Equal(resp.Bill.RedemptionValue))
	assert.True(t, money("36.51").Equal(resp.Bill.TaxAmount), resp.Bill.TaxAmount.String())
	assert.True(t, money("368.41").Equal(resp.Bill.TotalAmount), resp.Bill.TotalAmount.String())
	assert.Equal(t, int64(7), resp.Bill.PointsEarned)
	assert.False(t, resp.Cached)
}

func TestQuoteServedFromCacheOnRepeat(t *testing.T) {
	f := newFixture(t)
	req := domain.QuoteRequest{CustomerID: "cust-budi", PointsToRedeem: 30, CartItems: []domain.CartItem{
		{Kind: billing.KindService, ServiceID: "svc-blowdry", Qty: 1},
	}}

	first, err := f.svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.True(t, money("55.50").Equal(first.Bill.TotalAmount), first.Bill.TotalAmount.String())
	assert.Equal(t, int64(0), first.Bill.PointsEarned)

	second, err := f.svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, first.Bill.TotalAmount.Equal(second.Bill.TotalAmount))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.QuoteCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BillsComputed.WithLabelValues("ok")))
}

func TestQuoteRejectsRedemptionAboveBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Quote(context.Background(), domain.QuoteRequest{
		CustomerID:     "cust-budi",
		PointsToRedeem: 31,
		CartItems:      []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-haircut", Qty: 1}},
	})
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestQuoteRejectsUnknownCatalogEntries(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Quote(context.Background(), domain.QuoteRequest{
		CartItems: []domain.CartItem{{Kind: billing.KindProduct, SKU: "SKU-NOPE", Qty: 1}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = f.svc.Quote(context.Background(), domain.QuoteRequest{
		CartItems: []domain.CartItem{{Kind: "voucher", Qty: 1}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCalculateMatchesContract(t *testing.T) {
	f := newFixture(t)
	balance := int64(50)

	bill, err := f.svc.Calculate(billing.Request{
		LineItems: []billing.LineItem{
			{Kind: billing.KindService, ServiceID: "svc-1", UnitPrice: money("100"), Quantity: 1},
		},
		Membership:            &billing.Membership{DiscountPercentage: money("10"), PointsMultiplier: money("1")},
		PointsToRedeem:        10,
		CustomerPointsBalance: &balance,
		TaxConfig:             billing.TaxConfig{Enabled: true, Rate: money("10")},
	})
	require.NoError(t, err)
	assert.True(t, money("88").Equal(bill.TotalAmount), bill.TotalAmount.String())

	_, err = f.svc.Calculate(billing.Request{})
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BillsComputed.WithLabelValues("rejected")))
}

func TestCheckoutAppliesLoyaltyAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := domain.CheckoutRequest{
		IdempotencyKey: "idem-ayu-1",
		CustomerID:     "cust-ayu",
		PointsToRedeem: 20,
		PaymentMethod:  "cash",
		CashReceived:   money("400"),
		CartItems:      memberCart(),
	}

	resp, err := f.svc.Checkout(asCashier(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPaid, resp.Status)
	assert.False(t, resp.Duplicate)
	assert.True(t, money("368.41").Equal(resp.Bill.TotalAmount))
	assert.True(t, money("31.59").Equal(resp.Change), resp.Change.String())
	require.NotNil(t, resp.PointsBalance)
	assert.Equal(t, int64(107), *resp.PointsBalance)

	again, err := f.svc.Checkout(asCashier(), req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, resp.TransactionID, again.TransactionID)

	customer, err := f.svc.GetCustomer(context.Background(), "cust-ayu")
	require.NoError(t, err)
	assert.Equal(t, int64(107), customer.PointsBalance)
	assert.Equal(t, 1, customer.TotalVisits)

	stock, err := f.repo.GetStockMap(context.Background(), "main-store", []string{"SKU-OIL-01"})
	require.NoError(t, err)
	assert.Equal(t, 38, stock["SKU-OIL-01"])

	lookup, err := f.svc.LookupCheckout(context.Background(), "idem-ayu-1")
	require.NoError(t, err)
	require.True(t, lookup.Found)
	assert.Equal(t, resp.TransactionID, lookup.Checkout.TransactionID)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Checkouts.WithLabelValues("main-store", "cash")))
}

func TestCheckoutWalkInEarnsNoPoints(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		CashReceived: money("200"),
		CartItems:    []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-haircut", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cash", resp.PaymentMethod)
	assert.True(t, money("166.50").Equal(resp.Bill.TotalAmount), resp.Bill.TotalAmount.String())
	assert.True(t, money("33.50").Equal(resp.Change))
	assert.Equal(t, int64(0), resp.Bill.PointsEarned)
	assert.Nil(t, resp.PointsBalance)
}

func TestWalkInQuoteMatchesCheckout(t *testing.T) {
	f := newFixture(t)
	cart := []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-haircut", Qty: 3}}

	quote, err := f.svc.Quote(context.Background(), domain.QuoteRequest{CartItems: cart})
	require.NoError(t, err)

	resp, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		CashReceived: money("500"),
		CartItems:    cart,
	})
	require.NoError(t, err)

	assert.True(t, money("499.50").Equal(quote.Bill.TotalAmount), quote.Bill.TotalAmount.String())
	assert.True(t, quote.Bill.TotalAmount.Equal(resp.Bill.TotalAmount))
	assert.Equal(t, resp.Bill.PointsEarned, quote.Bill.PointsEarned)
	assert.Equal(t, int64(0), quote.Bill.PointsEarned)
}

func TestCheckoutRejectsRedemptionAbovePayable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		CustomerID:     "cust-ayu",
		PointsToRedeem: 120,
		CashReceived:   money("100"),
		CartItems:      []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-blowdry", Qty: 1}},
	})
	assert.ErrorIs(t, err, billing.ErrValidation)

	customer, err := f.svc.GetCustomer(context.Background(), "cust-ayu")
	require.NoError(t, err)
	assert.Equal(t, int64(120), customer.PointsBalance)
}

func TestCheckoutPaymentValidation(t *testing.T) {
	f := newFixture(t)
	cart := []domain.CartItem{{Kind: billing.KindProduct, SKU: "SKU-POLISH-01", Qty: 1}}

	_, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{PaymentMethod: "card", CartItems: cart})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = f.svc.Checkout(asCashier(), domain.CheckoutRequest{PaymentMethod: "cash", CashReceived: money("10"), CartItems: cart})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = f.svc.Checkout(asCashier(), domain.CheckoutRequest{PaymentMethod: "cheque", PaymentReference: "X", CartItems: cart})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	resp, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{PaymentMethod: "qris", PaymentReference: "QR-778", CartItems: cart})
	require.NoError(t, err)
	assert.True(t, resp.CashReceived.Equal(resp.Bill.TotalAmount))
	assert.True(t, resp.Change.IsZero())
}

func TestCheckoutRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		PaymentMethod:    "card",
		PaymentReference: "CARD-1",
		CartItems:        []domain.CartItem{{Kind: billing.KindProduct, SKU: "SKU-COND-01", Qty: 41}},
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestConcurrentRedemptionsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	cart := []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-blowdry", Qty: 1}}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
				CustomerID:       "cust-budi",
				PointsToRedeem:   20,
				PaymentMethod:    "card",
				PaymentReference: "CARD-RACE",
				CartItems:        cart,
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	customer, err := f.svc.GetCustomer(context.Background(), "cust-budi")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, customer.PointsBalance, int64(0))
}

func TestVoidTransactionRequiresAdminAndRestoresPoints(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		CustomerID:       "cust-budi",
		PointsToRedeem:   10,
		PaymentMethod:    "ewallet",
		PaymentReference: "EW-1",
		CartItems:        []domain.CartItem{{Kind: billing.KindProduct, SKU: "SKU-SHAMPOO-01", Qty: 1}},
	})
	require.NoError(t, err)

	_, err = f.svc.VoidTransaction(asCashier(), domain.VoidTransactionRequest{TransactionID: resp.TransactionID})
	assert.ErrorIs(t, err, ErrForbidden)

	voided, err := f.svc.VoidTransaction(asAdmin(), domain.VoidTransactionRequest{TransactionID: resp.TransactionID, Reason: "wrong item"})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusVoided, voided.Status)

	customer, err := f.svc.GetCustomer(context.Background(), "cust-budi")
	require.NoError(t, err)
	assert.Equal(t, int64(30), customer.PointsBalance)

	_, err = f.svc.VoidTransaction(asAdmin(), domain.VoidTransactionRequest{TransactionID: resp.TransactionID})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Voids.WithLabelValues("main-store")))
}

func TestAvailableSlotsExcludeBookings(t *testing.T) {
	f := newFixture(t)
	date := f.now.Format(time.DateOnly)

	before, err := f.svc.AvailableSlots(context.Background(), "", "rina", "svc-haircut", date)
	require.NoError(t, err)
	require.Len(t, before.Slots, 23)
	assert.Equal(t, f.now.Add(time.Hour).Format(time.RFC3339), before.Slots[0])

	_, err = f.svc.BookAppointment(asCashier(), domain.AppointmentCreateRequest{
		CustomerID:    "cust-ayu",
		StaffUsername: "rina",
		ServiceID:     "svc-haircut",
		StartsAt:      f.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	after, err := f.svc.AvailableSlots(context.Background(), "", "rina", "svc-haircut", date)
	require.NoError(t, err)
	assert.Len(t, after.Slots, 20)
	assert.NotContains(t, after.Slots, f.now.Add(2*time.Hour).Format(time.RFC3339))

	other, err := f.svc.AvailableSlots(context.Background(), "", "dewi", "svc-haircut", date)
	require.NoError(t, err)
	assert.Len(t, other.Slots, 23)
}

func TestBookAppointmentRules(t *testing.T) {
	f := newFixture(t)
	base := domain.AppointmentCreateRequest{
		CustomerID:    "cust-budi",
		StaffUsername: "rina",
		ServiceID:     "svc-manicure",
	}

	req := base
	req.StartsAt = f.now.Add(3 * time.Hour)
	_, err := f.svc.BookAppointment(asCashier(), req)
	require.NoError(t, err)

	req.StartsAt = f.now.Add(3*time.Hour + 30*time.Minute)
	_, err = f.svc.BookAppointment(asCashier(), req)
	assert.ErrorIs(t, err, store.ErrSlotTaken)

	req.StartsAt = f.now.Add(12*time.Hour + 30*time.Minute)
	_, err = f.svc.BookAppointment(asCashier(), req)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "ends after closing")

	req.StartsAt = f.now.Add(-22 * time.Hour)
	_, err = f.svc.BookAppointment(asCashier(), req)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "in the past")

	req = base
	req.StaffUsername = "cashier"
	req.StartsAt = f.now.Add(4 * time.Hour)
	_, err = f.svc.BookAppointment(asCashier(), req)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction, "not a stylist")

	_, err = f.svc.BookAppointment(asCashier(), domain.AppointmentCreateRequest{StaffUsername: "rina"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCheckoutCompletesLinkedAppointment(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.BookAppointment(asCashier(), domain.AppointmentCreateRequest{
		CustomerID:    "cust-ayu",
		StaffUsername: "dewi",
		ServiceID:     "svc-facial",
		StartsAt:      f.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	resp, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		AppointmentID:    appt.ID,
		PaymentMethod:    "card",
		PaymentReference: "CARD-9",
		CartItems:        []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-facial", StaffID: "dewi", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cust-ayu", resp.CustomerID)

	stored, err := f.repo.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentCompleted, stored.Status)

	_, err = f.svc.UpdateAppointmentStatus(asCashier(), appt.ID, domain.AppointmentStatusRequest{Status: domain.AppointmentCancelled})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = f.svc.UpdateAppointmentStatus(asCashier(), appt.ID, domain.AppointmentStatusRequest{Status: "postponed"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCatalogAdminOperations(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProduct(asCashier(), domain.ProductCreateRequest{SKU: "sku-mask-01", Name: "Hair Mask", Category: "haircare", Price: money("60")})
	assert.ErrorIs(t, err, ErrForbidden)

	product, err := f.svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{SKU: "sku-mask-01", Name: "Hair Mask", Category: "Haircare", Price: money("60"), InitialStock: 5})
	require.NoError(t, err)
	assert.Equal(t, "SKU-MASK-01", product.SKU)
	assert.Equal(t, 5, product.Stock)

	restocked, err := f.svc.RestockProduct(asAdmin(), "SKU-MASK-01", domain.RestockRequest{Qty: 7})
	require.NoError(t, err)
	assert.Equal(t, 12, restocked.Stock)

	_, err = f.svc.RestockProduct(asAdmin(), "SKU-MASK-01", domain.RestockRequest{Qty: 0})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	svc, err := f.svc.CreateService(asAdmin(), domain.ServiceCreateRequest{Name: "Scalp Treatment", Category: "Hair", Price: money("210"), DurationMinutes: 50})
	require.NoError(t, err)
	assert.True(t, svc.Active)

	_, err = f.svc.SetServiceActive(asAdmin(), svc.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Quote(context.Background(), domain.QuoteRequest{CartItems: []domain.CartItem{{Kind: billing.KindService, ServiceID: svc.ID, Qty: 1}}})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	st, err := f.svc.UpdateTaxConfig(asAdmin(), "", domain.TaxConfigUpdateRequest{TaxEnabled: false})
	require.NoError(t, err)
	assert.False(t, st.TaxEnabled)

	_, err = f.svc.UpdateTaxConfig(asAdmin(), "", domain.TaxConfigUpdateRequest{TaxEnabled: true, TaxRate: money("101")})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestCustomersAndMemberships(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Citra", Phone: "0812 3333 4444", Email: "not-an-email"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	c, err := f.svc.CreateCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Citra", Phone: "0812 3333 4444"})
	require.NoError(t, err)
	assert.Equal(t, "081233334444", c.Phone)

	_, err = f.svc.CreateCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Citra Dua", Phone: "081233334444"})
	assert.ErrorIs(t, err, store.ErrConflict)

	plan, err := f.svc.CreateMembership(asAdmin(), domain.MembershipCreateRequest{Name: "Platinum", DiscountPercentage: money("15"), PointsMultiplier: money("3"), DurationDays: 30})
	require.NoError(t, err)

	updated, err := f.svc.AssignMembership(asCashier(), c.ID, domain.AssignMembershipRequest{MembershipID: plan.ID})
	require.NoError(t, err)
	require.NotNil(t, updated.MembershipExpiresAt)
	assert.Equal(t, f.now.AddDate(0, 0, 30), *updated.MembershipExpiresAt)

	found, err := f.svc.SearchCustomers(context.Background(), "citra", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	quote, err := f.svc.Quote(context.Background(), domain.QuoteRequest{
		CustomerID: c.ID,
		CartItems:  []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-haircut", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Platinum", quote.Membership)
	assert.True(t, money("22.50").Equal(quote.Bill.DiscountAmount))
}

func TestDailyReportAndAuditTrail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		CustomerID:     "cust-ayu",
		PointsToRedeem: 20,
		CashReceived:   money("400"),
		CartItems:      memberCart(),
	})
	require.NoError(t, err)
	_, err = f.svc.Checkout(asCashier(), domain.CheckoutRequest{
		CashReceived: money("200"),
		CartItems:    []domain.CartItem{{Kind: billing.KindService, ServiceID: "svc-haircut", Qty: 1}},
	})
	require.NoError(t, err)

	report, err := f.svc.DailyReport(context.Background(), "", f.now.Format(time.DateOnly))
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Transactions)
	assert.Equal(t, int64(20), report.PointsRedeemed)
	assert.Equal(t, f.now.Format(time.DateOnly), report.Date)

	_, err = f.svc.DailyReport(context.Background(), "", "10/03/2026")
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	logs, err := f.svc.ListAuditLogs(context.Background(), "", "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "checkout", logs[0].Action)
	assert.Equal(t, "cashier", logs[0].ActorUsername)

	txs, err := f.svc.ListTransactions(context.Background(), "", f.now.Format(time.DateOnly), 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}
