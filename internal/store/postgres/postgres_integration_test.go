package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("SALONPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALONPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func seedCustomer(t *testing.T, s *Store, balance int64) string {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	c, err := s.CreateCustomer(ctx, domain.Customer{
		ID:            fmt.Sprintf("cust-it-%d", stamp),
		Name:          "Integration Customer",
		Phone:         fmt.Sprintf("08%d", stamp%1_000_000_000),
		PointsBalance: balance,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id IN (SELECT id FROM transactions WHERE customer_id = $1)`, c.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE customer_id = $1`, c.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, c.ID)
	})
	return c.ID
}

func redemption(customerID string, key string, points int64) domain.Transaction {
	return domain.Transaction{
		StoreID:        "main-store",
		CustomerID:     customerID,
		IdempotencyKey: key,
		PaymentMethod:  "cash",
		Subtotal:       decimal.NewFromInt(150),
		Discount:       decimal.Zero,
		Redemption:     decimal.NewFromInt(points),
		TaxRate:        decimal.Zero,
		Tax:            decimal.Zero,
		Total:          decimal.NewFromInt(150 - points),
		CashReceived:   decimal.NewFromInt(150 - points),
		Change:         decimal.Zero,
		PointsRedeemed: points,
		Items: []domain.TransactionLine{
			{Kind: billing.KindService, RefID: "svc-haircut", Name: "Haircut & Styling", Qty: 1, UnitPrice: decimal.NewFromInt(150)},
		},
	}
}

func TestCheckoutRedemptionSerializesOnCustomer(t *testing.T) {
	s := newIntegrationStore(t)
	customerID := seedCustomer(t, s, 30)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("idem-it-%s-%d", customerID, i)
			_, err := s.CreateCheckout(ctx, redemption(customerID, key, 20))
			if err != nil && !errors.Is(err, store.ErrInsufficientPoints) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	c, err := s.GetCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.PointsBalance)
}

func TestVoidTransactionRestoresPoints(t *testing.T) {
	s := newIntegrationStore(t)
	customerID := seedCustomer(t, s, 50)
	ctx := context.Background()

	created, err := s.CreateCheckout(ctx, redemption(customerID, "idem-void-"+customerID, 25))
	require.NoError(t, err)
	require.NotNil(t, created.PointsBalanceAfter)
	assert.Equal(t, int64(25), *created.PointsBalanceAfter)

	dup, err := s.CreateCheckout(ctx, redemption(customerID, "idem-void-"+customerID, 25))
	require.NoError(t, err)
	assert.Equal(t, created.ID, dup.ID)

	voided, err := s.VoidTransaction(ctx, created.ID, "integration", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusVoided, voided.Status)

	c, err := s.GetCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.PointsBalance)
	assert.Equal(t, 0, c.TotalVisits)
	assert.True(t, c.TotalSpent.IsZero(), c.TotalSpent.String())

	_, err = s.VoidTransaction(ctx, created.ID, "again", time.Now())
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}
