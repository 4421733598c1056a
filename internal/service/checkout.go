package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.StoreID = s.storeID(req.StoreID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)

	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.CheckoutResponse{}, invalidf("unsupported payment method %q", req.PaymentMethod)
	}
	if req.CashReceived.IsNegative() {
		return domain.CheckoutResponse{}, invalidf("cashReceived must not be negative")
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return toCheckoutResponse(existing, true), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	st, err := s.resolveStore(ctx, req.StoreID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	cart, err := s.priceCart(ctx, req.CartItems)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	var appt *domain.Appointment
	if req.AppointmentID != "" {
		appt, err = s.repo.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return domain.CheckoutResponse{}, fmt.Errorf("appointment %s: %w", req.AppointmentID, err)
		}
		if appt.StoreID != st.ID || appt.Status != domain.AppointmentBooked {
			return domain.CheckoutResponse{}, invalidf("appointment %s cannot be checked out", appt.ID)
		}
		if req.CustomerID == "" {
			req.CustomerID = appt.CustomerID
		} else if req.CustomerID != appt.CustomerID {
			return domain.CheckoutResponse{}, invalidf("appointment %s belongs to another customer", appt.ID)
		}
	}

	in := billing.Input{
		Items:          cart.items,
		PointsToRedeem: req.PointsToRedeem,
		TaxConfig:      st.TaxConfig(),
	}
	if req.CustomerID != "" {
		customer, plan, err := s.customerTerms(ctx, req.CustomerID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		balance := customer.PointsBalance
		in.CustomerPointsBalance = &balance
		in.Membership = membershipTerms(plan)
	}

	bill, err := s.computeBill(in, req.CustomerID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	change := decimal.Zero
	switch req.PaymentMethod {
	case "cash":
		if req.CashReceived.LessThan(bill.TotalAmount) {
			return domain.CheckoutResponse{}, invalidf("cash received %s does not cover total %s", req.CashReceived, bill.TotalAmount)
		}
		change = req.CashReceived.Sub(bill.TotalAmount).Round(2)
	default:
		if req.PaymentReference == "" {
			return domain.CheckoutResponse{}, invalidf("paymentReference is required for %s", req.PaymentMethod)
		}
		req.CashReceived = bill.TotalAmount
	}

	cashier := ""
	if actor, ok := ActorFromContext(ctx); ok {
		cashier = actor.Username
	}

	tx := domain.Transaction{
		ID:               xid.New("tx"),
		StoreID:          st.ID,
		CustomerID:       req.CustomerID,
		AppointmentID:    req.AppointmentID,
		CashierUsername:  cashier,
		IdempotencyKey:   req.IdempotencyKey,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Subtotal:         bill.Subtotal,
		Discount:         bill.DiscountAmount,
		Redemption:       bill.RedemptionValue,
		TaxRate:          taxRate(in.TaxConfig),
		Tax:              bill.TaxAmount,
		Total:            bill.TotalAmount,
		CashReceived:     req.CashReceived.Round(2),
		Change:           change,
		PointsEarned:     bill.PointsEarned,
		PointsRedeemed:   bill.PointsRedeemed,
		Status:           domain.TxStatusPaid,
		CreatedAt:        s.now(),
		Items:            cart.lines,
	}

	created, err := s.repo.CreateCheckout(ctx, tx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if created.ID != tx.ID {
		// A concurrent request with the same key won the insert.
		return toCheckoutResponse(created, true), nil
	}

	if appt != nil {
		if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, domain.AppointmentCompleted); err != nil {
			s.logger.Warn("appointment completion failed",
				zap.String("appointment_id", appt.ID),
				zap.String("transaction_id", created.ID),
				zap.Error(err),
			)
		}
	}

	s.metrics.ObserveCheckout(created.StoreID, created.PaymentMethod, created.Total, created.PointsEarned, created.PointsRedeemed)
	s.logAudit(
		ctx,
		created.StoreID,
		"checkout",
		"transaction",
		created.ID,
		fmt.Sprintf(
			"total=%s,payment=%s,discount=%s,redeemed=%d,earned=%d",
			created.Total,
			created.PaymentMethod,
			created.Discount,
			created.PointsRedeemed,
			created.PointsEarned,
		),
	)
	s.logger.Info("checkout completed",
		zap.String("transaction_id", created.ID),
		zap.String("store_id", created.StoreID),
		zap.String("total", created.Total.StringFixed(2)),
	)

	return toCheckoutResponse(created, false), nil
}

func (s *Service) LookupCheckout(ctx context.Context, idempotencyKey string) (domain.CheckoutLookupResponse, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return domain.CheckoutLookupResponse{}, invalidf("idempotency key is required")
	}

	tx, err := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutLookupResponse{Found: false}, nil
		}
		return domain.CheckoutLookupResponse{}, err
	}
	checkout := toCheckoutResponse(tx, false)
	return domain.CheckoutLookupResponse{Found: true, Checkout: &checkout}, nil
}

// ListTransactions returns the store's transactions for one local day, newest first.
func (s *Service) ListTransactions(ctx context.Context, storeID string, date string, limit int) ([]domain.CheckoutResponse, error) {
	st, err := s.resolveStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	from, to, err := s.dayRange(date, st.Location())
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx, st.ID, from, to, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CheckoutResponse, 0, len(txs))
	for i := range txs {
		out = append(out, toCheckoutResponse(&txs[i], false))
	}
	return out, nil
}

func (s *Service) VoidTransaction(ctx context.Context, req domain.VoidTransactionRequest) (domain.VoidTransactionResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.VoidTransactionResponse{}, err
	}
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return domain.VoidTransactionResponse{}, invalidf("transaction id is required")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		req.Reason = "unspecified"
	}

	voidedAt := s.now()
	tx, err := s.repo.VoidTransaction(ctx, req.TransactionID, req.Reason, voidedAt)
	if err != nil {
		return domain.VoidTransactionResponse{}, err
	}

	s.metrics.ObserveVoid(tx.StoreID)
	s.logAudit(ctx, tx.StoreID, "void_transaction", "transaction", tx.ID, req.Reason)

	return domain.VoidTransactionResponse{
		TransactionID: tx.ID,
		Status:        tx.Status,
		VoidedAt:      voidedAt.Format(time.RFC3339),
	}, nil
}

func toCheckoutResponse(tx *domain.Transaction, duplicate bool) domain.CheckoutResponse {
	return domain.CheckoutResponse{
		TransactionID: tx.ID,
		Status:        tx.Status,
		StoreID:       tx.StoreID,
		CustomerID:    tx.CustomerID,
		PaymentMethod: tx.PaymentMethod,
		LineItems:     lineItemsFromTransaction(tx.Items),
		Bill: billing.Bill{
			Subtotal:        tx.Subtotal,
			DiscountAmount:  tx.Discount,
			RedemptionValue: tx.Redemption,
			TaxAmount:       tx.Tax,
			TotalAmount:     tx.Total,
			PointsEarned:    tx.PointsEarned,
			PointsRedeemed:  tx.PointsRedeemed,
		},
		CashReceived:  tx.CashReceived,
		Change:        tx.Change,
		PointsBalance: tx.PointsBalanceAfter,
		Duplicate:     duplicate,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
}

func taxRate(cfg billing.TaxConfig) decimal.Decimal {
	if !cfg.Enabled {
		return decimal.Zero
	}
	return cfg.Rate
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "ewallet", "transfer":
		return true
	default:
		return false
	}
}
