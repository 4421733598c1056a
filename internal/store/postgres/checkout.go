package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "idempotency_key", key)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", id)
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var tx domain.Transaction
	var customerID, appointmentID, paymentReference, voidReason sql.NullString
	var balanceAfter sql.NullInt64
	var voidedAt sql.NullTime

	query := fmt.Sprintf(`
		SELECT id, store_id, customer_id, appointment_id, cashier_username, idempotency_key,
			payment_method, payment_reference, subtotal, discount, redemption, tax_rate, tax,
			total, cash_received, change_amount, points_earned, points_redeemed,
			points_balance_after, status, void_reason, voided_at, created_at
		FROM transactions
		WHERE %s = $1
	`, column)

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&tx.ID,
		&tx.StoreID,
		&customerID,
		&appointmentID,
		&tx.CashierUsername,
		&tx.IdempotencyKey,
		&tx.PaymentMethod,
		&paymentReference,
		&tx.Subtotal,
		&tx.Discount,
		&tx.Redemption,
		&tx.TaxRate,
		&tx.Tax,
		&tx.Total,
		&tx.CashReceived,
		&tx.Change,
		&tx.PointsEarned,
		&tx.PointsRedeemed,
		&balanceAfter,
		&tx.Status,
		&voidReason,
		&voidedAt,
		&tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.CustomerID = customerID.String
	tx.AppointmentID = appointmentID.String
	tx.PaymentReference = paymentReference.String
	tx.VoidReason = voidReason.String
	if balanceAfter.Valid {
		b := balanceAfter.Int64
		tx.PointsBalanceAfter = &b
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		tx.VoidedAt = &at
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ref_id, staff_id, name, qty, unit_price
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id ASC
	`, tx.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionLine, 0, 8)
	for rows.Next() {
		var item domain.TransactionLine
		if err := rows.Scan(&item.Kind, &item.RefID, &item.StaffID, &item.Name, &item.Qty, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	tx.Items = items

	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM transactions
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	out := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		tx, err := s.FindTransactionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (s *Store) CreateCheckout(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.CustomerID == "" && (tx.PointsRedeemed > 0 || tx.PointsEarned > 0) {
		return nil, store.ErrInvalidTransaction
	}
	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPaid
	}

	var created *domain.Transaction
	err := withRetry(ctx, func() error {
		var err error
		created, err = s.createCheckout(ctx, tx)
		return err
	})
	if err != nil && isUniqueViolation(err) {
		return s.FindTransactionByIdempotency(ctx, tx.IdempotencyKey)
	}
	return created, err
}

func (s *Store) createCheckout(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var existingID string
	err = pgTx.QueryRowContext(ctx, `SELECT id FROM transactions WHERE idempotency_key = $1`, tx.IdempotencyKey).Scan(&existingID)
	if err == nil {
		_ = pgTx.Rollback()
		return s.FindTransactionByID(ctx, existingID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	skus, needed := productQuantities(tx.Items)
	if len(skus) > 0 {
		stock := make(map[string]int, len(skus))
		rows, err := pgTx.QueryContext(ctx, `
			SELECT s.sku, s.qty
			FROM inventory_stocks s
			JOIN products p ON p.sku = s.sku AND p.active = true
			WHERE s.store_id = $1 AND s.sku = ANY($2)
			ORDER BY s.sku
			FOR UPDATE OF s
		`, tx.StoreID, skus)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var sku string
			var qty int
			if err := rows.Scan(&sku, &qty); err != nil {
				_ = rows.Close()
				return nil, err
			}
			stock[sku] = qty
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()

		for _, sku := range skus {
			have, ok := stock[sku]
			if !ok {
				return nil, store.ErrInsufficientStock
			}
			if have < needed[sku] {
				return nil, store.ErrInsufficientStock
			}
		}
		for _, sku := range skus {
			_, err := pgTx.ExecContext(ctx, `
				UPDATE inventory_stocks
				SET qty = qty - $1, updated_at = now()
				WHERE store_id = $2 AND sku = $3
			`, needed[sku], tx.StoreID, sku)
			if err != nil {
				return nil, err
			}
		}
	}

	if tx.CustomerID != "" {
		// Lock the customer row so concurrent redemptions serialize on it.
		var balance int64
		err := pgTx.QueryRowContext(ctx, `SELECT points_balance FROM customers WHERE id = $1 FOR UPDATE`, tx.CustomerID).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if balance < tx.PointsRedeemed {
			return nil, store.ErrInsufficientPoints
		}

		var after int64
		err = pgTx.QueryRowContext(ctx, `
			UPDATE customers
			SET points_balance = points_balance - $2 + $3,
				total_visits = total_visits + 1,
				total_spent = total_spent + $4,
				last_visit_at = $5
			WHERE id = $1
			RETURNING points_balance
		`, tx.CustomerID, tx.PointsRedeemed, tx.PointsEarned, tx.Total, tx.CreatedAt).Scan(&after)
		if err != nil {
			return nil, err
		}
		tx.PointsBalanceAfter = &after
	}

	var balanceAfter any
	if tx.PointsBalanceAfter != nil {
		balanceAfter = *tx.PointsBalanceAfter
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, customer_id, appointment_id, cashier_username, idempotency_key,
			payment_method, payment_reference, subtotal, discount, redemption, tax_rate, tax,
			total, cash_received, change_amount, points_earned, points_redeemed,
			points_balance_after, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, tx.ID, tx.StoreID, nullIfEmpty(tx.CustomerID), nullIfEmpty(tx.AppointmentID), tx.CashierUsername,
		tx.IdempotencyKey, tx.PaymentMethod, nullIfEmpty(tx.PaymentReference), tx.Subtotal, tx.Discount,
		tx.Redemption, tx.TaxRate, tx.Tax, tx.Total, tx.CashReceived, tx.Change, tx.PointsEarned,
		tx.PointsRedeemed, balanceAfter, tx.Status, tx.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, kind, ref_id, staff_id, name, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, tx.ID, string(item.Kind), item.RefID, item.StaffID, item.Name, item.Qty, item.UnitPrice)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) VoidTransaction(ctx context.Context, id string, reason string, at time.Time) (*domain.Transaction, error) {
	err := withRetry(ctx, func() error {
		return s.voidTransaction(ctx, id, reason, at.UTC())
	})
	if err != nil {
		return nil, err
	}
	return s.FindTransactionByID(ctx, id)
}

func (s *Store) voidTransaction(ctx context.Context, id string, reason string, at time.Time) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var storeID, status string
	var customerID sql.NullString
	var total decimal.Decimal
	var earned, redeemed int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id, customer_id, status, total, points_earned, points_redeemed
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&storeID, &customerID, &status, &total, &earned, &redeemed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status != domain.TxStatusPaid {
		return store.ErrInvalidTransaction
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT kind, ref_id, qty
		FROM transaction_items
		WHERE transaction_id = $1
	`, id)
	if err != nil {
		return err
	}
	items := make([]domain.TransactionLine, 0, 8)
	for rows.Next() {
		var item domain.TransactionLine
		if err := rows.Scan(&item.Kind, &item.RefID, &item.Qty); err != nil {
			_ = rows.Close()
			return err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	skus, qty := productQuantities(items)
	for _, sku := range skus {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (store_id, sku)
			DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
		`, storeID, sku, qty[sku])
		if err != nil {
			return err
		}
	}

	var balanceAfter any
	if customerID.Valid {
		var after int64
		err := pgTx.QueryRowContext(ctx, `
			UPDATE customers
			SET points_balance = GREATEST(0, points_balance + $2 - $3),
				total_spent = GREATEST(0, total_spent - $4),
				total_visits = GREATEST(0, total_visits - 1)
			WHERE id = $1
			RETURNING points_balance
		`, customerID.String, redeemed, earned, total).Scan(&after)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil {
			balanceAfter = after
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, void_reason = $3, voided_at = $4,
			points_balance_after = COALESCE($5, points_balance_after)
		WHERE id = $1 AND status = $6
	`, id, domain.TxStatusVoided, reason, at, balanceAfter, domain.TxStatusPaid)
	if err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if !appt.EndsAt.After(appt.StartsAt) {
		return nil, store.ErrInvalidTransaction
	}
	if appt.ID == "" {
		appt.ID = xid.New("appt")
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentBooked
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}

	err := withRetry(ctx, func() error {
		pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		defer func() { _ = pgTx.Rollback() }()

		var clash string
		err = pgTx.QueryRowContext(ctx, `
			SELECT id
			FROM appointments
			WHERE store_id = $1
				AND staff_username = $2
				AND status IN ($3, $4)
				AND starts_at < $6
				AND ends_at > $5
			LIMIT 1
			FOR UPDATE
		`, appt.StoreID, appt.StaffUsername, domain.AppointmentBooked, domain.AppointmentCompleted,
			appt.StartsAt, appt.EndsAt).Scan(&clash)
		if err == nil {
			return store.ErrSlotTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO appointments (id, store_id, customer_id, staff_username, service_id,
				starts_at, ends_at, status, notes, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, appt.ID, appt.StoreID, appt.CustomerID, appt.StaffUsername, appt.ServiceID,
			appt.StartsAt, appt.EndsAt, appt.Status, appt.Notes, appt.CreatedAt)
		if err != nil {
			return err
		}
		return pgTx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

const appointmentColumns = `id, store_id, customer_id, staff_username, service_id, starts_at, ends_at, status, notes, created_at`

func scanAppointment(row rowScanner) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := row.Scan(&a.ID, &a.StoreID, &a.CustomerID, &a.StaffUsername, &a.ServiceID, &a.StartsAt, &a.EndsAt, &a.Status, &a.Notes, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.StartsAt = a.StartsAt.UTC()
	a.EndsAt = a.EndsAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, storeID string, staffUsername string, from time.Time, to time.Time) ([]domain.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE store_id = $1
			AND ($2 = '' OR staff_username = $2)
			AND starts_at < $4
			AND ends_at > $3
		ORDER BY starts_at
	`, storeID, staffUsername, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Appointment, 0, 16)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRowContext(ctx, `
		UPDATE appointments SET status = $2
		WHERE id = $1
		RETURNING `+appointmentColumns, id, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		StoreID:   storeID,
		ByPayment: make([]domain.DailyReportPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal),0),
			COALESCE(SUM(discount),0),
			COALESCE(SUM(redemption),0),
			COALESCE(SUM(tax),0),
			COALESCE(SUM(total),0),
			COALESCE(SUM(points_earned),0)::bigint,
			COALESCE(SUM(points_redeemed),0)::bigint
		FROM transactions
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
			AND status = $4
	`, storeID, from, to, domain.TxStatusPaid).Scan(
		&report.Transactions,
		&report.GrossSales,
		&report.Discount,
		&report.Redemption,
		&report.Tax,
		&report.NetSales,
		&report.PointsEarned,
		&report.PointsRedeemed,
	)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(ti.unit_price * ti.qty) FILTER (WHERE ti.kind = $5),0),
			COALESCE(SUM(ti.unit_price * ti.qty) FILTER (WHERE ti.kind = $6),0)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.store_id = $1
			AND t.created_at >= $2
			AND t.created_at < $3
			AND t.status = $4
	`, storeID, from, to, domain.TxStatusPaid, string(billing.KindService), string(billing.KindProduct)).Scan(
		&report.ServiceSales,
		&report.ProductSales,
	)
	if err != nil {
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM transactions
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
			AND status = $4
		GROUP BY payment_method
		ORDER BY payment_method
	`, storeID, from, to, domain.TxStatusPaid)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.DailyReportPayment
		if err := rows.Scan(&row.PaymentMethod, &row.Transactions, &row.Total); err != nil {
			return report, err
		}
		report.ByPayment = append(report.ByPayment, row)
	}
	return report, rows.Err()
}

// productQuantities sums product quantities per SKU, in SKU order so row
// locks are always taken in the same sequence.
func productQuantities(items []domain.TransactionLine) ([]string, map[string]int) {
	qty := make(map[string]int, len(items))
	for _, item := range items {
		if item.Kind != billing.KindProduct || item.RefID == "" {
			continue
		}
		qty[item.RefID] += item.Qty
	}
	skus := make([]string, 0, len(qty))
	for sku := range qty {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus, qty
}
