package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigrationStatus reports the current schema version.
func (s *Store) MigrationStatus(ctx context.Context) (int64, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, s.db)
}

var retryDelays = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// withRetry reruns fn when a serializable transaction loses a conflict.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tax_enabled, tax_rate, open_hour, close_hour, timezone
		FROM stores
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 4)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.TaxEnabled, &st.TaxRate, &st.OpenHour, &st.CloseHour, &st.Timezone); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

func (s *Store) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	var st domain.Store
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tax_enabled, tax_rate, open_hour, close_hour, timezone
		FROM stores
		WHERE id = $1
	`, storeID).Scan(&st.ID, &st.Name, &st.TaxEnabled, &st.TaxRate, &st.OpenHour, &st.CloseHour, &st.Timezone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) UpsertStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if st.Timezone == "" {
		st.Timezone = "UTC"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, tax_enabled, tax_rate, open_hour, close_hour, timezone, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			tax_enabled = EXCLUDED.tax_enabled,
			tax_rate = EXCLUDED.tax_rate,
			open_hour = EXCLUDED.open_hour,
			close_hour = EXCLUDED.close_hour,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, st.ID, st.Name, st.TaxEnabled, st.TaxRate, st.OpenHour, st.CloseHour, st.Timezone)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListServices(ctx context.Context, includeInactive bool) ([]domain.ServiceOffering, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, duration_minutes, active
		FROM services
		WHERE active OR $1
		ORDER BY category, name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.ServiceOffering, 0, 32)
	for rows.Next() {
		var svc domain.ServiceOffering
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Category, &svc.Price, &svc.DurationMinutes, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *Store) CreateService(ctx context.Context, svc domain.ServiceOffering) (*domain.ServiceOffering, error) {
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, category, price, duration_minutes, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, svc.ID, svc.Name, svc.Category, svc.Price, svc.DurationMinutes, svc.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &svc, nil
}

func (s *Store) GetServicesByIDs(ctx context.Context, ids []string) (map[string]domain.ServiceOffering, error) {
	out := make(map[string]domain.ServiceOffering, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, duration_minutes, active
		FROM services
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var svc domain.ServiceOffering
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Category, &svc.Price, &svc.DurationMinutes, &svc.Active); err != nil {
			return nil, err
		}
		out[svc.ID] = svc
	}
	return out, rows.Err()
}

func (s *Store) SetServiceActive(ctx context.Context, id string, active bool) (*domain.ServiceOffering, error) {
	var svc domain.ServiceOffering
	err := s.db.QueryRowContext(ctx, `
		UPDATE services SET active = $2
		WHERE id = $1
		RETURNING id, name, category, price, duration_minutes, active
	`, id, active).Scan(&svc.ID, &svc.Name, &svc.Category, &svc.Price, &svc.DurationMinutes, &svc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.sku, p.name, p.category, p.price, p.active, COALESCE(i.qty, 0)
		FROM products p
		LEFT JOIN inventory_stocks i ON i.sku = p.sku AND i.store_id = $1
		WHERE p.active = true
		ORDER BY p.category, p.name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.Price, &p.Active, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	product.Active = true
	product.Stock = 0
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, product.SKU, product.Name, product.Category, product.Price, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price, active
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		out[p.SKU] = p
	}
	return out, rows.Err()
}

func (s *Store) GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error) {
	out := make(map[string]int, len(skus))
	for _, sku := range skus {
		out[sku] = 0
	}
	if len(skus) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty
		FROM inventory_stocks
		WHERE store_id = $1 AND sku = ANY($2)
	`, storeID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, err
		}
		out[sku] = qty
	}
	return out, rows.Err()
}

func (s *Store) IncreaseStock(ctx context.Context, storeID string, adjustments []domain.StockAdjustment) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, adj := range adjustments {
		if adj.Qty < 1 {
			return store.ErrInvalidTransaction
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (store_id, sku)
			DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
		`, storeID, adj.SKU, adj.Qty)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return store.ErrNotFound
			}
			return err
		}
	}
	return pgTx.Commit()
}

func (s *Store) CreateMembership(ctx context.Context, plan domain.MembershipPlan) (*domain.MembershipPlan, error) {
	if plan.ID == "" {
		plan.ID = xid.New("mem")
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO membership_plans (id, name, discount_percentage, points_multiplier, duration_days, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, plan.ID, plan.Name, plan.DiscountPercentage, plan.PointsMultiplier, plan.DurationDays, plan.Active, plan.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &plan, nil
}

func (s *Store) ListMemberships(ctx context.Context) ([]domain.MembershipPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, discount_percentage, points_multiplier, duration_days, active, created_at
		FROM membership_plans
		ORDER BY discount_percentage, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]domain.MembershipPlan, 0, 8)
	for rows.Next() {
		var m domain.MembershipPlan
		if err := rows.Scan(&m.ID, &m.Name, &m.DiscountPercentage, &m.PointsMultiplier, &m.DurationDays, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		plans = append(plans, m)
	}
	return plans, rows.Err()
}

func (s *Store) GetMembership(ctx context.Context, id string) (*domain.MembershipPlan, error) {
	var m domain.MembershipPlan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, discount_percentage, points_multiplier, duration_days, active, created_at
		FROM membership_plans
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.DiscountPercentage, &m.PointsMultiplier, &m.DurationDays, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

const customerColumns = `id, name, phone, email, points_balance, membership_id, membership_expires_at,
	total_visits, total_spent, last_visit_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var membershipID sql.NullString
	var expiresAt, lastVisit sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.PointsBalance, &membershipID, &expiresAt,
		&c.TotalVisits, &c.TotalSpent, &lastVisit, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.MembershipID = membershipID.String
	if expiresAt.Valid {
		at := expiresAt.Time.UTC()
		c.MembershipExpiresAt = &at
	}
	if lastVisit.Valid {
		at := lastVisit.Time.UTC()
		c.LastVisitAt = &at
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, points_balance, membership_id, membership_expires_at,
			total_visits, total_spent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,0,$8)
	`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.PointsBalance,
		nullIfEmpty(customer.MembershipID), nullTime(customer.MembershipExpiresAt), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return s.GetCustomer(ctx, customer.ID)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 50
	}
	query = strings.TrimSpace(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (s *Store) AssignMembership(ctx context.Context, customerID string, membershipID string, expiresAt *time.Time) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET membership_id = $2, membership_expires_at = $3
		WHERE id = $1
	`, customerID, membershipID, nullTime(expiresAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomer(ctx, customerID)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
