package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

// Store is a mutex-guarded Repository. A single lock serializes checkouts, so
// two redemptions against the same customer can never both pass the balance check.
type Store struct {
	mu                 sync.RWMutex
	stores             map[string]domain.Store
	services           map[string]domain.ServiceOffering
	products           map[string]domain.Product
	inventory          map[string]map[string]int
	memberships        map[string]domain.MembershipPlan
	customers          map[string]domain.Customer
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]*domain.Transaction
	appointments       map[string]domain.Appointment
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		stores:             make(map[string]domain.Store),
		services:           make(map[string]domain.ServiceOffering),
		products:           make(map[string]domain.Product),
		inventory:          make(map[string]map[string]int),
		memberships:        make(map[string]domain.MembershipPlan),
		customers:          make(map[string]domain.Customer),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]*domain.Transaction),
		appointments:       make(map[string]domain.Appointment),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo staff accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_CASHIER_PASSWORD and SEED_STYLIST_PASSWORD and fall
// back to dev defaults with a warning.
func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	stylistPwd := envOr("SEED_STYLIST_PASSWORD", "stylist123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
		{"rina", stylistPwd, domain.RoleStylist},
		{"dewi", stylistPwd, domain.RoleStylist},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DefaultStore is the store seeded when no stores file is configured.
func DefaultStore() domain.Store {
	return domain.Store{
		ID:         "main-store",
		Name:       "Salon Utama",
		TaxEnabled: true,
		TaxRate:    decimal.NewFromInt(11),
		OpenHour:   9,
		CloseHour:  21,
		Timezone:   "UTC",
	}
}

// NewSeeded returns a store with demo catalog, memberships, customers and
// staff. When stores is empty DefaultStore is used.
func NewSeeded(logger *zap.Logger, stores ...domain.Store) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(stores) == 0 {
		stores = []domain.Store{DefaultStore()}
	}

	s := New()
	for _, st := range stores {
		s.stores[st.ID] = st
		s.inventory[st.ID] = make(map[string]int)
	}

	money := decimal.RequireFromString
	for _, svc := range []domain.ServiceOffering{
		{ID: "svc-haircut", Name: "Haircut & Styling", Category: "hair", Price: money("150"), DurationMinutes: 45, Active: true},
		{ID: "svc-blowdry", Name: "Blow Dry", Category: "hair", Price: money("80"), DurationMinutes: 30, Active: true},
		{ID: "svc-color", Name: "Full Hair Colour", Category: "hair", Price: money("450"), DurationMinutes: 120, Active: true},
		{ID: "svc-manicure", Name: "Classic Manicure", Category: "nails", Price: money("120"), DurationMinutes: 60, Active: true},
		{ID: "svc-facial", Name: "Hydrating Facial", Category: "skin", Price: money("300"), DurationMinutes: 60, Active: true},
	} {
		s.services[svc.ID] = svc
	}

	for _, p := range []domain.Product{
		{SKU: "SKU-SHAMPOO-01", Name: "Argan Shampoo 250ml", Category: "haircare", Price: money("85"), Active: true},
		{SKU: "SKU-COND-01", Name: "Repair Conditioner 250ml", Category: "haircare", Price: money("95"), Active: true},
		{SKU: "SKU-OIL-01", Name: "Hair Serum Oil", Category: "haircare", Price: money("120.50"), Active: true},
		{SKU: "SKU-POLISH-01", Name: "Nail Polish Rose", Category: "nails", Price: money("45"), Active: true},
	} {
		s.products[p.SKU] = p
		for storeID := range s.inventory {
			s.inventory[storeID][p.SKU] = 40
		}
	}

	now := time.Now().UTC()
	for _, m := range []domain.MembershipPlan{
		{ID: "mem-silver", Name: "Silver", DiscountPercentage: money("5"), PointsMultiplier: money("1.5"), DurationDays: 365, Active: true, CreatedAt: now},
		{ID: "mem-gold", Name: "Gold", DiscountPercentage: money("10"), PointsMultiplier: money("2"), DurationDays: 365, Active: true, CreatedAt: now},
	} {
		s.memberships[m.ID] = m
	}

	goldUntil := now.AddDate(1, 0, 0)
	for _, c := range []domain.Customer{
		{ID: "cust-ayu", Name: "Ayu Lestari", Phone: "081200000001", Email: "ayu@example.com", PointsBalance: 120, MembershipID: "mem-gold", MembershipExpiresAt: &goldUntil, TotalSpent: decimal.Zero, CreatedAt: now},
		{ID: "cust-budi", Name: "Budi Santoso", Phone: "081200000002", PointsBalance: 30, TotalSpent: decimal.Zero, CreatedAt: now},
	} {
		s.customers[c.ID] = c
	}

	s.usersByUsername = seedUsers(logger)
	return s
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b domain.Store) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetStore(_ context.Context, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) UpsertStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stores[st.ID] = st
	if _, ok := s.inventory[st.ID]; !ok {
		s.inventory[st.ID] = make(map[string]int)
	}
	return &st, nil
}

func (s *Store) ListServices(_ context.Context, includeInactive bool) ([]domain.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ServiceOffering, 0, len(s.services))
	for _, svc := range s.services {
		if !svc.Active && !includeInactive {
			continue
		}
		out = append(out, svc)
	}
	slices.SortFunc(out, func(a, b domain.ServiceOffering) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.ServiceOffering) (*domain.ServiceOffering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if _, exists := s.services[svc.ID]; exists {
		return nil, store.ErrConflict
	}
	s.services[svc.ID] = svc
	return &svc, nil
}

func (s *Store) GetServicesByIDs(_ context.Context, ids []string) (map[string]domain.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.ServiceOffering, len(ids))
	for _, id := range ids {
		if svc, ok := s.services[id]; ok {
			out[id] = svc
		}
	}
	return out, nil
}

func (s *Store) SetServiceActive(_ context.Context, id string, active bool) (*domain.ServiceOffering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	svc.Active = active
	s.services[id] = svc
	return &svc, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		p.Stock = s.inventory[storeID][p.SKU]
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrConflict
	}
	product.Active = true
	product.Stock = 0
	s.products[product.SKU] = product
	return &product, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok && p.Active {
			out[sku] = p
		}
	}
	return out, nil
}

func (s *Store) GetStockMap(_ context.Context, storeID string, skus []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(skus))
	for _, sku := range skus {
		out[sku] = s.inventory[storeID][sku]
	}
	return out, nil
}

func (s *Store) IncreaseStock(_ context.Context, storeID string, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[storeID]; !ok {
		return store.ErrNotFound
	}
	for _, adj := range adjustments {
		if adj.Qty < 1 {
			return store.ErrInvalidTransaction
		}
		if _, ok := s.products[adj.SKU]; !ok {
			return store.ErrNotFound
		}
	}
	for _, adj := range adjustments {
		s.inventory[storeID][adj.SKU] += adj.Qty
	}
	return nil
}

func (s *Store) CreateMembership(_ context.Context, plan domain.MembershipPlan) (*domain.MembershipPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.memberships {
		if strings.EqualFold(existing.Name, plan.Name) {
			return nil, store.ErrConflict
		}
	}
	if plan.ID == "" {
		plan.ID = xid.New("mem")
	}
	s.memberships[plan.ID] = plan
	return &plan, nil
}

func (s *Store) ListMemberships(_ context.Context) ([]domain.MembershipPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MembershipPlan, 0, len(s.memberships))
	for _, m := range s.memberships {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b domain.MembershipPlan) int {
		return a.DiscountPercentage.Cmp(b.DiscountPercentage)
	})
	return out, nil
}

func (s *Store) GetMembership(_ context.Context, id string) (*domain.MembershipPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers {
		if existing.Phone == customer.Phone {
			return nil, store.ErrConflict
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Customer, 0, 16)
	for _, c := range s.customers {
		if query != "" && !strings.Contains(strings.ToLower(c.Name), query) && !strings.Contains(c.Phone, query) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int { return strings.Compare(a.Name, b.Name) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AssignMembership(_ context.Context, customerID string, membershipID string, expiresAt *time.Time) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.memberships[membershipID]; !ok {
		return nil, store.ErrNotFound
	}
	c.MembershipID = membershipID
	c.MembershipExpiresAt = expiresAt
	s.customers[customerID] = c
	return &c, nil
}

func (s *Store) CreateCheckout(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transactionsByIdem[tx.IdempotencyKey]; ok {
		return cloneTransaction(existing), nil
	}

	stock, ok := s.inventory[tx.StoreID]
	if !ok {
		return nil, store.ErrNotFound
	}
	needed := make(map[string]int)
	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if item.Kind != billing.KindProduct {
			continue
		}
		if p, ok := s.products[item.RefID]; !ok || !p.Active {
			return nil, store.ErrInvalidTransaction
		}
		needed[item.RefID] += item.Qty
	}
	for sku, qty := range needed {
		if stock[sku] < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	var customer domain.Customer
	if tx.CustomerID != "" {
		c, ok := s.customers[tx.CustomerID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if c.PointsBalance < tx.PointsRedeemed {
			return nil, store.ErrInsufficientPoints
		}
		customer = c
	} else if tx.PointsRedeemed > 0 || tx.PointsEarned > 0 {
		return nil, store.ErrInvalidTransaction
	}

	for sku, qty := range needed {
		stock[sku] -= qty
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

	if tx.CustomerID != "" {
		customer.PointsBalance = customer.PointsBalance - tx.PointsRedeemed + tx.PointsEarned
		customer.TotalVisits++
		customer.TotalSpent = customer.TotalSpent.Add(tx.Total)
		visitedAt := tx.CreatedAt
		customer.LastVisitAt = &visitedAt
		s.customers[customer.ID] = customer
		balance := customer.PointsBalance
		tx.PointsBalanceAfter = &balance
	}

	stored := cloneTransaction(&tx)
	s.transactionsByID[stored.ID] = stored
	s.transactionsByIdem[stored.IdempotencyKey] = stored
	return cloneTransaction(stored), nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, 16)
	for _, tx := range s.transactionsByID {
		if tx.StoreID != storeID || tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	slices.SortFunc(out, func(a, b domain.Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) VoidTransaction(_ context.Context, id string, reason string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPaid {
		return nil, store.ErrInvalidTransaction
	}

	if stock, ok := s.inventory[tx.StoreID]; ok {
		for _, item := range tx.Items {
			if item.Kind == billing.KindProduct {
				stock[item.RefID] += item.Qty
			}
		}
	}

	if c, ok := s.customers[tx.CustomerID]; ok {
		c.PointsBalance = max(0, c.PointsBalance+tx.PointsRedeemed-tx.PointsEarned)
		c.TotalSpent = decimal.Max(decimal.Zero, c.TotalSpent.Sub(tx.Total))
		c.TotalVisits = max(0, c.TotalVisits-1)
		s.customers[c.ID] = c
		balance := c.PointsBalance
		tx.PointsBalanceAfter = &balance
	}

	voidedAt := at.UTC()
	tx.Status = domain.TxStatusVoided
	tx.VoidReason = reason
	tx.VoidedAt = &voidedAt
	return cloneTransaction(tx), nil
}

func (s *Store) CreateAppointment(_ context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if !appt.EndsAt.After(appt.StartsAt) {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.appointments {
		if existing.StoreID != appt.StoreID || existing.StaffUsername != appt.StaffUsername {
			continue
		}
		if !occupiesSlot(existing.Status) {
			continue
		}
		if existing.Overlaps(appt.StartsAt, appt.EndsAt) {
			return nil, store.ErrSlotTaken
		}
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
	s.appointments[appt.ID] = appt
	return &appt, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &appt, nil
}

func (s *Store) ListAppointments(_ context.Context, storeID string, staffUsername string, from time.Time, to time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0, 16)
	for _, appt := range s.appointments {
		if appt.StoreID != storeID {
			continue
		}
		if staffUsername != "" && appt.StaffUsername != staffUsername {
			continue
		}
		if !appt.Overlaps(from, to) {
			continue
		}
		out = append(out, appt)
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int { return a.StartsAt.Compare(b.StartsAt) })
	return out, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, status string) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	appt.Status = status
	s.appointments[id] = appt
	return &appt, nil
}

func (s *Store) GetDailyReport(_ context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		StoreID:      storeID,
		GrossSales:   decimal.Zero,
		Discount:     decimal.Zero,
		Redemption:   decimal.Zero,
		Tax:          decimal.Zero,
		NetSales:     decimal.Zero,
		ServiceSales: decimal.Zero,
		ProductSales: decimal.Zero,
	}
	byPayment := make(map[string]*domain.DailyReportPayment)

	for _, tx := range s.transactionsByID {
		if tx.StoreID != storeID || tx.Status != domain.TxStatusPaid {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}

		report.Transactions++
		report.GrossSales = report.GrossSales.Add(tx.Subtotal)
		report.Discount = report.Discount.Add(tx.Discount)
		report.Redemption = report.Redemption.Add(tx.Redemption)
		report.Tax = report.Tax.Add(tx.Tax)
		report.NetSales = report.NetSales.Add(tx.Total)
		report.PointsEarned += tx.PointsEarned
		report.PointsRedeemed += tx.PointsRedeemed
		for _, item := range tx.Items {
			amount := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
			if item.Kind == billing.KindService {
				report.ServiceSales = report.ServiceSales.Add(amount)
			} else {
				report.ProductSales = report.ProductSales.Add(amount)
			}
		}

		entry, ok := byPayment[tx.PaymentMethod]
		if !ok {
			entry = &domain.DailyReportPayment{PaymentMethod: tx.PaymentMethod, Total: decimal.Zero}
			byPayment[tx.PaymentMethod] = entry
		}
		entry.Transactions++
		entry.Total = entry.Total.Add(tx.Total)
	}

	report.ByPayment = make([]domain.DailyReportPayment, 0, len(byPayment))
	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.StoreID != storeID || entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func occupiesSlot(status string) bool {
	return status == domain.AppointmentBooked || status == domain.AppointmentCompleted
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	out := *tx
	out.Items = slices.Clone(tx.Items)
	if tx.VoidedAt != nil {
		v := *tx.VoidedAt
		out.VoidedAt = &v
	}
	if tx.PointsBalanceAfter != nil {
		b := *tx.PointsBalanceAfter
		out.PointsBalanceAfter = &b
	}
	return &out
}
