package store

import (
	"context"
	"errors"
	"time"

	"salonpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrSlotTaken          = errors.New("appointment slot already taken")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Repository interface {
	ListStores(ctx context.Context) ([]domain.Store, error)
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
	UpsertStore(ctx context.Context, s domain.Store) (*domain.Store, error)

	ListServices(ctx context.Context, includeInactive bool) ([]domain.ServiceOffering, error)
	CreateService(ctx context.Context, svc domain.ServiceOffering) (*domain.ServiceOffering, error)
	GetServicesByIDs(ctx context.Context, ids []string) (map[string]domain.ServiceOffering, error)
	SetServiceActive(ctx context.Context, id string, active bool) (*domain.ServiceOffering, error)

	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error)
	IncreaseStock(ctx context.Context, storeID string, adjustments []domain.StockAdjustment) error

	CreateMembership(ctx context.Context, plan domain.MembershipPlan) (*domain.MembershipPlan, error)
	ListMemberships(ctx context.Context) ([]domain.MembershipPlan, error)
	GetMembership(ctx context.Context, id string) (*domain.MembershipPlan, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	AssignMembership(ctx context.Context, customerID string, membershipID string, expiresAt *time.Time) (*domain.Customer, error)

	// CreateCheckout persists tx, decrements product stock and applies the
	// loyalty delta to the customer in one atomic step. The customer balance is
	// re-checked under lock; ErrInsufficientPoints is returned when a concurrent
	// checkout spent the points first.
	CreateCheckout(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)
	VoidTransaction(ctx context.Context, id string, reason string, at time.Time) (*domain.Transaction, error)

	CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	ListAppointments(ctx context.Context, storeID string, staffUsername string, from time.Time, to time.Time) ([]domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error)

	GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
