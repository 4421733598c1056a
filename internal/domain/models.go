package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/billing"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleStylist = "stylist"
)

type Store struct {
	ID         string          `json:"id" toml:"id"`
	Name       string          `json:"name" toml:"name"`
	TaxEnabled bool            `json:"taxEnabled" toml:"tax_enabled"`
	TaxRate    decimal.Decimal `json:"taxRate" toml:"tax_rate"`
	OpenHour   int             `json:"openHour" toml:"open_hour"`
	CloseHour  int             `json:"closeHour" toml:"close_hour"`
	Timezone   string          `json:"timezone" toml:"timezone"`
}

func (s Store) TaxConfig() billing.TaxConfig {
	return billing.TaxConfig{Enabled: s.TaxEnabled, Rate: s.TaxRate}
}

// Location resolves the store timezone, falling back to UTC.
func (s Store) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type TaxConfigUpdateRequest struct {
	TaxEnabled bool            `json:"taxEnabled"`
	TaxRate    decimal.Decimal `json:"taxRate"`
}

type ServiceOffering struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"durationMinutes"`
	Active          bool            `json:"active"`
}

type ServiceCreateRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Category        string          `json:"category" validate:"required,max=60"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"durationMinutes" validate:"min=5,max=600"`
}

type ServiceActiveRequest struct {
	Active bool `json:"active"`
}

type Product struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Active   bool            `json:"active"`
	Stock    int             `json:"stock"`
}

type ProductCreateRequest struct {
	StoreID      string          `json:"storeId"`
	SKU          string          `json:"sku" validate:"required,max=40"`
	Name         string          `json:"name" validate:"required,max=120"`
	Category     string          `json:"category" validate:"required,max=60"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int             `json:"initialStock" validate:"min=0"`
}

type StockAdjustment struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type RestockRequest struct {
	StoreID string `json:"storeId"`
	Qty     int    `json:"qty" validate:"min=1"`
}

type MembershipPlan struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	PointsMultiplier   decimal.Decimal `json:"pointsMultiplier"`
	DurationDays       int             `json:"durationDays"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"createdAt"`
}

func (m MembershipPlan) Terms() billing.Membership {
	return billing.Membership{
		DiscountPercentage: m.DiscountPercentage,
		PointsMultiplier:   m.PointsMultiplier,
	}
}

type MembershipCreateRequest struct {
	Name               string          `json:"name" validate:"required,max=60"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	PointsMultiplier   decimal.Decimal `json:"pointsMultiplier"`
	DurationDays       int             `json:"durationDays" validate:"min=0,max=3660"`
}

type Customer struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Phone               string          `json:"phone"`
	Email               string          `json:"email,omitempty"`
	PointsBalance       int64           `json:"pointsBalance"`
	MembershipID        string          `json:"membershipId,omitempty"`
	MembershipExpiresAt *time.Time      `json:"membershipExpiresAt,omitempty"`
	TotalVisits         int             `json:"totalVisits"`
	TotalSpent          decimal.Decimal `json:"totalSpent"`
	LastVisitAt         *time.Time      `json:"lastVisitAt,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// HasActiveMembership reports whether the customer's membership applies at t.
func (c Customer) HasActiveMembership(t time.Time) bool {
	if c.MembershipID == "" {
		return false
	}
	return c.MembershipExpiresAt == nil || c.MembershipExpiresAt.After(t)
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"required,min=6,max=20"`
	Email string `json:"email" validate:"omitempty,email"`
}

type AssignMembershipRequest struct {
	MembershipID string `json:"membershipId" validate:"required"`
}

type CartItem struct {
	Kind      billing.ItemKind `json:"kind"`
	ServiceID string           `json:"serviceId,omitempty"`
	StaffID   string           `json:"staffId,omitempty"`
	SKU       string           `json:"sku,omitempty"`
	Qty       int              `json:"qty"`
}

type QuoteRequest struct {
	StoreID        string     `json:"storeId"`
	CustomerID     string     `json:"customerId,omitempty"`
	PointsToRedeem int64      `json:"pointsToRedeem"`
	CartItems      []CartItem `json:"cartItems"`
}

type QuoteResponse struct {
	StoreID    string             `json:"storeId"`
	CustomerID string             `json:"customerId,omitempty"`
	Membership string             `json:"membership,omitempty"`
	LineItems  []billing.LineItem `json:"lineItems"`
	Bill       billing.Bill       `json:"bill"`
	Cached     bool               `json:"cached"`
}

type CheckoutRequest struct {
	StoreID          string          `json:"storeId"`
	IdempotencyKey   string          `json:"idempotencyKey"`
	CustomerID       string          `json:"customerId,omitempty"`
	AppointmentID    string          `json:"appointmentId,omitempty"`
	PointsToRedeem   int64           `json:"pointsToRedeem"`
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	CashReceived     decimal.Decimal `json:"cashReceived"`
	CartItems        []CartItem      `json:"cartItems"`
}

type CheckoutResponse struct {
	TransactionID string             `json:"transactionId"`
	Status        string             `json:"status"`
	StoreID       string             `json:"storeId"`
	CustomerID    string             `json:"customerId,omitempty"`
	PaymentMethod string             `json:"paymentMethod"`
	LineItems     []billing.LineItem `json:"lineItems"`
	Bill          billing.Bill       `json:"bill"`
	CashReceived  decimal.Decimal    `json:"cashReceived"`
	Change        decimal.Decimal    `json:"change"`
	PointsBalance *int64             `json:"pointsBalance,omitempty"`
	Duplicate     bool               `json:"duplicate"`
	CreatedAt     string             `json:"createdAt"`
}

type CheckoutLookupResponse struct {
	Found    bool              `json:"found"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type VoidTransactionRequest struct {
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
	ManagerPIN    string `json:"managerPin"`
}

type VoidTransactionResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	VoidedAt      string `json:"voidedAt"`
}

type TransactionLine struct {
	Kind      billing.ItemKind
	RefID     string
	StaffID   string
	Name      string
	Qty       int
	UnitPrice decimal.Decimal
}

type Transaction struct {
	ID               string
	StoreID          string
	CustomerID       string
	AppointmentID    string
	CashierUsername  string
	IdempotencyKey   string
	PaymentMethod    string
	PaymentReference string
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	Redemption       decimal.Decimal
	TaxRate          decimal.Decimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
	CashReceived     decimal.Decimal
	Change           decimal.Decimal
	PointsEarned     int64
	PointsRedeemed   int64
	// PointsBalanceAfter is filled by the repository after the loyalty update.
	PointsBalanceAfter *int64
	Status             string
	VoidReason         string
	VoidedAt           *time.Time
	CreatedAt          time.Time
	Items              []TransactionLine
}

type Appointment struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"storeId"`
	CustomerID    string    `json:"customerId"`
	StaffUsername string    `json:"staffUsername"`
	ServiceID     string    `json:"serviceId"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Overlaps reports whether a and the [start, end) range share any time.
func (a Appointment) Overlaps(start time.Time, end time.Time) bool {
	return a.StartsAt.Before(end) && start.Before(a.EndsAt)
}

type AppointmentCreateRequest struct {
	StoreID       string    `json:"storeId"`
	CustomerID    string    `json:"customerId" validate:"required"`
	StaffUsername string    `json:"staffUsername" validate:"required"`
	ServiceID     string    `json:"serviceId" validate:"required"`
	StartsAt      time.Time `json:"startsAt" validate:"required"`
	Notes         string    `json:"notes" validate:"max=500"`
}

type AppointmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=booked completed cancelled no_show"`
}

type AvailabilityResponse struct {
	StoreID       string   `json:"storeId"`
	StaffUsername string   `json:"staffUsername"`
	ServiceID     string   `json:"serviceId"`
	Date          string   `json:"date"`
	Slots         []string `json:"slots"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type DailyReportPayment struct {
	PaymentMethod string          `json:"paymentMethod"`
	Transactions  int64           `json:"transactions"`
	Total         decimal.Decimal `json:"total"`
}

type DailyReport struct {
	StoreID        string               `json:"storeId"`
	Date           string               `json:"date"`
	Transactions   int64                `json:"transactions"`
	GrossSales     decimal.Decimal      `json:"grossSales"`
	Discount       decimal.Decimal      `json:"discount"`
	Redemption     decimal.Decimal      `json:"redemption"`
	Tax            decimal.Decimal      `json:"tax"`
	NetSales       decimal.Decimal      `json:"netSales"`
	ServiceSales   decimal.Decimal      `json:"serviceSales"`
	ProductSales   decimal.Decimal      `json:"productSales"`
	PointsEarned   int64                `json:"pointsEarned"`
	PointsRedeemed int64                `json:"pointsRedeemed"`
	ByPayment      []DailyReportPayment `json:"byPayment"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"storeId"`
	ActorUsername string    `json:"actorUsername"`
	ActorRole     string    `json:"actorRole"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	TxStatusPaid   = "paid"
	TxStatusVoided = "voided"
)

const (
	AppointmentBooked    = "booked"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)
