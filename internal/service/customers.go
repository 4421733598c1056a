package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/xid"
)

func (s *Service) CreateMembership(ctx context.Context, req domain.MembershipCreateRequest) (domain.MembershipPlan, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.MembershipPlan{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.MembershipPlan{}, err
	}
	if req.DiscountPercentage.IsNegative() || req.DiscountPercentage.GreaterThan(hundred) {
		return domain.MembershipPlan{}, invalidf("discountPercentage must be between 0 and 100")
	}
	if req.PointsMultiplier.IsNegative() {
		return domain.MembershipPlan{}, invalidf("pointsMultiplier must not be negative")
	}

	created, err := s.repo.CreateMembership(ctx, domain.MembershipPlan{
		ID:                 xid.New("mem"),
		Name:               req.Name,
		DiscountPercentage: req.DiscountPercentage,
		PointsMultiplier:   req.PointsMultiplier,
		DurationDays:       req.DurationDays,
		Active:             true,
		CreatedAt:          s.now(),
	})
	if err != nil {
		return domain.MembershipPlan{}, err
	}

	s.logAudit(ctx, "", "membership_create", "membership", created.ID, fmt.Sprintf("name=%s,discount=%s,multiplier=%s", created.Name, created.DiscountPercentage, created.PointsMultiplier))
	return *created, nil
}

func (s *Service) ListMemberships(ctx context.Context) ([]domain.MembershipPlan, error) {
	return s.repo.ListMemberships(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.ReplaceAll(strings.TrimSpace(req.Phone), " ", "")
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:         xid.New("cust"),
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      req.Email,
		TotalSpent: decimal.Zero,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "", "customer_create", "customer", created.ID, "phone="+created.Phone)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, invalidf("customer id is required")
	}
	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", customerID, err)
	}
	return *c, nil
}

func (s *Service) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListCustomers(ctx, query, limit)
}

func (s *Service) AssignMembership(ctx context.Context, customerID string, req domain.AssignMembershipRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Customer{}, err
	}
	req.MembershipID = strings.TrimSpace(req.MembershipID)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	plan, err := s.repo.GetMembership(ctx, req.MembershipID)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("membership %s: %w", req.MembershipID, err)
	}
	if !plan.Active {
		return domain.Customer{}, invalidf("membership %s is not active", plan.ID)
	}

	var expiresAt *time.Time
	if plan.DurationDays > 0 {
		at := s.now().AddDate(0, 0, plan.DurationDays)
		expiresAt = &at
	}

	updated, err := s.repo.AssignMembership(ctx, strings.TrimSpace(customerID), plan.ID, expiresAt)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "", "membership_assign", "customer", updated.ID, "membership="+plan.ID)
	return *updated, nil
}

// customerTerms loads the customer and the membership terms that apply now.
// A lapsed or deactivated plan yields no membership.
func (s *Service) customerTerms(ctx context.Context, customerID string) (*domain.Customer, *domain.MembershipPlan, error) {
	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("customer %s: %w", customerID, err)
	}
	if !c.HasActiveMembership(s.now()) {
		return c, nil, nil
	}
	plan, err := s.repo.GetMembership(ctx, c.MembershipID)
	if err != nil {
		return nil, nil, fmt.Errorf("membership %s: %w", c.MembershipID, err)
	}
	if !plan.Active {
		return c, nil, nil
	}
	return c, plan, nil
}

func membershipTerms(plan *domain.MembershipPlan) *billing.Membership {
	if plan == nil {
		return nil
	}
	terms := plan.Terms()
	return &terms
}
