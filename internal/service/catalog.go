package service

import (
	"context"
	"fmt"
	"strings"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) UpdateTaxConfig(ctx context.Context, storeID string, req domain.TaxConfigUpdateRequest) (domain.Store, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Store{}, err
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(hundred) {
		return domain.Store{}, invalidf("taxRate must be between 0 and 100")
	}

	st, err := s.resolveStore(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	st.TaxEnabled = req.TaxEnabled
	st.TaxRate = req.TaxRate.Round(3)

	updated, err := s.repo.UpsertStore(ctx, st)
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, updated.ID, "tax_config_update", "store", updated.ID, fmt.Sprintf("enabled=%t,rate=%s", updated.TaxEnabled, updated.TaxRate))
	return *updated, nil
}

func (s *Service) ListServices(ctx context.Context, includeInactive bool) ([]domain.ServiceOffering, error) {
	return s.repo.ListServices(ctx, includeInactive)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.ServiceOffering, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ServiceOffering{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if err := s.check(req); err != nil {
		return domain.ServiceOffering{}, err
	}
	if req.Price.IsNegative() {
		return domain.ServiceOffering{}, invalidf("price must not be negative")
	}

	created, err := s.repo.CreateService(ctx, domain.ServiceOffering{
		ID:              xid.New("svc"),
		Name:            req.Name,
		Category:        req.Category,
		Price:           req.Price.Round(2),
		DurationMinutes: req.DurationMinutes,
		Active:          true,
	})
	if err != nil {
		return domain.ServiceOffering{}, err
	}

	s.logAudit(ctx, "", "service_create", "service", created.ID, fmt.Sprintf("name=%s,price=%s,duration=%d", created.Name, created.Price, created.DurationMinutes))
	return *created, nil
}

func (s *Service) SetServiceActive(ctx context.Context, serviceID string, active bool) (domain.ServiceOffering, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ServiceOffering{}, err
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return domain.ServiceOffering{}, invalidf("service id is required")
	}

	updated, err := s.repo.SetServiceActive(ctx, serviceID, active)
	if err != nil {
		return domain.ServiceOffering{}, err
	}

	s.logAudit(ctx, "", "service_set_active", "service", updated.ID, fmt.Sprintf("active=%t", active))
	return *updated, nil
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.storeID(storeID))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	req.StoreID = s.storeID(req.StoreID)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.Price.IsNegative() {
		return domain.Product{}, invalidf("price must not be negative")
	}
	if _, err := s.resolveStore(ctx, req.StoreID); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:      req.SKU,
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price.Round(2),
		Active:   true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		err := s.repo.IncreaseStock(ctx, req.StoreID, []domain.StockAdjustment{{
			SKU: created.SKU,
			Qty: req.InitialStock,
		}})
		if err != nil {
			return domain.Product{}, err
		}
		created.Stock = req.InitialStock
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.SKU, fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price, req.InitialStock))
	return *created, nil
}

func (s *Service) RestockProduct(ctx context.Context, sku string, req domain.RestockRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	req.StoreID = s.storeID(req.StoreID)
	if sku == "" {
		return domain.Product{}, invalidf("sku is required")
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	products, err := s.repo.GetProductsBySKUs(ctx, []string{sku})
	if err != nil {
		return domain.Product{}, err
	}
	product, ok := products[sku]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", sku, store.ErrNotFound)
	}

	if err := s.repo.IncreaseStock(ctx, req.StoreID, []domain.StockAdjustment{{SKU: sku, Qty: req.Qty}}); err != nil {
		return domain.Product{}, err
	}
	stock, err := s.repo.GetStockMap(ctx, req.StoreID, []string{sku})
	if err != nil {
		return domain.Product{}, err
	}
	product.Stock = stock[sku]

	s.logAudit(ctx, req.StoreID, "product_restock", "product", sku, fmt.Sprintf("qty=%d,stock=%d", req.Qty, product.Stock))
	return product, nil
}
