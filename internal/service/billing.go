package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/domain"
)

// pricedCart is a cart resolved against the catalog. Client prices are never
// read; every unit price comes from the stored service or product.
type pricedCart struct {
	items     []billing.Item
	lineItems []billing.LineItem
	lines     []domain.TransactionLine
}

// Calculate runs the bill calculator on a caller-priced request.
func (s *Service) Calculate(req billing.Request) (billing.Bill, error) {
	in, err := req.Input()
	if err != nil {
		s.metrics.ObserveBill(err)
		return billing.Bill{}, err
	}
	bill, err := s.calculator.Compute(in)
	s.metrics.ObserveBill(err)
	return bill, err
}

func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error) {
	st, err := s.resolveStore(ctx, req.StoreID)
	if err != nil {
		return domain.QuoteResponse{}, err
	}
	cart, err := s.priceCart(ctx, req.CartItems)
	if err != nil {
		return domain.QuoteResponse{}, err
	}

	in := billing.Input{
		Items:          cart.items,
		PointsToRedeem: req.PointsToRedeem,
		TaxConfig:      st.TaxConfig(),
	}
	resp := domain.QuoteResponse{
		StoreID:   st.ID,
		LineItems: cart.lineItems,
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID != "" {
		customer, plan, err := s.customerTerms(ctx, req.CustomerID)
		if err != nil {
			return domain.QuoteResponse{}, err
		}
		balance := customer.PointsBalance
		in.CustomerPointsBalance = &balance
		in.Membership = membershipTerms(plan)
		resp.CustomerID = customer.ID
		if plan != nil {
			resp.Membership = plan.Name
		}
	}

	key, keyErr := cache.QuoteKey(struct {
		Store      string
		Tax        billing.TaxConfig
		Customer   string
		Balance    *int64
		Membership *billing.Membership
		Points     int64
		Lines      []billing.LineItem
	}{st.ID, in.TaxConfig, resp.CustomerID, in.CustomerPointsBalance, in.Membership, in.PointsToRedeem, cart.lineItems})
	if keyErr == nil {
		cached, ok, err := s.quotes.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("quote cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			s.metrics.ObserveQuoteCache(true)
			cached.Cached = true
			return *cached, nil
		}
		s.metrics.ObserveQuoteCache(false)
	}

	bill, err := s.computeBill(in, resp.CustomerID)
	if err != nil {
		return domain.QuoteResponse{}, err
	}
	resp.Bill = bill

	if keyErr == nil {
		if err := s.quotes.Set(ctx, key, &resp, s.quoteTTL); err != nil {
			s.logger.Warn("quote cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

// computeBill prices a cart for quote and checkout alike. Walk-in sales have
// no customer to credit, so they earn nothing.
func (s *Service) computeBill(in billing.Input, customerID string) (billing.Bill, error) {
	bill, err := s.calculator.Compute(in)
	s.metrics.ObserveBill(err)
	if err != nil {
		return billing.Bill{}, err
	}
	if customerID == "" {
		bill.PointsEarned = 0
	}
	return bill, nil
}

func (s *Service) priceCart(ctx context.Context, cartItems []domain.CartItem) (pricedCart, error) {
	if len(cartItems) == 0 {
		return pricedCart{}, invalidf("cartItems must not be empty")
	}

	serviceIDs := make([]string, 0, len(cartItems))
	skus := make([]string, 0, len(cartItems))
	normalized := make([]domain.CartItem, 0, len(cartItems))
	for i, item := range cartItems {
		item.Kind = billing.ItemKind(strings.ToLower(strings.TrimSpace(string(item.Kind))))
		if item.Qty < 1 {
			return pricedCart{}, invalidf("cartItems[%d].qty must be at least 1", i)
		}
		switch item.Kind {
		case billing.KindService:
			item.ServiceID = strings.TrimSpace(item.ServiceID)
			item.StaffID = strings.TrimSpace(item.StaffID)
			if item.ServiceID == "" {
				return pricedCart{}, invalidf("cartItems[%d].serviceId is required", i)
			}
			serviceIDs = append(serviceIDs, item.ServiceID)
		case billing.KindProduct:
			item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
			if item.SKU == "" {
				return pricedCart{}, invalidf("cartItems[%d].sku is required", i)
			}
			skus = append(skus, item.SKU)
		default:
			return pricedCart{}, invalidf("cartItems[%d].kind must be service or product", i)
		}
		normalized = append(normalized, item)
	}

	services, err := s.repo.GetServicesByIDs(ctx, serviceIDs)
	if err != nil {
		return pricedCart{}, err
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return pricedCart{}, err
	}

	cart := pricedCart{
		items:     make([]billing.Item, 0, len(normalized)),
		lineItems: make([]billing.LineItem, 0, len(normalized)),
		lines:     make([]domain.TransactionLine, 0, len(normalized)),
	}
	for _, item := range normalized {
		var (
			billed billing.Item
			line   domain.TransactionLine
		)
		switch item.Kind {
		case billing.KindService:
			svc, ok := services[item.ServiceID]
			if !ok || !svc.Active {
				return pricedCart{}, invalidf("service %s is not available", item.ServiceID)
			}
			billed = billing.ServiceLine{ServiceID: svc.ID, StaffID: item.StaffID, UnitPrice: svc.Price, Quantity: item.Qty}
			line = domain.TransactionLine{Kind: billing.KindService, RefID: svc.ID, StaffID: item.StaffID, Name: svc.Name, Qty: item.Qty, UnitPrice: svc.Price}
		case billing.KindProduct:
			product, ok := products[item.SKU]
			if !ok {
				return pricedCart{}, invalidf("product %s is not available", item.SKU)
			}
			billed = billing.ProductLine{SKU: product.SKU, UnitPrice: product.Price, Quantity: item.Qty}
			line = domain.TransactionLine{Kind: billing.KindProduct, RefID: product.SKU, Name: product.Name, Qty: item.Qty, UnitPrice: product.Price}
		}
		cart.items = append(cart.items, billed)
		cart.lineItems = append(cart.lineItems, billing.ToLineItem(billed))
		cart.lines = append(cart.lines, line)
	}
	return cart, nil
}

func lineItemsFromTransaction(lines []domain.TransactionLine) []billing.LineItem {
	out := make([]billing.LineItem, 0, len(lines))
	for _, line := range lines {
		item := billing.LineItem{Kind: line.Kind, UnitPrice: line.UnitPrice, Quantity: line.Qty}
		switch line.Kind {
		case billing.KindService:
			item.ServiceID = line.RefID
			item.StaffID = line.StaffID
		case billing.KindProduct:
			item.SKU = line.RefID
		}
		out = append(out, item)
	}
	return out
}
