package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ItemKind string

const (
	KindService ItemKind = "service"
	KindProduct ItemKind = "product"
)

// Item is one billed line. Only ServiceLine and ProductLine implement it.
type Item interface {
	Kind() ItemKind
	Price() decimal.Decimal
	Qty() int
	sealed()
}

// ServiceLine is a salon service rendered by a stylist.
type ServiceLine struct {
	ServiceID string
	StaffID   string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (ServiceLine) Kind() ItemKind           { return KindService }
func (l ServiceLine) Price() decimal.Decimal { return l.UnitPrice }
func (l ServiceLine) Qty() int               { return l.Quantity }
func (ServiceLine) sealed()                  {}

// ProductLine is a retail product sold over the counter.
type ProductLine struct {
	SKU       string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (ProductLine) Kind() ItemKind           { return KindProduct }
func (l ProductLine) Price() decimal.Decimal { return l.UnitPrice }
func (l ProductLine) Qty() int               { return l.Quantity }
func (ProductLine) sealed()                  {}

// LineItem is the JSON wire form of an Item.
type LineItem struct {
	Kind      ItemKind        `json:"kind"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	ServiceID string          `json:"serviceId,omitempty"`
	StaffID   string          `json:"staffId,omitempty"`
	SKU       string          `json:"sku,omitempty"`
}

// Item converts the wire form into its typed variant.
func (l LineItem) Item() (Item, error) {
	switch ItemKind(strings.ToLower(strings.TrimSpace(string(l.Kind)))) {
	case KindService:
		return ServiceLine{ServiceID: l.ServiceID, StaffID: l.StaffID, UnitPrice: l.UnitPrice, Quantity: l.Quantity}, nil
	case KindProduct:
		return ProductLine{SKU: l.SKU, UnitPrice: l.UnitPrice, Quantity: l.Quantity}, nil
	default:
		return nil, invalid("lineItems.kind", "must be service or product")
	}
}

// ToLineItem converts a typed Item back to its wire form.
func ToLineItem(item Item) LineItem {
	switch v := item.(type) {
	case ServiceLine:
		return LineItem{Kind: KindService, UnitPrice: v.UnitPrice, Quantity: v.Quantity, ServiceID: v.ServiceID, StaffID: v.StaffID}
	case ProductLine:
		return LineItem{Kind: KindProduct, UnitPrice: v.UnitPrice, Quantity: v.Quantity, SKU: v.SKU}
	}
	return LineItem{}
}
