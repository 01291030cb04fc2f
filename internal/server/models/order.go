package models

// OrderDateLayout is the wire and storage format of an order date.
const OrderDateLayout = "2006-01-02"

// SalesOrder is the per-buyer, per-day order header. (BuyerID, OrderDate)
// is unique.
type SalesOrder struct {
	ID                    string
	BuyerID               string
	OrderDate             string
	TotalAmount           float64
	ItemsMissingRateCount int
}

// SalesOrderItem is a line of a sales order. Items are only ever inserted.
type SalesOrderItem struct {
	ID         string
	OrderID    string
	ItemName   string
	Quantity   float64
	UnitPrice  float64
	ItemWeight float64
	ItemDate   string
}

// LineTotal is unit price times quantity.
func (i SalesOrderItem) LineTotal() float64 {
	return i.UnitPrice * i.Quantity
}
