package orders

import (
	"context"

	"github.com/dmitrijs2005/bizledger/internal/server/models"
)

type Repository interface {
	// FindByKey returns the order header for (buyerID, orderDate) or
	// common.ErrorNotFound.
	FindByKey(ctx context.Context, buyerID, orderDate string) (*models.SalesOrder, error)
	// LockByKey is FindByKey with a row lock held until the enclosing
	// transaction ends.
	LockByKey(ctx context.Context, buyerID, orderDate string) (*models.SalesOrder, error)
	// Create inserts a header. A concurrent header for the same key yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, order *models.SalesOrder) error
	// UpdateHeader overwrites the running total and missing-rate count.
	UpdateHeader(ctx context.Context, orderID string, totalAmount float64, itemsMissingRateCount int) error
	// InsertItems inserts all items in one statement.
	InsertItems(ctx context.Context, orderID string, items []models.SalesOrderItem) error
	// ListItems returns the items of an order in insertion order.
	ListItems(ctx context.Context, orderID string) ([]models.SalesOrderItem, error)
}
