// Package orders provides the PostgreSQL-backed repository for sales order
// headers and their line items.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/dbx"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/pgerr"
	"github.com/google/uuid"
)

// PostgresRepository implements order storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectOrderByKey = `
		SELECT id, buyer_id, order_date::text, total_amount, items_missing_rate_count
		FROM sales_orders
		WHERE buyer_id = $1 AND order_date = $2`

func (r *PostgresRepository) FindByKey(ctx context.Context, buyerID, orderDate string) (*models.SalesOrder, error) {
	return r.findByKey(ctx, selectOrderByKey, buyerID, orderDate)
}

func (r *PostgresRepository) LockByKey(ctx context.Context, buyerID, orderDate string) (*models.SalesOrder, error) {
	return r.findByKey(ctx, selectOrderByKey+"\n\t\tFOR UPDATE", buyerID, orderDate)
}

func (r *PostgresRepository) findByKey(ctx context.Context, query, buyerID, orderDate string) (*models.SalesOrder, error) {
	o := &models.SalesOrder{}
	err := r.db.QueryRowContext(ctx, query, buyerID, orderDate).
		Scan(&o.ID, &o.BuyerID, &o.OrderDate, &o.TotalAmount, &o.ItemsMissingRateCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

// Create inserts the header, assigning an id when the caller did not.
func (r *PostgresRepository) Create(ctx context.Context, order *models.SalesOrder) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	query := `
		INSERT INTO sales_orders (id, buyer_id, order_date, total_amount, items_missing_rate_count)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.BuyerID, order.OrderDate, order.TotalAmount, order.ItemsMissingRateCount)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateHeader returns common.ErrorNotFound when the order does not exist.
func (r *PostgresRepository) UpdateHeader(ctx context.Context, orderID string, totalAmount float64, itemsMissingRateCount int) error {
	query := `
		UPDATE sales_orders
		SET total_amount = $2, items_missing_rate_count = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, orderID, totalAmount, itemsMissingRateCount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

const itemColumns = 7

// InsertItems writes all items with a single multi-row INSERT, so either all
// of them land or none do.
func (r *PostgresRepository) InsertItems(ctx context.Context, orderID string, items []models.SalesOrderItem) error {
	if len(items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO sales_order_items (id, order_id, item_name, quantity, unit_price, item_weight, item_date) VALUES `)

	args := make([]any, 0, len(items)*itemColumns)
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = orderID

		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * itemColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, it.ID, orderID, it.ItemName, it.Quantity, it.UnitPrice, it.ItemWeight, nullableDate(it.ItemDate))
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListItems(ctx context.Context, orderID string) ([]models.SalesOrderItem, error) {
	query := `
		SELECT id, order_id, item_name, quantity, unit_price, item_weight, COALESCE(item_date::text, '')
		FROM sales_order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []models.SalesOrderItem
	for rows.Next() {
		var it models.SalesOrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemName, &it.Quantity, &it.UnitPrice, &it.ItemWeight, &it.ItemDate); err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func nullableDate(d string) sql.NullString {
	return sql.NullString{String: d, Valid: d != ""}
}
