// This file implements OrderService: find-or-create of the per-buyer, per-day
// sales order and appending of its items, either as a compensating saga or
// inside one transaction.
package services

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/dbx"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/metrics"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	"github.com/dmitrijs2005/bizledger/internal/server/reconcile"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// OrderItemInput is one line of a submission.
type OrderItemInput struct {
	ItemName   string  `json:"item_name" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"gt=0,lte=1000000,decimals=3"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0,lte=1000000000,decimals=2"`
	ItemWeight float64 `json:"item_weight" validate:"gte=0,lte=1000000,decimals=3"`
	ItemDate   string  `json:"item_date" validate:"omitempty,datetime=2006-01-02"`
}

// OrderInput is a submission for one buyer and day. An empty OrderDate means
// today (UTC). TotalAmount is optional; when given it must match the items.
type OrderInput struct {
	BuyerID               string           `json:"buyer_id" validate:"required"`
	OrderDate             string           `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	ItemsMissingRateCount int              `json:"items_missing_rate_count" validate:"gte=0,lte=2147483647"`
	TotalAmount           *float64         `json:"total_amount"`
	Items                 []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

// OrderResult tells which order the items went to.
type OrderResult struct {
	OrderID     string
	Created     bool
	TotalAmount float64
}

// OrderView is a header with its committed items.
type OrderView struct {
	Order models.SalesOrder
	Items []models.SalesOrderItem
}

// maxOrderTotal is the largest total a numeric(14,2) header can hold.
const maxOrderTotal = 999_999_999_999.99

func errTotalTooLarge() error {
	return common.NewValidationError("items", "order total is too large")
}

type preparedOrder struct {
	buyerID   string
	orderDate string
	missing   int
	total     float64
	items     []models.SalesOrderItem
}

// itemsCopy gives each store attempt its own slice, since repositories
// assign ids in place.
func (p *preparedOrder) itemsCopy() []models.SalesOrderItem {
	out := make([]models.SalesOrderItem, len(p.items))
	copy(out, p.items)
	return out
}

type OrderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sink        reconcile.Sink
	mode        string
	callTimeout time.Duration
	now         func() time.Time
	validate    *validator.Validate
	logger      logging.Logger
}

// NewOrderService constructs an OrderService. now may be nil.
func NewOrderService(db *sql.DB, m repomanager.RepositoryManager, sink reconcile.Sink, cfg *config.Config, now func() time.Time, logger logging.Logger) *OrderService {
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		db:          db,
		repomanager: m,
		sink:        sink,
		mode:        cfg.OrderMode,
		callTimeout: cfg.StoreCallTimeout,
		now:         now,
		validate:    newValidator(),
		logger:      logger.With("module", "orders"),
	}
}

// SubmitOrder runs the configured mode.
func (s *OrderService) SubmitOrder(ctx context.Context, in OrderInput) (*OrderResult, error) {
	if s.mode == config.OrderModeSaga {
		return s.Submit(ctx, in)
	}
	return s.SubmitTx(ctx, in)
}

// Submit appends the items through separate store calls: find, then either
// create header and items together, or update the header and insert the
// items. If the insert fails the header is restored once; if that fails too
// a *common.CompensationError is returned and the incident is journaled.
//
// Two concurrent Submits for the same existing order can both read the same
// previous total and one update is lost. SubmitTx does not have this problem.
func (s *OrderService) Submit(ctx context.Context, in OrderInput) (*OrderResult, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	res, err := s.submitSaga(ctx, p, true)
	s.record(config.OrderModeSaga, res, err)
	return res, err
}

func (s *OrderService) submitSaga(ctx context.Context, p *preparedOrder, retryCreate bool) (*OrderResult, error) {
	repo := s.repomanager.Orders(s.db)

	var existing *models.SalesOrder
	err := dbx.Call(ctx, s.callTimeout, "find sales order", func(ctx context.Context) error {
		var err error
		existing, err = repo.FindByKey(ctx, p.buyerID, p.orderDate)
		return err
	})

	switch {
	case errors.Is(err, common.ErrorNotFound):
		res, err := s.createWithItems(ctx, p)
		if errors.Is(err, common.ErrorAlreadyExists) && retryCreate {
			s.logger.Info(ctx, "sales order created concurrently, appending", "buyer_id", p.buyerID, "order_date", p.orderDate)
			return s.submitSaga(ctx, p, false)
		}
		return res, storageOnly("create sales order", err)
	case err != nil:
		return nil, err
	}

	return s.appendWithCompensation(ctx, existing, p)
}

func (s *OrderService) createWithItems(ctx context.Context, p *preparedOrder) (*OrderResult, error) {
	order := &models.SalesOrder{
		ID:                    uuid.NewString(),
		BuyerID:               p.buyerID,
		OrderDate:             p.orderDate,
		TotalAmount:           p.total,
		ItemsMissingRateCount: p.missing,
	}

	err := dbx.Call(ctx, s.callTimeout, "create sales order", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Orders(tx)
			if err := repo.Create(ctx, order); err != nil {
				return err
			}
			return repo.InsertItems(ctx, order.ID, p.itemsCopy())
		})
	})
	if err != nil {
		return nil, err
	}

	return &OrderResult{OrderID: order.ID, Created: true, TotalAmount: order.TotalAmount}, nil
}

func (s *OrderService) appendWithCompensation(ctx context.Context, existing *models.SalesOrder, p *preparedOrder) (*OrderResult, error) {
	repo := s.repomanager.Orders(s.db)
	prevTotal, prevMissing := existing.TotalAmount, existing.ItemsMissingRateCount
	newTotal := common.Round2(prevTotal + p.total)
	if newTotal > maxOrderTotal {
		return nil, errTotalTooLarge()
	}

	err := dbx.Call(ctx, s.callTimeout, "update sales order header", func(ctx context.Context) error {
		return repo.UpdateHeader(ctx, existing.ID, newTotal, p.missing)
	})
	if err != nil {
		return nil, storageOnly("update sales order header", err)
	}

	insertErr := dbx.Call(ctx, s.callTimeout, "insert sales order items", func(ctx context.Context) error {
		return repo.InsertItems(ctx, existing.ID, p.itemsCopy())
	})
	if insertErr == nil {
		return &OrderResult{OrderID: existing.ID, TotalAmount: newTotal}, nil
	}
	insertErr = storageOnly("insert sales order items", insertErr)

	// the header must be restored even if the caller has gone away
	cctx := context.WithoutCancel(ctx)
	rollbackErr := dbx.Call(cctx, s.callTimeout, "restore sales order header", func(ctx context.Context) error {
		return repo.UpdateHeader(ctx, existing.ID, prevTotal, prevMissing)
	})
	if rollbackErr == nil {
		metrics.RecordCompensation(true)
		s.logger.Warn(ctx, "sales order items not saved, header restored",
			"order_id", existing.ID, "total", prevTotal, "error", insertErr)
		return nil, insertErr
	}

	metrics.RecordCompensation(false)
	cerr := &common.CompensationError{OrderID: existing.ID, Cause: insertErr, RollbackErr: rollbackErr}
	s.logger.Error(ctx, "sales order header left inconsistent",
		"order_id", existing.ID, "previous_total", prevTotal, "stored_total", newTotal,
		"insert_error", insertErr, "rollback_error", rollbackErr)

	incident := reconcile.Incident{
		ID:                    uuid.NewString(),
		OrderID:               existing.ID,
		BuyerID:               existing.BuyerID,
		OrderDate:             existing.OrderDate,
		PreviousTotal:         prevTotal,
		PreviousMissingCount:  prevMissing,
		AttemptedTotal:        newTotal,
		AttemptedMissingCount: p.missing,
		InsertError:           insertErr.Error(),
		RollbackError:         rollbackErr.Error(),
		OccurredAt:            s.now().UTC(),
	}
	if err := s.sink.Record(cctx, incident); err != nil {
		s.logger.Error(ctx, "failed to journal reconciliation incident", "incident_id", incident.ID, "error", err)
	}

	return nil, cerr
}

// SubmitTx does what Submit does inside one transaction with the order row
// locked, so concurrent submissions for the same key serialize and nothing
// needs compensating. A concurrent first insert of the header is retried once.
func (s *OrderService) SubmitTx(ctx context.Context, in OrderInput) (*OrderResult, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	res, err := s.submitTx(ctx, p)
	if errors.Is(err, common.ErrorAlreadyExists) {
		res, err = s.submitTx(ctx, p)
	}
	err = storageOnly("submit sales order", err)

	s.record(config.OrderModeTx, res, err)
	return res, err
}

func (s *OrderService) submitTx(ctx context.Context, p *preparedOrder) (*OrderResult, error) {
	var res *OrderResult
	err := dbx.Call(ctx, s.callTimeout, "submit sales order", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Orders(tx)

			existing, err := repo.LockByKey(ctx, p.buyerID, p.orderDate)
			if errors.Is(err, common.ErrorNotFound) {
				order := &models.SalesOrder{
					ID:                    uuid.NewString(),
					BuyerID:               p.buyerID,
					OrderDate:             p.orderDate,
					TotalAmount:           p.total,
					ItemsMissingRateCount: p.missing,
				}
				if err := repo.Create(ctx, order); err != nil {
					return err
				}
				if err := repo.InsertItems(ctx, order.ID, p.itemsCopy()); err != nil {
					return err
				}
				res = &OrderResult{OrderID: order.ID, Created: true, TotalAmount: order.TotalAmount}
				return nil
			}
			if err != nil {
				return err
			}

			total := common.Round2(existing.TotalAmount + p.total)
			if total > maxOrderTotal {
				return errTotalTooLarge()
			}
			if err := repo.UpdateHeader(ctx, existing.ID, total, p.missing); err != nil {
				return err
			}
			if err := repo.InsertItems(ctx, existing.ID, p.itemsCopy()); err != nil {
				return err
			}
			res = &OrderResult{OrderID: existing.ID, TotalAmount: total}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns the order for (buyerID, orderDate) with its items.
func (s *OrderService) Get(ctx context.Context, buyerID, orderDate string) (*OrderView, error) {
	if buyerID == "" {
		return nil, common.NewValidationError("buyer_id", "is required")
	}
	if _, err := time.Parse(models.OrderDateLayout, orderDate); err != nil {
		return nil, common.NewValidationError("order_date", "must be a date in "+models.OrderDateLayout+" format")
	}

	repo := s.repomanager.Orders(s.db)
	view := &OrderView{}
	err := dbx.Call(ctx, s.callTimeout, "get sales order", func(ctx context.Context) error {
		order, err := repo.FindByKey(ctx, buyerID, orderDate)
		if err != nil {
			return err
		}
		view.Order = *order
		view.Items, err = repo.ListItems(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// prepare validates the input before any store call and computes the total.
func (s *OrderService) prepare(in OrderInput) (*preparedOrder, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	p := &preparedOrder{
		buyerID:   in.BuyerID,
		orderDate: in.OrderDate,
		missing:   in.ItemsMissingRateCount,
		items:     make([]models.SalesOrderItem, 0, len(in.Items)),
	}
	if p.orderDate == "" {
		p.orderDate = s.now().UTC().Format(models.OrderDateLayout)
	}

	var total float64
	for _, it := range in.Items {
		item := models.SalesOrderItem{
			ItemName:   it.ItemName,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			ItemWeight: it.ItemWeight,
			ItemDate:   it.ItemDate,
		}
		total += item.LineTotal()
		p.items = append(p.items, item)
	}
	if total > maxOrderTotal {
		return nil, errTotalTooLarge()
	}
	p.total = common.Round2(total)

	if in.TotalAmount != nil && math.Abs(common.Round2(*in.TotalAmount)-p.total) >= 0.005 {
		return nil, common.NewValidationError("total_amount", "does not match the sum of items")
	}

	return p, nil
}

func (s *OrderService) record(mode string, res *OrderResult, err error) {
	path := "appended"
	if res != nil && res.Created {
		path = "created"
	}
	if err != nil {
		path = "unknown"
	}
	metrics.RecordOrderSubmission(mode, path, err == nil)
}

// storageOnly keeps not found and already exists from leaking out of order
// paths as domain outcomes: here they mean the store changed under us.
func storageOnly(op string, err error) error {
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorAlreadyExists) {
		return common.NewStorageError(op, err)
	}
	return err
}
