package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/dbx"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	ordersrepo "github.com/dmitrijs2005/bizledger/internal/server/repositories/orders"
	refreshtokensrepo "github.com/dmitrijs2005/bizledger/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/bizledger/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var errBoom = errors.New("boom")

// newTxDB returns a real *sql.DB for dbx.WithTx plumbing. The fakes below
// ignore the handle, so transactions never touch it.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PasswordHashCost = bcrypt.MinCost
	cfg.StoreCallTimeout = time.Second
	return cfg
}

// memStore is an in-memory stand-in for the database behind all
// repositories. Every method is atomic on its own; there is no transaction
// isolation, which is what the saga sees against a real store too.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
	orders map[string]*models.SalesOrder
	items  map[string][]models.SalesOrderItem

	calls int

	// optional hooks
	afterTokenFind  func()
	afterOrderFind  func(ctx context.Context) error
	createOrderErr  func() error
	updateHeaderErr func(call int) error
	insertItemsErr  func() error
	createTokenErr  error
	updateCalls     int
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		tokens: map[string]*models.RefreshToken{},
		orders: map[string]*models.SalesOrder{},
		items:  map[string][]models.SalesOrderItem{},
	}
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memStore) seedOrder(o models.SalesOrder, items ...models.SalesOrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.orders[o.ID] = &cp
	for _, it := range items {
		it.OrderID = o.ID
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		s.items[o.ID] = append(s.items[o.ID], it)
	}
}

func (s *memStore) order(id string) models.SalesOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *memStore) itemsTotal(orderID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, it := range s.items[orderID] {
		total += it.LineTotal()
	}
	return common.Round2(total)
}

func (s *memStore) userTokens(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	r.s.users[u.ID] = &cp
	return u, nil
}

func (r memUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) LockCurrentRefreshToken(ctx context.Context, userID string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	u, ok := r.s.users[userID]
	if !ok {
		return "", common.ErrorNotFound
	}
	return u.CurrentRefreshTokenID, nil
}

func (r memUsers) SwapCurrentRefreshToken(ctx context.Context, userID, oldID, newID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	u, ok := r.s.users[userID]
	if !ok || u.CurrentRefreshTokenID != oldID {
		return false, nil
	}
	u.CurrentRefreshTokenID = newID
	return true, nil
}

func (r memUsers) ClearCurrentRefreshToken(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	if u, ok := r.s.users[userID]; ok {
		u.CurrentRefreshTokenID = ""
	}
	return nil
}

// --- refresh tokens ---

type memTokens struct{ s *memStore }

func (r memTokens) Create(ctx context.Context, t *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	if r.s.createTokenErr != nil {
		return r.s.createTokenErr
	}
	cp := *t
	r.s.tokens[t.ID] = &cp
	return nil
}

func (r memTokens) Find(ctx context.Context, id string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	r.s.calls++
	t, ok := r.s.tokens[id]
	var cp models.RefreshToken
	if ok {
		cp = *t
	}
	hook := r.s.afterTokenFind
	r.s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &cp, nil
}

func (r memTokens) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	var n int64
	for id, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

// --- orders ---

type memOrders struct{ s *memStore }

func (r memOrders) FindByKey(ctx context.Context, buyerID, orderDate string) (*models.SalesOrder, error) {
	r.s.mu.Lock()
	r.s.calls++
	var found *models.SalesOrder
	for _, o := range r.s.orders {
		if o.BuyerID == buyerID && o.OrderDate == orderDate {
			cp := *o
			found = &cp
		}
	}
	hook := r.s.afterOrderFind
	r.s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

func (r memOrders) LockByKey(ctx context.Context, buyerID, orderDate string) (*models.SalesOrder, error) {
	return r.FindByKey(ctx, buyerID, orderDate)
}

func (r memOrders) Create(ctx context.Context, o *models.SalesOrder) error {
	r.s.mu.Lock()
	hook := r.s.createOrderErr
	r.s.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	for _, existing := range r.s.orders {
		if existing.BuyerID == o.BuyerID && existing.OrderDate == o.OrderDate {
			return common.ErrorAlreadyExists
		}
	}
	cp := *o
	r.s.orders[o.ID] = &cp
	return nil
}

func (r memOrders) UpdateHeader(ctx context.Context, orderID string, total float64, missing int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	r.s.updateCalls++
	if r.s.updateHeaderErr != nil {
		if err := r.s.updateHeaderErr(r.s.updateCalls); err != nil {
			return err
		}
	}
	o, ok := r.s.orders[orderID]
	if !ok {
		return common.ErrorNotFound
	}
	o.TotalAmount = total
	o.ItemsMissingRateCount = missing
	return nil
}

func (r memOrders) InsertItems(ctx context.Context, orderID string, items []models.SalesOrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	if r.s.insertItemsErr != nil {
		if err := r.s.insertItemsErr(); err != nil {
			return err
		}
	}
	for _, it := range items {
		it.OrderID = orderID
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		r.s.items[orderID] = append(r.s.items[orderID], it)
	}
	return nil
}

func (r memOrders) ListItems(ctx context.Context, orderID string) ([]models.SalesOrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.calls++
	return append([]models.SalesOrderItem(nil), r.s.items[orderID]...), nil
}

// fakeRepoManager hands out the in-memory repositories for any DBTX.
type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return memUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository {
	return memTokens{m.s}
}
func (m *fakeRepoManager) Orders(db dbx.DBTX) ordersrepo.Repository { return memOrders{m.s} }

// panicRepoManager fails the test on any store access.
type panicRepoManager struct{}

func (panicRepoManager) RunMigrations(context.Context, *sql.DB) error { panic("store touched") }
func (panicRepoManager) Users(dbx.DBTX) usersrepo.Repository          { panic("store touched") }
func (panicRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository {
	panic("store touched")
}
func (panicRepoManager) Orders(dbx.DBTX) ordersrepo.Repository { panic("store touched") }

var nopLogger logging.Logger = logging.NopLogger{}
