package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	"github.com/dmitrijs2005/bizledger/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	signup  func(services.SignupInput) error
	login   func(email, password string) (*services.TokenPair, error)
	check   func(token string) (*services.Identity, error)
	refresh func(token string) (*services.TokenPair, error)
	logout  func(token string) error
}

func (f *fakeUsers) Signup(_ context.Context, in services.SignupInput) (*models.User, error) {
	if err := f.signup(in); err != nil {
		return nil, err
	}
	return &models.User{ID: "u1", Email: in.Email}, nil
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.Identity, *services.TokenPair, error) {
	pair, err := f.login(email, password)
	if err != nil {
		return nil, nil, err
	}
	return &services.Identity{UserID: "u1", Email: email}, pair, nil
}

func (f *fakeUsers) Check(token string) (*services.Identity, error) { return f.check(token) }

func (f *fakeUsers) Refresh(_ context.Context, token string) (*services.TokenPair, error) {
	return f.refresh(token)
}

func (f *fakeUsers) Logout(_ context.Context, token string) error { return f.logout(token) }

type fakeOrders struct {
	submitted []services.OrderInput
	submit    func(services.OrderInput) (*services.OrderResult, error)
	get       func(buyerID, orderDate string) (*services.OrderView, error)
}

func (f *fakeOrders) SubmitOrder(_ context.Context, in services.OrderInput) (*services.OrderResult, error) {
	f.submitted = append(f.submitted, in)
	return f.submit(in)
}

func (f *fakeOrders) Get(_ context.Context, buyerID, orderDate string) (*services.OrderView, error) {
	return f.get(buyerID, orderDate)
}

func acceptOnly(valid string) func(string) (*services.Identity, error) {
	return func(token string) (*services.Identity, error) {
		if token != valid {
			return nil, common.ErrInvalidToken
		}
		return &services.Identity{UserID: "u1", Email: "a@b.co"}, nil
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AuthRateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, us *fakeUsers, ords *fakeOrders) http.Handler {
	t.Helper()
	if us == nil {
		us = &fakeUsers{}
	}
	if ords == nil {
		ords = &fakeOrders{}
	}
	return NewServer(cfg, us, ords, logging.NopLogger{}).Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func responseCookies(rr *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, testConfig(), nil, nil)
	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig(), nil, nil)
	do(t, h, http.MethodGet, "/health", nil)

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `bizledger_http_requests_total{method="GET",path="/health",status="200"}`)
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"ok", nil, http.StatusOK, "User signed up successfully"},
		{"invalid", common.NewValidationError("password", "must be at least 6 characters"), http.StatusBadRequest, "password must be at least 6 characters"},
		{"duplicate", common.ErrorAlreadyExists, http.StatusBadRequest, "User already exists"},
		{"storage", common.NewStorageError("create user", errors.New("pq: secret detail")), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got services.SignupInput
			us := &fakeUsers{signup: func(in services.SignupInput) error { got = in; return tt.err }}
			h := newTestServer(t, testConfig(), us, nil)

			rr := do(t, h, http.MethodPost, "/auth/signup", map[string]string{
				"email": "a@b.co", "password": "secret1", "name": "Ann",
			})

			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.message, decodeBody(t, rr)["message"])
			assert.NotContains(t, rr.Body.String(), "secret detail")
			assert.Equal(t, "Ann", got.Name)
		})
	}
}

func TestSignup_InvalidJSON(t *testing.T) {
	h := newTestServer(t, testConfig(), &fakeUsers{}, nil)
	rr := do(t, h, http.MethodPost, "/auth/signup", "{")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogin_SetsCookies(t *testing.T) {
	for _, production := range []bool{false, true} {
		cfg := testConfig()
		cfg.Production = production
		us := &fakeUsers{login: func(email, password string) (*services.TokenPair, error) {
			return &services.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, nil
		}}
		h := newTestServer(t, cfg, us, nil)

		rr := do(t, h, http.MethodPost, "/auth/login", loginRequest{Email: "a@b.co", Password: "secret1"})
		require.Equal(t, http.StatusOK, rr.Code)

		cookies := responseCookies(rr)
		require.Contains(t, cookies, accessCookie)
		require.Contains(t, cookies, refreshCookie)

		acc, ref := cookies[accessCookie], cookies[refreshCookie]
		assert.Equal(t, "acc", acc.Value)
		assert.Equal(t, "ref", ref.Value)
		for _, c := range []*http.Cookie{acc, ref} {
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
			assert.Equal(t, production, c.Secure)
		}
		assert.Equal(t, int((15 * time.Minute).Seconds()), acc.MaxAge)
		assert.Equal(t, int((168 * time.Hour).Seconds()), ref.MaxAge)
	}
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid email", common.ErrInvalidToken, http.StatusUnauthorized},
		{"bad credentials", common.ErrorBadCredentials, http.StatusBadRequest},
		{"storage", common.NewStorageError("find user", context.DeadlineExceeded), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			us := &fakeUsers{login: func(string, string) (*services.TokenPair, error) { return nil, tt.err }}
			h := newTestServer(t, testConfig(), us, nil)

			rr := do(t, h, http.MethodPost, "/auth/login", loginRequest{Email: "x", Password: "y"})
			assert.Equal(t, tt.code, rr.Code)
			assert.Empty(t, rr.Result().Cookies())
		})
	}
}

func TestCheck(t *testing.T) {
	us := &fakeUsers{check: acceptOnly("good")}
	h := newTestServer(t, testConfig(), us, nil)

	rr := do(t, h, http.MethodPost, "/auth/check", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/check", nil, &http.Cookie{Name: accessCookie, Value: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/check", nil, &http.Cookie{Name: accessCookie, Value: "good"})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, map[string]any{"id": "u1", "email": "a@b.co"}, body["user"])
}

func TestCheck_Expired(t *testing.T) {
	us := &fakeUsers{check: func(string) (*services.Identity, error) { return nil, common.ErrTokenExpired }}
	h := newTestServer(t, testConfig(), us, nil)

	rr := do(t, h, http.MethodPost, "/auth/check", nil, &http.Cookie{Name: accessCookie, Value: "old"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Token expired. Please login again.", decodeBody(t, rr)["message"])
}

func TestRefresh(t *testing.T) {
	us := &fakeUsers{refresh: func(token string) (*services.TokenPair, error) {
		switch token {
		case "current":
			return &services.TokenPair{AccessToken: "acc2", RefreshToken: "ref2"}, nil
		case "broken-store":
			return nil, common.NewStorageError("rotate refresh token", errors.New("conn refused"))
		default:
			return nil, common.ErrStaleToken
		}
	}}
	h := newTestServer(t, testConfig(), us, nil)

	rr := do(t, h, http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: refreshCookie, Value: "old"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: refreshCookie, Value: "broken-store"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/refresh", nil, &http.Cookie{Name: refreshCookie, Value: "current"})
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := responseCookies(rr)
	assert.Equal(t, "acc2", cookies[accessCookie].Value)
	assert.Equal(t, "ref2", cookies[refreshCookie].Value)
}

func TestLogout(t *testing.T) {
	us := &fakeUsers{logout: func(token string) error {
		switch token {
		case "valid":
			return nil
		case "expired":
			return common.ErrTokenExpired
		default:
			return common.ErrInvalidToken
		}
	}}
	h := newTestServer(t, testConfig(), us, nil)

	rr := do(t, h, http.MethodPost, "/auth/logout", nil, &http.Cookie{Name: refreshCookie, Value: "expired"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Session expired", decodeBody(t, rr)["message"])

	rr = do(t, h, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Token is not valid", decodeBody(t, rr)["message"])

	rr = do(t, h, http.MethodPost, "/auth/logout", nil, &http.Cookie{Name: refreshCookie, Value: "valid"})
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := responseCookies(rr)
	for _, name := range []string{accessCookie, refreshCookie} {
		require.Contains(t, cookies, name)
		assert.Empty(t, cookies[name].Value)
		assert.Negative(t, cookies[name].MaxAge)
	}
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 0.001
	cfg.AuthRateBurst = 2
	us := &fakeUsers{check: acceptOnly("good")}
	h := newTestServer(t, cfg, us, nil)

	for i := 0; i < 2; i++ {
		rr := do(t, h, http.MethodPost, "/auth/check", nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := do(t, h, http.MethodPost, "/auth/check", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// other endpoints are not limited
	rr = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiter_PerAddress(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 1, func() time.Time { return now })

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestSubmitOrder_RequiresAccessCookie(t *testing.T) {
	ords := &fakeOrders{}
	us := &fakeUsers{check: acceptOnly("good")}
	h := newTestServer(t, testConfig(), us, ords)

	rr := do(t, h, http.MethodPost, "/sales/orders", map[string]any{"buyer_id": "b1"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/sales/orders", map[string]any{"buyer_id": "b1"}, &http.Cookie{Name: accessCookie, Value: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, ords.submitted)
}

func TestSubmitOrder(t *testing.T) {
	ords := &fakeOrders{submit: func(in services.OrderInput) (*services.OrderResult, error) {
		return &services.OrderResult{OrderID: "o1", Created: true}, nil
	}}
	us := &fakeUsers{check: acceptOnly("good")}
	h := newTestServer(t, testConfig(), us, ords)
	auth := &http.Cookie{Name: accessCookie, Value: "good"}

	rr := do(t, h, http.MethodPost, "/sales/orders", `{
		"buyer_id": "b1",
		"order_date": "2024-05-01",
		"items_missing_rate_count": 3,
		"items": [{"item_name": "rice", "quantity": 2, "unit_price": 50, "item_weight": 25}]
	}`, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "Sales order created successfully", body["message"])
	assert.Equal(t, "o1", body["order_id"])

	rr = do(t, h, http.MethodPost, "/sales/orders", `{
		"buyer_id": "b1",
		"total_amount": 100,
		"sales_order_items": {"data": [{"item_name": "rice", "quantity": 2, "unit_price": 50}]}
	}`, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	require.Len(t, ords.submitted, 2)
	first := ords.submitted[0]
	assert.Equal(t, "b1", first.BuyerID)
	assert.Equal(t, 3, first.ItemsMissingRateCount)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 25.0, first.Items[0].ItemWeight)

	nested := ords.submitted[1]
	require.Len(t, nested.Items, 1)
	assert.Equal(t, "rice", nested.Items[0].ItemName)
	require.NotNil(t, nested.TotalAmount)
	assert.Equal(t, 100.0, *nested.TotalAmount)
}

func TestSubmitOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want map[string]any
	}{
		{
			name: "validation",
			err:  common.NewValidationError("buyer_id", "is required"),
			code: http.StatusBadRequest,
			want: map[string]any{"message": "buyer_id is required"},
		},
		{
			name: "storage",
			err:  common.NewStorageError("update sales order header", errors.New("pq: relation missing")),
			code: http.StatusInternalServerError,
			want: map[string]any{"message": "Internal server error"},
		},
		{
			name: "compensation",
			err: &common.CompensationError{
				OrderID: "o1", Cause: errors.New("insert failed"), RollbackErr: errors.New("update failed"),
			},
			code: http.StatusInternalServerError,
			want: map[string]any{
				"message": "Order was not saved and its total could not be restored",
				"code":    codeCompensationFailed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ords := &fakeOrders{submit: func(services.OrderInput) (*services.OrderResult, error) { return nil, tt.err }}
			us := &fakeUsers{check: acceptOnly("good")}
			h := newTestServer(t, testConfig(), us, ords)

			rr := do(t, h, http.MethodPost, "/sales/orders", map[string]any{"buyer_id": "b1"},
				&http.Cookie{Name: accessCookie, Value: "good"})

			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.want, decodeBody(t, rr))
		})
	}
}

func TestGetOrder(t *testing.T) {
	ords := &fakeOrders{get: func(buyerID, orderDate string) (*services.OrderView, error) {
		if buyerID != "b1" || orderDate != "2024-05-01" {
			return nil, common.ErrorNotFound
		}
		return &services.OrderView{
			Order: models.SalesOrder{ID: "o1", BuyerID: "b1", OrderDate: "2024-05-01", TotalAmount: 800, ItemsMissingRateCount: 1},
			Items: []models.SalesOrderItem{{ID: "i1", ItemName: "rice", Quantity: 2, UnitPrice: 400}},
		}, nil
	}}
	us := &fakeUsers{check: acceptOnly("good")}
	h := newTestServer(t, testConfig(), us, ords)
	auth := &http.Cookie{Name: accessCookie, Value: "good"}

	rr := do(t, h, http.MethodGet, "/sales/orders/b1/2024-05-01", nil, auth)
	require.Equal(t, http.StatusOK, rr.Code)

	var got orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "o1", got.ID)
	assert.Equal(t, 800.0, got.TotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "rice", got.Items[0].ItemName)

	rr = do(t, h, http.MethodGet, "/sales/orders/b1/2024-05-02", nil, auth)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
