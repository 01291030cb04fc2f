// Package httpapi exposes the account and sales order operations over HTTP.
// Credentials travel in httpOnly cookies.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/metrics"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	"github.com/dmitrijs2005/bizledger/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// netListen is a test seam for net.Listen.
var netListen = net.Listen

const (
	maxRequestBytes = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// UserService is the account API the handlers need.
type UserService interface {
	Signup(ctx context.Context, in services.SignupInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.Identity, *services.TokenPair, error)
	Check(token string) (*services.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// OrderService is the sales order API the handlers need.
type OrderService interface {
	SubmitOrder(ctx context.Context, in services.OrderInput) (*services.OrderResult, error)
	Get(ctx context.Context, buyerID, orderDate string) (*services.OrderView, error)
}

type Server struct {
	address string
	users   UserService
	orders  OrderService
	cookies cookieJar
	limiter *rateLimiter
	logger  logging.Logger
}

func NewServer(cfg *config.Config, us UserService, ords OrderService, l logging.Logger) *Server {
	return &Server{
		address: cfg.EndpointAddrHTTP,
		users:   us,
		orders:  ords,
		cookies: cookieJar{
			secure:     cfg.Production,
			accessTTL:  cfg.AccessTokenValidityDuration,
			refreshTTL: cfg.RefreshTokenValidityDuration,
		},
		limiter: newRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst, time.Now),
		logger:  l.With("module", "http_server"),
	}
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(ar chi.Router) {
		ar.Use(s.limiter.Handler)
		ar.Post(common.SignupPath, s.handleSignup)
		ar.Post(common.LoginPath, s.handleLogin)
		ar.Post(common.CheckPath, s.handleCheck)
		ar.Post(common.RefreshPath, s.handleRefresh)
		ar.Post(common.LogoutPath, s.handleLogout)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireAccess)
		pr.Post(common.OrdersPath, s.handleSubmitOrder)
		pr.Get(common.OrdersPath+"/{buyerID}/{orderDate}", s.handleGetOrder)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := netListen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() {
		<-runCtx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		return err
	}

	return <-done
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

type messageResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
