// This file implements UserService: signup, login, check, refresh and logout.
package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/dbx"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/metrics"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// SignupInput is the signup form. Name, Surname and Gender are optional.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=100"`
	Surname  string `json:"surname" validate:"max=100"`
	Gender   string `json:"gender" validate:"max=20"`
}

// UserService provides account operations on top of CredentialService.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	credentials *CredentialService
	validate    *validator.Validate
	hashCost    int
	dummyHash   []byte
	callTimeout time.Duration
	logger      logging.Logger
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, creds *CredentialService, cfg *config.Config, logger logging.Logger) (*UserService, error) {
	cost := cfg.PasswordHashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	// compared against for unknown users so that timing does not reveal
	// whether an account exists
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		return nil, err
	}

	return &UserService{
		db:          db,
		repomanager: m,
		credentials: creds,
		validate:    newValidator(),
		hashCost:    cost,
		dummyHash:   dummy,
		callTimeout: cfg.StoreCallTimeout,
		logger:      logger.With("module", "users"),
	}, nil
}

// Signup creates a user with a bcrypt-hashed password.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		Surname:      in.Surname,
		Gender:       in.Gender,
		PasswordHash: hash,
	}

	var created *models.User
	err = dbx.Call(ctx, s.callTimeout, "create user", func(ctx context.Context) error {
		var err error
		created, err = s.repomanager.Users(s.db).Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user signed up", "user_id", created.ID)
	return created, nil
}

// Login verifies the password and starts a new session chain. A malformed
// email is rejected with common.ErrInvalidToken before any lookup.
func (s *UserService) Login(ctx context.Context, email, password string) (*Identity, *TokenPair, error) {
	if err := s.validate.Var(email, "required,email"); err != nil {
		metrics.RecordLogin("invalid")
		return nil, nil, common.ErrInvalidToken
	}

	var user *models.User
	err := dbx.Call(ctx, s.callTimeout, "find user", func(ctx context.Context) error {
		var err error
		user, err = s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			metrics.RecordLogin("bad_credentials")
			return nil, nil, common.ErrorBadCredentials
		}
		metrics.RecordLogin("error")
		return nil, nil, err
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		metrics.RecordLogin("bad_credentials")
		return nil, nil, common.ErrorBadCredentials
	}

	id := &Identity{UserID: user.ID, Email: user.Email}
	pair, err := s.credentials.IssuePair(ctx, *id)
	if err != nil {
		metrics.RecordLogin("error")
		return nil, nil, err
	}

	metrics.RecordLogin("ok")
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return id, pair, nil
}

// Check returns the identity carried by a valid access token.
func (s *UserService) Check(token string) (*Identity, error) {
	return s.credentials.VerifyAccess(token)
}

// Refresh rotates the refresh token.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.credentials.Rotate(ctx, refreshToken)
}

// Logout revokes every refresh token of the holder of refreshToken. The
// token must be a validly signed, unexpired refresh token.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	id, err := s.credentials.ParseRefresh(refreshToken)
	if err != nil {
		return err
	}
	if err := s.credentials.RevokeAll(ctx, id.UserID); err != nil {
		return err
	}
	s.logger.Info(ctx, "user logged out", "user_id", id.UserID)
	return nil
}
