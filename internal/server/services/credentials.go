// Package services contains server-side business logic. This file implements
// CredentialService, which issues, verifies, rotates and revokes session
// credentials.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/dbx"
	"github.com/dmitrijs2005/bizledger/internal/logging"
	"github.com/dmitrijs2005/bizledger/internal/server/auth"
	"github.com/dmitrijs2005/bizledger/internal/server/config"
	"github.com/dmitrijs2005/bizledger/internal/server/metrics"
	"github.com/dmitrijs2005/bizledger/internal/server/models"
	"github.com/dmitrijs2005/bizledger/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is what an accepted credential says about its holder.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// CredentialService mints access tokens (never stored) and refresh tokens
// (stored by digest, exactly one current per user).
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	access      *auth.Codec
	refresh     *auth.Codec
	callTimeout time.Duration
	now         func() time.Time
	logger      logging.Logger
}

// NewCredentialService constructs a CredentialService from server config.
// now may be nil, in which case time.Now is used.
func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, now func() time.Time, logger logging.Logger) *CredentialService {
	if now == nil {
		now = time.Now
	}
	return &CredentialService{
		db:          db,
		repomanager: m,
		access:      auth.NewCodec(auth.UseAccess, []byte(cfg.AccessTokenSecret), cfg.AccessTokenValidityDuration, now),
		refresh:     auth.NewCodec(auth.UseRefresh, []byte(cfg.RefreshTokenSecret), cfg.RefreshTokenValidityDuration, now),
		callTimeout: cfg.StoreCallTimeout,
		now:         now,
		logger:      logger.With("module", "credentials"),
	}
}

// IssueAccess signs an access token for the identity.
func (s *CredentialService) IssueAccess(id Identity) (string, error) {
	token, _, err := s.access.Generate(id.UserID, id.Email)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// IssueRefresh signs a refresh token, stores its record through tx and makes
// it the user's current one. No token is returned unless both writes succeed.
func (s *CredentialService) IssueRefresh(ctx context.Context, id Identity, tx dbx.DBTX) (string, error) {
	token, rec, err := s.newRefreshRecord(id)
	if err != nil {
		return "", err
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, rec); err != nil {
		return "", err
	}
	current, err := s.repomanager.Users(tx).LockCurrentRefreshToken(ctx, id.UserID)
	if err != nil {
		return "", err
	}
	swapped, err := s.repomanager.Users(tx).SwapCurrentRefreshToken(ctx, id.UserID, current, rec.ID)
	if err != nil {
		return "", err
	}
	if !swapped {
		return "", common.ErrStaleToken
	}
	return token, nil
}

// VerifyAccess checks an access token without touching the store.
func (s *CredentialService) VerifyAccess(token string) (*Identity, error) {
	claims, err := s.access.Parse(token)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// IssuePair starts a new session chain for the user, superseding any
// previous refresh token.
func (s *CredentialService) IssuePair(ctx context.Context, id Identity) (*TokenPair, error) {
	access, err := s.IssueAccess(id)
	if err != nil {
		return nil, err
	}

	var refresh string
	err = dbx.Call(ctx, s.callTimeout, "issue refresh token", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			refresh, err = s.IssueRefresh(ctx, id, tx)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate exchanges the presented refresh token for a new pair. The presented
// token must be the user's current one. The check and the swap happen under
// the user's row lock, so of two concurrent rotations with the same token
// exactly one wins and the other gets common.ErrStaleToken.
func (s *CredentialService) Rotate(ctx context.Context, presented string) (*TokenPair, error) {
	claims, err := s.refresh.Parse(presented)
	if err != nil {
		metrics.RecordRotation(rotationResult(err))
		return nil, err
	}
	id := Identity{UserID: claims.UserID, Email: claims.Email}

	var pair *TokenPair
	err = dbx.Call(ctx, s.callTimeout, "rotate refresh token", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			users := s.repomanager.Users(tx)

			currentID, err := users.LockCurrentRefreshToken(ctx, id.UserID)
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrStaleToken
			}
			if err != nil {
				return err
			}
			if currentID == "" {
				return common.ErrStaleToken
			}

			current, err := s.repomanager.RefreshTokens(tx).Find(ctx, currentID)
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrStaleToken
			}
			if err != nil {
				return err
			}
			if subtle.ConstantTimeCompare([]byte(current.TokenHash), []byte(common.HashToken(presented))) != 1 {
				return common.ErrStaleToken
			}

			token, rec, err := s.newRefreshRecord(id)
			if err != nil {
				return err
			}
			if err := s.repomanager.RefreshTokens(tx).Create(ctx, rec); err != nil {
				return err
			}
			swapped, err := users.SwapCurrentRefreshToken(ctx, id.UserID, currentID, rec.ID)
			if err != nil {
				return err
			}
			if !swapped {
				return common.ErrStaleToken
			}

			access, err := s.IssueAccess(id)
			if err != nil {
				return err
			}
			pair = &TokenPair{AccessToken: access, RefreshToken: token}
			return nil
		})
	})

	metrics.RecordRotation(rotationResult(err))
	if err != nil {
		if errors.Is(err, common.ErrStaleToken) {
			s.logger.Warn(ctx, "stale refresh token presented", "user_id", id.UserID, "jti", claims.ID)
		}
		return nil, err
	}

	return pair, nil
}

// RevokeAll deletes every refresh token of the user. Rotation fails with
// common.ErrStaleToken afterwards until the next login.
func (s *CredentialService) RevokeAll(ctx context.Context, userID string) error {
	var removed int64
	err := dbx.Call(ctx, s.callTimeout, "revoke refresh tokens", func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.repomanager.Users(tx).ClearCurrentRefreshToken(ctx, userID); err != nil {
				return err
			}
			var err error
			removed, err = s.repomanager.RefreshTokens(tx).DeleteAllForUser(ctx, userID)
			return err
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "refresh tokens revoked", "user_id", userID, "count", removed)
	return nil
}

// ParseRefresh checks a refresh token's signature and expiry only.
func (s *CredentialService) ParseRefresh(token string) (*Identity, error) {
	claims, err := s.refresh.Parse(token)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// AccessTTL and RefreshTTL are the lifetimes of freshly minted tokens.
func (s *CredentialService) AccessTTL() time.Duration  { return s.access.Validity() }
func (s *CredentialService) RefreshTTL() time.Duration { return s.refresh.Validity() }

func (s *CredentialService) newRefreshRecord(id Identity) (string, *models.RefreshToken, error) {
	token, claims, err := s.refresh.Generate(id.UserID, id.Email)
	if err != nil {
		return "", nil, common.ErrorInternal
	}
	return token, &models.RefreshToken{
		ID:        claims.ID,
		UserID:    id.UserID,
		TokenHash: common.HashToken(token),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func rotationResult(err error) string {
	var ae *common.AuthenticationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ae):
		return string(ae.Reason)
	default:
		return "error"
	}
}
