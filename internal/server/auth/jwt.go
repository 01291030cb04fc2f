// Package auth signs and verifies the JWTs handed out as session credentials.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenUse tells access and refresh tokens apart, so that one can never be
// replayed as the other even if both kinds share a signing key.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// Claims are the registered claims plus the identity of the session owner.
// RegisteredClaims.ID (jti) is random per token, so two tokens minted for
// the same user in the same second still differ.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Use    TokenUse `json:"use"`
}

// Codec mints and parses one kind of token with one HS256 key.
type Codec struct {
	secret   []byte
	validity time.Duration
	use      TokenUse
	now      func() time.Time
}

// NewCodec returns a Codec. now may be nil, in which case time.Now is used.
func NewCodec(use TokenUse, secret []byte, validity time.Duration, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, validity: validity, use: use, now: now}
}

// Validity is how long a freshly minted token lives.
func (c *Codec) Validity() time.Duration {
	return c.validity
}

// Generate signs a new token for the user and returns it together with the
// claims it carries.
func (c *Codec) Generate(userID, email string) (string, *Claims, error) {
	issued := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(c.validity)),
		},
		UserID: userID,
		Email:  email,
		Use:    c.use,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}

	return tokenString, claims, nil
}

// Parse verifies signature, algorithm, expiry and token use. A token is
// expired from the instant its exp is reached. Expiry is reported as
// common.ErrTokenExpired, every other failure as common.ErrInvalidToken.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, common.ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Use != c.use || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
