package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	clock := newClock()
	c := NewCodec(UseAccess, []byte("super-secret"), 15*time.Minute, clock.Now)

	tok, claims, err := c.Generate("user-123", "a@b.co")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clock.t.Add(15*time.Minute), claims.ExpiresAt.Time.UTC())

	got, err := c.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.UserID)
	assert.Equal(t, "a@b.co", got.Email)
	assert.Equal(t, UseAccess, got.Use)
	assert.Equal(t, claims.ID, got.ID)
}

func TestGenerate_TokensDifferWithinSameSecond(t *testing.T) {
	t.Parallel()

	c := NewCodec(UseRefresh, []byte("k"), time.Hour, newClock().Now)
	a, _, err := c.Generate("u1", "e")
	require.NoError(t, err)
	b, _, err := c.Generate("u1", "e")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParse_ExpiryBoundary(t *testing.T) {
	t.Parallel()

	clock := newClock()
	c := NewCodec(UseAccess, []byte("k"), 15*time.Minute, clock.Now)
	tok, _, err := c.Generate("u1", "e")
	require.NoError(t, err)

	clock.t = clock.t.Add(15*time.Minute - time.Second)
	_, err = c.Parse(tok)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Second)
	_, err = c.Parse(tok)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, _, err := NewCodec(UseAccess, []byte("right-secret"), time.Hour, nil).Generate("u2", "e")
	require.NoError(t, err)

	_, err = NewCodec(UseAccess, []byte("wrong-secret"), time.Hour, nil).Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_WrongUse(t *testing.T) {
	t.Parallel()

	secret := []byte("shared")
	tok, _, err := NewCodec(UseRefresh, secret, time.Hour, nil).Generate("u3", "e")
	require.NoError(t, err)

	_, err = NewCodec(UseAccess, secret, time.Hour, nil).Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u4",
		Use:              UseAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = NewCodec(UseAccess, []byte("k"), time.Hour, nil).Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_MissingExpiry(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "u5", Use: UseAccess}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = NewCodec(UseAccess, []byte("k"), time.Hour, nil).Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_MalformedAndEmpty(t *testing.T) {
	t.Parallel()

	c := NewCodec(UseAccess, []byte("k"), time.Hour, nil)
	for _, tok := range []string{"", "not.a.jwt", "garbage"} {
		_, err := c.Parse(tok)
		require.ErrorIs(t, err, common.ErrInvalidToken, "token %q", tok)
	}
}
