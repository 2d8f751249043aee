package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour)

	token, err := issuer.SignAccess("user-1", 3)
	require.NoError(t, err)

	claims, err := issuer.Verify(token, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, Claims{UserID: "user-1", Version: 3, Kind: KindAccess}, claims)

	refresh, err := issuer.SignRefresh("user-1", 3)
	require.NoError(t, err)
	claims, err = issuer.Verify(refresh, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
}

func TestIssuer_KindsAreNotInterchangeable(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour)
	access, err := issuer.SignAccess("user-1", 0)
	require.NoError(t, err)
	refresh, err := issuer.SignRefresh("user-1", 0)
	require.NoError(t, err)

	_, err = issuer.Verify(access, KindRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = issuer.Verify(refresh, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Rejects(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour)
	token, err := issuer.SignAccess("user-1", 0)
	require.NoError(t, err)

	_, err = NewIssuer("other", time.Hour, time.Hour).Verify(token, KindAccess)
	assert.Error(t, err, "wrong secret")

	expired := NewIssuer("secret", time.Hour, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.SignAccess("user-1", 0)
	require.NoError(t, err)
	_, err = issuer.Verify(old, KindAccess)
	assert.Error(t, err, "expired")

	_, err = issuer.Verify("not-a-token", KindAccess)
	assert.Error(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"typ":           KindAccess,
		"token_version": 0,
		"exp":           time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = issuer.Verify(noUser, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noVersion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"typ":     KindAccess,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = issuer.Verify(noVersion, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
