package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("token invalid")

// Token kinds. A refresh token is only accepted where a refresh token is
// expected, and the other way round.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is what a verified token says about its holder. Version is the
// user's token version at signing time; bumping it revokes older tokens.
type Claims struct {
	UserID  string
	Version uint64
	Kind    string
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *Issuer) SignAccess(userID string, version uint64) (string, error) {
	return i.sign(userID, version, KindAccess, i.accessTTL)
}

func (i *Issuer) SignRefresh(userID string, version uint64) (string, error) {
	return i.sign(userID, version, KindRefresh, i.refreshTTL)
}

// RefreshTTL is how long refresh tokens stay valid.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) sign(userID string, version uint64, kind string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":       userID,
		"token_version": version,
		"typ":           kind,
		"exp":           i.now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses tokenString and checks that it is a token of the given kind.
func (i *Issuer) Verify(tokenString, kind string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	userID, ok := mapClaims["user_id"].(string)
	if !ok || userID == "" {
		return Claims{}, ErrInvalidToken
	}
	if typ, _ := mapClaims["typ"].(string); typ != kind {
		return Claims{}, ErrInvalidToken
	}
	// JSON numbers decode as float64.
	version, ok := mapClaims["token_version"].(float64)
	if !ok || version < 0 {
		return Claims{}, ErrInvalidToken
	}

	return Claims{UserID: userID, Version: uint64(version), Kind: kind}, nil
}
