// Package auth holds the credential primitives of the service: the signed
// access token codec, opaque refresh token generation and password hashing.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/movielist/apiserver/types"
)

var (
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
)

// Principal is the identity carried by an access token.
type Principal struct {
	UserID   int
	Username string
	Role     types.Role
}

// TokenConfig configures a TokenCodec. Secret is required.
type TokenConfig struct {
	Secret string
	Issuer string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type accessClaims struct {
	Username string     `json:"usr,omitempty"`
	Role     types.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token secret is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// Issue mints a token for p that expires ttl from now. A negative ttl yields
// an already expired token.
func (c *TokenCodec) Issue(p Principal, ttl time.Duration) (string, error) {
	if p.UserID < 1 {
		return "", errors.New("principal user id is required")
	}
	now := c.now()
	claims := accessClaims{
		Username: p.Username,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(p.UserID),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks signature and expiry and returns the embedded principal.
// Errors are ErrTokenMalformed, ErrTokenExpired or ErrInvalidSignature.
func (c *TokenCodec) Verify(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Principal{}, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Principal{}, ErrTokenExpired
		default:
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !token.Valid {
		return Principal{}, ErrTokenMalformed
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return Principal{}, fmt.Errorf("%w: invalid subject", ErrTokenMalformed)
	}
	if !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: invalid role", ErrTokenMalformed)
	}

	return Principal{
		UserID:   userID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}
