package auth

import (
	"errors"
	"fmt"
	"time"

	domainerrors "taskflow/internal/domain/errors"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims carries the identity of a session. Subject duplicates UserID.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Identity is the verified caller of a request.
type Identity struct {
	UserID string
	Email  string
}

// TokenCodec issues and verifies HS256 session tokens. It holds no state
// besides the secret, so one instance is shared by all requests.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the given user and returns it with its expiry.
func (c *TokenCodec) Issue(userID, email string) (string, time.Time, error) {
	issuedAt := c.now()
	expiresAt := issuedAt.Add(c.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Email:  email,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. It returns ErrExpiredToken when only
// the expiry check failed and ErrInvalidToken for anything else.
func (c *TokenCodec) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %v", domainerrors.ErrExpiredToken, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" || claims.UserID != claims.Subject {
		return Identity{}, domainerrors.ErrInvalidToken
	}

	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
