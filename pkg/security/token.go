package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Purpose restricts which operation may consume a token
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeVerifyAccount Purpose = "verify-account"
)

// ErrInvalidToken is returned for every token that can't be used, no matter
// if it was expired, tampered with, malformed or meant for something else
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 signed tokens. It holds no state
// besides the signing key so it's safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue creates a token for subject that expires after ttl
func (t *TokenCodec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("no token subject provided")
	}

	if purpose == "" {
		return "", errors.New("no token purpose provided")
	}

	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token, %w", err)
	}

	return signed, nil
}

// Verify checks the signature, expiry and purpose of a token and returns its
// subject. Callers only ever get ErrInvalidToken, the reason is logged.
func (t *TokenCodec) Verify(token string, expected Purpose) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)

	var claims Claims

	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		zap.L().Debug("Rejected token", zap.String("purpose", string(expected)), zap.Error(err))
		return "", ErrInvalidToken
	}

	if claims.Purpose != expected {
		zap.L().Debug("Rejected token with wrong purpose",
			zap.String("expected", string(expected)),
			zap.String("got", string(claims.Purpose)))
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		zap.L().Debug("Rejected token without subject", zap.String("purpose", string(expected)))
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
