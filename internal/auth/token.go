// Package auth issues and verifies the service's JWTs: bearer access tokens and short-lived
// password reset tokens.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const (
	defaultTTL      = 24 * time.Hour
	defaultResetTTL = 10 * time.Minute
	issuer          = "microblog"
)

// resetClaims carries the user id in reset_password, never in sub, so a reset token cannot
// be used as an access token.
type resetClaims struct {
	ResetPassword uint `json:"reset_password"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret   []byte
	ttl      time.Duration
	resetTTL time.Duration
	now      func() time.Time
}

func NewTokenService(secret string, ttl, resetTTL time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, resetTTL: resetTTL, now: time.Now}
}

// Issue returns an HS256 access token for userID.
func (s *TokenService) Issue(userID uint) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the user id of a valid access token.
func (s *TokenService) Verify(token string) (uint, error) {
	var claims jwt.RegisteredClaims
	if _, err := s.parse(token, &claims); err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// IssueReset returns a password reset token valid for the reset TTL.
func (s *TokenService) IssueReset(userID uint) (string, error) {
	now := s.now()
	claims := resetClaims{
		ResetPassword: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyReset returns the user id a reset token was issued for.
func (s *TokenService) VerifyReset(token string) (uint, error) {
	var claims resetClaims
	if _, err := s.parse(token, &claims); err != nil {
		return 0, err
	}
	if claims.ResetPassword == 0 {
		return 0, ErrInvalidToken
	}
	return claims.ResetPassword, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims) (*jwt.Token, error) {
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return t, nil
}
