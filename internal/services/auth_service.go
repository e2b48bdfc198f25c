package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/0xabdo/the-market/internal/config"
	"github.com/0xabdo/the-market/internal/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims carried by admin tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies admin tokens for the security query
// surface. Credentials come from configuration; the password is hashed
// once at construction and the plaintext is never kept.
type AuthService struct {
	username string
	passHash []byte
	secret   []byte
	expiry   time.Duration
}

// NewAuthService builds the admin auth service. With no admin password
// configured, login always fails and the admin surface stays locked.
// With no signing secret configured a random one is generated, which
// invalidates outstanding tokens on restart.
func NewAuthService(cfg config.Config) (*AuthService, error) {
	s := &AuthService{
		username: cfg.AdminUser,
		expiry:   cfg.TokenExpiry,
	}

	if cfg.AdminPass != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPass), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		s.passHash = hash
	}

	if cfg.JWTSecret != "" {
		s.secret = []byte(cfg.JWTSecret)
	} else {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
		s.secret = []byte(hex.EncodeToString(buf))
		logger.Log().Warn("MARKET_JWT_SECRET not set, using a random secret; admin sessions reset on restart")
	}

	return s, nil
}

// Login verifies admin credentials and issues a signed token.
func (s *AuthService) Login(username, password string) (string, error) {
	if s.passHash == nil || username != s.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken verifies a token and returns its claims.
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
