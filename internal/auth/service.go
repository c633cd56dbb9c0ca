// Package auth is the caller-identity layer: accounts map a login to a
// chain identity (the address every ledger operation is keyed by), and
// JWTs carry that address to the gateway.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrAddressExists   = errors.New("address already registered")
	ErrInvalidToken    = errors.New("invalid token")
)

// Service issues and verifies identity tokens backed by a postgres
// account store.
type Service struct {
	db        *sql.DB
	jwtSecret string
	tokenTTL  time.Duration
}

// Account is a registered caller.
type Account struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Claims are the JWT claims carried by every authenticated request.
// Address is the chain identity.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// NewService creates an auth service. tokenTTL of zero defaults to 24h.
func NewService(db *sql.DB, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		db:        db,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// Register creates an account for address. Addresses are unique.
func (s *Service) Register(ctx context.Context, address, password string) (*Account, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE address = $1)", address).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check address: %w", err)
	}
	if exists {
		return nil, ErrAddressExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		ID:        uuid.New().String(),
		Address:   address,
		CreatedAt: time.Now(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, address, password_hash, created_at) VALUES ($1, $2, $3, $4)",
		account.ID, account.Address, string(hash), account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// Login checks the password for address and returns a signed token.
func (s *Service) Login(ctx context.Context, address, password string) (string, error) {
	var storedHash string
	err := s.db.QueryRowContext(ctx,
		"SELECT password_hash FROM accounts WHERE address = $1", address).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) != nil {
		return "", ErrInvalidPassword
	}
	return s.IssueToken(address)
}

// IssueToken signs a token whose claims carry address.
func (s *Service) IssueToken(address string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken parses tokenString (with or without a "Bearer " prefix)
// and returns its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Address == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
