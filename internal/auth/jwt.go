package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingSubject = errors.New("token has no subject")

// Claims holds the typed JWT payload. The subject is the owner ID.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Owner identifies the authenticated caller.
type Owner struct {
	ID   string
	Name string
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a signed HS256 token for the owner.
func (m *Manager) GenerateToken(owner Owner) (string, error) {
	if owner.ID == "" {
		return "", ErrMissingSubject
	}
	now := m.now()
	claims := Claims{
		Name: owner.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken parses and validates a token string and returns its owner.
func (m *Manager) ValidateToken(t string) (Owner, error) {
	token, err := jwt.ParseWithClaims(t, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Owner{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Owner{}, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return Owner{}, ErrMissingSubject
	}

	return Owner{ID: claims.Subject, Name: claims.Name}, nil
}
