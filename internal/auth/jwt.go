// Package auth verifies the bearer tokens clients present in JOIN_MATCH and
// the admin tokens the match-control API requires. Tokens are minted by an
// external identity service; Issue and IssueAdmin exist for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNotAdmin     = errors.New("admin role required")
)

// RoleAdmin marks tokens allowed to drive the match-control API.
const RoleAdmin = "admin"

type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return NewManagerWithClock(secret, ttl, clockwork.NewRealClock())
}

func NewManagerWithClock(secret string, ttl time.Duration, clock clockwork.Clock) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue signs an HS256 player token for userID.
func (m *Manager) Issue(userID string) (string, error) {
	return m.issue(userID, "")
}

// IssueAdmin signs a token carrying the admin role.
func (m *Manager) IssueAdmin(userID string) (string, error) {
	return m.issue(userID, RoleAdmin)
}

func (m *Manager) issue(userID, role string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidToken)
	}
	now := m.clock.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks the signature and expiry and returns the user id.
func (m *Manager) Verify(token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// VerifyAdmin is Verify plus a check for the admin role.
func (m *Manager) VerifyAdmin(token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}
	if claims.Role != RoleAdmin {
		return "", ErrNotAdmin
	}
	return claims.UserID, nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return m.secret, nil
		},
		jwt.WithTimeFunc(m.clock.Now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
