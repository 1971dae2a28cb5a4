// Package token mints and verifies the HS256 bearer tokens used by the API.
//
// Verification is stateless: any process holding the same secret can verify
// a token, and the outcome depends only on the token, the secret and the
// manager's clock.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenMissing   = errors.New("token missing")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
)

const DefaultTTL = time.Hour

// Config holds the process-wide signing settings, loaded once at startup.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Claims is the payload carried by every token.
type Claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: cfg.Secret,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
		// claims are checked in Verify against m.now instead of the
		// library's global clock
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// WithClock returns a copy of the manager that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	clone := *m
	clone.now = now
	return &clone
}

// TTL reports how long issued tokens stay valid.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue returns a signed token for userID that expires after the configured TTL.
func (m *Manager) Issue(userID int) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the
// embedded user id.
func (m *Manager) Verify(tokenString string) (int, error) {
	if tokenString == "" {
		return 0, ErrTokenMissing
	}

	claims := &Claims{}
	parsed, err := m.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return 0, ErrTokenMalformed
		}
		return 0, ErrTokenInvalid
	}
	if !parsed.Valid {
		return 0, ErrTokenInvalid
	}

	if !claims.VerifyExpiresAt(m.now(), true) {
		return 0, ErrTokenExpired
	}
	if m.issuer != "" && !claims.VerifyIssuer(m.issuer, true) {
		return 0, ErrTokenInvalid
	}
	if claims.UserID <= 0 || claims.Subject != strconv.Itoa(claims.UserID) {
		return 0, ErrTokenInvalid
	}
	return claims.UserID, nil
}

// RandomSecret generates a 32-byte secret for processes started without one.
// Tokens signed with it do not survive a restart.
func RandomSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return secret, nil
}
