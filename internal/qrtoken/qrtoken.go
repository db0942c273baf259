// Package qrtoken issues and verifies the short-lived tokens shown as QR
// codes during a session. A token binds a session ID to one occurrence date.
package qrtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/rollcall/rollcall/internal/civiltime"
)

// Defaults for scan tokens.
const (
	DefaultTTL      = 2 * time.Minute
	DefaultAudience = "rollcall-scan"
	DefaultPNGSize  = 256
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid scan token")
	ErrTokenExpired = errors.New("scan token has expired")
)

// Claims are the contents of a scan token.
type Claims struct {
	jwt.RegisteredClaims

	SessionID string         `json:"sid"`
	Date      civiltime.Date `json:"date"`
}

// Token is an issued scan token.
type Token struct {
	Value     string
	SessionID string
	Date      civiltime.Date
	ExpiresAt time.Time
}

// Config holds configuration for the issuer.
type Config struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
	Clock      civiltime.Clock
}

// Issuer signs and verifies scan tokens.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    civiltime.Clock
}

// NewIssuer creates a scan token issuer.
func NewIssuer(cfg Config) *Issuer {
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = civiltime.SystemClock{}
	}
	return &Issuer{
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
	}
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the occurrence of sessionID on date.
func (i *Issuer) Issue(sessionID string, date civiltime.Date) (Token, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
		Date:      date,
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Token{}, fmt.Errorf("signing scan token: %w", err)
	}

	return Token{Value: value, SessionID: sessionID, Date: date, ExpiresAt: expiresAt}, nil
}

// Verify checks the signature, audience and expiry of value.
func (i *Issuer) Verify(value string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(value, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.Date.IsZero() {
		return nil, fmt.Errorf("%w: missing session or date", ErrInvalidToken)
	}
	return claims, nil
}

// PNG renders value as a QR code image of size pixels square.
func PNG(value string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	png, err := qrcode.Encode(value, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
