// Package sharetoken signs and verifies the tokens embedded in public share links.
package sharetoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "campuscal"

var (
	ErrTokenExpired = errors.New("share token has expired")
	ErrTokenInvalid = errors.New("share token is invalid")
)

// Claims identify one issued share link. The registered ID (jti) names the
// share_tokens row that can revoke it.
type Claims struct {
	CalendarID string `json:"cal"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HS256 share tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Mint issues a token for calendarID valid for ttl. It returns the token ID
// and expiry alongside the signed string so callers can persist them.
func (s *Signer) Mint(calendarID string, ttl time.Duration) (token, id string, expiresAt time.Time, err error) {
	now := s.now()
	id = uuid.NewString()
	expiresAt = now.Add(ttl)
	claims := Claims{
		CalendarID: calendarID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			Subject:   calendarID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, id, expiresAt, nil
}

// Parse verifies the signature and expiry of token and returns its claims.
func (s *Signer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" || claims.CalendarID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
