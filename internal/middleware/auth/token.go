// Package auth issues and validates the HS256 tokens surfaces present when
// they talk to the background over a network channel.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sidebridge/internal/bridge"
)

var ErrInvalidToken = errors.New("invalid token")

// SenderClaims carries the sender identity inside a token.
type SenderClaims struct {
	Surface string `json:"surface,omitempty"`
	Origin  string `json:"origin,omitempty"`
	TabID   int    `json:"tab_id,omitempty"`
	TabURL  string `json:"tab_url,omitempty"`
	jwt.RegisteredClaims
}

// ToSender converts the claims into the identity handed to the dispatcher.
func (c *SenderClaims) ToSender() bridge.Sender {
	s := bridge.Sender{ID: c.Subject, Surface: c.Surface, Origin: c.Origin}
	if c.TabID != 0 || c.TabURL != "" {
		s.Tab = &bridge.TabInfo{ID: c.TabID, URL: c.TabURL}
	}
	return s
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the sender. A zero ttl produces a token without expiry.
func (s *TokenService) Issue(sender bridge.Sender) (string, error) {
	now := s.now()
	claims := SenderClaims{
		Surface: sender.Surface,
		Origin:  sender.Origin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sender.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if sender.Tab != nil {
		claims.TabID = sender.Tab.ID
		claims.TabURL = sender.Tab.URL
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses the token and returns its claims. Every failure wraps ErrInvalidToken.
func (s *TokenService) Validate(tokenString string) (*SenderClaims, error) {
	claims := &SenderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
