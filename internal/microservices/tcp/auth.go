package tcp

import (
	"errors"

	"sidebridge/internal/bridge"
	"sidebridge/internal/middleware/auth"
)

var errUnauthorized = errors.New("Unauthorized")

// TokenValidator is satisfied by *auth.TokenService.
type TokenValidator interface {
	Validate(token string) (*auth.SenderClaims, error)
}

// authenticate resolves the sender for a frame. Without a validator every
// connection is trusted under its own ID. With one, the first valid token
// authenticates the connection and later frames may omit it.
func (c *ClientConnection) authenticate(frame Frame) (bridge.Sender, error) {
	validator := c.Manager.validator
	if validator == nil {
		return bridge.Sender{ID: c.ID, Surface: "tcp", Origin: c.conn.RemoteAddr().String()}, nil
	}

	if frame.Token != "" {
		claims, err := validator.Validate(frame.Token)
		if err != nil {
			return bridge.Sender{}, err
		}
		c.mu.Lock()
		c.sender = claims.ToSender()
		c.Authenticated = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Authenticated {
		return bridge.Sender{}, errUnauthorized
	}
	return c.sender, nil
}
