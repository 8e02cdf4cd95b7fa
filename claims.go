package vault

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the JWT payload for an authenticated session. Tokens
// are bound to the client address they were issued for.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

func (c *SessionClaims) GetUserID() string {
	return c.UserID
}

func (c *SessionClaims) GetUsername() string {
	return c.Username
}

func (c *SessionClaims) GetIPAddress() string {
	return c.IPAddress
}
