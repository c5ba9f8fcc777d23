// Package auth issues and validates the HS256 tokens that identify a
// connection to the communication server.
package auth

import (
	"strings"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/golang-jwt/jwt/v5"
)

// ConnectionClaims is the JWT payload of a connection token. The subject
// carries the account.
type ConnectionClaims struct {
	SocialIDs []string `json:"social_ids,omitempty"`
	System    bool     `json:"system,omitempty"`
	jwt.RegisteredClaims
}

// ConnectionInfo converts the claims into the identity the pipeline acts on.
func (c ConnectionClaims) ConnectionInfo(sessionID string) communication.ConnectionInfo {
	socialIDs := make([]communication.SocialID, 0, len(c.SocialIDs))
	for _, value := range c.SocialIDs {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			socialIDs = append(socialIDs, communication.SocialID(trimmed))
		}
	}
	return communication.ConnectionInfo{
		SessionID: sessionID,
		Account:   communication.AccountID(strings.TrimSpace(c.Subject)),
		SocialIDs: socialIDs,
		IsSystem:  c.System,
	}
}
