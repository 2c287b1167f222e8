// FILE: thermwatch/src/internal/sink/credential.go
package sink

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lixenwraith/log"
)

// CredentialInfo is what can be read from a store API key without verifying it
type CredentialInfo struct {
	Role      string
	ExpiresAt time.Time
}

// InspectCredential decodes a JWT-shaped API key. The signature is not
// checked; the store does that.
func InspectCredential(key string) (CredentialInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return CredentialInfo{}, fmt.Errorf("api key is not a JWT: %w", err)
	}

	var info CredentialInfo
	if role, ok := claims["role"].(string); ok {
		info.Role = role
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return CredentialInfo{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Expired reports whether the credential has an expiry before now
func (c CredentialInfo) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

func logCredential(key string, now time.Time, logger *log.Logger) {
	info, err := InspectCredential(key)
	if err != nil {
		logger.Debug("msg", "Store api key is opaque",
			"component", "rest_store",
			"error", err)
		return
	}

	if info.Expired(now) {
		logger.Warn("msg", "Store api key has expired, writes will likely be rejected",
			"component", "rest_store",
			"role", info.Role,
			"expires_at", info.ExpiresAt)
		return
	}

	logger.Info("msg", "Store api key inspected",
		"component", "rest_store",
		"role", info.Role,
		"expires_at", info.ExpiresAt)
}
