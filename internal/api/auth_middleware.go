// internal/api/auth_middleware.go
package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ch2church/worship-storyboard/internal/auth"
	"github.com/ch2church/worship-storyboard/internal/config"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

const (
	sessionIDKey = "session_id"
	canEditKey   = "can_edit"

	tokenLifetime = 12 * time.Hour
	devSecret     = "dev_auth_key_for_testing_purposes_only_"
)

// NewTokenConfig derives the signing key from AUTH_SECRET_KEY. Without one,
// debug mode uses a fixed key so tokens survive restarts and production
// mode generates a random key.
func NewTokenConfig(cfg *config.Config) (*auth.TokenConfig, error) {
	var secret []byte
	switch {
	case cfg.AuthSecretKey != "":
		secret = []byte(cfg.AuthSecretKey)
	case cfg.DebugMode:
		secret = []byte(devSecret)
		utils.GetLogger().Warn("using the fixed development signing key; set AUTH_SECRET_KEY in production", nil)
	default:
		key, err := auth.GenerateSecureKey(32)
		if err != nil {
			return nil, err
		}
		secret = key
	}

	if len(secret) < 32 {
		padded := make([]byte, 32)
		copy(padded, secret)
		secret = padded
	}
	return &auth.TokenConfig{Secret: secret, Expiration: tokenLifetime}, nil
}

// AuthMiddleware requires a valid session token. Browsers cannot set headers
// on websocket upgrades, so a token query parameter is accepted as well.
func AuthMiddleware(tokens *auth.TokenConfig) gin.HandlerFunc {
	response := NewResponseHelper()
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			response.Unauthorized(c, "login required")
			return
		}

		claims, err := auth.ParseToken(token, tokens)
		if err != nil {
			response.AppError(c, err)
			return
		}

		c.Set(sessionIDKey, claims.SessionID)
		c.Set(canEditKey, claims.CanEdit)
		c.Next()
	}
}

// sessionID returns the session the request's token names.
func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
