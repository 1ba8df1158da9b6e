// internal/auth/auth.go
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
)

// Roles offered at the access gate.
const (
	RoleEditor = "교역자"
	RoleViewer = "미디어부"
)

// Positions are the selectable author positions.
var Positions = []string{"원로목사", "담임목사", "부목사", "강도사", "전도사", "미디어부"}

// CanEdit reports whether role may change a storyboard.
func CanEdit(role string) bool {
	return role == RoleEditor
}

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Claims identify the in-memory session a token belongs to.
type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	CanEdit   bool   `json:"can_edit"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for sessionID.
func GenerateToken(sessionID, role string, config *TokenConfig) (string, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Role:      role,
		CanEdit:   CanEdit(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.Expiration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(config.Secret)
}

// ParseToken verifies the signature and expiry of tokenString.
func ParseToken(tokenString string, config *TokenConfig) (*Claims, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return config.Secret, nil
	})
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid token", err)
	}
	if !t.Valid || claims.SessionID == "" {
		return nil, apperrors.NewUnauthorizedError("invalid token", nil)
	}
	return claims, nil
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Credentials are what the access gate asks for.
type Credentials struct {
	Role       string `json:"role"`
	UserName   string `json:"user_name"`
	Position   string `json:"position"`
	AccessCode string `json:"access_code"`
}

// AccessGate checks the shared access code. Only its bcrypt hash is kept.
type AccessGate struct {
	hash []byte
}

// NewAccessGate hashes code.
func NewAccessGate(code string) (*AccessGate, error) {
	if code == "" {
		return nil, fmt.Errorf("access code must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash access code: %w", err)
	}
	return &AccessGate{hash: hash}, nil
}

// Admit validates creds and reports whether the holder may edit.
// Name and position are optional.
func (g *AccessGate) Admit(creds Credentials) (bool, error) {
	role := strings.TrimSpace(creds.Role)
	if role != RoleEditor && role != RoleViewer {
		return false, apperrors.NewValidationError("role", fmt.Sprintf("role must be %s or %s", RoleEditor, RoleViewer), nil)
	}
	if p := strings.TrimSpace(creds.Position); p != "" && !validPosition(p) {
		return false, apperrors.NewValidationError("position", fmt.Sprintf("unknown position %q", p), nil)
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(creds.AccessCode)); err != nil {
		return false, apperrors.NewUnauthorizedError("access code is incorrect", nil)
	}
	return CanEdit(role), nil
}

func validPosition(p string) bool {
	for _, known := range Positions {
		if known == p {
			return true
		}
	}
	return false
}
