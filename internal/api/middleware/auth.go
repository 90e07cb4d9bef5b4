package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/repositories"
)

// APIKeyPrefix marks bearer credentials that are API keys rather than JWTs.
const APIKeyPrefix = "tfw_"

type AuthMiddleware struct {
	tokenSvc *auth.TokenService
	apiKeys  *repositories.APIKeyRepository
	profiles *repositories.ProfileRepository
}

func NewAuthMiddleware(tokenSvc *auth.TokenService, apiKeys *repositories.APIKeyRepository, profiles *repositories.ProfileRepository) *AuthMiddleware {
	return &AuthMiddleware{
		tokenSvc: tokenSvc,
		apiKeys:  apiKeys,
		profiles: profiles,
	}
}

func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		var claims *auth.Claims
		var err error
		if strings.HasPrefix(parts[1], APIKeyPrefix) {
			claims, err = m.authenticateAPIKey(parts[1])
		} else {
			claims, err = m.tokenSvc.ValidateToken(parts[1])
		}
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}

// authenticateAPIKey resolves an API key to the claims of the profile that
// created it. Revoked and expired keys are rejected.
func (m *AuthMiddleware) authenticateAPIKey(rawKey string) (*auth.Claims, error) {
	hash := sha256.Sum256([]byte(rawKey))
	key, err := m.apiKeys.GetByHash(hex.EncodeToString(hash[:]))
	if err != nil {
		return nil, err
	}
	if key == nil || key.RevokedAt != nil {
		return nil, auth.ErrInvalidToken
	}
	if key.ExpiresAt != nil && *key.ExpiresAt < time.Now().Unix() {
		return nil, auth.ErrInvalidToken
	}

	profile, err := m.profiles.GetByID(key.ProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, auth.ErrInvalidToken
	}

	m.apiKeys.UpdateLastUsed(key.ID)

	return &auth.Claims{
		UserID:         profile.ID,
		OrganizationID: key.OrganizationID,
		Role:           profile.Role,
		Email:          profile.Email,
	}, nil
}
