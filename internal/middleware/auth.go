package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserClaims are the fields the HOS service reads from an access token.
// Tokens are issued by the external auth service.
type UserClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

var errMissingClaim = errors.New("missing claim")

// ParseToken validates an HS256 token and extracts its claims
func ParseToken(tokenString, secret string) (UserClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return UserClaims{}, err
	}
	if !token.Valid {
		return UserClaims{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return UserClaims{}, jwt.ErrTokenInvalidClaims
	}

	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	userClaims := UserClaims{
		UserID:   str("user_id"),
		Email:    str("email"),
		Role:     str("role"),
		TenantID: str("tenant_id"),
	}
	if userClaims.UserID == "" || userClaims.TenantID == "" {
		return UserClaims{}, errMissingClaim
	}
	return userClaims, nil
}

// Auth validates the bearer token and adds user claims to the context
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				log.Error().Msg("❌ JWT secret not configured")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			authHeader := r.Header.Get("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Debug().Str("path", r.URL.Path).Msg("❌ Missing or malformed authorization header")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userClaims, err := ParseToken(parts[1], secret)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("❌ Invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, userClaims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole middleware checks if user has one of the roles (must be used after Auth)
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userClaims, ok := GetUserFromContext(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if userClaims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn().Str("user_id", userClaims.UserID).Str("role", userClaims.Role).Strs("required", roles).Msg("❌ Insufficient permissions")
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) (UserClaims, bool) {
	userClaims, ok := r.Context().Value(UserContextKey).(UserClaims)
	return userClaims, ok
}
