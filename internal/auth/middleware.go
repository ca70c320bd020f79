package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey contextKey = "authUserID"
	roleKey   contextKey = "authRole"
)

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// GetRole retrieves the authenticated role from context.
func GetRole(ctx context.Context) (Role, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(roleKey).(Role); ok && value != "" {
		return value, true
	}
	return "", false
}

// JWTMiddleware validates bearer tokens and injects the subject and role.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	audience = strings.TrimSpace(audience)

	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		if secret == "" {
			unauthorized(c, "missing JWT secret")
			return
		}

		claims, err := parse(tokenString, secret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}

		if audience != "" && !containsAudience(claims.Audience, audience) {
			unauthorized(c, "invalid audience")
			return
		}

		if claims.Subject == "" {
			unauthorized(c, "missing subject")
			return
		}
		if !claims.Role.Valid() {
			unauthorized(c, "invalid role")
			return
		}

		ctx := context.WithValue(c.Request.Context(), userIDKey, claims.Subject)
		ctx = context.WithValue(ctx, roleKey, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(userIDKey), claims.Subject)
		c.Set(string(roleKey), claims.Role)

		c.Next()
	}
}

// RequireRole rejects requests whose token carries none of roles. It must run
// after JWTMiddleware.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetRole(c.Request.Context())
		if !ok {
			unauthorized(c, "missing role")
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
	}
}

func parse(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": message})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
