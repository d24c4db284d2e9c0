package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticate enforces bearer JWT tokens issued by iss.
func Authenticate(iss *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := fromHeader(iss, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
			return
		}
		c.Set(identityKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles. Must run after Authenticate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": ErrUnauthenticated.Error()})
			return
		}
		if !slices.Contains(roles, id.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// Identity returns the claims stored by Authenticate.
func Identity(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func fromHeader(iss *Issuer, authz string) (Claims, error) {
	if authz == "" {
		return Claims{}, ErrUnauthenticated
	}
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return Claims{}, ErrInvalidToken
	}
	tokenStr := strings.TrimSpace(authz[len("bearer "):])
	if tokenStr == "" {
		return Claims{}, ErrUnauthenticated
	}
	claims, err := iss.Parse(tokenStr)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return Claims{}, ErrInvalidToken
		}
		return Claims{}, err
	}
	return claims, nil
}
