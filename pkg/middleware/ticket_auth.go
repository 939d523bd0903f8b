package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab/internal/access"
	"github.com/gogotex/gogotex/backend/collab/internal/document"
)

var errMalformedAuth = errors.New("invalid Authorization header")

// AccessChecker decides whether a join ticket (possibly empty) grants read
// access to a document.
type AccessChecker interface {
	RequireAccess(ctx context.Context, documentID, ticket string) error
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is absent.
func BearerToken(c *gin.Context) (string, error) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return "", nil
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", errMalformedAuth
	}
	return token, nil
}

// TicketAuth guards routes addressing a document through the named path
// parameter. Unprotected documents pass without a ticket.
func TicketAuth(chk AccessChecker, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		id := c.Param(param)
		if err := chk.RequireAccess(c.Request.Context(), id, token); err != nil {
			AbortWithAccessError(c, err)
			return
		}
		c.Set("documentId", id)
		c.Next()
	}
}

// AbortWithAccessError maps access failures onto HTTP statuses.
func AbortWithAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound), errors.Is(err, document.ErrVersionNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, access.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing ticket"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "access check failed"})
	}
}
