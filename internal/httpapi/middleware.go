package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/medtrack/internal/record"
)

const userKey = "user"

// requireAuth resolves the bearer token to a stored user.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.writeError(c, record.Unauthenticated(nil))
			c.Abort()
			return
		}

		claims, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			s.writeError(c, err)
			c.Abort()
			return
		}

		user, err := s.auth.Resume(c.Request.Context(), claims)
		if err != nil {
			s.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// requireRole rejects users of any other role.
func (s *Server) requireRole(role record.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c).Role != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only " + string(role) + "s may use this endpoint"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) record.User {
	u, _ := c.MustGet(userKey).(record.User)
	return u
}
