package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
)

// RequireAuth resolves the bearer token into an actor and stores it on the
// request context. Websocket clients may pass the token as access_token.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			apperr.Respond(c, s.logger, apperr.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := s.Resolve(c.Request.Context(), raw)
		if err != nil {
			apperr.Respond(c, s.logger, err)
			c.Abort()
			return
		}

		actor := user.Actor()
		c.Request = c.Request.WithContext(access.WithActor(c.Request.Context(), actor))
		c.Set("userID", actor.ID)
		c.Set("roles", actor.Roles)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c.IsWebsocket() {
		return c.Query("access_token")
	}
	return ""
}

// Logger exposes the service logger for route wiring.
func (s *Service) Logger() *zap.Logger { return s.logger }
