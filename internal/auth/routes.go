package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the public login route and the authenticated
// profile route. protected must already run RequireAuth.
func RegisterRoutes(public, protected *gin.RouterGroup, handler *Handler) {
	authGroup := public.Group("/auth")
	{
		authGroup.POST("/login", handler.Login)
	}
	protected.GET("/auth/me", handler.Me)
}
