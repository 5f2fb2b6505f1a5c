package apperr

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Respond writes err as a JSON error body. Server-side failures are logged and
// their message is not leaked to the client.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error", "code": Code(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": Code(err)})
}
