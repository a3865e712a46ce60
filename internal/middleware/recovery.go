package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sistema-pontificia/gateway/internal/apierror"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				log.Printf("[%s] PANIC: %v", requestID, err)

				apierror.Abort(c, http.StatusInternalServerError, apierror.CodeInternal, "Internal gateway error")
			}
		}()
		c.Next()
	}
}
