package middleware

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sistema-pontificia/gateway/internal/models"
	"github.com/sistema-pontificia/gateway/internal/repository"
)

// Buffered channel for async logging
var logChannel chan models.RequestLog

// InitRequestLogger starts the background worker that batch-inserts
// request logs so the request path never waits on postgres.
func InitRequestLogger(repo *repository.RequestLogRepository, bufferSize int) {
	logChannel = make(chan models.RequestLog, bufferSize)

	go func() {
		batch := make([]models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := repo.CreateBatch(context.Background(), batch); err != nil {
				log.Printf("Failed to insert request logs: %v", err)
			}
			batch = make([]models.RequestLog, 0, 100)
		}

		for {
			select {
			case entry := <-logChannel:
				batch = append(batch, entry)
				if len(batch) >= 100 {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()
}

// RequestLogger records every request that went through the gateway.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if logChannel == nil {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		duration := time.Since(start)

		entry := models.RequestLog{
			Timestamp:      start,
			RequestID:      c.GetString("request_id"),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(duration.Milliseconds()),
			ClientKey:      c.GetString("rate_limit_key"),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			Upstream:       c.GetString("upstream"),
		}

		select {
		case logChannel <- entry:
		default:
			// Channel full, skip rather than block the request path.
			log.Printf("Request log channel full, dropping entry for %s", entry.Path)
		}
	}
}
