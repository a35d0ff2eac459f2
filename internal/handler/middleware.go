package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"malasakit/internal/twiml"
	"malasakit/internal/utils/extractor"
	logging "malasakit/pkg/logger/pkg"
)

// RequestID tags the request context with X-Request-ID, minting one when the
// caller sent none, and echoes it back.
func RequestID(ex extractor.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ex.GetRequestID(c.Request)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(extractor.XRequestID, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger(c.Request.Context()).Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Recovery answers a panicking handler with the apology document so the
// provider never sees a 5xx.
func Recovery(apology func() *twiml.Response) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.Logger(c.Request.Context()).Error("Handler panicked",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))
		body, err := apology().Marshal()
		if err != nil {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Data(http.StatusOK, twiml.ContentType, body)
		c.Abort()
	})
}
