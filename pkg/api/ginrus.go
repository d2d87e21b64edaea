package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginrus logs one line per request through logrus.
func ginrus(module string) gin.HandlerFunc {
	entry := log.WithField("module", module)
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		e := entry.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    path,
			"ip":      c.ClientIP(),
			"latency": time.Since(start),
		})
		switch {
		case len(c.Errors) > 0:
			e.Error(c.Errors.String())
		case c.Writer.Status() >= http.StatusInternalServerError:
			e.Error("request failed")
		default:
			e.Debug("request")
		}
	}
}

// serverHeader stamps every response with the binary version and answers
// HEAD / directly, which is what uptime checks send.
func serverHeader(version string) gin.HandlerFunc {
	value := "mesh-node-map/" + version
	return func(c *gin.Context) {
		c.Header("Server", value)
		if c.Request.Method == http.MethodHead && c.Request.URL.Path == "/" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
