package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/regkit/version"
)

var startTime = time.Now()

// Info reports the build and how long the process has been up.
func Info(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := version.Get()
		c.JSON(http.StatusOK, gin.H{
			"service":        serviceName,
			"version":        v.Short(),
			"build":          v,
			"uptime_seconds": int64(time.Since(startTime).Seconds()),
		})
	}
}
