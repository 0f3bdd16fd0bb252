package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/config"
)

// CORS admits the dashboard origins from the server config. An empty list or
// "*" allows any origin, without credentials.
func CORS(cfg config.ServerConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "Cache-Control", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 || containsString(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return cors.New(c)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
