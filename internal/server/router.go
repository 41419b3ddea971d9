package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter builds the gin engine: the send-mail endpoint, a health route
// and, when configured, static serving of the built site.
func NewRouter(env, staticDir string, handlers *Handlers, logger zerolog.Logger) *gin.Engine {
	if !strings.EqualFold(env, "development") && !strings.EqualFold(env, "dev") {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "Method not allowed"})
	})

	engine.GET("/health", handlers.Health)
	engine.POST("/api/send_mail", handlers.SendMail)

	if staticDir != "" {
		serveStatic(engine, staticDir)
	}

	return engine
}

// serveStatic serves the built site directory and falls back to index.html
// for client side routes.
func serveStatic(engine *gin.Engine, dir string) {
	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
			return
		}
		requested := filepath.Join(dir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			c.File(requested)
			return
		}
		c.File(filepath.Join(dir, "index.html"))
	})
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	}
}
