package http

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"music-locker/internal/auth"
	"music-locker/internal/domain"
	"music-locker/internal/downloader"
	"music-locker/internal/repository"
	"music-locker/internal/service"
	"music-locker/internal/storage"
	"music-locker/internal/transcode"
)

// Acquirer brings new songs into the library.
type Acquirer interface {
	Acquire(ctx context.Context, reference string, owner *domain.User) (*domain.Song, error)
	Ingest(ctx context.Context, up downloader.Upload, owner *domain.User) (*domain.Song, error)
}

// Streamer prepares stored files for delivery.
type Streamer interface {
	Open(ctx context.Context, sourcePath, requested string) (*transcode.Stream, error)
}

type Deps struct {
	Users          service.UserService
	Songs          service.SongService
	Acquirer       Acquirer
	Streamer       Streamer
	Files          *storage.Local
	Guard          *auth.Guard
	Tokens         *auth.Tokens
	Health         repository.Pinger
	AllowOrigins   []string
	MaxUploadBytes int64
	Logger         *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users          service.UserService
	songs          service.SongService
	acquirer       Acquirer
	streamer       Streamer
	files          *storage.Local
	guard          *auth.Guard
	tokens         *auth.Tokens
	health         repository.Pinger
	allowOrigins   []string
	maxUploadBytes int64
	logger         *logrus.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 100 << 20
	}
	return &Handler{
		users:          deps.Users,
		songs:          deps.Songs,
		acquirer:       deps.Acquirer,
		streamer:       deps.Streamer,
		files:          deps.Files,
		guard:          deps.Guard,
		tokens:         deps.Tokens,
		health:         deps.Health,
		allowOrigins:   deps.AllowOrigins,
		maxUploadBytes: deps.MaxUploadBytes,
		logger:         deps.Logger,
	}
}

// NewRouter builds a gin engine with logging, recovery, CORS and all routes.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(h.logger), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		h.logger.WithField("path", c.Request.URL.Path).Errorf("panic: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.allowOrigins))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.GET("/profile", h.profile)
	}

	songs := router.Group("/songs")
	{
		songs.GET("", h.listSongs)
		songs.POST("/upload", h.uploadSong)
		songs.POST("/upload/external", h.importSong)
		songs.GET("/stream/:id", h.streamSong)
		songs.DELETE("/:id", h.deleteSong)
	}

	router.GET("/health", h.healthCheck)
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	wildcard := slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || slices.Contains(allowed, origin)) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs each request with latency and response size.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"bytes":   c.Writer.Size(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
			"remote":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", strings.Join(c.Errors.Errors(), "; "))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case c.Request.URL.Path == "/health":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "unknown"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.health.Ping(ctx); err != nil {
		h.logger.Errorf("health check: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}
