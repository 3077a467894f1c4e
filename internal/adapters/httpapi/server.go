// Package httpapi exposes the lifecycle service over HTTP with gin. Caller
// identity arrives in trusted gateway headers.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	schemadocs "talentcore/docs/schema"
	"talentcore/docs/schema/openapi"
	"talentcore/internal/core"
	"talentcore/pkg/domain"
)

// Identity headers set by the gateway.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "talentcore.actor"

// EventStream serves one authorized bus topic over a long-lived connection.
type EventStream interface {
	Stream(w http.ResponseWriter, r *http.Request, topic string)
}

// Server wires HTTP routes to a core.Service.
type Server struct {
	svc            *core.Service
	logger         *zap.Logger
	hub            EventStream
	metrics        http.Handler
	debugVars      http.Handler
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventStream mounts the event stream at /v1/ws behind the identity check.
func WithEventStream(hub EventStream) Option {
	return func(s *Server) { s.hub = hub }
}

// WithMetricsHandler mounts a metrics handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithDebugVars mounts an expvar handler at /debug/vars.
func WithDebugVars(h http.Handler) Option {
	return func(s *Server) { s.debugVars = h }
}

// WithAllowedOrigins restricts CORS. Empty allows all origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// New builds a server for svc.
func New(svc *core.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	config := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.allowedOrigins
	}
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", HeaderActorID, HeaderActorRole}
	r.Use(cors.New(config))

	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	if s.debugVars != nil {
		r.GET("/debug/vars", gin.WrapH(s.debugVars))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/lifecycle", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", schemadocs.LifecycleDocument())
		})
		v1.GET("/openapi.yaml", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/yaml", openapi.Spec())
		})
		if s.hub != nil {
			v1.GET("/ws", s.identity, s.streamEvents)
		}

		apps := v1.Group("/applications", s.identity)
		apps.POST("", s.submitApplication)
		apps.GET("/:id", s.getApplication)
		apps.DELETE("/:id", s.softDeleteApplication)
		apps.PATCH("/:id/status", s.updateStatus)
		apps.GET("/:id/history", s.listHistory)
		apps.POST("/:id/anonymize", s.anonymizeApplication)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	version, _ := schemadocs.LifecycleVersion()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "lifecycle_version": version})
}

// identity requires a recognised role and a non-empty actor id.
func (s *Server) identity(c *gin.Context) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
		Role: domain.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))),
	}
	if actor.ID == "" || !domain.IsKnownRole(actor.Role) {
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "forbidden", Message: "missing or unknown actor identity"})
		return
	}
	c.Set(actorKey, actor)
	c.Next()
}

func actorFrom(c *gin.Context) domain.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(domain.Actor)
	return actor
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func zapRequest(c *gin.Context, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("application_id", c.Param("id")),
		zap.Error(err),
	}
}
