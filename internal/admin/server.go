// Package admin serves the operator HTTP API over a session registry.
package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/fixgate/internal/engine"
	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/danmuck/fixgate/internal/observability"
	"github.com/danmuck/fixgate/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time
	Registry *engine.Registry
	// LogoutTimeout bounds POST /sessions/:id/logout.
	LogoutTimeout time.Duration

	router *gin.Engine
}

type logoutRequest struct {
	Text string `json:"text"`
}

func New(id, addr string, registry *engine.Registry, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(observability.InitLogger(id), id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if registry == nil {
		registry = engine.NewRegistry()
	}
	s := &Server{
		ID:            id,
		Addr:          addr,
		Appeared:      time.Now(),
		Registry:      registry,
		LogoutTimeout: 10 * time.Second,
		router:        r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.Appeared).String(),
			"service":  s.ID,
			"version":  version,
			"sessions": s.Registry.Len(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.Registry.Statuses()})
	})

	s.router.GET("/sessions/:id", func(c *gin.Context) {
		sess, ok := s.Registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": engine.ErrUnknownSession.Error()})
			return
		}
		c.JSON(http.StatusOK, sess.Status())
	})

	s.router.POST("/sessions/:id/logout", func(c *gin.Context) {
		var req logoutRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := c.Param("id")
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.LogoutTimeout)
		defer cancel()
		if err := s.Registry.Logout(ctx, id, req.Text); err != nil {
			logs.Warnf("admin.Server.logout id=%q err=%v", id, err)
			c.JSON(logoutStatus(err), gin.H{"error": err.Error()})
			return
		}
		sess, _ := s.Registry.Get(id)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session": sess.Status()})
	})
}

func logoutStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logs.Infof("admin.Server.Run listening addr=%q", s.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
