// Package api exposes one BrowserState over HTTP so a browser driver running
// in another process can mount and unmount sessions.
package api

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/browserstate"
	"github.com/minus-twelve/browserstate/types"
	"go.uber.org/zap"
	"net/http"
	"sync"
	"time"
)

type Server struct {
	state *browserstate.BrowserState
	log   *zap.Logger
	// BrowserState is single-owner; requests are serialized.
	mu sync.Mutex
}

type mountRequest struct {
	SessionID string `json:"session_id"`
}

func NewServer(state *browserstate.BrowserState, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{state: state, log: log}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.LoggerMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "user_id": s.state.UserID()})
	})

	sessions := r.Group("/sessions")
	sessions.GET("", s.listSessions)
	sessions.GET("/active", s.activeSession)
	sessions.POST("/mount", s.mount)
	sessions.POST("/unmount", s.unmount)
	sessions.DELETE("/:id", s.deleteSession)
	return r
}

func (s *Server) LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) listSessions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"sessions": s.state.ListSessions(c.Request.Context())})
}

func (s *Server) activeSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.state.ActiveSession()
	if active == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, active)
}

func (s *Server) mount(c *gin.Context) {
	var req mountRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := c.Request.Context()
	if req.SessionID == "" {
		active, err := s.state.MountNew(ctx)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, active)
		return
	}

	path, err := s.state.Mount(ctx, req.SessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.ActiveSession{ID: req.SessionID, Path: path})
}

func (s *Server) unmount(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.Unmount(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrFormat), errors.Is(err, types.ErrSecurity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
