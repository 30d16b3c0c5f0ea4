// Package api exposes the terminal sync core over a loopback HTTP API:
// status, manual enqueue, sweep trigger, online override, metrics and a
// WebSocket stream of dispatcher events.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/models"
	syncpkg "github.com/kimhsiao/tijara/backend/internal/sync"
	"github.com/kimhsiao/tijara/backend/internal/sync/scheduler"
	"github.com/kimhsiao/tijara/backend/internal/telemetry"
)

// StatusSource reports per-entity sync state.
type StatusSource interface {
	Status(ctx context.Context) ([]*syncpkg.EntityStatus, error)
}

// Queue is the persistent work queue as seen by the API.
type Queue interface {
	Enqueue(item string) error
	List() ([]string, error)
}

// Scheduler is the background scheduler as seen by the API.
type Scheduler interface {
	GetStatus() scheduler.Status
	TriggerSweep(ctx context.Context) bool
}

// Recorder appends local writes to the operation log.
type Recorder interface {
	Record(ctx context.Context, entity string, action models.Action, payload *models.OperationPayload) (*models.Operation, error)
}

// OnlineControl reads and overrides the connectivity monitor.
type OnlineControl interface {
	SetOnline(online *bool)
	Override() *bool
	Last() *bool
}

// Deps are the components served by the API. Hub and Recorder may be nil,
// which disables the WebSocket and operation endpoints.
type Deps struct {
	Status    StatusSource
	Queue     Queue
	Scheduler Scheduler
	Online    OnlineControl
	Recorder  Recorder
	Hub       *Hub
	Version   string

	// BaseContext bounds work started by a request that outlives it,
	// such as a triggered sweep. Defaults to context.Background.
	BaseContext context.Context
}

// Server is the local HTTP API.
type Server struct {
	deps   Deps
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{deps: deps, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/api/health", s.health)
	s.router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	g := s.router.Group("/sync")
	g.GET("/status", s.status)
	g.GET("/queue", s.listQueue)
	g.POST("/queue", s.enqueue)
	g.POST("/sweep", s.sweep)
	g.GET("/online", s.getOnline)
	g.POST("/online", s.setOnline)
	if deps.Recorder != nil {
		g.POST("/operations", s.recordOperation)
	}
	if deps.Hub != nil {
		g.GET("/ws", s.websocket)
	}
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the router in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/api/health" || c.FullPath() == "/metrics" {
			return
		}
		logging.Debug("HTTP request", map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// statusFor maps an error code to an HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalid, errors.ErrValidation, errors.ErrUnknownQueueItem, errors.ErrUnsupportedDirection:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrSyncBusy:
		return http.StatusConflict
	case errors.ErrOffline, errors.ErrTransport, errors.ErrQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("API request failed", string(code), err, map[string]interface{}{"path": c.Request.URL.Path})
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"code":  string(code),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.deps.Version,
	})
}

type statusResponse struct {
	Entities  []*syncpkg.EntityStatus `json:"entities"`
	Scheduler *scheduler.Status       `json:"scheduler,omitempty"`
	Queue     []string                `json:"queue"`
	Online    *onlineResponse         `json:"online,omitempty"`
}

type onlineResponse struct {
	Online   *bool `json:"online"`
	Override *bool `json:"override"`
}

func (s *Server) onlineState() *onlineResponse {
	if s.deps.Online == nil {
		return nil
	}
	return &onlineResponse{Online: s.deps.Online.Last(), Override: s.deps.Online.Override()}
}

func (s *Server) status(c *gin.Context) {
	resp := statusResponse{Queue: []string{}, Online: s.onlineState()}

	if s.deps.Status != nil {
		entities, err := s.deps.Status.Status(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		resp.Entities = entities
	}
	if s.deps.Scheduler != nil {
		st := s.deps.Scheduler.GetStatus()
		resp.Scheduler = &st
	}
	if s.deps.Queue != nil {
		items, err := s.deps.Queue.List()
		if err != nil {
			abortWithError(c, err)
			return
		}
		resp.Queue = append(resp.Queue, items...)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listQueue(c *gin.Context) {
	items, err := s.deps.Queue.List()
	if err != nil {
		abortWithError(c, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type enqueueRequest struct {
	Item string `json:"item" binding:"required"`
}

func (s *Server) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}
	if err := s.deps.Queue.Enqueue(req.Item); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"item": req.Item, "queued": true})
}

type operationRequest struct {
	Entity  string                  `json:"entity" binding:"required"`
	Action  models.Action           `json:"action" binding:"required"`
	Payload models.OperationPayload `json:"payload"`
}

func (s *Server) recordOperation(c *gin.Context) {
	var req operationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}
	op, err := s.deps.Recorder.Record(c.Request.Context(), req.Entity, req.Action, &req.Payload)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

func (s *Server) sweep(c *gin.Context) {
	ctx := s.deps.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	started := s.deps.Scheduler.TriggerSweep(ctx)
	if !started {
		c.JSON(http.StatusConflict, gin.H{"started": false, "code": string(errors.ErrSyncBusy)})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

func (s *Server) getOnline(c *gin.Context) {
	c.JSON(http.StatusOK, s.onlineState())
}

type onlineRequest struct {
	Online *bool `json:"online"`
}

func (s *Server) setOnline(c *gin.Context) {
	var req onlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}
	s.deps.Online.SetOnline(req.Online)
	c.JSON(http.StatusOK, s.onlineState())
}

func (s *Server) websocket(c *gin.Context) {
	if err := s.deps.Hub.Serve(c.Writer, c.Request); err != nil {
		logging.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
	}
}
