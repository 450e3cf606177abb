// Package adminhttp exposes outbox administration over HTTP with gin.
//
// Routes:
//
//	GET    /health
//	GET    /metrics                       (when a metrics handler is configured)
//	GET    /outbox/messages/:id
//	POST   /outbox/messages/:id/failed    {"reason": "..."}
//	DELETE /outbox/messages?before=RFC3339 | ?older_than=168h
//
// The /outbox routes require an HS256 bearer token when a secret is configured.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	outbox "github.com/velmie/txoutbox"
)

// Service is the administration surface served over HTTP. *outbox.Admin implements it.
type Service interface {
	GetByID(ctx context.Context, id string) (outbox.Record, error)
	MarkFailed(ctx context.Context, id, reason string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Config defines handler behavior.
type Config struct {
	// Secret enables HS256 bearer authentication on /outbox routes.
	Secret []byte
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
	Clock   outbox.Clock
	Logger  outbox.Logger
}

// Option configures the handler.
type Option func(*Config)

// WithSecret enables bearer authentication with an HS256 secret.
func WithSecret(secret []byte) Option {
	return func(c *Config) {
		c.Secret = secret
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *Config) {
		c.Metrics = h
	}
}

// WithClock sets the clock used to resolve older_than.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger outbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Handler serves the administration routes.
type Handler struct {
	svc Service
	cfg Config
}

// NewHandler constructs a handler over svc.
func NewHandler(svc Service, opts ...Option) *Handler {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = outbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = outbox.NopLogger{}
	}

	return &Handler{svc: svc, cfg: cfg}
}

// NewRouter returns a gin engine with the routes registered.
func NewRouter(svc Service, opts ...Option) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	NewHandler(svc, opts...).Register(r)

	return r
}

// Register adds the routes to r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.cfg.Metrics))
	}

	g := r.Group("/outbox")
	if len(h.cfg.Secret) > 0 {
		g.Use(bearerAuth(h.cfg.Secret))
	}
	g.GET("/messages/:id", h.getMessage)
	g.POST("/messages/:id/failed", h.markFailed)
	g.DELETE("/messages", h.deleteMessages)
}

type messageResponse struct {
	ID            string          `json:"id"`
	Source        string          `json:"source"`
	SourceID      string          `json:"sourceId"`
	Channel       string          `json:"channel"`
	PayloadType   string          `json:"payloadType,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PayloadBase64 []byte          `json:"payloadBase64,omitempty"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retryCount"`
	StatusMessage string          `json:"statusMessage,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	SentAt        *time.Time      `json:"sentAt,omitempty"`
}

func toResponse(r outbox.Record) messageResponse {
	resp := messageResponse{
		ID:            r.ID.String(),
		Source:        r.Source,
		SourceID:      r.SourceID,
		Channel:       r.Channel,
		PayloadType:   r.PayloadType,
		Status:        r.Status.String(),
		RetryCount:    r.RetryCount,
		StatusMessage: r.StatusMessage,
		CreatedAt:     r.CreatedAt,
		SentAt:        r.SentAt,
	}
	if json.Valid(r.Payload) {
		resp.Payload = json.RawMessage(r.Payload)
	} else {
		resp.PayloadBase64 = r.Payload
	}

	return resp
}

func (h *Handler) getMessage(c *gin.Context) {
	record, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(record))
}

type markFailedRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) markFailed(c *gin.Context) {
	var req markFailedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
			return
		}
	}

	id := c.Param("id")
	if err := h.svc.MarkFailed(c.Request.Context(), id, req.Reason); err != nil {
		h.fail(c, err)
		return
	}
	h.cfg.Logger.Info("outbox message marked failed over http", "id", id, "operator", c.GetString(operatorKey))

	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteMessages(c *gin.Context) {
	before, ok := h.cutoff(c)
	if !ok {
		return
	}

	deleted, err := h.svc.DeleteOlderThan(c.Request.Context(), before)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "before": before})
}

func (h *Handler) cutoff(c *gin.Context) (time.Time, bool) {
	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be an RFC3339 timestamp"})
			return time.Time{}, false
		}

		return before.UTC(), true
	}
	if raw := c.Query("older_than"); raw != "" {
		age, err := time.ParseDuration(raw)
		if err != nil || age <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be a positive duration"})
			return time.Time{}, false
		}

		return h.cfg.Clock.Now().Add(-age), true
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "before or older_than is required"})

	return time.Time{}, false
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, outbox.ErrInvalidRetention):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.cfg.Logger.Error("outbox admin request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
