// Package webhook is the HTTP ingestion boundary for external trackers.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fabrica/internal/event"
	"fabrica/internal/router"
	logx "fabrica/pkg/logx"
)

// maxBodyBytes caps inbound payloads. GitHub documents a 25MB ceiling; real
// deliveries are far smaller.
const maxBodyBytes = 1 << 20

type Config struct {
	Enabled bool
	Addr    string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) Normalize() {
	if c.Addr == "" {
		c.Addr = ":8085"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Delivery retries can run long; the whole handle call is bounded by
		// the router's own timeout.
		c.WriteTimeout = 90 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

type Server struct {
	cfg    Config
	router *router.Router
	log    logx.Logger

	srv *http.Server
}

func NewServer(cfg Config, r *router.Router, log logx.Logger) *Server {
	cfg.Normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, router: r, log: log.With(logx.String("comp", "webhook"))}
}

func (s *Server) handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	e.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	e.POST("/webhooks/github", s.handleGitHub)
	e.POST("/webhooks/plane", s.handlePlane)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("webhook server disabled")
		return nil
	}

	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		s.log.Info("webhook server listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("webhook server stopped", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shCtx)
}

func (s *Server) handleGitHub(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	p := event.WebhookPayload{
		Source:     event.SourceGitHub,
		EventType:  c.GetHeader("X-GitHub-Event"),
		Signature:  c.GetHeader("X-Hub-Signature-256"),
		DeliveryID: c.GetHeader("X-GitHub-Delivery"),
		Body:       body,
	}
	s.respond(c, s.router.HandleWebhook(c.Request.Context(), p))
}

func (s *Server) handlePlane(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	p := event.WebhookPayload{
		Source:     event.SourcePlane,
		EventType:  c.GetHeader("X-Plane-Event"),
		Signature:  c.GetHeader("X-Plane-Signature"),
		DeliveryID: c.GetHeader("X-Plane-Delivery"),
		Body:       body,
	}
	s.respond(c, s.router.HandleWebhook(c.Request.Context(), p))
}

func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return nil, false
	}
	if len(body) > maxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return nil, false
	}
	return body, true
}

// respond maps the typed outcome onto HTTP. Unrecognized-but-authentic events
// are acknowledged with 200 so the sender does not redeliver them.
func (s *Server) respond(c *gin.Context, out router.Outcome) {
	switch o := out.(type) {
	case router.Delivered:
		c.JSON(http.StatusOK, gin.H{
			"status":  "delivered",
			"targets": len(o.Report.Attempts),
			"failed":  o.Report.Failed(),
		})
	case router.Ignored:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": o.Reason})
	case router.Rejected:
		code := http.StatusBadRequest
		if o.Reason == "invalid signature" {
			code = http.StatusUnauthorized
		}
		c.JSON(code, gin.H{"status": "rejected", "reason": o.Reason})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
	}
}
