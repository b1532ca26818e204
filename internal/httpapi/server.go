// Package httpapi serves the HTTP surface: the tag summary route, the Strapi
// webhook ingress and a health check.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"ex-augmenter/pkg/augmenter"

	"github.com/gin-gonic/gin"
)

// Dependencies are the kernel collaborators the server calls into.
type Dependencies struct {
	Tags      augmenter.TagStore
	Summaries augmenter.TagSummaryService
	// Articles and Entries persist changes found by write hook replay.
	Articles augmenter.ArticleStore
	Entries  augmenter.EntryStore
	// Interceptor runs before-write hooks for writes made in the platform
	// admin. Nil disables replay.
	Interceptor augmenter.WriteInterceptor
	// Echo recognizes webhooks caused by this service's own writes. Optional.
	Echo augmenter.EchoFilter
}

// Option mutates server construction.
type Option func(*Server)

// WithLogger configures the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(server *Server) {
		if clock != nil {
			server.clock = clock
		}
	}
}

// Server is the gin-backed ingress driver.
type Server struct {
	name      string
	cfg       Config
	logger    *slog.Logger
	clock     func() time.Time
	tags      augmenter.TagStore
	summaries augmenter.TagSummaryService
	echo      augmenter.EchoFilter
	replayer  *hookReplayer
	engine    *gin.Engine

	mu     sync.RWMutex
	sink   augmenter.EventSink
	closed bool

	background       sync.WaitGroup
	backgroundCtx    context.Context
	cancelBackground context.CancelFunc
}

// New creates a server named name.
func New(name string, cfg Config, deps Dependencies, options ...Option) (*Server, error) {
	if name == "" {
		return nil, fmt.Errorf("new http server: empty name")
	}
	if deps.Tags == nil {
		return nil, fmt.Errorf("new http server %s: nil tag store", name)
	}
	if deps.Summaries == nil {
		return nil, fmt.Errorf("new http server %s: nil tag summary service", name)
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("new http server %s: empty listen address", name)
	}

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	server := &Server{
		name:             name,
		cfg:              cfg,
		logger:           slog.Default(),
		clock:            time.Now,
		tags:             deps.Tags,
		summaries:        deps.Summaries,
		echo:             deps.Echo,
		backgroundCtx:    backgroundCtx,
		cancelBackground: cancelBackground,
	}
	for _, option := range options {
		option(server)
	}
	if deps.Interceptor != nil && deps.Articles != nil && deps.Entries != nil {
		server.replayer = &hookReplayer{
			interceptor: deps.Interceptor,
			articles:    deps.Articles,
			entries:     deps.Entries,
		}
	}
	server.engine = server.routes()

	return server, nil
}

// BuildFromConfig builds a server from a JSON driver payload.
func BuildFromConfig(name string, logger *slog.Logger, rawConfig []byte, deps Dependencies) (*Server, error) {
	cfg, err := ParseConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("parse http driver config: %w", err)
	}

	return New(name, cfg, deps, WithLogger(logger))
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	engine.GET("/healthz", s.health)
	engine.POST("/webhooks/strapi", s.requireWebhookSecret, s.receiveWebhook)

	for _, prefix := range []string{"", "/api"} {
		group := engine.Group(prefix)
		group.Use(s.requireAPIToken)
		group.POST("/tags/:documentId/update-summary", s.updateTagSummary)
	}

	return engine
}

// Name returns the stable driver identifier.
func (s *Server) Name() string {
	return s.name
}

// Handler exposes the routed engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP until ctx is canceled.
func (s *Server) Start(ctx context.Context, sink augmenter.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start http server %s: nil sink", s.name)
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("start http server %s: listen %s: %w", s.name, s.cfg.ListenAddr, err)
	}

	return s.serve(ctx, listener, sink)
}

func (s *Server) serve(ctx context.Context, listener net.Listener, sink augmenter.EventSink) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()

	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	s.logger.Info("http server listening", "driver", s.name, "addr", listener.Addr().String())

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http %s: %w", s.name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http %s: %w", s.name, err)
	}
	<-serveErr

	return nil
}

// Shutdown cancels queued background work and waits for it to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelBackground()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown http %s background work: %w", s.name, ctx.Err())
	}
}

// schedule runs fn on a tracked goroutine; false means the server is closing.
func (s *Server) schedule(scope string, timeout time.Duration, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logger.Error("background task panic", "scope", scope, "panic", recovered)
			}
		}()

		ctx, cancel := context.WithTimeout(s.backgroundCtx, timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error("background task failed", "scope", scope, "error", err)
		}
	}()

	return true
}

func (s *Server) currentSink() augmenter.EventSink {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sink
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requireAPIToken(c *gin.Context) {
	if s.cfg.APIToken == "" {
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || !secretEqual(strings.TrimSpace(token), s.cfg.APIToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

// requireWebhookSecret accepts the raw secret or a bearer form of it.
func (s *Server) requireWebhookSecret(c *gin.Context) {
	if s.cfg.WebhookSecret == "" {
		return
	}
	value := strings.TrimSpace(c.GetHeader(s.cfg.WebhookHeader))
	value = strings.TrimPrefix(value, "Bearer ")
	if !secretEqual(value, s.cfg.WebhookSecret) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

func secretEqual(got string, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

var _ augmenter.Driver = (*Server)(nil)
