// Package server is the supervised workload: a small HTTP server that runs
// until its context is cancelled or a shutdown is requested over HTTP. The
// supervisor treats it as opaque; nothing here knows about pid files.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/fsproxy/internal/metrics"
)

// Server serves the HTTP endpoints until stopped.
type Server struct {
	addr string
	log  *slog.Logger

	quitOnce sync.Once
	quit     chan struct{} // closed by POST /shutdown
}

func New(addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{addr: addr, log: log, quit: make(chan struct{})}
}

// Handler returns the gin-powered http.Handler so it can be mounted in tests
// without a listener.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/", s.handleIndex)
	g.GET("/healthz", s.handleHealth)
	g.POST("/shutdown", s.handleShutdown)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// Run binds the listening socket and serves until ctx is cancelled, a
// shutdown request arrives, or the server fails. The bind happens before any
// serving so a failure to acquire the address is reported synchronously.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", s.addr, err)
	case <-s.quit:
		s.log.Info("shutdown requested over http")
	case <-ctx.Done():
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, "fsproxy is running\n")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"pid":       os.Getpid(),
		"platform":  runtime.GOOS,
	})
}

func (s *Server) handleShutdown(c *gin.Context) {
	c.String(http.StatusOK, "shutting down\n")
	s.quitOnce.Do(func() { close(s.quit) })
}
