// FILE: thermwatch/src/internal/metrics/server.go
package metrics

import (
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"thermwatch/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// StatusFunc returns the current pipeline statistics
type StatusFunc func() map[string]any

// Server exposes /metrics and /status over HTTP
type Server struct {
	listen    string
	server    *fasthttp.Server
	listener  net.Listener
	metrics   fasthttp.RequestHandler
	status    StatusFunc
	logger    *log.Logger
	startTime time.Time
	requests  atomic.Uint64
}

func NewServer(listen string, m *Metrics, status StatusFunc, logger *log.Logger) *Server {
	s := &Server{
		listen:    listen,
		metrics:   fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})),
		status:    status,
		logger:    logger,
		startTime: time.Now(),
	}
	s.server = &fasthttp.Server{
		Handler:         s.requestHandler,
		Name:            version.UserAgent(),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		CloseOnShutdown: true,
	}
	return s
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil {
			s.logger.Error("msg", "Metrics server failed",
				"component", "metrics_server",
				"listen", s.listen,
				"error", err)
		}
	}()

	s.logger.Info("msg", "Metrics server started",
		"component", "metrics_server",
		"listen", ln.Addr().String())
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown() error {
	if s.listener == nil {
		return nil
	}
	return s.server.Shutdown()
}

func (s *Server) requestHandler(ctx *fasthttp.RequestCtx) {
	s.requests.Add(1)

	switch string(ctx.Path()) {
	case "/metrics":
		s.metrics(ctx)
	case "/status":
		s.handleStatus(ctx)
	default:
		s.handleNotFound(ctx)
	}
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")

	status := map[string]any{
		"service":  "thermwatch",
		"version":  version.String(),
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
		"requests": s.requests.Load(),
	}
	if s.status != nil {
		status["pipeline"] = s.status()
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"status unavailable"}`)
		return
	}
	ctx.SetBody(data)
}

func (s *Server) handleNotFound(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetContentType("application/json")

	data, _ := json.Marshal(map[string]any{
		"error":            "Not Found",
		"requested_path":   string(ctx.Path()),
		"available_routes": []string{"/metrics", "/status"},
	})
	ctx.SetBody(data)
}
