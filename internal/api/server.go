// Package api serves the read-only HTTP view over a running pipeline:
// live portfolio, positions, order lifecycles, per-symbol health, and
// Prometheus metrics. All state comes from the event log projections;
// nothing here mutates the pipeline.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dgrah50/rx-trader-sub002/internal/observability"
	"github.com/dgrah50/rx-trader-sub002/internal/pipeline"
	"github.com/dgrah50/rx-trader-sub002/internal/projection"
)

// Server holds the route handlers and their dependencies.
type Server struct {
	controller *pipeline.Controller
	metrics    *observability.Metrics
	logger     zerolog.Logger
	router     *gin.Engine
}

// Options configures a Server.
type Options struct {
	Controller *pipeline.Controller
	Metrics    *observability.Metrics // nil hides /metrics
	Logger     *zerolog.Logger        // nil discards logs
}

// New builds the router. The returned Server's Router plugs into an
// http.Server owned by the caller.
func New(opts Options) *Server {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Server{
		controller: opts.Controller,
		metrics:    opts.Metrics,
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.healthHandler())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/portfolio", s.portfolioHandler())
		v1.GET("/positions", s.positionsHandler())
		v1.GET("/orders", s.ordersHandler())
		v1.GET("/status", s.statusHandler())
	}

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.router = router
	return s
}

// Router returns the HTTP handler for mounting into an http.Server.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	}
}

func (s *Server) portfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := s.controller.Portfolio(c.Request.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("portfolio view failed")
			internalError(c, "portfolio view unavailable")
			return
		}
		success(c, snap)
	}
}

func (s *Server) positionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := s.controller.Positions(c.Request.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("positions view failed")
			internalError(c, "positions view unavailable")
			return
		}
		success(c, positions)
	}
}

// ordersHandler serves the order read model, optionally filtered with
// ?status=new|acked|filled|rejected.
func (s *Server) ordersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := s.controller.Orders(c.Request.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("orders view failed")
			internalError(c, "orders view unavailable")
			return
		}

		if raw, ok := c.GetQuery("status"); ok {
			status := projection.OrderStatus(raw)
			switch status {
			case projection.OrderStatusNew, projection.OrderStatusAcked,
				projection.OrderStatusFilled, projection.OrderStatusRejected:
			default:
				badRequest(c, "unknown status "+raw)
				return
			}
			filtered := make(map[string]projection.OrderView)
			for id, v := range orders {
				if v.Status == status {
					filtered[id] = v
				}
			}
			orders = filtered
		}
		success(c, orders)
	}
}

func (s *Server) statusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		success(c, s.controller.Status())
	}
}
