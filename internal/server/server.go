package server

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sistema-pontificia/gateway/internal/circuitbreaker"
	"github.com/sistema-pontificia/gateway/internal/config"
	"github.com/sistema-pontificia/gateway/internal/healthcheck"
	"github.com/sistema-pontificia/gateway/internal/middleware"
	"github.com/sistema-pontificia/gateway/internal/proxy"
	"github.com/sistema-pontificia/gateway/internal/ratelimit"
	"github.com/sistema-pontificia/gateway/internal/repository"
	"github.com/sistema-pontificia/gateway/internal/routetable"
	"github.com/sistema-pontificia/gateway/internal/token"
	"golang.org/x/crypto/bcrypt"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	table      *routetable.Table
	proxy      *proxy.Proxy
	limiter    *ratelimit.Limiter
	verifier   *token.Verifier
	health     *healthcheck.Aggregator
	logs       *repository.RequestLogRepository
	httpServer *http.Server
}

// New wires the gateway. logs may be nil when request logging is
// disabled; the admin log endpoints then report it as such.
func New(cfg *config.Config, store ratelimit.CounterStore, logs *repository.RequestLogRepository) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	table, err := routetable.New(cfg.Routes)
	if err != nil {
		return nil, err
	}

	targets := make([]healthcheck.Target, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		targets = append(targets, healthcheck.Target{
			Name: route.Name,
			URL:  strings.TrimRight(route.Upstream, "/") + cfg.Health.Endpoint,
		})
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		table:  table,
		proxy: proxy.New(table, circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
		}),
		limiter:  ratelimit.New(store),
		verifier: token.NewVerifier(cfg.Auth.Secret),
		health:   healthcheck.NewAggregator(targets, cfg.Health.Timeout(), cfg.Health.CacheTTL()),
		logs:     logs,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.health.Start(cfg.Health.Interval())

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.RateLimit(s.limiter, s.verifier, s.config.RateLimit))
	s.router.Use(middleware.Auth(s.verifier, s.config.Auth.ExcludedPaths))
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.rootInfo)
	s.router.GET("/health", s.healthCheck)

	if s.config.Admin.SecretHash != "" {
		admin := s.router.Group("/gateway", s.adminAuth())
		admin.GET("/status", s.adminStatus)
		admin.GET("/routes", s.adminRoutes)
		admin.GET("/logs", s.adminLogs)
		admin.GET("/stats", s.adminStats)
	}

	// Everything else goes through the route table.
	s.router.NoRoute(s.proxy.Handle)

	for _, route := range s.table.Routes() {
		log.Printf("Registered route: %s -> %s (timeout: %v)", route.Prefix, route.Upstream, route.Timeout)
	}
}

func (s *Server) rootInfo(c *gin.Context) {
	services := make([]string, 0, len(s.config.Routes))
	for _, route := range s.config.Routes {
		services = append(services, route.Name)
	}

	c.JSON(http.StatusOK, gin.H{
		"service":   "api-gateway",
		"status":    "online",
		"timestamp": time.Now().Unix(),
		"services":  services,
		"endpoints": gin.H{
			"health": "/health",
		},
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	report := s.health.Aggregate(c.Request.Context())

	statusCode := http.StatusOK
	if report.Status == string(healthcheck.StatusUnhealthy) {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, report)
}

func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Admin-Secret")
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin secret required"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(s.config.Admin.SecretHash), []byte(secret)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
			return
		}

		c.Next()
	}
}

func (s *Server) adminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gateway":   "running",
		"services":  len(s.config.Routes),
		"uptime":    time.Since(startTime).Seconds(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) adminRoutes(c *gin.Context) {
	type routeInfo struct {
		Name            string `json:"name"`
		Prefix          string `json:"prefix"`
		Upstream        string `json:"upstream"`
		TimeoutSeconds  int    `json:"timeout_seconds"`
		RetryIdempotent bool   `json:"retry_idempotent"`
		StripPrefix     bool   `json:"strip_prefix"`
		RequiredScope   string `json:"required_scope,omitempty"`
		Breaker         string `json:"breaker"`
	}

	routes := make([]routeInfo, 0, len(s.config.Routes))
	for _, route := range s.table.Routes() {
		routes = append(routes, routeInfo{
			Name:            route.Name,
			Prefix:          route.Prefix,
			Upstream:        route.Upstream.String(),
			TimeoutSeconds:  int(route.Timeout.Seconds()),
			RetryIdempotent: route.RetryIdempotent,
			StripPrefix:     route.StripPrefix,
			RequiredScope:   route.RequiredScope,
			Breaker:         s.proxy.BreakerState(route.Name),
		})
	}

	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// adminLogs pages through the recorded request logs for a time window.
// Window defaults to the last hour; from/to are RFC 3339.
func (s *Server) adminLogs(c *gin.Context) {
	if s.logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request logging disabled"})
		return
	}

	from, to, err := timeRangeParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := intParam(c, "limit", 100)
	offset := intParam(c, "offset", 0)

	entries, err := s.logs.FindByTimeRange(c.Request.Context(), from, to, limit, offset)
	if err != nil {
		log.Printf("[%s] failed to query request logs: %v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query request logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":  from,
		"to":    to,
		"count": len(entries),
		"logs":  entries,
	})
}

// adminStats summarizes traffic and error rates over a time window.
func (s *Server) adminStats(c *gin.Context) {
	if s.logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request logging disabled"})
		return
	}

	from, to, err := timeRangeParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	total, err := s.logs.CountByTimeRange(ctx, from, to)
	if err != nil {
		log.Printf("[%s] failed to count request logs: %v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query request logs"})
		return
	}

	clientErrors, err := s.logs.CountByStatusCodeRange(ctx, 400, 499, from, to)
	if err != nil {
		log.Printf("[%s] failed to count client errors: %v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query request logs"})
		return
	}

	serverErrors, err := s.logs.CountByStatusCodeRange(ctx, 500, 599, from, to)
	if err != nil {
		log.Printf("[%s] failed to count server errors: %v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query request logs"})
		return
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = math.Round(float64(clientErrors+serverErrors)/float64(total)*1000) / 10
	}

	c.JSON(http.StatusOK, gin.H{
		"from":           from,
		"to":             to,
		"total_requests": total,
		"client_errors":  clientErrors,
		"server_errors":  serverErrors,
		"error_rate":     errorRate,
	})
}

func timeRangeParams(c *gin.Context) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.Add(-time.Hour)

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %v", err)
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %v", err)
		}
		to = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}

	return from, to, nil
}

func intParam(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting API Gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

var startTime = time.Now()
