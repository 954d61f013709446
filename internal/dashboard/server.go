package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"options-scalping-bot/internal/alerts"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/marketdata"
	"options-scalping-bot/internal/store"
)

// Server exposes the dashboard and monitoring endpoints over HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	agg        *Aggregator
	alertBus   *alerts.Bus
	cache      *marketdata.GreeksCache
	client     broker.Client
	history    *store.HistoryStore // nil when the archive is disabled
	metrics    *Metrics
	log        *logging.Logger
	startedAt  time.Time
}

// NewServer builds the HTTP server and its routes.
func NewServer(port int, agg *Aggregator, alertBus *alerts.Bus, cache *marketdata.GreeksCache,
	client broker.Client, history *store.HistoryStore, metrics *Metrics, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:   router,
		agg:      agg,
		alertBus: alertBus,
		cache:    cache,
		client:   client,
		history:  history,
		metrics:  metrics,
		log:      log.WithComponent("http"),
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	s.httpServer.Handler = router
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	monitor := s.router.Group("/monitor")
	{
		monitor.GET("/health", s.handleHealth)
		monitor.GET("/ready", s.handleReady)
		monitor.GET("/live", s.handleLive)
		monitor.GET("/metrics", gin.WrapH(promhttp.Handler()))
		monitor.GET("/alerts", s.handleAlerts)
		monitor.GET("/alert-stats", s.handleAlertStats)
	}

	api := s.router.Group("/api")
	{
		api.GET("/dashboard", s.handleDashboard)
		api.GET("/positions", s.handlePositions)
		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/market", s.handleMarket)
		api.GET("/performance", s.handlePerformance)
		api.GET("/trades", s.handleTrades)
		api.GET("/greeks-heatmap", s.handleHeatmap)
	}
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.log.Info("dashboard listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"timestamp":      time.Now(),
	})
}

// handleReady reports whether the broker session is usable. Not ready
// means the engine cannot trade; it does not mean the process is dead.
func (s *Server) handleReady(c *gin.Context) {
	if !s.client.IsAuthenticated() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "reason": "broker session not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"live": true})
}

func (s *Server) handleAlerts(c *gin.Context) {
	n := 100
	if q := c.Query("limit"); q != "" {
		if _, err := fmt.Sscanf(q, "%d", &n); err != nil || n <= 0 {
			n = 100
		}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": s.alertBus.Recent(n)})
}

func (s *Server) handleAlertStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.alertBus.Statistics())
}

func (s *Server) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.agg.Current())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.agg.Current().Positions})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, s.agg.Current().Portfolio)
}

func (s *Server) handleMarket(c *gin.Context) {
	c.JSON(http.StatusOK, s.agg.Current().Market)
}

func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.agg.Current().Performance)
}

// handleTrades serves the archived trade history when Postgres is wired,
// falling back to the in-memory session history otherwise.
func (s *Server) handleTrades(c *gin.Context) {
	if s.history != nil {
		trades, err := s.history.RecentTrades(c.Request.Context(), 100)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"trades": trades, "source": "archive"})
			return
		}
		s.log.WithError(err).Warn("trade archive query failed")
	}
	c.JSON(http.StatusOK, gin.H{"trades": s.agg.trades.ClosedTrades(), "source": "session"})
}

func (s *Server) handleHeatmap(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"heatmap": s.agg.Current().Heatmap})
}
