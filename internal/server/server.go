// Package server wires the API together: storage, services, middleware and
// routes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/willowchat/willow/internal/auth"
	"github.com/willowchat/willow/internal/billing"
	"github.com/willowchat/willow/internal/business"
	"github.com/willowchat/willow/internal/config"
	"github.com/willowchat/willow/internal/conversation"
	"github.com/willowchat/willow/internal/embed"
	"github.com/willowchat/willow/internal/health"
	"github.com/willowchat/willow/internal/logging"
	"github.com/willowchat/willow/internal/mailer"
	"github.com/willowchat/willow/internal/metrics"
	"github.com/willowchat/willow/internal/ratelimit"
	"github.com/willowchat/willow/internal/security"
	"github.com/willowchat/willow/internal/traces"
	"github.com/willowchat/willow/internal/usage"
	"github.com/willowchat/willow/internal/user"
	"github.com/willowchat/willow/internal/validation"
	"github.com/willowchat/willow/internal/verification"
)

// embedSessionRatePerMin throttles the public widget endpoint per client IP.
const (
	embedSessionRatePerMin = 120
	embedSessionBurst      = 30
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg *config.Config

	businesses    business.Store
	users         user.Store
	conversations conversation.Store
	embedStore    embed.Store
	verifStore    verification.Store

	authMgr     *auth.Manager
	embedSvc    *embed.Service
	verifSvc    *verification.Service
	billingSvc  *billing.Service
	meter       *usage.Meter
	sender      mailer.Sender
	rateLimiter *ratelimit.Limiter

	healthReg     *health.Registry
	db            *sql.DB // nil when running in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	shutdownTrace func(context.Context) error
	cancelRunCtx  context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMailer sets a custom mail sender (for testing).
func WithMailer(sender mailer.Sender) Option {
	return func(s *Server) {
		s.sender = sender
	}
}

// New creates a server instance. Storage is Postgres when DATABASE_URL is
// set, otherwise in-memory.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		businessStore := business.NewPostgresStore(db)
		if err := businessStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate business store", "error", err)
		}
		s.businesses = businessStore

		userStore := user.NewPostgresStore(db)
		if err := userStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate user store", "error", err)
		}
		s.users = userStore

		conversationStore := conversation.NewPostgresStore(db)
		if err := conversationStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate conversation store", "error", err)
		}
		s.conversations = conversationStore

		embedStore := embed.NewPostgresStore(db)
		if err := embedStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate embed store", "error", err)
		}
		s.embedStore = embedStore

		verifStore := verification.NewPostgresStore(db)
		if err := verifStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate verification store", "error", err)
		}
		s.verifStore = verifStore

		s.healthReg.Register("database", health.DatabaseChecker(db))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.businesses = business.NewMemoryStore()
		s.users = user.NewMemoryStore()
		s.conversations = conversation.NewMemoryStore()
		s.embedStore = embed.NewMemoryStore()
		s.verifStore = verification.NewMemoryStore()
	}

	if cfg.JWTSecret != "" {
		s.authMgr = auth.NewManager(cfg.JWTSecret)
	}

	if s.sender == nil {
		s.sender = mailer.New(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName, s.logger)
	}

	s.embedSvc = embed.NewService(s.embedStore, s.businesses)
	s.verifSvc = verification.NewService(s.verifStore, s.users, s.businesses)
	s.billingSvc = billing.NewService(s.businesses, cfg.StripeWebhookSecret)
	s.meter = usage.NewMeter(s.conversations)

	shutdownTrace, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTrace = shutdownTrace
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: the widget endpoint is called from arbitrary third-party origins;
	// the domain allowlist, not CORS, is the access control there.
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")

	authHandler := auth.NewHandler(s.authMgr, s.users)
	businessHandler := business.NewHandler(s.businesses)
	embedHandler := embed.NewHandler(s.embedSvc, s.businesses)
	verifHandler := verification.NewHandler(s.verifSvc, s.users, s.sender, s.cfg.AppBaseURL)
	billingHandler := billing.NewHandler(s.billingSvc, s.businesses, s.meter, s.cfg.Usage)

	// PUBLIC ROUTES
	authHandler.RegisterRoutes(v1)
	verifHandler.RegisterPublicRoutes(v1)
	billingHandler.RegisterRoutes(v1)

	// The widget endpoint gets its own per-IP rate limit; every page load of
	// every site embedding the widget hits it.
	s.rateLimiter = ratelimit.NewLimiter(embedSessionRatePerMin, embedSessionBurst)
	widget := v1.Group("")
	widget.Use(s.rateLimiter.Middleware())
	embedHandler.RegisterPublicRoutes(widget)

	// PROTECTED ROUTES (dashboard session token)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireUser())
	{
		businessHandler.RegisterProtectedRoutes(protected)
		embedHandler.RegisterProtectedRoutes(protected)
		verifHandler.RegisterProtectedRoutes(protected)
		billingHandler.RegisterProtectedRoutes(protected)
	}

	// ADMIN ROUTES (back-office, X-Admin-Secret)
	admin := v1.Group("/admin")
	admin.Use(auth.AdminMiddleware(s.cfg.AdminSecret))
	businessHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for the aggregate health endpoint.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, checks := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
