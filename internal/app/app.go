package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/user-auth-service/internal/config"
	"github.com/prperemyshlev/user-auth-service/internal/handler"
	"github.com/prperemyshlev/user-auth-service/internal/service"
	"github.com/prperemyshlev/user-auth-service/internal/utils"
	"github.com/prperemyshlev/user-auth-service/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra   Infrastructure
	config  *config.Config
	router  *gin.Engine
	server  *http.Server
	janitor *Janitor
	auth    service.AuthService
}

type Option func(*options)

type options struct {
	now            func() time.Time
	insecureCookie bool
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithInsecureCookies issues the refresh cookie without the Secure flag.
func WithInsecureCookies() Option {
	return func(o *options) { o.insecureCookie = true }
}

func NewApp(infra Infrastructure, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{now: time.Now, insecureCookie: cfg.Env == "development"}
	for _, opt := range opts {
		opt(&o)
	}

	logger := infra.Logger()

	hasher, err := utils.NewPasswordHasher(cfg.Security.PasswordHasher, cfg.Security.BCryptCost)
	if err != nil {
		return nil, err
	}

	jwtManager := utils.NewJWTManager(utils.TokenConfig{
		Secret:            cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		AccessTokenExpiry: cfg.JWT.AccessTokenExpiry.Duration,
	}, utils.WithJWTClock(o.now))

	metrics, err := newAuthMetrics(infra)
	if err != nil {
		return nil, err
	}

	authService, err := service.NewAuthService(service.Dependencies{
		Store:    infra.Store(),
		Hasher:   hasher,
		Tokens:   jwtManager,
		Notifier: infra.Notifier(),
		Metrics:  metrics,
		Logger:   logger,
	}, service.Config{
		MaxFailedAttempts:  cfg.Security.MaxFailedLoginAttempts,
		LockoutDuration:    cfg.Security.LockoutDuration.Duration,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry.Duration,
		ResetTokenExpiry:   cfg.Security.ResetTokenExpiry.Duration,
		OperationTimeout:   cfg.Security.OperationTimeout.Duration,
		RevokeOnReuse:      cfg.Security.RevokeOnReuse,
	}, service.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	var rateLimiter handler.RateLimiter
	if redis := infra.Redis(); redis != nil {
		rateLimiter = service.NewRateLimiter(redis.Client,
			cfg.Security.RateLimitRequests,
			cfg.Security.RateLimitWindow.Duration,
			service.WithRateLimiterClock(o.now),
		)
	}

	handlerOpts := []handler.Option{handler.WithClock(o.now)}
	if o.insecureCookie {
		handlerOpts = append(handlerOpts, handler.WithInsecureCookies())
	}
	authHandler := handler.NewAuthHandler(authService, logger, handlerOpts...)
	healthChecker := NewHealthChecker(infra)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, authHandler, authService, rateLimiter, healthChecker, infra.MetricsHandler(), logger)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:   infra,
		config:  cfg,
		router:  router,
		server:  srv,
		janitor: NewJanitor(authService, cfg.Security.CleanupInterval.Duration, logger),
		auth:    authService,
	}, nil
}

func newAuthMetrics(infra Infrastructure) (*observability.AuthMetrics, error) {
	mp := infra.MeterProvider()
	if mp == nil {
		return observability.NewAuthMetrics(nil)
	}
	metrics, err := observability.NewAuthMetrics(mp.Meter(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth metrics: %w", err)
	}
	return metrics, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// AuthService exposes the core, for maintenance commands and tests.
func (a *App) AuthService() service.AuthService {
	return a.auth
}

func setupRoutes(
	router *gin.Engine,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	rateLimiter handler.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	limited := handler.RateLimitMiddleware(rateLimiter, handler.RouteAndIPKey, logger)
	authenticated := handler.AuthMiddleware(authService)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", limited, authHandler.Register)
			auth.POST("/login", limited, authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/forgot-password", limited, authHandler.ForgotPassword)
			auth.POST("/reset-password", limited, authHandler.ResetPassword)
			auth.POST("/logout", authenticated, authHandler.Logout)
			auth.GET("/me", authenticated, authHandler.GetMe)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	logger := a.infra.Logger()
	errChan := make(chan error, 1)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.janitor.Run(janitorCtx)
	}()

	go func() {
		logger.Info("Application starting",
			zap.String("addr", a.server.Addr),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		logger.Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		logger.Info("Application stopped by context")
	}

	stopJanitor()
	wg.Wait()

	if err := a.Shutdown(); err != nil {
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	logger := a.infra.Logger()
	logger.Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	if infraErr := a.infra.Shutdown(ctx); infraErr != nil {
		err = errors.Join(err, infraErr)
	}
	if err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("Application exited successfully")
	return nil
}
