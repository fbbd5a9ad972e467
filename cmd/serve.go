package cmd

import (
	"context"
	"database/sql"
	"net"
	"time"

	"github.com/stacklaunch-io/ms-go-accounts/app/controller"
	"github.com/stacklaunch-io/ms-go-accounts/app/middleware"
	"github.com/stacklaunch-io/ms-go-accounts/app/repository"
	"github.com/stacklaunch-io/ms-go-accounts/app/service"
	"github.com/stacklaunch-io/ms-go-accounts/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server and the background expiry sweeper.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	tiers, err := lockoutTiers(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse lockout tiers")
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	hasher := service.NewPasswordHasher(argon2Params(cfg))
	lockout := service.NewLockoutPolicy(tiers)
	authService := service.NewAuthService(userRepo, tokenRepo, sessionRepo, hasher, lockout, cfg)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweeper := service.NewExpirySweeper(tokenRepo, sessionRepo, cfg.CleanupInterval)
	go sweeper.Run(sweepCtx)

	startHTTPServer(cfg, authService)
}

func startHTTPServer(cfg *config.Config, authService service.AuthService) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	authController := controller.NewAuthController(authService)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, newRedisClient(cfg))

	auth := e.Group("/auth")
	auth.POST("/register", authController.Register, rateLimiter)
	auth.POST("/login", authController.Login, rateLimiter)
	auth.POST("/refresh", authController.Refresh)
	auth.POST("/logout", authController.Logout)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.POST("/logout-all", authController.LogoutAll)
	authProtected.GET("/me", authController.Me)
	authProtected.GET("/sessions", authController.Sessions)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}

// newRedisClient returns nil when Redis is not configured or unreachable;
// the rate limiter degrades to a pass-through in that case.
func newRedisClient(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unreachable, rate limiting disabled")
		return nil
	}
	return client
}

func argon2Params(cfg *config.Config) service.Argon2Params {
	params := service.DefaultArgon2Params()
	if cfg.Argon2.MemoryKiB > 0 {
		params.Memory = uint32(cfg.Argon2.MemoryKiB)
	}
	if cfg.Argon2.Iterations > 0 {
		params.Iterations = uint32(cfg.Argon2.Iterations)
	}
	if cfg.Argon2.Parallelism > 0 {
		params.Parallelism = uint8(cfg.Argon2.Parallelism)
	}
	return params
}

func lockoutTiers(cfg *config.Config) ([]service.LockoutTier, error) {
	parsed, err := cfg.Lockout.ParseLockoutTiers()
	if err != nil {
		return nil, err
	}

	tiers := make([]service.LockoutTier, 0, len(parsed))
	for _, tier := range parsed {
		tiers = append(tiers, service.LockoutTier{Attempts: tier.Attempts, Duration: tier.Duration})
	}
	return tiers, nil
}
