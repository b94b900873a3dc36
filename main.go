package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evault/evault/handlers"
	"github.com/evault/evault/internal/accounts"
	"github.com/evault/evault/internal/config"
	"github.com/evault/evault/internal/database"
	dochandler "github.com/evault/evault/internal/document/handler"
	"github.com/evault/evault/internal/document/repository"
	docservice "github.com/evault/evault/internal/document/service"
	"github.com/evault/evault/internal/integrity"
	"github.com/evault/evault/internal/notify"
	"github.com/evault/evault/internal/sessions"
	"github.com/evault/evault/internal/storage"
	"github.com/evault/evault/internal/tokens"
	"github.com/evault/evault/pkg/logger"
	"github.com/evault/evault/pkg/metrics"
	"github.com/evault/evault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: env=%s mongo=%v redis=%v storage=%s attestation=%s mail=%v",
		cfg.Server.Environment, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Storage.Backend, cfg.Attestation.Backend, cfg.Mail.Host != "")
	if cfg.JWT.Generated {
		logger.Warnf("JWT_SECRET is not set; using a random per-process secret (tokens will not survive a restart)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: token revocation and the rate limiter use it when reachable
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pctx).Err()
		cancel()
		if err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
			_ = client.Close()
		} else {
			rdb = client
			defer rdb.Close()
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
		}
	}

	var revoked sessions.Store
	if rdb != nil {
		revoked = sessions.NewRedisStore(rdb, "")
	} else {
		revoked = sessions.NewMemoryStore()
		logger.Warnf("using in-memory token revocation; logouts do not survive a restart")
	}

	// MongoDB holds accounts and documents; without it everything stays in memory
	var mclient *mongo.Client
	var accountRepo accounts.Repository
	var documentRepo repository.Repository
	if cfg.MongoDB.URI != "" {
		mclient, err = database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectAttempts)
		if err != nil {
			if cfg.Server.Production() {
				logger.Fatalf("could not connect to MongoDB: %v", err)
			}
			logger.Warnf("could not connect to MongoDB (%v); using in-memory repositories", err)
		} else {
			defer func() { _ = mclient.Disconnect(context.Background()) }()
			db := mclient.Database(cfg.MongoDB.Database)
			if accountRepo, err = accounts.NewMongoRepository(ctx, db.Collection("accounts")); err != nil {
				logger.Fatalf("accounts repository: %v", err)
			}
			if documentRepo, err = repository.NewMongoRepo(ctx, db.Collection("documents")); err != nil {
				logger.Fatalf("documents repository: %v", err)
			}
			logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
		}
	}
	if accountRepo == nil {
		accountRepo = accounts.NewMemoryRepository()
		documentRepo = repository.NewMemoryRepo()
	}

	blobs, err := storage.New(ctx, cfg.Storage.Config)
	if err != nil {
		logger.Fatalf("blob storage: %v", err)
	}

	var backend integrity.AttestationBackend = integrity.NewSuffixBackend()
	if cfg.Attestation.Backend == "hmac" {
		hb, err := integrity.NewHMACBackend(cfg.Attestation.Secret)
		if err != nil {
			logger.Fatalf("attestation backend: %v", err)
		}
		backend = hb
	}
	engine := integrity.NewEngine(backend)

	notifier, err := newNotifier(cfg)
	if err != nil {
		logger.Fatalf("mail notifier: %v", err)
	}

	accountSvc := accounts.NewService(accountRepo, notifier, accounts.Config{
		CodeTTL:         cfg.Verification.CodeTTL,
		DispatchTimeout: time.Duration(max(cfg.Mail.Retries, 0)+1)*cfg.Mail.Timeout + 5*time.Second,
	})
	tokenMgr, err := tokens.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	if err != nil {
		logger.Fatalf("token manager: %v", err)
	}
	documentSvc := docservice.New(documentRepo, blobs, engine, accountSvc, docservice.Config{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		AllowedTypes:   cfg.Upload.AllowedTypes,
		StorageTimeout: cfg.Storage.Timeout,
	})

	if cfg.Server.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(cors(cfg.Server.AllowedOrigins))
	r.Use(middleware.RequestLogger(logger.Named("http")), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when every configured dependency answers
	r.GET("/ready", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		if cfg.MongoDB.URI != "" {
			deps["mongodb"] = mclient != nil && mclient.Ping(rctx, nil) == nil
			ready = ready && deps["mongodb"]
		}
		if cfg.Redis.Host != "" {
			deps["redis"] = rdb != nil && rdb.Ping(rctx).Err() == nil
			ready = ready && deps["redis"]
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	requireAuth := middleware.AuthMiddleware(tokenMgr, revoked)
	public := r.Group("/", rateLimiter(cfg, rdb)...)
	handlers.NewAuthHandler(accountSvc, tokenMgr, revoked).Register(public, requireAuth)

	// rate limiting runs after authentication so it is keyed per account
	protected := r.Group("/", append([]gin.HandlerFunc{requireAuth}, rateLimiter(cfg, rdb)...)...)
	dochandler.RegisterDocumentRoutes(protected, documentSvc, dochandler.Options{MaxUploadBytes: cfg.Upload.MaxBytes})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting E-Vault API on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// newNotifier sends verification codes over SMTP when MAIL_HOST is set. The
// log notifier is only allowed outside production.
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.Mail.Host == "" {
		if cfg.Server.Production() {
			return nil, errors.New("MAIL_HOST is required in production")
		}
		logger.Warnf("MAIL_HOST is not set; verification codes are only written to the log")
		return notify.NewLogNotifier(), nil
	}
	mail, err := notify.NewMailNotifier(notify.MailConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		UseTLS:   cfg.Mail.UseTLS,
		Expiry:   humanDuration(cfg.Verification.CodeTTL),
	})
	if err != nil {
		return nil, err
	}
	return notify.NewRetryingNotifier(mail, notify.RetryConfig{
		MaxRetries:     uint64(max(cfg.Mail.Retries, 0)),
		AttemptTimeout: cfg.Mail.Timeout,
	}), nil
}

// rateLimiter returns the configured limiter, or nothing when disabled.
func rateLimiter(cfg *config.Config, rdb *redis.Client) []gin.HandlerFunc {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if cfg.RateLimit.UseRedis && rdb != nil {
		win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		return []gin.HandlerFunc{middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)}
	}
	return []gin.HandlerFunc{middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)}
}

// cors sets common headers and answers preflight requests.
func cors(origins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
