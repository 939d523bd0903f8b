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

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab/handlers"
	"github.com/gogotex/gogotex/backend/collab/internal/access"
	"github.com/gogotex/gogotex/backend/collab/internal/collab"
	"github.com/gogotex/gogotex/backend/collab/internal/compile"
	"github.com/gogotex/gogotex/backend/collab/internal/config"
	"github.com/gogotex/gogotex/backend/collab/internal/database"
	"github.com/gogotex/gogotex/backend/collab/internal/document/handler"
	"github.com/gogotex/gogotex/backend/collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab/internal/realtime"
	"github.com/gogotex/gogotex/backend/collab/internal/session"
	"github.com/gogotex/gogotex/backend/collab/internal/storage"
	"github.com/gogotex/gogotex/backend/collab/internal/tickets"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab/pkg/metrics"
	"github.com/gogotex/gogotex/backend/collab/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v remote_compilers=%d",
		cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", len(cfg.Compile.RemoteURLs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probes := map[string]handlers.Probe{}

	// Redis backs the shared rate limiter and ticket revocation when configured.
	var rdb *redis.Client
	if addr := cfg.RedisAddr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v; ticket revocation stays process-local", addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			logger.Infof("Connected to Redis: %s", addr)
			defer func() { _ = rdb.Close() }()
			probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	// MongoDB holds documents, versions and compile jobs. Without it everything lives in memory.
	var (
		store repository.Store
		jobs  compile.JobStore
	)
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.MongoDB.Database)
		store = repository.NewMongoRepo(db)
		jobs = compile.NewMongoJobStore(db)
		probes["mongo"] = mongoProbe(client)
	} else {
		store = repository.NewMemoryRepo()
		jobs = compile.NewMemoryJobStore(0)
	}

	var artifacts compile.ArtifactStore
	if cfg.MinIO.Endpoint != "" {
		s, err := storage.NewMinIOStorage(ctx, &storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			logger.Fatalf("failed to initialize MinIO: %v", err)
		}
		artifacts = compile.NewMinIOStore(s, cfg.MinIO.PresignExpiry)
		probes["minio"] = s.Ping
	} else {
		if err := os.MkdirAll(cfg.Compile.DownloadDir, 0o755); err != nil {
			logger.Fatalf("failed to create download dir: %v", err)
		}
		artifacts = &compile.FileStore{Dir: cfg.Compile.DownloadDir}
	}

	issuer := tickets.NewIssuer(cfg.Ticket.Secret, cfg.Ticket.TTL, rdb)
	gate := access.NewGate(store, cfg.Collab.BcryptCost, issuer)

	registry := session.NewRegistry(store, session.Options{
		DebounceDelay: cfg.Collab.DebounceDelay,
		SweepInterval: cfg.Collab.SweepInterval,
		IOTimeout:     cfg.MongoDB.Timeout,
		Policy: session.VersionPolicy{
			MinDelta:         cfg.Collab.VersionMinDelta,
			QuietInterval:    cfg.Collab.VersionQuietInterval,
			RetainCount:      cfg.Collab.VersionRetain,
			PruneProbability: cfg.Collab.VersionPruneProbability,
		},
	})
	if err := registry.Start(); err != nil {
		logger.Fatalf("failed to start session sweeper: %v", err)
	}

	validator := compile.DefaultValidator(cfg.Compile.MinBytes)
	strategies := []compile.Strategy{&compile.LocalLatex{
		Binary:    cfg.Compile.PDFLatexPath,
		TempDir:   cfg.Compile.TempDir,
		Limit:     cfg.Compile.LocalTimeout,
		Validator: validator,
	}}
	for _, u := range cfg.Compile.RemoteURLs {
		strategies = append(strategies, &compile.RemoteHTTP{
			Endpoint:  u,
			Limit:     cfg.Compile.RemoteTimeout,
			Validator: validator,
		})
	}
	orch, err := compile.NewOrchestrator(registry, strategies, artifacts, jobs, cfg.Compile.MaxStrategies)
	if err != nil {
		logger.Fatalf("invalid compile configuration: %v", err)
	}
	logger.Infof("compile strategies %v, worst case %s", orch.Strategies(), orch.WorstCaseLatency())

	svc := collab.NewService(store, gate, issuer, registry, orch)
	ws := realtime.NewServer(svc, realtime.Options{
		QueueSize:    cfg.Collab.PeerQueueSize,
		HideNotFound: cfg.Collab.HideNotFound,
	})

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	handlers.RegisterHealth(r, probes, startTime)
	handlers.RegisterSwagger(r)
	handlers.RegisterRealtime(r, ws)
	if fs, ok := artifacts.(*compile.FileStore); ok {
		handlers.RegisterDownloads(r, fs.Dir)
	}

	api := r.Group("/")
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	handler.RegisterDocumentRoutes(api, svc)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("Starting collab service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Infof("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Collab.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	// websocket connections are hijacked and outlive srv.Shutdown
	if err := ws.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("realtime shutdown: %v", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("session shutdown: %v", err)
	}
	logger.Infof("collab service stopped")
}

func mongoProbe(client *mongo.Client) handlers.Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
}
