// Command checksetup verifies that the collab service can reach its
// dependencies and that the compile toolchain and directories are usable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/config"
	"github.com/gogotex/gogotex/backend/collab/internal/database"
	"github.com/gogotex/gogotex/backend/collab/internal/storage"
	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type check struct {
	name     string
	required bool
	run      func(ctx context.Context, cfg *config.Config) error
}

var checks = []check{
	{"directories", true, checkDirs},
	{"pdflatex", false, checkLatex},
	{"mongodb", false, checkMongo},
	{"redis", false, checkRedis},
	{"minio", false, checkMinIO},
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	failed := false
	for _, c := range checks {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.run(ctx, cfg)
		cancel()
		switch {
		case err == nil:
			logger.Infof("ok    %s", c.name)
		case c.required:
			logger.Errorf("FAIL  %s: %v", c.name, err)
			failed = true
		default:
			logger.Warnf("warn  %s: %v", c.name, err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func checkDirs(_ context.Context, cfg *config.Config) error {
	for _, dir := range []string{cfg.Compile.TempDir, cfg.Compile.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("%s not writable: %w", dir, err)
		}
		f.Close()
		os.Remove(f.Name())
	}
	return nil
}

func checkLatex(ctx context.Context, cfg *config.Config) error {
	path, err := exec.LookPath(cfg.Compile.PDFLatexPath)
	if err != nil {
		if len(cfg.Compile.RemoteURLs) == 0 {
			return fmt.Errorf("%w and no remote compilers configured", err)
		}
		return fmt.Errorf("%w; relying on %d remote compilers", err, len(cfg.Compile.RemoteURLs))
	}
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return err
	}
	logger.Debugf("pdflatex: %s", firstLine(out))
	return nil
}

func checkMongo(ctx context.Context, cfg *config.Config) error {
	if cfg.MongoDB.URI == "" {
		return fmt.Errorf("MONGODB_URI not set; documents will not survive restarts")
	}
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		return err
	}
	return client.Disconnect(ctx)
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	addr := cfg.RedisAddr()
	if addr == "" {
		return fmt.Errorf("REDIS_HOST not set; ticket revocation is per process")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	return rdb.Ping(ctx).Err()
}

func checkMinIO(ctx context.Context, cfg *config.Config) error {
	if cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("MINIO_ENDPOINT not set; PDFs are written to %s", cfg.Compile.DownloadDir)
	}
	s, err := storage.NewMinIOStorage(ctx, &storage.MinIOConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		UseSSL:    cfg.MinIO.UseSSL,
		Bucket:    cfg.MinIO.Bucket,
	})
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
