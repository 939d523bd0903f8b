package config

import (
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/collab/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Collab    CollabConfig
	Compile   CompileConfig
	Ticket    TicketConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	PresignExpiry time.Duration
}

// CollabConfig tunes the session engine: debounce, sweep, version policy and shutdown.
type CollabConfig struct {
	DebounceDelay           time.Duration
	SweepInterval           time.Duration
	VersionMinDelta         int
	VersionQuietInterval    time.Duration
	VersionRetain           int
	VersionPruneProbability float64
	ShutdownGrace           time.Duration
	PeerQueueSize           int
	BcryptCost              int
	HideNotFound            bool
}

type CompileConfig struct {
	PDFLatexPath  string
	LocalTimeout  time.Duration
	RemoteURLs    []string
	RemoteTimeout time.Duration
	MinBytes      int
	MaxStrategies int
	TempDir       string
	DownloadDir   string
}

type TicketConfig struct {
	Secret string
	TTL    time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "gogotex")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("MINIO_BUCKET", "gogotex")
	viper.SetDefault("MINIO_PRESIGN_MINUTES", 60)

	viper.SetDefault("COLLAB_DEBOUNCE_MS", 5000)
	viper.SetDefault("COLLAB_SWEEP_SECONDS", 30)
	viper.SetDefault("COLLAB_VERSION_MIN_DELTA", 50)
	viper.SetDefault("COLLAB_VERSION_QUIET_SECONDS", 30)
	viper.SetDefault("COLLAB_VERSION_RETAIN", 50)
	viper.SetDefault("COLLAB_VERSION_PRUNE_PROBABILITY", 0.1)
	viper.SetDefault("COLLAB_SHUTDOWN_GRACE_SECONDS", 10)
	viper.SetDefault("COLLAB_PEER_QUEUE_SIZE", 256)
	viper.SetDefault("BCRYPT_COST", 10)
	viper.SetDefault("JOIN_HIDE_NOT_FOUND", false)

	viper.SetDefault("COMPILE_PDFLATEX_PATH", "pdflatex")
	viper.SetDefault("COMPILE_LOCAL_TIMEOUT_SECONDS", 30)
	viper.SetDefault("COMPILE_REMOTE_TIMEOUT_SECONDS", 20)
	viper.SetDefault("COMPILE_MIN_BYTES", 1024)
	viper.SetDefault("COMPILE_MAX_STRATEGIES", 4)
	viper.SetDefault("COMPILE_TEMP_DIR", "temp")
	viper.SetDefault("COMPILE_DOWNLOAD_DIR", "downloads")

	viper.SetDefault("TICKET_TTL_MINUTES", 60)

	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_RPS", 20)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:      viper.GetString("MINIO_ENDPOINT"),
			AccessKey:     viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey:     viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:        viper.GetBool("MINIO_USE_SSL"),
			Bucket:        viper.GetString("MINIO_BUCKET"),
			PresignExpiry: time.Duration(viper.GetInt("MINIO_PRESIGN_MINUTES")) * time.Minute,
		},
		Collab: CollabConfig{
			DebounceDelay:           time.Duration(viper.GetInt("COLLAB_DEBOUNCE_MS")) * time.Millisecond,
			SweepInterval:           time.Duration(viper.GetInt("COLLAB_SWEEP_SECONDS")) * time.Second,
			VersionMinDelta:         viper.GetInt("COLLAB_VERSION_MIN_DELTA"),
			VersionQuietInterval:    time.Duration(viper.GetInt("COLLAB_VERSION_QUIET_SECONDS")) * time.Second,
			VersionRetain:           viper.GetInt("COLLAB_VERSION_RETAIN"),
			VersionPruneProbability: viper.GetFloat64("COLLAB_VERSION_PRUNE_PROBABILITY"),
			ShutdownGrace:           time.Duration(viper.GetInt("COLLAB_SHUTDOWN_GRACE_SECONDS")) * time.Second,
			PeerQueueSize:           viper.GetInt("COLLAB_PEER_QUEUE_SIZE"),
			BcryptCost:              viper.GetInt("BCRYPT_COST"),
			HideNotFound:            viper.GetBool("JOIN_HIDE_NOT_FOUND"),
		},
		Compile: CompileConfig{
			PDFLatexPath:  viper.GetString("COMPILE_PDFLATEX_PATH"),
			LocalTimeout:  time.Duration(viper.GetInt("COMPILE_LOCAL_TIMEOUT_SECONDS")) * time.Second,
			RemoteURLs:    splitList(viper.GetString("COMPILE_REMOTE_URLS")),
			RemoteTimeout: time.Duration(viper.GetInt("COMPILE_REMOTE_TIMEOUT_SECONDS")) * time.Second,
			MinBytes:      viper.GetInt("COMPILE_MIN_BYTES"),
			MaxStrategies: viper.GetInt("COMPILE_MAX_STRATEGIES"),
			TempDir:       viper.GetString("COMPILE_TEMP_DIR"),
			DownloadDir:   viper.GetString("COMPILE_DOWNLOAD_DIR"),
		},
		Ticket: TicketConfig{
			Secret: viper.GetString("TICKET_SECRET"),
			TTL:    time.Duration(viper.GetInt("TICKET_TTL_MINUTES")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.Ticket.Secret == "" {
		logger.Warnf("TICKET_SECRET is not set; join tickets use an ephemeral per-process secret")
	}
	if cfg.MongoDB.URI == "" {
		logger.Warnf("MONGODB_URI is not set; documents are kept in memory only")
	}

	return cfg, nil
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return c.Redis.Host + ":" + c.Redis.Port
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
