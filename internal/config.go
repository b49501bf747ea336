package internal

import (
	"fmt"
	"strings"
	"time"
)

const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	GRPCPort             int           `env:"GRPC_PORT,default=50051"`
	HTTPPort             int           `env:"HTTP_PORT,default=8080"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=1000"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=240"`
	Storage              string        `env:"STORAGE,default=memory"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	ChannelIdleTTL       time.Duration `env:"CHANNEL_IDLE_TTL,default=10m"`
	JanitorInterval      time.Duration `env:"JANITOR_INTERVAL,default=1m"`
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=30s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	OTLPEndpoint         string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CORSAllowedOrigins   string        `env:"CORS_ALLOWED_ORIGINS"`
}

// Validate checks the values go-env cannot check by itself.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required when STORAGE=%s", StorageBadger)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StorageBadger, c.Storage)
	}
	if c.ConnectionBufferSize < 2 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be at least 2, got %d", c.ConnectionBufferSize)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// AllowedOrigins splits the comma separated CORS_ALLOWED_ORIGINS value.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
