package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=5000"`
	GrpcPort             int           `env:"GRPC_PORT,default=5001"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MaxTrackedMessages   int           `env:"MAX_TRACKED_MESSAGES,default=10000"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=60s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	AuthSecret           string        `env:"AUTH_SECRET"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH"`
	SinkBufferSize       int           `env:"SINK_BUFFER_SIZE,default=512"`
	EnableModeration     bool          `env:"ENABLE_MODERATION,default=false"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
}

// Origins splits ALLOWED_ORIGINS. An empty list accepts every origin.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	})
	return lo.Compact(origins)
}

func (c Config) Validate() error {
	if c.MaxTrackedMessages <= 0 {
		return fmt.Errorf("MAX_TRACKED_MESSAGES must be positive, got %d", c.MaxTrackedMessages)
	}
	if c.PongTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("PONG_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 || c.SinkBufferSize <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
