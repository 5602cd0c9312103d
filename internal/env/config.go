package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// DebugHTTP leaves gin in debug mode and enables verbose access logs.
	DebugHTTP bool `env:"LIVE_DEBUG_HTTP"`

	// AcceptBacklog is advisory. Go's net package does not expose the
	// listen backlog, so the value is logged for operators but the kernel
	// applies its own cap.
	AcceptBacklog int `env:"LIVE_ACCEPT_BACKLOG,default=128"`

	// RequestTimeoutMs is how long the host gets to answer a forwarded
	// request before the requester is sent a timeout error.
	RequestTimeoutMs int `env:"LIVE_REQUEST_TIMEOUT_MS,default=5000"`

	// MaxBufferBytes is the hard per-connection ceiling on buffered unread
	// bytes. A connection that exceeds it is kicked.
	MaxBufferBytes int `env:"LIVE_MAX_BUFFER_BYTES,default=10485760"`

	// InitialBufferBytes is the starting capacity of each connection's
	// frame buffer. It doubles as needed up to MaxBufferBytes.
	InitialBufferBytes int `env:"LIVE_INITIAL_BUFFER_BYTES,default=1024"`

	// SendQueueLength bounds each connection's outbound queue. When the
	// queue is full new messages are dropped; a connection in that state
	// is usually broken or fatally slow.
	SendQueueLength int `env:"LIVE_SEND_QUEUE_LENGTH,default=64"`
}

// RequestTimeout converts the configured millisecond count into a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
