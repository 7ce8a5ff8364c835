package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("server: invalid config")

// DefaultReplyTemplate is the reply sent for every data frame. The
// {payload} placeholder is replaced with the received payload as text.
const DefaultReplyTemplate = "message received by server: " + PayloadPlaceholder

// PayloadPlaceholder marks where the received payload goes in a reply template.
const PayloadPlaceholder = "{payload}"

// Config configures the WebSocket server and its sessions.
type Config struct {
	// Addr is the TCP address the WebSocket endpoint listens on.
	Addr string `yaml:"addr"`

	// DemoHTTPAddr is the address of the plain HTTP demo endpoint.
	// Empty disables it.
	DemoHTTPAddr string `yaml:"demo_http_addr"`

	// ReusePort sets SO_REUSEPORT on the listening socket so several
	// processes can share the address. Only supported on unix platforms.
	ReusePort bool `yaml:"reuse_port"`

	// HandshakeTimeout bounds the time between accepting a connection and
	// receiving a complete upgrade request. Zero disables the limit.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ReadTimeout closes an open session that receives nothing for this long.
	// Zero disables the limit.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds every write to the peer. Zero disables the limit.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes limits the size of the upgrade request head.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxFrameSize limits the declared payload length of a single frame.
	// Zero disables the limit.
	MaxFrameSize int64 `yaml:"max_frame_size"`

	// ReadBufferSize is the size of each socket read.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// MaxConnections caps the number of simultaneously accepted
	// connections. Zero means unlimited.
	MaxConnections int `yaml:"max_connections"`

	// ReplyTemplate is rendered for every non-close frame.
	ReplyTemplate string `yaml:"reply_template"`

	// AutoPong answers PING frames with a PONG carrying the same payload
	// and ignores PONG frames, instead of replying with ReplyTemplate.
	AutoPong bool `yaml:"auto_pong"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// RateLimitConfig configures the per-session inbound frame rate limit.
type RateLimitConfig struct {
	Enabled         bool    `yaml:"enabled"`
	FramesPerSecond float64 `yaml:"frames_per_second"`
	Burst           int     `yaml:"burst"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:             "127.0.0.1:3000",
		DemoHTTPAddr:     ":8080",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxHeaderBytes:   8 << 10,
		MaxFrameSize:     16 << 20,
		ReadBufferSize:   4096,
		ReplyTemplate:    DefaultReplyTemplate,
		RateLimit: RateLimitConfig{
			FramesPerSecond: 100,
			Burst:           200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Unknown keys are
// rejected. An empty file yields the defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}

// ParseConfig decodes YAML from r on top of DefaultConfig and validates it.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	case c.HandshakeTimeout < 0, c.ReadTimeout < 0, c.WriteTimeout < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case c.MaxHeaderBytes <= 0:
		return fmt.Errorf("%w: max_header_bytes must be positive", ErrInvalidConfig)
	case c.MaxFrameSize < 0:
		return fmt.Errorf("%w: max_frame_size must not be negative", ErrInvalidConfig)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("%w: read_buffer_size must be positive", ErrInvalidConfig)
	case c.MaxConnections < 0:
		return fmt.Errorf("%w: max_connections must not be negative", ErrInvalidConfig)
	}

	if c.RateLimit.Enabled && (c.RateLimit.FramesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: rate_limit needs positive frames_per_second and burst", ErrInvalidConfig)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}
