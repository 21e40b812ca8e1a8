package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// EnvPrefix is prepended to every environment variable Load reads.
const EnvPrefix = "IMGLOAD_"

// DecoderBackend selects the decoder factory.
type DecoderBackend string

const (
	DecoderStd  DecoderBackend = "std"
	DecoderVips DecoderBackend = "vips"
)

// StorageBackend selects the adapter that persists fetched bytes.
type StorageBackend string

const (
	StorageNone  StorageBackend = "none"
	StorageLocal StorageBackend = "local"
	StorageRedis StorageBackend = "redis"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int           `yaml:"worker_count" env:"WORKER_COUNT"` // default: runtime.NumCPU()
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE"`     // max queued requests; default: 256
	JobTimeout  time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`

	// Streaming / memory limits.
	MaxImageBytes int64 `yaml:"max_image_bytes" env:"MAX_IMAGE_BYTES"` // 0 = no limit
	MaxPixels     int64 `yaml:"max_pixels" env:"MAX_PIXELS"`           // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size" env:"CHUNK_SIZE"`           // default 32 KiB

	Decoder DecoderBackend `yaml:"decoder" env:"DECODER"`

	HTTP    HTTPConfig    `yaml:"http" envPrefix:"HTTP_"`
	Cache   CacheConfig   `yaml:"cache" envPrefix:"CACHE_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	File    FileConfig    `yaml:"file" envPrefix:"FILE_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

// HTTPConfig configures the http/https fetcher.
type HTTPConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	UserAgent      string        `yaml:"user_agent" env:"USER_AGENT"`
}

// CacheConfig configures the decoded-image memory cache.
type CacheConfig struct {
	MemoryBytes int64 `yaml:"memory_bytes" env:"MEMORY_BYTES"` // 0 disables the cache
	Coalesce    bool  `yaml:"coalesce" env:"COALESCE"`
}

// FileConfig controls the file:// fetcher.  It is off by default; when
// enabled with a Root, only paths under Root can be read.
type FileConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Root    string `yaml:"root" env:"ROOT"`
}

// StorageConfig configures the persistent cache of fetched bytes.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend" env:"BACKEND"`
	Local   LocalConfig    `yaml:"local" envPrefix:"LOCAL_"`
	Redis   RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string `yaml:"root_dir" env:"ROOT_DIR"`
	Permissions string `yaml:"permissions" env:"PERMISSIONS"` // octal, default "0644"
}

// FileMode parses Permissions.
func (l LocalConfig) FileMode() (os.FileMode, error) {
	if l.Permissions == "" {
		return 0o644, nil
	}
	v, err := strconv.ParseUint(l.Permissions, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("permissions %q: %w", l.Permissions, err)
	}
	return os.FileMode(v), nil
}

// RedisConfig configures the Redis storage adapter.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	// AllowFile lets /image load file:// sources.  It has no effect unless
	// File.Enabled is set.
	AllowFile bool `yaml:"allow_file" env:"ALLOW_FILE"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"FORMAT"` // "console" (zerolog) or "json" (slog)
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:   0, // resolved at runtime to NumCPU
		QueueSize:     256,
		JobTimeout:    30 * time.Second,
		MaxImageBytes: 32 << 20,
		MaxPixels:     64 << 20,
		ChunkSize:     32 * 1024,
		Decoder:       DecoderStd,
		HTTP: HTTPConfig{
			ConnectTimeout: 15 * time.Second,
			ReadTimeout:    15 * time.Second,
			UserAgent:      "imgload/1.0",
		},
		Cache: CacheConfig{
			MemoryBytes: 64 << 20,
			Coalesce:    true,
		},
		Storage: StorageConfig{
			Backend: StorageNone,
			Local:   LocalConfig{RootDir: "./.imgload-cache", Permissions: "0644"},
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "imgload:", TTL: 24 * time.Hour},
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	var errs []error
	if c.WorkerCount < 0 {
		errs = append(errs, errors.New("WorkerCount must not be negative"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("QueueSize must be positive"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("ChunkSize must be positive"))
	}
	if c.Server.AllowFile && !c.File.Enabled {
		errs = append(errs, errors.New("Server.AllowFile requires File.Enabled"))
	}
	if c.MaxImageBytes < 0 || c.MaxPixels < 0 || c.Cache.MemoryBytes < 0 {
		errs = append(errs, errors.New("size limits must not be negative"))
	}
	switch c.Decoder {
	case DecoderStd, DecoderVips:
	default:
		errs = append(errs, fmt.Errorf("unknown decoder %q", c.Decoder))
	}
	switch c.Storage.Backend {
	case StorageNone:
	case StorageLocal:
		if c.Storage.Local.RootDir == "" {
			errs = append(errs, errors.New("Storage.Local.RootDir is required"))
		}
		if _, err := c.Storage.Local.FileMode(); err != nil {
			errs = append(errs, err)
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("Storage.Redis.Addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return apperrors.New(apperrors.CategoryConfig, "config.validate", err)
	}
	return nil
}

// Load builds a Config from Default, then the YAML file at path (skipped
// when path is empty), then IMGLOAD_* environment variables.  A .env file
// in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, apperrors.New(apperrors.CategoryConfig, "config.load", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, apperrors.New(apperrors.CategoryConfig, "config.load",
				fmt.Errorf("parse %s: %w", path, err))
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, apperrors.New(apperrors.CategoryConfig, "config.load", fmt.Errorf("parse env: %w", err))
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
