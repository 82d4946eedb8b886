package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration
type Config struct {
	Server ServerConfig
	Engine EngineConfig
	Cache  CacheConfig
	Auth   AuthConfig
}

// ServerConfig holds REST/gRPC listener configuration
type ServerConfig struct {
	Host            string        // Server host (default: "0.0.0.0")
	Port            int           // gRPC port (default: 50051)
	RESTPort        int           // REST port (default: 8080)
	MaxConnections  int           // Max concurrent connections
	RequestTimeout  time.Duration // Request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
	EnableTLS       bool          // Enable TLS
	CertFile        string        // TLS certificate file
	KeyFile         string        // TLS key file
}

// EngineConfig holds the disk-resident ANN engine's open() parameters and
// default search knobs.
type EngineConfig struct {
	IndexPrefix       string // flat index path, or array-backend sidecar prefix
	TensorsPrefix     string // array-backend prefix; empty unless UseTensors
	UseTensors        bool
	UseTensorsAsync   bool
	RemoteAddr        string // non-empty routes the array backend over HTTP
	NumThreads        int
	DefaultL          int // candidate list size
	DefaultBeamWidth  int
	DefaultIOLimit    int
	DefaultUseReorder bool
	CacheListSize     int // number of ids bfs_cache selects for warm_cache
	CachePoolBytes    int64
}

// CacheConfig holds REST response-cache configuration. This is distinct
// from the engine's on-disk node cache (warm_cache/bfs_cache); it caches
// whole query responses at the HTTP layer.
type CacheConfig struct {
	Enabled  bool          // Enable query caching
	Capacity int           // Max cache entries
	TTL      time.Duration // Time to live for cache entries
}

// AuthConfig holds REST API bearer-token auth configuration.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			RESTPort:        8080,
			MaxConnections:  1000,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableTLS:       false,
		},
		Engine: EngineConfig{
			IndexPrefix:       "./data/index",
			NumThreads:        8,
			DefaultL:          64,
			DefaultBeamWidth:  4,
			DefaultIOLimit:    0,
			DefaultUseReorder: true,
			CacheListSize:     10000,
			CachePoolBytes:    5 << 30,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := Default()

	// Server configuration
	if host := os.Getenv("DISKANN_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("DISKANN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if restPort := os.Getenv("DISKANN_REST_PORT"); restPort != "" {
		if p, err := strconv.Atoi(restPort); err == nil {
			cfg.Server.RESTPort = p
		}
	}
	if maxConn := os.Getenv("DISKANN_MAX_CONNECTIONS"); maxConn != "" {
		if mc, err := strconv.Atoi(maxConn); err == nil {
			cfg.Server.MaxConnections = mc
		}
	}
	if timeout := os.Getenv("DISKANN_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if enableTLS := os.Getenv("DISKANN_ENABLE_TLS"); enableTLS == "true" {
		cfg.Server.EnableTLS = true
		cfg.Server.CertFile = os.Getenv("DISKANN_TLS_CERT")
		cfg.Server.KeyFile = os.Getenv("DISKANN_TLS_KEY")
	}

	// Engine configuration
	if prefix := os.Getenv("DISKANN_INDEX_PREFIX"); prefix != "" {
		cfg.Engine.IndexPrefix = prefix
	}
	if prefix := os.Getenv("DISKANN_TENSORS_PREFIX"); prefix != "" {
		cfg.Engine.TensorsPrefix = prefix
		cfg.Engine.UseTensors = true
	}
	if async := os.Getenv("DISKANN_TENSORS_ASYNC"); async == "true" {
		cfg.Engine.UseTensorsAsync = true
	}
	if addr := os.Getenv("DISKANN_REMOTE_ADDR"); addr != "" {
		cfg.Engine.RemoteAddr = addr
	}
	if threads := os.Getenv("DISKANN_NUM_THREADS"); threads != "" {
		if n, err := strconv.Atoi(threads); err == nil {
			cfg.Engine.NumThreads = n
		}
	}
	if l := os.Getenv("DISKANN_DEFAULT_L"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			cfg.Engine.DefaultL = v
		}
	}
	if beam := os.Getenv("DISKANN_DEFAULT_BEAM_WIDTH"); beam != "" {
		if v, err := strconv.Atoi(beam); err == nil {
			cfg.Engine.DefaultBeamWidth = v
		}
	}
	if ioLimit := os.Getenv("DISKANN_DEFAULT_IO_LIMIT"); ioLimit != "" {
		if v, err := strconv.Atoi(ioLimit); err == nil {
			cfg.Engine.DefaultIOLimit = v
		}
	}
	if reorder := os.Getenv("DISKANN_DEFAULT_USE_REORDER"); reorder == "false" {
		cfg.Engine.DefaultUseReorder = false
	}
	if size := os.Getenv("DISKANN_CACHE_LIST_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			cfg.Engine.CacheListSize = v
		}
	}
	if bytes := os.Getenv("DISKANN_CACHE_POOL_BYTES"); bytes != "" {
		if v, err := strconv.ParseInt(bytes, 10, 64); err == nil {
			cfg.Engine.CachePoolBytes = v
		}
	}

	// Response cache configuration
	if cacheEnabled := os.Getenv("DISKANN_RESPONSE_CACHE_ENABLED"); cacheEnabled == "false" {
		cfg.Cache.Enabled = false
	}
	if capacity := os.Getenv("DISKANN_RESPONSE_CACHE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = c
		}
	}
	if ttl := os.Getenv("DISKANN_RESPONSE_CACHE_TTL"); ttl != "" {
		if t, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.TTL = t
		}
	}

	// Auth configuration
	if enabled := os.Getenv("DISKANN_AUTH_ENABLED"); enabled == "true" {
		cfg.Auth.Enabled = true
	}
	if secret := os.Getenv("DISKANN_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.RESTPort < 1 || c.Server.RESTPort > 65535 {
		return fmt.Errorf("invalid REST port: %d (must be 1-65535)", c.Server.RESTPort)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("invalid max connections: %d (must be > 0)", c.Server.MaxConnections)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
	}

	// Engine validation
	if c.Engine.IndexPrefix == "" {
		return fmt.Errorf("index prefix not specified")
	}
	if c.Engine.UseTensors && c.Engine.TensorsPrefix == "" {
		return fmt.Errorf("use_tensors set but tensors prefix not specified")
	}
	if c.Engine.NumThreads < 1 {
		return fmt.Errorf("invalid num_threads: %d (must be > 0)", c.Engine.NumThreads)
	}
	if c.Engine.DefaultL < 1 {
		return fmt.Errorf("invalid default L: %d (must be > 0)", c.Engine.DefaultL)
	}
	if c.Engine.DefaultBeamWidth < 1 {
		return fmt.Errorf("invalid default beam width: %d (must be > 0)", c.Engine.DefaultBeamWidth)
	}

	// Response cache validation
	if c.Cache.Enabled && c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be > 0)", c.Cache.Capacity)
	}

	// Auth validation
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but JWT secret not specified")
	}

	return nil
}

// Address returns the gRPC server address (host:port)
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RESTAddress returns the REST server address (host:port)
func (c *ServerConfig) RESTAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.RESTPort)
}
