// Package config loads relay configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendRPC     = "rpc"
	BackendPostGIS = "postgis"

	EncodingGeoJSON = "geojson"
	EncodingWKT     = "wkt"
)

type StoreCfg struct {
	URL         string        `env:"SUPABASE_URL"`
	Key         string        `env:"SUPABASE_ANON_KEY"`
	DatabaseURL string        `env:"DATABASE_URL"`
	Function    string        `env:"RPC_FUNCTION" envDefault:"intersect_zonasi"`
	Param       string        `env:"RPC_PARAM" envDefault:"user_polygon_wkt"`
	Encoding    string        `env:"GEOMETRY_ENCODING" envDefault:"geojson"`
	Timeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"30s"`
}

type RelayCfg struct {
	PolygonField    string        `env:"POLYGON_FIELD" envDefault:"userPolygonGeoJSON"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	AllowedOrigin   string        `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
	CORSPreflight   bool          `env:"CORS_PREFLIGHT" envDefault:"false"`
	FunctionRoute   string        `env:"FUNCTION_ROUTE" envDefault:"/functions/v1/check-tata-ruang"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type CacheCfg struct {
	Enabled      bool          `env:"CACHE_ENABLED" envDefault:"false"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"32"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"1s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"1s"`
	TTL          time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	OpTimeout    time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"250ms"`
	H3Res        int           `env:"H3_RES" envDefault:"8"`
}

type InvalidationCfg struct {
	Enabled bool     `env:"INVALIDATION_ENABLED" envDefault:"false"`
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"zoning-changes"`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"zoning-relay-invalidator"`
}

type MetricsCfg struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"METRICS_ADDR" envDefault:":9090"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

type Config struct {
	Addr       string `env:"ADDR" envDefault:":8090"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole bool   `env:"LOG_CONSOLE" envDefault:"false"`
	LogSampleN int    `env:"LOG_SAMPLE_N" envDefault:"0"`
	Backend    string `env:"BACKEND" envDefault:"rpc"`

	Store        StoreCfg
	Relay        RelayCfg
	Cache        CacheCfg
	Invalidation InvalidationCfg
	Metrics      MetricsCfg
}

// LoadDotEnv loads the given dotenv files that exist. Variables already set in
// the process environment win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv parses the process environment. The result is not validated.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// FromMap parses cfg from an explicit variable set (tests, tooling).
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Store.URL = strings.TrimRight(strings.TrimSpace(c.Store.URL), "/")
	c.Store.Key = strings.TrimSpace(c.Store.Key)
	c.Store.Encoding = strings.ToLower(strings.TrimSpace(c.Store.Encoding))
	c.Relay.PolygonField = strings.TrimSpace(c.Relay.PolygonField)
	if c.Cache.H3Res < 0 {
		c.Cache.H3Res = 0
	}
	if c.Cache.H3Res > 15 {
		c.Cache.H3Res = 15
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether s is usable as a (schema-qualified) SQL function name.
func ValidIdentifier(s string) bool {
	return len(s) <= 128 && identPattern.MatchString(s)
}

// Validate reports every problem with the configuration in one error.
func (c Config) Validate() error {
	var errs []error

	if c.Store.URL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required (base URL of the spatial store)"))
	} else if u, err := url.Parse(c.Store.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SUPABASE_URL %q is not an absolute URL", c.Store.URL))
	}
	if c.Store.Key == "" {
		errs = append(errs, errors.New("SUPABASE_ANON_KEY is required (access key for the spatial store)"))
	}

	switch c.Backend {
	case BackendRPC:
	case BackendPostGIS:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when BACKEND=postgis"))
		}
	default:
		errs = append(errs, fmt.Errorf("BACKEND must be %s or %s (got %q)", BackendRPC, BackendPostGIS, c.Backend))
	}

	if !ValidIdentifier(c.Store.Function) {
		errs = append(errs, fmt.Errorf("RPC_FUNCTION %q is not a valid identifier", c.Store.Function))
	}
	if !ValidIdentifier(c.Store.Param) {
		errs = append(errs, fmt.Errorf("RPC_PARAM %q is not a valid identifier", c.Store.Param))
	}
	switch c.Store.Encoding {
	case EncodingGeoJSON, EncodingWKT:
	default:
		errs = append(errs, fmt.Errorf("GEOMETRY_ENCODING must be %s or %s (got %q)", EncodingGeoJSON, EncodingWKT, c.Store.Encoding))
	}

	if c.Relay.PolygonField == "" {
		errs = append(errs, errors.New("POLYGON_FIELD must not be empty"))
	}
	if c.Relay.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	if c.Relay.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must not be negative"))
	}

	if c.Cache.Enabled {
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when CACHE_ENABLED=true"))
		}
		if c.Cache.PoolSize <= 0 {
			errs = append(errs, errors.New("REDIS_POOL_SIZE must be positive"))
		}
	}
	if c.Invalidation.Enabled {
		if !c.Cache.Enabled {
			errs = append(errs, errors.New("INVALIDATION_ENABLED requires CACHE_ENABLED"))
		}
		if len(c.Invalidation.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when INVALIDATION_ENABLED=true"))
		}
	}

	return errors.Join(errs...)
}
