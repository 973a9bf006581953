// Package config loads service and client settings from the environment. An
// optional .env file in the working directory is read first; variables
// already set in the process win.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"quicktask/events"
)

// Storage backends.
const (
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

// Config holds the API service settings.
type Config struct {
	Port  string
	Debug bool

	StorageBackend          string
	StorageConnectionString string
	TasksTable              string
	TaskEventsQueue         string

	RedisConnectionString string
	CacheTTL              time.Duration
	DeduperTTL            time.Duration

	Auth0Domain     string
	Auth0Audience   string
	LocalAuthSecret string
	JWKSCacheTTL    time.Duration

	Publish events.Options

	BodyLimit    string
	AllowOrigins []string
}

// LocalAuth reports whether tokens are verified with the shared secret
// instead of the Auth0 key set.
func (c Config) LocalAuth() bool { return c.LocalAuthSecret != "" }

// Issuer is the expected token issuer for Auth0 tokens.
func (c Config) Issuer() string {
	if c.Auth0Domain == "" {
		return ""
	}
	return "https://" + c.Auth0Domain + "/"
}

// JWKSURL is the Auth0 key set location.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Load reads the service configuration.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	e := &env{}
	cfg := Config{
		Port:  e.str("PORT", "8080"),
		Debug: e.boolean("DEBUG", false),

		RedisConnectionString: e.str("REDIS_CONNECTION_STRING", ""),
		CacheTTL:              e.duration("TASKS_CACHE_TTL", 5*time.Minute),
		DeduperTTL:            e.duration("DEDUPER_TTL", 24*time.Hour),

		Auth0Domain:   e.str("AUTH0_DOMAIN", ""),
		Auth0Audience: e.str("AUTH0_AUDIENCE", ""),
		JWKSCacheTTL:  e.duration("JWKS_CACHE_TTL", 15*time.Minute),

		BodyLimit:    e.str("BODY_LIMIT", "1M"),
		AllowOrigins: e.list("CORS_ALLOW_ORIGINS", []string{"*"}),
	}
	e.storage(&cfg)
	if port, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && port != "" {
		cfg.Port = port
	}

	switch mode := strings.ToLower(e.str("LOCAL_AUTH_MODE", "")); mode {
	case "":
	case "hs256":
		cfg.LocalAuthSecret = e.str("LOCAL_AUTH_SHARED_SECRET", "")
		if cfg.LocalAuthSecret == "" {
			e.fail("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	default:
		e.fail("unsupported LOCAL_AUTH_MODE value %q", mode)
	}

	defaults := events.DefaultOptions(runtime.NumCPU())
	cfg.Publish = events.Options{
		Workers:        e.positiveInt("PUBLISH_WORKERS", defaults.Workers),
		Buffer:         e.positiveInt("PUBLISH_BUFFER", defaults.Buffer),
		Timeout:        e.duration("PUBLISH_TIMEOUT", defaults.Timeout),
		HandoffTimeout: e.duration("PUBLISH_HANDOFF_TIMEOUT", defaults.HandoffTimeout),
	}

	if err := e.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStorage reads only the storage settings, for tools that provision
// storage without serving requests.
func LoadStorage() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	e := &env{}
	cfg := Config{Debug: e.boolean("DEBUG", false)}
	e.storage(&cfg)
	if err := e.err(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validateStorage()
}

// Validate checks cross field requirements.
func (c Config) Validate() error {
	errs := []error{c.validateStorage()}
	if !c.LocalAuth() && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	return errors.Join(errs...)
}

func (c Config) validateStorage() error {
	switch c.StorageBackend {
	case BackendAzure:
		if c.StorageConnectionString == "" || c.TasksTable == "" || c.TaskEventsQueue == "" {
			return errors.New("missing storage config")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// ClientConfig holds the command line client settings.
type ClientConfig struct {
	APIURL       string
	AnalyticsURL string
	Token        string
	Timeout      time.Duration
}

// LoadClient reads the client configuration.
func LoadClient() (ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return ClientConfig{}, err
	}
	e := &env{}
	cfg := ClientConfig{
		APIURL:       strings.TrimRight(e.str("QUICKTASK_API_URL", "http://localhost:8080"), "/"),
		AnalyticsURL: strings.TrimRight(e.str("QUICKTASK_ANALYTICS_URL", "http://localhost:8000"), "/"),
		Token:        e.str("QUICKTASK_TOKEN", ""),
		Timeout:      e.duration("QUICKTASK_TIMEOUT", 10*time.Second),
	}
	return cfg, e.err()
}

// RedisOptions parses either a redis:// URL or an Azure style connection
// string ("host:port,password=...,ssl=True").
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

type env struct {
	errs []error
}

func (e *env) storage(cfg *Config) {
	cfg.StorageBackend = strings.ToLower(e.str("STORAGE_BACKEND", BackendAzure))
	cfg.StorageConnectionString = e.str("STORAGE_CONNECTION_STRING", "")
	cfg.TasksTable = e.str("TASKS_TABLE", "tasks")
	cfg.TaskEventsQueue = e.str("TASK_EVENTS_QUEUE", "task-events")
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *env) err() error { return errors.Join(e.errs...) }

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail("invalid %s: %v", key, err)
		return def
	}
	return v
}

func (e *env) positiveInt(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		e.fail("invalid %s: must be a positive integer", key)
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		e.fail("invalid %s: must be a non-negative duration", key)
		return def
	}
	return d
}

func (e *env) list(key string, def []string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
