// Package config loads service configuration from environment variables,
// optionally layered over a YAML file whose keys are the same variable
// names. Environment values win over file values. All problems are
// reported together in a ValidationError.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/noteboard/internal/crypto"
	"github.com/kuitang/noteboard/internal/db"
	"github.com/kuitang/noteboard/internal/ratelimit"
	"github.com/kuitang/noteboard/internal/s3client"
	"github.com/kuitang/noteboard/internal/secrets"
	"github.com/kuitang/noteboard/internal/urlutil"
)

const (
	defaultHost            = "0.0.0.0"
	defaultAPIPort         = 8000
	defaultFrontendPort    = 8080
	defaultAPIPrefix       = "/noteboard/api/v1"
	defaultFrontendPrefix  = "/noteboard"
	defaultProjectName     = "noteboard"
	defaultShutdownTimeout = 10 * time.Second
	defaultUpstreamTimeout = 5 * time.Second
	defaultHSTSMaxAge      = 2592000
)

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LookupFunc reads one variable. os.LookupEnv is the production source.
type LookupFunc func(key string) (string, bool)

// ObjectStore describes the S3-compatible endpoint used for s3:// secret
// references. The AWS_ variable names follow the SDK conventions.
type ObjectStore struct {
	Endpoint        string // AWS_ENDPOINT_URL_S3
	Region          string // AWS_REGION
	AccessKeyID     string // AWS_ACCESS_KEY_ID
	SecretAccessKey string // AWS_SECRET_ACCESS_KEY
}

// APIConfig configures the note API service.
type APIConfig struct {
	Host        string
	Port        int
	ServerName  string
	ServerHost  string
	ProjectName string
	APIPrefix   string
	DatabaseURL string // SQLite path, ":memory:", or a secret reference
	DatabaseKey string // 64 hex characters, empty, or a secret reference
	// DatabaseKeyVersion selects the derived SQLCipher key; bump it to
	// rotate without changing DatabaseKey.
	DatabaseKeyVersion int
	ShutdownTimeout    time.Duration
	ObjectStore        ObjectStore
}

// FrontendConfig configures the frontend service.
type FrontendConfig struct {
	Host            string
	Port            int
	ServerName      string
	ProjectName     string
	APIURL          string
	FrontendPrefix  string
	UpstreamTimeout time.Duration
	RateLimit       ratelimit.Config
	// TrustForwardedFor keys rate limits on the first X-Forwarded-For hop.
	// Disable it unless a proxy in front overwrites that header.
	TrustForwardedFor bool
	HSTSMaxAge        int
	ShutdownTimeout   time.Duration
}

// source merges the environment over an optional file.
type source struct {
	lookup LookupFunc
	file   map[string]string
	errs   []string
}

func newSource(path string, lookup LookupFunc) (*source, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	s := &source{lookup: lookup, file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return s, nil
}

func (s *source) get(key string) string {
	if v, ok := s.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s.file[key])
}

func (s *source) getOrDefault(key, defaultValue string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return defaultValue
}

func (s *source) parseInt(key string, defaultValue int) int {
	value := s.get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (s *source) parseBool(key string, defaultValue bool) bool {
	value := s.get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be a boolean, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (s *source) parseFloat64(key string, defaultValue float64) float64 {
	value := s.get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be a number, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (s *source) parseDuration(key string, defaultValue time.Duration) time.Duration {
	value := s.get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		s.errs = append(s.errs, fmt.Sprintf("%s must be a duration like 5s, got %q", key, value))
		return defaultValue
	}
	return parsed
}

// LoadAPI loads the API configuration from the process environment over
// the optional file at path.
func LoadAPI(path string) (*APIConfig, error) {
	return loadAPI(path, os.LookupEnv)
}

func loadAPI(path string, lookup LookupFunc) (*APIConfig, error) {
	src, err := newSource(path, lookup)
	if err != nil {
		return nil, err
	}

	cfg := &APIConfig{
		Host:               src.getOrDefault("HOST", defaultHost),
		Port:               src.parseInt("PORT", defaultAPIPort),
		ServerName:         src.get("SERVER_NAME"),
		ServerHost:         src.get("SERVER_HOST"),
		ProjectName:        src.getOrDefault("PROJECT_NAME", defaultProjectName),
		APIPrefix:          strings.TrimRight(src.getOrDefault("API_PREFIX", defaultAPIPrefix), "/"),
		DatabaseURL:        src.get("DATABASE_URL"),
		DatabaseKey:        src.get("DATABASE_KEY"),
		DatabaseKeyVersion: src.parseInt("DATABASE_KEY_VERSION", 1),
		ShutdownTimeout:    src.parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		ObjectStore: ObjectStore{
			Endpoint:        src.get("AWS_ENDPOINT_URL_S3"),
			Region:          src.getOrDefault("AWS_REGION", "auto"),
			AccessKeyID:     src.get("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: src.get("AWS_SECRET_ACCESS_KEY"),
		},
	}

	problems := append(src.errs, cfg.validate()...)
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *APIConfig) Validate() error {
	if problems := c.validate(); len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

func (c *APIConfig) validate() []string {
	var errs []string
	errs = append(errs, validatePort(c.Port)...)
	errs = append(errs, validatePrefix("API_PREFIX", c.APIPrefix)...)

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required (SQLite path, :memory:, s3://bucket/key or file://path)")
	}
	if c.DatabaseKey != "" && !secrets.IsReference(c.DatabaseKey) {
		if _, err := db.ParseKey(c.DatabaseKey); err != nil {
			errs = append(errs, "DATABASE_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}
	if c.DatabaseKeyVersion < 1 {
		errs = append(errs, "DATABASE_KEY_VERSION must be at least 1")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}
	if c.needsObjectStore() && c.ObjectStore.Endpoint == "" {
		errs = append(errs, "AWS_ENDPOINT_URL_S3 is required when DATABASE_URL or DATABASE_KEY is an s3:// reference")
	}
	return errs
}

func (c *APIConfig) needsObjectStore() bool {
	return strings.HasPrefix(c.DatabaseURL, "s3://") || strings.HasPrefix(c.DatabaseKey, "s3://")
}

// ResolveSecrets replaces secret references in DatabaseURL and DatabaseKey
// with their contents. An S3 client is built only when a reference needs
// one; objects overrides that client when non-nil.
func (c *APIConfig) ResolveSecrets(ctx context.Context, objects secrets.ObjectGetter) error {
	if objects == nil && c.needsObjectStore() {
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        c.ObjectStore.Endpoint,
			Region:          c.ObjectStore.Region,
			AccessKeyID:     c.ObjectStore.AccessKeyID,
			SecretAccessKey: c.ObjectStore.SecretAccessKey,
			UsePathStyle:    true,
		})
		if err != nil {
			return err
		}
		objects = client
	}

	resolver := secrets.NewResolver(objects)
	dbURL, err := resolver.Resolve(ctx, c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("resolve DATABASE_URL: %w", err)
	}
	dbKey, err := resolver.Resolve(ctx, c.DatabaseKey)
	if err != nil {
		return fmt.Errorf("resolve DATABASE_KEY: %w", err)
	}
	c.DatabaseURL = dbURL
	c.DatabaseKey = dbKey
	return c.Validate()
}

// StoreKey returns the SQLCipher key for the note store, derived from
// DatabaseKey. It returns nil when no key is configured. Call after
// ResolveSecrets.
func (c *APIConfig) StoreKey() ([]byte, error) {
	master, err := db.ParseKey(c.DatabaseKey)
	if err != nil || master == nil {
		return nil, err
	}
	return crypto.DeriveDatabaseKey(master, "notes", c.DatabaseKeyVersion)
}

// ListenAddr returns HOST:PORT.
func (c *APIConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LogSummary logs the effective configuration without secrets.
func (c *APIConfig) LogSummary(logger *slog.Logger) {
	logger.Info("config_loaded",
		"project", c.ProjectName,
		"server_name", c.ServerName,
		"listen", c.ListenAddr(),
		"api_prefix", c.APIPrefix,
		"database", describeDatabase(c.DatabaseURL),
		"encrypted", c.DatabaseKey != "",
		"key_version", c.DatabaseKeyVersion,
	)
}

func describeDatabase(url string) string {
	switch {
	case url == db.MemoryPath:
		return "memory"
	case secrets.IsReference(url):
		return strings.SplitN(url, "://", 2)[0] + " reference"
	default:
		return "file"
	}
}

// LoadFrontend loads the frontend configuration from the process
// environment over the optional file at path.
func LoadFrontend(path string) (*FrontendConfig, error) {
	return loadFrontend(path, os.LookupEnv)
}

func loadFrontend(path string, lookup LookupFunc) (*FrontendConfig, error) {
	src, err := newSource(path, lookup)
	if err != nil {
		return nil, err
	}

	cfg := &FrontendConfig{
		Host:            src.getOrDefault("HOST", defaultHost),
		Port:            src.parseInt("PORT", defaultFrontendPort),
		ServerName:      src.get("SERVER_NAME"),
		ProjectName:     src.getOrDefault("PROJECT_NAME", defaultProjectName),
		APIURL:          strings.TrimRight(src.get("API_URL"), "/"),
		FrontendPrefix:  strings.TrimRight(src.getOrDefault("FRONTEND_PREFIX", defaultFrontendPrefix), "/"),
		UpstreamTimeout: src.parseDuration("UPSTREAM_TIMEOUT", defaultUpstreamTimeout),
		RateLimit: ratelimit.Config{
			RPS:             src.parseFloat64("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
			Burst:           src.parseInt("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
			CleanupInterval: src.parseDuration("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
		},
		TrustForwardedFor: src.parseBool("TRUST_FORWARDED_FOR", true),
		HSTSMaxAge:        src.parseInt("HSTS_MAX_AGE", defaultHSTSMaxAge),
		ShutdownTimeout:   src.parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}

	problems := append(src.errs, cfg.validate()...)
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *FrontendConfig) Validate() error {
	if problems := c.validate(); len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

func (c *FrontendConfig) validate() []string {
	var errs []string
	errs = append(errs, validatePort(c.Port)...)
	errs = append(errs, validatePrefix("FRONTEND_PREFIX", c.FrontendPrefix)...)

	if c.APIURL == "" {
		errs = append(errs, "API_URL is required (e.g. http://localhost:8000/noteboard/api/v1)")
	} else if !urlutil.IsAbsoluteHTTP(c.APIURL) {
		errs = append(errs, "API_URL must be an absolute http(s) URL")
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, "UPSTREAM_TIMEOUT must be positive")
	}
	if c.RateLimit.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if c.HSTSMaxAge < 0 {
		errs = append(errs, "HSTS_MAX_AGE must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}
	return errs
}

// ListenAddr returns HOST:PORT.
func (c *FrontendConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LogSummary logs the effective configuration.
func (c *FrontendConfig) LogSummary(logger *slog.Logger) {
	logger.Info("config_loaded",
		"project", c.ProjectName,
		"server_name", c.ServerName,
		"listen", c.ListenAddr(),
		"frontend_prefix", c.FrontendPrefix,
		"api_url", c.APIURL,
		"rate_limit_rps", c.RateLimit.RPS,
		"rate_limit_burst", c.RateLimit.Burst,
	)
}

func validatePort(port int) []string {
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("PORT must be between 1 and 65535, got %d", port)}
	}
	return nil
}

func validatePrefix(key, prefix string) []string {
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return []string{key + " must start with /"}
	}
	return nil
}
