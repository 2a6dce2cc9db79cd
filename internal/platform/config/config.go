package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultEnvironment       = "local"
	defaultStoreBackend      = StoreBackendFirestore
	defaultPostgresMaxConns  = 10
	defaultRedisDB           = 0
	defaultModalDelay        = time.Second
	defaultDismissalStore    = DismissalStoreCookie
	defaultVisitorCookie     = "cms_visitor"
	defaultAdminCookie       = "cms_session"
	defaultWriteAttempts     = 3
	defaultWriteRetryBackoff = 50 * time.Millisecond
	defaultHealthTimeout     = 2 * time.Second
	defaultEventsTopic       = "cms-content-changed"
)

var defaultLocales = []string{"en", "fr", "es"}

// Store backends accepted by CMS_STORE_BACKEND.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendPostgres  = "postgres"
	StoreBackendMemory    = "memory"
)

// Dismissal stores accepted by CMS_OVERLAYS_DISMISSAL_STORE.
const (
	DismissalStoreCookie = "cookie"
	DismissalStoreRedis  = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Firestore     FirestoreConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Locales       LocaleConfig
	Content       ContentConfig
	Preview       PreviewConfig
	Overlays      OverlayConfig
	Admin         AdminConfig
	Events        EventsConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
}

// StoreConfig selects the record store implementation.
type StoreConfig struct {
	Backend       string
	HealthTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig configures the relational backend.
type PostgresConfig struct {
	URL           string
	MaxOpenConns  int
	MigrateOnBoot bool
}

// RedisConfig points at the server-side dismissal ledger.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LocaleConfig lists supported languages. The first one is the fallback language.
type LocaleConfig struct {
	Supported []string
}

// Default returns the fallback language.
func (c LocaleConfig) Default() string {
	if len(c.Supported) == 0 {
		return ""
	}
	return c.Supported[0]
}

// ContentConfig tunes the content writer.
type ContentConfig struct {
	WriteAttempts     int
	WriteRetryBackoff time.Duration
}

// PreviewConfig controls the preview relay.
type PreviewConfig struct {
	AllowedOrigins []string
}

// OverlayConfig controls overlay timing and dismissal persistence.
type OverlayConfig struct {
	ModalDelay     time.Duration
	DismissalStore string
	VisitorCookie  string
}

// AdminConfig names the session cookie that gates admin routes.
type AdminConfig struct {
	SessionCookie string
}

// EventsConfig configures content-changed notifications. An empty project disables publishing.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// ObservabilityConfig configures tracing exporters and log level.
type ObservabilityConfig struct {
	ProjectID string
	LogLevel  string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory
// (e.g. "Postgres.URL" or "Redis.Password").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the service configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CMS_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CMS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CMS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CMS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			Environment:  strings.ToLower(stringWithDefault(lookup, "CMS_ENVIRONMENT", defaultEnvironment)),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "CMS_STORE_BACKEND", defaultStoreBackend)),
			HealthTimeout: durationWithDefault(lookup, "CMS_STORE_HEALTH_TIMEOUT", defaultHealthTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CMS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "CMS_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			URL:           stringWithDefault(lookup, "CMS_POSTGRES_URL", ""),
			MaxOpenConns:  intWithDefault(lookup, "CMS_POSTGRES_MAX_OPEN_CONNS", defaultPostgresMaxConns),
			MigrateOnBoot: boolWithDefault(lookup, "CMS_POSTGRES_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "CMS_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "CMS_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "CMS_REDIS_DB", defaultRedisDB),
		},
		Locales: LocaleConfig{
			Supported: csvWithDefault(lookup, "CMS_LOCALES_SUPPORTED", defaultLocales),
		},
		Content: ContentConfig{
			WriteAttempts:     intWithDefault(lookup, "CMS_CONTENT_WRITE_ATTEMPTS", defaultWriteAttempts),
			WriteRetryBackoff: durationWithDefault(lookup, "CMS_CONTENT_WRITE_RETRY_BACKOFF", defaultWriteRetryBackoff),
		},
		Preview: PreviewConfig{
			AllowedOrigins: csvWithDefault(lookup, "CMS_PREVIEW_ALLOWED_ORIGINS", nil),
		},
		Overlays: OverlayConfig{
			ModalDelay:     durationWithDefault(lookup, "CMS_OVERLAYS_MODAL_DELAY", defaultModalDelay),
			DismissalStore: strings.ToLower(stringWithDefault(lookup, "CMS_OVERLAYS_DISMISSAL_STORE", defaultDismissalStore)),
			VisitorCookie:  stringWithDefault(lookup, "CMS_OVERLAYS_VISITOR_COOKIE", defaultVisitorCookie),
		},
		Admin: AdminConfig{
			SessionCookie: stringWithDefault(lookup, "CMS_ADMIN_SESSION_COOKIE", defaultAdminCookie),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "CMS_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "CMS_EVENTS_TOPIC", defaultEventsTopic),
		},
		Observability: ObservabilityConfig{
			ProjectID: stringWithDefault(lookup, "CMS_OBSERVABILITY_PROJECT_ID", ""),
			LogLevel:  strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", "info")),
		},
	}

	// Trace project defaults to the Firestore project when unspecified.
	if cfg.Observability.ProjectID == "" {
		cfg.Observability.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Postgres.URL", &cfg.Postgres.URL},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Store.Backend {
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StoreBackendPostgres:
		if cfg.Postgres.URL == "" {
			invalid = append(invalid, "Postgres.URL")
		}
		if cfg.Postgres.MaxOpenConns <= 0 {
			invalid = append(invalid, "Postgres.MaxOpenConns")
		}
	case StoreBackendMemory:
	default:
		invalid = append(invalid, "Store.Backend")
	}
	if len(cfg.Locales.Supported) == 0 {
		invalid = append(invalid, "Locales.Supported")
	}
	if cfg.Content.WriteAttempts <= 0 {
		invalid = append(invalid, "Content.WriteAttempts")
	}
	if cfg.Overlays.ModalDelay < 0 {
		invalid = append(invalid, "Overlays.ModalDelay")
	}
	switch cfg.Overlays.DismissalStore {
	case DismissalStoreCookie:
	case DismissalStoreRedis:
		if cfg.Redis.Addr == "" {
			invalid = append(invalid, "Redis.Addr")
		}
		if strings.TrimSpace(cfg.Overlays.VisitorCookie) == "" {
			invalid = append(invalid, "Overlays.VisitorCookie")
		}
	default:
		invalid = append(invalid, "Overlays.DismissalStore")
	}
	if strings.TrimSpace(cfg.Admin.SessionCookie) == "" {
		invalid = append(invalid, "Admin.SessionCookie")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{})
	var missing []string
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] != "" {
			continue
		}
		missing = append(missing, trimmed)
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return append([]string(nil), fallback...)
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
