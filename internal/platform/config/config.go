package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultUnleashedEndpoint = "https://api.unleashedsoftware.com"
	defaultFetchTimeout      = 30 * time.Second

	defaultSyncPageSize         = 200
	defaultProductPageCap       = 500
	defaultWarehousePageCap     = 1000
	defaultProductSyncMaxWindow = 180 * time.Second

	secretScheme = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	PubSub    PubSubConfig
	Unleashed UnleashedConfig
	Sync      SyncConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the bucket holding generated QR artifacts.
type StorageConfig struct {
	ArtifactsBucket string
}

// PubSubConfig configures the sync event topic. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string
	SyncTopic string
}

// UnleashedConfig holds the catalog API endpoint and signing credentials.
// APIKey may be given as a secret:// reference resolved at load time.
type UnleashedConfig struct {
	Endpoint     string
	APIID        string
	APIKey       string
	FetchTimeout time.Duration
}

// SyncConfig bounds the paginated sync loops.
type SyncConfig struct {
	PageSize           int
	ProductPageCap     int
	WarehousePageCap   int
	ProductMaxDuration time.Duration
}

// SecretResolver resolves secret references found in configuration values.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to the SecretResolver interface.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

// Resolve implements SecretResolver.
func (f SecretResolverFunc) Resolve(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", errors.New("config: secret resolver not configured")
	}
	return f(ctx, ref)
}

type loadOptions struct {
	envFile  string
	lookup   func(string) (string, bool)
	resolver SecretResolver
}

// Option customises configuration loading.
type Option func(*loadOptions)

// WithEnvFile overrides the optional .env file consulted before the process environment.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = strings.TrimSpace(path)
	}
}

// WithLookup substitutes the environment lookup function, primarily for tests.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.lookup = lookup
		}
	}
}

// WithSecretResolver wires the resolver used for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loadOptions) {
		o.resolver = resolver
	}
}

// Load assembles the configuration from the environment, applying defaults and
// resolving secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loadOptions{
		envFile: defaultEnvFile,
		lookup:  os.LookupEnv,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	fileValues, err := readEnvFile(options.envFile)
	if err != nil {
		return Config{}, err
	}

	get := func(key string) string {
		if value, ok := options.lookup(key); ok {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fileValues[key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         valueOrDefault(get("PORT"), defaultPort),
			ReadTimeout:  durationValue(get("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationValue(get("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationValue(get("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       get("FIREBASE_PROJECT_ID"),
			CredentialsFile: get("FIREBASE_CREDENTIALS_FILE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    valueOrDefault(get("FIRESTORE_PROJECT_ID"), get("GOOGLE_CLOUD_PROJECT")),
			EmulatorHost: get("FIRESTORE_EMULATOR_HOST"),
		},
		Storage: StorageConfig{
			ArtifactsBucket: get("STORAGE_ARTIFACTS_BUCKET"),
		},
		PubSub: PubSubConfig{
			ProjectID: valueOrDefault(get("PUBSUB_PROJECT_ID"), get("GOOGLE_CLOUD_PROJECT")),
			SyncTopic: get("PUBSUB_SYNC_TOPIC"),
		},
		Unleashed: UnleashedConfig{
			Endpoint:     strings.TrimRight(valueOrDefault(get("UNLEASHED_API_ENDPOINT"), defaultUnleashedEndpoint), "/"),
			APIID:        get("UNLEASHED_API_ID"),
			APIKey:       get("UNLEASHED_API_KEY"),
			FetchTimeout: durationValue(get("UNLEASHED_FETCH_TIMEOUT"), defaultFetchTimeout),
		},
		Sync: SyncConfig{
			PageSize:           intValue(get("SYNC_PAGE_SIZE"), defaultSyncPageSize),
			ProductPageCap:     intValue(get("SYNC_PRODUCT_PAGE_CAP"), defaultProductPageCap),
			WarehousePageCap:   intValue(get("SYNC_WAREHOUSE_PAGE_CAP"), defaultWarehousePageCap),
			ProductMaxDuration: durationValue(get("SYNC_PRODUCT_MAX_DURATION"), defaultProductSyncMaxWindow),
		},
	}

	if err := resolveSecrets(ctx, &cfg, options.resolver); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Server.Port == "" {
		problems = append(problems, "server port is required")
	}
	if c.Sync.PageSize <= 0 {
		problems = append(problems, "sync page size must be positive")
	}
	if c.Sync.ProductPageCap <= 0 || c.Sync.WarehousePageCap <= 0 {
		problems = append(problems, "sync page caps must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	resolve := func(value string) (string, error) {
		if !strings.HasPrefix(value, secretScheme) {
			return value, nil
		}
		if resolver == nil {
			return "", fmt.Errorf("config: secret reference %q requires a resolver", value)
		}
		resolved, err := resolver.Resolve(ctx, strings.TrimPrefix(value, secretScheme))
		if err != nil {
			return "", fmt.Errorf("config: resolve secret %q: %w", value, err)
		}
		return strings.TrimSpace(resolved), nil
	}

	var err error
	if cfg.Unleashed.APIKey, err = resolve(cfg.Unleashed.APIKey); err != nil {
		return err
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func valueOrDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func durationValue(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func intValue(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}
