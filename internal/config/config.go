package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:7480"
	DefaultDBFileName   = ".reimagine.db"
	DefaultBlobDirName  = ".reimagine-blobs"
	DefaultBoltFileName = ".reimagine-blobs.bolt"
	DefaultLogLevel     = "debug"
	DefaultDBDriver     = "sqlite"
	DefaultBlobBackend  = "local"
	DefaultProvider     = "gemini"
	DefaultSweepMinAge  = "1h"

	DefaultMaxUploadBytes int64 = 16 * 1024 * 1024

	configFileName           = ".reimagine.toml"
	dotenvFileName           = ".env"
	configDirEnvKey          = "REIMAGINE_CONFIG_DIR"
	trustProjectConfigEnvKey = "REIMAGINE_TRUST_PROJECT_CONFIG"
)

// Blob backends.
const (
	BlobBackendLocal = "local"
	BlobBackendBolt  = "bolt"
	BlobBackendS3    = "s3"
)

// UploadConfig bounds original uploads.
type UploadConfig struct {
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// BlobConfig selects and configures the blob backend.
type BlobConfig struct {
	Backend     string `toml:"backend"`
	Root        string `toml:"root"`
	BoltPath    string `toml:"bolt_path"`
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Prefix    string `toml:"s3_prefix"`
	S3PathStyle bool   `toml:"s3_path_style"`
}

// ProviderConfig selects the generation vendor. Credentials are read from the
// environment only.
type ProviderConfig struct {
	Name    string `toml:"name"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	Mode    string `toml:"mode"`
}

// SweepConfig schedules the orphan blob sweep. An empty schedule disables it.
type SweepConfig struct {
	Schedule string `toml:"schedule"`
	MinAge   string `toml:"min_age"`
}

// Config defines runtime configuration for reimagine.
type Config struct {
	APIURL                   string         `toml:"api_url"`
	DBDriver                 string         `toml:"db_driver"`
	DBPath                   string         `toml:"db_path"`
	DBDSN                    string         `toml:"db_dsn"`
	LogLevel                 string         `toml:"log_level"`
	Uploads                  UploadConfig   `toml:"uploads"`
	Blobs                    BlobConfig     `toml:"blobs"`
	Provider                 ProviderConfig `toml:"provider"`
	Sweep                    SweepConfig    `toml:"sweep"`
	TrustedProjectConfigPath string         `toml:"-"`
	DotenvPath               string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBDriver: DefaultDBDriver,
		LogLevel: DefaultLogLevel,
		Uploads:  UploadConfig{MaxUploadBytes: DefaultMaxUploadBytes},
		Blobs:    BlobConfig{Backend: DefaultBlobBackend},
		Provider: ProviderConfig{Name: DefaultProvider},
		Sweep:    SweepConfig{MinAge: DefaultSweepMinAge},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

// loadDotenv reads KEY=VALUE pairs from path without overriding variables
// that are already set.
func loadDotenv(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_driver",
	"db_path",
	"db_dsn",
	"log_level",
	"uploads.max_upload_bytes",
	"blobs.backend",
	"blobs.root",
	"blobs.bolt_path",
	"blobs.s3_bucket",
	"blobs.s3_region",
	"blobs.s3_endpoint",
	"blobs.s3_prefix",
	"blobs.s3_path_style",
	"provider.name",
	"provider.model",
	"provider.base_url",
	"provider.mode",
	"sweep.schedule",
	"sweep.min_age",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_driver":
		return c.DBDriver, nil
	case "db_path":
		return c.DBPath, nil
	case "db_dsn":
		return c.DBDSN, nil
	case "log_level":
		return c.LogLevel, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.bolt_path":
		return c.Blobs.BoltPath, nil
	case "blobs.s3_bucket":
		return c.Blobs.S3Bucket, nil
	case "blobs.s3_region":
		return c.Blobs.S3Region, nil
	case "blobs.s3_endpoint":
		return c.Blobs.S3Endpoint, nil
	case "blobs.s3_prefix":
		return c.Blobs.S3Prefix, nil
	case "blobs.s3_path_style":
		return strconv.FormatBool(c.Blobs.S3PathStyle), nil
	case "provider.name":
		return c.Provider.Name, nil
	case "provider.model":
		return c.Provider.Model, nil
	case "provider.base_url":
		return c.Provider.BaseURL, nil
	case "provider.mode":
		return c.Provider.Mode, nil
	case "sweep.schedule":
		return c.Sweep.Schedule, nil
	case "sweep.min_age":
		return c.Sweep.MinAge, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SweepMinAge parses sweep.min_age. Empty means no age filter.
func (c *Config) SweepMinAge() (time.Duration, error) {
	raw := strings.TrimSpace(c.Sweep.MinAge)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("sweep.min_age must be a non-negative duration, got %q", raw)
	}
	return d, nil
}

// Validate rejects values Load cannot fix up on its own.
func (c *Config) Validate() error {
	if err := validateDBDriver(c.DBDriver); err != nil {
		return err
	}
	if c.DBDriver == "postgres" && strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("db_dsn is required when db_driver is postgres")
	}
	if err := validateBlobBackend(c.Blobs.Backend); err != nil {
		return err
	}
	if c.Blobs.Backend == BlobBackendS3 && strings.TrimSpace(c.Blobs.S3Bucket) == "" {
		return fmt.Errorf("blobs.s3_bucket is required when blobs.backend is s3")
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		return fmt.Errorf("uploads.max_upload_bytes must be positive")
	}
	if err := validateSchedule(c.Sweep.Schedule); err != nil {
		return err
	}
	if _, err := c.SweepMinAge(); err != nil {
		return err
	}
	return nil
}

func validateDBDriver(value string) error {
	switch value {
	case "sqlite", "postgres":
		return nil
	default:
		return fmt.Errorf("db_driver must be sqlite or postgres, got %q", value)
	}
}

func validateBlobBackend(value string) error {
	switch value {
	case BlobBackendLocal, BlobBackendBolt, BlobBackendS3:
		return nil
	default:
		return fmt.Errorf("blobs.backend must be local, bolt or s3, got %q", value)
	}
}

func validateSchedule(value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(value); err != nil {
		return fmt.Errorf("sweep.schedule: %w", err)
	}
	return nil
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads .env, then trusted config files, then applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	cwd, cwdErr := os.Getwd()
	if cwdErr == nil {
		dotenvPath := filepath.Join(cwd, dotenvFileName)
		loaded, err := loadDotenv(dotenvPath)
		if err != nil {
			return nil, err
		}
		if loaded {
			cfg.DotenvPath = dotenvPath
		}
	}

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() && cwdErr == nil {
			projectPath := filepath.Join(cwd, configFileName)
			info, statErr := os.Stat(projectPath)
			switch {
			case statErr == nil && !info.IsDir():
				if err := loadFile(projectPath, &cfg); err != nil {
					return nil, err
				}
				cfg.TrustedProjectConfigPath = projectPath
			case statErr != nil && !os.IsNotExist(statErr):
				return nil, statErr
			}
		}
	}

	if apiURL := os.Getenv("REIMAGINE_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("REIMAGINE_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if driver := strings.TrimSpace(os.Getenv("REIMAGINE_DB_DRIVER")); driver != "" {
		cfg.DBDriver = driver
	}
	if dsn := os.Getenv("REIMAGINE_DB_DSN"); dsn != "" {
		cfg.DBDSN = dsn
	}
	if name := strings.TrimSpace(os.Getenv("REIMAGINE_PROVIDER")); name != "" {
		cfg.Provider.Name = name
	}
	if backend := strings.TrimSpace(os.Getenv("REIMAGINE_BLOB_BACKEND")); backend != "" {
		cfg.Blobs.Backend = backend
	}

	cfg.normalizeDefaults(cwd)

	return &cfg, nil
}

func (c *Config) normalizeDefaults(cwd string) {
	c.DBDriver = normalizeDriver(c.DBDriver)
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = DefaultBlobBackend
	}
	if strings.TrimSpace(c.Provider.Name) == "" {
		c.Provider.Name = DefaultProvider
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cwd == "" {
		return
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(cwd, DefaultDBFileName)
	}
	if c.Blobs.Root == "" {
		c.Blobs.Root = filepath.Join(cwd, DefaultBlobDirName)
	}
	if c.Blobs.BoltPath == "" {
		c.Blobs.BoltPath = filepath.Join(cwd, DefaultBoltFileName)
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "blobs.s3_path_style":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "db_driver":
		normalized := normalizeDriver(value)
		if err := validateDBDriver(normalized); err != nil {
			return nil, err
		}
		return normalized, nil
	case "blobs.backend":
		normalized := strings.ToLower(value)
		if err := validateBlobBackend(normalized); err != nil {
			return nil, err
		}
		return normalized, nil
	case "sweep.schedule":
		if err := validateSchedule(value); err != nil {
			return nil, err
		}
		return value, nil
	case "sweep.min_age":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%s must be a non-negative duration", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
