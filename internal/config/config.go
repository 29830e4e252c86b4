package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigFile            = "CONFIG_FILE"
	envPort                  = "PORT"
	envServerReadTimeout     = "SERVER_READ_TIMEOUT"
	envServerWriteTimeout    = "SERVER_WRITE_TIMEOUT"
	envServerShutdownTimeout = "SERVER_SHUTDOWN_TIMEOUT"
	envCookieSecure          = "COOKIE_SECURE"
	envEnableProfiling       = "ENABLE_PROFILING"
	envAdminPassword         = "ADMIN_PASSWORD"
	envUserValidity          = "USER_VALIDITY"
	envSessionValidity       = "SESSION_VALIDITY"
	envKVBackend             = "KV_BACKEND"
	envRedisAddr             = "REDIS_ADDR"
	envRedisPassword         = "REDIS_PASSWORD"
	envRedisDB               = "REDIS_DB"
	envBadgerDir             = "BADGER_DIR"
	envBlobBackend           = "BLOB_BACKEND"
	envBucketName            = "BUCKET_NAME"
	envAWSRegion             = "REGION"
	envAWSAccessKeyID        = "AWS_ACCESS_KEY_ID"
	envAWSSecretAccessKey    = "AWS_SECRET_ACCESS_KEY"
	envS3Endpoint            = "S3_ENDPOINT"
	envMinIOEndpoint         = "MINIO_ENDPOINT"
	envMinIOAccessKey        = "MINIO_ACCESS_KEY"
	envMinIOSecretKey        = "MINIO_SECRET_KEY"
	envMinIOBucket           = "MINIO_BUCKET"
	envMinIOUseSSL           = "MINIO_USE_SSL"
	envStoreTimeout          = "STORE_TIMEOUT"
	envListPageSize          = "LIST_PAGE_SIZE"
	envFetchConcurrency      = "FETCH_CONCURRENCY"
	envOrphanGrace           = "ORPHAN_GRACE"
	envMaxUploadSize         = "MAX_UPLOAD_SIZE"
)

const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendS3     = "s3"
	BackendMinIO  = "minio"
)

const (
	defaultServerPort         = "8080"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 60 * time.Second
	defaultServerShutdown     = 10 * time.Second
	defaultUserValidity       = 30 * 24 * time.Hour
	defaultSessionValidity    = 7 * 24 * time.Hour
	defaultRedisAddr          = "localhost:6379"
	defaultStoreTimeout       = 10 * time.Second
	defaultListPageSize       = 1000
	defaultFetchConcurrency   = 8
	defaultOrphanGrace        = 24 * time.Hour
	defaultMaxUploadSize      = int64(20 * 1024 * 1024)
	minAdminPasswordLength    = 12
	errPortRequiredFmt        = "PORT must be set"
	errUnknownBackendFmt      = "%s must be one of %s, got %q"
	errAdminPasswordShortFmt  = "ADMIN_PASSWORD must be at least %d characters"
	errPositiveDurationFmt    = "%s must be a positive duration"
	errPositiveIntFmt         = "%s must be positive"
	errReadConfigFileFmt      = "read config file %s: %w"
	errParseConfigFileFmt     = "parse config file %s: %w"
	errInvalidConfigFmt       = "invalid configuration: %w"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	KV     KVConfig     `yaml:"kv"`
	Blob   BlobConfig   `yaml:"blob"`
	App    AppConfig    `yaml:"app"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CookieSecure    bool          `yaml:"cookie_secure"`
	EnableProfiling bool          `yaml:"enable_profiling"`
}

type AuthConfig struct {
	// AdminPassword empty disables administrator access entirely.
	AdminPassword   string        `yaml:"admin_password"`
	UserValidity    time.Duration `yaml:"user_validity"`
	SessionValidity time.Duration `yaml:"session_validity"`
}

type KVConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BlobConfig struct {
	Backend string      `yaml:"backend"`
	S3      S3Config    `yaml:"s3"`
	MinIO   MinIOConfig `yaml:"minio"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AppConfig struct {
	// BadgerDir is shared by the badger KV and blob backends. Empty means in-memory.
	BadgerDir        string        `yaml:"badger_dir"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	ListPageSize     int           `yaml:"list_page_size"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	MaxUploadSize    int64         `yaml:"max_upload_size"`
	// OrphanGrace is how long images without a project are left alone by audit,
	// covering uploads that precede the first save.
	OrphanGrace time.Duration `yaml:"orphan_grace"`
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(envConfigFile); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf(errInvalidConfigFmt, err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            defaultServerPort,
			ReadTimeout:     defaultServerReadTimeout,
			WriteTimeout:    defaultServerWriteTimeout,
			ShutdownTimeout: defaultServerShutdown,
		},
		Auth: AuthConfig{
			UserValidity:    defaultUserValidity,
			SessionValidity: defaultSessionValidity,
		},
		KV: KVConfig{
			Backend: BackendBadger,
			Redis:   RedisConfig{Addr: defaultRedisAddr},
		},
		Blob: BlobConfig{
			Backend: BackendBadger,
		},
		App: AppConfig{
			StoreTimeout:     defaultStoreTimeout,
			ListPageSize:     defaultListPageSize,
			FetchConcurrency: defaultFetchConcurrency,
			MaxUploadSize:    defaultMaxUploadSize,
			OrphanGrace:      defaultOrphanGrace,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf(errReadConfigFileFmt, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf(errParseConfigFileFmt, path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv(envPort, cfg.Server.Port)
	cfg.Server.ReadTimeout = getDurationEnv(envServerReadTimeout, cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv(envServerWriteTimeout, cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getDurationEnv(envServerShutdownTimeout, cfg.Server.ShutdownTimeout)
	cfg.Server.CookieSecure = getBoolEnv(envCookieSecure, cfg.Server.CookieSecure)
	cfg.Server.EnableProfiling = getBoolEnv(envEnableProfiling, cfg.Server.EnableProfiling)

	cfg.Auth.AdminPassword = getEnv(envAdminPassword, cfg.Auth.AdminPassword)
	cfg.Auth.UserValidity = getDurationEnv(envUserValidity, cfg.Auth.UserValidity)
	cfg.Auth.SessionValidity = getDurationEnv(envSessionValidity, cfg.Auth.SessionValidity)

	cfg.KV.Backend = strings.ToLower(getEnv(envKVBackend, cfg.KV.Backend))
	cfg.KV.Redis.Addr = getEnv(envRedisAddr, cfg.KV.Redis.Addr)
	cfg.KV.Redis.Password = getEnv(envRedisPassword, cfg.KV.Redis.Password)
	cfg.KV.Redis.DB = getIntEnv(envRedisDB, cfg.KV.Redis.DB)

	cfg.Blob.Backend = strings.ToLower(getEnv(envBlobBackend, cfg.Blob.Backend))
	cfg.Blob.S3.Bucket = getEnv(envBucketName, cfg.Blob.S3.Bucket)
	cfg.Blob.S3.Region = getEnv(envAWSRegion, cfg.Blob.S3.Region)
	cfg.Blob.S3.AccessKeyID = getEnv(envAWSAccessKeyID, cfg.Blob.S3.AccessKeyID)
	cfg.Blob.S3.SecretAccessKey = getEnv(envAWSSecretAccessKey, cfg.Blob.S3.SecretAccessKey)
	cfg.Blob.S3.Endpoint = getEnv(envS3Endpoint, cfg.Blob.S3.Endpoint)
	cfg.Blob.MinIO.Endpoint = getEnv(envMinIOEndpoint, cfg.Blob.MinIO.Endpoint)
	cfg.Blob.MinIO.AccessKey = getEnv(envMinIOAccessKey, cfg.Blob.MinIO.AccessKey)
	cfg.Blob.MinIO.SecretKey = getEnv(envMinIOSecretKey, cfg.Blob.MinIO.SecretKey)
	cfg.Blob.MinIO.Bucket = getEnv(envMinIOBucket, cfg.Blob.MinIO.Bucket)
	cfg.Blob.MinIO.UseSSL = getBoolEnv(envMinIOUseSSL, cfg.Blob.MinIO.UseSSL)

	cfg.App.BadgerDir = getEnv(envBadgerDir, cfg.App.BadgerDir)
	cfg.App.StoreTimeout = getDurationEnv(envStoreTimeout, cfg.App.StoreTimeout)
	cfg.App.ListPageSize = getIntEnv(envListPageSize, cfg.App.ListPageSize)
	cfg.App.FetchConcurrency = getIntEnv(envFetchConcurrency, cfg.App.FetchConcurrency)
	cfg.App.MaxUploadSize = getInt64Env(envMaxUploadSize, cfg.App.MaxUploadSize)
	cfg.App.OrphanGrace = getDurationEnv(envOrphanGrace, cfg.App.OrphanGrace)
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf(errPortRequiredFmt)
	}

	if c.Auth.AdminPassword != "" && len(c.Auth.AdminPassword) < minAdminPasswordLength {
		return fmt.Errorf(errAdminPasswordShortFmt, minAdminPasswordLength)
	}

	for key, d := range map[string]time.Duration{
		envUserValidity:    c.Auth.UserValidity,
		envSessionValidity: c.Auth.SessionValidity,
		envStoreTimeout:    c.App.StoreTimeout,
		envOrphanGrace:     c.App.OrphanGrace,
	} {
		if d <= 0 {
			return fmt.Errorf(errPositiveDurationFmt, key)
		}
	}

	for key, n := range map[string]int64{
		envListPageSize:     int64(c.App.ListPageSize),
		envFetchConcurrency: int64(c.App.FetchConcurrency),
		envMaxUploadSize:    c.App.MaxUploadSize,
	} {
		if n <= 0 {
			return fmt.Errorf(errPositiveIntFmt, key)
		}
	}

	switch c.KV.Backend {
	case BackendRedis:
		if c.KV.Redis.Addr == "" {
			return errors.New(messages.requiredForBackend(envRedisAddr, BackendRedis))
		}
	case BackendBadger:
	default:
		return fmt.Errorf(errUnknownBackendFmt, envKVBackend, BackendRedis+"|"+BackendBadger, c.KV.Backend)
	}

	switch c.Blob.Backend {
	case BackendS3:
		for key, value := range map[string]string{
			envBucketName:         c.Blob.S3.Bucket,
			envAWSRegion:          c.Blob.S3.Region,
			envAWSAccessKeyID:     c.Blob.S3.AccessKeyID,
			envAWSSecretAccessKey: c.Blob.S3.SecretAccessKey,
		} {
			if value == "" {
				return errors.New(messages.requiredForBackend(key, BackendS3))
			}
		}
	case BackendMinIO:
		for key, value := range map[string]string{
			envMinIOEndpoint:  c.Blob.MinIO.Endpoint,
			envMinIOAccessKey: c.Blob.MinIO.AccessKey,
			envMinIOSecretKey: c.Blob.MinIO.SecretKey,
			envMinIOBucket:    c.Blob.MinIO.Bucket,
		} {
			if value == "" {
				return errors.New(messages.requiredForBackend(key, BackendMinIO))
			}
		}
	case BackendBadger:
	default:
		return fmt.Errorf(errUnknownBackendFmt, envBlobBackend, BackendS3+"|"+BackendMinIO+"|"+BackendBadger, c.Blob.Backend)
	}

	return nil
}

// UsesBadger reports whether either store is backed by the embedded database.
func (c *Config) UsesBadger() bool {
	return c.KV.Backend == BackendBadger || c.Blob.Backend == BackendBadger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
