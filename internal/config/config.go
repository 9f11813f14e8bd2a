// Package config loads vault settings from config.yaml, VAULT_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/vault/internal/images"
	"github.com/mesh-intelligence/vault/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "VAULT"
)

// Image backends.
const (
	ImagesDisk = "disk"
	ImagesS3   = "s3"
)

// Config keys.
const (
	KeyDataDir      = "data_dir"
	KeyListenAddr   = "listen_addr"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
	KeyImagesKind   = "images.backend"
	KeyImagesDir    = "images.dir"
	KeyImagesMax    = "images.max_size"
	KeyS3Endpoint   = "images.s3.endpoint"
	KeyS3AccessKey  = "images.s3.access_key"
	KeyS3SecretKey  = "images.s3.secret_key"
	KeyS3Bucket     = "images.s3.bucket"
	KeyS3Region     = "images.s3.region"
	KeyS3UseSSL     = "images.s3.use_ssl"
	KeyIntegrity    = "lineage.integrity"
	KeyLatestLimit  = "map.latest_limit"
	KeyCacheURL     = "cache.redis_url"
	KeyCacheTTL     = "cache.ttl"
	KeyShutdownWait = "server.shutdown_timeout"
)

// Config errors.
var (
	ErrImagesBackend = errors.New("images.backend must be disk or s3")
	ErrMaxSize       = errors.New("invalid images.max_size")
)

// Config is the resolved vault configuration.
type Config struct {
	DataDir         string
	ListenAddr      string
	LogLevel        string
	LogFormat       string
	ImagesBackend   string
	ImagesDir       string
	ImagesMaxSize   int64
	S3              images.S3Config
	Integrity       types.IntegrityPolicy
	LatestLimit     int
	CacheRedisURL   string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
}

// defaults mirrors config.yaml and seeds viper before the file is read.
var defaults = map[string]any{
	KeyDataDir:      "",
	KeyListenAddr:   ":3000",
	KeyLogLevel:     "info",
	KeyLogFormat:    "text",
	KeyImagesKind:   ImagesDisk,
	KeyImagesDir:    "",
	KeyImagesMax:    "10MB",
	KeyS3Endpoint:   "",
	KeyS3AccessKey:  "",
	KeyS3SecretKey:  "",
	KeyS3Bucket:     "vault-images",
	KeyS3Region:     "",
	KeyS3UseSSL:     true,
	KeyIntegrity:    string(types.IntegrityLenient),
	KeyLatestLimit:  100,
	KeyCacheURL:     "",
	KeyCacheTTL:     "10m",
	KeyShutdownWait: "10s",
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads config.yaml from configDir, creating the directory and a
// default file on first run, and applies VAULT_* environment overrides
// (VAULT_LOG_LEVEL for log.level, and so on).
func Load(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := EnsureDefaultFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		DataDir:       v.GetString(KeyDataDir),
		ListenAddr:    v.GetString(KeyListenAddr),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
		ImagesBackend: strings.ToLower(v.GetString(KeyImagesKind)),
		ImagesDir:     v.GetString(KeyImagesDir),
		S3: images.S3Config{
			Endpoint:  v.GetString(KeyS3Endpoint),
			AccessKey: v.GetString(KeyS3AccessKey),
			SecretKey: v.GetString(KeyS3SecretKey),
			Bucket:    v.GetString(KeyS3Bucket),
			Region:    v.GetString(KeyS3Region),
			UseSSL:    v.GetBool(KeyS3UseSSL),
		},
		LatestLimit:     v.GetInt(KeyLatestLimit),
		CacheRedisURL:   v.GetString(KeyCacheURL),
		CacheTTL:        v.GetDuration(KeyCacheTTL),
		ShutdownTimeout: v.GetDuration(KeyShutdownWait),
	}

	if c.ImagesBackend != ImagesDisk && c.ImagesBackend != ImagesS3 {
		return nil, fmt.Errorf("%w: %q", ErrImagesBackend, c.ImagesBackend)
	}

	size, err := humanize.ParseBytes(v.GetString(KeyImagesMax))
	if err != nil || size == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMaxSize, v.GetString(KeyImagesMax))
	}
	c.ImagesMaxSize = int64(size)

	c.Integrity, err = types.ParseIntegrityPolicy(v.GetString(KeyIntegrity))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveImagesDir returns the disk image directory: images.dir when set,
// otherwise "uploads" inside dataDir.
func (c *Config) ResolveImagesDir(dataDir string) (string, error) {
	if c.ImagesDir != "" {
		return filepath.Abs(c.ImagesDir)
	}
	return filepath.Join(dataDir, "uploads"), nil
}

// fileLayout is the shape of the generated config.yaml.
type fileLayout struct {
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	Log        struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Images struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
		MaxSize string `yaml:"max_size"`
		S3      struct {
			Endpoint string `yaml:"endpoint"`
			Bucket   string `yaml:"bucket"`
			Region   string `yaml:"region"`
			UseSSL   bool   `yaml:"use_ssl"`
		} `yaml:"s3"`
	} `yaml:"images"`
	Lineage struct {
		Integrity string `yaml:"integrity"`
	} `yaml:"lineage"`
	Map struct {
		LatestLimit int `yaml:"latest_limit"`
	} `yaml:"map"`
	Cache struct {
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	Server struct {
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
}

const defaultHeader = `# Vault configuration.
# Every key can be overridden with a VAULT_ environment variable, for example
# VAULT_LOG_LEVEL=debug or VAULT_IMAGES_S3_SECRET_KEY=... (keep secrets out of
# this file). An empty data_dir selects the platform data directory.
`

// DefaultYAML renders the default configuration file.
func DefaultYAML() ([]byte, error) {
	var f fileLayout
	f.DataDir = defaults[KeyDataDir].(string)
	f.ListenAddr = defaults[KeyListenAddr].(string)
	f.Log.Level = defaults[KeyLogLevel].(string)
	f.Log.Format = defaults[KeyLogFormat].(string)
	f.Images.Backend = defaults[KeyImagesKind].(string)
	f.Images.Dir = defaults[KeyImagesDir].(string)
	f.Images.MaxSize = defaults[KeyImagesMax].(string)
	f.Images.S3.Endpoint = defaults[KeyS3Endpoint].(string)
	f.Images.S3.Bucket = defaults[KeyS3Bucket].(string)
	f.Images.S3.Region = defaults[KeyS3Region].(string)
	f.Images.S3.UseSSL = defaults[KeyS3UseSSL].(bool)
	f.Lineage.Integrity = defaults[KeyIntegrity].(string)
	f.Map.LatestLimit = defaults[KeyLatestLimit].(int)
	f.Cache.RedisURL = defaults[KeyCacheURL].(string)
	f.Cache.TTL = defaults[KeyCacheTTL].(string)
	f.Server.ShutdownTimeout = defaults[KeyShutdownWait].(string)

	body, err := yaml.Marshal(&f)
	if err != nil {
		return nil, err
	}
	return append([]byte(defaultHeader), body...), nil
}

// EnsureDefaultFile writes the default config.yaml into configDir unless a
// file is already there.
func EnsureDefaultFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := DefaultYAML()
	if err != nil {
		return fmt.Errorf("render default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
