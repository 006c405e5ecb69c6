// Package config loads application configuration from a config file,
// a .env file and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendDisk   = "disk"
	BackendRemote = "remote"
)

// defaultCredential is the stock MinIO access and secret key used for local development.
const defaultCredential = "minioadmin"

const (
	DefaultMaxUploadBytes  int64 = 10 << 20
	DefaultMultipartMemory int64 = 8 << 20
)

// DefaultAllowedMediaTypes are the sniffed content types accepted for upload.
var DefaultAllowedMediaTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Config holds all runtime configuration for the service.
type Config struct {
	Port        string   `toml:"port" yaml:"port"`
	AppEnv      string   `toml:"app_env" yaml:"app_env"`
	LogLevel    string   `toml:"log_level" yaml:"log_level"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`

	// Backend selects where image bytes persist: "disk" or "remote".
	Backend string `toml:"backend" yaml:"backend"`

	Disk   DiskConfig   `toml:"disk" yaml:"disk"`
	Remote RemoteConfig `toml:"remote" yaml:"remote"`
	Upload UploadConfig `toml:"upload" yaml:"upload"`
}

// DiskConfig configures the local-disk backend.
type DiskConfig struct {
	Dir       string `toml:"dir" yaml:"dir"`
	URLPrefix string `toml:"url_prefix" yaml:"url_prefix"` // public path the files are served under, e.g. "/uploads"
}

// RemoteConfig configures the S3-compatible backend (MinIO locally, ArvanCloud or AWS S3 in production).
type RemoteConfig struct {
	Endpoint   string `toml:"endpoint" yaml:"endpoint"`
	AccessKey  string `toml:"access_key" yaml:"access_key"`
	SecretKey  string `toml:"secret_key" yaml:"secret_key"`
	Bucket     string `toml:"bucket" yaml:"bucket"`
	Folder     string `toml:"folder" yaml:"folder"`
	UseSSL     bool   `toml:"use_ssl" yaml:"use_ssl"`
	PublicBase string `toml:"public_base" yaml:"public_base"` // browser-accessible base URL, e.g. "https://cdn.example.com/images"; must be https in production
}

// UploadConfig bounds what a single upload may contain.
type UploadConfig struct {
	MaxBytes          int64    `toml:"max_bytes" yaml:"max_bytes"`
	MultipartMemory   int64    `toml:"multipart_memory" yaml:"multipart_memory"`
	AllowedMediaTypes []string `toml:"allowed_media_types" yaml:"allowed_media_types"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Port:        "5000",
		AppEnv:      "development",
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
		Backend:     BackendDisk,
		Disk: DiskConfig{
			Dir:       "./uploads",
			URLPrefix: "/uploads",
		},
		Remote: RemoteConfig{
			Endpoint:   "localhost:9000",
			AccessKey:  defaultCredential,
			SecretKey:  defaultCredential,
			Bucket:     "images",
			Folder:     "uploads",
			PublicBase: "http://localhost:9000/images",
		},
		Upload: UploadConfig{
			MaxBytes:          DefaultMaxUploadBytes,
			MultipartMemory:   DefaultMultipartMemory,
			AllowedMediaTypes: append([]string(nil), DefaultAllowedMediaTypes...),
		},
	}
}

// Load builds the configuration. Values come from, in increasing priority:
// defaults, the file at path (or $IMAGESTORE_CONFIG when path is empty),
// a .env file if present, and environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("IMAGESTORE_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading from environment")
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CORSOrigins = getList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.Backend = getEnv("STORAGE_BACKEND", cfg.Backend)

	cfg.Disk.Dir = getEnv("UPLOAD_DIR", cfg.Disk.Dir)
	cfg.Disk.URLPrefix = getEnv("UPLOAD_URL_PREFIX", cfg.Disk.URLPrefix)

	cfg.Remote.Endpoint = getEnv("STORAGE_ENDPOINT", cfg.Remote.Endpoint)
	cfg.Remote.AccessKey = getEnv("STORAGE_ACCESS_KEY", cfg.Remote.AccessKey)
	cfg.Remote.SecretKey = getEnv("STORAGE_SECRET_KEY", cfg.Remote.SecretKey)
	cfg.Remote.Bucket = getEnv("STORAGE_BUCKET", cfg.Remote.Bucket)
	cfg.Remote.Folder = getEnv("STORAGE_FOLDER", cfg.Remote.Folder)
	cfg.Remote.PublicBase = getEnv("STORAGE_PUBLIC_BASE", cfg.Remote.PublicBase)
	if v := os.Getenv("STORAGE_USE_SSL"); v != "" {
		cfg.Remote.UseSSL = v == "true"
	}

	var err error
	if cfg.Upload.MaxBytes, err = getInt64("MAX_UPLOAD_BYTES", cfg.Upload.MaxBytes); err != nil {
		return err
	}
	if cfg.Upload.MultipartMemory, err = getInt64("MULTIPART_MEMORY", cfg.Upload.MultipartMemory); err != nil {
		return err
	}
	cfg.Upload.AllowedMediaTypes = getList("ALLOWED_MEDIA_TYPES", cfg.Upload.AllowedMediaTypes)
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	switch c.Backend {
	case BackendDisk:
		if strings.TrimSpace(c.Disk.Dir) == "" {
			return fmt.Errorf("disk backend: upload dir is required")
		}
		if !strings.HasPrefix(c.Disk.URLPrefix, "/") || c.Disk.URLPrefix == "/" {
			return fmt.Errorf("disk backend: url prefix must start with / and name a path, got %q", c.Disk.URLPrefix)
		}
	case BackendRemote:
		if c.Remote.Endpoint == "" || c.Remote.Bucket == "" {
			return fmt.Errorf("remote backend: endpoint and bucket are required")
		}
		if c.Remote.PublicBase == "" {
			return fmt.Errorf("remote backend: public base url is required")
		}
		if c.IsProduction() {
			if !strings.HasPrefix(c.Remote.PublicBase, "https://") {
				return fmt.Errorf("remote backend: public base url must be https in production, got %q", c.Remote.PublicBase)
			}
			if c.Remote.AccessKey == defaultCredential || c.Remote.SecretKey == defaultCredential {
				return fmt.Errorf("remote backend: default %q credentials are not allowed in production", defaultCredential)
			}
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Backend, BackendDisk, BackendRemote)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.Upload.MultipartMemory <= 0 {
		return fmt.Errorf("multipart memory must be positive")
	}
	return nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
