// Package config provides configuration for the benchmark driver and the store server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a benchmark parameter is omitted or non-positive.
const (
	DefaultRecords     = 100000
	DefaultConcurrency = 100
	DefaultChunkSize   = 100
	DefaultIndexField  = "indexed_field_string_1"
)

// Store types.
const (
	StoreSQLite = "sqlite"
	StoreGRPC   = "grpc"
)

// Report storage types.
const (
	ReportNone  = "none"
	ReportLocal = "local"
	ReportS3    = "s3"
	ReportMinIO = "minio"
)

// Config holds the configuration for the benchmark and the store server.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`

	// Benchmark parameters
	Bench BenchConfig `json:"bench" yaml:"bench" toml:"bench"`

	// Store connection
	Store StoreConfig `json:"store" yaml:"store" toml:"store"`

	// Fault injection on record writes
	Faults FaultsConfig `json:"faults" yaml:"faults" toml:"faults"`

	// Report archival
	Report ReportConfig `json:"report" yaml:"report" toml:"report"`

	// Store server (reindex-store)
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`

	// Logging
	Log LogConfig `json:"log" yaml:"log" toml:"log"`
}

// BenchConfig holds the benchmark parameters.
type BenchConfig struct {
	// Records is the number of records inserted before the upgrade
	Records int `json:"records" yaml:"records" toml:"records"`

	// Concurrency is the maximum number of writes in flight
	Concurrency int `json:"concurrency" yaml:"concurrency" toml:"concurrency"`

	// ChunkSize is the maximum number of records reindexed per request
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" toml:"chunk_size"`

	// BucketName overrides the generated bucket name
	BucketName string `json:"bucket_name" yaml:"bucket_name" toml:"bucket_name"`

	// IndexField is the field indexed by the upgrade
	IndexField string `json:"index_field" yaml:"index_field" toml:"index_field"`

	// IndexFieldType is string, number or boolean
	IndexFieldType string `json:"index_field_type" yaml:"index_field_type" toml:"index_field_type"`

	// Template is the value written for every record
	Template map[string]interface{} `json:"template" yaml:"template" toml:"template"`

	// WriteRate caps writes per second, 0 for unlimited
	WriteRate float64 `json:"write_rate" yaml:"write_rate" toml:"write_rate"`
}

// StoreConfig holds the store connection settings.
type StoreConfig struct {
	// Type is sqlite (embedded) or grpc (remote)
	Type string `json:"type" yaml:"type" toml:"type"`

	// Path is the SQLite database path
	Path string `json:"path" yaml:"path" toml:"path"`

	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// RequestTimeout bounds each remote store call
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
}

// FaultsConfig holds fault injection settings.
type FaultsConfig struct {
	// TransientRate is the fraction of writes failed with a transient error (0-1)
	TransientRate float64 `json:"transient_rate" yaml:"transient_rate" toml:"transient_rate"`

	// Seed selects which keys fail
	Seed uint32 `json:"seed" yaml:"seed" toml:"seed"`
}

// ReportConfig holds report archival settings.
type ReportConfig struct {
	// Storage is none, local, s3 or minio
	Storage string `json:"storage" yaml:"storage" toml:"storage"`

	// Path is the local storage directory
	Path string `json:"path" yaml:"path" toml:"path"`

	// S3 configuration (for s3 storage)
	S3 S3Config `json:"s3" yaml:"s3" toml:"s3"`

	// MinIO configuration (for minio storage)
	MinIO MinIOConfig `json:"minio" yaml:"minio" toml:"minio"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" toml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" toml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" toml:"use_path_style"`
}

// MinIOConfig holds MinIO storage configuration.
type MinIOConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
	AccessKey string `json:"access_key" yaml:"access_key" toml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
	Secure    bool   `json:"secure" yaml:"secure" toml:"secure"`
	Prefix    string `json:"prefix" yaml:"prefix" toml:"prefix"`
}

// ServerConfig holds store server settings.
type ServerConfig struct {
	// Addr is the gRPC listen address
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level" toml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format" toml:"format"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/reindexbench",
		Bench: BenchConfig{
			Records:        DefaultRecords,
			Concurrency:    DefaultConcurrency,
			ChunkSize:      DefaultChunkSize,
			IndexField:     DefaultIndexField,
			IndexFieldType: "string",
			Template:       map[string]interface{}{DefaultIndexField: "foo"},
		},
		Store: StoreConfig{
			Type:           StoreSQLite,
			Addr:           "localhost:9090",
			RequestTimeout: 30 * time.Second,
		},
		Report: ReportConfig{
			Storage: ReportLocal,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Server: ServerConfig{
			Addr:            ":9090",
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Normalize replaces non-positive benchmark parameters with their defaults.
func (c *Config) Normalize() {
	if c.Bench.Records <= 0 {
		c.Bench.Records = DefaultRecords
	}
	if c.Bench.Concurrency <= 0 {
		c.Bench.Concurrency = DefaultConcurrency
	}
	if c.Bench.ChunkSize <= 0 {
		c.Bench.ChunkSize = DefaultChunkSize
	}
	if c.Bench.IndexField == "" {
		c.Bench.IndexField = DefaultIndexField
	}
	if c.Bench.IndexFieldType == "" {
		c.Bench.IndexFieldType = "string"
	}
	if c.Bench.Template == nil {
		c.Bench.Template = map[string]interface{}{c.Bench.IndexField: "foo"}
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/reindexbench"
	}

	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "store.db")
	}

	if c.Report.Path == "" {
		c.Report.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required when store type is sqlite")
		}
	case StoreGRPC:
		if c.Store.Addr == "" {
			return fmt.Errorf("store.addr is required when store type is grpc")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be sqlite or grpc)", c.Store.Type)
	}

	switch c.Bench.IndexFieldType {
	case "string", "number", "boolean":
	default:
		return fmt.Errorf("invalid bench.index_field_type: %s (must be string, number, or boolean)", c.Bench.IndexFieldType)
	}

	if c.Bench.WriteRate < 0 {
		return fmt.Errorf("bench.write_rate must not be negative, got %v", c.Bench.WriteRate)
	}

	if c.Faults.TransientRate < 0 || c.Faults.TransientRate >= 1 {
		return fmt.Errorf("faults.transient_rate must be in [0, 1), got %v", c.Faults.TransientRate)
	}

	switch c.Report.Storage {
	case ReportNone, ReportLocal:
	case ReportS3:
		if c.Report.S3.Bucket == "" {
			return fmt.Errorf("report.s3.bucket is required when report storage is s3")
		}
	case ReportMinIO:
		if c.Report.MinIO.Endpoint == "" || c.Report.MinIO.Bucket == "" {
			return fmt.Errorf("report.minio.endpoint and report.minio.bucket are required when report storage is minio")
		}
	default:
		return fmt.Errorf("invalid report storage: %s (must be none, local, s3, or minio)", c.Report.Storage)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	// decoders merge into existing maps; a file template replaces the default
	cfg.Bench.Template = nil

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the REINDEXBENCH_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("REINDEXBENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Benchmark parameters
	if v := os.Getenv("REINDEXBENCH_RECORDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.Records)
	}
	if v := os.Getenv("REINDEXBENCH_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.Concurrency)
	}
	if v := os.Getenv("REINDEXBENCH_CHUNK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.ChunkSize)
	}
	if v := os.Getenv("REINDEXBENCH_BUCKET_NAME"); v != "" {
		cfg.Bench.BucketName = v
	}
	if v := os.Getenv("REINDEXBENCH_WRITE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Bench.WriteRate = f
		}
	}

	// Store configuration
	if v := os.Getenv("REINDEXBENCH_STORE_TYPE"); v != "" {
		cfg.Store.Type = v
	}
	if v := os.Getenv("REINDEXBENCH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REINDEXBENCH_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("REINDEXBENCH_STORE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.RequestTimeout = d
		}
	}

	// Fault injection
	if v := os.Getenv("REINDEXBENCH_FAULTS_TRANSIENT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Faults.TransientRate = f
		}
	}
	if v := os.Getenv("REINDEXBENCH_FAULTS_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Faults.Seed = uint32(n)
		}
	}

	// Report configuration
	if v := os.Getenv("REINDEXBENCH_REPORT_STORAGE"); v != "" {
		cfg.Report.Storage = v
	}
	if v := os.Getenv("REINDEXBENCH_REPORT_PATH"); v != "" {
		cfg.Report.Path = v
	}
	if v := os.Getenv("REINDEXBENCH_S3_BUCKET"); v != "" {
		cfg.Report.S3.Bucket = v
	}
	if v := os.Getenv("REINDEXBENCH_S3_REGION"); v != "" {
		cfg.Report.S3.Region = v
	}
	if v := os.Getenv("REINDEXBENCH_S3_ENDPOINT"); v != "" {
		cfg.Report.S3.Endpoint = v
	}
	if v := os.Getenv("REINDEXBENCH_MINIO_ENDPOINT"); v != "" {
		cfg.Report.MinIO.Endpoint = v
	}
	if v := os.Getenv("REINDEXBENCH_MINIO_BUCKET"); v != "" {
		cfg.Report.MinIO.Bucket = v
	}
	if v := os.Getenv("REINDEXBENCH_MINIO_ACCESS_KEY"); v != "" {
		cfg.Report.MinIO.AccessKey = v
	}
	if v := os.Getenv("REINDEXBENCH_MINIO_SECRET_KEY"); v != "" {
		cfg.Report.MinIO.SecretKey = v
	}

	// Server configuration
	if v := os.Getenv("REINDEXBENCH_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	// Logging
	if v := os.Getenv("REINDEXBENCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REINDEXBENCH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Store.Type == StoreSQLite && c.Store.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Report.Storage == ReportLocal {
		dirs = append(dirs, c.Report.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
