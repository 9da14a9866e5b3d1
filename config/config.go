package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
	Watch    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL           string
	ClientID      string
	MaxReconnects int
	ReconnectWait time.Duration
}

type UploadConfig struct {
	BaseURL   string
	CloudName string
	Preset    string
	Timeout   time.Duration
}

// AvatarConfig bounds accepted and stored profile images.
type AvatarConfig struct {
	MaxUploadBytes int
	MaxBytes       int
	MaxDimension   int
}

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the full runtime configuration of the service.
type Config struct {
	StoreBackend      string
	Database          DatabaseConfig
	Mongo             MongoConfig
	Redis             RedisConfig
	NATS              NATSConfig
	Upload            UploadConfig
	Avatar            AvatarConfig
	JWTSecret         string
	SessionTTL        time.Duration
	GRPCPort          string
	ReconcileInterval time.Duration
}

// source resolves keys from the environment first and then from values
// read out of an optional YAML file.
type source map[string]string

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s[key]
}

// Load reads configuration from the environment. When path is not empty
// the YAML file at path supplies values for keys the environment leaves
// unset. The file is a flat mapping of the same keys, e.g.
//
//	GRPC_PORT: 50051
//	STORE_BACKEND: mongo
func Load(path string) (*Config, error) {
	src := source{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &src); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	db, err := loadDatabase(src, "")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StoreBackend: src.getEnv("STORE_BACKEND", BackendPostgres),
		Database:     *db,
		Mongo: MongoConfig{
			URI:      src.getEnv("MONGO_URI", "mongodb://mongo:27017/?replicaSet=rs0"),
			Database: src.getEnv("MONGO_DATABASE", "candle"),
			Watch:    src.getEnvAsBool("MONGO_WATCH", true),
		},
		Redis: RedisConfig{
			Addr:     src.getEnv("REDIS_URL", "redis:6379"),
			Password: src.getEnv("REDIS_PASSWORD", ""),
			DB:       src.getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:           src.getEnv("NATS_URL", "nats://nats:4222"),
			ClientID:      src.getEnv("NATS_CLIENT_ID", "candle"),
			MaxReconnects: src.getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait: src.getEnvAsDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Upload: UploadConfig{
			BaseURL:   src.getEnv("UPLOAD_BASE_URL", "https://api.cloudinary.com"),
			CloudName: src.getEnv("UPLOAD_CLOUD_NAME", ""),
			Preset:    src.getEnv("UPLOAD_PRESET", ""),
			Timeout:   src.getEnvAsDuration("UPLOAD_TIMEOUT", 30*time.Second),
		},
		Avatar: AvatarConfig{
			MaxUploadBytes: src.getEnvAsInt("AVATAR_MAX_UPLOAD_BYTES", 2*1024*1024),
			MaxBytes:       src.getEnvAsInt("AVATAR_MAX_BYTES", 209715),
			MaxDimension:   src.getEnvAsInt("AVATAR_MAX_DIMENSION", 300),
		},
		JWTSecret:         src.getEnv("JWT_SECRET", "your-secret-key"),
		SessionTTL:        src.getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		GRPCPort:          src.getEnv("GRPC_PORT", "50051"),
		ReconcileInterval: src.getEnvAsDuration("RECONCILE_INTERVAL", 15*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMongo:
	default:
		return fmt.Errorf("unknown store backend %q (set STORE_BACKEND to postgres or mongo)", c.StoreBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required (set JWT_SECRET)")
	}
	if c.Avatar.MaxBytes <= 0 || c.Avatar.MaxDimension <= 0 || c.Avatar.MaxUploadBytes <= 0 {
		return fmt.Errorf("avatar limits must be positive")
	}
	return nil
}

// LoadDatabaseConfig loads database configuration from environment variables
func LoadDatabaseConfig(prefix string) (*DatabaseConfig, error) {
	return loadDatabase(source{}, prefix)
}

func loadDatabase(src source, prefix string) (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		Host:         src.getEnv(prefix+"DB_HOST", "postgres"),
		User:         src.getEnv(prefix+"DB_USER", "postgres"),
		Password:     src.getEnv(prefix+"DB_PASSWORD", "postgres"),
		DBName:       src.getEnv(prefix+"DB_NAME", "candle_db"),
		SSLMode:      src.getEnv(prefix+"DB_SSLMODE", "disable"),
		MaxOpenConns: src.getEnvAsInt(prefix+"DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns: src.getEnvAsInt(prefix+"DB_MAX_IDLE_CONNS", 5),
		MaxLifetime:  src.getEnvAsDuration(prefix+"DB_MAX_LIFETIME", 5*time.Minute),
	}

	var err error
	cfg.Port, err = strconv.Atoi(src.getEnv(prefix+"DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid database port: %w", err)
	}

	if cfg.DBName == "" {
		return nil, fmt.Errorf("database name is required (set %sDB_NAME)", prefix)
	}

	return cfg, nil
}

// getEnv gets a value or returns a default value
func (s source) getEnv(key, defaultValue string) string {
	value := s.get(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets a value as int or returns a default value
func (s source) getEnvAsInt(key string, defaultValue int) int {
	valueStr := s.get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s source) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := s.get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets a value as duration or returns a default value
func (s source) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := s.get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
