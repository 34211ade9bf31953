package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                string `yaml:"port"`
	LogLevel            string `yaml:"logLevel"`
	DatabaseURL         string `yaml:"databaseURL"`
	TokenSecret         string `yaml:"tokenSecret"`
	TokenTTLMinutes     int    `yaml:"tokenTTLMinutes"`
	QueueDriver         string `yaml:"queueDriver"`
	RedisAddr           string `yaml:"redisAddr"`
	RedisPassword       string `yaml:"redisPassword"`
	AMQPURL             string `yaml:"amqpURL"`
	QueueName           string `yaml:"queueName"`
	LoginRateLimit      int    `yaml:"loginRateLimit"`
	LoginRateWindowSecs int    `yaml:"loginRateWindowSeconds"`
	TrustForwarded      bool   `yaml:"trustForwarded"`
	MaxUploadMB         int64  `yaml:"maxUploadMB"`
	StorageDriver       string `yaml:"storageDriver"`
	MinioEndpoint       string `yaml:"minioEndpoint"`
	MinioAccessKey      string `yaml:"minioAccessKey"`
	MinioSecretKey      string `yaml:"minioSecretKey"`
	MinioBucket         string `yaml:"minioBucket"`
	MinioUseSSL         bool   `yaml:"minioUseSSL"`
	FileStoragePath     string `yaml:"fileStoragePath"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SCITREK_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("SCITREK_TOKEN_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TokenTTLMinutes = n
		}
	}
	if v := os.Getenv("SCITREK_QUEUE_DRIVER"); v != "" {
		cfg.QueueDriver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("API_QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("API_LOGIN_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimit = n
		}
	}
	if v := os.Getenv("API_LOGIN_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateWindowSecs = n
		}
	}
	if v := os.Getenv("API_TRUST_FORWARDED"); v != "" {
		if trust, err := strconv.ParseBool(v); err == nil {
			cfg.TrustForwarded = trust
		}
	}
	if v := os.Getenv("API_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadMB = n
		}
	}
	if v := os.Getenv("SCITREK_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if useSSL, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = useSSL
		}
	}
	if v := os.Getenv("FILE_STORAGE_PATH"); v != "" {
		cfg.FileStoragePath = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return errors.New("config: tokenSecret is required (set in config.yaml or SCITREK_TOKEN_SECRET)")
	}
	switch cfg.QueueDriver {
	case "", "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis queue driver")
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required for the amqp queue driver")
		}
	default:
		return fmt.Errorf("config: unknown queueDriver %q (redis or amqp)", cfg.QueueDriver)
	}
	switch cfg.StorageDriver {
	case "", "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio storage driver")
		}
	case "file":
		if strings.TrimSpace(cfg.FileStoragePath) == "" {
			return errors.New("config: fileStoragePath is required for the file storage driver")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q (minio or file)", cfg.StorageDriver)
	}
	if cfg.TokenTTLMinutes < 0 {
		return errors.New("config: tokenTTLMinutes must be >= 0")
	}
	if cfg.LoginRateLimit < 0 || cfg.LoginRateWindowSecs < 0 {
		return errors.New("config: login rate limit values must be >= 0")
	}
	if cfg.MaxUploadMB < 0 {
		return errors.New("config: maxUploadMB must be >= 0")
	}
	return nil
}
