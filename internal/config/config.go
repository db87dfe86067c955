package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/retry"
)

const defaultConfigPath = "config/config.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Queue     QueueConfig     `yaml:"queue"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Worker    WorkerConfig    `yaml:"worker"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Retry     RetryConfig     `yaml:"retry"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"SERVER_ADDR" env-default:"3000" validate:"required"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:3000" validate:"required,url"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type DBConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres" validate:"oneof=postgres memory"`
	Host            string        `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string        `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password        string        `yaml:"password" env:"DB_PASSWORD" env-default:"postgres"`
	Name            string        `yaml:"name" env:"DB_NAME" env-default:"thumbnails"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

type QueueConfig struct {
	Driver  string        `yaml:"driver" env:"QUEUE_DRIVER" env-default:"kafka" validate:"oneof=kafka memory"`
	Name    string        `yaml:"name" env:"QUEUE_NAME" env-default:"image-processing" validate:"required"`
	Buffer  int           `yaml:"buffer" env:"QUEUE_BUFFER" env-default:"100" validate:"gt=0"`
	LockTTL time.Duration `yaml:"lock_ttl" env:"QUEUE_LOCK_TTL" env-default:"30m" validate:"gt=0"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"thumbnail-workers"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type StorageConfig struct {
	Driver        string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"local" validate:"oneof=local minio"`
	UploadsDir    string      `yaml:"uploads_dir" env:"UPLOADS_DIR" env-default:"uploads" validate:"required"`
	TempDir       string      `yaml:"temp_dir" env:"TEMP_DIR" env-default:"temp" validate:"required"`
	PublicBaseURL string      `yaml:"public_base_url" env:"STORAGE_PUBLIC_BASE_URL"`
	MinIO         MinIOConfig `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY" env-default:"minioadmin"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY" env-default:"minioadmin"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET" env-default:"thumbnails"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
}

type UploadConfig struct {
	MaxSize        int64    `yaml:"max_size" env:"MAX_FILE_SIZE" env-default:"10485760" validate:"gt=0"`
	AllowedFormats []string `yaml:"allowed_formats" env:"SUPPORTED_IMAGE_FORMATS" env-default:"jpeg,jpg,png,gif,webp,bmp,tiff" validate:"min=1"`
}

type WorkerConfig struct {
	Concurrency int  `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"5" validate:"gt=0"`
	Embedded    bool `yaml:"embedded" env:"WORKER_EMBEDDED" env-default:"false"`
}

type ThumbnailConfig struct {
	DefaultWidth   int `yaml:"default_width" env:"THUMBNAIL_WIDTH" env-default:"100" validate:"gt=0"`
	DefaultHeight  int `yaml:"default_height" env:"THUMBNAIL_HEIGHT" env-default:"100" validate:"gt=0"`
	DefaultQuality int `yaml:"default_quality" env:"THUMBNAIL_QUALITY" env-default:"80" validate:"min=1,max=100"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts" env:"RETRY_ATTEMPTS" env-default:"3" validate:"gt=0"`
	Delay    time.Duration `yaml:"delay" env:"RETRY_DELAY" env-default:"1s"`
	Backoff  float64       `yaml:"backoff" env:"RETRY_BACKOFF" env-default:"2" validate:"gte=1"`
}

// MustLoad reads .env (if any), the YAML file at CONFIG_PATH (if it exists) and
// the environment, in that order of increasing precedence.
func MustLoad() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Queue.Driver == "kafka" && len(c.Kafka.Brokers) == 0 {
		return errors.New("invalid config: kafka driver requires at least one broker")
	}
	return nil
}

func (c *Config) DBDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) DefaultRetryStrategy() retry.Strategy {
	return retry.Strategy{
		Attempts: c.Retry.Attempts,
		Delay:    c.Retry.Delay,
		Backoff:  c.Retry.Backoff,
	}
}

// PublicBaseURL is the prefix of result URLs handed out for locally stored files.
func (c *Config) PublicBaseURL() string {
	if c.Storage.PublicBaseURL != "" {
		return c.Storage.PublicBaseURL
	}
	return c.Server.BaseURL + "/uploads"
}
