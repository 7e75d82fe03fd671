package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          string `env:"PORT"            envDefault:"8080"`
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"1073741824"`
	UploadDir     string `env:"UPLOAD_DIR"      envDefault:"./uploads"`

	StorageBackend string `env:"STORAGE_BACKEND"   envDefault:"local"`
	MinIOEndpoint  string `env:"MINIO_ENDPOINT"    envDefault:"localhost:9000"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY"  envDefault:"minioadmin"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY"  envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"     envDefault:"false"`
	MinIOBucket    string `env:"MINIO_BUCKET"      envDefault:"vslides"`

	DBType         string `env:"DB_TYPE"         envDefault:"sqlite"`
	DBHost         string `env:"DB_HOST"         envDefault:"localhost"`
	DBPort         int    `env:"DB_PORT"         envDefault:"5432"`
	DBUser         string `env:"DB_USER"         envDefault:"vslides"`
	DBPassword     string `env:"DB_PASSWORD"     envDefault:"vslides_dev"`
	DBName         string `env:"DB_NAME"         envDefault:"vslides"`
	DBPath         string `env:"DB_PATH"         envDefault:"./vslides.db"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`

	SensitivityThreshold    float64       `env:"SENSITIVITY_THRESHOLD"     envDefault:"95"`
	SamplingIntervalSeconds float64       `env:"SAMPLING_INTERVAL_SECONDS" envDefault:"0.3"`
	RequiredStabilityFrames int           `env:"REQUIRED_STABILITY_FRAMES" envDefault:"3"`
	SettleDelay             time.Duration `env:"SETTLE_DELAY"              envDefault:"50ms"`
	JPEGQuality             int           `env:"JPEG_QUALITY"              envDefault:"90"`
	RenderMaxWidth          int           `env:"RENDER_MAX_WIDTH"          envDefault:"0"`

	LogLevel         string `env:"LOG_LEVEL"              envDefault:"info"`
	TracingEndpoint  string `env:"OTEL_EXPORTER_ENDPOINT"`
	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE"      envDefault:"vslides.events"`

	TempDir string `env:"TEMP_DIR" envDefault:"/tmp/vslides"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
