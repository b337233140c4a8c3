package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env is the job identity and environment, read once at process start.
// Values are never re-read from the process environment afterwards.
type Env struct {
	JobID              string `envconfig:"AWS_BATCH_JOB_ID" default:"local"`
	JobQueue           string `envconfig:"AWS_BATCH_JQ_NAME" default:"local"`
	ComputeEnvironment string `envconfig:"AWS_BATCH_CE_NAME" default:"local"`
	Bucket             string `envconfig:"S3_BUCKET"`
	MountPoint         string `envconfig:"FSX_MOUNT_POINT"`

	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOGLEVEL" default:"INFO"`

	FFmpegBinary    string `envconfig:"FFMPEG_BINARY" default:"ffmpeg"`
	NvidiaSMIBinary string `envconfig:"NVIDIA_SMI_BINARY" default:"nvidia-smi"`
	NvidiaQueueName string `envconfig:"NVIDIA_QUEUE_NAME" default:"batch-ffmpeg-job-queue-nvidia"`

	MetricsParameter   string `envconfig:"QUALITY_METRICS_PARAMETER" default:"/batch-ffmpeg/ffqm"`
	MetricsDatabaseURL string `envconfig:"METRICS_DATABASE_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	StorageBackend   string `envconfig:"STORAGE_BACKEND" default:"s3"`
	StorageEndpoint  string `envconfig:"STORAGE_ENDPOINT"`
	StorageAccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `envconfig:"STORAGE_SECRET_KEY"`
	StorageUseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"true"`

	Region        string `envconfig:"AWS_REGION"`
	DefaultRegion string `envconfig:"AWS_DEFAULT_REGION"`
	OTLPEndpoint  string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// DotEnv records what happened to the .env file so the caller can log
	// it once a logger exists.
	DotEnv DotEnvStatus `ignored:"true"`
}

// DotEnvStatus is the outcome of looking for a .env file.
type DotEnvStatus string

const (
	DotEnvSkipped DotEnvStatus = "skipped"
	DotEnvLoaded  DotEnvStatus = "loaded"
	DotEnvMissing DotEnvStatus = "missing"
)

// LoadEnv reads the job environment. A .env file is only honoured in
// development.
func LoadEnv() (*Env, error) {
	dotenv := DotEnvSkipped
	if IsDev() {
		dotenv = DotEnvLoaded
		if err := godotenv.Load(); err != nil {
			dotenv = DotEnvMissing
		}
	}

	env := Env{DotEnv: dotenv}
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var errors []string

	switch env.StorageBackend {
	case "s3":
	case "minio":
		if env.StorageEndpoint == "" {
			errors = append(errors, "  ❌ STORAGE_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
	default:
		errors = append(errors, fmt.Sprintf("  ❌ STORAGE_BACKEND must be s3 or minio, got %q", env.StorageBackend))
	}

	if (env.StorageAccessKey == "") != (env.StorageSecretKey == "") {
		errors = append(errors, "  ❌ Both STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY must be set together")
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return &env, nil
}

// SharedFilesystem reports whether the job stages through a mounted
// parallel filesystem instead of downloading and uploading.
func (e *Env) SharedFilesystem() bool {
	return e.MountPoint != ""
}

// OnNvidiaQueue reports whether the job runs on the GPU queue.
func (e *Env) OnNvidiaQueue() bool {
	return e.NvidiaQueueName != "" && e.JobQueue == e.NvidiaQueueName
}

// Identity returns the job identity fields merged into persisted documents.
func (e *Env) Identity() map[string]string {
	return map[string]string{
		"AWS_BATCH_JOB_ID":  e.JobID,
		"AWS_BATCH_JQ_NAME": e.JobQueue,
		"AWS_BATCH_CE_NAME": e.ComputeEnvironment,
	}
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// Fields returns the environment as flat key/value pairs for logging.
func (e *Env) Fields() []any {
	return []any{
		"AWS_BATCH_JOB_ID", e.JobID,
		"AWS_BATCH_JQ_NAME", e.JobQueue,
		"AWS_BATCH_CE_NAME", e.ComputeEnvironment,
		"S3_BUCKET", e.Bucket,
		"FSX_MOUNT_POINT", e.MountPoint,
		"storage_backend", e.StorageBackend,
		"redis", e.RedisAddr,
		"redis_password", MaskSecret(e.RedisPassword),
	}
}
