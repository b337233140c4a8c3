package wrapper

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/db"
	"github.com/quatton/batchffmpeg/pkg/kv"
	"github.com/quatton/batchffmpeg/pkg/params"
	"github.com/quatton/batchffmpeg/pkg/progress"
	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/quatton/batchffmpeg/pkg/qmetrics"
	"github.com/quatton/batchffmpeg/pkg/qrunner"
)

// Connect builds the production collaborators from the environment. The
// returned close function releases every connection that was opened.
func Connect(ctx context.Context, env *config.Env, log *qlog.Logger) (Deps, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		awsCfg aws.Config
		awsErr error
	)
	if env.StorageBackend == "s3" || env.Region != "" || env.DefaultRegion != "" {
		awsCfg, awsErr = params.LoadAWSConfig(ctx, env, log)
	} else {
		awsErr = fmt.Errorf("no AWS region configured")
	}

	store, err := objectStore(env, awsCfg, awsErr)
	if err != nil {
		return Deps{}, closeAll, err
	}

	deps := Deps{
		Store:      store,
		Runner:     qrunner.NewLocalRunner(log.With("stage", "transcoding")),
		Calculator: qmetrics.NewFFmpegCalculator(env.FFmpegBinary, log.With("stage", "metrics")),
	}

	if awsErr == nil {
		deps.Params = params.NewSSMStore(awsCfg)
	} else {
		log.Warn("parameter store unavailable, quality metrics disabled", "error", awsErr)
	}

	progressStore := progress.Connect(kv.ValkeyConfig{
		Addr:     env.RedisAddr,
		Password: env.RedisPassword,
		DB:       env.RedisDB,
	}, log)
	closers = append(closers, func() { progressStore.Close() })
	deps.Progress = progressStore

	if env.MetricsDatabaseURL != "" {
		database, err := db.New(ctx, db.Config{URL: env.MetricsDatabaseURL})
		if err != nil {
			log.Error("metrics catalog unavailable", "error", err)
		} else {
			closers = append(closers, func() { database.Close() })
			deps.Recorder = db.NewCatalog(database)
		}
	}

	return deps, closeAll, nil
}

// objectStore routes gs:// URLs to Cloud Storage and everything else to the
// configured S3-compatible backend.
func objectStore(env *config.Env, awsCfg aws.Config, awsErr error) (qart.Store, error) {
	var fallback qart.Store
	switch env.StorageBackend {
	case "minio":
		ms, err := qart.NewMinioStore(qart.MinioConfig{
			Endpoint:  env.StorageEndpoint,
			AccessKey: env.StorageAccessKey,
			SecretKey: env.StorageSecretKey,
			UseSSL:    env.StorageUseSSL,
			Region:    env.Region,
		})
		if err != nil {
			return nil, err
		}
		fallback = ms
	default:
		if awsErr != nil {
			return nil, fmt.Errorf("failed to configure S3: %w", awsErr)
		}
		fallback = qart.NewS3Store(awsCfg, env.StorageEndpoint)
	}

	return qart.NewRouter(fallback).Register("gs", qart.NewGCSStore()), nil
}
