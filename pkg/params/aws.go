package params

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

const imdsTimeout = 2 * time.Second

// RegionSource yields a region or "" when it has none to offer.
type RegionSource func(ctx context.Context) (string, error)

// StaticRegion offers a fixed value, typically from the environment.
func StaticRegion(region string) RegionSource {
	return func(context.Context) (string, error) {
		return region, nil
	}
}

// SharedConfigRegion offers the region from the shared AWS config files.
func SharedConfigRegion() RegionSource {
	return func(ctx context.Context) (string, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return "", err
		}
		return cfg.Region, nil
	}
}

// IMDSRegion asks the EC2 instance metadata service.
func IMDSRegion() RegionSource {
	return func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
		defer cancel()

		out, err := imds.New(imds.Options{}).GetRegion(ctx, &imds.GetRegionInput{})
		if err != nil {
			return "", err
		}
		return out.Region, nil
	}
}

// DetectRegion returns the first non-empty region offered by sources.
// Source errors are logged and the next source is tried.
func DetectRegion(ctx context.Context, log *qlog.Logger, sources ...RegionSource) (string, error) {
	for i, source := range sources {
		region, err := source(ctx)
		if err != nil {
			log.Debug("region source failed", "source", i, "error", err)
			continue
		}
		if region != "" {
			return region, nil
		}
	}
	return "", fmt.Errorf("could not determine AWS region")
}

// LoadAWSConfig resolves the region (environment, shared config, instance
// metadata, in that order) and loads the SDK configuration. Static keys from
// the environment override the default credential chain.
func LoadAWSConfig(ctx context.Context, env *config.Env, log *qlog.Logger) (aws.Config, error) {
	region, err := DetectRegion(ctx, log,
		StaticRegion(env.Region),
		StaticRegion(env.DefaultRegion),
		SharedConfigRegion(),
		IMDSRegion(),
	)
	if err != nil {
		return aws.Config{}, err
	}
	log.Debug("detected AWS region", "region", region)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if env.StorageAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(env.StorageAccessKey, env.StorageSecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
