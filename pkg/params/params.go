// Package params reads named job-control values from a remote parameter
// store and resolves the AWS configuration shared by the storage and
// parameter clients.
package params

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

const (
	// Enabled is the value a boolean parameter holds when switched on.
	Enabled = "TRUE"
	// Disabled is assumed whenever a parameter cannot be read.
	Disabled = "FALSE"
)

// ErrEmptyValue is returned when a parameter exists but carries no value.
var ErrEmptyValue = errors.New("parameter has no value")

// Store returns the string value of a named parameter.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore reads plain-text parameters from AWS Systems Manager.
type SSMStore struct {
	client ssmAPI
}

// NewSSMStore creates a parameter store client from a loaded AWS config.
func NewSSMStore(cfg aws.Config) *SSMStore {
	return &SSMStore{client: ssm.NewFromConfig(cfg)}
}

func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrEmptyValue, name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// Value reads name from store. Any failure is logged and yields Disabled.
func Value(ctx context.Context, store Store, name string, log *qlog.Logger) string {
	if store == nil {
		log.Warn("no parameter store configured", "parameter", name, "value", Disabled)
		return Disabled
	}
	value, err := store.Get(ctx, name)
	if err != nil {
		log.Error("parameter lookup failed, assuming disabled", "parameter", name, "error", err)
		return Disabled
	}
	log.Info("parameter value", "parameter", name, "value", value)
	return value
}

// IsEnabled reports whether the named parameter equals Enabled.
func IsEnabled(ctx context.Context, store Store, name string, log *qlog.Logger) bool {
	return Value(ctx, store, name, log) == Enabled
}

// Ensure SSMStore implements Store.
var _ Store = (*SSMStore)(nil)
