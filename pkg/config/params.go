package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Null is the sentinel the scheduler passes for an explicitly unset parameter.
const Null = "null"

const (
	EnvPrefix = "FFWRAP"

	GlobalOptionsKey     = "global_options"
	InputFileOptionsKey  = "input_file_options"
	InputURLKey          = "input_url"
	OutputFileOptionsKey = "output_file_options"
	OutputURLKey         = "output_url"
	NameKey              = "name"
)

// ParamKeys lists every job parameter in CLI order.
var ParamKeys = []string{
	GlobalOptionsKey,
	InputFileOptionsKey,
	InputURLKey,
	OutputFileOptionsKey,
	OutputURLKey,
	NameKey,
}

// Params are the per-job transcoding parameters. Empty means unset, whether
// the flag was omitted or passed as "null".
type Params struct {
	GlobalOptions     string
	InputFileOptions  string
	InputURL          string
	OutputFileOptions string
	OutputURL         string
	Name              string

	// Raw holds the values as received, before "null" normalisation.
	Raw map[string]string
}

// NewViper returns a viper instance that falls back to FFWRAP_* variables
// for any parameter not given on the command line.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadParams reads the job parameters from v. input_url and output_url are
// required; every value accepts the "null" sentinel.
func LoadParams(v *viper.Viper) (*Params, error) {
	raw := make(map[string]string, len(ParamKeys))
	for _, key := range ParamKeys {
		raw[key] = v.GetString(key)
	}

	if raw[InputURLKey] == "" {
		return nil, errors.New("input_url is required")
	}
	if raw[OutputURLKey] == "" {
		return nil, errors.New("output_url is required")
	}

	return &Params{
		GlobalOptions:     normalize(raw[GlobalOptionsKey]),
		InputFileOptions:  normalize(raw[InputFileOptionsKey]),
		InputURL:          normalize(raw[InputURLKey]),
		OutputFileOptions: normalize(raw[OutputFileOptionsKey]),
		OutputURL:         normalize(raw[OutputURLKey]),
		Name:              normalize(raw[NameKey]),
		Raw:               raw,
	}, nil
}

func normalize(s string) string {
	if s == Null {
		return ""
	}
	return s
}

// Inputs splits InputURL into its locations. Spaces are stripped and empty
// entries dropped.
func (p *Params) Inputs() []string {
	cleaned := strings.ReplaceAll(p.InputURL, " ", "")
	if cleaned == "" {
		return nil
	}
	var inputs []string
	for _, part := range strings.Split(cleaned, ",") {
		if part != "" {
			inputs = append(inputs, part)
		}
	}
	return inputs
}

// Fields returns the raw parameters as key/value pairs for logging.
func (p *Params) Fields() []any {
	fields := make([]any, 0, 2*len(ParamKeys))
	for _, key := range ParamKeys {
		fields = append(fields, key, p.Raw[key])
	}
	return fields
}
