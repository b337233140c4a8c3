package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/quatton/batchffmpeg/pkg/qtrace"
	"github.com/quatton/batchffmpeg/pkg/wrapper"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ffmpeg-wrapper",
	Short: "Run one ffmpeg transcoding job inside a batch container",
	Long: `ffmpeg-wrapper stages the job's inputs from object storage (or a shared
filesystem), runs ffmpeg while reporting progress, uploads the results and
optionally computes video quality metrics.

Every flag may also be set through an FFWRAP_<FLAG> environment variable and
accepts the literal "null" to mean unset. The exit code is 0 on success and 1
if staging, transcoding or uploading failed.`,
	Example: `  ffmpeg-wrapper --global_options "-y" \
    --input_url s3://media/in/clip.mp4 \
    --output_file_options "-c:v libx264 -crf 23" \
    --output_url s3://media/out/clip.mp4 --name clip-1`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(err)
	}
}

func init() {
	f := rootCmd.Flags()
	f.String(config.GlobalOptionsKey, "", "ffmpeg options placed before any input")
	f.String(config.InputFileOptionsKey, "", "ffmpeg options placed before each input")
	f.String(config.InputURLKey, "", "comma-separated input object URLs (required)")
	f.String(config.OutputFileOptionsKey, "", "ffmpeg options placed before the output")
	f.String(config.OutputURLKey, "", "output object URL; a % in the key uploads the whole output directory (required)")
	f.String(config.NameKey, "", "job name used as the progress key (defaults to the batch job id)")
}

func run(cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	p, err := config.LoadParams(v)
	if err != nil {
		return err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	log := qlog.NewLogger(qlog.ParseLevel(env.LogLevel), os.Stdout)
	switch env.DotEnv {
	case config.DotEnvLoaded:
		log.Info("loaded .env file")
	case config.DotEnvMissing:
		log.Info("no .env file found")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := qtrace.Setup(ctx, env.OTLPEndpoint, log)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", "error", err)
			}
		}()
	}

	deps, closeDeps, err := wrapper.Connect(ctx, env, log)
	defer closeDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize job: %w", err)
	}

	err = wrapper.New(env, deps, log).Run(ctx, p)
	if err == nil {
		log.Info("job succeeded")
	}
	return err
}
