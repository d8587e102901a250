package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/bootstrap"
	"github.com/kirillkom/report-pipeline-client/internal/config"
	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/observability/logging"
)

const serviceName = "reportctl"

type runner struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFile    string
	verbose    bool
	noColor    bool

	app *bootstrap.App
}

// Execute runs reportctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, r := newRootCommand(stdout, stderr)
	defer r.close()

	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, red("Error:"), domain.UserMessage(err, "command failed"))
	return exitCode(err)
}

func newRootCommand(stdout, stderr io.Writer) (*cobra.Command, *runner) {
	r := &runner{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Manage reports and follow their processing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.setup(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&r.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&r.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "log at debug level")
	root.PersistentFlags().BoolVar(&r.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		r.reportsCommand(),
		r.filesCommand(),
		r.uploadCommand(),
		r.watchCommand(),
		r.retryCommand(),
		r.downloadCommand(),
		r.exportCommand(),
		r.historyCommand(),
	)
	return root, r
}

func (r *runner) setup(ctx context.Context) error {
	if r.noColor {
		color.NoColor = true
	}
	if r.envFile != "" {
		if err := godotenv.Load(r.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.LoadFile(r.configPath)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "load config", err)
	}
	level := cfg.LogLevel
	if r.verbose {
		level = slog.LevelDebug.String()
	}
	logger := logging.New(r.stderr, serviceName, level, cfg.LogFormat)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	r.app = app
	return nil
}

func (r *runner) close() {
	if r.app != nil {
		r.app.Close()
	}
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse "+what, fmt.Errorf("invalid %s %q", what, raw))
	}
	return id, nil
}
