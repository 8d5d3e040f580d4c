package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/harun/aoichat/internal/config"
	"github.com/harun/aoichat/internal/logger"
	"github.com/harun/aoichat/internal/observability"
	"github.com/harun/aoichat/pkg/chat"
	"github.com/harun/aoichat/pkg/completion"
	"github.com/harun/aoichat/pkg/timeplugin"
	"github.com/harun/aoichat/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const version = "0.1.0"

const missingConfigMessage = "Please provide the AOI_ENDPOINT and AOI_API_KEY in the appsettings.json file."

// newService is replaced in tests to observe client construction
var newService = completion.NewService

type options struct {
	configFile  string
	secretsFile string
	noColor     bool
}

// NewRootCmd creates the aoichat command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "aoichat [KEY=value ...]",
		Short: "aoichat - streaming chat with Azure OpenAI",
		Long: `aoichat is an interactive command-line chat client. It streams answers from
an Azure OpenAI deployment (or an OpenAI or Anthropic endpoint), keeps the
conversation history for the session and lets the model call time and date
tools while it answers.

Configuration is read from appsettings.json, the user secrets file,
AOI_* environment variables and command-line overrides, in that order.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "settings file (default is appsettings.json next to the executable or in the working directory)")
	flags.StringVar(&opts.secretsFile, "secrets", "", "user secrets file (default is "+config.DefaultSecretsPath()+")")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	for _, key := range config.Keys {
		flags.String(key.Name, "", key.Usage)
	}

	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
	return cmd
}

// Execute runs the root command with ctx as the session context
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	if err := applyKeyValueArgs(cmd.Flags(), args); err != nil {
		return err
	}

	loader := config.NewLoader(
		config.WithConfigFile(opts.configFile),
		config.WithSecretsFile(opts.secretsFile),
		config.WithFlags(cmd.Flags()),
	)
	cfg, err := loader.Load()
	if errors.Is(err, config.ErrConfigurationMissing) {
		fmt.Fprintln(cmd.OutOrStdout(), missingConfigMessage)
		return nil
	}
	if err != nil {
		return err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		Console:   cfg.LogFile == "",
		Pretty:    true,
		Redaction: true,
		Secrets:   []string{cfg.APIKey},
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	log := lg.GetZerolog()

	log.Debug().
		Str("version", version).
		Strs("files", loader.Files()).
		RawJSON("config", []byte(cfg.String())).
		Msg("Configuration loaded")

	registry := tools.New()
	if err := timeplugin.Register(registry, timeplugin.Options{}); err != nil {
		return fmt.Errorf("failed to register time tools: %w", err)
	}
	log.Debug().Strs("tools", registry.Names()).Msg("Tools registered")

	svcOpts := cfg.ServiceOptions()
	svcOpts.Logger = log
	svc, err := newService(svcOpts)
	if err != nil {
		return fmt.Errorf("failed to create completion service: %w", err)
	}

	sessionID := uuid.NewString()
	recorders := completion.Recorders{}

	if cfg.MetricsFile != "" {
		metrics := observability.NewMetrics()
		svc = observability.InstrumentService(svc, metrics)
		recorders = append(recorders, metrics)
		defer writeMetrics(log, metrics, cfg.MetricsFile)
	}

	if cfg.AuditLog != "" {
		audit, err := observability.NewAuditLogger(cfg.AuditLog, sessionID)
		if err != nil {
			return err
		}
		defer audit.Close()
		recorders = append(recorders, audit)
	}

	var consoleOpts []chat.ConsoleOption
	if opts.noColor || color.NoColor || cmd.OutOrStdout() != os.Stdout {
		consoleOpts = append(consoleOpts, chat.WithPlainOutput())
	}
	console := chat.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), consoleOpts...)

	settings := cfg.Settings()
	var approver completion.Approver
	if settings.ToolBehavior == completion.ToolBehaviorManual {
		approver = tools.NewCLIApprover(console, console.Writer())
	}

	var recorder completion.ToolCallRecorder
	if len(recorders) > 0 {
		recorder = recorders
	}

	session, err := chat.NewSession(chat.Config{
		ID:       sessionID,
		Service:  svc,
		Console:  console,
		Settings: settings,
		Tools:    registry,
		Approver: approver,
		Recorder: recorder,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	err = session.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Interrupted")
		return nil
	}
	return err
}

// applyKeyValueArgs accepts KEY=value and /KEY=value arguments as overrides,
// the same as --KEY=value
func applyKeyValueArgs(flags *pflag.FlagSet, args []string) error {
	for _, arg := range args {
		key, value, ok := strings.Cut(strings.TrimPrefix(arg, "/"), "=")
		if !ok {
			return fmt.Errorf("unexpected argument %q (expected KEY=value)", arg)
		}
		if flags.Lookup(key) == nil || !strings.HasPrefix(key, "AOI_") {
			return fmt.Errorf("unknown configuration key %q", key)
		}
		if err := flags.Set(key, value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

func writeMetrics(log zerolog.Logger, metrics *observability.Metrics, path string) {
	if err := metrics.WriteToTextfile(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to write metrics")
	}
}
