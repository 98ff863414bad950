package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zapletal-martin/fusion-idea-addin/internal/addin"
	"github.com/zapletal-martin/fusion-idea-addin/internal/config"
	"github.com/zapletal-martin/fusion-idea-addin/internal/constants"
	"github.com/zapletal-martin/fusion-idea-addin/internal/discovery"
	"github.com/zapletal-martin/fusion-idea-addin/internal/logging"
	"github.com/zapletal-martin/fusion-idea-addin/internal/script"
)

func newServeCmd() *cobra.Command {
	var (
		configFile string
		logLevel   string
		logPretty  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge until interrupted",
		Long: `Run the bridge until interrupted.

Starts the loopback command listener on an OS-assigned port, then the
discovery responder advertising that port. Confirmation prompts and error
dialogs appear on this terminal.

Configuration sources (in order of precedence):
1. Environment variables (FUSION_BRIDGE_*)
2. Config file (--config flag or ./config.yaml)
3. Defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-pretty") {
				cfg.Log.Pretty = logPretty
			}

			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to the config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "logging level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&logPretty, "log-pretty", false, "human-readable log output")

	return cmd
}

func serve(cfg config.Config) error {
	// The hook closes over bridge so fatal-severity log events from any
	// component surface as operator dialogs once the add-in exists.
	var bridge *addin.AddIn
	hook := logging.NewDialogHook(func(message string) {
		if bridge != nil {
			bridge.NotifyError(message)
		}
	})

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	}).Hook(hook)

	bridge, err := addin.New(addin.Config{
		UI:     NewConsoleUI(os.Stdin, os.Stderr),
		Runner:      script.NewProcessRunner(cfg.Script.Interpreter, cfg.Script.Timeout, logger),
		Debugger:    script.NopDebugger{},
		CommandHost: cfg.Command.Host,
		Discovery: discovery.Config{
			Group:        cfg.Discovery.Group,
			Port:         cfg.Discovery.Port,
			Interface:    cfg.Discovery.Interface,
			SearchTarget: constants.SearchTarget,
		},
		QueueCapacity: cfg.Queue.Capacity,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to assemble the bridge: %w", err)
	}

	if err := bridge.Start(); err != nil {
		return fmt.Errorf("failed to start the bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Int("command_port", bridge.CommandPort()).Msg("Bridge is ready")

	// The dispatcher loop runs on this goroutine, standing in for the host
	// application's single serialized execution context.
	bridge.Dispatcher().Run(ctx)

	logger.Info().Msg("Shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), constants.StopTimeout)
	defer cancel()
	bridge.Stop(stopCtx)
	return nil
}
