// Package script executes verified commands inside the host's execution
// context: attach a debugger if asked, then run the script if asked.
//
// The mechanics of actually importing/reloading a script module and of
// attaching a debugger belong to the surrounding host glue, kept behind the
// Runner and Debugger capabilities.
package script

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zapletal-martin/fusion-idea-addin/internal/envelope"
)

// Runner runs a script by path inside the host application.
type Runner interface {
	Run(ctx context.Context, path string) error
}

// Debugger attaches the host to a caller-side debug server, and detaches
// again once the script finished.
type Debugger interface {
	Attach(ctx context.Context, port int, pydevdPath string) error
	Detach(ctx context.Context) error
}

// Executor ties a verified inner command to the Runner and Debugger
// capabilities. It runs as the dispatcher's run-command handler, so every
// call happens on the host's serialized execution context.
type Executor struct {
	runner   Runner
	debugger Debugger
	logger   zerolog.Logger
}

// NewExecutor creates an executor. runner and debugger may be nil, in which
// case the corresponding half of a command is skipped with a warning.
func NewExecutor(runner Runner, debugger Debugger, logger zerolog.Logger) *Executor {
	return &Executor{
		runner:   runner,
		debugger: debugger,
		logger:   logger.With().Str("component", "script").Logger(),
	}
}

// Execute performs one command: attach, run, detach. The debugger is detached
// afterwards only when both debugging and a script were requested; a
// debug-only command leaves the session attached for the caller to drive.
// Failures are logged at fatal severity (surfacing an operator dialog) but
// never returned as fatal to the dispatcher loop.
func (e *Executor) Execute(ctx context.Context, cmd *envelope.Command) error {
	if cmd.IsNoop() {
		e.logger.Warn().Msg("No script provided and debugging not requested. There's nothing to do.")
		return nil
	}

	detach := cmd.Script != "" && cmd.WantsDebug()

	if cmd.WantsDebug() {
		if e.debugger == nil {
			e.logger.Warn().Msg("Debugging requested but no debugger is configured")
		} else {
			e.logger.Debug().Int("port", cmd.DebugPort).Msg("Initiating debugger attach")
			if err := e.debugger.Attach(ctx, cmd.DebugPort, cmd.PydevdPath); err != nil {
				e.logger.WithLevel(zerolog.FatalLevel).Err(err).
					Msg("An error occurred while starting the debugger")
			}
		}
	}

	if cmd.Script != "" {
		if e.runner == nil {
			e.logger.Warn().Str("script", cmd.Script).Msg("Script run requested but no runner is configured")
		} else {
			e.logger.Debug().Str("script", cmd.Script).Msg("Running script")
			if err := e.runner.Run(ctx, cmd.Script); err != nil {
				e.logger.WithLevel(zerolog.FatalLevel).Err(err).
					Str("script", cmd.Script).
					Msg("Unhandled error while running script")
			}
		}
	}

	if detach && e.debugger != nil {
		e.logger.Debug().Msg("Detaching debugger")
		if err := e.debugger.Detach(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Error while detaching debugger")
		}
	}

	return nil
}

// ProcessRunner launches scripts with an external interpreter. It stands in
// for the host application's own script machinery when the bridge runs as a
// standalone sidecar.
type ProcessRunner struct {
	interpreter string
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewProcessRunner creates a runner using the given interpreter binary.
func NewProcessRunner(interpreter string, timeout time.Duration, logger zerolog.Logger) *ProcessRunner {
	return &ProcessRunner{
		interpreter: interpreter,
		timeout:     timeout,
		logger:      logger.With().Str("component", "script-runner").Logger(),
	}
}

// Run executes the script to completion and logs its combined output.
func (r *ProcessRunner) Run(ctx context.Context, path string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	executionID := uuid.New().String()
	started := time.Now()

	cmd := exec.CommandContext(ctx, r.interpreter, path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w (output: %s)", path, err, output)
	}

	r.logger.Info().
		Str("execution_id", executionID).
		Str("script", path).
		Dur("duration", time.Since(started)).
		Int("output_bytes", len(output)).
		Msg("Script completed")

	return nil
}

// NopDebugger satisfies Debugger without doing anything. Used when the
// embedding host has no debug transport.
type NopDebugger struct{}

func (NopDebugger) Attach(context.Context, int, string) error { return nil }
func (NopDebugger) Detach(context.Context) error              { return nil }
