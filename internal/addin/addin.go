// Package addin wires the bridge together: trust store, dispatcher handlers,
// command listener, and discovery responder, with a start/stop lifecycle the
// embedding host drives.
package addin

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zapletal-martin/fusion-idea-addin/internal/command"
	"github.com/zapletal-martin/fusion-idea-addin/internal/confirm"
	"github.com/zapletal-martin/fusion-idea-addin/internal/constants"
	"github.com/zapletal-martin/fusion-idea-addin/internal/discovery"
	"github.com/zapletal-martin/fusion-idea-addin/internal/dispatch"
	"github.com/zapletal-martin/fusion-idea-addin/internal/envelope"
	"github.com/zapletal-martin/fusion-idea-addin/internal/script"
	"github.com/zapletal-martin/fusion-idea-addin/internal/trust"
)

const errorDialogTitle = "fusion_idea_addin error"

// Config contains the capabilities and settings the add-in needs from its
// embedding host.
type Config struct {
	// UI is the host's synchronous dialog surface. Required.
	UI confirm.UserInterface

	// Runner runs scripts inside the host. Optional; script requests are
	// dropped with a warning when nil.
	Runner script.Runner

	// Debugger attaches/detaches debug sessions. Optional.
	Debugger script.Debugger

	// CommandHost is the loopback address for the command listener.
	CommandHost string

	// Discovery configures the responder.
	Discovery discovery.Config

	// QueueCapacity bounds the dispatcher queue.
	QueueCapacity int

	// Logger is the logger instance.
	Logger zerolog.Logger
}

// AddIn is the assembled bridge. All cross-thread work funnels through its
// dispatcher; the host dedicates its single serialized execution context to
// Dispatcher().Run.
type AddIn struct {
	cfg        Config
	store      *trust.Store
	dispatcher *dispatch.Dispatcher
	listener   *command.Listener
	responder  *discovery.Responder
	logger     zerolog.Logger

	started bool
}

// New assembles an add-in. No sockets are touched until Start.
func New(cfg Config) (*AddIn, error) {
	if cfg.UI == nil {
		return nil, errors.New("a user interface is required")
	}
	if cfg.CommandHost == "" {
		cfg.CommandHost = constants.CommandHost
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = constants.DefaultQueueCapacity
	}
	if cfg.Discovery.SearchTarget == "" {
		cfg.Discovery.SearchTarget = constants.SearchTarget
	}

	logger := cfg.Logger.With().Str("component", "addin").Logger()

	a := &AddIn{
		cfg:        cfg,
		store:      trust.NewStore(),
		dispatcher: dispatch.New(cfg.QueueCapacity, cfg.Logger),
		logger:     logger,
	}

	executor := script.NewExecutor(cfg.Runner, cfg.Debugger, cfg.Logger)
	gate := confirm.New(cfg.UI, a.store, func(cmd *envelope.Command) error {
		return a.dispatcher.Enqueue(dispatch.KindRunCommand, cmd)
	}, cfg.Logger)

	a.dispatcher.Handle(dispatch.KindRunCommand, func(ctx context.Context, payload any) error {
		cmd, ok := payload.(*envelope.Command)
		if !ok {
			return fmt.Errorf("run-command payload has unexpected type %T", payload)
		}
		return executor.Execute(ctx, cmd)
	})

	a.dispatcher.Handle(dispatch.KindVerifyCommand, func(ctx context.Context, payload any) error {
		env, ok := payload.(*envelope.Envelope)
		if !ok {
			return fmt.Errorf("verify-command payload has unexpected type %T", payload)
		}
		return gate.Confirm(ctx, env)
	})

	a.dispatcher.Handle(dispatch.KindShowError, func(_ context.Context, payload any) error {
		msg, ok := payload.(string)
		if !ok {
			return fmt.Errorf("show-error payload has unexpected type %T", payload)
		}
		cfg.UI.MessageBox(msg, errorDialogTitle)
		return nil
	})

	a.listener = command.NewListener(cfg.CommandHost, a.store, a.dispatcher, cfg.Logger)
	return a, nil
}

// Start brings up the command listener, then the discovery responder
// advertising the listener's bound port.
func (a *AddIn) Start() error {
	if a.started {
		return errors.New("already started")
	}

	if err := a.listener.Start(); err != nil {
		return err
	}

	a.responder = discovery.NewResponder(a.cfg.Discovery, a.listener.Port(), a.cfg.Logger)
	if err := a.responder.Start(); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), constants.StopTimeout)
		defer cancel()
		if stopErr := a.listener.Stop(ctx); stopErr != nil {
			a.logger.Error().Err(stopErr).Msg("Error stopping command listener after failed start")
		}
		return err
	}

	a.started = true
	a.logger.Info().
		Int("command_port", a.listener.Port()).
		Int("discovery_port", a.responder.Port()).
		Msg("Add-in started")
	return nil
}

// Stop closes both listeners. Errors are logged rather than returned; the
// host's teardown must always run to completion.
func (a *AddIn) Stop(ctx context.Context) {
	if a.responder != nil {
		if err := a.responder.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Error while stopping the discovery responder")
		}
		a.responder = nil
	}

	if err := a.listener.Stop(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error while stopping the command listener")
	}

	a.started = false
	a.logger.Info().Msg("Add-in stopped")
}

// Dispatcher exposes the queue so the host can run the consumer loop on its
// own serialized execution context.
func (a *AddIn) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// CommandPort returns the command listener's bound port, 0 before Start.
func (a *AddIn) CommandPort() int {
	return a.listener.Port()
}

// NotifyError queues an error dialog for the operator. Safe from any
// goroutine; used by the fatal-severity logging hook.
func (a *AddIn) NotifyError(message string) {
	if err := a.dispatcher.Enqueue(dispatch.KindShowError, message); err != nil {
		a.logger.Error().Err(err).Msg("Failed to queue error dialog")
	}
}
