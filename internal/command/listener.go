// Package command implements the authenticated command channel.
//
// The listener accepts signed command envelopes on a loopback-only port
// assigned by the OS, verifies them, enforces replay protection for trusted
// keys, and hands the surviving work to the dispatcher. First-contact keys
// are acknowledged immediately and routed through the confirmation gate
// asynchronously.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zapletal-martin/fusion-idea-addin/internal/dispatch"
	"github.com/zapletal-martin/fusion-idea-addin/internal/envelope"
	"github.com/zapletal-martin/fusion-idea-addin/internal/trust"
)

// maxBodyBytes bounds a command request body. Envelopes are a few KB; anything
// close to this limit is garbage.
const maxBodyBytes = 1 << 20

// Listener is the command-channel HTTP server.
type Listener struct {
	host       string
	store      *trust.Store
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	ln     net.Listener
	server *http.Server
}

// NewListener creates a listener bound to host (loopback) with an OS-assigned
// port once started.
func NewListener(host string, store *trust.Store, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *Listener {
	l := &Listener{
		host:       host,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "command").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", l.handleCommand)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK\n"))
	})

	l.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return l
}

// Start binds the listener and begins serving in a background goroutine.
// The port is assigned by the OS so multiple host instances can run
// simultaneously without collision.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(l.host, "0"))
	if err != nil {
		return fmt.Errorf("bind command listener: %w", err)
	}
	l.ln = ln

	l.logger.Debug().Int("port", l.Port()).Msg("Starting command listener")

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.WithLevel(zerolog.FatalLevel).Err(err).
				Msg("Error occurred while running the command listener")
		}
	}()

	return nil
}

// Port returns the bound port, 0 before Start.
func (l *Listener) Port() int {
	if l.ln == nil {
		return 0
	}
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns the bound host:port, empty before Start.
func (l *Listener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Stop gracefully shuts the listener down. In-flight requests may fail with a
// connection error, which is acceptable at shutdown.
func (l *Listener) Stop(ctx context.Context) error {
	l.logger.Debug().Msg("Stopping command listener")
	return l.server.Shutdown(ctx)
}

// handleCommand processes one signed envelope. The remote caller only ever
// sees "done" or a textual failure; confirmation and execution outcomes stay
// on the operator's side.
func (l *Listener) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		l.fail(w, fmt.Errorf("reading request body: %w", err))
		return
	}

	env, err := envelope.Parse(body)
	if err != nil {
		l.fail(w, err)
		return
	}

	// Signature before anything else. A bad signature never reaches the
	// nonce check or the trust store.
	if err := env.Verify(); err != nil {
		l.fail(w, err)
		return
	}

	fingerprint := env.Fingerprint()

	if _, known := l.store.Nonce(fingerprint); !known {
		// First contact: acknowledge now, confirm asynchronously. The caller
		// is not told whether the operator ever approves.
		l.succeed(w)
		if err := l.dispatcher.Enqueue(dispatch.KindVerifyCommand, env); err != nil {
			l.logger.Error().Err(err).Msg("Failed to queue confirmation for new key")
		}
		return
	}

	cmd, err := env.ParseCommand()
	if err != nil {
		l.fail(w, err)
		return
	}

	if err := l.store.Accept(fingerprint, cmd.Nonce); err != nil {
		l.fail(w, err)
		return
	}

	// The response reflects the enqueue only; execution is asynchronous and
	// its outcome is never reported back to the caller.
	if err := l.dispatcher.Enqueue(dispatch.KindRunCommand, cmd); err != nil {
		l.fail(w, err)
		return
	}

	l.logger.Debug().Int64("nonce", cmd.Nonce).Msg("Command accepted")
	l.succeed(w)
}

func (l *Listener) succeed(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("done"))
}

func (l *Listener) fail(w http.ResponseWriter, err error) {
	l.logger.Error().Err(err).Msg("An error occurred while handling a command request")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(err.Error()))
}
