// Package confirm implements the trust-on-first-use ceremony for keys that
// have no trust record yet.
//
// This is not a PKI. Security rests entirely on the operator comparing the
// key digest shown by their IDE against the one they type into the prompt
// here, through a side channel outside this system.
package confirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zapletal-martin/fusion-idea-addin/internal/envelope"
	"github.com/zapletal-martin/fusion-idea-addin/internal/trust"
)

// UserInterface is the host's synchronous dialog surface. InputBox blocks the
// caller until the operator answers or cancels; both calls must only happen
// on the host's serialized execution context.
type UserInterface interface {
	InputBox(prompt, title string) (value string, cancelled bool, err error)
	MessageBox(text, title string)
}

const promptText = "New fusion_idea debugger connection detected.\n" +
	"\n" +
	"Please enter the debugger's public key hash below to proceed.\n" +
	"This can be found in IDEA/PyCharm's console.\n" +
	"\n" +
	"If you did not initiate or expect this connection, you can press\n" +
	"cancel to abort the debugging attempt."

const promptTitle = "Debugging Verification"

// Gate promotes a previously-unseen key into the trust store after the
// operator confirms its digest. It runs as the dispatcher's verify-command
// handler, so the blocking prompt stalls the dispatcher queue by design.
type Gate struct {
	ui      UserInterface
	store   *trust.Store
	forward func(cmd *envelope.Command) error
	logger  zerolog.Logger
}

// New creates a gate. forward hands the confirmed inner command over for
// execution (in practice, an enqueue of a run-command item).
func New(ui UserInterface, store *trust.Store, forward func(cmd *envelope.Command) error, logger zerolog.Logger) *Gate {
	return &Gate{
		ui:      ui,
		store:   store,
		forward: forward,
		logger:  logger.With().Str("component", "confirm").Logger(),
	}
}

// Confirm runs the ceremony for one envelope. The remote caller was already
// acknowledged by the listener; outcomes here are surfaced only to the
// operator.
func (g *Gate) Confirm(ctx context.Context, env *envelope.Envelope) error {
	value, cancelled, err := g.ui.InputBox(promptText, promptTitle)
	if err != nil {
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	if cancelled {
		g.logger.Info().Msg("Operator cancelled the connection confirmation")
		return nil
	}

	fingerprint := env.Fingerprint()
	expected := envelope.ConfirmationDigest(fingerprint)

	if !strings.EqualFold(value, expected) {
		g.logger.Info().Msg("Confirmation digest mismatch, dropping request")
		g.ui.MessageBox("The public key does not match. Aborting.", promptTitle)
		return nil
	}

	cmd, err := env.ParseCommand()
	if err != nil {
		return fmt.Errorf("confirmed envelope: %w", err)
	}

	// The record is created with the command's own nonce, so the very next
	// command from this key must already carry a larger one.
	g.store.Trust(fingerprint, cmd.Nonce)
	g.logger.Info().Str("fingerprint_digest", expected).Msg("Key confirmed and trusted")

	if err := g.forward(cmd); err != nil {
		return fmt.Errorf("forwarding confirmed command: %w", err)
	}
	return nil
}
