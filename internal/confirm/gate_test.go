package confirm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapletal-martin/fusion-idea-addin/internal/envelope"
	"github.com/zapletal-martin/fusion-idea-addin/internal/trust"
)

type fakeUI struct {
	input     string
	cancelled bool
	inputErr  error

	prompts  []string
	messages []string
}

func (f *fakeUI) InputBox(prompt, _ string) (string, bool, error) {
	f.prompts = append(f.prompts, prompt)
	return f.input, f.cancelled, f.inputErr
}

func (f *fakeUI) MessageBox(text, _ string) {
	f.messages = append(f.messages, text)
}

func testEnvelope() *envelope.Envelope {
	return &envelope.Envelope{
		PubkeyModulus:  "12345",
		PubkeyExponent: "65537",
		Message:        `{"nonce":7,"script":"/tmp/a.py","debug":0,"pydevd_path":"/opt/pydevd"}`,
		Signature:      "aa",
	}
}

func TestGate_Confirm(t *testing.T) {
	ctx := context.Background()
	digest := envelope.ConfirmationDigest("12345:65537")

	t.Run("matching digest trusts key and forwards command", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{input: digest}
		var forwarded []*envelope.Command
		g := New(ui, store, func(cmd *envelope.Command) error {
			forwarded = append(forwarded, cmd)
			return nil
		}, zerolog.Nop())

		require.NoError(t, g.Confirm(ctx, testEnvelope()))

		nonce, ok := store.Nonce("12345:65537")
		require.True(t, ok)
		assert.Equal(t, int64(7), nonce)
		require.Len(t, forwarded, 1)
		assert.Equal(t, "/tmp/a.py", forwarded[0].Script)
		assert.Empty(t, ui.messages)
	})

	t.Run("digest comparison is case-insensitive", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{input: strings.ToUpper(digest)}
		g := New(ui, store, func(*envelope.Command) error { return nil }, zerolog.Nop())

		require.NoError(t, g.Confirm(ctx, testEnvelope()))
		assert.Equal(t, 1, store.Len())
	})

	t.Run("cancel drops request without state change", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{cancelled: true}
		g := New(ui, store, func(*envelope.Command) error {
			t.Fatal("cancelled request must not be forwarded")
			return nil
		}, zerolog.Nop())

		require.NoError(t, g.Confirm(ctx, testEnvelope()))
		assert.Equal(t, 0, store.Len())
		assert.Empty(t, ui.messages)
	})

	t.Run("mismatch shows error and drops request", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{input: "definitely-wrong"}
		g := New(ui, store, func(*envelope.Command) error {
			t.Fatal("mismatched request must not be forwarded")
			return nil
		}, zerolog.Nop())

		require.NoError(t, g.Confirm(ctx, testEnvelope()))
		assert.Equal(t, 0, store.Len())
		require.Len(t, ui.messages, 1)
		assert.Contains(t, ui.messages[0], "does not match")
	})

	t.Run("prompt failure is returned", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{inputErr: errors.New("host dialog unavailable")}
		g := New(ui, store, func(*envelope.Command) error { return nil }, zerolog.Nop())

		err := g.Confirm(ctx, testEnvelope())
		assert.Error(t, err)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("confirmed envelope with bad inner command is an error", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{input: digest}
		g := New(ui, store, func(*envelope.Command) error { return nil }, zerolog.Nop())

		env := testEnvelope()
		env.Message = "not json"
		err := g.Confirm(ctx, env)
		assert.ErrorIs(t, err, envelope.ErrMalformed)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("forward failure is returned after trusting", func(t *testing.T) {
		store := trust.NewStore()
		ui := &fakeUI{input: digest}
		g := New(ui, store, func(*envelope.Command) error {
			return errors.New("queue full")
		}, zerolog.Nop())

		err := g.Confirm(ctx, testEnvelope())
		assert.Error(t, err)
		// Trust was already granted; the caller may simply retry with a
		// larger nonce.
		assert.Equal(t, 1, store.Len())
	})
}
