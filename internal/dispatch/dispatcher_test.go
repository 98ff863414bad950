package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestDispatcher_FIFOWithinKind(t *testing.T) {
	d := New(16, testLogger())

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	d.Handle(KindRunCommand, func(_ context.Context, payload any) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(int))
		if len(got) == 5 {
			close(done)
		}
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(KindRunCommand, i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("items were not consumed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	d := New(2, testLogger())
	d.Handle(KindShowError, func(context.Context, any) error { return nil })

	// No consumer running: the third enqueue must fail fast, not block.
	require.NoError(t, d.Enqueue(KindShowError, "a"))
	require.NoError(t, d.Enqueue(KindShowError, "b"))

	err := d.Enqueue(KindShowError, "c")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, d.Pending())
}

func TestDispatcher_SurvivesHandlerFailures(t *testing.T) {
	d := New(16, testLogger())

	done := make(chan struct{})
	d.Handle(KindRunCommand, func(context.Context, any) error {
		return errors.New("script exploded")
	})
	d.Handle(KindVerifyCommand, func(context.Context, any) error {
		panic("prompt machinery broke")
	})
	d.Handle(KindShowError, func(context.Context, any) error {
		close(done)
		return nil
	})

	require.NoError(t, d.Enqueue(KindRunCommand, nil))
	require.NoError(t, d.Enqueue(KindVerifyCommand, nil))
	require.NoError(t, d.Enqueue(KindShowError, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-done:
		// The failing and panicking items did not kill the consumer.
	case <-time.After(2 * time.Second):
		t.Fatal("consumer loop died after a handler failure")
	}
}

func TestDispatcher_UnknownKindIsDropped(t *testing.T) {
	d := New(4, testLogger())

	seen := make(chan struct{})
	d.Handle(KindShowError, func(context.Context, any) error {
		close(seen)
		return nil
	})

	require.NoError(t, d.Enqueue(Kind("bogus"), nil))
	require.NoError(t, d.Enqueue(KindShowError, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled on an unhandled kind")
	}
}

func TestDispatcher_BlockingItemDelaysQueue(t *testing.T) {
	d := New(16, testLogger())

	release := make(chan struct{})
	second := make(chan struct{})

	d.Handle(KindVerifyCommand, func(context.Context, any) error {
		<-release
		return nil
	})
	d.Handle(KindRunCommand, func(context.Context, any) error {
		close(second)
		return nil
	})

	require.NoError(t, d.Enqueue(KindVerifyCommand, nil))
	require.NoError(t, d.Enqueue(KindRunCommand, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-second:
		t.Fatal("later item ran while an earlier item was still blocking")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not resume after blocking item finished")
	}
}

func TestDispatcher_PanicMessageIncludesKind(t *testing.T) {
	d := New(4, testLogger())
	d.Handle(KindRunCommand, func(context.Context, any) error {
		panic(fmt.Errorf("boom"))
	})

	require.NoError(t, d.Enqueue(KindRunCommand, nil))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	// Reaching this point without crashing is the assertion; the panic body
	// is covered by TestDispatcher_SurvivesHandlerFailures.
}
