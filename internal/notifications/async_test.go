package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ctxKey struct{}

func TestCallAsyncOutlivesCancelledParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	CallAsync(parent, zap.NewNop().Sugar(), "test", func(ctx context.Context) error {
		close(started)
		<-release

		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Equal(t, "req-1", ctx.Value(ctxKey{}))
		done <- ctx.Err()
		return nil
	})

	<-started
	cancel()
	close(release)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("async call did not finish")
	}
}

func TestCallAsyncSurvivesFailureAndPanic(t *testing.T) {
	logger := zap.NewNop().Sugar()
	finished := make(chan struct{}, 2)

	CallAsync(context.Background(), logger, "fails", func(context.Context) error {
		defer func() { finished <- struct{}{} }()
		return errors.New("push down")
	})
	CallAsync(context.Background(), logger, "panics", func(context.Context) error {
		defer func() { finished <- struct{}{} }()
		panic("boom")
	})

	for range 2 {
		select {
		case <-finished:
		case <-time.After(time.Second):
			require.FailNow(t, "async call did not finish")
		}
	}
}
