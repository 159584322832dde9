package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New(Options{})
	err := s.Register("expiry", "not a cron", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestRunLogsFailureAndRecoversPanic(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(Options{Logger: zap.New(core), Timeout: time.Second})

	s.run("failing", func(ctx context.Context) error { return errors.New("db down") })
	s.run("panicking", func(ctx context.Context) error { panic("boom") })
	s.run("ok", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	require.Equal(t, 1, logs.FilterMessage("task failed").Len())
	require.Equal(t, 1, logs.FilterMessage("task panicked").Len())
	require.Equal(t, 1, logs.FilterMessage("task completed").Len())
}

func TestStopCancelsTaskContext(t *testing.T) {
	s := New(Options{})
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.Error(t, s.ctx.Err())
}
