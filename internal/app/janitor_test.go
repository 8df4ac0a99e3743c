package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingPurger struct {
	calls atomic.Int64
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 2, p.err
}

func runJanitor(t *testing.T, j *Janitor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("janitor did not stop")
		}
	}
}

func TestJanitorPurgesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	core, logs := observer.New(zapcore.InfoLevel)
	purger := &countingPurger{}
	stop := runJanitor(t, NewJanitor(purger, 5*time.Millisecond, zap.New(core)))

	require.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, time.Millisecond)
	stop()

	assert.NotZero(t, logs.FilterMessage("Purged expired tokens").Len())
}

func TestJanitorLogsFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	core, logs := observer.New(zapcore.ErrorLevel)
	purger := &countingPurger{err: errors.New("storage unavailable")}
	stop := runJanitor(t, NewJanitor(purger, 5*time.Millisecond, zap.New(core)))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Failed to purge expired tokens").Len() > 0
	}, time.Second, time.Millisecond)
	stop()
}

func TestJanitorDisabled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	purger := &countingPurger{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewJanitor(purger, 0, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled janitor should return immediately")
	}
	assert.Zero(t, purger.calls.Load())
}
