package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/gym-class-booking/internal/service"
)

type countingReconciler struct {
	calls  atomic.Int32
	report service.ReconcileReport
	err    error
}

func (r *countingReconciler) Reconcile(context.Context) (service.ReconcileReport, error) {
	r.calls.Add(1)
	return r.report, r.err
}

func TestSchedulerRunsUntilStopped(t *testing.T) {
	t.Parallel()

	rec := &countingReconciler{report: service.ReconcileReport{Checked: 2, Diverged: 1}}
	core, logs := observer.New(zap.DebugLevel)
	s := NewScheduler(rec, 5*time.Millisecond, zap.New(core))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return rec.calls.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	calls := rec.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, rec.calls.Load())
	assert.NotZero(t, logs.FilterMessage("reconcile completed").FilterField(zap.Int("diverged", 1)).Len())
	assert.Equal(t, 1, logs.FilterMessage("reconcile task stopped").Len())
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	rec := &countingReconciler{err: errors.New("store unavailable")}
	core, logs := observer.New(zap.DebugLevel)
	s := NewScheduler(rec, 5*time.Millisecond, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return rec.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	s.Stop()

	assert.NotZero(t, logs.FilterMessage("reconcile failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("reconcile task cancelled").Len()+logs.FilterMessage("reconcile task stopped").Len())
}
