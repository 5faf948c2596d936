package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lalith-99/convo/internal/observ"
	"github.com/lalith-99/convo/internal/repository/memory"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func gaugeValue(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, observ.GuestSessionsActive.Write(&m))
	return m.GetGauge().GetValue()
}

func TestActiveGuestsSetsGauge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.NewStore(clock)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := store.Guests.GetOrCreate(ctx, id, "10.0.0.1", "test")
		require.NoError(t, err)
	}

	job := ActiveGuests(store.Guests, clock)
	require.NoError(t, job(ctx))
	assert.Equal(t, float64(3), gaugeValue(t))

	now = now.Add(2 * time.Hour)
	require.NoError(t, job(ctx))
	assert.Equal(t, float64(0), gaugeValue(t))
}

type failingCounter struct{}

func (failingCounter) CountActiveSince(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestActiveGuestsWrapsError(t *testing.T) {
	err := ActiveGuests(failingCounter{}, nil)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count active guests")
}

func TestSchedulerAddReplacesByName(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("x", "@every 1m", noop))
	require.NoError(t, s.Add("x", "@every 2m", noop))
	require.NoError(t, s.Add("y", "*/5 * * * *", noop))
	assert.ElementsMatch(t, []string{"x", "y"}, s.Names())
	assert.Len(t, s.cron.Entries(), 2)

	assert.Error(t, s.Add("bad", "not a schedule", noop))
}

func TestSchedulerRunLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewScheduler(zap.New(core), time.Second)

	s.run("broken", func(context.Context) error { return errors.New("boom") })
	s.run("fine", func(context.Context) error { return nil })

	failed := logs.FilterMessage("job failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["job"])
	assert.Equal(t, 1, logs.FilterMessage("job finished").Len())
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestSchedulerStartLogsJobNames(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewScheduler(zap.New(core), time.Second)
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Add("b", "@every 1h", noop))
	require.NoError(t, s.Add("a", "@every 1h", noop))

	s.Start()
	defer s.Stop(context.Background())

	started := logs.FilterMessage("scheduler started").All()
	require.Len(t, started, 1)
	assert.Equal(t, []any{"a", "b"}, started[0].ContextMap()["jobs"])
}

func TestSchedulerRecoversPanickingJob(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewScheduler(zap.New(core), time.Second)
	require.NoError(t, s.Add("explodes", "@every 1s", func(context.Context) error {
		panic("kaboom")
	}))

	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("panic").Len() > 0
	}, 3*time.Second, 50*time.Millisecond)

	entry := logs.FilterMessage("panic").All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	assert.Equal(t, "kaboom", entry.ContextMap()["error"])
	assert.Contains(t, entry.ContextMap()["stack"], "goroutine")
}
