package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang-news-trader/internal/trader/config"
	"golang-news-trader/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorSchedule(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, "@every 2m0s", MonitorSchedule(cfg, 2*time.Minute))

	cfg.Trader.MonitorSchedule = "*/5 * * * *"
	assert.Equal(t, "*/5 * * * *", MonitorSchedule(cfg, 2*time.Minute))
}

func TestCronScheduler_Register(t *testing.T) {
	s := NewCronScheduler(time.Second, logger.NewNop())

	err := s.Register(Job{Name: "bad", Schedule: "every minute", Run: func(context.Context) error { return nil }})
	require.Error(t, err)

	require.NoError(t, s.Register(Job{Name: "ok", Schedule: "@every 1m", Run: func(context.Context) error { return nil }}))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestCronScheduler_RunAppliesTimeout(t *testing.T) {
	s := NewCronScheduler(10*time.Millisecond, logger.NewNop())

	var deadlineHit atomic.Bool
	s.run(Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}})
	assert.True(t, deadlineHit.Load())
}

func TestCronScheduler_StopCancelsJobs(t *testing.T) {
	s := NewCronScheduler(time.Minute, logger.NewNop())

	started := make(chan struct{})
	var once sync.Once
	var cancelled atomic.Bool
	require.NoError(t, s.Register(Job{Name: "long", Schedule: "@every 1s", Run: func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled.Store(true)
		return nil
	}}))
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	s.Stop()
	assert.True(t, cancelled.Load())
}
