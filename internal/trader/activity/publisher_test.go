package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/internal/trader/repository/repositorytest"
	"golang-news-trader/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) SendMessage(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type failingRepo struct{}

func (failingRepo) Create(context.Context, *entity.ActivityLog) error { return errors.New("db down") }
func (failingRepo) List(context.Context, repository.GetActivityLogsParam) ([]entity.ActivityLog, error) {
	return nil, errors.New("db down")
}

// blockingRepo holds every write until its context ends.
type blockingRepo struct {
	mu       sync.Mutex
	deadline bool
}

func (r *blockingRepo) Create(ctx context.Context, _ *entity.ActivityLog) error {
	_, ok := ctx.Deadline()
	r.mu.Lock()
	r.deadline = ok
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (r *blockingRepo) List(context.Context, repository.GetActivityLogsParam) ([]entity.ActivityLog, error) {
	return nil, nil
}

func TestPublishStoresAndAlerts(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewActivityLogRepository(repositorytest.NewDB(t))
	notifier := &recordingNotifier{}
	p := NewPublisher(repo, nil, "", notifier, logger.NewNop())

	p.Publish(ctx, entity.ActivityTradeClosed, "AAPL closed", map[string]interface{}{"trade_id": 7, "symbol": "AAPL"})
	p.Publish(ctx, entity.ActivityTradeStatus, "status", nil)

	logs, err := repo.List(ctx, repository.GetActivityLogsParam{})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	closed, err := repo.List(ctx, repository.GetActivityLogsParam{Types: []entity.ActivityType{entity.ActivityTradeClosed}})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(closed[0].Data, &payload))
	assert.Equal(t, "AAPL", payload["symbol"])

	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublishSwallowsFailures(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	p := NewPublisher(failingRepo{}, nil, "", notifier, logger.NewNop())

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), entity.ActivityTradeFailed, "boom", map[string]interface{}{"bad": make(chan int)})
		p.Escalate(context.Background(), "reconcile_failed", errors.New("broker down"), "TSLA")
	})
	assert.Eventually(t, func() bool { return notifier.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestPublishStoresAfterCallerCancelled(t *testing.T) {
	repo := repository.NewActivityLogRepository(repositorytest.NewDB(t))
	p := NewPublisher(repo, nil, "", nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, entity.ActivityTradeOpened, "AAPL opened", map[string]interface{}{"symbol": "AAPL"})

	logs, err := repo.List(context.Background(), repository.GetActivityLogsParam{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "AAPL opened", logs[0].Message)
}

func TestPublishBoundsSlowStore(t *testing.T) {
	repo := &blockingRepo{}
	p := NewPublisher(repo, nil, "", nil, logger.NewNop())

	started := time.Now()
	p.Publish(context.Background(), entity.ActivityTradeStatus, "status", nil)

	assert.Less(t, time.Since(started), publishTimeout+time.Second)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.True(t, repo.deadline)
}
