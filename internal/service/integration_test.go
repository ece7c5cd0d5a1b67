package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"github.com/kursadbilgin/broadcast-dispatch/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/broadcast-dispatch/internal/provider"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sqliteEnv struct {
	db      *gorm.DB
	jobs    *repository.GormJobRepo
	inbox   *repository.GormInboxRepo
	devices *repository.GormDeviceRepo
	prefs   *repository.GormPreferenceRepo
	users   *repository.GormUserRepo
}

func newSQLiteEnv(t *testing.T) *sqliteEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "dispatch.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrations.Migrate(db))

	return &sqliteEnv{
		db:      db,
		jobs:    repository.NewGormJobRepo(db),
		inbox:   repository.NewGormInboxRepo(db),
		devices: repository.NewGormDeviceRepo(db),
		prefs:   repository.NewGormPreferenceRepo(db),
		users:   repository.NewGormUserRepo(db),
	}
}

func (e *sqliteEnv) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.db.Create(&repository.ProfileModel{ID: id, Nickname: id, CreatedAt: time.Now().UTC()}).Error)
	}
}

func (e *sqliteEnv) seedDevice(t *testing.T, userID, token string, platform domain.Platform) {
	t.Helper()
	require.NoError(t, e.devices.Register(context.Background(), &domain.DeviceTarget{
		ID:        "dev-" + token,
		UserID:    userID,
		Token:     token,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}))
}

func (e *sqliteEnv) seedDueJob(t *testing.T, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, e.jobs.Create(context.Background(), &domain.ScheduledJob{
		ID:          id,
		Title:       "Maintenance " + id,
		Body:        "Scheduled downtime tonight.",
		ScheduledAt: now.Add(-time.Minute),
		Status:      domain.JobStatusPending,
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now.Add(-time.Hour),
	}))
}

func (e *sqliteEnv) newWorker(t *testing.T, gateway provider.Gateway) *DispatchWorker {
	t.Helper()
	return e.newWorkerWithConfig(t, gateway, DispatchConfig{})
}

func (e *sqliteEnv) newWorkerWithConfig(t *testing.T, gateway provider.Gateway, cfg DispatchConfig) *DispatchWorker {
	t.Helper()

	fanout, err := NewPushFanout(e.devices, gateway, nil, 4, time.Second, nil)
	require.NoError(t, err)

	worker, err := NewDispatchWorker(e.jobs, e.inbox, e.users, e.prefs, fanout, cfg, nil)
	require.NoError(t, err)
	return worker
}

type countingGateway struct {
	mu     sync.Mutex
	tokens []string
}

func (g *countingGateway) Send(ctx context.Context, msg provider.Message) (*provider.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, msg.Token)
	return &provider.Response{StatusCode: 200}, nil
}

func (g *countingGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens)
}

func TestDispatchEndToEndWritesInboxAndPushes(t *testing.T) {
	t.Parallel()

	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice", "bob")
	env.seedDevice(t, "alice", "alice-phone", domain.PlatformIOS)
	env.seedDevice(t, "alice", "alice-tablet", domain.PlatformAndroid)
	env.seedDueJob(t, "job-1")

	gateway := &countingGateway{}
	summary, err := env.newWorker(t, gateway).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Total: 1}, summary)

	count, err := env.inbox.CountForJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, 2, gateway.calls())

	job, err := env.jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, job.Status)

	entries, err := env.inbox.ListByRecipient(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.InboxTypeSystem, entries[0].Type)
	assert.Equal(t, "Maintenance job-1", entries[0].Payload.Title)
	require.NotNil(t, entries[0].JobID)
	assert.Equal(t, "job-1", *entries[0].JobID)
}

func TestDispatchEndToEndSkipsAlreadyWrittenJob(t *testing.T) {
	t.Parallel()

	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice", "bob")
	env.seedDevice(t, "alice", "alice-phone", domain.PlatformIOS)
	env.seedDueJob(t, "job-1")

	jobID := "job-1"
	require.NoError(t, env.inbox.CreateBatch(context.Background(), []*domain.InboxEntry{{
		ID:              "prior-1",
		Type:            domain.InboxTypeSystem,
		RecipientUserID: "alice",
		Payload:         domain.InboxPayload{Title: "Maintenance job-1", Body: "earlier", JobID: jobID},
		JobID:           &jobID,
		CreatedAt:       time.Now().UTC(),
	}}))

	gateway := &countingGateway{}
	summary, err := env.newWorker(t, gateway).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	count, err := env.inbox.CountForJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Zero(t, gateway.calls())

	job, err := env.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, job.Status)
}

func TestDispatchEndToEndHonorsOptOut(t *testing.T) {
	t.Parallel()

	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice", "bob")
	env.seedDevice(t, "alice", "alice-phone", domain.PlatformIOS)
	env.seedDevice(t, "bob", "bob-phone", domain.PlatformAndroid)
	require.NoError(t, env.prefs.Upsert(context.Background(), domain.DeliveryPreference{
		UserID:   "bob",
		Category: domain.CategorySystem,
		Enabled:  false,
	}))
	env.seedDueJob(t, "job-1")

	gateway := &countingGateway{}
	_, err := env.newWorker(t, gateway).RunOnce(context.Background())
	require.NoError(t, err)

	bobEntries, err := env.inbox.ListByRecipient(context.Background(), "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, bobEntries)

	gateway.mu.Lock()
	assert.Equal(t, []string{"alice-phone"}, gateway.tokens)
	gateway.mu.Unlock()
}

func TestDispatchEndToEndPrunesInvalidTokens(t *testing.T) {
	t.Parallel()

	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice")
	env.seedDevice(t, "alice", "alice-old", domain.PlatformIOS)
	env.seedDevice(t, "alice", "alice-new", domain.PlatformIOS)
	env.seedDueJob(t, "job-1")

	gateway := &fakeGateway{
		sendFn: func(ctx context.Context, msg provider.Message) (*provider.Response, error) {
			if msg.Token == "alice-old" {
				return nil, &provider.ProviderError{StatusCode: 410, Code: "UNREGISTERED", InvalidToken: true}
			}
			return &provider.Response{StatusCode: 200}, nil
		},
	}
	summary, err := env.newWorker(t, gateway).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	remaining, err := env.devices.ListByUserIDs(context.Background(), []string{"alice"})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "alice-new", remaining[0].Token)
}

func TestDispatchConcurrentWorkersProcessEachJobOnce(t *testing.T) {
	t.Parallel()

	const (
		workers = 4
		jobs    = 6
	)

	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	env.seedDevice(t, "alice", "alice-phone", domain.PlatformIOS)
	env.seedDevice(t, "carol", "carol-phone", domain.PlatformAndroid)
	for i := 0; i < jobs; i++ {
		env.seedDueJob(t, fmt.Sprintf("job-%d", i))
	}

	gateway := &countingGateway{}
	var processed, failed atomic.Int32

	runners := make([]*DispatchWorker, workers)
	for i := range runners {
		runners[i] = env.newWorker(t, gateway)
	}

	var wg sync.WaitGroup
	for _, worker := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := worker.Run(context.Background(), TriggerQueue)
			if err != nil {
				t.Errorf("Run() error = %v", err)
				return
			}
			processed.Add(int32(summary.Processed))
			failed.Add(int32(summary.Failed))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, jobs, processed.Load())
	assert.Zero(t, failed.Load())
	assert.Equal(t, jobs*2, gateway.calls())

	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		count, err := env.inbox.CountForJob(context.Background(), id)
		require.NoError(t, err)
		assert.EqualValues(t, 3, count, "inbox entries for %s", id)

		job, err := env.jobs.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusSent, job.Status)
	}
}

// blockingGateway holds every send until release is closed.
type blockingGateway struct {
	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
	countingGateway
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGateway) Send(ctx context.Context, msg provider.Message) (*provider.Response, error) {
	g.startedOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.countingGateway.Send(ctx, msg)
}

func TestDispatchLongRunningClaimSurvivesStaleThreshold(t *testing.T) {
	t.Parallel()

	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice", "bob")
	env.seedDevice(t, "alice", "alice-phone", domain.PlatformIOS)
	env.seedDueJob(t, "job-1")

	cfg := DispatchConfig{StaleClaimAfter: 300 * time.Millisecond, HeartbeatInterval: 20 * time.Millisecond}
	slow := newBlockingGateway()
	first := env.newWorkerWithConfig(t, slow, cfg)
	second := env.newWorkerWithConfig(t, &countingGateway{}, cfg)

	type runResult struct {
		summary Summary
		err     error
	}
	done := make(chan runResult, 1)
	go func() {
		summary, err := first.RunOnce(context.Background())
		done <- runResult{summary: summary, err: err}
	}()

	select {
	case <-slow.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first worker never reached the push gateway")
	}
	// Stay in flight well past the stale threshold.
	time.Sleep(2 * cfg.StaleClaimAfter)

	summary, err := second.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	job, err := env.jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)

	close(slow.release)
	var result runResult
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first worker did not finish")
	}
	require.NoError(t, result.err)
	assert.Equal(t, Summary{Processed: 1, Total: 1}, result.summary)

	count, err := env.inbox.CountForJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, 1, slow.calls())

	job, err = env.jobs.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, job.Status)
}

func TestDispatchLateBatchFromReleasedClaimIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newSQLiteEnv(t)
	env.seedUsers(t, "alice", "bob")
	env.seedDueJob(t, "job-1")

	// A worker claimed the job long ago and stalled without touching it.
	won, err := env.jobs.TransitionStatus(ctx, "job-1", domain.JobStatusPending, domain.JobStatusProcessing, time.Now().UTC().Add(-20*time.Minute))
	require.NoError(t, err)
	require.True(t, won)

	summary, err := env.newWorker(t, &countingGateway{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Total: 1}, summary)

	jobID := "job-1"
	late := []*domain.InboxEntry{
		{ID: "late-alice", Type: domain.InboxTypeSystem, RecipientUserID: "alice", JobID: &jobID, CreatedAt: time.Now().UTC()},
		{ID: "late-bob", Type: domain.InboxTypeSystem, RecipientUserID: "bob", JobID: &jobID, CreatedAt: time.Now().UTC()},
	}
	require.Error(t, env.inbox.CreateBatch(ctx, late))

	count, err := env.inbox.CountForJob(ctx, jobID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	won, err = env.jobs.TransitionStatus(ctx, jobID, domain.JobStatusProcessing, domain.JobStatusSent, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, won)

	touched, err := env.jobs.Touch(ctx, jobID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, touched)
}
