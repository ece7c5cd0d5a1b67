package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
	"github.com/kursadbilgin/broadcast-dispatch/internal/provider"
	"github.com/kursadbilgin/broadcast-dispatch/internal/queue"
)

type fakeJobRepo struct {
	createFn           func(ctx context.Context, j *domain.ScheduledJob) error
	getByIDFn          func(ctx context.Context, id string) (*domain.ScheduledJob, error)
	listActiveFn       func(ctx context.Context) ([]domain.ScheduledJob, error)
	getDueFn           func(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error)
	transitionStatusFn func(ctx context.Context, id string, from, to domain.JobStatus, now time.Time) (bool, error)
	cancelFn           func(ctx context.Context, id string, now time.Time) error
	releaseStaleFn     func(ctx context.Context, olderThan time.Time, now time.Time) (int64, error)
	touchFn            func(ctx context.Context, id string, now time.Time) (bool, error)
	deleteFn           func(ctx context.Context, id string) error
}

func (f *fakeJobRepo) Create(ctx context.Context, j *domain.ScheduledJob) error {
	if f.createFn != nil {
		return f.createFn(ctx, j)
	}
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) ListActive(ctx context.Context) ([]domain.ScheduledJob, error) {
	if f.listActiveFn != nil {
		return f.listActiveFn(ctx)
	}
	return nil, nil
}

func (f *fakeJobRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledJob, error) {
	if f.getDueFn != nil {
		return f.getDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeJobRepo) TransitionStatus(ctx context.Context, id string, from, to domain.JobStatus, now time.Time) (bool, error) {
	if f.transitionStatusFn != nil {
		return f.transitionStatusFn(ctx, id, from, to, now)
	}
	return true, nil
}

func (f *fakeJobRepo) Cancel(ctx context.Context, id string, now time.Time) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id, now)
	}
	return nil
}

func (f *fakeJobRepo) ReleaseStale(ctx context.Context, olderThan time.Time, now time.Time) (int64, error) {
	if f.releaseStaleFn != nil {
		return f.releaseStaleFn(ctx, olderThan, now)
	}
	return 0, nil
}

func (f *fakeJobRepo) Touch(ctx context.Context, id string, now time.Time) (bool, error) {
	if f.touchFn != nil {
		return f.touchFn(ctx, id, now)
	}
	return true, nil
}

func (f *fakeJobRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeInboxRepo struct {
	createBatchFn     func(ctx context.Context, entries []*domain.InboxEntry) error
	existsForJobFn    func(ctx context.Context, jobID string) (bool, error)
	countForJobFn     func(ctx context.Context, jobID string) (int64, error)
	listByRecipientFn func(ctx context.Context, userID string, limit int) ([]domain.InboxEntry, error)
}

func (f *fakeInboxRepo) CreateBatch(ctx context.Context, entries []*domain.InboxEntry) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, entries)
	}
	return nil
}

func (f *fakeInboxRepo) ExistsForJob(ctx context.Context, jobID string) (bool, error) {
	if f.existsForJobFn != nil {
		return f.existsForJobFn(ctx, jobID)
	}
	return false, nil
}

func (f *fakeInboxRepo) CountForJob(ctx context.Context, jobID string) (int64, error) {
	if f.countForJobFn != nil {
		return f.countForJobFn(ctx, jobID)
	}
	return 0, nil
}

func (f *fakeInboxRepo) ListByRecipient(ctx context.Context, userID string, limit int) ([]domain.InboxEntry, error) {
	if f.listByRecipientFn != nil {
		return f.listByRecipientFn(ctx, userID, limit)
	}
	return nil, nil
}

type fakeUserRepo struct {
	listUserIDsFn func(ctx context.Context) ([]string, error)
}

func (f *fakeUserRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	if f.listUserIDsFn != nil {
		return f.listUserIDsFn(ctx)
	}
	return nil, nil
}

type fakePreferenceRepo struct {
	upsertFn          func(ctx context.Context, p domain.DeliveryPreference) error
	optedOutUserIDsFn func(ctx context.Context, category domain.Category) ([]string, error)
}

func (f *fakePreferenceRepo) Upsert(ctx context.Context, p domain.DeliveryPreference) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, p)
	}
	return nil
}

func (f *fakePreferenceRepo) OptedOutUserIDs(ctx context.Context, category domain.Category) ([]string, error) {
	if f.optedOutUserIDsFn != nil {
		return f.optedOutUserIDsFn(ctx, category)
	}
	return nil, nil
}

type fakeDeviceRepo struct {
	registerFn       func(ctx context.Context, d *domain.DeviceTarget) error
	listByUserIDsFn  func(ctx context.Context, userIDs []string) ([]domain.DeviceTarget, error)
	deleteByTokensFn func(ctx context.Context, tokens []string) (int64, error)
}

func (f *fakeDeviceRepo) Register(ctx context.Context, d *domain.DeviceTarget) error {
	if f.registerFn != nil {
		return f.registerFn(ctx, d)
	}
	return nil
}

func (f *fakeDeviceRepo) ListByUserIDs(ctx context.Context, userIDs []string) ([]domain.DeviceTarget, error) {
	if f.listByUserIDsFn != nil {
		return f.listByUserIDsFn(ctx, userIDs)
	}
	return nil, nil
}

func (f *fakeDeviceRepo) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	if f.deleteByTokensFn != nil {
		return f.deleteByTokensFn(ctx, tokens)
	}
	return int64(len(tokens)), nil
}

type fakeGateway struct {
	sendFn func(ctx context.Context, msg provider.Message) (*provider.Response, error)
}

func (f *fakeGateway) Send(ctx context.Context, msg provider.Message) (*provider.Response, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.Response{StatusCode: 200}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, platform domain.Platform) (bool, error)
	waitFn  func(ctx context.Context, platform domain.Platform) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, platform domain.Platform) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, platform)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, platform domain.Platform) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, platform)
	}
	return nil
}

type fakePushDeliverer struct {
	deliverFn func(ctx context.Context, job domain.ScheduledJob, userIDs []string) FanoutResult
}

func (f *fakePushDeliverer) Deliver(ctx context.Context, job domain.ScheduledJob, userIDs []string) FanoutResult {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, job, userIDs)
	}
	return FanoutResult{}
}

type fakeDispatcher struct {
	runFn func(ctx context.Context, trigger string) (Summary, error)
}

func (f *fakeDispatcher) Run(ctx context.Context, trigger string) (Summary, error) {
	if f.runFn != nil {
		return f.runFn(ctx, trigger)
	}
	return Summary{}, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, msg queue.TriggerMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.TriggerMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}
