// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Executor sends to a batch of pending recipients.
type Executor interface {
	ExecuteRecipients(ctx context.Context, c *model.Campaign, pending []*model.CampaignRecipient) (*model.ExecutionResult, error)
}

// Scheduler keeps one cron job per active campaign. The job registry is
// derived from the store and rebuilt by Reconcile.
type Scheduler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Executor   Executor
	Now        func() time.Time

	// MaintenanceSpec is the cron spec of the reconciliation sweep.
	MaintenanceSpec string
	// DefaultBatchSize applies to campaigns without an explicit batch size.
	DefaultBatchSize int

	loc  *time.Location
	cron *cron.Cron

	mu          sync.Mutex
	jobs        map[int]cron.EntryID
	maintenance cron.EntryID
	ctx         context.Context
	cancel      context.CancelFunc
}

func New(campaigns repository.CampaignRepositoryInterface, recipients repository.RecipientRepositoryInterface, exec Executor, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Campaigns:        campaigns,
		Recipients:       recipients,
		Executor:         exec,
		Now:              time.Now,
		MaintenanceSpec:  "0 0 * * *",
		DefaultBatchSize: model.DefaultBatchSize,
		loc:              loc,
		cron:             cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{})),
		jobs:             map[int]cron.EntryID{},
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start registers the maintenance sweep, rebuilds jobs from the store and
// starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.MaintenanceSpec, func() {
		if err := s.Reconcile(s.ctx); err != nil {
			logx.L().Errorw("scheduler_maintenance_failed", "error", err)
		}
	})
	if err != nil {
		return appErrors.NewInvalidSchedule("maintenance: " + err.Error())
	}
	s.mu.Lock()
	s.maintenance = id
	s.mu.Unlock()

	if err := s.Reconcile(ctx); err != nil {
		return err
	}
	s.cron.Start()
	logx.L().Infow("scheduler_started", "jobs", s.JobCount(), "maintenance", s.MaintenanceSpec)
	return nil
}

// ScheduleCampaign registers the campaign's job, replacing any existing one.
func (s *Scheduler) ScheduleCampaign(c *model.Campaign) error {
	spec, err := CronExpression(c.ScheduleOptions, c.StartDate, s.loc)
	if err != nil {
		return err
	}

	id := c.ID
	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		if err := s.ExecuteCampaignBatch(s.ctx, id); err != nil {
			logx.L().Errorw("campaign_batch_failed", "campaign_id", id, "error", err)
		}
	}))

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[id]; ok {
		s.cron.Remove(old)
		delete(s.jobs, id)
	}
	entry, err := s.cron.AddJob(spec, job)
	if err != nil {
		return appErrors.NewInvalidSchedule(err.Error())
	}
	s.jobs[id] = entry
	metrics.SchedulerJobs.Set(float64(len(s.jobs)))
	logx.L().Infow("campaign_scheduled", "campaign_id", id, "cron", spec)
	return nil
}

// Unschedule removes the campaign's job if one is registered.
func (s *Scheduler) Unschedule(campaignID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[campaignID]; ok {
		s.cron.Remove(entry)
		delete(s.jobs, campaignID)
		metrics.SchedulerJobs.Set(float64(len(s.jobs)))
		logx.L().Infow("campaign_unscheduled", "campaign_id", campaignID)
	}
}

func (s *Scheduler) HasJob(campaignID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[campaignID]
	return ok
}

func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) jobIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// ExecuteCampaignBatch is one tick of a campaign job.
func (s *Scheduler) ExecuteCampaignBatch(ctx context.Context, campaignID int) error {
	now := s.now()
	c, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		var nf *appErrors.ErrCampaignNotFound
		if errors.As(err, &nf) {
			s.Unschedule(campaignID)
			s.count("stopped")
		} else {
			s.count("error")
		}
		return err
	}

	if !c.Status.IsActive() {
		logx.L().Infow("campaign_inactive", "campaign_id", c.ID, "status", c.Status)
		s.Unschedule(c.ID)
		s.count("stopped")
		return nil
	}
	if c.Expired(now) {
		logx.L().Infow("campaign_end_date_reached", "campaign_id", c.ID)
		s.complete(ctx, c.ID)
		return nil
	}
	if c.StartDate.After(now) {
		s.count("idle")
		return nil
	}

	pending, err := s.Recipients.ListPending(ctx, c.ID, s.batchSize(c))
	if err != nil {
		s.count("error")
		return err
	}
	if len(pending) == 0 {
		n, err := s.Recipients.CountPending(ctx, c.ID)
		if err != nil {
			s.count("error")
			return err
		}
		if n == 0 {
			logx.L().Infow("campaign_all_recipients_processed", "campaign_id", c.ID)
			s.complete(ctx, c.ID)
			return nil
		}
		s.count("idle")
		return nil
	}

	if c.Status != model.StatusInProgress {
		if _, err := s.Campaigns.AdvanceStatus(ctx, c.ID, model.StatusInProgress); err != nil {
			s.count("error")
			return err
		}
		c.Status = model.StatusInProgress
	}

	res, err := s.Executor.ExecuteRecipients(ctx, c, pending)
	if err != nil {
		s.count("error")
		return err
	}
	logx.L().Infow("campaign_batch_executed", "campaign_id", c.ID,
		"total", res.Total, "successful", res.Successful, "failed", res.Failed)
	if res.Completed {
		s.Unschedule(c.ID)
		s.count("completed")
		return nil
	}
	s.count("executed")
	return nil
}

func (s *Scheduler) complete(ctx context.Context, campaignID int) {
	if _, err := s.Campaigns.AdvanceStatus(ctx, campaignID, model.StatusCompleted); err != nil {
		logx.L().Errorw("campaign_complete_failed", "campaign_id", campaignID, "error", err)
	}
	s.Unschedule(campaignID)
	s.count("completed")
}

// Reconcile diffs the registry against the store: eligible campaigns
// without a job get one; registered campaigns that are no longer active or
// are past their end date lose theirs. Running it twice changes nothing.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	now := s.now()
	eligible, err := s.Campaigns.ListSchedulable(ctx, now)
	if err != nil {
		return err
	}

	want := make(map[int]bool, len(eligible))
	var errs []error
	for _, c := range eligible {
		want[c.ID] = true
		if s.HasJob(c.ID) {
			continue
		}
		if err := s.ScheduleCampaign(c); err != nil {
			logx.L().Warnw("reconcile_schedule_failed", "campaign_id", c.ID, "error", err)
			errs = append(errs, err)
		}
	}

	for _, id := range s.jobIDs() {
		if want[id] {
			continue
		}
		c, err := s.Campaigns.GetByID(ctx, id)
		if err != nil {
			var nf *appErrors.ErrCampaignNotFound
			if errors.As(err, &nf) {
				s.Unschedule(id)
				continue
			}
			errs = append(errs, err)
			continue
		}
		if !c.Status.IsActive() || c.Expired(now) {
			s.Unschedule(id)
		}
	}

	logx.L().Infow("scheduler_reconciled", "jobs", s.JobCount())
	// A campaign with bad options must not block the rest of the sweep.
	return errors.Join(errs...)
}

// StopAll deregisters every job and stops the runner, waiting for
// in-flight batches to return.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, entry := range s.jobs {
		s.cron.Remove(entry)
		delete(s.jobs, id)
	}
	if s.maintenance != 0 {
		s.cron.Remove(s.maintenance)
		s.maintenance = 0
	}
	metrics.SchedulerJobs.Set(0)
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	logx.L().Infow("scheduler_stopped")
}

func (s *Scheduler) batchSize(c *model.Campaign) int {
	if c.ScheduleOptions != nil && c.ScheduleOptions.BatchSize > 0 {
		return c.ScheduleOptions.BatchSize
	}
	if s.DefaultBatchSize > 0 {
		return s.DefaultBatchSize
	}
	return model.DefaultBatchSize
}

func (s *Scheduler) count(result string) {
	metrics.SchedulerBatchesTotal.WithLabelValues(result).Inc()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// cronLogger routes robfig/cron's logging through zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logx.L().Debugw("cron_"+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logx.L().Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
