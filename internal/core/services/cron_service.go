package services

import (
	"context"
	"sync"
	"time"

	"consigaz-valegas/internal/core/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron job names
const (
	JobMonthlyIssuance = "generate-monthly"
	JobExpireVouchers  = "expire-vouchers"
	JobExpiryReminders = "expiry-reminders"
)

// Daily schedules, in the configured location
const (
	monthlyCheckSpec = "0 6 * * *"
	expirySweepSpec  = "0 1 * * *"
	reminderSpec     = "0 9 * * *"
)

// JobRun is the outcome of one job execution
type JobRun struct {
	Job        string      `json:"job"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Skipped    bool        `json:"skipped,omitempty"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`

	err error
}

// Err is the error the run ended with, if any
func (r *JobRun) Err() error {
	return r.err
}

// JobStatus describes a scheduled job
type JobStatus struct {
	Job      string     `json:"job"`
	Schedule string     `json:"schedule"`
	Next     *time.Time `json:"next,omitempty"`
	LastRun  *JobRun    `json:"last_run,omitempty"`
}

// CronStatus is returned by GET /cron/status
type CronStatus struct {
	Enabled         bool        `json:"enabled"`
	Location        string      `json:"location"`
	GenerationDay   int         `json:"generation_day"`
	Today           int         `json:"today"`
	IsGenerationDay bool        `json:"is_generation_day"`
	Jobs            []JobStatus `json:"jobs"`
}

// CronService runs the daily jobs in process and exposes them for
// external triggering
type CronService struct {
	vouchers *VoucherService
	rules    Rules
	audit    *AuditService
	log      *zap.Logger
	loc      *time.Location
	now      Clock

	cron    *cron.Cron
	entries map[string]cron.EntryID
	enabled bool

	mu      sync.Mutex
	lastRun map[string]*JobRun
}

// NewCronService creates a new cron service
func NewCronService(vouchers *VoucherService, cfg ConfigProvider, audit *AuditService, loc *time.Location, log *zap.Logger) *CronService {
	if loc == nil {
		loc = time.Local
	}
	return &CronService{
		vouchers: vouchers,
		rules:    NewRules(cfg),
		audit:    audit,
		log:      log.Named("cron"),
		loc:      loc,
		now:      time.Now,
		entries:  make(map[string]cron.EntryID),
		lastRun:  make(map[string]*JobRun),
	}
}

// Start registers the jobs and starts the scheduler
func (s *CronService) Start() error {
	s.cron = cron.New(cron.WithLocation(s.loc), cron.WithChain(cron.Recover(cronLogger{s.log})))

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{JobMonthlyIssuance, monthlyCheckSpec, func() { s.RunMonthlyIssuance(context.Background(), false) }},
		{JobExpireVouchers, expirySweepSpec, func() { s.RunExpirySweep(context.Background()) }},
		{JobExpiryReminders, reminderSpec, func() { s.RunExpiryReminders(context.Background()) }},
	}
	for _, j := range jobs {
		id, err := s.cron.AddFunc(j.spec, j.run)
		if err != nil {
			return err
		}
		s.entries[j.name] = id
	}

	s.cron.Start()
	s.enabled = true
	s.log.Info("🚀 Cron scheduler started", zap.String("location", s.loc.String()))
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *CronService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("🛑 Cron scheduler stopped")
}

// RunMonthlyIssuance runs the batch when today is the configured generation
// day, or always when force is set
func (s *CronService) RunMonthlyIssuance(ctx context.Context, force bool) *JobRun {
	run := s.begin(JobMonthlyIssuance)

	day := s.rules.GenerationDay(ctx)
	today := s.now().In(s.loc).Day()
	if !force && today != day {
		run.Skipped = true
		run.Result = map[string]int{"today": today, "generation_day": day}
		return s.finish(ctx, run, nil)
	}

	res, err := s.vouchers.IssueMonthlyBatch(ctx, "", CronActor)
	if res != nil {
		run.Result = res
	}
	return s.finish(ctx, run, err)
}

// RunExpirySweep expires overdue active vouchers
func (s *CronService) RunExpirySweep(ctx context.Context) *JobRun {
	run := s.begin(JobExpireVouchers)
	n, err := s.vouchers.ExpireOverdue(ctx)
	run.Result = map[string]int64{"expired": n}
	return s.finish(ctx, run, err)
}

// RunExpiryReminders publishes reminders for vouchers close to expiry
func (s *CronService) RunExpiryReminders(ctx context.Context) *JobRun {
	run := s.begin(JobExpiryReminders)
	n, err := s.vouchers.SendExpiryReminders(ctx)
	run.Result = map[string]int{"sent": n}
	return s.finish(ctx, run, err)
}

func (s *CronService) begin(job string) *JobRun {
	s.log.Info("⏱️ Cron job started", zap.String("job", job))
	return &JobRun{Job: job, StartedAt: s.now()}
}

func (s *CronService) finish(ctx context.Context, run *JobRun, err error) *JobRun {
	run.FinishedAt = s.now()
	if err != nil {
		run.err = err
		run.Error = err.Error()
	}

	s.mu.Lock()
	s.lastRun[run.Job] = run
	s.mu.Unlock()

	details := map[string]interface{}{
		"skipped":     run.Skipped,
		"duration_ms": run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	}
	if run.Result != nil {
		details["result"] = run.Result
	}
	if run.Error != "" {
		details["error"] = run.Error
	}
	s.audit.Record(ctx, AuditEntry{Actor: CronActor, Action: "cron_" + run.Job, Entity: "cron", Details: details})

	switch {
	case err != nil && domain.IsBusiness(err):
		s.log.Info("Cron job not run", zap.String("job", run.Job), zap.Error(err))
	case err != nil:
		s.log.Error("❌ Cron job failed", zap.String("job", run.Job), zap.Error(err))
	case run.Skipped:
		s.log.Info("Cron job skipped", zap.String("job", run.Job))
	default:
		s.log.Info("✅ Cron job finished", zap.String("job", run.Job))
	}
	return run
}

// Status lists the jobs, their next run and last outcome
func (s *CronService) Status(ctx context.Context) *CronStatus {
	st := &CronStatus{
		Enabled:       s.enabled,
		Location:      s.loc.String(),
		GenerationDay: s.rules.GenerationDay(ctx),
		Today:         s.now().In(s.loc).Day(),
	}
	st.IsGenerationDay = st.Today == st.GenerationDay

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range []struct{ name, spec string }{
		{JobMonthlyIssuance, monthlyCheckSpec},
		{JobExpireVouchers, expirySweepSpec},
		{JobExpiryReminders, reminderSpec},
	} {
		js := JobStatus{Job: j.name, Schedule: j.spec, LastRun: s.lastRun[j.name]}
		if s.cron != nil {
			if id, ok := s.entries[j.name]; ok {
				next := s.cron.Entry(id).Next
				if !next.IsZero() {
					js.Next = &next
				}
			}
		}
		st.Jobs = append(st.Jobs, js)
	}
	return st
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
