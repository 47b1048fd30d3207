package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/internal/config"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobRefreshOverdue  = "refresh_overdue"
	JobGenerateMonthly = "generate_monthly"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	ChargeSvc   chargedomain.Service
	ConceptRepo conceptdomain.Repository
	LedgerCfg   *config.LedgerConfigHolder
	Config      Config `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	chargeSvc   chargedomain.Service
	conceptRepo conceptdomain.Repository
	ledgerCfg   *config.LedgerConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.ChargeSvc == nil || p.ConceptRepo == nil || p.LedgerCfg == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		chargeSvc:   p.ChargeSvc,
		conceptRepo: p.ConceptRepo,
		ledgerCfg:   p.LedgerCfg,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	batch := s.ledgerCfg.Get().OverdueBatchSize

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRefreshOverdue, func(ctx context.Context) error {
			return s.runJob(ctx, JobRefreshOverdue, batch, s.cfg.JobTimeout, s.RefreshOverdueJob)
		}},
		{JobGenerateMonthly, func(ctx context.Context) error {
			return s.runJob(ctx, JobGenerateMonthly, 0, s.cfg.JobTimeout, s.GenerateMonthlyJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RefreshOverdueJob persists status and late-fee changes for open charges
// past their due date.
func (s *Scheduler) RefreshOverdueJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.chargeSvc.RefreshOverdue(ctx, s.ledgerCfg.Get().OverdueBatchSize)
	run.AddProcessed(result.Updated)
	obsmetrics.Scheduler().AddBatchProcessed(JobRefreshOverdue, "charges", result.Updated)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.overdue.refresh.failed", JobRefreshOverdue, 0, err,
			zap.Int("scanned", result.Scanned),
		)
		return err
	}
	s.logger(ctx).Debug("scheduler.overdue.refreshed",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
	)
	return nil
}

// GenerateMonthlyJob creates the current period's monthly charges for every
// school with active monthly concepts. Re-runs only insert what is missing.
func (s *Scheduler) GenerateMonthlyJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	period := chargedomain.PeriodOf(s.clock.Now())

	orgIDs, err := s.conceptRepo.ListOrgsWithActiveMonthly(ctx, s.db)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.monthly.list_orgs.failed", JobGenerateMonthly, 0, err)
		return err
	}

	var jobErr error
	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		orgCtx := s.withLogContext(orgcontext.WithOrgID(ctx, orgID), orgID)
		result, err := s.chargeSvc.GenerateMonthly(orgCtx, chargedomain.GenerateMonthlyRequest{Period: period})
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("org %s: %w", orgID, err))
			s.logSchedulerError(ctx, run, "scheduler.monthly.generate.failed", JobGenerateMonthly, orgID, err,
				zap.String("period", period),
			)
			continue
		}
		run.AddProcessed(int(result.Inserted))
		obsmetrics.Scheduler().AddBatchProcessed(JobGenerateMonthly, "charges", int(result.Inserted))
		s.logger(orgCtx).Info("scheduler.monthly.generated",
			zap.String("period", period),
			zap.Int64("inserted", result.Inserted),
			zap.Int64("skipped", result.Skipped),
		)
	}
	return jobErr
}
