package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	auditrepository "github.com/smallbiznis/bursar/internal/audit/repository"
	auditservice "github.com/smallbiznis/bursar/internal/audit/service"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	chargerepository "github.com/smallbiznis/bursar/internal/charge/repository"
	chargeservice "github.com/smallbiznis/bursar/internal/charge/service"
	"github.com/smallbiznis/bursar/internal/clock"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	conceptrepository "github.com/smallbiznis/bursar/internal/concept/repository"
	"github.com/smallbiznis/bursar/internal/config"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	studentrepository "github.com/smallbiznis/bursar/internal/student/repository"
	"github.com/smallbiznis/bursar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "bursar",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "bursar",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "bursar_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "bursar",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "bursar_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsFailures(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetSchedulerMetricsForTest()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}

	boom := errors.New("boom")
	err = s.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	sched    *Scheduler
	registry *prometheus.Registry
}

func newFixture(t *testing.T, jobs ...string) *fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSchedulerMetricsForTest()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(testutil.Date(2026, 9, 1))
	ledgerCfg := config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig())
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	chargeSvc := chargeservice.New(chargeservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        chargerepository.Provide(),
		ConceptRepo: conceptrepository.Provide(),
		StudentRepo: studentrepository.Provide(),
		AuditSvc:    audit,
		LedgerCfg:   ledgerCfg,
	})
	sched, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		ChargeSvc:   chargeSvc,
		ConceptRepo: conceptrepository.Provide(),
		LedgerCfg:   ledgerCfg,
		Config:      Config{EnabledJobs: jobs},
	})
	require.NoError(t, err)
	return &fixture{db: db, node: node, clock: clk, sched: sched, registry: registry}
}

func (f *fixture) concept(t *testing.T, orgID snowflake.ID, policy conceptdomain.Policy) conceptdomain.PaymentConcept {
	t.Helper()
	periodicity := conceptdomain.PeriodicityMonthly
	c := conceptdomain.PaymentConcept{
		ID:          f.node.Generate(),
		OrgID:       orgID,
		Code:        "tuition",
		Name:        "Tuition",
		BaseAmount:  decimal.NewFromInt(1000),
		Category:    conceptdomain.CategoryRecurring,
		Periodicity: &periodicity,
		Policy:      policy,
		Active:      true,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, conceptrepository.Provide().Insert(t.Context(), f.db, &c))
	return c
}

func (f *fixture) student(t *testing.T, orgID snowflake.ID) studentdomain.Student {
	t.Helper()
	s := studentdomain.Student{
		ID:         f.node.Generate(),
		OrgID:      orgID,
		Name:       "Ana",
		Active:     true,
		EnrolledAt: testutil.Date(2026, 1, 1),
		CreatedAt:  f.clock.Now(),
		UpdatedAt:  f.clock.Now(),
	}
	require.NoError(t, studentrepository.Provide().Insert(t.Context(), f.db, &s))
	return s
}

func (f *fixture) charges(t *testing.T) []chargedomain.Charge {
	t.Helper()
	var charges []chargedomain.Charge
	require.NoError(t, f.db.Order("org_id asc").Find(&charges).Error)
	return charges
}

func TestGenerateMonthlyJobCoversEverySchool(t *testing.T) {
	f := newFixture(t, JobGenerateMonthly)
	for _, orgID := range []snowflake.ID{1, 2} {
		f.concept(t, orgID, conceptdomain.Policy{})
		f.student(t, orgID)
	}

	require.NoError(t, f.sched.RunOnce(t.Context()))
	charges := f.charges(t)
	require.Len(t, charges, 2)
	for _, c := range charges {
		assert.Equal(t, "2026-09", c.Period)
		assert.Equal(t, testutil.Date(2026, 9, 10), c.DueDate)
	}

	processed := map[string]string{
		"service":  "bursar",
		"env":      "unknown",
		"job":      JobGenerateMonthly,
		"resource": "charges",
	}
	assert.Equal(t, float64(2), getCounterValue(t, f.registry, "bursar_scheduler_batch_processed_total", processed))

	require.NoError(t, f.sched.RunOnce(t.Context()))
	assert.Len(t, f.charges(t), 2)
	assert.Equal(t, float64(2), getCounterValue(t, f.registry, "bursar_scheduler_batch_processed_total", processed))
}

func TestRefreshOverdueJobPersistsStatus(t *testing.T) {
	f := newFixture(t, JobGenerateMonthly, JobRefreshOverdue)
	grace := 0
	pct := decimal.NewFromInt(1)
	f.concept(t, 1, conceptdomain.Policy{LateFeeEnabled: true, LateFeePercentage: &pct, GraceDays: &grace})
	f.student(t, 1)

	require.NoError(t, f.sched.RunOnce(t.Context()))
	require.Len(t, f.charges(t), 1)

	// Due 2026-09-10, five days late.
	f.clock.Set(testutil.Date(2026, 9, 15))
	f.sched.cfg.EnabledJobs = []string{JobRefreshOverdue}
	require.NoError(t, f.sched.RunOnce(t.Context()))

	charges := f.charges(t)
	require.Len(t, charges, 1)
	assert.Equal(t, chargedomain.StatusOverdue, charges[0].Status)
	assert.True(t, charges[0].LateFee.Equal(decimal.NewFromInt(50)))
	assert.True(t, charges[0].OutstandingBalance.Equal(decimal.NewFromInt(1050)))
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	assert.True(t, s.isJobEnabled(JobRefreshOverdue))

	s.cfg.EnabledJobs = []string{"Generate_Monthly"}
	assert.True(t, s.isJobEnabled(JobGenerateMonthly))
	assert.False(t, s.isJobEnabled(JobRefreshOverdue))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
