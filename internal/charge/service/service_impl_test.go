package service_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	auditrepository "github.com/smallbiznis/bursar/internal/audit/repository"
	auditservice "github.com/smallbiznis/bursar/internal/audit/service"
	"github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/internal/charge/repository"
	"github.com/smallbiznis/bursar/internal/charge/service"
	"github.com/smallbiznis/bursar/internal/clock"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	conceptrepository "github.com/smallbiznis/bursar/internal/concept/repository"
	"github.com/smallbiznis/bursar/internal/config"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	studentrepository "github.com/smallbiznis/bursar/internal/student/repository"
	"github.com/smallbiznis/bursar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const school snowflake.ID = 1

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(testutil.Date(2026, 9, 1))
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	svc := service.New(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        repository.Provide(),
		ConceptRepo: conceptrepository.Provide(),
		StudentRepo: studentrepository.Provide(),
		AuditSvc:    audit,
		LedgerCfg:   config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
	})
	return &fixture{db: db, node: node, clock: clk, svc: svc}
}

func (f *fixture) concept(t *testing.T, name, base string, periodicity *conceptdomain.Periodicity, policy conceptdomain.Policy) conceptdomain.PaymentConcept {
	t.Helper()
	category := conceptdomain.CategoryOneTime
	if periodicity != nil {
		category = conceptdomain.CategoryRecurring
	}
	c := conceptdomain.PaymentConcept{
		ID:          f.node.Generate(),
		OrgID:       school,
		Code:        name,
		Name:        name,
		BaseAmount:  decimal.RequireFromString(base),
		Category:    category,
		Periodicity: periodicity,
		Policy:      policy,
		Active:      true,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, conceptrepository.Provide().Insert(t.Context(), f.db, &c))
	return c
}

func (f *fixture) student(t *testing.T, name string, enrolledAt time.Time, active bool) studentdomain.Student {
	t.Helper()
	s := studentdomain.Student{
		ID:         f.node.Generate(),
		OrgID:      school,
		Name:       name,
		Active:     active,
		EnrolledAt: enrolledAt,
		CreatedAt:  f.clock.Now(),
		UpdatedAt:  f.clock.Now(),
	}
	require.NoError(t, studentrepository.Provide().Insert(t.Context(), f.db, &s))
	if !active {
		require.NoError(t, f.db.Model(&studentdomain.Student{}).Where("id = ?", s.ID).Update("active", false).Error)
	}
	return s
}

func (f *fixture) stored(t *testing.T, id snowflake.ID) domain.Charge {
	t.Helper()
	var c domain.Charge
	require.NoError(t, f.db.Where("id = ?", id).First(&c).Error)
	return c
}

func monthly() *conceptdomain.Periodicity {
	p := conceptdomain.PeriodicityMonthly
	return &p
}

func yearly() *conceptdomain.Periodicity {
	p := conceptdomain.PeriodicityYearly
	return &p
}

func ptr[T any](v T) *T { return &v }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCreateCharge(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "bursar")
	concept := f.concept(t, "tuition", "1000", nil, conceptdomain.Policy{})
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)

	due := testutil.Date(2026, 9, 15)
	charge, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(),
		StudentID: student.ID.String(),
		DueDate:   &due,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, charge.Status)
	assert.Equal(t, "2026-09", charge.Period)
	assert.True(t, charge.OutstandingBalance.Equal(dec("1000")))

	stored := f.stored(t, charge.ID)
	assert.True(t, stored.Amount.Equal(dec("1000")))
	assert.Equal(t, int64(1), stored.Version)

	_, err = f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(),
		StudentID: student.ID.String(),
		DueDate:   &due,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCharge)

	var audits []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "charge.created").Find(&audits).Error)
	assert.Len(t, audits, 1)
}

func TestCreateChargeDerivesDueDateFromPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	concept := f.concept(t, "bus", "50", monthly(), conceptdomain.Policy{})
	student := f.student(t, "Leo", testutil.Date(2026, 1, 1), true)

	charge, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(),
		StudentID: student.ID.String(),
		Period:    "2026-10",
	})
	require.NoError(t, err)
	assert.Equal(t, testutil.Date(2026, 10, 10), charge.DueDate)

	_, err = f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(),
		StudentID: student.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDueDate)
}

func TestCreateChargeRejectsMissingReferences(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	concept := f.concept(t, "books", "80", nil, conceptdomain.Policy{})
	inactive := f.student(t, "Gone", testutil.Date(2026, 1, 1), false)
	due := testutil.Date(2026, 9, 30)

	_, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(), StudentID: "12345", DueDate: &due,
	})
	assert.ErrorIs(t, err, studentdomain.ErrNotFound)

	_, err = f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: "12345", StudentID: inactive.ID.String(), DueDate: &due,
	})
	assert.ErrorIs(t, err, conceptdomain.ErrNotFound)

	_, err = f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(), StudentID: inactive.ID.String(), DueDate: &due,
	})
	assert.ErrorIs(t, err, studentdomain.ErrStudentInactive)
}

func TestDiscountCancelReactivatePersist(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "registrar")
	concept := f.concept(t, "tuition", "1000", nil, conceptdomain.Policy{DiscountEnabled: true})
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)
	due := testutil.Date(2026, 9, 20)

	charge, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(), StudentID: student.ID.String(), DueDate: &due,
	})
	require.NoError(t, err)

	discounted, err := f.svc.ApplyDiscount(ctx, domain.ApplyDiscountRequest{
		ID: charge.ID.String(), Percentage: dec("10"), Reason: "sibling",
	})
	require.NoError(t, err)
	assert.True(t, discounted.FinalAmount.Equal(dec("900")))
	assert.Equal(t, int64(2), discounted.Version)

	stored := f.stored(t, charge.ID)
	assert.True(t, stored.OutstandingBalance.Equal(dec("900")))
	assert.Equal(t, "sibling", stored.DiscountReason)

	cancelled, err := f.svc.Cancel(ctx, domain.CancelChargeRequest{ID: charge.ID.String(), Reason: "withdrawn"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "registrar", cancelled.CancelledBy)

	_, err = f.svc.Cancel(ctx, domain.CancelChargeRequest{ID: charge.ID.String(), Reason: "again"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, int64(3), f.stored(t, charge.ID).Version, "failed mutation must not write")

	f.clock.Set(testutil.Date(2026, 9, 25))
	reactivated, err := f.svc.Reactivate(ctx, charge.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, reactivated.Status)

	extended, err := f.svc.ExtendDueDate(ctx, domain.ExtendDueDateRequest{
		ID: charge.ID.String(), DueDate: testutil.Date(2026, 10, 5), Reason: "family request",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, extended.Status)
	stored = f.stored(t, charge.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, "family request", stored.DueDateReason)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("target_type = ?", "charge").Count(&count).Error)
	assert.Equal(t, int64(5), count)
}

func TestGetAndMutateAreScopedToSchool(t *testing.T) {
	f := newFixture(t)
	concept := f.concept(t, "tuition", "100", nil, conceptdomain.Policy{})
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)
	due := testutil.Date(2026, 9, 20)
	charge, err := f.svc.Create(testutil.SchoolContext(school, ""), domain.CreateChargeRequest{
		ConceptID: concept.ID.String(), StudentID: student.ID.String(), DueDate: &due,
	})
	require.NoError(t, err)

	other := testutil.SchoolContext(999, "")
	_, err = f.svc.Get(other, charge.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Cancel(other, domain.CancelChargeRequest{ID: charge.ID.String(), Reason: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	concept := f.concept(t, "tuition", "100", nil, conceptdomain.Policy{})
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)
	due := testutil.Date(2026, 9, 20)
	charge, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(), StudentID: student.ID.String(), DueDate: &due,
	})
	require.NoError(t, err)

	calls := 0
	result, err := f.svc.Mutate(ctx, charge.ID, "test", func(tx *gorm.DB, c *domain.Charge) error {
		calls++
		if calls == 1 {
			// Another writer got there first.
			require.NoError(t, tx.Exec("UPDATE charges SET version = version + 1 WHERE id = ?", c.ID).Error)
		}
		return c.RegisterPayment(dec("10"), f.clock.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, result.AmountPaid.Equal(dec("10")))
	assert.True(t, f.stored(t, charge.ID).AmountPaid.Equal(dec("10")))

	calls = 0
	_, err = f.svc.Mutate(ctx, charge.ID, "test", func(tx *gorm.DB, c *domain.Charge) error {
		calls++
		require.NoError(t, tx.Exec("UPDATE charges SET version = version + 1 WHERE id = ?", c.ID).Error)
		return c.RegisterPayment(dec("10"), f.clock.Now())
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, config.DefaultLedgerConfig().MutationRetryAttempts, calls)
	assert.True(t, f.stored(t, charge.ID).AmountPaid.Equal(dec("10")))
}

func TestGenerateMonthlyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	tuition := f.concept(t, "tuition", "1200", monthly(), conceptdomain.Policy{})
	f.concept(t, "insurance", "300", yearly(), conceptdomain.Policy{})
	f.concept(t, "enrollment", "500", nil, conceptdomain.Policy{})

	early := f.student(t, "Early", testutil.Date(2026, 8, 1), true)
	mid := f.student(t, "Mid", testutil.Date(2026, 9, 20), true)
	f.student(t, "Future", testutil.Date(2026, 10, 1), true)
	f.student(t, "Inactive", testutil.Date(2026, 1, 1), false)

	result, err := f.svc.GenerateMonthly(ctx, domain.GenerateMonthlyRequest{Period: "2026-09"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Inserted)
	assert.Equal(t, int64(0), result.Skipped)
	assert.Equal(t, testutil.Date(2026, 9, 10), result.DueDate)

	var charges []domain.Charge
	require.NoError(t, f.db.Where("period = ?", "2026-09").Order("student_id").Find(&charges).Error)
	require.Len(t, charges, 2)
	studentIDs := []snowflake.ID{charges[0].StudentID, charges[1].StudentID}
	assert.ElementsMatch(t, []snowflake.ID{early.ID, mid.ID}, studentIDs)
	for _, c := range charges {
		assert.Equal(t, tuition.ID, c.ConceptID)
		assert.True(t, c.Amount.Equal(dec("1200")), "no proration")
	}

	again, err := f.svc.GenerateMonthly(ctx, domain.GenerateMonthlyRequest{Period: "2026-09"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Inserted)
	assert.Equal(t, int64(2), again.Skipped)

	_, err = f.svc.GenerateMonthly(ctx, domain.GenerateMonthlyRequest{Period: "September"})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestRefreshOverduePersistsLateFees(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	concept := f.concept(t, "tuition", "1000", nil, conceptdomain.Policy{
		LateFeeEnabled: true, LateFeePercentage: ptr(dec("2")), GraceDays: ptr(5),
	})
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)
	due := testutil.Date(2026, 9, 1)
	charge, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: concept.ID.String(), StudentID: student.ID.String(), DueDate: &due,
	})
	require.NoError(t, err)

	f.clock.Set(testutil.Date(2026, 9, 11))
	result, err := f.svc.RefreshOverdue(t.Context(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Updated)

	stored := f.stored(t, charge.ID)
	assert.Equal(t, domain.StatusOverdue, stored.Status)
	assert.True(t, stored.LateFee.Equal(dec("100")))
	assert.True(t, stored.OutstandingBalance.Equal(dec("1100")))

	result, err = f.svc.RefreshOverdue(t.Context(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
}

func TestListPendingOrdersByDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)

	late := testutil.Date(2026, 10, 1)
	early := testutil.Date(2026, 8, 20)
	a, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: f.concept(t, "a", "10", nil, conceptdomain.Policy{}).ID.String(), StudentID: student.ID.String(), DueDate: &late,
	})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: f.concept(t, "b", "10", nil, conceptdomain.Policy{}).ID.String(), StudentID: student.ID.String(), DueDate: &early,
	})
	require.NoError(t, err)
	c, err := f.svc.Create(ctx, domain.CreateChargeRequest{
		ConceptID: f.concept(t, "c", "10", nil, conceptdomain.Policy{}).ID.String(), StudentID: student.ID.String(), DueDate: &late,
	})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, domain.CancelChargeRequest{ID: c.ID.String(), Reason: "duplicate"})
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx, student.ID.String())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, b.ID, pending[0].ID)
	assert.Equal(t, domain.StatusOverdue, pending[0].Status)
	assert.Equal(t, a.ID, pending[1].ID)
	assert.Equal(t, domain.StatusPending, pending[1].Status)
}

func TestListChargesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	student := f.student(t, "Ana", testutil.Date(2026, 1, 1), true)
	due := testutil.Date(2026, 9, 20)
	for _, name := range []string{"a", "b"} {
		_, err := f.svc.Create(ctx, domain.CreateChargeRequest{
			ConceptID: f.concept(t, name, "10", nil, conceptdomain.Policy{}).ID.String(), StudentID: student.ID.String(), DueDate: &due,
		})
		require.NoError(t, err)
	}

	resp, err := f.svc.List(ctx, domain.ListChargeRequest{StudentID: student.ID.String(), Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, resp.Charges, 2)

	resp, err = f.svc.List(ctx, domain.ListChargeRequest{Status: "paid"})
	require.NoError(t, err)
	assert.Empty(t, resp.Charges)

	_, err = f.svc.List(ctx, domain.ListChargeRequest{Status: "late"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
