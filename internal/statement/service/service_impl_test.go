package service_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	chargerepository "github.com/smallbiznis/bursar/internal/charge/repository"
	"github.com/smallbiznis/bursar/internal/clock"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/internal/config"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/bursar/internal/payment/repository"
	"github.com/smallbiznis/bursar/internal/statement/domain"
	"github.com/smallbiznis/bursar/internal/statement/repository"
	"github.com/smallbiznis/bursar/internal/statement/service"
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
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	svc     domain.Service
	student studentdomain.Student
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(testutil.Date(2026, 9, 1))
	svc := service.NewService(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        repository.Provide(),
		ChargeRepo:  chargerepository.Provide(),
		PaymentRepo: paymentrepository.Provide(),
		StudentRepo: studentrepository.Provide(),
		LedgerCfg:   config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig()),
	})

	student := studentdomain.Student{
		ID:         node.Generate(),
		OrgID:      school,
		Name:       "Ana",
		Active:     true,
		EnrolledAt: testutil.Date(2026, 1, 1),
		CreatedAt:  clk.Now(),
		UpdatedAt:  clk.Now(),
	}
	require.NoError(t, studentrepository.Provide().Insert(t.Context(), db, &student))
	return &fixture{db: db, node: node, clock: clk, svc: svc, student: student}
}

// charge stores a charge for the fixture student and pays it with one
// payment per amount in paid.
func (f *fixture) charge(t *testing.T, base, period string, policy conceptdomain.Policy, paid ...string) chargedomain.Charge {
	t.Helper()
	now := f.clock.Now()
	start, _, err := chargedomain.ParsePeriod(period)
	require.NoError(t, err)
	c, err := chargedomain.NewCharge(chargedomain.NewChargeParams{
		ID: f.node.Generate(),
		Concept: conceptdomain.PaymentConcept{
			ID:         f.node.Generate(),
			OrgID:      school,
			Name:       "Tuition " + period,
			BaseAmount: decimal.RequireFromString(base),
			Category:   conceptdomain.CategoryOneTime,
			Policy:     policy,
			Active:     true,
		},
		StudentID: f.student.ID,
		Period:    period,
		DueDate:   chargedomain.MonthlyDueDate(start, 10),
	}, now)
	require.NoError(t, err)

	var payments []*paymentdomain.Payment
	for _, amount := range paid {
		p, err := paymentdomain.NewPayment(c, paymentdomain.NewPaymentParams{
			ID:     f.node.Generate(),
			Amount: decimal.RequireFromString(amount),
			Method: paymentdomain.MethodCash,
		}, now)
		require.NoError(t, err)
		payments = append(payments, p)
	}
	require.NoError(t, chargerepository.Provide().Insert(t.Context(), f.db, c))
	for _, p := range payments {
		require.NoError(t, paymentrepository.Provide().Insert(t.Context(), f.db, p))
	}
	return *c
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestGetStatementAggregatesStudent(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	f.charge(t, "1000", "2026-08", conceptdomain.Policy{}, "1000")
	f.charge(t, "500", "2026-09", conceptdomain.Policy{}, "100", "50")
	f.charge(t, "200", "2026-10", conceptdomain.Policy{})

	st, err := f.svc.Get(ctx, domain.GetStatementRequest{StudentID: f.student.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "", st.Period)
	assert.True(t, st.TotalCharged.Equal(dec("1700")))
	assert.True(t, st.TotalPaid.Equal(dec("1150")))
	assert.True(t, st.OutstandingBalance.Equal(dec("550")))
	assert.Equal(t, 3, st.ChargeCount)
	assert.Equal(t, 1, st.PaidCount)
	assert.Equal(t, 1, st.PartialCount)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, 3, st.PaymentCount)
	assert.False(t, st.IsCurrent)
	assert.Equal(t, f.clock.Now(), st.GeneratedAt)

	sept, err := f.svc.Get(ctx, domain.GetStatementRequest{StudentID: f.student.ID.String(), Period: "2026-09"})
	require.NoError(t, err)
	assert.True(t, sept.TotalCharged.Equal(dec("500")))
	assert.True(t, sept.OutstandingBalance.Equal(dec("350")))
	assert.Equal(t, 2, sept.PaymentCount)
}

func TestGetStatementRefreshesOverdueAgainstClock(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	grace := 5
	pct := dec("2")
	f.charge(t, "1000", "2026-09", conceptdomain.Policy{LateFeeEnabled: true, LateFeePercentage: &pct, GraceDays: &grace})

	// Due 2026-09-10; 15 days late is 10 days past grace.
	f.clock.Set(testutil.Date(2026, 9, 25))
	st, err := f.svc.Get(ctx, domain.GetStatementRequest{StudentID: f.student.ID.String(), Period: "2026-09"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.OverdueCount)
	assert.True(t, st.HasOverdue)
	assert.True(t, st.TotalLateFees.Equal(dec("200")))
	assert.True(t, st.OutstandingBalance.Equal(dec("1200")))
}

func TestGetStatementUpsertsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	f.charge(t, "300", "2026-09", conceptdomain.Policy{})
	req := domain.GetStatementRequest{StudentID: f.student.ID.String(), Period: "2026-09"}

	first, err := f.svc.Get(ctx, req)
	require.NoError(t, err)

	f.charge(t, "100", "2026-09", conceptdomain.Policy{}, "100")
	f.clock.AdvanceDays(1)
	second, err := f.svc.Get(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.TotalCharged.Equal(dec("400")))

	var rows []domain.AccountStatement
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].TotalCharged.Equal(dec("400")))
	assert.Equal(t, 1, rows[0].PaymentCount)
}

func TestGetStatementReportsReconciliationError(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")
	c := f.charge(t, "300", "2026-09", conceptdomain.Policy{}, "100")
	require.NoError(t, f.db.Model(&chargedomain.Charge{}).Where("id = ?", c.ID).Update("outstanding_balance", dec("250")).Error)

	_, err := f.svc.Get(ctx, domain.GetStatementRequest{StudentID: f.student.ID.String()})
	var recErr *domain.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, []string{c.ID.String()}, recErr.ChargeIDs())

	var n int64
	require.NoError(t, f.db.Model(&domain.AccountStatement{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGetStatementValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.SchoolContext(school, "")

	_, err := f.svc.Get(t.Context(), domain.GetStatementRequest{StudentID: f.student.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = f.svc.Get(ctx, domain.GetStatementRequest{StudentID: "abc"})
	assert.ErrorIs(t, err, domain.ErrInvalidStudent)

	_, err = f.svc.Get(ctx, domain.GetStatementRequest{StudentID: f.student.ID.String(), Period: "2026-13"})
	assert.ErrorIs(t, err, chargedomain.ErrInvalidPeriod)

	_, err = f.svc.Get(ctx, domain.GetStatementRequest{StudentID: f.node.Generate().String()})
	assert.ErrorIs(t, err, studentdomain.ErrNotFound)

	_, err = f.svc.Get(testutil.SchoolContext(2, ""), domain.GetStatementRequest{StudentID: f.student.ID.String()})
	assert.ErrorIs(t, err, studentdomain.ErrNotFound)
}
