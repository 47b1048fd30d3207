package service_test

import (
	"testing"
	"time"

	auditrepository "github.com/smallbiznis/bursar/internal/audit/repository"
	auditservice "github.com/smallbiznis/bursar/internal/audit/service"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/student/repository"
	"github.com/smallbiznis/bursar/internal/student/service"
	"github.com/smallbiznis/bursar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(testutil.Date(2026, 9, 1))
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	return service.New(service.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
		Repo: repository.Provide(), AuditSvc: audit,
	}), db
}

func TestCreateStudent(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.SchoolContext(7, "")

	student, err := svc.Create(ctx, domain.CreateStudentRequest{Name: " Ana Ruiz ", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", student.Name)
	assert.True(t, student.Active)
	assert.Equal(t, testutil.Date(2026, 9, 1), student.EnrolledAt)

	got, err := svc.GetByID(ctx, student.ID.String())
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.ID)
	assert.Equal(t, "ana@example.com", got.Email)
}

func TestCreateStudentValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.SchoolContext(7, "")

	_, err := svc.Create(ctx, domain.CreateStudentRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateStudentRequest{Name: "Leo", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.Create(t.Context(), domain.CreateStudentRequest{Name: "Leo"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestDeactivateStudent(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.SchoolContext(7, "registrar")

	student, err := svc.Create(ctx, domain.CreateStudentRequest{Name: "Mia"})
	require.NoError(t, err)

	updated, err := svc.Deactivate(ctx, student.ID.String())
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = svc.Deactivate(ctx, student.ID.String())
	assert.ErrorIs(t, err, domain.ErrStudentInactive)

	_, err = svc.GetByID(testutil.SchoolContext(8, ""), student.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListBillableStudents(t *testing.T) {
	svc, db := newService(t)
	ctx := testutil.SchoolContext(7, "")

	enrolled := func(y int, m time.Month, d int) *time.Time {
		v := testutil.Date(y, m, d)
		return &v
	}
	early, err := svc.Create(ctx, domain.CreateStudentRequest{Name: "Early", EnrolledAt: enrolled(2026, 8, 1)})
	require.NoError(t, err)
	midMonth, err := svc.Create(ctx, domain.CreateStudentRequest{Name: "Mid", EnrolledAt: enrolled(2026, 9, 15)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateStudentRequest{Name: "Late", EnrolledAt: enrolled(2026, 10, 2)})
	require.NoError(t, err)
	left, err := svc.Create(ctx, domain.CreateStudentRequest{Name: "Left", EnrolledAt: enrolled(2026, 1, 1)})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, left.ID.String())
	require.NoError(t, err)

	periodEnd := time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)
	students, err := repository.Provide().ListBillable(ctx, db, 7, periodEnd)
	require.NoError(t, err)

	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID.String())
	}
	assert.ElementsMatch(t, []string{early.ID.String(), midMonth.ID.String()}, ids)
}

func TestBillableFor(t *testing.T) {
	end := testutil.Date(2026, 9, 30)
	assert.True(t, domain.Student{Active: true, EnrolledAt: end}.BillableFor(end))
	assert.False(t, domain.Student{Active: true, EnrolledAt: end.AddDate(0, 0, 1)}.BillableFor(end))
	assert.False(t, domain.Student{Active: false, EnrolledAt: end.AddDate(0, -1, 0)}.BillableFor(end))
}

func TestListStudentsFiltersActive(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.SchoolContext(7, "")

	a, err := svc.Create(ctx, domain.CreateStudentRequest{Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateStudentRequest{Name: "B"})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, a.ID.String())
	require.NoError(t, err)

	active := true
	resp, err := svc.List(ctx, domain.ListStudentRequest{Active: &active})
	require.NoError(t, err)
	require.Len(t, resp.Students, 1)
	assert.Equal(t, "B", resp.Students[0].Name)
	assert.False(t, resp.HasMore)
}
