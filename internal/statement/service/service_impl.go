package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/statement/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	ChargeRepo  chargedomain.Repository
	PaymentRepo paymentdomain.Repository
	StudentRepo studentdomain.Repository
	LedgerCfg   *config.LedgerConfigHolder
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	chargeRepo  chargedomain.Repository
	paymentRepo paymentdomain.Repository
	studentRepo studentdomain.Repository
	ledgerCfg   *config.LedgerConfigHolder
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("statement.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		chargeRepo:  p.ChargeRepo,
		paymentRepo: p.PaymentRepo,
		studentRepo: p.StudentRepo,
		ledgerCfg:   p.LedgerCfg,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, req domain.GetStatementRequest) (domain.AccountStatement, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.AccountStatement{}, domain.ErrInvalidOrganization
	}
	studentID, err := snowflake.ParseString(strings.TrimSpace(req.StudentID))
	if err != nil || studentID == 0 {
		return domain.AccountStatement{}, domain.ErrInvalidStudent
	}
	period := strings.TrimSpace(req.Period)
	if period != "" {
		if _, _, err := chargedomain.ParsePeriod(period); err != nil {
			return domain.AccountStatement{}, err
		}
	}

	student, err := s.studentRepo.FindByID(ctx, s.db, orgID, studentID)
	if err != nil {
		return domain.AccountStatement{}, err
	}
	if student == nil {
		return domain.AccountStatement{}, studentdomain.ErrNotFound
	}

	stored, err := s.chargeRepo.ListByStudent(ctx, s.db, orgID, studentID, period)
	if err != nil {
		return domain.AccountStatement{}, err
	}
	charges := make([]chargedomain.Charge, 0, len(stored))
	chargeIDs := make([]snowflake.ID, 0, len(stored))
	for _, c := range stored {
		charges = append(charges, *c)
		chargeIDs = append(chargeIDs, c.ID)
	}

	if err := domain.Reconcile(studentID, charges); err != nil {
		var recErr *domain.ReconciliationError
		if errors.As(err, &recErr) {
			s.log.Error("account statement does not reconcile",
				zap.String("org_id", orgID.String()),
				zap.String("student_id", studentID.String()),
				zap.Strings("charge_ids", recErr.ChargeIDs()),
			)
			s.obsMetrics.RecordReconciliationError(ctx, orgID.String())
		}
		return domain.AccountStatement{}, err
	}

	now := s.clock.Now()
	for i := range charges {
		charges[i].RefreshStatus(now)
	}

	rows, err := s.paymentRepo.ListByCharges(ctx, s.db, orgID, chargeIDs)
	if err != nil {
		return domain.AccountStatement{}, err
	}
	payments := make([]paymentdomain.Payment, 0, len(rows))
	for _, p := range rows {
		payments = append(payments, *p)
	}

	aggregates := domain.Recompute(charges, payments, domain.Options{
		NeedsAttentionThreshold: s.ledgerCfg.Get().NeedsAttentionOverdueCount,
	})

	var statement domain.AccountStatement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByKey(ctx, tx, orgID, studentID, period)
		if err != nil {
			return err
		}
		statement = domain.AccountStatement{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			StudentID:   studentID,
			Period:      period,
			Aggregates:  aggregates,
			GeneratedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if existing != nil {
			statement.ID = existing.ID
			statement.CreatedAt = existing.CreatedAt
		}
		return s.repo.Upsert(ctx, tx, &statement)
	})
	if err != nil {
		return domain.AccountStatement{}, err
	}
	return statement, nil
}
