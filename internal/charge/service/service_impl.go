package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/lock"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/pkg/db"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
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
	ConceptRepo conceptdomain.Repository
	StudentRepo studentdomain.Repository
	AuditSvc    auditdomain.Service
	LedgerCfg   *config.LedgerConfigHolder
	Locker      *lock.Locker        `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	conceptRepo conceptdomain.Repository
	studentRepo studentdomain.Repository
	auditSvc    auditdomain.Service
	ledgerCfg   *config.LedgerConfigHolder
	locker      *lock.Locker
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("charge.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		conceptRepo: p.ConceptRepo,
		studentRepo: p.StudentRepo,
		auditSvc:    p.AuditSvc,
		ledgerCfg:   p.LedgerCfg,
		locker:      p.Locker,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateChargeRequest) (domain.Charge, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Charge{}, domain.ErrInvalidOrganization
	}
	conceptID, err := parseID(req.ConceptID)
	if err != nil {
		return domain.Charge{}, err
	}
	studentID, err := parseID(req.StudentID)
	if err != nil {
		return domain.Charge{}, err
	}

	period := strings.TrimSpace(req.Period)
	var dueDate time.Time
	switch {
	case req.DueDate != nil:
		dueDate = req.DueDate.UTC()
		if period == "" {
			period = domain.PeriodOf(dueDate)
		}
	case period != "":
		start, _, err := domain.ParsePeriod(period)
		if err != nil {
			return domain.Charge{}, err
		}
		dueDate = domain.MonthlyDueDate(start, s.ledgerCfg.Get().MonthlyDueDay)
	default:
		return domain.Charge{}, domain.ErrInvalidDueDate
	}

	now := s.clock.Now()
	var charge *domain.Charge
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		concept, err := s.conceptRepo.FindByID(ctx, tx, orgID, conceptID)
		if err != nil {
			return err
		}
		if concept == nil {
			return conceptdomain.ErrNotFound
		}
		student, err := s.studentRepo.FindByID(ctx, tx, orgID, studentID)
		if err != nil {
			return err
		}
		if student == nil {
			return studentdomain.ErrNotFound
		}
		if !student.Active {
			return studentdomain.ErrStudentInactive
		}

		charge, err = domain.NewCharge(domain.NewChargeParams{
			ID:          s.genID.Generate(),
			Concept:     *concept,
			StudentID:   student.ID,
			Period:      period,
			DueDate:     dueDate,
			Description: req.Description,
		}, now)
		if err != nil {
			return err
		}

		if err := s.repo.Insert(ctx, tx, charge); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateCharge
			}
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     "charge.created",
			TargetType: "charge",
			TargetID:   charge.ID,
			Metadata: map[string]any{
				"concept_id": concept.ID.String(),
				"student_id": student.ID.String(),
				"period":     charge.Period,
				"amount":     charge.Amount.String(),
			},
		})
	})
	if err != nil {
		return domain.Charge{}, err
	}

	s.obsMetrics.RecordChargeCreated(ctx, "manual")
	s.log.Info("charge created",
		zap.String("charge_id", charge.ID.String()),
		zap.String("student_id", charge.StudentID.String()),
		zap.String("period", charge.Period),
	)
	return *charge, nil
}

// Get returns the charge as of now. The stored row is not rewritten.
func (s *Service) Get(ctx context.Context, id string) (domain.Charge, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Charge{}, domain.ErrInvalidOrganization
	}
	chargeID, err := parseID(id)
	if err != nil {
		return domain.Charge{}, err
	}

	charge, err := s.repo.FindByID(ctx, s.db, orgID, chargeID)
	if err != nil {
		return domain.Charge{}, err
	}
	if charge == nil {
		return domain.Charge{}, domain.ErrNotFound
	}
	charge.RefreshStatus(s.clock.Now())
	return *charge, nil
}

func (s *Service) List(ctx context.Context, req domain.ListChargeRequest) (domain.ListChargeResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListChargeResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		Period: strings.TrimSpace(req.Period),
		Limit:  req.Limit(),
	}
	if strings.TrimSpace(req.StudentID) != "" {
		id, err := parseID(req.StudentID)
		if err != nil {
			return domain.ListChargeResponse{}, err
		}
		filter.StudentID = id
	}
	if strings.TrimSpace(req.ConceptID) != "" {
		id, err := parseID(req.ConceptID)
		if err != nil {
			return domain.ListChargeResponse{}, err
		}
		filter.ConceptID = id
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
		if !filter.Status.Valid() {
			return domain.ListChargeResponse{}, domain.ErrInvalidStatus
		}
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListChargeResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListChargeResponse{}, err
	}
	items, pageInfo := pagination.Page(items, filter.Limit, func(c *domain.Charge) pagination.Cursor {
		return pagination.CursorFor(c.ID.String(), c.CreatedAt)
	})

	charges := make([]domain.Charge, 0, len(items))
	for _, item := range items {
		charges = append(charges, *item)
	}
	return domain.ListChargeResponse{PageInfo: pageInfo, Charges: charges}, nil
}

func (s *Service) ListPending(ctx context.Context, studentID string) ([]domain.Charge, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(studentID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListOpenByStudent(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	charges := make([]domain.Charge, 0, len(items))
	for _, item := range items {
		item.RefreshStatus(now)
		if item.IsOpen() {
			charges = append(charges, *item)
		}
	}
	sort.SliceStable(charges, func(i, j int) bool {
		return charges[i].DueDate.Before(charges[j].DueDate)
	})
	return charges, nil
}

func (s *Service) ApplyDiscount(ctx context.Context, req domain.ApplyDiscountRequest) (domain.Charge, error) {
	chargeID, err := parseID(req.ID)
	if err != nil {
		return domain.Charge{}, err
	}
	return s.Mutate(ctx, chargeID, "discount", func(tx *gorm.DB, charge *domain.Charge) error {
		if err := charge.ApplyDiscount(req.Percentage, req.Reason, s.clock.Now()); err != nil {
			return err
		}
		return s.audit(ctx, tx, charge, "charge.discount_applied", map[string]any{
			"percentage": req.Percentage.String(),
			"discount":   charge.Discount.String(),
			"reason":     charge.DiscountReason,
		})
	})
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelChargeRequest) (domain.Charge, error) {
	chargeID, err := parseID(req.ID)
	if err != nil {
		return domain.Charge{}, err
	}
	actor := orgcontext.ActorFromContext(ctx)
	return s.Mutate(ctx, chargeID, "cancel", func(tx *gorm.DB, charge *domain.Charge) error {
		if err := charge.Cancel(req.Reason, actor, s.clock.Now()); err != nil {
			return err
		}
		return s.audit(ctx, tx, charge, "charge.cancelled", map[string]any{
			"reason": charge.CancelReason,
		})
	})
}

func (s *Service) Reactivate(ctx context.Context, id string) (domain.Charge, error) {
	chargeID, err := parseID(id)
	if err != nil {
		return domain.Charge{}, err
	}
	return s.Mutate(ctx, chargeID, "reactivate", func(tx *gorm.DB, charge *domain.Charge) error {
		if err := charge.Reactivate(s.clock.Now()); err != nil {
			return err
		}
		return s.audit(ctx, tx, charge, "charge.reactivated", map[string]any{
			"status": string(charge.Status),
		})
	})
}

func (s *Service) ExtendDueDate(ctx context.Context, req domain.ExtendDueDateRequest) (domain.Charge, error) {
	chargeID, err := parseID(req.ID)
	if err != nil {
		return domain.Charge{}, err
	}
	return s.Mutate(ctx, chargeID, "extend_due_date", func(tx *gorm.DB, charge *domain.Charge) error {
		previous := charge.DueDate
		if err := charge.ExtendDueDate(req.DueDate, req.Reason, s.clock.Now()); err != nil {
			return err
		}
		return s.audit(ctx, tx, charge, "charge.due_date_extended", map[string]any{
			"previous_due_date": previous.Format(time.DateOnly),
			"due_date":          charge.DueDate.Format(time.DateOnly),
			"reason":            charge.DueDateReason,
			"late_fee":          charge.LateFee.String(),
		})
	})
}

// GenerateMonthly issues one charge per active monthly concept and billable
// student for the period. Re-running for the same period only fills gaps.
func (s *Service) GenerateMonthly(ctx context.Context, req domain.GenerateMonthlyRequest) (domain.GenerateMonthlyResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.GenerateMonthlyResult{}, domain.ErrInvalidOrganization
	}
	period := strings.TrimSpace(req.Period)
	if period == "" {
		period = domain.PeriodOf(s.clock.Now())
	}
	start, end, err := domain.ParsePeriod(period)
	if err != nil {
		return domain.GenerateMonthlyResult{}, err
	}

	now := s.clock.Now()
	result := domain.GenerateMonthlyResult{
		Period:  period,
		DueDate: domain.MonthlyDueDate(start, s.ledgerCfg.Get().MonthlyDueDay),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		concepts, err := s.conceptRepo.ListActiveMonthly(ctx, tx, orgID)
		if err != nil {
			return err
		}
		students, err := s.studentRepo.ListBillable(ctx, tx, orgID, end)
		if err != nil {
			return err
		}

		charges := make([]*domain.Charge, 0, len(concepts)*len(students))
		for _, concept := range concepts {
			for _, student := range students {
				charge, err := domain.NewCharge(domain.NewChargeParams{
					ID:          s.genID.Generate(),
					Concept:     *concept,
					StudentID:   student.ID,
					Period:      period,
					DueDate:     result.DueDate,
					Description: fmt.Sprintf("%s %s", concept.Name, period),
				}, now)
				if err != nil {
					return err
				}
				charges = append(charges, charge)
			}
		}

		inserted, err := s.repo.InsertIgnoreConflict(ctx, tx, charges)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		result.Skipped = int64(len(charges)) - inserted

		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     "charge.monthly_generated",
			TargetType: "school",
			TargetID:   orgID,
			Metadata: map[string]any{
				"period":   period,
				"concepts": len(concepts),
				"students": len(students),
				"inserted": result.Inserted,
				"skipped":  result.Skipped,
			},
		})
	})
	if err != nil {
		return domain.GenerateMonthlyResult{}, err
	}

	s.obsMetrics.RecordMonthlyGenerated(ctx, int(result.Inserted))
	s.log.Info("monthly charges generated",
		zap.String("school_id", orgID.String()),
		zap.String("period", period),
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
	)
	return result, nil
}

// RefreshOverdue walks past-due open charges of every school and stores
// their current late fee and status.
func (s *Service) RefreshOverdue(ctx context.Context, batchSize int) (domain.RefreshResult, error) {
	if batchSize <= 0 {
		batchSize = s.ledgerCfg.Get().OverdueBatchSize
	}
	now := s.clock.Now()
	today := clock.Date(now)

	var (
		result  domain.RefreshResult
		errs    []error
		afterID snowflake.ID
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(append(errs, err)...)
		}
		batch, err := s.repo.ListPastDue(ctx, s.db, today, afterID, batchSize)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}
		for _, item := range batch {
			afterID = item.ID
			result.Scanned++

			preview := *item
			preview.RefreshStatus(now)
			if preview.Status == item.Status && preview.LateFee.Equal(item.LateFee) {
				continue
			}

			orgCtx := orgcontext.WithOrgID(ctx, item.OrgID)
			_, err := s.Mutate(orgCtx, item.ID, "refresh", func(tx *gorm.DB, charge *domain.Charge) error {
				charge.RefreshStatus(now)
				return nil
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("refresh charge %s: %w", item.ID, err))
				continue
			}
			result.Updated++
		}
	}
	return result, errors.Join(errs...)
}

func (s *Service) Mutate(ctx context.Context, chargeID snowflake.ID, action string, fn domain.MutateFunc) (domain.Charge, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Charge{}, domain.ErrInvalidOrganization
	}
	if chargeID == 0 {
		return domain.Charge{}, domain.ErrInvalidID
	}

	release, err := s.acquire(ctx, chargeID)
	if err != nil {
		return domain.Charge{}, err
	}
	defer release()

	attempts := s.ledgerCfg.Get().MutationRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result domain.Charge
		from   domain.Status
	)
	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			charge, err := s.repo.FindByID(ctx, tx, orgID, chargeID)
			if err != nil {
				return err
			}
			if charge == nil {
				return domain.ErrNotFound
			}
			from = charge.Status

			if err := fn(tx, charge); err != nil {
				return err
			}
			if violations := charge.Validate(); !violations.Empty() {
				return fmt.Errorf("charge %s: %w", charge.ID, violations)
			}
			if err := s.repo.Update(ctx, tx, charge); err != nil {
				return err
			}
			result = *charge
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			return domain.Charge{}, err
		}
		s.obsMetrics.RecordConcurrencyConflict(ctx, action)
		if attempt >= attempts {
			s.log.Warn("charge update conflict, giving up",
				zap.String("charge_id", chargeID.String()),
				zap.String("action", action),
				zap.Int("attempts", attempt),
			)
			return domain.Charge{}, err
		}
	}

	s.obsMetrics.RecordChargeTransition(ctx, string(from), string(result.Status))
	return result, nil
}

func (s *Service) acquire(ctx context.Context, chargeID snowflake.ID) (func(), error) {
	if !s.locker.Enabled() {
		return func() {}, nil
	}
	key := lock.ChargeKey(chargeID.String())
	token, ok, err := s.locker.TryLock(ctx, key, s.ledgerCfg.Get().ChargeLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrChargeBusy
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release charge lock", zap.String("charge_id", chargeID.String()), zap.Error(err))
		}
	}, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, charge *domain.Charge, action string, metadata map[string]any) error {
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		OrgID:      charge.OrgID,
		Action:     action,
		TargetType: "charge",
		TargetID:   charge.ID,
		Metadata:   metadata,
	})
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
