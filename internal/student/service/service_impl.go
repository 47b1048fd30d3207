package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	"github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("student.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateStudentRequest) (domain.Student, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Student{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Student{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if err := s.validate.Var(email, "email"); err != nil {
			return domain.Student{}, domain.ErrInvalidEmail
		}
	}

	now := s.clock.Now()
	enrolledAt := now
	if req.EnrolledAt != nil {
		enrolledAt = req.EnrolledAt.UTC()
	}

	student := domain.Student{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Name:       name,
		Email:      email,
		Active:     true,
		EnrolledAt: enrolledAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &student); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     "student.created",
			TargetType: "student",
			TargetID:   student.ID,
		})
	})
	if err != nil {
		return domain.Student{}, err
	}

	return student, nil
}

func (s *Service) List(ctx context.Context, req domain.ListStudentRequest) (domain.ListStudentResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListStudentResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListStudentFilter{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Active: req.Active,
		Limit:  req.Limit(),
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListStudentResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListStudentResponse{}, err
	}

	items, pageInfo := pagination.Page(items, filter.Limit, func(student *domain.Student) pagination.Cursor {
		return pagination.CursorFor(student.ID.String(), student.CreatedAt)
	})

	students := make([]domain.Student, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		students = append(students, *item)
	}

	return domain.ListStudentResponse{PageInfo: pageInfo, Students: students}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Student, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Student{}, domain.ErrInvalidOrganization
	}

	studentID, err := s.parseID(id)
	if err != nil {
		return domain.Student{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, studentID)
	if err != nil {
		return domain.Student{}, err
	}
	if item == nil {
		return domain.Student{}, domain.ErrNotFound
	}

	return *item, nil
}

// Deactivate stops future monthly billing. Existing charges are untouched.
func (s *Service) Deactivate(ctx context.Context, id string) (domain.Student, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Student{}, domain.ErrInvalidOrganization
	}

	studentID, err := s.parseID(id)
	if err != nil {
		return domain.Student{}, err
	}

	var updated domain.Student
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, orgID, studentID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if !item.Active {
			return domain.ErrStudentInactive
		}
		item.Active = false
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		updated = *item
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     "student.deactivated",
			TargetType: "student",
			TargetID:   item.ID,
		})
	})
	if err != nil {
		return domain.Student{}, err
	}

	s.log.Info("student deactivated", zap.String("student_id", updated.ID.String()))
	return updated, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
