package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	"github.com/smallbiznis/bursar/pkg/db"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"github.com/smallbiznis/bursar/pkg/money"
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
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("concept.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateConceptRequest) (domain.PaymentConcept, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentConcept{}, domain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	name := strings.TrimSpace(req.Name)
	concept := domain.PaymentConcept{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Code:        slug.Make(name),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		BaseAmount:  money.Round(req.BaseAmount),
		Category:    req.Category,
		Periodicity: req.Periodicity,
		Policy:      req.Policy,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if violations := concept.Validate(); !violations.Empty() {
		return domain.PaymentConcept{}, violations
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &concept); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateCode
			}
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     "concept.created",
			TargetType: "payment_concept",
			TargetID:   concept.ID,
			Metadata: map[string]any{
				"code":        concept.Code,
				"base_amount": concept.BaseAmount.String(),
				"category":    string(concept.Category),
			},
		})
	})
	if err != nil {
		return domain.PaymentConcept{}, err
	}

	s.log.Info("payment concept created",
		zap.String("concept_id", concept.ID.String()),
		zap.String("code", concept.Code),
	)
	return concept, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.PaymentConcept, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentConcept{}, domain.ErrInvalidOrganization
	}
	conceptID, err := parseID(id)
	if err != nil {
		return domain.PaymentConcept{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, conceptID)
	if err != nil {
		return domain.PaymentConcept{}, err
	}
	if item == nil {
		return domain.PaymentConcept{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListConceptRequest) (domain.ListConceptResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListConceptResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{Active: req.Active, Limit: req.Limit()}
	if category := strings.TrimSpace(req.Category); category != "" {
		switch domain.Category(category) {
		case domain.CategoryOneTime, domain.CategoryRecurring:
			filter.Category = domain.Category(category)
		default:
			return domain.ListConceptResponse{}, domain.ErrInvalidCategory
		}
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListConceptResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListConceptResponse{}, err
	}
	items, pageInfo := pagination.Page(items, filter.Limit, func(c *domain.PaymentConcept) pagination.Cursor {
		return pagination.CursorFor(c.ID.String(), c.CreatedAt)
	})

	concepts := make([]domain.PaymentConcept, 0, len(items))
	for _, item := range items {
		concepts = append(concepts, *item)
	}
	return domain.ListConceptResponse{PageInfo: pageInfo, Concepts: concepts}, nil
}

// Update changes the concept template. Charges already issued keep the
// amount and policy they were created with.
func (s *Service) Update(ctx context.Context, req domain.UpdateConceptRequest) (domain.PaymentConcept, error) {
	return s.mutate(ctx, req.ID, "concept.updated", func(concept *domain.PaymentConcept) error {
		if req.Name != nil {
			concept.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			concept.Description = strings.TrimSpace(*req.Description)
		}
		if req.BaseAmount != nil {
			concept.BaseAmount = money.Round(*req.BaseAmount)
		}
		if req.Policy != nil {
			concept.Policy = *req.Policy
		}
		return concept.Validate().Err()
	})
}

func (s *Service) Deactivate(ctx context.Context, id string) (domain.PaymentConcept, error) {
	return s.mutate(ctx, id, "concept.deactivated", func(concept *domain.PaymentConcept) error {
		if !concept.Active {
			return domain.ErrConceptInactive
		}
		concept.Active = false
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id, action string, fn func(*domain.PaymentConcept) error) (domain.PaymentConcept, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PaymentConcept{}, domain.ErrInvalidOrganization
	}
	conceptID, err := parseID(id)
	if err != nil {
		return domain.PaymentConcept{}, err
	}

	var updated domain.PaymentConcept
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, orgID, conceptID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if err := fn(item); err != nil {
			return err
		}
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		updated = *item
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     action,
			TargetType: "payment_concept",
			TargetID:   item.ID,
		})
	})
	if err != nil {
		return domain.PaymentConcept{}, err
	}
	return updated, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
