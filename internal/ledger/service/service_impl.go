package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/clock"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Post(ctx context.Context, db *gorm.DB, posting ledgerdomain.Posting) (bool, error) {
	if posting.OrgID == 0 {
		return false, ledgerdomain.ErrInvalidOrganization
	}
	sourceType := ledgerdomain.SourceType(strings.TrimSpace(string(posting.SourceType)))
	if sourceType == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if posting.SourceID == 0 {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	if posting.OccurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(posting.Lines) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.LedgerEntryLine, 0, len(posting.Lines))
	for _, line := range posting.Lines {
		if strings.TrimSpace(string(line.AccountCode)) == "" {
			return false, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return false, err
		}
		if !line.Amount.IsPositive() {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.LedgerEntryLine{
			AccountCode: line.AccountCode,
			Direction:   direction,
			Amount:      money.Round(line.Amount),
		})
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	if db == nil {
		db = s.db
	}

	now := s.clock.Now()
	entry := ledgerdomain.LedgerEntry{
		ID:         s.genID.Generate(),
		OrgID:      posting.OrgID,
		SourceType: sourceType,
		SourceID:   posting.SourceID,
		OccurredAt: posting.OccurredAt.UTC(),
		CreatedAt:  now,
	}
	inserted, err := s.repo.InsertEntry(ctx, db, &entry)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug("ledger entry already posted",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", posting.SourceID.String()),
		)
		return false, nil
	}

	for i := range normalized {
		normalized[i].ID = s.genID.Generate()
		normalized[i].LedgerEntryID = entry.ID
		normalized[i].CreatedAt = now
	}
	if err := s.repo.InsertLines(ctx, db, normalized); err != nil {
		return false, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	return true, nil
}

func (s *Service) FindBySource(ctx context.Context, orgID snowflake.ID, sourceType ledgerdomain.SourceType, sourceID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	return s.repo.FindBySource(ctx, s.db, orgID, sourceType, sourceID)
}

func normalizeDirection(direction ledgerdomain.Direction) (ledgerdomain.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(string(direction))) {
	case string(ledgerdomain.DirectionDebit):
		return ledgerdomain.DirectionDebit, nil
	case string(ledgerdomain.DirectionCredit):
		return ledgerdomain.DirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
