package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/internal/clock"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	"github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
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
	Repo       domain.Repository
	ChargeRepo chargedomain.Repository
	ChargeSvc  chargedomain.Service
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	chargeRepo chargedomain.Repository
	chargeSvc  chargedomain.Service
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		chargeRepo: p.ChargeRepo,
		chargeSvc:  p.ChargeSvc,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Register records a payment and applies it to its charge. The payment row,
// the charge update, the journal entry and the audit entry commit together.
func (s *Service) Register(ctx context.Context, req domain.RegisterPaymentRequest) (domain.Result, error) {
	if _, ok := orgcontext.OrgIDFromContext(ctx); !ok {
		return domain.Result{}, domain.ErrInvalidOrganization
	}
	chargeID, err := parseID(req.ChargeID)
	if err != nil {
		return domain.Result{}, err
	}
	method := domain.Method(strings.ToLower(strings.TrimSpace(string(req.Method))))
	if !method.Valid() {
		return domain.Result{}, domain.ErrInvalidMethod
	}
	if !req.Amount.IsPositive() {
		return domain.Result{}, domain.ErrInvalidAmount
	}

	actor := orgcontext.ActorFromContext(ctx)
	var payment *domain.Payment
	charge, err := s.chargeSvc.Mutate(ctx, chargeID, "payment.register", func(tx *gorm.DB, charge *chargedomain.Charge) error {
		now := s.clock.Now()
		params := domain.NewPaymentParams{
			ID:         s.genID.Generate(),
			Amount:     req.Amount,
			Method:     method,
			Reference:  req.Reference,
			Notes:      req.Notes,
			RecordedBy: actor,
		}
		if req.PaidAt != nil {
			params.PaidAt = *req.PaidAt
		}

		var err error
		payment, err = domain.NewPayment(charge, params, now)
		if err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}
		if _, err := s.ledgerSvc.Post(ctx, tx, ledgerdomain.Posting{
			OrgID:      payment.OrgID,
			SourceType: ledgerdomain.SourceTypePayment,
			SourceID:   payment.ID,
			OccurredAt: payment.PaidAt,
			Lines: ledgerdomain.Transfer(
				ledgerdomain.AccountCodeCash,
				ledgerdomain.AccountCodeAccountsReceivable,
				payment.Amount,
			),
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, payment, "payment.registered", map[string]any{
			"charge_id":      charge.ID.String(),
			"amount":         payment.Amount.String(),
			"method":         string(payment.Method),
			"receipt_number": payment.ReceiptNumber,
			"charge_status":  string(charge.Status),
		})
	})
	if err != nil {
		return domain.Result{}, err
	}

	s.obsMetrics.RecordPaymentRegistered(ctx, string(payment.Method))
	s.log.Info("payment registered",
		zap.String("payment_id", payment.ID.String()),
		zap.String("charge_id", charge.ID.String()),
		zap.String("amount", payment.Amount.String()),
		zap.String("charge_status", string(charge.Status)),
	)
	return domain.Result{Payment: *payment, Charge: charge}, nil
}

// Cancel voids a payment and reverses its amount on the charge. Invoiced
// payments must have their invoice reversed first.
func (s *Service) Cancel(ctx context.Context, req domain.CancelPaymentRequest) (domain.Result, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Result{}, domain.ErrInvalidOrganization
	}
	paymentID, err := parseID(req.ID)
	if err != nil {
		return domain.Result{}, err
	}
	existing, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return domain.Result{}, err
	}
	if existing == nil {
		return domain.Result{}, domain.ErrNotFound
	}

	actor := orgcontext.ActorFromContext(ctx)
	var payment *domain.Payment
	charge, err := s.chargeSvc.Mutate(ctx, existing.ChargeID, "payment.cancel", func(tx *gorm.DB, charge *chargedomain.Charge) error {
		now := s.clock.Now()
		var err error
		payment, err = s.repo.FindByID(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrNotFound
		}

		prev := payment.State()
		if err := payment.Cancel(charge, req.Reason, actor, now); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, payment, prev); err != nil {
			return err
		}
		if _, err := s.ledgerSvc.Post(ctx, tx, ledgerdomain.Posting{
			OrgID:      payment.OrgID,
			SourceType: ledgerdomain.SourceTypePaymentReversal,
			SourceID:   payment.ID,
			OccurredAt: now,
			Lines: ledgerdomain.Transfer(
				ledgerdomain.AccountCodeAccountsReceivable,
				ledgerdomain.AccountCodeCash,
				payment.Amount,
			),
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, payment, "payment.cancelled", map[string]any{
			"charge_id":     charge.ID.String(),
			"amount":        payment.Amount.String(),
			"reason":        payment.CancelReason,
			"charge_status": string(charge.Status),
		})
	})
	if err != nil {
		return domain.Result{}, err
	}

	s.obsMetrics.RecordPaymentCancelled(ctx, string(payment.Method))
	s.log.Info("payment cancelled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("charge_id", charge.ID.String()),
		zap.String("charge_status", string(charge.Status)),
	)
	return domain.Result{Payment: *payment, Charge: charge}, nil
}

func (s *Service) MarkInvoiced(ctx context.Context, req domain.MarkInvoicedRequest) (domain.Payment, error) {
	return s.mutate(ctx, req.ID, "payment.invoiced", func(p *domain.Payment) (map[string]any, error) {
		if err := p.MarkInvoiced(req.InvoiceID, req.Refs, s.clock.Now()); err != nil {
			return nil, err
		}
		return map[string]any{"invoice_id": p.InvoiceID}, nil
	})
}

func (s *Service) ReverseInvoice(ctx context.Context, id string) (domain.Payment, error) {
	return s.mutate(ctx, id, "payment.invoice_reversed", func(p *domain.Payment) (map[string]any, error) {
		invoiceID := p.InvoiceID
		if err := p.ReverseInvoice(s.clock.Now()); err != nil {
			return nil, err
		}
		return map[string]any{"invoice_id": invoiceID}, nil
	})
}

func (s *Service) Get(ctx context.Context, id string) (domain.Payment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Payment{}, domain.ErrInvalidOrganization
	}
	paymentID, err := parseID(id)
	if err != nil {
		return domain.Payment{}, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *payment, nil
}

func (s *Service) ListByCharge(ctx context.Context, chargeID string) ([]domain.Payment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(chargeID)
	if err != nil {
		return nil, err
	}
	charge, err := s.chargeRepo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, chargedomain.ErrNotFound
	}

	items, err := s.repo.ListByCharges(ctx, s.db, orgID, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return payments, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListPaymentResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{Limit: req.Limit()}
	if strings.TrimSpace(req.StudentID) != "" {
		id, err := parseID(req.StudentID)
		if err != nil {
			return domain.ListPaymentResponse{}, err
		}
		filter.StudentID = id
	}
	if strings.TrimSpace(req.ChargeID) != "" {
		id, err := parseID(req.ChargeID)
		if err != nil {
			return domain.ListPaymentResponse{}, err
		}
		filter.ChargeID = id
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListPaymentResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}
	items, pageInfo := pagination.Page(items, filter.Limit, func(p *domain.Payment) pagination.Cursor {
		return pagination.CursorFor(p.ID.String(), p.CreatedAt)
	})

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return domain.ListPaymentResponse{PageInfo: pageInfo, Payments: payments}, nil
}

// mutate applies fn to a payment that does not touch its charge.
func (s *Service) mutate(ctx context.Context, id, action string, fn func(*domain.Payment) (map[string]any, error)) (domain.Payment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Payment{}, domain.ErrInvalidOrganization
	}
	paymentID, err := parseID(id)
	if err != nil {
		return domain.Payment{}, err
	}

	var payment *domain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.repo.FindByID(ctx, tx, orgID, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrNotFound
		}

		prev := payment.State()
		metadata, err := fn(payment)
		if err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, payment, prev); err != nil {
			return err
		}
		return s.audit(ctx, tx, payment, action, metadata)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return *payment, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, payment *domain.Payment, action string, metadata map[string]any) error {
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		OrgID:      payment.OrgID,
		Action:     action,
		TargetType: "payment",
		TargetID:   payment.ID,
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
