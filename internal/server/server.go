package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/bursar/internal/audit"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	"github.com/smallbiznis/bursar/internal/charge"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/internal/concept"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/ledger"
	"github.com/smallbiznis/bursar/internal/lock"
	"github.com/smallbiznis/bursar/internal/observability"
	obsmiddleware "github.com/smallbiznis/bursar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bursar/internal/observability/tracing"
	"github.com/smallbiznis/bursar/internal/payment"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/internal/statement"
	statementdomain "github.com/smallbiznis/bursar/internal/statement/domain"
	"github.com/smallbiznis/bursar/internal/student"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	ledger.Module,
	lock.Module,
	concept.Module,
	student.Module,
	charge.Module,
	payment.Module,
	statement.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, sd fx.Shutdowner, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	auditSvc     auditdomain.Service
	conceptSvc   conceptdomain.Service
	studentSvc   studentdomain.Service
	chargeSvc    chargedomain.Service
	paymentSvc   paymentdomain.Service
	statementSvc statementdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	AuditSvc     auditdomain.Service
	ConceptSvc   conceptdomain.Service
	StudentSvc   studentdomain.Service
	ChargeSvc    chargedomain.Service
	PaymentSvc   paymentdomain.Service
	StatementSvc statementdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		auditSvc:     p.AuditSvc,
		conceptSvc:   p.ConceptSvc,
		studentSvc:   p.StudentSvc,
		chargeSvc:    p.ChargeSvc,
		paymentSvc:   p.PaymentSvc,
		statementSvc: p.StatementSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(SchoolContext())

	// -------- Concepts --------
	api.POST("/concepts", s.CreateConcept)
	api.GET("/concepts", s.ListConcepts)
	api.GET("/concepts/:id", s.GetConceptByID)
	api.PATCH("/concepts/:id", s.UpdateConcept)
	api.POST("/concepts/:id/deactivate", s.DeactivateConcept)

	// -------- Students --------
	api.POST("/students", s.CreateStudent)
	api.GET("/students", s.ListStudents)
	api.GET("/students/:id", s.GetStudentByID)
	api.POST("/students/:id/deactivate", s.DeactivateStudent)
	api.GET("/students/:id/charges/pending", s.ListPendingCharges)
	api.GET("/students/:id/payments", s.ListStudentPayments)
	api.GET("/students/:id/statement", s.GetStudentStatement)

	// -------- Charges --------
	api.POST("/charges", s.CreateCharge)
	api.GET("/charges", s.ListCharges)
	api.POST("/charges/generate-monthly", s.GenerateMonthlyCharges)
	api.GET("/charges/:id", s.GetChargeByID)
	api.POST("/charges/:id/discount", s.ApplyChargeDiscount)
	api.POST("/charges/:id/cancel", s.CancelCharge)
	api.POST("/charges/:id/reactivate", s.ReactivateCharge)
	api.POST("/charges/:id/extend-due-date", s.ExtendChargeDueDate)
	api.POST("/charges/:id/payments", s.RegisterPayment)
	api.GET("/charges/:id/payments", s.ListChargePayments)

	// -------- Payments --------
	api.GET("/payments/:id", s.GetPaymentByID)
	api.POST("/payments/:id/cancel", s.CancelPayment)
	api.POST("/payments/:id/invoice", s.MarkPaymentInvoiced)
	api.DELETE("/payments/:id/invoice", s.ReversePaymentInvoice)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
