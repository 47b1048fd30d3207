// Package testutil builds in-memory databases and contexts for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	"github.com/smallbiznis/bursar/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	statementdomain "github.com/smallbiznis/bursar/internal/statement/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens an isolated in-memory SQLite database with every ledger table.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&conceptdomain.PaymentConcept{},
		&studentdomain.Student{},
		&chargedomain.Charge{},
		&paymentdomain.Payment{},
		&statementdomain.AccountStatement{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// NewNode returns a snowflake node for tests.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SchoolContext returns a context scoped to orgID and acting as actor.
func SchoolContext(orgID snowflake.ID, actor string) context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), orgID)
	if actor != "" {
		ctx = orgcontext.WithActor(ctx, actor)
	}
	return ctx
}

// Date builds a UTC midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
