package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEntry returns false when an entry for the same source already exists.
	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	InsertLines(ctx context.Context, db *gorm.DB, lines []LedgerEntryLine) error
	FindBySource(ctx context.Context, db *gorm.DB, orgID snowflake.ID, sourceType SourceType, sourceID snowflake.ID) (*LedgerEntry, error)
}

type Service interface {
	// Post journals posting using db, which should be the caller's open
	// transaction. Re-posting the same source is a no-op that returns false.
	Post(ctx context.Context, db *gorm.DB, posting Posting) (bool, error)
	FindBySource(ctx context.Context, orgID snowflake.ID, sourceType SourceType, sourceID snowflake.ID) (*LedgerEntry, error)
}
