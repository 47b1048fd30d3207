package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Direction represents debit or credit postings.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type SourceType string

const (
	SourceTypePayment         SourceType = "payment"          // payment received against a charge
	SourceTypePaymentReversal SourceType = "payment_reversal" // payment cancelled
)

type AccountCode string

const (
	AccountCodeCash               AccountCode = "cash"
	AccountCodeAccountsReceivable AccountCode = "accounts_receivable"
)

// LedgerEntry is the immutable header for one money movement. A source
// produces at most one entry.
type LedgerEntry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:1" json:"school_id"`
	SourceType SourceType   `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_source,priority:2" json:"source_type"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:3" json:"source_id"`
	OccurredAt time.Time    `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`

	Lines []LedgerEntryLine `gorm:"-" json:"lines,omitempty"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	LedgerEntryID snowflake.ID    `gorm:"not null;index" json:"ledger_entry_id"`
	AccountCode   AccountCode     `gorm:"type:text;not null" json:"account_code"`
	Direction     Direction       `gorm:"type:text;not null" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// Posting is a request to journal one money movement.
type Posting struct {
	OrgID      snowflake.ID
	SourceType SourceType
	SourceID   snowflake.ID
	OccurredAt time.Time
	Lines      []LedgerEntryLine
}

// Transfer builds the two balanced lines moving amount from credit to debit.
func Transfer(debit, credit AccountCode, amount decimal.Decimal) []LedgerEntryLine {
	return []LedgerEntryLine{
		{AccountCode: debit, Direction: DirectionDebit, Amount: amount},
		{AccountCode: credit, Direction: DirectionCredit, Amount: amount},
	}
}
