package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Student owns charges. Only identity and enrollment data live here.
type Student struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"school_id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	Email      string       `gorm:"type:text" json:"email,omitempty"`
	Active     bool         `gorm:"not null;default:true" json:"active"`
	EnrolledAt time.Time    `gorm:"not null" json:"enrolled_at"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Student) TableName() string { return "students" }

// BillableFor reports whether the student is billed for a period ending at
// periodEnd. Mid-period enrollments are billed in full.
func (s Student) BillableFor(periodEnd time.Time) bool {
	return s.Active && !s.EnrolledAt.After(periodEnd)
}
