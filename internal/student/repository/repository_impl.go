package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/student/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, student *domain.Student) error {
	return db.WithContext(ctx).Create(student).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, student *domain.Student) error {
	return db.WithContext(ctx).
		Model(&domain.Student{}).
		Where("org_id = ? AND id = ?", student.OrgID, student.ID).
		Select("name", "email", "active", "updated_at").
		Updates(student).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Student, error) {
	var student domain.Student
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListStudentFilter) ([]*domain.Student, error) {
	var students []*domain.Student
	stmt := db.WithContext(ctx).
		Model(&domain.Student{}).
		Where("org_id = ?", orgID)
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	if filter.Cursor != nil {
		createdAt, id, err := filter.Cursor.Key()
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&students).Error
	if err != nil {
		return nil, err
	}
	return students, nil
}

func (r *repo) ListBillable(ctx context.Context, db *gorm.DB, orgID snowflake.ID, periodEnd time.Time) ([]*domain.Student, error) {
	var students []*domain.Student
	err := db.WithContext(ctx).
		Where("org_id = ? AND active = ? AND enrolled_at <= ?", orgID, true, periodEnd).
		Order("id asc").
		Find(&students).Error
	if err != nil {
		return nil, err
	}
	return students, nil
}
