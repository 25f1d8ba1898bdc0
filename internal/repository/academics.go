package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoold/internal/auth"
	"schoold/internal/models"
)

// TeacherIDForUser resolves the teacher profile id owning domain records.
func (s *Store) TeacherIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var t models.Teacher
	err := s.orm.WithContext(ctx).Where("user_id = ?", userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, auth.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

// StudentIDForUser resolves the student profile id owning submissions.
func (s *Store) StudentIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var st models.Student
	err := s.orm.WithContext(ctx).Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, auth.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return st.ID, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	return s.orm.WithContext(ctx).Create(a).Error
}

func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	return s.orm.WithContext(ctx).Create(sub).Error
}

func (s *Store) CreateModule(ctx context.Context, m *models.Module) error {
	return s.orm.WithContext(ctx).Create(m).Error
}

func (s *Store) ModuleByID(ctx context.Context, id uuid.UUID) (*models.Module, error) {
	var m models.Module
	err := s.orm.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) DeleteModule(ctx context.Context, id uuid.UUID) error {
	res := s.orm.WithContext(ctx).Delete(&models.Module{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return auth.ErrNotFound
	}
	return nil
}
