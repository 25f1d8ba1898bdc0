package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Submission is a student's answer to an assignment, with its own attachment
// list. A submission-created event is published best-effort for the teacher
// notification stream.
type Submission struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AssignmentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_submissions_assignment_student"`
	StudentID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_submissions_assignment_student"`
	Status       string    `gorm:"type:text;not null;default:submitted"`
	Grade        *float64
	MaxGrade     *float64
	Feedback     *string `gorm:"type:text"`
	GradedAt     *time.Time

	Attachments datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'::jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`

	Assignment Assignment `gorm:"constraint:OnDelete:CASCADE;foreignKey:AssignmentID;references:ID"`
	Student    Student    `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:ID"`
}
