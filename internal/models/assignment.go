package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Assignment is homework published by a teacher. Attachments is an ordered
// JSONB array of blob-store paths; paths are appended only after the client
// confirms a successful upload.
type Assignment struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TeacherID   uuid.UUID `gorm:"type:uuid;not null;index"`
	SubjectID   uuid.UUID `gorm:"type:uuid;not null"`
	ClassID     uuid.UUID `gorm:"type:uuid;not null;index"`
	SectionID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Title       string    `gorm:"type:text;not null"`
	Description *string   `gorm:"type:text"`
	DueAt       time.Time `gorm:"type:timestamptz;not null"`
	Status      string    `gorm:"type:text;not null;default:published"`

	Attachments datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'::jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`

	Teacher Teacher `gorm:"constraint:OnDelete:CASCADE;foreignKey:TeacherID;references:ID"`
}
