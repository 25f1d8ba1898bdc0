package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is the 1:1 profile for role=student users, carrying class/section
// placement. Created on invite only.
type Student struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	RollNumber int       `gorm:"not null"`
	ClassID    uuid.UUID `gorm:"type:uuid;not null;index"`
	SectionID  uuid.UUID `gorm:"type:uuid;not null;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}
