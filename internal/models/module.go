package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Module is a learning-material record. Its attachments can be large (video),
// so deleting a module removes the whole blob-store prefix for the record in
// one call rather than per-path deletes.
type Module struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title       string     `gorm:"type:text;not null"`
	Description *string    `gorm:"type:text"`
	SubjectID   uuid.UUID  `gorm:"type:uuid;not null"`
	ClassID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	SectionID   *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;not null"`

	Attachments datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'::jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}
