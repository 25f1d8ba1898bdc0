package models

import (
	"time"

	"github.com/google/uuid"
)

// Teacher is the 1:1 profile for role=teacher users. IsActive=false means
// pending admin approval and gates login; rejection deletes the row so the
// same email can register again.
type Teacher struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	IsActive bool      `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}
