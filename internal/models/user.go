package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user account can hold.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is the credential-store row behind every auth flow. Verification, OTP,
// and reset credentials live directly on the row; SessionVersion backs the
// single-active-session policy.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"type:text;not null"`
	Email        string    `gorm:"type:text;uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:text;not null"`
	Role         string    `gorm:"type:text;not null"`

	EmailVerified              bool `gorm:"not null;default:false"`
	EmailVerifiedAt            *time.Time
	VerificationToken          *string `gorm:"type:text;index"`
	VerificationTokenExpiresAt *time.Time

	OTP          *string    `gorm:"column:otp;type:text"`
	OTPExpiresAt *time.Time `gorm:"column:otp_expires_at"`
	OTPAttempts  int        `gorm:"column:otp_attempts;not null;default:0"`

	PasswordResetToken     *string `gorm:"type:text"`
	PasswordResetExpiresAt *time.Time

	SessionVersion       *string `gorm:"type:text"`
	RegistrationAttempts int     `gorm:"not null;default:0"`

	ProfilePicture *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`

	Teacher *Teacher `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID"`
	Student *Student `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID"`
}
