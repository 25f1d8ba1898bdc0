package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"schoold/internal/models"
)

// PendingTeacher is a row in the admin approval queue.
type PendingTeacher struct {
	UserID       uuid.UUID `json:"userId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Store is the credential-store contract the orchestrator runs against.
// Lookups return (nil, nil) when no row matches; token and OTP lookups apply
// their expiry filter store-side so expired state is never acted on.
type Store interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByVerificationToken(ctx context.Context, token string) (*models.User, error)

	CreateUser(ctx context.Context, u *models.User) error
	// CreateUserWithTeacher and CreateUserWithStudent create the user row and
	// its profile in one transaction.
	CreateUserWithTeacher(ctx context.Context, u *models.User, active bool) error
	CreateUserWithStudent(ctx context.Context, u *models.User, s *models.Student) error

	// OverwriteRegistration replaces name/password/role and verification
	// credentials on an unverified row, bumps the attempt counter, and
	// deletes/recreates the teacher profile as needed, all in one transaction.
	OverwriteRegistration(ctx context.Context, u *models.User, recreateTeacher bool) error

	// MarkVerified sets the verified flags, clears verification credentials,
	// and forgives prior registration attempts.
	MarkVerified(ctx context.Context, userID uuid.UUID) error
	// SetPasswordAndVerify stores a new hash and marks the account verified,
	// clearing the shared verification token (invite setup path).
	SetPasswordAndVerify(ctx context.Context, userID uuid.UUID, hash string) error

	SetSessionVersion(ctx context.Context, userID uuid.UUID, version string) error
	// SessionVersion is the per-request hot-path read backing the session guard.
	SessionVersion(ctx context.Context, userID uuid.UUID) (string, error)

	SetOTP(ctx context.Context, userID uuid.UUID, otp string, expiresAt time.Time) error
	// IncrementOTPAttempts applies an atomic single-statement increment and
	// returns the new count.
	IncrementOTPAttempts(ctx context.Context, userID uuid.UUID) (int, error)
	// ConsumeOTP atomically clears a matching unexpired OTP and installs the
	// reset token; it reports false when the OTP no longer matches, so two
	// concurrent correct submissions cannot both succeed.
	ConsumeOTP(ctx context.Context, userID uuid.UUID, otp, resetToken string, expiresAt time.Time) (bool, error)
	// ConsumeResetToken atomically clears a matching unexpired reset token and
	// stores the new password hash; false when the tuple no longer matches.
	ConsumeResetToken(ctx context.Context, email, resetToken, hash string) (bool, error)

	TeacherByUserID(ctx context.Context, userID uuid.UUID) (*models.Teacher, error)
	// ActivateTeacher flips is_active and resets the user's registration
	// attempts in one transaction.
	ActivateTeacher(ctx context.Context, userID uuid.UUID) error
	DeleteTeacher(ctx context.Context, userID uuid.UUID) error
	PendingTeachers(ctx context.Context) ([]PendingTeacher, error)
}
