package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"schoold/internal/auth"
	"schoold/internal/db"
	"schoold/internal/models"
)

// Store is the concrete credential store: GORM for model CRUD and
// transactional multi-row flows, pgx for atomic single-statement updates and
// the per-request session-version read.
type Store struct {
	orm  *gorm.DB
	pool *pgxpool.Pool
}

var _ auth.Store = (*Store)(nil)

// NewStore wires the store over an established ORM session and pgx pool.
func NewStore(orm *gorm.DB, pool *pgxpool.Pool) *Store {
	return &Store{orm: orm, pool: pool}
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.orm.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.orm.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserByVerificationToken(ctx context.Context, tok string) (*models.User, error) {
	var u models.User
	err := s.orm.WithContext(ctx).
		Where("verification_token = ? AND verification_token_expires_at > NOW()", tok).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.orm.WithContext(ctx).Create(u).Error
}

func (s *Store) CreateUserWithTeacher(ctx context.Context, u *models.User, active bool) error {
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		teacher := models.Teacher{UserID: u.ID, IsActive: active}
		return tx.Create(&teacher).Error
	})
}

func (s *Store) CreateUserWithStudent(ctx context.Context, u *models.User, student *models.Student) error {
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		student.UserID = u.ID
		return tx.Create(student).Error
	})
}

func (s *Store) OverwriteRegistration(ctx context.Context, u *models.User, recreateTeacher bool) error {
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"name":                          u.Name,
			"password_hash":                 u.PasswordHash,
			"role":                          u.Role,
			"verification_token":            u.VerificationToken,
			"verification_token_expires_at": u.VerificationTokenExpiresAt,
			"email_verified":                false,
			"email_verified_at":             nil,
			"registration_attempts":         u.RegistrationAttempts,
		}
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
			return err
		}

		// A stale profile from an earlier teacher attempt must not survive a
		// role change, and a teacher retry starts pending again.
		if err := tx.Where("user_id = ?", u.ID).Delete(&models.Teacher{}).Error; err != nil {
			return err
		}
		if recreateTeacher {
			teacher := models.Teacher{UserID: u.ID, IsActive: false}
			return tx.Create(&teacher).Error
		}
		return nil
	})
}

func (s *Store) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	return s.orm.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"email_verified":                true,
		"email_verified_at":             time.Now().UTC(),
		"verification_token":            nil,
		"verification_token_expires_at": nil,
		"registration_attempts":         0,
	}).Error
}

func (s *Store) SetPasswordAndVerify(ctx context.Context, userID uuid.UUID, hash string) error {
	return s.orm.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash":                 hash,
		"email_verified":                true,
		"email_verified_at":             time.Now().UTC(),
		"verification_token":            nil,
		"verification_token_expires_at": nil,
	}).Error
}

func (s *Store) SetSessionVersion(ctx context.Context, userID uuid.UUID, version string) error {
	_, err := db.Exec(ctx, s.pool,
		`UPDATE users SET session_version = $1, updated_at = NOW() WHERE id = $2`,
		version, userID)
	return err
}

func (s *Store) SessionVersion(ctx context.Context, userID uuid.UUID) (string, error) {
	var version *string
	err := db.Get(ctx, s.pool, &version,
		`SELECT session_version FROM users WHERE id = $1`, userID)
	if err != nil {
		return "", err
	}
	if version == nil {
		return "", nil
	}
	return *version, nil
}

func (s *Store) SetOTP(ctx context.Context, userID uuid.UUID, otp string, expiresAt time.Time) error {
	return s.orm.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"otp":            otp,
		"otp_expires_at": expiresAt,
		"otp_attempts":   0,
	}).Error
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, userID uuid.UUID) (int, error) {
	var attempts int
	err := db.Get(ctx, s.pool, &attempts,
		`UPDATE users SET otp_attempts = COALESCE(otp_attempts, 0) + 1
		 WHERE id = $1
		 RETURNING otp_attempts`, userID)
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *Store) ConsumeOTP(ctx context.Context, userID uuid.UUID, otp, resetToken string, expiresAt time.Time) (bool, error) {
	// Single conditional statement: concurrent correct submissions race on
	// the same row and only one can match.
	tag, err := db.Exec(ctx, s.pool,
		`UPDATE users
		 SET otp = NULL, otp_expires_at = NULL, otp_attempts = 0,
		     password_reset_token = $1, password_reset_expires_at = $2
		 WHERE id = $3 AND otp = $4 AND otp_expires_at > NOW()`,
		resetToken, expiresAt, userID, otp)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, email, resetToken, hash string) (bool, error) {
	tag, err := db.Exec(ctx, s.pool,
		`UPDATE users
		 SET password_hash = $1, password_reset_token = NULL, password_reset_expires_at = NULL
		 WHERE email = $2 AND password_reset_token = $3 AND password_reset_expires_at > NOW()`,
		hash, email, resetToken)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) TeacherByUserID(ctx context.Context, userID uuid.UUID) (*models.Teacher, error) {
	var teacher models.Teacher
	err := s.orm.WithContext(ctx).Where("user_id = ?", userID).First(&teacher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &teacher, nil
}

func (s *Store) ActivateTeacher(ctx context.Context, userID uuid.UUID) error {
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Teacher{}).Where("user_id = ?", userID).Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return auth.ErrNotFound
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Update("registration_attempts", 0).Error
	})
}

func (s *Store) DeleteTeacher(ctx context.Context, userID uuid.UUID) error {
	res := s.orm.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Teacher{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) PendingTeachers(ctx context.Context) ([]auth.PendingTeacher, error) {
	var rows []auth.PendingTeacher
	err := db.Select(ctx, s.pool, &rows,
		`SELECT u.id AS user_id, u.name, u.email, u.created_at AS registered_at
		 FROM teachers t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.is_active = FALSE
		 ORDER BY u.created_at ASC`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
