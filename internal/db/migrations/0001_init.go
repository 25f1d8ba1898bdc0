package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

// The structs below freeze the schema at migration time; runtime models live
// in internal/models and may evolve in later migrations.

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
}

type Teacher struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	IsActive  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:UserID;references:ID"`
}

type Student struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	RollNumber int       `gorm:"not null"`
	ClassID    uuid.UUID `gorm:"type:uuid;not null;index"`
	SectionID  uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:UserID;references:ID"`
}

type Class struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"type:text;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Section struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"type:text;not null;uniqueIndex:idx_sections_class_name"`
	ClassID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sections_class_name"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Subject struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Code      string    `gorm:"type:text;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Assignment struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TeacherID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	SubjectID   uuid.UUID      `gorm:"type:uuid;not null"`
	ClassID     uuid.UUID      `gorm:"type:uuid;not null;index"`
	SectionID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	Title       string         `gorm:"type:text;not null"`
	Description *string        `gorm:"type:text"`
	DueAt       time.Time      `gorm:"type:timestamptz;not null"`
	Status      string         `gorm:"type:text;not null;default:published"`
	Attachments datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'::jsonb"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Teacher     Teacher        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:TeacherID;references:ID"`
}

type Submission struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AssignmentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_submissions_assignment_student"`
	StudentID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_submissions_assignment_student"`
	Status       string    `gorm:"type:text;not null;default:submitted"`
	Grade        *float64
	MaxGrade     *float64
	Feedback     *string `gorm:"type:text"`
	GradedAt     *time.Time
	Attachments  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'::jsonb"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Assignment   Assignment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:AssignmentID;references:ID"`
	Student      Student        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:StudentID;references:ID"`
}

type Module struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title       string         `gorm:"type:text;not null"`
	Description *string        `gorm:"type:text"`
	SubjectID   uuid.UUID      `gorm:"type:uuid;not null"`
	ClassID     uuid.UUID      `gorm:"type:uuid;not null;index"`
	SectionID   *uuid.UUID     `gorm:"type:uuid;index"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;not null"`
	Attachments datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'::jsonb"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&User{},
		&Teacher{},
		&Student{},
		&Class{},
		&Section{},
		&Subject{},
		&Assignment{},
		&Submission{},
		&Module{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&Teacher{}, "User"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Student{}, "User"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Submission{}, "Assignment"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&Submission{}, "Student"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&Module{},
		&Submission{},
		&Assignment{},
		&Subject{},
		&Section{},
		&Class{},
		&Student{},
		&Teacher{},
		&User{},
	)
}
