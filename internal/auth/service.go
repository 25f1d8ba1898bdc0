package auth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"schoold/internal/bus"
	"schoold/internal/crypto"
	"schoold/internal/mail"
	"schoold/internal/models"
)

const (
	maxRegistrationAttempts = 3
	maxOTPAttempts          = 5

	verificationTokenTTL = 24 * time.Hour
	inviteTokenTTL       = 7 * 24 * time.Hour
	otpTTL               = 10 * time.Minute
	otpCooldown          = 60 * time.Second
	resetTokenTTL        = 15 * time.Minute
)

// Publisher is the fire-and-forget event sink. Failures are swallowed.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Identity is the authenticated principal returned by login and refresh.
type Identity struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	SessionVersion string    `json:"-"`
}

// Service is the auth orchestrator: registration, verification, login,
// password reset, and teacher approval run through here.
type Service struct {
	store  Store
	mailer mail.Mailer
	pub    Publisher
	appURL string
	log    zerolog.Logger
}

// NewService wires the orchestrator. pub may be nil when no bus is configured.
func NewService(store Store, mailer mail.Mailer, pub Publisher, appURL string, log zerolog.Logger) *Service {
	return &Service{store: store, mailer: mailer, pub: pub, appURL: appURL, log: log}
}

// Register creates or retries an account. Unverified accounts may retry up to
// three times; a verified email can never re-register.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*models.User, error) {
	email = normalizeEmail(email)

	existing, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if existing != nil {
		return s.retryRegistration(ctx, existing, name, password, role)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	verifyToken, err := crypto.NewToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)

	u := &models.User{
		Name:                       name,
		Email:                      email,
		PasswordHash:               hash,
		Role:                       role,
		VerificationToken:          &verifyToken,
		VerificationTokenExpiresAt: &expires,
		RegistrationAttempts:       1,
	}

	if role == models.RoleTeacher {
		// Teacher verification email waits for admin approval.
		if err := s.store.CreateUserWithTeacher(ctx, u, false); err != nil {
			return nil, fmt.Errorf("create teacher account: %w", err)
		}
	} else {
		if err := s.store.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		s.sendVerification(ctx, email, verifyToken)
	}

	s.publish(ctx, bus.SubjectUserSignup, map[string]any{
		"type":    "user_signup",
		"user_id": u.ID,
		"role":    u.Role,
		"email":   u.Email,
		"name":    u.Name,
	})

	return u, nil
}

func (s *Service) retryRegistration(ctx context.Context, u *models.User, name, password, role string) (*models.User, error) {
	if u.EmailVerified {
		return nil, ErrAlreadyRegistered
	}
	if u.RegistrationAttempts >= maxRegistrationAttempts {
		return nil, ErrTooManyAttempts
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	verifyToken, err := crypto.NewToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)

	u.Name = name
	u.PasswordHash = hash
	u.Role = role
	u.VerificationToken = &verifyToken
	u.VerificationTokenExpiresAt = &expires
	u.EmailVerified = false
	u.EmailVerifiedAt = nil
	u.RegistrationAttempts++

	if err := s.store.OverwriteRegistration(ctx, u, role == models.RoleTeacher); err != nil {
		return nil, fmt.Errorf("retry registration: %w", err)
	}

	if role != models.RoleTeacher {
		s.sendVerification(ctx, u.Email, verifyToken)
	}
	return u, nil
}

// VerifyEmail consumes a verification token. Success forgives prior
// registration attempts.
func (s *Service) VerifyEmail(ctx context.Context, tok string) error {
	u, err := s.store.UserByVerificationToken(ctx, tok)
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	if u == nil {
		return ErrInvalidOrExpired
	}
	return s.store.MarkVerified(ctx, u.ID)
}

// ApproveTeacher activates a pending teacher profile and, if the account never
// verified its email, sends the deferred verification message.
func (s *Service) ApproveTeacher(ctx context.Context, userID uuid.UUID) error {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || u.Role != models.RoleTeacher {
		return ErrNotFound
	}
	if err := s.store.ActivateTeacher(ctx, userID); err != nil {
		return err
	}
	if !u.EmailVerified && u.VerificationToken != nil {
		s.sendVerification(ctx, u.Email, *u.VerificationToken)
	}
	return nil
}

// RejectTeacher removes the profile row only; the user row stays so the same
// email can register again from scratch.
func (s *Service) RejectTeacher(ctx context.Context, userID uuid.UUID) error {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || u.Role != models.RoleTeacher {
		return ErrNotFound
	}
	return s.store.DeleteTeacher(ctx, userID)
}

// PendingTeachers lists accounts waiting for approval.
func (s *Service) PendingTeachers(ctx context.Context) ([]PendingTeacher, error) {
	return s.store.PendingTeachers(ctx)
}

// InviteStudent creates a student account with an unusable temporary password
// and a 7-day setup token, plus the class/section placement.
func (s *Service) InviteStudent(ctx context.Context, name, email string, rollNumber int, classID, sectionID uuid.UUID) (uuid.UUID, error) {
	u, setupToken, err := s.buildInvite(ctx, name, email, models.RoleStudent)
	if err != nil {
		return uuid.Nil, err
	}
	student := &models.Student{RollNumber: rollNumber, ClassID: classID, SectionID: sectionID}
	if err := s.store.CreateUserWithStudent(ctx, u, student); err != nil {
		return uuid.Nil, fmt.Errorf("create student: %w", err)
	}
	s.sendVerification(ctx, u.Email, setupToken)
	return u.ID, nil
}

// InviteTeacher creates an immediately active teacher account; invited
// teachers skip the approval queue.
func (s *Service) InviteTeacher(ctx context.Context, name, email string) (uuid.UUID, error) {
	u, setupToken, err := s.buildInvite(ctx, name, email, models.RoleTeacher)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.store.CreateUserWithTeacher(ctx, u, true); err != nil {
		return uuid.Nil, fmt.Errorf("create teacher: %w", err)
	}
	s.sendVerification(ctx, u.Email, setupToken)
	return u.ID, nil
}

func (s *Service) buildInvite(ctx context.Context, name, email, role string) (*models.User, string, error) {
	email = normalizeEmail(email)
	existing, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrEmailExists
	}

	tempPassword, err := crypto.NewToken()
	if err != nil {
		return nil, "", err
	}
	hash, err := crypto.HashPassword(tempPassword)
	if err != nil {
		return nil, "", err
	}
	setupToken, err := crypto.NewToken()
	if err != nil {
		return nil, "", err
	}
	expires := time.Now().UTC().Add(inviteTokenTTL)

	return &models.User{
		Name:                       name,
		Email:                      email,
		PasswordHash:               hash,
		Role:                       role,
		VerificationToken:          &setupToken,
		VerificationTokenExpiresAt: &expires,
	}, setupToken, nil
}

// CompleteSetup lets an invited user set their real password via the shared
// verification-token field.
func (s *Service) CompleteSetup(ctx context.Context, tok, newPassword string) error {
	u, err := s.store.UserByVerificationToken(ctx, tok)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrInvalidOrExpired
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.SetPasswordAndVerify(ctx, u.ID, hash)
}

// Login authenticates and rotates the session version, superseding every
// previously issued access token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (Identity, error) {
	u, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Identity{}, err
	}
	if u == nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !u.EmailVerified {
		return Identity{}, ErrEmailNotVerified
	}
	if u.Role == models.RoleTeacher {
		teacher, err := s.store.TeacherByUserID(ctx, u.ID)
		if err != nil {
			return Identity{}, err
		}
		if teacher == nil || !teacher.IsActive {
			return Identity{}, ErrPendingApproval
		}
	}
	if !crypto.CheckPassword(u.PasswordHash, password) {
		return Identity{}, ErrInvalidCredentials
	}

	version, err := crypto.NewSessionVersion()
	if err != nil {
		return Identity{}, err
	}
	// Best-effort by policy: a failed write keeps the previous version valid
	// rather than blocking the login.
	if err := s.store.SetSessionVersion(ctx, u.ID, version); err != nil {
		s.log.Error().Err(err).Str("email", u.Email).Msg("persist session version")
	}

	return Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, SessionVersion: version}, nil
}

// Refresh resolves the live identity for a verified refresh claim. claimedSV
// is compared against the stored session version only when the refresh token
// carried one.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID, claimedSV string) (Identity, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	if u == nil {
		return Identity{}, ErrNotFound
	}
	if claimedSV != "" && u.SessionVersion != nil && claimedSV != *u.SessionVersion {
		return Identity{}, ErrSessionSuperseded
	}
	id := Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
	if u.SessionVersion != nil {
		id.SessionVersion = *u.SessionVersion
	}
	return id, nil
}

// SessionVersion exposes the hot-path read for the session guard.
func (s *Service) SessionVersion(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.store.SessionVersion(ctx, userID)
}

// RequestReset issues a password-reset OTP. Unknown emails return nil so the
// endpoint cannot be used for account enumeration. Requests inside the 60s
// cooldown return a RateLimitedError without touching the stored OTP.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	u, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}

	if u.OTPExpiresAt != nil {
		// OTPs carry a fixed TTL, so issuance time is expiry minus TTL.
		issuedAt := u.OTPExpiresAt.Add(-otpTTL)
		since := time.Since(issuedAt)
		if since >= 0 && since < otpCooldown {
			retry := int(math.Ceil((otpCooldown - since).Seconds()))
			return &RateLimitedError{RetryAfter: retry}
		}
	}

	otp, err := crypto.NewOTP()
	if err != nil {
		return err
	}
	expires := time.Now().UTC().Add(otpTTL)
	if err := s.store.SetOTP(ctx, u.ID, otp, expires); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	subject, body := mail.OTP(otp)
	if err := s.mailer.Send(ctx, u.Email, subject, body); err != nil {
		s.log.Error().Err(err).Str("email", u.Email).Msg("send otp email")
	}
	return nil
}

// VerifyOTP exchanges a correct OTP for a reset token. Five failed attempts
// lock the issued OTP out entirely until a new one is requested.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	u, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrInvalidOrExpiredOTP
	}
	if u.OTPAttempts >= maxOTPAttempts {
		return "", ErrTooManyAttempts
	}

	resetToken, err := crypto.NewToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(resetTokenTTL)

	ok, err := s.store.ConsumeOTP(ctx, u.ID, otp, resetToken, expires)
	if err != nil {
		return "", fmt.Errorf("consume otp: %w", err)
	}
	if !ok {
		attempts, err := s.store.IncrementOTPAttempts(ctx, u.ID)
		if err != nil {
			return "", err
		}
		if attempts >= maxOTPAttempts {
			return "", ErrTooManyAttempts
		}
		return "", ErrInvalidOrExpiredOTP
	}

	return resetToken, nil
}

// ResetPassword consumes the reset token and installs the new password.
func (s *Service) ResetPassword(ctx context.Context, email, resetToken, newPassword string) error {
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	ok, err := s.store.ConsumeResetToken(ctx, normalizeEmail(email), resetToken, hash)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpired
	}

	subject, body := mail.ResetConfirmation()
	if err := s.mailer.Send(ctx, normalizeEmail(email), subject, body); err != nil {
		s.log.Error().Err(err).Msg("send reset confirmation")
	}
	return nil
}

// UserByID resolves a current identity, e.g. for profile endpoints.
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if u == nil {
		return Identity{}, ErrNotFound
	}
	ident := Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
	if u.SessionVersion != nil {
		ident.SessionVersion = *u.SessionVersion
	}
	return ident, nil
}

func (s *Service) sendVerification(ctx context.Context, email, tok string) {
	link := fmt.Sprintf("%s/complete-setup?token=%s", s.appURL, tok)
	subject, body := mail.Verification(link)
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("send verification email")
	}
}

func (s *Service) publish(ctx context.Context, subject string, payload map[string]any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, subject, payload); err != nil {
		s.log.Debug().Err(err).Str("subject", subject).Msg("publish event")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
