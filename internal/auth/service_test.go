package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"schoold/internal/bus"
	"schoold/internal/models"
)

type memStore struct {
	users    map[uuid.UUID]*models.User
	teachers map[uuid.UUID]*models.Teacher
	students map[uuid.UUID]*models.Student
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]*models.User),
		teachers: make(map[uuid.UUID]*models.Teacher),
		students: make(map[uuid.UUID]*models.Student),
	}
}

func (m *memStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return m.users[id], nil
}

func (m *memStore) UserByVerificationToken(_ context.Context, token string) (*models.User, error) {
	now := time.Now()
	for _, u := range m.users {
		if u.VerificationToken != nil && *u.VerificationToken == token &&
			u.VerificationTokenExpiresAt != nil && u.VerificationTokenExpiresAt.After(now) {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) CreateUserWithTeacher(ctx context.Context, u *models.User, active bool) error {
	if err := m.CreateUser(ctx, u); err != nil {
		return err
	}
	m.teachers[u.ID] = &models.Teacher{ID: uuid.New(), UserID: u.ID, IsActive: active}
	return nil
}

func (m *memStore) CreateUserWithStudent(ctx context.Context, u *models.User, s *models.Student) error {
	if err := m.CreateUser(ctx, u); err != nil {
		return err
	}
	s.UserID = u.ID
	m.students[u.ID] = s
	return nil
}

func (m *memStore) OverwriteRegistration(_ context.Context, u *models.User, recreateTeacher bool) error {
	m.users[u.ID] = u
	delete(m.teachers, u.ID)
	if recreateTeacher {
		m.teachers[u.ID] = &models.Teacher{ID: uuid.New(), UserID: u.ID, IsActive: false}
	}
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, userID uuid.UUID) error {
	u := m.users[userID]
	now := time.Now()
	u.EmailVerified = true
	u.EmailVerifiedAt = &now
	u.VerificationToken = nil
	u.VerificationTokenExpiresAt = nil
	u.RegistrationAttempts = 0
	return nil
}

func (m *memStore) SetPasswordAndVerify(_ context.Context, userID uuid.UUID, hash string) error {
	u := m.users[userID]
	now := time.Now()
	u.PasswordHash = hash
	u.EmailVerified = true
	u.EmailVerifiedAt = &now
	u.VerificationToken = nil
	u.VerificationTokenExpiresAt = nil
	return nil
}

func (m *memStore) SetSessionVersion(_ context.Context, userID uuid.UUID, version string) error {
	m.users[userID].SessionVersion = &version
	return nil
}

func (m *memStore) SessionVersion(_ context.Context, userID uuid.UUID) (string, error) {
	u := m.users[userID]
	if u == nil || u.SessionVersion == nil {
		return "", nil
	}
	return *u.SessionVersion, nil
}

func (m *memStore) SetOTP(_ context.Context, userID uuid.UUID, otp string, expiresAt time.Time) error {
	u := m.users[userID]
	u.OTP = &otp
	u.OTPExpiresAt = &expiresAt
	u.OTPAttempts = 0
	return nil
}

func (m *memStore) IncrementOTPAttempts(_ context.Context, userID uuid.UUID) (int, error) {
	u := m.users[userID]
	u.OTPAttempts++
	return u.OTPAttempts, nil
}

func (m *memStore) ConsumeOTP(_ context.Context, userID uuid.UUID, otp, resetToken string, expiresAt time.Time) (bool, error) {
	u := m.users[userID]
	if u.OTP == nil || *u.OTP != otp || u.OTPExpiresAt == nil || !u.OTPExpiresAt.After(time.Now()) {
		return false, nil
	}
	u.OTP = nil
	u.OTPExpiresAt = nil
	u.OTPAttempts = 0
	u.PasswordResetToken = &resetToken
	u.PasswordResetExpiresAt = &expiresAt
	return true, nil
}

func (m *memStore) ConsumeResetToken(_ context.Context, email, resetToken, hash string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email && u.PasswordResetToken != nil && *u.PasswordResetToken == resetToken &&
			u.PasswordResetExpiresAt != nil && u.PasswordResetExpiresAt.After(time.Now()) {
			u.PasswordHash = hash
			u.PasswordResetToken = nil
			u.PasswordResetExpiresAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) TeacherByUserID(_ context.Context, userID uuid.UUID) (*models.Teacher, error) {
	return m.teachers[userID], nil
}

func (m *memStore) ActivateTeacher(_ context.Context, userID uuid.UUID) error {
	t := m.teachers[userID]
	if t == nil {
		return ErrNotFound
	}
	t.IsActive = true
	m.users[userID].RegistrationAttempts = 0
	return nil
}

func (m *memStore) DeleteTeacher(_ context.Context, userID uuid.UUID) error {
	if m.teachers[userID] == nil {
		return ErrNotFound
	}
	delete(m.teachers, userID)
	return nil
}

func (m *memStore) PendingTeachers(_ context.Context) ([]PendingTeacher, error) {
	var out []PendingTeacher
	for id, t := range m.teachers {
		if t.IsActive {
			continue
		}
		u := m.users[id]
		out = append(out, PendingTeacher{UserID: id, Name: u.Name, Email: u.Email, RegisteredAt: u.CreatedAt})
	}
	return out, nil
}

type recordingMailer struct {
	sent []string
}

func (r *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	r.sent = append(r.sent, fmt.Sprintf("%s: %s", to, subject))
	return nil
}

type recordingPublisher struct {
	subjects []string
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func newTestService() (*Service, *memStore, *recordingMailer, *recordingPublisher) {
	store := newMemStore()
	mailer := &recordingMailer{}
	pub := &recordingPublisher{}
	svc := NewService(store, mailer, pub, "http://app.test", zerolog.Nop())
	return svc, store, mailer, pub
}

func TestRegistrationAttemptCap(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Register(ctx, "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	_, err := svc.Register(ctx, "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent)
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("4th attempt: got %v, want ErrTooManyAttempts", err)
	}
}

func TestVerifiedEmailCannotReRegister(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.VerifyEmail(ctx, *store.users[u.ID].VerificationToken); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Register(ctx, "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("got %v, want ErrAlreadyRegistered", err)
	}
}

func TestVerifyEmailForgivesAttemptsAndPermitsLogin(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	var u *models.User
	var err error
	for i := 0; i < 2; i++ {
		u, err = svc.Register(ctx, "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent)
		if err != nil {
			t.Fatal(err)
		}
	}

	if _, err := svc.Login(ctx, "bea@example.com", "hunter2hunter2"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("login before verify: got %v, want ErrEmailNotVerified", err)
	}

	if err := svc.VerifyEmail(ctx, *store.users[u.ID].VerificationToken); err != nil {
		t.Fatal(err)
	}
	if got := store.users[u.ID].RegistrationAttempts; got != 0 {
		t.Fatalf("registration attempts = %d after verify, want 0", got)
	}

	ident, err := svc.Login(ctx, "bea@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if ident.Role != models.RoleStudent {
		t.Fatalf("role = %q, want student", ident.Role)
	}
}

func TestTeacherApprovalFlow(t *testing.T) {
	svc, store, mailer, _ := newTestService()
	ctx := context.Background()

	amy, err := svc.Register(ctx, "Amy", "amy@example.com", "hunter2hunter2", models.RoleTeacher)
	if err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("teacher registration sent mail early: %v", mailer.sent)
	}

	pending, err := svc.PendingTeachers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].UserID != amy.ID {
		t.Fatalf("pending = %+v, want Amy", pending)
	}

	// Verify first so login hits the approval gate, not the verification gate.
	if err := svc.VerifyEmail(ctx, *store.users[amy.ID].VerificationToken); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "amy@example.com", "hunter2hunter2"); !errors.Is(err, ErrPendingApproval) {
		t.Fatalf("login before approval: got %v, want ErrPendingApproval", err)
	}

	if err := svc.ApproveTeacher(ctx, amy.ID); err != nil {
		t.Fatal(err)
	}
	ident, err := svc.Login(ctx, "amy@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if ident.Role != models.RoleTeacher {
		t.Fatalf("role = %q, want teacher", ident.Role)
	}
}

func TestApproveSendsDeferredVerificationEmail(t *testing.T) {
	svc, _, mailer, _ := newTestService()
	ctx := context.Background()

	amy, err := svc.Register(ctx, "Amy", "amy@example.com", "hunter2hunter2", models.RoleTeacher)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ApproveTeacher(ctx, amy.ID); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("approval of unverified teacher sent %d mails, want 1", len(mailer.sent))
	}
}

func TestRejectTeacherAllowsReRegistration(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	amy, err := svc.Register(ctx, "Amy", "amy@example.com", "hunter2hunter2", models.RoleTeacher)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RejectTeacher(ctx, amy.ID); err != nil {
		t.Fatal(err)
	}
	if store.teachers[amy.ID] != nil {
		t.Fatal("teacher profile survived rejection")
	}
	if store.users[amy.ID] == nil {
		t.Fatal("user row deleted on rejection, should be retained")
	}

	if _, err := svc.Register(ctx, "Amy", "amy@example.com", "hunter2hunter2", models.RoleTeacher); err != nil {
		t.Fatalf("re-registration after rejection: %v", err)
	}
	if store.teachers[amy.ID] == nil || store.teachers[amy.ID].IsActive {
		t.Fatal("re-registration should recreate an inactive teacher profile")
	}
}

func TestLoginRotatesSessionVersion(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.VerifyEmail(ctx, *store.users[u.ID].VerificationToken); err != nil {
		t.Fatal(err)
	}

	first, err := svc.Login(ctx, "bea@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Login(ctx, "bea@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionVersion == second.SessionVersion {
		t.Fatal("session version not rotated on second login")
	}

	live, err := svc.SessionVersion(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if live != second.SessionVersion {
		t.Fatalf("stored version %q, want latest %q", live, second.SessionVersion)
	}
	if _, err := svc.Refresh(ctx, u.ID, first.SessionVersion); !errors.Is(err, ErrSessionSuperseded) {
		t.Fatalf("refresh with stale version: got %v, want ErrSessionSuperseded", err)
	}
	if _, err := svc.Refresh(ctx, u.ID, second.SessionVersion); err != nil {
		t.Fatalf("refresh with live version: %v", err)
	}
}

func registerVerified(t *testing.T, svc *Service, store *memStore, email string) *models.User {
	t.Helper()
	u, err := svc.Register(context.Background(), "Bea", email, "hunter2hunter2", models.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.VerifyEmail(context.Background(), *store.users[u.ID].VerificationToken); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestRequestResetCooldown(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()
	u := registerVerified(t, svc, store, "bea@example.com")

	if err := svc.RequestReset(ctx, "bea@example.com"); err != nil {
		t.Fatal(err)
	}
	firstOTP := *store.users[u.ID].OTP

	err := svc.RequestReset(ctx, "bea@example.com")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("second request: got %v, want RateLimitedError", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 60 {
		t.Fatalf("retry after = %d, want within (0,60]", rl.RetryAfter)
	}
	if *store.users[u.ID].OTP != firstOTP {
		t.Fatal("OTP regenerated while rate limited")
	}

	// Backdate past the cooldown; the sentinel value cannot be produced by the
	// generator, so a change proves reissue.
	sentinel := "000000"
	store.users[u.ID].OTP = &sentinel
	expired := time.Now().Add(otpTTL - otpCooldown - time.Second)
	store.users[u.ID].OTPExpiresAt = &expired

	if err := svc.RequestReset(ctx, "bea@example.com"); err != nil {
		t.Fatal(err)
	}
	if *store.users[u.ID].OTP == sentinel {
		t.Fatal("OTP not reissued after cooldown")
	}
}

func TestVerifyOTPLockout(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()
	u := registerVerified(t, svc, store, "bea@example.com")

	if err := svc.RequestReset(ctx, "bea@example.com"); err != nil {
		t.Fatal(err)
	}
	correct := *store.users[u.ID].OTP

	for i := 1; i <= 4; i++ {
		if _, err := svc.VerifyOTP(ctx, "bea@example.com", "000000"); !errors.Is(err, ErrInvalidOrExpiredOTP) {
			t.Fatalf("wrong attempt %d: got %v, want ErrInvalidOrExpiredOTP", i, err)
		}
	}
	if _, err := svc.VerifyOTP(ctx, "bea@example.com", "000000"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("5th wrong attempt: got %v, want ErrTooManyAttempts", err)
	}

	// Even the correct code is locked out now.
	if _, err := svc.VerifyOTP(ctx, "bea@example.com", correct); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("correct code after lockout: got %v, want ErrTooManyAttempts", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()
	u := registerVerified(t, svc, store, "bea@example.com")

	if err := svc.RequestReset(ctx, "bea@example.com"); err != nil {
		t.Fatal(err)
	}
	resetToken, err := svc.VerifyOTP(ctx, "bea@example.com", *store.users[u.ID].OTP)
	if err != nil {
		t.Fatal(err)
	}
	if store.users[u.ID].OTP != nil {
		t.Fatal("OTP survived consumption")
	}

	// The consumed OTP is gone, so replaying it is an invalid attempt.
	if _, err := svc.VerifyOTP(ctx, "bea@example.com", "123456"); !errors.Is(err, ErrInvalidOrExpiredOTP) {
		t.Fatalf("replay after consumption: got %v", err)
	}

	if err := svc.ResetPassword(ctx, "bea@example.com", resetToken, "newpassword123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "bea@example.com", "hunter2hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	if _, err := svc.Login(ctx, "bea@example.com", "newpassword123"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// Reset tokens are single-use.
	if err := svc.ResetPassword(ctx, "bea@example.com", resetToken, "anotherpass123"); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("reset token reuse: got %v, want ErrInvalidOrExpired", err)
	}
}

func TestInviteAndCompleteSetup(t *testing.T) {
	svc, store, mailer, _ := newTestService()
	ctx := context.Background()

	classID, sectionID := uuid.New(), uuid.New()
	id, err := svc.InviteStudent(ctx, "Sam", "sam@example.com", 7, classID, sectionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("invite sent %d mails, want 1", len(mailer.sent))
	}
	if store.students[id] == nil || store.students[id].ClassID != classID {
		t.Fatalf("student placement missing: %+v", store.students[id])
	}

	if _, err := svc.InviteStudent(ctx, "Sam", "sam@example.com", 7, classID, sectionID); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate invite: got %v, want ErrEmailExists", err)
	}

	// Invitee cannot log in before completing setup: the temp password is unknown.
	if err := svc.CompleteSetup(ctx, *store.users[id].VerificationToken, "chosenpass123"); err != nil {
		t.Fatal(err)
	}
	ident, err := svc.Login(ctx, "sam@example.com", "chosenpass123")
	if err != nil {
		t.Fatal(err)
	}
	if ident.Role != models.RoleStudent {
		t.Fatalf("role = %q, want student", ident.Role)
	}
}

func TestInvitedTeacherSkipsApproval(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	id, err := svc.InviteTeacher(ctx, "Amy", "amy@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.CompleteSetup(ctx, *store.users[id].VerificationToken, "chosenpass123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "amy@example.com", "chosenpass123"); err != nil {
		t.Fatalf("invited teacher should log in without approval: %v", err)
	}
}

func TestRegisterPublishesSignupEvent(t *testing.T) {
	svc, _, _, pub := newTestService()

	if _, err := svc.Register(context.Background(), "Bea", "bea@example.com", "hunter2hunter2", models.RoleStudent); err != nil {
		t.Fatal(err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != bus.SubjectUserSignup {
		t.Fatalf("published %v, want one %s", pub.subjects, bus.SubjectUserSignup)
	}
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	svc, _, mailer, _ := newTestService()

	if err := svc.RequestReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mail sent for unknown email: %v", mailer.sent)
	}
}
