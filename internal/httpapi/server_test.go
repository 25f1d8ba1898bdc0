package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"schoold/internal/auth"
	"schoold/internal/models"
	"schoold/internal/token"
)

type fakeStore struct {
	users    map[uuid.UUID]*models.User
	teachers map[uuid.UUID]*models.Teacher
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]*models.User),
		teachers: make(map[uuid.UUID]*models.Teacher),
	}
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeStore) UserByVerificationToken(_ context.Context, tok string) (*models.User, error) {
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == tok &&
			u.VerificationTokenExpiresAt != nil && u.VerificationTokenExpiresAt.After(time.Now()) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	u.ID = uuid.New()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) CreateUserWithTeacher(ctx context.Context, u *models.User, active bool) error {
	if err := f.CreateUser(ctx, u); err != nil {
		return err
	}
	f.teachers[u.ID] = &models.Teacher{ID: uuid.New(), UserID: u.ID, IsActive: active}
	return nil
}

func (f *fakeStore) CreateUserWithStudent(ctx context.Context, u *models.User, s *models.Student) error {
	if err := f.CreateUser(ctx, u); err != nil {
		return err
	}
	s.UserID = u.ID
	return nil
}

func (f *fakeStore) OverwriteRegistration(_ context.Context, u *models.User, recreateTeacher bool) error {
	f.users[u.ID] = u
	delete(f.teachers, u.ID)
	if recreateTeacher {
		f.teachers[u.ID] = &models.Teacher{ID: uuid.New(), UserID: u.ID}
	}
	return nil
}

func (f *fakeStore) MarkVerified(_ context.Context, id uuid.UUID) error {
	u := f.users[id]
	u.EmailVerified = true
	u.VerificationToken = nil
	u.RegistrationAttempts = 0
	return nil
}

func (f *fakeStore) SetPasswordAndVerify(_ context.Context, id uuid.UUID, hash string) error {
	u := f.users[id]
	u.PasswordHash = hash
	u.EmailVerified = true
	u.VerificationToken = nil
	return nil
}

func (f *fakeStore) SetSessionVersion(_ context.Context, id uuid.UUID, v string) error {
	f.users[id].SessionVersion = &v
	return nil
}

func (f *fakeStore) SessionVersion(_ context.Context, id uuid.UUID) (string, error) {
	u := f.users[id]
	if u == nil || u.SessionVersion == nil {
		return "", nil
	}
	return *u.SessionVersion, nil
}

func (f *fakeStore) SetOTP(_ context.Context, id uuid.UUID, otp string, exp time.Time) error {
	u := f.users[id]
	u.OTP = &otp
	u.OTPExpiresAt = &exp
	u.OTPAttempts = 0
	return nil
}

func (f *fakeStore) IncrementOTPAttempts(_ context.Context, id uuid.UUID) (int, error) {
	f.users[id].OTPAttempts++
	return f.users[id].OTPAttempts, nil
}

func (f *fakeStore) ConsumeOTP(_ context.Context, id uuid.UUID, otp, resetToken string, exp time.Time) (bool, error) {
	u := f.users[id]
	if u.OTP == nil || *u.OTP != otp {
		return false, nil
	}
	u.OTP = nil
	u.PasswordResetToken = &resetToken
	u.PasswordResetExpiresAt = &exp
	return true, nil
}

func (f *fakeStore) ConsumeResetToken(_ context.Context, email, resetToken, hash string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email && u.PasswordResetToken != nil && *u.PasswordResetToken == resetToken {
			u.PasswordHash = hash
			u.PasswordResetToken = nil
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) TeacherByUserID(_ context.Context, id uuid.UUID) (*models.Teacher, error) {
	return f.teachers[id], nil
}

func (f *fakeStore) ActivateTeacher(_ context.Context, id uuid.UUID) error {
	t := f.teachers[id]
	if t == nil {
		return auth.ErrNotFound
	}
	t.IsActive = true
	return nil
}

func (f *fakeStore) DeleteTeacher(_ context.Context, id uuid.UUID) error {
	delete(f.teachers, id)
	return nil
}

func (f *fakeStore) PendingTeachers(_ context.Context) ([]auth.PendingTeacher, error) {
	var out []auth.PendingTeacher
	for id, t := range f.teachers {
		if !t.IsActive {
			out = append(out, auth.PendingTeacher{UserID: id, Email: f.users[id].Email})
		}
	}
	return out, nil
}

type nullMailer struct{}

func (nullMailer) Send(context.Context, string, string, string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	svc := auth.NewService(store, nullMailer{}, nil, "http://app.test", zerolog.Nop())
	codec, err := token.New("access-secret-for-tests", "refresh-secret-for-tests", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	api, err := New(svc, codec, nil, nil, nil, Config{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, client *http.Client, url string, body map[string]any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	code, _ := decodeBody(t, resp)["error"].(string)
	return code
}

func registerAndVerify(t *testing.T, srv *httptest.Server, store *fakeStore, email, role string) uuid.UUID {
	t.Helper()
	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/register", map[string]any{
		"name": "Test User", "email": email, "password": "hunter2hunter2", "role": role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	u, err := store.UserByEmail(context.Background(), email)
	if err != nil || u == nil {
		t.Fatalf("user not stored: %v", err)
	}
	verifyResp, err := srv.Client().Get(srv.URL + "/api/auth/verify-email?token=" + *u.VerificationToken)
	if err != nil {
		t.Fatal(err)
	}
	if verifyResp.StatusCode != http.StatusOK {
		t.Fatalf("verify-email: status %d", verifyResp.StatusCode)
	}
	verifyResp.Body.Close()
	return u.ID
}

func loginTokens(t *testing.T, srv *httptest.Server, email, password string) (access, refresh string) {
	t.Helper()
	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/login", map[string]any{
		"email": email, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d, error %s", resp.StatusCode, errorCode(t, resp))
	}
	body := decodeBody(t, resp)
	access, _ = body["access_token"].(string)
	refresh, _ = body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatal("login response missing tokens")
	}
	return access, refresh
}

func authedGet(t *testing.T, srv *httptest.Server, path, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRegisterLoginMe(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")

	access, _ := loginTokens(t, srv, "bea@example.com", "hunter2hunter2")

	resp := authedGet(t, srv, "/api/auth/me", access)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/me: status %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	user, _ := body["user"].(map[string]any)
	if user["email"] != "bea@example.com" {
		t.Fatalf("/me user = %v", user)
	}
}

func TestLoginSetsAuthCookies(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")

	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/login", map[string]any{
		"email": "bea@example.com", "password": "hunter2hunter2",
	})
	defer resp.Body.Close()

	var sawAccess, sawRefresh bool
	for _, c := range resp.Cookies() {
		switch c.Name {
		case accessCookie:
			sawAccess = c.HttpOnly && c.SameSite == http.SameSiteStrictMode
		case refreshCookie:
			sawRefresh = c.HttpOnly && c.SameSite == http.SameSiteStrictMode
		}
	}
	if !sawAccess || !sawRefresh {
		t.Fatalf("cookies missing or not hardened: access=%v refresh=%v", sawAccess, sawRefresh)
	}
}

func TestSecondLoginSupersedesFirstSession(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")

	first, _ := loginTokens(t, srv, "bea@example.com", "hunter2hunter2")
	second, _ := loginTokens(t, srv, "bea@example.com", "hunter2hunter2")

	resp := authedGet(t, srv, "/api/auth/me", first)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale token: status %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "session_superseded" {
		t.Fatalf("stale token error = %q, want session_superseded", code)
	}

	resp = authedGet(t, srv, "/api/auth/me", second)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fresh token: status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshMintsUsableAccessToken(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")
	_, refresh := loginTokens(t, srv, "bea@example.com", "hunter2hunter2")

	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/refresh", map[string]any{
		"refreshToken": refresh,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status %d", resp.StatusCode)
	}
	access, _ := decodeBody(t, resp)["access_token"].(string)
	if access == "" {
		t.Fatal("refresh returned no access token")
	}

	me := authedGet(t, srv, "/api/auth/me", access)
	if me.StatusCode != http.StatusOK {
		t.Fatalf("refreshed token rejected: status %d", me.StatusCode)
	}
	me.Body.Close()
}

func TestSessionGuardRejectsAnonymous(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := authedGet(t, srv, "/api/auth/me", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "unauthenticated" {
		t.Fatalf("error = %q, want unauthenticated", code)
	}
}

func TestSessionGuardRejectsGarbageToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := authedGet(t, srv, "/api/auth/me", "not.a.jwt")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")
	access, _ := loginTokens(t, srv, "bea@example.com", "hunter2hunter2")

	resp := authedGet(t, srv, "/api/teachers/pending", access)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "access_denied" {
		t.Fatalf("error = %q, want access_denied", code)
	}
}

func TestTeacherApprovalOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)

	// Pending teacher, verified so login hits the approval gate.
	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/register", map[string]any{
		"name": "Amy", "email": "amy@example.com", "password": "hunter2hunter2", "role": "teacher",
	})
	resp.Body.Close()
	amy, _ := store.UserByEmail(context.Background(), "amy@example.com")
	amy.EmailVerified = true

	resp = postJSON(t, srv.Client(), srv.URL+"/api/auth/login", map[string]any{
		"email": "amy@example.com", "password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusForbidden || errorCode(t, resp) != "pending_approval" {
		t.Fatalf("pending teacher login: status %d", resp.StatusCode)
	}

	registerAndVerify(t, srv, store, "root@example.com", "student")
	admin, _ := store.UserByEmail(context.Background(), "root@example.com")
	admin.Role = models.RoleAdmin
	adminTok, _ := loginTokens(t, srv, "root@example.com", "hunter2hunter2")

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/teachers/%s/approve", srv.URL, amy.ID), nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+adminTok)
	approveResp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if approveResp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status %d", approveResp.StatusCode)
	}
	approveResp.Body.Close()

	loginTokens(t, srv, "amy@example.com", "hunter2hunter2")
}

func TestForgotPasswordRateLimited(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")

	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/forgot-password", map[string]any{"email": "bea@example.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.Client(), srv.URL+"/api/auth/forgot-password", map[string]any{"email": "bea@example.com"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	body := decodeBody(t, resp)
	if body["retry_after"] == nil {
		t.Fatal("missing retry_after in body")
	}
}

func TestStorageUnavailableWithoutLedger(t *testing.T) {
	srv, store := newTestServer(t)
	registerAndVerify(t, srv, store, "bea@example.com", "student")
	access, _ := loginTokens(t, srv, "bea@example.com", "hunter2hunter2")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/storage/signed-upload",
		bytes.NewReader([]byte(`{"context":"assignments","ownerIds":["a"],"filename":"x.pdf"}`)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "storage_unavailable" {
		t.Fatalf("error = %q, want storage_unavailable", code)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.Client(), srv.URL+"/api/auth/logout", map[string]any{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if (c.Name == accessCookie || c.Name == refreshCookie) && c.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired: MaxAge=%d", c.Name, c.MaxAge)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
