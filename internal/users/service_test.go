package users

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/auth"
	"nalanda-backend/internal/platform/db/dbtest"
	"nalanda-backend/internal/platform/mailer"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type fixedOTP int

func (f fixedOTP) NewOTP() (int, error) { return int(f), nil }

type fixture struct {
	svc   *Service
	mail  *mailer.Recorder
	clock *fixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	rec := &mailer.Recorder{}
	svc := NewService(conn, rec, auth.NewIssuer([]byte("test-secret"), time.Hour), "http://localhost:3000/")
	clk := &fixedClock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc.clock = clk
	svc.otp = fixedOTP(48213)
	return &fixture{svc: svc, mail: rec, clock: clk}
}

// registerVerified は登録から認証までを済ませる
func (f *fixture) registerVerified(t *testing.T, name, email, password string) Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	s, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: email, OTP: "48213"})
	require.NoError(t, err)
	return s
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "asha@example.com", NormalizeEmail("  Asha@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestRegisterSendsOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Register(ctx, RegisterRequest{Name: "Asha", Email: "Asha@Example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Contains(t, msg, "asha@example.com")

	last := f.mail.Last()
	assert.Equal(t, "asha@example.com", last.To)
	assert.Equal(t, mailer.SubjectVerification, last.Subject)
	assert.Contains(t, last.Body, "48213")

	u, err := f.svc.store.GetByEmail(ctx, f.svc.db, "asha@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.False(t, u.AccountVerified)
	assert.Equal(t, 1, u.RegistrationAttempts)
	assert.Equal(t, auth.RoleUser, u.Role)
	assert.NotEqual(t, "password1", u.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterRequest{Name: "", Email: "a@example.com", Password: "password1"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = f.svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@example.com", Password: "short"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = f.svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@example.com", Password: "waytoolongpassword123"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))
}

func TestRegisterReusesUnverifiedRowAndCapsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := RegisterRequest{Name: "Ravi", Email: "ravi@example.com", Password: "password1"}

	for i := 0; i < maxRegistrationAttempts; i++ {
		_, err := f.svc.Register(ctx, req)
		require.NoError(t, err, "attempt %d", i+1)
	}
	_, err := f.svc.Register(ctx, req)
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	var n int
	require.NoError(t, f.svc.db.QueryRow(`SELECT COUNT(*) FROM users WHERE email = ?`, "ravi@example.com").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRegisterVerifiedEmailConflicts(t *testing.T) {
	f := newFixture(t)
	f.registerVerified(t, "Meera", "meera@example.com", "password1")

	_, err := f.svc.Register(context.Background(), RegisterRequest{Name: "Other", Email: "MEERA@example.com", Password: "password2"})
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))
}

func TestRegisterMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mail.Err = errors.New("smtp down")

	_, err := f.svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@example.com", Password: "password1"})
	assert.Equal(t, apierr.CodeInternal, apierr.CodeOf(err))
}

func TestVerifyOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterRequest{Name: "Kabir", Email: "kabir@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "kabir@example.com", OTP: ""})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "nobody@example.com", OTP: "48213"})
	assert.True(t, apierr.IsNotFound(err))

	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "kabir@example.com", OTP: "11111"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	s, err := f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "KABIR@example.com", OTP: "48213"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.True(t, s.User.AccountVerified)
	assert.Equal(t, "kabir@example.com", s.User.Email)

	// 認証済みならもう見つからない
	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "kabir@example.com", OTP: "48213"})
	assert.True(t, apierr.IsNotFound(err))
}

func TestVerifyOTPExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterRequest{Name: "Kabir", Email: "kabir@example.com", Password: "password1"})
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(otpTTL + time.Second)
	_, err = f.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "kabir@example.com", OTP: "48213"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTP expired")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterRequest{Name: "Unverified", Email: "u@example.com", Password: "password1"})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, LoginRequest{Email: "u@example.com", Password: "password1"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	f.registerVerified(t, "Verified", "v@example.com", "password1")

	_, err = f.svc.Login(ctx, LoginRequest{Email: "v@example.com", Password: "wrongpass"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")

	s, err := f.svc.Login(ctx, LoginRequest{Email: " V@Example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "Verified", s.User.Name)
}

var resetURL = regexp.MustCompile(`password/reset/([0-9a-f]{40})`)

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Leela", "leela@example.com", "password1")

	_, err := f.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "ghost@example.com"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = f.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "leela@example.com"})
	require.NoError(t, err)
	last := f.mail.Last()
	assert.Equal(t, mailer.SubjectPasswordReset, last.Subject)
	assert.Contains(t, last.Body, "http://localhost:3000/password/reset/")
	m := resetURL.FindStringSubmatch(last.Body)
	require.Len(t, m, 2)
	token := m[1]

	// 保存されるのはハッシュだけ
	u, err := f.svc.store.GetByEmail(ctx, f.svc.db, "leela@example.com")
	require.NoError(t, err)
	assert.Equal(t, hashToken(token), u.ResetPasswordToken.String)

	_, err = f.svc.ResetPassword(ctx, "deadbeef", ResetPasswordRequest{Password: "newpass12", ConfirmPassword: "newpass12"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = f.svc.ResetPassword(ctx, token, ResetPasswordRequest{Password: "newpass12", ConfirmPassword: "newpass13"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	s, err := f.svc.ResetPassword(ctx, token, ResetPasswordRequest{Password: "newpass12", ConfirmPassword: "newpass12"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "leela@example.com", Password: "newpass12"})
	assert.NoError(t, err)

	// 使い終わったトークンは無効
	_, err = f.svc.ResetPassword(ctx, token, ResetPasswordRequest{Password: "another12", ConfirmPassword: "another12"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))
}

func TestResetTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Leela", "leela@example.com", "password1")

	_, err := f.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "leela@example.com"})
	require.NoError(t, err)
	token := resetURL.FindStringSubmatch(f.mail.Last().Body)[1]

	f.clock.t = f.clock.t.Add(resetTokenTTL + time.Minute)
	_, err = f.svc.ResetPassword(ctx, token, ResetPasswordRequest{Password: "newpass12", ConfirmPassword: "newpass12"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))
}

func TestForgotPasswordMailFailureClearsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Leela", "leela@example.com", "password1")

	f.mail.Err = errors.New("smtp down")
	_, err := f.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "leela@example.com"})
	assert.Equal(t, apierr.CodeInternal, apierr.CodeOf(err))

	u, err := f.svc.store.GetByEmail(ctx, f.svc.db, "leela@example.com")
	require.NoError(t, err)
	assert.False(t, u.ResetPasswordToken.Valid)
	assert.False(t, u.ResetPasswordExpire.Valid)
}

func TestUpdatePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.registerVerified(t, "Tara", "tara@example.com", "password1")
	id := s.User.ID

	err := f.svc.UpdatePassword(ctx, id, UpdatePasswordRequest{CurrentPassword: "nope12345", NewPassword: "password2", ConfirmNewPassword: "password2"})
	assert.Contains(t, err.Error(), "current password is incorrect")

	err = f.svc.UpdatePassword(ctx, id, UpdatePasswordRequest{CurrentPassword: "password1", NewPassword: "pw", ConfirmNewPassword: "pw"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	err = f.svc.UpdatePassword(ctx, id, UpdatePasswordRequest{CurrentPassword: "password1", NewPassword: "password2", ConfirmNewPassword: "password3"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	require.NoError(t, f.svc.UpdatePassword(ctx, id, UpdatePasswordRequest{CurrentPassword: "password1", NewPassword: "password2", ConfirmNewPassword: "password2"}))
	_, err = f.svc.Login(ctx, LoginRequest{Email: "tara@example.com", Password: "password2"})
	assert.NoError(t, err)
}

func TestMeIncludesBorrowedBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.registerVerified(t, "Dev", "dev@example.com", "password1")

	now := f.clock.Now()
	require.NoError(t, f.svc.store.AppendBorrowed(ctx, f.svc.db, BorrowedBook{
		BorrowRecordID: "01REC", UserID: s.User.ID, BookID: "01BOOK", BookTitle: "Godan",
		BorrowDate: now, DueDate: now.Add(7 * 24 * time.Hour),
	}))

	me, err := f.svc.Me(ctx, s.User.ID)
	require.NoError(t, err)
	require.Len(t, me.BorrowedBooks, 1)
	assert.Equal(t, "Godan", me.BorrowedBooks[0].BookTitle)
	assert.False(t, me.BorrowedBooks[0].Returned)

	ok, err := f.svc.store.MarkBorrowedReturned(ctx, f.svc.db, "01REC")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.store.MarkBorrowedReturned(ctx, f.svc.db, "01REC")
	require.NoError(t, err)
	assert.False(t, ok)

	me, err = f.svc.Me(ctx, s.User.ID)
	require.NoError(t, err)
	assert.True(t, me.BorrowedBooks[0].Returned)

	_, err = f.svc.Me(ctx, "01MISSING")
	assert.True(t, apierr.IsNotFound(err))
}

func TestCreateAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateAdmin(ctx, "Admin", "Admin@Library.org", "adminpass1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, u.Role)
	assert.True(t, u.AccountVerified)

	s, err := f.svc.Login(ctx, LoginRequest{Email: "admin@library.org", Password: "adminpass1"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, s.User.Role)

	_, err = f.svc.CreateAdmin(ctx, "Admin", "admin@library.org", "adminpass1")
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))
}
