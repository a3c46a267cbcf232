package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/auth"
	"nalanda-backend/internal/platform/db"
	"nalanda-backend/internal/platform/ids"
	"nalanda-backend/internal/platform/mailer"
)

const (
	otpTTL                  = 15 * time.Minute
	resetTokenTTL           = 15 * time.Minute
	maxRegistrationAttempts = 5
	minPasswordLen          = 8
	maxPasswordLen          = 16
	resetTokenBytes         = 20
)

// OTPGen yields 5 digit verification codes.
type OTPGen interface{ NewOTP() (int, error) }

type randomOTP struct{}

func (randomOTP) NewOTP() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + 10000, nil
}

type Service struct {
	db          *sql.DB
	store       *Store
	mail        mailer.Mailer
	tokens      *auth.Issuer
	clock       ids.Clock
	id          ids.IDGen
	otp         OTPGen
	frontendURL string
}

func NewService(conn *sql.DB, m mailer.Mailer, tokens *auth.Issuer, frontendURL string) *Service {
	return &Service{
		db:          conn,
		store:       NewStore(conn),
		mail:        m,
		tokens:      tokens,
		clock:       ids.RealClock{},
		id:          ids.NewULIDGen(),
		otp:         randomOTP{},
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func checkPasswordLen(p string) error {
	if n := utf8.RuneCountInString(p); n < minPasswordLen || n > maxPasswordLen {
		return apierr.ErrInvalid(fmt.Sprintf("password must be between %d and %d characters", minPasswordLen, maxPasswordLen))
	}
	return nil
}

func hashPassword(p string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	if err != nil {
		return "", apierr.ErrInternal("failed to hash password", err)
	}
	return string(h), nil
}

func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func (s *Service) newSession(ctx context.Context, u *User) (Session, error) {
	tok, exp, err := s.tokens.Issue(u.ID, u.Role, s.clock.Now())
	if err != nil {
		return Session{}, apierr.ErrInternal("failed to issue token", err)
	}
	borrowed, err := s.store.BorrowedBooks(ctx, s.db, u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, ExpiresAt: exp, User: toResponse(u, borrowed)}, nil
}

// POST /auth/register
// 未認証のユーザーは同じ行を使い回し、試行回数を数える
func (s *Service) Register(ctx context.Context, in RegisterRequest) (string, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return "", apierr.ErrInvalid("please enter all fields")
	}

	existing, err := s.store.GetByEmail(ctx, s.db, email)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.AccountVerified {
		return "", apierr.ErrConflict("user already exists")
	}
	if existing != nil && existing.RegistrationAttempts >= maxRegistrationAttempts {
		return "", apierr.ErrConflict("you have exceeded the number of registration attempts, please contact support")
	}
	if err := checkPasswordLen(in.Password); err != nil {
		return "", err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return "", err
	}
	code, err := s.otp.NewOTP()
	if err != nil {
		return "", apierr.ErrInternal("failed to generate verification code", err)
	}

	now := s.clock.Now()
	u := existing
	if u == nil {
		u = &User{ID: s.id.NewULID(now), Email: email, Role: auth.RoleUser, CreatedAt: now}
	}
	u.Name = name
	u.PasswordHash = hash
	u.RegistrationAttempts++
	u.VerificationCode = sql.NullInt64{Int64: int64(code), Valid: true}
	u.VerificationCodeExpire = sql.NullTime{Time: now.Add(otpTTL), Valid: true}
	u.UpdatedAt = now

	if existing == nil {
		err = s.store.Insert(ctx, u)
	} else {
		err = s.store.Update(ctx, u)
	}
	if err != nil {
		return "", err
	}

	body, err := mailer.VerificationEmail(code, int(otpTTL/time.Minute))
	if err != nil {
		return "", apierr.ErrInternal("failed to render verification mail", err)
	}
	if err := s.mail.Send(ctx, email, mailer.SubjectVerification, body); err != nil {
		return "", apierr.ErrInternal("verification code failed to send", err)
	}
	return fmt.Sprintf("verification code sent to %s", email), nil
}

// POST /auth/verify-otp
func (s *Service) VerifyOTP(ctx context.Context, in VerifyOTPRequest) (Session, error) {
	email := NormalizeEmail(in.Email)
	otp := strings.TrimSpace(in.OTP)
	if email == "" || otp == "" {
		return Session{}, apierr.ErrInvalid("email or otp is missing")
	}

	u, err := s.store.GetByEmail(ctx, s.db, email)
	if err != nil {
		return Session{}, err
	}
	if u == nil || u.AccountVerified {
		return Session{}, apierr.ErrNotFound("user not found")
	}

	code, err := strconv.Atoi(otp)
	if err != nil || !u.VerificationCode.Valid || int64(code) != u.VerificationCode.Int64 {
		return Session{}, apierr.ErrInvalid("invalid OTP")
	}
	now := s.clock.Now()
	if !u.VerificationCodeExpire.Valid || now.After(u.VerificationCodeExpire.Time) {
		return Session{}, apierr.ErrInvalid("OTP expired")
	}

	u.AccountVerified = true
	u.VerificationCode = sql.NullInt64{}
	u.VerificationCodeExpire = sql.NullTime{}
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		return Session{}, err
	}
	return s.newSession(ctx, u)
}

// POST /auth/login
func (s *Service) Login(ctx context.Context, in LoginRequest) (Session, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return Session{}, apierr.ErrInvalid("please enter all fields")
	}
	u, err := s.store.GetByEmail(ctx, s.db, email)
	if err != nil {
		return Session{}, err
	}
	// どちらが違うかは返さない
	if u == nil || !u.AccountVerified {
		return Session{}, apierr.ErrInvalid("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return Session{}, apierr.ErrInvalid("invalid email or password")
	}
	return s.newSession(ctx, u)
}

// GET /auth/me
func (s *Service) Me(ctx context.Context, userID string) (UserResponse, error) {
	var out UserResponse
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		u, err := s.store.GetByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apierr.ErrNotFound("user not found")
		}
		borrowed, err := s.store.BorrowedBooks(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		out = toResponse(u, borrowed)
		return nil
	})
	return out, err
}

// POST /auth/password/forget
func (s *Service) ForgotPassword(ctx context.Context, in ForgotPasswordRequest) (string, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return "", apierr.ErrInvalid("email is required")
	}
	u, err := s.store.GetByEmail(ctx, s.db, email)
	if err != nil {
		return "", err
	}
	if u == nil || !u.AccountVerified {
		return "", apierr.ErrInvalid("invalid email")
	}

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", apierr.ErrInternal("failed to generate reset token", err)
	}
	token := hex.EncodeToString(raw)

	now := s.clock.Now()
	u.ResetPasswordToken = sql.NullString{String: hashToken(token), Valid: true}
	u.ResetPasswordExpire = sql.NullTime{Time: now.Add(resetTokenTTL), Valid: true}
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		return "", err
	}

	url := s.frontendURL + "/password/reset/" + token
	body, err := mailer.PasswordResetEmail(url, int(resetTokenTTL/time.Minute))
	if err == nil {
		err = s.mail.Send(ctx, u.Email, mailer.SubjectPasswordReset, body)
	}
	if err != nil {
		// 送れなかったトークンは残さない
		u.ResetPasswordToken = sql.NullString{}
		u.ResetPasswordExpire = sql.NullTime{}
		if uerr := s.store.Update(ctx, u); uerr != nil {
			return "", apierr.ErrInternal("failed to send password reset email", fmt.Errorf("%w; clearing token: %v", err, uerr))
		}
		return "", apierr.ErrInternal("failed to send password reset email", err)
	}
	return fmt.Sprintf("email sent to %s successfully", u.Email), nil
}

// PUT /auth/password/reset/:token
func (s *Service) ResetPassword(ctx context.Context, token string, in ResetPasswordRequest) (Session, error) {
	if strings.TrimSpace(token) == "" || in.Password == "" || in.ConfirmPassword == "" {
		return Session{}, apierr.ErrInvalid("please enter all fields")
	}
	now := s.clock.Now()
	u, err := s.store.GetByResetToken(ctx, hashToken(strings.TrimSpace(token)), now)
	if err != nil {
		return Session{}, err
	}
	if u == nil {
		return Session{}, apierr.ErrInvalid("reset password token is invalid or has expired")
	}
	if in.Password != in.ConfirmPassword {
		return Session{}, apierr.ErrInvalid("password and confirm password do not match")
	}
	if err := checkPasswordLen(in.Password); err != nil {
		return Session{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	u.PasswordHash = hash
	u.ResetPasswordToken = sql.NullString{}
	u.ResetPasswordExpire = sql.NullTime{}
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		return Session{}, err
	}
	return s.newSession(ctx, u)
}

// PUT /auth/password/update
func (s *Service) UpdatePassword(ctx context.Context, userID string, in UpdatePasswordRequest) error {
	if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmNewPassword == "" {
		return apierr.ErrInvalid("please enter all fields")
	}
	u, err := s.store.GetByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return apierr.ErrNotFound("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return apierr.ErrInvalid("current password is incorrect")
	}
	if err := checkPasswordLen(in.NewPassword); err != nil {
		return err
	}
	if in.NewPassword != in.ConfirmNewPassword {
		return apierr.ErrInvalid("new password and confirm new password do not match")
	}

	hash, err := hashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.clock.Now()
	return s.store.Update(ctx, u)
}

// CreateAdmin は CLI からのみ呼ぶ。メール認証なしで有効なアカウントを作る
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (UserResponse, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return UserResponse{}, apierr.ErrInvalid("please enter all fields")
	}
	if err := checkPasswordLen(password); err != nil {
		return UserResponse{}, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return UserResponse{}, err
	}
	now := s.clock.Now()
	u := &User{
		ID:              s.id.NewULID(now),
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		Role:            auth.RoleAdmin,
		AccountVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return UserResponse{}, err
	}
	return toResponse(u, nil), nil
}
