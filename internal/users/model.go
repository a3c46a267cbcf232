package users

import (
	"database/sql"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

type User struct {
	ID                     string
	Name                   string
	Email                  string
	PasswordHash           string
	Role                   string
	AccountVerified        bool
	RegistrationAttempts   int
	VerificationCode       sql.NullInt64
	VerificationCodeExpire sql.NullTime
	ResetPasswordToken     sql.NullString // sha256 hex
	ResetPasswordExpire    sql.NullTime
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// BorrowedBook is the member-side mirror of one ledger record.
type BorrowedBook struct {
	BorrowRecordID string
	UserID         string
	BookID         string
	BookTitle      string
	BorrowDate     time.Time
	DueDate        time.Time
	Returned       bool
}

// NormalizeEmail trims and case-folds an address so lookups are case-insensitive.
func NormalizeEmail(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
