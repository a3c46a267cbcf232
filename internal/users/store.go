package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const userColumns = `id, name, email, password_hash, role, account_verified, registration_attempts,
	verification_code, verification_code_expire, reset_password_token, reset_password_expire,
	created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.AccountVerified, &u.RegistrationAttempts,
		&u.VerificationCode, &u.VerificationCodeExpire, &u.ResetPasswordToken, &u.ResetPasswordExpire,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail expects an already normalised address; nil, nil when absent.
func (s *Store) GetByEmail(ctx context.Context, q db.DBTX, email string) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id string) (*User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetByResetToken finds the user holding tokenHash whose reset window is still open at now.
func (s *Store) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_password_token = ? AND reset_password_expire > ?`,
		tokenHash, now))
}

func (s *Store) Insert(ctx context.Context, u *User) error {
	const q = `
	INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.AccountVerified, u.RegistrationAttempts,
		u.VerificationCode, u.VerificationCodeExpire, u.ResetPasswordToken, u.ResetPasswordExpire,
		u.CreatedAt, u.UpdatedAt)
	if db.IsDuplicateKey(err) {
		return apierr.ErrConflict("user already exists")
	}
	return err
}

// Update writes every mutable column of u.
func (s *Store) Update(ctx context.Context, u *User) error {
	const q = `
	UPDATE users
	SET name = ?, password_hash = ?, role = ?, account_verified = ?, registration_attempts = ?,
		verification_code = ?, verification_code_expire = ?, reset_password_token = ?, reset_password_expire = ?,
		updated_at = ?
	WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q,
		u.Name, u.PasswordHash, u.Role, u.AccountVerified, u.RegistrationAttempts,
		u.VerificationCode, u.VerificationCodeExpire, u.ResetPasswordToken, u.ResetPasswordExpire,
		u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrNotFound("user not found")
	}
	return nil
}

// ===== borrowed books projection =====

func (s *Store) AppendBorrowed(ctx context.Context, q db.DBTX, b BorrowedBook) error {
	const stmt = `
	INSERT INTO user_borrowed_books (borrow_record_id, user_id, book_id, book_title, borrow_date, due_date, returned)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt, b.BorrowRecordID, b.UserID, b.BookID, b.BookTitle, b.BorrowDate, b.DueDate, b.Returned)
	return err
}

// MarkBorrowedReturned flags the entry mirroring borrowRecordID. It reports
// whether an unreturned entry was found.
func (s *Store) MarkBorrowedReturned(ctx context.Context, q db.DBTX, borrowRecordID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE user_borrowed_books SET returned = ? WHERE borrow_record_id = ? AND returned = ?`,
		true, borrowRecordID, false)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	return aff == 1, err
}

func (s *Store) BorrowedBooks(ctx context.Context, q db.DBTX, userID string) ([]BorrowedBook, error) {
	const stmt = `
	SELECT borrow_record_id, user_id, book_id, book_title, borrow_date, due_date, returned
	FROM user_borrowed_books
	WHERE user_id = ?
	ORDER BY borrow_date ASC, borrow_record_id ASC`
	rows, err := q.QueryContext(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BorrowedBook{}
	for rows.Next() {
		var b BorrowedBook
		if err := rows.Scan(&b.BorrowRecordID, &b.UserID, &b.BookID, &b.BookTitle, &b.BorrowDate, &b.DueDate, &b.Returned); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
