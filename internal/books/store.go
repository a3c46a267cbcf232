package books

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/db"
)

type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB, d db.Dialect) *Store { return &Store{db: conn, dialect: d} }

const bookColumns = `id, title, author, description, publication_date, genre,
	total_copies, availability, total_borrowed_count, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanBook(row scanner) (*Book, error) {
	var b Book
	if err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.PublicationDate, &b.Genre,
		&b.TotalCopies, &b.Availability, &b.TotalBorrowedCount, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books (` + bookColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		b.ID, b.Title, b.Author, b.Description, b.PublicationDate, b.Genre,
		b.TotalCopies, b.Availability, b.TotalBorrowedCount, b.CreatedAt, b.UpdatedAt)
	return err
}

// GetByID returns nil, nil when the book does not exist.
func (s *Store) GetByID(ctx context.Context, q db.DBTX, id string) (*Book, error) {
	return s.get(ctx, q, id, "")
}

// LockByID is GetByID holding a row lock until the surrounding tx ends.
func (s *Store) LockByID(ctx context.Context, q db.DBTX, id string) (*Book, error) {
	return s.get(ctx, q, id, s.dialect.ForUpdate)
}

func (s *Store) get(ctx context.Context, q db.DBTX, id, suffix string) (*Book, error) {
	b, err := scanBook(q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`+suffix, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// Save writes every mutable column of b.
func (s *Store) Save(ctx context.Context, q db.DBTX, b *Book) error {
	if b.TotalCopies < 0 {
		return apierr.ErrInternal("refusing to store negative copies", nil)
	}
	const stmt = `
	UPDATE books
	SET title = ?, author = ?, description = ?, publication_date = ?, genre = ?,
		total_copies = ?, availability = ?, total_borrowed_count = ?, updated_at = ?
	WHERE id = ?`
	res, err := q.ExecContext(ctx, stmt,
		b.Title, b.Author, b.Description, b.PublicationDate, b.Genre,
		b.TotalCopies, b.TotalCopies > 0, b.TotalBorrowedCount, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrInternal("failed to update books row", nil)
	}
	return nil
}

// Delete removes the book and its history rows. Ledger rows stay.
func (s *Store) Delete(ctx context.Context, q db.DBTX, id string) (int64, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM book_borrow_history WHERE book_id = ?`, id); err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ===== borrow history =====

func (s *Store) AppendHistory(ctx context.Context, q db.DBTX, e HistoryEntry) error {
	const stmt = `
	INSERT INTO book_borrow_history (borrow_record_id, book_id, user_id, borrow_date, return_date)
	VALUES (?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt, e.BorrowRecordID, e.BookID, e.UserID, e.BorrowDate, e.ReturnDate)
	return err
}

// StampHistoryReturn sets the return date of the entry mirroring borrowRecordID.
// It reports whether such an entry existed.
func (s *Store) StampHistoryReturn(ctx context.Context, q db.DBTX, borrowRecordID string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE book_borrow_history SET return_date = ? WHERE borrow_record_id = ? AND return_date IS NULL`,
		at, borrowRecordID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	return aff == 1, err
}

func (s *Store) History(ctx context.Context, q db.DBTX, bookID string) ([]HistoryEntry, error) {
	const stmt = `
	SELECT borrow_record_id, book_id, user_id, borrow_date, return_date
	FROM book_borrow_history
	WHERE book_id = ?
	ORDER BY borrow_date ASC, borrow_record_id ASC`
	rows, err := q.QueryContext(ctx, stmt, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.BorrowRecordID, &e.BookID, &e.UserID, &e.BorrowDate, &e.ReturnDate); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ===== list =====

func likePattern(v string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(v))) + "%"
}

func (s *Store) List(ctx context.Context, f BookSearchQuery, p Page) ([]Book, int64, error) {
	// WHERE 句と args を共通で作る
	where := "WHERE 1=1"
	args := []any{}
	if strings.TrimSpace(f.Genre) != "" {
		where += " AND LOWER(genre) LIKE ? ESCAPE '!'"
		args = append(args, likePattern(f.Genre))
	}
	if strings.TrimSpace(f.Author) != "" {
		where += " AND LOWER(author) LIKE ? ESCAPE '!'"
		args = append(args, likePattern(f.Author))
	}
	if strings.TrimSpace(f.Search) != "" {
		where += " AND (LOWER(title) LIKE ? ESCAPE '!' OR LOWER(author) LIKE ? ESCAPE '!' OR LOWER(genre) LIKE ? ESCAPE '!')"
		pat := likePattern(f.Search)
		args = append(args, pat, pat, pat)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	selectSQL := `SELECT ` + bookColumns + ` FROM books ` + where + `
	ORDER BY created_at DESC, id DESC
	LIMIT ? OFFSET ?`
	queryArgs := append(append([]any{}, args...), p.Limit, p.offset())

	rows, err := s.db.QueryContext(ctx, selectSQL, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
