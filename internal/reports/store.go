package reports

import (
	"context"
	"database/sql"

	"nalanda-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) MostBorrowed(ctx context.Context, limit int) ([]MostBorrowedBook, error) {
	const q = `
	SELECT id, title, author, total_borrowed_count, total_copies, availability
	FROM books
	ORDER BY total_borrowed_count DESC, id ASC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MostBorrowedBook{}
	for rows.Next() {
		var b MostBorrowedBook
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.TotalBorrowedCount, &b.TotalCopies, &b.Availability); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MostActive ranks borrowers by record count. Name and email come from the
// users table, or from the ledger copy when the account no longer exists.
func (s *Store) MostActive(ctx context.Context, limit int) ([]ActiveMember, error) {
	const q = `
	SELECT t.user_id, COALESCE(u.name, t.user_name), COALESCE(u.email, t.user_email), t.cnt
	FROM (
		SELECT user_id, MAX(user_name) AS user_name, MAX(user_email) AS user_email, COUNT(*) AS cnt
		FROM borrow_records
		GROUP BY user_id
	) t
	LEFT JOIN users u ON u.id = t.user_id
	ORDER BY t.cnt DESC, t.user_id ASC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ActiveMember{}
	for rows.Next() {
		var m ActiveMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.BorrowCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Availability(ctx context.Context, q db.DBTX) (AvailabilityReport, error) {
	var r AvailabilityReport
	err := q.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(total_copies), 0), COALESCE(SUM(total_borrowed_count), 0)
	FROM books`).Scan(&r.TotalBooksCount, &r.AvailableCopies, &r.LifetimeBorrowCount)
	if err != nil {
		return AvailabilityReport{}, err
	}

	// 削除済みの本に紐づく未返却分は数えない
	err = q.QueryRowContext(ctx, `
	SELECT COUNT(*)
	FROM borrow_records r
	JOIN books b ON b.id = r.book_id
	WHERE r.status IN ('borrowed', 'overdue')`).Scan(&r.BorrowedCopies)
	if err != nil {
		return AvailabilityReport{}, err
	}
	r.TotalCopiesEverProvisioned = r.AvailableCopies + r.BorrowedCopies
	return r, nil
}
