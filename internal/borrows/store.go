package borrows

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/db"
)

type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB, d db.Dialect) *Store { return &Store{db: conn, dialect: d} }

const recordColumns = `r.id, r.user_id, r.user_name, r.user_email, r.book_id, r.borrow_date, r.due_date,
	r.return_date, r.status, r.fine_amount`

func (s *Store) Insert(ctx context.Context, q db.DBTX, r *Record) error {
	const stmt = `
	INSERT INTO borrow_records
		(id, user_id, user_name, user_email, book_id, borrow_date, due_date, return_date, status, fine_amount)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt,
		r.ID, r.UserID, r.UserName, r.UserEmail, r.BookID, r.BorrowDate, r.DueDate, r.ReturnDate, string(r.Status), r.FineAmount)
	return err
}

// FindOpen returns the open record for (email, book), or nil. The row is
// locked so a concurrent borrow or return of the same pair waits.
func (s *Store) FindOpen(ctx context.Context, q db.DBTX, email, bookID string) (*Record, error) {
	stmt := `SELECT ` + recordColumns + `
	FROM borrow_records r
	WHERE r.user_email = ? AND r.book_id = ? AND r.status IN (?, ?)
	ORDER BY r.borrow_date DESC, r.id DESC
	LIMIT 1` + s.dialect.ForUpdate

	var r Record
	var status string
	err := q.QueryRowContext(ctx, stmt, email, bookID, string(StatusBorrowed), string(StatusOverdue)).Scan(
		&r.ID, &r.UserID, &r.UserName, &r.UserEmail, &r.BookID, &r.BorrowDate, &r.DueDate,
		&r.ReturnDate, &status, &r.FineAmount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func (s *Store) MarkReturned(ctx context.Context, q db.DBTX, id string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE borrow_records SET return_date = ?, status = ? WHERE id = ? AND status IN (?, ?)`,
		at, string(StatusReturned), id, string(StatusBorrowed), string(StatusOverdue))
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.ErrConflict("borrow record is no longer open")
	}
	return nil
}

// List returns records newest first with their book summary. An empty userID
// lists every record.
func (s *Store) List(ctx context.Context, userID string) ([]RecordView, error) {
	stmt := `SELECT ` + recordColumns + `,
		b.title, b.author, b.genre, b.publication_date, b.total_copies, b.availability
	FROM borrow_records r
	LEFT JOIN books b ON b.id = r.book_id`
	args := []any{}
	if userID != "" {
		stmt += ` WHERE r.user_id = ?`
		args = append(args, userID)
	}
	stmt += ` ORDER BY r.borrow_date DESC, r.id DESC`

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RecordView{}
	for rows.Next() {
		var (
			v       RecordView
			status  string
			title   sql.NullString
			author  sql.NullString
			genre   sql.NullString
			pubDate sql.NullTime
			copies  sql.NullInt64
			avail   sql.NullBool
		)
		if err := rows.Scan(
			&v.ID, &v.UserID, &v.UserName, &v.UserEmail, &v.BookID, &v.BorrowDate, &v.DueDate,
			&v.ReturnDate, &status, &v.FineAmount,
			&title, &author, &genre, &pubDate, &copies, &avail,
		); err != nil {
			return nil, err
		}
		v.Status = Status(status)
		if title.Valid {
			v.Book = &BookSummary{
				Title:           title.String,
				Author:          author.String,
				Genre:           genre.String,
				PublicationDate: pubDate.Time,
				TotalCopies:     int(copies.Int64),
				Availability:    avail.Bool,
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SweepOverdue flips every borrowed record whose due date is before now.
func (s *Store) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE borrow_records SET status = ? WHERE status = ? AND due_date < ?`,
		string(StatusOverdue), string(StatusBorrowed), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
