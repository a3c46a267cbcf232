package borrows

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"nalanda-backend/internal/books"
	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/db"
	"nalanda-backend/internal/platform/ids"
	"nalanda-backend/internal/users"
)

// Catalog is the book side of a borrow or return.
type Catalog interface {
	LockByID(ctx context.Context, q db.DBTX, id string) (*books.Book, error)
	Save(ctx context.Context, q db.DBTX, b *books.Book) error
	AppendHistory(ctx context.Context, q db.DBTX, e books.HistoryEntry) error
	StampHistoryReturn(ctx context.Context, q db.DBTX, borrowRecordID string, at time.Time) (bool, error)
}

// Members is the user side of a borrow or return.
type Members interface {
	GetByEmail(ctx context.Context, q db.DBTX, email string) (*users.User, error)
	AppendBorrowed(ctx context.Context, q db.DBTX, b users.BorrowedBook) error
	MarkBorrowedReturned(ctx context.Context, q db.DBTX, borrowRecordID string) (bool, error)
}

type Ledger interface {
	Insert(ctx context.Context, q db.DBTX, r *Record) error
	FindOpen(ctx context.Context, q db.DBTX, email, bookID string) (*Record, error)
	MarkReturned(ctx context.Context, q db.DBTX, id string, at time.Time) error
	List(ctx context.Context, userID string) ([]RecordView, error)
	SweepOverdue(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	db      *sql.DB
	catalog Catalog
	members Members
	ledger  Ledger
	clock   ids.Clock
	id      ids.IDGen
}

func NewService(conn *sql.DB, d db.Dialect) *Service {
	return &Service{
		db:      conn,
		catalog: books.NewStore(conn, d),
		members: users.NewStore(conn),
		ledger:  NewStore(conn, d),
		clock:   ids.RealClock{},
		id:      ids.NewULIDGen(),
	}
}

// resolveDueDate: 未指定なら7日後。日付だけならその日の終わりまで
func resolveDueDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Add(defaultLoanPeriod), nil
	}
	due, err := books.ParseDate(raw)
	if err != nil {
		return time.Time{}, apierr.ErrInvalid(err.Error())
	}
	if len(raw) == len(time.DateOnly) {
		due = due.Add(24*time.Hour - time.Second)
	}
	if due.Before(now) {
		return time.Time{}, apierr.ErrInvalid("due date must not be in the past")
	}
	return due, nil
}

// POST /borrow/record-borrow-book/:id
// 1トランザクションで台帳・在庫・履歴・利用者側の写しをまとめて更新する
func (s *Service) BorrowBook(ctx context.Context, bookID string, in BorrowRequest) (BorrowResult, error) {
	email := users.NormalizeEmail(in.Email)
	if email == "" {
		return BorrowResult{}, apierr.ErrInvalid("user email is required")
	}
	now := s.clock.Now()
	due, err := resolveDueDate(in.DueDate, now)
	if err != nil {
		return BorrowResult{}, err
	}

	var res BorrowResult
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		u, err := s.members.GetByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if u == nil {
			return apierr.ErrNotFound("user not found with this email")
		}

		b, err := s.catalog.LockByID(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if b == nil {
			return apierr.ErrNotFound("book not found")
		}

		open, err := s.ledger.FindOpen(ctx, tx, email, b.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return apierr.ErrConflict(fmt.Sprintf("%s has already borrowed %q and has not returned it yet", u.Name, b.Title))
		}
		if !b.CheckOut(now) {
			return apierr.ErrConflict(fmt.Sprintf("no copies of %q are available", b.Title))
		}

		rec := &Record{
			ID:         s.id.NewULID(now),
			UserID:     u.ID,
			UserName:   u.Name,
			UserEmail:  u.Email,
			BookID:     b.ID,
			BorrowDate: now,
			DueDate:    due,
			Status:     StatusBorrowed,
		}
		if err := s.ledger.Insert(ctx, tx, rec); err != nil {
			return err
		}
		if err := s.catalog.Save(ctx, tx, b); err != nil {
			return err
		}
		if err := s.catalog.AppendHistory(ctx, tx, books.HistoryEntry{
			BorrowRecordID: rec.ID,
			BookID:         b.ID,
			UserID:         u.ID,
			BorrowDate:     now,
		}); err != nil {
			return err
		}
		if err := s.members.AppendBorrowed(ctx, tx, users.BorrowedBook{
			BorrowRecordID: rec.ID,
			UserID:         u.ID,
			BookID:         b.ID,
			BookTitle:      b.Title,
			BorrowDate:     now,
			DueDate:        due,
		}); err != nil {
			return err
		}

		res = BorrowResult{
			Message:      fmt.Sprintf("%q borrowed by %s, due %s", b.Title, u.Name, due.Format(time.DateOnly)),
			BorrowRecord: toRecordResponse(rec),
			UpdatedBook: BookCounters{
				TotalCopies:        b.TotalCopies,
				Availability:       b.Availability,
				TotalBorrowedCount: b.TotalBorrowedCount,
			},
		}
		return nil
	})
	if err != nil {
		return BorrowResult{}, err
	}
	log.Printf("[INFO] borrow %s: book=%s user=%s", res.BorrowRecord.ID, bookID, email)
	return res, nil
}

// PUT /borrow/return-borrowed-book/:bookId
func (s *Service) ReturnBook(ctx context.Context, bookID string, in ReturnRequest) (ReturnResult, error) {
	email := users.NormalizeEmail(in.Email)
	if email == "" {
		return ReturnResult{}, apierr.ErrInvalid("user email is required")
	}
	now := s.clock.Now()

	var res ReturnResult
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		u, err := s.members.GetByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if u == nil {
			return apierr.ErrNotFound("user not found with this email")
		}

		// ロック順は貸出と同じく 本 → 台帳。本が削除済みでも台帳の返却は通す
		b, err := s.catalog.LockByID(ctx, tx, bookID)
		if err != nil {
			return err
		}

		rec, err := s.ledger.FindOpen(ctx, tx, email, bookID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apierr.ErrNotFound("no active borrow record found for this user and book")
		}

		if err := s.ledger.MarkReturned(ctx, tx, rec.ID, now); err != nil {
			return err
		}
		rec.Status = StatusReturned
		rec.ReturnDate = sql.NullTime{Time: now, Valid: true}

		if b != nil {
			b.CheckIn(now)
			if err := s.catalog.Save(ctx, tx, b); err != nil {
				return err
			}
			if ok, err := s.catalog.StampHistoryReturn(ctx, tx, rec.ID, now); err != nil {
				return err
			} else if !ok {
				log.Printf("[WARN] no history entry for borrow %s on book %s", rec.ID, b.ID)
			}
		} else {
			log.Printf("[WARN] book %s is gone; returning borrow %s on the ledger only", bookID, rec.ID)
		}

		if ok, err := s.members.MarkBorrowedReturned(ctx, tx, rec.ID); err != nil {
			return err
		} else if !ok {
			log.Printf("[WARN] no borrowed-book entry for borrow %s of user %s", rec.ID, u.ID)
		}

		res = ReturnResult{BorrowRecord: toRecordResponse(rec)}
		if b != nil {
			title := b.Title
			res.BookTitle = &title
			res.UpdatedBook = &BookCounters{
				TotalCopies:        b.TotalCopies,
				Availability:       b.Availability,
				TotalBorrowedCount: b.TotalBorrowedCount,
			}
			res.Message = fmt.Sprintf("%q returned by %s", b.Title, u.Name)
		} else {
			res.Message = fmt.Sprintf("book returned by %s", u.Name)
		}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	log.Printf("[INFO] return %s: book=%s user=%s", res.BorrowRecord.ID, bookID, email)
	return res, nil
}

// GET /borrow/borrowed-books-by-user (admin)
func (s *Service) ListBorrowRecords(ctx context.Context) ([]RecordWithBookResponse, error) {
	vs, err := s.ledger.List(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, apierr.ErrNotFound("no borrowed books found")
	}
	return toViewResponses(vs), nil
}

// GET /borrow/my-borrowed-books
func (s *Service) MyBorrowedBooks(ctx context.Context, userID string) ([]RecordWithBookResponse, error) {
	vs, err := s.ledger.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, apierr.ErrNotFound("you have not borrowed any books")
	}
	return toViewResponses(vs), nil
}

// SweepOverdue marks records past their due date as overdue.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	n, err := s.ledger.SweepOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] overdue sweep: %d record(s) marked overdue", n)
	return n, nil
}
