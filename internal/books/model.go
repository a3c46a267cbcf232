package books

import (
	"database/sql"
	"time"
)

type Book struct {
	ID                 string
	Title              string
	Author             string
	Description        string
	PublicationDate    time.Time
	Genre              string
	TotalCopies        int // 貸出可能な残り冊数
	Availability       bool
	TotalBorrowedCount int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CheckOut takes one copy off the shelf. It reports false when none is left.
func (b *Book) CheckOut(at time.Time) bool {
	if b.TotalCopies <= 0 {
		return false
	}
	b.TotalCopies--
	b.TotalBorrowedCount++
	b.Availability = b.TotalCopies > 0
	b.UpdatedAt = at
	return true
}

func (b *Book) CheckIn(at time.Time) {
	b.TotalCopies++
	b.Availability = b.TotalCopies > 0
	b.UpdatedAt = at
}

// SetCopies overwrites the shelf count and keeps availability in step.
func (b *Book) SetCopies(n int, at time.Time) {
	b.TotalCopies = n
	b.Availability = n > 0
	b.UpdatedAt = at
}

// HistoryEntry is one borrow of a book, keyed by the ledger record it mirrors.
type HistoryEntry struct {
	BorrowRecordID string
	BookID         string
	UserID         string
	BorrowDate     time.Time
	ReturnDate     sql.NullTime
}
