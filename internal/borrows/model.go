package borrows

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
)

// Open reports whether a record still holds a copy.
func (s Status) Open() bool { return s == StatusBorrowed || s == StatusOverdue }

const defaultLoanPeriod = 7 * 24 * time.Hour

type Record struct {
	ID         string
	UserID     string
	UserName   string
	UserEmail  string
	BookID     string
	BorrowDate time.Time
	DueDate    time.Time
	ReturnDate sql.NullTime
	Status     Status
	FineAmount float64
}

// BookSummary is the catalog side of a listed record; nil when the book is gone.
type BookSummary struct {
	Title           string
	Author          string
	Genre           string
	PublicationDate time.Time
	TotalCopies     int
	Availability    bool
}

type RecordView struct {
	Record
	Book *BookSummary
}
