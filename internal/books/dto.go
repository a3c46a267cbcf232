package books

import (
	"fmt"
	"strings"
	"time"
)

// ===== Requests =====

type CreateBookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Description     string `json:"description"`
	PublicationDate string `json:"publication_date"` // RFC3339 か YYYY-MM-DD
	Genre           string `json:"genre"`
	TotalCopies     int    `json:"total_copies"`
}

type UpdateBookRequest struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	Description     *string `json:"description,omitempty"`
	PublicationDate *string `json:"publication_date,omitempty"`
	Genre           *string `json:"genre,omitempty"`
	TotalCopies     *int    `json:"total_copies,omitempty"` // >=0
}

type BookSearchQuery struct {
	Genre  string
	Author string
	Search string // title / author / genre のいずれかに部分一致
}

type Page struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func (p Page) normalize() Page {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p Page) offset() int { return (p.Page - 1) * p.Limit }

// ===== Responses =====

type HistoryEntryResponse struct {
	BorrowRecordID string     `json:"borrow_record_id"`
	UserID         string     `json:"user_id"`
	BorrowDate     time.Time  `json:"borrow_date"`
	ReturnDate     *time.Time `json:"return_date"`
}

type BookResponse struct {
	ID                 string                 `json:"id"`
	Title              string                 `json:"title"`
	Author             string                 `json:"author"`
	Description        string                 `json:"description"`
	PublicationDate    time.Time              `json:"publication_date"`
	Genre              string                 `json:"genre"`
	TotalCopies        int                    `json:"total_copies"`
	Availability       bool                   `json:"availability"`
	TotalBorrowedCount int                    `json:"total_borrowed_count"`
	BorrowHistory      []HistoryEntryResponse `json:"borrow_history,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

type BookListResponse struct {
	TotalBooks  int64          `json:"total_books"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
	Results     []BookResponse `json:"results"`
}

func toResponse(b *Book) BookResponse {
	return BookResponse{
		ID:                 b.ID,
		Title:              b.Title,
		Author:             b.Author,
		Description:        b.Description,
		PublicationDate:    b.PublicationDate,
		Genre:              b.Genre,
		TotalCopies:        b.TotalCopies,
		Availability:       b.Availability,
		TotalBorrowedCount: b.TotalBorrowedCount,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func toHistoryResponse(hs []HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(hs))
	for _, h := range hs {
		r := HistoryEntryResponse{BorrowRecordID: h.BorrowRecordID, UserID: h.UserID, BorrowDate: h.BorrowDate}
		if h.ReturnDate.Valid {
			v := h.ReturnDate.Time
			r.ReturnDate = &v
		}
		out = append(out, r)
	}
	return out
}

// ParseDate accepts an RFC3339 timestamp or a bare YYYY-MM-DD date (UTC midnight).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use RFC3339 or YYYY-MM-DD", s)
}
