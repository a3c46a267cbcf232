package borrows

import "time"

// ===== Requests =====

type BorrowRequest struct {
	Email   string `json:"email"`
	DueDate string `json:"due_date,omitempty"` // 省略時は7日後
}

type ReturnRequest struct {
	Email string `json:"email"`
}

// ===== Responses =====

type RecordResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	UserName   string     `json:"user_name"`
	UserEmail  string     `json:"user_email"`
	BookID     string     `json:"book_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`
	Status     Status     `json:"status"`
	FineAmount float64    `json:"fine_amount"`
}

type BookCounters struct {
	TotalCopies        int  `json:"total_copies"`
	Availability       bool `json:"availability"`
	TotalBorrowedCount int  `json:"total_borrowed_count"`
}

type BorrowResult struct {
	Message      string         `json:"message"`
	BorrowRecord RecordResponse `json:"borrow_record"`
	UpdatedBook  BookCounters   `json:"updated_book"`
}

// ReturnResult carries nil title and counters when the book row no longer exists.
type ReturnResult struct {
	Message      string         `json:"message"`
	BorrowRecord RecordResponse `json:"borrow_record"`
	BookTitle    *string        `json:"book_title"`
	UpdatedBook  *BookCounters  `json:"updated_book"`
}

type BookSummaryResponse struct {
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	PublicationDate time.Time `json:"publication_date"`
	TotalCopies     int       `json:"total_copies"`
	Availability    bool      `json:"availability"`
}

type RecordWithBookResponse struct {
	RecordResponse
	Book *BookSummaryResponse `json:"book"`
}

func toRecordResponse(r *Record) RecordResponse {
	out := RecordResponse{
		ID:         r.ID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		UserEmail:  r.UserEmail,
		BookID:     r.BookID,
		BorrowDate: r.BorrowDate,
		DueDate:    r.DueDate,
		Status:     r.Status,
		FineAmount: r.FineAmount,
	}
	if r.ReturnDate.Valid {
		v := r.ReturnDate.Time
		out.ReturnDate = &v
	}
	return out
}

func toViewResponses(vs []RecordView) []RecordWithBookResponse {
	out := make([]RecordWithBookResponse, 0, len(vs))
	for i := range vs {
		r := RecordWithBookResponse{RecordResponse: toRecordResponse(&vs[i].Record)}
		if b := vs[i].Book; b != nil {
			r.Book = &BookSummaryResponse{
				Title:           b.Title,
				Author:          b.Author,
				Genre:           b.Genre,
				PublicationDate: b.PublicationDate,
				TotalCopies:     b.TotalCopies,
				Availability:    b.Availability,
			}
		}
		out = append(out, r)
	}
	return out
}
