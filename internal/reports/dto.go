package reports

const (
	DefaultMostBorrowedLimit = 1
	DefaultActiveMemberLimit = 5
	MaxLimit                 = 100
)

type MostBorrowedBook struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Author             string `json:"author"`
	TotalBorrowedCount int    `json:"total_borrowed_count"`
	TotalCopies        int    `json:"total_copies"`
	Availability       bool   `json:"availability"`
}

type ActiveMember struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	BorrowCount int64  `json:"borrow_count"`
}

// AvailabilityReport counts copies on the shelf and copies held by open records.
type AvailabilityReport struct {
	TotalBooksCount            int64 `json:"total_books_count"`
	AvailableCopies            int64 `json:"available_copies"`
	BorrowedCopies             int64 `json:"borrowed_copies"`
	LifetimeBorrowCount        int64 `json:"lifetime_borrow_count"`
	TotalCopiesEverProvisioned int64 `json:"total_copies_ever_provisioned"`
}

// limit<=0 は既定値、上限は MaxLimit
func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
