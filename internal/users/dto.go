package users

import "time"

// ===== Requests =====

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type UpdatePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// ===== Responses =====

type BorrowedBookResponse struct {
	BorrowRecordID string    `json:"borrow_record_id"`
	BookID         string    `json:"book_id"`
	BookTitle      string    `json:"book_title"`
	BorrowDate     time.Time `json:"borrow_date"`
	DueDate        time.Time `json:"due_date"`
	Returned       bool      `json:"returned"`
}

// UserResponse never carries the password hash, codes or tokens.
type UserResponse struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Email           string                 `json:"email"`
	Role            string                 `json:"role"`
	AccountVerified bool                   `json:"account_verified"`
	BorrowedBooks   []BorrowedBookResponse `json:"borrowed_books"`
	CreatedAt       time.Time              `json:"created_at"`
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      UserResponse
}

func toResponse(u *User, borrowed []BorrowedBook) UserResponse {
	res := UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		AccountVerified: u.AccountVerified,
		BorrowedBooks:   make([]BorrowedBookResponse, 0, len(borrowed)),
		CreatedAt:       u.CreatedAt,
	}
	for _, b := range borrowed {
		res.BorrowedBooks = append(res.BorrowedBooks, BorrowedBookResponse{
			BorrowRecordID: b.BorrowRecordID,
			BookID:         b.BookID,
			BookTitle:      b.BookTitle,
			BorrowDate:     b.BorrowDate,
			DueDate:        b.DueDate,
			Returned:       b.Returned,
		})
	}
	return res
}
