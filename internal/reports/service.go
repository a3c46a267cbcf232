package reports

import (
	"context"
	"database/sql"

	"nalanda-backend/internal/platform/db"
)

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: conn, store: NewStore(conn)}
}

// GET /borrow/most-borrowed-book
func (s *Service) MostBorrowed(ctx context.Context, limit int) ([]MostBorrowedBook, error) {
	return s.store.MostBorrowed(ctx, normalizeLimit(limit, DefaultMostBorrowedLimit))
}

// GET /borrow/most-active-user
func (s *Service) MostActiveMembers(ctx context.Context, limit int) ([]ActiveMember, error) {
	return s.store.MostActive(ctx, normalizeLimit(limit, DefaultActiveMemberLimit))
}

// GET /borrow/book-avail-report
// 2つの集計を同じスナップショットから取る
func (s *Service) AvailabilityReport(ctx context.Context) (AvailabilityReport, error) {
	var out AvailabilityReport
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.store.Availability(ctx, tx)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}
