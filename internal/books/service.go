package books

import (
	"context"
	"database/sql"
	"strings"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/db"
	"nalanda-backend/internal/platform/ids"
)

type Service struct {
	db    *sql.DB
	store *Store
	clock ids.Clock
	id    ids.IDGen
}

func NewService(conn *sql.DB, d db.Dialect) *Service {
	return &Service{
		db:    conn,
		store: NewStore(conn, d),
		clock: ids.RealClock{},
		id:    ids.NewULIDGen(),
	}
}

// POST /book/admin/add
func (s *Service) AddBook(ctx context.Context, in CreateBookRequest) (BookResponse, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	desc := strings.TrimSpace(in.Description)
	genre := strings.TrimSpace(in.Genre)
	if title == "" || author == "" || desc == "" || genre == "" || strings.TrimSpace(in.PublicationDate) == "" {
		return BookResponse{}, apierr.ErrInvalid("please provide all required fields")
	}
	if in.TotalCopies < 1 {
		return BookResponse{}, apierr.ErrInvalid("total_copies must be at least 1")
	}
	pub, err := ParseDate(in.PublicationDate)
	if err != nil {
		return BookResponse{}, apierr.ErrInvalid(err.Error())
	}

	now := s.clock.Now()
	b := &Book{
		ID:              s.id.NewULID(now),
		Title:           title,
		Author:          author,
		Description:     desc,
		PublicationDate: pub,
		Genre:           genre,
		CreatedAt:       now,
	}
	b.SetCopies(in.TotalCopies, now)

	if err := s.store.Insert(ctx, b); err != nil {
		return BookResponse{}, err
	}
	return toResponse(b), nil
}

// GET /book/:id 貸出履歴つき
func (s *Service) GetBook(ctx context.Context, id string) (BookResponse, error) {
	var out BookResponse
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		b, err := s.store.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apierr.ErrNotFound("book not found")
		}
		hs, err := s.store.History(ctx, tx, id)
		if err != nil {
			return err
		}
		out = toResponse(b)
		out.BorrowHistory = toHistoryResponse(hs)
		return nil
	})
	return out, err
}

// GET /book/all
func (s *Service) ListBooks(ctx context.Context, q BookSearchQuery, p Page) (BookListResponse, error) {
	p = p.normalize()
	list, total, err := s.store.List(ctx, q, p)
	if err != nil {
		return BookListResponse{}, err
	}
	res := BookListResponse{
		TotalBooks:  total,
		CurrentPage: p.Page,
		TotalPages:  int((total + int64(p.Limit) - 1) / int64(p.Limit)),
		Results:     make([]BookResponse, 0, len(list)),
	}
	for i := range list {
		res.Results = append(res.Results, toResponse(&list[i]))
	}
	return res, nil
}

// PUT /book/admin/update/:id
func (s *Service) UpdateBook(ctx context.Context, id string, in UpdateBookRequest) (BookResponse, error) {
	for _, f := range []*string{in.Title, in.Author, in.Description, in.Genre, in.PublicationDate} {
		if f != nil && strings.TrimSpace(*f) == "" {
			return BookResponse{}, apierr.ErrInvalid("fields must not be empty")
		}
	}
	if in.TotalCopies != nil && *in.TotalCopies < 0 {
		return BookResponse{}, apierr.ErrInvalid("total_copies must not be negative")
	}

	var out BookResponse
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		b, err := s.store.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apierr.ErrNotFound("book not found")
		}

		now := s.clock.Now()
		if in.Title != nil {
			b.Title = strings.TrimSpace(*in.Title)
		}
		if in.Author != nil {
			b.Author = strings.TrimSpace(*in.Author)
		}
		if in.Description != nil {
			b.Description = strings.TrimSpace(*in.Description)
		}
		if in.Genre != nil {
			b.Genre = strings.TrimSpace(*in.Genre)
		}
		if in.PublicationDate != nil {
			t, err := ParseDate(*in.PublicationDate)
			if err != nil {
				return apierr.ErrInvalid(err.Error())
			}
			b.PublicationDate = t
		}
		if in.TotalCopies != nil {
			b.SetCopies(*in.TotalCopies, now)
		}
		b.UpdatedAt = now

		if err := s.store.Save(ctx, tx, b); err != nil {
			return err
		}
		out = toResponse(b)
		return nil
	})
	return out, err
}

// DELETE /book/delete/:id
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		n, err := s.store.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.ErrNotFound("book not found")
		}
		return nil
	})
}
