package reports

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nalanda-backend/internal/books"
	"nalanda-backend/internal/borrows"
	"nalanda-backend/internal/platform/auth"
	"nalanda-backend/internal/platform/db/dbtest"
	"nalanda-backend/internal/users"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	conn    *sql.DB
	books   *books.Store
	users   *users.Store
	ledger  *borrows.Store
	records int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	return &fixture{
		svc:    NewService(conn),
		conn:   conn,
		books:  books.NewStore(conn, dbtest.Dialect()),
		users:  users.NewStore(conn),
		ledger: borrows.NewStore(conn, dbtest.Dialect()),
	}
}

func (f *fixture) seedBook(t *testing.T, id, title string, copies, borrowed int) {
	t.Helper()
	require.NoError(t, f.books.Insert(context.Background(), &books.Book{
		ID:                 id,
		Title:              title,
		Author:             "Anita Desai",
		PublicationDate:    t0,
		Genre:              "Fiction",
		TotalCopies:        copies,
		Availability:       copies > 0,
		TotalBorrowedCount: borrowed,
		CreatedAt:          t0,
		UpdatedAt:          t0,
	}))
}

func (f *fixture) seedUser(t *testing.T, id, name, email string) {
	t.Helper()
	require.NoError(t, f.users.Insert(context.Background(), &users.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: "x",
		Role:         auth.RoleUser,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}))
}

// seedRecords は userID の台帳行を n 件追加する
func (f *fixture) seedRecords(t *testing.T, userID, name, email, bookID string, n int, status borrows.Status) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.records++
		at := t0.Add(time.Duration(f.records) * time.Hour)
		rec := &borrows.Record{
			ID:         fmt.Sprintf("R%04d", f.records),
			UserID:     userID,
			UserName:   name,
			UserEmail:  email,
			BookID:     bookID,
			BorrowDate: at,
			DueDate:    at.Add(7 * 24 * time.Hour),
			Status:     status,
		}
		if status == borrows.StatusReturned {
			rec.ReturnDate = sql.NullTime{Time: at.Add(time.Hour), Valid: true}
		}
		require.NoError(t, f.ledger.Insert(context.Background(), f.conn, rec))
	}
}

func TestMostBorrowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.MostBorrowed(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	f.seedBook(t, "B3", "Clear Light of Day", 2, 4)
	f.seedBook(t, "B1", "Fire on the Mountain", 1, 9)
	f.seedBook(t, "B2", "In Custody", 0, 4)

	got, err = f.svc.MostBorrowed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].ID)
	assert.Equal(t, 9, got[0].TotalBorrowedCount)

	got, err = f.svc.MostBorrowed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// 同数は id 昇順
	assert.Equal(t, []string{"B1", "B2", "B3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.False(t, got[1].Availability)
}

func TestMostActiveMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBook(t, "B1", "Fire on the Mountain", 5, 0)
	f.seedUser(t, "U1", "Asha", "asha@example.com")
	f.seedUser(t, "U2", "Ravi", "ravi@example.com")
	f.seedUser(t, "U3", "Meera", "meera@example.com")

	f.seedRecords(t, "U3", "Meera", "meera@example.com", "B1", 1, borrows.StatusReturned)
	f.seedRecords(t, "U1", "Asha", "asha@example.com", "B1", 5, borrows.StatusReturned)
	f.seedRecords(t, "U2", "Ravi", "ravi@example.com", "B1", 3, borrows.StatusReturned)

	got, err := f.svc.MostActiveMembers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ActiveMember{UserID: "U1", Name: "Asha", Email: "asha@example.com", BorrowCount: 5}, got[0])
	assert.Equal(t, ActiveMember{UserID: "U2", Name: "Ravi", Email: "ravi@example.com", BorrowCount: 3}, got[1])

	got, err = f.svc.MostActiveMembers(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMostActiveMembersTieBreakAndMissingUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBook(t, "B1", "Fire on the Mountain", 5, 0)
	f.seedUser(t, "U2", "Ravi", "ravi@example.com")

	f.seedRecords(t, "U2", "Ravi", "ravi@example.com", "B1", 2, borrows.StatusReturned)
	// U1 はアカウント削除済み、台帳の写しだけが残る
	f.seedRecords(t, "U1", "Asha", "asha@example.com", "B1", 2, borrows.StatusReturned)

	got, err := f.svc.MostActiveMembers(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "U1", got[0].UserID)
	assert.Equal(t, "Asha", got[0].Name)
	assert.Equal(t, "asha@example.com", got[0].Email)
	assert.Equal(t, "U2", got[1].UserID)
}

func TestAvailabilityReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.AvailabilityReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, AvailabilityReport{}, got)

	f.seedBook(t, "B1", "Fire on the Mountain", 2, 0)
	f.seedBook(t, "B2", "In Custody", 3, 0)

	got, err = f.svc.AvailabilityReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, AvailabilityReport{
		TotalBooksCount:            2,
		AvailableCopies:            5,
		BorrowedCopies:             0,
		LifetimeBorrowCount:        0,
		TotalCopiesEverProvisioned: 5,
	}, got)
}

func TestAvailabilityReportCountsOpenRecordsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBook(t, "B1", "Fire on the Mountain", 1, 6)
	f.seedBook(t, "B2", "In Custody", 2, 1)

	f.seedRecords(t, "U1", "Asha", "asha@example.com", "B1", 4, borrows.StatusReturned)
	f.seedRecords(t, "U1", "Asha", "asha@example.com", "B1", 1, borrows.StatusBorrowed)
	f.seedRecords(t, "U2", "Ravi", "ravi@example.com", "B1", 1, borrows.StatusOverdue)
	f.seedRecords(t, "U2", "Ravi", "ravi@example.com", "B2", 1, borrows.StatusBorrowed)
	// 削除済みの本への貸出
	f.seedRecords(t, "U2", "Ravi", "ravi@example.com", "GONE", 1, borrows.StatusBorrowed)

	got, err := f.svc.AvailabilityReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalBooksCount)
	assert.Equal(t, int64(3), got.AvailableCopies)
	assert.Equal(t, int64(3), got.BorrowedCopies)
	assert.Equal(t, int64(7), got.LifetimeBorrowCount)
	assert.Equal(t, int64(6), got.TotalCopiesEverProvisioned)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 5, normalizeLimit(0, 5))
	assert.Equal(t, 5, normalizeLimit(-3, 5))
	assert.Equal(t, 2, normalizeLimit(2, 5))
	assert.Equal(t, MaxLimit, normalizeLimit(MaxLimit+1, 5))
}

func TestReportRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	f.seedBook(t, "B1", "Fire on the Mountain", 2, 3)

	iss := auth.NewIssuer([]byte("test-secret"), time.Hour)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), f.svc, auth.RequireAuth(iss))
	admin, _, err := iss.Issue("01ADMIN", auth.RoleAdmin, time.Now())
	require.NoError(t, err)
	member, _, err := iss.Issue("01USER", auth.RoleUser, time.Now())
	require.NoError(t, err)

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/borrow/book-avail-report", "").Code)
	assert.Equal(t, http.StatusForbidden, get("/api/v1/borrow/book-avail-report", member).Code)

	w := get("/api/v1/borrow/book-avail-report", admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"available_copies":2`)

	w = get("/api/v1/borrow/most-borrowed-book?limit=3", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"B1"`)

	assert.Equal(t, http.StatusBadRequest, get("/api/v1/borrow/most-active-user?limit=abc", admin).Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/borrow/most-active-user", admin).Code)
}
