package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"nalanda-backend/internal/platform/config"
)

type index struct {
	name   string
	cols   string
	unique bool
}

type table struct {
	name    string
	columns string // %[1]s は日時型に置き換わる
	indexes []index
}

var schema = []table{
	{
		name: "users",
		columns: `
	id                       VARCHAR(26)  NOT NULL PRIMARY KEY,
	name                     VARCHAR(255) NOT NULL,
	email                    VARCHAR(255) NOT NULL,
	password_hash            VARCHAR(255) NOT NULL,
	role                     VARCHAR(16)  NOT NULL DEFAULT 'user',
	account_verified         BOOLEAN      NOT NULL DEFAULT 0,
	registration_attempts    INT          NOT NULL DEFAULT 0,
	verification_code        INT          NULL,
	verification_code_expire %[1]s NULL,
	reset_password_token     VARCHAR(64)  NULL,
	reset_password_expire    %[1]s NULL,
	created_at               %[1]s NOT NULL,
	updated_at               %[1]s NOT NULL`,
		indexes: []index{
			{name: "uq_users_email", cols: "email", unique: true},
			{name: "idx_users_reset_token", cols: "reset_password_token"},
		},
	},
	{
		name: "books",
		columns: `
	id                   VARCHAR(26)  NOT NULL PRIMARY KEY,
	title                VARCHAR(255) NOT NULL,
	author               VARCHAR(255) NOT NULL,
	description          TEXT         NOT NULL,
	publication_date     %[1]s NOT NULL,
	genre                VARCHAR(128) NOT NULL,
	total_copies         INT          NOT NULL,
	availability         BOOLEAN      NOT NULL,
	total_borrowed_count INT          NOT NULL DEFAULT 0,
	created_at           %[1]s NOT NULL,
	updated_at           %[1]s NOT NULL`,
		indexes: []index{
			{name: "idx_books_created_at", cols: "created_at"},
			{name: "idx_books_borrowed", cols: "total_borrowed_count"},
		},
	},
	{
		name: "book_borrow_history",
		columns: `
	borrow_record_id VARCHAR(26) NOT NULL PRIMARY KEY,
	book_id          VARCHAR(26) NOT NULL,
	user_id          VARCHAR(26) NOT NULL,
	borrow_date      %[1]s NOT NULL,
	return_date      %[1]s NULL`,
		indexes: []index{
			{name: "idx_history_book", cols: "book_id, borrow_date"},
		},
	},
	{
		name: "borrow_records",
		columns: `
	id          VARCHAR(26)  NOT NULL PRIMARY KEY,
	user_id     VARCHAR(26)  NOT NULL,
	user_name   VARCHAR(255) NOT NULL,
	user_email  VARCHAR(255) NOT NULL,
	book_id     VARCHAR(26)  NOT NULL,
	borrow_date %[1]s NOT NULL,
	due_date    %[1]s NOT NULL,
	return_date %[1]s NULL,
	status      VARCHAR(16)  NOT NULL,
	fine_amount DOUBLE       NOT NULL DEFAULT 0`,
		indexes: []index{
			{name: "idx_records_email_book", cols: "user_email, book_id, status"},
			{name: "idx_records_user", cols: "user_id, borrow_date"},
			{name: "idx_records_status_due", cols: "status, due_date"},
		},
	},
	{
		name: "user_borrowed_books",
		columns: `
	borrow_record_id VARCHAR(26)  NOT NULL PRIMARY KEY,
	user_id          VARCHAR(26)  NOT NULL,
	book_id          VARCHAR(26)  NOT NULL,
	book_title       VARCHAR(255) NOT NULL,
	borrow_date      %[1]s NOT NULL,
	due_date         %[1]s NOT NULL,
	returned         BOOLEAN      NOT NULL DEFAULT 0`,
		indexes: []index{
			{name: "idx_user_books_user", cols: "user_id, borrow_date"},
		},
	},
}

// statements renders the DDL for d. MySQL takes indexes inline, sqlite as
// separate CREATE INDEX statements.
func (d Dialect) statements() []string {
	var out []string
	for _, t := range schema {
		cols := fmt.Sprintf(t.columns, d.TimeType)
		if d.Driver == config.DriverMySQL {
			var b strings.Builder
			b.WriteString(cols)
			for _, ix := range t.indexes {
				kw := "INDEX"
				if ix.unique {
					kw = "UNIQUE INDEX"
				}
				fmt.Fprintf(&b, ",\n\t%s %s (%s)", kw, ix.name, ix.cols)
			}
			out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", t.name, b.String()))
			continue
		}
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n)", t.name, cols))
		for _, ix := range t.indexes {
			kw := "INDEX"
			if ix.unique {
				kw = "UNIQUE INDEX"
			}
			out = append(out, fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kw, ix.name, t.name, ix.cols))
		}
	}
	return out
}

// Migrate creates every table and index that does not exist yet.
func Migrate(ctx context.Context, conn *sql.DB, d Dialect) error {
	for _, stmt := range d.statements() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\n%s", err, stmt)
		}
	}
	log.Printf("[INFO] schema ready (%s, %d tables)", d.Driver, len(schema))
	return nil
}
