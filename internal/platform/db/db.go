package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"nalanda-backend/internal/platform/config"
)

// Dialect captures what differs between the production and embedded stores.
type Dialect struct {
	Driver string
	// 行ロック句。sqlite はトランザクション開始時点で書き込みロックを取るので空
	ForUpdate string
	// go-sqlite3 は宣言型が DATETIME の列だけを time.Time に変換する
	TimeType string
}

func DialectFor(driver string) Dialect {
	if driver == config.DriverSQLite {
		return Dialect{Driver: config.DriverSQLite, ForUpdate: "", TimeType: "DATETIME"}
	}
	return Dialect{Driver: config.DriverMySQL, ForUpdate: " FOR UPDATE", TimeType: "DATETIME(6)"}
}

func Connect(c config.DatabaseConfig) (*sql.DB, error) {
	var dsn string
	switch c.Driver {
	case config.DriverSQLite:
		// _txlock=immediate: BEGIN 時点で RESERVED ロックを取り、貸出・返却を直列化する
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate&_journal_mode=WAL", c.Path)
	case config.DriverMySQL, "":
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&clientFoundRows=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
			c.Username, c.Password, c.Host, c.Port, c.DBName)
	default:
		return nil, fmt.Errorf("unsupported driver %q", c.Driver)
	}

	driver := DialectFor(c.Driver).Driver
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	if driver == config.DriverMySQL {
		db.SetMaxOpenConns(80)
		db.SetMaxIdleConns(20)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(8)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// IsDuplicateKey reports whether err is a unique constraint violation from
// either supported driver.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
