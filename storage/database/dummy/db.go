// Package dummy provides an in-memory database and repositories for tests.
package dummy

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/dojokit/beltway/core"
	"github.com/dojokit/beltway/core/progression"
	"github.com/dojokit/beltway/core/rank"
)

var errRawSQL = errors.New("dummy: raw SQL not supported")

type (
	DB struct {
		rank    *rankTable
		record  *recordTable
		grant   *grantTable
		request *requestTable
		history *historyTable
	}

	rankTable struct {
		sync.RWMutex
		table map[string]*rank.Rank
	}
	recordTable struct {
		sync.RWMutex
		table map[string]*progression.Record
	}
	grantTable struct {
		sync.RWMutex
		table map[string]*progression.DegreeGrant
	}
	requestTable struct {
		sync.RWMutex
		table map[string]*progression.PromotionRequest
	}
	historyTable struct {
		sync.RWMutex
		table map[string]*progression.HistoryEntry
	}
)

var _ core.DB = (*DB)(nil)

func Open() (*DB, error) {
	db := &DB{
		rank:    &rankTable{table: make(map[string]*rank.Rank)},
		record:  &recordTable{table: make(map[string]*progression.Record)},
		grant:   &grantTable{table: make(map[string]*progression.DegreeGrant)},
		request: &requestTable{table: make(map[string]*progression.PromotionRequest)},
		history: &historyTable{table: make(map[string]*progression.HistoryEntry)},
	}
	return db, nil
}

func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errRawSQL
}
func (db *DB) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errRawSQL
}
func (db *DB) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errRawSQL
}

// BeginTx returns a no-op transactor; writes apply immediately and are not
// rolled back. Good enough for service tests, which only fail before writing.
func (db *DB) BeginTx(context.Context, *sql.TxOptions) (core.DBTransactor, error) {
	return &tx{db: db}, nil
}

type tx struct {
	db *DB
}

var _ core.DBTransactor = (*tx)(nil)

func (t *tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.db.ExecContext(ctx, query, args...)
}
func (t *tx) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.db.GetContext(ctx, dest, query, args...)
}
func (t *tx) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.db.SelectContext(ctx, dest, query, args...)
}
func (t *tx) Commit() error   { return nil }
func (t *tx) Rollback() error { return nil }
