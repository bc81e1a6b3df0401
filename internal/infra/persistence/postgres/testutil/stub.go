// Package testutil provides a stub database/sql driver that understands the
// statements the postgres snapshot store issues against its snapshots table.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
)

// SnapshotRow is one stored row of the snapshots table.
type SnapshotRow struct {
	ID      string
	Name    string
	Version string
	SavedAt any
	Cells   any
	Payload any
}

// StubConn records statements and keeps snapshot rows in memory.
type StubConn struct {
	Execs      []string
	Rows       map[string]SnapshotRow
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver and returns a sql.DB bound to it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string]SnapshotRow)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *StubConn) Close() error                        { return nil }
func (c *StubConn) Begin() (driver.Tx, error)           { return c.BeginTx(context.Background(), driver.TxOptions{}) }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	return &stubTx{conn: c}, nil
}

func statement(query string) string {
	return strings.ToUpper(strings.Join(strings.Fields(query), " "))
}

// ExecContext implements driver.ExecerContext for CREATE, upsert and DELETE.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("exec fail")
	}
	stmt := statement(query)
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(stmt, "INSERT INTO SNAPSHOTS"):
		if len(args) != 6 {
			return nil, fmt.Errorf("insert snapshots: want 6 args, got %d", len(args))
		}
		id, _ := args[0].Value.(string)
		name, _ := args[1].Value.(string)
		version, _ := args[2].Value.(string)
		c.Rows[id] = SnapshotRow{ID: id, Name: name, Version: version, SavedAt: args[3].Value, Cells: args[4].Value, Payload: args[5].Value}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(stmt, "DELETE FROM SNAPSHOTS WHERE ID"):
		id, _ := args[0].Value.(string)
		if _, ok := c.Rows[id]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, id)
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

// QueryContext implements driver.QueryerContext for the payload lookup and
// the listing query.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	stmt := statement(query)
	switch {
	case strings.HasPrefix(stmt, "SELECT PAYLOAD FROM SNAPSHOTS WHERE ID"):
		id, _ := args[0].Value.(string)
		rows := &stubRows{cols: []string{"payload"}, err: c.RowsErr}
		if row, ok := c.Rows[id]; ok {
			rows.rows = [][]driver.Value{{row.Payload}}
		}
		return rows, nil
	case strings.HasPrefix(stmt, "SELECT ID, NAME, VERSION, SAVED_AT, CELLS FROM SNAPSHOTS"):
		ids := make([]string, 0, len(c.Rows))
		for id := range c.Rows {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		rows := &stubRows{cols: []string{"id", "name", "version", "saved_at", "cells"}, err: c.RowsErr}
		for _, id := range ids {
			r := c.Rows[id]
			rows.rows = append(rows.rows, []driver.Value{r.ID, r.Name, r.Version, r.SavedAt, r.Cells})
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
