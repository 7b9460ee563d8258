package database

import (
	"context"
	"database/sql/driver"
	"math/rand"
	"strings"
	"time"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// driverConnector adapts a driver without OpenConnector support to driver.Connector.
type driverConnector struct {
	driver driver.Driver
	dsn    string
}

func (dc *driverConnector) Connect(_ context.Context) (driver.Conn, error) {
	return dc.driver.Open(dc.dsn)
}

func (dc *driverConnector) Driver() driver.Driver {
	return dc.driver
}

// busyConnector hands out connections that retry lock acquisition when SQLite reports
// SQLITE_BUSY or SQLITE_LOCKED. Only starting a transaction and standalone statements are
// retried; a statement that fails inside a transaction surfaces immediately so the caller rolls
// back.
type busyConnector struct {
	connector  driver.Connector
	maxRetries int
}

func newBusyConnector(connector driver.Connector, maxRetries int) *busyConnector {
	return &busyConnector{connector: connector, maxRetries: maxRetries}
}

func (bc *busyConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := bc.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &busyConn{Conn: conn, maxRetries: bc.maxRetries}, nil
}

func (bc *busyConnector) Driver() driver.Driver {
	return bc.connector.Driver()
}

type busyConn struct {
	driver.Conn
	maxRetries int
	inTx       bool
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"database is locked", "database table is locked", "SQLITE_BUSY", "SQLITE_LOCKED", "(5)", "(6)"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// retryWithBackoff runs fn until it succeeds, fails with a non-busy error, or maxRetries retries
// have been spent. Delays double from retryBaseDelay with up to 25% jitter, capped at
// retryMaxDelay.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusyError(err) || attempt >= maxRetries {
			return err
		}

		delay := retryBaseDelay << attempt
		delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *busyConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *busyConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var tx driver.Tx
	err := retryWithBackoff(ctx, c.maxRetries, func() error {
		var err error
		if beginner, ok := c.Conn.(driver.ConnBeginTx); ok {
			tx, err = beginner.BeginTx(ctx, opts)
		} else {
			tx, err = c.Conn.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	c.inTx = true
	return &busyTx{Tx: tx, conn: c}, nil
}

func (c *busyConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if preparer, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return preparer.PrepareContext(ctx, query)
	}
	return c.Conn.Prepare(query)
}

func (c *busyConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	retries := c.maxRetries
	if c.inTx {
		retries = 0
	}
	var result driver.Result
	err := retryWithBackoff(ctx, retries, func() error {
		var err error
		result, err = execer.ExecContext(ctx, query, args)
		return err
	})
	return result, err
}

func (c *busyConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	return queryer.QueryContext(ctx, query, args)
}

func (c *busyConn) ResetSession(ctx context.Context) error {
	if resetter, ok := c.Conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

func (c *busyConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

type busyTx struct {
	driver.Tx
	conn *busyConn
}

func (t *busyTx) Commit() error {
	t.conn.inTx = false
	return t.Tx.Commit()
}

func (t *busyTx) Rollback() error {
	t.conn.inTx = false
	return t.Tx.Rollback()
}
