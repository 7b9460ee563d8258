package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyError(t *testing.T) {
	busy := []string{
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY",
		"sqlite: step: SQLITE_LOCKED",
		"error (5): database busy",
	}
	for _, msg := range busy {
		assert.True(t, isBusyError(errors.New(msg)), msg)
	}

	assert.False(t, isBusyError(nil))
	assert.False(t, isBusyError(errors.New("disk I/O error")))
	assert.False(t, isBusyError(errors.New("UNIQUE constraint failed: files.library_path_id, files.filepath")))
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 5, func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries on busy error and succeeds", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 5, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fails immediately on non-busy error", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 5, func() error {
			attempts++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("exhausts all retries on persistent busy error", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 2, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		attempts := 0
		err := retryWithBackoff(ctx, 10, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, attempts, 10)
	})

	t.Run("zero retries means one attempt only", func(t *testing.T) {
		attempts := 0
		err := retryWithBackoff(context.Background(), 0, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

// scriptedConn fails each Exec or Begin with the next queued error, then succeeds.
type scriptedConn struct {
	errs   []error
	execs  int
	begins int
}

func (c *scriptedConn) next() error {
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func (c *scriptedConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("unused") }

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *scriptedConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.begins++
	if err := c.next(); err != nil {
		return nil, err
	}
	return scriptedTx{}, nil
}

func (c *scriptedConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	c.execs++
	if err := c.next(); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

type scriptedTx struct{}

func (scriptedTx) Commit() error   { return nil }
func (scriptedTx) Rollback() error { return nil }

func TestBusyConn(t *testing.T) {
	locked := errors.New("database is locked")
	ctx := context.Background()

	t.Run("standalone exec retries", func(t *testing.T) {
		inner := &scriptedConn{errs: []error{locked, locked}}
		conn := &busyConn{Conn: inner, maxRetries: 3}

		_, err := conn.ExecContext(ctx, "UPDATE books SET title = ?", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, inner.execs)
	})

	t.Run("begin retries", func(t *testing.T) {
		inner := &scriptedConn{errs: []error{locked}}
		conn := &busyConn{Conn: inner, maxRetries: 3}

		tx, err := conn.BeginTx(ctx, driver.TxOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, inner.begins)
		assert.True(t, conn.inTx)
		require.NoError(t, tx.Commit())
		assert.False(t, conn.inTx)
	})

	t.Run("exec inside a transaction fails fast", func(t *testing.T) {
		inner := &scriptedConn{}
		conn := &busyConn{Conn: inner, maxRetries: 3}

		tx, err := conn.BeginTx(ctx, driver.TxOptions{})
		require.NoError(t, err)

		inner.errs = []error{locked}
		_, err = conn.ExecContext(ctx, "DELETE FROM files", nil)
		require.ErrorIs(t, err, locked)
		assert.Equal(t, 1, inner.execs)

		require.NoError(t, tx.Rollback())
		_, err = conn.ExecContext(ctx, "DELETE FROM files", nil)
		require.NoError(t, err)
	})
}
