package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrLockTimeout = errors.New("advisory lock wait timeout")

// Locker serialises migration runs against one database.
type Locker interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release(ctx context.Context) error
	Key() string
}

// MySQL advisory lock using GET_LOCK/RELEASE_LOCK on a dedicated connection.
type MySQL struct {
	db   *sqlx.DB
	conn *sqlx.Conn
	key  string
	held bool
}

func NewMySQL(db *sqlx.DB, key string) *MySQL {
	return &MySQL{db: db, key: key}
}

func (m *MySQL) Acquire(ctx context.Context, timeout time.Duration) error {
	if m.held {
		return nil
	}
	var err error
	m.conn, err = m.db.Connx(ctx)
	if err != nil {
		return err
	}
	// GET_LOCK(name, timeout_seconds)
	var got sql.NullInt64
	if err := m.conn.GetContext(ctx, &got, "SELECT GET_LOCK(?, ?)", m.key, int(timeout.Seconds())); err != nil {
		_ = m.conn.Close()
		return err
	}
	if !got.Valid || got.Int64 != 1 {
		_ = m.conn.Close()
		return fmt.Errorf("%w: %s", ErrLockTimeout, m.key)
	}
	m.held = true
	return nil
}

func (m *MySQL) Release(ctx context.Context) error {
	if !m.held || m.conn == nil {
		return nil
	}
	var rel sql.NullInt64
	_ = m.conn.GetContext(ctx, &rel, "SELECT RELEASE_LOCK(?)", m.key) // do not fail on release
	m.held = false
	return m.conn.Close()
}

func (m *MySQL) Key() string { return m.key }

// Postgres session-level advisory lock keyed by hashtext(key). The lock is
// polled with pg_try_advisory_lock so the wait honours the timeout.
type Postgres struct {
	db   *sqlx.DB
	conn *sqlx.Conn
	key  string
	held bool
	poll time.Duration
}

func NewPostgres(db *sqlx.DB, key string) *Postgres {
	return &Postgres{db: db, key: key, poll: 250 * time.Millisecond}
}

func (p *Postgres) Acquire(ctx context.Context, timeout time.Duration) error {
	if p.held {
		return nil
	}
	var err error
	p.conn, err = p.db.Connx(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		var got bool
		if err := p.conn.GetContext(ctx, &got, "SELECT pg_try_advisory_lock(hashtext($1))", p.key); err != nil {
			_ = p.conn.Close()
			return err
		}
		if got {
			p.held = true
			return nil
		}
		if time.Now().After(deadline) {
			_ = p.conn.Close()
			return fmt.Errorf("%w: %s", ErrLockTimeout, p.key)
		}
		select {
		case <-ctx.Done():
			_ = p.conn.Close()
			return ctx.Err()
		case <-time.After(p.poll):
		}
	}
}

func (p *Postgres) Release(ctx context.Context) error {
	if !p.held || p.conn == nil {
		return nil
	}
	var rel bool
	_ = p.conn.GetContext(ctx, &rel, "SELECT pg_advisory_unlock(hashtext($1))", p.key)
	p.held = false
	return p.conn.Close()
}

func (p *Postgres) Key() string { return p.key }

func KeyFor(database, table string) string {
	return fmt.Sprintf("relmigrate:%s:%s", database, table)
}
