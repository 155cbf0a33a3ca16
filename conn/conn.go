package conn

import (
	"context"
	"database/sql"

	"github.com/hatlonely/dbq/dialect"
	"github.com/pkg/errors"
)

// Provider 按 schema 提供连接，调用方必须归还
type Provider interface {
	Acquire(ctx context.Context, schema string) (*Conn, error)
	Release(c *Conn) error
	Dialect(schema string) (dialect.Dialect, error)
}

// Conn 从连接池中独占的一个连接，可以开启事务
type Conn struct {
	schema  string
	conn    *sql.Conn
	tx      *sql.Tx
	dialect dialect.Dialect
}

func NewConn(schema string, c *sql.Conn, d dialect.Dialect) *Conn {
	return &Conn{schema: schema, conn: c, dialect: d}
}

func (c *Conn) Schema() string {
	return c.schema
}

func (c *Conn) Dialect() dialect.Dialect {
	return c.dialect
}

// PrepareContext 事务中时在事务上预编译
func (c *Conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if c.tx != nil {
		return c.tx.PrepareContext(ctx, query)
	}
	return c.conn.PrepareContext(ctx, query)
}

// QueryRowContext 用于在同一会话中读取序列当前值
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *Conn) InTx() bool {
	return c.tx != nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("transaction already started")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "conn.BeginTx failed")
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit() error {
	if c.tx == nil {
		return errors.New("no transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	return errors.Wrap(err, "tx.Commit failed")
}

func (c *Conn) Rollback() error {
	if c.tx == nil {
		return errors.New("no transaction")
	}
	err := c.tx.Rollback()
	c.tx = nil
	return errors.Wrap(err, "tx.Rollback failed")
}

// close 未结束的事务会被回滚
func (c *Conn) close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.conn.Close()
}
