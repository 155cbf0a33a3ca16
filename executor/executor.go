package executor

import (
	"context"
	"database/sql"

	"github.com/hatlonely/dbq/conn"
	"github.com/hatlonely/dbq/cursor"
	"github.com/hatlonely/dbq/log"
	"github.com/pkg/errors"
)

var ErrInsertFailed = errors.New("insert failed")

// KeySpec 插入后如何读取生成的主键
type KeySpec struct {
	// Returning 语句带有 RETURNING 子句，主键随结果集返回
	Returning bool
	// Sequences 在同一会话中读取这些序列的当前值
	Sequences []string
	// LastInsertID 从驱动读取自增主键
	LastInsertID bool
}

type Option func(*Executor)

func WithObserver(o *Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

func WithLogger(l log.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor 每次执行独占一个连接，执行结束后归还
// 事务中的 Executor 持有连接直到 Commit 或 Rollback
type Executor struct {
	provider conn.Provider
	schema   string
	tx       *conn.Conn
	observer *Observer
	logger   log.Logger
}

func New(provider conn.Provider, schema string, opts ...Option) *Executor {
	e := &Executor{
		provider: provider,
		schema:   schema,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Schema() string {
	return e.schema
}

func (e *Executor) InTx() bool {
	return e.tx != nil
}

// Prepare 解析语句中的命名参数
func (e *Executor) Prepare(query string) *Statement {
	return Parse(query)
}

// withConn 获取连接执行 fn，任何路径上都只归还一次
func (e *Executor) withConn(ctx context.Context, fn func(*conn.Conn) error) error {
	if e.tx != nil {
		return fn(e.tx)
	}

	c, err := e.provider.Acquire(ctx, e.schema)
	if err != nil {
		return errors.WithMessage(err, "acquire connection failed")
	}
	defer func() {
		if err := e.provider.Release(c); err != nil {
			e.logger.Warn("release connection failed", "schema", e.schema, "error", err.Error())
		}
	}()
	return fn(c)
}

// withStmt 在连接上预编译语句并绑定参数
func (e *Executor) withStmt(ctx context.Context, stmt *Statement, fn func(*conn.Conn, *sql.Stmt, []any) error) error {
	args, err := stmt.Args()
	if err != nil {
		return err
	}
	return e.withConn(ctx, func(c *conn.Conn) error {
		query := c.Dialect().Rebind(stmt.SQL())
		e.logger.Debug("execute statement", "schema", c.Schema(), "sql", query, "args", len(args))

		st, err := c.PrepareContext(ctx, query)
		if err != nil {
			return errors.Wrap(err, "prepare statement failed")
		}
		defer func() {
			if err := st.Close(); err != nil {
				e.logger.Warn("close statement failed", "error", err.Error())
			}
		}()
		return fn(c, st, args)
	})
}

// Query 执行查询并读取全部结果
func (e *Executor) Query(ctx context.Context, stmt *Statement) (*cursor.Cursor, error) {
	var cur *cursor.Cursor
	err := e.observer.observe(ctx, "query", stmt.SQL(), func(ctx context.Context) (int64, error) {
		err := e.withStmt(ctx, stmt, func(c *conn.Conn, st *sql.Stmt, args []any) error {
			rows, err := st.QueryContext(ctx, args...)
			if err != nil {
				return errors.Wrap(err, "query failed")
			}
			cur, err = cursor.Drain(rows)
			return err
		})
		if err != nil {
			return 0, err
		}
		return int64(cur.Len()), nil
	})
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// Update 执行更新语句，返回受影响的行数
func (e *Executor) Update(ctx context.Context, stmt *Statement) (int64, error) {
	var affected int64
	err := e.observer.observe(ctx, "update", stmt.SQL(), func(ctx context.Context) (int64, error) {
		err := e.withStmt(ctx, stmt, func(c *conn.Conn, st *sql.Stmt, args []any) error {
			res, err := st.ExecContext(ctx, args...)
			if err != nil {
				return errors.Wrap(err, "exec failed")
			}
			affected, err = res.RowsAffected()
			return errors.Wrap(err, "rows affected")
		})
		return affected, err
	})
	return affected, err
}

// Insert 执行插入语句，返回生成的主键，没有插入任何行时返回 ErrInsertFailed
func (e *Executor) Insert(ctx context.Context, stmt *Statement, keys KeySpec) ([]any, error) {
	var generated []any
	err := e.observer.observe(ctx, "insert", stmt.SQL(), func(ctx context.Context) (int64, error) {
		var affected int64
		err := e.withStmt(ctx, stmt, func(c *conn.Conn, st *sql.Stmt, args []any) error {
			if keys.Returning {
				rows, err := st.QueryContext(ctx, args...)
				if err != nil {
					return errors.Wrap(err, "insert failed")
				}
				cur, err := cursor.Drain(rows)
				if err != nil {
					return err
				}
				if !cur.Next() {
					return ErrInsertFailed
				}
				affected = int64(cur.Len())
				for _, col := range cur.Columns() {
					generated = append(generated, cur.Row()[col])
				}
				return nil
			}

			res, err := st.ExecContext(ctx, args...)
			if err != nil {
				return errors.Wrap(err, "insert failed")
			}
			if affected, err = res.RowsAffected(); err != nil {
				return errors.Wrap(err, "rows affected")
			}
			if affected == 0 {
				return ErrInsertFailed
			}

			for _, seq := range keys.Sequences {
				query, ok := c.Dialect().CurrentValue(seq)
				if !ok {
					return errors.Errorf("dialect %s does not support sequences", c.Dialect().Name())
				}
				var v any
				if err := c.QueryRowContext(ctx, query).Scan(&v); err != nil {
					return errors.Wrapf(err, "read current value of %s failed", seq)
				}
				generated = append(generated, v)
			}
			if keys.LastInsertID {
				id, err := res.LastInsertId()
				if err != nil {
					return errors.Wrap(err, "last insert id")
				}
				generated = append(generated, id)
			}
			return nil
		})
		return affected, err
	})
	if err != nil {
		return nil, err
	}
	return generated, nil
}

// Begin 开启事务，返回的 Executor 在 Commit 或 Rollback 之前持有连接
func (e *Executor) Begin(ctx context.Context) (*Executor, error) {
	if e.tx != nil {
		return nil, errors.New("transaction already started")
	}
	c, err := e.provider.Acquire(ctx, e.schema)
	if err != nil {
		return nil, errors.WithMessage(err, "acquire connection failed")
	}
	if err := c.Begin(ctx); err != nil {
		if rerr := e.provider.Release(c); rerr != nil {
			e.logger.Warn("release connection failed", "schema", e.schema, "error", rerr.Error())
		}
		return nil, err
	}
	return &Executor{
		provider: e.provider,
		schema:   e.schema,
		tx:       c,
		observer: e.observer,
		logger:   e.logger,
	}, nil
}

func (e *Executor) Commit() error {
	return e.finish((*conn.Conn).Commit)
}

func (e *Executor) Rollback() error {
	return e.finish((*conn.Conn).Rollback)
}

func (e *Executor) finish(fn func(*conn.Conn) error) error {
	if e.tx == nil {
		return errors.New("not in transaction")
	}
	c := e.tx
	e.tx = nil
	defer func() {
		if err := e.provider.Release(c); err != nil {
			e.logger.Warn("release connection failed", "schema", e.schema, "error", err.Error())
		}
	}()
	return fn(c)
}
