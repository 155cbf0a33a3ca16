package pojo

import (
	"context"

	"github.com/hatlonely/dbq/conn"
	"github.com/hatlonely/dbq/executor"
	"github.com/hatlonely/dbq/log"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/ref"
	"github.com/hatlonely/dbq/uid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrNotFound = errors.New("not found")

type Options struct {
	Conn     conn.Options              `cfg:"conn"`
	Observer executor.ObserverOptions `cfg:"observer"`
	Logger   *ref.TypeOptions          `cfg:"logger"`
	// Sequences 序列名到生成器，名称为 * 的生成器服务所有没有单独配置的序列
	Sequences map[string]*ref.TypeOptions `cfg:"sequences"`
	// Entities 声明式实体，与结构体标签注册的实体共用一个注册表
	Entities []*meta.EntityOptions `cfg:"entities"`
	// DisableSecurity 默认关闭权限检查
	DisableSecurity bool `cfg:"disableSecurity"`
}

type Option func(*DB)

func WithLogger(logger log.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

func WithObserver(observer *executor.Observer) Option {
	return func(db *DB) {
		db.observer = observer
	}
}

// WithGenerator 插入前用 g 为序列 sequence 生成标识值
func WithGenerator(sequence string, g uid.Generator) Option {
	return func(db *DB) {
		db.generators[sequence] = g
	}
}

func WithSecurityDisabled() Option {
	return func(db *DB) {
		db.secure = false
	}
}

// DB 查询入口，持有实体注册表和连接来源，可以并发使用
// Transaction 中传给回调的 DB 绑定在同一个连接上
type DB struct {
	registry   *meta.Registry
	provider   conn.Provider
	generators map[string]uid.Generator
	observer   *executor.Observer
	logger     log.Logger
	secure     bool

	tx     *executor.Executor
	closer func() error
}

func New(registry *meta.Registry, provider conn.Provider, opts ...Option) *DB {
	if registry == nil {
		registry = meta.Default()
	}
	db := &DB{
		registry:   registry,
		provider:   provider,
		generators: map[string]uid.Generator{},
		logger:     log.Default(),
		secure:     true,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// NewDBWithOptions 按配置打开连接池并注册声明式实体，registry 为 nil 时使用默认注册表
func NewDBWithOptions(options *Options, registry *meta.Registry) (*DB, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	observer, err := executor.NewObserverWithOptions(&options.Observer, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create observer failed")
	}

	opts := []Option{WithLogger(logger), WithObserver(observer)}
	for sequence, to := range options.Sequences {
		g, err := uid.NewGeneratorWithOptions(to)
		if err != nil {
			return nil, errors.WithMessagef(err, "create generator for sequence %s failed", sequence)
		}
		opts = append(opts, WithGenerator(sequence, g))
	}
	if options.DisableSecurity {
		opts = append(opts, WithSecurityDisabled())
	}

	if registry == nil {
		registry = meta.Default()
	}
	for _, eo := range options.Entities {
		if _, err := registry.RegisterOptions(eo); err != nil {
			return nil, errors.WithMessagef(err, "register entity %s failed", eo.Name)
		}
	}

	pools, err := conn.NewRegistryWithOptions(&options.Conn)
	if err != nil {
		return nil, errors.WithMessage(err, "open connections failed")
	}

	db := New(registry, pools, opts...)
	db.closer = pools.Close
	return db, nil
}

func (db *DB) Registry() *meta.Registry {
	return db.registry
}

func (db *DB) Logger() log.Logger {
	return db.logger
}

// Close 关闭由配置打开的连接池
func (db *DB) Close() error {
	if db.closer == nil {
		return nil
	}
	return db.closer()
}

func (db *DB) generator(sequence string) uid.Generator {
	if g, ok := db.generators[sequence]; ok {
		return g
	}
	return db.generators["*"]
}

func (db *DB) executor(schema string) (*executor.Executor, error) {
	if db.tx != nil {
		if db.tx.Schema() != schema {
			return nil, errors.Errorf("schema %q is outside transaction on %q", schema, db.tx.Schema())
		}
		return db.tx, nil
	}
	return executor.New(db.provider, schema, executor.WithObserver(db.observer), executor.WithLogger(db.logger)), nil
}

// Transaction fn 返回错误或 panic 时回滚，否则提交
// 嵌套调用复用外层事务
func (db *DB) Transaction(ctx context.Context, schema string, fn func(tx *DB) error) (err error) {
	if db.tx != nil {
		if db.tx.Schema() != schema {
			return errors.Errorf("nested transaction on %q inside %q", schema, db.tx.Schema())
		}
		return fn(db)
	}

	tx, err := executor.New(db.provider, schema, executor.WithObserver(db.observer), executor.WithLogger(db.logger)).Begin(ctx)
	if err != nil {
		return errors.WithMessage(err, "begin transaction failed")
	}
	txdb := &DB{
		registry:   db.registry,
		provider:   db.provider,
		generators: db.generators,
		observer:   db.observer,
		logger:     db.logger,
		secure:     db.secure,
		tx:         tx,
	}

	defer func() {
		if r := recover(); r != nil {
			if rerr := tx.Rollback(); rerr != nil {
				db.logger.Warn("rollback failed", "schema", schema, "error", rerr.Error())
			}
			panic(r)
		}
	}()

	if err := fn(txdb); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			db.logger.Warn("rollback failed", "schema", schema, "error", rerr.Error())
		}
		return err
	}
	return errors.WithMessage(tx.Commit(), "commit failed")
}
