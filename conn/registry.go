package conn

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/dbq/dialect"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	go_ora "github.com/sijms/go-ora/v2"
	gmysql "gorm.io/driver/mysql"
	gsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/mattn/go-sqlite3"
)

type SchemaOptions struct {
	Driver          string        `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 postgres oracle"`
	DSN             string        `cfg:"dsn"`
	Host            string        `cfg:"host" def:"localhost"`
	Port            int           `cfg:"port"`
	Database        string        `cfg:"database"`
	Username        string        `cfg:"username"`
	Password        string        `cfg:"password"`
	Charset         string        `cfg:"charset" def:"utf8mb4"`
	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`
	// Dialect 为空时按驱动推断
	Dialect string `cfg:"dialect"`
	// UseGorm 通过 gorm 打开连接池，仅支持 mysql 和 sqlite3
	UseGorm bool `cfg:"useGorm"`
}

type Options struct {
	// Default 未指定 schema 时使用
	Default string                    `cfg:"default"`
	Schemas map[string]*SchemaOptions `cfg:"schemas" validate:"dive"`
}

type pool struct {
	db      *sql.DB
	dialect dialect.Dialect
	owned   bool
}

// Registry schema 到连接池的映射
type Registry struct {
	mu    sync.RWMutex
	def   string
	pools map[string]*pool
}

func NewRegistry() *Registry {
	return &Registry{pools: map[string]*pool{}}
}

func NewRegistryWithOptions(options *Options) (*Registry, error) {
	r := NewRegistry()
	r.def = options.Default
	for schema, so := range options.Schemas {
		db, d, err := Open(so)
		if err != nil {
			_ = r.Close()
			return nil, errors.WithMessagef(err, "open schema %s failed", schema)
		}
		r.pools[schema] = &pool{db: db, dialect: d, owned: true}
	}
	if r.def == "" && len(r.pools) == 1 {
		for schema := range r.pools {
			r.def = schema
		}
	}
	return r, nil
}

// Open 按配置打开连接池
func Open(options *SchemaOptions) (*sql.DB, dialect.Dialect, error) {
	name := options.Dialect
	if name == "" {
		name = options.Driver
	}
	d, err := dialect.New(name)
	if err != nil {
		return nil, nil, err
	}

	dsn := options.DSN
	if dsn == "" {
		if dsn, err = BuildDSN(options); err != nil {
			return nil, nil, err
		}
	}

	var db *sql.DB
	switch {
	case options.UseGorm:
		db, err = openGorm(options.Driver, dsn)
	case options.Driver == "postgres":
		var connector *pq.Connector
		if connector, err = pq.NewConnector(dsn); err == nil {
			db = sql.OpenDB(connector)
		}
	default:
		db, err = sql.Open(options.Driver, dsn)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s failed", options.Driver)
	}

	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxIdle)
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "db.Ping failed")
	}
	return db, d, nil
}

func openGorm(driver string, dsn string) (*sql.DB, error) {
	config := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var gdb *gorm.DB
	var err error
	switch driver {
	case "mysql":
		gdb, err = gorm.Open(gmysql.Open(dsn), config)
	case "sqlite3":
		gdb, err = gorm.Open(gsqlite.Open(dsn), config)
	default:
		return nil, errors.Errorf("gorm does not support driver %s", driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open failed")
	}
	return gdb.DB()
}

// BuildDSN 根据主机、端口等配置拼接数据源
func BuildDSN(options *SchemaOptions) (string, error) {
	switch options.Driver {
	case "mysql":
		c := mysql.NewConfig()
		c.User = options.Username
		c.Passwd = options.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(options.Host, strconv.Itoa(portOr(options.Port, 3306)))
		c.DBName = options.Database
		c.ParseTime = true
		c.Loc = time.Local
		if options.Charset != "" {
			c.Params = map[string]string{"charset": options.Charset}
		}
		return c.FormatDSN(), nil
	case "postgres":
		return "host=" + options.Host +
			" port=" + strconv.Itoa(portOr(options.Port, 5432)) +
			" user=" + options.Username +
			" password=" + options.Password +
			" dbname=" + options.Database +
			" sslmode=disable", nil
	case "oracle":
		return go_ora.BuildUrl(options.Host, portOr(options.Port, 1521), options.Database, options.Username, options.Password, nil), nil
	case "sqlite3":
		if options.Database == "" {
			return ":memory:", nil
		}
		return options.Database, nil
	}
	return "", errors.Errorf("unsupported driver %s", options.Driver)
}

func portOr(port int, def int) int {
	if port == 0 {
		return def
	}
	return port
}

// Register 注册外部创建的连接池，关闭注册表时不会关闭它
func (r *Registry) Register(schema string, db *sql.DB, d dialect.Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[schema] = &pool{db: db, dialect: d}
	if r.def == "" {
		r.def = schema
	}
}

// RegisterGorm 复用 gorm 的连接池
func (r *Registry) RegisterGorm(schema string, gdb *gorm.DB) error {
	db, err := gdb.DB()
	if err != nil {
		return errors.Wrap(err, "gorm.DB failed")
	}
	d, err := dialect.New(gdb.Dialector.Name())
	if err != nil {
		return err
	}
	r.Register(schema, db, d)
	return nil
}

func (r *Registry) pool(schema string) (*pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if schema == "" {
		schema = r.def
	}
	p, ok := r.pools[schema]
	if !ok {
		return nil, errors.Errorf("schema %q not registered", schema)
	}
	return p, nil
}

func (r *Registry) DB(schema string) (*sql.DB, error) {
	p, err := r.pool(schema)
	if err != nil {
		return nil, err
	}
	return p.db, nil
}

func (r *Registry) Dialect(schema string) (dialect.Dialect, error) {
	p, err := r.pool(schema)
	if err != nil {
		return nil, err
	}
	return p.dialect, nil
}

func (r *Registry) Acquire(ctx context.Context, schema string) (*Conn, error) {
	p, err := r.pool(schema)
	if err != nil {
		return nil, err
	}
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "acquire connection of schema %q failed", schema)
	}
	return NewConn(schema, c, p.dialect), nil
}

func (r *Registry) Release(c *Conn) error {
	if c == nil {
		return nil
	}
	return c.close()
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for schema, p := range r.pools {
		if !p.owned {
			continue
		}
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close schema %s failed", schema)
		}
	}
	return firstErr
}
