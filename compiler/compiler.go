package compiler

import (
	"strings"

	"github.com/hatlonely/dbq/dialect"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
)

var (
	ErrAccessDenied      = errors.New("access denied")
	ErrUpdateDenied      = errors.New("update denied")
	ErrMissingIdentity   = errors.New("missing identity")
	ErrNothingToInsert   = errors.New("nothing to insert")
	ErrNoQueryableFields = errors.New("no queryable fields")
	ErrInvalidFragment   = errors.New("invalid fragment")
)

// Request 一次编译的输入
type Request struct {
	Entity   *meta.Entity
	Fragment string
	Params   []any
	// Security 为 nil 时不做权限检查
	Security *security.Evaluator
	// Blobs 开启权限检查时，select * 默认不包含大对象列
	Blobs bool
	// Link 只查询通过中间表与某个对象关联的行
	Link *LinkFilter
}

// LinkFilter 多对多关联的子查询条件
// Owner 通过 Join 关联到 Request.Entity，Values 为 Join.On 中本表字段的值
type LinkFilter struct {
	Owner  *meta.Entity
	Join   *meta.Join
	Values []any
}

// Projection 通过一对一关联投影的列
type Projection struct {
	Path   []*meta.Join
	Column *meta.Column
	Label  string
}

// JoinField 查询后再填充的关联字段
// Rest 为关联字段之后的路径，如 projects.tasks 中的 tasks
type JoinField struct {
	Join *meta.Join
	Rest string
}

// Compiled 编译结果，只用于一次执行
type Compiled struct {
	SQL    string
	Params []any

	Columns     []*meta.Column
	// Labels 带别名的列在结果集中的列名，键为字段名
	Labels      map[string]string
	Projections []*Projection
	JoinFields  []*JoinField

	// Keys 插入后需要读回的标识列
	Keys         []*meta.Column
	Returning    bool
	Sequences    []string
	LastInsertID bool
}

// Label 列在结果集中的列名
func (c *Compiled) Label(col *meta.Column) string {
	if label, ok := c.Labels[col.Field]; ok {
		return label
	}
	return strings.ToUpper(col.Name)
}

// Compiler 无状态，可以并发使用
type Compiler struct {
	dialect dialect.Dialect
}

func New(d dialect.Dialect) *Compiler {
	return &Compiler{dialect: d}
}

func (c *Compiler) Dialect() dialect.Dialect {
	return c.dialect
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidFragment, format, args...)
}

func accessDenied(format string, args ...any) error {
	return errors.Wrapf(ErrAccessDenied, format, args...)
}
