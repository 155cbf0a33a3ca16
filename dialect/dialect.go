package dialect

import (
	"strconv"
	"strings"

	"github.com/hatlonely/dbq/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegister("github.com/hatlonely/dbq/dialect", "oracle", NewOracle)
	ref.MustRegister("github.com/hatlonely/dbq/dialect", "postgres", NewPostgres)
	ref.MustRegister("github.com/hatlonely/dbq/dialect", "mysql", NewMySQL)
	ref.MustRegister("github.com/hatlonely/dbq/dialect", "sqlite3", NewSQLite)
}

// Placeholder 位置参数风格
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderColonNum
)

// Dialect 数据库方言，负责与具体数据库相关的语句差异
type Dialect interface {
	Name() string
	// Rebind 将 ? 占位符改写为方言的占位符
	Rebind(query string) string
	// Paginate 用行号窗口包装语句，窗口上下界作为最后两个参数
	Paginate(query string) string
	// NextValue 序列取下一个值的表达式
	NextValue(sequence string) (string, bool)
	// CurrentValue 查询会话中序列当前值的语句
	CurrentValue(sequence string) (string, bool)
	// Returning 插入语句返回生成列的子句
	Returning(columns []string) (string, bool)
}

// New 按名称创建方言
func New(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "oracle", "go_ora", "oci8":
		return NewOracle(), nil
	case "postgres", "postgresql", "pq", "pgx":
		return NewPostgres(), nil
	case "mysql":
		return NewMySQL(), nil
	case "sqlite", "sqlite3":
		return NewSQLite(), nil
	}
	return nil, errors.Errorf("unsupported dialect %q", name)
}

type base struct {
	name        string
	placeholder Placeholder
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Rebind(query string) string {
	return Rebind(query, b.placeholder)
}

// rowNumberWindow 通用的 ROW_NUMBER() 窗口分页
func rowNumberWindow(query string) string {
	return "SELECT pq_outer.* FROM (SELECT ROW_NUMBER() OVER () AS rn, pq_inner.* FROM (" + query +
		") pq_inner) pq_outer WHERE pq_outer.rn >= ? AND pq_outer.rn <= ?"
}

// Rebind 改写占位符，跳过引号内的文本和注释
func Rebind(query string, ph Placeholder) string {
	if ph == PlaceholderQuestion {
		return query
	}
	out := make([]byte, 0, len(query)+16)
	arg := 1
	for i := 0; i < len(query); {
		if j, ok := SkipQuoted(query, i); ok {
			out = append(out, query[i:j]...)
			i = j
			continue
		}
		if query[i] != '?' {
			out = append(out, query[i])
			i++
			continue
		}
		switch ph {
		case PlaceholderDollar:
			out = append(out, '$')
		case PlaceholderColonNum:
			out = append(out, ':')
		}
		out = strconv.AppendInt(out, int64(arg), 10)
		arg++
		i++
	}
	return string(out)
}

// SkipQuoted 如果 i 处是引号或注释的开始，返回其结束位置
func SkipQuoted(s string, i int) (int, bool) {
	switch s[i] {
	case '\'', '"', '`':
		quote := s[i]
		j := i + 1
		for j < len(s) {
			if s[j] == quote {
				if j+1 < len(s) && s[j+1] == quote {
					j += 2
					continue
				}
				return j + 1, true
			}
			j++
		}
		return len(s), true
	case '-':
		if strings.HasPrefix(s[i:], "--") {
			if k := strings.IndexByte(s[i:], '\n'); k >= 0 {
				return i + k + 1, true
			}
			return len(s), true
		}
	case '/':
		if strings.HasPrefix(s[i:], "/*") {
			if k := strings.Index(s[i+2:], "*/"); k >= 0 {
				return i + 2 + k + 2, true
			}
			return len(s), true
		}
	}
	return i, false
}
