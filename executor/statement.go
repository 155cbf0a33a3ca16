package executor

import (
	"strings"

	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/dialect"
	"github.com/pkg/errors"
)

var (
	ErrParamNotFound = errors.New("parameter not found")
	ErrUnboundParam  = errors.New("parameter not bound")
)

// Statement 解析后的语句，:name 形式的命名参数被改写为 ?
// 同名参数的所有出现位置共享一个绑定值
type Statement struct {
	query      string
	names      map[string][]int
	positional []int
	args       []any
	bound      []bool
}

// Parse 改写命名参数，引号内的文本和注释保持不变，:: 类型转换不视为参数
func Parse(query string) *Statement {
	s := &Statement{names: map[string][]int{}}
	var b strings.Builder
	b.Grow(len(query))

	slot := 0
	for i := 0; i < len(query); {
		if j, ok := dialect.SkipQuoted(query, i); ok {
			b.WriteString(query[i:j])
			i = j
			continue
		}
		ch := query[i]
		switch {
		case ch == '?':
			s.positional = append(s.positional, slot)
			slot++
			b.WriteByte('?')
			i++
		case ch == ':' && i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i += 2
		case ch == ':' && i+1 < len(query) && isIdentStart(query[i+1]):
			j := i + 1
			for j < len(query) && isIdentPart(query[j]) {
				j++
			}
			name := query[i+1 : j]
			s.names[name] = append(s.names[name], slot)
			slot++
			b.WriteByte('?')
			i = j
		default:
			b.WriteByte(ch)
			i++
		}
	}

	s.query = b.String()
	s.args = make([]any, slot)
	s.bound = make([]bool, slot)
	return s
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// SQL 改写后的语句，占位符为 ?
func (s *Statement) SQL() string {
	return s.query
}

// NumParams 占位符总数
func (s *Statement) NumParams() int {
	return len(s.args)
}

// Names 语句中出现的命名参数
func (s *Statement) Names() []string {
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	return names
}

// Bind 按位置绑定，位置从 1 开始，计入所有占位符
func (s *Statement) Bind(pos int, v any) error {
	if pos < 1 || pos > len(s.args) {
		return errors.Wrapf(ErrParamNotFound, "position %d", pos)
	}
	s.args[pos-1] = v
	s.bound[pos-1] = true
	return nil
}

// BindNamed 绑定命名参数的所有出现位置
func (s *Statement) BindNamed(name string, v any) error {
	slots, ok := s.names[name]
	if !ok {
		return errors.Wrapf(ErrParamNotFound, "%s", name)
	}
	for _, i := range slots {
		s.args[i] = v
		s.bound[i] = true
	}
	return nil
}

// BindAll 依次绑定语句中的 ? 占位符
func (s *Statement) BindAll(params []any) error {
	if len(params) != len(s.positional) {
		return errors.Errorf("statement has %d positional parameters, got %d", len(s.positional), len(params))
	}
	for i, slot := range s.positional {
		s.args[slot] = params[i]
		s.bound[slot] = true
	}
	return nil
}

// Args 返回驱动可接受的参数列表
func (s *Statement) Args() ([]any, error) {
	args := make([]any, len(s.args))
	for i, v := range s.args {
		if !s.bound[i] {
			return nil, errors.Wrapf(ErrUnboundParam, "position %d", i+1)
		}
		dv, err := convert.ToDriver(v)
		if err != nil {
			return nil, errors.WithMessagef(err, "bind position %d", i+1)
		}
		args[i] = dv
	}
	return args, nil
}
