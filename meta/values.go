package meta

import (
	"reflect"

	"github.com/hatlonely/dbq/convert"
	"github.com/pkg/errors"
)

// Values 对象路径下读取和回写字段值
type Values interface {
	// Value 返回字段值，第二个返回值表示字段是否被赋值（非零值）
	Value(c *Column) (any, bool)
	// Set 回写字段值，用于插入后写回生成的主键
	Set(c *Column, v any) error
}

// StructValues 基于结构体的取值
type StructValues struct {
	rv reflect.Value
}

// NewStructValues obj 必须是指向结构体的指针
func NewStructValues(obj any) (*StructValues, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("object must be a non-nil pointer to struct, got %T", obj)
	}
	return &StructValues{rv: rv.Elem()}, nil
}

func (s *StructValues) field(c *Column) (reflect.Value, bool) {
	if c.Index == nil {
		return reflect.Value{}, false
	}
	f, err := s.rv.FieldByIndexErr(c.Index)
	if err != nil {
		return reflect.Value{}, false
	}
	return f, true
}

func (s *StructValues) Value(c *Column) (any, bool) {
	f, ok := s.field(c)
	if !ok {
		return nil, false
	}
	if f.IsZero() {
		return f.Interface(), false
	}
	return f.Interface(), true
}

func (s *StructValues) Set(c *Column, v any) error {
	f, ok := s.field(c)
	if !ok {
		return errors.Errorf("field %s is not addressable", c.Field)
	}
	return convert.Assign(f, v)
}

// MapValues 基于字段名的取值，用于声明式实体
type MapValues map[string]any

func (m MapValues) Value(c *Column) (any, bool) {
	v, ok := m[c.Field]
	if !ok || v == nil {
		return nil, false
	}
	if rv := reflect.ValueOf(v); rv.IsZero() {
		return v, false
	}
	return v, true
}

// Set 按列的类型转换后保存，大对象列保留读出的字节
func (m MapValues) Set(c *Column, v any) error {
	if c.Kind != convert.Invalid && !c.Kind.IsLOB() {
		out, err := convert.Convert(v, c.Kind)
		if err != nil {
			return errors.WithMessagef(err, "field %s", c.Field)
		}
		v = out
	}
	m[c.Field] = v
	return nil
}
