package pojo

import (
	"fmt"
	"reflect"

	"github.com/hatlonely/dbq/compiler"
	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/cursor"
	"github.com/hatlonely/dbq/meta"
	"github.com/pkg/errors"
)

// record 一个结果对象
// 结构体实体为指向结构体的指针，声明式实体为 meta.MapValues
type record struct {
	entity *meta.Entity
	ptr    reflect.Value
	values meta.Values
}

func newRecord(e *meta.Entity) (*record, error) {
	if e.Type == nil {
		return &record{entity: e, values: meta.MapValues{}}, nil
	}
	return wrap(e, reflect.New(e.Type))
}

func wrap(e *meta.Entity, ptr reflect.Value) (*record, error) {
	values, err := meta.NewStructValues(ptr.Interface())
	if err != nil {
		return nil, err
	}
	return &record{entity: e, ptr: ptr, values: values}, nil
}

func recordOf(e *meta.Entity, obj any) (*record, error) {
	if m, ok := obj.(meta.MapValues); ok {
		return &record{entity: e, values: m}, nil
	}
	ptr := reflect.ValueOf(obj)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() || ptr.Elem().Type() != e.Type {
		return nil, errors.Errorf("%T is not a pointer to %s", obj, e.Name)
	}
	return wrap(e, ptr)
}

func (r *record) object() any {
	if r.ptr.IsValid() {
		return r.ptr.Interface()
	}
	return r.values
}

func (r *record) value(c *meta.Column) any {
	v, _ := r.values.Value(c)
	return v
}

// identity 标识列的值，用于去重和作为 map 的键
func (r *record) identity() (string, bool) {
	ids := r.entity.Identities()
	if len(ids) == 0 {
		return "", false
	}
	if len(ids) == 1 {
		return fmt.Sprint(r.value(ids[0])), true
	}
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = r.value(id)
	}
	return fmt.Sprint(vals), true
}

// child 一对一关联的目标对象，不存在时创建
func (r *record) child(j *meta.Join, target *meta.Entity) (*record, error) {
	if !r.ptr.IsValid() {
		m := r.values.(meta.MapValues)
		sub, ok := m[j.Field].(meta.MapValues)
		if !ok {
			sub = meta.MapValues{}
			m[j.Field] = sub
		}
		return &record{entity: target, values: sub}, nil
	}

	field := r.ptr.Elem().FieldByIndex(j.Index)
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return wrap(target, field)
	}
	return wrap(target, field.Addr())
}

// materialize 把游标中的行转换为对象
func materialize(e *meta.Entity, compiled *compiler.Compiled, cur *cursor.Cursor) ([]*record, error) {
	records := make([]*record, 0, cur.Len())
	for cur.Next() {
		row := cur.Row()
		r, err := newRecord(e)
		if err != nil {
			return nil, err
		}
		for _, c := range compiled.Columns {
			v, ok := row[compiled.Label(c)]
			if !ok {
				continue
			}
			if err := r.values.Set(c, v); err != nil {
				return nil, errors.WithMessagef(err, "set %s.%s", e.Name, c.Field)
			}
		}
		for _, p := range compiled.Projections {
			if err := r.project(p, row); err != nil {
				return nil, err
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func (r *record) project(p *compiler.Projection, row cursor.Row) error {
	v, ok := row[p.Label]
	if !ok {
		return nil
	}
	cur := r
	for _, j := range p.Path {
		target, err := cur.entity.Target(j)
		if err != nil {
			return err
		}
		if cur, err = cur.child(j, target); err != nil {
			return err
		}
	}
	if err := cur.values.Set(p.Column, v); err != nil {
		return errors.WithMessagef(err, "set %s", p.Label)
	}
	return nil
}

// assign 把关联查询的结果写入关联字段
func (r *record) assign(j *meta.Join, children []*record) error {
	if j.Cardinality == meta.Set {
		children = distinct(children)
	}
	if !r.ptr.IsValid() {
		return r.assignMap(j, children)
	}

	for _, c := range children {
		if !c.ptr.IsValid() {
			return errors.Errorf("%s.%s targets %s which has no Go type", r.entity.Name, j.Field, c.entity.Name)
		}
	}

	field := r.ptr.Elem().FieldByIndex(j.Index)
	ft := field.Type()
	switch j.Cardinality {
	case meta.One:
		if len(children) == 0 {
			field.Set(reflect.Zero(ft))
			return nil
		}
		field.Set(elemValue(ft, children[0].ptr))
	case meta.List, meta.Set:
		slice := reflect.MakeSlice(ft, 0, len(children))
		for _, c := range children {
			slice = reflect.Append(slice, elemValue(ft.Elem(), c.ptr))
		}
		field.Set(slice)
	case meta.Map:
		m := reflect.MakeMapWithSize(ft, len(children))
		for _, c := range children {
			key, err := c.mapKey(ft.Key())
			if err != nil {
				return err
			}
			m.SetMapIndex(key, elemValue(ft.Elem(), c.ptr))
		}
		field.Set(m)
	}
	return nil
}

func (r *record) assignMap(j *meta.Join, children []*record) error {
	m := r.values.(meta.MapValues)
	switch j.Cardinality {
	case meta.One:
		if len(children) == 0 {
			delete(m, j.Field)
			return nil
		}
		m[j.Field] = children[0].object()
	case meta.List, meta.Set:
		list := make([]any, len(children))
		for i, c := range children {
			list[i] = c.object()
		}
		m[j.Field] = list
	case meta.Map:
		out := make(map[string]any, len(children))
		for _, c := range children {
			key, ok := c.identity()
			if !ok {
				return errors.Errorf("%s has no identity to key %s", c.entity.Name, j.Field)
			}
			out[key] = c.object()
		}
		m[j.Field] = out
	}
	return nil
}

// elemValue 按字段声明返回指针或值
func elemValue(t reflect.Type, ptr reflect.Value) reflect.Value {
	if t.Kind() == reflect.Ptr {
		return ptr
	}
	return ptr.Elem()
}

func (r *record) mapKey(t reflect.Type) (reflect.Value, error) {
	ids := r.entity.Identities()
	if len(ids) != 1 {
		return reflect.Value{}, errors.Errorf("%s needs exactly one identity to be a map value", r.entity.Name)
	}
	key, err := convert.ConvertTo(r.value(ids[0]), t)
	if err != nil {
		return reflect.Value{}, errors.WithMessagef(err, "convert key of %s", r.entity.Name)
	}
	return key, nil
}

// distinct 按标识去重，没有标识列时保持原样
func distinct(records []*record) []*record {
	seen := map[string]bool{}
	out := records[:0:0]
	for _, r := range records {
		id, ok := r.identity()
		if !ok {
			return records
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
