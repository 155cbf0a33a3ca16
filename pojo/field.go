package pojo

import (
	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/meta"
)

// Field 字段描述
type Field struct {
	Name     string
	Column   string
	Kind     convert.Kind
	Identity bool
	Sequence string
	// Rights select/update/insert 加表的 insert/delete，如 "10111"
	Rights string

	// 关联字段
	Join        bool
	Target      string
	Cardinality meta.Cardinality
}

// Fields 实体的字段以及当前调用者的权限
func (t *Table) Fields() []*Field {
	if t.entity == nil {
		return nil
	}
	e := t.entity
	fields := make([]*Field, 0, len(e.Columns)+len(e.Joins))
	for _, c := range e.Columns {
		fields = append(fields, &Field{
			Name:     c.Field,
			Column:   c.Name,
			Kind:     c.Kind,
			Identity: c.Identity,
			Sequence: c.Sequence,
			Rights:   t.ev.Rights(c.Security, e.Security),
		})
	}
	for _, j := range e.Joins {
		fields = append(fields, &Field{
			Name:        j.Field,
			Join:        true,
			Target:      j.Target,
			Cardinality: j.Cardinality,
		})
	}
	return fields
}
