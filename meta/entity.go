package meta

import (
	"reflect"

	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
)

var ErrEntityNotFound = errors.New("entity not found")

// Cardinality 关联字段的基数
type Cardinality int

const (
	One Cardinality = iota
	List
	Set
	Map
)

func (c Cardinality) String() string {
	switch c {
	case List:
		return "list"
	case Set:
		return "set"
	case Map:
		return "map"
	}
	return "one"
}

// Column 字段与列的映射
type Column struct {
	Field    string // 查询片段中使用的字段名
	GoName   string
	Name     string // 列名
	Identity bool
	Sequence string
	Security *security.Rule
	Kind     convert.Kind
	Type     reflect.Type
	Index    []int
}

// Pair 关联条件中的一对字段
type Pair struct {
	Local   string
	Foreign string
}

// Join 关联字段
// 直接关联时 On 为本表字段到目标表字段
// 通过中间表关联时 On 为本表字段到中间表字段，LinkOn 为中间表字段到目标表字段
type Join struct {
	Field       string
	GoName      string
	Target      string
	Link        string
	On          []Pair
	LinkOn      []Pair
	Cardinality Cardinality
	Type        reflect.Type // 字段类型
	Elem        reflect.Type // 目标对象类型
	Index       []int
}

// Linked 是否通过中间表关联
func (j *Join) Linked() bool {
	return j.Link != ""
}

// Entity 映射实体，注册后只读
type Entity struct {
	Name     string
	Table    string
	Alias    string
	Schema   string
	Columns  []*Column
	Joins    []*Join
	Security *security.Rule
	Type     reflect.Type

	registry *Registry
	columns  map[string]*Column
	joins    map[string]*Join
}

func (e *Entity) index() {
	e.columns = make(map[string]*Column, len(e.Columns)*2)
	for _, c := range e.Columns {
		e.columns[c.Field] = c
		if c.GoName != "" {
			if _, ok := e.columns[c.GoName]; !ok {
				e.columns[c.GoName] = c
			}
		}
	}
	e.joins = make(map[string]*Join, len(e.Joins)*2)
	for _, j := range e.Joins {
		e.joins[j.Field] = j
		if j.GoName != "" {
			if _, ok := e.joins[j.GoName]; !ok {
				e.joins[j.GoName] = j
			}
		}
	}
}

// Column 按字段名查找列，大小写敏感
func (e *Entity) Column(field string) *Column {
	return e.columns[field]
}

// Join 按字段名查找关联
func (e *Entity) Join(field string) *Join {
	return e.joins[field]
}

// Identities 返回标识列
func (e *Entity) Identities() []*Column {
	var ids []*Column
	for _, c := range e.Columns {
		if c.Identity {
			ids = append(ids, c)
		}
	}
	return ids
}

// Target 返回关联的目标实体
func (e *Entity) Target(j *Join) (*Entity, error) {
	return e.registry.Entity(j.Target)
}

// LinkEntity 返回关联的中间表实体
func (e *Entity) LinkEntity(j *Join) (*Entity, error) {
	if !j.Linked() {
		return nil, errors.Errorf("join %s.%s has no linking table", e.Name, j.Field)
	}
	// 中间表只有名称，需要调用方注册
	link, err := e.registry.Entity(j.Link)
	if err != nil {
		return nil, errors.WithMessagef(err, "linking table of %s.%s is not registered", e.Name, j.Field)
	}
	return link, nil
}
