package pojo

import (
	"context"

	"github.com/hatlonely/dbq/compiler"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
)

// Query 结构体实体的查询，T 为带 rdb 标签的结构体类型
//
//	emps, err := pojo.From[Employee](db, "where dept.name = ? order by name", "IT").List(ctx)
//	err = pojo.Of(db, &Employee{Name: "bob"}).Insert(ctx)
type Query[T any] struct {
	t   *Table
	obj *T
}

func newQuery[T any](db *DB, obj *T) *Query[T] {
	e, err := db.registry.Register(new(T))
	t := db.table(e)
	t.err = err
	return &Query[T]{t: t, obj: obj}
}

// From 按片段查询
func From[T any](db *DB, fragment string, params ...any) *Query[T] {
	q := newQuery[T](db, nil)
	q.t.Where(fragment, params...)
	return q
}

// Of 以对象作为插入、更新、删除的目标，或作为查询的样例
func Of[T any](db *DB, obj *T) *Query[T] {
	return newQuery(db, obj)
}

func (q *Query[T]) Entity() *meta.Entity {
	return q.t.entity
}

// Where 设置片段，对 Of 构造的查询作为更新删除的条件或样例查询的排序分页
func (q *Query[T]) Where(fragment string, params ...any) *Query[T] {
	q.t.Where(fragment, params...)
	return q
}

func (q *Query[T]) WithPrincipal(p security.Principal) *Query[T] {
	q.t.WithPrincipal(p)
	return q
}

func (q *Query[T]) DisableSecurity() *Query[T] {
	q.t.DisableSecurity()
	return q
}

func (q *Query[T]) Set(name string, v any) *Query[T] {
	q.t.Set(name, v)
	return q
}

func (q *Query[T]) Blobs() *Query[T] {
	q.t.Blobs()
	return q
}

// Compile 编译查询语句，Of 构造的查询编译为样例查询
func (q *Query[T]) Compile() (*compiler.Compiled, error) {
	if q.obj == nil {
		return q.t.Compile()
	}
	c, err := q.t.compiler()
	if err != nil {
		return nil, err
	}
	r, err := q.record()
	if err != nil {
		return nil, err
	}
	return c.SelectByExample(q.t.request(), r.values)
}

func (q *Query[T]) record() (*record, error) {
	if q.obj == nil {
		return nil, errors.Errorf("query of %s has no object", q.t.entity.Name)
	}
	return recordOf(q.t.entity, q.obj)
}

func (q *Query[T]) records(ctx context.Context) ([]*record, error) {
	if q.obj == nil {
		return q.t.list(ctx)
	}
	if q.t.err != nil {
		return nil, q.t.err
	}
	r, err := q.record()
	if err != nil {
		return nil, err
	}
	return q.t.byExample(ctx, r)
}

func objects[T any](records []*record) []*T {
	out := make([]*T, len(records))
	for i, r := range records {
		out[i] = r.ptr.Interface().(*T)
	}
	return out
}

func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	records, err := q.records(ctx)
	if err != nil {
		return nil, err
	}
	return objects[T](records), nil
}

// Single 返回第一个结果，包含大对象列，没有结果时返回 ErrNotFound
func (q *Query[T]) Single(ctx context.Context) (*T, error) {
	q.t.blobs = true
	records, err := q.records(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s", q.t.entity.Name)
	}
	return records[0].ptr.Interface().(*T), nil
}

// Map 以字段 field 的值为键，相同键保留最后一个
func (q *Query[T]) Map(ctx context.Context, field string) (map[any]*T, error) {
	if q.t.err != nil {
		return nil, q.t.err
	}
	col := q.t.entity.Column(field)
	if col == nil {
		return nil, errors.Wrapf(compiler.ErrInvalidFragment, "%s has no field %s", q.t.entity.Name, field)
	}
	records, err := q.records(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[any]*T, len(records))
	for _, r := range records {
		out[r.value(col)] = r.ptr.Interface().(*T)
	}
	return out, nil
}

func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	if q.obj != nil {
		return 0, errors.New("count by example is not supported")
	}
	return q.t.Count(ctx)
}

// Insert 插入对象，生成的标识写回对象
func (q *Query[T]) Insert(ctx context.Context) error {
	if q.t.err != nil {
		return q.t.err
	}
	r, err := q.record()
	if err != nil {
		return err
	}
	return q.t.insert(ctx, r)
}

// Update 更新 fields 指定的字段，为空时更新全部非标识字段
func (q *Query[T]) Update(ctx context.Context, fields ...string) (int64, error) {
	if q.t.err != nil {
		return 0, q.t.err
	}
	r, err := q.record()
	if err != nil {
		return 0, err
	}
	return q.t.updateRecord(ctx, r, fields, false)
}

func (q *Query[T]) UpdateIgnoreNulls(ctx context.Context) (int64, error) {
	if q.t.err != nil {
		return 0, q.t.err
	}
	r, err := q.record()
	if err != nil {
		return 0, err
	}
	return q.t.updateRecord(ctx, r, nil, true)
}

// Delete Of 构造时按标识列删除，From 构造时按片段删除
func (q *Query[T]) Delete(ctx context.Context) (int64, error) {
	if q.t.err != nil {
		return 0, q.t.err
	}
	if q.obj == nil {
		return q.t.deleteRecord(ctx, nil)
	}
	r, err := q.record()
	if err != nil {
		return 0, err
	}
	return q.t.deleteRecord(ctx, r)
}

func (q *Query[T]) Fields() []*Field {
	return q.t.Fields()
}
