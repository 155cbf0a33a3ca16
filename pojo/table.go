package pojo

import (
	"context"
	"strings"

	"github.com/hatlonely/dbq/compiler"
	"github.com/hatlonely/dbq/cursor"
	"github.com/hatlonely/dbq/executor"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
)

// Table 按实体名构造的查询，结果为 meta.MapValues 或结构体指针
// 方法返回自身以便链式调用，一个 Table 只在一个 goroutine 中使用
type Table struct {
	db       *DB
	entity   *meta.Entity
	fragment string
	params   []any
	named    map[string]any
	ev       *security.Evaluator
	blobs    bool
	link     *compiler.LinkFilter
	err      error
}

// Table 按名称查找实体
func (db *DB) Table(name string) *Table {
	e, err := db.registry.Entity(name)
	t := db.table(e)
	t.err = err
	return t
}

func (db *DB) table(e *meta.Entity) *Table {
	t := &Table{db: db, entity: e, named: map[string]any{}}
	if db.secure {
		t.ev = security.NewEvaluator(nil)
	} else {
		t.ev = security.Disabled()
	}
	return t
}

func (t *Table) Entity() *meta.Entity {
	return t.entity
}

// Where 设置查询片段，片段中的 ? 按顺序绑定 params
func (t *Table) Where(fragment string, params ...any) *Table {
	t.fragment = fragment
	t.params = params
	return t
}

func (t *Table) WithPrincipal(p security.Principal) *Table {
	if t.ev.Enabled() {
		t.ev = security.NewEvaluator(p)
	}
	return t
}

func (t *Table) DisableSecurity() *Table {
	t.ev = security.Disabled()
	return t
}

// Set 绑定片段中的 :name 参数
func (t *Table) Set(name string, v any) *Table {
	t.named[name] = v
	return t
}

// Blobs 开启权限检查时 select * 也包含大对象列
func (t *Table) Blobs() *Table {
	t.blobs = true
	return t
}

func (t *Table) request() *compiler.Request {
	return &compiler.Request{
		Entity:   t.entity,
		Fragment: t.fragment,
		Params:   t.params,
		Security: t.ev,
		Blobs:    t.blobs,
		Link:     t.link,
	}
}

func (t *Table) compiler() (*compiler.Compiler, error) {
	if t.err != nil {
		return nil, t.err
	}
	d, err := t.db.provider.Dialect(t.entity.Schema)
	if err != nil {
		return nil, errors.WithMessagef(err, "dialect of schema %q", t.entity.Schema)
	}
	return compiler.New(d), nil
}

// Compile 编译查询语句，不执行
func (t *Table) Compile() (*compiler.Compiled, error) {
	c, err := t.compiler()
	if err != nil {
		return nil, err
	}
	return c.Select(t.request())
}

// statement 解析命名参数并绑定全部参数
func (t *Table) statement(compiled *compiler.Compiled) (*executor.Statement, error) {
	t.db.logger.Debug("compiled", "entity", t.entity.Name, "sql", compiled.SQL, "params", len(compiled.Params))

	stmt := executor.Parse(compiled.SQL)
	if err := stmt.BindAll(compiled.Params); err != nil {
		return nil, err
	}
	for name, v := range t.named {
		if err := stmt.BindNamed(name, v); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (t *Table) query(ctx context.Context, compiled *compiler.Compiled) (*cursor.Cursor, error) {
	stmt, err := t.statement(compiled)
	if err != nil {
		return nil, err
	}
	exe, err := t.db.executor(t.entity.Schema)
	if err != nil {
		return nil, err
	}
	return exe.Query(ctx, stmt)
}

func (t *Table) update(ctx context.Context, compiled *compiler.Compiled) (int64, error) {
	stmt, err := t.statement(compiled)
	if err != nil {
		return 0, err
	}
	exe, err := t.db.executor(t.entity.Schema)
	if err != nil {
		return 0, err
	}
	return exe.Update(ctx, stmt)
}

// Cursor 执行查询并返回缓冲游标，不做对象映射
func (t *Table) Cursor(ctx context.Context) (*cursor.Cursor, error) {
	compiled, err := t.Compile()
	if err != nil {
		return nil, err
	}
	return t.query(ctx, compiled)
}

func (t *Table) records(ctx context.Context, compiled *compiler.Compiled) ([]*record, error) {
	cur, err := t.query(ctx, compiled)
	if err != nil {
		return nil, err
	}
	records, err := materialize(t.entity, compiled, cur)
	if err != nil {
		return nil, err
	}
	for _, jf := range compiled.JoinFields {
		for _, r := range records {
			if err := t.populate(ctx, r, jf); err != nil {
				return nil, errors.WithMessagef(err, "populate %s.%s", t.entity.Name, jf.Join.Field)
			}
		}
	}
	return records, nil
}

func (t *Table) list(ctx context.Context) ([]*record, error) {
	compiled, err := t.Compile()
	if err != nil {
		return nil, err
	}
	return t.records(ctx, compiled)
}

func (t *Table) byExample(ctx context.Context, example *record) ([]*record, error) {
	c, err := t.compiler()
	if err != nil {
		return nil, err
	}
	compiled, err := c.SelectByExample(t.request(), example.values)
	if err != nil {
		return nil, err
	}
	return t.records(ctx, compiled)
}

// populate 为一个对象查询关联字段
// 直接关联按目标字段相等查询，中间表关联使用子查询
func (t *Table) populate(ctx context.Context, r *record, jf *compiler.JoinField) error {
	j := jf.Join
	target, err := t.entity.Target(j)
	if err != nil {
		return err
	}

	child := t.db.table(target)
	child.ev = t.ev
	sel := ""
	if jf.Rest != "" && target.Join(strings.SplitN(jf.Rest, ".", 2)[0]) != nil {
		sel = "select " + jf.Rest
	}

	if j.Linked() {
		values := make([]any, len(j.On))
		for i, p := range j.On {
			values[i] = r.value(t.entity.Column(p.Local))
		}
		child.link = &compiler.LinkFilter{Owner: t.entity, Join: j, Values: values}
		child.fragment = sel
	} else {
		conds := make([]string, len(j.On))
		params := make([]any, len(j.On))
		for i, p := range j.On {
			conds[i] = p.Foreign + " = ?"
			params[i] = r.value(t.entity.Column(p.Local))
		}
		child.fragment = strings.TrimSpace(sel + " where " + strings.Join(conds, " and "))
		child.params = params
	}

	children, err := child.list(ctx)
	if err != nil {
		return err
	}
	return r.assign(j, children)
}

// Count 与查询使用相同的条件，忽略选择列表、排序和分页
func (t *Table) Count(ctx context.Context) (int64, error) {
	c, err := t.compiler()
	if err != nil {
		return 0, err
	}
	compiled, err := c.Count(t.request())
	if err != nil {
		return 0, err
	}
	cur, err := t.query(ctx, compiled)
	if err != nil {
		return 0, err
	}
	if !cur.Next() {
		return 0, nil
	}
	return cur.GetInt64("ct")
}

// List 返回全部结果
func (t *Table) List(ctx context.Context) ([]any, error) {
	records, err := t.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r.object()
	}
	return out, nil
}

// insert 插入前用生成器填充序列列，插入后把生成的标识写回对象
func (t *Table) insert(ctx context.Context, r *record) error {
	c, err := t.compiler()
	if err != nil {
		return err
	}
	for _, col := range t.entity.Columns {
		if col.Sequence == "" {
			continue
		}
		if _, ok := r.values.Value(col); ok {
			continue
		}
		g := t.db.generator(col.Sequence)
		if g == nil {
			continue
		}
		v, err := g.Next(ctx, col.Sequence)
		if err != nil {
			return errors.WithMessagef(err, "generate %s", col.Sequence)
		}
		if err := r.values.Set(col, v); err != nil {
			return errors.WithMessagef(err, "set %s.%s", t.entity.Name, col.Field)
		}
	}

	compiled, err := c.Insert(t.request(), r.values)
	if err != nil {
		return err
	}
	stmt, err := t.statement(compiled)
	if err != nil {
		return err
	}
	exe, err := t.db.executor(t.entity.Schema)
	if err != nil {
		return err
	}
	keys, err := exe.Insert(ctx, stmt, executor.KeySpec{
		Returning:    compiled.Returning,
		Sequences:    compiled.Sequences,
		LastInsertID: compiled.LastInsertID,
	})
	if err != nil {
		return err
	}
	for i, k := range compiled.Keys {
		if i >= len(keys) {
			break
		}
		if err := r.values.Set(k, keys[i]); err != nil {
			return errors.WithMessagef(err, "set generated %s.%s", t.entity.Name, k.Field)
		}
	}
	return nil
}

// Insert 插入对象，obj 为结构体指针或 meta.MapValues
func (t *Table) Insert(ctx context.Context, obj any) error {
	if t.err != nil {
		return t.err
	}
	r, err := recordOf(t.entity, obj)
	if err != nil {
		return err
	}
	return t.insert(ctx, r)
}

func (t *Table) updateRecord(ctx context.Context, r *record, fields []string, ignoreNulls bool) (int64, error) {
	c, err := t.compiler()
	if err != nil {
		return 0, err
	}
	compiled, err := c.Update(t.request(), r.values, fields, ignoreNulls)
	if err != nil {
		return 0, err
	}
	return t.update(ctx, compiled)
}

// Update 更新 fields 指定的字段，为空时更新全部非标识字段
// 没有 where 片段时按标识列更新
func (t *Table) Update(ctx context.Context, obj any, fields ...string) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	r, err := recordOf(t.entity, obj)
	if err != nil {
		return 0, err
	}
	return t.updateRecord(ctx, r, fields, false)
}

// UpdateIgnoreNulls 只更新已赋值的字段
func (t *Table) UpdateIgnoreNulls(ctx context.Context, obj any) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	r, err := recordOf(t.entity, obj)
	if err != nil {
		return 0, err
	}
	return t.updateRecord(ctx, r, nil, true)
}

func (t *Table) deleteRecord(ctx context.Context, r *record) (int64, error) {
	c, err := t.compiler()
	if err != nil {
		return 0, err
	}
	var values meta.Values
	if r != nil {
		values = r.values
	}
	compiled, err := c.Delete(t.request(), values)
	if err != nil {
		return 0, err
	}
	return t.update(ctx, compiled)
}

// Delete obj 为 nil 时按 where 片段删除，否则按标识列删除
func (t *Table) Delete(ctx context.Context, obj any) (int64, error) {
	if t.err != nil {
		return 0, t.err
	}
	var r *record
	if obj != nil {
		var err error
		if r, err = recordOf(t.entity, obj); err != nil {
			return 0, err
		}
	}
	return t.deleteRecord(ctx, r)
}
