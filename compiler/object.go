package compiler

import (
	"strings"

	"github.com/hatlonely/dbq/meta"
)

// SelectByExample 以对象中已赋值的列作为相等条件，片段中只能包含排序和分页
func (c *Compiler) SelectByExample(req *Request, values meta.Values) (*Compiled, error) {
	f, err := parseFragment(req.Fragment)
	if err != nil {
		return nil, err
	}
	if f.hasWhere {
		return nil, invalid("select by example does not accept a where clause")
	}
	ctx := newContext(req, req.Entity.Alias, true)

	sel, err := ctx.selectList(f.sel)
	if err != nil {
		return nil, err
	}

	var conds []string
	for _, col := range req.Entity.Columns {
		v, ok := values.Value(col)
		if !ok {
			continue
		}
		conds = append(conds, ctx.alias+"."+col.Name+"=?")
		ctx.params = append(ctx.params, v)
	}
	if len(conds) == 0 {
		return nil, ErrNoQueryableFields
	}

	order, err := ctx.rewrite(f.order)
	if err != nil {
		return nil, err
	}
	if err := ctx.checkParams(); err != nil {
		return nil, err
	}
	return ctx.finish(ctx.assemble(sel, strings.Join(conds, " and "), order), f, c), nil
}

// Insert 插入已赋值且有插入权限的列，带序列的标识列使用方言的序列表达式
func (c *Compiler) Insert(req *Request, values meta.Values) (*Compiled, error) {
	e := req.Entity
	ev := req.Security
	if ev.Enabled() && !ev.CanInsertRow(e.Security) {
		return nil, accessDenied("insert into %s", e.Name)
	}

	compiled := &Compiled{}
	var cols, exprs []string
	var sequenced []*meta.Column
	for _, col := range e.Columns {
		v, ok := values.Value(col)
		switch {
		case ok && (!ev.Enabled() || ev.CanInsert(col.Security)):
			cols = append(cols, col.Name)
			exprs = append(exprs, "?")
			compiled.Params = append(compiled.Params, v)
		case !ok && col.Sequence != "":
			expr, supported := c.dialect.NextValue(col.Sequence)
			if supported {
				cols = append(cols, col.Name)
				exprs = append(exprs, expr)
				sequenced = append(sequenced, col)
			}
			compiled.Keys = append(compiled.Keys, col)
		case !ok && col.Identity:
			compiled.Keys = append(compiled.Keys, col)
		}
	}
	if len(cols) == 0 {
		return nil, ErrNothingToInsert
	}

	sql := "insert into " + e.Table + "(" + strings.Join(cols, ",") + ") \nvalues(" + strings.Join(exprs, ",") + ")"
	if len(compiled.Keys) > 0 {
		names := make([]string, len(compiled.Keys))
		for i, k := range compiled.Keys {
			names[i] = k.Name
		}
		if returning, ok := c.dialect.Returning(names); ok {
			sql += " " + returning
			compiled.Returning = true
		} else if len(sequenced) > 0 {
			compiled.Keys = sequenced
			for _, k := range sequenced {
				compiled.Sequences = append(compiled.Sequences, k.Sequence)
			}
		} else if len(compiled.Keys) == 1 && compiled.Keys[0].Kind.IsInteger() {
			compiled.LastInsertID = true
		} else {
			compiled.Keys = nil
		}
	}
	compiled.SQL = sql
	return compiled, nil
}

// dmlPredicate DML 的片段只能是 where 子句，条件使用表名限定
func dmlPredicate(ctx *compileContext, fragment string) (string, bool, error) {
	f, err := parseFragment(fragment)
	if err != nil {
		return "", false, err
	}
	if len(f.sel) > 0 || f.hasOrder || f.paged {
		return "", false, invalid("fragment %q must start with where", fragment)
	}
	if !f.hasWhere {
		return "", false, nil
	}
	where, err := ctx.rewrite(f.where)
	if err != nil {
		return "", false, err
	}
	if where == "" {
		return "", false, invalid("empty where clause")
	}
	return where, true, nil
}

// byIdentity 标识列的相等条件
func byIdentity(ctx *compileContext, values meta.Values) (string, error) {
	ids := ctx.base.Identities()
	if len(ids) == 0 {
		return "", ErrMissingIdentity
	}
	conds := make([]string, len(ids))
	for i, id := range ids {
		v, _ := values.Value(id)
		conds[i] = ctx.alias + "." + id.Name + "=?"
		ctx.params = append(ctx.params, v)
	}
	return strings.Join(conds, " and "), nil
}

// Update 更新指定字段或全部非标识字段，每个字段都需要更新权限
// ignoreNulls 时跳过未赋值的字段
func (c *Compiler) Update(req *Request, values meta.Values, fields []string, ignoreNulls bool) (*Compiled, error) {
	e := req.Entity
	ev := req.Security
	ctx := newContext(req, e.Table, false)

	var candidates []*meta.Column
	if len(fields) == 0 {
		for _, col := range e.Columns {
			if !col.Identity {
				candidates = append(candidates, col)
			}
		}
	} else {
		for _, name := range fields {
			col := e.Column(name)
			if col == nil {
				return nil, invalid("%s has no field %s", e.Name, name)
			}
			candidates = append(candidates, col)
		}
	}

	var sets []string
	for _, col := range candidates {
		v, ok := values.Value(col)
		if ignoreNulls && !ok {
			continue
		}
		if ev.Enabled() && !ev.CanUpdate(col.Security) {
			continue
		}
		sets = append(sets, col.Name+"=?")
		ctx.params = append(ctx.params, v)
	}
	if len(sets) == 0 {
		return nil, ErrUpdateDenied
	}

	where, ok, err := dmlPredicate(ctx, req.Fragment)
	if err != nil {
		return nil, err
	}
	if !ok {
		if where, err = byIdentity(ctx, values); err != nil {
			return nil, err
		}
	}
	if err := ctx.checkParams(); err != nil {
		return nil, err
	}

	ctx.compiled.SQL = "update " + e.Table + " set " + strings.Join(sets, ", ") + " \nwhere " + where
	ctx.compiled.Params = ctx.params
	return ctx.compiled, nil
}

// Delete 没有条件时按标识列删除
func (c *Compiler) Delete(req *Request, values meta.Values) (*Compiled, error) {
	e := req.Entity
	ev := req.Security
	if ev.Enabled() && !ev.CanDeleteRow(e.Security) {
		return nil, accessDenied("delete from %s", e.Name)
	}
	ctx := newContext(req, e.Table, false)

	where, ok, err := dmlPredicate(ctx, req.Fragment)
	if err != nil {
		return nil, err
	}
	if !ok {
		if values == nil {
			return nil, invalid("delete requires a where clause or an object")
		}
		if where, err = byIdentity(ctx, values); err != nil {
			return nil, err
		}
	}
	if err := ctx.checkParams(); err != nil {
		return nil, err
	}

	ctx.compiled.SQL = "delete from " + e.Table + " \nwhere " + where
	ctx.compiled.Params = ctx.params
	return ctx.compiled, nil
}
