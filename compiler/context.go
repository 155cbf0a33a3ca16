package compiler

import (
	"strconv"
	"strings"

	"github.com/hatlonely/dbq/meta"
	"github.com/pkg/errors"
)

type joined struct {
	entity *meta.Entity
	alias  string
}

// compileContext 一次编译的状态，编译结束后丢弃
type compileContext struct {
	req   *Request
	base  *meta.Entity
	alias string

	allowJoins bool
	aliases    map[string]bool
	joined     map[string]joined
	joins      []string
	joinSet    map[string]bool

	params []any
	next   int

	compiled *Compiled
}

func newContext(req *Request, alias string, allowJoins bool) *compileContext {
	return &compileContext{
		req:        req,
		base:       req.Entity,
		alias:      alias,
		allowJoins: allowJoins,
		aliases:    map[string]bool{alias: true},
		joined:     map[string]joined{},
		joinSet:    map[string]bool{},
		compiled:   &Compiled{},
	}
}

// allocAlias 别名冲突时追加数字
func (ctx *compileContext) allocAlias(name string) string {
	alias := name
	for i := 1; ctx.aliases[alias]; i++ {
		alias = name + strconv.Itoa(i)
	}
	ctx.aliases[alias] = true
	return alias
}

func (ctx *compileContext) addJoin(clause string) {
	if ctx.joinSet[clause] {
		return
	}
	ctx.joinSet[clause] = true
	ctx.joins = append(ctx.joins, clause)
}

func columnName(e *meta.Entity, field string) (string, error) {
	c := e.Column(field)
	if c == nil {
		return "", errors.Errorf("entity %s has no field %s", e.Name, field)
	}
	return c.Name, nil
}

// onClause 生成 l.A=r.B and l.C=r.D
func onClause(left *meta.Entity, leftAlias string, right *meta.Entity, rightAlias string, pairs []meta.Pair) (string, error) {
	conds := make([]string, 0, len(pairs))
	for _, p := range pairs {
		l, err := columnName(left, p.Local)
		if err != nil {
			return "", err
		}
		r, err := columnName(right, p.Foreign)
		if err != nil {
			return "", err
		}
		conds = append(conds, leftAlias+"."+l+"="+rightAlias+"."+r)
	}
	return strings.Join(conds, " and "), nil
}

// join 合成关联子句，同一关联只生成一次
func (ctx *compileContext) join(from *meta.Entity, fromAlias string, j *meta.Join) (*meta.Entity, string, error) {
	key := fromAlias + "." + j.Field
	if jd, ok := ctx.joined[key]; ok {
		return jd.entity, jd.alias, nil
	}
	if !ctx.allowJoins {
		return nil, "", invalid("relationship %s cannot be used here", j.Field)
	}

	target, err := from.Target(j)
	if err != nil {
		return nil, "", errors.WithMessagef(err, "join %s.%s", from.Name, j.Field)
	}

	if !j.Linked() {
		alias := ctx.allocAlias(target.Alias)
		on, err := onClause(from, fromAlias, target, alias, j.On)
		if err != nil {
			return nil, "", err
		}
		ctx.addJoin("join " + target.Table + " " + alias + " on " + on)
		ctx.joined[key] = joined{entity: target, alias: alias}
		return target, alias, nil
	}

	link, err := from.LinkEntity(j)
	if err != nil {
		return nil, "", errors.WithMessagef(err, "join %s.%s", from.Name, j.Field)
	}
	linkAlias := ctx.allocAlias(link.Alias)
	alias := ctx.allocAlias(target.Alias)
	on, err := onClause(from, fromAlias, link, linkAlias, j.On)
	if err != nil {
		return nil, "", err
	}
	linkOn, err := onClause(link, linkAlias, target, alias, j.LinkOn)
	if err != nil {
		return nil, "", err
	}
	ctx.addJoin("join " + link.Table + " " + linkAlias + " on " + on + "\njoin " + target.Table + " " + alias + " on " + linkOn)
	ctx.joined[key] = joined{entity: target, alias: alias}
	return target, alias, nil
}

// reference 字段引用的解析结果
type reference struct {
	path   []string
	joins  []*meta.Join
	column *meta.Column
	owner  *meta.Entity
}

// single 关联链上都是一对一
func (r *reference) single() bool {
	for _, j := range r.joins {
		if j.Cardinality != meta.One {
			return false
		}
	}
	return true
}

// resolve 解析字段引用，首段不是已知字段时返回 nil，保持原样
func (ctx *compileContext) resolve(text string) (*reference, error) {
	path := strings.Split(text, ".")
	if len(path) > 1 && path[0] == ctx.alias {
		path = path[1:]
	}

	ref := &reference{path: path}
	cur := ctx.base
	for i, seg := range path {
		last := i == len(path)-1
		if last {
			if c := cur.Column(seg); c != nil {
				ref.column = c
				ref.owner = cur
				return ref, nil
			}
		}
		j := cur.Join(seg)
		if j == nil {
			if i == 0 {
				return nil, nil
			}
			return nil, invalid("%s has no field %s", cur.Name, seg)
		}
		ref.joins = append(ref.joins, j)
		if last {
			return ref, nil
		}
		target, err := cur.Target(j)
		if err != nil {
			return nil, errors.WithMessagef(err, "resolve %s", text)
		}
		cur = target
	}
	return ref, nil
}

// qualify 为引用合成关联并返回 alias.COLUMN
func (ctx *compileContext) qualify(ref *reference) (string, error) {
	if ref.column == nil {
		return "", invalid("relationship %s cannot be compared", strings.Join(ref.path, "."))
	}
	entity, alias := ctx.base, ctx.alias
	for _, j := range ref.joins {
		var err error
		if entity, alias, err = ctx.join(entity, alias, j); err != nil {
			return "", err
		}
	}
	return alias + "." + ref.column.Name, nil
}

// param 消费一个调用方参数
func (ctx *compileContext) param() error {
	if ctx.next >= len(ctx.req.Params) {
		return invalid("not enough parameters, %d given", len(ctx.req.Params))
	}
	ctx.params = append(ctx.params, ctx.req.Params[ctx.next])
	ctx.next++
	return nil
}

// unquote 'it''s' -> it's
func unquote(s string) string {
	if len(s) >= 2 && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
	} else {
		s = s[1:]
	}
	return strings.ReplaceAll(s, "''", "'")
}

// rewrite 改写条件或排序子句：字段加别名，关联合成 join，字符串字面量改为绑定参数
func (ctx *compileContext) rewrite(tokens []token) (string, error) {
	var b strings.Builder
	for i, t := range tokens {
		switch t.kind {
		case tokString:
			ctx.params = append(ctx.params, unquote(t.text))
			b.WriteString("?")
		case tokParam:
			if err := ctx.param(); err != nil {
				return "", err
			}
			b.WriteString("?")
		case tokPath:
			if n := next(tokens, i); n >= 0 && tokens[n].text == "(" {
				b.WriteString(t.text)
				continue
			}
			ref, err := ctx.resolve(t.text)
			if err != nil {
				return "", err
			}
			if ref == nil {
				b.WriteString(t.text)
				continue
			}
			q, err := ctx.qualify(ref)
			if err != nil {
				return "", err
			}
			b.WriteString(q)
		default:
			b.WriteString(t.text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// skipParams 跳过被丢弃的记号中的参数
func (ctx *compileContext) skipParams(tokens []token) {
	for _, t := range tokens {
		if t.kind == tokParam && ctx.next < len(ctx.req.Params) {
			ctx.next++
		}
	}
}

func (ctx *compileContext) checkParams() error {
	if ctx.next != len(ctx.req.Params) {
		return invalid("%d parameters given, %d used", len(ctx.req.Params), ctx.next)
	}
	return nil
}

func (ctx *compileContext) from() string {
	return "from " + ctx.base.Table + " " + ctx.alias
}

// assemble select \nfrom \njoin \nwhere \norder by
func (ctx *compileContext) assemble(sel string, where string, order string) string {
	parts := []string{sel, ctx.from()}
	parts = append(parts, ctx.joins...)
	if where != "" {
		parts = append(parts, "where "+where)
	}
	if order != "" {
		parts = append(parts, "order by "+order)
	}
	return strings.Join(parts, "\n")
}
