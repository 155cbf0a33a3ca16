package compiler

import (
	"math"
	"strconv"
	"strings"

	"github.com/hatlonely/dbq/meta"
)

// fragment 切分后的查询片段
type fragment struct {
	sel      []token
	where    []token
	order    []token
	hasWhere bool
	hasOrder bool

	paged bool
	page  int
	count int
}

// parseFragment 识别 limit(page,count)，按顶层的 where 和 order by 切分
func parseFragment(s string) (*fragment, error) {
	tokens := lex(s)
	f := &fragment{}

	depth := 0
	whereAt, orderAt, limitAt := -1, -1, -1
	for i, t := range tokens {
		if t.kind == tokPunct {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			}
			continue
		}
		if depth != 0 || t.kind != tokPath {
			continue
		}
		switch {
		case t.is("where") && whereAt < 0 && orderAt < 0:
			whereAt = i
		case t.is("order") && orderAt < 0:
			if n := next(tokens, i); n >= 0 && tokens[n].is("by") {
				orderAt = i
			}
		case t.is("limit"):
			if n := next(tokens, i); n >= 0 && tokens[n].text == "(" {
				limitAt = i
			}
		}
	}
	if depth != 0 {
		return nil, invalid("unbalanced parentheses in %q", s)
	}

	if limitAt >= 0 {
		if err := f.parseLimit(tokens[limitAt:]); err != nil {
			return nil, err
		}
		tokens = tokens[:limitAt]
	}

	end := len(tokens)
	if orderAt >= 0 && orderAt < end {
		f.hasOrder = true
		f.order = trim(tokens[next(tokens, orderAt)+1 : end])
		end = orderAt
	}
	if whereAt >= 0 && whereAt < end {
		f.hasWhere = true
		f.where = trim(tokens[whereAt+1 : end])
		end = whereAt
	}
	f.sel = trim(tokens[:end])
	return f, nil
}

// parseLimit limit ( page , count ) 之后不能再有其他内容
func (f *fragment) parseLimit(tokens []token) error {
	var sig []token
	for _, t := range tokens {
		if t.kind != tokSpace {
			sig = append(sig, t)
		}
	}
	if len(sig) != 6 || sig[1].text != "(" || sig[3].text != "," || sig[5].text != ")" ||
		sig[2].kind != tokNumber || sig[4].kind != tokNumber {
		return invalid("malformed pagination %q", join(tokens))
	}
	page, err := strconv.Atoi(sig[2].text)
	if err != nil {
		return invalid("malformed page %q", sig[2].text)
	}
	count, err := strconv.Atoi(sig[4].text)
	if err != nil {
		return invalid("malformed count %q", sig[4].text)
	}
	if page <= 0 || count <= 0 {
		return invalid("page and count must be positive, got limit(%d,%d)", page, count)
	}
	if page > math.MaxInt/count {
		return invalid("pagination limit(%d,%d) out of range", page, count)
	}
	f.paged, f.page, f.count = true, page, count
	return nil
}

// window 行号窗口的上下界，行号从 1 开始，两端都包含
func (f *fragment) window() (int, int) {
	return f.page*f.count - (f.count - 1), f.page * f.count
}

// selectItems 去掉 select 关键字，截断 from 之后的内容
func selectItems(tokens []token) []token {
	if len(tokens) > 0 && tokens[0].is("select") {
		tokens = trim(tokens[1:])
	}
	depth := 0
	for i, t := range tokens {
		if t.kind == tokPunct {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			}
		}
		if depth == 0 && t.is("from") {
			return trim(tokens[:i])
		}
	}
	return tokens
}

func (ctx *compileContext) isSelectAll(items []token) bool {
	if len(items) == 0 {
		return true
	}
	if len(items) != 1 {
		return false
	}
	return items[0].text == "*" || items[0].text == ctx.alias+".*"
}

// selectAll 全部可查询的列
// 开启权限检查时只包含有 select 权限的列，大对象列需要显式请求
func (ctx *compileContext) selectAll() (string, error) {
	ev := ctx.req.Security
	var cols []string
	ctx.compiled.Columns = nil
	ctx.compiled.Labels = nil
	for _, c := range ctx.base.Columns {
		if ev.Enabled() {
			if !ev.CanSelect(c.Security) {
				continue
			}
			if c.Kind.IsLOB() && !ctx.req.Blobs {
				continue
			}
		}
		cols = append(cols, ctx.alias+"."+c.Name)
		ctx.compiled.Columns = append(ctx.compiled.Columns, c)
	}
	if len(cols) == 0 {
		return "", accessDenied("no selectable fields in %s", ctx.base.Name)
	}
	return "select " + strings.Join(cols, ", "), nil
}

func (ctx *compileContext) addColumn(c *meta.Column) {
	if !ctx.selected(c) {
		ctx.compiled.Columns = append(ctx.compiled.Columns, c)
	}
}

func (ctx *compileContext) label(c *meta.Column, label string) {
	if ctx.compiled.Labels == nil {
		ctx.compiled.Labels = map[string]string{}
	}
	ctx.compiled.Labels[c.Field] = label
}

// aliasOf item[n] 为 as 时返回其后的别名
func aliasOf(item []token, n int) (string, bool) {
	if n < 0 || !item[n].is("as") {
		return "", false
	}
	m := next(item, n)
	if m < 0 {
		return "", false
	}
	return strings.ToUpper(strings.Trim(item[m].text, "\"`")), true
}

// joinKeys 查询后填充关联字段需要本表的关联列，没有选择时追加到选择列表
func (ctx *compileContext) joinKeys() ([]string, error) {
	ev := ctx.req.Security
	var keys []string
	for _, jf := range ctx.compiled.JoinFields {
		for _, p := range jf.Join.On {
			c := ctx.base.Column(p.Local)
			if c == nil || ctx.selected(c) {
				continue
			}
			if ev.Enabled() && !ev.CanSelect(c.Security) {
				return nil, accessDenied("field %s of %s is required by %s", c.Field, ctx.base.Name, jf.Join.Field)
			}
			ctx.addColumn(c)
			keys = append(keys, ctx.alias+"."+c.Name)
		}
	}
	return keys, nil
}

func (ctx *compileContext) selected(c *meta.Column) bool {
	for _, old := range ctx.compiled.Columns {
		if old == c {
			return true
		}
	}
	return false
}

func projectionLabel(ref *reference) string {
	segs := make([]string, 0, len(ref.joins)+1)
	for _, j := range ref.joins {
		segs = append(segs, strings.ToUpper(j.Field))
	}
	return strings.Join(append(segs, ref.column.Name), "_")
}

// selectList 改写显式的选择列表
// 经一对一关联到达的列直接投影，其他关联字段从语句中移除，查询后再填充
func (ctx *compileContext) selectList(tokens []token) (string, error) {
	items := selectItems(tokens)
	if ctx.isSelectAll(items) {
		return ctx.selectAll()
	}

	ev := ctx.req.Security
	var kept []string
	for _, item := range splitTop(items) {
		var b strings.Builder
		label := -1
		for i, t := range item {
			if i == label {
				b.WriteString(t.text)
				continue
			}
			if t.is("as") {
				label = next(item, i)
				b.WriteString(t.text)
				continue
			}
			switch t.kind {
			case tokParam:
				if err := ctx.param(); err != nil {
					return "", err
				}
				b.WriteString(t.text)
				continue
			case tokString:
				ctx.params = append(ctx.params, unquote(t.text))
				b.WriteString("?")
				continue
			case tokPath:
			default:
				b.WriteString(t.text)
				continue
			}

			n := next(item, i)
			if n >= 0 && item[n].text == "(" {
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

			if ref.column == nil || !ref.single() {
				ctx.compiled.JoinFields = append(ctx.compiled.JoinFields, &JoinField{
					Join: ref.joins[0],
					Rest: strings.Join(ref.path[1:], "."),
				})
				continue
			}
			if ev.Enabled() && !ev.CanSelect(ref.column.Security) {
				return "", accessDenied("field %s of %s", ref.column.Field, ref.owner.Name)
			}

			q, err := ctx.qualify(ref)
			if err != nil {
				return "", err
			}
			b.WriteString(q)
			if len(ref.joins) == 0 {
				ctx.addColumn(ref.column)
				if label, ok := aliasOf(item, n); ok {
					ctx.label(ref.column, label)
				}
				continue
			}

			p := &Projection{Path: ref.joins, Column: ref.column, Label: projectionLabel(ref)}
			if label, ok := aliasOf(item, n); ok {
				p.Label = label
			} else {
				b.WriteString(" AS " + p.Label)
			}
			ctx.compiled.Projections = append(ctx.compiled.Projections, p)
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			kept = append(kept, s)
		}
	}

	if len(kept) == 0 {
		return ctx.selectAll()
	}
	keys, err := ctx.joinKeys()
	if err != nil {
		return "", err
	}
	return "select " + strings.Join(append(kept, keys...), ", "), nil
}

// linkFilter 合成到中间表的关联和条件
func (ctx *compileContext) linkFilter() (string, error) {
	lf := ctx.req.Link
	if lf == nil {
		return "", nil
	}
	if !lf.Join.Linked() || len(lf.Values) != len(lf.Join.On) {
		return "", invalid("link filter of %s does not match its relationship", lf.Join.Field)
	}
	link, err := lf.Owner.LinkEntity(lf.Join)
	if err != nil {
		return "", err
	}
	linkAlias := ctx.allocAlias(link.Alias)
	on, err := onClause(link, linkAlias, ctx.base, ctx.alias, lf.Join.LinkOn)
	if err != nil {
		return "", err
	}
	ctx.addJoin("join " + link.Table + " " + linkAlias + " on " + on)

	conds := make([]string, 0, len(lf.Join.On))
	for i, p := range lf.Join.On {
		col, err := columnName(link, p.Foreign)
		if err != nil {
			return "", err
		}
		conds = append(conds, linkAlias+"."+col+"=?")
		ctx.params = append(ctx.params, lf.Values[i])
	}
	return strings.Join(conds, " and "), nil
}

func andWhere(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " and (" + b + ")"
}

// Select 编译查询片段
func (c *Compiler) Select(req *Request) (*Compiled, error) {
	f, err := parseFragment(req.Fragment)
	if err != nil {
		return nil, err
	}
	ctx := newContext(req, req.Entity.Alias, true)

	sel, err := ctx.selectList(f.sel)
	if err != nil {
		return nil, err
	}
	link, err := ctx.linkFilter()
	if err != nil {
		return nil, err
	}
	where, err := ctx.rewrite(f.where)
	if err != nil {
		return nil, err
	}
	if f.hasWhere && where == "" {
		return nil, invalid("empty where clause")
	}
	order, err := ctx.rewrite(f.order)
	if err != nil {
		return nil, err
	}
	if err := ctx.checkParams(); err != nil {
		return nil, err
	}

	return ctx.finish(ctx.assemble(sel, andWhere(link, where), order), f, c), nil
}

// finish 按需包装分页
func (ctx *compileContext) finish(sql string, f *fragment, c *Compiler) *Compiled {
	if f != nil && f.paged {
		first, last := f.window()
		sql = c.dialect.Paginate(sql)
		ctx.params = append(ctx.params, first, last)
	}
	ctx.compiled.SQL = sql
	ctx.compiled.Params = ctx.params
	return ctx.compiled
}

// Count 与 Select 使用相同的关联和条件，忽略选择列表、排序和分页
func (c *Compiler) Count(req *Request) (*Compiled, error) {
	f, err := parseFragment(req.Fragment)
	if err != nil {
		return nil, err
	}
	ctx := newContext(req, req.Entity.Alias, true)

	ctx.skipParams(f.sel)
	link, err := ctx.linkFilter()
	if err != nil {
		return nil, err
	}
	where, err := ctx.rewrite(f.where)
	if err != nil {
		return nil, err
	}
	ctx.skipParams(f.order)
	if err := ctx.checkParams(); err != nil {
		return nil, err
	}

	return ctx.finish(ctx.assemble("select count(*) as ct", andWhere(link, where), ""), nil, c), nil
}
