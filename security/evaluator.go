package security

// Evaluator 计算调用者的有效权限
// 关闭时所有检查直接放行
type Evaluator struct {
	enabled   bool
	principal Principal
}

// NewEvaluator 创建开启权限检查的计算器，principal 可以为 nil
func NewEvaluator(principal Principal) *Evaluator {
	return &Evaluator{enabled: true, principal: principal}
}

// Disabled 创建关闭权限检查的计算器
func Disabled() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Enabled() bool {
	return e != nil && e.enabled
}

func (e *Evaluator) Principal() Principal {
	if e == nil {
		return nil
	}
	return e.principal
}

// Bits 有效权限为 everyone 与调用者所在组的按位或
// 没有规则时不授予任何权限
func (e *Evaluator) Bits(rule *Rule) Bits {
	if rule == nil {
		return 0
	}
	bits := rule.Everyone
	if e == nil || e.principal == nil {
		return bits
	}
	for _, g := range rule.Groups {
		if e.principal.InGroup(g.Group) {
			bits |= g.Bits
		}
	}
	return bits
}

func (e *Evaluator) allow(rule *Rule, bit Bits) bool {
	if !e.Enabled() {
		return true
	}
	return e.Bits(rule)&bit != 0
}

func (e *Evaluator) CanSelect(field *Rule) bool {
	return e.allow(field, FieldSelect)
}

func (e *Evaluator) CanUpdate(field *Rule) bool {
	return e.allow(field, FieldUpdate)
}

func (e *Evaluator) CanInsert(field *Rule) bool {
	return e.allow(field, FieldInsert)
}

func (e *Evaluator) CanInsertRow(table *Rule) bool {
	return e.allow(table, TableInsert)
}

func (e *Evaluator) CanDeleteRow(table *Rule) bool {
	return e.allow(table, TableDelete)
}

// Rights 返回 5 位权限串：字段 select/update/insert + 表 insert/delete
// 不受开关影响，总是按规则计算
func (e *Evaluator) Rights(field, table *Rule) string {
	return e.Bits(field).Format(3) + e.Bits(table).Format(2)
}
