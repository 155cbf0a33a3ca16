package security

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Bits 权限位向量
// 字段级 3 位：select update insert
// 表级 2 位：insert delete
type Bits uint8

const (
	FieldSelect Bits = 0b100
	FieldUpdate Bits = 0b010
	FieldInsert Bits = 0b001

	TableInsert Bits = 0b10
	TableDelete Bits = 0b01
)

// Everyone 默认规则对应的组名
const Everyone = "everyone"

// ParseBits 解析 "101" 形式的权限串，高位在前
func ParseBits(s string) (Bits, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 3 {
		return 0, errors.Errorf("invalid permission %q", s)
	}
	n, err := strconv.ParseUint(s, 2, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid permission %q", s)
	}
	return Bits(n), nil
}

// Format 按指定位宽输出权限串
func (b Bits) Format(width int) string {
	return fmt.Sprintf("%0*b", width, uint8(b))
}

// GroupRule 单个组的权限
type GroupRule struct {
	Group string
	Bits  Bits
}

// Rule 权限规则，注册后不可修改
type Rule struct {
	Everyone Bits
	Groups   []GroupRule
}

// ParseRule 解析 "everyone=100,admin=111" 形式的规则
func ParseRule(spec string) (*Rule, error) {
	rule := &Rule{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("invalid security rule %q", part)
		}
		bits, err := ParseBits(kv[1])
		if err != nil {
			return nil, err
		}
		group := strings.TrimSpace(kv[0])
		if strings.EqualFold(group, Everyone) {
			rule.Everyone = bits
			continue
		}
		rule.Groups = append(rule.Groups, GroupRule{Group: group, Bits: bits})
	}
	return rule, nil
}

// MustParseRule 解析失败时 panic，用于静态声明
func MustParseRule(spec string) *Rule {
	rule, err := ParseRule(spec)
	if err != nil {
		panic(err)
	}
	return rule
}

// Principal 调用者身份
type Principal interface {
	InGroup(group string) bool
}

// Groups 以组名列表表示的调用者
type Groups []string

func (g Groups) InGroup(group string) bool {
	for _, name := range g {
		if name == group {
			return true
		}
	}
	return false
}
