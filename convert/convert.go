package convert

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrConversionFailed      = errors.New("conversion failed")
)

// ConversionError 转换函数执行失败，携带原始错误
type ConversionError struct {
	From  Kind
	To    Kind
	Cause error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s to %s failed: %v", e.From, e.To, e.Cause)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversionFailed, e.Cause}
}

// Func 单个 (源, 目标) 类型对的转换函数
type Func func(v any) (any, error)

var (
	mu        sync.RWMutex
	converter = map[string]Func{}
)

func key(from, to string) string {
	return strings.ToLower(from) + "->" + strings.ToLower(to)
}

// Register 注册转换函数，类型名大小写不敏感，重复注册会覆盖
func Register(from, to string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	converter[key(from, to)] = fn
}

// Lookup 查找转换函数
func Lookup(from, to string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := converter[key(from, to)]
	return fn, ok
}

func register(from, to Kind, fn Func) {
	Register(from.String(), to.String(), fn)
}

// Convert 将值转换为目标类型
//  1. nil 转换为 nil
//  2. 值的类型与目标一致时原样返回
//  3. 按 (源类型名, 目标类型名) 查找转换函数
//  4. 转换函数失败时返回 ConversionError
func Convert(v any, to Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	from := KindOf(v)
	if from == to {
		return v, nil
	}
	fn, ok := Lookup(from.String(), to.String())
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedConversion, "%T to %s", v, to)
	}
	out, err := fn(v)
	if err != nil {
		return nil, &ConversionError{From: from, To: to, Cause: err}
	}
	return out, nil
}

// ConvertTo 将值转换为指定的 Go 类型，支持指针和自定义命名类型
func ConvertTo(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	if rv := reflect.ValueOf(v); rv.Type() == t {
		return rv, nil
	}

	if t.Kind() == reflect.Ptr && t != lobType {
		elem, err := ConvertTo(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	kind := KindFor(t)
	// 字符串写入大对象时使用 CLOB
	if t == lobType && KindOf(v) == String {
		kind = Clob
	}
	if kind == Invalid {
		rv := reflect.ValueOf(v)
		if rv.Type().AssignableTo(t) {
			return rv, nil
		}
		if rv.Type().ConvertibleTo(t) {
			return rv.Convert(t), nil
		}
		return reflect.Value{}, errors.Wrapf(ErrUnsupportedConversion, "%T to %s", v, t)
	}

	out, err := Convert(v, kind)
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(out)
	if rv.Type() != t {
		rv = rv.Convert(t)
	}
	return rv, nil
}

// Assign 将值转换后写入结构体字段
func Assign(dst reflect.Value, v any) error {
	if !dst.CanSet() {
		return errors.New("destination is not settable")
	}
	rv, err := ConvertTo(v, dst.Type())
	if err != nil {
		return err
	}
	dst.Set(rv)
	return nil
}

// ToDriver 将绑定参数转换为驱动可接受的值
// 布尔值绑定为 "Y"/"N"，大对象会被完整读取
func ToDriver(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if x {
			return "Y", nil
		}
		return "N", nil
	case *LOB:
		data, err := x.ReadAll()
		if err != nil {
			return nil, err
		}
		if x.Binary() {
			return data, nil
		}
		return string(data), nil
	case decimal.Decimal:
		return x.String(), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		return ToDriver(rv.Elem().Interface())
	}
	return v, nil
}
