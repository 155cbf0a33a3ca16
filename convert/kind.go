package convert

import (
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind 值的类型标签，转换表以 (源 Kind, 目标 Kind) 为键
type Kind int

const (
	Invalid Kind = iota
	Null
	Bool
	Int8
	Int16
	Int32
	Int64
	Int
	Float32
	Float64
	Decimal
	String
	Time
	Bytes
	Blob
	Clob
)

var kindNames = map[Kind]string{
	Invalid: "invalid",
	Null:    "null",
	Bool:    "bool",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Int:     "int",
	Float32: "float32",
	Float64: "float64",
	Decimal: "decimal",
	String:  "string",
	Time:    "time",
	Bytes:   "bytes",
	Blob:    "blob",
	Clob:    "clob",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind 按名称解析 Kind，大小写不敏感
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name && k != Invalid {
			return k, true
		}
	}
	switch name {
	case "boolean":
		return Bool, true
	case "integer", "long":
		return Int64, true
	case "double":
		return Float64, true
	case "text", "varchar":
		return String, true
	case "timestamp", "date", "datetime":
		return Time, true
	}
	return Invalid, false
}

// IsInteger 判断是否为整数类型
func (k Kind) IsInteger() bool {
	switch k {
	case Int8, Int16, Int32, Int64, Int:
		return true
	}
	return false
}

// IsLOB 判断是否为大对象类型（字节序列也视为二进制大对象）
func (k Kind) IsLOB() bool {
	return k == Bytes || k == Blob || k == Clob
}

// KindOf 返回运行时值的 Kind
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case int:
		return Int
	case float32:
		return Float32
	case float64:
		return Float64
	case decimal.Decimal:
		return Decimal
	case string:
		return String
	case time.Time:
		return Time
	case []byte:
		return Bytes
	case *LOB:
		if v.(*LOB).binary {
			return Blob
		}
		return Clob
	}
	return Invalid
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bytesType   = reflect.TypeOf([]byte(nil))
	lobType     = reflect.TypeOf(&LOB{})
)

// KindFor 返回 Go 类型对应的 Kind，指针类型取其元素类型
func KindFor(t reflect.Type) Kind {
	for t.Kind() == reflect.Ptr && t != lobType {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return Time
	case decimalType:
		return Decimal
	case bytesType:
		return Bytes
	case lobType:
		return Blob
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Int:
		return Int
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.String:
		return String
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes
		}
	}
	return Invalid
}
