package cfg

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Value 解码后的配置树，实现 ref.Convertable
// 绑定到 any 类型字段的子树会被包装成 *Value，由构造函数按自己的选项类型转换
type Value struct {
	data any
}

func NewValue(data any) *Value {
	return &Value{data: data}
}

func (v *Value) Data() any {
	if v == nil {
		return nil
	}
	return v.data
}

// Sub 按路径取子树，路径形如 a.b[0].c
func (v *Value) Sub(key string) *Value {
	if v == nil {
		return NewValue(nil)
	}
	cur := v.data
	for _, k := range parseKey(key) {
		cur = index(cur, k)
		if cur == nil {
			break
		}
	}
	return NewValue(cur)
}

// ConvertTo 绑定到 object，补齐默认值后校验
func (v *Value) ConvertTo(object any) error {
	if err := Bind(v.Data(), object); err != nil {
		return err
	}
	if err := SetDefaults(object); err != nil {
		return err
	}
	return Validate(object)
}

func parseKey(key string) []string {
	key = strings.NewReplacer("[", ".", "]", "").Replace(key)
	var keys []string
	for _, k := range strings.Split(key, ".") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func index(data any, key string) any {
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if keyString(k) == key {
				return rv.MapIndex(k).Interface()
			}
		}
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err == nil && i >= 0 && i < rv.Len() {
			return rv.Index(i).Interface()
		}
	}
	return nil
}

// Load 读取配置文件并转换到 object，格式由扩展名决定
func Load(path string, object any) error {
	v, err := LoadValue(path)
	if err != nil {
		return err
	}
	return errors.WithMessagef(v.ConvertTo(object), "load %s failed", path)
}

func LoadValue(path string) (*Value, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s failed", path)
	}
	v, err := Decode(strings.TrimPrefix(filepath.Ext(path), "."), buf)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode %s failed", path)
	}
	return v, nil
}
